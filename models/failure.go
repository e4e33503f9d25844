package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// FailureKind classifies why a stage or a whole run did not succeed.
type FailureKind string

const (
	ReasonerTimeout         FailureKind = "ReasonerTimeout"
	ReasonerError           FailureKind = "ReasonerError"
	MalformedResponse       FailureKind = "MalformedResponse"
	RecursionLimitExceeded  FailureKind = "RecursionLimitExceeded"
	Cancelled               FailureKind = "Cancelled"
	DataProviderUnavailable FailureKind = "DataProviderUnavailable"
	ConfigInvalid           FailureKind = "ConfigInvalid"
)

// Phase is a state of the pipeline state machine.
type Phase string

const (
	PhaseAnalyst        Phase = "analyst"
	PhaseResearchDebate Phase = "research_debate"
	PhaseTrader         Phase = "trader"
	PhaseRiskDebate     Phase = "risk_debate"
	PhasePortfolio      Phase = "portfolio"
	PhaseDone           Phase = "done"
	PhaseFailed         Phase = "failed"
)

// Phases lists the working phases in execution order.
var Phases = []Phase{PhaseAnalyst, PhaseResearchDebate, PhaseTrader, PhaseRiskDebate, PhasePortfolio}

// StageFailure describes a failed stage invocation or a run-level abort.
type StageFailure struct {
	Kind  FailureKind `json:"kind"`
	Stage string      `json:"stage,omitempty"`
	Phase Phase       `json:"phase,omitempty"`
	Cause error       `json:"-"`
}

func NewStageFailure(kind FailureKind, stage string, cause error) *StageFailure {
	return &StageFailure{Kind: kind, Stage: stage, Cause: cause}
}

func (f *StageFailure) Error() string {
	msg := string(f.Kind)
	if f.Stage != "" {
		msg = fmt.Sprintf("%s in %s", msg, f.Stage)
	}
	if f.Phase != "" {
		msg = fmt.Sprintf("%s (phase %s)", msg, f.Phase)
	}
	if f.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, f.Cause)
	}
	return msg
}

func (f *StageFailure) Unwrap() error {
	return f.Cause
}

// Message returns the cause text, or the kind when there is no cause.
func (f *StageFailure) Message() string {
	if f.Cause == nil {
		return string(f.Kind)
	}
	return f.Cause.Error()
}

type stageFailureJSON struct {
	Kind    FailureKind `json:"kind"`
	Stage   string      `json:"stage,omitempty"`
	Phase   Phase       `json:"phase,omitempty"`
	Message string      `json:"message,omitempty"`
}

// MarshalJSON exports the cause as its message.
func (f StageFailure) MarshalJSON() ([]byte, error) {
	out := stageFailureJSON{Kind: f.Kind, Stage: f.Stage, Phase: f.Phase}
	if f.Cause != nil {
		out.Message = f.Cause.Error()
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores the cause as a plain error carrying the message.
func (f *StageFailure) UnmarshalJSON(data []byte) error {
	var in stageFailureJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*f = StageFailure{Kind: in.Kind, Stage: in.Stage, Phase: in.Phase}
	if in.Message != "" {
		f.Cause = errors.New(in.Message)
	}
	return nil
}
