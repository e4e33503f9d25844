package models

import (
	"fmt"
	"strings"
)

// DebateKind distinguishes the two debates of a pipeline run.
type DebateKind string

const (
	ResearchDebate DebateKind = "research"
	RiskDebate     DebateKind = "risk"
)

// DebateTurn is one participant slot in a round. Skipped turns carry the failure kind instead of a statement.
type DebateTurn struct {
	Round     int         `json:"round"`
	Speaker   string      `json:"speaker"`
	Statement string      `json:"statement,omitempty"`
	Skipped   bool        `json:"skipped,omitempty"`
	Failure   FailureKind `json:"failure,omitempty"`
}

// DebateTranscript is the ordered record of one debate loop.
// It is appended to while the loop runs and frozen once the arbiter has spoken.
type DebateTranscript struct {
	Kind      DebateKind   `json:"kind"`
	Turns     []DebateTurn `json:"turns"`
	Rounds    int          `json:"rounds"`
	EarlyExit bool         `json:"early_exit,omitempty"`
	Verdict   string       `json:"verdict,omitempty"`
	frozen    bool
}

func NewDebateTranscript(kind DebateKind) *DebateTranscript {
	return &DebateTranscript{Kind: kind}
}

func (t *DebateTranscript) Append(turn DebateTurn) error {
	if t.frozen {
		return fmt.Errorf("%s debate transcript is frozen", t.Kind)
	}
	t.Turns = append(t.Turns, turn)
	return nil
}

// Freeze marks the transcript immutable. Further appends fail.
func (t *DebateTranscript) Freeze() {
	t.frozen = true
}

func (t *DebateTranscript) Frozen() bool {
	return t.frozen
}

// Statements counts the non-skipped turns.
func (t *DebateTranscript) Statements() int {
	n := 0
	for _, turn := range t.Turns {
		if !turn.Skipped {
			n++
		}
	}
	return n
}

// History renders the successful statements as "Speaker: text" lines, the format the prompts expect.
func (t *DebateTranscript) History() string {
	var sb strings.Builder
	for _, turn := range t.Turns {
		if turn.Skipped {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(turn.Speaker)
		sb.WriteString(": ")
		sb.WriteString(turn.Statement)
	}
	return sb.String()
}

// HistoryOf renders only the statements made by speaker.
func (t *DebateTranscript) HistoryOf(speaker string) string {
	var lines []string
	for _, turn := range t.Turns {
		if turn.Skipped || turn.Speaker != speaker {
			continue
		}
		lines = append(lines, turn.Speaker+": "+turn.Statement)
	}
	return strings.Join(lines, "\n")
}

// LatestOf returns the most recent statement by speaker, or "".
func (t *DebateTranscript) LatestOf(speaker string) string {
	for i := len(t.Turns) - 1; i >= 0; i-- {
		turn := t.Turns[i]
		if !turn.Skipped && turn.Speaker == speaker {
			return turn.Statement
		}
	}
	return ""
}

// Latest returns the last statement regardless of speaker, labelled with the speaker.
func (t *DebateTranscript) Latest() string {
	for i := len(t.Turns) - 1; i >= 0; i-- {
		turn := t.Turns[i]
		if !turn.Skipped {
			return turn.Speaker + ": " + turn.Statement
		}
	}
	return ""
}

// Clone returns a deep copy. The copy keeps the frozen flag.
func (t *DebateTranscript) Clone() *DebateTranscript {
	if t == nil {
		return nil
	}
	cp := *t
	cp.Turns = append([]DebateTurn(nil), t.Turns...)
	return &cp
}
