package models

import "time"

// RunRecord is a persisted pipeline run.
type RunRecord struct {
	Id            int64
	RunID         string
	Symbol        string
	TradeDate     string
	Status        string
	Phase         string
	FailureKind   string
	FinalDecision string
	Action        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// StageEventRecord is one persisted stage invocation of a run.
type StageEventRecord struct {
	Id         int64
	RunID      string
	Seq        int
	Phase      string
	Stage      string
	Agent      string
	Content    string
	Status     string
	DurationMs int64
	CreatedAt  time.Time
}
