package models

import "time"

// SessionRecord is the persisted summary of one completed practice session.
// Aborted sessions are never persisted.
type SessionRecord struct {
	ID                  string
	LearnerID           string
	ScriptID            string
	UnitID              string
	StartedAt           time.Time
	CompletedAt         time.Time
	StepsAttempted      int
	AggregatePercentage float64
	PointsEarned        int
	DurationSeconds     int
}

// StepResult is the persisted outcome of one scored step within a session.
// Only the last attempt per step is kept (last-write-wins per step id).
type StepResult struct {
	SessionID string
	StepID    string
	Response  string
	Score     int
	Passed    bool
	Attempt   int
	ScoredAt  time.Time
}

// StrugglingStep aggregates a learner's repeated low scores on one step
// across sessions.
type StrugglingStep struct {
	StepID       string
	Attempts     int
	AverageScore float64
}
