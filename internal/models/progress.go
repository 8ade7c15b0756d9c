package models

import "time"

// ProgressRecord is the persisted aggregate for one learner and one content
// unit (a scenario within a topic). Records are created on the first completed
// session for the unit and are never deleted; the Enrolled and Completed flags
// only ever transition from false to true.
type ProgressRecord struct {
	LearnerID         string
	UnitID            string
	TopicID           string
	Points            int
	Percentage        float64
	CompletedSteps    int
	SessionsCompleted int
	Enrolled          bool
	Completed         bool
	LastUpdated       time.Time
}

// UnitAverage returns the running average percentage that would result from
// folding a new session aggregate into this record.
func (r ProgressRecord) UnitAverage(sessionPercentage float64) float64 {
	n := r.SessionsCompleted
	if n <= 0 {
		return sessionPercentage
	}
	return (r.Percentage*float64(n) + sessionPercentage) / float64(n+1)
}
