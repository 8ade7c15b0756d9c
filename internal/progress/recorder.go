// Package progress turns session engine events into durable per-unit
// progress records. Events are buffered for the lifetime of the session and
// flushed only on normal completion: an aborted session records nothing.
package progress

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"speakwise/internal/models"
)

// DefaultEnrollThreshold is the number of passed steps across a topic's
// units that flips the enrollment flag.
const DefaultEnrollThreshold = 10

// completionAverage is the minimum per-unit average percentage required for
// every unit of a topic before the topic counts as completed.
const completionAverage = 50.0

// Store is the persistence surface the recorder writes through.
// Writes are last-write-wins per unit key; the recorder is the only writer
// for its session.
type Store interface {
	GetProgress(learnerID, unitID string) (*models.ProgressRecord, error)
	SaveProgress(models.ProgressRecord) error
	TopicProgress(learnerID, topicID string) ([]models.ProgressRecord, error)
	InsertSession(models.SessionRecord) error
	InsertStepResult(models.StepResult) error
}

// RecorderConfig holds the per-session identifiers and policy knobs.
type RecorderConfig struct {
	Store           Store
	SessionID       string
	LearnerID       string
	ScriptID        string
	TopicID         string
	PassThreshold   int
	EnrollThreshold int

	// TopicUnits is the full set of unit ids belonging to the topic, used to
	// decide topic completion. Usually supplied by the script catalog.
	TopicUnits []string

	// ResponseLookup resolves the response text recorded for a step, so step
	// results can be persisted with what the learner actually said.
	ResponseLookup func(stepID string) string
}

// Recorder implements session.Recorder. Safe for concurrent use.
type Recorder struct {
	cfg RecorderConfig
	now func() time.Time

	mu        sync.Mutex
	startedAt time.Time
	steps     map[string]models.StepResult
	order     []string
	pending   *pendingSave
	saveErr   error
	flushed   bool
}

// pendingSave carries a failed flush so it can be retried without repeating
// the stages that already succeeded.
type pendingSave struct {
	session       models.SessionRecord
	results       []models.StepResult
	sessionSaved  bool
	resultsSaved  int
	progressSaved bool
}

// NewRecorder creates a recorder for one session.
func NewRecorder(cfg RecorderConfig) *Recorder {
	if cfg.PassThreshold <= 0 {
		cfg.PassThreshold = 50
	}
	if cfg.EnrollThreshold <= 0 {
		cfg.EnrollThreshold = DefaultEnrollThreshold
	}
	return &Recorder{
		cfg:       cfg,
		now:       time.Now,
		startedAt: time.Now(),
		steps:     make(map[string]models.StepResult),
	}
}

// OnStepScored buffers the latest score for a step. Nothing is persisted
// until the session completes.
func (r *Recorder) OnStepScored(stepID string, score int, unitID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, seen := r.steps[stepID]
	attempt := 1
	if seen {
		attempt = prev.Attempt + 1
	} else {
		r.order = append(r.order, stepID)
	}

	response := ""
	if r.cfg.ResponseLookup != nil {
		response = r.cfg.ResponseLookup(stepID)
	}

	r.steps[stepID] = models.StepResult{
		SessionID: r.cfg.SessionID,
		StepID:    stepID,
		Response:  response,
		Score:     score,
		Passed:    score >= r.cfg.PassThreshold,
		Attempt:   attempt,
		ScoredAt:  r.now(),
	}
}

// OnSessionCompleted persists the session summary, its step results and the
// updated unit progress record. A storage failure keeps the payload for
// Retry and never affects the in-memory session result.
func (r *Recorder) OnSessionCompleted(unitID string, aggregatePercentage float64, pointsEarned int, durationSeconds int, stepsAttempted int) {
	r.mu.Lock()
	if r.flushed {
		r.mu.Unlock()
		return
	}
	r.flushed = true

	results := make([]models.StepResult, 0, len(r.order))
	for _, id := range r.order {
		results = append(results, r.steps[id])
	}
	completed := r.now()
	r.pending = &pendingSave{
		session: models.SessionRecord{
			ID:                  r.cfg.SessionID,
			LearnerID:           r.cfg.LearnerID,
			ScriptID:            r.cfg.ScriptID,
			UnitID:              unitID,
			StartedAt:           r.startedAt,
			CompletedAt:         completed,
			StepsAttempted:      stepsAttempted,
			AggregatePercentage: aggregatePercentage,
			PointsEarned:        pointsEarned,
			DurationSeconds:     durationSeconds,
		},
		results: results,
	}
	r.mu.Unlock()

	if err := r.Retry(); err != nil {
		log.Printf("progress: save failed for session %s (retry available): %v", r.cfg.SessionID, err)
	}
}

// OnSessionAborted discards all buffered results.
func (r *Recorder) OnSessionAborted(unitID string) {
	r.mu.Lock()
	r.steps = make(map[string]models.StepResult)
	r.order = nil
	r.mu.Unlock()
	log.Printf("progress: session %s aborted, nothing recorded for unit %s", r.cfg.SessionID, unitID)
}

// Err returns the last save error, or nil when the last flush succeeded.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saveErr
}

// Retry re-runs the pending save, skipping stages that already succeeded.
// Returns nil when there is nothing left to save.
func (r *Recorder) Retry() error {
	r.mu.Lock()
	p := r.pending
	r.mu.Unlock()
	if p == nil {
		return nil
	}

	err := r.flush(p)

	r.mu.Lock()
	r.saveErr = err
	if err == nil {
		r.pending = nil
	}
	r.mu.Unlock()
	return err
}

func (r *Recorder) flush(p *pendingSave) error {
	if !p.sessionSaved {
		if err := r.cfg.Store.InsertSession(p.session); err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		p.sessionSaved = true
	}

	for p.resultsSaved < len(p.results) {
		if err := r.cfg.Store.InsertStepResult(p.results[p.resultsSaved]); err != nil {
			return fmt.Errorf("insert step result %s: %w", p.results[p.resultsSaved].StepID, err)
		}
		p.resultsSaved++
	}

	if !p.progressSaved {
		if err := r.updateProgress(p); err != nil {
			return fmt.Errorf("update progress: %w", err)
		}
		p.progressSaved = true
	}

	return r.updateTopicFlags()
}

// updateProgress folds the session into the unit's progress record.
func (r *Recorder) updateProgress(p *pendingSave) error {
	rec, err := r.cfg.Store.GetProgress(r.cfg.LearnerID, p.session.UnitID)
	if err != nil {
		return err
	}
	if rec == nil {
		rec = &models.ProgressRecord{
			LearnerID: r.cfg.LearnerID,
			UnitID:    p.session.UnitID,
			TopicID:   r.cfg.TopicID,
		}
	}

	passed := 0
	for _, res := range p.results {
		if res.Passed {
			passed++
		}
	}

	rec.Percentage = rec.UnitAverage(p.session.AggregatePercentage)
	rec.SessionsCompleted++
	rec.Points += p.session.PointsEarned
	rec.CompletedSteps += passed
	rec.LastUpdated = r.now()

	return r.cfg.Store.SaveProgress(*rec)
}

// updateTopicFlags flips the monotonic enrollment and completion flags on
// every record of the topic once their conditions hold.
func (r *Recorder) updateTopicFlags() error {
	records, err := r.cfg.Store.TopicProgress(r.cfg.LearnerID, r.cfg.TopicID)
	if err != nil {
		return fmt.Errorf("topic progress: %w", err)
	}

	totalPassed := 0
	byUnit := make(map[string]models.ProgressRecord, len(records))
	for _, rec := range records {
		totalPassed += rec.CompletedSteps
		byUnit[rec.UnitID] = rec
	}

	enroll := totalPassed >= r.cfg.EnrollThreshold

	complete := len(r.cfg.TopicUnits) > 0
	for _, unit := range r.cfg.TopicUnits {
		rec, ok := byUnit[unit]
		if !ok || rec.Percentage < completionAverage {
			complete = false
			break
		}
	}

	var errs []error
	for _, rec := range records {
		changed := false
		if enroll && !rec.Enrolled {
			rec.Enrolled = true
			changed = true
		}
		if complete && !rec.Completed {
			rec.Completed = true
			changed = true
		}
		if changed {
			rec.LastUpdated = r.now()
			if err := r.cfg.Store.SaveProgress(rec); err != nil {
				errs = append(errs, fmt.Errorf("save flags for unit %s: %w", rec.UnitID, err))
			}
		}
	}
	return errors.Join(errs...)
}
