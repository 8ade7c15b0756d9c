package repository

import (
	"speakwise/internal/database"
	"speakwise/internal/models"
)

// SessionRepository handles completed session and step result database
// operations.
type SessionRepository struct {
	db *database.DB
}

// NewSessionRepository creates a new session repository.
func NewSessionRepository(db *database.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// InsertSession stores a completed session summary.
func (r *SessionRepository) InsertSession(s models.SessionRecord) error {
	query := `
		INSERT INTO practice_sessions
		(id, learner_id, script_id, unit_id, started_at, completed_at,
		 steps_attempted, aggregate_percentage, points_earned, duration_seconds)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query,
		s.ID, s.LearnerID, s.ScriptID, s.UnitID, s.StartedAt, s.CompletedAt,
		s.StepsAttempted, s.AggregatePercentage, s.PointsEarned, s.DurationSeconds,
	)
	return err
}

// InsertStepResult stores the final scored attempt for one step.
func (r *SessionRepository) InsertStepResult(res models.StepResult) error {
	query := `
		INSERT INTO step_results
		(session_id, step_id, response, score, passed, attempt, scored_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query,
		res.SessionID, res.StepID, res.Response, res.Score, res.Passed,
		res.Attempt, res.ScoredAt,
	)
	return err
}

// ListSessions retrieves a learner's most recent completed sessions.
func (r *SessionRepository) ListSessions(learnerID string, limit int) ([]models.SessionRecord, error) {
	query := `
		SELECT id, learner_id, script_id, unit_id, started_at, completed_at,
		       steps_attempted, aggregate_percentage, points_earned, duration_seconds
		FROM practice_sessions
		WHERE learner_id = ?
		ORDER BY completed_at DESC
		LIMIT ?
	`

	rows, err := r.db.Query(query, learnerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []models.SessionRecord
	for rows.Next() {
		var s models.SessionRecord
		err := rows.Scan(
			&s.ID,
			&s.LearnerID,
			&s.ScriptID,
			&s.UnitID,
			&s.StartedAt,
			&s.CompletedAt,
			&s.StepsAttempted,
			&s.AggregatePercentage,
			&s.PointsEarned,
			&s.DurationSeconds,
		)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}

	return sessions, rows.Err()
}

// SessionResults retrieves the step results recorded for one session.
func (r *SessionRepository) SessionResults(sessionID string) ([]models.StepResult, error) {
	query := `
		SELECT session_id, step_id, response, score, passed, attempt, scored_at
		FROM step_results
		WHERE session_id = ?
		ORDER BY scored_at ASC
	`

	rows, err := r.db.Query(query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []models.StepResult
	for rows.Next() {
		var res models.StepResult
		err := rows.Scan(
			&res.SessionID,
			&res.StepID,
			&res.Response,
			&res.Score,
			&res.Passed,
			&res.Attempt,
			&res.ScoredAt,
		)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}

	return results, rows.Err()
}

// StrugglingSteps finds steps a learner has repeatedly scored below the
// threshold on, worst first.
func (r *SessionRepository) StrugglingSteps(learnerID string, threshold, limit int) ([]models.StrugglingStep, error) {
	query := `
		SELECT sr.step_id, COUNT(*) AS attempts, AVG(sr.score) AS avg_score
		FROM step_results sr
		JOIN practice_sessions ps ON ps.id = sr.session_id
		WHERE ps.learner_id = ? AND sr.score < ?
		GROUP BY sr.step_id
		HAVING COUNT(*) >= 2
		ORDER BY avg_score ASC, attempts DESC
		LIMIT ?
	`

	rows, err := r.db.Query(query, learnerID, threshold, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []models.StrugglingStep
	for rows.Next() {
		var s models.StrugglingStep
		if err := rows.Scan(&s.StepID, &s.Attempts, &s.AverageScore); err != nil {
			return nil, err
		}
		steps = append(steps, s)
	}

	return steps, rows.Err()
}
