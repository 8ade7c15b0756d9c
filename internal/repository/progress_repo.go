package repository

import (
	"database/sql"

	"speakwise/internal/database"
	"speakwise/internal/models"
)

// ProgressRepository handles per-unit progress database operations.
type ProgressRepository struct {
	db *database.DB
}

// NewProgressRepository creates a new progress repository.
func NewProgressRepository(db *database.DB) *ProgressRepository {
	return &ProgressRepository{db: db}
}

// GetProgress retrieves the progress record for a learner and unit.
// Returns (nil, nil) when no record exists yet.
func (r *ProgressRepository) GetProgress(learnerID, unitID string) (*models.ProgressRecord, error) {
	query := `
		SELECT learner_id, unit_id, topic_id, points, percentage,
		       completed_steps, sessions_completed, enrolled, completed, last_updated
		FROM progress_records
		WHERE learner_id = ? AND unit_id = ?
	`

	rec := &models.ProgressRecord{}
	err := r.db.QueryRow(query, learnerID, unitID).Scan(
		&rec.LearnerID,
		&rec.UnitID,
		&rec.TopicID,
		&rec.Points,
		&rec.Percentage,
		&rec.CompletedSteps,
		&rec.SessionsCompleted,
		&rec.Enrolled,
		&rec.Completed,
		&rec.LastUpdated,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return rec, nil
}

// SaveProgress updates the record for the learner and unit, inserting it if
// none exists.
func (r *ProgressRepository) SaveProgress(rec models.ProgressRecord) error {
	query := `
		UPDATE progress_records
		SET topic_id = ?, points = ?, percentage = ?, completed_steps = ?,
		    sessions_completed = ?, enrolled = ?, completed = ?, last_updated = ?
		WHERE learner_id = ? AND unit_id = ?
	`

	result, err := r.db.Exec(query,
		rec.TopicID, rec.Points, rec.Percentage, rec.CompletedSteps,
		rec.SessionsCompleted, rec.Enrolled, rec.Completed, rec.LastUpdated,
		rec.LearnerID, rec.UnitID,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	insert := `
		INSERT INTO progress_records
		(learner_id, unit_id, topic_id, points, percentage, completed_steps,
		 sessions_completed, enrolled, completed, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.Exec(insert,
		rec.LearnerID, rec.UnitID, rec.TopicID, rec.Points, rec.Percentage,
		rec.CompletedSteps, rec.SessionsCompleted, rec.Enrolled, rec.Completed,
		rec.LastUpdated,
	)
	return err
}

// TopicProgress retrieves all unit progress records a learner has for a
// topic.
func (r *ProgressRepository) TopicProgress(learnerID, topicID string) ([]models.ProgressRecord, error) {
	query := `
		SELECT learner_id, unit_id, topic_id, points, percentage,
		       completed_steps, sessions_completed, enrolled, completed, last_updated
		FROM progress_records
		WHERE learner_id = ? AND topic_id = ?
		ORDER BY unit_id ASC
	`

	rows, err := r.db.Query(query, learnerID, topicID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanProgressRows(rows)
}

// ListProgress retrieves every progress record for a learner.
func (r *ProgressRepository) ListProgress(learnerID string) ([]models.ProgressRecord, error) {
	query := `
		SELECT learner_id, unit_id, topic_id, points, percentage,
		       completed_steps, sessions_completed, enrolled, completed, last_updated
		FROM progress_records
		WHERE learner_id = ?
		ORDER BY topic_id ASC, unit_id ASC
	`

	rows, err := r.db.Query(query, learnerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanProgressRows(rows)
}

// TotalPoints calculates total points earned by a learner across all units.
func (r *ProgressRepository) TotalPoints(learnerID string) (int, error) {
	query := `
		SELECT COALESCE(SUM(points), 0)
		FROM progress_records
		WHERE learner_id = ?
	`

	var total int
	err := r.db.QueryRow(query, learnerID).Scan(&total)
	return total, err
}

func scanProgressRows(rows *sql.Rows) ([]models.ProgressRecord, error) {
	var records []models.ProgressRecord
	for rows.Next() {
		var rec models.ProgressRecord
		err := rows.Scan(
			&rec.LearnerID,
			&rec.UnitID,
			&rec.TopicID,
			&rec.Points,
			&rec.Percentage,
			&rec.CompletedSteps,
			&rec.SessionsCompleted,
			&rec.Enrolled,
			&rec.Completed,
			&rec.LastUpdated,
		)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}
