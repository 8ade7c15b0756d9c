package service

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"speakwise/internal/database"
	"speakwise/internal/models"
)

// BackupData represents the complete database backup structure
type BackupData struct {
	Version    string                  `json:"version"`
	ExportedAt time.Time               `json:"exported_at"`
	Progress   []models.ProgressRecord `json:"progress"`
	Sessions   []models.SessionRecord  `json:"sessions"`
	Results    []models.StepResult     `json:"step_results"`
}

// BackupService exports and imports the progress database as JSON.
type BackupService struct {
	db *database.DB
}

// NewBackupService creates a new backup service
func NewBackupService(db *database.DB) *BackupService {
	return &BackupService{db: db}
}

// ExportToFile exports all data to a JSON file
func (s *BackupService) ExportToFile(path string) error {
	data, err := s.Export()
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create backup file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("write backup: %w", err)
	}

	log.Printf("Exported %d progress records, %d sessions, %d step results to %s",
		len(data.Progress), len(data.Sessions), len(data.Results), path)
	return nil
}

// Export collects all persisted data into a BackupData snapshot.
func (s *BackupService) Export() (*BackupData, error) {
	data := &BackupData{
		Version:    "1",
		ExportedAt: time.Now().UTC(),
	}

	if err := s.exportProgress(data); err != nil {
		return nil, fmt.Errorf("export progress: %w", err)
	}
	if err := s.exportSessions(data); err != nil {
		return nil, fmt.Errorf("export sessions: %w", err)
	}
	if err := s.exportResults(data); err != nil {
		return nil, fmt.Errorf("export step results: %w", err)
	}
	return data, nil
}

func (s *BackupService) exportProgress(data *BackupData) error {
	rows, err := s.db.Query(`
		SELECT learner_id, unit_id, topic_id, points, percentage,
		       completed_steps, sessions_completed, enrolled, completed, last_updated
		FROM progress_records
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var rec models.ProgressRecord
		if err := rows.Scan(
			&rec.LearnerID, &rec.UnitID, &rec.TopicID, &rec.Points, &rec.Percentage,
			&rec.CompletedSteps, &rec.SessionsCompleted, &rec.Enrolled, &rec.Completed,
			&rec.LastUpdated,
		); err != nil {
			return err
		}
		data.Progress = append(data.Progress, rec)
	}
	return rows.Err()
}

func (s *BackupService) exportSessions(data *BackupData) error {
	rows, err := s.db.Query(`
		SELECT id, learner_id, script_id, unit_id, started_at, completed_at,
		       steps_attempted, aggregate_percentage, points_earned, duration_seconds
		FROM practice_sessions
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var rec models.SessionRecord
		if err := rows.Scan(
			&rec.ID, &rec.LearnerID, &rec.ScriptID, &rec.UnitID, &rec.StartedAt,
			&rec.CompletedAt, &rec.StepsAttempted, &rec.AggregatePercentage,
			&rec.PointsEarned, &rec.DurationSeconds,
		); err != nil {
			return err
		}
		data.Sessions = append(data.Sessions, rec)
	}
	return rows.Err()
}

func (s *BackupService) exportResults(data *BackupData) error {
	rows, err := s.db.Query(`
		SELECT session_id, step_id, response, score, passed, attempt, scored_at
		FROM step_results
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var res models.StepResult
		if err := rows.Scan(
			&res.SessionID, &res.StepID, &res.Response, &res.Score, &res.Passed,
			&res.Attempt, &res.ScoredAt,
		); err != nil {
			return err
		}
		data.Results = append(data.Results, res)
	}
	return rows.Err()
}

// ImportFromFile imports data from a JSON backup file. When clear is set,
// existing data is removed first.
func (s *BackupService) ImportFromFile(path string, clear bool) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open backup file: %w", err)
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("read backup file: %w", err)
	}

	var data BackupData
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("parse backup: %w", err)
	}

	if clear {
		for _, table := range []string{"step_results", "practice_sessions", "progress_records"} {
			if _, err := s.db.Exec("DELETE FROM " + table); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
		log.Println("Cleared existing data")
	}

	return s.Import(&data)
}

// Import writes a BackupData snapshot into the database. Existing rows with
// the same keys are skipped.
func (s *BackupService) Import(data *BackupData) error {
	imported := 0
	for _, rec := range data.Progress {
		ok, err := s.importProgress(rec)
		if err != nil {
			return fmt.Errorf("import progress %s/%s: %w", rec.LearnerID, rec.UnitID, err)
		}
		if ok {
			imported++
		}
	}
	log.Printf("Imported %d of %d progress records", imported, len(data.Progress))

	imported = 0
	for _, rec := range data.Sessions {
		ok, err := s.importSession(rec)
		if err != nil {
			return fmt.Errorf("import session %s: %w", rec.ID, err)
		}
		if ok {
			imported++
		}
	}
	log.Printf("Imported %d of %d sessions", imported, len(data.Sessions))

	imported = 0
	for _, res := range data.Results {
		ok, err := s.importResult(res)
		if err != nil {
			return fmt.Errorf("import step result %s/%s: %w", res.SessionID, res.StepID, err)
		}
		if ok {
			imported++
		}
	}
	log.Printf("Imported %d of %d step results", imported, len(data.Results))
	return nil
}

func (s *BackupService) importProgress(rec models.ProgressRecord) (bool, error) {
	var exists int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM progress_records WHERE learner_id = ? AND unit_id = ?",
		rec.LearnerID, rec.UnitID,
	).Scan(&exists)
	if err != nil && err != sql.ErrNoRows {
		return false, err
	}
	if exists > 0 {
		return false, nil
	}

	_, err = s.db.Exec(`
		INSERT INTO progress_records
		(learner_id, unit_id, topic_id, points, percentage, completed_steps,
		 sessions_completed, enrolled, completed, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.LearnerID, rec.UnitID, rec.TopicID, rec.Points, rec.Percentage,
		rec.CompletedSteps, rec.SessionsCompleted, rec.Enrolled, rec.Completed,
		rec.LastUpdated)
	return err == nil, err
}

func (s *BackupService) importSession(rec models.SessionRecord) (bool, error) {
	var exists int
	err := s.db.QueryRow("SELECT COUNT(*) FROM practice_sessions WHERE id = ?", rec.ID).Scan(&exists)
	if err != nil && err != sql.ErrNoRows {
		return false, err
	}
	if exists > 0 {
		return false, nil
	}

	_, err = s.db.Exec(`
		INSERT INTO practice_sessions
		(id, learner_id, script_id, unit_id, started_at, completed_at,
		 steps_attempted, aggregate_percentage, points_earned, duration_seconds)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.LearnerID, rec.ScriptID, rec.UnitID, rec.StartedAt,
		rec.CompletedAt, rec.StepsAttempted, rec.AggregatePercentage,
		rec.PointsEarned, rec.DurationSeconds)
	return err == nil, err
}

func (s *BackupService) importResult(res models.StepResult) (bool, error) {
	var exists int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM step_results WHERE session_id = ? AND step_id = ?",
		res.SessionID, res.StepID,
	).Scan(&exists)
	if err != nil && err != sql.ErrNoRows {
		return false, err
	}
	if exists > 0 {
		return false, nil
	}

	_, err = s.db.Exec(`
		INSERT INTO step_results
		(session_id, step_id, response, score, passed, attempt, scored_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, res.SessionID, res.StepID, res.Response, res.Score, res.Passed,
		res.Attempt, res.ScoredAt)
	return err == nil, err
}
