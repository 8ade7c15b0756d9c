package service

import (
	"speakwise/internal/models"
	"speakwise/internal/repository"
)

// ProgressService ties the progress and session repositories together behind
// one persistence surface for session recording and reporting.
type ProgressService struct {
	progressRepo *repository.ProgressRepository
	sessionRepo  *repository.SessionRepository
}

// NewProgressService creates a new progress service.
func NewProgressService(progressRepo *repository.ProgressRepository, sessionRepo *repository.SessionRepository) *ProgressService {
	return &ProgressService{
		progressRepo: progressRepo,
		sessionRepo:  sessionRepo,
	}
}

// GetProgress retrieves the progress record for a learner and unit, or
// (nil, nil) when none exists.
func (s *ProgressService) GetProgress(learnerID, unitID string) (*models.ProgressRecord, error) {
	return s.progressRepo.GetProgress(learnerID, unitID)
}

// SaveProgress persists a progress record.
func (s *ProgressService) SaveProgress(rec models.ProgressRecord) error {
	return s.progressRepo.SaveProgress(rec)
}

// TopicProgress retrieves all unit records for a learner's topic.
func (s *ProgressService) TopicProgress(learnerID, topicID string) ([]models.ProgressRecord, error) {
	return s.progressRepo.TopicProgress(learnerID, topicID)
}

// InsertSession stores a completed session summary.
func (s *ProgressService) InsertSession(rec models.SessionRecord) error {
	return s.sessionRepo.InsertSession(rec)
}

// InsertStepResult stores a scored step result.
func (s *ProgressService) InsertStepResult(res models.StepResult) error {
	return s.sessionRepo.InsertStepResult(res)
}

// ListProgress retrieves every progress record for a learner.
func (s *ProgressService) ListProgress(learnerID string) ([]models.ProgressRecord, error) {
	return s.progressRepo.ListProgress(learnerID)
}

// TotalPoints calculates the learner's points across all units.
func (s *ProgressService) TotalPoints(learnerID string) (int, error) {
	return s.progressRepo.TotalPoints(learnerID)
}

// RecentSessions retrieves the learner's most recent completed sessions.
func (s *ProgressService) RecentSessions(learnerID string, limit int) ([]models.SessionRecord, error) {
	return s.sessionRepo.ListSessions(learnerID, limit)
}

// SessionResults retrieves the step results recorded for one session.
func (s *ProgressService) SessionResults(sessionID string) ([]models.StepResult, error) {
	return s.sessionRepo.SessionResults(sessionID)
}

// StrugglingSteps finds the steps a learner keeps scoring below the pass
// threshold on.
func (s *ProgressService) StrugglingSteps(learnerID string, passThreshold int) ([]models.StrugglingStep, error) {
	return s.sessionRepo.StrugglingSteps(learnerID, passThreshold, 10)
}
