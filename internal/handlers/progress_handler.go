package handlers

import (
	"net/http"
	"strconv"

	"speakwise/internal/config"
	"speakwise/internal/models"
	"speakwise/internal/service"
)

// ProgressHandler exposes learner progress, history and reports.
type ProgressHandler struct {
	cfg      *config.Config
	progress *service.ProgressService
	reports  *service.ReportService
}

// NewProgressHandler creates a new progress handler.
func NewProgressHandler(cfg *config.Config, progressSvc *service.ProgressService, reports *service.ReportService) *ProgressHandler {
	return &ProgressHandler{
		cfg:      cfg,
		progress: progressSvc,
		reports:  reports,
	}
}

type progressResponse struct {
	LearnerID   string                 `json:"learner_id"`
	TotalPoints int                    `json:"total_points"`
	Units       []unitProgressResponse `json:"units"`
}

type unitProgressResponse struct {
	UnitID            string  `json:"unit_id"`
	TopicID           string  `json:"topic_id"`
	Points            int     `json:"points"`
	Percentage        float64 `json:"percentage"`
	CompletedSteps    int     `json:"completed_steps"`
	SessionsCompleted int     `json:"sessions_completed"`
	Enrolled          bool    `json:"enrolled"`
	Completed         bool    `json:"completed"`
}

// GetProgress returns all unit progress records for a learner.
func (ph *ProgressHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	learnerID := r.PathValue("id")

	records, err := ph.progress.ListProgress(learnerID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to load progress", "list progress", err)
		return
	}
	points, err := ph.progress.TotalPoints(learnerID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to load progress", "total points", err)
		return
	}

	units := make([]unitProgressResponse, 0, len(records))
	for _, rec := range records {
		units = append(units, unitProgressResponse{
			UnitID:            rec.UnitID,
			TopicID:           rec.TopicID,
			Points:            rec.Points,
			Percentage:        rec.Percentage,
			CompletedSteps:    rec.CompletedSteps,
			SessionsCompleted: rec.SessionsCompleted,
			Enrolled:          rec.Enrolled,
			Completed:         rec.Completed,
		})
	}

	respondWithJSON(w, http.StatusOK, progressResponse{
		LearnerID:   learnerID,
		TotalPoints: points,
		Units:       units,
	})
}

// GetSessions returns a learner's recent completed sessions.
func (ph *ProgressHandler) GetSessions(w http.ResponseWriter, r *http.Request) {
	learnerID := r.PathValue("id")

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			respondWithError(w, http.StatusBadRequest, "limit must be between 1 and 100", "", nil)
			return
		}
		limit = n
	}

	sessions, err := ph.progress.RecentSessions(learnerID, limit)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to load sessions", "list sessions", err)
		return
	}
	if sessions == nil {
		sessions = []models.SessionRecord{}
	}
	respondWithJSON(w, http.StatusOK, sessions)
}

// GetSessionResults returns the step results for one completed session.
func (ph *ProgressHandler) GetSessionResults(w http.ResponseWriter, r *http.Request) {
	results, err := ph.progress.SessionResults(r.PathValue("id"))
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to load session results", "session results", err)
		return
	}
	if results == nil {
		results = []models.StepResult{}
	}
	respondWithJSON(w, http.StatusOK, results)
}

// GetStrugglingSteps returns steps the learner keeps failing.
func (ph *ProgressHandler) GetStrugglingSteps(w http.ResponseWriter, r *http.Request) {
	steps, err := ph.progress.StrugglingSteps(r.PathValue("id"), ph.cfg.PassThreshold)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to load struggling steps", "struggling steps", err)
		return
	}
	if steps == nil {
		steps = []models.StrugglingStep{}
	}
	respondWithJSON(w, http.StatusOK, steps)
}

type reportRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// SendReport emails a progress report for the learner.
func (ph *ProgressHandler) SendReport(w http.ResponseWriter, r *http.Request) {
	learnerID := r.PathValue("id")

	var req reportRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" {
		respondWithError(w, http.StatusBadRequest, "email is required", "", nil)
		return
	}
	if !ph.reports.IsEnabled() {
		respondWithError(w, http.StatusServiceUnavailable, "email reports are not configured", "", nil)
		return
	}

	name := req.Name
	if name == "" {
		name = learnerID
	}

	if err := ph.reports.SendProgressReport(r.Context(), req.Email, learnerID, name); err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to send report", "send report", err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}
