package handlers

import (
	"errors"
	"io"
	"net/http"
	"sync"

	"speakwise/internal/config"
	"speakwise/internal/progress"
	"speakwise/internal/script"
	"speakwise/internal/service"
	"speakwise/internal/session"
	"speakwise/internal/voice"
	"speakwise/internal/voice/transcribe"
)

// maxAudioClipBytes caps uploaded audio clips at 10 MB.
const maxAudioClipBytes = 10 << 20

// SessionHandler exposes the practice session lifecycle over the JSON API.
type SessionHandler struct {
	cfg      *config.Config
	catalog  *script.Catalog
	sessions *session.Manager
	hub      *Hub
	progress *service.ProgressService
	output   voice.Output

	mu        sync.Mutex
	inputs    map[string]*transcribe.Provider
	recorders map[string]*progress.Recorder
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(cfg *config.Config, catalog *script.Catalog, sessions *session.Manager, hub *Hub, progressSvc *service.ProgressService, output voice.Output) *SessionHandler {
	return &SessionHandler{
		cfg:      cfg,
		catalog:  catalog,
		sessions: sessions,
		hub:      hub,
		progress: progressSvc,
		output:    output,
		inputs:    make(map[string]*transcribe.Provider),
		recorders: make(map[string]*progress.Recorder),
	}
}

type startSessionRequest struct {
	LearnerID string `json:"learner_id"`
	ScriptID  string `json:"script_id"`
	Rate      string `json:"rate,omitempty"`
	VoiceName string `json:"voice,omitempty"`
	Lang      string `json:"lang,omitempty"`
}

type startSessionResponse struct {
	SessionID        string `json:"session_id"`
	ScriptID         string `json:"script_id"`
	Title            string `json:"title"`
	UnitID           string `json:"unit_id"`
	TopicID          string `json:"topic_id"`
	Steps            int    `json:"steps"`
	EstimatedSeconds int    `json:"estimated_seconds"`
}

// Start creates a session engine for the requested script and launches it.
func (sh *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.LearnerID == "" || req.ScriptID == "" {
		respondWithError(w, http.StatusBadRequest, "learner_id and script_id are required", "", nil)
		return
	}

	sc, ok := sh.catalog.Get(req.ScriptID)
	if !ok {
		respondWithError(w, http.StatusNotFound, "script not found", "", nil)
		return
	}

	rate := voice.Rate(req.Rate)
	switch rate {
	case "", voice.RateNormal, voice.RateSlow, voice.RateSlower:
	default:
		respondWithError(w, http.StatusBadRequest, "rate must be normal, slow or slower", "", nil)
		return
	}

	lang := req.Lang
	if lang == "" {
		lang = "en"
	}

	sessionID := session.NewID()

	var input *transcribe.Provider
	if sh.cfg.TranscribeEndpoint != "" {
		input = transcribe.New(sh.cfg.TranscribeEndpoint, sh.cfg.TranscribeAPIKey, sh.cfg.TranscribeModel)
	}

	var eng *session.Engine
	rec := progress.NewRecorder(progress.RecorderConfig{
		Store:           sh.progress,
		SessionID:       sessionID,
		LearnerID:       req.LearnerID,
		ScriptID:        sc.ID,
		TopicID:         sc.TopicID,
		PassThreshold:   sh.cfg.PassThreshold,
		EnrollThreshold: sh.cfg.EnrollThreshold,
		TopicUnits:      sh.catalog.UnitsForTopic(sc.TopicID),
		ResponseLookup: func(stepID string) string {
			if eng == nil {
				return ""
			}
			return eng.State().Responses[stepID]
		},
	})

	engineCfg := session.Config{
		LearnerID:          req.LearnerID,
		UnitID:             sc.UnitID,
		TopicID:            sc.TopicID,
		PlaybackRate:       rate,
		Voice:              voice.Profile{Name: req.VoiceName, Lang: lang},
		PassThreshold:      sh.cfg.PassThreshold,
		AdvanceOnExhausted: true,
		CaptureTimeout:     sh.cfg.CaptureTimeout,
		SilenceTimeout:     sh.cfg.SilenceTimeout,
	}

	var in voice.Input
	if input != nil {
		in = input
	}
	var err error
	eng, err = session.New(sc, engineCfg, voice.Scoped(sh.output), in, rec,
		session.WithObserver(sh.hub.Observer(sessionID)))
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to start session", "create engine", err)
		return
	}

	sh.mu.Lock()
	if input != nil {
		sh.inputs[sessionID] = input
	}
	sh.recorders[sessionID] = rec
	sh.mu.Unlock()
	sh.sessions.Start(sessionID, eng, req.LearnerID, req.ScriptID)

	// Once the run loop finishes, release the session's resources. A failed
	// progress save keeps the recorder (and the registry entry) around so the
	// client can observe the failure and retry it.
	go func() {
		<-eng.Done()
		sh.mu.Lock()
		delete(sh.inputs, sessionID)
		saved := rec.Err() == nil
		if saved {
			delete(sh.recorders, sessionID)
		}
		sh.mu.Unlock()
		if saved {
			sh.sessions.Remove(sessionID)
		}
	}()

	respondWithJSON(w, http.StatusCreated, startSessionResponse{
		SessionID:        sessionID,
		ScriptID:         sc.ID,
		Title:            sc.Title,
		UnitID:           sc.UnitID,
		TopicID:          sc.TopicID,
		Steps:            sc.Len(),
		EstimatedSeconds: sc.EstimatedSeconds(),
	})
}

type stateResponse struct {
	SessionID          string         `json:"session_id"`
	StepIndex          int            `json:"step_index"`
	Phase              session.Phase  `json:"phase"`
	AttemptsForStep    int            `json:"attempts_for_step"`
	ReplaysUsedForStep int            `json:"replays_used_for_step"`
	Scores             map[string]int `json:"scores"`
	CorrectCount       int            `json:"correct_count"`
	AudioAvailable     bool           `json:"audio_available"`
	InputDegraded      bool           `json:"input_degraded"`
	ElapsedSeconds     int            `json:"elapsed_seconds"`
	SaveFailed         bool           `json:"save_failed"`
}

// GetState returns a snapshot of the session's progress.
func (sh *SessionHandler) GetState(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	eng, ok := sh.sessions.Get(id)
	if !ok {
		respondWithError(w, http.StatusNotFound, "session not found", "", nil)
		return
	}

	sh.mu.Lock()
	rec := sh.recorders[id]
	sh.mu.Unlock()

	st := eng.State()
	respondWithJSON(w, http.StatusOK, stateResponse{
		SessionID:          id,
		StepIndex:          st.CurrentStepIndex,
		Phase:              st.Phase,
		AttemptsForStep:    st.AttemptsForStep,
		ReplaysUsedForStep: st.ReplaysUsedForStep,
		Scores:             st.Scores,
		CorrectCount:       st.CorrectCount,
		AudioAvailable:     st.AudioAvailable,
		InputDegraded:      st.InputDegraded,
		ElapsedSeconds:     st.ElapsedSeconds,
		SaveFailed:         rec != nil && rec.Err() != nil,
	})
}

type textRequest struct {
	Text string `json:"text"`
}

// SubmitResponse submits typed free text for the current step.
func (sh *SessionHandler) SubmitResponse(w http.ResponseWriter, r *http.Request) {
	eng, ok := sh.sessions.Get(r.PathValue("id"))
	if !ok {
		respondWithError(w, http.StatusNotFound, "session not found", "", nil)
		return
	}

	var req textRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := eng.SubmitResponse(req.Text); err != nil {
		respondWithError(w, http.StatusConflict, "session is not awaiting a response", "", err)
		return
	}
	respondWithJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// SubmitChoice submits a multiple choice pick for the current step.
func (sh *SessionHandler) SubmitChoice(w http.ResponseWriter, r *http.Request) {
	eng, ok := sh.sessions.Get(r.PathValue("id"))
	if !ok {
		respondWithError(w, http.StatusNotFound, "session not found", "", nil)
		return
	}

	var req textRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := eng.SubmitChoice(req.Text); err != nil {
		respondWithError(w, http.StatusConflict, "session is not awaiting a choice", "", err)
		return
	}
	respondWithJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// SubmitAudio accepts a recorded audio clip and feeds it to the session's
// speech-to-text capture.
func (sh *SessionHandler) SubmitAudio(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := sh.sessions.Get(id); !ok {
		respondWithError(w, http.StatusNotFound, "session not found", "", nil)
		return
	}

	sh.mu.Lock()
	input := sh.inputs[id]
	sh.mu.Unlock()
	if input == nil {
		respondWithError(w, http.StatusConflict, "speech capture is not enabled for this session", "", nil)
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxAudioClipBytes))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "failed to read audio clip", "", err)
		return
	}
	if len(data) == 0 {
		respondWithError(w, http.StatusBadRequest, "audio clip is empty", "", nil)
		return
	}

	mimeType := r.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "audio/webm"
	}

	if err := input.Push(data, mimeType); err != nil {
		if errors.Is(err, transcribe.ErrNoCapture) {
			respondWithError(w, http.StatusConflict, "session is not capturing audio right now", "", nil)
			return
		}
		respondWithError(w, http.StatusInternalServerError, "failed to accept audio clip", "push audio", err)
		return
	}
	respondWithJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// Replay re-plays the current prompt's audio if replays remain.
func (sh *SessionHandler) Replay(w http.ResponseWriter, r *http.Request) {
	eng, ok := sh.sessions.Get(r.PathValue("id"))
	if !ok {
		respondWithError(w, http.StatusNotFound, "session not found", "", nil)
		return
	}

	if err := eng.RequestReplay(); err != nil {
		respondWithError(w, http.StatusConflict, "replay not available", "", err)
		return
	}
	respondWithJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// Continue skips the rest of the current reveal dwell.
func (sh *SessionHandler) Continue(w http.ResponseWriter, r *http.Request) {
	eng, ok := sh.sessions.Get(r.PathValue("id"))
	if !ok {
		respondWithError(w, http.StatusNotFound, "session not found", "", nil)
		return
	}

	if err := eng.Continue(); err != nil {
		respondWithError(w, http.StatusConflict, "nothing to continue", "", err)
		return
	}
	respondWithJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// RetrySave re-runs a failed progress save for a completed session.
func (sh *SessionHandler) RetrySave(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	sh.mu.Lock()
	rec := sh.recorders[id]
	sh.mu.Unlock()

	if rec == nil {
		respondWithError(w, http.StatusNotFound, "no pending save for this session", "", nil)
		return
	}
	if rec.Err() == nil {
		respondWithError(w, http.StatusConflict, "no failed save to retry", "", nil)
		return
	}

	if err := rec.Retry(); err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to save session results", "retry save", err)
		return
	}

	sh.mu.Lock()
	delete(sh.recorders, id)
	sh.mu.Unlock()
	sh.sessions.Remove(id)

	respondWithJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

// Abort cancels the session. Nothing is recorded for an aborted session.
func (sh *SessionHandler) Abort(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	sh.mu.Lock()
	delete(sh.inputs, id)
	delete(sh.recorders, id)
	sh.mu.Unlock()

	if err := sh.sessions.Abort(id); err != nil {
		respondWithError(w, http.StatusNotFound, "session not found", "", nil)
		return
	}
	sh.hub.Drop(id)
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "aborted"})
}
