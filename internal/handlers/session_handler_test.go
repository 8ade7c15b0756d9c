package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"speakwise/internal/config"
	"speakwise/internal/models"
	"speakwise/internal/progress"
	"speakwise/internal/script"
	"speakwise/internal/session"
)

// saveStore is an in-memory progress.Store whose session insert can be made
// to fail, simulating a database outage at save time.
type saveStore struct {
	failing  bool
	sessions []models.SessionRecord
	results  []models.StepResult
	records  map[string]models.ProgressRecord
}

func newSaveStore() *saveStore {
	return &saveStore{records: make(map[string]models.ProgressRecord)}
}

func (s *saveStore) GetProgress(learnerID, unitID string) (*models.ProgressRecord, error) {
	rec, ok := s.records[learnerID+"|"+unitID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *saveStore) SaveProgress(rec models.ProgressRecord) error {
	s.records[rec.LearnerID+"|"+rec.UnitID] = rec
	return nil
}

func (s *saveStore) TopicProgress(learnerID, topicID string) ([]models.ProgressRecord, error) {
	var out []models.ProgressRecord
	for _, rec := range s.records {
		if rec.LearnerID == learnerID && rec.TopicID == topicID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *saveStore) InsertSession(rec models.SessionRecord) error {
	if s.failing {
		return errors.New("database unavailable")
	}
	s.sessions = append(s.sessions, rec)
	return nil
}

func (s *saveStore) InsertStepResult(res models.StepResult) error {
	s.results = append(s.results, res)
	return nil
}

func retryRequest(id string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+id+"/retry-save", nil)
	req.SetPathValue("id", id)
	return req
}

func registerLiveSession(t *testing.T, manager *session.Manager, id string) {
	t.Helper()
	sc, err := script.New("s1", "u1", "t1", "Test", []script.Step{
		{ID: "q1", Kind: script.KindInteractive, PromptText: "Say hi.", ExpectedResponse: "hi there"},
	})
	if err != nil {
		t.Fatal(err)
	}
	eng, err := session.New(sc, session.Config{}, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	manager.Start(id, eng, "learner-1", "s1")
	t.Cleanup(eng.Abort)
}

func TestRetrySaveRecoversFailedSave(t *testing.T) {
	store := newSaveStore()
	store.failing = true

	const id = "sess-1"
	rec := progress.NewRecorder(progress.RecorderConfig{
		Store:         store,
		SessionID:     id,
		LearnerID:     "learner-1",
		ScriptID:      "s1",
		TopicID:       "t1",
		PassThreshold: 50,
		TopicUnits:    []string{"u1"},
	})
	rec.OnStepScored("q1", 80, "u1")
	rec.OnSessionCompleted("u1", 80, 10, 60, 1)
	if rec.Err() == nil {
		t.Fatal("save against failing store did not record an error")
	}

	manager := session.NewManager(time.Minute)
	registerLiveSession(t, manager, id)

	sh := NewSessionHandler(&config.Config{}, nil, manager, NewHub(), nil, nil)
	sh.recorders[id] = rec

	// The state snapshot reports the failed save to the client.
	rr := httptest.NewRecorder()
	stateReq := httptest.NewRequest(http.MethodGet, "/api/sessions/"+id, nil)
	stateReq.SetPathValue("id", id)
	sh.GetState(rr, stateReq)
	var state stateResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if !state.SaveFailed {
		t.Error("state save_failed = false, want true while the save is pending")
	}

	// Retrying while the store is still down fails and keeps the payload.
	rr = httptest.NewRecorder()
	sh.RetrySave(rr, retryRequest(id))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("retry against failing store: status = %d, want 500", rr.Code)
	}

	// Once the store recovers, retry persists everything and releases the
	// session.
	store.failing = false
	rr = httptest.NewRecorder()
	sh.RetrySave(rr, retryRequest(id))
	if rr.Code != http.StatusOK {
		t.Fatalf("retry after recovery: status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if len(store.sessions) != 1 || len(store.results) != 1 {
		t.Errorf("store holds %d sessions and %d results, want 1 and 1",
			len(store.sessions), len(store.results))
	}
	if _, ok := sh.recorders[id]; ok {
		t.Error("recorder still retained after successful retry")
	}
	if manager.Count() != 0 {
		t.Errorf("manager still holds %d sessions after successful retry", manager.Count())
	}
}

func TestRetrySaveUnknownSession(t *testing.T) {
	sh := NewSessionHandler(&config.Config{}, nil, session.NewManager(time.Minute), NewHub(), nil, nil)

	rr := httptest.NewRecorder()
	sh.RetrySave(rr, retryRequest("nope"))
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}

func TestRetrySaveNothingPending(t *testing.T) {
	const id = "sess-2"
	rec := progress.NewRecorder(progress.RecorderConfig{
		Store:     newSaveStore(),
		SessionID: id,
		LearnerID: "learner-1",
	})

	sh := NewSessionHandler(&config.Config{}, nil, session.NewManager(time.Minute), NewHub(), nil, nil)
	sh.recorders[id] = rec

	rr := httptest.NewRecorder()
	sh.RetrySave(rr, retryRequest(id))
	if rr.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rr.Code)
	}
}
