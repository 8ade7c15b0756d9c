package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRespondWithError(t *testing.T) {
	rr := httptest.NewRecorder()
	respondWithError(rr, http.StatusNotFound, "session not found", "", errors.New("boom"))

	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q, want application/json", ct)
	}

	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	if body["error"] != "session not found" {
		t.Errorf("error message = %q", body["error"])
	}
}

func TestDecodeJSONRejectsBadBody(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{not json"))

	var dst struct{ Text string }
	if decodeJSON(rr, req, &dst) {
		t.Fatal("decodeJSON accepted malformed body")
	}
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestDecodeJSONAcceptsValidBody(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"text":"hello"}`))

	var dst struct {
		Text string `json:"text"`
	}
	if !decodeJSON(rr, req, &dst) {
		t.Fatal("decodeJSON rejected valid body")
	}
	if dst.Text != "hello" {
		t.Errorf("decoded text = %q", dst.Text)
	}
}
