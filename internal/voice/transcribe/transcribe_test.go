package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"speakwise/internal/voice"
)

func transcriptServer(t *testing.T, text string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("missing file field: %v", err)
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Errorf("model field = %q, want whisper-1", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("authorization = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]string{"text": text})
	}))
}

func TestCaptureTranscribesPushedClip(t *testing.T) {
	srv := transcriptServer(t, " hello there ")
	defer srv.Close()

	p := New(srv.URL, "secret", "whisper-1")

	var interim string
	done := make(chan struct{})
	var result voice.CaptureResult
	var capErr error
	go func() {
		result, capErr = p.StartCapture(context.Background(), voice.CaptureOptions{
			Timeout: 2 * time.Second,
			Interim: func(tr string) { interim = tr },
		})
		close(done)
	}()

	// Wait until the capture is armed before pushing.
	deadline := time.Now().Add(time.Second)
	for {
		if err := p.Push([]byte("audio-bytes"), "audio/webm"); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("capture never became ready for Push")
		}
		time.Sleep(time.Millisecond)
	}

	<-done
	if capErr != nil {
		t.Fatalf("StartCapture: %v", capErr)
	}
	if result.Transcript != "hello there" || !result.Final {
		t.Errorf("result = %+v, want trimmed final transcript", result)
	}
	if interim != "hello there" {
		t.Errorf("interim callback got %q", interim)
	}
}

func TestCaptureTimesOutWithoutClip(t *testing.T) {
	p := New("http://127.0.0.1:0/unused", "", "")

	_, err := p.StartCapture(context.Background(), voice.CaptureOptions{Timeout: 20 * time.Millisecond})
	if !errors.Is(err, voice.ErrCaptureTimeout) {
		t.Errorf("err = %v, want ErrCaptureTimeout", err)
	}
}

func TestEmptyTranscriptIsNoSpeech(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"text": "   "})
	}))
	defer srv.Close()

	p := New(srv.URL, "", "")

	done := make(chan error, 1)
	go func() {
		_, err := p.StartCapture(context.Background(), voice.CaptureOptions{Timeout: 2 * time.Second})
		done <- err
	}()

	deadline := time.Now().Add(time.Second)
	for {
		if err := p.Push([]byte("x"), "audio/wav"); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("capture never became ready for Push")
		}
		time.Sleep(time.Millisecond)
	}

	if err := <-done; !errors.Is(err, voice.ErrNoSpeech) {
		t.Errorf("err = %v, want ErrNoSpeech", err)
	}
}

func TestPushWithoutCapture(t *testing.T) {
	p := New("http://127.0.0.1:0/unused", "", "")
	if err := p.Push([]byte("x"), "audio/webm"); !errors.Is(err, ErrNoCapture) {
		t.Errorf("err = %v, want ErrNoCapture", err)
	}
}

func TestUnconfiguredProviderIsUnavailable(t *testing.T) {
	p := New("", "", "")
	if p.Available() {
		t.Error("provider with empty endpoint reports available")
	}
	if _, err := p.StartCapture(context.Background(), voice.CaptureOptions{}); !errors.Is(err, voice.ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}

func TestStopCaptureCancelsWait(t *testing.T) {
	p := New("http://127.0.0.1:0/unused", "", "")

	done := make(chan error, 1)
	go func() {
		_, err := p.StartCapture(context.Background(), voice.CaptureOptions{Timeout: 5 * time.Second})
		done <- err
	}()

	deadline := time.Now().Add(time.Second)
	for {
		p.mu.Lock()
		armed := p.cancel != nil
		p.mu.Unlock()
		if armed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("capture never armed")
		}
		time.Sleep(time.Millisecond)
	}

	p.StopCapture()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("StopCapture did not release the capture")
	}
}

func TestTranscriptionErrorSurfaceStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := New(srv.URL, "", "")

	done := make(chan error, 1)
	go func() {
		_, err := p.StartCapture(context.Background(), voice.CaptureOptions{Timeout: 2 * time.Second})
		done <- err
	}()

	deadline := time.Now().Add(time.Second)
	for {
		if err := p.Push([]byte("x"), "audio/webm"); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("capture never became ready for Push")
		}
		time.Sleep(time.Millisecond)
	}

	err := <-done
	if err == nil || errors.Is(err, voice.ErrCaptureTimeout) {
		t.Errorf("err = %v, want transport error mentioning status", err)
	}
}
