// Package transcribe implements voice.Input for the server deployment.
// The browser records microphone audio and uploads it; Push hands the clip
// to a waiting capture, which forwards it to a Whisper-compatible
// transcription endpoint and resolves with the transcript.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"speakwise/internal/voice"
)

// DefaultTimeout bounds a capture when the caller sets none. Capture must
// never be unbounded.
const DefaultTimeout = 15 * time.Second

const requestTimeout = 30 * time.Second

// ErrNoCapture is returned by Push when no capture is waiting for audio.
var ErrNoCapture = errors.New("transcribe: no capture in progress")

type clip struct {
	data     []byte
	mimeType string
}

// Provider bridges uploaded audio clips to transcript captures.
type Provider struct {
	endpoint string
	apiKey   string
	model    string
	client   *http.Client

	mu      sync.Mutex
	pending chan clip
	cancel  context.CancelFunc
}

// New creates a provider posting audio to the given OpenAI-compatible
// transcription endpoint. An empty endpoint yields an unavailable provider,
// which the engine degrades around.
func New(endpoint, apiKey, model string) *Provider {
	return &Provider{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		client:   &http.Client{Timeout: requestTimeout},
	}
}

// Available reports whether a transcription endpoint is configured.
func (p *Provider) Available() bool {
	return p.endpoint != ""
}

// StartCapture waits for one pushed audio clip, transcribes it and returns
// the transcript. It fails with voice.ErrCaptureTimeout when no clip arrives
// within the timeout and voice.ErrNoSpeech when the transcript is empty.
// The SilenceTimeout option is a browser-side concern and is ignored here:
// silence detection already happened before the clip was uploaded.
func (p *Provider) StartCapture(ctx context.Context, opts voice.CaptureOptions) (voice.CaptureResult, error) {
	if !p.Available() {
		return voice.CaptureResult{}, voice.ErrUnavailable
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx, cancel := context.WithCancel(ctx)
	ch := make(chan clip, 1)

	p.mu.Lock()
	if p.cancel != nil {
		p.mu.Unlock()
		cancel()
		return voice.CaptureResult{}, errors.New("transcribe: capture already in progress")
	}
	p.pending = ch
	p.cancel = cancel
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.pending = nil
		if p.cancel != nil {
			p.cancel()
			p.cancel = nil
		}
		p.mu.Unlock()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case c := <-ch:
		transcript, err := p.transcribeClip(ctx, c)
		if err != nil {
			return voice.CaptureResult{}, err
		}
		transcript = strings.TrimSpace(transcript)
		if transcript == "" {
			return voice.CaptureResult{}, voice.ErrNoSpeech
		}
		if opts.Interim != nil {
			opts.Interim(transcript)
		}
		return voice.CaptureResult{Transcript: transcript, Final: true}, nil
	case <-timer.C:
		return voice.CaptureResult{}, voice.ErrCaptureTimeout
	case <-ctx.Done():
		return voice.CaptureResult{}, ctx.Err()
	}
}

// StopCapture cancels a waiting capture. Safe to call when idle.
func (p *Provider) StopCapture() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

// Push delivers one uploaded audio clip to the waiting capture.
func (p *Provider) Push(data []byte, mimeType string) error {
	p.mu.Lock()
	ch := p.pending
	p.mu.Unlock()

	if ch == nil {
		return ErrNoCapture
	}
	select {
	case ch <- clip{data: data, mimeType: mimeType}:
		return nil
	default:
		return ErrNoCapture
	}
}

// transcriptionResponse is the subset of the endpoint's JSON reply we need.
type transcriptionResponse struct {
	Text string `json:"text"`
}

// transcribeClip posts the clip to the transcription endpoint as a
// Whisper-style multipart request.
func (p *Provider) transcribeClip(ctx context.Context, c clip) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	filename := "capture.webm"
	if strings.Contains(c.mimeType, "wav") {
		filename = "capture.wav"
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("transcribe: build request: %w", err)
	}
	if _, err := fw.Write(c.data); err != nil {
		return "", fmt.Errorf("transcribe: build request: %w", err)
	}
	if p.model != "" {
		if err := mw.WriteField("model", p.model); err != nil {
			return "", fmt.Errorf("transcribe: build request: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("transcribe: build request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("transcribe: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcribe: post audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("transcribe: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("transcribe: decode response: %w", err)
	}
	return parsed.Text, nil
}
