// Package googletts implements voice.Output by synthesizing prompt audio to
// cached MP3 files using the Google Translate text-to-speech endpoint (free,
// no API key needed). In the server deployment "playback complete" means the
// audio file is ready to serve; actual playback happens in the browser.
package googletts

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"speakwise/internal/voice"
)

const requestTimeout = 10 * time.Second

// Synthesizer generates and caches MP3 prompt audio. It is shared across
// sessions; every in-flight fetch keeps its own cancel func so concurrent
// Speak calls never interfere with each other.
type Synthesizer struct {
	audioDir string
	client   *http.Client

	mu      sync.Mutex
	nextID  int
	cancels map[int]context.CancelFunc
}

// New creates a synthesizer writing MP3 files under audioDir.
func New(audioDir string) *Synthesizer {
	return &Synthesizer{
		audioDir: audioDir,
		client:   &http.Client{Timeout: requestTimeout},
		cancels:  make(map[int]context.CancelFunc),
	}
}

// Available reports whether synthesis can be attempted. The endpoint needs
// no credentials, so availability only requires a writable audio directory.
func (s *Synthesizer) Available() bool {
	return s.audioDir != ""
}

// Speak synthesizes text to the cache, returning once the file is ready.
// A cache hit returns immediately.
func (s *Synthesizer) Speak(ctx context.Context, text string, profile voice.Profile, rate voice.Rate) error {
	if !s.Available() {
		return voice.ErrUnavailable
	}

	path := filepath.Join(s.audioDir, s.FilenameFor(text))
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.cancels[id] = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.cancels, id)
		s.mu.Unlock()
		cancel()
	}()

	if err := s.fetch(ctx, text, profile, rate, path); err != nil {
		return fmt.Errorf("googletts: synthesize %q: %w", text, err)
	}
	return nil
}

// Stop cancels every in-flight synthesis. Safe to call when idle. Sessions
// sharing the synthesizer should go through voice.Scoped so a stop only
// affects their own fetches.
func (s *Synthesizer) Stop() {
	s.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(s.cancels))
	for _, cancel := range s.cancels {
		cancels = append(cancels, cancel)
	}
	s.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

// FilenameFor returns the cache filename for a piece of text. Prompts are
// whole sentences, so the name is a content hash rather than sanitized text.
func (s *Synthesizer) FilenameFor(text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("prompt_%x.mp3", sum[:8])
}

// fetch downloads synthesized audio for text into outputPath.
func (s *Synthesizer) fetch(ctx context.Context, text string, profile voice.Profile, rate voice.Rate, outputPath string) error {
	lang := profile.Lang
	if lang == "" {
		lang = "en"
	}

	params := url.Values{}
	params.Set("ie", "UTF-8")
	params.Set("q", text)
	params.Set("tl", lang)
	params.Set("client", "tw-ob")
	params.Set("textlen", fmt.Sprintf("%d", len(text)))
	if rate == voice.RateSlow || rate == voice.RateSlower {
		params.Set("ttsspeed", "0.24")
	}

	fullURL := "https://translate.google.com/translate_tts?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	// The endpoint rejects requests without a browser user agent.
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	tmp := outputPath + ".tmp"
	outFile, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}

	if _, err := io.Copy(outFile, resp.Body); err != nil {
		outFile.Close()
		os.Remove(tmp)
		return fmt.Errorf("write audio file: %w", err)
	}
	if err := outFile.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close audio file: %w", err)
	}

	if err := os.Rename(tmp, outputPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("finalize audio file: %w", err)
	}
	return nil
}
