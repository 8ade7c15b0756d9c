package voice

import (
	"context"
	"sync"
)

// Scoped wraps a shared Output so each session gets its own stop scope:
// Stop cancels only the Speak calls made through this wrapper, never those
// of other sessions sharing the same underlying synthesizer.
func Scoped(inner Output) Output {
	return &scopedOutput{
		inner:   inner,
		cancels: make(map[int]context.CancelFunc),
	}
}

type scopedOutput struct {
	inner Output

	mu      sync.Mutex
	nextID  int
	cancels map[int]context.CancelFunc
}

func (s *scopedOutput) Speak(ctx context.Context, text string, profile Profile, rate Rate) error {
	ctx, cancel := context.WithCancel(ctx)
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

	return s.inner.Speak(ctx, text, profile, rate)
}

// Stop cancels this wrapper's in-flight Speak calls. The shared Output's own
// Stop is deliberately not invoked.
func (s *scopedOutput) Stop() {
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

func (s *scopedOutput) Available() bool {
	return s.inner.Available()
}
