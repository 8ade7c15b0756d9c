package session

import (
	"testing"
	"time"

	"speakwise/internal/script"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	sc, err := script.New("s1", "u1", "t1", "Test", []script.Step{
		{ID: "q1", Kind: script.KindInteractive, PromptText: "Say hi.", ExpectedResponse: "hi there"},
	})
	if err != nil {
		t.Fatal(err)
	}
	e, err := New(sc, Config{}, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	e.sleep = instantSleep
	return e
}

func TestManagerStartAndGet(t *testing.T) {
	m := NewManager(time.Minute)
	e := newTestEngine(t)

	id := NewID()
	m.Start(id, e, "learner-1", "s1")

	if m.Count() != 1 {
		t.Errorf("Count() = %d, want 1", m.Count())
	}

	got, ok := m.Get(id)
	if !ok || got != e {
		t.Fatal("Get did not return the registered engine")
	}
	if _, ok := m.Get("missing"); ok {
		t.Error("Get returned an engine for an unknown id")
	}

	waitFor(t, "engine awaiting", func() bool { return e.State().Phase == PhaseAwaitingResponse })
}

func TestManagerAbort(t *testing.T) {
	m := NewManager(time.Minute)
	e := newTestEngine(t)

	id := NewID()
	m.Start(id, e, "learner-1", "s1")
	waitFor(t, "engine awaiting", func() bool { return e.State().Phase == PhaseAwaitingResponse })

	if err := m.Abort(id); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	if m.Count() != 0 {
		t.Errorf("Count() after abort = %d, want 0", m.Count())
	}

	<-e.Done()
	if e.State().Phase != PhaseAborted {
		t.Errorf("phase = %s, want %s", e.State().Phase, PhaseAborted)
	}

	if err := m.Abort(id); err == nil {
		t.Error("second Abort returned nil, want ErrSessionNotFound")
	}
}

func TestManagerCleanupIdle(t *testing.T) {
	m := NewManager(10 * time.Millisecond)
	e := newTestEngine(t)

	id := NewID()
	m.Start(id, e, "learner-1", "s1")
	waitFor(t, "engine awaiting", func() bool { return e.State().Phase == PhaseAwaitingResponse })

	time.Sleep(25 * time.Millisecond)
	if n := m.CleanupIdle(); n != 1 {
		t.Fatalf("CleanupIdle removed %d sessions, want 1", n)
	}
	if m.Count() != 0 {
		t.Errorf("Count() = %d, want 0", m.Count())
	}

	<-e.Done()
	if e.State().Phase != PhaseAborted {
		t.Errorf("expired session phase = %s, want %s", e.State().Phase, PhaseAborted)
	}
}

func TestManagerGetRefreshesIdleTimer(t *testing.T) {
	m := NewManager(40 * time.Millisecond)
	e := newTestEngine(t)

	id := NewID()
	m.Start(id, e, "learner-1", "s1")

	for i := 0; i < 4; i++ {
		time.Sleep(15 * time.Millisecond)
		if _, ok := m.Get(id); !ok {
			t.Fatal("session disappeared while being touched")
		}
	}
	if n := m.CleanupIdle(); n != 0 {
		t.Errorf("CleanupIdle removed %d recently touched sessions, want 0", n)
	}

	m.Remove(id)
	if m.Count() != 0 {
		t.Errorf("Count() after Remove = %d, want 0", m.Count())
	}
	e.Abort()
}
