// Package session implements the scripted practice session engine: a
// state machine that drives a learner through a script one step at a time,
// presenting prompts, capturing and scoring responses, and reporting
// progress events.
package session

import (
	"context"
	"errors"
	"log"
	"math"
	"sync"
	"time"

	"speakwise/internal/scoring"
	"speakwise/internal/script"
	"speakwise/internal/voice"
)

// Phase is the sub-state of the current step.
type Phase string

const (
	PhasePresenting       Phase = "presenting"
	PhaseAwaitingResponse Phase = "awaiting_response"
	PhaseScoring          Phase = "scoring"
	PhaseRevealing        Phase = "revealing"
	PhaseComplete         Phase = "complete"
	PhaseAborted          Phase = "aborted"
)

// ErrAborted is returned by Run when the session was aborted.
var ErrAborted = errors.New("session: aborted")

// ErrNotAccepting is returned by interaction methods when the engine is not
// in a phase that accepts that interaction.
var ErrNotAccepting = errors.New("session: not accepting this interaction now")

// Reveal dwell formula constants. The dwell guarantees reveal narration is
// never cut off mid-reading.
const (
	dwellFloorMs  = 10000
	dwellBufferMs = 2000
	charsPerWord  = 5
)

// DwellDuration returns how long the reveal phase lingers for a text of
// charCount characters read at wordsPerMinute:
// max(10s, charCount/5 * (60s/wpm) + 2s).
func DwellDuration(charCount, wordsPerMinute int) time.Duration {
	if wordsPerMinute <= 0 {
		wordsPerMinute = 160
	}
	ms := float64(charCount)/charsPerWord*(60000.0/float64(wordsPerMinute)) + dwellBufferMs
	if ms < dwellFloorMs {
		ms = dwellFloorMs
	}
	return time.Duration(ms) * time.Millisecond
}

// Config tunes one session. Zero values fall back to defaults; per-step
// MaxAttempts/MaxReplays override the session-wide values when set.
type Config struct {
	LearnerID    string
	UnitID       string
	TopicID      string
	PlaybackRate voice.Rate
	Voice        voice.Profile

	MaxReplays    int // 0 = unlimited
	MaxAttempts   int // 0 = unlimited
	PassThreshold int // default scoring.DefaultPassThreshold

	// AdvanceOnExhausted moves an exhausted step to its reveal instead of
	// skipping straight to the next step.
	AdvanceOnExhausted bool

	// TimeoutCountsAsAttempt makes an empty capture (timeout / no speech)
	// score 0 and consume an attempt instead of quietly re-arming capture.
	TimeoutCountsAsAttempt bool

	CaptureTimeout time.Duration // default 15s
	SilenceTimeout time.Duration // default 2s

	// WordsPerMinute maps playback rates to reading speeds for the reveal
	// dwell. Missing rates use the defaults (slower=80, slow=120, normal=160).
	WordsPerMinute map[voice.Rate]int
}

func (c *Config) applyDefaults() {
	if c.PlaybackRate == "" {
		c.PlaybackRate = voice.RateNormal
	}
	if c.PassThreshold <= 0 {
		c.PassThreshold = scoring.DefaultPassThreshold
	}
	if c.CaptureTimeout <= 0 {
		c.CaptureTimeout = 15 * time.Second
	}
	if c.SilenceTimeout <= 0 {
		c.SilenceTimeout = 2 * time.Second
	}
	wpm := map[voice.Rate]int{
		voice.RateSlower: 80,
		voice.RateSlow:   120,
		voice.RateNormal: 160,
	}
	for r, v := range c.WordsPerMinute {
		if v > 0 {
			wpm[r] = v
		}
	}
	c.WordsPerMinute = wpm
}

// Recorder receives the engine's output events, fire-and-forget. An aborted
// session emits OnSessionAborted and nothing else afterwards.
type Recorder interface {
	OnStepScored(stepID string, score int, unitID string)
	OnSessionCompleted(unitID string, aggregatePercentage float64, pointsEarned int, durationSeconds int, stepsAttempted int)
	OnSessionAborted(unitID string)
}

// EventType classifies observer events.
type EventType string

const (
	EventPhase      EventType = "phase"
	EventStepScored EventType = "step_scored"
	EventNotice     EventType = "notice"
	EventInterim    EventType = "interim"
	EventCompleted  EventType = "completed"
	EventAborted    EventType = "aborted"
)

// Event is a host-facing notification about session progress, consumed by
// the live event stream.
type Event struct {
	Type       EventType `json:"type"`
	StepID     string    `json:"step_id,omitempty"`
	StepIndex  int       `json:"step_index"`
	Phase      Phase     `json:"phase,omitempty"`
	Score      int       `json:"score"`
	Passed     bool      `json:"passed"`
	Close      bool      `json:"close,omitempty"`
	Notice     string    `json:"notice,omitempty"`
	Transcript string    `json:"transcript,omitempty"`
}

// State is a snapshot of session progress. Snapshots are copies; the live
// state is owned exclusively by the engine's run loop.
type State struct {
	CurrentStepIndex   int
	Phase              Phase
	AttemptsForStep    int
	ReplaysUsedForStep int
	Responses          map[string]string
	Scores             map[string]int
	CorrectCount       int
	AudioAvailable     bool
	InputDegraded      bool
	StartedAt          time.Time
	ElapsedSeconds     int
}

type submission struct {
	text     string
	isChoice bool
}

type controlKind int

const (
	ctrlReplay controlKind = iota
	ctrlContinue
)

type captureOutcome struct {
	result voice.CaptureResult
	err    error
}

// Engine drives one session through its script. Create with New, start the
// run loop with Run (once), interact through SubmitResponse, SubmitChoice,
// RequestReplay, Continue and Abort.
type Engine struct {
	script *script.Script
	cfg    Config
	out    voice.Output
	in     voice.Input
	scorer *scoring.Scorer
	rec    Recorder

	observer func(Event)
	sleep    func(ctx context.Context, d time.Duration)
	now      func() time.Time

	mu      sync.Mutex
	state   State
	cancel  context.CancelFunc
	started bool

	responseCh chan submission
	controlCh  chan controlKind
	done       chan struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithObserver registers a callback invoked for every engine event. The
// callback must not block.
func WithObserver(fn func(Event)) Option {
	return func(e *Engine) { e.observer = fn }
}

// New builds an engine for the given script. The script must already be
// validated (script.New refuses invalid scripts). out and in may be nil,
// which the engine treats as unavailable capabilities; rec may be nil.
func New(sc *script.Script, cfg Config, out voice.Output, in voice.Input, rec Recorder, opts ...Option) (*Engine, error) {
	if sc == nil || sc.Len() == 0 {
		return nil, errors.New("session: script is empty")
	}
	cfg.applyDefaults()

	e := &Engine{
		script: sc,
		cfg:    cfg,
		out:    out,
		in:     in,
		scorer: scoring.NewScorer(cfg.PassThreshold),
		rec:    rec,
		sleep:  sleepContext,
		now:    time.Now,
		state: State{
			Phase:          PhasePresenting,
			Responses:      make(map[string]string),
			Scores:         make(map[string]int),
			AudioAvailable: out != nil && out.Available(),
		},
		responseCh: make(chan submission, 1),
		controlCh:  make(chan controlKind, 1),
		done:       make(chan struct{}),
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Run executes the session to completion or abort. It must be called
// exactly once; the engine's interaction methods are safe to call from
// other goroutines while Run is in flight.
func (e *Engine) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return errors.New("session: Run called twice")
	}
	e.started = true
	e.cancel = cancel
	e.state.StartedAt = e.now()
	e.mu.Unlock()

	defer close(e.done)

	for i := 0; i < e.script.Len(); i++ {
		e.beginStep(i)
		if err := e.runStep(ctx, e.script.At(i), i); err != nil {
			e.finishAborted()
			return ErrAborted
		}
	}

	e.finishCompleted()
	return nil
}

// Done is closed when the run loop has finished, whether completed or
// aborted.
func (e *Engine) Done() <-chan struct{} { return e.done }

// Abort cancels the session immediately: in-flight playback and capture are
// stopped, timers discarded, and no completion event fires. Idempotent.
func (e *Engine) Abort() {
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// SubmitResponse delivers a typed (manual) response for the current
// interactive step.
func (e *Engine) SubmitResponse(text string) error {
	return e.submit(submission{text: text})
}

// SubmitChoice delivers a multiple-choice selection, identified by the
// choice text so presentation-order shuffling cannot affect scoring.
func (e *Engine) SubmitChoice(choiceText string) error {
	return e.submit(submission{text: choiceText, isChoice: true})
}

func (e *Engine) submit(sub submission) error {
	e.mu.Lock()
	phase := e.state.Phase
	e.mu.Unlock()
	if phase != PhaseAwaitingResponse {
		return ErrNotAccepting
	}
	select {
	case e.responseCh <- sub:
		return nil
	default:
		return ErrNotAccepting
	}
}

// RequestReplay asks for the current prompt to be replayed. A request that
// arrives while playback is still in flight is held until the in-flight
// operation settles.
func (e *Engine) RequestReplay() error {
	e.mu.Lock()
	phase := e.state.Phase
	e.mu.Unlock()
	if phase != PhasePresenting && phase != PhaseAwaitingResponse {
		return ErrNotAccepting
	}
	select {
	case e.controlCh <- ctrlReplay:
		return nil
	default:
		return ErrNotAccepting
	}
}

// Continue cuts the reveal dwell short and advances to the next step.
func (e *Engine) Continue() error {
	e.mu.Lock()
	phase := e.state.Phase
	e.mu.Unlock()
	if phase != PhaseRevealing {
		return ErrNotAccepting
	}
	select {
	case e.controlCh <- ctrlContinue:
		return nil
	default:
		return ErrNotAccepting
	}
}

// State returns a copy of the current session state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.state
	st.Responses = make(map[string]string, len(e.state.Responses))
	for k, v := range e.state.Responses {
		st.Responses[k] = v
	}
	st.Scores = make(map[string]int, len(e.state.Scores))
	for k, v := range e.state.Scores {
		st.Scores[k] = v
	}
	if !st.StartedAt.IsZero() {
		st.ElapsedSeconds = int(e.now().Sub(st.StartedAt).Seconds())
	}
	return st
}

// Script returns the script this session runs.
func (e *Engine) Script() *script.Script { return e.script }

// Config returns the session configuration.
func (e *Engine) Config() Config { return e.cfg }

// runStep drives one step to its terminal sub-phase. A non-nil error always
// means the session context was canceled.
func (e *Engine) runStep(ctx context.Context, st script.Step, index int) error {
	e.drainPending()

	if err := e.present(ctx, st); err != nil {
		return err
	}

	if !st.Interactive() {
		return nil
	}

	for {
		sub, err := e.awaitResponse(ctx, st)
		if err != nil {
			return err
		}

		result, soundsClose := e.scoreSubmission(st, sub)

		if result.Passed {
			e.setCorrect()
			return e.reveal(ctx, st)
		}

		attempts := e.bumpAttempts()
		max := effectiveLimit(st.MaxAttempts, e.cfg.MaxAttempts)
		if max == 0 || attempts < max {
			e.emit(Event{
				Type: EventNotice, StepID: st.ID, StepIndex: index,
				Notice: "try again", Score: result.Value, Close: soundsClose,
			})
			continue
		}

		// Attempts exhausted: host policy decides between revealing the
		// answer and advancing directly.
		if e.cfg.AdvanceOnExhausted {
			return e.reveal(ctx, st)
		}
		return nil
	}
}

// present plays the step prompt. Playback failure is absorbed: the engine
// marks audio unavailable and treats playback as complete so the session is
// never blocked on audio that will never finish.
func (e *Engine) present(ctx context.Context, st script.Step) error {
	e.setPhase(PhasePresenting)

	if e.out == nil || !e.out.Available() {
		e.markAudioUnavailable(st.ID)
		return ctx.Err()
	}

	if err := e.out.Speak(ctx, st.PromptText, e.cfg.Voice, e.cfg.PlaybackRate); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("session: playback failed for step %s: %v", st.ID, err)
		e.markAudioUnavailable(st.ID)
	}
	return ctx.Err()
}

// awaitResponse blocks until a response is available for the step: a speech
// capture resolves, a manual submission arrives, or — after capture degrades
// — only manual input remains. Replay requests are serviced here.
func (e *Engine) awaitResponse(ctx context.Context, st script.Step) (submission, error) {
	e.setPhase(PhaseAwaitingResponse)

	capCh, capCancel := e.startCapture(ctx, st)
	defer func() {
		if capCancel != nil {
			capCancel()
		}
	}()

	for {
		select {
		case out := <-capCh:
			capCancel()
			capCh, capCancel = nil, nil
			if out.err == nil {
				e.emit(Event{Type: EventInterim, StepID: st.ID, StepIndex: e.stepIndex(), Transcript: out.result.Transcript})
				return submission{text: out.result.Transcript}, nil
			}
			if ctx.Err() != nil {
				return submission{}, ctx.Err()
			}
			if voice.Fatal(out.err) {
				e.degradeInput(st.ID, out.err)
				continue // manual entry remains available
			}
			// Timeout or no speech detected.
			if e.cfg.TimeoutCountsAsAttempt {
				return submission{}, nil
			}
			e.emit(Event{Type: EventNotice, StepID: st.ID, StepIndex: e.stepIndex(), Notice: "no speech detected"})
			capCh, capCancel = e.startCapture(ctx, st)

		case sub := <-e.responseCh:
			if capCancel != nil {
				capCancel()
				e.in.StopCapture()
			}
			return sub, nil

		case c := <-e.controlCh:
			if c != ctrlReplay {
				continue
			}
			if !e.replayAllowed(st) {
				e.emit(Event{Type: EventNotice, StepID: st.ID, StepIndex: e.stepIndex(), Notice: "replay limit reached"})
				continue
			}
			if capCancel != nil {
				capCancel()
				e.in.StopCapture()
				capCh, capCancel = nil, nil
			}
			e.bumpReplays()
			if err := e.present(ctx, st); err != nil {
				return submission{}, err
			}
			e.setPhase(PhaseAwaitingResponse)
			capCh, capCancel = e.startCapture(ctx, st)

		case <-ctx.Done():
			if capCancel != nil {
				capCancel()
				e.in.StopCapture()
			}
			return submission{}, ctx.Err()
		}
	}
}

// startCapture launches a speech capture for the step when the input
// capability can serve it. Returns a nil channel (selects never fire) when
// capture does not apply.
func (e *Engine) startCapture(ctx context.Context, st script.Step) (chan captureOutcome, context.CancelFunc) {
	if e.in == nil || !e.in.Available() || st.MultipleChoice() {
		return nil, nil
	}
	e.mu.Lock()
	degraded := e.state.InputDegraded
	e.mu.Unlock()
	if degraded {
		return nil, nil
	}

	capCtx, capCancel := context.WithCancel(ctx)
	ch := make(chan captureOutcome, 1)
	go func() {
		res, err := e.in.StartCapture(capCtx, voice.CaptureOptions{
			Timeout:        e.cfg.CaptureTimeout,
			SilenceTimeout: e.cfg.SilenceTimeout,
			Interim: func(transcript string) {
				e.emit(Event{Type: EventInterim, StepIndex: e.stepIndex(), Transcript: transcript})
			},
		})
		ch <- captureOutcome{result: res, err: err}
	}()
	return ch, capCancel
}

// scoreSubmission records the response, scores it, and emits the scored
// events. Response text is recorded before its score, never the other way
// around.
func (e *Engine) scoreSubmission(st script.Step, sub submission) (scoring.Result, bool) {
	e.setPhase(PhaseScoring)

	e.mu.Lock()
	attempt := e.state.AttemptsForStep + 1
	e.state.Responses[st.ID] = sub.text
	e.mu.Unlock()

	var result scoring.Result
	if st.MultipleChoice() {
		result = e.scorer.ScoreChoice(st, sub.text, attempt)
	} else {
		result = e.scorer.ScoreFreeText(sub.text, st.ExpectedResponse, attempt)
	}

	e.mu.Lock()
	e.state.Scores[st.ID] = result.Value
	e.mu.Unlock()

	soundsClose := false
	if !result.Passed && !st.MultipleChoice() {
		_, soundsClose = scoring.SoundsClose(sub.text, st.ExpectedResponse)
	}

	if e.rec != nil {
		e.rec.OnStepScored(st.ID, result.Value, e.cfg.UnitID)
	}
	e.emit(Event{
		Type: EventStepScored, StepID: st.ID, StepIndex: e.stepIndex(),
		Score: result.Value, Passed: result.Passed, Close: soundsClose,
	})
	return result, soundsClose
}

// reveal shows/speaks the step's reveal text and lingers long enough for it
// to be read, or until the learner continues explicitly.
func (e *Engine) reveal(ctx context.Context, st script.Step) error {
	text := st.RevealText()
	if text == "" {
		return ctx.Err()
	}

	e.setPhase(PhaseRevealing)

	if e.out != nil && e.out.Available() {
		if err := e.out.Speak(ctx, text, e.cfg.Voice, e.cfg.PlaybackRate); err != nil && ctx.Err() == nil {
			log.Printf("session: reveal playback failed for step %s: %v", st.ID, err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	dwell := DwellDuration(len(text), e.cfg.WordsPerMinute[e.cfg.PlaybackRate])

	dctx, dcancel := context.WithCancel(ctx)
	defer dcancel()
	dwellDone := make(chan struct{})
	go func() {
		e.sleep(dctx, dwell)
		close(dwellDone)
	}()

	for {
		select {
		case <-dwellDone:
			return ctx.Err()
		case c := <-e.controlCh:
			if c == ctrlContinue {
				return ctx.Err()
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (e *Engine) finishCompleted() {
	e.mu.Lock()
	e.state.Phase = PhaseComplete
	scores := make([]int, 0, len(e.state.Scores))
	for _, v := range e.state.Scores {
		scores = append(scores, v)
	}
	started := e.state.StartedAt
	e.mu.Unlock()

	aggregate := 0.0
	if len(scores) > 0 {
		sum := 0
		for _, v := range scores {
			sum += v
		}
		aggregate = float64(sum) / float64(len(scores))
	}
	stepsAttempted := len(scores)
	points := Points(aggregate, stepsAttempted)
	duration := int(e.now().Sub(started).Seconds())

	if e.rec != nil {
		e.rec.OnSessionCompleted(e.cfg.UnitID, aggregate, points, duration, stepsAttempted)
	}
	e.emit(Event{Type: EventCompleted, StepIndex: e.script.Len() - 1, Phase: PhaseComplete})
}

func (e *Engine) finishAborted() {
	if e.out != nil {
		e.out.Stop()
	}
	if e.in != nil {
		e.in.StopCapture()
	}

	e.mu.Lock()
	e.state.Phase = PhaseAborted
	index := e.state.CurrentStepIndex
	e.mu.Unlock()

	if e.rec != nil {
		e.rec.OnSessionAborted(e.cfg.UnitID)
	}
	e.emit(Event{Type: EventAborted, StepIndex: index, Phase: PhaseAborted})
}

// Points is the session points formula:
// round(aggregatePercentage/10) + stepsAttempted*2.
func Points(aggregatePercentage float64, stepsAttempted int) int {
	return int(math.Round(aggregatePercentage/10)) + stepsAttempted*2
}

func (e *Engine) beginStep(index int) {
	e.mu.Lock()
	e.state.CurrentStepIndex = index
	e.state.AttemptsForStep = 0
	e.state.ReplaysUsedForStep = 0
	e.mu.Unlock()
}

func (e *Engine) setPhase(p Phase) {
	e.mu.Lock()
	e.state.Phase = p
	index := e.state.CurrentStepIndex
	e.mu.Unlock()

	var stepID string
	if index < e.script.Len() {
		stepID = e.script.At(index).ID
	}
	e.emit(Event{Type: EventPhase, StepID: stepID, StepIndex: index, Phase: p})
}

func (e *Engine) setCorrect() {
	e.mu.Lock()
	e.state.CorrectCount++
	e.mu.Unlock()
}

func (e *Engine) bumpAttempts() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.AttemptsForStep++
	return e.state.AttemptsForStep
}

func (e *Engine) bumpReplays() {
	e.mu.Lock()
	e.state.ReplaysUsedForStep++
	e.mu.Unlock()
}

func (e *Engine) replayAllowed(st script.Step) bool {
	max := effectiveLimit(st.MaxReplays, e.cfg.MaxReplays)
	if max == 0 {
		return true
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.ReplaysUsedForStep < max
}

func (e *Engine) markAudioUnavailable(stepID string) {
	e.mu.Lock()
	notify := e.state.AudioAvailable
	e.state.AudioAvailable = false
	index := e.state.CurrentStepIndex
	e.mu.Unlock()
	if notify {
		e.emit(Event{Type: EventNotice, StepID: stepID, StepIndex: index, Notice: "audio unavailable, continuing with text only"})
	}
}

func (e *Engine) degradeInput(stepID string, err error) {
	e.mu.Lock()
	notify := !e.state.InputDegraded
	e.state.InputDegraded = true
	index := e.state.CurrentStepIndex
	e.mu.Unlock()
	if notify {
		log.Printf("session: speech capture unavailable for step %s: %v", stepID, err)
		e.emit(Event{Type: EventNotice, StepID: stepID, StepIndex: index, Notice: "speech capture unavailable, type your answer instead"})
	}
}

func (e *Engine) stepIndex() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.CurrentStepIndex
}

func (e *Engine) emit(ev Event) {
	if e.observer != nil {
		e.observer(ev)
	}
}

// drainPending discards stale interactions queued while no step was
// listening, so they cannot leak into a later step.
func (e *Engine) drainPending() {
	select {
	case <-e.responseCh:
	default:
	}
	select {
	case <-e.controlCh:
	default:
	}
}

func effectiveLimit(stepValue, sessionValue int) int {
	if stepValue > 0 {
		return stepValue
	}
	return sessionValue
}

func sleepContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
