package rooms

import (
	"log"
	"sync"
	"time"

	"therapymeet/internal/metrics"
	"therapymeet/pkg/types"
)

// Lifecycle owns room state transitions: analysis windows, teardown on
// session completion, and the delayed force_disconnect broadcast. It is the
// only component that deletes rooms.
type Lifecycle struct {
	store *Store
	delay time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewLifecycle creates the controller. delay is the gap between the
// session_completed broadcast and the force_disconnect follow-up.
func NewLifecycle(store *Store, delay time.Duration) *Lifecycle {
	return &Lifecycle{
		store:  store,
		delay:  delay,
		timers: make(map[string]*time.Timer),
	}
}

// StartAnalysis opens the emotion analysis window for a room.
func (l *Lifecycle) StartAnalysis(code string, questionID int64, duration int) error {
	room, err := l.store.Get(code)
	if err != nil {
		return err
	}
	room.StartAnalysis(questionID, duration)
	return nil
}

// StopAnalysis closes the window and returns the collected samples, which
// may be nil if no window was open.
func (l *Lifecycle) StopAnalysis(code string) (*types.AnalysisData, error) {
	room, err := l.store.Get(code)
	if err != nil {
		return nil, err
	}
	return room.StopAnalysis(), nil
}

// RecordEmotion appends a sample to an open window. Returns ErrNotAnalyzing
// when no window is open so the router can drop the event silently.
func (l *Lifecycle) RecordEmotion(code, emotion string, confidence float64, timestamp string) error {
	room, err := l.store.Get(code)
	if err != nil {
		return err
	}
	if err := room.AddSample(emotion, confidence, timestamp); err != nil {
		return err
	}
	metrics.EmotionSamples.Inc()
	return nil
}

// Complete deletes the room immediately and schedules fire to run after the
// configured delay. The timer is tracked by code and cancellable, and fire
// runs on the timer goroutine without any room lock held; by the time it
// runs the room is already gone, so firing against a reused or empty code is
// a registry-level broadcast and nothing more.
func (l *Lifecycle) Complete(code string, fire func()) {
	l.store.Delete(code)

	l.mu.Lock()
	defer l.mu.Unlock()

	if prev, exists := l.timers[code]; exists {
		prev.Stop()
	}
	l.timers[code] = time.AfterFunc(l.delay, func() {
		l.mu.Lock()
		delete(l.timers, code)
		l.mu.Unlock()

		metrics.ForcedDisconnects.Inc()
		fire()
	})
}

// Shutdown cancels all pending teardown timers.
func (l *Lifecycle) Shutdown() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for code, timer := range l.timers {
		timer.Stop()
		delete(l.timers, code)
	}
	if l.store.Count() > 0 {
		log.Printf("Lifecycle shutdown with %d rooms still live", l.store.Count())
	}
}
