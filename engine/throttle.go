package engine

import (
	"sync"
	"time"
)

// throttleTable coalesces rapid-fire dispatches per key: scheduling a call
// while an earlier one for the same key is still waiting cancels the
// earlier one, so only the last-issued call ever fires. A cancelled call
// never executes.
type throttleTable struct {
	mu     sync.Mutex
	delay  time.Duration
	timers map[string]*time.Timer
}

func newThrottleTable(delay time.Duration) *throttleTable {
	return &throttleTable{
		delay:  delay,
		timers: make(map[string]*time.Timer),
	}
}

func (t *throttleTable) Schedule(key string, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if timer, ok := t.timers[key]; ok {
		timer.Stop()
	}
	t.timers[key] = time.AfterFunc(t.delay, func() {
		t.mu.Lock()
		delete(t.timers, key)
		t.mu.Unlock()
		fn()
	})
}

func (t *throttleTable) Cancel(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if timer, ok := t.timers[key]; ok {
		timer.Stop()
		delete(t.timers, key)
	}
}

func (t *throttleTable) CancelAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, timer := range t.timers {
		timer.Stop()
		delete(t.timers, key)
	}
}
