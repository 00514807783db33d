package timer

import (
	"sync"
	"time"
)

// Direction selects whether a Timer counts elapsed or remaining seconds.
type Direction int

const (
	CountUp Direction = iota
	CountDown
)

// Ticker is the tick source a Timer polls. *time.Ticker satisfies it through realTicker.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// Option customises a Timer.
type Option func(*Timer)

// WithTicker replaces the one-second wall clock ticker, mainly for tests.
func WithTicker(newTicker func(time.Duration) Ticker) Option {
	return func(t *Timer) { t.newTicker = newTicker }
}

// Timer runs at most one one-second tick loop at a time.
type Timer struct {
	newTicker func(time.Duration) Ticker

	mu        sync.Mutex
	seconds   int
	direction Direction
	running   bool
	gen       uint64
	stop      chan struct{}
	onTick    func(int)
	onTimeout func()
}

func New(opts ...Option) *Timer {
	t := &Timer{
		newTicker: func(d time.Duration) Ticker { return realTicker{t: time.NewTicker(d)} },
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// OnTick registers an observer called with the current count after every tick.
func (t *Timer) OnTick(fn func(seconds int)) {
	t.mu.Lock()
	t.onTick = fn
	t.mu.Unlock()
}

// Start begins ticking from initialSeconds. A running loop is cancelled first.
// In CountDown mode onTimeout runs exactly once when the count reaches zero.
func (t *Timer) Start(initialSeconds int, direction Direction, onTimeout func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked()
	t.gen++
	t.seconds = initialSeconds
	t.direction = direction
	t.onTimeout = onTimeout
	t.running = true
	t.stop = make(chan struct{})

	go t.run(t.newTicker(time.Second), t.stop, t.gen)
}

// Stop cancels the tick loop. Safe to call repeatedly.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

func (t *Timer) stopLocked() {
	if !t.running {
		return
	}
	t.running = false
	t.gen++
	close(t.stop)
}

// Seconds returns the elapsed (CountUp) or remaining (CountDown) seconds.
func (t *Timer) Seconds() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.seconds
}

// Running reports whether a tick loop is active.
func (t *Timer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

func (t *Timer) run(tk Ticker, stop <-chan struct{}, gen uint64) {
	defer tk.Stop()
	for {
		select {
		case <-stop:
			return
		case <-tk.C():
		}

		t.mu.Lock()
		if t.gen != gen {
			// Restarted or stopped between the tick and the lock.
			t.mu.Unlock()
			return
		}
		expired := false
		if t.direction == CountUp {
			t.seconds++
		} else {
			t.seconds--
			if t.seconds <= 0 {
				t.seconds = 0
				expired = true
				t.running = false
				t.gen++
				close(t.stop)
			}
		}
		seconds := t.seconds
		onTick := t.onTick
		onTimeout := t.onTimeout
		t.mu.Unlock()

		if onTick != nil {
			onTick(seconds)
		}
		if expired {
			if onTimeout != nil {
				onTimeout()
			}
			return
		}
	}
}
