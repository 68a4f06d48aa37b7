package igmp

import (
	"log/slog"
	"math/rand"
	"sync"
	"time"
)

// Env carries the shared runtime of the engine: the logger, the random
// source used for report delays, and the work queue that deferred timer
// callbacks are handed off to. Timer triggers never run protocol logic
// directly; they enqueue onto the work queue so callbacks may allocate
// and take locks freely.
type Env struct {
	Log *slog.Logger

	workQueue chan func()
	quit      chan struct{}
	done      chan struct{}

	randMu sync.Mutex
	rand   *rand.Rand
}

// NewEnv starts the work queue worker. rng may be nil, in which case a
// time-seeded source is used.
func NewEnv(log *slog.Logger, rng *rand.Rand) *Env {
	if log == nil {
		log = slog.Default()
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	e := &Env{
		Log:       log,
		workQueue: make(chan func(), 128),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		rand:      rng,
	}
	go e.work()
	return e
}

func (e *Env) work() {
	defer close(e.done)
	for {
		select {
		case fn := <-e.workQueue:
			fn()
		case <-e.quit:
			// Drain callbacks that were queued before shutdown.
			for {
				select {
				case fn := <-e.workQueue:
					fn()
				default:
					return
				}
			}
		}
	}
}

// enqueue hands fn to the worker. It reports false if the environment
// is shutting down and the callback was dropped.
func (e *Env) enqueue(fn func()) bool {
	select {
	case <-e.quit:
		return false
	default:
	}
	select {
	case e.workQueue <- fn:
		return true
	case <-e.quit:
		return false
	}
}

// Close stops the worker and waits for it to exit. Timers that fire
// afterwards have their callbacks dropped.
func (e *Env) Close() {
	close(e.quit)
	<-e.done
}

// randomDelay returns a random duration in (0, max].
func (e *Env) randomDelay(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	e.randMu.Lock()
	defer e.randMu.Unlock()
	return max - time.Duration(e.rand.Int63n(int64(max)))
}
