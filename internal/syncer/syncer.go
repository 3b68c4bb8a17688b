// Package syncer dispatches remote persistence calls off the caller's path.
//
// Each call is queued on a lane named by its item key. Calls on one lane run
// strictly in enqueue order; different lanes run concurrently. Every call is
// stamped with a sequence number that increases across all lanes, and the
// number travels with the request (remote.WithSeq) so the server can discard a
// write older than one it has already applied.
//
// There is no retry. A failed call is reported once to the error handler.
package syncer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"storefront/internal/remote"
)

// Call is one remote operation. ctx carries the deadline and sequence number.
type Call func(ctx context.Context) error

// ErrorHandler receives the failure of a call. key is the lane it ran on.
type ErrorHandler func(key string, err error)

// Config configures a Syncer.
type Config struct {
	Timeout time.Duration // per call; default 10s
	OnError ErrorHandler
	Logger  *slog.Logger
}

type job struct {
	epoch uint64
	seq   uint64
	call  Call
}

type lane struct {
	queue []job
}

// Syncer owns the lanes of one session.
type Syncer struct {
	mu      sync.Mutex
	lanes   map[string]*lane
	seq     uint64
	epoch   uint64
	wg      sync.WaitGroup
	timeout time.Duration
	onError ErrorHandler
	logger  *slog.Logger
}

// New creates a Syncer with no pending work.
func New(cfg Config) *Syncer {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{
		lanes:   make(map[string]*lane),
		timeout: timeout,
		onError: cfg.OnError,
		logger:  logger,
	}
}

// Enqueue schedules call on the lane for key and returns its sequence number.
// It never blocks on the network.
func (s *Syncer) Enqueue(key string, call Call) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	j := job{epoch: s.epoch, seq: s.seq, call: call}

	l, running := s.lanes[key]
	if !running {
		l = &lane{}
		s.lanes[key] = l
	}
	l.queue = append(l.queue, j)

	if !running {
		s.wg.Add(1)
		go s.drain(key, l)
	}
	return j.seq
}

// drain runs the lane until its queue is empty, then retires it.
func (s *Syncer) drain(key string, l *lane) {
	defer s.wg.Done()

	for {
		s.mu.Lock()
		if len(l.queue) == 0 {
			if s.lanes[key] == l {
				delete(s.lanes, key)
			}
			s.mu.Unlock()
			return
		}
		j := l.queue[0]
		l.queue = l.queue[1:]
		stale := j.epoch != s.epoch
		s.mu.Unlock()

		if stale {
			continue
		}
		s.run(key, j)
	}
}

func (s *Syncer) run(key string, j job) {
	ctx, cancel := context.WithTimeout(remote.WithSeq(context.Background(), j.seq), s.timeout)
	err := j.call(ctx)
	cancel()

	if err == nil {
		s.logger.Debug("sync call done", "key", key, "seq", j.seq)
		return
	}

	s.mu.Lock()
	current := j.epoch == s.epoch
	handler := s.onError
	s.mu.Unlock()

	if !current {
		s.logger.Debug("dropping failure from reset session", "key", key, "seq", j.seq, "error", err)
		return
	}
	s.logger.Warn("sync call failed", "key", key, "seq", j.seq, "error", err)
	if handler != nil {
		handler(key, err)
	}
}

// Reset discards all queued calls and ignores the outcome of calls already in
// flight. Sequence numbers keep increasing across a reset.
func (s *Syncer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.epoch++
	for _, l := range s.lanes {
		l.queue = nil
	}
}

// Pending returns the number of queued calls not yet started.
func (s *Syncer) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, l := range s.lanes {
		n += len(l.queue)
	}
	return n
}

// Wait blocks until every lane has drained.
func (s *Syncer) Wait() {
	s.wg.Wait()
}
