package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/orbital-ai/orbital/internal/types"
)

// laneBuffer is how many turns can wait behind the one in progress before
// a session starts rejecting new messages.
const laneBuffer = 100

// ErrSessionBusy is returned by Enqueue when a session already has a turn
// in progress and its backlog is full.
var ErrSessionBusy = errors.New("a turn is already in progress for this session and its queue is full")

// Queue manages per-session lanes with a global concurrency semaphore.
// Each session gets its own FIFO channel (lane) so turns within a session
// are processed sequentially in arrival order, while the semaphore limits
// the total number of concurrent turns across all sessions. Concurrent
// turns on one session queue behind each other; they are never rejected
// until the lane backlog fills.
type Queue struct {
	lanes     map[types.SessionID]chan *Turn
	semaphore *semaphore.Weighted
	processor func(*Turn) error
	active    atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
}

// NewQueue creates a Queue allowing up to maxConcurrent turns to execute
// simultaneously across all session lanes.
func NewQueue(maxConcurrent int64) *Queue {
	return &Queue{
		lanes:     make(map[types.SessionID]chan *Turn),
		semaphore: semaphore.NewWeighted(maxConcurrent),
	}
}

// Start initialises the queue's context. Must be called before Enqueue.
func (q *Queue) Start(ctx context.Context) {
	q.ctx, q.cancel = context.WithCancel(ctx)
}

// Stop cancels the queue context, closes all lanes, and waits for in-flight
// turns to finish.
func (q *Queue) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
	q.mu.Lock()
	for _, lane := range q.lanes {
		close(lane)
	}
	q.lanes = make(map[types.SessionID]chan *Turn)
	q.mu.Unlock()
	q.wg.Wait()
}

// Enqueue adds a Turn to its session's lane, creating the lane (and its
// goroutine) on first use. Returns ErrSessionBusy if the lane's backlog
// is full.
func (q *Queue) Enqueue(turn *Turn) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	lane, exists := q.lanes[turn.SessionID]
	if !exists {
		lane = make(chan *Turn, laneBuffer)
		q.lanes[turn.SessionID] = lane
		q.wg.Add(1)
		go q.drainLane(lane)
	}

	select {
	case lane <- turn:
		return nil
	default:
		return fmt.Errorf("%w (session %s)", ErrSessionBusy, turn.SessionID)
	}
}

// drainLane consumes a single session lane in order. Each turn holds a
// semaphore slot for its whole execution, so the lane gives strict FIFO
// within the session and the semaphore caps cross-session parallelism.
func (q *Queue) drainLane(lane chan *Turn) {
	defer q.wg.Done()
	for {
		select {
		case turn, ok := <-lane:
			if !ok {
				return
			}
			if err := q.semaphore.Acquire(q.ctx, 1); err != nil {
				turn.complete(&Outcome{State: StateFailed, Err: err})
				return
			}
			q.runTurn(turn)
			q.semaphore.Release(1)
		case <-q.ctx.Done():
			return
		}
	}
}

func (q *Queue) runTurn(turn *Turn) {
	if q.processor == nil {
		return
	}
	q.active.Add(1)
	defer q.active.Add(-1)
	if err := q.processor(turn); err != nil {
		slog.Error("turn failed",
			"turn_id", string(turn.ID),
			"session_id", string(turn.SessionID),
			"error", err)
	}
}

// WaitIdle blocks until no turns are actively being processed, or the
// timeout expires. Returns true if idle, false if timed out.
func (q *Queue) WaitIdle(timeout time.Duration) bool {
	deadline := time.After(timeout)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		if q.active.Load() == 0 {
			return true
		}
		select {
		case <-deadline:
			return false
		case <-tick.C:
		}
	}
}

// SetProcessor sets the function invoked for each dequeued Turn.
func (q *Queue) SetProcessor(fn func(*Turn) error) {
	q.processor = fn
}
