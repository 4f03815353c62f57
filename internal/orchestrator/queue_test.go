package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/orbital-ai/orbital/internal/types"
)

func TestQueueProcessesTurn(t *testing.T) {
	q := NewQueue(4)
	q.Start(context.Background())
	defer q.Stop()

	processed := make(chan types.TurnID, 1)
	q.SetProcessor(func(turn *Turn) error {
		processed <- turn.ID
		return nil
	})

	turn := &Turn{ID: types.NewTurnID(), SessionID: types.NewSessionID()}
	if err := q.Enqueue(turn); err != nil {
		t.Fatal(err)
	}

	select {
	case id := <-processed:
		if id != turn.ID {
			t.Errorf("processed wrong turn: %s", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("turn was never processed")
	}
}

func TestQueueSameSessionFIFO(t *testing.T) {
	q := NewQueue(8)
	q.Start(context.Background())
	defer q.Stop()

	var mu sync.Mutex
	var order []string
	var seq atomic.Int64
	q.SetProcessor(func(turn *Turn) error {
		// Uneven work so out-of-order execution would show up.
		time.Sleep(time.Duration(10-seq.Add(1)) * time.Millisecond)
		mu.Lock()
		order = append(order, turn.UserText)
		mu.Unlock()
		return nil
	})

	session := types.NewSessionID()
	for _, text := range []string{"first", "second", "third", "fourth"} {
		if err := q.Enqueue(&Turn{ID: types.NewTurnID(), SessionID: session, UserText: text}); err != nil {
			t.Fatal(err)
		}
	}

	if !q.WaitIdle(5 * time.Second) {
		t.Fatal("queue never went idle")
	}
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	want := []string{"first", "second", "third", "fourth"}
	if len(order) != len(want) {
		t.Fatalf("expected %d turns, got %d", len(want), len(order))
	}
	for i, text := range want {
		if order[i] != text {
			t.Errorf("position %d: expected %q, got %q", i, text, order[i])
		}
	}
}

func TestQueueConcurrencyCap(t *testing.T) {
	const limit = 2
	q := NewQueue(limit)
	q.Start(context.Background())
	defer q.Stop()

	var current, maxSeen atomic.Int64
	q.SetProcessor(func(turn *Turn) error {
		inFlight := current.Add(1)
		for {
			seen := maxSeen.Load()
			if inFlight <= seen || maxSeen.CompareAndSwap(seen, inFlight) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		current.Add(-1)
		return nil
	})

	// Distinct sessions so the per-session lanes cannot serialize them.
	for i := 0; i < 6; i++ {
		if err := q.Enqueue(&Turn{ID: types.NewTurnID(), SessionID: types.NewSessionID()}); err != nil {
			t.Fatal(err)
		}
	}

	if !q.WaitIdle(5 * time.Second) {
		t.Fatal("queue never went idle")
	}
	time.Sleep(100 * time.Millisecond)

	if got := maxSeen.Load(); got > limit {
		t.Errorf("observed %d concurrent turns, limit is %d", got, limit)
	}
	if got := maxSeen.Load(); got == 0 {
		t.Error("no turns ran")
	}
}

func TestQueueDistinctSessionsRunInParallel(t *testing.T) {
	q := NewQueue(4)
	q.Start(context.Background())
	defer q.Stop()

	var running atomic.Int64
	both := make(chan struct{})
	var once sync.Once
	q.SetProcessor(func(turn *Turn) error {
		if running.Add(1) == 2 {
			once.Do(func() { close(both) })
		}
		defer running.Add(-1)
		select {
		case <-both:
		case <-time.After(2 * time.Second):
		}
		return nil
	})

	for i := 0; i < 2; i++ {
		if err := q.Enqueue(&Turn{ID: types.NewTurnID(), SessionID: types.NewSessionID()}); err != nil {
			t.Fatal(err)
		}
	}

	select {
	case <-both:
	case <-time.After(3 * time.Second):
		t.Fatal("two sessions never executed concurrently")
	}
}

func TestQueueNoProcessor(t *testing.T) {
	q := NewQueue(1)
	q.Start(context.Background())
	defer q.Stop()

	// Without a processor the turn is drained and dropped, not deadlocked.
	if err := q.Enqueue(&Turn{ID: types.NewTurnID(), SessionID: types.NewSessionID()}); err != nil {
		t.Fatal(err)
	}
	if !q.WaitIdle(2 * time.Second) {
		t.Fatal("queue never went idle")
	}
}

func TestQueueLaneFull(t *testing.T) {
	q := NewQueue(1)
	q.Start(context.Background())
	defer q.Stop()

	release := make(chan struct{})
	q.SetProcessor(func(turn *Turn) error {
		<-release
		return nil
	})

	session := types.NewSessionID()
	// One in flight plus a full buffer.
	var err error
	for i := 0; i < laneBuffer+2; i++ {
		err = q.Enqueue(&Turn{ID: types.NewTurnID(), SessionID: session})
		if err != nil {
			break
		}
		if i == 0 {
			// Give the lane goroutine time to pull the first turn.
			time.Sleep(20 * time.Millisecond)
		}
	}
	if !errors.Is(err, ErrSessionBusy) {
		t.Errorf("expected ErrSessionBusy once the lane buffer filled, got %v", err)
	}
	if err != nil && !strings.Contains(err.Error(), "turn is already in progress") {
		t.Errorf("error should say a turn is in progress, got %q", err)
	}
	close(release)
}

func TestQueueStopWaitsForInFlight(t *testing.T) {
	q := NewQueue(1)
	q.Start(context.Background())

	done := make(chan struct{})
	q.SetProcessor(func(turn *Turn) error {
		time.Sleep(100 * time.Millisecond)
		close(done)
		return nil
	})

	if err := q.Enqueue(&Turn{ID: types.NewTurnID(), SessionID: types.NewSessionID()}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	q.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop returned before the in-flight turn finished")
	}
}
