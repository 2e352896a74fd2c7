package session

import (
	"context"
	"sync"
)

// keyedExecutor runs operations for the same key one at a time on a
// dedicated goroutine. The goroutine exists only while callers hold the key.
type keyedExecutor struct {
	mu     sync.Mutex
	actors map[string]*actor
}

type actor struct {
	ops  chan func()
	refs int
}

func newKeyedExecutor() *keyedExecutor {
	return &keyedExecutor{actors: make(map[string]*actor)}
}

// Do runs fn on key's actor and returns its error. Once fn has been handed to
// the actor it always runs to completion; ctx only bounds the wait for a turn.
func (e *keyedExecutor) Do(ctx context.Context, key string, fn func() error) error {
	a := e.acquire(key)
	defer e.release(key, a)

	done := make(chan error, 1)
	select {
	case a.ops <- func() { done <- fn() }:
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-done
}

// Active reports how many keys currently own an actor goroutine.
func (e *keyedExecutor) Active() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.actors)
}

func (e *keyedExecutor) acquire(key string) *actor {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.actors[key]
	if !ok {
		a = &actor{ops: make(chan func())}
		e.actors[key] = a
		go a.loop()
	}
	a.refs++
	return a
}

func (e *keyedExecutor) release(key string, a *actor) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a.refs--
	if a.refs == 0 {
		delete(e.actors, key)
		close(a.ops)
	}
}

func (a *actor) loop() {
	for op := range a.ops {
		op()
	}
}
