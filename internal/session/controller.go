package session

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Controller loads and saves session state, running the handlers of one
// session one at a time.
type Controller struct {
	store Store

	mu    sync.Mutex
	locks map[uuid.UUID]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// NewController creates a new Controller.
func NewController(store Store) *Controller {
	return &Controller{store: store, locks: map[uuid.UUID]*sessionLock{}}
}

// Create starts a logged-in session for username.
func (c *Controller) Create(ctx context.Context, username string) (*State, error) {
	s := New(username)
	if err := c.store.Put(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Get returns a snapshot of a session without locking it.
func (c *Controller) Get(ctx context.Context, id uuid.UUID) (*State, error) {
	return c.store.Get(ctx, id)
}

// Do runs fn against the session's state under the session's lock and saves
// the result. The state is saved even when fn fails.
func (c *Controller) Do(ctx context.Context, id uuid.UUID, fn func(*State) error) (*State, error) {
	unlock := c.lock(id)
	defer unlock()

	s, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	fnErr := fn(s)
	if err := c.store.Put(ctx, s); err != nil {
		return nil, err
	}
	return s, fnErr
}

// Delete ends a session.
func (c *Controller) Delete(ctx context.Context, id uuid.UUID) error {
	unlock := c.lock(id)
	defer unlock()
	return c.store.Delete(ctx, id)
}

func (c *Controller) lock(id uuid.UUID) func() {
	c.mu.Lock()
	l, ok := c.locks[id]
	if !ok {
		l = &sessionLock{}
		c.locks[id] = l
	}
	l.refs++
	c.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		c.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(c.locks, id)
		}
		c.mu.Unlock()
	}
}
