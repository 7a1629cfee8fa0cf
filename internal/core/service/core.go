package service

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rl1809/split-market/internal/port"
)

const (
	defaultSagaTimeout = 2 * time.Minute
	defaultMaxAttempts = 3
)

type Options struct {
	// SagaTimeout is how long a dispatched request may stay unanswered before the reconciler acts
	SagaTimeout time.Duration
	// MaxAttempts bounds dispatches per saga, the first one included
	MaxAttempts int
	Clock       func() time.Time
	Logger      logrus.FieldLogger
}

// core is the state shared by every component. Calls are serialized through
// mu so that each inbound operation applies as one unit, while dispatches to
// the token service happen outside the lock.
type core struct {
	mu          sync.Mutex
	store       port.Store
	tokens      port.TokenService
	guard       port.CallbackGuard
	now         func() time.Time
	log         logrus.FieldLogger
	sagaTimeout time.Duration
	maxAttempts int
}

func newCore(store port.Store, tokens port.TokenService, guard port.CallbackGuard, opts Options) *core {
	c := &core{
		store:       store,
		tokens:      tokens,
		guard:       guard,
		now:         opts.Clock,
		log:         opts.Logger,
		sagaTimeout: opts.SagaTimeout,
		maxAttempts: opts.MaxAttempts,
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.log == nil {
		c.log = logrus.StandardLogger()
	}
	if c.sagaTimeout <= 0 {
		c.sagaTimeout = defaultSagaTimeout
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = defaultMaxAttempts
	}
	return c
}

func (c *core) atomically(ctx context.Context, fn func(tx port.Tx) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Atomically(ctx, fn)
}
