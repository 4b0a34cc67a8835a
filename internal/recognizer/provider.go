package recognizer

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/kozaktomas/facecloak/internal/logging"
)

// InitFunc builds the shared orchestrator.
type InitFunc func(ctx context.Context) (*Orchestrator, error)

// Provider lazily creates one shared Orchestrator. The first Get starts the
// initialisation; concurrent and later callers wait on the same call and get
// the same result, including a failure.
type Provider struct {
	init InitFunc
	log  zerolog.Logger

	mu   sync.Mutex
	call *initCall
}

type initCall struct {
	done chan struct{}
	orch *Orchestrator
	err  error
}

// NewProvider returns a provider that runs init at most once.
func NewProvider(init InitFunc) *Provider {
	return &Provider{
		init: init,
		log:  logging.Component("recognizer"),
	}
}

// Get returns the shared orchestrator, starting initialisation if needed.
// Cancelling ctx abandons the wait but not the initialisation itself.
func (p *Provider) Get(ctx context.Context) (*Orchestrator, error) {
	p.mu.Lock()
	c := p.call
	if c == nil {
		c = &initCall{done: make(chan struct{})}
		p.call = c
		go p.run(context.WithoutCancel(ctx), c)
	}
	p.mu.Unlock()

	select {
	case <-c.done:
		return c.orch, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Provider) run(ctx context.Context, c *initCall) {
	defer close(c.done)
	defer func() {
		if r := recover(); r != nil {
			c.orch, c.err = nil, fmt.Errorf("recognizer initialisation panicked: %v", r)
			p.log.Error().Err(c.err).Msg("recognizer initialisation failed")
		}
	}()

	c.orch, c.err = p.init(ctx)
	if c.err != nil {
		p.log.Error().Err(c.err).Msg("recognizer initialisation failed")
	}
}

// Close releases the orchestrator if initialisation has finished successfully.
func (p *Provider) Close() error {
	p.mu.Lock()
	c := p.call
	p.mu.Unlock()
	if c == nil {
		return nil
	}
	select {
	case <-c.done:
		if c.orch != nil {
			return c.orch.Close()
		}
	default:
	}
	return nil
}

// Status describes the initialisation without starting it: "idle",
// "initialising", "ready" or "failed".
func (p *Provider) Status() string {
	p.mu.Lock()
	c := p.call
	p.mu.Unlock()
	if c == nil {
		return "idle"
	}
	select {
	case <-c.done:
		if c.err != nil {
			return "failed"
		}
		return "ready"
	default:
		return "initialising"
	}
}
