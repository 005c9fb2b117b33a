package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"railhaul/internal/domain"
)

// Connector opens and logs in one helper connection.
type Connector func(ctx context.Context) (*Client, error)

// Dialer returns a Connector that dials addr and logs in with cred.
func Dialer(addr string, timeout time.Duration, cred Credentials) Connector {
	return func(ctx context.Context) (*Client, error) {
		c, err := Dial(ctx, addr, timeout)
		if err != nil {
			return nil, err
		}
		if _, err := c.Login(ctx, cred); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("login helper: %w", err)
		}
		return c, nil
	}
}

// Pool keeps one helper connection per move slot so moves for different
// trains go out in parallel. Slots are opened on first use and reopened
// after a transport failure.
type Pool struct {
	connect Connector
	logger  *log.Logger

	mu    sync.Mutex
	slots []*slot
}

type slot struct {
	mu     sync.Mutex
	client *Client
}

func NewPool(connect Connector, logger *log.Logger) *Pool {
	if logger == nil {
		logger = log.Default()
	}
	return &Pool{connect: connect, logger: logger}
}

func (p *Pool) slot(i int) *slot {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.slots) <= i {
		p.slots = append(p.slots, &slot{})
	}
	return p.slots[i]
}

// Size reports how many slots have been allocated.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots)
}

func (p *Pool) Move(ctx context.Context, i int, mv domain.Move) error {
	if i < 0 {
		return fmt.Errorf("invalid pool slot %d", i)
	}
	s := p.slot(i)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		c, err := p.connect(ctx)
		if err != nil {
			return fmt.Errorf("open pool slot %d: %w", i, err)
		}
		s.client = c
	}

	err := s.client.Move(ctx, mv)
	if err == nil {
		return nil
	}
	var rerr *ResultError
	if !errors.As(err, &rerr) {
		// Transport is in an unknown state; drop it so the next use redials.
		p.logger.Printf("pool slot %d reset after error: %v", i, err)
		_ = s.client.Close()
		s.client = nil
	}
	return err
}

// Close logs out and closes every open slot.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	slots := p.slots
	p.slots = nil
	p.mu.Unlock()

	var errs []error
	for _, s := range slots {
		s.mu.Lock()
		if s.client != nil {
			if err := s.client.Logout(ctx); err != nil && !errors.Is(err, net.ErrClosed) {
				errs = append(errs, err)
			}
			if err := s.client.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				errs = append(errs, err)
			}
			s.client = nil
		}
		s.mu.Unlock()
	}
	return errors.Join(errs...)
}
