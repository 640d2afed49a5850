package grpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/Adithya-Monish-Kumar-K/search-query-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/pkg/resilience"
)

// Caller is one peer endpoint. *Client satisfies it.
type Caller interface {
	Call(ctx context.Context, method string, params any, result any) error
}

// Peer is a machine in the cluster, addressed by its machine id.
type Peer struct {
	MachineID int
	Caller    Caller
	breaker   *resilience.CircuitBreaker
}

type FanOutConfig struct {
	Timeout        time.Duration
	RetryAttempts  int
	BreakerFailure int
	BreakerReset   time.Duration
}

// FanOut calls peers in parallel. Every peer is guarded by its own circuit
// breaker and per-call timeout; transport errors are retried, handler errors
// are not.
type FanOut struct {
	peers   []*Peer
	cfg     FanOutConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewFanOut builds the transport over peers listed in machine order.
func NewFanOut(peers []*Peer, cfg FanOutConfig, m *metrics.Metrics) *FanOut {
	for _, p := range peers {
		name := metrics.PeerLabel(p.MachineID)
		p.breaker = resilience.NewCircuitBreaker(name, resilience.CircuitBreakerConfig{
			FailureThreshold: cfg.BreakerFailure,
			ResetTimeout:     cfg.BreakerReset,
			OnStateChange: func(name string, s resilience.State) {
				m.SetBreakerState(name, int(s))
			},
			IsFailure: isTransportError,
		})
		m.SetBreakerState(name, int(resilience.StateClosed))
	}
	return &FanOut{
		peers:   peers,
		cfg:     cfg,
		metrics: m,
		logger:  slog.Default().With("component", "fanout"),
	}
}

// Peers returns the number of machines the transport reaches.
func (f *FanOut) Peers() int { return len(f.peers) }

// Call invokes method on the peer with machineID.
func (f *FanOut) Call(ctx context.Context, machineID int, method string, params any, result any) error {
	for _, p := range f.peers {
		if p.MachineID == machineID {
			return f.call(ctx, p, method, params, result)
		}
	}
	return apperrors.Newf(apperrors.ErrPeerUnavailable, "fanout.call", "no peer with machine id %d", machineID)
}

// Broadcast calls method on every peer in parallel. newResult allocates the
// response value for the i-th peer. The first failure cancels the rest and is
// returned; results are only meaningful when err is nil.
func (f *FanOut) Broadcast(ctx context.Context, method string, params any, newResult func(i int) any) error {
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range f.peers {
		g.Go(func() error {
			return f.call(gctx, p, method, params, newResult(i))
		})
	}
	return g.Wait()
}

func (f *FanOut) call(ctx context.Context, p *Peer, method string, params any, result any) error {
	start := time.Now()
	err := p.breaker.Execute(func() error {
		return resilience.Retry(ctx, method, resilience.RetryConfig{
			MaxAttempts:  max(f.cfg.RetryAttempts, 1),
			InitialDelay: 20 * time.Millisecond,
			MaxDelay:     500 * time.Millisecond,
			ShouldRetry:  isTransportError,
		}, func() error {
			return resilience.WithTimeout(ctx, f.cfg.Timeout, method, func(ctx context.Context) error {
				return p.Caller.Call(ctx, method, params, result)
			})
		})
	})
	f.metrics.PeerCall(method, err, time.Since(start))
	if err != nil {
		f.logger.Warn("peer call failed",
			"peer", p.MachineID,
			"method", method,
			"error", err,
		)
		return fmt.Errorf("%w: machine %d: %w", apperrors.ErrPeerUnavailable, p.MachineID, err)
	}
	return nil
}

func isTransportError(err error) bool {
	var remote *RemoteError
	return !errors.As(err, &remote)
}
