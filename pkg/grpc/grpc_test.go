package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/search-query-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/pkg/logger"
)

type echoParams struct {
	Value string `json:"value"`
}

func startServer(t *testing.T) *Server {
	t.Helper()
	s := NewServer()
	s.Register("Echo.Call", func(ctx context.Context, req json.RawMessage) (any, error) {
		var p echoParams
		if err := json.Unmarshal(req, &p); err != nil {
			return nil, err
		}
		return echoParams{Value: p.Value + "/" + logger.RequestID(ctx)}, nil
	})
	s.Register("Echo.Fail", func(ctx context.Context, req json.RawMessage) (any, error) {
		return nil, errors.New("bad input")
	})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go s.ServeListener(ln)
	t.Cleanup(s.Stop)
	return s
}

func TestClientServerRoundTrip(t *testing.T) {
	s := startServer(t)
	c := NewClient(s.Addr().String())
	defer c.Close()

	ctx := logger.WithRequestID(context.Background(), "req-1")
	var out echoParams
	require.NoError(t, c.Call(ctx, "Echo.Call", echoParams{Value: "hi"}, &out))
	assert.Equal(t, "hi/req-1", out.Value)

	err := c.Call(ctx, "Echo.Fail", echoParams{}, nil)
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "bad input", remote.Message)

	err = c.Call(ctx, "Nope.Missing", nil, nil)
	assert.ErrorContains(t, err, "unknown method")
	assert.Equal(t, 2, s.MethodCount())
}

type countingCaller struct {
	calls atomic.Int64
	err   error
	value string
}

func (c *countingCaller) Call(ctx context.Context, method string, params any, result any) error {
	c.calls.Add(1)
	if c.err != nil {
		return c.err
	}
	result.(*echoParams).Value = c.value
	return nil
}

func TestBroadcastCollectsInMachineOrder(t *testing.T) {
	peers := []*Peer{
		{MachineID: 0, Caller: &countingCaller{value: "a"}},
		{MachineID: 1, Caller: &countingCaller{value: "b"}},
	}
	f := NewFanOut(peers, FanOutConfig{Timeout: time.Second, RetryAttempts: 1}, nil)
	out := make([]echoParams, f.Peers())
	err := f.Broadcast(context.Background(), "Echo.Call", nil, func(i int) any { return &out[i] })
	require.NoError(t, err)
	assert.Equal(t, []echoParams{{Value: "a"}, {Value: "b"}}, out)
}

func TestBroadcastFailsWhenAPeerFails(t *testing.T) {
	bad := &countingCaller{err: errors.New("connection reset")}
	peers := []*Peer{
		{MachineID: 0, Caller: &countingCaller{value: "a"}},
		{MachineID: 1, Caller: bad},
	}
	f := NewFanOut(peers, FanOutConfig{Timeout: time.Second, RetryAttempts: 2}, nil)
	out := make([]echoParams, 2)
	err := f.Broadcast(context.Background(), "Echo.Call", nil, func(i int) any { return &out[i] })
	require.Error(t, err)
	assert.True(t, apperrors.IsUnavailable(err))
	assert.Equal(t, int64(2), bad.calls.Load())
}

func TestRemoteErrorsAreNotRetried(t *testing.T) {
	bad := &countingCaller{err: &RemoteError{Method: "Echo.Call", Message: "bad input"}}
	f := NewFanOut([]*Peer{{MachineID: 3, Caller: bad}}, FanOutConfig{RetryAttempts: 3, BreakerFailure: 1}, nil)
	for range 3 {
		err := f.Call(context.Background(), 3, "Echo.Call", nil, &echoParams{})
		require.Error(t, err)
	}
	assert.Equal(t, int64(3), bad.calls.Load())
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	bad := &countingCaller{err: errors.New("connection refused")}
	f := NewFanOut([]*Peer{{MachineID: 0, Caller: bad}}, FanOutConfig{RetryAttempts: 1, BreakerFailure: 2, BreakerReset: time.Hour}, nil)
	for range 4 {
		_ = f.Call(context.Background(), 0, "Echo.Call", nil, &echoParams{})
	}
	assert.Equal(t, int64(2), bad.calls.Load())
}

func TestCallUnknownMachine(t *testing.T) {
	f := NewFanOut(nil, FanOutConfig{}, nil)
	err := f.Call(context.Background(), 9, "Echo.Call", nil, nil)
	assert.ErrorIs(t, err, apperrors.ErrPeerUnavailable)
}
