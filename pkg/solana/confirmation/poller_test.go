package confirmation

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ybbus/jsonrpc"

	"github.com/code-payments/code-solana-client/pkg/solana"
	"github.com/code-payments/code-solana-client/pkg/testutil"
)

func testPollOverrides() *testOverrides {
	return &testOverrides{
		pollInterval:        5 * time.Millisecond,
		pollBackoffCap:      10 * time.Millisecond,
		pollBackoffCurve:    CurveConstant,
		pollTimeout:         time.Second,
		blockHeightInterval: 10 * time.Millisecond,
		defaultTimeout:      5 * time.Second,
		maxConcurrency:      4,
	}
}

func newPollerEnv(t *testing.T, overrides *testOverrides) (*Tracker, *testutil.RPCServer) {
	server := testutil.NewRPCServer(t)
	client := solana.New(server.URL(), solana.WithConfigProvider(solana.WithEnvConfigs()))
	poller := NewPoller(client, withManualTestOverrides(overrides))
	return NewTracker(poller, withManualTestOverrides(overrides)), server
}

func statusesResult(status interface{}) interface{} {
	return map[string]interface{}{
		"context": map[string]interface{}{"slot": 100},
		"value":   []interface{}{status},
	}
}

func rawStatus(slot uint64, confirmations interface{}, err interface{}, confirmationStatus string) map[string]interface{} {
	return map[string]interface{}{
		"slot":               slot,
		"confirmations":      confirmations,
		"err":                err,
		"confirmationStatus": confirmationStatus,
	}
}

// handleStatusSequence responds with each status in turn, repeating the
// last one once exhausted.
func handleStatusSequence(server *testutil.RPCServer, statuses ...interface{}) *int64 {
	var count int64
	server.Handle(solana.MethodGetSignatureStatuses, func(_ []json.RawMessage) (interface{}, *jsonrpc.RPCError) {
		i := int(atomic.AddInt64(&count, 1)) - 1
		if i >= len(statuses) {
			i = len(statuses) - 1
		}
		if rpcErr, ok := statuses[i].(*jsonrpc.RPCError); ok {
			return nil, rpcErr
		}
		return statusesResult(statuses[i]), nil
	})
	return &count
}

func TestPoller_Confirmed(t *testing.T) {
	tracker, server := newPollerEnv(t, testPollOverrides())
	server.HandleResult(solana.MethodGetBlockHeight, 50)

	sig := solana.Signature{1}
	count := handleStatusSequence(
		server,
		nil,
		rawStatus(5, 0, nil, "processed"),
		rawStatus(5, 1, nil, "confirmed"),
	)

	r, err := tracker.Track(context.Background(), sig, 100, solana.CommitmentConfirmed)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, r.Status)
	assert.EqualValues(t, 5, r.Slot)
	assert.GreaterOrEqual(t, atomic.LoadInt64(count), int64(3))

	requests := server.Requests(solana.MethodGetSignatureStatuses)
	require.NotEmpty(t, requests)

	var sigs []string
	require.NoError(t, json.Unmarshal(requests[0].Params[0], &sigs))
	assert.Equal(t, []string{sig.String()}, sigs)

	// Status and height are fetched in the same batch.
	assert.NotEmpty(t, server.Requests(solana.MethodGetBlockHeight))
}

func TestPoller_Failed(t *testing.T) {
	tracker, server := newPollerEnv(t, testPollOverrides())
	server.HandleResult(solana.MethodGetBlockHeight, 50)

	handleStatusSequence(
		server,
		rawStatus(7, 0, map[string]interface{}{
			"InstructionError": []interface{}{1, map[string]interface{}{"Custom": 6001}},
		}, "processed"),
	)

	r, err := tracker.Track(context.Background(), solana.Signature{1}, 100, solana.CommitmentFinalized)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, r.Status)
	require.NotNil(t, r.Err)
	assert.Equal(t, solana.TransactionErrorInstructionError, r.Err.Key)

	var custom solana.CustomError
	require.True(t, errors.As(r.Err, &custom))
	assert.EqualValues(t, 6001, custom)
	assert.Equal(t, 1, r.Err.Instruction.Index)
}

func TestPoller_Expired(t *testing.T) {
	tracker, server := newPollerEnv(t, testPollOverrides())
	handleStatusSequence(server, nil)

	var height int64 = 98
	server.Handle(solana.MethodGetBlockHeight, func(_ []json.RawMessage) (interface{}, *jsonrpc.RPCError) {
		return atomic.AddInt64(&height, 1), nil
	})

	r, err := tracker.Track(context.Background(), solana.Signature{1}, 100, solana.CommitmentConfirmed)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, r.Status)
	assert.Greater(t, atomic.LoadInt64(&height), int64(100))
}

func TestPoller_NotExpiredOnceLanded(t *testing.T) {
	tracker, server := newPollerEnv(t, testPollOverrides())
	server.HandleResult(solana.MethodGetBlockHeight, 500)

	handleStatusSequence(
		server,
		rawStatus(5, 0, nil, "processed"),
		rawStatus(5, 0, nil, "processed"),
		rawStatus(5, 0, nil, "processed"),
		rawStatus(5, nil, nil, "finalized"),
	)

	r, err := tracker.Track(context.Background(), solana.Signature{1}, 100, solana.CommitmentFinalized)
	require.NoError(t, err)
	assert.Equal(t, StatusFinalized, r.Status)
}

func TestPoller_PollErrorsKeepPolling(t *testing.T) {
	tracker, server := newPollerEnv(t, testPollOverrides())

	handleStatusSequence(
		server,
		&jsonrpc.RPCError{Code: -32005, Message: "Node is behind"},
		&jsonrpc.RPCError{Code: -32005, Message: "Node is behind"},
		rawStatus(5, 1, nil, "confirmed"),
	)

	// A missing block height does not prevent status updates.
	server.HandleError(solana.MethodGetBlockHeight, -32005, "Node is behind", nil)

	r, err := tracker.Track(context.Background(), solana.Signature{1}, 100, solana.CommitmentConfirmed)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, r.Status)
}

func TestPoller_PollLimit(t *testing.T) {
	overrides := testPollOverrides()
	overrides.pollLimit = 3

	tracker, server := newPollerEnv(t, overrides)
	server.HandleResult(solana.MethodGetBlockHeight, 50)
	count := handleStatusSequence(server, nil)

	r, err := tracker.Track(context.Background(), solana.Signature{1}, 100, solana.CommitmentConfirmed)
	assert.True(t, errors.Is(err, ErrPollLimitReached))
	assert.Equal(t, StatusPending, r.Status)
	assert.EqualValues(t, 3, atomic.LoadInt64(count))
}

func TestPoller_Timeout(t *testing.T) {
	tracker, server := newPollerEnv(t, testPollOverrides())
	server.HandleResult(solana.MethodGetBlockHeight, 50)
	handleStatusSequence(server, rawStatus(5, 0, nil, "processed"))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	r, err := tracker.Track(ctx, solana.Signature{1}, 100, solana.CommitmentFinalized)
	assert.Equal(t, ErrTimeout, err)
	assert.Equal(t, StatusProcessed, r.Status)
}

func TestPollBackoff(t *testing.T) {
	for _, tc := range []struct {
		curve    string
		expected []time.Duration
	}{
		{CurveConstant, []time.Duration{10, 10, 10, 10}},
		{CurveLinear, []time.Duration{10, 20, 30, 40}},
		{CurveExponential, []time.Duration{10, 20, 40, 80}},
		{"unknown", []time.Duration{10, 10, 10, 10}},
	} {
		c := withManualTestOverrides(&testOverrides{
			pollInterval:     10,
			pollBackoffCurve: tc.curve,
		})()

		strategy := pollBackoff(context.Background(), c)
		for i, expected := range tc.expected {
			assert.Equal(t, expected, strategy(uint(i+1)), "curve %s attempt %d", tc.curve, i+1)
		}
	}
}
