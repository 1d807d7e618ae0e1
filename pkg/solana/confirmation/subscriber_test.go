package confirmation

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/code-solana-client/pkg/solana"
	"github.com/code-payments/code-solana-client/pkg/testutil"
)

func newSubscriberEnv(t *testing.T, overrides *testOverrides) (*Tracker, *testutil.RPCServer) {
	server := testutil.NewRPCServer(t)
	client := solana.New(server.URL(), solana.WithConfigProvider(solana.WithEnvConfigs()))
	subscriber := NewSubscriber(server.WebSocketURL(), client, withManualTestOverrides(overrides))
	return NewTracker(subscriber, withManualTestOverrides(overrides)), server
}

func notification(slot uint64, value interface{}) map[string]interface{} {
	return map[string]interface{}{
		"context": map[string]interface{}{"slot": slot},
		"value":   value,
	}
}

func requireConnectionsClosed(t *testing.T, server *testutil.RPCServer) {
	require.NoError(t, testutil.WaitForTimeout(time.Second, 5*time.Millisecond, func() bool {
		return server.OpenConnections() == 0
	}))
}

func TestSubscriber_Confirmed(t *testing.T) {
	overrides := testPollOverrides()
	overrides.blockHeightInterval = time.Hour

	tracker, server := newSubscriberEnv(t, overrides)

	sig := solana.Signature{1}
	server.HandleSubscription("signatureSubscribe", func(_ []json.RawMessage) []interface{} {
		return []interface{}{
			notification(10, "receivedSignature"),
			10 * time.Millisecond,
			notification(12, map[string]interface{}{"err": nil}),
		}
	})

	r, err := tracker.Track(context.Background(), sig, 100, solana.CommitmentConfirmed)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, r.Status)
	assert.EqualValues(t, 12, r.Slot)

	requests := server.Requests("signatureSubscribe")
	require.Len(t, requests, 1)
	require.Len(t, requests[0].Params, 2)

	var subscribed string
	require.NoError(t, json.Unmarshal(requests[0].Params[0], &subscribed))
	assert.Equal(t, sig.String(), subscribed)

	var config map[string]string
	require.NoError(t, json.Unmarshal(requests[0].Params[1], &config))
	assert.Equal(t, "confirmed", config["commitment"])

	requireConnectionsClosed(t, server)
}

func TestSubscriber_Finalized(t *testing.T) {
	overrides := testPollOverrides()
	overrides.blockHeightInterval = time.Hour

	tracker, server := newSubscriberEnv(t, overrides)
	server.HandleSubscription("signatureSubscribe", func(_ []json.RawMessage) []interface{} {
		return []interface{}{notification(20, map[string]interface{}{"err": nil})}
	})

	r, err := tracker.Track(context.Background(), solana.Signature{1}, 100, solana.CommitmentFinalized)
	require.NoError(t, err)
	assert.Equal(t, StatusFinalized, r.Status)
}

func TestSubscriber_EmptyTargetMeansFinalized(t *testing.T) {
	overrides := testPollOverrides()
	overrides.blockHeightInterval = time.Hour

	tracker, server := newSubscriberEnv(t, overrides)
	server.HandleSubscription("signatureSubscribe", func(_ []json.RawMessage) []interface{} {
		return []interface{}{notification(20, map[string]interface{}{"err": nil})}
	})

	r, err := tracker.Track(context.Background(), solana.Signature{1}, 100, solana.Commitment{})
	require.NoError(t, err)
	assert.Equal(t, StatusFinalized, r.Status)

	requests := server.Requests("signatureSubscribe")
	require.Len(t, requests, 1)

	var config map[string]string
	require.NoError(t, json.Unmarshal(requests[0].Params[1], &config))
	assert.Equal(t, "finalized", config["commitment"])

	requireConnectionsClosed(t, server)
}

func TestSubscriber_Failed(t *testing.T) {
	overrides := testPollOverrides()
	overrides.blockHeightInterval = time.Hour

	tracker, server := newSubscriberEnv(t, overrides)
	server.HandleSubscription("signatureSubscribe", func(_ []json.RawMessage) []interface{} {
		return []interface{}{
			notification(12, map[string]interface{}{
				"err": map[string]interface{}{
					"InstructionError": []interface{}{0, map[string]interface{}{"Custom": 1}},
				},
			}),
		}
	})

	r, err := tracker.Track(context.Background(), solana.Signature{1}, 100, solana.CommitmentConfirmed)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, r.Status)

	var custom solana.CustomError
	require.True(t, errors.As(r.Err, &custom))
	assert.EqualValues(t, 1, custom)

	requireConnectionsClosed(t, server)
}

func TestSubscriber_ExpiredByPoll(t *testing.T) {
	tracker, server := newSubscriberEnv(t, testPollOverrides())

	// The subscription never notifies.
	server.HandleSubscription("signatureSubscribe", func(_ []json.RawMessage) []interface{} {
		return nil
	})
	server.HandleResult(solana.MethodGetSignatureStatuses, statusesResult(nil))
	server.HandleResult(solana.MethodGetBlockHeight, 101)

	r, err := tracker.Track(context.Background(), solana.Signature{1}, 100, solana.CommitmentConfirmed)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, r.Status)

	requireConnectionsClosed(t, server)
}

func TestSubscriber_Timeout(t *testing.T) {
	tracker, server := newSubscriberEnv(t, testPollOverrides())

	server.HandleSubscription("signatureSubscribe", func(_ []json.RawMessage) []interface{} {
		return nil
	})
	server.HandleResult(solana.MethodGetSignatureStatuses, statusesResult(nil))
	server.HandleResult(solana.MethodGetBlockHeight, 50)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	r, err := tracker.Track(ctx, solana.Signature{1}, 100, solana.CommitmentConfirmed)
	assert.Equal(t, ErrTimeout, err)
	require.NotNil(t, r)
	assert.Equal(t, StatusPending, r.Status)

	require.Len(t, server.Requests("signatureSubscribe"), 1)
	requireConnectionsClosed(t, server)
}

func TestSubscriber_StatusByPoll(t *testing.T) {
	tracker, server := newSubscriberEnv(t, testPollOverrides())

	server.HandleSubscription("signatureSubscribe", func(_ []json.RawMessage) []interface{} {
		return nil
	})
	server.HandleResult(solana.MethodGetSignatureStatuses, statusesResult(rawStatus(9, 1, nil, "confirmed")))
	server.HandleResult(solana.MethodGetBlockHeight, 101)

	// Landed before expiry, so the height is irrelevant.
	r, err := tracker.Track(context.Background(), solana.Signature{1}, 100, solana.CommitmentConfirmed)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, r.Status)
	assert.EqualValues(t, 9, r.Slot)
}

func TestSubscriber_SubscribeError(t *testing.T) {
	overrides := testPollOverrides()
	overrides.blockHeightInterval = time.Hour

	tracker, server := newSubscriberEnv(t, overrides)

	_, err := tracker.Track(context.Background(), solana.Signature{1}, 100, solana.CommitmentConfirmed)
	require.Error(t, err)

	var rpcErr *solana.RPCError
	require.True(t, errors.As(err, &rpcErr))

	requireConnectionsClosed(t, server)
}

func TestSubscriber_DialError(t *testing.T) {
	defer testutil.DisableLogging()()

	overrides := testPollOverrides()
	subscriber := NewSubscriber("ws://127.0.0.1:1", solana.New("http://127.0.0.1:1"), withManualTestOverrides(overrides))
	tracker := NewTracker(subscriber, withManualTestOverrides(overrides))

	_, err := tracker.Track(context.Background(), solana.Signature{1}, 100, solana.CommitmentConfirmed)
	assert.Error(t, err)
	assert.NotEqual(t, ErrTimeout, err)
}
