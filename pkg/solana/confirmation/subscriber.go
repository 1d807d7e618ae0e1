package confirmation

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/ybbus/jsonrpc"
	"golang.org/x/sync/errgroup"

	"github.com/code-payments/code-solana-client/pkg/solana"
)

const (
	methodSignatureSubscribe    = "signatureSubscribe"
	methodSignatureNotification = "signatureNotification"

	subscribeRequestID = 1
)

// Subscriber observes signatures with a signatureSubscribe WebSocket
// subscription. The node pushes a single notification once the target
// commitment is reached or the transaction fails. A slower status and block
// height poll runs alongside it to detect expiry.
//
// Reference: https://solana.com/docs/rpc/websocket/signaturesubscribe
type Subscriber struct {
	log      *logrus.Entry
	conf     *conf
	endpoint string
	poller   *Poller
	dialer   *websocket.Dialer
}

// NewSubscriber returns an Observer subscribing through the WebSocket
// endpoint, and polling through client.
func NewSubscriber(endpoint string, client solana.Client, configProvider ConfigProvider) *Subscriber {
	c := configProvider()
	return &Subscriber{
		log:      logrus.StandardLogger().WithField("type", "solana/confirmation/subscriber"),
		conf:     c,
		endpoint: endpoint,
		poller: &Poller{
			log:    logrus.StandardLogger().WithField("type", "solana/confirmation/poller"),
			conf:   c,
			client: client,
		},
		dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: c.pollTimeout.Get(context.Background()),
		},
	}
}

type wsResponse struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      *int              `json:"id"`
	Result  json.RawMessage   `json:"result"`
	Error   *jsonrpc.RPCError `json:"error"`
	Method  string            `json:"method"`
	Params  *struct {
		Result struct {
			Context struct {
				Slot uint64 `json:"slot"`
			} `json:"context"`
			Value json.RawMessage `json:"value"`
		} `json:"result"`
		Subscription int `json:"subscription"`
	} `json:"params"`
}

// Observe implements Observer.Observe.
func (s *Subscriber) Observe(ctx context.Context, sig solana.Signature, target solana.Commitment, observations chan<- Observation) error {
	target = normalizeTarget(target)

	log := s.log.WithFields(logrus.Fields{
		"method":    "Observe",
		"signature": sig.String(),
	})

	conn, _, err := s.dialer.DialContext(ctx, s.endpoint, nil)
	if err != nil {
		return errors.Wrap(err, "failed to dial subscription endpoint")
	}
	defer conn.Close()

	err = conn.WriteJSON(jsonrpc.RPCRequest{
		JSONRPC: "2.0",
		ID:      subscribeRequestID,
		Method:  methodSignatureSubscribe,
		Params: []interface{}{
			sig.String(),
			map[string]interface{}{"commitment": target.Commitment},
		},
	})
	if err != nil {
		return errors.Wrap(err, "failed to subscribe")
	}

	g, ctx := errgroup.WithContext(ctx)

	// Unblocks the reader once observation stops.
	g.Go(func() error {
		<-ctx.Done()
		return conn.Close()
	})

	g.Go(func() error {
		for {
			var msg wsResponse
			if err := conn.ReadJSON(&msg); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return errors.Wrap(err, "subscription connection failed")
			}

			if msg.ID != nil {
				if msg.Error != nil {
					return solana.NewRPCError(methodSignatureSubscribe, msg.Error)
				}
				log.WithField("subscription", string(msg.Result)).Debug("subscribed")
				continue
			}

			if msg.Method != methodSignatureNotification || msg.Params == nil {
				continue
			}

			o, ok, err := notificationObservation(msg, target)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}

			if !send(ctx, observations, o) {
				return ctx.Err()
			}
		}
	})

	g.Go(func() error {
		interval := s.conf.blockHeightInterval.Get(ctx)
		if interval <= 0 {
			interval = defaultBlockHeightInterval
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}

			o, err := s.poller.poll(ctx, sig)
			if err != nil {
				log.WithError(err).Debug("poll failed")
				continue
			}

			if !send(ctx, observations, o) {
				return ctx.Err()
			}
		}
	})

	return g.Wait()
}

// notificationObservation converts a signature notification. The value is
// either an object carrying the execution result, or the string
// "receivedSignature", which carries no status.
func notificationObservation(msg wsResponse, target solana.Commitment) (Observation, bool, error) {
	value := bytes.TrimSpace(msg.Params.Result.Value)
	if len(value) == 0 || value[0] != '{' {
		return Observation{}, false, nil
	}

	d := json.NewDecoder(bytes.NewReader(value))
	d.UseNumber()

	var result map[string]interface{}
	if err := d.Decode(&result); err != nil {
		return Observation{}, false, errors.Wrap(err, "invalid signature notification")
	}

	txErr, err := solana.ParseTransactionError(result["err"])
	if err != nil {
		return Observation{}, false, errors.Wrap(err, "invalid signature notification")
	}

	status := &solana.SignatureStatus{
		Slot:               msg.Params.Result.Context.Slot,
		Err:                txErr,
		ConfirmationStatus: target.Commitment,
	}

	// Only rooted transactions have no confirmation count.
	if target != solana.CommitmentFinalized {
		var zero uint64
		status.Confirmations = &zero
	}

	return Observation{Status: status}, true, nil
}
