package solana

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/ybbus/jsonrpc"
	xrate "golang.org/x/time/rate"

	"github.com/code-payments/code-solana-client/pkg/metrics"
	"github.com/code-payments/code-solana-client/pkg/rate"
	"github.com/code-payments/code-solana-client/pkg/retry"
	"github.com/code-payments/code-solana-client/pkg/retry/backoff"
)

const (
	metricsStructName = "solana.client"

	// MaxSignatureStatuses is the most signatures getSignatureStatuses accepts.
	MaxSignatureStatuses = 256

	// MaxMultipleAccounts is the most accounts getMultipleAccounts accepts.
	MaxMultipleAccounts = 100
)

var (
	ErrNoAccountInfo     = errors.New("no account info")
	ErrSignatureNotFound = errors.New("signature not found")
	ErrNoSignatures      = errors.New("transaction has no signatures")
)

// SubmitOptions are sent verbatim with sendTransaction.
type SubmitOptions struct {
	SkipPreflight       bool
	PreflightCommitment Commitment

	// MaxRetries is the number of times the node retries forwarding the
	// transaction to the leader. Nil leaves it to the node.
	MaxRetries *uint
}

// Client provides an interaction with the Solana JSON RPC API.
//
// Reference: https://solana.com/docs/rpc/http
type Client interface {
	GetAccountInfo(ctx context.Context, account ed25519.PublicKey, commitment Commitment) (*AccountInfo, error)
	GetMultipleAccounts(ctx context.Context, commitment Commitment, accounts ...ed25519.PublicKey) ([]*AccountInfo, error)
	GetBalance(ctx context.Context, account ed25519.PublicKey, commitment Commitment) (uint64, error)
	GetBlockHeight(ctx context.Context, commitment Commitment) (uint64, error)
	GetSlot(ctx context.Context, commitment Commitment) (uint64, error)
	GetLatestBlockhash(ctx context.Context, commitment Commitment) (LatestBlockhash, error)
	IsBlockhashValid(ctx context.Context, blockhash Blockhash, commitment Commitment) (bool, error)
	GetFeeForMessage(ctx context.Context, message Message, commitment Commitment) (*uint64, error)
	GetMinimumBalanceForRentExemption(ctx context.Context, size uint64) (uint64, error)
	GetSignatureStatuses(ctx context.Context, signatures ...Signature) ([]*SignatureStatus, error)
	GetTransaction(ctx context.Context, signature Signature, commitment Commitment) (*ConfirmedTransaction, error)
	RequestAirdrop(ctx context.Context, account ed25519.PublicKey, lamports uint64, commitment Commitment) (Signature, error)
	SubmitTransaction(ctx context.Context, txn Transaction, opts SubmitOptions) (Signature, error)

	// Batch sends several calls in one request. Per-call failures are
	// reported in the results, and only failures of the batch as a whole
	// are returned as an error.
	Batch(ctx context.Context, calls ...Call) ([]CallResult, error)
}

// Option configures a client.
type Option func(*client)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *client) {
		c.httpClient = httpClient
	}
}

// WithHeaders adds headers to every request, such as provider API keys.
func WithHeaders(headers map[string]string) Option {
	return func(c *client) {
		c.headers = headers
	}
}

// WithRetrier retries calls that fail with a retriable error. By default,
// calls are attempted once and failures are returned to the caller.
func WithRetrier(retrier retry.Retrier) Option {
	return func(c *client) {
		c.retrier = retrier
	}
}

// WithRateLimiter limits calls per method.
func WithRateLimiter(limiter rate.Limiter) Option {
	return func(c *client) {
		c.limiter = limiter
	}
}

// WithConfigProvider sets where client configuration is pulled from.
func WithConfigProvider(configProvider ConfigProvider) Option {
	return func(c *client) {
		c.conf = configProvider()
	}
}

// DefaultRetrier retries rate limited and unavailable responses with a
// jittered exponential backoff.
func DefaultRetrier() retry.Retrier {
	return retry.NewRetrier(
		retry.RetriableIf(IsRetriable),
		retry.Limit(3),
		retry.BackoffWithJitter(backoff.BinaryExponential(time.Second), 10*time.Second, 0.1),
	)
}

type cachedBlockhash struct {
	value     LatestBlockhash
	fetchedAt time.Time
}

type client struct {
	log        *logrus.Entry
	conf       *conf
	rpc        jsonrpc.RPCClient
	httpClient *http.Client
	headers    map[string]string
	retrier    retry.Retrier
	limiter    rate.Limiter

	blockMu     sync.RWMutex
	blockhashes map[string]cachedBlockhash
}

// New returns a client using the specified endpoint.
func New(endpoint string, opts ...Option) Client {
	c := &client{
		log:         logrus.StandardLogger().WithField("type", "solana/client"),
		retrier:     retry.NewRetrier(retry.Limit(1)),
		blockhashes: make(map[string]cachedBlockhash),
	}

	for _, o := range opts {
		o(c)
	}

	if c.conf == nil {
		c.conf = WithEnvConfigs()()
	}

	ctx := context.Background()
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.conf.httpTimeout.Get(ctx)}
	}
	if c.limiter == nil {
		if perSecond := c.conf.requestsPerSecond.Get(ctx); perSecond > 0 {
			c.limiter = rate.NewLocalRateLimiter(xrate.Limit(perSecond))
		} else {
			c.limiter = &rate.NoLimiter{}
		}
	}

	c.rpc = jsonrpc.NewClientWithOpts(endpoint, &jsonrpc.RPCClientOpts{
		HTTPClient:    c.httpClient,
		CustomHeaders: c.headers,
	})

	return c
}

// call performs a single call and decodes its result. The underlying RPC
// client is not context aware, so an abandoned request runs on until the
// HTTP client times out, but its result is discarded.
func (c *client) call(ctx context.Context, method string, params ...interface{}) (interface{}, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, method)
	defer tracer.End()

	var result interface{}
	_, err := c.retrier.Retry(ctx, func() error {
		if err := c.limiter.Wait(ctx, method); err != nil {
			return err
		}

		request := &jsonrpc.RPCRequest{
			JSONRPC: jsonrpcVersion,
			Method:  method,
		}
		if len(params) > 0 {
			request.Params = params
		}

		resp, err := await(ctx, func() (*jsonrpc.RPCResponse, error) {
			return c.rpc.CallRaw(request)
		})
		if err != nil {
			return c.classify(method, err)
		}

		result, err = DecodeResult(method, resp)
		return err
	})
	if err != nil {
		tracer.OnError(err)
		c.log.WithError(err).WithField("method", method).Debug("rpc call failed")
		return nil, err
	}

	return result, nil
}

func (c *client) Batch(ctx context.Context, calls ...Call) ([]CallResult, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "Batch")
	tracer.AddAttribute("calls", len(calls))
	defer tracer.End()

	requests, _, err := EncodeBatch(calls)
	if err != nil {
		return nil, err
	}

	var results []CallResult
	_, err = c.retrier.Retry(ctx, func() error {
		if err := c.limiter.Wait(ctx, "batch"); err != nil {
			return err
		}

		responses, err := await(ctx, func() (jsonrpc.RPCResponses, error) {
			return c.rpc.CallBatchRaw(requests)
		})
		if err != nil {
			return c.classify("batch", err)
		}

		results, err = DecodeBatch(calls, responses)
		return err
	})
	if err != nil {
		tracer.OnError(err)
		c.log.WithError(err).WithField("method", "batch").Debug("rpc batch failed")
		return nil, err
	}

	return results, nil
}

func (c *client) classify(method string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		return NewRPCError(method, rpcErr)
	}

	var httpErr *jsonrpc.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.Code == RPCCodeTooManyRequests {
			c.log.WithField("method", method).Warn("rate limited")
		}
		return &TransportError{Method: method, StatusCode: httpErr.Code, Err: err}
	}

	return &TransportError{Method: method, Err: err}
}

func (c *client) GetAccountInfo(ctx context.Context, account ed25519.PublicKey, commitment Commitment) (*AccountInfo, error) {
	result, err := c.call(ctx, MethodGetAccountInfo, base58.Encode(account), encodingConfig(commitment))
	if err != nil {
		return nil, err
	}

	info := result.(*AccountInfo)
	if info == nil {
		return nil, ErrNoAccountInfo
	}
	return info, nil
}

func (c *client) GetMultipleAccounts(ctx context.Context, commitment Commitment, accounts ...ed25519.PublicKey) ([]*AccountInfo, error) {
	if len(accounts) == 0 {
		return nil, nil
	}
	if len(accounts) > MaxMultipleAccounts {
		return nil, errors.Errorf("too many accounts: %d > %d", len(accounts), MaxMultipleAccounts)
	}

	keys := make([]string, len(accounts))
	for i, a := range accounts {
		keys[i] = base58.Encode(a)
	}

	result, err := c.call(ctx, MethodGetMultipleAccounts, keys, encodingConfig(commitment))
	if err != nil {
		return nil, err
	}
	return result.([]*AccountInfo), nil
}

func (c *client) GetBalance(ctx context.Context, account ed25519.PublicKey, commitment Commitment) (uint64, error) {
	result, err := c.call(ctx, MethodGetBalance, base58.Encode(account), commitment)
	if err != nil {
		return 0, err
	}
	return result.(uint64), nil
}

func (c *client) GetBlockHeight(ctx context.Context, commitment Commitment) (uint64, error) {
	result, err := c.call(ctx, MethodGetBlockHeight, commitment)
	if err != nil {
		return 0, err
	}
	return result.(uint64), nil
}

func (c *client) GetSlot(ctx context.Context, commitment Commitment) (uint64, error) {
	result, err := c.call(ctx, MethodGetSlot, commitment)
	if err != nil {
		return 0, err
	}
	return result.(uint64), nil
}

// GetLatestBlockhash returns a recent blockhash. Results are cached for a
// short, randomized window per commitment level.
func (c *client) GetLatestBlockhash(ctx context.Context, commitment Commitment) (LatestBlockhash, error) {
	// To avoid having thrashing around a similar periodic interval, we
	// randomize when we refresh our block hash.
	window := time.Duration(float64(c.conf.blockhashCacheWindow.Get(ctx)) * (0.8 + 0.4*rand.Float64()))

	c.blockMu.RLock()
	cached, ok := c.blockhashes[commitment.Commitment]
	c.blockMu.RUnlock()

	if ok && time.Since(cached.fetchedAt) < window {
		return cached.value, nil
	}

	result, err := c.call(ctx, MethodGetLatestBlockhash, commitment)
	if err != nil {
		return LatestBlockhash{}, err
	}

	latest := result.(LatestBlockhash)

	c.blockMu.Lock()
	c.blockhashes[commitment.Commitment] = cachedBlockhash{
		value:     latest,
		fetchedAt: time.Now(),
	}
	c.blockMu.Unlock()

	return latest, nil
}

func (c *client) IsBlockhashValid(ctx context.Context, blockhash Blockhash, commitment Commitment) (bool, error) {
	result, err := c.call(ctx, MethodIsBlockhashValid, blockhash.String(), commitment)
	if err != nil {
		return false, err
	}
	return result.(bool), nil
}

func (c *client) GetFeeForMessage(ctx context.Context, message Message, commitment Commitment) (*uint64, error) {
	result, err := c.call(ctx, MethodGetFeeForMessage, base64.StdEncoding.EncodeToString(message.Marshal()), commitment)
	if err != nil {
		return nil, err
	}
	return result.(*uint64), nil
}

func (c *client) GetMinimumBalanceForRentExemption(ctx context.Context, size uint64) (uint64, error) {
	result, err := c.call(ctx, MethodGetMinimumBalanceForRentExemption, size)
	if err != nil {
		return 0, err
	}
	return result.(uint64), nil
}

func (c *client) GetSignatureStatuses(ctx context.Context, signatures ...Signature) ([]*SignatureStatus, error) {
	if len(signatures) == 0 {
		return nil, nil
	}
	if len(signatures) > MaxSignatureStatuses {
		return nil, errors.Errorf("too many signatures: %d > %d", len(signatures), MaxSignatureStatuses)
	}

	encoded := make([]string, len(signatures))
	for i, s := range signatures {
		encoded[i] = s.String()
	}

	result, err := c.call(ctx, MethodGetSignatureStatuses, encoded)
	if err != nil {
		return nil, err
	}

	statuses := result.([]*SignatureStatus)
	if len(statuses) != len(signatures) {
		return nil, errors.Errorf("expected %d statuses, got %d", len(signatures), len(statuses))
	}
	return statuses, nil
}

func (c *client) GetTransaction(ctx context.Context, signature Signature, commitment Commitment) (*ConfirmedTransaction, error) {
	result, err := c.call(ctx, MethodGetTransaction, signature.String(), encodingConfig(commitment))
	if err != nil {
		return nil, err
	}

	txn := result.(*ConfirmedTransaction)
	if txn == nil {
		return nil, ErrSignatureNotFound
	}
	return txn, nil
}

func (c *client) RequestAirdrop(ctx context.Context, account ed25519.PublicKey, lamports uint64, commitment Commitment) (Signature, error) {
	result, err := c.call(ctx, MethodRequestAirdrop, base58.Encode(account), lamports, commitment)
	if err != nil {
		return Signature{}, err
	}

	sig := result.(Signature)
	if sig == (Signature{}) {
		return Signature{}, errors.New("empty signature returned")
	}
	return sig, nil
}

// SubmitTransaction sends a signed transaction. A preflight failure is
// returned as an *RPCError carrying the simulated TransactionError.
func (c *client) SubmitTransaction(ctx context.Context, txn Transaction, opts SubmitOptions) (Signature, error) {
	if len(txn.Signatures) == 0 {
		return Signature{}, ErrNoSignatures
	}

	config := struct {
		Encoding            string `json:"encoding"`
		SkipPreflight       bool   `json:"skipPreflight"`
		PreflightCommitment string `json:"preflightCommitment,omitempty"`
		MaxRetries          *uint  `json:"maxRetries,omitempty"`
	}{
		Encoding:            encodingBase64,
		SkipPreflight:       opts.SkipPreflight,
		PreflightCommitment: opts.PreflightCommitment.Commitment,
		MaxRetries:          opts.MaxRetries,
	}

	result, err := c.call(ctx, MethodSendTransaction, txn.ToBase64(), config)
	if err != nil {
		return txn.Signature(), err
	}

	sig := result.(Signature)
	if sig != txn.Signature() {
		c.log.WithFields(logrus.Fields{
			"expected": txn.Signature().String(),
			"actual":   sig.String(),
		}).Warn("node returned an unexpected signature")
	}

	return sig, nil
}

func encodingConfig(commitment Commitment) interface{} {
	return struct {
		Commitment string `json:"commitment,omitempty"`
		Encoding   string `json:"encoding"`
	}{
		Commitment: commitment.Commitment,
		Encoding:   encodingBase64,
	}
}

// await runs fn, returning early with ctx's error if ctx ends first.
func await[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	type result struct {
		value T
		err   error
	}

	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{value: v, err: err}
	}()

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case r := <-ch:
		return r.value, r.err
	}
}
