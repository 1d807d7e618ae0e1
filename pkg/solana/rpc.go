package solana

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/ybbus/jsonrpc"
)

// JSON-RPC methods with a declared result shape.
//
// Reference: https://solana.com/docs/rpc/http
const (
	MethodGetAccountInfo                    = "getAccountInfo"
	MethodGetBalance                        = "getBalance"
	MethodGetBlockHeight                    = "getBlockHeight"
	MethodGetFeeForMessage                  = "getFeeForMessage"
	MethodGetLatestBlockhash                = "getLatestBlockhash"
	MethodGetMinimumBalanceForRentExemption = "getMinimumBalanceForRentExemption"
	MethodGetMultipleAccounts               = "getMultipleAccounts"
	MethodGetSignatureStatuses              = "getSignatureStatuses"
	MethodGetSlot                           = "getSlot"
	MethodGetTransaction                    = "getTransaction"
	MethodIsBlockhashValid                  = "isBlockhashValid"
	MethodRequestAirdrop                    = "requestAirdrop"
	MethodSendTransaction                   = "sendTransaction"
)

const (
	jsonrpcVersion = "2.0"

	encodingBase64 = "base64"
)

var (
	ErrEmptyBatch      = errors.New("empty batch")
	ErrMissingResponse = errors.New("no response for call")
)

type Commitment struct {
	Commitment string `json:"commitment"`
}

const (
	confirmationStatusProcessed = "processed"
	confirmationStatusConfirmed = "confirmed"
	confirmationStatusFinalized = "finalized"
)

var (
	CommitmentProcessed = Commitment{Commitment: confirmationStatusProcessed}
	CommitmentConfirmed = Commitment{Commitment: confirmationStatusConfirmed}
	CommitmentFinalized = Commitment{Commitment: confirmationStatusFinalized}
)

// CommitmentFromString parses a commitment level name.
func CommitmentFromString(s string) (Commitment, error) {
	switch s {
	case confirmationStatusProcessed, confirmationStatusConfirmed, confirmationStatusFinalized:
		return Commitment{Commitment: s}, nil
	default:
		return Commitment{}, errors.Errorf("unknown commitment: %q", s)
	}
}

// AccountInfo contains the Solana account information (not to be confused with a TokenAccount)
type AccountInfo struct {
	Data       []byte
	Owner      ed25519.PublicKey
	Lamports   uint64
	Executable bool
	RentEpoch  uint64
}

type SignatureStatus struct {
	Slot uint64
	Err  *TransactionError

	// Confirmations will be nil if the transaction has been rooted.
	Confirmations      *uint64
	ConfirmationStatus string
}

func (s SignatureStatus) Confirmed() bool {
	if s.Finalized() {
		return true
	}

	if s.ConfirmationStatus == confirmationStatusConfirmed {
		return true
	}

	return *s.Confirmations >= 1
}

func (s SignatureStatus) Finalized() bool {
	return s.Confirmations == nil || s.ConfirmationStatus == confirmationStatusFinalized
}

// LatestBlockhash is a blockhash along with the last block height at which
// transactions referencing it are accepted.
type LatestBlockhash struct {
	Blockhash            Blockhash
	LastValidBlockHeight uint64
	Slot                 uint64
}

type TransactionMeta struct {
	Err          interface{} `json:"err"`
	Fee          uint64      `json:"fee"`
	PreBalances  []uint64    `json:"preBalances"`
	PostBalances []uint64    `json:"postBalances"`
	LogMessages  []string    `json:"logMessages"`
}

type ConfirmedTransaction struct {
	Slot        uint64
	BlockTime   *time.Time
	Transaction Transaction
	Err         *TransactionError
	Meta        *TransactionMeta
}

// Call is a single logical JSON-RPC call.
type Call struct {
	Method string
	Params []interface{}
}

// NewCall creates a call with positional params.
func NewCall(method string, params ...interface{}) Call {
	return Call{Method: method, Params: params}
}

// CallResult is the outcome of one call in a batch. Exactly one of Value or
// Err is meaningful.
type CallResult struct {
	Method string
	Value  interface{}
	Err    error
}

// EncodeBatch encodes calls as a JSON-RPC batch. The id of each request is
// its position in calls.
func EncodeBatch(calls []Call) (jsonrpc.RPCRequests, []byte, error) {
	if len(calls) == 0 {
		return nil, nil, ErrEmptyBatch
	}

	requests := make(jsonrpc.RPCRequests, len(calls))
	for i, c := range calls {
		if len(c.Method) == 0 {
			return nil, nil, errors.Errorf("call %d has no method", i)
		}

		requests[i] = &jsonrpc.RPCRequest{
			JSONRPC: jsonrpcVersion,
			ID:      i,
			Method:  c.Method,
		}

		// Params are always positional. A nil slice is omitted entirely.
		if len(c.Params) > 0 {
			requests[i].Params = c.Params
		}
	}

	body, err := json.Marshal(requests)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to marshal batch")
	}

	return requests, body, nil
}

// ParseBatchResponse decodes a batch response body. Numbers are kept as
// json.Number so large integers survive. A lone error object, which nodes
// return when the batch as a whole is rejected, is returned as an *RPCError.
func ParseBatchResponse(body []byte) (jsonrpc.RPCResponses, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, errors.New("empty response body")
	}

	d := json.NewDecoder(bytes.NewReader(body))
	d.UseNumber()

	if body[0] == '{' {
		var single jsonrpc.RPCResponse
		if err := d.Decode(&single); err != nil {
			return nil, errors.Wrap(err, "invalid response")
		}
		if single.Error != nil {
			return nil, NewRPCError("batch", single.Error)
		}
		return nil, errors.New("expected batch response, got a single response")
	}

	var responses jsonrpc.RPCResponses
	if err := d.Decode(&responses); err != nil {
		return nil, errors.Wrap(err, "invalid batch response")
	}

	// A null or absent id would otherwise decode as id 0.
	if err := checkBatchIDs(body); err != nil {
		return nil, err
	}

	return responses, nil
}

// checkBatchIDs rejects batch entries without an id. Nodes answer with a
// null id when they could not attribute an error to a request, so such an
// error applies to the batch as a whole.
func checkBatchIDs(body []byte) error {
	var entries []json.RawMessage
	if err := json.Unmarshal(body, &entries); err != nil {
		return errors.Wrap(err, "invalid batch response")
	}

	for i, entry := range entries {
		if string(bytes.TrimSpace(entry)) == "null" {
			continue
		}

		var r struct {
			ID    json.RawMessage   `json:"id"`
			Error *jsonrpc.RPCError `json:"error"`
		}
		if err := json.Unmarshal(entry, &r); err != nil {
			return errors.Wrapf(err, "invalid batch response entry %d", i)
		}
		if len(r.ID) > 0 && string(r.ID) != "null" {
			continue
		}

		if r.Error != nil {
			return errors.Wrapf(NewRPCError("batch", r.Error), "response %d has no id", i)
		}
		return errors.Errorf("response %d has no id", i)
	}
	return nil
}

// DecodeBatch pairs responses with the calls they answer, using the returned
// ids rather than response order. An error object decodes to an *RPCError for
// that call only. A call without a response gets ErrMissingResponse. Ids that
// are out of range or repeated make the whole batch unusable.
func DecodeBatch(calls []Call, responses jsonrpc.RPCResponses) ([]CallResult, error) {
	byID := make(map[int]*jsonrpc.RPCResponse, len(responses))
	for _, r := range responses {
		if r == nil {
			continue
		}
		if r.ID < 0 || r.ID >= len(calls) {
			return nil, errors.Errorf("response id %d out of range", r.ID)
		}
		if _, ok := byID[r.ID]; ok {
			return nil, errors.Errorf("duplicate response id %d", r.ID)
		}

		byID[r.ID] = r
	}

	results := make([]CallResult, len(calls))
	for i, c := range calls {
		results[i].Method = c.Method

		r, ok := byID[i]
		if !ok {
			results[i].Err = errors.Wrapf(ErrMissingResponse, "%s (id %d)", c.Method, i)
			continue
		}

		results[i].Value, results[i].Err = DecodeResult(c.Method, r)
	}

	return results, nil
}

// DecodeResult converts the result of a response into the declared Go shape
// for method. Results of methods without a declared shape are returned as is.
func DecodeResult(method string, resp *jsonrpc.RPCResponse) (interface{}, error) {
	if resp == nil {
		return nil, errors.Wrap(ErrMissingResponse, method)
	}
	if resp.Error != nil {
		return nil, NewRPCError(method, resp.Error)
	}

	decoder, ok := resultDecoders[method]
	if !ok {
		return resp.Result, nil
	}

	v, err := decoder(resp)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid %s result", method)
	}
	return v, nil
}

type resultDecoder func(resp *jsonrpc.RPCResponse) (interface{}, error)

var resultDecoders = map[string]resultDecoder{
	MethodSendTransaction:                   decodeSignature,
	MethodRequestAirdrop:                    decodeSignature,
	MethodGetSignatureStatuses:              decodeSignatureStatuses,
	MethodGetLatestBlockhash:                decodeLatestBlockhash,
	MethodGetAccountInfo:                    decodeAccountInfo,
	MethodGetMultipleAccounts:               decodeMultipleAccounts,
	MethodGetFeeForMessage:                  decodeFee,
	MethodGetBlockHeight:                    decodeUint64,
	MethodGetSlot:                           decodeUint64,
	MethodGetMinimumBalanceForRentExemption: decodeUint64,
	MethodGetBalance:                        decodeContextUint64,
	MethodIsBlockhashValid:                  decodeContextBool,
	MethodGetTransaction:                    decodeTransaction,
}

type contextResponse struct {
	Context struct {
		Slot uint64 `json:"slot"`
	} `json:"context"`
	Value json.RawMessage `json:"value"`
}

type rawAccount struct {
	Lamports   uint64   `json:"lamports"`
	Owner      string   `json:"owner"`
	Data       []string `json:"data"` // [data, encoding]
	Executable bool     `json:"executable"`
	RentEpoch  uint64   `json:"rentEpoch"`
}

type rawSignatureStatus struct {
	Slot               uint64      `json:"slot"`
	Confirmations      *uint64     `json:"confirmations"`
	Err                interface{} `json:"err"`
	ConfirmationStatus string      `json:"confirmationStatus"`
}

type rawTransaction struct {
	Slot        uint64           `json:"slot"`
	BlockTime   *int64           `json:"blockTime"`
	Transaction []string         `json:"transaction"` // [data, encoding]
	Meta        *TransactionMeta `json:"meta"`
}

func decodeSignature(resp *jsonrpc.RPCResponse) (interface{}, error) {
	var s string
	if err := resp.GetObject(&s); err != nil {
		return nil, err
	}
	return SignatureFromBase58(s)
}

func decodeUint64(resp *jsonrpc.RPCResponse) (interface{}, error) {
	var v uint64
	if err := resp.GetObject(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func decodeContext(resp *jsonrpc.RPCResponse) (contextResponse, error) {
	var c contextResponse
	if err := resp.GetObject(&c); err != nil {
		return c, err
	}
	return c, nil
}

func decodeContextUint64(resp *jsonrpc.RPCResponse) (interface{}, error) {
	c, err := decodeContext(resp)
	if err != nil {
		return nil, err
	}

	var v uint64
	if err := unmarshalNumbers(c.Value, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func decodeContextBool(resp *jsonrpc.RPCResponse) (interface{}, error) {
	c, err := decodeContext(resp)
	if err != nil {
		return nil, err
	}

	var v bool
	if err := json.Unmarshal(c.Value, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func decodeFee(resp *jsonrpc.RPCResponse) (interface{}, error) {
	c, err := decodeContext(resp)
	if err != nil {
		return nil, err
	}

	var fee *uint64
	if err := unmarshalNumbers(c.Value, &fee); err != nil {
		return nil, err
	}
	return fee, nil
}

func decodeLatestBlockhash(resp *jsonrpc.RPCResponse) (interface{}, error) {
	c, err := decodeContext(resp)
	if err != nil {
		return nil, err
	}

	var v struct {
		Blockhash            string `json:"blockhash"`
		LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
	}
	if err := unmarshalNumbers(c.Value, &v); err != nil {
		return nil, err
	}

	bh, err := BlockhashFromBase58(v.Blockhash)
	if err != nil {
		return nil, err
	}

	return LatestBlockhash{
		Blockhash:            bh,
		LastValidBlockHeight: v.LastValidBlockHeight,
		Slot:                 c.Context.Slot,
	}, nil
}

func decodeAccountInfo(resp *jsonrpc.RPCResponse) (interface{}, error) {
	c, err := decodeContext(resp)
	if err != nil {
		return nil, err
	}

	var raw *rawAccount
	if err := unmarshalNumbers(c.Value, &raw); err != nil {
		return nil, err
	}
	return raw.toAccountInfo()
}

func decodeMultipleAccounts(resp *jsonrpc.RPCResponse) (interface{}, error) {
	c, err := decodeContext(resp)
	if err != nil {
		return nil, err
	}

	var raw []*rawAccount
	if err := unmarshalNumbers(c.Value, &raw); err != nil {
		return nil, err
	}

	accounts := make([]*AccountInfo, len(raw))
	for i, r := range raw {
		if accounts[i], err = r.toAccountInfo(); err != nil {
			return nil, errors.Wrapf(err, "account %d", i)
		}
	}
	return accounts, nil
}

func (r *rawAccount) toAccountInfo() (*AccountInfo, error) {
	if r == nil {
		return nil, nil
	}

	owner, err := PublicKeyFromBase58(r.Owner)
	if err != nil {
		return nil, errors.Wrap(err, "invalid owner")
	}

	data, err := decodeBlob(r.Data)
	if err != nil {
		return nil, errors.Wrap(err, "invalid account data")
	}

	return &AccountInfo{
		Data:       data,
		Owner:      owner,
		Lamports:   r.Lamports,
		Executable: r.Executable,
		RentEpoch:  r.RentEpoch,
	}, nil
}

func decodeSignatureStatuses(resp *jsonrpc.RPCResponse) (interface{}, error) {
	c, err := decodeContext(resp)
	if err != nil {
		return nil, err
	}

	var raw []*rawSignatureStatus
	if err := unmarshalNumbers(c.Value, &raw); err != nil {
		return nil, err
	}

	statuses := make([]*SignatureStatus, len(raw))
	for i, r := range raw {
		if r == nil {
			continue
		}

		txErr, err := ParseTransactionError(r.Err)
		if err != nil {
			return nil, errors.Wrapf(err, "status %d", i)
		}

		statuses[i] = &SignatureStatus{
			Slot:               r.Slot,
			Err:                txErr,
			Confirmations:      r.Confirmations,
			ConfirmationStatus: r.ConfirmationStatus,
		}
	}
	return statuses, nil
}

func decodeTransaction(resp *jsonrpc.RPCResponse) (interface{}, error) {
	var raw *rawTransaction
	if err := resp.GetObject(&raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return (*ConfirmedTransaction)(nil), nil
	}

	txn := &ConfirmedTransaction{
		Slot: raw.Slot,
		Meta: raw.Meta,
	}

	if raw.BlockTime != nil {
		blockTime := time.Unix(*raw.BlockTime, 0)
		txn.BlockTime = &blockTime
	}

	b, err := decodeBlob(raw.Transaction)
	if err != nil {
		return nil, errors.Wrap(err, "invalid transaction")
	}
	if err := txn.Transaction.Unmarshal(b); err != nil {
		return nil, errors.Wrap(err, "invalid transaction")
	}

	if raw.Meta != nil {
		if txn.Err, err = ParseTransactionError(raw.Meta.Err); err != nil {
			return nil, err
		}
	}

	return txn, nil
}

// decodeBlob decodes the [data, encoding] pair used for binary fields.
func decodeBlob(pair []string) ([]byte, error) {
	if len(pair) != 2 {
		return nil, errors.Errorf("expected [data, encoding], got %d entries", len(pair))
	}

	switch pair[1] {
	case encodingBase64:
		return base64.StdEncoding.DecodeString(pair[0])
	case "base58":
		return base58.Decode(pair[0])
	default:
		return nil, errors.Errorf("unsupported encoding: %s", pair[1])
	}
}

func unmarshalNumbers(raw json.RawMessage, v interface{}) error {
	d := json.NewDecoder(bytes.NewReader(raw))
	d.UseNumber()
	return d.Decode(v)
}
