package solana

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"github.com/ybbus/jsonrpc"
)

// TransactionErrorKey is the string key returned in a transaction error.
//
// Source: https://github.com/solana-labs/solana/blob/fc2bf2d3b669d1c6655ae48b0a05f470938f3676/sdk/src/transaction/mod.rs#L37
type TransactionErrorKey string

const (
	TransactionErrorInternal TransactionErrorKey = "Internal" // Internal error

	TransactionErrorAccountInUse                 TransactionErrorKey = "AccountInUse"                 // An account is already being processed in another transaction in a way that does not support parallelism
	TransactionErrorAccountLoadedTwice           TransactionErrorKey = "AccountLoadedTwice"           // A `Pubkey` appears twice in the transaction's `account_keys`.  Instructions can reference `Pubkey`s more than once but the message must contain a list with no duplicate keys
	TransactionErrorAccountNotFound              TransactionErrorKey = "AccountNotFound"              // Attempt to debit an account but found no record of a prior credit.
	TransactionErrorProgramAccountNotFound       TransactionErrorKey = "ProgramAccountNotFound"       // Attempt to load a program that does not exist
	TransactionErrorInsufficientFundsForFee      TransactionErrorKey = "InsufficientFundsForFee"      // The from `Pubkey` does not have sufficient balance to pay the fee to schedule the transaction
	TransactionErrorInvalidAccountForFee         TransactionErrorKey = "InvalidAccountForFee"         // This account may not be used to pay transaction fees
	TransactionErrorDuplicateSignature           TransactionErrorKey = "DuplicateSignature"           // The bank has seen this transaction before. This can occur under normal operation when a UDP packet is duplicated, as a user error from a client not updating its `recent_blockhash`, or as a double-spend attack.
	TransactionErrorBlockhashNotFound            TransactionErrorKey = "BlockhashNotFound"            // The bank has not seen the given `recent_blockhash` or the transaction is too old and the `recent_blockhash` has been discarded.
	TransactionErrorInstructionError             TransactionErrorKey = "InstructionError"             // An error occurred while processing an instruction. The first element of the tuple indicates the instruction index in which the error occurred.
	TransactionErrorCallChainTooDeep             TransactionErrorKey = "CallChainTooDeep"             // Loader call chain is too deep
	TransactionErrorMissingSignatureForFee       TransactionErrorKey = "MissingSignatureForFee"       // Transaction requires a fee but has no signature present
	TransactionErrorInvalidAccountIndex          TransactionErrorKey = "InvalidAccountIndex"          // Transaction contains an invalid account reference
	TransactionErrorSignatureFailure             TransactionErrorKey = "SignatureFailure"             // Transaction did not pass signature verification
	TransactionErrorInvalidProgramForExecution   TransactionErrorKey = "InvalidProgramForExecution"   // This program may not be used for executing instructions
	TransactionErrorSanitizeFailure              TransactionErrorKey = "SanitizeFailure"              // Transaction failed to sanitize accounts offsets correctly implies that account locks are not taken for this TX, and should not be unlocked.
	TransactionErrorClusterMaintenance           TransactionErrorKey = "ClusterMaintenance"           // Transactions are currently disabled due to cluster maintenance
	TransactionErrorAccountBorrowOutstanding     TransactionErrorKey = "AccountBorrowOutstanding"     // Transaction processing left an account with an outstanding borrowed reference
	TransactionErrorWouldExceedMaxBlockCostLimit TransactionErrorKey = "WouldExceedMaxBlockCostLimit" // Transaction could not fit into current block without exceeding the Max Block Cost Limit
	TransactionErrorUnsupportedVersion           TransactionErrorKey = "UnsupportedVersion"           // Transaction version is unsupported
	TransactionErrorInvalidWritableAccount       TransactionErrorKey = "InvalidWritableAccount"       // Transaction loads a writable account that cannot be written
)

// InstructionErrorKey is the string keys returned in an instruction error.
//
// Source: https://github.com/solana-labs/solana/blob/4e2754341514cd181ae3f373cc2548bd22e918b8/sdk/program/src/instruction.rs#L23
type InstructionErrorKey string

const (
	InstructionErrorGenericError                   InstructionErrorKey = "GenericError"
	InstructionErrorInvalidArgument                InstructionErrorKey = "InvalidArgument"
	InstructionErrorInvalidInstructionData         InstructionErrorKey = "InvalidInstructionData"
	InstructionErrorInvalidAccountData             InstructionErrorKey = "InvalidAccountData"
	InstructionErrorAccountDataTooSmall            InstructionErrorKey = "AccountDataTooSmall"
	InstructionErrorInsufficientFunds              InstructionErrorKey = "InsufficientFunds"
	InstructionErrorIncorrectProgramID             InstructionErrorKey = "IncorrectProgramId"
	InstructionErrorMissingRequiredSignature       InstructionErrorKey = "MissingRequiredSignature"
	InstructionErrorAccountAlreadyInitialized      InstructionErrorKey = "AccountAlreadyInitialized"
	InstructionErrorUninitializedAccount           InstructionErrorKey = "UninitializedAccount"
	InstructionErrorUnbalancedInstruction          InstructionErrorKey = "UnbalancedInstruction"
	InstructionErrorModifiedProgramID              InstructionErrorKey = "ModifiedProgramId"
	InstructionErrorExternalAccountLamportSpend    InstructionErrorKey = "ExternalAccountLamportSpend"
	InstructionErrorExternalAccountDataModified    InstructionErrorKey = "ExternalAccountDataModified"
	InstructionErrorReadonlyLamportChange          InstructionErrorKey = "ReadonlyLamportChange"
	InstructionErrorReadonlyDataModified           InstructionErrorKey = "ReadonlyDataModified"
	InstructionErrorDuplicateAccountIndex          InstructionErrorKey = "DuplicateAccountIndex"
	InstructionErrorExecutableModified             InstructionErrorKey = "ExecutableModified"
	InstructionErrorRentEpochModified              InstructionErrorKey = "RentEpochModified"
	InstructionErrorNotEnoughAccountKeys           InstructionErrorKey = "NotEnoughAccountKeys"
	InstructionErrorAccountDataSizeChanged         InstructionErrorKey = "AccountDataSizeChanged"
	InstructionErrorAccountNotExecutable           InstructionErrorKey = "AccountNotExecutable"
	InstructionErrorAccountBorrowFailed            InstructionErrorKey = "AccountBorrowFailed"
	InstructionErrorAccountBorrowOutstanding       InstructionErrorKey = "AccountBorrowOutstanding"
	InstructionErrorDuplicateAccountOutOfSync      InstructionErrorKey = "DuplicateAccountOutOfSync"
	InstructionErrorCustom                         InstructionErrorKey = "Custom"
	InstructionErrorInvalidError                   InstructionErrorKey = "InvalidError"
	InstructionErrorExecutableDataModified         InstructionErrorKey = "ExecutableDataModified"
	InstructionErrorExecutableLamportChange        InstructionErrorKey = "ExecutableLamportChange"
	InstructionErrorExecutableAccountNotRentExempt InstructionErrorKey = "ExecutableAccountNotRentExempt"
	InstructionErrorUnsupportedProgramID           InstructionErrorKey = "UnsupportedProgramId"
	InstructionErrorCallDepth                      InstructionErrorKey = "CallDepth"
	InstructionErrorMissingAccount                 InstructionErrorKey = "MissingAccount"
	InstructionErrorReentrancyNotAllowed           InstructionErrorKey = "ReentrancyNotAllowed"
	InstructionErrorMaxSeedLengthExceeded          InstructionErrorKey = "MaxSeedLengthExceeded"
	InstructionErrorInvalidSeeds                   InstructionErrorKey = "InvalidSeeds"
	InstructionErrorInvalidRealloc                 InstructionErrorKey = "InvalidRealloc"
)

// CustomError is the numerical error returned by a non-system program.
type CustomError uint32

func (c CustomError) Error() string {
	return fmt.Sprintf("custom program error: 0x%x", uint32(c))
}

// InstructionError indicates an instruction returned an error in a transaction.
type InstructionError struct {
	Index int
	Key   InstructionErrorKey

	// Custom is set when Key is InstructionErrorCustom.
	Custom *CustomError
}

func (i *InstructionError) Error() string {
	if i.Custom != nil {
		return fmt.Sprintf("instruction %d failed: %v", i.Index, *i.Custom)
	}
	return fmt.Sprintf("instruction %d failed: %s", i.Index, i.Key)
}

func (i *InstructionError) Unwrap() error {
	if i.Custom != nil {
		return *i.Custom
	}
	return nil
}

// TransactionError is an execution failure reported by the ledger, either
// from a preflight simulation or from a signature status.
type TransactionError struct {
	Key         TransactionErrorKey
	Instruction *InstructionError

	// Raw is the JSON value the error was parsed from.
	Raw interface{}
}

func (t *TransactionError) Error() string {
	if t.Instruction != nil {
		return t.Instruction.Error()
	}
	return string(t.Key)
}

func (t *TransactionError) Unwrap() error {
	if t.Instruction != nil {
		return t.Instruction
	}
	return nil
}

// JSONString renders the error in the shape the RPC returns it.
func (t *TransactionError) JSONString() (string, error) {
	b, err := json.Marshal(t.Raw)
	return string(b), err
}

// NewTransactionError creates a TransactionError without instruction detail.
func NewTransactionError(key TransactionErrorKey) *TransactionError {
	return &TransactionError{
		Key: key,
		Raw: string(key),
	}
}

// NewInstructionTransactionError wraps an InstructionError.
func NewInstructionTransactionError(ie *InstructionError) *TransactionError {
	var detail interface{} = string(ie.Key)
	if ie.Custom != nil {
		detail = map[string]interface{}{
			string(InstructionErrorCustom): json.Number(strconv.FormatUint(uint64(*ie.Custom), 10)),
		}
	}

	return &TransactionError{
		Key:         TransactionErrorInstructionError,
		Instruction: ie,
		Raw: map[string]interface{}{
			string(TransactionErrorInstructionError): []interface{}{
				json.Number(strconv.Itoa(ie.Index)),
				detail,
			},
		},
	}
}

// ParseRPCError extracts the execution failure carried in the data of a
// preflight rejection, if any.
func ParseRPCError(err *jsonrpc.RPCError) (*TransactionError, error) {
	if err == nil {
		return nil, nil
	}

	data, ok := err.Data.(map[string]interface{})
	if !ok {
		return nil, nil
	}

	raw, ok := data["err"]
	if !ok || raw == nil {
		return nil, nil
	}

	return ParseTransactionError(raw)
}

// ParseTransactionError parses the JSON value of an "err" field. A nil value
// yields a nil error.
//
// The RPC encodes errors either as a bare key ("AccountInUse") or as a single
// entry object ({"InstructionError": [0, {"Custom": 1}]}).
func ParseTransactionError(raw interface{}) (*TransactionError, error) {
	switch t := raw.(type) {
	case nil:
		return nil, nil
	case string:
		return &TransactionError{Key: TransactionErrorKey(t), Raw: raw}, nil
	case map[string]interface{}:
		k, v, err := singleEntry(t)
		if err != nil {
			return nil, errors.Wrap(err, "invalid transaction error")
		}

		txErr := &TransactionError{Key: TransactionErrorKey(k), Raw: raw}
		if txErr.Key != TransactionErrorInstructionError {
			return txErr, nil
		}

		txErr.Instruction, err = parseInstructionError(v)
		if err != nil {
			return nil, errors.Wrap(err, "invalid instruction error")
		}
		return txErr, nil
	default:
		return nil, errors.Errorf("unhandled transaction error type %T", raw)
	}
}

func parseInstructionError(v interface{}) (*InstructionError, error) {
	tuple, ok := v.([]interface{})
	if !ok || len(tuple) != 2 {
		return nil, errors.New("expected [index, error] tuple")
	}

	index, err := parseJSONNumber(tuple[0])
	if err != nil {
		return nil, err
	}

	ie := &InstructionError{Index: index}
	switch detail := tuple[1].(type) {
	case string:
		ie.Key = InstructionErrorKey(detail)
	case map[string]interface{}:
		k, v, err := singleEntry(detail)
		if err != nil {
			return nil, err
		}

		ie.Key = InstructionErrorKey(k)
		if ie.Key == InstructionErrorCustom {
			code, err := parseJSONNumber(v)
			if err != nil {
				return nil, errors.Wrap(err, "invalid custom error code")
			}
			custom := CustomError(code)
			ie.Custom = &custom
		}
	default:
		return nil, errors.Errorf("unhandled instruction error type %T", detail)
	}

	return ie, nil
}

func singleEntry(m map[string]interface{}) (string, interface{}, error) {
	if len(m) != 1 {
		return "", nil, errors.Errorf("expected a single entry, got %d", len(m))
	}
	for k, v := range m {
		return k, v, nil
	}
	return "", nil, nil
}

func parseJSONNumber(v interface{}) (int, error) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, errors.Errorf("non integer value: %v", v)
		}
		return int(i), nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, errors.Errorf("non numeric value: %v", v)
		}
		return int(i), nil
	case float64:
		return int(n), nil
	}

	return 0, errors.Errorf("non numeric value: %v", v)
}

// Codes the RPC uses for errors that carry meaning for callers.
//
// Reference: https://github.com/solana-labs/solana/blob/master/rpc-client-api/src/custom_error.rs
const (
	RPCCodeBlockhashNotFound         = -32001 // Deprecated by nodes, kept for older deployments
	RPCCodeSendTransactionPreflight  = -32002
	RPCCodeSignatureVerification     = -32003
	RPCCodeBlockNotAvailable         = -32004
	RPCCodeNodeUnhealthy             = -32005
	RPCCodeTransactionPrecompile     = -32006
	RPCCodeSlotSkipped               = -32007
	RPCCodeMinContextSlotNotReached  = -32016
	RPCCodeInvalidParams             = -32602
	RPCCodeTooManyRequests           = 429
	RPCCodeServiceUnavailableMinimum = 500
)

// RPCError indicates the network rejected a call. Preflight failures carry the
// simulated execution failure in TransactionError.
type RPCError struct {
	Method  string
	Code    int
	Message string
	Data    interface{}

	TransactionError *TransactionError
}

// NewRPCError converts a JSON-RPC error object.
func NewRPCError(method string, err *jsonrpc.RPCError) *RPCError {
	e := &RPCError{
		Method:  method,
		Code:    err.Code,
		Message: err.Message,
		Data:    err.Data,
	}

	// A malformed err field still leaves a usable RPCError.
	e.TransactionError, _ = ParseRPCError(err)

	return e
}

func (e *RPCError) Error() string {
	if e.TransactionError != nil {
		return fmt.Sprintf("%s: rpc error %d: %s: %v", e.Method, e.Code, e.Message, e.TransactionError)
	}
	return fmt.Sprintf("%s: rpc error %d: %s", e.Method, e.Code, e.Message)
}

func (e *RPCError) Unwrap() error {
	if e.TransactionError != nil {
		return e.TransactionError
	}
	return nil
}

// Retriable reports whether the node signalled a transient condition.
func (e *RPCError) Retriable() bool {
	return e.Code == RPCCodeTooManyRequests || e.Code >= RPCCodeServiceUnavailableMinimum || e.Code == RPCCodeNodeUnhealthy
}

// TransportError indicates the call may not have reached the node, or the
// node's reply could not be read.
type TransportError struct {
	Method string

	// StatusCode is the HTTP status, if a response was received.
	StatusCode int

	Err error
}

func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: transport error (http %d): %v", e.Method, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: transport error: %v", e.Method, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Retriable reports whether the failure is likely transient.
func (e *TransportError) Retriable() bool {
	return e.StatusCode == 0 || e.StatusCode == RPCCodeTooManyRequests || e.StatusCode >= RPCCodeServiceUnavailableMinimum
}

// IsRetriable reports whether err is a transport failure or an RPC error the
// node marked as transient.
func IsRetriable(err error) bool {
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return transportErr.Retriable()
	}

	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr.Retriable()
	}

	return false
}
