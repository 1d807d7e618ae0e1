// Package producer builds instructions from string keyed option maps, as read
// from configuration files or request payloads.
package producer

import (
	"crypto/ed25519"
	"encoding/json"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/mr-tron/base58"
	"github.com/pkg/errors"

	"github.com/code-payments/code-solana-client/pkg/solana"
	"github.com/code-payments/code-solana-client/pkg/solana/computebudget"
	"github.com/code-payments/code-solana-client/pkg/solana/memo"
	"github.com/code-payments/code-solana-client/pkg/solana/sigverify"
	"github.com/code-payments/code-solana-client/pkg/solana/system"
	"github.com/code-payments/code-solana-client/pkg/solana/token"
)

var ErrUnknownProducer = errors.New("unknown producer")

// Args is implemented by every typed argument struct.
type Args interface {
	Validate() error
}

// Producer describes the options one instruction accepts.
type Producer struct {
	Name       string
	Recognized []string
	Required   []string

	build func(options map[string]interface{}) (solana.Instruction, error)
}

var registry = map[string]Producer{}

func register[T Args](name string, recognized, required []string, fn func(T) (solana.Instruction, error)) {
	registry[name] = Producer{
		Name:       name,
		Recognized: recognized,
		Required:   required,
		build: func(options map[string]interface{}) (solana.Instruction, error) {
			var args T
			if err := decode(options, &args); err != nil {
				return solana.Instruction{}, err
			}
			if err := args.Validate(); err != nil {
				return solana.Instruction{}, err
			}
			return fn(args)
		},
	}
}

func init() {
	register("system.transfer",
		[]string{"from", "to", "lamports"},
		[]string{"from", "to", "lamports"},
		system.Transfer,
	)
	register("system.create_account",
		[]string{"funder", "address", "owner", "lamports", "space"},
		[]string{"funder", "address", "owner"},
		system.CreateAccount,
	)
	register("system.advance_nonce",
		[]string{"nonce", "authority"},
		[]string{"nonce", "authority"},
		system.AdvanceNonce,
	)
	register("system.withdraw_nonce",
		[]string{"nonce", "authority", "recipient", "lamports"},
		[]string{"nonce", "authority", "recipient", "lamports"},
		system.WithdrawNonce,
	)
	register("system.initialize_nonce",
		[]string{"nonce", "authority"},
		[]string{"nonce", "authority"},
		system.InitializeNonce,
	)
	register("compute_budget.set_compute_unit_limit",
		[]string{"units"},
		[]string{"units"},
		computebudget.SetComputeUnitLimit,
	)
	register("compute_budget.set_compute_unit_price",
		[]string{"micro_lamports"},
		[]string{"micro_lamports"},
		computebudget.SetComputeUnitPrice,
	)
	register("memo",
		[]string{"text", "signers"},
		[]string{"text"},
		memo.Instruction,
	)
	register("ed25519.verify",
		[]string{"public_key", "signature", "message"},
		[]string{"public_key", "signature", "message"},
		sigverify.Instruction,
	)
	register("token.initialize_account",
		[]string{"account", "mint", "owner"},
		[]string{"account", "mint", "owner"},
		token.InitializeAccount,
	)
	register("token.transfer",
		[]string{"source", "destination", "owner", "amount"},
		[]string{"source", "destination", "owner", "amount"},
		token.Transfer,
	)
	register("token.transfer_checked",
		[]string{"source", "mint", "destination", "owner", "amount", "decimals"},
		[]string{"source", "mint", "destination", "owner", "amount", "decimals"},
		token.TransferChecked,
	)
	register("token.close_account",
		[]string{"account", "destination", "owner"},
		[]string{"account", "destination", "owner"},
		token.CloseAccount,
	)
	register("associated_token.create",
		[]string{"payer", "wallet", "mint"},
		[]string{"payer", "wallet", "mint"},
		withoutAddress(token.CreateAssociatedAccount),
	)
	register("associated_token.create_idempotent",
		[]string{"payer", "wallet", "mint"},
		[]string{"payer", "wallet", "mint"},
		withoutAddress(token.CreateAssociatedAccountIdempotent),
	)
}

func withoutAddress[T Args](fn func(T) (solana.Instruction, ed25519.PublicKey, error)) func(T) (solana.Instruction, error) {
	return func(args T) (solana.Instruction, error) {
		instruction, _, err := fn(args)
		return instruction, err
	}
}

// Names returns the registered producer names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the producer registered under name.
func Lookup(name string) (Producer, bool) {
	p, ok := registry[name]
	return p, ok
}

// Build returns the instruction of the named producer. Unrecognized and
// missing keys are reported before any value is decoded.
func Build(name string, options map[string]interface{}) (solana.Instruction, error) {
	p, ok := registry[name]
	if !ok {
		return solana.Instruction{}, errors.Wrap(ErrUnknownProducer, name)
	}

	if err := p.checkKeys(options); err != nil {
		return solana.Instruction{}, err
	}

	instruction, err := p.build(options)
	if err != nil {
		return solana.Instruction{}, errors.Wrapf(err, "%s", name)
	}
	return instruction, nil
}

func (p Producer) checkKeys(options map[string]interface{}) error {
	var unknown []string
	for key := range options {
		if !contains(p.Recognized, key) {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return solana.NewValidationError(unknown[0], "unrecognized option for %s (recognized: %s)", p.Name, strings.Join(p.Recognized, ", "))
	}

	for _, key := range p.Required {
		if _, ok := options[key]; !ok {
			return solana.NewValidationError(key, "required by %s", p.Name)
		}
	}
	return nil
}

func decode(options map[string]interface{}, result interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.DecodeHookFuncType(numberHook),
			mapstructure.DecodeHookFuncType(stringHook),
		),
		Result:     result,
	})
	if err != nil {
		return err
	}

	if err := decoder.Decode(options); err != nil {
		return solana.NewValidationError("options", "%v", err)
	}
	return nil
}

var (
	publicKeyType = reflect.TypeOf(ed25519.PublicKey{})
	signatureType = reflect.TypeOf(solana.Signature{})
	bytesType     = reflect.TypeOf([]byte{})
	numberType    = reflect.TypeOf(json.Number(""))
)

// numberHook rejects numbers that an integer field cannot hold exactly, such
// as fractions, negative values for unsigned fields and values past the
// field's width. Option maps decoded from JSON carry float64 or json.Number.
func numberHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if !isInteger(to.Kind()) {
		return data, nil
	}

	v := reflect.ValueOf(data)
	switch {
	case from == numberType:
		n := data.(json.Number)
		if i, err := n.Int64(); err == nil {
			return data, checkSigned(to, i)
		}
		if u, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
			return data, checkUnsigned(to, u)
		}
		f, err := n.Float64()
		if err != nil {
			return nil, errors.Wrapf(err, "invalid number %q", n.String())
		}
		return fromFloat(to, f)
	case isSigned(from.Kind()):
		return data, checkSigned(to, v.Int())
	case isUnsigned(from.Kind()):
		return data, checkUnsigned(to, v.Uint())
	case from.Kind() == reflect.Float32 || from.Kind() == reflect.Float64:
		return fromFloat(to, v.Float())
	}
	return data, nil
}

func fromFloat(to reflect.Type, f float64) (interface{}, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return nil, errors.Errorf("%v is not an integer", f)
	}

	bits := to.Bits()
	if isUnsigned(to.Kind()) {
		if f < 0 || f >= math.Ldexp(1, bits) {
			return nil, errors.Errorf("%v overflows %s", f, to)
		}
		return uint64(f), nil
	}

	if f < -math.Ldexp(1, bits-1) || f >= math.Ldexp(1, bits-1) {
		return nil, errors.Errorf("%v overflows %s", f, to)
	}
	return int64(f), nil
}

func checkSigned(to reflect.Type, i int64) error {
	if isUnsigned(to.Kind()) {
		if i < 0 {
			return errors.Errorf("%d is negative", i)
		}
		return checkUnsigned(to, uint64(i))
	}

	bits := uint(to.Bits())
	if bits < 64 && (i < -(1<<(bits-1)) || i >= 1<<(bits-1)) {
		return errors.Errorf("%d overflows %s", i, to)
	}
	return nil
}

func checkUnsigned(to reflect.Type, u uint64) error {
	bits := uint(to.Bits())
	if isSigned(to.Kind()) {
		bits--
	}
	if bits < 64 && u >= 1<<bits {
		return errors.Errorf("%d overflows %s", u, to)
	}
	return nil
}

func isInteger(k reflect.Kind) bool {
	return isSigned(k) || isUnsigned(k)
}

func isSigned(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	}
	return false
}

func isUnsigned(k reflect.Kind) bool {
	switch k {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

// stringHook decodes base58 strings into addresses and signatures, and
// other strings into raw bytes.
func stringHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if from.Kind() != reflect.String {
		return data, nil
	}
	s := reflect.ValueOf(data).String()

	switch to {
	case publicKeyType:
		decoded, err := base58.Decode(s)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid address %q", s)
		}
		return ed25519.PublicKey(decoded), nil
	case signatureType:
		return solana.SignatureFromBase58(s)
	case bytesType:
		return []byte(s), nil
	}
	return data, nil
}

func contains(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}
