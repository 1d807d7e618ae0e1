// Package computebudget produces instructions for the compute budget program.
package computebudget

import (
	"crypto/ed25519"

	"github.com/pkg/errors"

	"github.com/code-payments/code-solana-client/pkg/solana"
	"github.com/code-payments/code-solana-client/pkg/solana/binary"
)

// ProgramKey is the address of the compute budget program.
//
// Current key: ComputeBudget111111111111111111111111111111
var ProgramKey = ed25519.PublicKey{3, 6, 70, 111, 229, 33, 23, 50, 255, 236, 173, 186, 114, 195, 155, 231, 188, 140, 229, 187, 197, 247, 18, 107, 44, 67, 155, 58, 64, 0, 0, 0}

// MaxComputeUnitLimit is the most compute units a transaction may request.
const MaxComputeUnitLimit = 1_400_000

// Command is the discriminant of a compute budget instruction.
type Command uint8

const (
	CommandRequestUnits Command = iota
	CommandRequestHeapFrame
	CommandSetComputeUnitLimit
	CommandSetComputeUnitPrice
	CommandSetLoadedAccountsDataSizeLimit
)

// SetComputeUnitLimitArgs sets the compute units the transaction may consume.
type SetComputeUnitLimitArgs struct {
	Units uint32 `mapstructure:"units"`
}

func (a SetComputeUnitLimitArgs) Validate() error {
	if a.Units == 0 {
		return solana.NewValidationError("units", "must be positive")
	}
	if a.Units > MaxComputeUnitLimit {
		return solana.NewValidationError("units", "exceeds %d", MaxComputeUnitLimit)
	}
	return nil
}

func SetComputeUnitLimit(args SetComputeUnitLimitArgs) (solana.Instruction, error) {
	if err := args.Validate(); err != nil {
		return solana.Instruction{}, err
	}

	data := binary.NewWriter(1 + 4).
		Uint8(uint8(CommandSetComputeUnitLimit)).
		Uint32(args.Units).
		Bytes()

	return solana.NewInstruction(ProgramKey, data), nil
}

// SetComputeUnitPriceArgs sets the priority fee, in micro-lamports per
// compute unit.
type SetComputeUnitPriceArgs struct {
	MicroLamports uint64 `mapstructure:"micro_lamports"`
}

// Validate accepts every price. Zero is a valid price that removes any
// priority fee.
func (a SetComputeUnitPriceArgs) Validate() error {
	return nil
}

func SetComputeUnitPrice(args SetComputeUnitPriceArgs) (solana.Instruction, error) {
	if err := args.Validate(); err != nil {
		return solana.Instruction{}, err
	}

	data := binary.NewWriter(1 + 8).
		Uint8(uint8(CommandSetComputeUnitPrice)).
		Uint64(args.MicroLamports).
		Bytes()

	return solana.NewInstruction(ProgramKey, data), nil
}

func ParseSetComputeUnitLimitIxnData(data []byte) (uint32, error) {
	r, err := parse(data, CommandSetComputeUnitLimit, 1+4)
	if err != nil {
		return 0, err
	}
	return r.Uint32(), nil
}

func ParseSetComputeUnitPriceIxnData(data []byte) (uint64, error) {
	r, err := parse(data, CommandSetComputeUnitPrice, 1+8)
	if err != nil {
		return 0, err
	}
	return r.Uint64(), nil
}

func parse(data []byte, command Command, size int) (*binary.Reader, error) {
	if len(data) != size {
		return nil, errors.Errorf("invalid length: %d (expected %d)", len(data), size)
	}

	r := binary.NewReader(data)
	if Command(r.Uint8()) != command {
		return nil, solana.ErrIncorrectInstruction
	}
	return r, nil
}
