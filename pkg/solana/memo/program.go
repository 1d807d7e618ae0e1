// Package memo produces instructions for the SPL memo program.
package memo

import (
	"crypto/ed25519"
	"unicode/utf8"

	"github.com/code-payments/code-solana-client/pkg/solana"
)

// ProgramKey is the address of the memo program.
//
// Current key: Memo1UhkJRfHyvLMcVucJwxXeuD728EqVDDwQDxFMNo
var ProgramKey = ed25519.PublicKey{5, 74, 83, 80, 248, 93, 200, 130, 214, 20, 165, 86, 114, 120, 138, 41, 109, 223, 30, 171, 171, 208, 166, 6, 120, 136, 73, 50, 244, 238, 246, 160}

// MaxLength bounds memo text so that a memo alone always fits in a
// transaction.
const MaxLength = 566

// Args is the memo text and any accounts that must sign it.
type Args struct {
	Text    string              `mapstructure:"text"`
	Signers []ed25519.PublicKey `mapstructure:"signers"`
}

func (a Args) Validate() error {
	if len(a.Text) == 0 {
		return solana.NewValidationError("text", "required")
	}
	if len(a.Text) > MaxLength {
		return solana.NewValidationError("text", "exceeds %d bytes", MaxLength)
	}
	if !utf8.ValidString(a.Text) {
		return solana.NewValidationError("text", "must be valid utf-8")
	}
	for _, signer := range a.Signers {
		if err := solana.ValidateAddress("signers", signer); err != nil {
			return err
		}
	}
	return nil
}

// Instruction returns a memo instruction. The memo program fails the
// transaction if any of the signers did not sign it.
//
// Reference: https://github.com/solana-labs/solana-program-library/blob/master/memo/program/src/processor.rs
func Instruction(args Args) (solana.Instruction, error) {
	if err := args.Validate(); err != nil {
		return solana.Instruction{}, err
	}

	accounts := make([]solana.AccountMeta, len(args.Signers))
	for i, signer := range args.Signers {
		accounts[i] = solana.NewReadonlyAccountMeta(signer, true)
	}

	return solana.NewInstruction(ProgramKey, []byte(args.Text), accounts...), nil
}

// DecompileMemo parses the memo at index in m.
func DecompileMemo(m solana.Message, index int) (*Args, error) {
	i, err := m.DecompileInstruction(index, ProgramKey, -1)
	if err != nil {
		return nil, err
	}

	return &Args{
		Text:    string(i.Data),
		Signers: i.Accounts,
	}, nil
}
