package token

import (
	"bytes"
	"crypto/ed25519"

	"github.com/pkg/errors"

	"github.com/code-payments/code-solana-client/pkg/solana"
	"github.com/code-payments/code-solana-client/pkg/solana/system"
)

// AssociatedTokenAccountProgramKey is the address of the associated token
// account program.
//
// Current key: ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL
var AssociatedTokenAccountProgramKey = ed25519.PublicKey{140, 151, 37, 143, 78, 36, 137, 241, 187, 61, 16, 41, 20, 142, 13, 131, 11, 90, 19, 153, 218, 255, 16, 132, 4, 142, 123, 216, 219, 233, 248, 89}

const (
	associatedCommandCreate uint8 = iota
	associatedCommandCreateIdempotent
)

// GetAssociatedAccount returns the associated token account address of a
// wallet for a mint.
//
// Reference: https://spl.solana.com/associated-token-account#finding-the-associated-token-account-address
func GetAssociatedAccount(wallet, mint ed25519.PublicKey) (ed25519.PublicKey, error) {
	if err := solana.ValidateAddress("wallet", wallet); err != nil {
		return nil, err
	}
	if err := solana.ValidateAddress("mint", mint); err != nil {
		return nil, err
	}

	return solana.FindProgramAddress(
		AssociatedTokenAccountProgramKey,
		wallet,
		ProgramKey,
		mint,
	)
}

// CreateAssociatedAccountArgs creates the associated token account of Wallet
// for Mint, funded by Payer.
type CreateAssociatedAccountArgs struct {
	Payer  ed25519.PublicKey `mapstructure:"payer"`
	Wallet ed25519.PublicKey `mapstructure:"wallet"`
	Mint   ed25519.PublicKey `mapstructure:"mint"`
}

func (a CreateAssociatedAccountArgs) Validate() error {
	if err := solana.ValidateAddress("payer", a.Payer); err != nil {
		return err
	}
	if err := solana.ValidateAddress("wallet", a.Wallet); err != nil {
		return err
	}
	return solana.ValidateAddress("mint", a.Mint)
}

// CreateAssociatedAccount returns an instruction that creates the associated
// token account, along with its address. It fails on chain if the account
// already exists.
//
// Account references:
//  0. [WRITE, SIGNER] Funding account
//  1. [WRITE] Associated token account address
//  2. [] Wallet address
//  3. [] Mint
//  4. [] System program
//  5. [] Token program
//  6. [] Rent sysvar
//
// Reference: https://github.com/solana-labs/solana-program-library/blob/0639953c7dd0f5228c3ceda3ba68fece3b46ff1d/associated-token-account/program/src/lib.rs#L54
func CreateAssociatedAccount(args CreateAssociatedAccountArgs) (solana.Instruction, ed25519.PublicKey, error) {
	return createAssociatedAccount(args, associatedCommandCreate)
}

// CreateAssociatedAccountIdempotent is CreateAssociatedAccount, except it
// succeeds when the account already exists with the expected owner.
func CreateAssociatedAccountIdempotent(args CreateAssociatedAccountArgs) (solana.Instruction, ed25519.PublicKey, error) {
	return createAssociatedAccount(args, associatedCommandCreateIdempotent)
}

func createAssociatedAccount(args CreateAssociatedAccountArgs, command uint8) (solana.Instruction, ed25519.PublicKey, error) {
	if err := args.Validate(); err != nil {
		return solana.Instruction{}, nil, err
	}

	addr, err := GetAssociatedAccount(args.Wallet, args.Mint)
	if err != nil {
		return solana.Instruction{}, nil, err
	}

	return solana.NewInstruction(
		AssociatedTokenAccountProgramKey,
		[]byte{command},
		solana.NewAccountMeta(args.Payer, true),
		solana.NewAccountMeta(addr, false),
		solana.NewReadonlyAccountMeta(args.Wallet, false),
		solana.NewReadonlyAccountMeta(args.Mint, false),
		solana.NewReadonlyAccountMeta(system.ProgramKey, false),
		solana.NewReadonlyAccountMeta(ProgramKey, false),
		solana.NewReadonlyAccountMeta(system.RentSysVar, false),
	), addr, nil
}

// DecompiledCreateAssociatedAccount is a parsed create instruction.
type DecompiledCreateAssociatedAccount struct {
	CreateAssociatedAccountArgs

	Address    ed25519.PublicKey
	Idempotent bool
}

// DecompileCreateAssociatedAccount parses either create variant. An empty
// data payload is the legacy encoding of Create.
func DecompileCreateAssociatedAccount(m solana.Message, index int) (*DecompiledCreateAssociatedAccount, error) {
	i, err := m.DecompileInstruction(index, AssociatedTokenAccountProgramKey, 7)
	if err != nil {
		return nil, err
	}

	var idempotent bool
	switch {
	case len(i.Data) == 0 || bytes.Equal(i.Data, []byte{associatedCommandCreate}):
	case bytes.Equal(i.Data, []byte{associatedCommandCreateIdempotent}):
		idempotent = true
	default:
		return nil, solana.ErrIncorrectInstruction
	}

	if !bytes.Equal(i.Accounts[4], system.ProgramKey) {
		return nil, errors.New("system program key mismatch")
	}
	if !bytes.Equal(i.Accounts[5], ProgramKey) {
		return nil, errors.New("token program key mismatch")
	}
	if !bytes.Equal(i.Accounts[6], system.RentSysVar) {
		return nil, errors.New("rent sysvar mismatch")
	}

	return &DecompiledCreateAssociatedAccount{
		CreateAssociatedAccountArgs: CreateAssociatedAccountArgs{
			Payer:  i.Accounts[0],
			Wallet: i.Accounts[2],
			Mint:   i.Accounts[3],
		},
		Address:    i.Accounts[1],
		Idempotent: idempotent,
	}, nil
}
