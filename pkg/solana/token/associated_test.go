package token

import (
	"crypto/ed25519"
	"testing"

	"github.com/mr-tron/base58/base58"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/code-solana-client/pkg/solana"
	"github.com/code-payments/code-solana-client/pkg/solana/system"
	"github.com/code-payments/code-solana-client/pkg/testutil"
)

func TestGetAssociatedAccount(t *testing.T) {
	// Values generated from the spl reference implementation.
	wallet, err := base58.Decode("4uQeVj5tqViQh7yWWGStvkEG1Zmhx6uasJtWCJziofM")
	require.NoError(t, err)
	mint, err := base58.Decode("8opHzTAnfzRpPEx21XtnrVTX28YQuCpAjcn1PczScKh")
	require.NoError(t, err)
	addr, err := base58.Decode("H7MQwEzt97tUJryocn3qaEoy2ymWstwyEk1i9Yv3EmuZ")
	require.NoError(t, err)

	actual, err := GetAssociatedAccount(wallet, mint)
	require.NoError(t, err)
	assert.EqualValues(t, addr, actual)

	_, err = GetAssociatedAccount(wallet[:31], mint)
	assert.True(t, errors.Is(err, solana.ErrValidation))
}

func TestCreateAssociatedAccount(t *testing.T) {
	keys := testutil.GenerateSolanaKeys(t, 3)

	args := CreateAssociatedAccountArgs{
		Payer:  keys[0],
		Wallet: keys[1],
		Mint:   keys[2],
	}

	expectedAddr, err := GetAssociatedAccount(keys[1], keys[2])
	require.NoError(t, err)

	for _, tc := range []struct {
		create     func(CreateAssociatedAccountArgs) (solana.Instruction, ed25519.PublicKey, error)
		data       byte
		idempotent bool
	}{
		{
			create: func(args CreateAssociatedAccountArgs) (solana.Instruction, ed25519.PublicKey, error) {
				return CreateAssociatedAccount(args)
			},
			data: 0,
		},
		{
			create: func(args CreateAssociatedAccountArgs) (solana.Instruction, ed25519.PublicKey, error) {
				return CreateAssociatedAccountIdempotent(args)
			},
			data:       1,
			idempotent: true,
		},
	} {
		instruction, addr, err := tc.create(args)
		require.NoError(t, err)
		assert.EqualValues(t, expectedAddr, addr)

		assert.EqualValues(t, AssociatedTokenAccountProgramKey, instruction.Program)
		assert.Equal(t, []byte{tc.data}, instruction.Data)
		require.Len(t, instruction.Accounts, 7)
		assert.True(t, instruction.Accounts[0].IsSigner)
		assert.True(t, instruction.Accounts[0].IsWritable)
		assert.False(t, instruction.Accounts[1].IsSigner)
		assert.True(t, instruction.Accounts[1].IsWritable)
		for i := 2; i < len(instruction.Accounts); i++ {
			assert.False(t, instruction.Accounts[i].IsSigner)
			assert.False(t, instruction.Accounts[i].IsWritable)
		}

		assert.EqualValues(t, system.ProgramKey, instruction.Accounts[4].PublicKey)
		assert.EqualValues(t, ProgramKey, instruction.Accounts[5].PublicKey)
		assert.EqualValues(t, system.RentSysVar, instruction.Accounts[6].PublicKey)

		decompiled, err := DecompileCreateAssociatedAccount(compile(t, keys[0], instruction), 0)
		require.NoError(t, err)
		assert.Equal(t, args, decompiled.CreateAssociatedAccountArgs)
		assert.EqualValues(t, expectedAddr, decompiled.Address)
		assert.Equal(t, tc.idempotent, decompiled.Idempotent)
	}
}

func TestDecompileCreateAssociatedAccount_Invalid(t *testing.T) {
	keys := testutil.GenerateSolanaKeys(t, 3)

	instruction, _, err := CreateAssociatedAccount(CreateAssociatedAccountArgs{
		Payer:  keys[0],
		Wallet: keys[1],
		Mint:   keys[2],
	})
	require.NoError(t, err)

	legacy := instruction
	legacy.Data = nil
	decompiled, err := DecompileCreateAssociatedAccount(compile(t, keys[0], legacy), 0)
	require.NoError(t, err)
	assert.False(t, decompiled.Idempotent)

	unknown := instruction
	unknown.Data = []byte{2}
	_, err = DecompileCreateAssociatedAccount(compile(t, keys[0], unknown), 0)
	assert.Equal(t, solana.ErrIncorrectInstruction, err)

	wrongRent := instruction
	wrongRent.Accounts = append([]solana.AccountMeta{}, instruction.Accounts...)
	wrongRent.Accounts[6] = solana.NewReadonlyAccountMeta(system.ClockSysVar, false)
	_, err = DecompileCreateAssociatedAccount(compile(t, keys[0], wrongRent), 0)
	assert.Error(t, err)
}
