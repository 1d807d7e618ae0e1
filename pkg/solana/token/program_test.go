package token

import (
	"crypto/ed25519"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/code-solana-client/pkg/solana"
	"github.com/code-payments/code-solana-client/pkg/solana/system"
	"github.com/code-payments/code-solana-client/pkg/testutil"
)

func compile(t *testing.T, payer ed25519.PublicKey, instructions ...solana.Instruction) solana.Message {
	m, err := solana.Compile(payer, solana.Blockhash{}, instructions...)
	require.NoError(t, err)

	var decoded solana.Message
	require.NoError(t, decoded.Unmarshal(m.Marshal()))
	return decoded
}

func TestInitializeAccount(t *testing.T) {
	keys := testutil.GenerateSolanaKeys(t, 4)

	args := InitializeAccountArgs{
		Account: keys[1],
		Mint:    keys[2],
		Owner:   keys[3],
	}
	instruction, err := InitializeAccount(args)
	require.NoError(t, err)

	assert.Equal(t, []byte{byte(CommandInitializeAccount)}, instruction.Data)
	require.Len(t, instruction.Accounts, 4)
	assert.True(t, instruction.Accounts[0].IsWritable)
	assert.False(t, instruction.Accounts[0].IsSigner)
	for i := 1; i < 4; i++ {
		assert.False(t, instruction.Accounts[i].IsWritable)
		assert.False(t, instruction.Accounts[i].IsSigner)
	}
	assert.EqualValues(t, system.RentSysVar, instruction.Accounts[3].PublicKey)

	decompiled, err := DecompileInitializeAccount(compile(t, keys[0], instruction), 0)
	require.NoError(t, err)
	assert.Equal(t, args, *decompiled)
}

func TestTransfer(t *testing.T) {
	keys := testutil.GenerateSolanaKeys(t, 3)

	args := TransferArgs{
		Source:      keys[1],
		Destination: keys[2],
		Owner:       keys[0],
		Amount:      123456789,
	}
	instruction, err := Transfer(args)
	require.NoError(t, err)

	assert.EqualValues(t, ProgramKey, instruction.Program)
	assert.Equal(t, []byte{3, 0x15, 0xcd, 0x5b, 0x07, 0, 0, 0, 0}, instruction.Data)
	require.Len(t, instruction.Accounts, 3)
	assert.Equal(t, solana.NewAccountMeta(keys[1], false), instruction.Accounts[0])
	assert.Equal(t, solana.NewAccountMeta(keys[2], false), instruction.Accounts[1])
	assert.Equal(t, solana.NewReadonlyAccountMeta(keys[0], true), instruction.Accounts[2])

	m := compile(t, keys[0], instruction)

	command, err := GetCommand(m, 0)
	require.NoError(t, err)
	assert.Equal(t, CommandTransfer, command)

	decompiled, err := DecompileTransfer(m, 0)
	require.NoError(t, err)
	assert.Equal(t, args, *decompiled)

	_, err = DecompileTransferChecked(m, 0)
	assert.Equal(t, solana.ErrIncorrectInstruction, err)
	_, err = DecompileCloseAccount(m, 0)
	assert.Equal(t, solana.ErrIncorrectInstruction, err)
}

func TestTransfer_Multisig(t *testing.T) {
	keys := testutil.GenerateSolanaKeys(t, 5)

	instruction, err := Transfer(TransferArgs{
		Source:      keys[1],
		Destination: keys[2],
		Owner:       keys[3],
		Amount:      10,
	})
	require.NoError(t, err)
	instruction.Accounts = append(instruction.Accounts, solana.NewReadonlyAccountMeta(keys[4], true))

	decompiled, err := DecompileTransfer(compile(t, keys[0], instruction), 0)
	require.NoError(t, err)
	assert.Equal(t, keys[3], decompiled.Owner)
	assert.EqualValues(t, 10, decompiled.Amount)
}

func TestTransferChecked(t *testing.T) {
	keys := testutil.GenerateSolanaKeys(t, 4)

	args := TransferCheckedArgs{
		Source:      keys[1],
		Mint:        keys[3],
		Destination: keys[2],
		Owner:       keys[0],
		Amount:      1_000_000,
		Decimals:    6,
	}
	instruction, err := TransferChecked(args)
	require.NoError(t, err)

	assert.Equal(t, []byte{12, 0x40, 0x42, 0x0f, 0, 0, 0, 0, 0, 6}, instruction.Data)
	require.Len(t, instruction.Accounts, 4)
	assert.Equal(t, solana.NewReadonlyAccountMeta(keys[3], false), instruction.Accounts[1])
	assert.Equal(t, solana.NewReadonlyAccountMeta(keys[0], true), instruction.Accounts[3])

	decompiled, err := DecompileTransferChecked(compile(t, keys[0], instruction), 0)
	require.NoError(t, err)
	assert.Equal(t, args, *decompiled)
}

func TestCloseAccount(t *testing.T) {
	keys := testutil.GenerateSolanaKeys(t, 3)

	args := CloseAccountArgs{
		Account:     keys[1],
		Destination: keys[2],
		Owner:       keys[0],
	}
	instruction, err := CloseAccount(args)
	require.NoError(t, err)

	assert.Equal(t, []byte{byte(CommandCloseAccount)}, instruction.Data)
	require.Len(t, instruction.Accounts, 3)
	assert.True(t, instruction.Accounts[0].IsWritable)
	assert.True(t, instruction.Accounts[1].IsWritable)
	assert.True(t, instruction.Accounts[2].IsSigner)

	decompiled, err := DecompileCloseAccount(compile(t, keys[0], instruction), 0)
	require.NoError(t, err)
	assert.Equal(t, args, *decompiled)
}

func TestDecompile_Invalid(t *testing.T) {
	keys := testutil.GenerateSolanaKeys(t, 4)

	transfer, err := Transfer(TransferArgs{Source: keys[1], Destination: keys[2], Owner: keys[0], Amount: 1})
	require.NoError(t, err)

	short := transfer
	short.Data = transfer.Data[:5]
	_, err = DecompileTransfer(compile(t, keys[0], short), 0)
	assert.Error(t, err)

	trailing := transfer
	trailing.Data = append(append([]byte{}, transfer.Data...), 0)
	_, err = DecompileTransfer(compile(t, keys[0], trailing), 0)
	assert.Error(t, err)

	fewer := transfer
	fewer.Accounts = transfer.Accounts[:2]
	_, err = DecompileTransfer(compile(t, keys[0], fewer), 0)
	assert.Error(t, err)

	other := solana.NewInstruction(keys[3], transfer.Data, transfer.Accounts...)
	_, err = DecompileTransfer(compile(t, keys[0], other), 0)
	assert.Equal(t, solana.ErrIncorrectProgram, err)

	empty := solana.NewInstruction(ProgramKey, nil)
	_, err = GetCommand(compile(t, keys[0], empty), 0)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	keys := testutil.GenerateSolanaKeys(t, 4)

	for _, tc := range []struct {
		name  string
		field string
		build func() error
	}{
		{
			name:  "transfer zero amount",
			field: "amount",
			build: func() error {
				_, err := Transfer(TransferArgs{Source: keys[0], Destination: keys[1], Owner: keys[2]})
				return err
			},
		},
		{
			name:  "transfer missing owner",
			field: "owner",
			build: func() error {
				_, err := Transfer(TransferArgs{Source: keys[0], Destination: keys[1], Amount: 1})
				return err
			},
		},
		{
			name:  "checked missing mint",
			field: "mint",
			build: func() error {
				_, err := TransferChecked(TransferCheckedArgs{Source: keys[0], Destination: keys[1], Owner: keys[2], Amount: 1})
				return err
			},
		},
		{
			name:  "checked decimals",
			field: "decimals",
			build: func() error {
				_, err := TransferChecked(TransferCheckedArgs{Source: keys[0], Mint: keys[3], Destination: keys[1], Owner: keys[2], Amount: 1, Decimals: MaxDecimals + 1})
				return err
			},
		},
		{
			name:  "close into itself",
			field: "destination",
			build: func() error {
				_, err := CloseAccount(CloseAccountArgs{Account: keys[0], Destination: keys[0], Owner: keys[2]})
				return err
			},
		},
		{
			name:  "initialize short mint",
			field: "mint",
			build: func() error {
				_, err := InitializeAccount(InitializeAccountArgs{Account: keys[0], Mint: keys[1][:10], Owner: keys[2]})
				return err
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.build()
			require.Error(t, err)
			assert.True(t, errors.Is(err, solana.ErrValidation))

			var validationErr *solana.ValidationError
			require.True(t, errors.As(err, &validationErr))
			assert.Equal(t, tc.field, validationErr.Field)
		})
	}
}
