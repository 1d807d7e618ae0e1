package computebudget

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/code-solana-client/pkg/solana"
)

func TestSetComputeUnitLimit(t *testing.T) {
	instruction, err := SetComputeUnitLimit(SetComputeUnitLimitArgs{Units: 200_000})
	require.NoError(t, err)

	assert.EqualValues(t, ProgramKey, instruction.Program)
	assert.Empty(t, instruction.Accounts)
	assert.Equal(t, []byte{2, 0x40, 0x0d, 0x03, 0x00}, instruction.Data)

	units, err := ParseSetComputeUnitLimitIxnData(instruction.Data)
	require.NoError(t, err)
	assert.EqualValues(t, 200_000, units)

	for _, units := range []uint32{0, MaxComputeUnitLimit + 1} {
		_, err := SetComputeUnitLimit(SetComputeUnitLimitArgs{Units: units})
		assert.True(t, errors.Is(err, solana.ErrValidation))
	}
}

func TestSetComputeUnitPrice(t *testing.T) {
	instruction, err := SetComputeUnitPrice(SetComputeUnitPriceArgs{MicroLamports: 1_000})
	require.NoError(t, err)

	assert.EqualValues(t, ProgramKey, instruction.Program)
	assert.Empty(t, instruction.Accounts)
	assert.Equal(t, []byte{3, 0xe8, 0x03, 0, 0, 0, 0, 0, 0}, instruction.Data)

	price, err := ParseSetComputeUnitPriceIxnData(instruction.Data)
	require.NoError(t, err)
	assert.EqualValues(t, 1_000, price)

	_, err = SetComputeUnitPrice(SetComputeUnitPriceArgs{})
	assert.NoError(t, err)
}

func TestParse_Invalid(t *testing.T) {
	limit, err := SetComputeUnitLimit(SetComputeUnitLimitArgs{Units: 1})
	require.NoError(t, err)
	price, err := SetComputeUnitPrice(SetComputeUnitPriceArgs{MicroLamports: 1})
	require.NoError(t, err)

	_, err = ParseSetComputeUnitLimitIxnData(limit.Data[:4])
	assert.Error(t, err)
	_, err = ParseSetComputeUnitPriceIxnData(append(price.Data, 0))
	assert.Error(t, err)

	mislabeled := append([]byte{}, price.Data...)
	mislabeled[0] = byte(CommandRequestHeapFrame)
	_, err = ParseSetComputeUnitPriceIxnData(mislabeled)
	assert.Equal(t, solana.ErrIncorrectInstruction, err)
}
