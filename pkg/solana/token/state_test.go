package token

import (
	"encoding/hex"
	"testing"

	"github.com/mr-tron/base58/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/code-solana-client/pkg/solana"
	"github.com/code-payments/code-solana-client/pkg/testutil"
)

func TestUnmarshal(t *testing.T) {
	data, err := hex.DecodeString("118a08c9d4cc46c576282e0daf050bbdb04f03313e35e5db3f3def69fa1eeec42b15a9cd4bef2cd809e464570d2a6cbd9bcc64e32ea4ebbcf748757bbb3dd5bd000084e2506ce67c000000000000000000000000000000000000000000000000000000000000000000000000010000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000")
	require.NoError(t, err)

	mint, err := base58.Decode("2BU1Xgyzqixhjaq9Pa5cNsaa1gSejLeNtDaDRv29qoZm")
	require.NoError(t, err)

	var a Account
	require.NoError(t, a.Unmarshal(data))
	assert.Equal(t, mint, []byte(a.Mint))
	assert.Equal(t, uint64(9e13*1e5), a.Amount)
	assert.Equal(t, AccountStateInitialized, a.State)
	assert.Nil(t, a.Delegate)
	assert.Nil(t, a.IsNative)
	assert.Nil(t, a.CloseAuthority)

	assert.Equal(t, data, a.Marshal())

	var short Account
	assert.ErrorIs(t, short.Unmarshal(data[:AccountSize-1]), ErrInvalidAccountSize)
}

func TestRoundTrip(t *testing.T) {
	keys := testutil.GenerateSolanaKeys(t, 4)

	isNative := uint64(2039280)
	expected := Account{
		Mint:            keys[0],
		Owner:           keys[1],
		Amount:          10,
		Delegate:        keys[2],
		State:           AccountStateFrozen,
		IsNative:        &isNative,
		DelegatedAmount: 5,
		CloseAuthority:  keys[3],
	}

	data := expected.Marshal()
	assert.Len(t, data, AccountSize)

	var actual Account
	require.NoError(t, actual.Unmarshal(data))
	assert.Equal(t, expected, actual)
}

func TestGetAccount(t *testing.T) {
	keys := testutil.GenerateSolanaKeys(t, 3)

	account := Account{
		Mint:  keys[0],
		Owner: keys[1],
		State: AccountStateInitialized,
	}
	info := solana.AccountInfo{
		Owner: ProgramKey,
		Data:  account.Marshal(),
	}

	actual, err := GetAccount(info, keys[0])
	require.NoError(t, err)
	assert.Equal(t, keys[1], actual.Owner)

	_, err = GetAccount(info, keys[2])
	assert.ErrorIs(t, err, ErrMintMismatch)

	_, err = GetAccount(solana.AccountInfo{Owner: keys[2], Data: info.Data}, keys[0])
	assert.ErrorIs(t, err, ErrInvalidAccountOwner)

	uninitialized := account
	uninitialized.State = AccountStateUninitialized
	_, err = GetAccount(solana.AccountInfo{Owner: ProgramKey, Data: uninitialized.Marshal()}, keys[0])
	assert.ErrorIs(t, err, ErrAccountUninitialized)
}
