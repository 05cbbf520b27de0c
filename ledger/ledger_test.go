package ledger

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAddress = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

type fakeCaller struct {
	t      *testing.T
	calls  int
	msg    ethereum.CallMsg
	result []byte
	err    error
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	f.calls++
	f.msg = msg
	assert.Nil(f.t, block, "reads the latest block")
	return f.result, f.err
}

func packRecord(t *testing.T, c *Contract, r Record) []byte {
	t.Helper()
	out, err := c.abi.Methods[getMemo].Outputs.Pack(r.Sender, new(big.Int).SetUint64(r.Timestamp), r.ContentURI, r.ExpectedDigest)
	require.NoError(t, err)
	return out
}

func TestContract_Memo(t *testing.T) {
	caller := &fakeCaller{t: t}
	c, err := NewContract(caller, testAddress)
	require.NoError(t, err)

	want := Record{
		Sender:     common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		Timestamp:  1717000000,
		ContentURI: "ipfs://abc123",
	}
	copy(want.ExpectedDigest[:], bytes.Repeat([]byte{0xab}, 32))
	caller.result = packRecord(t, c, want)

	got, err := c.Memo(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, 1, caller.calls)

	require.NotNil(t, caller.msg.To)
	assert.Equal(t, common.HexToAddress(testAddress), *caller.msg.To)
	wantData, err := c.abi.Pack(getMemo, big.NewInt(7))
	require.NoError(t, err)
	assert.Equal(t, wantData, caller.msg.Data)
	assert.Equal(t, "2024-05-29T16:26:40Z", got.Time().Format("2006-01-02T15:04:05Z07:00"))
}

func TestContract_MemoCallError(t *testing.T) {
	boom := errors.New("execution reverted")
	c, err := NewContract(&fakeCaller{t: t, err: boom}, testAddress)
	require.NoError(t, err)

	_, err = c.Memo(context.Background(), 0)
	require.ErrorIs(t, err, boom)
}

func TestContract_MemoMalformed(t *testing.T) {
	c, err := NewContract(&fakeCaller{t: t, result: []byte{}}, testAddress)
	require.NoError(t, err)

	_, err = c.Memo(context.Background(), 0)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestNewContract_InvalidAddress(t *testing.T) {
	for _, addr := range []string{"", "0x1234", "not-an-address"} {
		_, err := NewContract(&fakeCaller{t: t}, addr)
		assert.ErrorIs(t, err, ErrInvalidAddress, "address %q", addr)
	}
	assert.True(t, IsAddress("  "+testAddress+" "))
}
