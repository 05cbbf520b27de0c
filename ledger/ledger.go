// Package ledger reads memo records from the memo contract.
//
// The contract is only ever read. Records are written by external
// transactions and are immutable once committed.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// MemoABI is the read surface of the memo contract.
const MemoABI = `[{
	"type": "function",
	"name": "getMemo",
	"stateMutability": "view",
	"inputs": [{"name": "id", "type": "uint256"}],
	"outputs": [
		{"name": "from", "type": "address"},
		{"name": "time", "type": "uint256"},
		{"name": "uri", "type": "string"},
		{"name": "hash", "type": "bytes32"}
	]
}]`

const getMemo = "getMemo"

var (
	ErrInvalidAddress = errors.New("ledger: invalid contract address")
	ErrMalformed      = errors.New("ledger: malformed getMemo result")
)

// Record is a memo as committed on-chain.
type Record struct {
	Sender         common.Address
	Timestamp      uint64
	ContentURI     string
	ExpectedDigest [32]byte
}

// Time returns Timestamp as UTC wall time.
func (r Record) Time() time.Time {
	return time.Unix(int64(r.Timestamp), 0).UTC()
}

// Reader reads one memo record by id. Implementations must be read-only.
type Reader interface {
	Memo(ctx context.Context, id uint64) (Record, error)
}

// IsAddress reports whether s is a 20-byte hex contract address.
func IsAddress(s string) bool {
	return common.IsHexAddress(strings.TrimSpace(s))
}

// Contract reads memos through an EVM contract call.
type Contract struct {
	caller  ethereum.ContractCaller
	address common.Address
	abi     abi.ABI
	close   func()
}

var _ Reader = (*Contract)(nil)

// NewContract binds the memo ABI to address over caller.
func NewContract(caller ethereum.ContractCaller, address string) (*Contract, error) {
	if !IsAddress(address) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	parsed, err := abi.JSON(strings.NewReader(MemoABI))
	if err != nil {
		return nil, err
	}
	return &Contract{
		caller:  caller,
		address: common.HexToAddress(strings.TrimSpace(address)),
		abi:     parsed,
	}, nil
}

// Dial connects to the JSON-RPC endpoint and binds the contract at address.
// Callers must Close the returned contract.
func Dial(ctx context.Context, endpoint, address string) (*Contract, error) {
	if !IsAddress(address) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	client, err := ethclient.DialContext(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("ledger: dial: %w", err)
	}
	c, err := NewContract(client, address)
	if err != nil {
		client.Close()
		return nil, err
	}
	c.close = client.Close
	return c, nil
}

func (c *Contract) Close() {
	if c != nil && c.close != nil {
		c.close()
	}
}

// Address returns the bound contract address.
func (c *Contract) Address() common.Address { return c.address }

// Memo calls getMemo(id) against the latest block.
func (c *Contract) Memo(ctx context.Context, id uint64) (Record, error) {
	data, err := c.abi.Pack(getMemo, new(big.Int).SetUint64(id))
	if err != nil {
		return Record{}, err
	}
	to := c.address
	out, err := c.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return Record{}, fmt.Errorf("ledger: getMemo(%d): %w", id, err)
	}
	return c.decode(out)
}

func (c *Contract) decode(out []byte) (Record, error) {
	values, err := c.abi.Unpack(getMemo, out)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(values) != 4 {
		return Record{}, fmt.Errorf("%w: %d values", ErrMalformed, len(values))
	}
	sender, ok1 := values[0].(common.Address)
	ts, ok2 := values[1].(*big.Int)
	uri, ok3 := values[2].(string)
	hash, ok4 := values[3].([32]byte)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return Record{}, fmt.Errorf("%w: unexpected types", ErrMalformed)
	}
	if !ts.IsUint64() {
		return Record{}, fmt.Errorf("%w: timestamp out of range", ErrMalformed)
	}
	return Record{
		Sender:         sender,
		Timestamp:      ts.Uint64(),
		ContentURI:     uri,
		ExpectedDigest: hash,
	}, nil
}
