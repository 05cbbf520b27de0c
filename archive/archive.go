// Package archive stores verified memo content as immutable, content-addressed
// records.
//
// Records are keyed strictly by CID (cidutil.CIDv1RawSHA256CID of the stored
// bytes). Every backend recomputes the CID on read and write; a backend that
// hands back different bytes is reported, never trusted.
package archive

import (
	"context"
	"errors"

	"github.com/ipfs/go-cid"
)

var (
	ErrNotFound    = errors.New("archive: not found")
	ErrInvalidCID  = errors.New("archive: invalid cid")
	ErrCIDMismatch = errors.New("archive: cid mismatch")
	ErrImmutable   = errors.New("archive: immutable record mismatch")
	ErrNoBackends  = errors.New("archive: no backends")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// Store is a content-addressed record store.
//
// Contract:
// - Put MUST be idempotent.
// - Stored records MUST be immutable.
// - Get MUST return ErrNotFound when the CID is absent.
type Store interface {
	Put(ctx context.Context, data []byte) (cid.Cid, error)
	Get(ctx context.Context, id cid.Cid) ([]byte, error)
	Has(ctx context.Context, id cid.Cid) bool
}
