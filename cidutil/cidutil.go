package cidutil

import (
	"bytes"
	"errors"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

var (
	// ErrCIDMismatch is returned when bytes do not hash to the CID they were fetched under.
	ErrCIDMismatch = errors.New("cidutil: cid mismatch")
	// ErrNotRaw is returned by VerifyRawBlock for CIDs whose codec is not "raw".
	// Such CIDs address a DAG node, not the fetched bytes, and cannot be checked here.
	ErrNotRaw = errors.New("cidutil: cid codec is not raw")
)

// CIDv1RawSHA256 returns a CIDv1 string using the "raw" multicodec
// and a sha2-256 multihash.
func CIDv1RawSHA256(data []byte) string {
	id, err := CIDv1RawSHA256CID(data)
	if err != nil {
		return ""
	}
	return id.String()
}

// CIDv1RawSHA256CID returns a CIDv1 (raw + sha2-256) derived from data.
// This is the CID contract of the memo archive.
func CIDv1RawSHA256CID(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// VerifyRawBlock checks that data is the block addressed by id.
//
// Only raw-codec CIDs are checkable: the multihash is recomputed over data with
// the hash function named by the CID. Returns ErrNotRaw for other codecs.
func VerifyRawBlock(id cid.Cid, data []byte) error {
	if !id.Defined() {
		return ErrNotRaw
	}
	if id.Type() != cid.Raw {
		return ErrNotRaw
	}
	want, err := multihash.Decode(id.Hash())
	if err != nil {
		return err
	}
	got, err := multihash.Sum(data, want.Code, want.Length)
	if err != nil {
		return err
	}
	if !bytes.Equal(got, id.Hash()) {
		return ErrCIDMismatch
	}
	return nil
}
