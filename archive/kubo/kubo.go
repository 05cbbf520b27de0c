// Package kubo archives memo records as raw blocks in a local IPFS repository
// through the Kubo "ipfs" CLI.
//
// Records archived this way can be re-published to the network by the local
// node; the CID is the same raw + sha2-256 CID the other backends use.
package kubo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/ipfs/go-cid"

	"xdao.co/memo/archive"
	"xdao.co/memo/cidutil"
)

// Store shells out to the ipfs binary. It does not need a running daemon.
type Store struct {
	bin  string
	env  []string
	pin  bool
	exec func(ctx context.Context, stdin []byte, args ...string) ([]byte, error)
}

var _ archive.Store = (*Store)(nil)

type Options struct {
	// Bin is the ipfs binary; "ipfs" when empty.
	Bin string
	// Env overrides the command environment (e.g. IPFS_PATH=...). Nil inherits.
	Env []string
	// Pin pins stored blocks so repo GC keeps them.
	Pin bool
}

func New(opts Options) *Store {
	s := &Store{bin: opts.Bin, env: opts.Env, pin: opts.Pin}
	if s.bin == "" {
		s.bin = "ipfs"
	}
	s.exec = s.run
	return s
}

func (s *Store) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	want, err := cidutil.CIDv1RawSHA256CID(data)
	if err != nil {
		return cid.Undef, err
	}
	args := []string{"block", "put", "--cid-codec=raw", "--mhtype=sha2-256"}
	if s.pin {
		args = append(args, "--pin")
	}
	out, err := s.exec(ctx, data, args...)
	if err != nil {
		return cid.Undef, err
	}
	fields := strings.Fields(string(out))
	if len(fields) == 0 {
		return cid.Undef, errors.New("kubo: empty block put output")
	}
	got, err := cid.Decode(fields[0])
	if err != nil {
		return cid.Undef, fmt.Errorf("kubo: unexpected block put output: %w", err)
	}
	// Kubo may print the CID in a different base or version; compare hashes.
	if got.Type() != cid.Raw || !bytes.Equal(got.Hash(), want.Hash()) {
		return cid.Undef, archive.ErrCIDMismatch
	}
	return want, nil
}

func (s *Store) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, archive.ErrInvalidCID
	}
	out, err := s.exec(ctx, nil, "block", "get", "--offline", id.String())
	if err != nil {
		if isNotFound(err) {
			return nil, archive.ErrNotFound
		}
		return nil, err
	}
	if err := cidutil.VerifyRawBlock(id, out); err != nil {
		return nil, archive.ErrCIDMismatch
	}
	return out, nil
}

func (s *Store) Has(ctx context.Context, id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	_, err := s.exec(ctx, nil, "block", "stat", "--offline", id.String())
	return err == nil
}

func (s *Store) run(ctx context.Context, stdin []byte, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, s.bin, args...)
	if s.env != nil {
		cmd.Env = s.env
	}
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	out, err := cmd.Output()
	if err == nil {
		return out, nil
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		if msg := strings.TrimSpace(string(ee.Stderr)); msg != "" {
			return nil, fmt.Errorf("kubo: %s", msg)
		}
	}
	return nil, fmt.Errorf("kubo: %w", err)
}

func isNotFound(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found")
}
