// Package archivetest holds the behavioural contract every archive.Store
// backend must satisfy.
package archivetest

import (
	"context"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/require"

	"xdao.co/memo/archive"
	"xdao.co/memo/cidutil"
)

// NewStore constructs a fresh, empty store isolated from other tests.
type NewStore func(t *testing.T) archive.Store

func RunConformance(t *testing.T, newStore NewStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		s := newStore(t)
		want := []byte("verified memo body")

		id, err := s.Put(ctx, want)
		require.NoError(t, err)
		wantID, err := cidutil.CIDv1RawSHA256CID(want)
		require.NoError(t, err)
		require.Equal(t, wantID, id)

		got, err := s.Get(ctx, id)
		require.NoError(t, err)
		require.Equal(t, want, got)
	})

	t.Run("PutIdempotent", func(t *testing.T) {
		s := newStore(t)
		b := []byte("same memo")

		id1, err := s.Put(ctx, b)
		require.NoError(t, err)
		id2, err := s.Put(ctx, b)
		require.NoError(t, err)
		require.Equal(t, id1, id2)
	})

	t.Run("HasAndNotFound", func(t *testing.T) {
		s := newStore(t)
		b := []byte("absent memo")
		id, err := cidutil.CIDv1RawSHA256CID(b)
		require.NoError(t, err)

		require.False(t, s.Has(ctx, id))
		_, err = s.Get(ctx, id)
		require.True(t, archive.IsNotFound(err), "got err=%v want ErrNotFound", err)

		_, err = s.Put(ctx, b)
		require.NoError(t, err)
		require.True(t, s.Has(ctx, id))
	})

	t.Run("RejectUndefCID", func(t *testing.T) {
		s := newStore(t)
		var undef cid.Cid
		require.False(t, s.Has(ctx, undef))
		_, err := s.Get(ctx, undef)
		require.Error(t, err)
	})
}
