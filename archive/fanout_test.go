package archive_test

import (
	"context"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/require"

	"xdao.co/memo/archive"
	"xdao.co/memo/archive/archivetest"
	"xdao.co/memo/archive/localfs"
	"xdao.co/memo/cidutil"
)

func newLocal(t *testing.T) *localfs.Store {
	t.Helper()
	s, err := localfs.New(t.TempDir())
	require.NoError(t, err)
	return s
}

// lyingStore reports a CID that does not belong to the written bytes.
type lyingStore struct{ archive.Store }

func (l lyingStore) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	if _, err := l.Store.Put(ctx, data); err != nil {
		return cid.Undef, err
	}
	return cidutil.CIDv1RawSHA256CID(append([]byte("x"), data...))
}

func TestOrdered_Conformance(t *testing.T) {
	archivetest.RunConformance(t, func(t *testing.T) archive.Store {
		return archive.Ordered{Backends: []archive.Named{{Name: "a", Store: newLocal(t)}, {Name: "b", Store: newLocal(t)}}}
	})
}

func TestReplicated_Conformance(t *testing.T) {
	archivetest.RunConformance(t, func(t *testing.T) archive.Store {
		return archive.Replicated{Backends: []archive.Named{{Name: "a", Store: newLocal(t)}, {Name: "b", Store: newLocal(t)}}}
	})
}

func TestOrdered_WritesFirstReadsFallback(t *testing.T) {
	ctx := context.Background()
	first, second := newLocal(t), newLocal(t)
	o := archive.Ordered{Backends: []archive.Named{{Name: "first", Store: first}, {Name: "second", Store: second}}}

	id, err := o.Put(ctx, []byte("memo"))
	require.NoError(t, err)
	require.True(t, first.Has(ctx, id))
	require.False(t, second.Has(ctx, id))

	id2, err := second.Put(ctx, []byte("only in second"))
	require.NoError(t, err)
	got, err := o.Get(ctx, id2)
	require.NoError(t, err)
	require.Equal(t, "only in second", string(got))
}

func TestReplicated_PutAll(t *testing.T) {
	ctx := context.Background()
	a, b := newLocal(t), newLocal(t)
	r := archive.Replicated{Backends: []archive.Named{{Name: "a", Store: a}, {Name: "b", Store: b}}}

	id, per, err := r.PutAll(ctx, []byte("memo"))
	require.NoError(t, err)
	require.Equal(t, map[string]cid.Cid{"a": id, "b": id}, per)
	require.True(t, a.Has(ctx, id))
	require.True(t, b.Has(ctx, id))
}

func TestReplicated_RejectsDisagreeingBackend(t *testing.T) {
	r := archive.Replicated{Backends: []archive.Named{
		{Name: "honest", Store: newLocal(t)},
		{Name: "liar", Store: lyingStore{newLocal(t)}},
	}}
	_, err := r.Put(context.Background(), []byte("memo"))
	require.ErrorIs(t, err, archive.ErrCIDMismatch)
}

func TestEmptyFanout(t *testing.T) {
	_, err := archive.Ordered{}.Put(context.Background(), []byte("x"))
	require.ErrorIs(t, err, archive.ErrNoBackends)
	_, err = archive.Replicated{}.Put(context.Background(), []byte("x"))
	require.ErrorIs(t, err, archive.ErrNoBackends)
}

func TestOrdered_NilFirstStore(t *testing.T) {
	o := archive.Ordered{Backends: []archive.Named{{Name: "primary"}}}
	_, err := o.Put(context.Background(), []byte("x"))
	require.ErrorContains(t, err, `nil store for backend "primary"`)
}
