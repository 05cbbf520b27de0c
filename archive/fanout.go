package archive

import (
	"context"
	"fmt"

	"github.com/ipfs/go-cid"

	"xdao.co/memo/cidutil"
)

// Named associates a Store with a stable backend name for reporting.
type Named struct {
	Name  string
	Store Store
}

// Ordered writes to its first backend only and reads from backends in slice
// order, falling through on ErrNotFound.
type Ordered struct {
	Backends []Named
}

// Replicated writes to every backend and requires all of them to report the
// same CID. Reads behave like Ordered.
type Replicated struct {
	Backends []Named
}

var (
	_ Store = Ordered{}
	_ Store = Replicated{}
)

func (o Ordered) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	if len(o.Backends) == 0 {
		return cid.Undef, ErrNoBackends
	}
	b := o.Backends[0]
	if b.Store == nil {
		return cid.Undef, fmt.Errorf("archive: nil store for backend %q", b.Name)
	}
	return b.Store.Put(ctx, data)
}

func (o Ordered) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	return getInOrder(ctx, o.Backends, id)
}

func (o Ordered) Has(ctx context.Context, id cid.Cid) bool {
	return hasAny(ctx, o.Backends, id)
}

// PutAll writes data to all backends and returns the expected CID together
// with what each backend reported. A disagreeing backend yields ErrCIDMismatch.
func (r Replicated) PutAll(ctx context.Context, data []byte) (cid.Cid, map[string]cid.Cid, error) {
	want, err := cidutil.CIDv1RawSHA256CID(data)
	if err != nil {
		return cid.Undef, nil, err
	}
	if len(r.Backends) == 0 {
		return cid.Undef, nil, ErrNoBackends
	}
	got := make(map[string]cid.Cid, len(r.Backends))
	for _, b := range r.Backends {
		if b.Store == nil {
			return cid.Undef, got, fmt.Errorf("archive: nil store for backend %q", b.Name)
		}
		id, err := b.Store.Put(ctx, data)
		if err != nil {
			return cid.Undef, got, fmt.Errorf("archive: backend %q: %w", b.Name, err)
		}
		got[b.Name] = id
		if id != want {
			return cid.Undef, got, fmt.Errorf("archive: backend %q: %w", b.Name, ErrCIDMismatch)
		}
	}
	return want, got, nil
}

func (r Replicated) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	id, _, err := r.PutAll(ctx, data)
	return id, err
}

func (r Replicated) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	return getInOrder(ctx, r.Backends, id)
}

func (r Replicated) Has(ctx context.Context, id cid.Cid) bool {
	return hasAny(ctx, r.Backends, id)
}

func getInOrder(ctx context.Context, backends []Named, id cid.Cid) ([]byte, error) {
	for _, b := range backends {
		if b.Store == nil {
			continue
		}
		data, err := b.Store.Get(ctx, id)
		if err == nil {
			return data, nil
		}
		if IsNotFound(err) {
			continue
		}
		return nil, err
	}
	return nil, ErrNotFound
}

func hasAny(ctx context.Context, backends []Named, id cid.Cid) bool {
	for _, b := range backends {
		if b.Store != nil && b.Store.Has(ctx, id) {
			return true
		}
	}
	return false
}
