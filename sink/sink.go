// Package sink delivers verified memo content to its consumers.
//
// A digest match proves the bytes are the ones the author committed, not that
// they are safe. Sinks therefore treat content as data: they render or store
// it and never evaluate it.
package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ipfs/go-cid"
	"go.uber.org/zap"

	"xdao.co/memo/archive"
)

var ErrEmptyPayload = errors.New("sink: empty payload")

// Delivery is one verified memo.
type Delivery struct {
	MemoID     uint64
	Sender     string
	Timestamp  time.Time
	ContentURI string
	// Digest is the verified 0x-prefixed Keccak-256 digest.
	Digest string
	// Content is the canonical content that hashed to Digest.
	Content string
}

// Sink receives exactly one verified Delivery per successful retrieval.
type Sink interface {
	Deliver(ctx context.Context, d Delivery) error
}

// Func adapts a function to Sink.
type Func func(ctx context.Context, d Delivery) error

func (f Func) Deliver(ctx context.Context, d Delivery) error { return f(ctx, d) }

// Discard accepts every non-empty delivery and does nothing.
var Discard Sink = Func(func(_ context.Context, d Delivery) error {
	return checkPayload(d)
})

func checkPayload(d Delivery) error {
	if d.Content == "" {
		return ErrEmptyPayload
	}
	return nil
}

// Writer renders verified content as text.
type Writer struct {
	W io.Writer
	// Header adds a short provenance header before the content.
	Header bool
}

func (w Writer) Deliver(_ context.Context, d Delivery) error {
	if err := checkPayload(d); err != nil {
		return err
	}
	if w.Header {
		if _, err := fmt.Fprintf(w.W, "memo %d from %s at %s\ndigest %s\n\n",
			d.MemoID, d.Sender, d.Timestamp.Format(time.RFC3339), d.Digest); err != nil {
			return err
		}
	}
	if _, err := io.WriteString(w.W, d.Content); err != nil {
		return err
	}
	if d.Content[len(d.Content)-1] != '\n' {
		_, err := io.WriteString(w.W, "\n")
		return err
	}
	return nil
}

// Archive stores verified content as an immutable record.
type Archive struct {
	Store  archive.Store
	Logger *zap.Logger
	// Stored, when set, is called with the record CID after a successful put.
	Stored func(d Delivery, id cid.Cid)
}

func (a Archive) Deliver(ctx context.Context, d Delivery) error {
	if err := checkPayload(d); err != nil {
		return err
	}
	if a.Store == nil {
		return errors.New("sink: archive has no store")
	}
	id, err := a.Store.Put(ctx, []byte(d.Content))
	if err != nil {
		return fmt.Errorf("sink: archive memo %d: %w", d.MemoID, err)
	}
	if a.Logger != nil {
		a.Logger.Info("memo archived",
			zap.Uint64("memo_id", d.MemoID),
			zap.String("cid", id.String()),
			zap.String("digest", d.Digest))
	}
	if a.Stored != nil {
		a.Stored(d, id)
	}
	return nil
}

// Multi delivers to each sink in order and stops at the first error.
type Multi []Sink

func (m Multi) Deliver(ctx context.Context, d Delivery) error {
	if err := checkPayload(d); err != nil {
		return err
	}
	for i, s := range m {
		if err := s.Deliver(ctx, d); err != nil {
			return fmt.Errorf("sink %d: %w", i, err)
		}
	}
	return nil
}
