// Package memo retrieves memos committed on-chain and delivers their content
// only after it hashes to the digest the author committed.
//
// A retrieval runs a fixed sequence of steps:
//
//	config -> ledger -> resolve -> fetch -> extract -> verify -> deliver
//
// and stops at the first failure. Nothing reaches the sink unless the
// computed Keccak-256 digest of the extracted content equals the on-chain
// digest. Gateways are transport, not authority.
package memo

import (
	"context"
	"time"

	"go.uber.org/zap"

	"xdao.co/memo/cidutil"
	"xdao.co/memo/content"
	"xdao.co/memo/digest"
	"xdao.co/memo/gateway"
	"xdao.co/memo/ledger"
	"xdao.co/memo/model"
	"xdao.co/memo/sink"
)

// Operator-facing failure messages.
const (
	msgLedger     = "Could not read memo record from ledger"
	msgFetch      = "Could not fetch memo content from gateway"
	msgBlock      = "Gateway response does not match the content identifier"
	msgExtraction = "Could not extract memo content from IPFS response"
	msgIntegrity  = "Hash mismatch! Memo integrity failed."
	msgSink       = "Could not deliver verified memo"
)

// Fetcher retrieves a gateway URL. *gateway.Client implements it.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*gateway.Response, error)
}

type dialFunc func(ctx context.Context, endpoint, address string) (ledger.Reader, func(), error)

func dialContract(ctx context.Context, endpoint, address string) (ledger.Reader, func(), error) {
	c, err := ledger.Dial(ctx, endpoint, address)
	if err != nil {
		return nil, nil, err
	}
	return c, c.Close, nil
}

// Pipeline runs verified retrievals. It holds no per-retrieval state and is
// safe for concurrent use.
type Pipeline struct {
	cfg     Config
	ledger  ledger.Reader
	dial    dialFunc
	fetcher Fetcher
	sink    sink.Sink
	log     *zap.Logger
}

type Option func(*Pipeline)

// WithLedger uses r instead of dialing Config.LedgerEndpointURL.
func WithLedger(r ledger.Reader) Option {
	return func(p *Pipeline) { p.ledger = r }
}

func WithFetcher(f Fetcher) Option {
	return func(p *Pipeline) { p.fetcher = f }
}

func WithSink(s sink.Sink) Option {
	return func(p *Pipeline) { p.sink = s }
}

func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.log = l
		}
	}
}

// New builds a Pipeline. Without options it dials the ledger per retrieval,
// fetches through a default gateway.Client and discards delivered content.
func New(cfg Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:  cfg,
		dial: dialContract,
		sink: sink.Discard,
		log:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.fetcher == nil {
		p.fetcher = gateway.New(gateway.Options{Logger: p.log})
	}
	return p
}

// Outcome is a verified retrieval.
type Outcome struct {
	MemoID     uint64
	Record     ledger.Record
	GatewayURL string
	Content    string
	Rule       content.Rule
	Digest     digest.Digest
}

// Model projects o onto the stable report shape.
func (o *Outcome) Model() model.Outcome {
	return model.Outcome{
		MemoID:     o.MemoID,
		Status:     model.StatusVerified,
		Sender:     o.Record.Sender.Hex(),
		Timestamp:  int64(o.Record.Timestamp),
		ContentURI: o.Record.ContentURI,
		GatewayURL: o.GatewayURL,
		Digest:     o.Digest.Hex(),
		Rule:       string(o.Rule),
		Bytes:      len(o.Content),
	}
}

// Report returns the model outcome of a Retrieve call.
func Report(memoID uint64, o *Outcome, err error) model.Outcome {
	if err != nil || o == nil {
		return model.Rejected(memoID, CodedError(err))
	}
	return o.Model()
}

// Retrieve reads memo id, fetches its content, verifies it against the
// on-chain digest and delivers it to the sink. Any failure is an *Error.
func (p *Pipeline) Retrieve(ctx context.Context, id uint64) (*Outcome, error) {
	start := time.Now()
	log := p.log.With(zap.Uint64("memo_id", id))

	out, err := p.retrieve(ctx, log, id)
	if err != nil {
		log.Warn("memo rejected",
			zap.String("stage", KindOf(err).Stage()),
			zap.String("kind", string(KindOf(err))),
			zap.Error(err),
			zap.Duration("elapsed", time.Since(start)))
		return nil, err
	}
	log.Info("memo verified",
		zap.String("digest", out.Digest.Hex()),
		zap.String("rule", string(out.Rule)),
		zap.Int("bytes", len(out.Content)),
		zap.Duration("elapsed", time.Since(start)))
	return out, nil
}

func (p *Pipeline) retrieve(ctx context.Context, log *zap.Logger, id uint64) (*Outcome, error) {
	if err := p.cfg.Validate(); err != nil {
		return nil, err
	}

	rec, err := p.readRecord(ctx, id)
	if err != nil {
		return nil, newError(KindLedgerFailure, msgLedger, err)
	}
	expected := digest.Digest(rec.ExpectedDigest).Hex()
	log.Debug("memo record read",
		zap.String("sender", rec.Sender.Hex()),
		zap.Uint64("timestamp", rec.Timestamp),
		zap.String("content_uri", rec.ContentURI),
		zap.String("expected_digest", expected))

	url := gateway.Resolve(p.cfg.gatewayBase(), rec.ContentURI)
	resp, err := p.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, newError(KindFetchFailure, msgFetch, err)
	}
	log.Debug("gateway response",
		zap.String("url", url),
		zap.Int("status", resp.StatusCode),
		zap.String("content_type", resp.ContentType),
		zap.Int("bytes", len(resp.Body)))

	if ptr := gateway.ParsePointer(rec.ContentURI); ptr.Block() {
		if err := cidutil.VerifyRawBlock(ptr.CID, resp.Body); err != nil {
			return nil, newError(KindFetchFailure, msgBlock, err)
		}
	}

	res, err := content.Extract(resp.Body)
	if err != nil {
		return nil, newError(KindExtractionFailure, msgExtraction, err)
	}

	computed := digest.Sum(res.Text)
	if !digest.Equal(computed.Hex(), expected) {
		log.Debug("digest mismatch",
			zap.String("expected_digest", expected),
			zap.String("computed_digest", computed.Hex()))
		return nil, newError(KindIntegrityFailure, msgIntegrity, nil)
	}

	out := &Outcome{
		MemoID:     id,
		Record:     rec,
		GatewayURL: url,
		Content:    res.Text,
		Rule:       res.Rule,
		Digest:     computed,
	}
	if err := p.sink.Deliver(ctx, sink.Delivery{
		MemoID:     id,
		Sender:     rec.Sender.Hex(),
		Timestamp:  rec.Time(),
		ContentURI: rec.ContentURI,
		Digest:     computed.Hex(),
		Content:    res.Text,
	}); err != nil {
		return nil, newError(KindSinkFailure, msgSink, err)
	}
	return out, nil
}

func (p *Pipeline) readRecord(ctx context.Context, id uint64) (ledger.Record, error) {
	r := p.ledger
	if r == nil {
		dialed, closeFn, err := p.dial(ctx, p.cfg.LedgerEndpointURL, p.cfg.RecordSourceAddress)
		if err != nil {
			return ledger.Record{}, err
		}
		defer closeFn()
		r = dialed
	}
	return r.Memo(ctx, id)
}
