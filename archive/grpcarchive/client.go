// Package grpcarchive exposes an archive.Store over gRPC and provides the
// matching client.
package grpcarchive

import (
	"context"
	"time"

	"github.com/ipfs/go-cid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/memo/archive"
	"xdao.co/memo/cidutil"
)

// Client implements archive.Store against a remote archive daemon.
// Both directions are CID-checked locally; the daemon is not trusted.
type Client struct {
	cc     *grpc.ClientConn
	client ArchiveClient

	// Timeout applies per RPC when non-zero.
	Timeout time.Duration
}

var _ archive.Store = (*Client)(nil)

type DialOptions struct {
	// MaxMsgBytes sets both send/recv max sizes when non-zero.
	MaxMsgBytes int
	// Extra options appended after the defaults (tests use a bufconn dialer).
	Extra []grpc.DialOption
}

// Dial creates a client for target. The connection is established lazily.
func Dial(target string, opts DialOptions) (*Client, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	if opts.MaxMsgBytes > 0 {
		dialOpts = append(dialOpts, grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(opts.MaxMsgBytes),
			grpc.MaxCallSendMsgSize(opts.MaxMsgBytes),
		))
	}
	dialOpts = append(dialOpts, opts.Extra...)

	cc, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, err
	}
	return &Client{cc: cc, client: NewArchiveClient(cc)}, nil
}

func (c *Client) Close() error {
	if c == nil || c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

func (c *Client) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	want, err := cidutil.CIDv1RawSHA256CID(data)
	if err != nil {
		return cid.Undef, err
	}
	ctx, cancel := c.rpcContext(ctx)
	defer cancel()

	reply, err := c.client.Put(ctx, wrapperspb.Bytes(data))
	if err != nil {
		return cid.Undef, fromStatus(err)
	}
	id, err := cid.Decode(reply.GetValue())
	if err != nil || !id.Defined() {
		return cid.Undef, archive.ErrInvalidCID
	}
	if id != want {
		return cid.Undef, archive.ErrCIDMismatch
	}
	return id, nil
}

func (c *Client) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, archive.ErrInvalidCID
	}
	ctx, cancel := c.rpcContext(ctx)
	defer cancel()

	reply, err := c.client.Get(ctx, wrapperspb.String(id.String()))
	if err != nil {
		return nil, fromStatus(err)
	}
	b := reply.GetValue()
	got, err := cidutil.CIDv1RawSHA256CID(b)
	if err != nil {
		return nil, err
	}
	if got != id {
		return nil, archive.ErrCIDMismatch
	}
	return b, nil
}

func (c *Client) Has(ctx context.Context, id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	ctx, cancel := c.rpcContext(ctx)
	defer cancel()

	reply, err := c.client.Has(ctx, wrapperspb.String(id.String()))
	if err != nil {
		return false
	}
	return reply.GetValue()
}

func (c *Client) rpcContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.Timeout)
}

// fromStatus maps daemon status codes back onto archive sentinels.
func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.NotFound:
		return archive.ErrNotFound
	case codes.InvalidArgument:
		return archive.ErrInvalidCID
	case codes.DataLoss:
		return archive.ErrCIDMismatch
	case codes.AlreadyExists:
		return archive.ErrImmutable
	default:
		return err
	}
}
