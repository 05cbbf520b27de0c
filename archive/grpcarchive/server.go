package grpcarchive

import (
	"context"
	"errors"

	"github.com/ipfs/go-cid"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/memo/archive"
	"xdao.co/memo/cidutil"
)

// Server serves an archive.Store.
type Server struct {
	UnimplementedArchiveServer
	Store  archive.Store
	Logger *zap.Logger
}

func (s *Server) Put(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	if s == nil || s.Store == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing store")
	}
	b := in.GetValue()
	want, err := cidutil.CIDv1RawSHA256CID(b)
	if err != nil {
		return nil, status.Error(codes.Internal, "cid computation failed")
	}
	id, err := s.Store.Put(ctx, b)
	if err != nil {
		return nil, s.toStatus("put", err)
	}
	if id != want {
		return nil, status.Error(codes.DataLoss, archive.ErrCIDMismatch.Error())
	}
	s.log().Debug("record stored", zap.String("cid", id.String()), zap.Int("bytes", len(b)))
	return wrapperspb.String(id.String()), nil
}

func (s *Server) Get(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	if s == nil || s.Store == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing store")
	}
	id, err := cid.Decode(in.GetValue())
	if err != nil || !id.Defined() {
		return nil, status.Error(codes.InvalidArgument, archive.ErrInvalidCID.Error())
	}
	b, err := s.Store.Get(ctx, id)
	if err != nil {
		return nil, s.toStatus("get", err)
	}
	return wrapperspb.Bytes(b), nil
}

func (s *Server) Has(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	if s == nil || s.Store == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing store")
	}
	id, err := cid.Decode(in.GetValue())
	if err != nil || !id.Defined() {
		return nil, status.Error(codes.InvalidArgument, archive.ErrInvalidCID.Error())
	}
	return wrapperspb.Bool(s.Store.Has(ctx, id)), nil
}

func (s *Server) log() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s *Server) toStatus(op string, err error) error {
	switch {
	case errors.Is(err, archive.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, archive.ErrInvalidCID):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, archive.ErrCIDMismatch):
		return status.Error(codes.DataLoss, err.Error())
	case errors.Is(err, archive.ErrImmutable):
		return status.Error(codes.AlreadyExists, err.Error())
	default:
		s.log().Error("archive backend failed", zap.String("op", op), zap.Error(err))
		return status.Error(codes.Internal, err.Error())
	}
}
