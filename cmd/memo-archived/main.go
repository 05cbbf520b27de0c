package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"

	"xdao.co/memo/archive/grpcarchive"
	"xdao.co/memo/archive/localfs"
)

type options struct {
	listen      string
	dir         string
	maxMsgBytes int
	logLevel    string

	// onListen, when set, is called with the bound address before serving.
	onListen func(addr net.Addr)
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:          "memo-archived",
		Short:        "Serve a local memo archive over gRPC",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.listen, "listen", "127.0.0.1:7777", "listen address")
	cmd.Flags().StringVar(&opts.dir, "dir", "", "archive directory (required)")
	cmd.Flags().IntVar(&opts.maxMsgBytes, "max-msg-bytes", 0, "max gRPC message size (0 uses the gRPC default)")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	_ = cmd.MarkFlagRequired("dir")
	return cmd
}

func serve(ctx context.Context, opts *options) error {
	lvl, err := zapcore.ParseLevel(opts.logLevel)
	if err != nil {
		return err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	logger, err := cfg.Build()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	store, err := localfs.New(opts.dir)
	if err != nil {
		return err
	}

	lis, err := net.Listen("tcp", opts.listen)
	if err != nil {
		return err
	}
	defer lis.Close()

	var serverOpts []grpc.ServerOption
	if opts.maxMsgBytes > 0 {
		serverOpts = append(serverOpts,
			grpc.MaxRecvMsgSize(opts.maxMsgBytes),
			grpc.MaxSendMsgSize(opts.maxMsgBytes))
	}
	s := grpc.NewServer(serverOpts...)
	grpcarchive.RegisterArchiveServer(s, &grpcarchive.Server{Store: store, Logger: logger})

	go func() {
		<-ctx.Done()
		s.GracefulStop()
	}()

	logger.Info("memo-archived listening",
		zap.String("addr", lis.Addr().String()),
		zap.String("dir", store.Root()))
	if opts.onListen != nil {
		opts.onListen(lis.Addr())
	}
	if err := s.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
