package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"xdao.co/memo/archive/archiveconfig"
	"xdao.co/memo/content"
	"xdao.co/memo/digest"
	"xdao.co/memo/gateway"
	"xdao.co/memo/memo"
	"xdao.co/memo/sink"
)

const defaultEnvFile = ".env"

// exitError carries a process exit code out of a cobra RunE.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func usageError(format string, args ...any) error {
	return &exitError{code: 2, err: fmt.Errorf(format, args...)}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) int {
	root := newRootCmd(in)
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(errOut)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	fmt.Fprintln(errOut, err)
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 2
}

type rootOptions struct {
	envFile  string
	logLevel string
	gateway  string
}

func newRootCmd(in io.Reader) *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "memo-reader",
		Short:         "Read on-chain memos and verify their content against the committed Keccak-256 digest.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", defaultEnvFile, "dotenv file with LEDGER_ENDPOINT_URL and RECORD_SOURCE_ADDRESS")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&opts.gateway, "gateway", "", "gateway base URL (default "+gateway.DefaultBase+")")

	root.AddCommand(
		newReadCmd(opts),
		newResolveCmd(opts),
		newDigestCmd(in),
		newVerifyCmd(in),
		newArchiveCmd(in),
	)
	return root
}

type readOptions struct {
	json          bool
	quiet         bool
	header        bool
	archiveConfig string
}

func newReadCmd(root *rootOptions) *cobra.Command {
	opts := &readOptions{}
	cmd := &cobra.Command{
		Use:   "read [id]",
		Short: "Read memo <id> (default 0), verify it and print its content",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id uint64
			if len(args) == 1 {
				n, err := strconv.ParseUint(args[0], 10, 64)
				if err != nil {
					return usageError("invalid memo id %q", args[0])
				}
				id = n
			}
			return runRead(cmd, root, opts, id)
		},
	}
	cmd.Flags().BoolVar(&opts.json, "json", false, "print the retrieval outcome as JSON instead of the content")
	cmd.Flags().BoolVar(&opts.quiet, "quiet", false, "do not print content")
	cmd.Flags().BoolVar(&opts.header, "header", false, "print sender, time and digest before the content")
	cmd.Flags().StringVar(&opts.archiveConfig, "archive-config", "", "archive verified content to the backends in this JSON file")
	return cmd
}

func runRead(cmd *cobra.Command, root *rootOptions, opts *readOptions, id uint64) error {
	logger, err := newLogger(root.logLevel, cmd.ErrOrStderr())
	if err != nil {
		return usageError("%v", err)
	}
	defer func() { _ = logger.Sync() }()

	lookup, err := envLookup(root.envFile, root.envFile != defaultEnvFile)
	if err != nil {
		return usageError("%v", err)
	}
	cfg := memo.ConfigFromEnv(lookup)
	if root.gateway != "" {
		cfg.GatewayBaseURL = root.gateway
	}

	var sinks sink.Multi
	if !opts.quiet && !opts.json {
		sinks = append(sinks, sink.Writer{W: cmd.OutOrStdout(), Header: opts.header})
	}
	if opts.archiveConfig != "" {
		acfg, err := archiveconfig.LoadFile(opts.archiveConfig)
		if err != nil {
			return usageError("%v", err)
		}
		store, closeFn, err := acfg.Open()
		if err != nil {
			return usageError("%v", err)
		}
		defer func() { _ = closeFn() }()
		sinks = append(sinks, sink.Archive{Store: store, Logger: logger})
	}

	p := memo.New(cfg,
		memo.WithSink(sinks),
		memo.WithLogger(logger),
		memo.WithFetcher(gateway.New(gateway.Options{Logger: logger})))
	outcome, err := p.Retrieve(cmd.Context(), id)

	if opts.json {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(memo.Report(id, outcome, err)); encErr != nil {
			return &exitError{code: 1, err: encErr}
		}
	}
	if err != nil {
		code := 1
		if memo.IsKind(err, memo.KindConfigurationMissing) {
			code = 2
		}
		return &exitError{code: code, err: err}
	}
	return nil
}

func newResolveCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <uri>",
		Short: "Print the gateway URL for a content-identifier URI",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base := root.gateway
			if base == "" {
				lookup, err := envLookup(root.envFile, root.envFile != defaultEnvFile)
				if err != nil {
					return usageError("%v", err)
				}
				base = memo.ConfigFromEnv(lookup).GatewayBaseURL
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), gateway.Resolve(base, args[0]))
			return err
		},
	}
}

func newDigestCmd(in io.Reader) *cobra.Command {
	var extract bool
	cmd := &cobra.Command{
		Use:   "digest [file]",
		Short: "Print the Keccak-256 digest of a file (or stdin)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readContent(in, args, extract)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), digest.Sum(text).Hex())
			return err
		},
	}
	cmd.Flags().BoolVar(&extract, "extract", false, "treat the input as a gateway response and hash its extracted content")
	return cmd
}

func newVerifyCmd(in io.Reader) *cobra.Command {
	var (
		expected string
		extract  bool
	)
	cmd := &cobra.Command{
		Use:   "verify --digest <hex> [file]",
		Short: "Check a file (or stdin) against a committed Keccak-256 digest",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := digest.Parse(expected); err != nil {
				return usageError("%v", err)
			}
			text, err := readContent(in, args, extract)
			if err != nil {
				return err
			}
			got := digest.Sum(text)
			if !digest.Verify(text, expected) {
				return &exitError{code: 1, err: fmt.Errorf("mismatch: computed %s, expected 0x%s", got.Hex(), digest.Canonical(expected))}
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "ok %s\n", got.Hex())
			return err
		},
	}
	cmd.Flags().StringVar(&expected, "digest", "", "expected digest (64 hex chars, optional 0x prefix)")
	cmd.Flags().BoolVar(&extract, "extract", false, "treat the input as a gateway response and verify its extracted content")
	_ = cmd.MarkFlagRequired("digest")
	return cmd
}

func readContent(in io.Reader, args []string, extract bool) (string, error) {
	var (
		b   []byte
		err error
	)
	if len(args) == 1 && args[0] != "-" {
		b, err = os.ReadFile(args[0])
	} else {
		b, err = io.ReadAll(in)
	}
	if err != nil {
		return "", usageError("%v", err)
	}
	if !extract {
		return string(b), nil
	}
	res, err := content.Extract(b)
	if err != nil {
		return "", &exitError{code: 1, err: err}
	}
	return res.Text, nil
}

// envLookup layers the process environment over a dotenv file. Blank process
// values fall through to the file. A missing file is an error only when the
// caller asked for it explicitly.
func envLookup(path string, required bool) (func(string) (string, bool), error) {
	fileEnv, err := godotenv.Read(path)
	if err != nil {
		if !required && errors.Is(err, fs.ErrNotExist) {
			fileEnv = map[string]string{}
		} else {
			return nil, fmt.Errorf("env file %s: %w", path, err)
		}
	}
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			return v, true
		}
		v, ok := fileEnv[key]
		return v, ok
	}, nil
}

func newLogger(level string, w io.Writer) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.AddSync(w), lvl)
	return zap.New(core).Named("memo-reader"), nil
}
