package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ipfs/go-cid"
	"github.com/spf13/cobra"

	"xdao.co/memo/archive"
	"xdao.co/memo/archive/archiveconfig"
)

// newArchiveCmd exposes the archive backends configured for `read --archive-config`.
func newArchiveCmd(in io.Reader) *cobra.Command {
	var configPath string
	open := func() (archive.Store, func() error, error) {
		cfg, err := archiveconfig.LoadFile(configPath)
		if err != nil {
			return nil, nil, usageError("%v", err)
		}
		store, closeFn, err := cfg.Open()
		if err != nil {
			return nil, nil, usageError("%v", err)
		}
		return store, closeFn, nil
	}

	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Inspect archived memo records",
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "archive backends JSON file")
	_ = cmd.MarkPersistentFlagRequired("config")

	put := &cobra.Command{
		Use:   "put [file]",
		Short: "Store a file (or stdin) and print its CID",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				b   []byte
				err error
			)
			if len(args) == 1 {
				b, err = os.ReadFile(args[0])
				if err != nil {
					return &exitError{code: 1, err: fmt.Errorf("read %s: %w", filepath.Base(args[0]), err)}
				}
			} else if b, err = io.ReadAll(in); err != nil {
				return &exitError{code: 1, err: err}
			}
			store, closeFn, err := open()
			if err != nil {
				return err
			}
			defer func() { _ = closeFn() }()

			id, err := store.Put(cmd.Context(), b)
			if err != nil {
				return &exitError{code: 1, err: err}
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), id.String())
			return err
		},
	}

	var outPath string
	get := &cobra.Command{
		Use:   "get <cid>",
		Short: "Print (or write) the verified bytes of an archived record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := cid.Decode(args[0])
			if err != nil {
				return usageError("%v", archive.ErrInvalidCID)
			}
			store, closeFn, err := open()
			if err != nil {
				return err
			}
			defer func() { _ = closeFn() }()

			b, err := store.Get(cmd.Context(), id)
			if err != nil {
				return &exitError{code: 1, err: err}
			}
			if outPath == "" {
				_, err = cmd.OutOrStdout().Write(b)
				return err
			}
			if err := os.WriteFile(outPath, b, 0o600); err != nil {
				return &exitError{code: 1, err: fmt.Errorf("write %s: %w", outPath, err)}
			}
			return nil
		},
	}
	get.Flags().StringVar(&outPath, "out", "", "output file (default stdout)")

	has := &cobra.Command{
		Use:   "has <cid>",
		Short: "Exit 0 when a record is archived, 1 otherwise",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := cid.Decode(args[0])
			if err != nil {
				return usageError("%v", archive.ErrInvalidCID)
			}
			store, closeFn, err := open()
			if err != nil {
				return err
			}
			defer func() { _ = closeFn() }()

			if !store.Has(cmd.Context(), id) {
				return &exitError{code: 1, err: fmt.Errorf("%s: %w", id, archive.ErrNotFound)}
			}
			return nil
		},
	}

	cmd.AddCommand(put, get, has)
	return cmd
}
