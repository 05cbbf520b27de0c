// Package archiveconfig opens archive backends from a JSON description.
//
// Example:
//
//	{
//	  "write_policy": "all",
//	  "backends": [
//	    {"name": "localfs", "config": {"dir": "/var/lib/memo/archive"}},
//	    {"name": "grpc", "id": "remote", "config": {"target": "archive.internal:7777", "timeout": "5s"}},
//	    {"name": "kubo", "config": {"ipfs-path": "/var/lib/ipfs", "pin": "true"}}
//	  ]
//	}
//
// WritePolicy "first" (default) writes to the first backend and reads in order;
// "all" writes to every backend and requires equal CIDs.
package archiveconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"xdao.co/memo/archive"
	"xdao.co/memo/archive/grpcarchive"
	"xdao.co/memo/archive/kubo"
	"xdao.co/memo/archive/localfs"
)

const (
	BackendLocalFS = "localfs"
	BackendGRPC    = "grpc"
	BackendKubo    = "kubo"
)

type Config struct {
	WritePolicy string          `json:"write_policy,omitempty"`
	Backends    []BackendConfig `json:"backends"`
}

type BackendConfig struct {
	// Name selects the backend implementation.
	Name string `json:"name"`
	// ID is an optional alias used in reports; Name when empty.
	ID     string            `json:"id,omitempty"`
	Config map[string]string `json:"config,omitempty"`
}

func (b BackendConfig) id() string {
	if b.ID != "" {
		return b.ID
	}
	return b.Name
}

func LoadFile(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, errors.New("archiveconfig: empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("archiveconfig: %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if len(c.Backends) == 0 {
		return errors.New("archiveconfig: at least one backend is required")
	}
	seen := make(map[string]struct{}, len(c.Backends))
	for _, b := range c.Backends {
		switch b.Name {
		case BackendLocalFS, BackendGRPC, BackendKubo:
		case "":
			return errors.New("archiveconfig: backend name is required")
		default:
			return fmt.Errorf("archiveconfig: unknown backend %q", b.Name)
		}
		if _, ok := seen[b.id()]; ok {
			return fmt.Errorf("archiveconfig: duplicate backend id %q", b.id())
		}
		seen[b.id()] = struct{}{}
	}
	switch c.WritePolicy {
	case "", "first", "all":
		return nil
	default:
		return fmt.Errorf("archiveconfig: invalid write_policy %q", c.WritePolicy)
	}
}

// Open opens every backend and combines them per WritePolicy.
// The returned close function releases all backends.
func (c Config) Open() (archive.Store, func() error, error) {
	if err := c.Validate(); err != nil {
		return nil, nil, err
	}

	named := make([]archive.Named, 0, len(c.Backends))
	closers := make([]func() error, 0, len(c.Backends))
	closeAll := func() error {
		var firstErr error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}

	for _, b := range c.Backends {
		store, closeFn, err := openBackend(b)
		if err != nil {
			_ = closeAll()
			return nil, nil, fmt.Errorf("archiveconfig: backend %q: %w", b.id(), err)
		}
		named = append(named, archive.Named{Name: b.id(), Store: store})
		if closeFn != nil {
			closers = append(closers, closeFn)
		}
	}

	if len(named) == 1 {
		return named[0].Store, closeAll, nil
	}
	if c.WritePolicy == "all" {
		return archive.Replicated{Backends: named}, closeAll, nil
	}
	return archive.Ordered{Backends: named}, closeAll, nil
}

func openBackend(b BackendConfig) (archive.Store, func() error, error) {
	switch b.Name {
	case BackendLocalFS:
		s, err := localfs.New(b.Config["dir"])
		return s, nil, err
	case BackendGRPC:
		target := b.Config["target"]
		if target == "" {
			return nil, nil, errors.New("missing target")
		}
		maxMsg, err := optionalInt(b.Config["max-msg-bytes"])
		if err != nil {
			return nil, nil, err
		}
		timeout, err := optionalDuration(b.Config["timeout"])
		if err != nil {
			return nil, nil, err
		}
		client, err := grpcarchive.Dial(target, grpcarchive.DialOptions{MaxMsgBytes: maxMsg})
		if err != nil {
			return nil, nil, err
		}
		client.Timeout = timeout
		return client, client.Close, nil
	case BackendKubo:
		opts := kubo.Options{Bin: b.Config["bin"]}
		if p := b.Config["ipfs-path"]; p != "" {
			opts.Env = append(os.Environ(), "IPFS_PATH="+p)
		}
		if v := b.Config["pin"]; v != "" {
			pin, err := strconv.ParseBool(v)
			if err != nil {
				return nil, nil, fmt.Errorf("invalid pin %q", v)
			}
			opts.Pin = pin
		}
		return kubo.New(opts), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", b.Name)
	}
}

func optionalInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

func optionalDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}
