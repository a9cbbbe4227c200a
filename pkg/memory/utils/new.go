// Package memoryutils is the memory driver utility package
package memoryutils

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/coilworks/mnemo/pkg/memory"
	"github.com/coilworks/mnemo/pkg/memory/local"
	"github.com/coilworks/mnemo/pkg/memory/remote"
	"github.com/coilworks/mnemo/pkg/memory/sqlite"
)

// sqliteFile is the database filename used when no explicit path is given.
const sqliteFile = "memories.db"

type NewDriverOpts struct {
	// Provider selects the driver: "local", "sqlite", or "remote".
	Provider string

	// BaseURL and APIKey configure the remote provider.
	BaseURL string
	APIKey  string

	// SQLitePath configures the sqlite provider. Empty means memories.db
	// inside DotDir.
	SQLitePath string

	// DotDir is the resolved .mnemo/ directory, used for the default
	// sqlite path.
	DotDir string

	// AgentID scopes remote search filters.
	AgentID string

	Logger *zap.Logger
}

// NewDriver creates a memory driver for the configured provider.
func NewDriver(ctx context.Context, o *NewDriverOpts) (memory.Driver, error) {
	switch o.Provider {
	case "local", "":
		return local.NewDriver(), nil

	case "sqlite":
		path := o.SQLitePath
		if path == "" {
			if o.DotDir == "" {
				return nil, fmt.Errorf("sqlite provider requires a path or a resolved .mnemo/ directory")
			}
			path = filepath.Join(o.DotDir, sqliteFile)
		}
		return sqlite.NewDriver(ctx, path)

	case "remote":
		return remote.NewDriver(remote.Config{
			BaseURL: o.BaseURL,
			APIKey:  o.APIKey,
			AgentID: o.AgentID,
		}, o.Logger)

	default:
		return nil, fmt.Errorf("unsupported memory provider: %s", o.Provider)
	}
}
