// Package apicmder provides the Mnemo API server cobra command.
package apicmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/coilworks/mnemo/api"
	"github.com/coilworks/mnemo/api/mcp"
	"github.com/coilworks/mnemo/pkg/config"
	"github.com/coilworks/mnemo/pkg/dotdir"
	"github.com/coilworks/mnemo/pkg/logger"
	"github.com/coilworks/mnemo/pkg/memory"
	memoryutils "github.com/coilworks/mnemo/pkg/memory/utils"
)

type apiCommander struct {
	listen string
	debug  bool

	configDir string
	cfg       *config.Config

	logger *zap.Logger
}

const apiLongDesc string = `Run the Mnemo API server for listing, searching, and managing memories.

The server also mounts the MCP tool surface under /mcp so agents can
query their own memories.`

const apiShortDesc string = "Run the Mnemo API server"

func NewAPICmd() *cobra.Command {
	cmder := &apiCommander{}

	cmd := &cobra.Command{
		Use:   "api",
		Short: apiShortDesc,
		Long:  apiLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			cfger, err := config.NewConfiger(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			cmder.cfg, err = cfger.LoadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			if !cmd.Flags().Changed("listen") {
				cmder.listen = cmder.cfg.API.Listen
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run()
		},
	}

	defaults := config.NewDefaultConfig()
	cmd.Flags().StringVarP(&cmder.listen, "listen", "l", defaults.API.Listen, "Address for API server to listen on")

	return cmd
}

func (c *apiCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	client, err := c.newMemoryClient()
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	mcpServer, err := mcp.NewServer(mcp.Config{
		Store:   client,
		UserID:  c.cfg.Memory.UserID,
		AgentID: c.cfg.Memory.AgentID,
		Logger:  c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	server := api.NewServer(api.Config{
		ListenAddr: c.listen,
		UserID:     c.cfg.Memory.UserID,
	}, client, mcpServer.Handler(), c.logger)

	c.logger.Info("starting API server",
		zap.String("listen", c.listen),
		zap.String("memory_provider", c.cfg.Memory.Provider),
	)

	return server.Run()
}

func (c *apiCommander) newMemoryClient() (*memory.Client, error) {
	dotDir, err := dotdir.NewManager().Target(c.configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving .mnemo directory: %w", err)
	}

	driver, err := memoryutils.NewDriver(context.Background(), &memoryutils.NewDriverOpts{
		Provider:   c.cfg.Memory.Provider,
		BaseURL:    c.cfg.Memory.BaseURL,
		APIKey:     c.cfg.Memory.APIKey,
		SQLitePath: c.cfg.Memory.SQLitePath,
		DotDir:     dotDir,
		AgentID:    c.cfg.Memory.AgentID,
		Logger:     c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating memory driver: %w", err)
	}

	return memory.NewClient(driver, c.logger), nil
}
