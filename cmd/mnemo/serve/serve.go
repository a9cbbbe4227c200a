// Package servecmder provides the serve command with subcommands for running services.
package servecmder

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/coilworks/mnemo/api"
	"github.com/coilworks/mnemo/api/mcp"
	apicmder "github.com/coilworks/mnemo/cmd/mnemo/serve/api"
	proxycmder "github.com/coilworks/mnemo/cmd/mnemo/serve/proxy"
	"github.com/coilworks/mnemo/pkg/capture"
	"github.com/coilworks/mnemo/pkg/config"
	"github.com/coilworks/mnemo/pkg/logger"
	"github.com/coilworks/mnemo/proxy"
)

type ServeCommander struct {
	proxyListen string
	apiListen   string
	upstream    string
	debug       bool

	configDir string
	cfg       *config.Config

	logger *zap.Logger
}

const serveLongDesc string = `Run Mnemo services.

Use subcommands to run individual services or all services together:
  mnemo serve          Run both proxy and API server together
  mnemo serve api      Run just the API server
  mnemo serve proxy    Run just the capture proxy`

const serveShortDesc string = "Run Mnemo services"

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
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

			if !cmd.Flags().Changed("proxy-listen") {
				cmder.proxyListen = cmder.cfg.Proxy.Listen
			}
			if !cmd.Flags().Changed("api-listen") {
				cmder.apiListen = cmder.cfg.API.Listen
			}
			if !cmd.Flags().Changed("upstream") {
				cmder.upstream = cmder.cfg.Proxy.Upstream
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
	cmd.Flags().StringVarP(&cmder.proxyListen, "proxy-listen", "p", defaults.Proxy.Listen, "Address for proxy to listen on")
	cmd.Flags().StringVarP(&cmder.apiListen, "api-listen", "a", defaults.API.Listen, "Address for API server to listen on")
	cmd.Flags().StringVarP(&cmder.upstream, "upstream", "u", defaults.Proxy.Upstream, "Upstream conversational API URL")

	cmd.AddCommand(apicmder.NewAPICmd())
	cmd.AddCommand(proxycmder.NewProxyCmd())

	return cmd
}

func (c *ServeCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	// Shared memory client for both services
	client, err := proxycmder.NewMemoryClient(c.configDir, c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	sink, closeSink, err := proxycmder.NewTurnSink(c.cfg, client, c.logger)
	if err != nil {
		return err
	}
	defer closeSink()

	pipeline := capture.NewPipeline(capture.Config{
		UserID:         c.cfg.Memory.UserID,
		AgentID:        c.cfg.Memory.AgentID,
		ExcludedModels: c.cfg.Capture.ExcludedModels,
	}, client, sink, c.logger)

	p, err := proxy.New(proxy.Config{
		ListenAddr:  c.proxyListen,
		UpstreamURL: c.upstream,
		NumWorkers:  c.cfg.Proxy.Workers,
		QueueSize:   c.cfg.Proxy.Queue,
	}, pipeline, c.logger)
	if err != nil {
		return fmt.Errorf("creating proxy: %w", err)
	}
	defer func() { _ = p.Close() }()

	c.logger.Info("starting proxy",
		zap.String("proxy_addr", c.proxyListen),
		zap.String("upstream", c.upstream),
	)

	mcpServer, err := mcp.NewServer(mcp.Config{
		Store:   client,
		UserID:  c.cfg.Memory.UserID,
		AgentID: c.cfg.Memory.AgentID,
		Logger:  c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	apiServer := api.NewServer(api.Config{
		ListenAddr: c.apiListen,
		UserID:     c.cfg.Memory.UserID,
	}, client, mcpServer.Handler(), c.logger)

	c.logger.Info("starting api server",
		zap.String("api_addr", c.apiListen),
	)

	// Channel to capture errors from goroutines
	errChan := make(chan error, 2)

	// Start proxy in goroutine
	go func() {
		if err := p.Run(); err != nil {
			errChan <- fmt.Errorf("proxy error: %w", err)
		}
	}()

	// Start API server in goroutine
	go func() {
		if err := apiServer.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	// Wait for interrupt signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		return nil
	}
}
