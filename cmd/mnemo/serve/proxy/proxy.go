// Package proxycmder provides the capture proxy server command.
package proxycmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/coilworks/mnemo/pkg/capture"
	"github.com/coilworks/mnemo/pkg/config"
	"github.com/coilworks/mnemo/pkg/dotdir"
	"github.com/coilworks/mnemo/pkg/eventstream"
	eskafka "github.com/coilworks/mnemo/pkg/eventstream/kafka"
	"github.com/coilworks/mnemo/pkg/logger"
	"github.com/coilworks/mnemo/pkg/memory"
	memoryutils "github.com/coilworks/mnemo/pkg/memory/utils"
	"github.com/coilworks/mnemo/pkg/reflection"
	"github.com/coilworks/mnemo/proxy"
)

type proxyCommander struct {
	listen   string
	upstream string
	debug    bool

	configDir string
	cfg       *config.Config

	logger *zap.Logger
}

const proxyLongDesc string = `Run the capture proxy.

The proxy intercepts all requests and transparently forwards them to the
configured upstream URL, recording completed request/response exchanges
as memories. Streaming responses are relayed chunk-for-chunk while being
reconstructed in the background.`

const proxyShortDesc string = "Run the Mnemo capture proxy"

func NewProxyCmd() *cobra.Command {
	cmder := &proxyCommander{}

	cmd := &cobra.Command{
		Use:   "proxy",
		Short: proxyShortDesc,
		Long:  proxyLongDesc,
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
				cmder.listen = cmder.cfg.Proxy.Listen
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
	cmd.Flags().StringVarP(&cmder.listen, "listen", "l", defaults.Proxy.Listen, "Address for proxy to listen on")
	cmd.Flags().StringVarP(&cmder.upstream, "upstream", "u", defaults.Proxy.Upstream, "Upstream conversational API URL")

	return cmd
}

func (c *proxyCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	client, err := NewMemoryClient(c.configDir, c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	sink, closeSink, err := NewTurnSink(c.cfg, client, c.logger)
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
		ListenAddr:  c.listen,
		UpstreamURL: c.upstream,
		NumWorkers:  c.cfg.Proxy.Workers,
		QueueSize:   c.cfg.Proxy.Queue,
	}, pipeline, c.logger)
	if err != nil {
		return fmt.Errorf("creating proxy: %w", err)
	}
	defer func() { _ = p.Close() }()

	c.logger.Info("starting proxy server",
		zap.String("listen", c.listen),
		zap.String("upstream", c.upstream),
		zap.String("memory_provider", c.cfg.Memory.Provider),
	)

	return p.Run()
}

// NewMemoryClient builds the retrying memory client for the configured
// provider. Exported so the combined serve command can reuse it.
func NewMemoryClient(configDir string, cfg *config.Config, log *zap.Logger) (*memory.Client, error) {
	dotDir, err := dotdir.NewManager().Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving .mnemo directory: %w", err)
	}

	driver, err := memoryutils.NewDriver(context.Background(), &memoryutils.NewDriverOpts{
		Provider:   cfg.Memory.Provider,
		BaseURL:    cfg.Memory.BaseURL,
		APIKey:     cfg.Memory.APIKey,
		SQLitePath: cfg.Memory.SQLitePath,
		DotDir:     dotDir,
		AgentID:    cfg.Memory.AgentID,
		Logger:     log,
	})
	if err != nil {
		return nil, fmt.Errorf("creating memory driver: %w", err)
	}

	return memory.NewClient(driver, log), nil
}

// NewTurnSink assembles the post-persist sinks (reflection scheduler,
// turn event publisher) per the config. Returns a nil sink when nothing is
// enabled; callers must invoke the returned cleanup func on shutdown.
func NewTurnSink(cfg *config.Config, client *memory.Client, log *zap.Logger) (capture.TurnSink, func(), error) {
	var (
		sinks    capture.MultiSink
		cleanups []func()
	)
	cleanup := func() {
		for _, fn := range cleanups {
			fn()
		}
	}

	if cfg.Reflection.Enabled {
		analyzer := reflection.NewAnalyzer(client, cfg.Memory.UserID, cfg.Memory.AgentID, log)
		scheduler, err := reflection.NewScheduler(reflection.Config{
			WindowSize: cfg.Reflection.Window,
			Threshold:  cfg.Reflection.Threshold,
			NumWorkers: cfg.Reflection.Workers,
			QueueSize:  cfg.Reflection.Queue,
			UserID:     cfg.Memory.UserID,
			Logger:     log,
		}, client, analyzer)
		if err != nil {
			return nil, cleanup, fmt.Errorf("creating reflection scheduler: %w", err)
		}
		sinks = append(sinks, scheduler)
		cleanups = append(cleanups, scheduler.Close)
	}

	if cfg.Eventstream.Provider == "kafka" {
		publisher, err := eskafka.NewPublisher(eskafka.Config{
			Brokers: cfg.Eventstream.Brokers,
			Topic:   cfg.Eventstream.Topic,
		})
		if err != nil {
			cleanup()
			return nil, func() {}, fmt.Errorf("creating kafka publisher: %w", err)
		}
		source := eventstream.EventSource{
			UserID:  cfg.Memory.UserID,
			AgentID: cfg.Memory.AgentID,
		}
		sinks = append(sinks, eventstream.NewTurnSink(publisher, source, log))
		cleanups = append(cleanups, func() { _ = publisher.Close() })

		log.Info("turn event publishing enabled",
			zap.Strings("brokers", cfg.Eventstream.Brokers),
			zap.String("topic", cfg.Eventstream.Topic),
		)
	}

	if len(sinks) == 0 {
		return nil, cleanup, nil
	}
	return sinks, cleanup, nil
}
