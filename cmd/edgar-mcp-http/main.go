// Command edgar-mcp-http serves EDGAR filing tools over MCP on HTTP.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"edgar-mcp/internal/config"
	"edgar-mcp/internal/dispatch"
	"edgar-mcp/internal/edgar"
	"edgar-mcp/internal/logging"
	"edgar-mcp/internal/protocol"
	"edgar-mcp/internal/server"
	"edgar-mcp/internal/telemetry"
	"edgar-mcp/internal/tool"
	"edgar-mcp/internal/tools"
)

var version = "dev"

const instructions = "Tools for looking up SEC registrants and their recent EDGAR filings."

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		port       int
		host       string
		transport  string
		identity   string
	)
	cmd := &cobra.Command{
		Use:          "edgar-mcp-http",
		Short:        "Serve EDGAR filing tools over MCP",
		Version:      version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("port") {
				cfg.Port = port
			}
			if flags.Changed("host") {
				cfg.Host = host
			}
			if flags.Changed("transport") {
				cfg.Transport = transport
			}
			if flags.Changed("identity") {
				cfg.Identity = identity
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&configPath, "config", "c", "", "path to a TOML config file")
	f.IntVarP(&port, "port", "p", 0, "listen port (overrides PORT)")
	f.StringVar(&host, "host", "", "listen host (overrides HOST)")
	f.StringVar(&transport, "transport", "", "response mode: sse or json (overrides MCP_TRANSPORT)")
	f.StringVar(&identity, "identity", "", "User-Agent identity sent to EDGAR (overrides EDGAR_IDENTITY)")
	return cmd
}

func run(ctx context.Context, cfg config.Config) error {
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ident := cfg.ExternalIdentity()
	if ident.Empty() {
		logger.Warn("EDGAR_IDENTITY not set; EDGAR may reject requests. Set it to \"Name email@example.com\".")
	}

	shutdownTracing, err := telemetry.Init(ctx, cfg.Otel.ServiceName, cfg.Otel.Endpoint)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("flush traces", zap.Error(err))
		}
	}()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := dispatch.NewMetrics(promReg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	client := edgar.New(cfg.Edgar.BaseURL, cfg.Edgar.DataURL, &http.Client{Timeout: cfg.Edgar.Timeout}, cfg.Edgar.CacheTTL)
	reg := tool.NewRegistry()
	if err := tools.NewEDGAR(client).Register(reg); err != nil {
		return fmt.Errorf("register tools: %w", err)
	}

	d := dispatch.New(reg,
		dispatch.WithLogger(logger.Named("dispatch")),
		dispatch.WithMetrics(metrics),
	)
	adapter := protocol.NewAdapter(d, mcp.Implementation{Name: "edgar-mcp", Version: version}, instructions)
	srv := server.New(adapter, server.Options{
		Transport:       cfg.Transport,
		RequestTimeout:  cfg.RequestTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
		TLSCertFile:     cfg.TLSCertFile,
		TLSKeyFile:      cfg.TLSKeyFile,
		Identity:        ident,
		Logger:          logger.Named("http"),
		Gatherer:        promReg,
	})

	logger.Info("starting MCP HTTP server",
		zap.String("addr", cfg.Addr()),
		zap.String("transport", cfg.Transport),
		zap.Bool("tls", cfg.TLS()),
		zap.Bool("tracing", cfg.Otel.Endpoint != ""),
		zap.Strings("tools", reg.Names()),
	)
	return srv.Run(ctx, cfg.Addr())
}
