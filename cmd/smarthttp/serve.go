package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vango-dev/smarthttp/internal/config"
)

func serveCmd(flags *globalFlags) *cobra.Command {
	var (
		port    int
		address string
		domain  string
		admin   string
		watch   bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the server",
		Long: `Start the server using smarthttp.json (or server.properties).

The server accepts GET requests on the configured address, serves
files from the document root, runs scripts, and dispatches workers.
SIGINT or SIGTERM shuts it down gracefully.

Examples:
  smarthttp serve
  smarthttp serve --port=8080
  smarthttp serve --config=server.properties --watch
  smarthttp serve --admin=127.0.0.1:9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if address != "" {
				cfg.Server.Address = address
			}
			if domain != "" {
				cfg.Server.Domain = domain
			}
			if admin != "" {
				cfg.Admin.Address = admin
			}
			if watch {
				cfg.Dev.Watch = true
			}
			return runServe(cfg, flags)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (default from config)")
	cmd.Flags().StringVarP(&address, "address", "a", "", "Address to bind to (default from config)")
	cmd.Flags().StringVar(&domain, "domain", "", "Session host for requests without a Host header")
	cmd.Flags().StringVar(&admin, "admin", "", "Admin listener address (health, metrics, live reload)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Recompile scripts and notify browsers on change")

	return cmd
}

func runServe(cfg *config.Config, flags *globalFlags) error {
	logger, err := newLogger(os.Stderr, flags)
	if err != nil {
		return err
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}

	printBanner()
	success("Serving %s", cfg.DocumentRootPath())
	info("http://%s/", cfg.ListenAddress())
	if cfg.Admin.Address != "" {
		info("admin: http://%s/healthz", cfg.Admin.Address)
	}
	if cfg.Dev.Watch {
		info("watch: on")
	}
	info("")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.run(ctx)
}

// loadConfig reads --config if given, otherwise the nearest
// smarthttp.json.
func loadConfig(flags *globalFlags) (*config.Config, error) {
	if flags.configPath != "" {
		return config.LoadFile(flags.configPath)
	}
	return config.LoadFromWorkingDir()
}
