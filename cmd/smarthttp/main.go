package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vango-dev/smarthttp/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
  ┌─┐┌┬┐┌─┐┬─┐┌┬┐┬ ┬┌┬┐┌┬┐┌─┐
  └─┐│││├─┤├┬┘ │ ├─┤ │  │ ├─┘
  └─┘┴ ┴┴ ┴┴└─ ┴ ┴ ┴ ┴  ┴ ┴
`

// globalFlags are shared by every command.
type globalFlags struct {
	configPath string
	logLevel   string
	logJSON    bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if errors.Code(err) != "" {
			errors.PrintError(os.Stderr, err)
		} else {
			errorMsg("%s", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "smarthttp",
		Short: "A small GET-only web server with smart scripts",
		Long: `smarthttp serves a document root over HTTP/1.x GET.

Requests are dispatched to a static file, a registered worker, or a
smart script. Scripts mix text with {$ ... $} tags that run on a
small stack machine:

  {$ FOR i 1 3 1 $}line {$= i $}{$END$}

Every visitor gets a host-bound cookie session whose persistent
parameters scripts and workers can read and write.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "Config file (default: smarthttp.json found from the working directory)")
	pf.StringVar(&flags.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	pf.BoolVar(&flags.logJSON, "log-json", false, "Log as JSON")

	rootCmd.AddCommand(
		serveCmd(flags),
		checkCmd(flags),
		execCmd(),
		versionCmd(),
	)
	return rootCmd
}

// newLogger builds the process logger from the global flags.
func newLogger(w io.Writer, flags *globalFlags) (*slog.Logger, error) {
	var level slog.Level
	switch strings.ToLower(flags.logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q", flags.logLevel)
	}

	opts := &slog.HandlerOptions{Level: level}
	if flags.logJSON {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// printBanner prints the ASCII art banner.
func printBanner() {
	fmt.Print(banner)
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}

// errorMsg prints an error message.
func errorMsg(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "\033[31m✗\033[0m %s\n", fmt.Sprintf(format, args...))
}
