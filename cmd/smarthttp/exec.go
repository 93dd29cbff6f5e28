package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vango-dev/smarthttp/pkg/httpctx"
	"github.com/vango-dev/smarthttp/pkg/script"
	"github.com/vango-dev/smarthttp/pkg/session"
)

func execCmd() *cobra.Command {
	var (
		showHeader bool
		persistent []string
	)

	cmd := &cobra.Command{
		Use:   "exec <file> [key=value...]",
		Short: "Run a script and print its output",
		Long: `Run a script outside the server and print what it writes.

Arguments after the file become request parameters. Persistent
parameters can be seeded with --pparam. Internal dispatch is not
available.

Examples:
  smarthttp exec webroot/scripts/osnovni.smscr
  smarthttp exec webroot/scripts/zbrajanje.smscr a=4 b=9
  smarthttp exec --header page.smscr --pparam bgcolor=FF0000`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseAssignments(args[1:])
			if err != nil {
				return err
			}
			pparams, err := parseAssignments(persistent)
			if err != nil {
				return err
			}
			return execScript(cmd.Context(), cmd.OutOrStdout(), args[0], params, pparams, showHeader)
		},
	}

	cmd.Flags().BoolVar(&showHeader, "header", false, "Print the response header too")
	cmd.Flags().StringArrayVar(&persistent, "pparam", nil, "Persistent parameter key=value (repeatable)")

	return cmd
}

func parseAssignments(args []string) (map[string]string, error) {
	out := make(map[string]string, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("expected key=value, got %q", arg)
		}
		out[k] = v
	}
	return out, nil
}

// execScript runs the script at path and writes its response to w. The
// header is dropped unless showHeader is set.
func execScript(ctx context.Context, w io.Writer, path string, params, pparams map[string]string, showHeader bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	doc, err := script.Compile(path, string(src))
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	rc := httpctx.New(&buf,
		httpctx.WithParams(params),
		httpctx.WithPersistent(session.NewParams(pparams)),
		httpctx.WithContext(ctx),
	)
	runErr := script.Run(ctx, doc, rc)
	if err := rc.Flush(); err != nil && runErr == nil {
		runErr = err
	}

	out := buf.Bytes()
	if !showHeader {
		if i := bytes.Index(out, []byte("\r\n\r\n")); i >= 0 {
			out = out[i+4:]
		}
	}
	if _, err := w.Write(out); err != nil {
		return err
	}
	return runErr
}
