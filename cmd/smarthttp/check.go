package main

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vango-dev/smarthttp/internal/errors"
	"github.com/vango-dev/smarthttp/pkg/script"
)

func checkCmd(flags *globalFlags) *cobra.Command {
	var noColor bool

	cmd := &cobra.Command{
		Use:   "check [files...]",
		Short: "Compile scripts and report errors",
		Long: `Compile scripts without running them.

With no arguments every script under the configured document root is
checked. Each compile error is printed with its position and the
offending source line. The command fails if any script fails.

Examples:
  smarthttp check
  smarthttp check webroot/private/pages/calc.smscr`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if noColor {
				errors.DisableColors()
			}
			files := args
			if len(files) == 0 {
				cfg, err := loadConfig(flags)
				if err != nil {
					return err
				}
				files, err = findScripts(cfg.DocumentRootPath(), cfg.Server.ScriptExtension)
				if err != nil {
					return err
				}
			}
			return checkFiles(cmd.OutOrStdout(), cmd.ErrOrStderr(), files)
		},
	}

	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored error output")

	return cmd
}

// findScripts lists files under root with the script extension.
func findScripts(root, ext string) ([]string, error) {
	suffix := "." + strings.TrimPrefix(ext, ".")
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), suffix) {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// checkFiles compiles each file, printing errors to errOut and a summary
// to out.
func checkFiles(out, errOut io.Writer, files []string) error {
	failed := 0
	for _, path := range files {
		src, err := os.ReadFile(path)
		if err == nil {
			_, err = script.Compile(path, string(src))
		}
		if err != nil {
			failed++
			errors.PrintError(errOut, err)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d scripts failed to compile", failed, len(files))
	}
	fmt.Fprintf(out, "\033[32m✓\033[0m %d scripts OK\n", len(files))
	return nil
}
