/*
Copyright © 2025 Ambor <saltbo@foxmail.com>

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"compress/gzip"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/eslsoft/factdrill/internal/infrastructure/config"
	"github.com/eslsoft/factdrill/internal/usecase/backup"
)

const (
	importInputKey  = "backup.import.input"
	importGzipKey   = "backup.import.gzip"
	importTablesKey = "backup.import.tables"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Restore attempts and mastery records from an NDJSON backup",
	Long: `Restore a backup written by export. Attempts already present are kept as
they are; a mastery record is only replaced by a newer version.`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		inputPath := viper.GetString(importInputKey)
		if inputPath == "" {
			return fmt.Errorf("--input is required, use - for stdin")
		}
		gzipEnabled := viper.GetBool(importGzipKey)
		if inputPath != "-" && strings.HasSuffix(strings.ToLower(inputPath), ".gz") {
			gzipEnabled = true
		}

		if err := runMigrations(cmd.Context()); err != nil {
			return err
		}
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		service, err := newBackupService(cfg, 0)
		if err != nil {
			return err
		}

		reader := cmd.InOrStdin()
		var closers []func() error
		defer func() {
			for _, closer := range closers {
				if cerr := closer(); cerr != nil && err == nil {
					err = cerr
				}
			}
		}()

		if inputPath != "-" {
			file, err := os.Open(filepath.Clean(inputPath))
			if err != nil {
				return fmt.Errorf("open backup file: %w", err)
			}
			reader = file
			closers = append(closers, file.Close)
		}
		if gzipEnabled {
			gzr, err := gzip.NewReader(reader)
			if err != nil {
				return fmt.Errorf("open gzip stream: %w", err)
			}
			reader = gzr
			closers = append([]func() error{gzr.Close}, closers...)
		}

		var opts []backup.ImportOption
		if tables := tablesFromConfig(importTablesKey); len(tables) > 0 {
			opts = append(opts, backup.WithImportTables(tables))
		}
		if err := service.Import(cmd.Context(), reader, opts...); err != nil {
			return fmt.Errorf("import backup: %w", err)
		}
		cmd.PrintErrf("backup restored from %s\n", inputPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringP("input", "i", "", "backup file, - for stdin")
	importCmd.Flags().Bool("gzip", false, "input is gzip compressed")
	importCmd.Flags().StringSlice("tables", nil, "only import these tables (attempts, mastery_records)")

	bindFlagToViper(importInputKey, importCmd.Flags().Lookup("input"))
	bindFlagToViper(importGzipKey, importCmd.Flags().Lookup("gzip"))
	bindFlagToViper(importTablesKey, importCmd.Flags().Lookup("tables"))
}
