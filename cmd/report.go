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
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/eslsoft/factdrill/internal/adapter/report"
)

const (
	reportUserKey   = "report.user"
	reportOutputKey = "report.output"
	reportLimitKey  = "report.limit"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Export weak and due facts as an xlsx workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		container, cleanup, userID, err := initContainer(reportUserKey)
		if err != nil {
			return err
		}
		defer cleanup()
		ctx := cmd.Context()

		weak, err := container.WeakFacts.GetWeakFacts(ctx, userID, viper.GetInt(reportLimitKey))
		if err != nil {
			return fmt.Errorf("load weak facts: %w", err)
		}
		due, err := container.Mastery.GetDueRecords(ctx, userID)
		if err != nil {
			return fmt.Errorf("load due facts: %w", err)
		}

		outputPath := viper.GetString(reportOutputKey)
		if outputPath == "" {
			outputPath = defaultReportFilename(userID)
		}
		data := report.Report{
			UserID:      userID,
			GeneratedAt: time.Now(),
			WeakFacts:   weak,
			Due:         due,
		}
		if outputPath == "-" {
			return report.Write(cmd.OutOrStdout(), data)
		}
		if dir := filepath.Dir(outputPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create output directory: %w", err)
			}
		}
		if err := report.WriteFile(outputPath, data); err != nil {
			return err
		}
		container.Logger.WithFields(logrus.Fields{
			"user_id": userID,
			"weak":    len(weak),
			"due":     len(due),
			"output":  outputPath,
		}).Info("report written")
		cmd.Printf("report written: %s\n", outputPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().Int64("user", 0, "user id")
	reportCmd.Flags().StringP("output", "o", "", "workbook path, - for stdout")
	reportCmd.Flags().Int("limit", 0, "maximum weak facts, 0 for all")

	bindFlagToViper(reportUserKey, reportCmd.Flags().Lookup("user"))
	bindFlagToViper(reportOutputKey, reportCmd.Flags().Lookup("output"))
	bindFlagToViper(reportLimitKey, reportCmd.Flags().Lookup("limit"))
}

func defaultReportFilename(userID int64) string {
	ts := time.Now().UTC().Format("20060102-150405")
	return fmt.Sprintf("factdrill-report-%d-%s.xlsx", userID, ts)
}
