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
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/eslsoft/factdrill/internal/entity"
)

const (
	dueUserKey      = "due.user"
	dueCountOnlyKey = "due.count_only"
)

var dueCmd = &cobra.Command{
	Use:   "due",
	Short: "Show facts due for review today",
	RunE: func(cmd *cobra.Command, args []string) error {
		container, cleanup, userID, err := initContainer(dueUserKey)
		if err != nil {
			return err
		}
		defer cleanup()

		if viper.GetBool(dueCountOnlyKey) {
			count, err := container.Mastery.GetDueCount(cmd.Context(), userID)
			if err != nil {
				return err
			}
			cmd.Println(count)
			return nil
		}

		records, err := container.Mastery.GetDueRecords(cmd.Context(), userID)
		if err != nil {
			return err
		}
		cmd.Printf("%d facts due on %s\n", len(records), container.Mastery.Today().Format(entity.DateLayout))
		for _, r := range records {
			cmd.Printf("  %-10s since %s (interval %d days)\n", r.Fact.String(), r.NextReviewOn.Format(entity.DateLayout), r.IntervalDays)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dueCmd)

	dueCmd.Flags().Int64("user", 0, "user id")
	dueCmd.Flags().Bool("count-only", false, "print only the number of due facts")

	bindFlagToViper(dueUserKey, dueCmd.Flags().Lookup("user"))
	bindFlagToViper(dueCountOnlyKey, dueCmd.Flags().Lookup("count-only"))
}

