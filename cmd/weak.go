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
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/eslsoft/factdrill/internal/entity"
	"github.com/eslsoft/factdrill/internal/repository"
	"github.com/eslsoft/factdrill/pkg/filterexpr"
)

const (
	weakUserKey   = "weak.user"
	weakLimitKey  = "weak.limit"
	weakFilterKey = "weak.filter"
)

var weakCmd = &cobra.Command{
	Use:   "weak",
	Short: "List the facts a user gets wrong most",
	Long: `List weak facts ordered by accuracy. --filter takes a CEL conjunction over
operation, table, accuracy, seen and attempted_at, for example:

  factdrill weak --user 1 --filter "operation == 'divide' && accuracy <= 0.5"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		query, err := buildWeakFactQuery(viper.GetString(weakFilterKey))
		if err != nil {
			return err
		}
		query.Limit = viper.GetInt(weakLimitKey)

		container, cleanup, userID, err := initContainer(weakUserKey)
		if err != nil {
			return err
		}
		defer cleanup()
		query.UserID = userID

		facts, err := container.WeakFacts.ListWeakFacts(cmd.Context(), query)
		if err != nil {
			return fmt.Errorf("list weak facts: %w", err)
		}
		if len(facts) == 0 {
			cmd.Println("no weak facts yet")
			return nil
		}
		printWeakFacts(cmd.OutOrStdout(), facts)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(weakCmd)

	weakCmd.Flags().Int64("user", 0, "user id")
	weakCmd.Flags().Int("limit", 10, "maximum number of facts, 0 for all")
	weakCmd.Flags().String("filter", "", "CEL filter expression")

	bindFlagToViper(weakUserKey, weakCmd.Flags().Lookup("user"))
	bindFlagToViper(weakLimitKey, weakCmd.Flags().Lookup("limit"))
	bindFlagToViper(weakFilterKey, weakCmd.Flags().Lookup("filter"))
}

func buildWeakFactQuery(filter string) (*repository.WeakFactQuery, error) {
	var query repository.WeakFactQuery
	if err := filterexpr.BindCELTo(filter, &query, weakFactsSchema); err != nil {
		return nil, fmt.Errorf("invalid filter: %w", err)
	}
	return &query, nil
}

func printWeakFacts(w io.Writer, facts []entity.WeakFactSummary) {
	fmt.Fprintf(w, "%-10s %6s %9s %9s %11s\n", "FACT", "SEEN", "WRONG", "ACCURACY", "AVG TIME")
	for _, f := range facts {
		fmt.Fprintf(w, "%-10s %6d %9d %8.0f%% %11s\n",
			f.Fact.String(), f.TimesSeen, f.TimesIncorrect, f.AccuracyRate*100, f.AvgLatency.Round(10*time.Millisecond))
	}
}
