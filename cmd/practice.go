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
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/eslsoft/factdrill/internal/entity"
	"github.com/eslsoft/factdrill/internal/usecase"
)

const (
	practiceUserKey       = "practice.user"
	practiceModeKey       = "practice.mode"
	practiceTablesKey     = "practice.tables"
	practiceOpsKey        = "practice.ops"
	practiceCountKey      = "practice.count"
	practiceIncreasingKey = "practice.increasing"
	practiceTimeKey       = "practice.time_per_question"
	practiceFromKey       = "practice.from"
	practiceJSONKey       = "practice.json"
)

var practiceCmd = &cobra.Command{
	Use:   "practice",
	Short: "Prepare a practice session",
	Long:  "Prepare a plain, adaptive or due-review session and print its questions. Adaptive and due sessions fall back to plain practice when there is not enough history.",
	RunE: func(cmd *cobra.Command, args []string) error {
		tables, err := parseTables(viper.GetStringSlice(practiceTablesKey))
		if err != nil {
			return err
		}
		ops, err := parseOperations(viper.GetStringSlice(practiceOpsKey))
		if err != nil {
			return err
		}
		mode, err := entity.ParseSessionMode(viper.GetString(practiceModeKey))
		if err != nil {
			return err
		}
		pre, err := loadQuestions(viper.GetString(practiceFromKey))
		if err != nil {
			return err
		}

		container, cleanup, userID, err := initContainer(practiceUserKey)
		if err != nil {
			return err
		}
		defer cleanup()

		session, err := container.Sessions.Prepare(cmd.Context(), userID, usecase.SessionRequest{
			Mode: mode,
			Config: entity.SessionConfig{
				Tables:               tables,
				QuestionCount:        viper.GetInt(practiceCountKey),
				TimePerQuestion:      viper.GetDuration(practiceTimeKey),
				IncreasingDifficulty: viper.GetBool(practiceIncreasingKey),
				Operations:           ops,
				PreGenerated:         pre,
			},
		})
		if err != nil {
			return fmt.Errorf("prepare session: %w", err)
		}

		if viper.GetBool(practiceJSONKey) {
			return writeSessionJSON(cmd.OutOrStdout(), session)
		}
		if session.FellBack {
			cmd.Printf("%s practice unavailable, using plain practice\n", session.Mode)
		}
		cmd.Printf("%d questions, %s per question\n", len(session.Questions), session.TimePerQuestion)
		for i, q := range session.Questions {
			cmd.Printf("%3d. %s = ?\n", i+1, q.Fact)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(practiceCmd)

	practiceCmd.Flags().Int64("user", 0, "user id")
	practiceCmd.Flags().String("mode", string(entity.SessionModePlain), "session mode: plain, adaptive or due")
	practiceCmd.Flags().StringSlice("tables", []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "10"}, "times tables, comma separated")
	practiceCmd.Flags().StringSlice("ops", []string{"multiply"}, "operations: multiply, divide")
	practiceCmd.Flags().Int("count", 20, "number of questions")
	practiceCmd.Flags().Bool("increasing", false, "order questions from easy to hard")
	practiceCmd.Flags().Duration("time-per-question", 0, "time allowed per question, 0 for untimed")
	practiceCmd.Flags().String("from", "", "JSON file of pre-generated questions, - for stdin")
	practiceCmd.Flags().Bool("json", false, "print the session as JSON")

	bindPracticeConfig()
}

func bindPracticeConfig() {
	bindFlagToViper(practiceUserKey, practiceCmd.Flags().Lookup("user"))
	bindFlagToViper(practiceModeKey, practiceCmd.Flags().Lookup("mode"))
	bindFlagToViper(practiceTablesKey, practiceCmd.Flags().Lookup("tables"))
	bindFlagToViper(practiceOpsKey, practiceCmd.Flags().Lookup("ops"))
	bindFlagToViper(practiceCountKey, practiceCmd.Flags().Lookup("count"))
	bindFlagToViper(practiceIncreasingKey, practiceCmd.Flags().Lookup("increasing"))
	bindFlagToViper(practiceTimeKey, practiceCmd.Flags().Lookup("time-per-question"))
	bindFlagToViper(practiceFromKey, practiceCmd.Flags().Lookup("from"))
	bindFlagToViper(practiceJSONKey, practiceCmd.Flags().Lookup("json"))
}

func loadQuestions(path string) ([]entity.Question, error) {
	if path == "" {
		return nil, nil
	}
	var r io.Reader = os.Stdin
	if path != "-" {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open questions file: %w", err)
		}
		defer file.Close()
		r = file
	}
	var questions []entity.Question
	if err := json.NewDecoder(r).Decode(&questions); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}
	return questions, nil
}

type sessionView struct {
	Mode            entity.SessionMode `json:"mode"`
	FellBack        bool               `json:"fell_back"`
	TimePerQuestion string             `json:"time_per_question"`
	Questions       []questionView     `json:"questions"`
}

type questionView struct {
	entity.Question
	Prompt string `json:"prompt"`
}

func writeSessionJSON(w io.Writer, session *entity.Session) error {
	view := sessionView{
		Mode:            session.Mode,
		FellBack:        session.FellBack,
		TimePerQuestion: session.TimePerQuestion.String(),
		Questions: lo.Map(session.Questions, func(q entity.Question, _ int) questionView {
			return questionView{Question: q, Prompt: q.Fact.String()}
		}),
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(view)
}
