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

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/eslsoft/factdrill/internal/entity"
	"github.com/eslsoft/factdrill/internal/usecase"
)

const (
	answerUserKey    = "answer.user"
	answerAKey       = "answer.a"
	answerBKey       = "answer.b"
	answerOpKey      = "answer.op"
	answerCorrectKey = "answer.correct"
	answerLatencyKey = "answer.latency"
)

var answerCmd = &cobra.Command{
	Use:   "answer",
	Short: "Record an answer to one fact",
	Long:  "Append the answer to the attempt log and move the fact along the review ladder. For division, --a is the product and --b the table.",
	RunE: func(cmd *cobra.Command, args []string) error {
		fact := entity.Fact{
			OperandA:  viper.GetInt(answerAKey),
			OperandB:  viper.GetInt(answerBKey),
			Operation: entity.ParseOperation(viper.GetString(answerOpKey)),
		}
		if err := fact.Validate(); err != nil {
			return err
		}

		container, cleanup, userID, err := initContainer(answerUserKey)
		if err != nil {
			return err
		}
		defer cleanup()

		result, err := container.Practice.SubmitAnswer(cmd.Context(), userID, usecase.Answer{
			Fact:    fact,
			Correct: viper.GetBool(answerCorrectKey),
			Latency: viper.GetDuration(answerLatencyKey),
		})
		if err != nil {
			return fmt.Errorf("submit answer: %w", err)
		}

		verdict := "incorrect"
		if result.Attempt.IsCorrect {
			verdict = "correct"
		}
		cmd.Printf("%s = %d recorded as %s\n", fact, fact.Answer(), verdict)
		cmd.Printf("next review on %s (interval %d days, streak %d)\n",
			result.Mastery.NextReviewOn.Format(entity.DateLayout),
			result.Mastery.IntervalDays,
			result.Mastery.Repetitions)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(answerCmd)

	answerCmd.Flags().Int64("user", 0, "user id")
	answerCmd.Flags().Int("a", 0, "first operand: multiplier, or product for division")
	answerCmd.Flags().Int("b", 0, "second operand: the times table")
	answerCmd.Flags().String("op", string(entity.OperationMultiply), "operation: multiply or divide")
	answerCmd.Flags().Bool("correct", false, "whether the answer was correct")
	answerCmd.Flags().Duration("latency", 0, "time taken to answer, e.g. 2.4s")

	bindFlagToViper(answerUserKey, answerCmd.Flags().Lookup("user"))
	bindFlagToViper(answerAKey, answerCmd.Flags().Lookup("a"))
	bindFlagToViper(answerBKey, answerCmd.Flags().Lookup("b"))
	bindFlagToViper(answerOpKey, answerCmd.Flags().Lookup("op"))
	bindFlagToViper(answerCorrectKey, answerCmd.Flags().Lookup("correct"))
	bindFlagToViper(answerLatencyKey, answerCmd.Flags().Lookup("latency"))
}
