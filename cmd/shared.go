package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/eslsoft/factdrill/internal/app"
	"github.com/eslsoft/factdrill/internal/entity"
)

func bindFlagToViper(key string, flag *pflag.Flag) {
	if flag == nil {
		return
	}
	cobra.CheckErr(viper.BindPFlag(key, flag))
}

// initContainer builds the application and fails fast on a missing user id.
func initContainer(userKey string) (*app.Container, func(), int64, error) {
	userID := viper.GetInt64(userKey)
	if userID <= 0 {
		return nil, nil, 0, fmt.Errorf("--user is required: %w", entity.ErrInvalidUserID)
	}
	container, cleanup, err := app.Initialize()
	if err != nil {
		return nil, nil, 0, fmt.Errorf("initialize: %w", err)
	}
	return container, cleanup, userID, nil
}

// parseTables accepts "2,3,7" style lists, possibly repeated.
func parseTables(values []string) ([]int, error) {
	var tables []int
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			n, err := strconv.Atoi(part)
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("%w: invalid table %q", entity.ErrInvalidConfig, part)
			}
			tables = append(tables, n)
		}
	}
	return lo.Uniq(tables), nil
}

// tablesFromConfig reads a backup table list from viper, lower-cased and
// without blanks.
func tablesFromConfig(key string) []string {
	values := lo.FilterMap(viper.GetStringSlice(key), func(v string, _ int) (string, bool) {
		name := strings.ToLower(strings.TrimSpace(v))
		return name, name != ""
	})
	if len(values) == 0 {
		return nil
	}
	return lo.Uniq(values)
}

func parseOperations(values []string) ([]entity.Operation, error) {
	var ops []entity.Operation
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			op := entity.ParseOperation(part)
			if !op.Valid() {
				return nil, fmt.Errorf("%w: unknown operation %q", entity.ErrInvalidConfig, part)
			}
			ops = append(ops, op)
		}
	}
	if len(ops) == 0 {
		return entity.Operations, nil
	}
	return lo.Uniq(ops), nil
}
