package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/viper"

	"github.com/fabworks/pdflow/internal/config"
	"github.com/fabworks/pdflow/internal/db"
	"github.com/fabworks/pdflow/internal/layout"
	"github.com/fabworks/pdflow/internal/pipeline"
)

// projectRoot picks the root from --root, PDFLOW_ROOT, or the cwd.
func projectRoot() (string, error) {
	if rootDir != "" {
		return rootDir, nil
	}
	if env := viper.GetString("root"); env != "" {
		return env, nil
	}
	return os.Getwd()
}

// setupLogger configures slog according to the verbosity flags.
func setupLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	if quiet {
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// openProject loads config, opens the state database, and builds a runner.
func openProject(ctx context.Context) (*config.Config, *db.DB, *pipeline.Runner, error) {
	root, err := projectRoot()
	if err != nil {
		return nil, nil, nil, err
	}
	cfg, err := config.Load(root)
	if err != nil {
		return nil, nil, nil, err
	}
	logger := setupLogger()

	database, err := db.Open(ctx, layout.New(cfg.Root).DatabasePath())
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, database, pipeline.NewRunner(cfg, database, logger), nil
}

// useJSON reports whether output should be machine-readable: forced by
// --json, or implied when stdout is not a terminal.
func useJSON() bool {
	return jsonOut || !isatty.IsTerminal(os.Stdout.Fd())
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseParams turns name=value pairs into typed stage parameters. Values
// that read as booleans or numbers are passed through typed so the script
// renders them the way the templates expect.
func parseParams(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	params := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid parameter %q, expected name=value", pair)
		}
		params[name] = parseValue(raw)
	}
	return params, nil
}

func parseValue(raw string) any {
	if b, err := strconv.ParseBool(raw); err == nil && (raw == "true" || raw == "false") {
		return b
	}
	if i, err := strconv.Atoi(raw); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}
