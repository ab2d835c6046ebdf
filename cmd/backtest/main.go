package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/austin-starks/nexttrade/internal/backtest"
	"github.com/austin-starks/nexttrade/internal/logger"
	"github.com/austin-starks/nexttrade/internal/market"
	"github.com/austin-starks/nexttrade/internal/store"
	"github.com/austin-starks/nexttrade/internal/types"
	"github.com/austin-starks/nexttrade/internal/version"
)

// runAction loads the run configuration and price data, executes the
// backtest with a progress bar, and writes the full run document as YAML.
func runAction(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")
	dataPath := cmd.String("data")
	outputPath := cmd.String("output")
	dbPath := cmd.String("db")
	baseline := cmd.Bool("baseline")

	appLog, err := logger.NewLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer appLog.Sync()

	configData, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	config, err := backtest.ParseConfig(configData)
	if err != nil {
		return err
	}

	history, err := market.LoadCSVHistory(dataPath)
	if err != nil {
		return err
	}

	provider := market.NewCachedProvider(market.NewHistoryProvider(history))

	// Reject unknown tickers before the (slower) history validation runs.
	symbols := market.NewSymbolCache(func(ctx context.Context) ([]string, error) {
		known := make([]string, 0, len(history))
		for symbol := range history {
			known = append(known, symbol)
		}

		return known, nil
	}, time.Hour)

	for _, sc := range config.Strategies {
		strategy, err := sc.Build()
		if err != nil {
			return err
		}

		for _, symbol := range strategy.Symbols() {
			if err := symbols.Validate(ctx, symbol); err != nil {
				return err
			}
		}
	}

	var saver backtest.Saver

	if dbPath != "" {
		st, err := store.NewStore(dbPath, appLog)
		if err != nil {
			return err
		}
		defer st.Close()

		saver = st
	}

	b, err := backtest.New(ctx, config, provider, saver, appLog)
	if err != nil {
		return err
	}

	var bar *progressbar.ProgressBar

	b.Run(ctx, backtest.RunOptions{
		SaveOnRun:        saver != nil,
		GenerateBaseline: baseline,
		OnStep: func(current, total int) {
			if bar == nil {
				bar = progressbar.Default(int64(total))
			}

			bar.Set(current)
		},
	})

	if err := writeResults(outputPath, b); err != nil {
		return err
	}

	if b.Status == types.StatusError {
		return fmt.Errorf("backtest finished with error: %s", b.Error)
	}

	fmt.Printf("backtest %s complete: %d steps, final stats written to %s\n", b.ID, b.StepCount, outputPath)

	return nil
}

func writeResults(path string, b *backtest.Backtester) error {
	out, err := yaml.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to serialize results: %w", err)
	}

	return os.WriteFile(path, out, 0o644)
}

// schemaAction prints the JSON schema of the run configuration.
func schemaAction(ctx context.Context, cmd *cli.Command) error {
	config := &backtest.Config{}

	schema, err := config.GenerateSchemaJSON()
	if err != nil {
		return err
	}

	fmt.Println(schema)

	return nil
}

func main() {
	cmd := &cli.Command{
		Name:    "backtest",
		Usage:   "Run trading-strategy backtests over historical price data",
		Version: version.GetVersion(),
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Execute a backtest described by a YAML config",
				Action: runAction,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "config",
						Aliases:  []string{"c"},
						Usage:    "Path to the YAML run configuration",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "data",
						Aliases:  []string{"d"},
						Usage:    "Directory of CSV price history files",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Path for the YAML results document",
						Value:   "results.yaml",
					},
					&cli.StringFlag{
						Name:  "db",
						Usage: "DuckDB file to persist the run document (omit to skip persistence)",
					},
					&cli.BoolFlag{
						Name:  "baseline",
						Usage: "Also compute the buy-and-hold comparison series",
					},
				},
			},
			{
				Name:   "schema",
				Usage:  "Print the JSON schema of the run configuration",
				Action: schemaAction,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
