package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/kosarica/catalog-ingest/config"
)

var (
	cfgFile string
	cfg     *config.Config
	cfgErr  error
	logger  zerolog.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "catalog-ingest",
	Short: "Catalog ingest CLI - retail XML price catalog ingestion tool",
	Long: `A CLI tool for ingesting retailer XML price catalogs into the document store.
Catalogs can be read from local files (plain, gzip or ZIP) or fetched by URL, and
can be parsed without writing anything to inspect which items would be skipped.`,
	PersistentPreRunE: persistentPreRun,
	SilenceUsage:      true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config/config.yaml or ./config.yaml)")
}

func initConfig() {
	cfg, cfgErr = config.Load(cfgFile)
}

// persistentPreRun runs before each command and initializes the logger
func persistentPreRun(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "help" || cmd.Name() == "completion" {
		return nil
	}

	logger = initLogger()

	// Only the commands that write need a valid config
	if cmd.Annotations["needsConfig"] == "true" && cfgErr != nil {
		return fmt.Errorf("config required for %s: %w", cmd.Name(), cfgErr)
	}
	if cfgErr != nil {
		logger.Debug().Err(cfgErr).Msg("Config not loaded")
	}
	return nil
}

func initLogger() zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level := zerolog.InfoLevel
	if cfg != nil && cfg.Logging.Level != "" {
		if parsedLevel, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
			level = parsedLevel
		}
	}

	// Console output unless json is configured; stdout carries command results
	var output io.Writer
	if cfg != nil && cfg.Logging.Format == "json" {
		output = os.Stderr
	} else {
		noColor := false
		if cfg != nil {
			noColor = cfg.Logging.NoColor
		}
		output = zerolog.ConsoleWriter{Out: os.Stderr, NoColor: noColor}
	}

	return zerolog.New(output).Level(level).With().Timestamp().Logger()
}

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
