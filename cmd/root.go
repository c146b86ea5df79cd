package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/grovegraph/grove/internal/config"
	"github.com/grovegraph/grove/internal/engine"
	"github.com/grovegraph/grove/internal/logger"
)

const envPrefix = "GROVE"

var (
	// cfgFile is the path to the configuration file.
	cfgFile string
	// verbose enables verbose output.
	verbose bool
	// actor identifies who is moderating edges in the audit trail.
	actor string
	// version is the application version.
	version = "0.1.0"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "grove",
	Short: "Grove grows a knowledge graph from your notes.",
	Long: `Grove captures notes as graph nodes, auto-suggests links between
related notes using hybrid semantic and tag similarity, and keeps every
link decision in an auditable lifecycle: suggested, accepted, rejected.

Search combines boolean tag filters with quoted similarity phrases:

  grove search 'tag:ml AND "vector databases"'`,
	Version: version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.SetCommand(cmd.Name())
	},
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	logger.SetVersion(version)
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is $HOME/.grove.yaml or ./.grove.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&actor, "actor", defaultActor(), "name recorded on edge decisions")

	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig reads the config file and environment variables.
func initConfig() {
	// A missing .env file is fine.
	_ = godotenv.Load()

	viper.SetEnvPrefix(envPrefix)
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName(".grove")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
		}
	}

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// openEngine builds the full stack from the resolved configuration.
// Callers must Close() it.
func openEngine(ctx context.Context) (*engine.Engine, error) {
	cfg := config.Load()
	logger.SetBasePath(cfg.DataDir)
	eng, err := engine.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open grove at %s: %w", cfg.DataDir, err)
	}
	return eng, nil
}

func defaultActor() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "local"
}
