package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tendant/simple-image/pkg/logger"
	"github.com/tendant/simple-image/pkg/simpleimage/config"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	c := &cli{out: os.Stdout}
	defer c.close()
	if err := NewRootCommand(c).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		c.close()
		os.Exit(1)
	}
}

// cli carries state shared by every subcommand
type cli struct {
	configFile string
	verbose    bool
	jsonOutput bool
	out        io.Writer

	comp *config.Components
	log  *zap.Logger
}

// NewRootCommand creates the imagectl command tree
func NewRootCommand(c *cli) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "imagectl",
		Short: "Manage images stored by simple-image",
		Long: `imagectl talks to the image stores directly, using the same
environment variables as the server. A .env file in the current
directory is loaded when present.`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(c.out)

	rootCmd.PersistentFlags().StringVarP(&c.configFile, "config", "c", "", "YAML config file applied before the environment")
	rootCmd.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "log to stderr")
	rootCmd.PersistentFlags().BoolVar(&c.jsonOutput, "json", false, "print results as JSON")

	rootCmd.AddCommand(
		NewUploadCommand(c),
		NewListCommand(c),
		NewGetCommand(c),
		NewDeleteCommand(c),
		NewReconcileCommand(c),
		NewEnvCommand(c),
	)
	return rootCmd
}

// components builds the stores on first use
func (c *cli) components(cmd *cobra.Command) (*config.Components, error) {
	if c.comp != nil {
		return c.comp, nil
	}
	_ = godotenv.Load()

	opts := []config.Option{}
	if c.configFile != "" {
		opts = append(opts, config.WithConfigFile(c.configFile))
	}
	opts = append(opts, config.WithEnv(), config.WithMetrics(false))
	cfg, err := config.Load(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	c.log = zap.NewNop()
	if c.verbose {
		if c.log, err = logger.New("development"); err != nil {
			return nil, err
		}
	}

	comp, err := cfg.Build(cmd.Context(), c.log)
	if err != nil {
		return nil, err
	}
	c.comp = comp
	return comp, nil
}

func (c *cli) close() {
	if c.comp == nil {
		return
	}
	if err := c.comp.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: closing stores: %v\n", err)
	}
	c.comp = nil
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
