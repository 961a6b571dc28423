package cli

import (
	"context"
	"fmt"

	"github.com/compozy/techrag/pkg/config"
	"github.com/compozy/techrag/pkg/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const flagConfig = "config"

func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "techrag",
		Short:         "Answer technical engineering questions from a knowledge base",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return setup(cmd)
		},
	}
	flags := root.PersistentFlags()
	flags.String(flagConfig, "", "Path to a YAML configuration file")
	flags.String(logger.FlagLevel, "", "Log level: debug, info, warn, error or disabled")
	flags.Bool(logger.FlagJSON, false, "Emit logs as JSON")
	flags.Bool(logger.FlagSource, false, "Include caller information in logs")
	flags.Int("max-iterations", 0, "Maximum number of steps per question")
	flags.Int("top-k", 0, "Number of documents retrieved per query")
	flags.Bool("web-search", false, "Enable the web search fallback")
	flags.String("vector-provider", "", "Vector store provider: pgvector or memory")
	flags.String("llm-url", "", "Base URL of the Ollama server")
	flags.String("generation-model", "", "Model used to write answers")
	root.AddCommand(
		AskCmd(),
		IngestCmd(),
		ServeCmd(),
		VersionCmd(),
	)
	return root
}

// setup loads configuration and installs the logger on the command context.
func setup(cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	sources := make([]config.Source, 0, 2)
	if path, _ := cmd.Flags().GetString(flagConfig); path != "" {
		sources = append(sources, config.NewYAMLProvider(path))
	}
	sources = append(sources, config.NewCLIProvider(changedFlags(cmd.Flags())))
	cfg, err := config.NewService().Load(ctx, sources...)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logCfg, err := logger.FlagConfig(cmd, cfg.Runtime.LogLevel)
	if err != nil {
		return err
	}
	log := logger.Setup(logCfg)
	ctx = config.ContextWithConfig(ctx, cfg)
	ctx = logger.ContextWithLogger(ctx, log)
	cmd.SetContext(ctx)
	return nil
}

// changedFlags returns the explicitly set flags that map onto configuration.
func changedFlags(flags *pflag.FlagSet) map[string]any {
	out := make(map[string]any)
	for name := range config.CLIFlagPaths {
		f := flags.Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		switch f.Value.Type() {
		case "int":
			v, err := flags.GetInt(name)
			if err == nil {
				out[name] = v
			}
		case "bool":
			v, err := flags.GetBool(name)
			if err == nil {
				out[name] = v
			}
		default:
			out[name] = f.Value.String()
		}
	}
	return out
}
