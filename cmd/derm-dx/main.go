package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	dermdx "github.com/menta2k/derm-dx"
	"github.com/menta2k/derm-dx/internal/config"
	"github.com/menta2k/derm-dx/internal/logging"
	"github.com/menta2k/derm-dx/internal/utils"
)

// Persistent flags
var (
	configFlag   string
	logLevelFlag string
	endpointFlag string
	backendFlag  string
	urlFlag      string
	modelFlag    string
)

// rootCmd is the main Cobra command for the derm-dx CLI.
var rootCmd = &cobra.Command{
	Use:   "derm-dx",
	Short: "Crop skin lesion photos and get a benign/malignant diagnosis",
	Long: `derm-dx places a lesion photo on a square canvas, normalizes it to the
classifier's input size and submits it to a diagnosis service.

Examples:
  derm-dx crop lesion.jpg --scale 1.5 --offset-x -40
  derm-dx normalize lesion.jpg --out ./submission
  derm-dx diagnose lesion.jpg
  derm-dx diagnose ./photos --json
  derm-dx diagnose lesion.jpg --backend ollama --model llava`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "derm-dx %s\n", dermdx.Version)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFlag, "config", "", "config file (default "+config.GetConfigPath()+")")
	pf.StringVar(&logLevelFlag, "log-level", "", "log level: debug|info|warn|error")
	pf.StringVar(&endpointFlag, "endpoint", "", "diagnosis service URL")
	pf.StringVar(&backendFlag, "backend", "", "classifier backend: http|ollama|llamacpp")
	pf.StringVar(&urlFlag, "url", "", "local backend server URL")
	pf.StringVar(&modelFlag, "model", "", "model name for ollama/llamacpp")

	rootCmd.AddCommand(cropCmd, normalizeCmd, diagnoseCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig layers defaults, the config file, environment and flags
func loadConfig() (*config.Config, error) {
	cfg := config.Default()

	path := configFlag
	if path == "" && utils.FileExists(config.GetConfigPath()) {
		path = config.GetConfigPath()
	}
	if path != "" {
		if !utils.FileExists(path) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		loaded, err := config.LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	cfg.ApplyEnv()

	if logLevelFlag != "" {
		cfg.Logging.Level = logLevelFlag
	}
	if endpointFlag != "" {
		cfg.Client.EndpointURL = endpointFlag
	}
	if backendFlag != "" {
		cfg.Backend.Kind = backendFlag
	}
	if urlFlag != "" {
		cfg.Backend.URL = urlFlag
	}
	if modelFlag != "" {
		cfg.Backend.Model = modelFlag
	}

	logging.Init(cfg.Logging.Level)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log.Debug().Str("config", path).Str("backend", cfg.Backend.Kind).Msg("Configuration loaded")
	return cfg, nil
}
