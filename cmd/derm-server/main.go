package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/menta2k/derm-dx/internal/backend"
	"github.com/menta2k/derm-dx/internal/config"
	"github.com/menta2k/derm-dx/internal/logging"
	"github.com/menta2k/derm-dx/internal/utils"
	"github.com/menta2k/derm-dx/pkg/client"
	"github.com/menta2k/derm-dx/pkg/server"
)

var (
	configFlag    string
	addrFlag      string
	uploadDirFlag string
	noPredictFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "derm-server",
	Short: "Serve lesion upload and prediction endpoints",
	Long: `derm-server accepts lesion photos over HTTP.

  POST /upload   stores the multipart field "file" in the upload directory
  POST /predict  classifies the multipart field "image" with the configured backend
  GET  /health   liveness check`,
	SilenceUsage: true,
	RunE:         runServer,
}

func init() {
	rootCmd.Flags().StringVar(&configFlag, "config", "", "config file")
	rootCmd.Flags().StringVar(&addrFlag, "addr", "", "listen address (default from config)")
	rootCmd.Flags().StringVar(&uploadDirFlag, "upload-dir", "", "upload directory (default from config)")
	rootCmd.Flags().BoolVar(&noPredictFlag, "no-predict", false, "disable /predict")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if configFlag != "" {
		if !utils.FileExists(configFlag) {
			return fmt.Errorf("config file not found: %s", configFlag)
		}
		loaded, err := config.LoadFromFile(configFlag)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	cfg.ApplyEnv()
	if addrFlag != "" {
		cfg.Server.Addr = addrFlag
	}
	if uploadDirFlag != "" {
		cfg.Server.UploadDir = uploadDirFlag
	}

	logging.Init(cfg.Logging.Level)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	var classifier client.Classifier
	if !noPredictFlag {
		c, err := backend.New(cfg)
		if err != nil {
			return err
		}
		classifier = c
	}

	if err := utils.EnsureDir(cfg.Server.UploadDir); err != nil {
		return fmt.Errorf("failed to create upload directory: %w", err)
	}

	gin.SetMode(gin.ReleaseMode)
	router := server.NewRouter(server.Options{
		UploadDir:      cfg.Server.UploadDir,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		Classifier:     classifier,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("addr", cfg.Server.Addr).
		Str("upload_dir", cfg.Server.UploadDir).
		Str("backend", cfg.Backend.Kind).
		Bool("predict", classifier != nil).
		Msg("derm-server listening")

	return server.Serve(ctx, srv, nil, 15*time.Second, log.Logger)
}
