package main

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	dermdx "github.com/menta2k/derm-dx"
	"github.com/menta2k/derm-dx/internal/backend"
	"github.com/menta2k/derm-dx/internal/utils"
	"github.com/menta2k/derm-dx/pkg/diagnosis"
	"github.com/menta2k/derm-dx/pkg/processing"
	"github.com/menta2k/derm-dx/pkg/types"
)

// Crop placement flags shared by crop and diagnose
var (
	canvasFlag  int
	scaleFlag   float64
	offsetXFlag float64
	offsetYFlag float64
	autoFlag    bool
)

// Output flags
var (
	outDirFlag   string
	extFlag      string
	qualityFlag  int
	losslessFlag bool
	jsonFlag     bool
)

var cropCmd = &cobra.Command{
	Use:   "crop IMAGE",
	Short: "Place a photo on the square crop canvas and save it",
	Args:  cobra.ExactArgs(1),
	RunE:  runCrop,
}

var normalizeCmd = &cobra.Command{
	Use:   "normalize IMAGE",
	Short: "Save the exact JPEG that would be submitted for diagnosis",
	Args:  cobra.ExactArgs(1),
	RunE:  runNormalize,
}

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose IMAGE|DIR...",
	Short: "Crop and diagnose one or more photos",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDiagnose,
}

func init() {
	for _, cmd := range []*cobra.Command{cropCmd, diagnoseCmd} {
		cmd.Flags().IntVar(&canvasFlag, "canvas", 0, "crop canvas side in pixels (0 = from config)")
		cmd.Flags().Float64Var(&scaleFlag, "scale", 0, "zoom factor (0 = fill scale)")
		cmd.Flags().Float64Var(&offsetXFlag, "offset-x", 0, "horizontal offset in canvas pixels")
		cmd.Flags().Float64Var(&offsetYFlag, "offset-y", 0, "vertical offset in canvas pixels")
		cmd.Flags().BoolVar(&autoFlag, "auto-center", false, "center the crop on the detected lesion (overrides offsets)")
	}

	for _, cmd := range []*cobra.Command{cropCmd, normalizeCmd} {
		cmd.Flags().StringVarP(&outDirFlag, "out", "o", "out", "output directory")
	}
	cropCmd.Flags().StringVar(&extFlag, "ext", "jpg", "output format: jpg|png|webp")
	cropCmd.Flags().IntVar(&qualityFlag, "quality", 90, "JPEG/WebP output quality (1-100)")
	cropCmd.Flags().BoolVar(&losslessFlag, "lossless", false, "WebP lossless mode")

	diagnoseCmd.Flags().BoolVar(&jsonFlag, "json", false, "print results as JSON")
}

// cropTransform returns the flag placement, or nil for the initial placement
func cropTransform() *types.CropTransform {
	if scaleFlag == 0 && offsetXFlag == 0 && offsetYFlag == 0 {
		return nil
	}
	return &types.CropTransform{
		Scale:  scaleFlag,
		Offset: types.Offset{X: offsetXFlag, Y: offsetYFlag},
	}
}

// placement resolves the crop placement for img, running lesion detection for --auto-center
func placement(pipeline *dermdx.Pipeline, img image.Image) *types.CropTransform {
	if !autoFlag {
		return cropTransform()
	}
	t, err := pipeline.AutoCenter(img, scaleFlag)
	if err != nil {
		log.Warn().Err(err).Msg("Lesion detection failed, using centered crop")
		return cropTransform()
	}
	log.Debug().
		Float64("scale", t.Scale).
		Float64("offset_x", t.Offset.X).
		Float64("offset_y", t.Offset.Y).
		Msg("Auto-centered crop")
	return &t
}

func canvasSize(configured int) int {
	if canvasFlag > 0 {
		return canvasFlag
	}
	return configured
}

func runCrop(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	pipeline := dermdx.New(nil, canvasSize(cfg.Crop.CanvasSize))
	img, err := pipeline.LoadImage(args[0])
	if err != nil {
		return fmt.Errorf("failed to load image: %w", err)
	}

	cropped := pipeline.Compose(img, placement(pipeline, img))

	if err := utils.EnsureDir(outDirFlag); err != nil {
		return err
	}
	outPath := utils.GenerateOutputFilename(args[0], outDirFlag, "", "_crop", extFlag)
	if err := processing.NewProcessor().SaveImage(cropped, outPath, extFlag, qualityFlag, losslessFlag); err != nil {
		return fmt.Errorf("failed to save crop: %w", err)
	}

	log.Info().Str("path", outPath).Int("canvas", pipeline.CanvasSize()).Msg("Crop saved")
	return nil
}

func runNormalize(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	img, err := processing.NewProcessor().LoadImageSmart(args[0])
	if err != nil {
		return fmt.Errorf("failed to load image: %w", err)
	}

	data, err := diagnosis.PrepareImage(img, cfg.Client.CanonicalSize, cfg.Client.JPEGQuality)
	if err != nil {
		return err
	}

	if err := utils.EnsureDir(outDirFlag); err != nil {
		return err
	}
	outPath := utils.GenerateOutputFilename(args[0], outDirFlag, "", "_normalized", "jpg")
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", outPath, err)
	}

	log.Info().
		Str("path", outPath).
		Int("size", cfg.Client.CanonicalSize).
		Str("bytes", utils.FormatFileSize(int64(len(data)))).
		Msg("Submission image saved")
	return nil
}

// diagnosisReport is one entry of the --json output
type diagnosisReport struct {
	File   string                 `json:"file"`
	Result *types.DiagnosisResult `json:"result,omitempty"`
	Error  string                 `json:"error,omitempty"`
	Kind   string                 `json:"kind,omitempty"`
}

func runDiagnose(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	files, err := collectImages(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no supported images found")
	}

	classifier, err := backend.New(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipeline := dermdx.New(classifier, canvasSize(cfg.Crop.CanvasSize))

	reports := make([]diagnosisReport, 0, len(files))
	failed := 0
	for _, file := range files {
		report := diagnosisReport{File: file}
		result, err := diagnoseOne(ctx, pipeline, file)
		if err != nil {
			failed++
			report.Error = diagnosis.UserMessage(err)
			if kind := diagnosis.KindOf(err); kind != 0 {
				report.Kind = kind.String()
			}
			log.Error().Err(err).Str("file", file).Msg("Diagnosis failed")
		} else {
			report.Result = result
		}
		reports = append(reports, report)

		if ctx.Err() != nil {
			break
		}
	}

	if jsonFlag {
		if err := writeJSON(cmd.OutOrStdout(), reports); err != nil {
			return err
		}
	} else {
		printSummary(cmd.OutOrStdout(), reports)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d diagnoses failed", failed, len(reports))
	}
	return nil
}

func diagnoseOne(ctx context.Context, pipeline *dermdx.Pipeline, file string) (*types.DiagnosisResult, error) {
	img, err := pipeline.LoadImage(file)
	if err != nil {
		return nil, fmt.Errorf("failed to load image: %w", err)
	}
	return pipeline.Diagnose(ctx, img, placement(pipeline, img))
}

// collectImages expands directories into the image files they contain
func collectImages(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		if utils.DirExists(arg) {
			found, err := utils.ListImageFiles(arg)
			if err != nil {
				return nil, fmt.Errorf("failed to scan %s: %w", arg, err)
			}
			files = append(files, found...)
			continue
		}
		files = append(files, arg)
	}
	return files, nil
}

func writeJSON(w io.Writer, reports []diagnosisReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(reports)
}

func printSummary(w io.Writer, reports []diagnosisReport) {
	for _, r := range reports {
		name := filepath.Base(r.File)
		if r.Result == nil {
			fmt.Fprintf(w, "%s: error: %s\n", name, r.Error)
			continue
		}
		verdict := "Malignant"
		if r.Result.IsBenign() {
			verdict = "Benign"
		}
		fmt.Fprintf(w, "%s: %s (confidence %s, prediction %.3f)\n",
			name, verdict, r.Result.ConfidencePercent(), r.Result.Prediction)
	}
}
