// Package server exposes lesion upload and prediction over HTTP.
package server

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/menta2k/derm-dx/internal/utils"
	"github.com/menta2k/derm-dx/pkg/client"
	"github.com/menta2k/derm-dx/pkg/diagnosis"
	"github.com/menta2k/derm-dx/pkg/processing"
)

// DefaultMaxUploadBytes is the request size limit when none is configured
const DefaultMaxUploadBytes int64 = 10 << 20

// Options configures the HTTP handlers
type Options struct {
	// UploadDir receives files posted to /upload
	UploadDir string
	// MaxUploadBytes caps the request body; larger requests get 413
	MaxUploadBytes int64
	// Classifier serves /predict; nil makes it answer 503
	Classifier client.Classifier
	Processor  *processing.Processor
	Logger     *zerolog.Logger
}

type handler struct {
	opts   Options
	logger zerolog.Logger
}

// NewRouter builds a gin engine with all routes registered
func NewRouter(opts Options) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	RegisterRoutes(router, opts)
	return router
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, opts Options) {
	if opts.UploadDir == "" {
		opts.UploadDir = "uploads"
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if opts.Processor == nil {
		opts.Processor = processing.NewProcessor()
	}
	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	h := &handler{
		opts:   opts,
		logger: logger.With().Str("component", "server").Logger(),
	}

	router.MaxMultipartMemory = opts.MaxUploadBytes
	router.Use(h.requestLogger(), corsHeaders())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	limited := router.Group("/", h.limitBody())
	limited.POST("/upload", h.upload)
	limited.POST("/predict", h.predict)
}

func (h *handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	}
}

func corsHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (h *handler) limitBody() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > h.opts.MaxUploadBytes {
			tooLarge(c)
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.opts.MaxUploadBytes)
		c.Next()
	}
}

func tooLarge(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"message": "File too large"})
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

// upload stores the posted file under the upload directory
func (h *handler) upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		if isTooLarge(err) {
			tooLarge(c)
			return
		}
		// A part sent with an empty filename is parsed as a plain value
		if form := c.Request.MultipartForm; form != nil {
			if _, ok := form.Value["file"]; ok {
				c.JSON(http.StatusBadRequest, gin.H{"message": "No selected file"})
				return
			}
		}
		c.JSON(http.StatusBadRequest, gin.H{"message": "No file part"})
		return
	}

	if file.Filename == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "No selected file"})
		return
	}

	filename := utils.SanitizeFilename(file.Filename)
	if filename == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid filename"})
		return
	}

	if err := utils.EnsureDir(h.opts.UploadDir); err != nil {
		h.logger.Error().Err(err).Str("dir", h.opts.UploadDir).Msg("Failed to create upload directory")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to save file"})
		return
	}

	dst := filepath.Join(h.opts.UploadDir, filename)
	if err := c.SaveUploadedFile(file, dst); err != nil {
		h.logger.Error().Err(err).Str("path", dst).Msg("Failed to save upload")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to save file"})
		return
	}

	h.logger.Info().
		Str("filename", filename).
		Str("size", utils.FormatFileSize(file.Size)).
		Msg("File uploaded")

	c.JSON(http.StatusOK, gin.H{
		"message":  "File uploaded successfully",
		"filename": filename,
	})
}

// predict classifies the posted image with the configured classifier
func (h *handler) predict(c *gin.Context) {
	if h.opts.Classifier == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no classifier configured"})
		return
	}

	file, err := c.FormFile(diagnosis.FieldName)
	if err != nil {
		if isTooLarge(err) {
			tooLarge(c)
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
		return
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unable to open image"})
		return
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read image"})
		return
	}

	img, err := h.opts.Processor.DecodeImage(data)
	if errors.Is(err, processing.ErrImageTooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid image: " + err.Error()})
		return
	}

	result, err := h.opts.Classifier.Classify(c.Request.Context(), img)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Classification failed")
		body := gin.H{"error": diagnosis.UserMessage(err)}
		if kind := diagnosis.KindOf(err); kind != 0 {
			body["kind"] = kind.String()
		}
		c.JSON(http.StatusBadGateway, body)
		return
	}

	c.JSON(http.StatusOK, result)
}
