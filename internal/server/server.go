// Package server exposes a trained captioner over HTTP.
//
//	POST /api/caption   multipart form, field "image" (JPEG or PNG)
//	GET  /api/vocab     vocabulary size, threshold and fingerprint
//	GET  /api/version
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/born-ml/captioner/internal/dataset"
	"github.com/born-ml/captioner/internal/generate"
	"github.com/born-ml/captioner/internal/model"
	"github.com/born-ml/captioner/internal/version"
	"github.com/born-ml/captioner/internal/vocab"
)

// DefaultMaxUpload caps the request body of /api/caption.
const DefaultMaxUpload = 10 << 20

// Options configure a Server.
type Options struct {
	MaxLen    int
	Policy    generate.Policy
	MaxUpload int64 // Zero means DefaultMaxUpload
}

// CaptionResponse is the body of a successful /api/caption call.
type CaptionResponse struct {
	Caption string   `json:"caption"`
	Tokens  []string `json:"tokens"`
	Stopped bool     `json:"stopped"`
}

// VocabResponse is the body of /api/vocab.
type VocabResponse struct {
	Size        int    `json:"size"`
	Threshold   int    `json:"threshold"`
	Tokenizer   string `json:"tokenizer"`
	Fingerprint string `json:"fingerprint"`
}

// Server serves captions from one model. The model is never trained while
// served; Caption serializes generation internally.
type Server struct {
	model  *model.EncoderDecoder
	vocab  *vocab.Vocabulary
	images *dataset.ImageLoader
	opts   Options
}

// New creates a Server.
func New(m *model.EncoderDecoder, v *vocab.Vocabulary, opts Options) *Server {
	if opts.MaxUpload <= 0 {
		opts.MaxUpload = DefaultMaxUpload
	}
	return &Server{
		model:  m,
		vocab:  v,
		images: dataset.NewImageLoader(m.Config().Encoder.ImageSize),
		opts:   opts,
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "captioner is running")
	})
	r.GET("/api/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"version": version.Version})
	})
	r.GET("/api/vocab", s.vocabHandler)
	r.POST("/api/caption", s.captionHandler)
	return r
}

func (s *Server) vocabHandler(c *gin.Context) {
	c.JSON(http.StatusOK, VocabResponse{
		Size:        s.vocab.Len(),
		Threshold:   s.vocab.Threshold(),
		Tokenizer:   s.vocab.Tokenizer().Name(),
		Fingerprint: s.vocab.Fingerprint(),
	})
}

func (s *Server) captionHandler(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.opts.MaxUpload)

	fh, err := c.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit)})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing multipart field \"image\""})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer f.Close()

	pixels, err := s.images.Decode(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := s.model.Caption(pixels, model.CaptionOptions{MaxLen: s.opts.MaxLen, Policy: s.opts.Policy, Vocab: s.vocab})
	if err != nil {
		slog.Error("caption failed", "file", fh.Filename, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, CaptionResponse{
		Caption: strings.Join(res.Words, " "),
		Tokens:  res.Tokens,
		Stopped: res.Stopped,
	})
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(start))
	}
}

// Serve answers requests on ln until ctx is done, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	slog.Info("listening", "addr", ln.Addr().String(), "version", version.Version)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
