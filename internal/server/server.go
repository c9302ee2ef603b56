// Package server exposes the ask service over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Youssef2430/portfolio/internal/ai"
	"github.com/Youssef2430/portfolio/internal/ask"
)

// Answerer is the part of ask.Service the handlers use.
type Answerer interface {
	Ask(ctx context.Context, req ask.Request) (*ask.Response, error)
	Stream(ctx context.Context, req ask.Request, emit func(ai.StreamEvent) error) error
}

type Config struct {
	Addr           string
	AllowedOrigins []string // "*" allows any origin
}

type Server struct {
	answerer Answerer
	cfg      Config
	router   *gin.Engine
}

func New(answerer Answerer, cfg Config) *Server {
	s := &Server{answerer: answerer, cfg: cfg}

	r := gin.New()
	r.Use(gin.Recovery(), accessLog())
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(corsPolicy(cfg.AllowedOrigins))
	}
	r.GET("/health", s.handleHealth)
	r.POST("/ask", s.handleAsk)
	r.GET("/ask", s.handleStream)
	s.router = r
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

type askBody struct {
	Message any             `json:"message"`
	History json.RawMessage `json:"history"`
	Model   any             `json:"model"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleAsk(c *gin.Context) {
	var body askBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	msg, ok := body.Message.(string)
	if !ok {
		s.writeError(c, ask.ErrInvalidMessage)
		return
	}
	model, _ := body.Model.(string)

	resp, err := s.answerer.Ask(c.Request.Context(), ask.Request{
		Message:  msg,
		History:  parseHistory(body.History),
		Model:    model,
		ClientID: c.ClientIP(),
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"response": resp.Text,
		"metrics":  resp.Metrics,
	})
}

func (s *Server) handleStream(c *gin.Context) {
	req := ask.Request{
		Message:  c.Query("message"),
		History:  parseHistory([]byte(c.Query("history"))),
		Model:    c.Query("model"),
		ClientID: c.ClientIP(),
	}

	started := false
	emit := func(e ai.StreamEvent) error {
		if !started {
			started = true
			c.Header("Content-Type", "text/event-stream")
			c.Header("Cache-Control", "no-cache")
			c.Header("Connection", "keep-alive")
			c.Header("X-Accel-Buffering", "no")
			c.Status(http.StatusOK)
		}
		return writeEvent(c.Writer, e)
	}

	err := s.answerer.Stream(c.Request.Context(), req, emit)
	if err != nil {
		if !started {
			s.writeError(c, err)
			return
		}
		if errors.Is(err, context.Canceled) {
			slog.Info("client went away mid-stream")
			return
		}
		ref := uuid.NewString()
		slog.Error("stream failed", "reference", ref, "error", err)
		if werr := writeEvent(c.Writer, gin.H{"error": "Internal server error", "details": "reference " + ref}); werr != nil {
			slog.Debug("write error event failed", "reference", ref, "error", werr)
		}
		return
	}

	if _, err := fmt.Fprint(c.Writer, "data: [DONE]\n\n"); err != nil {
		slog.Debug("write done event failed", "error", err)
		return
	}
	c.Writer.Flush()
}

// writeError maps pipeline errors to responses. Upstream detail goes to the
// log under a reference id and never to the caller.
func (s *Server) writeError(c *gin.Context, err error) {
	var ve *ai.ValidationError
	if errors.As(err, &ve) {
		c.JSON(http.StatusBadRequest, gin.H{"error": ve.Msg})
		return
	}

	ref := uuid.NewString()
	slog.Error("ask failed", "reference", ref, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   "Internal server error",
		"details": "reference " + ref,
	})
}

func writeEvent(w gin.ResponseWriter, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	w.Flush()
	return nil
}

// parseHistory decodes a JSON list of messages. Anything else is empty history.
func parseHistory(raw []byte) []ai.Message {
	if len(raw) == 0 {
		return nil
	}
	var history []ai.Message
	if err := json.Unmarshal(raw, &history); err != nil {
		return nil
	}
	return history
}

// corsPolicy admits the configured origins; "*" admits any.
func corsPolicy(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Content-Type"},
		MaxAge:       12 * time.Hour,
	}
	if slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"client", c.ClientIP(),
		)
	}
}
