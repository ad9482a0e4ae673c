package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/sipeed/picojarvis/pkg/config"
	"github.com/sipeed/picojarvis/pkg/logger"
	"github.com/sipeed/picojarvis/pkg/router"
)

//go:embed static
var staticFS embed.FS

const (
	maxBodyBytes    = 1 << 20
	shutdownTimeout = 5 * time.Second
)

// Commander is the part of the router the HTTP surface needs.
type Commander interface {
	CommandHandler
	Stream(ctx context.Context, command string, onChunk func(string) error) error
	Snapshot(ctx context.Context) (*router.Snapshot, error)
}

type StatusResponse struct {
	Status string `json:"status"`
	*router.Snapshot
	OpenAIKey  bool   `json:"openai_key"`
	ServerHost string `json:"server_host"`
	ServerPort int    `json:"server_port"`
}

type sendRequest struct {
	Message string `json:"message"`
}

type replyResponse struct {
	Reply string `json:"reply"`
}

// HTTPServer is the browser console and its JSON API.
type HTTPServer struct {
	cfg      *config.Config
	commands Commander
	handler  http.Handler
}

func NewHTTPServer(cfg *config.Config, commands Commander) *HTTPServer {
	s := &HTTPServer{cfg: cfg, commands: commands}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	if cfg.HTTPRatePerSec > 0 {
		r.Use(rateLimit(rate.NewLimiter(rate.Limit(cfg.HTTPRatePerSec), burst(cfg.HTTPRatePerSec))))
	}

	r.Get("/", s.handleIndex)
	r.Get("/index.html", s.handleIndex)
	r.Get("/favicon.ico", s.handleFavicon)
	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Post("/send", s.handleSend)
		r.Post("/stream", s.handleStream)
	})

	s.handler = r
	return s
}

func (s *HTTPServer) Handler() http.Handler {
	return s.handler
}

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (s *HTTPServer) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve handles requests on ln and shuts down gracefully when ctx ends.
func (s *HTTPServer) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.InfoCF("server", "HTTP console listening", map[string]any{
			"address": ln.Addr().String(),
		})
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.ErrorCF("server", "HTTP shutdown error", map[string]any{"error": err.Error()})
		_ = srv.Close()
	}
	<-errCh
	logger.InfoC("server", "HTTP console stopped")
	return nil
}

func (s *HTTPServer) handleIndex(w http.ResponseWriter, _ *http.Request) {
	s.serveStatic(w, "static/index.html", "text/html; charset=utf-8")
}

func (s *HTTPServer) handleFavicon(w http.ResponseWriter, _ *http.Request) {
	s.serveStatic(w, "static/favicon.svg", "image/svg+xml")
}

func (s *HTTPServer) serveStatic(w http.ResponseWriter, name, contentType string) {
	data, err := staticFS.ReadFile(name)
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Status:     "online",
		OpenAIKey:  s.cfg.HostedAPIKey() != "",
		ServerHost: s.cfg.ServerHost,
		ServerPort: s.cfg.ServerPort,
	}
	snap, err := s.commands.Snapshot(r.Context())
	if err != nil {
		logger.WarnCF("server", "Status snapshot failed", map[string]any{"error": err.Error()})
		resp.Status = "offline"
	} else {
		resp.Snapshot = snap
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleSend(w http.ResponseWriter, r *http.Request) {
	message, ok := readMessage(w, r)
	if !ok {
		return
	}
	reply := s.commands.Handle(r.Context(), message)
	if reply == "" {
		reply = "ok"
	}
	writeJSON(w, http.StatusOK, replyResponse{Reply: reply})
}

func (s *HTTPServer) handleStream(w http.ResponseWriter, r *http.Request) {
	message, ok := readMessage(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	err := s.commands.Stream(r.Context(), message, func(chunk string) error {
		if _, err := io.WriteString(w, chunk); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	})
	if err != nil {
		logger.DebugCF("server", "Stream ended early", map[string]any{
			"request_id": chiMiddleware.GetReqID(r.Context()),
			"error":      err.Error(),
		})
	}
}

// readMessage decodes {"message": "..."} and answers 400 itself when the
// body is malformed or the message is empty.
func readMessage(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req sendRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, replyResponse{Reply: "invalid payload"})
		return "", false
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		writeJSON(w, http.StatusBadRequest, replyResponse{Reply: "empty message"})
		return "", false
	}
	return message, true
}

func rateLimit(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				writeJSON(w, http.StatusTooManyRequests, replyResponse{Reply: "rate limited"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func burst(perSec float64) int {
	if perSec < 1 {
		return 1
	}
	return int(perSec)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
