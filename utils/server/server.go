// Package server exposes the workbench engine over HTTP.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/kris-hansen/workbench/utils/config"
	"github.com/kris-hansen/workbench/utils/models"
)

// Server handles workbench API requests.
type Server struct {
	mux       *http.ServeMux
	config    *config.ServerConfig
	envConfig *config.EnvConfig
	completer models.Completer
}

// Response is the envelope of every non-streaming reply.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// New builds a server that sends prompt nodes to completer. A nil completer
// routes requests by model name using the providers in envConfig.
func New(envConfig *config.EnvConfig, completer models.Completer) *Server {
	if envConfig == nil {
		envConfig = &config.EnvConfig{}
	}
	if completer == nil {
		router := models.NewRouter(envConfig)
		router.SetVerbose(config.Verbose || config.Debug)
		completer = router
	}
	s := &Server{
		mux:       http.NewServeMux(),
		config:    envConfig.GetServerConfig(),
		envConfig: envConfig,
		completer: completer,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/parse", s.withAuth(s.handleParse))
	s.mux.HandleFunc("/chunk", s.withAuth(s.handleChunk))
	s.mux.HandleFunc("/run", s.withAuth(s.handleRun))
	s.mux.HandleFunc("/export", s.withAuth(s.handleExport))
}

// ServeHTTP applies CORS and the body limit before dispatching.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.config.CORS.Enabled {
		s.setCORSHeaders(w, r)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	if s.config.MaxBodyBytes > 0 && r.Body != nil {
		r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
	}
	config.DebugLog("%s %s", r.Method, r.URL.Path)
	s.mux.ServeHTTP(w, r)
}

func (s *Server) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	cors := s.config.CORS
	origin := r.Header.Get("Origin")
	allowed := len(cors.AllowedOrigins) == 0
	for _, o := range cors.AllowedOrigins {
		if o == "*" || o == origin {
			allowed = true
			break
		}
	}
	if !allowed {
		return
	}
	if origin == "" || (len(cors.AllowedOrigins) == 1 && cors.AllowedOrigins[0] == "*") {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	} else {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
	}

	methods := cors.AllowedMethods
	if len(methods) == 0 {
		methods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	}
	headers := cors.AllowedHeaders
	if len(headers) == 0 {
		headers = []string{"Authorization", "Content-Type"}
	}
	w.Header().Set("Access-Control-Allow-Methods", strings.Join(methods, ", "))
	w.Header().Set("Access-Control-Allow-Headers", strings.Join(headers, ", "))
	if cors.MaxAge > 0 {
		w.Header().Set("Access-Control-Max-Age", strconv.Itoa(cors.MaxAge))
	}
}

// withAuth rejects requests without the configured bearer token.
func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.config.BearerToken != "" {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token != s.config.BearerToken {
				config.VerboseLog("Rejected unauthenticated request to %s", r.URL.Path)
				writeError(w, http.StatusUnauthorized, "Invalid or missing bearer token")
				return
			}
		}
		next(w, r)
	}
}

// runContext bounds a run by the configured timeout.
func (s *Server) runContext(parent context.Context) (context.Context, context.CancelFunc) {
	if s.config.RunTimeoutSeconds > 0 {
		return context.WithTimeout(parent, time.Duration(s.config.RunTimeoutSeconds)*time.Second)
	}
	return context.WithCancel(parent)
}

func writeJSON(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		config.DebugLog("Error encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Response{Success: false, Error: message})
}

func requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed. Use POST.")
		return false
	}
	return true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return false
	}
	return true
}

// Run starts the server and blocks until SIGINT or SIGTERM.
func Run(envConfig *config.EnvConfig) error {
	s := New(envConfig, nil)
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Workbench server listening on %s\n", addr)
		if s.config.BearerToken == "" {
			log.Printf("[WARN] No bearer token configured; the API is unauthenticated\n")
		}
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	log.Printf("Shutting down server...\n")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("error shutting down server: %w", err)
	}
	return nil
}
