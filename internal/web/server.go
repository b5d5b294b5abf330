package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"image-compressor-go/internal/batch"
	"image-compressor-go/internal/compressor"
	"image-compressor-go/internal/config"
	"image-compressor-go/internal/statistics"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

type Server struct {
	cfg          *config.Config
	log          *logrus.Logger
	orchestrator *batch.Orchestrator
	router       *mux.Router
	httpServer   *http.Server
	wsUpgrader   websocket.Upgrader
	wsClients    map[*websocket.Conn]bool
	wsMutex      sync.RWMutex

	// Current operation state
	operationMutex sync.RWMutex
	isRunning      bool
	current        *statistics.Summary
	lastSummary    *statistics.Summary
	runDone        chan struct{}
}

type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type ScanRequest struct {
	ImagesPath string `json:"images_path"`
}

type CompressRequest struct {
	ImagesPath       string `json:"images_path"`
	OutputPath       string `json:"output_path,omitempty"`
	CompressionLevel *int   `json:"compression_level,omitempty"`
}

type DirectoryInfo struct {
	Path         string `json:"path"`
	Name         string `json:"name"`
	IsDirectory  bool   `json:"is_directory"`
	Size         int64  `json:"size"`
	ModifiedTime string `json:"modified_time"`
}

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// FileEvent is the websocket payload for a finished image.
type FileEvent struct {
	InputPath       string  `json:"input_path"`
	OutputPath      string  `json:"output_path,omitempty"`
	Format          string  `json:"format"`
	OriginalSize    int64   `json:"original_size"`
	CompressedSize  int64   `json:"compressed_size"`
	PercentageSaved float64 `json:"percentage_saved"`
	Error           string  `json:"error,omitempty"`
}

func NewServer(cfg *config.Config, log *logrus.Logger, orchestrator *batch.Orchestrator) *Server {
	s := &Server{
		cfg:          cfg,
		log:          log,
		orchestrator: orchestrator,
		router:       mux.NewRouter(),
		wsClients:    make(map[*websocket.Conn]bool),
		wsUpgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins in development
			},
		},
	}

	s.setupRoutes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/scan", s.handleScan).Methods("POST")
	api.HandleFunc("/compress", s.handleCompress).Methods("POST")
	api.HandleFunc("/summary", s.handleGetSummary).Methods("GET")
	api.HandleFunc("/directories", s.handleListDirectories).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
}

func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.log.Infof("Starting web server on http://localhost%s", addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Wait blocks until the in-flight run, if any, has finished.
func (s *Server) Wait() {
	s.operationMutex.RLock()
	done := s.runDone
	s.operationMutex.RUnlock()
	if done != nil {
		<-done
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.RLock()
	running := s.isRunning
	current := s.current
	summary := s.lastSummary
	s.operationMutex.RUnlock()

	var summaryData, progressData interface{}
	if summary != nil {
		summaryData = summaryPayload(summary)
	}
	if current != nil {
		progressData = summaryPayload(current)
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"running":  running,
			"progress": progressData,
			"summary":  summaryData,
		},
	})
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	plan, err := s.orchestrator.Scan(req.ImagesPath, "")
	if err != nil {
		s.writeError(w, err.Error(), statusFor(err))
		return
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"images_path": plan.InputDir,
			"count":       len(plan.Files),
			"files":       plan.Files,
		},
	})
}

func (s *Server) handleCompress(w http.ResponseWriter, r *http.Request) {
	var req CompressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if s.running() {
		s.writeError(w, "Compression already in progress", http.StatusConflict)
		return
	}

	// validated without holding operationMutex; isRunning is rechecked below
	plan, err := s.orchestrator.Scan(req.ImagesPath, req.OutputPath)
	if err != nil {
		s.writeError(w, err.Error(), statusFor(err))
		return
	}

	s.operationMutex.Lock()
	if s.isRunning {
		s.operationMutex.Unlock()
		s.writeError(w, "Compression already in progress", http.StatusConflict)
		return
	}
	s.isRunning = true
	s.runDone = make(chan struct{})
	done := s.runDone
	s.operationMutex.Unlock()

	go s.runCompressAsync(plan, req, done)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(APIResponse{
		Success: true,
		Message: "Compression started",
		Data: map[string]interface{}{
			"count": len(plan.Files),
		},
	})
}

func (s *Server) running() bool {
	s.operationMutex.RLock()
	defer s.operationMutex.RUnlock()
	return s.isRunning
}

func (s *Server) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.RLock()
	summary := s.lastSummary
	s.operationMutex.RUnlock()

	if summary == nil {
		s.writeJSON(w, APIResponse{
			Success: true,
			Data:    nil,
		})
		return
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data:    summary,
	})
}

func (s *Server) handleListDirectories(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		path = "."
	}

	// Security check - prevent directory traversal
	path = filepath.Clean(path)
	if strings.Contains(path, "..") {
		s.writeError(w, "Invalid path", http.StatusBadRequest)
		return
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		s.writeError(w, fmt.Sprintf("Failed to read directory: %v", err), http.StatusInternalServerError)
		return
	}

	directories := make([]DirectoryInfo, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}

		directories = append(directories, DirectoryInfo{
			Path:         filepath.Join(path, entry.Name()),
			Name:         entry.Name(),
			IsDirectory:  entry.IsDir(),
			Size:         info.Size(),
			ModifiedTime: info.ModTime().Format(time.RFC3339),
		})
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data:    directories,
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	s.wsMutex.Lock()
	s.wsClients[conn] = true
	s.wsMutex.Unlock()

	s.log.Debug("WebSocket client connected")

	defer func() {
		s.wsMutex.Lock()
		delete(s.wsClients, conn)
		s.wsMutex.Unlock()
		s.log.Debug("WebSocket client disconnected")
	}()

	// Keep connection alive
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (s *Server) runCompressAsync(plan *batch.Plan, req CompressRequest, done chan struct{}) {
	defer close(done)

	s.broadcastWSMessage("compress_started", map[string]interface{}{
		"images_path": plan.InputDir,
		"output_path": plan.OutputDir,
		"count":       len(plan.Files),
	})

	summary := s.orchestrator.Execute(plan, batch.Options{
		Level:       req.CompressionLevel,
		Concurrency: s.cfg.Performance.WorkerThreads,
		OnStart: func(live *statistics.Summary) {
			s.operationMutex.Lock()
			s.current = live
			s.operationMutex.Unlock()
		},
		OnResult: func(res compressor.CompressionResult) {
			if res.Success {
				s.broadcastWSMessage("file_compressed", fileEvent(res))
			} else {
				s.broadcastWSMessage("file_failed", fileEvent(res))
			}
		},
	})

	s.operationMutex.Lock()
	s.isRunning = false
	s.current = nil
	s.lastSummary = summary.Snapshot()
	s.operationMutex.Unlock()

	s.broadcastWSMessage("compress_completed", summaryPayload(summary))
}

func (s *Server) broadcastWSMessage(messageType string, data interface{}) {
	message := WSMessage{
		Type: messageType,
		Data: data,
	}

	msgBytes, err := json.Marshal(message)
	if err != nil {
		s.log.Errorf("Failed to marshal WebSocket message: %v", err)
		return
	}

	// WriteMessage is not safe for concurrent use on one conn
	s.wsMutex.Lock()
	defer s.wsMutex.Unlock()

	for conn := range s.wsClients {
		if err := conn.WriteMessage(websocket.TextMessage, msgBytes); err != nil {
			s.log.Errorf("Failed to write WebSocket message: %v", err)
			delete(s.wsClients, conn)
			conn.Close()
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		Error:   message,
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, batch.ErrNoImagesFound):
		return http.StatusUnprocessableEntity
	case batch.IsValidationError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func fileEvent(res compressor.CompressionResult) FileEvent {
	ev := FileEvent{
		InputPath:       res.InputPath,
		OutputPath:      res.OutputPath,
		Format:          res.Format.String(),
		OriginalSize:    res.OriginalSize,
		CompressedSize:  res.CompressedSize,
		PercentageSaved: res.PercentageSaved(),
	}
	if res.Error != nil {
		ev.Error = res.Error.Error()
	}
	return ev
}

func summaryPayload(s *statistics.Summary) map[string]interface{} {
	return map[string]interface{}{
		"summary":          s.GetSummary(),
		"candidates":       s.Candidates,
		"processed":        s.GetProcessed(),
		"failed":           len(s.GetFailures()),
		"bytes_saved":      s.BytesSaved(),
		"percentage_saved": s.PercentageSaved(),
		"failures":         s.GetFailures(),
	}
}
