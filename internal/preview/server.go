// Package preview serves a live view of the dock over HTTP: session status
// as JSON, the last frame as PNG, an MJPEG stream and a websocket feed of
// status changes. It is off unless preview.enabled is set.
package preview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/bryanchriswhite/sdock/internal/logger"
	"github.com/bryanchriswhite/sdock/internal/session"
)

// StatusSource provides session status snapshots
type StatusSource interface {
	Snapshot() session.Status
}

// Server is the preview HTTP server
type Server struct {
	router   *mux.Router
	stream   *Stream
	status   StatusSource
	upgrader websocket.Upgrader

	// eventInterval is how often /api/events checks for a status change
	eventInterval time.Duration
}

// NewServer creates a preview server for stream and status
func NewServer(stream *Stream, status StatusSource) *Server {
	s := &Server{
		router: mux.NewRouter(),
		stream: stream,
		status: status,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Local preview, any origin
			},
		},
		eventInterval: 250 * time.Millisecond,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/preview.png", s.handlePNG).Methods("GET")
	api.HandleFunc("/events", s.handleEvents)

	s.router.Handle("/stream", s.stream).Methods("GET")
	s.router.HandleFunc("/", s.handleIndex).Methods("GET")
}

// Handler returns the server's root handler
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

// Start serves on port until ctx is done. It returns nil after a clean
// shutdown.
func (s *Server) Start(ctx context.Context, port int) error {
	log := logger.WithComponent("preview")

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Preview server shutdown failed")
		}
	}()

	log.Info().Msgf("Preview available at http://localhost:%d", port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("preview server failed: %w", err)
	}
	return nil
}

func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "healthy"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, s.status.Snapshot())
}

func (s *Server) handlePNG(w http.ResponseWriter, r *http.Request) {
	img, _ := s.stream.Latest()
	if img == nil {
		http.Error(w, "no frame rendered yet", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	if err := png.Encode(w, img); err != nil {
		logger.WithComponent("preview").Debug().Err(err).Msg("Failed to write PNG")
	}
}

// handleEvents pushes the session status over a websocket whenever it
// changes, starting with the current one
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("preview")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	// Reads only to notice the client closing
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.eventInterval)
	defer ticker.Stop()

	var last session.Status
	first := true
	for {
		if st := s.status.Snapshot(); first || st != last {
			if err := conn.WriteJSON(st); err != nil {
				log.Debug().Err(err).Msg("WebSocket write failed")
				return
			}
			last, first = st, false
		}

		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, indexHTML)
}

func respondJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithComponent("preview").Debug().Err(err).Msg("Failed to write JSON response")
	}
}

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>sdock preview</title>
    <style>
        body {
            margin: 0;
            min-height: 100vh;
            display: flex;
            flex-direction: column;
            justify-content: center;
            align-items: center;
            background: repeating-conic-gradient(#bbb 0% 25%, #eee 0% 50%) 50% / 24px 24px;
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
        }
        img { max-width: 100vw; }
        pre {
            background: rgba(0, 0, 0, 0.7);
            color: #ddd;
            padding: 8px 14px;
            border-radius: 6px;
        }
    </style>
</head>
<body>
    <img src="/stream" alt="dock">
    <pre id="status">connecting...</pre>
    <script>
        const ws = new WebSocket("ws://" + location.host + "/api/events");
        ws.onmessage = (e) => {
            document.getElementById("status").textContent = JSON.stringify(JSON.parse(e.data), null, 2);
        };
        ws.onclose = () => {
            document.getElementById("status").textContent = "disconnected";
        };
    </script>
</body>
</html>
`
