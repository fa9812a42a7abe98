package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/SimplyPrint/nfc-reader/internal/core"
	"github.com/SimplyPrint/nfc-reader/internal/events"
	"github.com/SimplyPrint/nfc-reader/internal/logging"
)

// Version information (set via ldflags in production builds)
var (
	Version   = ""
	BuildTime = ""
	GitCommit = ""
)

func init() {
	// If version wasn't set via ldflags, this is a dev build
	// Try to get VCS info from Go's build info
	if Version == "" {
		Version = "dev"
		if info, ok := debug.ReadBuildInfo(); ok {
			var vcsRevision, vcsTime string
			var vcsModified bool
			for _, setting := range info.Settings {
				switch setting.Key {
				case "vcs.revision":
					vcsRevision = setting.Value
				case "vcs.time":
					vcsTime = setting.Value
				case "vcs.modified":
					vcsModified = setting.Value == "true"
				}
			}
			if vcsRevision != "" {
				shortCommit := vcsRevision
				if len(shortCommit) > 7 {
					shortCommit = shortCommit[:7]
				}
				GitCommit = vcsRevision
				Version = "dev-" + shortCommit
				if vcsModified {
					Version += "-dirty"
				}
			}
			if vcsTime != "" {
				BuildTime = vcsTime
			}
		}
	}
}

// RequestIDHeader carries the per-request ID assigned by the server.
const RequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// Options wires the server to its collaborators.
type Options struct {
	// Reader performs card reads. Required.
	Reader core.CardIDReader
	// Lister backs the health endpoint. Optional.
	Lister core.ReaderLister
	// Publisher receives every successful read in addition to WebSocket
	// clients. Optional.
	Publisher events.Publisher
	// CancelOnDisconnect aborts a pending card wait when the client goes away.
	CancelOnDisconnect bool
}

// Server serves the card reader API.
type Server struct {
	reader             core.CardIDReader
	lister             core.ReaderLister
	publisher          events.Publisher
	hub                *WSHub
	cancelOnDisconnect bool
}

// NewServer creates a server and starts its WebSocket hub.
func NewServer(opts Options) *Server {
	s := &Server{
		reader:             opts.Reader,
		lister:             opts.Lister,
		cancelOnDisconnect: opts.CancelOnDisconnect,
		hub:                NewWSHub(),
	}
	go s.hub.Run()

	s.publisher = events.Multi{s.hub, opts.Publisher}
	return s
}

// Close stops the WebSocket hub. The handler must not be served afterwards.
func (s *Server) Close() {
	s.hub.Stop()
}

// Handler returns the HTTP handler for the API. CORS is applied outside the
// router so that 404, 405 and preflight responses carry the headers too.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(requestIDMiddleware, recoveryMiddleware)

	r.HandleFunc("/nfc-card-id", s.handleCardID).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	v1.HandleFunc("/version", handleVersion).Methods(http.MethodGet)
	v1.HandleFunc("/logs", handleLogs).Methods(http.MethodGet, http.MethodDelete)
	v1.HandleFunc("/crashes", handleCrashes).Methods(http.MethodGet)
	v1.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)

	return corsMiddleware(r)
}

// requestIDMiddleware tags each request with a fresh ID.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set(RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestID returns the ID assigned to the request carried by ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// recoveryMiddleware catches panics and logs them to crash files.
func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				stack := debug.Stack()
				where := fmt.Sprintf("HTTP %s %s", r.Method, r.URL.Path)

				// Send to Sentry if enabled
				logging.CapturePanic(rec, stack, where)

				logging.Error(logging.CatHTTP, fmt.Sprintf("PANIC in %s: %v", where, rec), map[string]any{
					"panic":     fmt.Sprintf("%v", rec),
					"stack":     string(stack),
					"requestId": RequestID(r.Context()),
				})

				crashFile, err := logging.WriteCrashLog(where, rec, stack)
				if err != nil {
					fmt.Fprintf(os.Stderr, "Failed to write crash log: %v\n", err)
					crashFile = ""
				}

				respondJSON(w, http.StatusInternalServerError, map[string]string{
					"error":     "internal server error",
					"crashFile": crashFile,
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware adds CORS headers to allow browser access from any origin.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Expose-Headers", RequestIDHeader)

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// readContext returns the context a card read runs under. Unless configured
// otherwise, a read is not aborted when the client disconnects.
func (s *Server) readContext(r *http.Request) context.Context {
	if s.cancelOnDisconnect {
		return r.Context()
	}
	return context.WithoutCancel(r.Context())
}

// handleCardID waits for a card and answers with its serial number as
// uppercase hex, or a 500 naming the failed stage.
func (s *Server) handleCardID(w http.ResponseWriter, r *http.Request) {
	requestID := RequestID(r.Context())

	card, err := s.reader.ReadCardID(s.readContext(r))
	if err != nil {
		reportReadError(err, requestID, "http")
		respondText(w, http.StatusInternalServerError, err.Error())
		return
	}

	logging.Info(logging.CatCard, "Card read", map[string]any{
		"reader":    card.Reader,
		"serial":    card.Serial,
		"requestId": requestID,
	})
	respondText(w, http.StatusOK, card.Serial)

	s.publishAsync(events.CardRead{
		RequestID: requestID,
		Reader:    card.Reader,
		Serial:    card.Serial,
		Timestamp: time.Now().UTC(),
	})
}

// reportReadError logs a failed read and forwards unexpected failures to Sentry.
func reportReadError(err error, requestID, origin string) {
	fields := map[string]any{
		"error":     err.Error(),
		"requestId": requestID,
		"origin":    origin,
	}

	var re *core.ReaderError
	if errors.As(err, &re) {
		fields["kind"] = re.Kind.String()
	}

	if errors.Is(err, core.ErrNoReaderFound) {
		logging.Warn(logging.CatCard, "Card read failed", fields)
		return
	}
	logging.Error(logging.CatCard, "Card read failed", fields)
	logging.CaptureError(err, "card read", fields)
}

// publishAsync hands ev to the publishers without holding up the response.
func (s *Server) publishAsync(ev events.CardRead) {
	go func() {
		defer logging.RecoverAndLog("event publish", false)
		if err := s.publisher.PublishCardRead(ev); err != nil {
			logging.Warn(logging.CatEvents, "Publishing card read failed", map[string]any{
				"error":     err.Error(),
				"requestId": ev.RequestID,
			})
		}
	}()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"status":      "ok",
		"readerCount": 0,
	}

	if s.lister != nil {
		readers, err := s.lister.ListReaders()
		if err != nil {
			response["readerError"] = err.Error()
		} else {
			response["readerCount"] = len(readers)
		}
	}

	respondJSON(w, http.StatusOK, response)
}

func handleVersion(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"version":   Version,
		"buildTime": BuildTime,
		"gitCommit": GitCommit,
	})
}

func handleLogs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		query := r.URL.Query()

		// Limit (default 100, max 1000)
		limit := 100
		if limitStr := query.Get("limit"); limitStr != "" {
			if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
				limit = min(l, 1000)
			}
		}

		var minLevel *logging.Level
		if levelStr := query.Get("level"); levelStr != "" {
			l := logging.ParseLevel(levelStr)
			minLevel = &l
		}

		var category *logging.Category
		if catStr := query.Get("category"); catStr != "" {
			c := logging.Category(strings.ToLower(catStr))
			category = &c
		}

		respondJSON(w, http.StatusOK, map[string]any{
			"entries": logging.Get().GetEntries(limit, minLevel, category),
			"stats":   logging.Get().Stats(),
		})

	case http.MethodDelete:
		logging.Get().Clear()
		respondJSON(w, http.StatusOK, map[string]string{
			"success": "logs cleared",
		})
	}
}

func handleCrashes(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if filename := query.Get("file"); filename != "" {
		content, err := logging.ReadCrashLog(filename)
		if err != nil {
			respondJSON(w, http.StatusNotFound, map[string]string{
				"error": "crash log not found: " + err.Error(),
			})
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{
			"filename": filename,
			"content":  content,
		})
		return
	}

	limit := 20
	if limitStr := query.Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = min(l, 100)
		}
	}

	logs, err := logging.GetCrashLogs(limit)
	if err != nil {
		respondJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list crash logs: " + err.Error(),
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"crashes":  logs,
		"crashDir": logging.CrashLogDir(),
	})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data) // Error logged but not returned (header already sent)
}

func respondText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
