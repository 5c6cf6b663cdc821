// Package api provides the HTTP JSON api for race data, race control and key values.
package api

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rs/cors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mpapenbr/weblynx-service-go/log"
	"github.com/mpapenbr/weblynx-service-go/pkg/config"
	"github.com/mpapenbr/weblynx-service-go/pkg/kvstore"
	"github.com/mpapenbr/weblynx-service-go/pkg/lynx/message"
	"github.com/mpapenbr/weblynx-service-go/pkg/model"
	"github.com/mpapenbr/weblynx-service-go/pkg/utils/broadcast"
)

const tokenHeader = "api-token"

type (
	// RaceState is the race manager as used by the api
	RaceState interface {
		Snapshot() *model.RaceData
		LapCounterSettings() config.LapCounterSettings
		ProcessChunk(data []byte, label string)
		Reset()
		Pause() error
		Resume() error
		BufferStatus() map[string]message.BufferStatus
	}

	Option func(*Server)
	Server struct {
		race       RaceState
		store      kvstore.Store
		updates    broadcast.BroadcastServer[*model.RaceData]
		adminToken string
		now        func() time.Time
		keepAlive  time.Duration
		log        *log.Logger
	}
)

func WithRaceState(rs RaceState) Option {
	return func(s *Server) {
		s.race = rs
	}
}

func WithKeyValueStore(store kvstore.Store) Option {
	return func(s *Server) {
		s.store = store
	}
}

// WithUpdates sets the source for the server sent events
func WithUpdates(b broadcast.BroadcastServer[*model.RaceData]) Option {
	return func(s *Server) {
		s.updates = b
	}
}

// WithAdminToken protects the race control endpoints. An empty token disables the check.
func WithAdminToken(token string) Option {
	return func(s *Server) {
		s.adminToken = token
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

func WithKeepAlive(d time.Duration) Option {
	return func(s *Server) {
		s.keepAlive = d
	}
}

func NewServer(opts ...Option) *Server {
	ret := &Server{
		now:       time.Now,
		keepAlive: 15 * time.Second,
		log:       log.Default().Named("api"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.store == nil {
		ret.store = kvstore.NewMemoryStore()
	}
	return ret
}

// Routes returns the mux with all api endpoints.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	s.handle(mux, "GET /healthz", s.healthz)
	s.handle(mux, "GET /api/version", s.getVersion)
	s.handle(mux, "GET /api/race/current", s.getCurrentRace)
	s.handle(mux, "GET /api/race/race-data", s.getRaceData)
	s.handle(mux, "GET /api/race/events", s.raceEvents)
	s.handle(mux, "GET /api/race/buffers", s.getBuffers)
	s.handle(mux, "POST /api/race/test-announcement", s.admin(s.testAnnouncement))
	s.handle(mux, "POST /api/race/reset", s.admin(s.reset))
	s.handle(mux, "POST /api/race/pause", s.admin(s.pause))
	s.handle(mux, "POST /api/race/resume", s.admin(s.resume))
	s.handle(mux, "GET /api/key-values", s.getKeyValues)
	s.handle(mux, "GET /api/key-values/{key}", s.getKeyValue)
	s.handle(mux, "POST /api/key-values", s.postKeyValue)
	s.handle(mux, "DELETE /api/key-values/{key}", s.deleteKeyValue)
	return mux
}

// Handler returns the api with CORS and h2c support.
func (s *Server) Handler() http.Handler {
	return h2c.NewHandler(newCORS().Handler(s.Routes()), &http2.Server{})
}

func (s *Server) handle(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	tracer := otel.Tracer("weblynx.api")
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), pattern, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()
		h(w, r.WithContext(ctx))
	})
}

func (s *Server) admin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.adminToken != "" && !tokenMatches(requestToken(r), s.adminToken) {
			s.log.Warn("rejected request without valid token",
				log.String("path", r.URL.Path),
				log.String("remote", r.RemoteAddr))
			writeError(w, http.StatusUnauthorized, "permission denied")
			return
		}
		next(w, r)
	}
}

func requestToken(r *http.Request) string {
	if t := r.Header.Get(tokenHeader); t != "" {
		return t
	}
	if t, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return t
	}
	return ""
}

// tokenMatches compares the hashes of both tokens in constant time.
func tokenMatches(got, want string) bool {
	a := sha256.Sum256([]byte(got))
	b := sha256.Sum256([]byte(want))
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func newCORS() *cors.Cors {
	return cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodDelete,
		},
		AllowOriginFunc: func(origin string) bool {
			return true
		},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"Content-Type", "Content-Encoding"},
		MaxAge:         int(2 * time.Hour / time.Second),
	})
}
