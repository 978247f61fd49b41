// Package devserver is an in-memory implementation of the Katha REST API for
// local runs, the load simulator and tests. A single ForumActor owns all
// state; HTTP handlers talk to it through request futures.
package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"katha/internal/config"
	"katha/internal/utils"
)

// Server holds the actor system and everything the handlers need.
type Server struct {
	System         *actor.ActorSystem
	Context        *actor.RootContext
	ForumPID       *actor.PID
	Tokens         *TokenIssuer
	Metrics        *utils.MetricsCollector
	RequestTimeout time.Duration

	logger         *slog.Logger
	faults         *faultInjector
	cors           *CORSConfig
	metricsEnabled bool
}

// NewServer starts the actor system and spawns the forum.
func NewServer(cfg *config.ServerConfig, logger *slog.Logger, metrics *utils.MetricsCollector) *Server {
	if cfg == nil {
		cfg = config.DefaultServerConfig()
	}
	if logger == nil {
		logger = utils.DiscardLogger()
	}
	if metrics == nil {
		metrics = utils.NewMetricsCollector()
	}

	system := actor.NewActorSystem()
	props := actor.PropsFromProducer(func() actor.Actor {
		return NewForumActor(logger, metrics, nil)
	})
	pid := system.Root.Spawn(props)

	return &Server{
		System:         system,
		Context:        system.Root,
		ForumPID:       pid,
		Tokens:         NewTokenIssuer(cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL),
		Metrics:        metrics,
		RequestTimeout: 5 * time.Second,
		logger:         logger,
		faults:         newFaultInjector(),
		cors:           DefaultCORSConfig(cfg.AllowedOrigins),
		metricsEnabled: cfg.MetricsEnabled,
	}
}

// Close stops the forum actor.
func (s *Server) Close() {
	_ = s.Context.StopFuture(s.ForumPID).Wait()
}

// Handler returns the full route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Auth root
	s.route(mux, "POST /api/token/", s.HandleObtainToken())
	s.route(mux, "POST /api/token/refresh/", s.HandleRefreshToken())

	// Versioned API root
	s.route(mux, "POST /api/v1/token/", s.HandleObtainToken())
	s.route(mux, "POST /api/v1/token/refresh/", s.HandleRefreshToken())
	s.route(mux, "POST /api/v1/register/", s.HandleRegister())
	s.route(mux, "POST /api/v1/auth/{provider}/", s.HandleOAuth())
	s.route(mux, "GET /api/v1/user/me/", s.authenticated(s.HandleGetMe()))
	s.route(mux, "PATCH /api/v1/user/me/", s.authenticated(s.HandleUpdateMe()))
	s.route(mux, "PUT /api/v1/user/me/", s.authenticated(s.HandleUpdateMe()))

	s.route(mux, "GET /api/v1/posts/", s.HandleListPosts())
	s.route(mux, "POST /api/v1/posts/", s.authenticated(s.HandleCreatePost()))
	s.route(mux, "GET /api/v1/posts/saved/", s.authenticated(s.HandleSavedPosts()))
	s.route(mux, "GET /api/v1/posts/{id}/", s.HandleGetPost())
	s.route(mux, "PUT /api/v1/posts/{id}/", s.authenticated(s.HandleUpdatePost()))
	s.route(mux, "PATCH /api/v1/posts/{id}/", s.authenticated(s.HandleUpdatePost()))
	s.route(mux, "DELETE /api/v1/posts/{id}/", s.authenticated(s.HandleDeletePost()))
	s.route(mux, "POST /api/v1/posts/{id}/vote/", s.authenticated(s.HandleVote("post")))
	s.route(mux, "POST /api/v1/posts/{id}/save/", s.authenticated(s.HandleToggleSave()))

	s.route(mux, "POST /api/v1/comments/", s.authenticated(s.HandleCreateComment()))
	s.route(mux, "PUT /api/v1/comments/{id}/", s.authenticated(s.HandleUpdateComment()))
	s.route(mux, "PATCH /api/v1/comments/{id}/", s.authenticated(s.HandleUpdateComment()))
	s.route(mux, "DELETE /api/v1/comments/{id}/", s.authenticated(s.HandleDeleteComment()))
	s.route(mux, "POST /api/v1/comments/{id}/vote/", s.authenticated(s.HandleVote("comment")))

	s.route(mux, "GET /api/v1/notifications/", s.authenticated(s.HandleListNotifications()))
	s.route(mux, "GET /api/v1/notifications/unread_count/", s.authenticated(s.HandleUnreadCount()))
	s.route(mux, "POST /api/v1/notifications/{id}/mark_read/", s.authenticated(s.HandleMarkRead()))
	s.route(mux, "POST /api/v1/notifications/mark_all_read/", s.authenticated(s.HandleMarkAllRead()))

	s.route(mux, "POST /api/v1/feedback/", s.HandleFeedback())

	mux.HandleFunc("GET /health", s.HandleHealth())
	if s.metricsEnabled {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.Metrics.Registry(), promhttp.HandlerOpts{}))
	}

	// Test hooks
	mux.HandleFunc("POST /__dev/expire-tokens", s.HandleExpireTokens())
	mux.HandleFunc("POST /__dev/fail", s.HandleInjectFailure())

	return cors(s.cors, s.faults.wrap(s.identify(mux)))
}

// route registers h under pattern, recording latency and status per pattern.
// Patterns match their path exactly, never as a subtree.
func (s *Server) route(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	op := pattern[strings.IndexByte(pattern, ' ')+1:]
	mux.HandleFunc(pattern+"{$}", func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		s.Metrics.ObserveRequest(op, rec.status, time.Since(start))
		s.logger.Debug("handled",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"request_id", r.Header.Get("X-Request-Id"),
			"dur", time.Since(start),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Authentication

type contextKey string

const userIDKey contextKey = "user_id"

func withUserID(ctx context.Context, id int) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// UserIDFromContext returns the authenticated caller, 0 for anonymous requests.
func UserIDFromContext(ctx context.Context) int {
	id, _ := ctx.Value(userIDKey).(int)
	return id
}

// identify resolves the bearer token, if any. A request that presents an
// invalid or expired token is rejected even on public routes, which is what
// drives clients into their refresh path.
func (s *Server) identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" || strings.Contains(r.URL.Path, "/token/") {
			next.ServeHTTP(w, r)
			return
		}
		if !strings.HasPrefix(authHeader, "Bearer ") {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid authorization format"})
			return
		}
		claims, err := s.Tokens.Validate(strings.TrimPrefix(authHeader, "Bearer "), tokenAccess)
		if err != nil {
			s.logger.Debug("rejected access token", "error", err)
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"detail": "Given token not valid for any token type",
				"code":   "token_not_valid",
			})
			return
		}
		next.ServeHTTP(w, r.WithContext(withUserID(r.Context(), claims.UserID)))
	})
}

// authenticated rejects anonymous callers.
func (s *Server) authenticated(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if UserIDFromContext(r.Context()) == 0 {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"detail": "Authentication credentials were not provided.",
			})
			return
		}
		h(w, r)
	}
}

// Actor plumbing

// ask sends msg to the forum and waits for its answer. An *utils.AppError
// answer comes back as the error.
func (s *Server) ask(msg any) (any, error) {
	result, err := s.Context.RequestFuture(s.ForumPID, msg, s.RequestTimeout).Result()
	if err != nil {
		return nil, utils.NewAppError(utils.ErrServer, "Forum did not answer", err)
	}
	if appErr, ok := result.(*utils.AppError); ok {
		return nil, appErr
	}
	return result, nil
}

// Responses

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError renders err the way the API does: field maps for validation
// failures, {"error": ...} for other bad requests and {"detail": ...} for
// everything else.
func writeError(w http.ResponseWriter, err error) {
	var appErr *utils.AppError
	if !errors.As(err, &appErr) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	var statusCode int
	switch appErr.Code {
	case utils.ErrNotFound:
		statusCode = http.StatusNotFound
	case utils.ErrInvalidInput, utils.ErrValidation:
		statusCode = http.StatusBadRequest
	case utils.ErrUnauthorized:
		statusCode = http.StatusUnauthorized
	case utils.ErrForbidden:
		statusCode = http.StatusForbidden
	case utils.ErrTooManyRequests:
		statusCode = http.StatusTooManyRequests
	default:
		statusCode = http.StatusInternalServerError
	}

	switch {
	case len(appErr.Fields) > 0:
		writeJSON(w, statusCode, appErr.Fields)
	case statusCode == http.StatusBadRequest || statusCode == http.StatusInternalServerError:
		writeJSON(w, statusCode, map[string]string{"error": appErr.Message})
	default:
		writeJSON(w, statusCode, map[string]string{"detail": appErr.Message})
	}
}

func decodeBody(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return utils.NewAppError(utils.ErrInvalidInput, "JSON parse error", err)
	}
	return nil
}

func pathID(r *http.Request) (int, error) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id <= 0 {
		return 0, utils.NewAppError(utils.ErrNotFound, "Not found.", nil)
	}
	return id, nil
}
