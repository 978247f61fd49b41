// Package simulator drives load against a Katha API through the client
// library: each simulated user has its own session, token slot and vote
// reconciler, exactly as a terminal client would.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"katha/internal/api"
	"katha/internal/confirm"
	"katha/internal/feed"
	"katha/internal/session"
	"katha/internal/utils"
	"katha/internal/vote"
)

type SimConfig struct {
	NumUsers         int
	SimulationTime   time.Duration
	PostFrequency    float64 // per user per hour
	CommentFrequency float64 // per user per hour
	VoteFrequency    float64 // per user per hour
	ReplyPercentage  float64 // share of comments that answer another comment
	UpvoteRatio      float64
	DisconnectRate   float64 // chance per connectivity tick that a user logs out
	ReconnectRate    float64 // chance per connectivity tick that a user logs back in
	ZipfS            float64 // skew of post popularity, must be > 1
	TickInterval     time.Duration
	Workers          int
	RegisterRate     float64 // registrations per second across all workers, 0 for no limit
	MetricsInterval  time.Duration
	APIURL           string
	Password         string
	RequestTimeout   time.Duration
}

// DefaultSimConfig mirrors a small classroom: a handful of users posting a
// few times an hour for ten minutes.
func DefaultSimConfig() SimConfig {
	return SimConfig{
		NumUsers:         10,
		SimulationTime:   10 * time.Minute,
		PostFrequency:    100,
		CommentFrequency: 60,
		VoteFrequency:    100,
		ReplyPercentage:  0.4,
		UpvoteRatio:      0.7,
		DisconnectRate:   0.01,
		ReconnectRate:    0.05,
		ZipfS:            1.07,
		TickInterval:     500 * time.Millisecond,
		Workers:          5,
		RegisterRate:     5,
		MetricsInterval:  10 * time.Second,
		APIURL:           "http://127.0.0.1:8000/api/v1/",
		Password:         "Katha#Load42",
		RequestTimeout:   5 * time.Second,
	}
}

type SimulationStats struct {
	mu              sync.RWMutex
	StartTime       time.Time
	TotalRequests   int64
	SuccessRequests int64
	FailedRequests  int64
	AverageLatency  time.Duration
	ActiveUsers     int
	TotalPosts      int
	TotalComments   int
	TotalReplies    int
	TotalVotes      int
	Reconnects      int
}

// SimulatedUser is one client: its own token slot, session and reconciler.
type SimulatedUser struct {
	ID          uuid.UUID
	Username    string
	Email       string
	IsConnected bool
	LastActive  time.Time
	Posts       []int
	Comments    []int
	VotedPosts  map[int]bool

	session *session.Session
	feed    *feed.Feed
	votes   *vote.Reconciler

	// busy keeps one user to one action at a time.
	busy sync.Mutex
}

type Simulator struct {
	config  SimConfig
	stats   *SimulationStats
	logger  *slog.Logger
	metrics *utils.MetricsCollector

	mu    sync.RWMutex
	users []*SimulatedUser
	posts []int // in creation order; earlier posts are more popular

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewSimulator(config SimConfig, logger *slog.Logger) *Simulator {
	if logger == nil {
		logger = utils.DiscardLogger()
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.TickInterval <= 0 {
		config.TickInterval = 500 * time.Millisecond
	}
	if config.ZipfS <= 1 {
		config.ZipfS = 1.07
	}
	return &Simulator{
		config:  config,
		stats:   &SimulationStats{StartTime: time.Now()},
		logger:  logger,
		metrics: utils.NewMetricsCollector(),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Metrics exposes the collector shared by every simulated client.
func (s *Simulator) Metrics() *utils.MetricsCollector {
	return s.metrics
}

// Run creates the users, then drives activity until SimulationTime elapses
// or ctx ends.
func (s *Simulator) Run(ctx context.Context) error {
	s.logger.Info("Starting simulation",
		"api_root", s.config.APIURL,
		"users", s.config.NumUsers,
		"duration", s.config.SimulationTime,
	)

	if err := s.initialize(ctx); err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, s.config.SimulationTime)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		s.simulateActivity(gctx, "post", s.config.PostFrequency, s.createPost)
		return nil
	})
	g.Go(func() error {
		s.simulateActivity(gctx, "comment", s.config.CommentFrequency, s.createComment)
		return nil
	})
	g.Go(func() error {
		s.simulateActivity(gctx, "vote", s.config.VoteFrequency, s.castVote)
		return nil
	})
	g.Go(func() error {
		s.simulateConnectivity(gctx)
		return nil
	})
	if s.config.MetricsInterval > 0 {
		g.Go(func() error {
			s.collectMetrics(gctx)
			return nil
		})
	}
	return g.Wait()
}

func (s *Simulator) initialize(ctx context.Context) error {
	s.logger.Info("Creating users", "count", s.config.NumUsers)
	if err := s.createInitialUsers(ctx); err != nil {
		return fmt.Errorf("failed to create initial users: %w", err)
	}
	if len(s.users) == 0 {
		return errors.New("no user could be created")
	}
	s.logger.Info("Initialization completed", "users", len(s.users))
	return nil
}

// createInitialUsers registers and logs in NumUsers users with a small worker
// pool, retrying each with exponential backoff.
func (s *Simulator) createInitialUsers(ctx context.Context) error {
	jobs := make(chan int)
	results := make(chan *SimulatedUser)

	limit := rate.Inf
	if s.config.RegisterRate > 0 {
		limit = rate.Limit(s.config.RegisterRate)
	}
	limiter := rate.NewLimiter(limit, 1)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < s.config.Workers; i++ {
		workerID := i
		g.Go(func() error {
			for range jobs {
				if err := limiter.Wait(gctx); err != nil {
					return err
				}
				user := s.newUser()
				var err error
				for retries := 0; retries < 3; retries++ {
					if err = s.registerUser(gctx, user); err == nil {
						break
					}
					backoff := time.Duration(math.Pow(2, float64(retries))) * 100 * time.Millisecond
					s.logger.Warn("Retrying user registration",
						"worker", workerID,
						"username", user.Username,
						"retry", retries+1,
						"backoff", backoff,
						"error", err,
					)
					select {
					case <-gctx.Done():
						return gctx.Err()
					case <-time.After(backoff):
					}
				}
				if err != nil {
					s.logger.Error("Failed to register user", "username", user.Username, "error", err)
					continue
				}
				select {
				case results <- user:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}

	go func() {
		defer close(jobs)
		for i := 0; i < s.config.NumUsers; i++ {
			select {
			case jobs <- i:
			case <-gctx.Done():
				return
			}
		}
	}()

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
		close(results)
	}()

	for user := range results {
		s.mu.Lock()
		s.users = append(s.users, user)
		created := len(s.users)
		s.mu.Unlock()
		if created%10 == 0 || created == s.config.NumUsers {
			s.logger.Info("Progress", "created", created, "total", s.config.NumUsers)
		}
	}
	return <-done
}

func (s *Simulator) newUser() *SimulatedUser {
	id := uuid.New()
	name := "sim_" + strings.ReplaceAll(id.String(), "-", "")[:12]

	slot := &tokenSlot{}
	gw := api.NewGateway(s.config.APIURL, slot,
		api.WithTimeout(s.config.RequestTimeout),
		api.WithLogger(s.logger),
		api.WithMetrics(s.metrics),
	)
	client := api.NewClient(gw)
	sess := session.New(client, nil, s.logger)
	guard := confirm.NewGuard(confirm.AutoApprove{}, s.logger)

	return &SimulatedUser{
		ID:         id,
		Username:   name,
		Email:      name + "@sim.katha.local",
		VotedPosts: make(map[int]bool),
		session:    sess,
		feed:       feed.New(client, sess, nil, guard, s.logger),
		votes:      vote.NewReconciler(client, sess, s.logger, s.metrics),
	}
}

func (s *Simulator) registerUser(ctx context.Context, user *SimulatedUser) error {
	start := time.Now()
	err := user.session.Register(ctx, user.Username, user.Email, s.config.Password)
	s.recordRequestMetrics(start, err)
	if err != nil && !utils.IsErrorCode(err, utils.ErrValidation) {
		return err
	}
	// A validation error on retry means the first attempt went through.

	start = time.Now()
	err = user.session.Login(ctx, user.Username, s.config.Password)
	s.recordRequestMetrics(start, err)
	if err != nil {
		return err
	}
	user.IsConnected = true
	user.LastActive = time.Now()
	return nil
}

func (s *Simulator) simulateConnectivity(ctx context.Context) {
	ticker := time.NewTicker(s.config.TickInterval * 10)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, user := range s.snapshotUsers() {
				if !user.busy.TryLock() {
					continue
				}
				switch {
				case user.IsConnected && s.chance(s.config.DisconnectRate):
					s.disconnect(user)
				case !user.IsConnected && s.chance(s.config.ReconnectRate):
					s.reconnect(ctx, user)
				}
				user.busy.Unlock()
			}
		}
	}
}

// disconnect logs user out. The caller holds user.busy.
func (s *Simulator) disconnect(user *SimulatedUser) {
	if err := user.session.Logout(); err != nil {
		s.logger.Warn("Logout failed", "username", user.Username, "error", err)
	}
	user.IsConnected = false
	s.logger.Debug("User disconnected", "username", user.Username)
}

// reconnect logs user back in. The caller holds user.busy.
func (s *Simulator) reconnect(ctx context.Context, user *SimulatedUser) {
	start := time.Now()
	err := user.session.Login(ctx, user.Username, s.config.Password)
	s.recordRequestMetrics(start, err)
	if err != nil {
		s.logger.Warn("Reconnect failed", "username", user.Username, "error", err)
		return
	}
	user.IsConnected = true
	user.LastActive = time.Now()

	s.stats.mu.Lock()
	s.stats.Reconnects++
	s.stats.mu.Unlock()
	s.logger.Debug("User reconnected", "username", user.Username)
}

func (s *Simulator) recordRequestMetrics(start time.Time, err error) {
	s.stats.mu.Lock()
	defer s.stats.mu.Unlock()

	latency := time.Since(start)
	s.stats.TotalRequests++
	if err != nil {
		s.stats.FailedRequests++
	} else {
		s.stats.SuccessRequests++
	}

	totalLatency := s.stats.AverageLatency * time.Duration(s.stats.TotalRequests-1)
	s.stats.AverageLatency = (totalLatency + latency) / time.Duration(s.stats.TotalRequests)
}

func (s *Simulator) collectMetrics(ctx context.Context) {
	ticker := time.NewTicker(s.config.MetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m := s.GetMetrics()
			s.logger.Info("Simulation metrics",
				"elapsed", time.Since(s.stats.StartTime).Round(time.Second),
				"req_per_sec", fmt.Sprintf("%.2f", m.RequestsPerSecond),
				"avg_latency", m.AverageLatency,
				"active_users", fmt.Sprintf("%d/%d", m.ActiveUsers, m.TotalUsers),
				"posts", m.TotalPosts,
				"comments", m.TotalComments,
				"votes", m.TotalVotes,
				"errors", m.ErrorCount,
			)
		}
	}
}

// SimulationMetrics is the summary printed at the end of a run.
type SimulationMetrics struct {
	TotalUsers        int
	ActiveUsers       int
	TotalPosts        int
	TotalComments     int
	TotalReplies      int
	TotalVotes        int
	VotesRolledBack   int
	Refreshes         int
	Reconnects        int
	TotalRequests     int64
	AverageLatency    time.Duration
	ErrorCount        int
	RequestsPerSecond float64
}

// GetMetrics returns the current simulation metrics
func (s *Simulator) GetMetrics() SimulationMetrics {
	users := s.snapshotUsers()
	active := 0
	for _, u := range users {
		if u.session.IsLoggedIn() {
			active++
		}
	}

	s.stats.mu.Lock()
	defer s.stats.mu.Unlock()
	s.stats.ActiveUsers = active

	elapsed := time.Since(s.stats.StartTime)
	return SimulationMetrics{
		TotalUsers:        len(users),
		ActiveUsers:       active,
		TotalPosts:        s.stats.TotalPosts,
		TotalComments:     s.stats.TotalComments,
		TotalReplies:      s.stats.TotalReplies,
		TotalVotes:        s.stats.TotalVotes,
		VotesRolledBack:   int(s.metrics.VoteCount("post", "rolled_back")),
		Refreshes:         int(s.metrics.RefreshCount("ok")),
		Reconnects:        s.stats.Reconnects,
		TotalRequests:     s.stats.TotalRequests,
		AverageLatency:    s.stats.AverageLatency,
		ErrorCount:        int(s.stats.FailedRequests),
		RequestsPerSecond: float64(s.stats.TotalRequests) / elapsed.Seconds(),
	}
}

func (s *Simulator) snapshotUsers() []*SimulatedUser {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*SimulatedUser(nil), s.users...)
}

func (s *Simulator) chance(p float64) bool {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.Float64() < p
}

func (s *Simulator) intn(n int) int {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.Intn(n)
}

// tokenSlot is a per-user in-memory token store; simulated users never
// outlive the process.
type tokenSlot struct {
	mu      sync.RWMutex
	access  string
	refresh string
}

func (t *tokenSlot) AccessToken() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.access
}

func (t *tokenSlot) RefreshToken() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.refresh
}

func (t *tokenSlot) SetTokens(access, refresh string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.access, t.refresh = access, refresh
	return nil
}

func (t *tokenSlot) SetAccessToken(access string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.access = access
	return nil
}

func (t *tokenSlot) ClearTokens() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.access, t.refresh = "", ""
	return nil
}
