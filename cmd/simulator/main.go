package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"katha/internal/config"
	"katha/internal/devserver"
	"katha/internal/utils"
	"katha/simulator"
)

var (
	simConfig = simulator.DefaultSimConfig()
	apiURL    string
	local     bool
)

var rootCmd = &cobra.Command{
	Use:   "katha-sim",
	Short: "Drive simulated users against a Katha API.",
	Long: `katha-sim registers a set of users, then has them post, comment, reply and
vote for a fixed duration through the same client library the terminal client
uses. Post popularity follows a Zipf distribution. With --local it starts an
in-process dev server and targets that.`,
	SilenceUsage: true,
	RunE:         runSimulation,
}

func init() {
	f := rootCmd.Flags()
	f.IntVar(&simConfig.NumUsers, "users", simConfig.NumUsers, "Number of simulated users")
	f.DurationVar(&simConfig.SimulationTime, "duration", simConfig.SimulationTime, "How long to run after users are created")
	f.Float64Var(&simConfig.PostFrequency, "post-rate", simConfig.PostFrequency, "Posts per user per hour")
	f.Float64Var(&simConfig.CommentFrequency, "comment-rate", simConfig.CommentFrequency, "Comments per user per hour")
	f.Float64Var(&simConfig.VoteFrequency, "vote-rate", simConfig.VoteFrequency, "Votes per user per hour")
	f.Float64Var(&simConfig.ReplyPercentage, "reply-ratio", simConfig.ReplyPercentage, "Share of comments that are replies")
	f.Float64Var(&simConfig.DisconnectRate, "disconnect-rate", simConfig.DisconnectRate, "Chance per connectivity tick that a user logs out")
	f.Float64Var(&simConfig.ReconnectRate, "reconnect-rate", simConfig.ReconnectRate, "Chance per connectivity tick that a user logs back in")
	f.Float64Var(&simConfig.ZipfS, "zipf", simConfig.ZipfS, "Zipf skew of post popularity (> 1)")
	f.IntVar(&simConfig.Workers, "workers", simConfig.Workers, "Workers per activity")
	f.Float64Var(&simConfig.RegisterRate, "register-rate", simConfig.RegisterRate, "Registrations per second while creating users (0 for no limit)")
	f.DurationVar(&simConfig.TickInterval, "tick", simConfig.TickInterval, "Activity tick")
	f.DurationVar(&simConfig.MetricsInterval, "metrics-every", simConfig.MetricsInterval, "How often to log progress (0 disables)")
	f.StringVar(&apiURL, "api-url", "", "API root (default from KATHA_API_URL)")
	f.BoolVar(&local, "local", false, "Start an in-process dev server and simulate against it")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func runSimulation(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger := utils.NewLogger(cfg.Env, cfg.LogLevel, os.Stderr)

	simConfig.APIURL = cfg.Client.APIBaseURL
	simConfig.RequestTimeout = cfg.Client.RequestTimeout
	if apiURL != "" {
		if simConfig.APIURL, err = config.NormalizeBaseURL(apiURL); err != nil {
			return fmt.Errorf("--api-url: %w", err)
		}
	}

	if local {
		root, shutdown, err := startLocalServer(cfg.Server, logger)
		if err != nil {
			return err
		}
		defer shutdown()
		simConfig.APIURL = root
	}

	logger.Info("Starting simulation with configuration",
		"api_root", simConfig.APIURL,
		"users", simConfig.NumUsers,
		"duration", simConfig.SimulationTime,
		"post_rate", simConfig.PostFrequency,
		"comment_rate", simConfig.CommentFrequency,
		"vote_rate", simConfig.VoteFrequency,
		"reply_ratio", simConfig.ReplyPercentage,
		"disconnect_rate", simConfig.DisconnectRate,
		"reconnect_rate", simConfig.ReconnectRate,
		"zipf", simConfig.ZipfS,
	)

	sim := simulator.NewSimulator(simConfig, logger)
	if err := sim.Run(cmd.Context()); err != nil {
		logger.Error("Simulation failed", "error", err)
		return err
	}

	m := sim.GetMetrics()
	logger.Info("Simulation completed",
		"users", m.TotalUsers,
		"active_users", m.ActiveUsers,
		"posts", m.TotalPosts,
		"comments", m.TotalComments,
		"replies", m.TotalReplies,
		"votes", m.TotalVotes,
		"votes_rolled_back", m.VotesRolledBack,
		"token_refreshes", m.Refreshes,
		"reconnects", m.Reconnects,
		"requests", m.TotalRequests,
		"req_per_sec", fmt.Sprintf("%.2f", m.RequestsPerSecond),
		"avg_latency", m.AverageLatency,
		"errors", m.ErrorCount,
	)
	return nil
}

// startLocalServer serves a dev server on a free loopback port and returns
// its API root.
func startLocalServer(cfg *config.ServerConfig, logger *slog.Logger) (string, func(), error) {
	server := devserver.NewServer(cfg, logger.With("component", "devserver"), nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		server.Close()
		return "", nil, fmt.Errorf("listen: %w", err)
	}

	httpServer := &http.Server{Handler: server.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Dev server failed", "error", err)
		}
	}()

	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctx)
		server.Close()
	}
	return fmt.Sprintf("http://%s/api/v1/", ln.Addr()), shutdown, nil
}
