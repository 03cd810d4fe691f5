package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/healthassist/internal/config"
	"github.com/ehr/healthassist/internal/domain/assessment"
	"github.com/ehr/healthassist/internal/platform/assessmentapi"
	"github.com/ehr/healthassist/internal/platform/auth"
	"github.com/ehr/healthassist/internal/platform/db"
	"github.com/ehr/healthassist/internal/platform/middleware"
	"github.com/ehr/healthassist/internal/platform/sandbox"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "healthassist",
		Short:         "AI health assessment chat client and sandbox server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(sandboxCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	logger := zerolog.New(out).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out}).With().Timestamp().Logger()
	}
	return logger
}

// tokenSource picks the bearer credential: a configured token wins, a
// signing key mints development tokens, and neither means no header.
func tokenSource(cfg *config.Config) (auth.TokenSource, error) {
	switch {
	case cfg.AuthToken != "":
		return auth.StaticToken(cfg.AuthToken), nil
	case cfg.AuthSigningKey != "":
		return auth.NewDevTokenSource([]byte(cfg.AuthSigningKey), cfg.AuthSubject, cfg.AuthIssuer)
	}
	return nil, nil
}

func newClient(cfg *config.Config, logger zerolog.Logger) (*assessmentapi.Client, error) {
	opts := []assessmentapi.Option{
		assessmentapi.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
		assessmentapi.WithLogger(logger),
	}
	ts, err := tokenSource(cfg)
	if err != nil {
		return nil, err
	}
	if ts != nil {
		opts = append(opts, assessmentapi.WithTokenSource(ts))
	}
	return assessmentapi.New(cfg.APIURL, opts...)
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start or resume an interactive assessment",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg, cmd.ErrOrStderr())
			client, err := newClient(cfg, logger)
			if err != nil {
				return err
			}
			o := assessment.NewOrchestrator(client, assessment.NewTracker(logger), assessment.NewMessageLog(), logger)
			hb := assessment.NewHistoryBrowser(client, logger)
			s := &chatSession{
				orch:         o,
				history:      hb,
				historyLimit: cfg.HistoryLimit,
				out:          cmd.OutOrStdout(),
			}
			return s.run(cmd.Context(), cmd.InOrStdin())
		},
	}
}

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Browse past assessments",
	}

	var (
		limit        int
		conversation bool
	)
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent sessions, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg, cmd.ErrOrStderr())
			client, err := newClient(cfg, logger)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("limit") {
				limit = cfg.HistoryLimit
			}
			items, err := assessment.NewHistoryBrowser(client, logger).List(cmd.Context(),
				assessment.ListOptions{Limit: limit, IncludeConversation: conversation})
			if err != nil {
				return err
			}
			renderHistory(cmd.OutOrStdout(), items)
			return nil
		},
	}
	listCmd.Flags().IntVar(&limit, "limit", 0, "maximum number of sessions (default HISTORY_LIMIT)")
	listCmd.Flags().BoolVar(&conversation, "conversation", false, "include question and answer pairs")

	showCmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show one past session with its conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg, cmd.ErrOrStderr())
			client, err := newClient(cfg, logger)
			if err != nil {
				return err
			}
			s, err := assessment.NewHistoryBrowser(client, logger).FetchOne(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			renderSummary(cmd.OutOrStdout(), *s, true)
			return nil
		},
	}

	cmd.AddCommand(listCmd, showCmd)
	return cmd
}

func sandboxCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sandbox",
		Short: "Run the scripted assessment service locally",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runSandbox(cfg, newLogger(cfg, os.Stdout))
		},
	}
}

func runSandbox(cfg *config.Config, logger zerolog.Logger) error {
	knowledge, err := sandbox.DefaultKnowledge()
	if err != nil {
		return err
	}
	scfg := sandbox.ServerConfig{
		Logger:     logger,
		Engine:     sandbox.NewEngine(knowledge, cfg.SandboxMaxQuestions),
		SigningKey: []byte(cfg.AuthSigningKey),
		Issuer:     cfg.AuthIssuer,
		BodyLimit:  cfg.SandboxBodyLimit,
		RateLimit: middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimitRPS,
			BurstSize:         cfg.RateLimitBurst,
		},
	}

	if cfg.UsesMemoryStore() {
		scfg.Repo = sandbox.NewMemoryRepo()
		logger.Info().Msg("using in-memory session store")
	} else {
		ctx := context.Background()
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return err
		}
		defer pool.Close()
		n, err := sandbox.Migrate(ctx, pool)
		if err != nil {
			return err
		}
		logger.Info().Int("applied", n).Msg("connected to database")
		scfg.Repo = sandbox.NewSessionRepoPG(pool)
		scfg.Pool = pool
	}
	if len(scfg.SigningKey) == 0 {
		logger.Warn().Str("subject", auth.DevSubject).Msg("no AUTH_SIGNING_KEY set, requests are not authenticated")
	}

	e := sandbox.NewServer(scfg)

	// Graceful shutdown
	errc := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting sandbox server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errc:
		return fmt.Errorf("server error: %w", err)
	case <-quit:
	}

	logger.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

func tokenCmd() *cobra.Command {
	var subject string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a development bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if strings.TrimSpace(subject) == "" {
				subject = cfg.AuthSubject
			}
			src, err := auth.NewDevTokenSource([]byte(cfg.AuthSigningKey), subject, cfg.AuthIssuer)
			if err != nil {
				return fmt.Errorf("%w (set AUTH_SIGNING_KEY)", err)
			}
			tok, err := src.Token(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "token subject (default AUTH_SUBJECT)")
	return cmd
}
