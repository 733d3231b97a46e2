package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/database"
	"github.com/stemsi/exstem-assessment/internal/logger"
	"github.com/stemsi/exstem-assessment/internal/metrics"
	"github.com/stemsi/exstem-assessment/internal/model"
	"github.com/stemsi/exstem-assessment/internal/repository"
	"github.com/stemsi/exstem-assessment/internal/seed"
	"github.com/stemsi/exstem-assessment/internal/service"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cfg := config.Load()

	root := &cobra.Command{
		Use:          "examctl",
		Short:        "Operator tools for the assessment engine",
		SilenceUsage: true,
	}
	pf := root.PersistentFlags()
	pf.String("database-url", cfg.DatabaseURL, "PostgreSQL connection URL")
	pf.String("redis-url", cfg.RedisURL, "Redis connection URL")
	pf.String("log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	pf.String("log-format", "json", "Log format (json, pretty)")

	root.AddCommand(seedCmd(), rescoreCmd(), templatesCmd(), questionsCmd(), tokenCmd())
	return root
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the built-in question bank and exam templates",
		Args:  cobra.NoArgs,
		RunE:  runSeed,
	}
	f := cmd.Flags()
	f.Bool("questions-only", false, "Skip exam templates")
	f.Bool("dry-run", false, "Validate the seed data without writing it")
	return cmd
}

func rescoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rescore <session-id>",
		Short: "Recompute the result of an ended session",
		Args:  cobra.ExactArgs(1),
		RunE:  runRescore,
	}
	cmd.Flags().Bool("queue", false, "Hand the session to the scoring worker instead of scoring inline")
	return cmd
}

func templatesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "templates",
		Short: "List exam templates",
		Args:  cobra.NoArgs,
		RunE:  runTemplates,
	}
}

func questionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "questions",
		Short: "Inspect the question bank",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Count questions per dimension and difficulty",
		Args:  cobra.NoArgs,
		RunE:  runQuestionStats,
	})
	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a development token with the configured JWT secret",
		Args:  cobra.NoArgs,
		RunE:  runToken,
	}
	f := cmd.Flags()
	f.String("subject", "", "Candidate or admin id (required)")
	f.String("role", string(service.TokenRoleCandidate), "Token role (candidate, admin)")
	f.StringSlice("scope", nil, "Admin scope (repeatable)")
	f.Duration("ttl", 2*time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

// ─── Commands ──────────────────────────────────────────────────────────

func runSeed(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	log := cliLogger(v)

	questions, err := seed.Questions()
	if err != nil {
		return fmt.Errorf("load question bank: %w", err)
	}
	var templates []model.ExamTemplate
	if !v.GetBool("questions-only") {
		if templates, err = seed.Templates(); err != nil {
			return fmt.Errorf("load templates: %w", err)
		}
	}
	if v.GetBool("dry-run") {
		log.Info().Int("questions", len(questions)).Int("templates", len(templates)).Msg("Seed data is valid")
		return nil
	}

	ctx, stop := signalContext()
	defer stop()

	pool, err := connectPostgres(ctx, v, log)
	if err != nil {
		return err
	}
	defer pool.Close()

	inserted, err := repository.NewQuestionRepository(pool).Upsert(ctx, questions)
	if err != nil {
		return fmt.Errorf("seed questions: %w", err)
	}
	log.Info().Int64("inserted", inserted).Int("total", len(questions)).Msg("Seeded questions")

	templateRepo := repository.NewExamTemplateRepository(pool)
	for i := range templates {
		if err := templateRepo.Upsert(ctx, &templates[i]); err != nil {
			return fmt.Errorf("seed template %q: %w", templates[i].Name, err)
		}
	}
	if len(templates) > 0 {
		log.Info().Int("templates", len(templates)).Msg("Seeded exam templates")
	}
	return nil
}

func runRescore(cmd *cobra.Command, args []string) error {
	v := viperForCmd(cmd)
	log := cliLogger(v)

	sessionID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid session id %q: %w", args[0], err)
	}

	ctx, stop := signalContext()
	defer stop()

	rdb, err := connectRedis(ctx, v, log)
	if err != nil {
		return err
	}
	defer rdb.Close()
	cache := repository.NewExamCache(rdb)

	if v.GetBool("queue") {
		if err := cache.EnqueueRescore(ctx, sessionID); err != nil {
			return fmt.Errorf("enqueue rescore: %w", err)
		}
		log.Info().Str("session_id", sessionID.String()).Msg("Rescore queued")
		return nil
	}

	pool, err := connectPostgres(ctx, v, log)
	if err != nil {
		return err
	}
	defer pool.Close()

	scoring := service.NewScoringService(
		repository.NewStores(pool),
		cache,
		config.LoadExamConfig(),
		metrics.New(prometheus.NewRegistry()),
		log,
	)
	result, err := scoring.Score(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("score session %s: %w", sessionID, err)
	}
	return printJSON(cmd.OutOrStdout(), result)
}

func runTemplates(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	log := cliLogger(v)

	ctx, stop := signalContext()
	defer stop()

	pool, err := connectPostgres(ctx, v, log)
	if err != nil {
		return err
	}
	defer pool.Close()

	templates, err := repository.NewExamTemplateRepository(pool).List(ctx)
	if err != nil {
		return fmt.Errorf("list templates: %w", err)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tROLE\tLANGUAGE\tFRAMEWORK\tMINUTES\tQUESTIONS\tACTIVE")
	for _, t := range templates {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%t\n",
			t.ID, t.Name, t.Role, orDash(t.Language), orDash(t.Framework),
			t.DurationMinutes, t.QuestionCount, t.IsActive)
	}
	return tw.Flush()
}

func runQuestionStats(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	log := cliLogger(v)

	ctx, stop := signalContext()
	defer stop()

	pool, err := connectPostgres(ctx, v, log)
	if err != nil {
		return err
	}
	defer pool.Close()

	counts, err := repository.NewQuestionRepository(pool).CountByDimension(ctx)
	if err != nil {
		return fmt.Errorf("count questions: %w", err)
	}
	return writeStats(cmd.OutOrStdout(), counts)
}

func runToken(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)

	role := service.TokenRole(v.GetString("role"))
	if !slices.Contains([]service.TokenRole{service.TokenRoleCandidate, service.TokenRoleAdmin}, role) {
		return fmt.Errorf("unknown role %q", role)
	}
	scopes := v.GetStringSlice("scope")
	if role == service.TokenRoleCandidate && len(scopes) > 0 {
		return errors.New("candidate tokens carry no scopes")
	}

	token, err := service.NewAuthService(config.Load()).IssueToken(v.GetString("subject"), role, scopes, v.GetDuration("ttl"))
	if err != nil {
		return fmt.Errorf("sign token: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
	return err
}

// ─── Helpers ───────────────────────────────────────────────────────────

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())
	_ = v.BindPFlags(cmd.InheritedFlags())

	v.SetEnvPrefix("EXAMCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("examctl")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/examctl")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "examctl: error reading config file: %v\n", err)
		}
	}
	return v
}

func cliLogger(v *viper.Viper) zerolog.Logger {
	return logger.New(os.Stderr, v.GetString("log-level"), v.GetString("log-format")).
		With().Str("service", "examctl").Logger()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func connectPostgres(ctx context.Context, v *viper.Viper, log zerolog.Logger) (*pgxpool.Pool, error) {
	cfg := config.Load()
	cfg.DatabaseURL = v.GetString("database-url")
	cfg.MaxDBConns = 4
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

func connectRedis(ctx context.Context, v *viper.Viper, log zerolog.Logger) (*redis.Client, error) {
	cfg := config.Load()
	cfg.RedisURL = v.GetString("redis-url")
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return rdb, nil
}

func writeStats(w io.Writer, counts map[model.Dimension]map[model.Difficulty]int) error {
	levels := []model.Difficulty{model.DifficultyEasy, model.DifficultyMedium, model.DifficultyHard}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DIMENSION\tEASY\tMEDIUM\tHARD\tTOTAL")
	for _, d := range model.AllDimensions {
		total := 0
		row := []string{string(d)}
		for _, l := range levels {
			n := counts[d][l]
			total += n
			row = append(row, fmt.Sprint(n))
		}
		row = append(row, fmt.Sprint(total))
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}
