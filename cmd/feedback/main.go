package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/pavelanni/feedback/internal/feedback"
	"github.com/pavelanni/feedback/internal/handler"
	appI18n "github.com/pavelanni/feedback/internal/i18n"
	"github.com/pavelanni/feedback/internal/llm"
	"github.com/pavelanni/feedback/internal/metrics"
	"github.com/pavelanni/feedback/internal/model"
	"github.com/pavelanni/feedback/internal/report"
	"github.com/pavelanni/feedback/internal/store"
	"github.com/pavelanni/feedback/internal/validate"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "feedback",
		Short: "Anonymous student feedback collection and reporting",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadEnvFile(cmd)
		},
		SilenceUsage: true,
	}
	pf := root.PersistentFlags()
	pf.String("env-file", ".env", "Load environment variables from this file if it exists")
	pf.String("log-level", "info", "Log level (debug, info, warn, error)")
	pf.String("log-format", "text", "Log format (text, json)")
	pf.String("log-file", "", "Also write logs to this file, rotated by size")

	serve := serveCmd()
	root.AddCommand(serve, exportCmd(), userAddCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `feedback --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP feedback server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "feedback.db", "SQLite database path")
	f.StringP("lang", "l", "en", "Default language for messages (en, ru)")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /feedback)")
	f.Bool("secure-cookies", true, "Set Secure flag on cookies")
	f.String("admin-password", "", "Initial admin password (or set FEEDBACK_ADMIN_PASSWORD)")
	f.StringSliceP("questions", "q", nil, "Paths to questions JSON files to import (repeatable)")
	f.StringSlice("rating-scale", nil, "Answer ratings as label=value pairs (default excellent=5,good=4,average=3,poor=2,very poor=1)")
	f.Float64("submit-rate", 0.5, "Sustained submissions and logins per second allowed per client IP")
	f.Int("submit-burst", 5, "Burst of submissions and logins allowed per client IP")
	f.String("llm-url", "", "OpenAI-compatible API base URL for comment digests (empty disables digests)")
	f.String("llm-key", "", "API key for the LLM endpoint")
	f.String("llm-model", "llama3.2", "LLM model name")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export feedback reports as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "feedback.db", "SQLite database path")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.Int64("department-id", 0, "Only export this department")
	f.Int64("teacher-id", 0, "Only export this teacher")
	f.Int64("course-id", 0, "Only export this course")
	f.Int64("batch-id", 0, "Only export this batch")
	f.StringSlice("rating-scale", nil, "Answer ratings as label=value pairs")
	return cmd
}

func userAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "useradd",
		Short: "Create a login",
		RunE:  runUserAdd,
	}
	f := cmd.Flags()
	f.String("db", "feedback.db", "SQLite database path")
	f.StringP("username", "u", "", "Login name (required)")
	f.String("display-name", "", "Display name (defaults to the username)")
	f.StringP("password", "p", "", "Password (or set FEEDBACK_PASSWORD)")
	f.StringP("role", "r", string(model.UserRoleTeacher), "Role (admin, department_head, teacher)")
	f.Int64("teacher-id", 0, "Teacher record the login reports for")

	_ = cmd.MarkFlagRequired("username")

	return cmd
}

// loadEnvFile reads --env-file into the process environment so viper sees it.
// Variables that are already set win.
func loadEnvFile(cmd *cobra.Command) error {
	path, _ := cmd.Flags().GetString("env-file")
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	var out io.Writer = os.Stderr
	if path := v.GetString("log-file"); path != "" {
		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   path,
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
		})
	}

	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(out, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(out, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("FEEDBACK")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("feedback")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/feedback")
	v.AddConfigPath("/etc/feedback")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func ratingScale(v *viper.Viper) (report.Scale, error) {
	pairs := v.GetStringSlice("rating-scale")
	if len(pairs) == 0 {
		return report.DefaultScale, nil
	}
	return report.ParseScale(pairs)
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Seed default admin user if no users exist.
	if err := seedAdmin(ctx, db, v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	if err := loadQuestions(ctx, db, v.GetStringSlice("questions")); err != nil {
		return fmt.Errorf("load questions: %w", err)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	scale, err := ratingScale(v)
	if err != nil {
		return fmt.Errorf("rating scale: %w", err)
	}

	// A nil summarizer disables comment digests.
	var summarizer report.Summarizer
	if url := v.GetString("llm-url"); url != "" {
		summarizer = llm.New(url, v.GetString("llm-key"), v.GetString("llm-model"))
		slog.Info("comment digests enabled", "url", url, "model", v.GetString("llm-model"))
	}

	// Normalize base path.
	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	h := handler.New(db, feedback.NewService(db), report.NewService(db, scale, summarizer), handler.Config{
		BasePath:      basePath,
		SecureCookies: v.GetBool("secure-cookies"),
		SubmitRate:    rate.Limit(v.GetFloat64("submit-rate")),
		SubmitBurst:   v.GetInt("submit-burst"),
	})

	metrics.Init()

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(appI18n.Middleware(lang))

	if basePath != "" {
		r.Route(basePath, func(sub chi.Router) {
			sub.Use(h.BasePathMiddleware)
			h.Routes(sub)
		})
		r.Get(basePath, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, basePath+"/", http.StatusMovedPermanently)
		})
	} else {
		r.Use(h.BasePathMiddleware)
		h.Routes(r)
	}

	go cleanupSessions(ctx, db, time.Hour)

	addr := v.GetString("addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server",
			"addr", addr,
			"lang", lang,
			"base_path", basePath,
			"digests", summarizer != nil,
			"submit_rate", v.GetFloat64("submit-rate"),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// cleanupSessions purges expired logins and stale visitor state until ctx ends.
func cleanupSessions(ctx context.Context, db *store.Store, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		if err := db.CleanupExpiredSessions(ctx); err != nil && ctx.Err() == nil {
			slog.Warn("session cleanup failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	scale, err := ratingScale(v)
	if err != nil {
		return fmt.Errorf("rating scale: %w", err)
	}

	f := model.ReportFilter{
		DepartmentID: optionalID(v.GetInt64("department-id")),
		TeacherID:    optionalID(v.GetInt64("teacher-id")),
		CourseID:     optionalID(v.GetInt64("course-id")),
		BatchID:      optionalID(v.GetInt64("batch-id")),
	}
	export, err := report.NewService(db, scale, nil).Export(cmd.Context(), f)
	if err != nil {
		return fmt.Errorf("export reports: %w", err)
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = cmd.OutOrStdout()
	} else {
		out, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer out.Close()
		w = out
	}

	_, err = w.Write(data)
	if err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	slog.Info("exported reports", "submissions", export.Submissions.TotalSubmissions, "assignments", len(export.Assignments))
	return nil
}

func optionalID(id int64) *int64 {
	if id <= 0 {
		return nil
	}
	return &id
}

func runUserAdd(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	u := model.User{
		Username:    v.GetString("username"),
		DisplayName: v.GetString("display-name"),
		Role:        model.UserRole(v.GetString("role")),
		TeacherID:   optionalID(v.GetInt64("teacher-id")),
		Active:      true,
	}
	id, err := addUser(cmd.Context(), db, u, v.GetString("password"))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created user %s (id %d)\n", u.Username, id)
	return nil
}

func addUser(ctx context.Context, db *store.Store, u model.User, password string) (int64, error) {
	if password == "" {
		return 0, fmt.Errorf("password is required: set --password flag or FEEDBACK_PASSWORD env var")
	}
	if !u.Role.Valid() {
		return 0, fmt.Errorf("invalid role %q", u.Role)
	}
	if u.DisplayName == "" {
		u.DisplayName = u.Username
	}
	if u.TeacherID != nil {
		if _, err := db.GetTeacher(ctx, *u.TeacherID); err != nil {
			return 0, fmt.Errorf("teacher %d: %w", *u.TeacherID, err)
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}
	u.PasswordHash = string(hash)

	id, err := db.CreateUser(ctx, u)
	if err != nil {
		return 0, fmt.Errorf("create user %s: %w", u.Username, err)
	}
	return id, nil
}

// loadQuestions imports each questions file once. A file that changed since
// its import is skipped, since re-importing would duplicate its questions.
func loadQuestions(ctx context.Context, db *store.Store, paths []string) error {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		hash := sha256sum(data)
		storedHash, err := db.GetImportedFileHash(ctx, path)
		if err != nil {
			return fmt.Errorf("check import status for %s: %w", path, err)
		}

		if storedHash == hash {
			slog.Info("questions file unchanged, skipping", "path", path)
			continue
		}
		if storedHash != "" {
			slog.Warn("questions file changed since last import, skipping to avoid duplicate questions",
				"path", path)
			continue
		}

		var imports []model.QuestionImport
		if err := json.Unmarshal(data, &imports); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		if err := validate.Questions(imports); err != nil {
			return fmt.Errorf("validate %s: %w", path, err)
		}

		qs := make([]model.Question, 0, len(imports))
		for _, qi := range imports {
			qs = append(qs, qi.Question())
		}
		if err := db.ImportQuestions(ctx, path, hash, qs); err != nil {
			return err
		}
		slog.Info("imported questions", "path", path, "count", len(qs))
	}

	return nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func seedAdmin(ctx context.Context, db *store.Store, password string) error {
	count, err := db.UserCount(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if password == "" {
		return fmt.Errorf("admin password is required: set --admin-password flag or FEEDBACK_ADMIN_PASSWORD env var")
	}

	_, err = addUser(ctx, db, model.User{
		Username:    "admin",
		DisplayName: "Administrator",
		Role:        model.UserRoleAdmin,
		Active:      true,
	}, password)
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	slog.Info("seeded default admin user", "username", "admin")
	return nil
}
