package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/viva-learn/viva/internal/certify"
	"github.com/viva-learn/viva/internal/evaluate"
	"github.com/viva-learn/viva/internal/handler"
	"github.com/viva-learn/viva/internal/model"
	"github.com/viva-learn/viva/internal/pipeline"
	"github.com/viva-learn/viva/internal/progress"
	"github.com/viva-learn/viva/internal/room"
	"github.com/viva-learn/viva/internal/session"
	"github.com/viva-learn/viva/internal/store"
	"github.com/viva-learn/viva/internal/transcript"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "viva",
		Short: "Conversational assessment sessions with AI evaluation",
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the assessment session server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db-driver", "sqlite", "Database driver (sqlite, postgres)")
	f.String("db", "viva.db", "Database DSN (sqlite path or postgres URL)")
	f.String("room-url", "", "Video-session provider base URL (required)")
	f.String("room-key", "", "Video-session provider API key")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible scoring oracle base URL")
	f.String("llm-key", "ollama", "API key for the scoring oracle")
	f.String("llm-model", "llama3.2", "Oracle model name")
	f.String("ledger-url", "", "Certificate ledger base URL (empty disables anchoring)")
	f.String("ledger-key", "", "Certificate ledger API key")
	f.Duration("join-timeout", session.DefaultJoinTimeout, "Deadline for the connection join attempt")
	f.Duration("poll-interval", time.Second, "Transcript poll interval")
	f.Int("poll-attempts", 30, "Transcript poll attempt limit")
	f.Int("eval-retries", 2, "Evaluation provider-error retry limit")
	f.Duration("eval-backoff", 2*time.Second, "Initial evaluation retry backoff")
	f.StringSlice("cors-origins", []string{"http://localhost:3000"}, "Allowed CORS origins")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export issued certificates as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db-driver", "sqlite", "Database driver (sqlite, postgres)")
	f.String("db", "viva.db", "Database DSN (sqlite path or postgres URL)")
	f.String("student", "", "Filter by student id")
	f.String("course", "", "Filter by course id")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
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
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("VIVA")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("viva")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/viva")
	v.AddConfigPath("/etc/viva")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if v.GetString("room-url") == "" {
		return fmt.Errorf("video-session provider URL is required: set --room-url or VIVA_ROOM_URL")
	}

	db, err := store.Open(ctx, store.Driver(v.GetString("db-driver")), v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	roomClient := room.NewClient(room.Config{
		BaseURL: v.GetString("room-url"),
		APIKey:  v.GetString("room-key"),
	})

	oracle := evaluate.New(
		v.GetString("llm-url"),
		v.GetString("llm-key"),
		v.GetString("llm-model"),
	)
	if err := oracle.Ping(ctx); err != nil {
		return fmt.Errorf("oracle health check: %w", err)
	}
	slog.Info("oracle endpoint OK", "url", v.GetString("llm-url"), "model", v.GetString("llm-model"))

	var ledger certify.Ledger
	if u := v.GetString("ledger-url"); u != "" {
		ledger = certify.NewHTTPLedger(u, v.GetString("ledger-key"))
	}

	tracker := progress.NewTracker(db)
	pipe := pipeline.New(pipeline.Config{
		Fetcher:     transcript.NewFetcher(roomClient, v.GetDuration("poll-interval"), v.GetInt("poll-attempts")),
		Oracle:      oracle,
		Issuer:      certify.NewIssuer(db, ledger),
		Tracker:     tracker,
		EvalRetries: v.GetInt("eval-retries"),
		EvalBackoff: v.GetDuration("eval-backoff"),
	})
	initiator := session.NewInitiator(roomClient, db)

	h := handler.New(db, initiator, pipe, tracker, roomClient, v.GetDuration("join-timeout"))

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   v.GetStringSlice("cors-origins"),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	h.Routes(r)

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"db_driver", v.GetString("db-driver"),
		"room_url", v.GetString("room-url"),
		"llm_url", v.GetString("llm-url"),
		"model", v.GetString("llm-model"),
		"join_timeout", v.GetDuration("join-timeout"),
		"poll_attempts", v.GetInt("poll-attempts"),
		"ledger_enabled", ledger != nil,
	)
	return http.ListenAndServe(addr, r)
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	db, err := store.Open(ctx, store.Driver(v.GetString("db-driver")), v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	certs, err := db.ListCertificates(ctx, v.GetString("student"), v.GetString("course"))
	if err != nil {
		return fmt.Errorf("list certificates: %w", err)
	}

	export := model.CertificateExport{
		ExportedAt:   time.Now().UTC(),
		Count:        len(certs),
		Certificates: certs,
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	_, _ = fmt.Fprintln(w)

	return nil
}
