package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tamkeen-edu/tamkeen/internal/cache"
	"github.com/tamkeen-edu/tamkeen/internal/convert"
	"github.com/tamkeen-edu/tamkeen/internal/convert/braille"
	"github.com/tamkeen-edu/tamkeen/internal/convert/signvideo"
	"github.com/tamkeen-edu/tamkeen/internal/convert/speech"
	"github.com/tamkeen-edu/tamkeen/internal/handler"
	appI18n "github.com/tamkeen-edu/tamkeen/internal/i18n"
	"github.com/tamkeen-edu/tamkeen/internal/llm"
	"github.com/tamkeen-edu/tamkeen/internal/llm/prompts"
	"github.com/tamkeen-edu/tamkeen/internal/metrics"
	"github.com/tamkeen-edu/tamkeen/internal/model"
	"github.com/tamkeen-edu/tamkeen/internal/quiz"
	"github.com/tamkeen-edu/tamkeen/internal/store"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "tamkeen.db", "SQLite database path")
	f.StringP("lang", "l", appI18n.DefaultLang, "Default UI language (ar, en)")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /tamkeen)")
	f.Bool("secure-cookies", true, "Set Secure flag on surface cookies")
	f.String("cookie-secret", "", "Key for signing surface cookies (random per start if empty)")
	f.StringSlice("allowed-origins", nil, "Origins allowed for CORS and websockets (empty allows all websocket origins, no CORS)")
	f.String("admin-password", "", "Admin password, created or reset at start (or set TAMKEEN_ADMIN_PASSWORD)")

	f.String("tts-bin", "espeak-ng", "Speech synthesizer binary (empty disables speech)")
	f.String("sign-base-url", signvideo.DefaultBaseURL, "Base URL for sign clip refs when no bucket is configured")
	f.Int("sign-max-words", convert.DefaultMaxSignWords, "Maximum words considered per sign conversion")
	f.Duration("sign-latency", convert.DefaultSignLatency, "Simulated latency for sign conversions without a renderer")
	f.Bool("sign-render", false, "Concatenate sign clips into one video with ffmpeg (needs --s3-endpoint)")
	f.String("ffmpeg-bin", "", "ffmpeg binary (default: ffmpeg on PATH)")
	f.Duration("external-timeout", convert.DefaultExternalTimeout, "Timeout for each external conversion call")

	f.String("s3-endpoint", "", "S3-compatible endpoint for sign clips and rendered videos")
	f.String("s3-access-key", "", "S3 access key")
	f.String("s3-secret-key", "", "S3 secret key")
	f.String("s3-bucket", "tamkeen", "S3 bucket name")
	f.Bool("s3-secure", true, "Use TLS for the S3 endpoint")
	f.Duration("s3-url-expiry", convert.DefaultURLExpiry, "Lifetime of presigned rendered-video URLs")
	f.String("redis-url", "", "Redis URL for the rendered video cache (in-memory if empty)")

	f.Int("quiz-max-keywords", quiz.DefaultOptions().MaxKeywords, "Keyword pool cap for quiz generation")
	f.Duration("quiz-delay", 0, "Artificial delay before a quiz is returned")
	f.Bool("quiz-shuffle", false, "Shuffle answer options instead of keeping the correct one first")
	f.Duration("session-ttl", 2*time.Hour, "Drop quiz sessions idle for this long")

	f.String("llm-url", "", "OpenAI-compatible API base URL (empty disables the assistant)")
	f.String("llm-key", "", "API key for LLM")
	f.String("llm-model", "gpt-4o-mini", "LLM model name")
	f.String("prompts-dir", "", "Directory with templates/chat.txt and templates/analyze.txt overrides")
	f.Bool("llm-check", false, "List models at startup and fail if the endpoint is unreachable")
	f.Int("llm-rate", 10, "LLM requests allowed per client per minute")

	addLogFlags(cmd)
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := seedAdmin(db, v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	m := metrics.New()
	checks := map[string]handler.Pinger{}

	signs, err := loadSignTable(db)
	if err != nil {
		return fmt.Errorf("load sign table: %w", err)
	}
	lib := &signvideo.Library{Table: signs}
	convCfg := convert.Config{
		Braille:         braille.Table{},
		Assets:          lib,
		Observer:        m,
		Journal:         db,
		MaxSignWords:    v.GetInt("sign-max-words"),
		SignLatency:     v.GetDuration("sign-latency"),
		ExternalTimeout: v.GetDuration("external-timeout"),
	}

	if eng := speech.NewCommand(v.GetString("tts-bin")); eng.Available() {
		convCfg.Speech = eng
		slog.Info("speech enabled", "bin", eng.Path)
	} else {
		convCfg.Speech = speech.Unavailable{}
		slog.Warn("speech synthesizer not found, visual profile disabled", "bin", v.GetString("tts-bin"))
	}

	if err := wireSignStorage(ctx, v, lib, &convCfg); err != nil {
		return err
	}

	if url := v.GetString("redis-url"); url != "" {
		rc, err := cache.NewRedis(ctx, url)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rc.Close()
		convCfg.Cache = rc
		checks["redis"] = rc
	} else {
		convCfg.Cache = cache.NewMemory()
	}

	dispatcher := convert.New(convCfg)

	synth := quiz.NewSynthesizer(quiz.Options{
		MaxKeywords:    v.GetInt("quiz-max-keywords"),
		GenerateDelay:  v.GetDuration("quiz-delay"),
		ShuffleOptions: v.GetBool("quiz-shuffle"),
	})
	quizzes := quiz.NewRegistry(synth, v.GetDuration("session-ttl"))
	defer quizzes.Close()

	assistant, err := newAssistant(ctx, v)
	if err != nil {
		return err
	}

	// Normalize base path.
	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	origins := v.GetStringSlice("allowed-origins")
	cfg := model.ServerConfig{
		BasePath:       basePath,
		SecureCookies:  v.GetBool("secure-cookies"),
		CookieSecret:   v.GetString("cookie-secret"),
		LLMRatePerMin:  v.GetInt("llm-rate"),
		AllowedOrigins: origins,
	}
	deps := handler.Deps{
		Dispatcher: dispatcher,
		Quizzes:    quizzes,
		Store:      db,
		Signs:      signs,
		Metrics:    m,
		Checks:     checks,
	}
	if assistant != nil {
		deps.Assistant = assistant
	}
	h := handler.New(cfg, deps)
	defer h.Close()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if len(origins) > 0 {
		r.Use(cors.New(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowedHeaders:   []string{"Content-Type", "Authorization", "Accept-Language", "X-Surface-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}).Handler)
	}
	r.Use(m.Middleware)
	r.Use(appI18n.Middleware(lang))

	if basePath != "" {
		r.Route(basePath, h.Routes)
		r.Get(basePath, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, basePath+"/", http.StatusMovedPermanently)
		})
	} else {
		h.Routes(r)
	}

	srv := &http.Server{
		Addr:              v.GetString("addr"),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("starting server",
		"addr", srv.Addr,
		"lang", lang,
		"base_path", basePath,
		"sign_words", signs.Len(),
		"speech", convCfg.Speech.Available(),
		"render", convCfg.Concat != nil && convCfg.Sink != nil,
		"assistant", assistant != nil,
	)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// loadSignTable reads the sign table from the database, falling back to the
// built-in words when none has been imported.
func loadSignTable(db *store.Store) (*signvideo.Table, error) {
	words, err := db.SignAssetMap()
	if err != nil {
		return nil, err
	}
	if len(words) == 0 {
		slog.Info("no sign assets imported, using built-in table")
		return signvideo.DefaultTable(), nil
	}
	slog.Info("loaded sign assets", "count", len(words))
	return signvideo.NewTable(words), nil
}

// wireSignStorage picks where sign clips come from and, with rendering
// enabled, where joined videos go.
func wireSignStorage(ctx context.Context, v *viper.Viper, lib *signvideo.Library, cfg *convert.Config) error {
	endpoint := v.GetString("s3-endpoint")
	if endpoint == "" {
		lib.Source = &signvideo.HTTPSource{
			BaseURL: v.GetString("sign-base-url"),
			Client:  &http.Client{Timeout: v.GetDuration("external-timeout")},
		}
		if v.GetBool("sign-render") {
			slog.Warn("sign rendering needs --s3-endpoint, running in demo mode")
		}
		return nil
	}

	bucket, err := signvideo.NewBucket(signvideo.BucketConfig{
		Endpoint:  endpoint,
		AccessKey: v.GetString("s3-access-key"),
		SecretKey: v.GetString("s3-secret-key"),
		Bucket:    v.GetString("s3-bucket"),
		Secure:    v.GetBool("s3-secure"),
		URLExpiry: v.GetDuration("s3-url-expiry"),
	})
	if err != nil {
		return err
	}
	if err := bucket.Ensure(ctx); err != nil {
		return err
	}
	lib.Source = bucket
	if v.GetBool("sign-render") {
		cfg.Concat = &signvideo.FFmpeg{Bin: v.GetString("ffmpeg-bin")}
		cfg.Sink = bucket
		cfg.CacheTTL = convert.CacheTTLFor(bucket.URLExpiry())
	}
	slog.Info("sign clips from bucket", "endpoint", endpoint, "bucket", v.GetString("s3-bucket"), "render", cfg.Sink != nil)
	return nil
}

// newAssistant returns nil when no LLM endpoint is configured.
func newAssistant(ctx context.Context, v *viper.Viper) (*llm.Client, error) {
	url := v.GetString("llm-url")
	if url == "" {
		slog.Warn("no LLM endpoint configured, study assistant disabled")
		return nil, nil
	}
	client := llm.New(url, v.GetString("llm-key"), v.GetString("llm-model"))
	if dir := v.GetString("prompts-dir"); dir != "" {
		set, err := prompts.Load(os.DirFS(dir))
		if err != nil {
			return nil, fmt.Errorf("load prompts from %s: %w", dir, err)
		}
		client = client.WithPrompts(set)
	}
	if v.GetBool("llm-check") {
		if err := client.Ping(ctx); err != nil {
			return nil, fmt.Errorf("LLM health check: %w", err)
		}
		slog.Info("LLM endpoint OK", "url", url, "model", client.Model())
	}
	return client, nil
}

// seedAdmin makes sure an admin account exists. With a password it creates
// or resets the "admin" user; without one it only checks that some user
// exists.
func seedAdmin(db *store.Store, password string) error {
	if password != "" {
		if err := db.EnsureAdmin("admin", password); err != nil {
			return err
		}
		slog.Info("admin user ready", "username", "admin")
		return nil
	}
	count, err := db.UserCount()
	if err != nil {
		return err
	}
	if count == 0 {
		slog.Warn("no admin users: set --admin-password or TAMKEEN_ADMIN_PASSWORD to enable the admin API")
	}
	return nil
}
