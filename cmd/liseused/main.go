// CLAUDE:SUMMARY Entry point for the liseused HTTP service — chi router, Basic Auth, session manager, MCP stdio optional.
package main

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/liseuse/bookmark"
	"github.com/hazyhaar/liseuse/engine"
	"github.com/hazyhaar/liseuse/engine/rodengine"
	"github.com/hazyhaar/liseuse/history"
	"github.com/hazyhaar/liseuse/idgen"
	"github.com/hazyhaar/liseuse/kit"
	"github.com/hazyhaar/liseuse/reader"
	"github.com/hazyhaar/liseuse/settings"
	"github.com/hazyhaar/liseuse/surface"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func main() {
	port := env("PORT", "8086")
	configPath := env("CONFIG", "")
	bookmarkDB := env("BOOKMARK_DB", "db/liseuse.db")
	viewerURL := env("VIEWER_URL", "")
	rodRemote := env("ROD_REMOTE", "")
	mcpTransport := env("MCP_TRANSPORT", "")
	logLevel := env("LOG_LEVEL", "info")
	authPassword := os.Getenv("AUTH_PASSWORD")

	var lvl slog.Level
	switch logLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Session defaults: config file when given, env-free built-ins otherwise.
	var cfg reader.Config
	if configPath != "" {
		loaded, err := reader.LoadConfigFile(configPath)
		if err != nil {
			slog.Error("load config", "path", configPath, "error", err)
			os.Exit(1)
		}
		cfg = *loaded
	}

	// Bookmark + position store.
	marks, err := bookmark.Open(bookmarkDB)
	if err != nil {
		slog.Error("bookmark store", "path", bookmarkDB, "error", err)
		os.Exit(1)
	}
	defer marks.Close()

	// Reading history, sharing the bookmark database.
	rec, err := history.OpenDB(marks.DB, history.WithLogger(logger))
	if err != nil {
		slog.Error("history recorder", "error", err)
		os.Exit(1)
	}
	defer rec.Close()

	// Rich engine factory. Without a viewer URL only fallback formats
	// (txt, md, html, fb2) open; rich-routed documents fail fast.
	var factory reader.EngineFactory
	if viewerURL != "" {
		factory = func(_ context.Context, _ reader.Document, _ surface.Surface, _ settings.Settings) (engine.Engine, error) {
			return rodengine.New(rodengine.Config{
				RemoteURL: rodRemote,
				ViewerURL: viewerURL,
				Logger:    logger,
			})
		}
		slog.Info("rich engine enabled", "viewer_url", viewerURL)
	} else {
		slog.Warn("no VIEWER_URL: rich formats (epub, pdf, ...) will not open")
	}

	sessions := newSessionManager(cfg, factory, marks, rec, logger)
	defer sessions.CloseAll(context.Background())

	// Optional MCP over stdio: one shared reader, tools registered on it.
	if mcpTransport == "stdio" {
		mcpReader := reader.New(cfg,
			reader.WithLogger(logger),
			reader.WithBookmarkStore(marks),
			reader.WithEngineFactory(factory),
		)
		srv := mcp.NewServer(&mcp.Implementation{Name: "liseuse", Version: "1.0.0"}, nil)
		mcpReader.RegisterMCP(srv, func(id string) surface.Surface {
			n := surface.NewNode(id)
			n.SetSize(800, 1100)
			return n
		})
		go func() {
			slog.Info("MCP stdio starting")
			if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				slog.Error("MCP stdio", "error", err)
			}
		}()
	}

	// Auth: single shared password, bcrypt-compared per request. Absent
	// password means open access, which is only sane on localhost.
	var passwordHash []byte
	if authPassword != "" {
		passwordHash, err = bcrypt.GenerateFromPassword([]byte(authPassword), bcrypt.DefaultCost)
		if err != nil {
			slog.Error("hash password", "error", err)
			os.Exit(1)
		}
	} else {
		slog.Warn("AUTH_PASSWORD not set: API is unauthenticated")
	}

	api := &apiServer{sessions: sessions, marks: marks, rec: rec, logger: logger}

	r := chi.NewRouter()
	r.Use(requestLogger(logger))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(requireAuth(passwordHash))
		api.mount(r)
	})

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	sessions.CloseAll(shutdownCtx)
	slog.Info("server stopped")
}

// requireAuth enforces Basic Auth against the shared password hash. A nil
// hash disables the check.
func requireAuth(hash []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hash == nil {
				next.ServeHTTP(w, r)
				return
			}
			user, pass, ok := r.BasicAuth()
			if !ok ||
				subtle.ConstantTimeCompare([]byte(user), []byte("reader")) != 1 ||
				bcrypt.CompareHashAndPassword(hash, []byte(pass)) != nil {
				w.Header().Set("WWW-Authenticate", `Basic realm="liseuse"`)
				writeJSON(w, 401, map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestLogger tags each request with an ID and logs it on completion.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := idgen.Prefixed("req_", idgen.Default)()
			ctx := kit.WithRequestID(kit.WithTransport(r.Context(), "http"), reqID)
			start := time.Now()
			next.ServeHTTP(w, r.WithContext(ctx))
			logger.Debug("request",
				"request_id", reqID, "method", r.Method, "path", r.URL.Path,
				"duration", time.Since(start))
		})
	}
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
