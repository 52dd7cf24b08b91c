package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tidechat/tidechat/internal/chatstore"
	chatpostgres "github.com/tidechat/tidechat/internal/chatstore/postgres"
	chatsqlite "github.com/tidechat/tidechat/internal/chatstore/sqlite"
	"github.com/tidechat/tidechat/internal/config"
	"github.com/tidechat/tidechat/internal/httpserver"
	"github.com/tidechat/tidechat/internal/logging"
	"github.com/tidechat/tidechat/internal/provider/ollama"
	"github.com/tidechat/tidechat/internal/version"
	"github.com/tidechat/tidechat/web"
)

func main() {
	// Optional .env for local development; real deployments set the
	// environment directly.
	_ = godotenv.Load()

	cfg, err := config.LoadServerConfig(".")
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	const maxLogBytes = int64(100 * 1024 * 1024) // 100MB
	if logTarget := strings.TrimSpace(cfg.LogFile); logTarget != "" {
		rot, err := logging.NewRotatingWriter(logTarget, maxLogBytes)
		if err != nil {
			log.Fatalf("init rotating log: %v", err)
		}
		// Mirror to stdout as well for foreground runs
		log.SetOutput(io.MultiWriter(os.Stdout, rot))
		defer rot.Close()
	}
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.SetPrefix("[tidechatd] ")
	log.Printf("tidechat %s env=%s", version.FullInfo(), cfg.Environment)

	store, err := openStore(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("open chat store: %v", err)
	}
	defer store.Close()

	completions, err := ollama.New(ollama.Config{
		BaseURL: cfg.OllamaBaseURL,
		Model:   cfg.OllamaModel,
	})
	if err != nil {
		log.Fatalf("init ollama client: %v", err)
	}
	log.Printf("upstream ollama base_url=%s model=%s", cfg.OllamaBaseURL, cfg.OllamaModel)

	httpSrv := httpserver.New(store, completions)
	httpSrv.SetLogger(cfg.LogLevel, log.New(log.Writer(), "[tidechatd/http] ", log.LstdFlags|log.Lmicroseconds))
	httpSrv.SetSSEPingInterval(cfg.SSEPingInterval)
	httpSrv.SetUI(web.Handler())

	srv := &http.Server{
		Addr:    cfg.HTTPAddress,
		Handler: httpSrv.Router(),
		// SSE responses stay open for the length of a generation, so no
		// global write timeout; slow-client protection comes from the
		// header read timeout.
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("tidechat server listening on %s", cfg.HTTPAddress)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGTERM, syscall.SIGINT)
	<-sigs

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}

// openStore selects the backend from the configured path: a postgres DSN
// uses the Postgres store, anything else is treated as a SQLite file path.
func openStore(path string) (chatstore.Store, error) {
	if strings.HasPrefix(path, "postgres://") || strings.HasPrefix(path, "postgresql://") {
		log.Printf("chat store backend=postgres")
		return chatpostgres.New(path)
	}
	log.Printf("chat store backend=sqlite path=%s", path)
	return chatsqlite.New(path)
}
