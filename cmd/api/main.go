package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/qrchat-dev/qrchat/backend/internal/config"
	"github.com/qrchat-dev/qrchat/backend/internal/handler"
	translateservice "github.com/qrchat-dev/qrchat/backend/internal/service/translate"
	"github.com/qrchat-dev/qrchat/backend/internal/store"
	"github.com/qrchat-dev/qrchat/backend/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		logger.Init("info", "text")
		logger.Warnf("failed to load .env file, continuing with system environment variables: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("failed to load configuration: %v", err)
	}

	logger.Init(cfg.Log.Level, cfg.Log.Format)

	s, err := store.Open(cfg.Store.Path)
	if err != nil {
		logger.Fatalf("failed to open store at %s: %v", cfg.Store.Path, err)
	}

	host, err := s.EnsureDefaultHost(ctx, cfg.Host.Name, cfg.Host.Language)
	if err != nil {
		logger.Fatalf("failed to seed host: %v", err)
	}
	logger.Infof("default host ready id=%s name=%s", host.ID, host.Name)

	// LLM 可用时走大模型翻译，否则退回内置短语表
	var provider translateservice.Provider
	if cfg.Ark.Enabled() {
		llm, err := translateservice.NewLLMProvider(ctx, cfg.Ark)
		if err != nil {
			logger.Warnf("failed to initialize llm provider: %v", err)
			logger.Infof("continuing with dictionary provider - 请检查 Ark 模型相关环境变量")
			provider = translateservice.NewDictionary()
		} else {
			logger.Infof("llm translation provider initialized, model=%s", cfg.Ark.Model)
			provider = llm
		}
	} else {
		logger.Infof("Ark 凭证未配置，使用内置短语表翻译")
		provider = translateservice.NewDictionary()
	}

	var cache *redis.Client
	if cfg.Redis.Enabled() {
		cache = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := cache.Ping(ctx).Err(); err != nil {
			logger.Warnf("redis unreachable, translation cache disabled: %v", err)
			cache = nil
		} else {
			logger.Infof("translation cache enabled, redis=%s", cfg.Redis.Addr)
		}
	} else {
		logger.Infof("REDIS_ADDR 未配置，跳过翻译缓存初始化")
	}

	translateSvc := translateservice.NewService(provider, s, cache)
	router := handler.NewRouter(s, translateSvc)

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Infof("qrchat backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		logger.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
