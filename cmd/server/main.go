package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/Youssef2430/portfolio/internal/ai"
	"github.com/Youssef2430/portfolio/internal/app"
	"github.com/Youssef2430/portfolio/internal/ask"
	"github.com/Youssef2430/portfolio/internal/bot"
	"github.com/Youssef2430/portfolio/internal/chat"
	"github.com/Youssef2430/portfolio/internal/config"
	"github.com/Youssef2430/portfolio/internal/server"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "config file path")
	flag.Parse()

	level := new(slog.LevelVar)
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("read .env failed", "error", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config failed", "error", err)
		os.Exit(1)
	}
	level.Set(cfg.LogLevel())
	gin.SetMode(ginMode(cfg.LogLevel()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
	slog.Info("bye")
}

func run(ctx context.Context, cfg *config.Config) error {
	p := app.LoadPersona(cfg)

	generator, err := app.NewGenerator(ctx, cfg)
	if err != nil {
		return err
	}
	slog.Info("generator ready", "provider", cfg.Provider.Name, "model", cfg.Chat.Model)

	var embedder ai.Embedder
	if cfg.RAG.Enabled {
		embedder, err = app.NewEmbedder(ctx, cfg)
		if err != nil {
			return err
		}
	}

	provider, err := app.NewContextProvider(ctx, cfg, p, embedder)
	if err != nil {
		return err
	}

	sink, err := app.NewSink(cfg)
	if err != nil {
		return err
	}
	defer sink.Close()

	svc := ask.New(provider, generator, sink, app.AskOptions(cfg, p.Name))

	if cfg.Bot.Enabled {
		chatMgr, err := chat.NewManager(cfg.Bot.MaxContextTurns, cfg.Bot.SessionsDir)
		if err != nil {
			return err
		}
		b := bot.New(bot.Config{
			WSURL:       cfg.Bot.WSURL,
			AccessToken: cfg.Bot.AccessToken,
			OwnerID:     cfg.Bot.OwnerID,
		}, svc, chatMgr)
		go b.Run(ctx)
		defer b.Stop()
	}

	srv := server.New(svc, server.Config{
		Addr:           cfg.Server.Addr,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})
	return srv.ListenAndServe(ctx)
}

// ginMode keeps gin's route dump and debug warnings for debug logging only.
func ginMode(l slog.Level) string {
	if l <= slog.LevelDebug {
		return gin.DebugMode
	}
	return gin.ReleaseMode
}
