package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/Youssef2430/portfolio/internal/app"
	"github.com/Youssef2430/portfolio/internal/config"
	"github.com/Youssef2430/portfolio/internal/parser"
	"github.com/Youssef2430/portfolio/internal/rag"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "config file path")
	target := flag.String("target", "index", "where to write passages: index, chromem, supabase")
	withPersona := flag.Bool("persona", true, "include passages derived from the persona file")
	maxChars := flag.Int("max-chars", 1200, "split passages longer than this")
	decryptKey := flag.String("decrypt-key", "", "password for .enc sources (from env DECRYPT_KEY if not set)")
	dryRun := flag.Bool("dry-run", false, "parse and report without embedding or writing")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})))

	if flag.NArg() == 0 && !*withPersona {
		fmt.Fprintf(os.Stderr, "Usage: populate [-target index|chromem|supabase] [-persona=false] <file or dir>...\n")
		os.Exit(1)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("read .env failed", "error", err)
	}

	dk := *decryptKey
	if dk == "" {
		dk = os.Getenv("DECRYPT_KEY")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Collect passages
	texts, err := collect(cfg, flag.Args(), dk, *withPersona, *maxChars)
	if err != nil {
		slog.Error("collect passages failed", "error", err)
		os.Exit(1)
	}
	slog.Info("collected passages", "count", len(texts))

	if *dryRun {
		for i, t := range texts {
			fmt.Printf("%4d  %s\n", i, preview(t, 100))
		}
		return
	}

	// 2. Embed
	embedder, err := app.NewEmbedder(ctx, cfg)
	if err != nil {
		slog.Error("create embedder failed", "error", err)
		os.Exit(1)
	}
	passages, err := app.EmbedPassages(ctx, embedder, texts)
	if err != nil {
		slog.Error("embed failed", "error", err)
		os.Exit(1)
	}

	// 3. Write
	dest, err := write(ctx, cfg, *target, passages, embedder.ModelInfo())
	if err != nil {
		slog.Error("write passages failed", "target", *target, "error", err)
		os.Exit(1)
	}

	fmt.Printf(`Populate Report
===============
Passages:    %d
Embedder:    %s
Dimension:   %d
Target:      %s
`, len(passages), embedder.ModelInfo(), len(passages[0].Embedding), dest)
	slog.Info("done")
}

func collect(cfg *config.Config, paths []string, password string, withPersona bool, maxChars int) ([]string, error) {
	var texts []string
	if withPersona {
		texts = append(texts, app.LoadPersona(cfg).Passages()...)
	}

	if len(paths) > 0 {
		chunks, err := parser.LoadPaths(paths, password)
		if err != nil {
			return nil, err
		}
		for _, c := range parser.SplitLong(chunks, maxChars) {
			texts = append(texts, c.Passage())
		}
	}
	return dedupe(texts), nil
}

func dedupe(texts []string) []string {
	seen := make(map[string]bool, len(texts))
	out := texts[:0]
	for _, t := range texts {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func write(ctx context.Context, cfg *config.Config, target string, passages []rag.Passage, model string) (string, error) {
	switch target {
	case "index":
		idx, err := rag.OpenIndex(cfg.RAG.IndexFile, false)
		if err != nil {
			return "", err
		}
		defer idx.Close()
		return cfg.RAG.IndexFile, idx.Replace(passages, model)

	case "chromem":
		store, err := rag.OpenChromemStore(cfg.RAG.VectorsDir)
		if err != nil {
			return "", err
		}
		return cfg.RAG.VectorsDir, store.Replace(ctx, passages)

	case "supabase":
		client, err := app.NewSupabase(cfg)
		if err != nil {
			return "", err
		}
		if err := client.Clear(ctx); err != nil {
			return "", err
		}
		return cfg.Supabase.URL, client.Insert(ctx, passages)
	}
	return "", fmt.Errorf("unknown target %q", target)
}

func preview(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n]) + "..."
	}
	return s
}
