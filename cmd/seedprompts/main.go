// Command seedprompts loads a YAML file of prompts into the prompt
// store, activating each one. Use it to version prompt changes in git
// and roll them out without touching the database by hand.
//
// File format:
//
//	prompts:
//	  - kind: system_prompt
//	    content: |
//	      You are ...
//	  - kind: user_template
//	    content: |
//	      ## SIGNAL ...
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/fairyhunter13/ai-signal-executor/internal/adapter/observability"
	"github.com/fairyhunter13/ai-signal-executor/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/ai-signal-executor/internal/config"
	"github.com/fairyhunter13/ai-signal-executor/internal/domain"
)

type promptFile struct {
	Prompts []struct {
		Kind    string `yaml:"kind"`
		Content string `yaml:"content"`
	} `yaml:"prompts"`
}

func main() {
	file := flag.String("file", "prompts.yaml", "path to the prompts YAML file")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	slog.SetDefault(observability.SetupLogger(cfg))

	if err := run(context.Background(), cfg, *file); err != nil {
		slog.Error("seed failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, file string) error {
	raw, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read %s: %w", file, err)
	}
	var pf promptFile
	if err := yaml.Unmarshal(raw, &pf); err != nil {
		return fmt.Errorf("parse %s: %w", file, err)
	}
	if len(pf.Prompts) == 0 {
		return fmt.Errorf("%s contains no prompts", file)
	}

	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		return err
	}
	defer pool.Close()
	repo := postgres.NewPromptRepo(pool)

	for _, p := range pf.Prompts {
		kind := domain.PromptKind(p.Kind)
		if kind != domain.PromptSystem && kind != domain.PromptUserTemplate {
			return fmt.Errorf("unknown prompt kind %q", p.Kind)
		}
		if p.Content == "" {
			return fmt.Errorf("prompt kind %q has empty content", p.Kind)
		}
		if err := repo.Upsert(ctx, domain.Prompt{Kind: kind, Content: p.Content, IsActive: true}); err != nil {
			return err
		}
		slog.Info("prompt seeded", slog.String("kind", p.Kind), slog.Int("bytes", len(p.Content)))
	}
	return nil
}
