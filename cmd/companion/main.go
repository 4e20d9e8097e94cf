// Package main boots the companion interaction engine and wires application
// dependencies.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"google.golang.org/adk/model"
	"google.golang.org/genai"

	"github.com/easeaico/project-dear/internal/config"
	"github.com/easeaico/project-dear/internal/engine"
	"github.com/easeaico/project-dear/internal/llm"
	"github.com/easeaico/project-dear/internal/memory"
	"github.com/easeaico/project-dear/internal/moment"
	"github.com/easeaico/project-dear/internal/prompt"
	"github.com/easeaico/project-dear/internal/relationship"
	"github.com/easeaico/project-dear/internal/scheduler"
	"github.com/easeaico/project-dear/internal/store"
	"github.com/easeaico/project-dear/internal/throttle"
	"github.com/easeaico/project-dear/internal/types"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	cfg := config.Load()
	slog.Info("configuration loaded", "chat_model", cfg.ChatModel, "memory_model", cfg.MemoryModel, "context_window", cfg.ContextWindow)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer st.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	markers := throttle.NewStore(redisClient, 0)

	chatModel := mustModel(ctx, cfg, cfg.ChatModel)
	relationModel := mustModel(ctx, cfg, cfg.RelationModel)
	memoryModel := mustModel(ctx, cfg, cfg.MemoryModel)
	momentModel := mustModel(ctx, cfg, cfg.MomentModel)
	nudgeModel := mustModel(ctx, cfg, cfg.NudgeModel)

	genCfg := llm.GenerationConfig{
		Temperature:     cfg.Temperature,
		MaxOutputTokens: cfg.MaxOutputTokens,
	}
	// Judging calls want determinism over flair.
	judgeCfg := llm.GenerationConfig{Temperature: 0.2, MaxOutputTokens: cfg.MaxOutputTokens}

	var embedder memory.Embedder
	if cfg.GoogleAPIKey != "" {
		genaiEmbedder, err := memory.NewEmbedder(ctx, cfg.GoogleAPIKey, cfg.EmbeddingModel)
		if err != nil {
			log.Fatalf("failed to create embedder: %v", err)
		}
		embedder = genaiEmbedder
	} else {
		slog.Warn("no google api key, memory recall falls back to full listing")
	}

	recaller := memory.NewRecaller(st.Memories, embedder, cfg.MemoryRecallTopK, cfg.SimilarityThreshold)
	builder := prompt.NewBuilder(cfg.ContextWindow, cfg.JailbreakText, cfg.JailbreakPosition)
	styler := engine.NewStyler(cfg.StyleRules, cfg.ForbiddenPhrases)

	eng := engine.New(st.Characters, st.Personas, st.Chats, st.Lorebook, recaller, st.Relationships,
		llm.NewClient(chatModel), genCfg, builder, styler, nil, nil)
	eng.SetProactiveModel(llm.NewClient(nudgeModel))

	relEngine := relationship.NewEngine(llm.NewClient(relationModel), st.Relationships, markers, judgeCfg)
	relEngine.OnLevelUp = func(state *types.RelationshipState) {
		slog.Info("relationship advanced", "character", state.CharacterID, "level", state.Level)
		eng.NotifyLevelUp(state)
	}
	extractor := memory.NewExtractor(llm.NewClient(memoryModel), st.Chats, st.Memories, embedder, judgeCfg)
	detector := moment.NewDetector(llm.NewClient(momentModel), st.Chats, st.Moments, markers, judgeCfg)
	detector.OnMoment = func(m *types.Moment) {
		slog.Info("special moment", "character", m.CharacterID, "title", m.Title, "emoji", m.Emoji)
		eng.NotifyMoment(m)
	}
	eng.SetEnrichments(relEngine, extractor, detector)

	sched := scheduler.New(st.Characters, st.Chats, st.Relationships, markers, eng, cfg.IdleThreshold, cfg.UserBirthday)
	go sched.Run(ctx)

	slog.Info("companion engine running")
	<-ctx.Done()

	slog.Info("shutting down, waiting for in-flight work")
	eng.Wait()
	slog.Info("shutdown complete")
}

// mustModel builds the model for a feature: Grok via the OpenAI-compatible
// endpoint when an x.ai key is present, Gemini otherwise.
func mustModel(ctx context.Context, cfg config.Config, name string) model.LLM {
	var (
		m   model.LLM
		err error
	)
	if cfg.XAIAPIKey != "" {
		m, err = llm.NewGrokModel(ctx, name, &genai.ClientConfig{APIKey: cfg.XAIAPIKey})
	} else {
		m, err = llm.NewGeminiModel(ctx, name, cfg.GoogleAPIKey)
	}
	if err != nil {
		log.Fatalf("failed to create model %s: %v", name, err)
	}
	return m
}
