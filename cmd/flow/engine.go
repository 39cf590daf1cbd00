package main

import (
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/cognicore/flow/internal/customdict"
	"github.com/cognicore/flow/internal/gemini"
	"github.com/cognicore/flow/internal/modelhttp"
	"github.com/cognicore/flow/pkg/flow"
	"github.com/cognicore/flow/pkg/flow/config"
	"github.com/cognicore/flow/pkg/flow/model"
	"github.com/cognicore/flow/pkg/flow/modelcache"
	"github.com/cognicore/flow/pkg/flow/refine"
)

// loadComponents reads configuration and applies flag and environment
// overrides. Flags win over the environment, which wins over the file.
func loadComponents() (*config.Components, error) {
	loader := config.Loader{
		ConfigPath:   global.configPath,
		KeepListPath: global.keepListPath,
	}
	comp, err := loader.Load()
	if err != nil {
		return nil, err
	}

	cfg := &comp.Config
	if v := os.Getenv("FLOW_MODEL_URL"); v != "" {
		cfg.Models.BaseURL = v
	}
	if global.modelURL != "" {
		cfg.Models.BaseURL = global.modelURL
	}
	if v := os.Getenv("FLOW_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if global.redisAddr != "" {
		cfg.Cache.RedisAddr = global.redisAddr
	}
	if global.dbPath != "" {
		cfg.Store.Path = global.dbPath
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return comp, nil
}

func openRedis(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

// buildEngine wires the model services, caches and run log.
func buildEngine(ctx context.Context) (*flow.Flow, func(), error) {
	comp, err := loadComponents()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	cfg := comp.Config

	sidecar, err := modelhttp.Dial(ctx, cfg.Models.BaseURL, cfg.Models.Timeout)
	if err != nil {
		return nil, nil, fmt.Errorf("connect model service: %w", err)
	}

	var closers []func() error
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.Warn("cleanup", "error", err)
			}
		}
	}

	var embedder model.Embedder = sidecar
	if cfg.Cache.RedisAddr != "" {
		rdb := openRedis(cfg.Cache.RedisAddr)
		closers = append(closers, rdb.Close)
		embedder = modelcache.NewEmbedder(sidecar, rdb, cfg.Cache.EmbeddingTTL, logger)

		if err := customdict.New(rdb).MergeInto(ctx, comp.Keep); err != nil {
			logger.Warn("shared keep-list unavailable", "error", err)
		}
	}

	var entailer model.Entailer = sidecar
	if key := os.Getenv("GEMINI_API_KEY"); key != "" && cfg.UseNLICheck {
		g, err := gemini.New(ctx, key, cfg.Models.GeminiModel)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		closers = append(closers, g.Close)
		entailer = g
	}

	engine, err := flow.Open(ctx, cfg, refine.Services{
		LM:       sidecar,
		Tagger:   sidecar,
		Embedder: embedder,
		Entailer: entailer,
		Keep:     comp.Keep,
		Logger:   logger,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	closers = append(closers, engine.Close)
	return engine, cleanup, nil
}
