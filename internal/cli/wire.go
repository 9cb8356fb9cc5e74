package cli

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/proofpulse/internal/extract"
	"github.com/ppiankov/proofpulse/internal/factcheck"
	"github.com/ppiankov/proofpulse/internal/jobstore"
	"github.com/ppiankov/proofpulse/internal/llm"
	"github.com/ppiankov/proofpulse/internal/model"
	"github.com/ppiankov/proofpulse/internal/pipeline"
	"github.com/ppiankov/proofpulse/internal/score"
	"github.com/ppiankov/proofpulse/internal/util"
	"github.com/ppiankov/proofpulse/internal/validate"
	"github.com/ppiankov/proofpulse/internal/worker"
)

// openStore opens the configured job store
func openStore(ctx context.Context, cfg *model.Config, logger *zap.Logger) (*jobstore.Store, error) {
	store, err := jobstore.Open(ctx, cfg.Store, jobstore.WithLogger(logger.Named("jobstore")))
	if err != nil {
		return nil, err
	}
	logger.Info("job store ready",
		zap.String("backend", store.Backend()),
		zap.Bool("degraded", store.Degraded()),
		zap.Duration("ttl", store.TTL()))
	return store, nil
}

// buildPipeline constructs every collaborator once and hands them to the
// pipeline. With no LLM provider configured, or one that does not answer,
// the offline heuristics run.
func buildPipeline(ctx context.Context, cfg *model.Config, store *jobstore.Store, logger *zap.Logger) (*pipeline.Pipeline, error) {
	router, err := buildRouter(cfg, logger)
	if err != nil {
		return nil, err
	}

	deps := pipeline.Deps{
		Store:  store,
		Router: router,
		Scorer: score.NewScorer(),
		Logger: logger.Named("pipeline"),
	}

	provider, err := llm.NewProvider(llm.ConfigFromModel(cfg.LLM, cfg.HTTP))
	if err != nil {
		return nil, fmt.Errorf("create LLM provider: %w", err)
	}
	provider = reachableProvider(ctx, provider, cfg.HTTP.Timeout, logger)
	if provider == nil {
		logger.Info("no LLM provider configured, using offline heuristics")
		deps.Claims = factcheck.NewHeuristicClaimExtractor()
		deps.Evidence = factcheck.OfflineEvidenceRetriever{}
		deps.Fallback = factcheck.NewRubricScorer()
	} else {
		logger.Info("LLM provider configured", zap.String("provider", provider.Name()), zap.String("model", cfg.LLM.Model))
		deps.Claims = factcheck.NewLLMClaimExtractor(provider)
		deps.Evidence = factcheck.NewLLMEvidenceRetriever(provider)
		if cfg.Sources.Enabled {
			deps.Evidence = validate.NewRetriever(deps.Evidence,
				validate.NewValidator(cfg.Sources, cfg.HTTP), logger.Named("sources"))
		}
		deps.Fallback = factcheck.NewLLMFallbackScorer(provider)
	}

	if cfg.Primary.APIKey != "" {
		primaryCfg := llm.PrimaryConfigFromModel(cfg.Primary)
		primaryCfg.HTTPProxy, primaryCfg.HTTPSProxy, primaryCfg.NoProxy = cfg.HTTP.HTTPProxy, cfg.HTTP.HTTPSProxy, cfg.HTTP.NoProxy
		gemini, err := llm.NewGeminiProvider(primaryCfg)
		if err != nil {
			return nil, fmt.Errorf("create primary reviewer: %w", err)
		}
		deps.Primary = factcheck.NewPrimaryScorer(gemini)
	} else {
		logger.Info("primary review disabled: no GEMINI_API_KEY configured")
	}

	return pipeline.NewPipeline(cfg, deps), nil
}

// reachableProvider returns provider if it answers within timeout, nil otherwise
func reachableProvider(ctx context.Context, provider llm.Provider, timeout time.Duration, logger *zap.Logger) llm.Provider {
	if provider == nil {
		return nil
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if !provider.IsAvailable(ctx) {
		logger.Warn("LLM provider unavailable, falling back to offline heuristics", zap.String("provider", provider.Name()))
		return nil
	}
	return provider
}

// buildRouter registers one extractor per input type
func buildRouter(cfg *model.Config, logger *zap.Logger) (*extract.Router, error) {
	limiter := worker.NewLimiter(cfg.RateLimiting.RequestsPerSecond, cfg.RateLimiting.BurstSize)
	urlOpts := []extract.URLOption{extract.WithLimiter(limiter)}
	if cfg.HTTP.RespectRobots {
		robots := util.NewRobotsChecker(cfg.HTTP.UserAgent, cfg.HTTP.Timeout,
			cfg.HTTP.HTTPProxy, cfg.HTTP.HTTPSProxy, cfg.HTTP.NoProxy)
		urlOpts = append(urlOpts, extract.WithRobots(robots))
	}

	var transcriber extract.Transcriber
	if cfg.Transcription.Enabled {
		if cfg.Transcription.APIKey == "" {
			logger.Warn("transcription enabled without OPENAI_API_KEY, video input yields a placeholder transcript")
		} else {
			openai, err := llm.NewOpenAIProvider(llm.Config{
				Provider:   "openai",
				APIKey:     cfg.Transcription.APIKey,
				Timeout:    int(cfg.HTTP.Timeout.Seconds()) * 10,
				HTTPProxy:  cfg.HTTP.HTTPProxy,
				HTTPSProxy: cfg.HTTP.HTTPSProxy,
				NoProxy:    cfg.HTTP.NoProxy,
			})
			if err != nil {
				return nil, fmt.Errorf("create transcriber: %w", err)
			}
			transcriber = openai
		}
	}

	return extract.NewRouter().
		Register(extract.TextExtractor{}, model.InputText, model.InputTxt).
		Register(extract.NewURLExtractor(extract.NewFetcher(cfg.HTTP), urlOpts...), model.InputURL).
		Register(extract.PDFExtractor{}, model.InputPDF).
		Register(extract.NewVideoExtractor(transcriber, cfg.Transcription.Model, logger.Named("video")), model.InputVideo), nil
}
