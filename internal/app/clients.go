package app

import (
	"fmt"
	"strings"

	"github.com/yungbote/askflow-backend/internal/clients/asksai"
	"github.com/yungbote/askflow-backend/internal/modules/asks/scoring"
	"github.com/yungbote/askflow-backend/internal/pkg/logger"
	"github.com/yungbote/askflow-backend/internal/platform/openai"
	"github.com/yungbote/askflow-backend/internal/realtime/wake"
)

type Clients struct {
	Wake   wake.Bus
	Scorer *scoring.Scorer
	// AI is nil when no OpenAI key is configured; extraction and aggregation are then
	// not registered.
	AI asksai.Service
}

func wireClients(log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")

	// Wake bus
	var bus wake.Bus
	if strings.TrimSpace(cfg.RedisAddr) != "" {
		b, err := wake.NewRedis(log, cfg.RedisAddr, cfg.WakeChannel)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis wake bus: %w", err)
		}
		bus = b
	} else {
		log.Info("REDIS_ADDR not set, using in-process wake bus")
		bus = wake.NewLocal()
	}

	// Scorer
	rules, err := scoring.LoadRules(cfg.ScorerRulesPath)
	if err != nil {
		return Clients{}, err
	}
	scorer, err := scoring.New(rules)
	if err != nil {
		return Clients{}, fmt.Errorf("init scorer: %w", err)
	}

	// Openai
	var ai asksai.Service
	oaCfg := openai.LoadConfig(log)
	if strings.TrimSpace(oaCfg.APIKey) == "" {
		log.Warn("OPENAI_API_KEY not set; extract_facts and aggregate_facts are disabled")
	} else {
		oa, err := openai.NewClient(log, oaCfg)
		if err != nil {
			return Clients{}, fmt.Errorf("init openai client: %w", err)
		}
		ai, err = asksai.NewLLMService(log, oa, asksai.Options{
			CallTimeout:   cfg.LLMCallTimeout,
			RatePerSecond: cfg.LLMRatePerSecond,
			Burst:         cfg.LLMBurst,
		})
		if err != nil {
			return Clients{}, fmt.Errorf("init asks ai: %w", err)
		}
	}

	return Clients{Wake: bus, Scorer: scorer, AI: ai}, nil
}
