package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/nextlevelbuilder/skillbase/internal/agent"
	"github.com/nextlevelbuilder/skillbase/internal/bus"
	"github.com/nextlevelbuilder/skillbase/internal/config"
	"github.com/nextlevelbuilder/skillbase/internal/providers"
	"github.com/nextlevelbuilder/skillbase/internal/search"
	"github.com/nextlevelbuilder/skillbase/internal/skills"
	"github.com/nextlevelbuilder/skillbase/internal/store"
	"github.com/nextlevelbuilder/skillbase/internal/store/pg"
	"github.com/nextlevelbuilder/skillbase/internal/store/sqlite"
	"github.com/nextlevelbuilder/skillbase/internal/tools"
	"github.com/nextlevelbuilder/skillbase/internal/tracing"
	"github.com/nextlevelbuilder/skillbase/internal/tracing/otelexport"
)

const dedupeTTL = 2 * time.Minute

// runtime holds the wired application for serve and chat commands.
type runtime struct {
	cfg         *config.Config
	loop        *agent.Loop
	bus         *bus.Bus
	router      *agent.Router
	skills      store.SkillStore
	skillWriter *pg.SkillStore // nil in standalone mode
	convs       store.ConversationStore
	tracer      *tracing.Collector

	skillWatcher *skills.Watcher        // nil in managed mode
	toolLimiter  *tools.ToolRateLimiter // nil when the budget is disabled
	closers      []func()
}

// buildRuntime wires the provider, stores, tracer, and turn loop from config.
func buildRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	rt := &runtime{
		cfg:    cfg,
		bus:    bus.New(0),
		router: agent.NewRouter(),
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		return nil, err
	}

	var traceStore store.TracingStore
	if cfg.Managed() {
		db, err := pg.OpenDB(cfg.Database.PostgresDSN)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, func() { db.Close() })
		if err := pg.Migrate(db); err != nil {
			return nil, err
		}
		skillStore := pg.NewSkillStore(db)
		rt.skills = skillStore
		rt.skillWriter = skillStore
		rt.convs = pg.NewConversationStore(db)
		traceStore = pg.NewTracingStore(db)
	} else {
		loader := skills.NewLoader(cfg.Skills.Dirs...)
		rt.skills = loader

		watcher, err := skills.NewWatcher(loader)
		if err != nil {
			slog.Warn("skill watcher unavailable", "error", err)
		} else if err := watcher.Start(ctx); err != nil {
			slog.Warn("skill watcher failed to start", "error", err)
		} else {
			rt.skillWatcher = watcher
			rt.closers = append(rt.closers, watcher.Stop)
		}

		if err := os.MkdirAll(filepath.Dir(cfg.Database.SQLitePath), 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		db, err := sqlite.Open(cfg.Database.SQLitePath)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, func() { db.Close() })
		rt.convs = db
		traceStore = db
	}

	if cfg.Tracing.Enabled {
		rt.tracer = tracing.NewCollector(traceStore)
		if cfg.Tracing.OTLPEndpoint != "" {
			exp, err := otelexport.New(ctx, otelexport.Config{
				Endpoint: cfg.Tracing.OTLPEndpoint,
				Protocol: cfg.Tracing.OTLPProtocol,
				Insecure: true,
			})
			if err != nil {
				slog.Warn("otel exporter unavailable", "error", err)
			} else {
				rt.tracer.SetExporter(exp)
			}
		}
		rt.tracer.Start()
		rt.closers = append(rt.closers, rt.tracer.Stop)
	}

	baseTools := tools.NewRegistry()
	if rl := tools.NewToolRateLimiter(cfg.Agent.ToolCallsPerHour, time.Hour); rl != nil {
		baseTools.SetRateLimiter(rl)
		rt.toolLimiter = rl
	}

	rt.loop = agent.NewLoop(agent.Config{
		Provider:      provider,
		Model:         cfg.Provider.Model,
		SystemPrompt:  cfg.Agent.SystemPrompt,
		Skills:        rt.skills,
		Conversations: rt.convs,
		Bus:           rt.bus,
		Router:        rt.router,
		BaseTools:     baseTools,
		Extractor:     search.NewExtractor(providers.NewInferer(provider)),
		Dedupe:        bus.NewDedupeCache(dedupeTTL, 1000),
		Tracer:        rt.tracer,
		MaxSteps:      cfg.Agent.MaxSteps,
		ContextWindow: cfg.Agent.ContextWindow,
	})

	return rt, nil
}

func (rt *runtime) close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}

func buildProvider(cfg *config.Config) (providers.Provider, error) {
	p := cfg.Provider
	switch p.Type {
	case "anthropic":
		return providers.NewAnthropicProvider(p.APIKey, p.BaseURL, p.Model), nil
	case "dashscope":
		return providers.NewDashScopeProvider(p.APIKey, p.BaseURL, p.Model), nil
	case "openai", "":
		return providers.NewOpenAIProvider("openai", p.APIKey, p.BaseURL, p.Model), nil
	default:
		return nil, fmt.Errorf("unknown provider type: %s", p.Type)
	}
}
