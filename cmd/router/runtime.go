// Package main wires the router components from configuration.
package main

import (
	"context"
	"fmt"

	"github.com/vinayprograms/agentkit/credentials"
	"github.com/vinayprograms/agentkit/llm"
	"github.com/vinayprograms/agentkit/logging"
	"github.com/vinayprograms/agentkit/telemetry"

	"github.com/mpdl-bdrck/agent-orchestration-poc-sub000/internal/analytics"
	"github.com/mpdl-bdrck/agent-orchestration-poc-sub000/internal/config"
	"github.com/mpdl-bdrck/agent-orchestration-poc-sub000/internal/decision"
	"github.com/mpdl-bdrck/agent-orchestration-poc-sub000/internal/events"
	"github.com/mpdl-bdrck/agent-orchestration-poc-sub000/internal/guidance"
	"github.com/mpdl-bdrck/agent-orchestration-poc-sub000/internal/holster"
	"github.com/mpdl-bdrck/agent-orchestration-poc-sub000/internal/knowledge"
	"github.com/mpdl-bdrck/agent-orchestration-poc-sub000/internal/openaicompat"
	"github.com/mpdl-bdrck/agent-orchestration-poc-sub000/internal/session"
	"github.com/mpdl-bdrck/agent-orchestration-poc-sub000/internal/specialist"
	"github.com/mpdl-bdrck/agent-orchestration-poc-sub000/internal/supervision"
	"github.com/mpdl-bdrck/agent-orchestration-poc-sub000/internal/tools"
)

// runtime holds the wired components for one process.
type runtime struct {
	cfg       *config.Config
	creds     *credentials.Credentials
	sessionID string
	logger    *logging.Logger

	// Models. Either may be set before setup to skip creation.
	provider         llm.Provider
	decisionProvider llm.Provider

	// Components
	registry    *tools.Registry
	index       *knowledge.Index
	dataset     *analytics.Dataset
	specialists []specialist.Spec
	guidance    *guidance.Store
	telem       telemetry.Exporter
	recorder    session.Recorder
	nats        *events.NATSSink
	sinks       []events.Sink // extra sinks, e.g. the console printer
	supervisor  *supervision.Supervisor

	storagePath string

	// Cleanup
	closers []func()
}

// newRuntime creates a runtime for cfg. An empty sessionID is generated.
func newRuntime(cfg *config.Config, creds *credentials.Credentials, sessionID string) *runtime {
	if sessionID == "" {
		sessionID = session.NewID()
	}
	return &runtime{
		cfg:         cfg,
		creds:       creds,
		sessionID:   sessionID,
		logger:      logging.New().WithComponent("router"),
		storagePath: cfg.StoragePath(),
	}
}

// setup initializes all runtime components. Returns error on failure.
func (rt *runtime) setup(ctx context.Context) error {
	if err := rt.setupTelemetry(); err != nil {
		return err
	}
	if err := rt.createProviders(); err != nil {
		return err
	}
	if err := rt.setupKnowledge(ctx); err != nil {
		return err
	}
	if err := rt.setupAnalytics(); err != nil {
		return err
	}
	if err := rt.setupGuidance(ctx); err != nil {
		return err
	}
	if err := rt.setupEvents(); err != nil {
		return err
	}
	return rt.createSupervisor()
}

// setupTelemetry creates the telemetry exporter.
func (rt *runtime) setupTelemetry() error {
	if !rt.cfg.Telemetry.Enabled {
		rt.telem = telemetry.NewNoopExporter()
		return nil
	}
	var err error
	rt.telem, err = telemetry.NewExporter(rt.cfg.Telemetry.Protocol, rt.cfg.Telemetry.Endpoint)
	if err != nil {
		return fmt.Errorf("creating telemetry exporter: %w", err)
	}
	rt.addCloser(func() { rt.telem.Close() })
	return nil
}

// createProviders builds the specialist and decision models behind one
// shared rate limiter.
func (rt *runtime) createProviders() error {
	limiter := decision.NewLimiter(rt.cfg.Rate.RequestsPerMinute, rt.cfg.Rate.Burst)

	if rt.provider == nil {
		p, err := newProvider(rt.cfg.LLM, rt.creds)
		if err != nil {
			return err
		}
		rt.provider = p
	}
	if rt.decisionProvider == nil {
		if rt.cfg.Router.LLM == (config.LLMConfig{}) {
			rt.decisionProvider = rt.provider
		} else {
			p, err := newProvider(rt.cfg.DecisionLLM(), rt.creds)
			if err != nil {
				return fmt.Errorf("decision model: %w", err)
			}
			rt.decisionProvider = p
		}
	}

	rt.provider = decision.RateLimited(rt.provider, limiter)
	rt.decisionProvider = decision.RateLimited(rt.decisionProvider, limiter)
	return nil
}

// newProvider creates a model client from one [llm] section.
func newProvider(l config.LLMConfig, creds *credentials.Credentials) (llm.Provider, error) {
	name := l.Provider
	if name == "" {
		name = llm.InferProviderFromModel(l.Model)
	}

	if l.Direct || name == "openai-compat" {
		p, err := openaicompat.New(openaicompat.Config{
			APIKey:    apiKey(creds, "openai", l),
			BaseURL:   l.BaseURL,
			Model:     l.Model,
			MaxTokens: l.MaxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("creating LLM provider: %w", err)
		}
		return p, nil
	}

	if name == "" && l.Model == "" {
		return nil, fmt.Errorf("LLM model not configured")
	}
	p, err := llm.NewProvider(llm.ProviderConfig{
		Provider:    name,
		Model:       l.Model,
		APIKey:      apiKey(creds, name, l),
		MaxTokens:   l.MaxTokens,
		BaseURL:     l.BaseURL,
		Thinking:    llm.ThinkingConfig{Level: llm.ThinkingLevel(l.Thinking)},
		RetryConfig: parseRetryConfig(l.MaxRetries, l.RetryBackoff),
	})
	if err != nil {
		return nil, fmt.Errorf("creating LLM provider: %w", err)
	}
	return p, nil
}

// setupKnowledge opens the search index and seeds an empty one.
func (rt *runtime) setupKnowledge(ctx context.Context) error {
	path := config.ExpandHome(rt.cfg.Knowledge.Path)
	index, err := knowledge.Open(path)
	if err != nil {
		return fmt.Errorf("opening knowledge index: %w", err)
	}
	rt.index = index
	rt.addCloser(func() { index.Close() })

	if rt.cfg.Knowledge.Seed == "" {
		return nil
	}
	if n, err := index.Count(); err == nil && n > 0 {
		rt.logger.Debug("knowledge index already populated", map[string]interface{}{"docs": n})
		return nil
	}
	docs, err := knowledge.LoadDocs(config.ExpandHome(rt.cfg.Knowledge.Seed))
	if err != nil {
		return err
	}
	added, err := index.Seed(ctx, docs)
	if err != nil {
		return fmt.Errorf("seeding knowledge index: %w", err)
	}
	rt.logger.Info("knowledge index seeded", map[string]interface{}{"docs": added})
	return nil
}

// setupAnalytics loads the dataset and builds the specialists and the tool
// registry. Without a dataset the specialists answer from the model alone.
func (rt *runtime) setupAnalytics() error {
	if rt.cfg.Analytics.Path != "" {
		ds, err := analytics.Load(config.ExpandHome(rt.cfg.Analytics.Path))
		if err != nil {
			return err
		}
		rt.dataset = ds
	}
	rt.specialists = analytics.Specialists(rt.dataset)

	rt.registry = tools.NewRegistry(knowledge.NewSearchTool(rt.index))
	if rt.dataset != nil {
		for _, t := range analytics.Tools(rt.dataset) {
			rt.registry.Register(t)
		}
	}
	return nil
}

// setupGuidance loads guidance documents and optionally watches for edits.
func (rt *runtime) setupGuidance(ctx context.Context) error {
	store, err := guidance.NewStore(config.ExpandHome(rt.cfg.Guidance.Dir))
	if err != nil {
		return err
	}
	rt.guidance = store
	if rt.cfg.Guidance.Watch {
		if err := store.Watch(ctx); err != nil {
			rt.logger.Warn("guidance watch disabled", map[string]interface{}{"error": err.Error()})
		}
	}
	return nil
}

// setupEvents opens the session recorder and the NATS sink.
func (rt *runtime) setupEvents() error {
	rec, err := session.Open(rt.cfg.Storage.Recorder, rt.storagePath, rt.sessionID)
	if err != nil {
		return fmt.Errorf("opening session recorder: %w", err)
	}
	if rec != nil {
		rt.recorder = rec
		rt.addCloser(func() { rec.Close() })
	}

	if rt.cfg.Events.NATSURL != "" {
		sink, err := events.DialNATS(rt.cfg.Events.NATSURL, rt.cfg.Events.SubjectPrefix)
		if err != nil {
			return err
		}
		rt.nats = sink
		rt.addCloser(func() { sink.Close() })
	}
	return nil
}

// sink fans out to every configured sink.
func (rt *runtime) sink() events.Sink {
	var fan events.Fanout
	if rt.recorder != nil {
		fan = append(fan, rt.recorder)
	}
	if rt.nats != nil {
		fan = append(fan, rt.nats)
	}
	fan = append(fan, rt.sinks...)
	return fan
}

// createSupervisor wires the decision model, specialists and tools.
func (rt *runtime) createSupervisor() error {
	backoff, err := rt.cfg.Router.Backoff()
	if err != nil {
		return err
	}
	decider := decision.NewLLMDecider(rt.decisionProvider, decision.Config{
		MaxAttempts: rt.cfg.Router.DecisionAttempts,
		Backoff:     backoff,
		Timeout:     rt.cfg.ModelTimeout(),
	})

	invoker := tools.NewInvoker(rt.registry, rt.cfg.ToolTimeout())
	runner := specialist.NewRunner(rt.provider, invoker, holster.New(rt.cfg.Holster.Phrases...), rt.guidance, specialist.Config{
		MaxSteps:        rt.cfg.Specialist.MaxSteps,
		ToolConcurrency: rt.cfg.Specialist.ToolConcurrency,
		ModelTimeout:    rt.cfg.ModelTimeout(),
	})

	rt.supervisor = supervision.New(supervision.Config{
		Decider:               decider,
		Dispatcher:            specialist.NewDispatcher(runner, rt.cfg.Specialist.MaxConcurrent),
		Invoker:               invoker,
		Specialists:           rt.specialists,
		LookupTool:            knowledge.ToolName,
		Sink:                  rt.sink(),
		MaxRoutingSteps:       rt.cfg.Router.MaxRoutingSteps,
		MaxContractViolations: rt.cfg.Router.MaxContractViolations,
	})
	rt.logger.Debug("router ready", map[string]interface{}{
		"session": rt.sessionID,
		"targets": len(rt.supervisor.Targets()),
		"tools":   rt.registry.Names(),
	})
	return nil
}

// addCloser registers a cleanup function.
func (rt *runtime) addCloser(fn func()) {
	rt.closers = append(rt.closers, fn)
}

// cleanup runs all registered cleanup functions in reverse order.
func (rt *runtime) cleanup() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}

// startRuntime loads config and builds a ready runtime. The caller must
// call cleanup.
func startRuntime(ctx context.Context, configPath, sessionID string, sinks ...events.Sink) (*runtime, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	rt := newRuntime(cfg, globalCreds, sessionID)
	rt.sinks = sinks
	if err := rt.setup(ctx); err != nil {
		rt.cleanup()
		return nil, err
	}
	return rt, nil
}
