// Command agentorch is the process entrypoint: it loads the three
// configuration documents from spec.md §6 (orchestrator, agents, rules,
// plus policy.yaml), wires every component package into one
// orchestrator.Controller, and serves it over the api.Server REST adapter.
// Grounded on the teacher's examples/basic-agent/main.go and
// examples/orchestrator/main.go (flag/env-driven bootstrap,
// signal.Notify-based graceful shutdown) and core/tool.go's http.Server
// construction.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/neelabh-labs/agentorch/agentcore"
	"github.com/neelabh-labs/agentorch/api"
	"github.com/neelabh-labs/agentorch/config"
	"github.com/neelabh-labs/agentorch/orchestrator"
	"github.com/neelabh-labs/agentorch/policy"
	"github.com/neelabh-labs/agentorch/reasoning"
	"github.com/neelabh-labs/agentorch/reasoning/providers"
	"github.com/neelabh-labs/agentorch/resilience"
	"github.com/neelabh-labs/agentorch/security"
	"github.com/neelabh-labs/agentorch/telemetry"
	"github.com/neelabh-labs/agentorch/validation"
)

func main() {
	configDir := flag.String("config-dir", envOr("AGENTORCH_CONFIG_DIR", "./config"), "directory containing orchestrator.yaml, agents.yaml, rules.yaml, policy.yaml")
	flag.Parse()

	cfg, err := config.LoadOrchestratorConfig(*configDir + "/orchestrator.yaml")
	if err != nil {
		log.Fatalf("agentorch: load orchestrator config: %v", err)
	}

	logger := telemetry.NewLoggerAdapter(cfg.Name)
	metrics := telemetry.NewPromMetrics()
	agentcore.SetGlobalMetricsRegistry(metrics)

	tracerProvider, err := setupTracerProvider(cfg)
	if err != nil {
		logger.Error("agentorch: tracer provider setup failed, continuing without tracing", map[string]interface{}{"error": err.Error()})
		tracerProvider = telemetry.NewSDKTracerProvider()
	}
	otel.SetTracerProvider(tracerProvider)
	tracer := telemetry.NewDefaultTracer(cfg.Name)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := agentcore.NewRegistry(logger.WithComponent("agentcore/registry"))
	watchedCapabilities := loadAgents(ctx, *configDir+"/agents.yaml", registry, logger.WithComponent("agentcore/registry"))
	startDiscovery(ctx, cfg, registry, watchedCapabilities, logger.WithComponent("agentcore/discovery"))

	rulesCfg, err := config.LoadRulesConfig(*configDir + "/rules.yaml")
	if err != nil {
		logger.Warn("agentorch: no rules loaded", map[string]interface{}{"error": err.Error()})
		rulesCfg = &config.RulesFileConfig{}
	}
	ruleEngine := reasoning.NewRuleEngine(rulesCfg.Rules, logger.WithComponent("reasoning/rule"))

	aiProvider := buildAIProvider(ctx, cfg, logger.WithComponent("reasoning/ai"))
	aiReasoner := reasoning.NewAIReasoner(aiProvider, logger.WithComponent("reasoning/ai"))
	reasoner := reasoning.NewHybridReasoner(cfg.ReasoningMode, cfg.RuleConfidenceThreshold, ruleEngine, aiReasoner, logger.WithComponent("reasoning/hybrid"))

	retrier := resilience.NewRetrier(cfg.Retry, logger.WithComponent("resilience/retry"))
	breaker := resilience.NewCircuitBreaker(cfg.CircuitBreaker, logger.WithComponent("resilience/breaker"))
	fallback := resilience.NewFallbackStrategy(logger.WithComponent("resilience/fallback"))

	// Layer 4 (AI hallucination check) has no concrete gateway grounded
	// anywhere in the example pack beyond the reasoning AI providers, and
	// spec.md §4.6 treats it as optional; passing nil degrades to the
	// rule/consistency layers only, per spec.md §9.
	validator := validation.NewResponseValidator(nil, cfg.Validation.ConfidenceThreshold, logger.WithComponent("validation"))

	policyRegistry := buildPolicyGate(*configDir+"/policy.yaml", cfg, logger.WithComponent("policy"))
	securityGate := security.NewGate(cfg.Security, logger.WithComponent("security"))

	controller := orchestrator.NewController(orchestrator.Controller{
		Registry:  registry,
		Reasoner:  reasoner,
		Retrier:   retrier,
		Breaker:   breaker,
		Fallback:  fallback,
		Validator: validator,
		Policy:    policyRegistry,
		Security:  securityGate,
		Config:    cfg,
		Logger:    logger.WithComponent("orchestrator"),
		Metrics:   metrics,
		Telemetry: tracer,
		QueryLog:  orchestrator.NewQueryLogger(cfg.QueryLogDirectory, logger.WithComponent("orchestrator/querylog")),
	})
	if err := controller.Initialize(ctx); err != nil {
		log.Fatalf("agentorch: controller initialize: %v", err)
	}

	server := api.NewServer(controller, registry, breaker, metrics, logger.WithComponent("api"), os.Getenv("AGENTORCH_DEBUG") == "true")

	httpServer := &http.Server{
		Addr:              cfg.HTTPHost + ":" + strconv.Itoa(cfg.HTTPPort),
		Handler:           server.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      0, // streaming responses (SSE) must not be cut off
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		for sig := range sigChan {
			if sig == syscall.SIGHUP {
				logger.Info("agentorch: SIGHUP received, reloading rules", nil)
				if reloaded, err := config.LoadRulesConfig(*configDir + "/rules.yaml"); err != nil {
					logger.Error("agentorch: rule reload failed, keeping current rules", map[string]interface{}{"error": err.Error()})
				} else {
					ruleEngine.Reload(reloaded.Rules)
					logger.Info("agentorch: rules reloaded", map[string]interface{}{"count": len(reloaded.Rules)})
				}
				continue
			}
			logger.Info("agentorch: shutdown signal received", map[string]interface{}{"signal": sig.String()})
			cancel()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			_ = httpServer.Shutdown(shutdownCtx)
			shutdownCancel()
			_ = tracerProvider.Shutdown(context.Background())
			return
		}
	}()

	logger.Info("agentorch: starting HTTP server", map[string]interface{}{"addr": httpServer.Addr, "reasoning_mode": string(cfg.ReasoningMode)})
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("agentorch: HTTP server failed: %v", err)
	}
	logger.Info("agentorch: stopped gracefully", nil)
}

// loadAgents registers every enabled remote_http entry from agents.yaml and
// returns the capability names declared by "discovered" entries, so the
// caller can hand them to Redis-backed discovery. in_process agents have no
// config-level representation (their Go function must be wired by an
// embedding application), so any other type is logged and skipped, matching
// the original's "unknown agent type" log-and-continue convention.
func loadAgents(ctx context.Context, path string, registry *agentcore.Registry, logger agentcore.Logger) []string {
	agentsCfg, err := config.LoadAgentsConfig(path)
	if err != nil {
		logger.Warn("agentorch: no agents loaded", map[string]interface{}{"error": err.Error()})
		return nil
	}
	var watchedCapabilities []string
	for _, def := range agentsCfg.Agents {
		if !def.Enabled {
			continue
		}
		switch def.Type {
		case "remote_http":
			metadata := def.Metadata
			if metadata == nil {
				metadata = map[string]interface{}{}
			}
			if def.Role != "" {
				metadata["role"] = def.Role
			}
			agent := agentcore.NewRemoteHTTPAgent(def.Name, def.Transport, def.Capabilities, metadata)
			if def.Fallback != "" {
				agent.SetFallbackName(def.Fallback)
			}
			if err := registry.Register(ctx, agent, true); err != nil {
				logger.Error("agentorch: agent registration failed, continuing", map[string]interface{}{"agent": def.Name, "error": err.Error()})
			}
		case "discovered":
			watchedCapabilities = append(watchedCapabilities, def.Capabilities...)
		default:
			logger.Warn("agentorch: skipping agent with no config-level construction", map[string]interface{}{"agent": def.Name, "type": def.Type})
		}
	}
	return watchedCapabilities
}

// startDiscovery wires agentcore.RedisDiscovery in for deployments that
// register remote agents dynamically rather than listing them statically in
// agents.yaml: entries typed "discovered" in agents.yaml name the
// capabilities to watch, and every matching registration found under
// cfg.RedisURL is added to the registry as a RemoteHTTPAgent. Registration
// is best-effort and re-run on a timer, so an agent that joins after startup
// is picked up within one poll interval; Registry.Register's existing-name
// rejection means an already-known agent is simply skipped on each poll.
func startDiscovery(ctx context.Context, cfg *config.OrchestratorConfig, registry *agentcore.Registry, capabilities []string, logger agentcore.Logger) {
	if cfg.RedisURL == "" || len(capabilities) == 0 {
		return
	}
	discovery, err := agentcore.NewRedisDiscovery(cfg.RedisURL)
	if err != nil {
		logger.Error("agentorch: redis discovery unavailable, falling back to static agents only", map[string]interface{}{"error": err.Error()})
		return
	}

	poll := func() {
		for _, capability := range capabilities {
			registrations, err := discovery.FindByCapability(ctx, capability)
			if err != nil {
				logger.Warn("agentorch: discovery lookup failed", map[string]interface{}{"capability": capability, "error": err.Error()})
				continue
			}
			for _, reg := range registrations {
				agent := agentcore.NewRemoteHTTPAgent(reg.Name, reg.BaseURL, reg.Capabilities, reg.Metadata)
				if err := registry.Register(ctx, agent, true); err != nil {
					logger.Debug("agentorch: discovered agent already registered", map[string]interface{}{"agent": reg.Name})
				} else {
					logger.Info("agentorch: registered discovered agent", map[string]interface{}{"agent": reg.Name, "capability": capability})
				}
			}
		}
	}

	poll()
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = discovery.Close()
				return
			case <-ticker.C:
				poll()
			}
		}
	}()
}

// buildAIProvider selects a reasoning.AIProvider from cfg.AIProvider.
// "mock" or any unrecognised value (and openai/bedrock without usable
// credentials) yields a no-plan mock so the hybrid reasoner degrades to
// rule-only behavior, per spec.md §9.
func buildAIProvider(ctx context.Context, cfg *config.OrchestratorConfig, logger agentcore.Logger) reasoning.AIProvider {
	switch cfg.AIProvider {
	case "openai":
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			logger.Warn("agentorch: OPENAI_API_KEY not set, AI reasoning disabled", nil)
			return providers.NewMockProvider(nil)
		}
		return providers.NewOpenAIProvider(apiKey, os.Getenv("OPENAI_BASE_URL"), os.Getenv("OPENAI_MODEL"), logger)
	case "bedrock":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			logger.Error("agentorch: AWS config load failed, AI reasoning disabled", map[string]interface{}{"error": err.Error()})
			return providers.NewMockProvider(nil)
		}
		client := bedrockruntime.NewFromConfig(awsCfg)
		return providers.NewBedrockProvider(client, os.Getenv("BEDROCK_MODEL_ID"), logger)
	default:
		return providers.NewMockProvider(nil)
	}
}

// buildPolicyGate wires policy.Registry over an in-memory or Redis-backed
// ActionHistory depending on whether cfg.RedisURL is set, per spec.md
// §4.9's store being swappable.
func buildPolicyGate(path string, cfg *config.OrchestratorConfig, logger agentcore.Logger) *policy.Registry {
	var history policy.ActionHistory
	if cfg.RedisURL != "" {
		redisHistory, err := policy.NewRedisActionHistory(cfg.RedisURL, cfg.Name, 90)
		if err != nil {
			logger.Error("agentorch: redis action history unavailable, falling back to in-memory", map[string]interface{}{"error": err.Error()})
			history = policy.NewUserActionHistory(0, 0)
		} else {
			history = redisHistory
		}
	} else {
		history = policy.NewUserActionHistory(0, 0)
	}

	policyCfg, err := config.LoadPolicyConfig(path)
	if err != nil {
		logger.Warn("agentorch: no policy evaluators loaded", map[string]interface{}{"error": err.Error()})
		policyCfg = &config.PolicyFileConfig{}
	}
	return policy.NewRegistry(history, policyCfg, cfg.PolicyStopOnFirstDenial, logger)
}

// setupTracerProvider builds the span pipeline: OTLP gRPC when
// cfg.OTLPEndpoint is set (production), a pretty-printed stdout exporter
// in debug mode (local development visibility), or an exporter-less
// provider otherwise (spans are created and discarded). Grounded on the
// teacher's pkg/telemetry/otel.go setupTraceProvider (OTLP endpoint
// detection, WithInsecure, WithBatcher).
func setupTracerProvider(cfg *config.OrchestratorConfig) (*sdktrace.TracerProvider, error) {
	ctx := context.Background()

	if cfg.OTLPEndpoint != "" {
		exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint), otlptracegrpc.WithInsecure())
		if err != nil {
			return nil, err
		}
		return telemetry.NewSDKTracerProvider(sdktrace.WithBatcher(exporter)), nil
	}

	if os.Getenv("AGENTORCH_DEBUG") == "true" {
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, err
		}
		return telemetry.NewSDKTracerProvider(sdktrace.WithBatcher(exporter)), nil
	}

	return telemetry.NewSDKTracerProvider(), nil
}

func envOr(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}
