package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

var envPlaceholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:([^}]*))?\}`)

// expandEnv replaces ${VAR} and ${VAR:default} placeholders in raw YAML text
// before it is parsed, the same substitution point the teacher applies in
// core/config.go so that unresolved env vars never leak into struct fields
// as literal "${...}" strings.
func expandEnv(raw []byte) []byte {
	return envPlaceholder.ReplaceAllFunc(raw, func(match []byte) []byte {
		groups := envPlaceholder.FindSubmatch(match)
		name := string(groups[1])
		hasDefault := len(groups[2]) > 0
		def := string(groups[3])
		if v, ok := os.LookupEnv(name); ok {
			return []byte(v)
		}
		if hasDefault {
			return []byte(def)
		}
		return match
	})
}

// LoadOrchestratorConfig reads orchestrator.yaml, applying env substitution
// then overlaying DefaultConfig() so a partial file only overrides what it
// specifies. Per spec.md §6's three-document configuration split.
func LoadOrchestratorConfig(path string) (*OrchestratorConfig, error) {
	cfg := DefaultConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read orchestrator config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(expandEnv(raw), cfg); err != nil {
		return nil, fmt.Errorf("config: parse orchestrator config %q: %w", path, err)
	}
	return cfg, nil
}

// LoadAgentsConfig reads agents.yaml.
func LoadAgentsConfig(path string) (*AgentsFileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read agents config %q: %w", path, err)
	}
	var cfg AgentsFileConfig
	if err := yaml.Unmarshal(expandEnv(raw), &cfg); err != nil {
		return nil, fmt.Errorf("config: parse agents config %q: %w", path, err)
	}
	return &cfg, nil
}

// LoadRulesConfig reads rules.yaml.
func LoadRulesConfig(path string) (*RulesFileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read rules config %q: %w", path, err)
	}
	var cfg RulesFileConfig
	if err := yaml.Unmarshal(expandEnv(raw), &cfg); err != nil {
		return nil, fmt.Errorf("config: parse rules config %q: %w", path, err)
	}
	return &cfg, nil
}

// LoadPolicyConfig reads policy.yaml. A missing file yields an empty
// evaluator list (no policy evaluators configured), matching spec.md §4.9's
// "no evaluators configured - allow by default" default.
func LoadPolicyConfig(path string) (*PolicyFileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &PolicyFileConfig{}, nil
		}
		return nil, fmt.Errorf("config: read policy config %q: %w", path, err)
	}
	var cfg PolicyFileConfig
	if err := yaml.Unmarshal(expandEnv(raw), &cfg); err != nil {
		return nil, fmt.Errorf("config: parse policy config %q: %w", path, err)
	}
	return &cfg, nil
}
