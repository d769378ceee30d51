package config

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// envPrefix is stripped from environment variables before mapping them to
// config keys. A double underscore separates nesting levels, so
// MEMKIT_STORE__API_KEY maps to store.api_key.
const envPrefix = "MEMKIT_"

// Load builds the configuration by layering, lowest priority first:
// built-in defaults, the YAML file at path (skipped when path is empty or
// the file does not exist), and MEMKIT_-prefixed environment variables.
// The merged result is validated before being returned.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaultsMap(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load config file %s: %w", path, err)
			}
			log.Printf("[CONFIG] Loaded %s", path)
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envToKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func envToKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// defaultsMap flattens Default into koanf keys so later layers can
// override individual fields.
func defaultsMap() map[string]any {
	d := Default()
	return map[string]any{
		"server.addr":                 d.Server.Addr,
		"store.backend":               d.Store.Backend,
		"store.url":                   d.Store.URL,
		"store.collection":            d.Store.Collection,
		"embedder.provider":           d.Embedder.Provider,
		"embedder.dimensions":         d.Embedder.Dimensions,
		"embedder.cache_size":         d.Embedder.CacheSize,
		"memory.similarity_threshold": d.Memory.SimilarityThreshold,
		"memory.alpha":                d.Memory.Alpha,
		"memory.beta":                 d.Memory.Beta,
		"memory.gamma":                d.Memory.Gamma,
		"memory.decay_rate":           d.Memory.DecayRate,
		"memory.collaborator_timeout": d.Memory.CollaboratorTimeout,
		"event_log.path":              d.EventLog.Path,
	}
}
