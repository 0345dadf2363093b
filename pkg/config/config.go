// Package config loads the library's top-level configuration from an
// optional YAML file with environment variable overrides.
//
// Precedence, highest to lowest: environment variables prefixed with
// AGENTSTORE_, the YAML file, hardcoded defaults. Environment variables
// map to config paths by section:
//
//	AGENTSTORE_SESSION_MAX_SESSIONS  -> session.max_sessions
//	AGENTSTORE_KNOWLEDGE_BACKEND     -> knowledge.backend
//	AGENTSTORE_KNOWLEDGE_QDRANT_HOST -> knowledge.qdrant.host
//	AGENTSTORE_EMBEDDINGS_BASE_URL   -> embeddings.base_url
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/fyrsmithlabs/agentstore/internal/logging"
	"github.com/fyrsmithlabs/agentstore/pkg/embeddings"
	"github.com/fyrsmithlabs/agentstore/pkg/knowledge"
	"github.com/fyrsmithlabs/agentstore/pkg/persistence/sqlite"
	"github.com/fyrsmithlabs/agentstore/pkg/session"
)

const envPrefix = "AGENTSTORE_"

// knowledgeBackends are the accepted knowledge.backend values.
var knowledgeBackends = map[string]bool{"chromem": true, "qdrant": true}

// KnowledgeConfig selects and configures the vector backend.
type KnowledgeConfig struct {
	// Backend is "chromem" (embedded, default) or "qdrant".
	Backend string `koanf:"backend"`

	Chromem knowledge.ChromemConfig `koanf:"chromem"`
	Qdrant  knowledge.QdrantConfig  `koanf:"qdrant"`
}

// Config is the root configuration.
type Config struct {
	Session     session.Config            `koanf:"session"`
	Persistence sqlite.Config             `koanf:"persistence"`
	Knowledge   KnowledgeConfig           `koanf:"knowledge"`
	Embeddings  embeddings.ProviderConfig `koanf:"embeddings"`
	Logging     logging.Config            `koanf:"logging"`
}

// ApplyDefaults sets default values for unset fields across all sections.
func (c *Config) ApplyDefaults() {
	c.Session.ApplyDefaults()
	c.Persistence.ApplyDefaults()
	if c.Knowledge.Backend == "" {
		c.Knowledge.Backend = "chromem"
	}
	c.Knowledge.Chromem.ApplyDefaults()
	c.Logging.ApplyDefaults()
}

// Validate validates the configuration. Defaults must be applied first.
func (c Config) Validate() error {
	if err := c.Session.Validate(); err != nil {
		return err
	}
	if !knowledgeBackends[c.Knowledge.Backend] {
		return fmt.Errorf("invalid knowledge backend %q: must be chromem or qdrant", c.Knowledge.Backend)
	}
	if c.Knowledge.Backend == "qdrant" {
		cfg := c.Knowledge.Qdrant
		cfg.ApplyDefaults()
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	return nil
}

// Load reads configuration from the YAML file at path (skipped when path is
// empty or the file does not exist), applies AGENTSTORE_ environment
// overrides, then defaults and validation.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			content, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("reading config file %s: %w", path, err)
			}
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("parsing config file %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

// envTransform maps an AGENTSTORE_ variable to its config path. The first
// underscore separates the section from the field; inside the knowledge
// section a backend name forms a second level.
func envTransform(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	section, field := parts[0], parts[1]
	if section == "knowledge" {
		sub := strings.SplitN(field, "_", 2)
		if len(sub) == 2 && knowledgeBackends[sub[0]] {
			return section + "." + sub[0] + "." + sub[1]
		}
	}
	return section + "." + field
}
