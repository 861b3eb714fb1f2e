// ABOUTME: Notification configuration storage for the decision engine
// ABOUTME: Handles JSON config persistence at XDG paths with compiled-in defaults and env overrides
package notify

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/cockroachdb/errors"
)

// Config is the operator-managed notification rule set. It is persisted as a
// JSON document and mutated only through the Engine's update methods.
type Config struct {
	Enabled          bool                   `json:"enabled"`
	AlwaysNotify     []string               `json:"always_notify"`
	ContractorEmails map[string]string      `json:"contractor_emails"`
	Rules            map[TriggerType]bool   `json:"rules"`
	Messages         map[TriggerType]string `json:"messages,omitempty"`
}

// ConfigDir returns the XDG-compliant directory for fieldwatch configuration.
func ConfigDir() string {
	return filepath.Join(xdg.DataHome, "fieldwatch")
}

// DefaultConfigPath returns the default on-disk location of the notification
// config. FIELDWATCH_NOTIFY_CONFIG overrides it.
func DefaultConfigPath() string {
	if p := os.Getenv("FIELDWATCH_NOTIFY_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(ConfigDir(), "notifications.json")
}

// DefaultConfig returns the compiled-in defaults: notifications enabled with
// every trigger armed but no recipients, so nothing is dispatched until an
// operator adds one.
func DefaultConfig() *Config {
	return &Config{
		Enabled:          true,
		AlwaysNotify:     []string{},
		ContractorEmails: map[string]string{},
		Rules: map[TriggerType]bool{
			TriggerReferenceField: true,
			TriggerExclusionZone:  true,
			TriggerNogoZone:       true,
			TriggerZeroArea:       true,
		},
	}
}

// loadConfig reads the config file at path. A missing file yields defaults; a
// malformed file is reported so the caller can fall back and log.
func loadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, errors.Wrap(err, "open notification config")
	}
	defer func() { _ = f.Close() }()

	cfg := DefaultConfig()
	if err := json.NewDecoder(f).Decode(cfg); err != nil {
		return nil, errors.Wrap(err, "decode notification config")
	}
	cfg.normalize()
	return cfg, nil
}

// saveConfig writes the config file atomically (write temp, rename).
func saveConfig(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "create config directory")
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode notification config")
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return errors.Wrap(err, "write notification config")
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrap(err, "replace notification config")
	}
	return nil
}

// normalize backfills nil maps/slices so lookups and mutations are safe after
// decoding a sparse document.
func (c *Config) normalize() {
	if c.AlwaysNotify == nil {
		c.AlwaysNotify = []string{}
	}
	if c.ContractorEmails == nil {
		c.ContractorEmails = map[string]string{}
	}
	if c.Rules == nil {
		c.Rules = DefaultConfig().Rules
	}
}

// clone returns a deep copy so callers can never mutate engine-owned state.
func (c *Config) clone() *Config {
	out := &Config{
		Enabled:          c.Enabled,
		AlwaysNotify:     append([]string{}, c.AlwaysNotify...),
		ContractorEmails: make(map[string]string, len(c.ContractorEmails)),
		Rules:            make(map[TriggerType]bool, len(c.Rules)),
	}
	for k, v := range c.ContractorEmails {
		out.ContractorEmails[k] = v
	}
	for k, v := range c.Rules {
		out.Rules[k] = v
	}
	if c.Messages != nil {
		out.Messages = make(map[TriggerType]string, len(c.Messages))
		for k, v := range c.Messages {
			out.Messages[k] = v
		}
	}
	return out
}
