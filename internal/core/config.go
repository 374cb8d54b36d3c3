// Package core contains the business logic for otk: building task
// hierarchies from the remote store, reparenting tasks without creating
// cycles, rendering trees, and loading configuration.
package core

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/natefinch/atomic"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/edwh/otk/pkg/models"
)

// ConfigFileName is the base name of the configuration file inside the otk
// home directory.
const ConfigFileName = "config.yaml"

// Protocols accepted for odoo.protocol.
const (
	ProtocolXMLRPC  = "xml-rpc"
	ProtocolXMLRPCS = "xml-rpcs"
)

// ConfigurationManager loads, validates and saves the otk configuration.
type ConfigurationManager interface {
	LoadConfig() (*models.Config, error)
	ValidateConfig(cfg *models.Config) error
	SaveConfig(cfg *models.Config) error
	ConfigPath() string
}

// viperConfigManager implements ConfigurationManager using Viper for
// reading config.yaml and the ODOO_* environment variables.
type viperConfigManager struct {
	// basePath is the otk home directory where config.yaml resides.
	basePath string
}

// NewConfigurationManager creates a ConfigurationManager that reads
// config.yaml from basePath.
func NewConfigurationManager(basePath string) ConfigurationManager {
	return &viperConfigManager{basePath: basePath}
}

// DefaultConfig returns a Config populated with defaults.
func DefaultConfig() *models.Config {
	return &models.Config{
		Odoo: models.OdooConfig{
			Port:     443,
			Protocol: ProtocolXMLRPCS,
			Timeout:  30 * time.Second,
		},
		Hierarchy: models.HierarchyConfig{
			MaxDepth:        DefaultMaxDepth,
			MaxNodes:        DefaultMaxNodes,
			ChildFields:     []string{"child_ids", "subtask_ids", "children", "sub_task_ids"},
			BlockedByFields: []string{"depend_on_ids", "blocked_by_ids", "dependency_ids"},
			BlockingFields:  []string{"dependent_ids", "blocking_ids"},
			UserCacheTTL:    DefaultNameCacheTTL,
		},
		Server: models.ServerConfig{
			Host: "localhost",
			Port: 1900,
		},
		Alerts: models.AlertConfig{
			WindowHours:     24,
			MaxMoveFailures: 10,
			MaxRemoteErrors: 3,
			CycleAttempts:   3,
		},
	}
}

func (cm *viperConfigManager) ConfigPath() string {
	return filepath.Join(cm.basePath, ConfigFileName)
}

// LoadConfig reads config.yaml from the base path and applies ODOO_*
// environment overrides. A missing file yields the defaults plus overrides.
func (cm *viperConfigManager) LoadConfig() (*models.Config, error) {
	def := DefaultConfig()

	v := viper.New()
	v.SetConfigName(strings.TrimSuffix(ConfigFileName, filepath.Ext(ConfigFileName)))
	v.SetConfigType("yaml")
	v.AddConfigPath(cm.basePath)

	v.SetDefault("odoo.host", def.Odoo.Host)
	v.SetDefault("odoo.database", def.Odoo.Database)
	v.SetDefault("odoo.user", def.Odoo.User)
	v.SetDefault("odoo.password", def.Odoo.Password)
	v.SetDefault("odoo.port", def.Odoo.Port)
	v.SetDefault("odoo.protocol", def.Odoo.Protocol)
	v.SetDefault("odoo.timeout", def.Odoo.Timeout)
	v.SetDefault("hierarchy.max_depth", def.Hierarchy.MaxDepth)
	v.SetDefault("hierarchy.max_nodes", def.Hierarchy.MaxNodes)
	v.SetDefault("hierarchy.child_fields", def.Hierarchy.ChildFields)
	v.SetDefault("hierarchy.blocked_by_fields", def.Hierarchy.BlockedByFields)
	v.SetDefault("hierarchy.blocking_fields", def.Hierarchy.BlockingFields)
	v.SetDefault("hierarchy.user_cache_ttl", def.Hierarchy.UserCacheTTL)
	v.SetDefault("server.host", def.Server.Host)
	v.SetDefault("server.port", def.Server.Port)
	v.SetDefault("alerts.window_hours", def.Alerts.WindowHours)
	v.SetDefault("alerts.max_move_failures", def.Alerts.MaxMoveFailures)
	v.SetDefault("alerts.max_remote_errors", def.Alerts.MaxRemoteErrors)
	v.SetDefault("alerts.cycle_attempts", def.Alerts.CycleAttempts)
	v.SetDefault("alerts.max_truncated", def.Alerts.MaxTruncated)
	v.SetDefault("event_log", def.EventLog)

	// The ODOO_* names are shared with other tooling for the same instance.
	envKeys := map[string]string{
		"odoo.host":     "ODOO_HOST",
		"odoo.database": "ODOO_DATABASE",
		"odoo.user":     "ODOO_USER",
		"odoo.password": "ODOO_PASSWORD",
		"odoo.port":     "ODOO_PORT",
		"odoo.protocol": "ODOO_PROTOCOL",
	}
	for key, env := range envKeys {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("binding %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading %s: %w", ConfigFileName, err)
		}
	}

	cfg := &models.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", ConfigFileName, err)
	}
	cfg.Odoo.Host = normalizeHost(cfg.Odoo.Host)
	return cfg, nil
}

// normalizeHost strips a scheme and trailing slash users tend to paste in.
func normalizeHost(h string) string {
	h = strings.TrimSpace(h)
	h = strings.TrimPrefix(h, "https://")
	h = strings.TrimPrefix(h, "http://")
	return strings.TrimRight(h, "/")
}

// ValidateConfig checks cfg for invalid values and reports all of them at once.
func (cm *viperConfigManager) ValidateConfig(cfg *models.Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	var errs []string

	if cfg.Odoo.Host == "" {
		errs = append(errs, "odoo.host must not be empty (set ODOO_HOST)")
	}
	if cfg.Odoo.Database == "" {
		errs = append(errs, "odoo.database must not be empty (set ODOO_DATABASE)")
	}
	if cfg.Odoo.User == "" {
		errs = append(errs, "odoo.user must not be empty (set ODOO_USER)")
	}
	if cfg.Odoo.Password == "" {
		errs = append(errs, "odoo.password must not be empty (set ODOO_PASSWORD)")
	}
	if cfg.Odoo.Port <= 0 || cfg.Odoo.Port > 65535 {
		errs = append(errs, fmt.Sprintf("odoo.port %d is invalid, must be between 1 and 65535", cfg.Odoo.Port))
	}
	if cfg.Odoo.Protocol != ProtocolXMLRPC && cfg.Odoo.Protocol != ProtocolXMLRPCS {
		errs = append(errs, fmt.Sprintf("odoo.protocol %q is invalid, must be one of: %s, %s",
			cfg.Odoo.Protocol, ProtocolXMLRPC, ProtocolXMLRPCS))
	}
	if cfg.Odoo.Timeout <= 0 {
		errs = append(errs, fmt.Sprintf("odoo.timeout must be positive, got %s", cfg.Odoo.Timeout))
	}
	if cfg.Hierarchy.MaxDepth < 1 {
		errs = append(errs, fmt.Sprintf("hierarchy.max_depth must be at least 1, got %d", cfg.Hierarchy.MaxDepth))
	}
	if cfg.Hierarchy.MaxNodes < 1 {
		errs = append(errs, fmt.Sprintf("hierarchy.max_nodes must be at least 1, got %d", cfg.Hierarchy.MaxNodes))
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port %d is invalid, must be between 1 and 65535", cfg.Server.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// SaveConfig writes cfg to config.yaml, replacing any existing file
// atomically. The file holds the Odoo password, so it is kept private.
func (cm *viperConfigManager) SaveConfig(cfg *models.Config) error {
	if err := os.MkdirAll(cm.basePath, 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", cm.basePath, err)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	path := cm.ConfigPath()
	if err := atomic.WriteFile(path, &buf); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	// atomic.WriteFile keeps the temp file mode only for new files.
	if err := os.Chmod(path, 0o600); err != nil {
		return fmt.Errorf("setting permissions on %s: %w", path, err)
	}
	return nil
}

// RedactedConfig returns a copy of cfg safe to print or serve.
func RedactedConfig(cfg *models.Config) *models.Config {
	if cfg == nil {
		return nil
	}
	out := *cfg
	if out.Odoo.Password != "" {
		out.Odoo.Password = "********"
	}
	return &out
}
