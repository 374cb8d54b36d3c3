package models

import (
	"net"
	"strconv"
	"time"
)

// OdooConfig holds the connection settings for the remote ERP instance.
type OdooConfig struct {
	Host     string        `yaml:"host" mapstructure:"host"`
	Database string        `yaml:"database" mapstructure:"database"`
	User     string        `yaml:"user" mapstructure:"user"`
	Password string        `yaml:"password" mapstructure:"password"`
	Port     int           `yaml:"port" mapstructure:"port"`
	Protocol string        `yaml:"protocol" mapstructure:"protocol"`
	Timeout  time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// HierarchyConfig bounds hierarchy builds and names the relation fields that
// vary between ERP customizations. No candidate field is assumed to exist.
type HierarchyConfig struct {
	MaxDepth        int           `yaml:"max_depth" mapstructure:"max_depth"`
	MaxNodes        int           `yaml:"max_nodes" mapstructure:"max_nodes"`
	ChildFields     []string      `yaml:"child_fields" mapstructure:"child_fields"`
	BlockedByFields []string      `yaml:"blocked_by_fields" mapstructure:"blocked_by_fields"`
	BlockingFields  []string      `yaml:"blocking_fields" mapstructure:"blocking_fields"`
	UserCacheTTL    time.Duration `yaml:"user_cache_ttl" mapstructure:"user_cache_ttl"`
}

// ServerConfig holds the listen address of the HTTP API.
type ServerConfig struct {
	Host string `yaml:"host" mapstructure:"host"`
	Port int    `yaml:"port" mapstructure:"port"`
}

// AlertConfig holds the thresholds of the event-log alerts. Zero values
// keep the built-in defaults.
type AlertConfig struct {
	WindowHours     int `yaml:"window_hours" mapstructure:"window_hours"`
	MaxMoveFailures int `yaml:"max_move_failures" mapstructure:"max_move_failures"`
	MaxRemoteErrors int `yaml:"max_remote_errors" mapstructure:"max_remote_errors"`
	CycleAttempts   int `yaml:"cycle_attempts" mapstructure:"cycle_attempts"`
	MaxTruncated    int `yaml:"max_truncated" mapstructure:"max_truncated"`
}

// Config is the full otk configuration read from config.yaml via Viper.
type Config struct {
	Odoo      OdooConfig      `yaml:"odoo" mapstructure:"odoo"`
	Hierarchy HierarchyConfig `yaml:"hierarchy" mapstructure:"hierarchy"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Alerts    AlertConfig     `yaml:"alerts" mapstructure:"alerts"`
	EventLog  string          `yaml:"event_log,omitempty" mapstructure:"event_log"`
}

// BaseURL returns the web root of the configured instance, used for record
// links. The scheme follows Protocol and the port is omitted when it is the
// scheme's default.
func (c OdooConfig) BaseURL() string {
	if c.Host == "" {
		return ""
	}
	scheme, defaultPort := "https", 443
	if c.Protocol == "xml-rpc" {
		scheme, defaultPort = "http", 80
	}
	if c.Port == 0 || c.Port == defaultPort {
		return scheme + "://" + c.Host
	}
	return scheme + "://" + net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
