// Package internal provides the App struct that wires all components of otk
// together and initializes the CLI layer.
package internal

import (
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/edwh/otk/internal/cli"
	"github.com/edwh/otk/internal/core"
	"github.com/edwh/otk/internal/observability"
	"github.com/edwh/otk/internal/odoo"
	"github.com/edwh/otk/pkg/models"
)

// EventLogFileName is the default event log inside the otk home directory.
const EventLogFileName = "events.jsonl"

// App holds all service dependencies of otk.
type App struct {
	BasePath string

	// Configuration
	ConfigMgr core.ConfigurationManager
	Config    *models.Config

	// Core services
	Names     *core.NameCache
	Service   core.Service
	Presenter *core.TreePresenter
	Logger    *log.Logger

	// Observability
	EventLog    observability.EventLog
	AlertEngine observability.AlertEngine
	MetricsCalc observability.MetricsCalculator
}

// NewApp creates and wires all components of otk. basePath is the directory
// holding config.yaml and the event log (typically ~/.config/otk).
func NewApp(basePath string) (*App, error) {
	app := &App{BasePath: basePath}

	// --- Configuration ---
	app.ConfigMgr = core.NewConfigurationManager(basePath)
	cfg, err := app.ConfigMgr.LoadConfig()
	if err != nil {
		// A broken file should not stop `config init` from fixing it.
		cfg = core.DefaultConfig()
	}
	app.Config = cfg
	app.Logger = observability.NewLogger(os.Stderr, false)
	if err != nil {
		app.Logger.Warn("using default configuration", "err", err)
	}

	// --- Observability ---
	eventLogPath := cfg.EventLog
	if eventLogPath == "" {
		eventLogPath = filepath.Join(basePath, EventLogFileName)
	}
	app.EventLog, err = observability.NewJSONLEventLog(eventLogPath)
	if err != nil {
		// Non-fatal: disable observability if log can't be created.
		app.Logger.Debug("event log disabled", "path", eventLogPath, "err", err)
		app.EventLog = nil
	}
	var events core.EventLogger
	if app.EventLog != nil {
		events = observability.NewRecorder(app.EventLog)
		app.AlertEngine = observability.NewAlertEngine(app.EventLog, observability.ThresholdsFromConfig(cfg.Alerts))
		app.MetricsCalc = observability.NewMetricsCalculator(app.EventLog)
	}

	// --- Core services ---
	app.Names = core.NewNameCache(cfg.Hierarchy.UserCacheTTL)
	app.Service = core.NewService(odoo.NewOpener(cfg, app.Names, app.Logger), cfg.Hierarchy, events)
	app.Presenter = core.NewTreePresenter(cfg.Odoo.BaseURL())

	// --- Wire CLI package-level variables ---
	cli.BasePath = basePath
	cli.ConfigMgr = app.ConfigMgr
	cli.Config = app.Config
	cli.Service = app.Service
	cli.Presenter = app.Presenter
	cli.Logger = app.Logger

	cli.EventLog = app.EventLog
	cli.AlertEngine = app.AlertEngine
	cli.MetricsCalc = app.MetricsCalc

	return app, nil
}

// Close releases resources held by the App, such as the event log file handle.
// It is safe to call Close on an App whose EventLog is nil.
func (a *App) Close() error {
	if a.EventLog != nil {
		return a.EventLog.Close()
	}
	return nil
}

// ResolveBasePath determines the otk home directory: OTK_HOME when set,
// otherwise otk under the user config directory.
func ResolveBasePath() string {
	if home := os.Getenv("OTK_HOME"); home != "" {
		return home
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "otk")
	}
	// Fall back to cwd.
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return cwd
}
