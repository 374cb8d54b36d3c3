package cli

import (
	"github.com/charmbracelet/log"

	"github.com/edwh/otk/internal/core"
	"github.com/edwh/otk/internal/observability"
	"github.com/edwh/otk/pkg/models"
)

// Service instances, set during app initialization in app.go.
var (
	BasePath  string
	ConfigMgr core.ConfigurationManager
	Config    *models.Config
	Service   core.Service
	Presenter *core.TreePresenter
	Logger    *log.Logger
)

// Observability service instances, set during app initialization in app.go.
var (
	EventLog    observability.EventLog
	AlertEngine observability.AlertEngine
	MetricsCalc observability.MetricsCalculator
)

// currentConfig returns the loaded configuration, or the defaults before
// one is loaded.
func currentConfig() *models.Config {
	if Config != nil {
		return Config
	}
	return core.DefaultConfig()
}
