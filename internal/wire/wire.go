// Package wire provides dependency injection for ispwatch.
// It creates singleton services with lazy initialization.
package wire

import (
	"database/sql"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/example/ispwatch/internal/adapters/browser"
	cliadapter "github.com/example/ispwatch/internal/adapters/cli"
	"github.com/example/ispwatch/internal/adapters/filesystem"
	"github.com/example/ispwatch/internal/adapters/metrics"
	"github.com/example/ispwatch/internal/adapters/notify"
	"github.com/example/ispwatch/internal/adapters/remote"
	"github.com/example/ispwatch/internal/adapters/speedtest"
	"github.com/example/ispwatch/internal/adapters/sqlite"
	"github.com/example/ispwatch/internal/app"
	"github.com/example/ispwatch/internal/config"
	"github.com/example/ispwatch/internal/core/portal"
	"github.com/example/ispwatch/internal/core/threshold"
	"github.com/example/ispwatch/internal/db"
	"github.com/example/ispwatch/internal/logging"
	"github.com/example/ispwatch/internal/ports/primary"
	"github.com/example/ispwatch/internal/ports/secondary"
	"github.com/example/ispwatch/internal/procutil"
)

var (
	envFile string

	baseOnce sync.Once
	baseErr  error
	cfg      *config.Config
	logger   *zap.Logger

	servicesOnce   sync.Once
	servicesErr    error
	database       *sql.DB
	orchestrator   primary.Orchestrator
	historyService primary.HistoryService

	exportOnce    sync.Once
	exportErr     error
	exportDB      *sql.DB
	exportService primary.ExportService
)

// SetEnvFile selects the dotenv file. It must be called before any getter.
func SetEnvFile(path string) {
	envFile = path
}

// loadConfig returns the loaded configuration.
func loadConfig() (*config.Config, error) {
	baseOnce.Do(initBase)
	return cfg, baseErr
}

// Orchestrator returns the singleton Orchestrator instance.
func Orchestrator() (primary.Orchestrator, error) {
	servicesOnce.Do(initServices)
	return orchestrator, servicesErr
}

func history() (primary.HistoryService, error) {
	servicesOnce.Do(initServices)
	return historyService, servicesErr
}

// ExportService returns the singleton ExportService instance. It reads the
// history database without creating or migrating it.
func ExportService() (primary.ExportService, error) {
	exportOnce.Do(initExport)
	return exportService, exportErr
}

// HistoryAdapterWithOutput returns a new HistoryAdapter writing to out.
// Each call creates a new adapter (adapters are stateless translators).
func HistoryAdapterWithOutput(out io.Writer) (*cliadapter.HistoryAdapter, error) {
	svc, err := history()
	if err != nil {
		return nil, err
	}
	return cliadapter.NewHistoryAdapter(svc, out, cfg.Location), nil
}

// Close releases the database handles and flushes the logger.
func Close() {
	if database != nil {
		database.Close()
	}
	if exportDB != nil {
		exportDB.Close()
	}
	if logger != nil {
		_ = logger.Sync()
	}
}

func initBase() {
	loaded, err := config.Load(envFile)
	if err != nil {
		baseErr = err
		return
	}
	if err := loaded.ValidateEvaluation(); err != nil {
		baseErr = err
		return
	}

	l, err := logging.New(loaded.LogLevel, loaded.LogFormat)
	if err != nil {
		baseErr = fmt.Errorf("%w: %v", config.ErrInvalidConfiguration, err)
		return
	}

	cfg = loaded
	logger = l
}

// initServices initializes all services and their dependencies.
// This is called once via sync.Once.
func initServices() {
	if _, err := loadConfig(); err != nil {
		servicesErr = err
		return
	}

	aggregation, err := threshold.ParsePolicy(cfg.Aggregation)
	if err != nil {
		servicesErr = err
		return
	}
	reportAggregation, err := threshold.ParsePolicy(cfg.ReportAggregation)
	if err != nil {
		servicesErr = err
		return
	}

	database, err = db.Open(cfg.DBPath, db.Options{})
	if err != nil {
		servicesErr = fmt.Errorf("%w: %v", secondary.ErrStoreUnavailable, err)
		return
	}

	// Create repository adapters (secondary ports) - sqlite adapters with injected DB
	measurementRepo := sqlite.NewMeasurementRepository(database)
	complaintRepo := sqlite.NewComplaintRepository(database)
	runLockRepo := sqlite.NewRunLockRepository(database, procutil.Alive)

	var sink secondary.MetricsSink
	if cfg.MetricsTextfile != "" {
		sink = metrics.NewTextfileSink(cfg.MetricsTextfile)
	}

	var notifier secondary.Notifier
	if cfg.SMTP.Enabled() {
		notifier = notify.NewSMTPNotifier(notify.Config{
			Server:   cfg.SMTP.Server,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			UseTLS:   cfg.SMTP.UseTLS,
			From:     cfg.Complainant.Email,
			To:       cfg.SMTP.NotificationEmail,
		})
	} else if err := cfg.ValidateNotification(); err != nil {
		logger.Debug("email notifications disabled", zap.Error(err))
	}

	// Create services (primary ports implementation)
	measurementService := app.NewMeasurementService(
		speedtest.NewRunner(cfg.SpeedtestCommand, cfg.SpeedtestTimeout),
		measurementRepo, sink, cfg.Contract, logger)
	complaintService := app.NewComplaintService(complaintRepo, logger)
	runGuard := app.NewRunGuard(runLockRepo, cfg.RunLockStaleAfter, procutil.Hostname(), procutil.PID(), logger)
	notificationService := app.NewNotificationService(notifier, cfg.Complainant.ISPName, logger)

	engine := app.NewFilingEngine(
		browser.NewLauncher(),
		filesystem.NewSessionStore(cfg.SessionPath),
		filesystem.NewDiagnosticsDir(cfg.DiagnosticsDir),
		complaintService,
		app.FilingEngineConfig{
			Profile:           portal.DefaultProfile().WithURLs(cfg.PortalSigninURL, cfg.PortalComplaintURL),
			Username:          cfg.FCCUsername,
			Password:          cfg.FCCPassword,
			ChallengeTimeout:  cfg.ChallengeTimeout,
			PollInterval:      cfg.ChallengePollInterval,
			SessionTTL:        cfg.SessionTTL,
			NavigationTimeout: cfg.NavigationTimeout,
			BrowserBin:        cfg.BrowserBin,
			UserDataDir:       cfg.BrowserUserDataDir,
		},
		logger,
	)

	deps := app.OrchestratorDeps{
		Measurer:     measurementService,
		Measurements: measurementRepo,
		Complaints:   complaintService,
		Guard:        runGuard,
		Engine:       engine,
		Notify:       notificationService,
	}
	if cfg.Remote.Enabled() {
		executor := remote.NewSSHExecutor(remote.Config{
			Host:    cfg.Remote.Host,
			User:    cfg.Remote.User,
			Dir:     cfg.Remote.Path,
			Binary:  cfg.Remote.SSHBinary,
			Options: cfg.Remote.SSHOptions,
			Timeout: cfg.Remote.Timeout,
		})
		deps.Sync = app.NewSyncService(executor, measurementRepo, cfg.Remote.Command, logger)
	}

	orchestrator = app.NewOrchestrator(deps, app.OrchestratorSettings{
		Contract:          cfg.Contract,
		Aggregation:       aggregation,
		ReportAggregation: reportAggregation,
		MinFailures:       cfg.MinFailures,
		Location:          cfg.Location,
		Complainant:       cfg.Complainant,
		FilingConfigErr:   cfg.ValidateFiling(),
	}, logger)
	historyService = app.NewHistoryService(measurementRepo, complaintRepo, cfg.Contract)
}

func initExport() {
	if _, err := loadConfig(); err != nil {
		exportErr = err
		return
	}

	var err error
	exportDB, err = db.Open(cfg.DBPath, db.Options{ReadOnly: true})
	if err != nil {
		exportErr = fmt.Errorf("%w: %v", secondary.ErrStoreUnavailable, err)
		return
	}
	exportService = app.NewExportService(sqlite.NewMeasurementRepository(exportDB), cfg.Location)
}
