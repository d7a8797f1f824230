package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/catalog"
	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/handlers"
	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/pipeline"
	"github.com/ternarybob/aestimo/internal/services/analysis"
	"github.com/ternarybob/aestimo/internal/services/chunking"
	"github.com/ternarybob/aestimo/internal/services/events"
	"github.com/ternarybob/aestimo/internal/services/ingest"
	"github.com/ternarybob/aestimo/internal/services/integration"
	"github.com/ternarybob/aestimo/internal/services/llm"
	"github.com/ternarybob/aestimo/internal/services/maintenance"
	"github.com/ternarybob/aestimo/internal/services/pdf"
	"github.com/ternarybob/aestimo/internal/services/planning"
	"github.com/ternarybob/aestimo/internal/services/report"
	"github.com/ternarybob/aestimo/internal/services/retrieval"
	"github.com/ternarybob/aestimo/internal/services/search"
	"github.com/ternarybob/aestimo/internal/storage"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	ctx            context.Context
	cancelCtx      context.CancelFunc
	StorageManager interfaces.StorageManager

	// Analysis framework catalog (embedded YAML)
	Catalog *catalog.Catalog

	// Core services
	EventService  interfaces.EventService
	LLMService    interfaces.LLMService
	LLMAudit      llm.AuditLogger
	SearchService interfaces.SearchService
	PDFExtractor  interfaces.PDFExtractor
	IngestService *ingest.Service
	ReportService *report.Service

	// Analysis collaborators
	Selector     *retrieval.Selector
	Compressor   *retrieval.Compressor
	RoutePlanner *planning.RoutePlanner
	NeedsPlanner *planning.NeedsPlanner
	Preprocessor *chunking.Preprocessor
	Engine       *analysis.Engine
	Integrator   *integration.Integrator
	Consolidator *integration.Consolidator

	// Run orchestration
	Pipeline *pipeline.Pipeline

	// Scheduled Badger value log GC
	MaintenanceService *maintenance.Service

	// HTTP handlers
	APIHandler       *handlers.APIHandler
	StatusHandler    *handlers.StatusHandler
	WorkpaperHandler *handlers.WorkpaperHandler
	AnalysisHandler  *handlers.AnalysisHandler
	ReportHandler    *handlers.ReportHandler
	VariablesHandler *handlers.VariablesHandler
	WSHandler        *handlers.WebSocketHandler

	progressSub *handlers.ProgressSubscriber
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}
	app.ctx, app.cancelCtx = context.WithCancel(context.Background())

	// Initialize storage
	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	// Initialize services (AFTER config replacement so resolved keys are visible)
	if err := app.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	// Initialize handlers
	app.initHandlers()

	// Start scheduled storage maintenance
	if err := app.MaintenanceService.Start(); err != nil {
		return nil, fmt.Errorf("failed to start maintenance service: %w", err)
	}

	logger.Info().
		Str("provider", string(cfg.LLM.DefaultProvider)).
		Bool("search_enabled", cfg.Search.Enabled).
		Int("modules", len(app.Catalog.AllModules())).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase initializes the storage layer (Badger)
func (a *App) initDatabase() error {
	storageManager, err := storage.NewStorageManager(a.Logger, a.Config)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}

	a.StorageManager = storageManager
	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")

	// Load variables from files (e.g. API keys, secrets)
	// This must happen before config replacement so that loaded variables can be used
	if err := a.StorageManager.LoadVariablesFromFiles(context.Background(), a.Config.Variables.Dir); err != nil {
		// Log warning but don't fail startup (consistent with other loaders)
		a.Logger.Warn().Err(err).Msg("Failed to load variables from files")
	}

	// Load variables from .env file (takes precedence over TOML variables)
	// This allows API keys to be stored in .env files for security
	if err := a.StorageManager.LoadEnvFile(context.Background(), ".env"); err != nil {
		// Log warning but don't fail startup (consistent with other loaders)
		a.Logger.Warn().Err(err).Msg("Failed to load .env file")
	}

	// Phase 2: Perform {key-name} replacement in config after storage initialization
	// This replaces any {key-name} references in config values with actual KV store values
	// Must happen BEFORE the LLM service is initialized
	ctx := context.Background()
	kvMap, err := a.StorageManager.KVStorage().GetAll(ctx)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to fetch KV map for config replacement, skipping replacement")
	} else if len(kvMap) > 0 {
		if err := common.ReplaceInStruct(a.Config, kvMap, a.Logger); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to replace key references in config")
		} else {
			a.Logger.Debug().Int("keys", len(kvMap)).Msg("Applied key/value replacements to config")
		}
	} else {
		a.Logger.Debug().Msg("No key/value pairs found, skipping config replacement")
	}

	return nil
}

// initServices initializes all business services in dependency order.
//
// ANALYSIS PIPELINE ARCHITECTURE:
// 1. Preprocessor - chunks footnote/MD&A documents and builds chunk overviews
// 2. RoutePlanner / NeedsPlanner - select modules and plan information needs
// 3. Engine - runs one framework module against statements + retrieved context
// 4. Integrator / Consolidator - merge module conclusions, dedupe risks
// 5. Report - renders the finished workpaper to HTML
//
// The pipeline drives 1-5 per run; the same collaborators back the HTTP
// handlers and the MCP tools.
func (a *App) initServices() error {
	var err error

	// Event service first, everything downstream publishes progress through it
	a.EventService = events.NewService(a.Logger)

	// Embedded analysis framework catalog
	a.Catalog, err = catalog.Load()
	if err != nil {
		return fmt.Errorf("failed to load analysis catalog: %w", err)
	}
	a.Logger.Debug().
		Int("modules", len(a.Catalog.AllModules())).
		Msg("Analysis catalog loaded")

	// LLM service with audit trail. API keys resolve lazily on first call,
	// so construction succeeds even before keys are configured.
	a.LLMService, a.LLMAudit, err = llm.NewLLMService(a.Config, a.StorageManager.KVStorage(), a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize LLM service: %w", err)
	}

	// Web search collaborator (disabled stub when search is off)
	a.SearchService = search.NewSearchService(a.Config.Search, a.Logger)

	// Document ingestion
	a.PDFExtractor = pdf.NewExtractor(a.Logger)
	a.IngestService = ingest.NewService(a.Config.Ingest, a.PDFExtractor, a.Logger)

	// Report rendering
	a.ReportService, err = report.NewService(a.Config.Report, a.Catalog, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize report service: %w", err)
	}

	// Retrieval collaborators shared by the engine and the MCP tools
	a.Selector = retrieval.NewSelector(a.LLMService, a.Logger)
	a.Compressor = retrieval.NewCompressor(a.LLMService, a.Config.Analysis.CompressedDocMaxChars, a.Logger)

	// Planning collaborators
	a.RoutePlanner = planning.NewRoutePlanner(a.LLMService, a.Catalog, a.Logger)
	a.NeedsPlanner = planning.NewNeedsPlanner(a.LLMService, a.Catalog, a.Logger)

	// Document preprocessing (chunking + overviews)
	a.Preprocessor = chunking.NewPreprocessor(&a.Config.Analysis, a.LLMService, a.EventService, a.Logger)

	// Module analysis engine
	a.Engine = analysis.NewEngine(
		a.LLMService,
		a.SearchService,
		a.Selector,
		a.Compressor,
		a.Catalog,
		&a.Config.Analysis,
		a.Logger,
	)

	// Conclusion integration and risk consolidation
	a.Integrator = integration.NewIntegrator(a.LLMService, a.Logger)
	a.Consolidator = integration.NewConsolidator(a.LLMService, a.Catalog, a.Logger)

	// Pipeline wires the collaborators into one run orchestrator
	a.Pipeline, err = pipeline.New(pipeline.Deps{
		Catalog:      a.Catalog,
		LLM:          a.LLMService,
		RoutePlanner: a.RoutePlanner,
		NeedsPlanner: a.NeedsPlanner,
		Preprocessor: a.Preprocessor,
		Engine:       a.Engine,
		Integrator:   a.Integrator,
		Consolidator: a.Consolidator,
		Report:       a.ReportService,
		Events:       a.EventService,
		Workpapers:   a.StorageManager.WorkpaperStorage(),
		Runs:         a.StorageManager.RunStorage(),
		Logger:       a.Logger,
	})
	if err != nil {
		return fmt.Errorf("failed to build analysis pipeline: %w", err)
	}

	// Scheduled Badger value log GC (started in New after handlers are up)
	a.MaintenanceService = maintenance.NewService(a.StorageManager, &a.Config.Maintenance, a.Logger)

	a.Logger.Debug().Msg("Services initialized")
	return nil
}

// initHandlers initializes all HTTP handlers
func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler(a.Logger)
	a.StatusHandler = handlers.NewStatusHandler(
		a.StorageManager.WorkpaperStorage(),
		a.StorageManager.RunStorage(),
		a.Logger,
	)
	a.WorkpaperHandler = handlers.NewWorkpaperHandler(
		a.IngestService,
		a.StorageManager.WorkpaperStorage(),
		a.Logger,
	)
	a.AnalysisHandler = handlers.NewAnalysisHandler(
		a.Pipeline,
		a.StorageManager.WorkpaperStorage(),
		a.StorageManager.RunStorage(),
		a.Logger,
	)
	a.ReportHandler = handlers.NewReportHandler(
		a.ReportService,
		a.StorageManager.WorkpaperStorage(),
		a.Logger,
	)
	a.VariablesHandler = handlers.NewVariablesHandler(a.StorageManager.KVStorage(), a.Logger)

	// WebSocket progress feed: handler owns the connections, the subscriber
	// bridges pipeline events onto them with filtering and throttling
	a.WSHandler = handlers.NewWebSocketHandler(a.Logger)
	a.progressSub = handlers.NewProgressSubscriber(a.WSHandler, a.EventService, a.Logger, &a.Config.WebSocket)

	a.Logger.Debug().Msg("Handlers initialized")
}

// Close shuts down services in reverse initialization order
func (a *App) Close() error {
	if a.cancelCtx != nil {
		a.Logger.Info().Msg("Cancelling background goroutines")
		a.cancelCtx()
		// Allow in-flight goroutines to observe cancellation
		time.Sleep(100 * time.Millisecond)
	}

	// Stop scheduled maintenance
	if a.MaintenanceService != nil {
		if err := a.MaintenanceService.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop maintenance service")
		}
	}

	// Detach the progress feed before closing the event service
	if a.progressSub != nil {
		a.progressSub.Unsubscribe()
	}
	if a.WSHandler != nil {
		a.WSHandler.Close()
		a.Logger.Info().Msg("WebSocket connections closed")
	}

	// Close event service
	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	// Close LLM service and its audit trail
	if a.LLMService != nil {
		if err := a.LLMService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close LLM service")
		} else {
			a.Logger.Info().Msg("LLM service closed")
		}
	}
	if a.LLMAudit != nil {
		if err := a.LLMAudit.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close LLM audit logger")
		}
	}

	// Close storage
	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}

// Context returns the application lifetime context. It is cancelled when
// Close runs, background work should derive from it.
func (a *App) Context() context.Context {
	return a.ctx
}
