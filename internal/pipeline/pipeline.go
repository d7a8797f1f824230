// Package pipeline drives one analysis run end to end: document
// preprocessing, optional AI route planning, per-module information needs,
// strictly sequential module execution with conclusion integration after
// every completed module, and the final consolidation, summary and report
// pass. The workpaper carries all resume state; a new run over the same
// workpaper picks up at the first module without a stored output.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/catalog"
	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/models"
	"github.com/ternarybob/aestimo/internal/services/analysis"
	"github.com/ternarybob/aestimo/internal/services/chunking"
	"github.com/ternarybob/aestimo/internal/services/integration"
	"github.com/ternarybob/aestimo/internal/services/planning"
	"github.com/ternarybob/aestimo/internal/services/report"
)

// PlannerEmptyNotice is surfaced when AI route planning returned no modules
// and the run falls back to the full framework.
const PlannerEmptyNotice = "AI规划模块列表为空，将为所有预定义模块规划信息需求。"

// Deps bundles the collaborators of a pipeline. Catalog, Engine,
// Preprocessor, Integrator, Consolidator, Report, Workpapers and Runs are
// required. RoutePlanner and NeedsPlanner may be nil when AI planning is
// unavailable, Events may be nil to disable progress publishing, and LLM is
// only consulted for run metadata.
type Deps struct {
	Catalog      *catalog.Catalog
	LLM          interfaces.LLMService
	RoutePlanner *planning.RoutePlanner
	NeedsPlanner *planning.NeedsPlanner
	Preprocessor *chunking.Preprocessor
	Engine       *analysis.Engine
	Integrator   *integration.Integrator
	Consolidator *integration.Consolidator
	Report       *report.Service
	Events       interfaces.EventService
	Workpapers   interfaces.WorkpaperStorage
	Runs         interfaces.RunStorage
	Logger       arbor.ILogger
}

func (d Deps) validate() error {
	switch {
	case d.Catalog == nil:
		return fmt.Errorf("pipeline requires a catalog")
	case d.Engine == nil:
		return fmt.Errorf("pipeline requires an analysis engine")
	case d.Preprocessor == nil:
		return fmt.Errorf("pipeline requires a document preprocessor")
	case d.Integrator == nil:
		return fmt.Errorf("pipeline requires a conclusion integrator")
	case d.Consolidator == nil:
		return fmt.Errorf("pipeline requires a risk consolidator")
	case d.Report == nil:
		return fmt.Errorf("pipeline requires a report service")
	case d.Workpapers == nil:
		return fmt.Errorf("pipeline requires workpaper storage")
	case d.Runs == nil:
		return fmt.Errorf("pipeline requires run storage")
	}
	return nil
}

// Pipeline orchestrates analysis runs.
type Pipeline struct {
	catalog      *catalog.Catalog
	llm          interfaces.LLMService
	route        *planning.RoutePlanner
	needs        *planning.NeedsPlanner
	preprocessor *chunking.Preprocessor
	engine       *analysis.Engine
	integrator   *integration.Integrator
	consolidator *integration.Consolidator
	report       *report.Service
	events       interfaces.EventService
	workpapers   interfaces.WorkpaperStorage
	runs         interfaces.RunStorage
	logger       arbor.ILogger
}

// New creates a pipeline from its dependencies.
func New(deps Deps) (*Pipeline, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = arbor.NewLogger()
	}
	return &Pipeline{
		catalog:      deps.Catalog,
		llm:          deps.LLM,
		route:        deps.RoutePlanner,
		needs:        deps.NeedsPlanner,
		preprocessor: deps.Preprocessor,
		engine:       deps.Engine,
		integrator:   deps.Integrator,
		consolidator: deps.Consolidator,
		report:       deps.Report,
		events:       deps.Events,
		workpapers:   deps.Workpapers,
		runs:         deps.Runs,
		logger:       logger,
	}, nil
}

// Run executes or resumes the analysis for the workpaper under a fresh run
// record. Per-module failures are recorded on the workpaper and the run
// continues; only persistence failures and context cancellation fail the run.
func (p *Pipeline) Run(ctx context.Context, workpaperID string) (*models.AnalysisRun, error) {
	wp, err := p.workpapers.Get(workpaperID)
	if err != nil {
		return nil, fmt.Errorf("load workpaper %s: %w", workpaperID, err)
	}

	run := models.NewAnalysisRun(common.NewRunID(), workpaperID)
	p.saveRun(run)
	p.logger.Info().
		Str("run_id", run.ID).
		Str("workpaper_id", workpaperID).
		Str("company", wp.Company.Name).
		Msg("Analysis run starting")

	if err := p.prepare(ctx, run, wp); err != nil {
		return run, p.fail(ctx, run, err)
	}

	plan := p.modulesForRun(wp)
	if err := p.executeModules(ctx, run, wp, plan); err != nil {
		return run, p.fail(ctx, run, err)
	}

	if err := p.finish(ctx, run, wp); err != nil {
		return run, p.fail(ctx, run, err)
	}

	p.setState(ctx, run, models.RunStateDone, 100)
	p.logger.Info().
		Str("run_id", run.ID).
		Int("modules", len(wp.ModuleOutputs)).
		Msg("Analysis run completed")
	return run, nil
}

// prepare chunks unprocessed documents and, on the first run over a
// workpaper, plans the module route and per-module information needs.
func (p *Pipeline) prepare(ctx context.Context, run *models.AnalysisRun, wp *models.Workpaper) error {
	p.setState(ctx, run, models.RunStatePlanning, p.progress(wp))

	p.preprocessDocuments(ctx, run.ID, wp)

	if wp.Metadata.NeedsByModule == nil {
		p.plan(ctx, run, wp)
	} else {
		p.logger.Info().
			Str("run_id", run.ID).
			Msg("Reusing stored plan and information needs")
	}

	wp.UpdatedAt = time.Now().UTC()
	if err := p.workpapers.Save(wp); err != nil {
		return fmt.Errorf("persist workpaper after planning: %w", err)
	}
	return nil
}

// plan stamps the run metadata, consults the AI route planner when the
// workpaper enables it, and plans information needs for the resulting module
// list.
func (p *Pipeline) plan(ctx context.Context, run *models.AnalysisRun, wp *models.Workpaper) {
	wp.Metadata.AnalysisTimestamp = time.Now().UTC().Format(time.RFC3339)
	if p.llm != nil {
		wp.Metadata.ModelUsed = p.llm.ModelName()
	}

	modules := p.catalog.AllModules()
	planMessage := ""
	if wp.Company.PlannerEnabled && p.route != nil {
		routePlan := p.route.PlanRoute(ctx, wp.Company, wp.Company.MacroConclusion)
		wp.Metadata.PlanningReasoning = routePlan.PlanningReasoning
		if len(routePlan.PlannedModules) == 0 {
			p.logger.Warn().
				Str("run_id", run.ID).
				Msg("AI route plan is empty, planning needs for the full framework")
			planMessage = PlannerEmptyNotice
		} else {
			modules = routePlan.PlannedModules
			wp.Metadata.PlannedModules = routePlan.PlannedModules
		}
	}

	if p.needs != nil {
		wp.Metadata.NeedsByModule = p.needs.PlanNeeds(ctx, modules, wp.Company,
			wp.Company.MacroConclusion, wp.Company.IndustryConclusion, docsSummary(wp))
	} else {
		wp.Metadata.NeedsByModule = map[string]models.InformationNeeds{}
	}

	if planMessage == "" {
		planMessage = fmt.Sprintf("Planned %d modules with information needs", len(modules))
	}
	p.publish(ctx, models.ProgressEvent{
		Type:      models.EventPlanReady,
		RunID:     run.ID,
		Message:   planMessage,
		Percent:   p.progress(wp),
		Timestamp: time.Now(),
	})
}

// preprocessDocuments chunks any supplementary document that has text but no
// stored chunks yet. Texts starting with a read-error sentinel are skipped;
// other sentinel texts (unsupported type, empty PDF) still flow through
// chunking like the documents they replaced.
func (p *Pipeline) preprocessDocuments(ctx context.Context, runID string, wp *models.Workpaper) {
	for i := range wp.Reports {
		rep := &wp.Reports[i]
		if shouldChunk(rep.FootnotesText, rep.FootnotesChunks) {
			rep.FootnotesChunks = p.preprocessor.Process(ctx, runID, models.DocTypeFootnotes, rep.PeriodLabel, rep.FootnotesText)
		}
		if shouldChunk(rep.MDAText, rep.MDAChunks) {
			rep.MDAChunks = p.preprocessor.Process(ctx, runID, models.DocTypeMDA, rep.PeriodLabel, rep.MDAText)
		}
	}
}

func shouldChunk(text string, chunks []models.DocumentChunk) bool {
	return len(chunks) == 0 && text != "" && !strings.HasPrefix(text, "Error")
}

// executeModules runs every planned module that has no stored output yet,
// strictly in plan order, persisting the workpaper after each module.
func (p *Pipeline) executeModules(ctx context.Context, run *models.AnalysisRun, wp *models.Workpaper, plan []string) error {
	for _, moduleName := range plan {
		if _, exists := wp.ModuleOutputs[moduleName]; exists {
			p.logger.Debug().
				Str("module", moduleName).
				Msg("Module already has a stored output, skipping")
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		run.Transition(models.RunStateRunningModule)
		run.CurrentModule = moduleName
		p.saveRun(run)
		p.publish(ctx, models.ProgressEvent{
			Type:      models.EventModuleStarted,
			RunID:     run.ID,
			Module:    moduleName,
			Percent:   p.progress(wp),
			Timestamp: time.Now(),
		})

		output := p.executeModule(ctx, wp, moduleName)
		wp.ModuleOutputs[moduleName] = output

		if moduleName == analysis.PorterFiveForcesModule && output.Status == models.ModuleStatusCompleted {
			p.updateIndustryConclusion(ctx, wp, output)
		}

		if output.Status == models.ModuleStatusCompleted {
			p.integrate(ctx, run, wp, moduleName, output)
		}

		wp.UpdatedAt = time.Now().UTC()
		if err := p.workpapers.Save(wp); err != nil {
			return fmt.Errorf("persist workpaper after module %s: %w", moduleName, err)
		}

		p.publish(ctx, models.ProgressEvent{
			Type:      models.EventModuleCompleted,
			RunID:     run.ID,
			Module:    moduleName,
			Message:   string(output.Status),
			Percent:   p.progress(wp),
			Timestamp: time.Now(),
		})
	}
	return nil
}

// executeModule isolates one module execution; a panic degrades to an Error
// output instead of killing the run.
func (p *Pipeline) executeModule(ctx context.Context, wp *models.Workpaper, moduleName string) (output *models.ModuleOutput) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().
				Str("module", moduleName).
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("Module execution panicked")
			output = &models.ModuleOutput{
				TextSummary:     fmt.Sprintf("分析执行失败: %v", r),
				ConfidenceScore: models.ConfidenceExecFailure,
				Status:          models.ModuleStatusError,
				Timestamp:       time.Now().UTC(),
			}
		}
	}()
	return p.engine.RunModule(ctx, wp, moduleName)
}

// updateIndustryConclusion condenses a completed Porter-five-forces analysis
// into the industry conclusion injected into every later module context. The
// summary doubles as the module's abbreviated summary.
func (p *Pipeline) updateIndustryConclusion(ctx context.Context, wp *models.Workpaper, output *models.ModuleOutput) {
	summary, err := p.engine.SummarizeIndustryConclusion(ctx, output.TextSummary)
	if err != nil {
		p.logger.Error().Err(err).Msg("Industry conclusion summarization failed")
		wp.Company.IndustryConclusion = analysis.IndustryConclusionFailed
		return
	}
	wp.Company.IndustryConclusion = summary
	output.AbbreviatedSummary = summary
	p.logger.Info().
		Int("chars", common.RuneLen(summary)).
		Msg("Industry conclusion updated from Porter analysis")
}

// integrate folds one completed module finding into the overall conclusion
// and publishes any newly logged contradiction.
func (p *Pipeline) integrate(ctx context.Context, run *models.AnalysisRun, wp *models.Workpaper, moduleName string, output *models.ModuleOutput) {
	run.Transition(models.RunStateIntegrating)
	p.saveRun(run)

	before := len(wp.Insights.ContradictionLog)
	p.integrator.IntegrateFinding(ctx, &wp.Insights, moduleName, output.TextSummary, output.ConfidenceScore)

	if len(wp.Insights.ContradictionLog) > before {
		entry := wp.Insights.ContradictionLog[len(wp.Insights.ContradictionLog)-1]
		p.publish(ctx, models.ProgressEvent{
			Type:      models.EventContradictionFound,
			RunID:     run.ID,
			Module:    moduleName,
			Message:   entry.Description,
			Percent:   p.progress(wp),
			Timestamp: time.Now(),
		})
	}
}

// finish consolidates risks and opportunities, generates the final overall
// summary and writes the HTML report. Summary and report failures are logged
// without failing the run; the workpaper already holds every module result.
func (p *Pipeline) finish(ctx context.Context, run *models.AnalysisRun, wp *models.Workpaper) error {
	p.setState(ctx, run, models.RunStateConsolidating, p.progress(wp))

	p.consolidator.ConsolidateRisks(ctx, wp)

	summary, err := p.engine.GenerateFinalSummary(ctx, wp)
	if err != nil {
		p.logger.Error().Err(err).Str("run_id", run.ID).Msg("Final summary generation failed")
	} else {
		wp.Insights.OverallSummary = summary
	}

	wp.UpdatedAt = time.Now().UTC()
	if err := p.workpapers.Save(wp); err != nil {
		return fmt.Errorf("persist workpaper after consolidation: %w", err)
	}

	path, err := p.report.Generate(wp, run.ID)
	if err != nil {
		p.logger.Error().Err(err).Str("run_id", run.ID).Msg("Report generation failed")
		return nil
	}

	p.publish(ctx, models.ProgressEvent{
		Type:      models.EventReportReady,
		RunID:     run.ID,
		Message:   path,
		Percent:   100,
		Timestamp: time.Now(),
	})
	return nil
}
