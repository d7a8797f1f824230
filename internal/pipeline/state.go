package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/aestimo/internal/models"
)

// setState transitions the run, persists it and broadcasts the change.
func (p *Pipeline) setState(ctx context.Context, run *models.AnalysisRun, state models.RunState, percent int) {
	run.Transition(state)
	p.saveRun(run)
	p.publish(ctx, models.ProgressEvent{
		Type:      models.EventRunStateChanged,
		RunID:     run.ID,
		Message:   string(state),
		Percent:   percent,
		Timestamp: time.Now(),
	})
}

// fail marks the run failed with the error text and returns the error for
// the caller to propagate.
func (p *Pipeline) fail(ctx context.Context, run *models.AnalysisRun, err error) error {
	run.Error = err.Error()
	run.Transition(models.RunStateFailed)
	p.saveRun(run)
	p.publish(ctx, models.ProgressEvent{
		Type:      models.EventRunStateChanged,
		RunID:     run.ID,
		Message:   run.Error,
		Percent:   0,
		Timestamp: time.Now(),
	})
	p.logger.Error().Err(err).Str("run_id", run.ID).Msg("Analysis run failed")
	return err
}

// saveRun persists the run record. Run records are observability state; a
// failed save is logged but never aborts the pipeline, unlike workpaper
// persistence.
func (p *Pipeline) saveRun(run *models.AnalysisRun) {
	if err := p.runs.Save(run); err != nil {
		p.logger.Error().Err(err).Str("run_id", run.ID).Msg("Failed to persist run record")
	}
}

func (p *Pipeline) publish(ctx context.Context, event models.ProgressEvent) {
	if p.events == nil {
		return
	}
	p.events.Publish(ctx, event)
}

// progress is the share of planned modules with stored outputs, capped at
// 100 when outputs from an earlier, broader plan exceed the current one.
func (p *Pipeline) progress(wp *models.Workpaper) int {
	total := len(p.modulesForRun(wp))
	if total == 0 {
		return 100
	}
	pct := len(wp.ModuleOutputs) * 100 / total
	if pct > 100 {
		pct = 100
	}
	return pct
}

// modulesForRun returns the ordered execution plan: the stored planner
// selection when one exists, otherwise the full framework.
func (p *Pipeline) modulesForRun(wp *models.Workpaper) []string {
	if len(wp.Metadata.PlannedModules) > 0 {
		known, dropped := p.catalog.FilterKnown(wp.Metadata.PlannedModules)
		if len(dropped) > 0 {
			p.logger.Warn().
				Str("modules", strings.Join(dropped, ", ")).
				Msg("Stored plan references unknown modules, dropping them")
		}
		if len(known) > 0 {
			return known
		}
	}
	return p.catalog.AllModules()
}

// docsSummary describes the preprocessed supplementary documents per
// reporting period, as shown to the information-needs planner.
func docsSummary(wp *models.Workpaper) string {
	var b strings.Builder
	b.WriteString("当前已加载的、可供提取详细信息的文档包括：\n")
	for _, rep := range wp.Reports {
		b.WriteString("- 报告期: " + rep.PeriodLabel + ": ")
		var parts []string
		if n := len(rep.FootnotesChunks); n > 0 {
			parts = append(parts, fmt.Sprintf("财务报表附注 (共 %d 块)", n))
		}
		if n := len(rep.MDAChunks); n > 0 {
			parts = append(parts, fmt.Sprintf("管理层讨论与分析 (共 %d 块)", n))
		}
		if len(parts) == 0 {
			b.WriteString("无已处理的补充文档分块")
		} else {
			b.WriteString(strings.Join(parts, ", "))
		}
		b.WriteString("\n")
	}
	return b.String()
}
