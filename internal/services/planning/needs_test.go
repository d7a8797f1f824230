package planning

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/models"
)

func TestPlanNeedsNoModules(t *testing.T) {
	mock := &MockLLMService{}
	planner := NewNeedsPlanner(mock, testCatalog(t), arbor.NewLogger())

	needs := planner.PlanNeeds(context.Background(), nil, testCompany(), "", "", "")
	assert.Empty(t, needs)
	assert.Zero(t, mock.calls)
}

func TestPlanNeedsPromptContents(t *testing.T) {
	var captured string
	mock := &MockLLMService{
		invokeJSONFunc: func(ctx context.Context, messages []interfaces.Message) (string, error) {
			captured = messages[0].Content
			return "{}", nil
		},
	}
	planner := NewNeedsPlanner(mock, testCatalog(t), arbor.NewLogger())

	modules := []string{"1.1 波特五力模型", "2.1 综合比率分析"}
	planner.PlanNeeds(context.Background(), modules, testCompany(),
		strings.Repeat("宏", 1200), "行业竞争激烈。", "当前已加载文档：2023 Annual")

	assert.Contains(t, captured, "公司名称: 示例科技股份有限公司")
	assert.Contains(t, captured, strings.Repeat("宏", 1000)+"...")
	assert.NotContains(t, captured, strings.Repeat("宏", 1001))
	assert.Contains(t, captured, "行业竞争激烈。...")
	assert.Contains(t, captured, "当前已加载文档：2023 Annual")
	assert.Contains(t, captured, "- **1.1 波特五力模型**: 评估行业竞争强度与公司竞争地位的五力分析...")
	assert.Contains(t, captured, "- **2.1 综合比率分析**: ")
	assert.Contains(t, captured, "search_queries")
	assert.Contains(t, captured, "document_extractions")
}

func TestPlanNeedsParsesValidResponse(t *testing.T) {
	mock := &MockLLMService{
		invokeJSONFunc: func(ctx context.Context, messages []interfaces.Message) (string, error) {
			return `{
				"1.1 波特五力模型": {
					"search_queries": ["半导体行业集中度 2023"],
					"document_extractions": [
						{"document_type": "mda", "period_label": "2023 Annual", "analysis_context": "管理层对行业竞争格局的看法"}
					]
				},
				"2.1 综合比率分析": {
					"search_queries": [],
					"document_extractions": []
				}
			}`, nil
		},
	}
	planner := NewNeedsPlanner(mock, testCatalog(t), arbor.NewLogger())

	needs := planner.PlanNeeds(context.Background(), []string{"1.1 波特五力模型", "2.1 综合比率分析"}, testCompany(), "", "", "")
	require.Len(t, needs, 2)

	porter := needs["1.1 波特五力模型"]
	assert.Equal(t, []string{"半导体行业集中度 2023"}, porter.SearchQueries)
	require.Len(t, porter.DocumentExtractions, 1)
	assert.Equal(t, "mda", porter.DocumentExtractions[0].DocumentType)
	assert.Equal(t, "2023 Annual", porter.DocumentExtractions[0].PeriodLabel)
	assert.Equal(t, "管理层对行业竞争格局的看法", porter.DocumentExtractions[0].AnalysisContext)

	ratios := needs["2.1 综合比率分析"]
	assert.Empty(t, ratios.SearchQueries)
	assert.Empty(t, ratios.DocumentExtractions)
}

func TestPlanNeedsModuleMissingFromResponse(t *testing.T) {
	mock := &MockLLMService{
		invokeJSONFunc: func(ctx context.Context, messages []interfaces.Message) (string, error) {
			return `{"1.1 波特五力模型": {"search_queries": ["q"], "document_extractions": []}}`, nil
		},
	}
	planner := NewNeedsPlanner(mock, testCatalog(t), arbor.NewLogger())

	needs := planner.PlanNeeds(context.Background(), []string{"1.1 波特五力模型", "2.2 杜邦分析"}, testCompany(), "", "", "")
	require.Len(t, needs, 2)
	assert.Equal(t, []string{"q"}, needs["1.1 波特五力模型"].SearchQueries)
	assert.Equal(t, models.EmptyNeeds(), needs["2.2 杜邦分析"])
}

func TestPlanNeedsDropsMalformedEntries(t *testing.T) {
	mock := &MockLLMService{
		invokeJSONFunc: func(ctx context.Context, messages []interfaces.Message) (string, error) {
			return `{
				"1.1 波特五力模型": {
					"search_queries": ["有效查询", 42, null],
					"document_extractions": [
						{"document_type": "footnotes", "period_label": "2023 Annual", "analysis_context": "客户集中度"},
						{"document_type": "footnotes", "period_label": "2023 Annual"},
						{"document_type": "footnotes", "period_label": 2023, "analysis_context": "类型错误"},
						"不是对象"
					]
				}
			}`, nil
		},
	}
	planner := NewNeedsPlanner(mock, testCatalog(t), arbor.NewLogger())

	needs := planner.PlanNeeds(context.Background(), []string{"1.1 波特五力模型"}, testCompany(), "", "", "")
	porter := needs["1.1 波特五力模型"]

	assert.Equal(t, []string{"有效查询"}, porter.SearchQueries)
	require.Len(t, porter.DocumentExtractions, 1)
	assert.Equal(t, "客户集中度", porter.DocumentExtractions[0].AnalysisContext)
}

func TestPlanNeedsModuleValueNotObject(t *testing.T) {
	mock := &MockLLMService{
		invokeJSONFunc: func(ctx context.Context, messages []interfaces.Message) (string, error) {
			return `{"1.1 波特五力模型": ["不是对象"]}`, nil
		},
	}
	planner := NewNeedsPlanner(mock, testCatalog(t), arbor.NewLogger())

	needs := planner.PlanNeeds(context.Background(), []string{"1.1 波特五力模型"}, testCompany(), "", "", "")
	assert.Equal(t, models.EmptyNeeds(), needs["1.1 波特五力模型"])
}

func TestPlanNeedsTotalFailuresDefaultAllModules(t *testing.T) {
	modules := []string{"1.1 波特五力模型", "2.1 综合比率分析"}

	tests := []struct {
		name     string
		response string
		err      error
	}{
		{name: "not JSON", response: "无法规划。"},
		{name: "invocation failure", err: errors.New("provider down")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &MockLLMService{
				invokeJSONFunc: func(ctx context.Context, messages []interfaces.Message) (string, error) {
					return tt.response, tt.err
				},
			}
			planner := NewNeedsPlanner(mock, testCatalog(t), arbor.NewLogger())

			needs := planner.PlanNeeds(context.Background(), modules, testCompany(), "", "", "")
			require.Len(t, needs, 2)
			for _, name := range modules {
				assert.Equal(t, models.EmptyNeeds(), needs[name])
			}
		})
	}
}
