package planning

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/catalog"
	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/models"
)

// MockLLMService is a scripted LLMService for planner tests
type MockLLMService struct {
	invokeFunc     func(ctx context.Context, messages []interfaces.Message) (string, error)
	invokeJSONFunc func(ctx context.Context, messages []interfaces.Message) (string, error)
	calls          int
}

func (m *MockLLMService) Invoke(ctx context.Context, messages []interfaces.Message) (string, error) {
	m.calls++
	if m.invokeFunc != nil {
		return m.invokeFunc(ctx, messages)
	}
	return "mock response", nil
}

func (m *MockLLMService) InvokeJSON(ctx context.Context, messages []interfaces.Message) (string, error) {
	m.calls++
	if m.invokeJSONFunc != nil {
		return m.invokeJSONFunc(ctx, messages)
	}
	return "{}", nil
}

func (m *MockLLMService) ModelName() string { return "mock-model" }

func (m *MockLLMService) Close() error { return nil }

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Load()
	require.NoError(t, err)
	return cat
}

func testCompany() models.CompanyInfo {
	return models.CompanyInfo{
		Name:                "示例科技股份有限公司",
		Industry:            "半导体",
		AnalysisPerspective: "股权投资",
	}
}

func TestPlanRoutePromptContents(t *testing.T) {
	var captured string
	mock := &MockLLMService{
		invokeJSONFunc: func(ctx context.Context, messages []interfaces.Message) (string, error) {
			captured = messages[0].Content
			return `{"planned_modules": ["1.1 波特五力模型"], "planning_reasoning": "理由"}`, nil
		},
	}
	planner := NewRoutePlanner(mock, testCatalog(t), arbor.NewLogger())

	planner.PlanRoute(context.Background(), testCompany(), "宏观经济平稳。")

	assert.Contains(t, captured, "公司名称: 示例科技股份有限公司")
	assert.Contains(t, captured, "所属行业: 半导体")
	assert.Contains(t, captured, "分析角度: 股权投资")
	assert.Contains(t, captured, "宏观经济平稳。")
	assert.Contains(t, captured, "- 1.1 波特五力模型")
	assert.Contains(t, captured, "- 7.6 基于账面价值的估值")
	assert.Contains(t, captured, "planned_modules")
	assert.Contains(t, captured, "planning_reasoning")
}

func TestPlanRouteTruncatesLongMacroConclusion(t *testing.T) {
	var captured string
	mock := &MockLLMService{
		invokeJSONFunc: func(ctx context.Context, messages []interfaces.Message) (string, error) {
			captured = messages[0].Content
			return `{"planned_modules": ["1.1 波特五力模型"]}`, nil
		},
	}
	planner := NewRoutePlanner(mock, testCatalog(t), arbor.NewLogger())

	planner.PlanRoute(context.Background(), testCompany(), strings.Repeat("宏", 1500))

	assert.Contains(t, captured, strings.Repeat("宏", 1000)+"...")
	assert.NotContains(t, captured, strings.Repeat("宏", 1001))
}

func TestPlanRouteShortMacroNotSuffixed(t *testing.T) {
	var captured string
	mock := &MockLLMService{
		invokeJSONFunc: func(ctx context.Context, messages []interfaces.Message) (string, error) {
			captured = messages[0].Content
			return `{"planned_modules": ["1.1 波特五力模型"]}`, nil
		},
	}
	planner := NewRoutePlanner(mock, testCatalog(t), arbor.NewLogger())

	planner.PlanRoute(context.Background(), testCompany(), "短结论")
	assert.Contains(t, captured, "短结论")
	assert.NotContains(t, captured, "短结论...")
}

func TestPlanRouteSuccess(t *testing.T) {
	mock := &MockLLMService{
		invokeJSONFunc: func(ctx context.Context, messages []interfaces.Message) (string, error) {
			return `{"planned_modules": ["2.1 综合比率分析", "1.1 波特五力模型"], "planning_reasoning": "先比率后竞争格局。"}`, nil
		},
	}
	planner := NewRoutePlanner(mock, testCatalog(t), arbor.NewLogger())

	plan := planner.PlanRoute(context.Background(), testCompany(), "")
	assert.Equal(t, []string{"2.1 综合比率分析", "1.1 波特五力模型"}, plan.PlannedModules)
	assert.Equal(t, "先比率后竞争格局。", plan.PlanningReasoning)
}

func TestPlanRouteFiltersUnknownModules(t *testing.T) {
	mock := &MockLLMService{
		invokeJSONFunc: func(ctx context.Context, messages []interfaces.Message) (string, error) {
			return `{"planned_modules": ["1.1 波特五力模型", "9.9 不存在的模块"], "planning_reasoning": "理由"}`, nil
		},
	}
	planner := NewRoutePlanner(mock, testCatalog(t), arbor.NewLogger())

	plan := planner.PlanRoute(context.Background(), testCompany(), "")
	assert.Equal(t, []string{"1.1 波特五力模型"}, plan.PlannedModules)
	assert.Equal(t, "理由", plan.PlanningReasoning)
}

func TestPlanRouteFallbacks(t *testing.T) {
	cat := testCatalog(t)
	allModules := cat.AllModules()

	tests := []struct {
		name              string
		response          string
		err               error
		expectedReasoning string
	}{
		{
			name:              "all modules unknown",
			response:          `{"planned_modules": ["9.1 未知模块", "9.2 未知模块"]}`,
			expectedReasoning: ReasoningInvalidModules,
		},
		{
			name:              "empty module list",
			response:          `{"planned_modules": []}`,
			expectedReasoning: ReasoningBadFormat,
		},
		{
			name:              "non-list module value",
			response:          `{"planned_modules": "1.1 波特五力模型"}`,
			expectedReasoning: ReasoningBadFormat,
		},
		{
			name:              "non-string elements",
			response:          `{"planned_modules": ["1.1 波特五力模型", 7]}`,
			expectedReasoning: ReasoningBadFormat,
		},
		{
			name:              "missing module key",
			response:          `{"planning_reasoning": "只有理由"}`,
			expectedReasoning: ReasoningBadFormat,
		},
		{
			name:              "not JSON",
			response:          "我无法以JSON回答。",
			expectedReasoning: ReasoningNotJSON,
		},
		{
			name:              "invocation failure",
			err:               errors.New("provider down"),
			expectedReasoning: "AI规划器执行出错 (provider down)，已采用所有预定义模块作为后备计划。",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &MockLLMService{
				invokeJSONFunc: func(ctx context.Context, messages []interfaces.Message) (string, error) {
					return tt.response, tt.err
				},
			}
			planner := NewRoutePlanner(mock, cat, arbor.NewLogger())

			plan := planner.PlanRoute(context.Background(), testCompany(), "")
			assert.Equal(t, allModules, plan.PlannedModules)
			assert.Equal(t, tt.expectedReasoning, plan.PlanningReasoning)
		})
	}
}

func TestPlanRouteMissingReasoningDefaulted(t *testing.T) {
	mock := &MockLLMService{
		invokeJSONFunc: func(ctx context.Context, messages []interfaces.Message) (string, error) {
			return `{"planned_modules": ["1.1 波特五力模型"]}`, nil
		},
	}
	planner := NewRoutePlanner(mock, testCatalog(t), arbor.NewLogger())

	plan := planner.PlanRoute(context.Background(), testCompany(), "")
	assert.Equal(t, ReasoningMissing, plan.PlanningReasoning)
}

func TestPlanRouteFencedResponse(t *testing.T) {
	mock := &MockLLMService{
		invokeJSONFunc: func(ctx context.Context, messages []interfaces.Message) (string, error) {
			return "```json\n{\"planned_modules\": [\"2.2 杜邦分析\"], \"planning_reasoning\": \"聚焦回报率。\"}\n```", nil
		},
	}
	planner := NewRoutePlanner(mock, testCatalog(t), arbor.NewLogger())

	plan := planner.PlanRoute(context.Background(), testCompany(), "")
	assert.Equal(t, []string{"2.2 杜邦分析"}, plan.PlannedModules)
}
