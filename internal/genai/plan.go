package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chiclooc-rgb/card-news-generator/internal/corpus"
	"github.com/chiclooc-rgb/card-news-generator/internal/plan"
	"github.com/chiclooc-rgb/card-news-generator/internal/telemetry"
)

const (
	// MaxPlanContentLength is the number of document characters sent for planning.
	MaxPlanContentLength = 8000

	planTemperature     = 0.7
	planMaxOutputTokens = 4096
)

// DetailLevel controls how aggressively plan generation condenses a document.
type DetailLevel string

const (
	DetailDetailed DetailLevel = "detailed"
	DetailSimple   DetailLevel = "simple"
)

// PlanRequest is the input to plan generation.
type PlanRequest struct {
	Content     string
	DetailLevel DetailLevel
	Examples    []corpus.ReferenceItem
}

// planExample is the subset of reference fields shown to the planner.
type planExample struct {
	PageType         string `json:"page_type"`
	MainTitle        string `json:"main_title"`
	ToneAndManner    string `json:"tone_and_manner"`
	VisualVibe       string `json:"visual_vibe"`
	LayoutFeature    string `json:"layout_feature"`
	ColorPaletteFeel string `json:"color_palette_feel"`
}

// BuildPlanPrompt assembles the planning prompt for req.
func BuildPlanPrompt(req PlanRequest) string {
	exampleText := "예시 없음"
	if len(req.Examples) > 0 {
		lines := make([]string, 0, len(req.Examples))
		for _, ex := range req.Examples {
			raw, err := json.Marshal(planExample{
				PageType:         ex.PageType,
				MainTitle:        ex.MainTitle,
				ToneAndManner:    ex.ToneAndManner,
				VisualVibe:       ex.VisualVibe,
				LayoutFeature:    ex.LayoutFeature,
				ColorPaletteFeel: ex.ColorPaletteFeel,
			})
			if err != nil {
				continue
			}
			lines = append(lines, string(raw))
		}
		exampleText = strings.Join(lines, "\n")
	}

	structureInstr := "1. **구조 판단:** 내용을 최대한 압축하여 SINGLE(1장) 또는 간단한 MULTI로 제한하세요."
	contentInstr := "2. **내용 요약:** 매우 간단하고 임팩트 있게 요약하세요."
	if req.DetailLevel == DetailDetailed {
		structureInstr = "1. **구조 판단:** 내용이 단순하면 SINGLE, 복잡하면 MULTI 구조로 판단하세요."
		contentInstr = "2. **내용 요약:** 핵심 정보를 누락 없이 요약하세요."
	}

	return fmt.Sprintf(`당신은 홍보팀 수석 카드뉴스 기획자입니다.
제공된 공고문을 정밀하게 분석하세요.

[참고할 스타일 예시]
%s

[분석할 공고문]
%s

[지시사항]
%s
%s
3. **출력 형식:** 반드시 아래 JSON 형식으로만 출력하세요.

{
  "structure_type": "MULTI",
  "plan": {
    "cover": { "main_title": "...", "sub_title": "..." },
    "body": [ { "page": 1, "summary": ["핵심 메시지 1", "핵심 메시지 2"] } ],
    "outro": { "contact": "문의처 정보" }
  },
  "estimated_tone": "톤앤매너 설명",
  "design_concepts": [
    {"name": "컨셉 1 이름", "description": "컨셉 1 설명 (색상, 분위기, 레이아웃 스타일 등)"},
    {"name": "컨셉 2 이름", "description": "컨셉 2 설명"},
    {"name": "컨셉 3 이름", "description": "컨셉 3 설명"}
  ]
}`, exampleText, truncateRunes(req.Content, MaxPlanContentLength), structureInstr, contentInstr)
}

// GeneratePlan asks the plan model to turn a document into a card-news plan.
func (c *Client) GeneratePlan(ctx context.Context, req PlanRequest) (p *plan.Plan, err error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, fmt.Errorf("genai: document content is required")
	}

	start := time.Now()
	defer func() {
		c.record(telemetry.MetricAPICallsPlan, telemetry.MetricResponseTimePlan, start, err)
	}()

	temperature := planTemperature
	body := GenerateRequest{
		Contents: []Content{{
			Parts: []Part{{Text: BuildPlanPrompt(req)}},
		}},
		GenerationConfig: GenerationConfig{
			Temperature:      &temperature,
			MaxOutputTokens:  planMaxOutputTokens,
			ResponseMimeType: "application/json",
		},
	}

	var resp GenerateResponse
	if err := c.post(ctx, c.PlanModel, "generateContent", body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Candidates) == 0 ||
		len(resp.Candidates[0].Content.Parts) == 0 ||
		resp.Candidates[0].Content.Parts[0].Text == "" {
		return nil, ErrEmptyResponse
	}

	return plan.Parse([]byte(resp.Candidates[0].Content.Parts[0].Text))
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
