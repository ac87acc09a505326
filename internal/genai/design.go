package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/chiclooc-rgb/card-news-generator/internal/plan"
	"github.com/chiclooc-rgb/card-news-generator/internal/telemetry"
)

const (
	// DefaultAspectRatio is used for empty or unknown ratios.
	DefaultAspectRatio = "4:5"

	// MaxReferenceImages is how many reference images are inlined per request.
	MaxReferenceImages = 2

	maxInlineImageBytes = 20 << 20
)

// Size is an output image size in pixels.
type Size struct {
	Width  int
	Height int
}

var sizes = map[string]Size{
	"4:5":  {Width: 1080, Height: 1350},
	"1:1":  {Width: 1080, Height: 1080},
	"9:16": {Width: 1080, Height: 1920},
}

// NormalizeAspectRatio returns ratio when it is supported, else DefaultAspectRatio.
func NormalizeAspectRatio(ratio string) string {
	if _, ok := sizes[ratio]; ok {
		return ratio
	}
	return DefaultAspectRatio
}

// ImageSize returns the output size for an aspect ratio.
func ImageSize(ratio string) Size {
	return sizes[NormalizeAspectRatio(ratio)]
}

// DesignRequest is everything the design model needs to render one page.
type DesignRequest struct {
	PageType    plan.PageType
	Content     json.RawMessage
	Concept     plan.DesignConcept
	AspectRatio string
	Feedback    string
	RefURLs     []string
	Palette     string
}

// ContentText renders page content for the prompt: strings verbatim,
// structured values as indented JSON.
func ContentText(content json.RawMessage) string {
	trimmed := bytes.TrimSpace(content)
	if len(trimmed) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		return s
	}

	if trimmed[0] == '{' || trimmed[0] == '[' {
		var buf bytes.Buffer
		if err := json.Indent(&buf, trimmed, "", "  "); err == nil {
			return buf.String()
		}
	}
	return string(trimmed)
}

// BuildDesignPrompt assembles the text prompt for a design request. The
// characters are those whose images were successfully inlined.
func (c *Client) BuildDesignPrompt(req DesignRequest, characters []Character) string {
	ratio := NormalizeAspectRatio(req.AspectRatio)
	size := ImageSize(ratio)
	contentText := ContentText(req.Content)

	var lines []string
	lines = append(lines, "당신은 전문 카드뉴스 디자이너입니다.")
	lines = append(lines, "제공된 참조 이미지들의 스타일과 레이아웃을 반영하여, 아래 텍스트 내용을 담은 새로운 카드뉴스 이미지를 만들어주세요.")

	for _, r := range c.Restrictions {
		lines = append(lines, fmt.Sprintf("**[🚨 금지사항]** %s", r))
	}

	lines = append(lines, fmt.Sprintf("페이지 타입: %s", req.PageType))

	if req.PageType != plan.PageCover && req.Palette != "" {
		lines = append(lines, fmt.Sprintf("**[색상 팔레트 통일]** 반드시 다음 색상 팔레트를 유지하세요: '%s'", req.Palette))
	}

	lines = append(lines, "**[필수 지시사항]**")
	lines = append(lines, "1. 텍스트는 반드시 한글이 깨지지 않게 크고 명확하게 배치해야 합니다.")
	lines = append(lines, "2. 모든 페이지는 일관된 톤앤매너를 유지합니다.")
	lines = append(lines, fmt.Sprintf("3. **이미지 비율은 반드시 '%s'**여야 합니다. (%dx%d)", ratio, size.Width, size.Height))
	lines = append(lines, fmt.Sprintf("4. 다음 내용을 포함하세요: %s", contentText))
	for i, r := range c.Restrictions {
		lines = append(lines, fmt.Sprintf("%d. **[중요]** %s", i+5, r))
	}

	if req.Concept.Name != "" {
		lines = append(lines, fmt.Sprintf("**[디자인 컨셉]** 스타일: %s, 설명: %s", req.Concept.Name, req.Concept.Description))
	}

	if req.Feedback != "" {
		lines = append(lines, fmt.Sprintf("**[사용자 특별 지시사항]**\n%s", req.Feedback))
		lines = append(lines, "위 사용자의 구체적인 요청 사항을 최우선적으로 디자인에 반영하십시오.")
	}

	for _, ch := range characters {
		lines = append(lines, fmt.Sprintf("**[🚨 매우 중요 - 위 이미지는 공식 마스코트 '%s' 입니다]**", ch.Name))
		lines = append(lines, "**필수 규칙:**")
		lines = append(lines, fmt.Sprintf("1. 위에 제공된 %s 이미지를 **정확히 복사**하여 디자인에 포함하세요.", ch.Name))
		lines = append(lines, fmt.Sprintf("2. %s의 색상, 생김새, 표정, 포즈를 **절대 변경하지 마세요**.", ch.Name))
		lines = append(lines, "3. 새로운 캐릭터를 만들거나, 비슷한 캐릭터로 대체하는 것은 **절대 금지**입니다.")
		lines = append(lines, "4. 제공된 이미지를 **그대로 복사-붙여넣기** 하듯이 사용하세요.")
	}

	return strings.Join(lines, "\n")
}

// GenerateDesign renders one page and returns the image as a data URI.
// Reference and character images that cannot be fetched are skipped.
func (c *Client) GenerateDesign(ctx context.Context, req DesignRequest) (imageURL string, err error) {
	if c.APIKey == "" {
		return "", ErrMissingAPIKey
	}

	start := time.Now()
	defer func() {
		c.record(telemetry.MetricAPICallsDesign, telemetry.MetricResponseTimeDesign, start, err)
	}()

	var parts []Part

	refs := req.RefURLs
	if len(refs) > MaxReferenceImages {
		refs = refs[:MaxReferenceImages]
	}
	for _, url := range refs {
		data, err := c.fetchInline(ctx, url, "image/jpeg")
		if err != nil {
			c.logger.Debug("Skipping reference image", "url", url, "error", err)
			continue
		}
		parts = append(parts, Part{InlineData: data})
	}

	contentText := ContentText(req.Content)
	var characters []Character
	for _, ch := range c.Characters {
		if ch.Keyword == "" || ch.URL == "" || !strings.Contains(contentText, ch.Keyword) {
			continue
		}
		data, err := c.fetchInline(ctx, ch.URL, "image/png")
		if err != nil {
			c.logger.Debug("Skipping character image", "character", ch.Name, "error", err)
			continue
		}
		if ch.Name == "" {
			ch.Name = ch.Keyword
		}
		parts = append(parts, Part{InlineData: data})
		characters = append(characters, ch)
	}

	parts = append(parts, Part{Text: c.BuildDesignPrompt(req, characters)})

	body := GenerateRequest{
		Contents: []Content{{Parts: parts}},
		GenerationConfig: GenerationConfig{
			ResponseModalities: []string{"TEXT", "IMAGE"},
		},
	}

	var resp GenerateResponse
	if err := c.post(ctx, c.ImageModel, "generateContent", body, &resp); err != nil {
		return "", err
	}

	if len(resp.Candidates) > 0 {
		for _, part := range resp.Candidates[0].Content.Parts {
			if part.InlineData != nil && part.InlineData.Data != "" {
				return "data:" + part.InlineData.MimeType + ";base64," + part.InlineData.Data, nil
			}
		}
	}
	return "", ErrNoImage
}

// fetchInline downloads url and returns it as inline data.
func (c *Client) fetchInline(ctx context.Context, url, defaultMime string) (*InlineData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxInlineImageBytes))
	if err != nil {
		return nil, err
	}

	mime := resp.Header.Get("Content-Type")
	if mime == "" {
		mime = defaultMime
	}
	return &InlineData{
		MimeType: mime,
		Data:     base64.StdEncoding.EncodeToString(data),
	}, nil
}
