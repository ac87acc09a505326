package planner

import (
	"context"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/chiclooc-rgb/card-news-generator/internal/genai"
	"github.com/chiclooc-rgb/card-news-generator/internal/plan"
)

const (
	// DefaultMaxBodyPages bounds the body pages of a detailed local plan.
	DefaultMaxBodyPages = 4

	// DefaultMaxLineLength bounds titles and bullet lines, in characters.
	DefaultMaxLineLength = 60

	maxBulletsPerPage = 3
	simpleBodyPages   = 2
	defaultCTA        = "자세한 내용은 원문을 확인해 주세요."
)

// BasicPlanner is a local implementation of the Planner interface. It uses
// the first line of the document as the cover title, spreads the remaining
// paragraphs over body pages and closes with the last sentence.
type BasicPlanner struct {
	maxBodyPages  int
	maxLineLength int
}

// NewBasicPlanner creates a new BasicPlanner instance.
func NewBasicPlanner(maxBodyPages, maxLineLength int) *BasicPlanner {
	if maxBodyPages <= 0 {
		maxBodyPages = DefaultMaxBodyPages
	}
	if maxLineLength <= 0 {
		maxLineLength = DefaultMaxLineLength
	}
	return &BasicPlanner{
		maxBodyPages:  maxBodyPages,
		maxLineLength: maxLineLength,
	}
}

// Initialize sets up the planner with any required configuration.
func (p *BasicPlanner) Initialize() error {
	return nil // No initialization needed for the basic planner
}

type coverContent struct {
	MainTitle string `json:"main_title"`
	SubTitle  string `json:"sub_title,omitempty"`
}

type bodyContent struct {
	Summary []string `json:"summary"`
}

type outroContent struct {
	CTA string `json:"cta"`
}

// Plan builds a plan without calling any model.
func (p *BasicPlanner) Plan(ctx context.Context, content string, detail genai.DetailLevel) (*Result, error) {
	paragraphs := splitParagraphs(content)
	if len(paragraphs) == 0 {
		return nil, ErrEmptyDocument
	}

	lines := strings.Split(paragraphs[0], "\n")
	cover := coverContent{MainTitle: condense(lines[0], p.maxLineLength)}
	if len(lines) > 1 {
		cover.SubTitle = condense(strings.Join(lines[1:], " "), p.maxLineLength)
	}

	rest := paragraphs[1:]
	if len(rest) == 0 && len(lines) > 1 {
		rest = []string{strings.Join(lines[1:], " ")}
	}

	var sentences [][]string
	for _, para := range rest {
		if s := splitSentences(para); len(s) > 0 {
			sentences = append(sentences, s)
		}
	}

	pages := p.maxBodyPages
	if detail == genai.DetailSimple && pages > simpleBodyPages {
		pages = simpleBodyPages
	}

	var body []json.RawMessage
	for _, group := range groupParagraphs(sentences, pages) {
		var bullets []string
		for _, s := range group {
			if len(bullets) == maxBulletsPerPage {
				break
			}
			bullets = append(bullets, condense(s, p.maxLineLength))
		}
		raw, err := json.Marshal(bodyContent{Summary: bullets})
		if err != nil {
			return nil, err
		}
		body = append(body, raw)
	}

	outro := outroContent{CTA: defaultCTA}
	if len(sentences) > 0 {
		last := sentences[len(sentences)-1]
		outro.CTA = condense(last[len(last)-1], p.maxLineLength)
	}

	coverRaw, err := json.Marshal(cover)
	if err != nil {
		return nil, err
	}
	outroRaw, err := json.Marshal(outro)
	if err != nil {
		return nil, err
	}

	structure := "MULTI"
	if len(body) == 0 {
		structure = "SINGLE"
	}

	return &Result{
		Plan: &plan.Plan{
			StructureType: structure,
			EstimatedTone: plan.DefaultTone,
			Sections: plan.Sections{
				Cover: coverRaw,
				Body:  body,
				Outro: outroRaw,
			},
			DesignConcepts: plan.DefaultConcepts(),
		},
		Source: SourceBasic,
	}, nil
}

// splitParagraphs returns the non-empty blank-line separated blocks of text.
func splitParagraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var out []string
	for _, block := range strings.Split(text, "\n\n") {
		var lines []string
		for _, line := range strings.Split(block, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				lines = append(lines, line)
			}
		}
		if len(lines) > 0 {
			out = append(out, strings.Join(lines, "\n"))
		}
	}
	return out
}

// splitSentences breaks a paragraph on sentence terminators and line breaks.
func splitSentences(text string) []string {
	var out []string
	var b strings.Builder

	flush := func() {
		if s := strings.TrimSpace(b.String()); s != "" {
			out = append(out, s)
		}
		b.Reset()
	}

	runes := []rune(text)
	for i, r := range runes {
		if r == '\n' {
			flush()
			continue
		}
		b.WriteRune(r)
		if (r == '.' || r == '?' || r == '!') && (i+1 == len(runes) || runes[i+1] == ' ' || runes[i+1] == '\n') {
			flush()
		}
	}
	flush()
	return out
}

// groupParagraphs distributes paragraphs over at most n pages, keeping
// their order. Paragraphs beyond n are merged into the earlier pages.
func groupParagraphs(paragraphs [][]string, n int) [][]string {
	if len(paragraphs) == 0 || n <= 0 {
		return nil
	}
	if len(paragraphs) <= n {
		return paragraphs
	}

	groups := make([][]string, n)
	for i, para := range paragraphs {
		g := i * n / len(paragraphs)
		groups[g] = append(groups[g], para...)
	}
	return groups
}

// condense shortens text to at most maxLen characters, preferring to end
// at a sentence boundary and then at a word boundary.
func condense(text string, maxLen int) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= maxLen {
		return text
	}

	ellipsis := "..."
	runes := []rune(text)
	truncated := string(runes[:maxLen])

	// Look for common sentence terminators
	lastBoundary := max(
		strings.LastIndex(truncated, "."),
		strings.LastIndex(truncated, "?"),
		strings.LastIndex(truncated, "!"),
	)
	if lastBoundary > 0 {
		return truncated[:lastBoundary+1]
	}

	truncateLen := max(maxLen-utf8.RuneCountInString(ellipsis), 0)
	truncated = string(runes[:truncateLen])

	if lastSpace := strings.LastIndex(truncated, " "); lastSpace > 0 {
		return truncated[:lastSpace] + ellipsis
	}
	return truncated + ellipsis
}
