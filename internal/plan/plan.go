// Package plan models a card-news plan: the cover, body and outro page
// contents produced by plan generation, the estimated tone and the proposed
// design concepts.
package plan

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// PageType is the category of a card-news page. It doubles as the corpus
// category used to filter reference searches.
type PageType string

const (
	PageCover PageType = "COVER"
	PageBody  PageType = "BODY"
	PageOutro PageType = "OUTRO"
)

// DefaultTone is used when a plan carries no estimated tone.
const DefaultTone = "친근한"

// ErrUnknownPageType is returned when a page type is not COVER, BODY or OUTRO.
var (
	ErrUnknownPageType = errors.New("plan: unknown page type")

	// ErrNoPages is returned by Parse for a plan without cover, body or outro.
	ErrNoPages = errors.New("plan: plan has no pages")
)

// ParsePageType converts s case-insensitively into a PageType.
func ParsePageType(s string) (PageType, error) {
	switch pt := PageType(strings.ToUpper(strings.TrimSpace(s))); pt {
	case PageCover, PageBody, PageOutro:
		return pt, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPageType, s)
	}
}

// Sections holds the raw content of each page. Content is opaque: it is
// forwarded to the design generator without validation.
type Sections struct {
	Cover json.RawMessage   `json:"cover,omitempty"`
	Body  []json.RawMessage `json:"body"`
	Outro json.RawMessage   `json:"outro,omitempty"`
}

// DesignConcept is a named visual direction offered for a run.
type DesignConcept struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// UnmarshalJSON accepts both "description" and the shorter "desc".
func (c *DesignConcept) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description"`
		Desc        string `json:"desc"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.ID = raw.ID
	c.Name = raw.Name
	c.Description = raw.Description
	if c.Description == "" {
		c.Description = raw.Desc
	}
	return nil
}

// Plan is the output of plan generation.
type Plan struct {
	StructureType  string          `json:"structure_type,omitempty"`
	EstimatedTone  string          `json:"estimated_tone,omitempty"`
	Sections       Sections        `json:"plan"`
	DesignConcepts []DesignConcept `json:"design_concepts,omitempty"`
}

// Page is one entry of the page list built from a plan.
type Page struct {
	Index   int             `json:"index"`
	Type    PageType        `json:"page_type"`
	Label   string          `json:"label"`
	Content json.RawMessage `json:"content,omitempty"`
}

// Parse decodes a plan, tolerating a surrounding markdown code fence.
func Parse(data []byte) (*Plan, error) {
	data = stripCodeFence(data)

	var p Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("plan: failed to parse plan: %w", err)
	}
	if !present(p.Sections.Cover) && len(p.Sections.Body) == 0 && !present(p.Sections.Outro) {
		return nil, ErrNoPages
	}
	return &p, nil
}

func stripCodeFence(data []byte) []byte {
	trimmed := bytes.TrimSpace(data)
	if !bytes.HasPrefix(trimmed, []byte("```")) {
		return trimmed
	}
	if nl := bytes.IndexByte(trimmed, '\n'); nl >= 0 {
		trimmed = trimmed[nl+1:]
	}
	trimmed = bytes.TrimSuffix(bytes.TrimSpace(trimmed), []byte("```"))
	return bytes.TrimSpace(trimmed)
}

func present(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// HasCover reports whether the plan has a cover page.
func (p *Plan) HasCover() bool {
	return p != nil && present(p.Sections.Cover)
}

// HasOutro reports whether the plan has an outro page.
func (p *Plan) HasOutro() bool {
	return p != nil && present(p.Sections.Outro)
}

// Tone returns the estimated tone or DefaultTone.
func (p *Plan) Tone() string {
	if p == nil || strings.TrimSpace(p.EstimatedTone) == "" {
		return DefaultTone
	}
	return p.EstimatedTone
}

// Concepts returns the plan's design concepts, or the built-in defaults
// when the plan proposes none. Concepts without an id get "concept-<i>".
func (p *Plan) Concepts() []DesignConcept {
	if p == nil || len(p.DesignConcepts) == 0 {
		return DefaultConcepts()
	}
	out := make([]DesignConcept, len(p.DesignConcepts))
	for i, c := range p.DesignConcepts {
		if c.ID == "" {
			c.ID = fmt.Sprintf("concept-%d", i)
		}
		out[i] = c
	}
	return out
}

// Pages builds the ordered page list: cover, body pages in order, outro.
// Index is the position in this list.
func (p *Plan) Pages() []Page {
	if p == nil {
		return nil
	}

	var pages []Page
	if p.HasCover() {
		pages = append(pages, Page{Type: PageCover, Label: Label(PageCover, 0), Content: p.Sections.Cover})
	}
	for i, body := range p.Sections.Body {
		pages = append(pages, Page{Type: PageBody, Label: Label(PageBody, i+1), Content: body})
	}
	if p.HasOutro() {
		pages = append(pages, Page{Type: PageOutro, Label: Label(PageOutro, 0), Content: p.Sections.Outro})
	}

	for i := range pages {
		pages[i].Index = i
	}
	return pages
}

// Label returns the display label of a page. bodyNumber is 1-based and only
// used for body pages.
func Label(pt PageType, bodyNumber int) string {
	switch pt {
	case PageCover:
		return "표지"
	case PageBody:
		return fmt.Sprintf("본문 %d", bodyNumber)
	default:
		return "마무리"
	}
}

// ContentFor resolves the content of the page at pageIndex in the Pages list.
// A leading cover shifts body indexes by one. When the page cannot be found
// the whole sections object is returned so the generator still has context.
func (p *Plan) ContentFor(pageIndex int, pt PageType) json.RawMessage {
	if p == nil {
		return nil
	}

	switch pt {
	case PageCover:
		if p.HasCover() {
			return p.Sections.Cover
		}
	case PageOutro:
		if p.HasOutro() {
			return p.Sections.Outro
		}
	case PageBody:
		bodyIdx := pageIndex
		if p.HasCover() {
			bodyIdx--
		}
		if bodyIdx >= 0 && bodyIdx < len(p.Sections.Body) && present(p.Sections.Body[bodyIdx]) {
			return p.Sections.Body[bodyIdx]
		}
	}

	whole, err := json.Marshal(p.Sections)
	if err != nil {
		return nil
	}
	return whole
}
