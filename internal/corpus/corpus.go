// Package corpus holds the read-only reference corpus: catalogued card-news
// designs and their 8-bit quantized embeddings, aligned by index.
package corpus

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/chiclooc-rgb/card-news-generator/internal/vector"
)

var (
	// ErrMisaligned is returned when metadata and embeddings differ in count.
	ErrMisaligned = errors.New("corpus: metadata and embedding counts differ")

	// ErrDimensionMismatch is returned when embedding entries are not uniformly sized.
	ErrDimensionMismatch = errors.New("corpus: inconsistent embedding dimensions")
)

// ReferenceItem is a catalogued design example used to steer generation style.
type ReferenceItem struct {
	Index            int      `json:"-"`
	PageType         string   `json:"page_type"`
	MainTitle        string   `json:"main_title,omitempty"`
	ToneAndManner    string   `json:"tone_and_manner,omitempty"`
	Keywords         Keywords `json:"keywords,omitempty"`
	VisualVibe       string   `json:"visual_vibe,omitempty"`
	LayoutFeature    string   `json:"layout_feature,omitempty"`
	ColorPaletteFeel string   `json:"color_palette_feel,omitempty"`
	FileName         string   `json:"file_name,omitempty"`
	FileURL          string   `json:"file_url,omitempty"`
}

// Keywords accepts either a JSON array of strings or a single comma separated string.
type Keywords []string

// UnmarshalJSON implements json.Unmarshaler.
func (k *Keywords) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*k = nil
		return nil
	}

	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*k = list
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("corpus: keywords must be a string or string array: %w", err)
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*k = out
	return nil
}

// QuantizedEntry is one embedding compressed to a byte per dimension plus the
// range needed to reconstruct it. Data is base64 in JSON.
type QuantizedEntry struct {
	Data []byte  `json:"data"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// Decode reconstructs the float vector for the entry.
func (e QuantizedEntry) Decode() []float32 {
	return vector.Dequantize(e.Data, e.Min, e.Max)
}

// Corpus is the immutable, index-aligned pairing of reference items and
// their quantized embeddings. It is safe for concurrent readers.
type Corpus struct {
	items   []ReferenceItem
	entries []QuantizedEntry
	dims    int
}

// New validates alignment and dimensionality and returns a Corpus. Item i
// always corresponds to entry i.
func New(items []ReferenceItem, entries []QuantizedEntry) (*Corpus, error) {
	if len(items) != len(entries) {
		return nil, fmt.Errorf("%w: %d items, %d embeddings", ErrMisaligned, len(items), len(entries))
	}

	dims := 0
	for i, e := range entries {
		if i == 0 {
			dims = len(e.Data)
			continue
		}
		if len(e.Data) != dims {
			return nil, fmt.Errorf("%w: entry %d has %d dimensions, expected %d", ErrDimensionMismatch, i, len(e.Data), dims)
		}
	}

	c := &Corpus{
		items:   make([]ReferenceItem, len(items)),
		entries: make([]QuantizedEntry, len(entries)),
		dims:    dims,
	}
	copy(c.items, items)
	copy(c.entries, entries)
	for i := range c.items {
		c.items[i].Index = i
	}
	return c, nil
}

// Len returns the number of reference items. A nil corpus is empty.
func (c *Corpus) Len() int {
	if c == nil {
		return 0
	}
	return len(c.items)
}

// Dimensions returns the embedding dimensionality shared by every entry.
func (c *Corpus) Dimensions() int {
	if c == nil {
		return 0
	}
	return c.dims
}

// Item returns the reference item at index i.
func (c *Corpus) Item(i int) ReferenceItem {
	return c.items[i]
}

// Entry returns the quantized embedding at index i.
func (c *Corpus) Entry(i int) QuantizedEntry {
	return c.entries[i]
}

// Decode returns the dequantized embedding for item i.
func (c *Corpus) Decode(i int) []float32 {
	return c.entries[i].Decode()
}

// Items returns a copy of all reference items in index order.
func (c *Corpus) Items() []ReferenceItem {
	if c == nil {
		return nil
	}
	out := make([]ReferenceItem, len(c.items))
	copy(out, c.items)
	return out
}

// FindByURL returns the first item whose asset URL equals url.
func (c *Corpus) FindByURL(url string) (ReferenceItem, bool) {
	if c == nil || url == "" {
		return ReferenceItem{}, false
	}
	for _, item := range c.items {
		if item.FileURL == url {
			return item, true
		}
	}
	return ReferenceItem{}, false
}

// CategoryCounts returns how many items carry each upper-cased page type.
func (c *Corpus) CategoryCounts() map[string]int {
	counts := make(map[string]int)
	if c == nil {
		return counts
	}
	for _, item := range c.items {
		counts[strings.ToUpper(item.PageType)]++
	}
	return counts
}
