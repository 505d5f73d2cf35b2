// Package document holds the unified schema every format parser produces.
package document

import (
	"fmt"
	"strings"
	"time"
)

// SchemaID identifies the version of the unified document schema.
const SchemaID = "doc_ai/v1"

// Metadata describes where a document came from.
type Metadata struct {
	Source      string         `json:"source"`
	ContentType string         `json:"content_type"`
	Encoding    string         `json:"encoding,omitempty"`
	URL         string         `json:"url,omitempty"`
	Path        string         `json:"path,omitempty"`
	Title       string         `json:"title,omitempty"`
	Language    string         `json:"language,omitempty"`
	CreatedAt   *time.Time     `json:"created_at,omitempty"`
	ModifiedAt  *time.Time     `json:"modified_at,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// SourceChunk is a text fragment as produced by a parser.
type SourceChunk struct {
	Text  string         `json:"text"`
	Order int            `json:"order"`
	ID    string         `json:"id,omitempty"`
	Meta  map[string]any `json:"meta,omitempty"`
}

// Section is the coarsest semantic unit of a document.
type Section struct {
	Heading string         `json:"heading,omitempty"`
	Chunks  []SourceChunk  `json:"chunks"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// UnifiedDocument is the normalized parse result. Sections are in reading order.
type UnifiedDocument struct {
	SchemaID string    `json:"schema_id"`
	Meta     Metadata  `json:"meta"`
	Sections []Section `json:"sections"`
}

// New creates an empty document with the given metadata.
func New(meta Metadata) *UnifiedDocument {
	if meta.ContentType == "" {
		meta.ContentType = "text/plain"
	}
	return &UnifiedDocument{
		SchemaID: SchemaID,
		Meta:     meta,
		Sections: []Section{},
	}
}

// AddText appends a single-chunk section.
func (d *UnifiedDocument) AddText(text, heading string, meta map[string]any) *UnifiedDocument {
	d.Sections = append(d.Sections, Section{
		Heading: heading,
		Chunks:  []SourceChunk{{Text: text, Order: 0}},
		Meta:    meta,
	})
	return d
}

// IsEmpty reports whether the document carries no section content at all.
// Metadata alone does not count as content.
func (d *UnifiedDocument) IsEmpty() bool {
	if d == nil {
		return true
	}
	for _, s := range d.Sections {
		if strings.TrimSpace(s.Heading) != "" {
			return false
		}
		for _, c := range s.Chunks {
			if strings.TrimSpace(c.Text) != "" {
				return false
			}
		}
	}
	return true
}

// Header renders the metadata lines placed before the first section.
func (d *UnifiedDocument) Header() string {
	var lines []string
	if d.Meta.Title != "" {
		lines = append(lines, "Title: "+d.Meta.Title)
	}
	if d.Meta.Source != "" {
		lines = append(lines, "Source: "+d.Meta.Source)
	}
	if d.Meta.ContentType != "" {
		lines = append(lines, "Content Type: "+d.Meta.ContentType)
	}
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n\n"
}

// Render renders a section the way it is shown to the model.
// Blocks are separated by blank lines so paragraph splitting sees every
// source chunk as its own paragraph.
func (s Section) Render(index int) string {
	var buf strings.Builder
	buf.WriteString(fmt.Sprintf("--- Section %d ---\n", index+1))
	if s.Heading != "" {
		buf.WriteString("Heading: ")
		buf.WriteString(s.Heading)
		buf.WriteString("\n")
	}
	buf.WriteString("\n")
	for j, c := range s.Chunks {
		buf.WriteString(fmt.Sprintf("Chunk %d: %s\n\n", j+1, c.Text))
	}
	return buf.String()
}

// Units returns the rendered document as ordered units: the metadata header
// (when present) followed by one unit per section. Their concatenation is Text().
func (d *UnifiedDocument) Units() []string {
	if d.IsEmpty() {
		return nil
	}
	units := make([]string, 0, len(d.Sections)+1)
	if h := d.Header(); h != "" {
		units = append(units, h)
	}
	for i, s := range d.Sections {
		units = append(units, s.Render(i))
	}
	return units
}

// Text returns the full content sent to the model.
func (d *UnifiedDocument) Text() string {
	return strings.Join(d.Units(), "")
}
