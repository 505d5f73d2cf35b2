package processor

import (
	"fmt"
	"strings"

	"doc_ai/internal/chunker"
	"doc_ai/internal/tokens"
)

const (
	maxCarriedTopics  = 15
	maxCarriedSummary = 600 // runes
)

// Carry is the accumulator folded across chunks. It holds only a bounded
// synopsis, never the prior outputs themselves.
type Carry struct {
	Processed   int
	Topics      []string
	LastSummary string
}

// ContextCarrier turns earlier chunk results into a bounded synopsis.
type ContextCarrier struct {
	counter tokens.Counter
	budget  int
}

// NewContextCarrier creates a carrier whose rendered context never exceeds budget tokens.
func NewContextCarrier(counter tokens.Counter, budget int) *ContextCarrier {
	if counter == nil {
		counter = tokens.HeuristicCounter{}
	}
	return &ContextCarrier{counter: counter, budget: budget}
}

// Advance folds one more result into the carry. The input carry is not modified.
func (c *ContextCarrier) Advance(carry Carry, res ChunkResult) Carry {
	next := Carry{
		Processed:   carry.Processed + 1,
		Topics:      append([]string(nil), carry.Topics...),
		LastSummary: carry.LastSummary,
	}

	if !res.Raw {
		next.Topics = dedupStrings(append(next.Topics, stringsOf(res.Fields[FieldKeyTopics])...))
		if len(next.Topics) > maxCarriedTopics {
			next.Topics = next.Topics[len(next.Topics)-maxCarriedTopics:]
		}
	}

	summary := res.Content
	if s, ok := res.Fields[FieldSummary].(string); ok && !res.Raw {
		summary = s
	}
	if s := leadingSentences(summary, maxCarriedSummary); s != "" {
		next.LastSummary = s
	}
	return next
}

// Build folds results in order and renders the context for the next chunk.
func (c *ContextCarrier) Build(results []ChunkResult) string {
	var carry Carry
	for _, r := range results {
		carry = c.Advance(carry, r)
	}
	return c.Render(carry)
}

// Render formats the carry, truncated to the token budget. Empty before the first chunk.
func (c *ContextCarrier) Render(carry Carry) string {
	if carry.Processed == 0 || c.budget <= 0 {
		return ""
	}

	var buf strings.Builder
	if carry.Processed == 1 {
		buf.WriteString("Context from the previously processed part 1 of this document:\n")
	} else {
		buf.WriteString(fmt.Sprintf("Context from the previously processed parts 1-%d of this document:\n", carry.Processed))
	}
	if len(carry.Topics) > 0 {
		buf.WriteString("Topics so far: ")
		buf.WriteString(strings.Join(carry.Topics, "; "))
		buf.WriteString("\n")
	}
	if carry.LastSummary != "" {
		buf.WriteString("Previous part: ")
		buf.WriteString(carry.LastSummary)
		buf.WriteString("\n")
	}
	buf.WriteString("Continue the analysis without repeating introductions.")

	return c.truncate(buf.String())
}

func (c *ContextCarrier) truncate(text string) string {
	if c.counter.CountTokens(text) <= c.budget {
		return text
	}
	const ellipsis = "…"
	runes := []rune(text)
	lo, hi, best := 0, len(runes), 0
	for lo <= hi {
		mid := lo + (hi-lo)/2
		if c.counter.CountTokens(string(runes[:mid])+ellipsis) <= c.budget {
			best = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	if best == 0 {
		return ""
	}
	return string(runes[:best]) + ellipsis
}

// leadingSentences collapses whitespace and keeps whole sentences up to limit runes.
func leadingSentences(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	if len([]rune(text)) <= limit {
		return text
	}
	var buf strings.Builder
	n := 0
	for _, s := range chunker.SplitBySentences(text) {
		l := len([]rune(s))
		if n+l > limit {
			break
		}
		buf.WriteString(s)
		n += l
	}
	if buf.Len() == 0 {
		return string([]rune(text)[:limit])
	}
	return strings.TrimSpace(buf.String())
}
