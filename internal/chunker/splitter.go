// Package chunker splits rendered documents into token-bounded chunks,
// cutting at the coarsest boundary that fits: sections, then paragraphs,
// then sentences, then fixed windows.
package chunker

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"doc_ai/internal/document"
	"doc_ai/internal/tokens"
)

// ErrInvalidBudget is returned for budgets below one token.
var ErrInvalidBudget = errors.New("chunk budget must be at least one token")

// Splitter packs document units into chunks within a token budget.
type Splitter struct {
	counter tokens.Counter
	log     *log.Logger
}

// NewSplitter creates a splitter estimating with counter. logger may be nil.
func NewSplitter(counter tokens.Counter, logger *log.Logger) *Splitter {
	if counter == nil {
		counter = tokens.HeuristicCounter{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Splitter{counter: counter, log: logger}
}

// SplitDocument splits the rendered document. An empty document yields no chunks.
func (s *Splitter) SplitDocument(doc *document.UnifiedDocument, budget int) ([]Chunk, error) {
	return s.Split(doc.Units(), budget)
}

// Split packs ordered units into chunks whose estimate stays within budget.
// The chunks' texts concatenate back to the concatenation of units.
func (s *Splitter) Split(units []string, budget int) ([]Chunk, error) {
	if budget < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidBudget, budget)
	}

	whole := strings.Join(units, "")
	if strings.TrimSpace(whole) == "" {
		return nil, nil
	}
	if n := s.counter.CountTokens(whole); n <= budget {
		return []Chunk{{Index: 0, Text: whole, Tokens: n, Level: LevelDocument}}, nil
	}

	p := &packer{counter: s.counter, budget: budget, level: LevelSection}
	p.pack(units, LevelSection)
	p.flush()

	forced := 0
	for _, c := range p.chunks {
		if c.Forced {
			forced++
		}
	}
	s.log.Debug("document split", "chunks", len(p.chunks), "budget", budget, "forced", forced)
	if p.overBudget > 0 {
		s.log.Warn("budget smaller than a single character", "budget", budget, "windows", p.overBudget)
	}

	return p.chunks, nil
}

// packer is the greedy accumulator shared across recursion levels, so the
// tail of a subdivided unit can still be joined by the units that follow it.
type packer struct {
	counter tokens.Counter
	budget  int

	acc       strings.Builder
	accTokens int
	level     Level
	forced    bool

	chunks     []Chunk
	overBudget int
}

func (p *packer) pack(units []string, level Level) {
	for _, u := range units {
		if u == "" {
			continue
		}
		if p.acc.Len() > 0 {
			if n := p.counter.CountTokens(p.acc.String() + u); n <= p.budget {
				p.append(u, n, level)
				continue
			}
			p.flush()
		}
		if n := p.counter.CountTokens(u); n <= p.budget {
			p.append(u, n, level)
			continue
		}
		if level >= LevelSentence {
			p.force(u)
			continue
		}
		p.pack(subdivide(u, level+1), level+1)
	}
}

func subdivide(text string, level Level) []string {
	switch level {
	case LevelParagraph:
		return SplitByParagraphs(text)
	default:
		return SplitBySentences(text)
	}
}

// force cuts text into the largest rune windows that fit the budget. The last
// window stays in the accumulator.
func (p *packer) force(text string) {
	runes := []rune(text)
	for len(runes) > 0 {
		n, count := p.largestFit(runes)
		window := string(runes[:n])
		runes = runes[n:]

		p.append(window, count, LevelForced)
		p.forced = true
		if len(runes) > 0 {
			p.flush()
		}
	}
}

// largestFit binary-searches the longest prefix within budget. At least one
// rune is always taken so progress is guaranteed.
func (p *packer) largestFit(runes []rune) (int, int) {
	lo, hi := 1, len(runes)
	best, bestTokens := 0, 0
	for lo <= hi {
		mid := lo + (hi-lo)/2
		n := p.counter.CountTokens(string(runes[:mid]))
		if n <= p.budget {
			best, bestTokens = mid, n
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	if best == 0 {
		p.overBudget++
		return 1, p.counter.CountTokens(string(runes[:1]))
	}
	return best, bestTokens
}

func (p *packer) append(text string, count int, level Level) {
	p.acc.WriteString(text)
	p.accTokens = count
	if level > p.level {
		p.level = level
	}
}

func (p *packer) flush() {
	if p.acc.Len() == 0 {
		return
	}
	p.chunks = append(p.chunks, Chunk{
		Index:  len(p.chunks),
		Text:   p.acc.String(),
		Tokens: p.accTokens,
		Level:  p.level,
		Forced: p.forced,
	})
	p.acc.Reset()
	p.accTokens = 0
	p.level = LevelSection
	p.forced = false
}
