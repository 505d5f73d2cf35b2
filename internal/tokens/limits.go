package tokens

import (
	"math"
	"sort"
	"strings"
)

const (
	// DefaultReservedFraction is the share of the context window kept for the response.
	DefaultReservedFraction = 0.20
	// DefaultMaxContext is assumed for models missing from the table.
	DefaultMaxContext = 8192
)

// Limits are the static token limits of a model.
type Limits struct {
	MaxContext       int
	ReservedFraction float64
}

// modelLimits is read-only after init.
var modelLimits = map[string]Limits{
	"gpt-4o-mini":       {MaxContext: 128000, ReservedFraction: 0.20},
	"gpt-4o":            {MaxContext: 128000, ReservedFraction: 0.20},
	"gpt-4.1":           {MaxContext: 1047576, ReservedFraction: 0.10},
	"gpt-4.1-mini":      {MaxContext: 1047576, ReservedFraction: 0.10},
	"gpt-4.1-nano":      {MaxContext: 1047576, ReservedFraction: 0.10},
	"gpt-4-turbo":       {MaxContext: 128000, ReservedFraction: 0.20},
	"gpt-4-32k":         {MaxContext: 32768, ReservedFraction: 0.20},
	"gpt-4":             {MaxContext: 8192, ReservedFraction: 0.25},
	"gpt-3.5-turbo-16k": {MaxContext: 16385, ReservedFraction: 0.25},
	"gpt-3.5-turbo":     {MaxContext: 16385, ReservedFraction: 0.25},
	"o1-mini":           {MaxContext: 128000, ReservedFraction: 0.30},
	"o1":                {MaxContext: 200000, ReservedFraction: 0.30},
	"o3-mini":           {MaxContext: 200000, ReservedFraction: 0.30},
}

// prefixOrder lists table keys longest first so dated model names
// ("gpt-4o-mini-2024-07-18") resolve to the most specific entry.
var prefixOrder = func() []string {
	keys := make([]string, 0, len(modelLimits))
	for k := range modelLimits {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}()

// LookupLimits returns the limits for a model and whether the model is known.
func LookupLimits(model string) (Limits, bool) {
	if l, ok := modelLimits[model]; ok {
		return l, true
	}
	for _, k := range prefixOrder {
		if strings.HasPrefix(model, k) {
			return modelLimits[k], true
		}
	}
	return Limits{MaxContext: DefaultMaxContext, ReservedFraction: DefaultReservedFraction}, false
}

// Budget is the effective input budget for one request.
type Budget struct {
	Model            string
	MaxContext       int
	ReservedFraction float64
	Usable           int
	KnownModel       bool
	Overridden       bool
}

// ComputeBudget derives the usable input budget. A positive override replaces
// the derived value; the table itself is never modified.
func ComputeBudget(model string, override int) Budget {
	limits, known := LookupLimits(model)
	b := Budget{
		Model:            model,
		MaxContext:       limits.MaxContext,
		ReservedFraction: limits.ReservedFraction,
		KnownModel:       known,
	}
	if override > 0 {
		b.Usable = override
		b.Overridden = true
		return b
	}
	b.Usable = int(math.Floor(float64(limits.MaxContext) * (1 - limits.ReservedFraction)))
	return b
}
