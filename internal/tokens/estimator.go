// Package tokens estimates token counts and derives per-model input budgets.
package tokens

import (
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

const (
	defaultEncoding = "cl100k_base" // used when the model has no known encoding
	charsPerToken   = 4
)

// Counter counts tokens in text. Implementations never fail and are monotonic:
// a longer text never yields a smaller count.
type Counter interface {
	CountTokens(text string) int
}

// HeuristicCounter approximates one token per four characters.
type HeuristicCounter struct{}

func (HeuristicCounter) CountTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + charsPerToken - 1) / charsPerToken
}

// TiktokenCounter counts BPE tokens with tiktoken-go.
type TiktokenCounter struct {
	encodingName string
	tke          *tiktoken.Tiktoken
	mu           sync.RWMutex
}

// NewTiktokenCounter resolves an encoding for a model or encoding name and
// falls back to cl100k_base when the name is unknown.
func NewTiktokenCounter(modelOrEncoding string) (*TiktokenCounter, error) {
	if modelOrEncoding == "" {
		modelOrEncoding = defaultEncoding
	}

	name := modelOrEncoding
	tke, err := tiktoken.GetEncoding(modelOrEncoding)
	if err != nil {
		tke, err = tiktoken.EncodingForModel(modelOrEncoding)
		if err != nil {
			tke, err = tiktoken.GetEncoding(defaultEncoding)
			if err != nil {
				return nil, fmt.Errorf("failed to get default encoding '%s': %w", defaultEncoding, err)
			}
			name = defaultEncoding
		} else {
			name = "model:" + modelOrEncoding
		}
	}

	return &TiktokenCounter{encodingName: name, tke: tke}, nil
}

// CountTokens encodes the text; an uninitialized encoder degrades to the heuristic.
func (tc *TiktokenCounter) CountTokens(text string) int {
	tc.mu.RLock()
	defer tc.mu.RUnlock()

	if tc.tke == nil {
		return HeuristicCounter{}.CountTokens(text)
	}
	return len(tc.tke.Encode(text, nil, nil))
}

// Encoding returns the name of the encoding in use.
func (tc *TiktokenCounter) Encoding() string {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.encodingName
}

// Estimator is the token estimator bound to one model.
type Estimator struct {
	Counter
	Model    string
	Encoding string
	// Degraded is set when no BPE encoding could be loaded and counts come
	// from the character heuristic.
	Degraded bool
	// Err is the reason the estimator degraded, if it did.
	Err error
}

var estimators sync.Map // model -> *Estimator

// ForModel returns the estimator for a model. Encoders are loaded once per
// model and shared; loading failure yields a degraded heuristic estimator.
func ForModel(model string) *Estimator {
	if v, ok := estimators.Load(model); ok {
		return v.(*Estimator)
	}

	est := &Estimator{Model: model}
	counter, err := NewTiktokenCounter(model)
	if err != nil {
		est.Counter = HeuristicCounter{}
		est.Encoding = "heuristic"
		est.Degraded = true
		est.Err = err
	} else {
		est.Counter = counter
		est.Encoding = counter.Encoding()
	}

	actual, _ := estimators.LoadOrStore(model, est)
	return actual.(*Estimator)
}

// Heuristic returns a non-degraded estimator backed by the character heuristic.
// It is deterministic and needs no encoder download.
func Heuristic(model string) *Estimator {
	return &Estimator{Counter: HeuristicCounter{}, Model: model, Encoding: "heuristic"}
}

// Estimate counts tokens of text for a model.
func Estimate(text, model string) int {
	return ForModel(model).CountTokens(text)
}
