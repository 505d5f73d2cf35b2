package processor

import (
	"encoding/json"
	"regexp"
	"strings"

	"doc_ai/internal/llm"
)

// Well-known structured fields. Any other key returned by the model is merged generically.
const (
	FieldSummary         = "summary"
	FieldKeyTopics       = "key_topics"
	FieldImportantPoints = "important_points"
	FieldInsights        = "insights"
	FieldRecommendations = "recommendations"
	FieldRawResponses    = "raw_responses"
	FieldSummaryNote     = "summary_note"
)

var knownListFields = []string{FieldKeyTopics, FieldImportantPoints, FieldInsights, FieldRecommendations}

// ChunkResult is the parsed reply for one processing chunk.
type ChunkResult struct {
	Index   int            `json:"index"`
	Fields  map[string]any `json:"fields,omitempty"`
	Content string         `json:"content,omitempty"`
	// Raw is set when a structured reply could not be decoded as a JSON object.
	Raw bool `json:"raw,omitempty"`
}

// ProcessingMetadata records how a result was produced.
type ProcessingMetadata struct {
	Chunked            bool     `json:"chunked"`
	TotalChunks        int      `json:"total_chunks"`
	ProcessedChunks    int      `json:"processed_chunks"`
	Incomplete         bool     `json:"incomplete,omitempty"`
	Model              string   `json:"model"`
	MaxContextTokens   int      `json:"max_context_tokens"`
	ReservedFraction   float64  `json:"reserved_fraction"`
	UsableBudget       int      `json:"usable_budget"`
	ChunkBudget        int      `json:"chunk_budget,omitempty"`
	ContextTokens      int      `json:"context_tokens,omitempty"`
	EstimatedTokens    int      `json:"estimated_tokens"`
	Encoding           string   `json:"encoding,omitempty"`
	EstimationDegraded bool     `json:"estimation_degraded,omitempty"`
	UnknownModel       bool     `json:"unknown_model_limits,omitempty"`
	ForcedSplits       int      `json:"forced_splits,omitempty"`
	Warnings           []string `json:"warnings,omitempty"`
}

// Result is the combined output returned to the caller.
type Result struct {
	Format   llm.Format
	Fields   map[string]any // structured output
	Content  string         // text output, or the raw reply when Raw is set
	Raw      bool
	Metadata ProcessingMetadata
}

// ToMap returns the result in its serialized shape: structured fields at the
// top level, or content/raw_response with a format tag, plus processing_metadata.
func (r *Result) ToMap() map[string]any {
	out := make(map[string]any, len(r.Fields)+2)
	switch {
	case r.Format.Structured() && !r.Raw:
		for k, v := range r.Fields {
			out[k] = v
		}
	case r.Raw:
		out["raw_response"] = r.Content
		out["format"] = "text"
	default:
		out["content"] = r.Content
		out["format"] = string(r.Format)
	}
	out["processing_metadata"] = r.Metadata
	return out
}

// MarshalJSON encodes ToMap.
func (r *Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.ToMap())
}

// Topics returns the key_topics list as strings.
func (r *Result) Topics() []string {
	return stringsOf(r.Fields[FieldKeyTopics])
}

// Summary returns the summary field, or the text content for text formats.
func (r *Result) Summary() string {
	if s, ok := r.Fields[FieldSummary].(string); ok {
		return s
	}
	return r.Content
}

var fencePattern = regexp.MustCompile("(?s)^\\s*```(?:json)?\\s*(.*?)\\s*```\\s*$")

// parseReply turns reply text into a ChunkResult. For structured output a
// reply that is not a JSON object is kept raw rather than failing.
func parseReply(index int, format llm.Format, text string) ChunkResult {
	res := ChunkResult{Index: index}
	if !format.Structured() {
		res.Content = text
		return res
	}

	body := text
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		body = m[1]
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(body)), &fields); err != nil || fields == nil {
		res.Raw = true
		res.Content = text
		return res
	}
	res.Fields = fields
	return res
}

func stringsOf(v any) []string {
	items, ok := v.([]any)
	if !ok {
		if ss, ok := v.([]string); ok {
			return ss
		}
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
