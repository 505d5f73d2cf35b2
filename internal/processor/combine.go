package processor

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"doc_ai/internal/llm"
)

const (
	summaryDelimiter = "\n\n"
	// summaryCondenseRunes is the combined summary size past which the caller
	// is told to condense per-chunk summaries itself.
	summaryCondenseRunes = 4000
)

// Combine merges ordered chunk results into one result. meta is copied into
// the result with Chunked and the chunk counts filled in.
func Combine(results []ChunkResult, format llm.Format, meta ProcessingMetadata) *Result {
	meta.Chunked = true
	meta.ProcessedChunks = len(results)
	if meta.TotalChunks < len(results) {
		meta.TotalChunks = len(results)
	}

	res := &Result{Format: format, Metadata: meta}
	if !format.Structured() {
		res.Content = combineText(results, meta.TotalChunks)
		return res
	}

	fields := make(map[string]any)
	conflicts := make(map[string]struct{})
	var raw []any
	for _, r := range results {
		if r.Raw {
			raw = append(raw, r.Content)
			continue
		}
		mergeFields(fields, r.Fields, "", conflicts)
	}
	ensureKnownFields(fields)
	if len(conflicts) > 0 {
		res.Metadata.Warnings = append(res.Metadata.Warnings, fmt.Sprintf(
			"fields with mixed types across chunks were collected into lists: %s", strings.Join(sortedKeys(conflicts), ", ")))
	}
	if len(raw) > 0 {
		fields[FieldRawResponses] = raw
	}

	if s, ok := fields[FieldSummary].(string); ok && utf8.RuneCountInString(s) > summaryCondenseRunes {
		note := fmt.Sprintf("summary concatenates %d per-chunk summaries; condense it before presenting", len(results))
		fields[FieldSummaryNote] = note
		res.Metadata.Warnings = append(res.Metadata.Warnings, note)
	}

	res.Fields = fields
	return res
}

func combineText(results []ChunkResult, total int) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, fmt.Sprintf("---\n\n**Chunk %d of %d**\n\n%s", r.Index+1, total, strings.TrimSpace(r.Content)))
	}
	return strings.Join(parts, "\n\n")
}

// ensureKnownFields makes the conventional fields present even when no chunk returned them.
func ensureKnownFields(fields map[string]any) {
	if _, ok := fields[FieldSummary]; !ok {
		fields[FieldSummary] = ""
	}
	for _, k := range knownListFields {
		if _, ok := fields[k]; !ok {
			fields[k] = []any{}
		}
	}
}

// mergeFields merges src into dst: lists concatenate with case-insensitive
// dedup, strings join with a delimiter, objects merge recursively and
// booleans OR. Numbers and values whose types differ between chunks are
// collected into a list of distinct values; the dotted path of each type
// conflict is added to conflicts.
func mergeFields(dst, src map[string]any, prefix string, conflicts map[string]struct{}) {
	keys := make([]string, 0, len(src))
	for k := range src {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		cur, present := dst[k]
		dst[k] = mergeValue(cur, present, src[k], prefix+k, conflicts)
	}
}

func mergeValue(cur any, present bool, v any, path string, conflicts map[string]struct{}) any {
	if !present || cur == nil {
		if list, ok := v.([]any); ok {
			return dedupAppend(nil, list)
		}
		return cloneValue(v)
	}
	if v == nil {
		return cur
	}

	switch c := cur.(type) {
	case []any:
		if list, ok := v.([]any); ok {
			return dedupAppend(c, list)
		}
		return dedupAppend(c, []any{v})
	case string:
		s, ok := v.(string)
		if !ok {
			break
		}
		if strings.TrimSpace(s) == "" {
			return c
		}
		if strings.TrimSpace(c) == "" {
			return s
		}
		return c + summaryDelimiter + s
	case map[string]any:
		if m, ok := v.(map[string]any); ok {
			merged := cloneValue(c).(map[string]any)
			mergeFields(merged, m, path+".", conflicts)
			return merged
		}
	case float64:
		if _, ok := v.(float64); ok {
			return dedupAppend([]any{c}, []any{v})
		}
	case bool:
		if b, ok := v.(bool); ok {
			return c || b
		}
	}

	conflicts[path] = struct{}{}
	if list, ok := v.([]any); ok {
		return dedupAppend([]any{cur}, list)
	}
	return dedupAppend([]any{cur}, []any{v})
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// dedupAppend appends items not already present, keeping first-seen order.
func dedupAppend(cur, add []any) []any {
	out := make([]any, 0, len(cur)+len(add))
	seen := make(map[string]struct{}, len(cur)+len(add))
	for _, group := range [][]any{cur, add} {
		for _, item := range group {
			key := dedupKey(item)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, cloneValue(item))
		}
	}
	return out
}

func dedupKey(item any) string {
	if s, ok := item.(string); ok {
		return "s:" + strings.ToLower(strings.TrimSpace(s))
	}
	b, err := json.Marshal(item)
	if err != nil {
		return fmt.Sprintf("v:%v", item)
	}
	return "j:" + string(b)
}

func dedupStrings(items []string) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, s := range items {
		key := strings.ToLower(strings.TrimSpace(s))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = cloneValue(val)
		}
		return m
	case []any:
		l := make([]any, len(t))
		for i, val := range t {
			l[i] = cloneValue(val)
		}
		return l
	default:
		return v
	}
}
