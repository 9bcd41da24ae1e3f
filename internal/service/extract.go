package service

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/marcusb/corpusd/internal/domain"
)

// contentFields are probed in order before falling back to the longest
// string field. The order matters: feedback exports tend to carry both a
// "feedback_content" and a short "label" column.
var contentFields = []string{
	"feedback_content", "feedback", "prompt", "content", "body",
	"task_content", "text", "message", "instruction", "response",
}

// ratingFields are probed in order for an explicit quality rating.
var ratingFields = []string{
	"prompt_quality_rating", "feedback_quality_rating", "quality_rating",
	"rating", "category", "label", "score", "avg_score",
}

var (
	topCanonical    = []string{"top_10", "top10", "top", "selected", "better"}
	bottomCanonical = []string{"bottom_10", "bottom10", "bottom", "rejected", "worse"}
)

// minContentLength is the shortest well-known field value accepted as
// content before the longest-string fallback kicks in.
const minContentLength = 10

// ExtractContent resolves the text content of one raw record. Bare strings
// are their own content; objects go through three strategies in order:
// well-known field names, then the longest string field when the well-known
// value is missing or too short, then whole-record serialization. A short
// well-known value survives if the longest-field fallback finds nothing, so
// every record yields non-empty content.
func ExtractContent(raw interface{}) string {
	if s, ok := raw.(string); ok {
		return s
	}
	record := asRecord(raw)

	content, _ := wellKnownField(record)
	if len(content) < minContentLength {
		if longest, ok := longestStringField(record); ok {
			content = longest
		}
	}
	if content == "" {
		content, _ = serializeRecord(record)
	}
	return content
}

func wellKnownField(record map[string]interface{}) (string, bool) {
	for _, field := range contentFields {
		if s, ok := stringValue(record, field); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

func longestStringField(record map[string]interface{}) (string, bool) {
	type candidate struct {
		key   string
		value string
	}
	var candidates []candidate
	for key, value := range record {
		if s, ok := value.(string); ok && len(s) > minContentLength {
			candidates = append(candidates, candidate{key: key, value: s})
		}
	}
	if len(candidates) == 0 {
		return "", false
	}
	sort.Slice(candidates, func(i, j int) bool {
		if len(candidates[i].value) != len(candidates[j].value) {
			return len(candidates[i].value) > len(candidates[j].value)
		}
		return candidates[i].key < candidates[j].key
	})
	return candidates[0].value, true
}

func serializeRecord(record map[string]interface{}) (string, bool) {
	data, err := json.Marshal(record)
	if err != nil {
		return "", false
	}
	return string(data), true
}

// ExtractCategory resolves the quality bucket of one raw record. Resolution
// is tiered and stops at the first match: explicit rating fields (substring,
// then canonical set, then numeric), then a dynamic scan of any field whose
// name mentions rating or score. Empty category means no tier matched.
func ExtractCategory(raw interface{}) domain.RecordCategory {
	record := asRecord(raw)

	rating := ""
	for _, field := range ratingFields {
		if s, ok := stringValue(record, field); ok && s != "" {
			rating = s
			break
		}
	}
	rating = strings.ToLower(strings.TrimSpace(rating))

	if rating != "" {
		if strings.Contains(rating, "top") && strings.Contains(rating, "10") {
			return domain.CategoryTop10
		}
		if strings.Contains(rating, "bottom") && strings.Contains(rating, "10") {
			return domain.CategoryBottom10
		}
		for _, v := range topCanonical {
			if rating == v {
				return domain.CategoryTop10
			}
		}
		for _, v := range bottomCanonical {
			if rating == v {
				return domain.CategoryBottom10
			}
		}
		if num, err := strconv.ParseFloat(rating, 64); err == nil {
			return categoryFromNumber(num)
		}
	}

	// Dynamic discovery over field names.
	var keys []string
	for key := range record {
		lower := strings.ToLower(key)
		if strings.Contains(lower, "rating") || strings.Contains(lower, "score") {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		val, ok := stringValue(record, key)
		if !ok {
			continue
		}
		val = strings.ToLower(strings.TrimSpace(val))
		switch {
		case strings.Contains(val, "top") || val == "5" || val == "4":
			return domain.CategoryTop10
		case strings.Contains(val, "bottom") || val == "1" || val == "2":
			return domain.CategoryBottom10
		}
	}

	return domain.CategoryNone
}

// categoryFromNumber maps a numeric rating to a bucket. Whole numbers at or
// above 1 are read on the 1-5 ordinal scale; fractional or sub-1 values are
// read on the 0-1 normalized scale. Deciding the scale from the value shape
// keeps "1" (worst ordinal grade) out of the top bucket that 1.0 on the
// normalized scale would land in.
func categoryFromNumber(num float64) domain.RecordCategory {
	if num >= 1 && num == math.Trunc(num) {
		switch {
		case num >= 4:
			return domain.CategoryTop10
		case num <= 2:
			return domain.CategoryBottom10
		}
		return domain.CategoryNone
	}
	switch {
	case num > 0.8 && num <= 1.0:
		return domain.CategoryTop10
	case num >= 0 && num < 0.2:
		return domain.CategoryBottom10
	}
	return domain.CategoryNone
}

// asRecord normalizes a raw input into a key-value record. Bare values are
// wrapped under "value" so downstream metadata storage stays uniform.
func asRecord(raw interface{}) map[string]interface{} {
	switch v := raw.(type) {
	case map[string]interface{}:
		return v
	case map[string]string:
		out := make(map[string]interface{}, len(v))
		for key, value := range v {
			out[key] = value
		}
		return out
	default:
		return map[string]interface{}{"value": v}
	}
}

// stringValue reads a field and renders it as a string. Numbers keep their
// shortest decimal form so "5" and 5 resolve identically.
func stringValue(record map[string]interface{}, key string) (string, bool) {
	value, ok := record[key]
	if !ok || value == nil {
		return "", false
	}
	switch v := value.(type) {
	case string:
		return v, true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case int:
		return strconv.Itoa(v), true
	case bool:
		return strconv.FormatBool(v), true
	case json.Number:
		return v.String(), true
	default:
		return "", false
	}
}
