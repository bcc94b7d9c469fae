package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/thinkdifferentdot/maybe/internal/model"
)

const (
	excerptLength      = 200
	categorizationsKey = "categorizations"
)

var (
	thinkingOpenRe  = regexp.MustCompile(`(?i)<(?:think|thinking)>`)
	thinkingCloseRe = regexp.MustCompile(`(?i)</(?:think|thinking)>`)
	closedFenceRe   = regexp.MustCompile("(?s)```(?:json)?[ \t]*\\n?(.*?)```")
	unclosedFenceRe = regexp.MustCompile(`(?s)^(?:json)?\s*(\[.*\]|\{.*\})\s*$`)
	anyObjectRe     = regexp.MustCompile(`(?s)\{.*\}`)
)

// ParseJSON recovers a JSON document from free-form model output. It tries,
// in order: stripping reasoning tags, a direct parse, closed code fences
// (last block first), an unclosed trailing fence, an object keyed by
// expectedKey and finally the widest {...} span. When a leading reasoning
// block was stripped and nothing parses, the chain runs again on the full
// text.
func ParseJSON(raw, expectedKey string) (json.RawMessage, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, &ParseError{}
	}

	candidates := []string{text}
	if stripped := stripThinking(text); stripped != text {
		candidates = []string{stripped, text}
	}

	strategies := []func(text, key string) (json.RawMessage, bool){
		parseDirect,
		parseClosedFence,
		parseUnclosedFence,
		parseKeyedObject,
		parseAnyObject,
	}
	for _, candidate := range candidates {
		for _, strategy := range strategies {
			if doc, ok := strategy(candidate, expectedKey); ok {
				return doc, nil
			}
		}
	}

	return nil, &ParseError{Excerpt: truncate(raw, excerptLength)}
}

// stripThinking removes a leading reasoning block. Text after the last closer
// wins; when that is empty, or the block was never closed, the text inside
// the block is used instead. Text that does not start with a block is
// returned unchanged.
func stripThinking(text string) string {
	open := thinkingOpenRe.FindStringIndex(text)
	if open == nil || open[0] != 0 {
		return text
	}

	closers := thinkingCloseRe.FindAllStringIndex(text, -1)
	if len(closers) == 0 {
		return strings.TrimSpace(text[open[1]:])
	}

	last := closers[len(closers)-1]
	if after := strings.TrimSpace(text[last[1]:]); after != "" {
		return after
	}

	if open[1] <= closers[0][0] {
		if inside := strings.TrimSpace(text[open[1]:closers[0][0]]); inside != "" {
			return inside
		}
	}
	return text
}

func parseDirect(text, _ string) (json.RawMessage, bool) {
	return validJSON(text)
}

func parseClosedFence(text, _ string) (json.RawMessage, bool) {
	blocks := closedFenceRe.FindAllStringSubmatch(text, -1)
	for _, prefix := range []byte{'[', '{'} {
		for i := len(blocks) - 1; i >= 0; i-- {
			body := strings.TrimSpace(blocks[i][1])
			if body == "" || body[0] != prefix {
				continue
			}
			if doc, ok := validJSON(body); ok {
				return doc, true
			}
		}
	}
	return nil, false
}

func parseUnclosedFence(text, _ string) (json.RawMessage, bool) {
	idx := strings.LastIndex(text, "```")
	if idx < 0 {
		return nil, false
	}
	m := unclosedFenceRe.FindStringSubmatch(text[idx+3:])
	if m == nil {
		return nil, false
	}
	return validJSON(m[1])
}

// parseKeyedObject looks for a JSON object with key at its top level,
// trying the last candidate first.
func parseKeyedObject(text, key string) (json.RawMessage, bool) {
	if key == "" {
		return nil, false
	}
	for i := strings.LastIndexByte(text, '{'); i >= 0; i = strings.LastIndexByte(text[:i], '{') {
		dec := json.NewDecoder(strings.NewReader(text[i:]))
		var fields map[string]json.RawMessage
		if err := dec.Decode(&fields); err != nil {
			continue
		}
		if _, ok := fields[key]; ok {
			return json.RawMessage(text[i : i+int(dec.InputOffset())]), true
		}
	}
	return nil, false
}

func parseAnyObject(text, _ string) (json.RawMessage, bool) {
	m := anyObjectRe.FindString(text)
	if m == "" {
		return nil, false
	}
	return validJSON(m)
}

func validJSON(s string) (json.RawMessage, bool) {
	s = strings.TrimSpace(s)
	if s == "" || !json.Valid([]byte(s)) {
		return nil, false
	}
	return json.RawMessage(s), true
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-3]) + "..."
}

// flexibleString accepts ids sent as JSON strings or numbers.
type flexibleString string

func (f *flexibleString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexibleString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("transaction_id must be a string or number: %w", err)
	}
	*f = flexibleString(n.String())
	return nil
}

type categorizationItem struct {
	CategoryName  *string        `json:"category_name"`
	Confidence    *float64       `json:"confidence"`
	TransactionID flexibleString `json:"transaction_id"`
}

// decodeCategorizations reads either {"categorizations": [...]} or a bare
// array of categorization items.
func decodeCategorizations(doc json.RawMessage) ([]model.AutoCategorization, error) {
	trimmed := bytes.TrimSpace(doc)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty categorization payload")
	}

	var items []categorizationItem
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("failed to decode categorizations: %w", err)
		}
	} else {
		var wrapper struct {
			Categorizations *[]categorizationItem `json:"categorizations"`
		}
		if err := json.Unmarshal(trimmed, &wrapper); err != nil {
			return nil, fmt.Errorf("failed to decode categorizations: %w", err)
		}
		if wrapper.Categorizations == nil {
			return nil, fmt.Errorf("response has no %q key", categorizationsKey)
		}
		items = *wrapper.Categorizations
	}

	results := make([]model.AutoCategorization, 0, len(items))
	for _, item := range items {
		id := strings.TrimSpace(string(item.TransactionID))
		if id == "" {
			continue
		}
		results = append(results, model.AutoCategorization{
			TransactionID: id,
			CategoryName:  item.CategoryName,
			Confidence:    normalizeConfidence(item.Confidence),
		})
	}
	return results, nil
}

// normalizeConfidence maps percentages onto [0,1] and drops values that fit neither scale.
func normalizeConfidence(c *float64) *float64 {
	if c == nil {
		return nil
	}
	v := *c
	if v > 1 && v <= 100 {
		v /= 100
	}
	if v < 0 || v > 1 {
		return nil
	}
	return &v
}
