// Package json provides JSON extraction utilities for parsing LLM responses.
//
// Models often wrap JSON in markdown fences or surround it with commentary.
// This package finds the first balanced JSON object in such text and decodes it.
package json

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoJSON is returned when a response contains no decodable JSON object.
var ErrNoJSON = errors.New("no JSON object found in response")

// extractJSON returns the JSON object text embedded in response.
// It handles:
// 1. Pure JSON responses
// 2. JSON wrapped in markdown code fences (```json ... ```)
// 3. A JSON object embedded in prose, located by brace matching that
//    skips braces inside string literals
func extractJSON(response string) (string, error) {
	response = stripMarkdownCodeBlocks(response)

	if json.Valid([]byte(response)) && strings.HasPrefix(strings.TrimSpace(response), "{") {
		return strings.TrimSpace(response), nil
	}

	for start := strings.IndexByte(response, '{'); start >= 0; {
		if end := matchBrace(response, start); end > start {
			candidate := response[start : end+1]
			if json.Valid([]byte(candidate)) {
				return candidate, nil
			}
		}
		next := strings.IndexByte(response[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}

	preview := response
	if len(preview) > 100 {
		preview = preview[:100] + "..."
	}
	return "", fmt.Errorf("%w: %q", ErrNoJSON, preview)
}

// matchBrace returns the index of the brace closing the object opened at
// start, or -1 when the object is unbalanced.
func matchBrace(s string, start int) int {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// stripMarkdownCodeBlocks removes a surrounding markdown fence,
// such as ```json\n...\n``` or ```\n...\n```.
func stripMarkdownCodeBlocks(response string) string {
	trimmed := strings.TrimSpace(response)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if nl := strings.IndexByte(trimmed, '\n'); nl >= 0 && !strings.ContainsAny(trimmed[:nl], "{[") {
		trimmed = trimmed[nl+1:]
	}
	trimmed = strings.TrimSpace(trimmed)
	return strings.TrimSpace(strings.TrimSuffix(trimmed, "```"))
}

// ExtractJSONFromResponse extracts and decodes the first JSON object in response.
func ExtractJSONFromResponse[T any](response string) (T, error) {
	var result T
	jsonStr, err := extractJSON(response)
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return result, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return result, nil
}

// ExtractJSON returns the raw text of the first JSON object in response.
func ExtractJSON(response string) (string, error) {
	return extractJSON(response)
}
