package novel

import (
	"encoding/json"
	"regexp"
	"strings"
)

// cleanJSONResponse strips markdown code-fence framing and extracts the
// first balanced JSON object from an LLM response, tolerating the kind of
// surrounding prose and fence markers real providers emit.
func cleanJSONResponse(response string) string {
	response = strings.TrimSpace(response)

	if strings.HasPrefix(response, "```") {
		response = strings.TrimPrefix(response, "```json")
		response = strings.TrimPrefix(response, "```")
		if idx := strings.LastIndex(response, "```"); idx != -1 {
			response = response[:idx]
		}
		response = strings.TrimSpace(response)
	}

	return extractJSONObject(response)
}

// extractJSONObject returns the first brace-balanced {...} substring, with
// literal control characters inside string values escaped so that
// providers that emit raw newlines in prose fields still parse.
func extractJSONObject(s string) string {
	if isValidJSON(s) {
		return s
	}

	start := strings.Index(s, "{")
	if start == -1 {
		return s
	}

	depth := 0
	end := -1
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			if escaped {
				escaped = false
				continue
			}
			if c == '\\' {
				escaped = true
				continue
			}
			if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				end = i + 1
			}
		}
		if end != -1 {
			break
		}
	}
	if end == -1 {
		return s
	}

	candidate := fixJSONStringContents(s[start:end])
	if isValidJSON(candidate) {
		return candidate
	}
	return s
}

var jsonStringRe = regexp.MustCompile(`"([^"\\]*(\\.[^"\\]*)*)`)
var trailingCommaRe = regexp.MustCompile(`,(\s*[}\]])`)

// fixJSONStringContents escapes literal newlines/tabs/carriage returns found
// inside JSON string values, the single most common way provider output
// otherwise fails to parse.
func fixJSONStringContents(s string) string {
	s = jsonStringRe.ReplaceAllStringFunc(s, func(match string) string {
		if len(match) == 0 {
			return match
		}
		content := match[1:]
		content = strings.ReplaceAll(content, "\n", "\\n")
		content = strings.ReplaceAll(content, "\r", "\\r")
		content = strings.ReplaceAll(content, "\t", "\\t")
		return `"` + content
	})
	return trailingCommaRe.ReplaceAllString(s, "$1")
}

// unmarshalInto is a thin json.Unmarshal wrapper kept alongside the other
// JSON helpers so call sites read uniformly.
func unmarshalInto(cleaned string, dst any) error {
	return json.Unmarshal([]byte(cleaned), dst)
}

func isValidJSON(s string) bool {
	var v interface{}
	return json.Unmarshal([]byte(s), &v) == nil
}

// parseJSONRetrying parses an LLM response into dst (a pointer), cleaning the
// response first. call is invoked up to maxAttempts times, re-issuing a
// fresh request on a parse failure, matching §4.2's "retries up to 3x with
// fresh calls" behavior used throughout the pipeline's JSON-producing calls.
func parseJSONRetrying(dst any, maxAttempts int, call func() (string, error)) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		raw, err := call()
		if err != nil {
			lastErr = err
			continue
		}
		cleaned := cleanJSONResponse(raw)
		if err := json.Unmarshal([]byte(cleaned), dst); err != nil {
			lastErr = err
			continue
		}
		return raw, nil
	}
	return "", lastErr
}
