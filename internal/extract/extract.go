// Package extract pulls structured JSON out of free-form model text.
package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// ErrNoJSON indicates that no parseable JSON was found in the model text.
var ErrNoJSON = errors.New("no valid JSON found in model response")

// jsonPattern matches a fenced code block (with or without a json language
// tag) or the first brace-delimited object, whichever appears first in a
// single left-to-right scan.
var jsonPattern = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)\\s*```|(\\{[\\s\\S]*?\\})")

// JSON extracts and parses JSON from LLM response text. If no fenced block
// or brace-delimited object is present, the entire trimmed text is parsed as
// a last resort.
func JSON(content string) (any, error) {
	candidate := content
	if match := jsonPattern.FindStringSubmatch(content); match != nil {
		candidate = match[1]
		if candidate == "" {
			candidate = match[2]
		}
		slog.Debug("extracted JSON candidate from formatted block")
	} else {
		slog.Debug("no JSON block found, attempting to parse entire content")
	}

	var value any
	if err := json.Unmarshal([]byte(strings.TrimSpace(candidate)), &value); err != nil {
		slog.Debug("failed to parse model response as JSON", "err", err)
		return nil, fmt.Errorf("%w: %v", ErrNoJSON, err)
	}
	return value, nil
}
