package extractor

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"pagewalker/pkg/types"
)

// extractJSON treats field rules as key paths into the decoded payload.
// RecordsPath locates the repeating array; field paths resolve relative to
// each element.
func extractJSON(body []byte, rules RuleSet) (Result, error) {
	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return Result{}, fmt.Errorf("decode json: %w", err)
	}

	items, err := recordItems(payload, rules.RecordsPath)
	if err != nil {
		return Result{}, err
	}

	var records []types.Record
	for _, item := range items {
		rec := make(types.Record, len(rules.Fields))
		dropped := false
		for _, field := range rules.Fields {
			path := field.KeyPath
			if path == "" {
				path = field.Name
			}
			value, ok := resolveKeyPath(item, path)
			if !ok || value == nil {
				if field.Required {
					dropped = true
					break
				}
				rec[field.Name] = ""
				continue
			}
			rec[field.Name] = convertJSONValue(value, field.Mode)
		}
		if dropped {
			continue
		}
		records = append(records, rec)
	}

	result := Result{Records: records}
	if rules.Pagination != nil && rules.Pagination.KeyPath != "" {
		if value, ok := resolveKeyPath(payload, rules.Pagination.KeyPath); ok {
			if s, isString := value.(string); isString {
				result.Next = strings.TrimSpace(s)
			}
		}
	}
	return result, nil
}

func recordItems(payload any, recordsPath string) ([]any, error) {
	root := payload
	if recordsPath != "" {
		resolved, ok := resolveKeyPath(payload, recordsPath)
		if !ok {
			// A missing list is an empty page, not a broken one.
			return nil, nil
		}
		root = resolved
	}
	items, ok := root.([]any)
	if !ok {
		return nil, fmt.Errorf("records path %q does not resolve to an array", recordsPath)
	}
	return items, nil
}

// resolveKeyPath walks a dotted path through maps and arrays. Numeric
// segments index arrays.
func resolveKeyPath(value any, path string) (any, bool) {
	current := value
	for _, segment := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[segment]
			if !ok {
				return nil, false
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

func convertJSONValue(value any, mode FieldMode) any {
	if mode == ModeNested {
		return value
	}
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		// Structured value under a scalar rule: keep it rather than lose it.
		return v
	}
}
