// Package extractor turns fetched documents into structured records under a
// declarative rule set. Extraction is a pure function of (document, kind,
// rules): the same document always yields the same records.
package extractor

import (
	"pagewalker/internal/config"
	"pagewalker/pkg/types"
)

// FieldMode selects how a field rule pulls its value out of a matched node.
type FieldMode string

const (
	// ModeText extracts the trimmed text content of the first match.
	ModeText FieldMode = "text"
	// ModeAttr extracts a named attribute of the first match.
	ModeAttr FieldMode = "attr"
	// ModeNested extracts a nested structure: every match's text in HTML
	// documents, the raw decoded value in JSON documents.
	ModeNested FieldMode = "nested"
)

// FieldRule is one named extraction rule. Selector scopes HTML lookups to the
// current container; KeyPath addresses JSON payloads relative to the current
// element. A required field that fails to resolve drops the record, never the
// whole page.
type FieldRule struct {
	Name     string
	Selector string
	Mode     FieldMode
	Attr     string
	KeyPath  string
	Required bool
}

// PaginationRule identifies the next-page pointer. A rule that matches
// nothing is the normal termination signal, not an error.
type PaginationRule struct {
	Selector string
	Attr     string
	KeyPath  string
}

// RuleSet is an ordered list of field rules plus the structural hints needed
// to locate repeating units.
type RuleSet struct {
	// Container is the repeating-unit selector for HTML documents. Empty
	// means the whole document forms a single container.
	Container string
	// RecordsPath is the key path of the repeating array in JSON documents.
	// Empty means the payload root must itself be an array.
	RecordsPath string
	Fields      []FieldRule
	Pagination  *PaginationRule
	// MinRecords is the number of records the rules are expected to find on
	// a well-formed page; it feeds the rendering-escalation heuristic.
	MinRecords int
}

// Result is the outcome of extracting one document.
type Result struct {
	Records []types.Record
	// Next is the raw next-location as discovered, possibly relative. The
	// crawl loop resolves it against the location it was discovered on.
	Next string
}

// FromTarget compiles a target configuration into a RuleSet.
func FromTarget(t config.TargetConfig) RuleSet {
	rules := RuleSet{
		Container:   t.Container,
		RecordsPath: t.RecordsPath,
		MinRecords:  t.MinRecords,
		Fields:      make([]FieldRule, 0, len(t.Fields)),
	}
	for _, f := range t.Fields {
		rules.Fields = append(rules.Fields, FieldRule{
			Name:     f.Name,
			Selector: f.Selector,
			Mode:     FieldMode(f.Mode),
			Attr:     f.Attr,
			KeyPath:  f.KeyPath,
			Required: f.Required,
		})
	}
	if t.Pagination != nil {
		rules.Pagination = &PaginationRule{
			Selector: t.Pagination.Selector,
			Attr:     t.Pagination.Attr,
			KeyPath:  t.Pagination.KeyPath,
		}
	}
	return rules
}

// Extract routes to the extractor variant matching the document kind.
func Extract(page *types.Page, kind types.DocKind, rules RuleSet) (Result, error) {
	switch kind {
	case types.KindJSON:
		return extractJSON(page.Body, rules)
	default:
		return extractHTML(page.Body, rules)
	}
}
