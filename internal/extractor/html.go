package extractor

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"pagewalker/pkg/types"
)

// extractHTML locates the repeating container once and applies every field
// rule relative to each container node. Scoping to the container is the load
// bearing rule here: an unscoped query would silently collect values from
// sibling sections of the page.
func extractHTML(body []byte, rules RuleSet) (Result, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("parse html: %w", err)
	}

	var containers *goquery.Selection
	if rules.Container != "" {
		containers = doc.Find(rules.Container)
	} else {
		containers = doc.Selection
	}

	var records []types.Record
	containers.Each(func(_ int, container *goquery.Selection) {
		rec := make(types.Record, len(rules.Fields))
		for _, field := range rules.Fields {
			value, ok := applyHTMLField(container, field)
			if !ok {
				if field.Required {
					return // drop this record, not the page
				}
				rec[field.Name] = ""
				continue
			}
			rec[field.Name] = value
		}
		records = append(records, rec)
	})

	result := Result{Records: records}
	if rules.Pagination != nil && rules.Pagination.Selector != "" {
		result.Next = htmlNext(doc, *rules.Pagination)
	}
	return result, nil
}

func applyHTMLField(container *goquery.Selection, field FieldRule) (any, bool) {
	scope := container
	if field.Selector != "" {
		scope = container.Find(field.Selector)
	}
	if scope.Length() == 0 {
		return nil, false
	}

	switch field.Mode {
	case ModeAttr:
		raw, exists := scope.First().Attr(field.Attr)
		if !exists {
			return nil, false
		}
		return strings.TrimSpace(raw), true
	case ModeNested:
		values := make([]string, 0, scope.Length())
		scope.Each(func(_ int, s *goquery.Selection) {
			values = append(values, normaliseText(s.Text()))
		})
		return values, true
	default: // ModeText
		text := normaliseText(scope.First().Text())
		if text == "" {
			return nil, false
		}
		return text, true
	}
}

func htmlNext(doc *goquery.Document, rule PaginationRule) string {
	sel := doc.Find(rule.Selector)
	if sel.Length() == 0 {
		return ""
	}
	attr := rule.Attr
	if attr == "" {
		attr = "href"
	}
	raw, exists := sel.First().Attr(attr)
	if !exists {
		return ""
	}
	return strings.TrimSpace(raw)
}

// normaliseText collapses runs of whitespace so values survive pretty-printed
// markup intact.
func normaliseText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
