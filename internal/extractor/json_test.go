package extractor

import (
	"testing"
)

const apiPage = `{
  "data": {
    "items": [
      {"name": "alpha", "price": 12.5, "meta": {"sku": "A-1"}, "tags": ["x", "y"]},
      {"name": "beta", "meta": {"sku": "B-2"}},
      {"price": 3, "meta": {"sku": "C-3"}}
    ],
    "next": "/api/items?page=2"
  }
}`

func jsonRules() RuleSet {
	return RuleSet{
		RecordsPath: "data.items",
		Fields: []FieldRule{
			{Name: "name", Required: true},
			{Name: "price", KeyPath: "price"},
			{Name: "sku", KeyPath: "meta.sku", Required: true},
			{Name: "first_tag", KeyPath: "tags.0"},
			{Name: "tags", KeyPath: "tags", Mode: ModeNested},
		},
		Pagination: &PaginationRule{KeyPath: "data.next"},
		MinRecords: 1,
	}
}

func TestExtractJSONKeyPaths(t *testing.T) {
	result, err := extractJSON([]byte(apiPage), jsonRules())
	if err != nil {
		t.Fatalf("extractJSON: %v", err)
	}

	// The third item has no name, a required field, so it is dropped.
	if len(result.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(result.Records))
	}

	first := result.Records[0]
	if first["name"] != "alpha" {
		t.Fatalf("expected name alpha, got %v", first["name"])
	}
	if first["price"] != "12.5" {
		t.Fatalf("expected stringified price 12.5, got %v", first["price"])
	}
	if first["sku"] != "A-1" {
		t.Fatalf("expected nested sku A-1, got %v", first["sku"])
	}
	if first["first_tag"] != "x" {
		t.Fatalf("expected array index lookup to yield x, got %v", first["first_tag"])
	}

	second := result.Records[1]
	if second["price"] != "" {
		t.Fatalf("expected empty optional price, got %v", second["price"])
	}
}

func TestExtractJSONNestedKeepsStructure(t *testing.T) {
	result, err := extractJSON([]byte(apiPage), jsonRules())
	if err != nil {
		t.Fatalf("extractJSON: %v", err)
	}
	tags, ok := result.Records[0]["tags"].([]any)
	if !ok {
		t.Fatalf("expected decoded array for nested rule, got %T", result.Records[0]["tags"])
	}
	if len(tags) != 2 || tags[0] != "x" {
		t.Fatalf("unexpected tags: %v", tags)
	}
}

func TestExtractJSONPagination(t *testing.T) {
	result, err := extractJSON([]byte(apiPage), jsonRules())
	if err != nil {
		t.Fatalf("extractJSON: %v", err)
	}
	if result.Next != "/api/items?page=2" {
		t.Fatalf("expected next pointer, got %q", result.Next)
	}
}

func TestExtractJSONRootArray(t *testing.T) {
	body := `[{"name": "only"}]`
	rules := RuleSet{
		Fields: []FieldRule{{Name: "name", Required: true}},
	}
	result, err := extractJSON([]byte(body), rules)
	if err != nil {
		t.Fatalf("extractJSON: %v", err)
	}
	if len(result.Records) != 1 || result.Records[0]["name"] != "only" {
		t.Fatalf("unexpected records: %v", result.Records)
	}
}

func TestExtractJSONMissingRecordsPathYieldsEmptyPage(t *testing.T) {
	result, err := extractJSON([]byte(`{"data": {}}`), jsonRules())
	if err != nil {
		t.Fatalf("extractJSON: %v", err)
	}
	if len(result.Records) != 0 {
		t.Fatalf("expected no records, got %d", len(result.Records))
	}
	if result.Next != "" {
		t.Fatalf("expected no next pointer, got %q", result.Next)
	}
}

func TestExtractJSONWrongShapeIsAnError(t *testing.T) {
	if _, err := extractJSON([]byte(`{"data": {"items": "not a list"}}`), jsonRules()); err == nil {
		t.Fatal("expected error for non-array records path, got nil")
	}
	if _, err := extractJSON([]byte(`{invalid`), jsonRules()); err == nil {
		t.Fatal("expected error for malformed json, got nil")
	}
}
