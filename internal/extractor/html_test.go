package extractor

import (
	"testing"
)

const listingPage = `
<html><body>
  <div class="listing">
    <div class="item">
      <h2 class="title">First</h2>
      <a class="detail" href="/items/1">view</a>
      <span class="price">9.99</span>
      <span class="tag">a</span><span class="tag">b</span>
    </div>
    <div class="item">
      <h2 class="title">Second</h2>
      <a class="detail" href="/items/2">view</a>
      <span class="tag">c</span>
    </div>
    <div class="item">
      <a class="detail" href="/items/3">view</a>
      <span class="price">3.50</span>
    </div>
  </div>
  <a class="next" href="/page/2">next</a>
</body></html>`

func htmlRules() RuleSet {
	return RuleSet{
		Container: "div.item",
		Fields: []FieldRule{
			{Name: "title", Selector: ".title", Mode: ModeText, Required: true},
			{Name: "link", Selector: "a.detail", Mode: ModeAttr, Attr: "href", Required: true},
			{Name: "price", Selector: ".price", Mode: ModeText},
			{Name: "tags", Selector: ".tag", Mode: ModeNested},
		},
		Pagination: &PaginationRule{Selector: "a.next", Attr: "href"},
		MinRecords: 1,
	}
}

func TestExtractHTMLScopesFieldsToContainer(t *testing.T) {
	result, err := extractHTML([]byte(listingPage), htmlRules())
	if err != nil {
		t.Fatalf("extractHTML: %v", err)
	}

	// The third item lacks the required title, so only two records survive.
	if len(result.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(result.Records))
	}

	first, second := result.Records[0], result.Records[1]
	if first["title"] != "First" || second["title"] != "Second" {
		t.Fatalf("titles leaked across containers: %v / %v", first["title"], second["title"])
	}
	if first["price"] != "9.99" {
		t.Fatalf("expected first price 9.99, got %v", first["price"])
	}
	// The second item has no price; the value must be empty, never a
	// sibling container's.
	if second["price"] != "" {
		t.Fatalf("expected empty price for second item, got %v", second["price"])
	}
	if second["link"] != "/items/2" {
		t.Fatalf("expected /items/2, got %v", second["link"])
	}
}

func TestExtractHTMLNestedMode(t *testing.T) {
	result, err := extractHTML([]byte(listingPage), htmlRules())
	if err != nil {
		t.Fatalf("extractHTML: %v", err)
	}
	tags, ok := result.Records[0]["tags"].([]string)
	if !ok {
		t.Fatalf("expected []string tags, got %T", result.Records[0]["tags"])
	}
	if len(tags) != 2 || tags[0] != "a" || tags[1] != "b" {
		t.Fatalf("unexpected tags: %v", tags)
	}
}

func TestExtractHTMLPagination(t *testing.T) {
	result, err := extractHTML([]byte(listingPage), htmlRules())
	if err != nil {
		t.Fatalf("extractHTML: %v", err)
	}
	if result.Next != "/page/2" {
		t.Fatalf("expected next /page/2, got %q", result.Next)
	}
}

func TestExtractHTMLNoPaginationMatchIsNotAnError(t *testing.T) {
	page := `<html><body><div class="item"><h2 class="title">Only</h2><a class="detail" href="/x">v</a></div></body></html>`
	result, err := extractHTML([]byte(page), htmlRules())
	if err != nil {
		t.Fatalf("extractHTML: %v", err)
	}
	if result.Next != "" {
		t.Fatalf("expected empty next location, got %q", result.Next)
	}
	if len(result.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(result.Records))
	}
}

func TestExtractHTMLWholeDocumentContainer(t *testing.T) {
	page := `<html><body><h1 class="title">Single</h1></body></html>`
	rules := RuleSet{
		Fields: []FieldRule{{Name: "title", Selector: ".title", Mode: ModeText, Required: true}},
	}
	result, err := extractHTML([]byte(page), rules)
	if err != nil {
		t.Fatalf("extractHTML: %v", err)
	}
	if len(result.Records) != 1 || result.Records[0]["title"] != "Single" {
		t.Fatalf("unexpected records: %v", result.Records)
	}
}

func TestExtractHTMLNormalisesWhitespace(t *testing.T) {
	page := "<html><body><div class=\"item\"><h2 class=\"title\">  Spaced\n\tOut  </h2><a class=\"detail\" href=\"/x\">v</a></div></body></html>"
	result, err := extractHTML([]byte(page), htmlRules())
	if err != nil {
		t.Fatalf("extractHTML: %v", err)
	}
	if result.Records[0]["title"] != "Spaced Out" {
		t.Fatalf("expected collapsed whitespace, got %q", result.Records[0]["title"])
	}
}

func TestExtractHTMLIsDeterministic(t *testing.T) {
	first, err := extractHTML([]byte(listingPage), htmlRules())
	if err != nil {
		t.Fatalf("extractHTML: %v", err)
	}
	second, err := extractHTML([]byte(listingPage), htmlRules())
	if err != nil {
		t.Fatalf("extractHTML: %v", err)
	}
	if len(first.Records) != len(second.Records) || first.Next != second.Next {
		t.Fatal("extraction of the same document produced different results")
	}
	for i := range first.Records {
		for _, key := range []string{"title", "link", "price"} {
			if first.Records[i][key] != second.Records[i][key] {
				t.Fatalf("record %d field %s differs between runs", i, key)
			}
		}
	}
}
