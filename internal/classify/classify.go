// Package classify decides how a fetched document should be extracted:
// as self-contained markup, as a machine-readable JSON payload, or through
// a rendering backend.
package classify

import (
	"bytes"
	"encoding/json"
	"mime"
	"strings"

	"golang.org/x/net/html"

	"pagewalker/pkg/types"
)

// Classify inspects the declared content type first and falls back to a
// structural probe of the body when the header is absent or ambiguous.
func Classify(page *types.Page) types.DocKind {
	if page == nil {
		return types.KindHTML
	}

	if mediaType := parseMediaType(page.ContentType); mediaType != "" {
		switch {
		case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
			return types.KindJSON
		case mediaType == "text/html" || mediaType == "application/xhtml+xml":
			return probeMarkup(page.Body)
		}
	}
	return probe(page.Body)
}

// NeedsRendering is the escalation heuristic: a document that classified as
// markup but produced zero records where the rules expected at least one.
// It is probabilistic, not a guarantee -- a genuinely empty listing page and
// a page whose content is injected client-side are indistinguishable here.
func NeedsRendering(kind types.DocKind, matched, expected int) bool {
	return kind == types.KindHTML && expected > 0 && matched == 0
}

func parseMediaType(contentType string) string {
	if strings.TrimSpace(contentType) == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return strings.ToLower(mediaType)
}

// probe attempts to parse the body as JSON first (the cheaper, stricter
// check) and treats anything that parses as markup as HTML.
func probe(body []byte) types.DocKind {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return types.KindHTML
	}
	if trimmed[0] == '{' || trimmed[0] == '[' {
		if json.Valid(trimmed) {
			return types.KindJSON
		}
	}
	return probeMarkup(trimmed)
}

// probeMarkup separates markup that carries its content from an empty shell
// whose body holds nothing but scripts, the signature of a page rendered
// client-side.
func probeMarkup(body []byte) types.DocKind {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return types.KindHTML
	}
	bodyNode := findElement(doc, "body")
	if bodyNode == nil {
		return types.KindHTML
	}
	var inert, content int
	for child := bodyNode.FirstChild; child != nil; child = child.NextSibling {
		countNodes(child, &inert, &content)
	}
	if inert > 0 && content == 0 {
		return types.KindNeedsRendering
	}
	return types.KindHTML
}

func findElement(n *html.Node, name string) *html.Node {
	if n.Type == html.ElementNode && n.Data == name {
		return n
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if found := findElement(child, name); found != nil {
			return found
		}
	}
	return nil
}

// countNodes tallies renderable content against inert machinery (scripts,
// styles, metadata) under a node. Elements like script never contribute
// content, whatever they contain.
func countNodes(n *html.Node, inert, content *int) {
	switch n.Type {
	case html.ElementNode:
		switch n.Data {
		case "script", "noscript", "style", "template", "link", "meta":
			*inert++
			return
		default:
			*content++
		}
	case html.TextNode:
		if strings.TrimSpace(n.Data) != "" {
			*content++
		}
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		countNodes(child, inert, content)
	}
}
