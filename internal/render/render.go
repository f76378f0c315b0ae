// Package render converts sliced XHTML node ranges into Markdown. Plain
// mode converts everything; rich mode keeps structurally complex or styled
// markup as raw HTML so fidelity survives the round trip.
package render

import (
	"bytes"
	"fmt"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"golang.org/x/net/html"

	"github.com/metcalfc/epub2md/internal/hrefs"
)

// Mode selects the Markdown rendering strategy.
type Mode string

const (
	// ModePlain converts all markup to Markdown.
	ModePlain Mode = "plain"

	// ModeRich preserves complex or styled elements as raw HTML.
	ModeRich Mode = "rich"
)

// ParseMode converts a flag value into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModePlain, ModeRich:
		return Mode(s), nil
	}
	return "", fmt.Errorf("render: unknown markdown mode %q", s)
}

// ImageResolver rewrites an image src. It receives the raw attribute value
// and returns the link to emit; returning src unchanged leaves the
// reference as-is.
type ImageResolver func(src string) string

// complexTags marks elements whose Markdown translation loses structure;
// rich mode passes them through as raw HTML.
var complexTags = map[string]bool{
	"table": true, "thead": true, "tbody": true, "tr": true, "td": true,
	"th": true, "figure": true, "figcaption": true, "svg": true, "math": true,
}

// kind discriminates the node variants rich mode handles.
type kind int

const (
	kindText     kind = iota // bare text between elements
	kindPreserve             // element kept as raw HTML
	kindConvert              // element converted to Markdown
)

// Nodes renders a slice of top-level body children to Markdown. Image srcs
// are rewritten through resolve before conversion. Returns "" when the
// range holds no renderable content.
func Nodes(nodes []*html.Node, mode Mode, resolve ImageResolver) (string, error) {
	if len(nodes) == 0 {
		return "", nil
	}
	for _, n := range nodes {
		rewriteImages(n, resolve)
	}

	if mode == ModeRich {
		return richChunks(nodes)
	}

	var sb strings.Builder
	for _, n := range nodes {
		sb.WriteString(serialize(n))
	}
	md, err := htmltomarkdown.ConvertString(sb.String())
	if err != nil {
		return "", fmt.Errorf("render: convert markdown: %w", err)
	}
	return strings.TrimSpace(md), nil
}

// richChunks classifies each node as text, preserved markup, or convertible
// markup, and joins the rendered pieces.
func richChunks(nodes []*html.Node) (string, error) {
	var chunks []string
	for _, n := range nodes {
		switch classify(n) {
		case kindText:
			if t := strings.TrimSpace(n.Data); t != "" {
				chunks = append(chunks, t)
			}
		case kindPreserve:
			chunks = append(chunks, strings.TrimSpace(serialize(n)))
		case kindConvert:
			md, err := htmltomarkdown.ConvertString(serialize(n))
			if err != nil {
				return "", fmt.Errorf("render: convert markdown: %w", err)
			}
			if md = strings.TrimSpace(md); md != "" {
				chunks = append(chunks, md)
			}
		}
	}
	return strings.Join(chunks, "\n\n"), nil
}

// classify tags one top-level node for rich-mode handling. Anything carrying
// class or style attributes anywhere in its subtree keeps its markup, since
// the style header may reference it.
func classify(n *html.Node) kind {
	if n.Type == html.TextNode {
		return kindText
	}
	if isComplex(n) {
		return kindPreserve
	}
	return kindConvert
}

// isComplex reports whether n is a complex element or styles anything in
// its subtree.
func isComplex(n *html.Node) bool {
	if n.Type == html.ElementNode && complexTags[n.Data] {
		return true
	}
	var styled func(*html.Node) bool
	styled = func(n *html.Node) bool {
		if n.Type == html.ElementNode {
			for _, a := range n.Attr {
				if a.Key == "class" || a.Key == "style" {
					return true
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if styled(c) {
				return true
			}
		}
		return false
	}
	return styled(n)
}

// rewriteImages rewrites src on <img> elements (and href on SVG <image>)
// throughout the subtree.
func rewriteImages(n *html.Node, resolve ImageResolver) {
	if resolve == nil {
		return
	}
	if n.Type == html.ElementNode {
		switch n.Data {
		case "img":
			rewriteAttr(n, "src", resolve)
		case "image":
			rewriteAttr(n, "href", resolve)
			rewriteAttr(n, "xlink:href", resolve)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		rewriteImages(c, resolve)
	}
}

func rewriteAttr(n *html.Node, key string, resolve ImageResolver) {
	for i, a := range n.Attr {
		matches := a.Key == key || (a.Namespace != "" && a.Namespace+":"+a.Key == key)
		if !matches || a.Val == "" || hrefs.IsExternal(a.Val) {
			continue
		}
		n.Attr[i].Val = resolve(a.Val)
	}
}

// serialize renders a node subtree back to HTML.
func serialize(n *html.Node) string {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return ""
	}
	return buf.String()
}
