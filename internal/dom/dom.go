// Package dom slices parsed XHTML documents at fragment-anchor granularity.
// Slices are ranges of the body's direct children, so the renderer always
// receives whole subtrees and never a split inside a tag.
package dom

import (
	"errors"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ErrAnchorNotFound indicates that a fragment has no matching id attribute
// and no matching <a name=...> element in the document.
var ErrAnchorNotFound = errors.New("dom: anchor not found")

// AnchorLocation is the position of a fragment anchor, expressed as the
// index of the top-level body child that contains the anchor element.
type AnchorLocation struct {
	TopLevelChildIndex int
}

// Body returns the <body> element of a parsed document, or nil when the
// document has none.
func Body(doc *html.Node) *html.Node {
	return findElement(doc, atom.Body)
}

// BodyChildren returns the direct children of the document body in order.
func BodyChildren(doc *html.Node) []*html.Node {
	body := Body(doc)
	if body == nil {
		return nil
	}
	var children []*html.Node
	for c := body.FirstChild; c != nil; c = c.NextSibling {
		children = append(children, c)
	}
	return children
}

// LocateAnchor resolves a fragment id to the top-level body child that
// contains the anchor element. Resolution tries id attributes first, then
// falls back to <a name=...>. Returns ErrAnchorNotFound when the fragment
// matches nothing or the anchor sits outside the body.
func LocateAnchor(doc *html.Node, fragment string) (AnchorLocation, error) {
	anchor := findAnchor(doc, fragment)
	if anchor == nil {
		return AnchorLocation{}, ErrAnchorNotFound
	}
	body := Body(doc)
	if body == nil {
		return AnchorLocation{}, ErrAnchorNotFound
	}
	top := topLevelChild(body, anchor)
	if top == nil {
		return AnchorLocation{}, ErrAnchorNotFound
	}
	idx := 0
	for c := body.FirstChild; c != nil; c = c.NextSibling {
		if c == top {
			return AnchorLocation{TopLevelChildIndex: idx}, nil
		}
		idx++
	}
	return AnchorLocation{}, ErrAnchorNotFound
}

// SliceBody returns the body children belonging to the window delimited by
// startFragment (inclusive) and endFragment (exclusive). Empty fragments
// mean "from the beginning" and "to the end" respectively. A fragment that
// fails to resolve degrades to the corresponding document edge, so a broken
// anchor costs precision but never loses a chapter.
func SliceBody(doc *html.Node, startFragment, endFragment string) []*html.Node {
	children := BodyChildren(doc)
	if len(children) == 0 {
		return nil
	}

	start := 0
	if startFragment != "" {
		if loc, err := LocateAnchor(doc, startFragment); err == nil {
			start = loc.TopLevelChildIndex
		}
	}

	end := len(children)
	if endFragment != "" {
		if loc, err := LocateAnchor(doc, endFragment); err == nil && loc.TopLevelChildIndex > start {
			end = loc.TopLevelChildIndex
		}
	}

	if start >= end {
		return nil
	}
	return children[start:end]
}

// findAnchor finds the element whose id equals fragment, falling back to an
// <a> element whose name attribute equals fragment.
func findAnchor(doc *html.Node, fragment string) *html.Node {
	if n := findByAttr(doc, "", "id", fragment); n != nil {
		return n
	}
	return findByAttr(doc, "a", "name", fragment)
}

// findByAttr depth-first searches for an element with the given attribute
// value. An empty tag matches any element.
func findByAttr(n *html.Node, tag, key, val string) *html.Node {
	if n.Type == html.ElementNode && (tag == "" || n.Data == tag) {
		for _, a := range n.Attr {
			if a.Key == key && a.Val == val {
				return n
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByAttr(c, tag, key, val); found != nil {
			return found
		}
	}
	return nil
}

// topLevelChild walks up from node to the direct child of body that
// contains it. Returns body itself unchanged as nil (anchors on <body>
// have no containing child).
func topLevelChild(body, node *html.Node) *html.Node {
	current := node
	for current != nil {
		parent := current.Parent
		if parent == body {
			return current
		}
		current = parent
	}
	return nil
}

// findElement depth-first searches for the first element with the given atom.
func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}
