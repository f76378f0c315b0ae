package render

import (
	"strings"

	"golang.org/x/net/html"
)

// Stylesheet references collected from a document head.
type Stylesheets struct {
	// Hrefs lists external stylesheets from <link rel="stylesheet">,
	// as written in the document.
	Hrefs []string

	// Inline holds the text of <style> blocks, in document order.
	Inline []string
}

// CollectStylesheets walks a parsed document and gathers its stylesheet
// links and inline style blocks.
func CollectStylesheets(doc *html.Node) Stylesheets {
	var out Stylesheets
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "link":
				if linkRel(n) == "stylesheet" {
					if href := attrVal(n, "href"); href != "" {
						out.Hrefs = append(out.Hrefs, href)
					}
				}
			case "style":
				if css := strings.TrimSpace(textOf(n)); css != "" {
					out.Inline = append(out.Inline, css)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out
}

func linkRel(n *html.Node) string {
	return strings.ToLower(strings.TrimSpace(attrVal(n, "rel")))
}

func attrVal(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textOf(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
