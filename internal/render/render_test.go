package render

import (
	"strings"
	"testing"

	"golang.org/x/net/html"

	"github.com/metcalfc/epub2md/internal/dom"
)

func parseBody(t *testing.T, body string) []*html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader("<html><head></head><body>" + body + "</body></html>"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return dom.BodyChildren(doc)
}

func TestParseMode(t *testing.T) {
	if _, err := ParseMode("plain"); err != nil {
		t.Errorf("plain: %v", err)
	}
	if _, err := ParseMode("rich"); err != nil {
		t.Errorf("rich: %v", err)
	}
	if _, err := ParseMode("fancy"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestNodesPlainHeadingsAndParagraphs(t *testing.T) {
	nodes := parseBody(t, "<h1>Chapter One</h1><p>It was a dark and stormy night.</p>")
	md, err := Nodes(nodes, ModePlain, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(md, "# Chapter One") {
		t.Errorf("missing heading in output:\n%s", md)
	}
	if !strings.Contains(md, "It was a dark and stormy night.") {
		t.Errorf("missing paragraph in output:\n%s", md)
	}
}

func TestNodesEmpty(t *testing.T) {
	md, err := Nodes(nil, ModePlain, nil)
	if err != nil {
		t.Fatal(err)
	}
	if md != "" {
		t.Errorf("expected empty output, got %q", md)
	}
}

func TestNodesRewritesImageSrc(t *testing.T) {
	nodes := parseBody(t, `<p>Before</p><img src="../images/fig1.png" alt="figure"/>`)
	md, err := Nodes(nodes, ModePlain, func(src string) string {
		if src == "../images/fig1.png" {
			return "./book/images/fig1.png"
		}
		return src
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(md, "./book/images/fig1.png") {
		t.Errorf("image src not rewritten:\n%s", md)
	}
}

func TestNodesLeavesExternalImages(t *testing.T) {
	nodes := parseBody(t, `<img src="https://example.com/a.png" alt="remote"/>`)
	md, err := Nodes(nodes, ModePlain, func(src string) string {
		return "REWRITTEN"
	})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(md, "REWRITTEN") {
		t.Errorf("external image should not be rewritten:\n%s", md)
	}
}

func TestNodesRichPreservesTable(t *testing.T) {
	nodes := parseBody(t, "<p>Intro text.</p><table><tr><td>a</td><td>b</td></tr></table>")
	md, err := Nodes(nodes, ModeRich, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(md, "<table>") {
		t.Errorf("table markup not preserved:\n%s", md)
	}
	if !strings.Contains(md, "Intro text.") {
		t.Errorf("missing intro paragraph:\n%s", md)
	}
	if strings.Contains(md, "<p>") {
		t.Errorf("plain paragraph should have been converted:\n%s", md)
	}
}

func TestNodesRichPreservesStyledSubtree(t *testing.T) {
	nodes := parseBody(t, `<div><span class="dropcap">I</span>t begins.</div><p>Plain.</p>`)
	md, err := Nodes(nodes, ModeRich, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(md, `class="dropcap"`) {
		t.Errorf("styled subtree not preserved:\n%s", md)
	}
	if strings.Contains(md, "<p>Plain.</p>") {
		t.Errorf("unstyled paragraph should have been converted:\n%s", md)
	}
}

func TestNodesPlainConvertsTable(t *testing.T) {
	nodes := parseBody(t, "<table><tr><td>cell</td></tr></table>")
	md, err := Nodes(nodes, ModePlain, nil)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(md, "<table>") {
		t.Errorf("plain mode should not emit raw table markup:\n%s", md)
	}
}

func TestCollectStylesheets(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(`<html><head>
		<link rel="stylesheet" href="../styles/main.css"/>
		<link rel="icon" href="favicon.ico"/>
		<style>p { margin: 0; }</style>
	</head><body><p>x</p></body></html>`))
	if err != nil {
		t.Fatal(err)
	}
	ss := CollectStylesheets(doc)
	if len(ss.Hrefs) != 1 || ss.Hrefs[0] != "../styles/main.css" {
		t.Errorf("hrefs = %v", ss.Hrefs)
	}
	if len(ss.Inline) != 1 || !strings.Contains(ss.Inline[0], "margin: 0") {
		t.Errorf("inline = %v", ss.Inline)
	}
}
