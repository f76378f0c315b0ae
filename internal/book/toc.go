package book

import (
	"bytes"
	"encoding/xml"
	"log/slog"
	"strings"

	"github.com/taylorskalyo/goreader/epub"
	"golang.org/x/net/html"

	"github.com/metcalfc/epub2md/internal/hrefs"
)

// opfManifest mirrors just enough of the package document to recover the
// item properties goreader discards (needed to find the EPUB 3 nav doc).
type opfManifest struct {
	Items []struct {
		ID         string `xml:"id,attr"`
		Href       string `xml:"href,attr"`
		Properties string `xml:"properties,attr"`
	} `xml:"item"`
}

type opfPackage struct {
	Manifest opfManifest `xml:"manifest"`
}

// parseTOC extracts flattened TOC entries, preferring the EPUB 3 nav
// document and falling back to the EPUB 2 NCX. A missing or unparsable TOC
// yields an empty slice; boundary planning treats that as "no TOC".
func (b *Book) parseTOC(rf *epub.Rootfile) []TocEntry {
	if navHref := b.findNavHref(rf); navHref != "" {
		if entries := b.parseNavTOC(navHref); len(entries) > 0 {
			return entries
		}
	}
	if ncxHref := b.findNCXHref(); ncxHref != "" {
		if entries := b.parseNCXTOC(ncxHref); len(entries) > 0 {
			return entries
		}
	}
	return nil
}

// findNavHref re-reads the OPF to find the manifest item carrying the "nav"
// property. Returns the normalized OPF-relative href, or empty.
func (b *Book) findNavHref(rf *epub.Rootfile) string {
	opfPath := hrefs.Normalize(rf.FullPath)
	f := b.findZipEntry(relativeToOPF(opfPath, b.opfDir))
	if f == nil {
		return ""
	}
	data, err := readZipFile(f)
	if err != nil {
		return ""
	}
	var pkg opfPackage
	if err := lenientUnmarshal(data, &pkg); err != nil {
		slog.Debug("opf reparse failed; skipping nav lookup", "err", err)
		return ""
	}
	for _, item := range pkg.Manifest.Items {
		for _, prop := range strings.Fields(item.Properties) {
			if prop == "nav" {
				return hrefs.Normalize(item.Href)
			}
		}
	}
	return ""
}

// relativeToOPF strips the OPF directory prefix so findZipEntry can re-add it.
func relativeToOPF(p, opfDir string) string {
	if opfDir == "" {
		return p
	}
	return strings.TrimPrefix(p, opfDir+"/")
}

// findNCXHref locates the NCX by manifest media type, falling back to any
// .ncx entry in the archive.
func (b *Book) findNCXHref() string {
	for _, item := range b.manifest {
		if item.MediaType == "application/x-dtbncx+xml" {
			return item.Href
		}
	}
	for _, f := range b.zrc.File {
		if strings.HasSuffix(strings.ToLower(f.Name), ".ncx") {
			return relativeToOPF(hrefs.Normalize(f.Name), b.opfDir)
		}
	}
	return ""
}

// --- NCX (EPUB 2) ---

type ncxDocument struct {
	NavMap ncxNavMap `xml:"navMap"`
}

type ncxNavMap struct {
	NavPoints []ncxNavPoint `xml:"navPoint"`
}

type ncxNavPoint struct {
	Label    ncxNavLabel   `xml:"navLabel"`
	Content  ncxContent    `xml:"content"`
	Children []ncxNavPoint `xml:"navPoint"`
}

type ncxNavLabel struct {
	Text string `xml:"text"`
}

type ncxContent struct {
	Src string `xml:"src,attr"`
}

// parseNCXTOC reads and flattens the NCX navMap in document order.
func (b *Book) parseNCXTOC(ncxHref string) []TocEntry {
	data, err := b.ReadResource(ncxHref)
	if err != nil {
		return nil
	}
	var doc ncxDocument
	if err := lenientUnmarshal(data, &doc); err != nil {
		slog.Warn("failed to parse NCX", "href", ncxHref, "err", err)
		return nil
	}
	var entries []TocEntry
	flattenNavPoints(doc.NavMap.NavPoints, ncxHref, &entries)
	return entries
}

// flattenNavPoints appends nested navPoints depth-first, resolving each src
// relative to the NCX location.
func flattenNavPoints(points []ncxNavPoint, ncxHref string, out *[]TocEntry) {
	for _, np := range points {
		src := strings.TrimSpace(np.Content.Src)
		if src != "" {
			file, fragment := hrefs.SplitFragment(src)
			entry := TocEntry{
				Order:    len(*out),
				Label:    strings.TrimSpace(np.Label.Text),
				Href:     hrefs.Resolve(ncxHref, file),
				Fragment: fragment,
			}
			if entry.Label == "" {
				entry.Label = hrefs.PrettyName(entry.Href)
			}
			*out = append(*out, entry)
		}
		flattenNavPoints(np.Children, ncxHref, out)
	}
}

// lenientUnmarshal decodes XML accepting HTML named entities and loose
// syntax, which real-world NCX and OPF files use freely.
func lenientUnmarshal(data []byte, v any) error {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false
	dec.Entity = xml.HTMLEntity
	return dec.Decode(v)
}

// --- Nav document (EPUB 3) ---

// parseNavTOC parses the XHTML nav document and flattens the toc nav list.
func (b *Book) parseNavTOC(navHref string) []TocEntry {
	data, err := b.ReadResource(navHref)
	if err != nil {
		return nil
	}
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		slog.Warn("failed to parse nav document", "href", navHref, "err", err)
		return nil
	}

	nav := findTocNav(doc)
	if nav == nil {
		return nil
	}
	ol := findChildElement(nav, "ol")
	if ol == nil {
		return nil
	}
	var entries []TocEntry
	flattenNavList(ol, navHref, &entries)
	return entries
}

// findTocNav finds the <nav> element whose epub:type tokens include "toc".
func findTocNav(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "nav" {
		for _, t := range strings.Fields(getAttr(n, "epub:type")) {
			if t == "toc" {
				return n
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findTocNav(c); found != nil {
			return found
		}
	}
	return nil
}

// flattenNavList appends each <li>'s first <a> href/label, then recurses
// into nested <ol> lists, preserving document order.
func flattenNavList(ol *html.Node, navHref string, out *[]TocEntry) {
	for li := ol.FirstChild; li != nil; li = li.NextSibling {
		if li.Type != html.ElementNode || li.Data != "li" {
			continue
		}
		for c := li.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			switch c.Data {
			case "a":
				target := strings.TrimSpace(getAttr(c, "href"))
				if target == "" {
					continue
				}
				file, fragment := hrefs.SplitFragment(target)
				entry := TocEntry{
					Order:    len(*out),
					Label:    strings.Join(strings.Fields(textOf(c)), " "),
					Href:     hrefs.Resolve(navHref, file),
					Fragment: fragment,
				}
				if entry.Label == "" {
					entry.Label = hrefs.PrettyName(entry.Href)
				}
				*out = append(*out, entry)
			case "ol":
				flattenNavList(c, navHref, out)
			}
		}
	}
}

func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func findChildElement(n *html.Node, tag string) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == tag {
			return c
		}
		if found := findChildElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func textOf(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(textOf(c))
	}
	return sb.String()
}
