// Package book opens an EPUB container and exposes the indexes the rest of
// the pipeline consumes: metadata, manifest lookups by id and by normalized
// href, the readable spine in reading order, flattened TOC entries, and
// byte access to any archived resource.
package book

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/taylorskalyo/goreader/epub"
	"golang.org/x/net/html"

	"github.com/metcalfc/epub2md/internal/hrefs"
)

// Sentinel errors returned by this package.
var (
	// ErrNoRootfiles indicates the container has no package document.
	ErrNoRootfiles = errors.New("book: no rootfiles found in epub")

	// ErrResourceNotFound indicates an href matched nothing in the manifest
	// or the archive.
	ErrResourceNotFound = errors.New("book: resource not found in archive")
)

// readableMediaTypes are the content document types included in the spine.
var readableMediaTypes = map[string]bool{
	"application/xhtml+xml": true,
	"text/html":             true,
}

// Metadata carries the package metadata the converter needs.
type Metadata struct {
	Title    string
	Creators []string
}

// ManifestItem is one entry of the package manifest. Href is normalized and
// relative to the OPF directory.
type ManifestItem struct {
	ID        string
	Href      string
	MediaType string
}

// SpineItem is one readable document of the spine. Index is the 0-based
// position in the filtered spine; Href is normalized.
type SpineItem struct {
	Index     int
	Href      string
	MediaType string
}

// TocEntry is one flattened table-of-contents entry in document order.
// Href is normalized and relative to the OPF directory; Fragment is empty
// when the entry targets the top of its file.
type TocEntry struct {
	Order    int
	Label    string
	Href     string
	Fragment string
}

// Book is one opened EPUB. It owns its indexes and a per-book parsed
// document cache; it is not safe for concurrent use, but distinct Books
// share no state.
type Book struct {
	rc  *epub.ReadCloser
	zrc *zip.ReadCloser

	opfDir string

	meta           Metadata
	manifest       []ManifestItem
	manifestByID   map[string]*epub.Item
	manifestByHref map[string]*epub.Item
	spine          []SpineItem
	toc            []TocEntry

	docs map[string]*html.Node
}

// Open opens the EPUB at path and builds all indexes. Call Close when done.
func Open(filename string) (*Book, error) {
	rc, err := epub.OpenReader(filename)
	if err != nil {
		return nil, fmt.Errorf("book: open %s: %w", filename, err)
	}
	if len(rc.Rootfiles) == 0 {
		rc.Close()
		return nil, ErrNoRootfiles
	}

	// Raw archive access for resources goreader does not hand out directly
	// (the OPF itself, NCX, stray files missing from the manifest).
	zrc, err := zip.OpenReader(filename)
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("book: open zip %s: %w", filename, err)
	}

	b := &Book{
		rc:   rc,
		zrc:  zrc,
		docs: make(map[string]*html.Node),
	}
	b.index(rc.Rootfiles[0], filename)
	return b, nil
}

// Close releases the underlying archive handles.
func (b *Book) Close() error {
	b.rc.Close()
	return b.zrc.Close()
}

// index builds the manifest, spine, metadata, and TOC indexes from the
// package document.
func (b *Book) index(rf *epub.Rootfile, filename string) {
	b.opfDir = path.Dir(hrefs.Normalize(rf.FullPath))
	if b.opfDir == "." {
		b.opfDir = ""
	}

	b.meta.Title = strings.TrimSpace(rf.Metadata.Title)
	if b.meta.Title == "" {
		base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
		b.meta.Title = strings.TrimSuffix(base, path.Ext(base))
	}
	if creator := strings.TrimSpace(rf.Metadata.Creator); creator != "" {
		b.meta.Creators = append(b.meta.Creators, creator)
	}

	b.manifestByID = make(map[string]*epub.Item, len(rf.Manifest.Items))
	b.manifestByHref = make(map[string]*epub.Item, len(rf.Manifest.Items))
	for i := range rf.Manifest.Items {
		item := &rf.Manifest.Items[i]
		norm := hrefs.Normalize(item.HREF)
		b.manifest = append(b.manifest, ManifestItem{
			ID:        item.ID,
			Href:      norm,
			MediaType: item.MediaType,
		})
		if item.ID != "" {
			b.manifestByID[item.ID] = item
		}
		if norm != "" {
			if _, exists := b.manifestByHref[norm]; !exists {
				b.manifestByHref[norm] = item
			}
		}
	}

	for _, ref := range rf.Spine.Itemrefs {
		if ref.Item == nil || !readableMediaTypes[ref.Item.MediaType] {
			continue
		}
		norm := hrefs.Normalize(ref.Item.HREF)
		if norm == "" {
			continue
		}
		b.spine = append(b.spine, SpineItem{
			Index:     len(b.spine),
			Href:      norm,
			MediaType: ref.Item.MediaType,
		})
	}

	b.toc = b.parseTOC(rf)
}

// Metadata returns the package metadata.
func (b *Book) Metadata() Metadata {
	out := b.meta
	out.Creators = append([]string(nil), b.meta.Creators...)
	return out
}

// Manifest returns all manifest entries in document order.
func (b *Book) Manifest() []ManifestItem {
	return append([]ManifestItem(nil), b.manifest...)
}

// Spine returns the readable spine items in reading order.
func (b *Book) Spine() []SpineItem {
	return append([]SpineItem(nil), b.spine...)
}

// TOC returns the flattened table-of-contents entries, empty when the book
// has no usable TOC.
func (b *Book) TOC() []TocEntry {
	return append([]TocEntry(nil), b.toc...)
}

// HasResource reports whether href resolves to a readable archive entry.
func (b *Book) HasResource(href string) bool {
	if _, ok := b.manifestByHref[hrefs.Normalize(href)]; ok {
		return true
	}
	return b.findZipEntry(hrefs.Normalize(href)) != nil
}

// ReadResource reads a manifest-referenced resource by normalized href.
// Hrefs outside the manifest fall back to a direct archive lookup.
func (b *Book) ReadResource(href string) ([]byte, error) {
	norm := hrefs.Normalize(href)
	if item, ok := b.manifestByHref[norm]; ok {
		r, err := item.Open()
		if err == nil {
			defer r.Close()
			var buf bytes.Buffer
			if _, err := buf.ReadFrom(r); err != nil {
				return nil, fmt.Errorf("book: read %s: %w", norm, err)
			}
			return stripBOM(buf.Bytes()), nil
		}
		// Fall through to the raw archive on a broken manifest entry.
	}
	if f := b.findZipEntry(norm); f != nil {
		return readZipFile(f)
	}
	return nil, fmt.Errorf("book: %s: %w", href, ErrResourceNotFound)
}

// LoadDocument reads and parses a content document, caching the parse for
// the lifetime of the Book. The cache keeps boundary planning, fallback
// scoring, and rendering from re-parsing the same file.
func (b *Book) LoadDocument(href string) (*html.Node, error) {
	norm := hrefs.Normalize(href)
	if doc, ok := b.docs[norm]; ok {
		return doc, nil
	}
	data, err := b.ReadResource(norm)
	if err != nil {
		return nil, err
	}
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("book: parse %s: %w", norm, err)
	}
	b.docs[norm] = doc
	return doc, nil
}

// findZipEntry locates an archive entry for an OPF-relative href, trying the
// OPF-prefixed path, the bare path, and finally a unique basename match.
func (b *Book) findZipEntry(norm string) *zip.File {
	if norm == "" {
		return nil
	}
	candidates := []string{norm}
	if b.opfDir != "" {
		candidates = []string{path.Join(b.opfDir, norm), norm}
	}
	for _, want := range candidates {
		for _, f := range b.zrc.File {
			if hrefs.Normalize(f.Name) == want {
				return f
			}
		}
	}
	var match *zip.File
	suffix := "/" + path.Base(norm)
	for _, f := range b.zrc.File {
		if strings.HasSuffix(hrefs.Normalize(f.Name), suffix) {
			if match != nil {
				return nil // ambiguous
			}
			match = f
		}
	}
	return match
}

// readZipFile reads the full contents of one archive entry.
func readZipFile(f *zip.File) ([]byte, error) {
	r, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("book: open zip entry %s: %w", f.Name, err)
	}
	defer r.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("book: read zip entry %s: %w", f.Name, err)
	}
	return stripBOM(buf.Bytes()), nil
}

// stripBOM removes a leading UTF-8 BOM, which trips up encoding/xml.
func stripBOM(data []byte) []byte {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		return data[3:]
	}
	return data
}
