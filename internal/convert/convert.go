// Package convert drives the EPUB to Markdown pipeline: boundary planning,
// DOM slicing, Markdown rendering, asset extraction, and output writing.
package convert

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/metcalfc/epub2md/internal/book"
	"github.com/metcalfc/epub2md/internal/boundary"
	"github.com/metcalfc/epub2md/internal/dom"
	"github.com/metcalfc/epub2md/internal/heading"
	"github.com/metcalfc/epub2md/internal/hrefs"
	"github.com/metcalfc/epub2md/internal/render"
)

// ErrNoSections indicates a book produced no non-empty sections.
var ErrNoSections = errors.New("convert: no readable sections found")

// Style selects how stylesheets are carried into rich-mode output.
type Style string

const (
	// StyleInline embeds all collected CSS in a <style> block.
	StyleInline Style = "inline"

	// StyleExternal copies CSS files next to the output and links them.
	StyleExternal Style = "external"
)

// ParseStyle converts a flag value into a Style.
func ParseStyle(s string) (Style, error) {
	switch Style(s) {
	case StyleInline, StyleExternal:
		return Style(s), nil
	}
	return "", fmt.Errorf("convert: unknown style mode %q", s)
}

// Options configures a conversion run.
type Options struct {
	InputDir  string
	OutputDir string

	Mode  render.Mode
	Style Style

	// MediaAll extracts every manifest image, not just referenced ones.
	MediaAll bool

	// SplitChapters writes one numbered file per section instead of a
	// single Markdown document.
	SplitChapters bool

	Fallback   boundary.Policy
	MinSpacing int

	// Force reconverts books whose source content is unchanged since the
	// last recorded run.
	Force bool

	Logger *slog.Logger
}

func (o *Options) setDefaults() {
	if o.Mode == "" {
		o.Mode = render.ModePlain
	}
	if o.Style == "" {
		o.Style = StyleInline
	}
	if o.Fallback == "" {
		o.Fallback = boundary.PolicyAuto
	}
	if o.MinSpacing <= 0 {
		o.MinSpacing = heading.DefaultMinSpacing
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Result summarizes one converted book.
type Result struct {
	Title string
	Slug  string

	// Path is the written Markdown file, or the section directory when
	// chapters are split.
	Path string

	Sections        int
	ImagesExtracted int
}

// Section is one resolved chapter: a display label and its rendered body.
type Section struct {
	Label string
	Body  string
}

// session carries the per-book conversion state. Sessions are single-use.
type session struct {
	book *book.Book
	opts Options
	log  *slog.Logger

	title  string
	author string
	slug   string

	imageRoot       string // absolute dir for extracted images
	imageLinkPrefix string // link prefix as written into Markdown
	styleRoot       string
	styleLinkPrefix string

	assets    map[string]string // resolved href -> emitted link
	extracted int

	cssHrefs  map[string]bool
	cssOrder  []string
	inlineCSS []string
}

// ConvertBook converts a single EPUB file and writes its Markdown output.
func ConvertBook(path string, opts Options) (*Result, error) {
	opts.setDefaults()

	b, err := book.Open(path)
	if err != nil {
		return nil, err
	}
	defer b.Close()

	meta := b.Metadata()
	s := &session{
		book:     b,
		opts:     opts,
		log:      opts.Logger.With("book", filepath.Base(path)),
		title:    meta.Title,
		slug:     hrefs.Slugify(meta.Title),
		assets:   make(map[string]string),
		cssHrefs: make(map[string]bool),
	}
	if len(meta.Creators) > 0 {
		s.author = meta.Creators[0]
	}

	s.imageRoot = filepath.Join(opts.OutputDir, s.slug, "images")
	s.styleRoot = filepath.Join(opts.OutputDir, s.slug, "styles")
	if opts.SplitChapters {
		s.imageLinkPrefix = "./images"
		s.styleLinkPrefix = "./styles"
	} else {
		s.imageLinkPrefix = "./" + s.slug + "/images"
		s.styleLinkPrefix = "./" + s.slug + "/styles"
	}

	if opts.MediaAll {
		s.extractAllImages()
	}

	sections, err := s.buildSections()
	if err != nil {
		return nil, err
	}
	if len(sections) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoSections)
	}

	outPath, err := s.write(sections)
	if err != nil {
		return nil, err
	}
	if s.extracted > 0 {
		s.log.Info("extracted images", "count", s.extracted, "title", s.title)
	}

	return &Result{
		Title:           s.title,
		Slug:            s.slug,
		Path:            outPath,
		Sections:        len(sections),
		ImagesExtracted: s.extracted,
	}, nil
}

// buildSections plans chapter windows and renders each one. Sections that
// render empty are dropped.
func (s *session) buildSections() ([]Section, error) {
	planner := &boundary.Planner{
		Policy:       s.opts.Fallback,
		MinSpacing:   s.opts.MinSpacing,
		LoadDocument: s.book.LoadDocument,
	}
	spine := s.book.Spine()
	windows, err := planner.Plan(s.book.TOC(), spine)
	if err != nil {
		return nil, err
	}

	var sections []Section
	for _, w := range windows {
		var parts []string
		for _, v := range boundary.Visits(w, spine) {
			doc, err := s.book.LoadDocument(v.Href)
			if err != nil {
				s.log.Warn("skipping unreadable document", "href", v.Href, "err", err)
				continue
			}
			if s.opts.Mode == render.ModeRich {
				s.collectCSS(doc, v.Href)
			}
			nodes := dom.SliceBody(doc, v.StartFragment, v.EndFragment)
			md, err := render.Nodes(nodes, s.opts.Mode, s.resolverFor(v.Href))
			if err != nil {
				s.log.Warn("skipping unrenderable slice", "href", v.Href, "err", err)
				continue
			}
			if md != "" {
				parts = append(parts, md)
			}
		}
		body := strings.TrimSpace(strings.Join(parts, "\n\n"))
		if body == "" {
			continue
		}
		sections = append(sections, Section{Label: w.Label, Body: body})
	}
	return sections, nil
}

// ConvertAll converts every .epub under opts.InputDir. Failures are
// isolated per book; the returned error reports only how many failed.
func ConvertAll(opts Options) error {
	opts.setDefaults()
	log := opts.Logger

	var paths []string
	err := filepath.WalkDir(opts.InputDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(p), ".epub") {
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("convert: scan %s: %w", opts.InputDir, err)
	}
	sort.Strings(paths)
	if len(paths) == 0 {
		return fmt.Errorf("convert: no epub files under %s", opts.InputDir)
	}

	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return fmt.Errorf("convert: create output dir: %w", err)
	}
	manifest, err := OpenManifest(opts.OutputDir)
	if err != nil {
		log.Warn("conversion manifest unavailable; converting everything", "err", err)
	}

	failed := 0
	for _, p := range paths {
		hash := ""
		if manifest != nil {
			hash, err = ComputeHash(p)
			if err != nil {
				log.Warn("hashing failed", "path", p, "err", err)
			}
			if hash != "" && !opts.Force && manifest.Converted(hash) {
				log.Info("unchanged; skipping", "path", p)
				continue
			}
		}

		res, err := ConvertBook(p, opts)
		if err != nil {
			failed++
			log.Error("conversion failed", "path", p, "err", err)
			continue
		}
		log.Info("converted", "title", res.Title, "sections", res.Sections, "output", res.Path)
		if manifest != nil && hash != "" {
			if err := manifest.Record(hash, Record{Slug: res.Slug, Path: res.Path, Sections: res.Sections}); err != nil {
				log.Warn("failed to record conversion", "path", p, "err", err)
			}
		}
	}

	if failed > 0 {
		return fmt.Errorf("convert: %d of %d books failed", failed, len(paths))
	}
	return nil
}
