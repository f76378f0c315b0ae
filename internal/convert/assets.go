package convert

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"

	"github.com/metcalfc/epub2md/internal/hrefs"
	"github.com/metcalfc/epub2md/internal/render"
)

// resolverFor returns the image rewriter for a content document. Sources
// that cannot be resolved or extracted pass through unchanged, so a broken
// reference never drops surrounding content.
func (s *session) resolverFor(docHref string) render.ImageResolver {
	return func(src string) string {
		if strings.TrimSpace(src) == "" || hrefs.IsExternal(src) {
			return src
		}
		resolved := hrefs.Resolve(docHref, src)
		link, err := s.extractImage(resolved)
		if err != nil {
			s.log.Debug("image extraction failed", "src", src, "href", resolved, "err", err)
			return src
		}
		return link
	}
}

// extractAllImages copies every image in the manifest, referenced or not.
func (s *session) extractAllImages() {
	for _, item := range s.book.Manifest() {
		if !strings.HasPrefix(item.MediaType, "image/") {
			continue
		}
		if _, err := s.extractImage(item.Href); err != nil {
			s.log.Debug("image extraction failed", "href", item.Href, "err", err)
		}
	}
}

// extractImage copies one image to the image root, keeping its archive
// layout below images/ so sibling references never collide. Returns the
// link to emit in Markdown.
func (s *session) extractImage(resolved string) (string, error) {
	if link, ok := s.assets[resolved]; ok {
		return link, nil
	}
	data, err := s.book.ReadResource(resolved)
	if err != nil {
		return "", err
	}
	relative := hrefs.Decode(resolved)
	dest := filepath.Join(s.imageRoot, filepath.FromSlash(relative))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("convert: create image dir: %w", err)
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return "", fmt.Errorf("convert: write image %s: %w", relative, err)
	}
	link := s.imageLinkPrefix + "/" + relative
	s.assets[resolved] = link
	s.extracted++
	return link, nil
}

// collectCSS gathers a document's stylesheet links and inline style blocks
// for the rich-mode style header, deduplicating by resolved href.
func (s *session) collectCSS(doc *html.Node, docHref string) {
	ss := render.CollectStylesheets(doc)
	for _, href := range ss.Hrefs {
		if hrefs.IsExternal(href) {
			continue
		}
		resolved := hrefs.Resolve(docHref, href)
		if !s.cssHrefs[resolved] {
			s.cssHrefs[resolved] = true
			s.cssOrder = append(s.cssOrder, resolved)
		}
	}
	s.inlineCSS = append(s.inlineCSS, ss.Inline...)
}

// styleHeader builds the style lines placed under the title. Inline mode
// concatenates all CSS into one <style> block; external mode copies the
// files below the styles root and links them.
func (s *session) styleHeader() ([]string, error) {
	if s.opts.Mode != render.ModeRich {
		return nil, nil
	}
	if len(s.cssOrder) == 0 && len(s.inlineCSS) == 0 {
		return nil, nil
	}

	if s.opts.Style == StyleExternal {
		var lines []string
		for _, href := range s.cssOrder {
			data, err := s.book.ReadResource(href)
			if err != nil {
				s.log.Warn("stylesheet unreadable", "href", href, "err", err)
				continue
			}
			relative := hrefs.Decode(href)
			dest := filepath.Join(s.styleRoot, filepath.FromSlash(relative))
			if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
				return nil, fmt.Errorf("convert: create style dir: %w", err)
			}
			if err := os.WriteFile(dest, data, 0o644); err != nil {
				return nil, fmt.Errorf("convert: write stylesheet %s: %w", relative, err)
			}
			lines = append(lines, stylesheetLink(s.styleLinkPrefix+"/"+relative))
		}
		if len(s.inlineCSS) > 0 {
			dest := filepath.Join(s.styleRoot, "inline_styles.css")
			if err := os.MkdirAll(s.styleRoot, 0o755); err != nil {
				return nil, fmt.Errorf("convert: create style dir: %w", err)
			}
			if err := os.WriteFile(dest, []byte(strings.Join(s.inlineCSS, "\n\n")), 0o644); err != nil {
				return nil, fmt.Errorf("convert: write inline styles: %w", err)
			}
			lines = append(lines, stylesheetLink(s.styleLinkPrefix+"/inline_styles.css"))
		}
		return lines, nil
	}

	var chunks []string
	for _, href := range s.cssOrder {
		data, err := s.book.ReadResource(href)
		if err != nil {
			s.log.Warn("stylesheet unreadable", "href", href, "err", err)
			continue
		}
		chunks = append(chunks, string(data))
	}
	chunks = append(chunks, s.inlineCSS...)
	if len(chunks) == 0 {
		return nil, nil
	}
	return []string{"<style>", strings.Join(chunks, "\n\n"), "</style>"}, nil
}

func stylesheetLink(href string) string {
	return fmt.Sprintf(`<link rel="stylesheet" href=%q>`, href)
}
