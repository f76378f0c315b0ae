package convert

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/metcalfc/epub2md/internal/hrefs"
)

const maxSectionSlugRunes = 80

// write emits the rendered sections. Single-file mode writes
// <out>/<slug>.md; split mode writes numbered per-section files under
// <out>/<slug>/, clearing stale .md files from an earlier run first.
func (s *session) write(sections []Section) (string, error) {
	header, err := s.headerLines()
	if err != nil {
		return "", err
	}

	if !s.opts.SplitChapters {
		if err := os.MkdirAll(s.opts.OutputDir, 0o755); err != nil {
			return "", fmt.Errorf("convert: create output dir: %w", err)
		}
		lines := header
		for _, sec := range sections {
			lines = appendSection(lines, sec)
		}
		out := filepath.Join(s.opts.OutputDir, s.slug+".md")
		if err := writeMarkdown(out, lines); err != nil {
			return "", err
		}
		return out, nil
	}

	root := filepath.Join(s.opts.OutputDir, s.slug)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", fmt.Errorf("convert: create output dir: %w", err)
	}
	if err := removeStaleMarkdown(root); err != nil {
		return "", err
	}

	width := numberWidth(len(sections))
	for i, sec := range sections {
		name := fmt.Sprintf("%0*d_%s.md", width, i+1, sectionSlug(sec.Label, i+1, width))
		lines := appendSection(append([]string(nil), header...), sec)
		if err := writeMarkdown(filepath.Join(root, name), lines); err != nil {
			return "", err
		}
	}
	return root, nil
}

// headerLines builds the shared file header: title, author, and the
// rich-mode style header when one applies.
func (s *session) headerLines() ([]string, error) {
	lines := []string{"# " + s.title}
	if s.author != "" {
		lines = append(lines, "**Author:** "+s.author)
	}
	style, err := s.styleHeader()
	if err != nil {
		return nil, err
	}
	if len(style) > 0 {
		lines = append(lines, "")
		lines = append(lines, style...)
	}
	lines = append(lines, "")
	return lines, nil
}

func appendSection(lines []string, sec Section) []string {
	return append(lines, "## "+sec.Label, "", sec.Body, "")
}

func writeMarkdown(path string, lines []string) error {
	content := strings.TrimSpace(strings.Join(lines, "\n")) + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("convert: write %s: %w", path, err)
	}
	return nil
}

// removeStaleMarkdown clears .md files left over from a previous split run
// so renamed or merged sections do not linger.
func removeStaleMarkdown(root string) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		return fmt.Errorf("convert: read output dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".md") {
			continue
		}
		if err := os.Remove(filepath.Join(root, e.Name())); err != nil {
			return fmt.Errorf("convert: remove stale %s: %w", e.Name(), err)
		}
	}
	return nil
}

// numberWidth pads section numbers to at least two digits.
func numberWidth(n int) int {
	width := len(fmt.Sprint(n))
	if width < 2 {
		width = 2
	}
	return width
}

// sectionSlug derives a filename fragment from a section label, capped and
// trimmed; unlabeled sections fall back to a numbered name.
func sectionSlug(label string, number, width int) string {
	fallback := fmt.Sprintf("section_%0*d", width, number)
	if strings.TrimSpace(label) == "" {
		return fallback
	}
	slug := hrefs.Slugify(label)
	runes := []rune(slug)
	if len(runes) > maxSectionSlugRunes {
		slug = string(runes[:maxSectionSlugRunes])
	}
	slug = strings.Trim(slug, "_.-")
	if slug == "" {
		return fallback
	}
	return slug
}
