// Package boundary turns a table of contents (real or synthesized) plus the
// spine reading order into an ordered, gap-free sequence of chapter windows.
// Every spine document lands in exactly one window, except where a fragment
// boundary legitimately splits one document between two windows.
package boundary

import (
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/net/html"

	"github.com/metcalfc/epub2md/internal/book"
	"github.com/metcalfc/epub2md/internal/heading"
	"github.com/metcalfc/epub2md/internal/hrefs"
)

// ErrNoSpine indicates the book has no readable spine documents at all.
// This is the only book-fatal condition in boundary planning.
var ErrNoSpine = errors.New("boundary: no readable spine documents")

// Policy controls when heading-fallback boundary synthesis runs.
type Policy string

const (
	// PolicyOff never synthesizes boundaries; a missing TOC degrades to one
	// window per spine document.
	PolicyOff Policy = "off"

	// PolicyAuto synthesizes boundaries only when the TOC is degenerate.
	PolicyAuto Policy = "auto"

	// PolicyForce always evaluates the scorer and prefers its candidates
	// over the literal TOC when at least one clears the threshold.
	PolicyForce Policy = "force"
)

// ParsePolicy converts a flag value into a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyOff, PolicyAuto, PolicyForce:
		return Policy(s), nil
	}
	return "", fmt.Errorf("boundary: unknown fallback policy %q", s)
}

// Degeneracy thresholds for PolicyAuto. A TOC failing any of these is not
// trusted as a boundary source.
const (
	// DegenerateMaxEntries: a TOC with this many entries or fewer is degenerate.
	DegenerateMaxEntries = 1

	// DegenerateMinUniqueHrefs: fewer unique hrefs than this is degenerate.
	DegenerateMinUniqueHrefs = 3

	// DegenerateMinCoverage: a TOC referencing a smaller fraction of spine
	// documents than this is degenerate.
	DegenerateMinCoverage = 0.15
)

// SectionPoint identifies a precise position in the document stream: a spine
// document plus an optional fragment anchor within it.
type SectionPoint struct {
	Href     string
	Fragment string
}

// ChapterWindow is one output section's span. End is nil for the final
// window, meaning "to the end of the book".
type ChapterWindow struct {
	Label string
	Start SectionPoint
	End   *SectionPoint
}

// DocVisit is one spine document's share of a chapter window. Start and End
// fragments are empty at document edges.
type DocVisit struct {
	SpineIndex    int
	Href          string
	StartFragment string
	EndFragment   string
}

// Stats describes the TOC quality measurements behind a planning decision.
type Stats struct {
	Entries     int
	UniqueHrefs int
	Coverage    float64
}

// Degenerate reports whether the measured TOC fails the auto-policy
// thresholds.
func (s Stats) Degenerate() bool {
	return s.Entries <= DegenerateMaxEntries ||
		s.UniqueHrefs < DegenerateMinUniqueHrefs ||
		s.Coverage < DegenerateMinCoverage
}

// Planner resolves chapter boundaries for one book.
type Planner struct {
	Policy     Policy
	MinSpacing int

	// LoadDocument supplies parsed spine documents to the fallback scorer.
	// Required only when the policy permits fallback synthesis.
	LoadDocument func(href string) (*html.Node, error)
}

// Plan converts TOC entries plus the spine into chapter windows. Entries
// whose href matches no spine item are logged and dropped; an empty spine is
// fatal for the book.
func (p *Planner) Plan(toc []book.TocEntry, spine []book.SpineItem) ([]ChapterWindow, error) {
	if len(spine) == 0 {
		return nil, ErrNoSpine
	}

	index := spineIndexByHref(spine)
	entries := resolveEntries(toc, index)
	stats := measure(entries, len(spine))

	switch p.Policy {
	case PolicyOff:
		// TOC as-is, or one window per document.
	case PolicyForce:
		if windows := p.synthesize(entries, spine, stats); windows != nil {
			return windows, nil
		}
	default: // PolicyAuto
		if len(entries) == 0 || stats.Degenerate() {
			if windows := p.synthesize(entries, spine, stats); windows != nil {
				return windows, nil
			}
			// A degenerate TOC is never used as-is.
			return windowPerDocument(spine), nil
		}
		slog.Debug("heading fallback not needed: TOC healthy",
			"entries", stats.Entries,
			"uniqueHrefs", stats.UniqueHrefs,
			"coverage", fmt.Sprintf("%.2f", stats.Coverage))
	}

	if len(entries) > 0 {
		return windowsFromEntries(entries), nil
	}
	return windowPerDocument(spine), nil
}

// Visits expands one window into the ordered spine documents it renders,
// with per-document fragment bounds. A window whose end fragment is absent
// excludes the end document entirely: that document belongs to the next
// window, which is what lets split title/content file pairs recombine.
func Visits(w ChapterWindow, spine []book.SpineItem) []DocVisit {
	index := spineIndexByHref(spine)

	start, ok := index[w.Start.Href]
	if !ok {
		return nil
	}
	end := len(spine) - 1
	endFragment := ""
	if w.End != nil {
		if idx, ok := index[w.End.Href]; ok {
			end = idx
		}
		endFragment = w.End.Fragment
	}
	if end < start {
		return nil
	}

	var visits []DocVisit
	for i := start; i <= end; i++ {
		if w.End != nil && i == end && endFragment == "" {
			// Next chapter starts at the top of this file.
			break
		}
		v := DocVisit{SpineIndex: i, Href: spine[i].Href}
		if i == start {
			v.StartFragment = w.Start.Fragment
		}
		if w.End != nil && i == end {
			v.EndFragment = endFragment
		}
		visits = append(visits, v)
	}
	return visits
}

// synthesize scores the spine and converts accepted chapter starts into
// windows. Returns nil when no candidate clears the threshold, letting the
// caller fall back to the literal TOC.
func (p *Planner) synthesize(entries []book.TocEntry, spine []book.SpineItem, stats Stats) []ChapterWindow {
	if p.LoadDocument == nil {
		return nil
	}

	candidates := make([]heading.Candidate, 0, len(spine))
	for _, si := range spine {
		doc, err := p.LoadDocument(si.Href)
		if err != nil {
			slog.Warn("skipping unreadable spine document during fallback scoring",
				"href", si.Href, "err", err)
			continue
		}
		c := heading.Score(doc)
		c.SpineIndex = si.Index
		candidates = append(candidates, c)
	}

	minSpacing := p.MinSpacing
	if minSpacing <= 0 {
		minSpacing = heading.DefaultMinSpacing
	}
	starts := heading.SelectStarts(candidates, minSpacing)

	labels := make(map[int]string, len(candidates))
	for _, c := range candidates {
		labels[c.SpineIndex] = c.Label
	}

	// The first spine document is always an implicit start so no leading
	// content goes missing.
	accepted := starts[:0:0]
	for _, idx := range starts {
		if idx > 0 {
			accepted = append(accepted, idx)
		}
	}
	if len(accepted) == 0 {
		slog.Warn("heading fallback produced no confident starts",
			"policy", p.Policy, "tocEntries", stats.Entries, "spineDocs", len(spine))
		return nil
	}

	slog.Info("using heading fallback for chapter boundaries",
		"policy", p.Policy,
		"tocEntries", stats.Entries,
		"spineDocs", len(spine),
		"detectedStarts", len(accepted))

	firstLabel := ""
	if len(entries) > 0 {
		firstLabel = entries[0].Label
	}
	if firstLabel == "" {
		firstLabel = hrefs.PrettyName(spine[0].Href)
	}

	synthetic := []book.TocEntry{{Order: 0, Label: firstLabel, Href: spine[0].Href}}
	for _, idx := range accepted {
		label := labels[idx]
		if label == "" {
			label = fmt.Sprintf("Section %d", len(synthetic)+1)
		}
		synthetic = append(synthetic, book.TocEntry{
			Order: len(synthetic),
			Label: label,
			Href:  spine[idx].Href,
		})
	}
	return windowsFromEntries(synthetic)
}

// windowsFromEntries pairs consecutive entries into windows; the final
// window runs to EOF.
func windowsFromEntries(entries []book.TocEntry) []ChapterWindow {
	windows := make([]ChapterWindow, 0, len(entries))
	for i, entry := range entries {
		w := ChapterWindow{
			Label: entry.Label,
			Start: SectionPoint{Href: entry.Href, Fragment: entry.Fragment},
		}
		if i+1 < len(entries) {
			next := entries[i+1]
			w.End = &SectionPoint{Href: next.Href, Fragment: next.Fragment}
		}
		windows = append(windows, w)
	}
	return windows
}

// windowPerDocument emits one window per spine document, in spine order.
func windowPerDocument(spine []book.SpineItem) []ChapterWindow {
	windows := make([]ChapterWindow, 0, len(spine))
	for i, si := range spine {
		w := ChapterWindow{
			Label: hrefs.PrettyName(si.Href),
			Start: SectionPoint{Href: si.Href},
		}
		if i+1 < len(spine) {
			w.End = &SectionPoint{Href: spine[i+1].Href}
		}
		windows = append(windows, w)
	}
	return windows
}

// resolveEntries drops TOC entries that reference nothing in the spine.
func resolveEntries(toc []book.TocEntry, index map[string]int) []book.TocEntry {
	entries := make([]book.TocEntry, 0, len(toc))
	for _, entry := range toc {
		if _, ok := index[entry.Href]; !ok {
			slog.Warn("dropping TOC entry: href not in spine",
				"label", entry.Label, "href", entry.Href)
			continue
		}
		entries = append(entries, entry)
	}
	return entries
}

// measure computes the TOC quality statistics used by the degeneracy test.
// Duplicate hrefs count once, both for uniqueness and for coverage.
func measure(entries []book.TocEntry, spineLen int) Stats {
	unique := make(map[string]bool, len(entries))
	for _, entry := range entries {
		unique[entry.Href] = true
	}
	s := Stats{Entries: len(entries), UniqueHrefs: len(unique)}
	if spineLen > 0 {
		s.Coverage = float64(len(unique)) / float64(spineLen)
	}
	return s
}

// spineIndexByHref maps each spine href to its first occurrence index.
func spineIndexByHref(spine []book.SpineItem) map[string]int {
	index := make(map[string]int, len(spine))
	for _, si := range spine {
		if _, ok := index[si.Href]; !ok {
			index[si.Href] = si.Index
		}
	}
	return index
}
