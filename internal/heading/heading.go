// Package heading synthesizes chapter-start candidates from heading-like
// signals in spine documents. It is the fallback boundary source when a
// book ships no table of contents, or one too thin to trust.
package heading

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/net/html"

	"github.com/metcalfc/epub2md/internal/dom"
)

// Signal tags identify which heuristics contributed to a candidate's score.
type Signal string

const (
	SignalPrimaryHeading   Signal = "primary-heading"   // chapter/book/part in an h1-h3
	SignalSecondaryHeading Signal = "secondary-heading" // preface/prologue/... in an h1-h3
	SignalPrimaryTopText   Signal = "primary-top-text"  // chapter/book/part near the top of the body
	SignalSecondaryTopText Signal = "secondary-top-text"
	SignalHeadingLine      Signal = "heading-line" // short, heading-shaped first line
	SignalOCRNoise         Signal = "ocr-noise"    // scan-accuracy disclaimer, subtracts weight
)

// Signal weights and thresholds. Named so scoring behavior is auditable
// and testable without real heading text.
const (
	WeightPrimaryHeading   = 0.9
	WeightSecondaryHeading = 0.6
	WeightPrimaryTopText   = 0.8
	WeightSecondaryTopText = 0.5
	WeightHeadingLine      = 0.4
	PenaltyOCRNoise        = 0.5

	// AcceptThreshold is the combined confidence a document must reach to
	// count as a chapter start.
	AcceptThreshold = 1.0

	// MaxConfidence caps the additive score.
	MaxConfidence = 2.0

	// topWindowRunes bounds how much leading body text is scanned.
	topWindowRunes = 1500
)

// DefaultMinSpacing is the default minimum spine-index distance between
// accepted chapter starts.
const DefaultMinSpacing = 2

var (
	primaryPattern   = regexp.MustCompile(`(?i)\b(?:chapter|book|part)\s+(?:[ivxlcdm]+|\d+)\b`)
	secondaryPattern = regexp.MustCompile(`(?i)\b(?:preface|prologue|epilogue|introduction|foreword|afterword)\b`)
	labelPattern     = regexp.MustCompile(`(?i)\b(?:chapter|book|part)\s+(?:[ivxlcdm]+|\d+)(?:\s*[:.-]?\s*[a-z0-9][a-z0-9' -]{0,70})?|\b(?:preface|prologue|epilogue|introduction|foreword|afterword)\b`)
	ocrNoisePattern  = regexp.MustCompile(`(?i)estimated\s+to\s+be\s+only\s+\d+(?:\.\d+)?%\s+accurate`)
)

// Candidate is a scored chapter-start proposal for one spine document.
type Candidate struct {
	SpineIndex int
	Confidence float64
	Signals    []Signal
	Label      string
}

// Accepted reports whether the candidate's confidence clears the threshold.
func (c Candidate) Accepted() bool {
	return c.Confidence >= AcceptThreshold
}

// Score evaluates one parsed spine document and returns its candidate.
// The caller fills in SpineIndex.
func Score(doc *html.Node) Candidate {
	topText, firstLine, headings := extractFeatures(doc)

	var c Candidate

	// Heading element signal: first matching h1-h3 wins, primary preferred.
	headingLabel := ""
	for _, h := range headings {
		if primaryPattern.MatchString(h) {
			c.Confidence += WeightPrimaryHeading
			c.Signals = append(c.Signals, SignalPrimaryHeading)
			headingLabel = h
			break
		}
	}
	if headingLabel == "" {
		for _, h := range headings {
			if secondaryPattern.MatchString(h) {
				c.Confidence += WeightSecondaryHeading
				c.Signals = append(c.Signals, SignalSecondaryHeading)
				headingLabel = h
				break
			}
		}
	}

	// Top-of-body text signal.
	topMatched := false
	if primaryPattern.MatchString(topText) {
		c.Confidence += WeightPrimaryTopText
		c.Signals = append(c.Signals, SignalPrimaryTopText)
		topMatched = true
	} else if secondaryPattern.MatchString(topText) {
		c.Confidence += WeightSecondaryTopText
		c.Signals = append(c.Signals, SignalSecondaryTopText)
		topMatched = true
	}

	if firstLine != "" && isHeadingLike(firstLine) {
		c.Confidence += WeightHeadingLine
		c.Signals = append(c.Signals, SignalHeadingLine)
	}

	if ocrNoisePattern.MatchString(topText) {
		c.Confidence -= PenaltyOCRNoise
		c.Signals = append(c.Signals, SignalOCRNoise)
	}

	if c.Confidence < 0 {
		c.Confidence = 0
	}
	if c.Confidence > MaxConfidence {
		c.Confidence = MaxConfidence
	}

	switch {
	case headingLabel != "":
		c.Label = extractLabel(headingLabel)
	case topMatched:
		c.Label = extractLabel(topText)
	case firstLine != "":
		c.Label = cleanLabel(firstLine)
	}

	return c
}

// SelectStarts walks candidates in spine order and returns the spine indices
// accepted as chapter starts. A candidate is kept only when it clears the
// confidence threshold and sits at least minSpacing documents past the
// previously kept start. Spine index 0 never needs to appear here; the
// planner treats the first document as an implicit start.
func SelectStarts(candidates []Candidate, minSpacing int) []int {
	if minSpacing < 1 {
		minSpacing = 1
	}
	var starts []int
	last := -1
	for _, c := range candidates {
		if !c.Accepted() {
			continue
		}
		if last >= 0 && c.SpineIndex-last < minSpacing {
			continue
		}
		starts = append(starts, c.SpineIndex)
		last = c.SpineIndex
	}
	return starts
}

// extractFeatures pulls the leading body text window, the first non-empty
// text line, and the h1-h3 texts from a parsed document.
func extractFeatures(doc *html.Node) (topText, firstLine string, headings []string) {
	body := dom.Body(doc)
	if body == nil {
		return "", "", nil
	}

	raw := textContent(body)
	window := raw
	if runes := []rune(window); len(runes) > topWindowRunes {
		window = string(runes[:topWindowRunes])
	}
	topText = normalizeSpace(window)

	for _, line := range strings.Split(window, "\n") {
		if stripped := normalizeSpace(line); stripped != "" {
			firstLine = stripped
			break
		}
	}
	if firstLine == "" && topText != "" {
		if runes := []rune(topText); len(runes) > 80 {
			firstLine = string(runes[:80])
		} else {
			firstLine = topText
		}
	}

	collectHeadings(body, &headings)
	return topText, firstLine, headings
}

// collectHeadings gathers normalized text of h1-h3 elements in document order.
func collectHeadings(n *html.Node, out *[]string) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "h1", "h2", "h3":
			if text := normalizeSpace(textContent(n)); text != "" {
				*out = append(*out, text)
			}
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectHeadings(c, out)
	}
}

// textContent concatenates the text nodes under n. Block elements insert
// newlines so line-oriented heuristics see document structure.
func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			return
		}
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style":
				return
			case "p", "div", "h1", "h2", "h3", "h4", "h5", "h6", "li", "br", "tr", "blockquote":
				sb.WriteByte('\n')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

// isHeadingLike reports whether line looks like a chapter heading: short,
// mostly title-cased or all-caps, with at least one alphabetic word and no
// sprawling sentence shape.
func isHeadingLike(line string) bool {
	normalized := normalizeSpace(line)
	if normalized == "" || len([]rune(normalized)) > 80 {
		return false
	}

	var words []string
	for _, w := range strings.Fields(normalized) {
		if strings.ContainsFunc(w, unicode.IsLetter) {
			words = append(words, w)
		}
	}
	if len(words) == 0 {
		return false
	}

	allCaps := true
	for _, r := range normalized {
		if unicode.IsLetter(r) && unicode.IsLower(r) {
			allCaps = false
			break
		}
	}
	if allCaps {
		return true
	}

	titleCased := 0
	for _, w := range words {
		if r := []rune(w)[0]; unicode.IsUpper(r) {
			titleCased++
		}
	}
	need := (len(words) * 8) / 10
	if need < 1 {
		need = 1
	}
	return titleCased >= need
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// extractLabel pulls a chapter-like label out of text using the label
// pattern, falling back to the cleaned text itself.
func extractLabel(text string) string {
	if m := labelPattern.FindString(text); m != "" {
		if label := cleanLabel(m); label != "" {
			return label
		}
	}
	return cleanLabel(text)
}

// cleanLabel normalizes whitespace and trims surrounding punctuation.
func cleanLabel(text string) string {
	normalized := normalizeSpace(text)
	return strings.TrimFunc(normalized, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '-'
	})
}
