// Package hrefs normalizes and resolves the href values found in EPUB
// manifests, spines, TOC documents, and content markup. All paths are
// ZIP-internal, forward-slash separated, and relative to the archive root.
package hrefs

import (
	"net/url"
	"path"
	"strings"
)

// Normalize canonicalizes an href: backslashes become forward slashes, any
// query string is stripped, and "."/".." segments are collapsed with POSIX
// rules. Two hrefs that normalize to the same string refer to the same
// resource everywhere in this module.
func Normalize(href string) string {
	href = strings.TrimSpace(href)
	href = strings.ReplaceAll(href, "\\", "/")
	if idx := strings.IndexByte(href, '?'); idx >= 0 {
		href = href[:idx]
	}
	if href == "" {
		return ""
	}
	cleaned := path.Clean(href)
	cleaned = strings.TrimPrefix(cleaned, "./")
	if cleaned == "." {
		return ""
	}
	return cleaned
}

// Resolve resolves rel against the directory of base and normalizes the
// result. An absolute rel (leading slash) is normalized without the base.
func Resolve(base, rel string) string {
	rel = strings.TrimSpace(rel)
	if strings.HasPrefix(rel, "/") {
		return Normalize(strings.TrimPrefix(rel, "/"))
	}
	dir := path.Dir(Normalize(base))
	if dir == "." {
		return Normalize(rel)
	}
	return Normalize(dir + "/" + rel)
}

// SplitFragment splits an href target into its file path and optional
// fragment. The returned fragment is empty when the target has none.
func SplitFragment(target string) (href, fragment string) {
	href, fragment, _ = strings.Cut(target, "#")
	return href, fragment
}

// IsExternal reports whether src points at an externally hosted resource
// rather than a file inside the archive.
func IsExternal(src string) bool {
	lower := strings.ToLower(strings.TrimSpace(src))
	return strings.HasPrefix(lower, "http://") ||
		strings.HasPrefix(lower, "https://") ||
		strings.HasPrefix(lower, "data:")
}

// Decode percent-decodes a ZIP-internal path for use as a filesystem path.
// Undecodable input is returned as-is.
func Decode(p string) string {
	trimmed := strings.TrimPrefix(p, "/")
	decoded, err := url.PathUnescape(trimmed)
	if err != nil {
		return trimmed
	}
	return decoded
}

// Slugify converts a title into a filesystem-safe name. Runs of characters
// outside [A-Za-z0-9.-] collapse to a single underscore.
func Slugify(value string) string {
	var b strings.Builder
	prevUnderscore := false
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
			prevUnderscore = false
		default:
			if !prevUnderscore {
				b.WriteByte('_')
				prevUnderscore = true
			}
		}
	}
	trimmed := strings.Trim(b.String(), "_.-")
	if trimmed == "" {
		return "book"
	}
	return trimmed
}

// PrettyName derives a human-readable section label from an href,
// e.g. "OEBPS/front_matter-01.xhtml" becomes "front matter 01".
func PrettyName(href string) string {
	name := href
	if idx := strings.LastIndexByte(name, '/'); idx >= 0 {
		name = name[idx+1:]
	}
	if idx := strings.LastIndexByte(name, '.'); idx > 0 {
		name = name[:idx]
	}
	name = strings.NewReplacer("_", " ", "-", " ").Replace(name)
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return href
	}
	return name
}
