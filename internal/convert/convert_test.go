package convert

import (
	"archive/zip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/metcalfc/epub2md/internal/boundary"
	"github.com/metcalfc/epub2md/internal/render"
)

type fixtureFile struct {
	name string
	body string
}

func writeEPUB(t *testing.T, dir, name string, files []fixtureFile) string {
	t.Helper()
	p := filepath.Join(dir, name)
	f, err := os.Create(p)
	if err != nil {
		t.Fatalf("create %s: %v", p, err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	mt, err := zw.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	if err != nil {
		t.Fatalf("create mimetype: %v", err)
	}
	if _, err := mt.Write([]byte("application/epub+zip")); err != nil {
		t.Fatalf("write mimetype: %v", err)
	}
	for _, ff := range files {
		w, err := zw.Create(ff.name)
		if err != nil {
			t.Fatalf("create %s: %v", ff.name, err)
		}
		if _, err := w.Write([]byte(ff.body)); err != nil {
			t.Fatalf("write %s: %v", ff.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return p
}

const containerXML = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

const fixtureOPF = `<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" xmlns:dc="http://purl.org/dc/elements/1.1/" version="3.0" unique-identifier="uid">
  <metadata>
    <dc:title>Test Book</dc:title>
    <dc:creator>Jane Author</dc:creator>
    <dc:identifier id="uid">test-book</dc:identifier>
  </metadata>
  <manifest>
    <item id="front" href="front.xhtml" media-type="application/xhtml+xml"/>
    <item id="ch1" href="chapter1.xhtml" media-type="application/xhtml+xml"/>
    <item id="ch2" href="chapter2.xhtml" media-type="application/xhtml+xml"/>
    <item id="pic" href="pic.png" media-type="image/png"/>
    <item id="css" href="main.css" media-type="text/css"/>
    <item id="ncx" href="toc.ncx" media-type="application/x-dtbncx+xml"/>
  </manifest>
  <spine toc="ncx"><itemref idref="front"/><itemref idref="ch1"/><itemref idref="ch2"/></spine>
</package>`

const fixtureNCX = `<?xml version="1.0" encoding="UTF-8"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">
  <navMap>
    <navPoint id="n0" playOrder="1">
      <navLabel><text>Front Matter</text></navLabel>
      <content src="front.xhtml"/>
    </navPoint>
    <navPoint id="n1" playOrder="2">
      <navLabel><text>Chapter 1</text></navLabel>
      <content src="chapter1.xhtml"/>
    </navPoint>
    <navPoint id="n2" playOrder="3">
      <navLabel><text>Chapter 2</text></navLabel>
      <content src="chapter2.xhtml"/>
    </navPoint>
    <navPoint id="n3" playOrder="4">
      <navLabel><text>Part Two</text></navLabel>
      <content src="chapter2.xhtml#middle"/>
    </navPoint>
  </navMap>
</ncx>`

// fixtureFront gives the TOC a third unique href so the auto-policy
// degeneracy test keeps trusting it; the empty body means the section is
// dropped and the expected section count stays three.
const fixtureFront = `<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml">
<head><title>Front</title></head>
<body></body></html>`

const fixtureChapter1 = `<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml">
<head><title>One</title>
<link rel="stylesheet" href="main.css"/>
<style>h1 { font-weight: bold; }</style>
</head>
<body>
<h1>Chapter 1</h1>
<p>First chapter text.</p>
<p><img src="pic.png" alt="diagram"/></p>
</body></html>`

const fixtureChapter2 = `<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml">
<head><title>Two</title></head>
<body>
<h1>Chapter 2</h1>
<p>Second chapter text.</p>
<h2 id="middle">Part Two</h2>
<p>Late text after the anchor.</p>
</body></html>`

func fixtureEPUB(t *testing.T, dir string) string {
	return writeEPUB(t, dir, "test-book.epub", []fixtureFile{
		{"META-INF/container.xml", containerXML},
		{"OEBPS/content.opf", fixtureOPF},
		{"OEBPS/front.xhtml", fixtureFront},
		{"OEBPS/chapter1.xhtml", fixtureChapter1},
		{"OEBPS/chapter2.xhtml", fixtureChapter2},
		{"OEBPS/toc.ncx", fixtureNCX},
		{"OEBPS/pic.png", "\x89PNG fake image bytes"},
		{"OEBPS/main.css", "p { margin: 0; }"},
	})
}

func TestConvertBookSingleFile(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	epubPath := fixtureEPUB(t, in)

	res, err := ConvertBook(epubPath, Options{OutputDir: out})
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if res.Title != "Test Book" || res.Slug != "Test_Book" {
		t.Errorf("result = %+v", res)
	}
	if res.Sections != 3 {
		t.Errorf("sections = %d, want 3", res.Sections)
	}

	data, err := os.ReadFile(filepath.Join(out, "Test_Book.md"))
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	md := string(data)
	for _, want := range []string{
		"# Test Book",
		"**Author:** Jane Author",
		"## Chapter 1",
		"First chapter text.",
		"## Chapter 2",
		"Second chapter text.",
		"## Part Two",
		"Late text after the anchor.",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("output missing %q:\n%s", want, md)
		}
	}

	// The fragment boundary keeps post-anchor text out of Chapter 2.
	ch2Start := strings.Index(md, "## Chapter 2")
	partTwoStart := strings.Index(md, "## Part Two")
	if ch2Start < 0 || partTwoStart < ch2Start {
		t.Fatalf("cannot locate chapter 2 span in output:\n%s", md)
	}
	ch2 := md[ch2Start:partTwoStart]
	if strings.Contains(ch2, "Late text") {
		t.Errorf("chapter 2 leaked past its end anchor:\n%s", ch2)
	}
}

func TestConvertBookSplitChapters(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	epubPath := fixtureEPUB(t, in)

	// Simulate a stale file from an earlier run with different sections.
	staleDir := filepath.Join(out, "Test_Book")
	if err := os.MkdirAll(staleDir, 0o755); err != nil {
		t.Fatal(err)
	}
	stale := filepath.Join(staleDir, "99_old_section.md")
	if err := os.WriteFile(stale, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := ConvertBook(epubPath, Options{OutputDir: out, SplitChapters: true})
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if res.Path != staleDir {
		t.Errorf("path = %q, want %q", res.Path, staleDir)
	}

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale section file was not removed")
	}
	for _, name := range []string{"01_Chapter_1.md", "02_Chapter_2.md", "03_Part_Two.md"} {
		data, err := os.ReadFile(filepath.Join(staleDir, name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if !strings.Contains(string(data), "# Test Book") {
			t.Errorf("%s missing book header", name)
		}
	}
}

func TestConvertBookExtractsReferencedImages(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	epubPath := fixtureEPUB(t, in)

	res, err := ConvertBook(epubPath, Options{OutputDir: out})
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if res.ImagesExtracted != 1 {
		t.Errorf("images extracted = %d, want 1", res.ImagesExtracted)
	}

	if _, err := os.Stat(filepath.Join(out, "Test_Book", "images", "pic.png")); err != nil {
		t.Errorf("extracted image missing: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(out, "Test_Book.md"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "./Test_Book/images/pic.png") {
		t.Errorf("image link not rewritten:\n%s", data)
	}
}

func TestConvertBookSplitImageLinksAreLocal(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	epubPath := fixtureEPUB(t, in)

	if _, err := ConvertBook(epubPath, Options{OutputDir: out, SplitChapters: true}); err != nil {
		t.Fatalf("convert: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(out, "Test_Book", "01_Chapter_1.md"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "./images/pic.png") {
		t.Errorf("split output should use chapter-local image links:\n%s", data)
	}
}

func TestConvertBookRichInlineStyles(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	epubPath := fixtureEPUB(t, in)

	if _, err := ConvertBook(epubPath, Options{OutputDir: out, Mode: render.ModeRich}); err != nil {
		t.Fatalf("convert: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(out, "Test_Book.md"))
	if err != nil {
		t.Fatal(err)
	}
	md := string(data)
	if !strings.Contains(md, "<style>") {
		t.Errorf("missing inline style block:\n%s", md)
	}
	if !strings.Contains(md, "p { margin: 0; }") {
		t.Errorf("linked stylesheet contents not inlined:\n%s", md)
	}
	if !strings.Contains(md, "h1 { font-weight: bold; }") {
		t.Errorf("inline <style> contents not carried over:\n%s", md)
	}
}

func TestConvertBookRichExternalStyles(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	epubPath := fixtureEPUB(t, in)

	opts := Options{OutputDir: out, Mode: render.ModeRich, Style: StyleExternal}
	if _, err := ConvertBook(epubPath, opts); err != nil {
		t.Fatalf("convert: %v", err)
	}

	if _, err := os.Stat(filepath.Join(out, "Test_Book", "styles", "main.css")); err != nil {
		t.Errorf("copied stylesheet missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(out, "Test_Book", "styles", "inline_styles.css")); err != nil {
		t.Errorf("inline style file missing: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(out, "Test_Book.md"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `<link rel="stylesheet" href="./Test_Book/styles/main.css">`) {
		t.Errorf("missing stylesheet link:\n%s", data)
	}
}

func TestConvertBookPlainModeHasNoStyleHeader(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	epubPath := fixtureEPUB(t, in)

	if _, err := ConvertBook(epubPath, Options{OutputDir: out}); err != nil {
		t.Fatalf("convert: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(out, "Test_Book.md"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "<style>") || strings.Contains(string(data), "<link") {
		t.Errorf("plain mode should carry no style header:\n%s", data)
	}
}

func TestConvertBookKeepsRepeatedSections(t *testing.T) {
	// Two chapters carrying byte-identical boilerplate both make it into
	// the output; reading order, not body content, decides the sections.
	const boilerplate = `<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml">
<head><title>Exercises</title></head>
<body><p>Answers to the exercises appear at the end of the volume.</p></body></html>`
	const opf = `<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" xmlns:dc="http://purl.org/dc/elements/1.1/" version="3.0" unique-identifier="uid">
  <metadata>
    <dc:title>Workbook</dc:title>
    <dc:identifier id="uid">workbook</dc:identifier>
  </metadata>
  <manifest>
    <item id="ex1" href="ex1.xhtml" media-type="application/xhtml+xml"/>
    <item id="ex2" href="ex2.xhtml" media-type="application/xhtml+xml"/>
    <item id="ncx" href="toc.ncx" media-type="application/x-dtbncx+xml"/>
  </manifest>
  <spine toc="ncx"><itemref idref="ex1"/><itemref idref="ex2"/></spine>
</package>`
	const ncx = `<?xml version="1.0" encoding="UTF-8"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">
  <navMap>
    <navPoint id="n1" playOrder="1">
      <navLabel><text>Exercises A</text></navLabel>
      <content src="ex1.xhtml"/>
    </navPoint>
    <navPoint id="n2" playOrder="2">
      <navLabel><text>Exercises B</text></navLabel>
      <content src="ex2.xhtml"/>
    </navPoint>
  </navMap>
</ncx>`

	in := t.TempDir()
	out := t.TempDir()
	epubPath := writeEPUB(t, in, "workbook.epub", []fixtureFile{
		{"META-INF/container.xml", containerXML},
		{"OEBPS/content.opf", opf},
		{"OEBPS/ex1.xhtml", boilerplate},
		{"OEBPS/ex2.xhtml", boilerplate},
		{"OEBPS/toc.ncx", ncx},
	})

	res, err := ConvertBook(epubPath, Options{OutputDir: out, Fallback: boundary.PolicyOff})
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if res.Sections != 2 {
		t.Fatalf("sections = %d, want both repeated sections kept", res.Sections)
	}
	data, err := os.ReadFile(filepath.Join(out, "Workbook.md"))
	if err != nil {
		t.Fatal(err)
	}
	md := string(data)
	if !strings.Contains(md, "## Exercises A") || !strings.Contains(md, "## Exercises B") {
		t.Errorf("output missing a repeated section:\n%s", md)
	}
	if strings.Count(md, "Answers to the exercises") != 2 {
		t.Errorf("repeated body should appear twice:\n%s", md)
	}
}

func TestConvertAll(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	fixtureEPUB(t, in)

	if err := ConvertAll(Options{InputDir: in, OutputDir: out}); err != nil {
		t.Fatalf("convert all: %v", err)
	}
	output := filepath.Join(out, "Test_Book.md")
	if _, err := os.Stat(output); err != nil {
		t.Fatalf("output missing: %v", err)
	}

	// A second run sees the recorded hash and skips reconversion.
	if err := os.Remove(output); err != nil {
		t.Fatal(err)
	}
	if err := ConvertAll(Options{InputDir: in, OutputDir: out}); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if _, err := os.Stat(output); !os.IsNotExist(err) {
		t.Error("unchanged book should have been skipped")
	}

	// Force reconverts regardless.
	if err := ConvertAll(Options{InputDir: in, OutputDir: out, Force: true}); err != nil {
		t.Fatalf("forced run: %v", err)
	}
	if _, err := os.Stat(output); err != nil {
		t.Errorf("forced run did not rewrite output: %v", err)
	}
}

func TestConvertAllIsolatesFailures(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	fixtureEPUB(t, in)
	if err := os.WriteFile(filepath.Join(in, "broken.epub"), []byte("not a zip"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := ConvertAll(Options{InputDir: in, OutputDir: out})
	if err == nil {
		t.Fatal("expected an error for the broken book")
	}
	if !strings.Contains(err.Error(), "1 of 2") {
		t.Errorf("error = %v, want per-book failure count", err)
	}
	if _, statErr := os.Stat(filepath.Join(out, "Test_Book.md")); statErr != nil {
		t.Errorf("good book should still convert: %v", statErr)
	}
}

func TestConvertAllEmptyInput(t *testing.T) {
	if err := ConvertAll(Options{InputDir: t.TempDir(), OutputDir: t.TempDir()}); err == nil {
		t.Fatal("expected an error for an empty input dir")
	}
}

func TestParseStyle(t *testing.T) {
	for _, ok := range []string{"inline", "external"} {
		if _, err := ParseStyle(ok); err != nil {
			t.Errorf("%s: %v", ok, err)
		}
	}
	if _, err := ParseStyle("embedded"); err == nil {
		t.Error("expected error for unknown style")
	}
}

func TestSectionSlug(t *testing.T) {
	tests := []struct {
		label string
		want  string
	}{
		{"Chapter 1", "Chapter_1"},
		{"", "section_04"},
		{"   ", "section_04"},
		{strings.Repeat("a", 120), strings.Repeat("a", 80)},
	}
	for _, tt := range tests {
		if got := sectionSlug(tt.label, 4, 2); got != tt.want {
			t.Errorf("sectionSlug(%q) = %q, want %q", tt.label, got, tt.want)
		}
	}
}

func TestNumberWidth(t *testing.T) {
	tests := []struct{ n, want int }{{1, 2}, {9, 2}, {42, 2}, {150, 3}}
	for _, tt := range tests {
		if got := numberWidth(tt.n); got != tt.want {
			t.Errorf("numberWidth(%d) = %d, want %d", tt.n, got, tt.want)
		}
	}
}

func TestConvertBookUnreadable(t *testing.T) {
	p := filepath.Join(t.TempDir(), "missing.epub")
	if _, err := ConvertBook(p, Options{OutputDir: t.TempDir()}); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
