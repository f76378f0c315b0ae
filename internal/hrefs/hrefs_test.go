package hrefs

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"OEBPS/ch1.xhtml", "OEBPS/ch1.xhtml"},
		{"./OEBPS/ch1.xhtml", "OEBPS/ch1.xhtml"},
		{"OEBPS/./ch1.xhtml", "OEBPS/ch1.xhtml"},
		{"OEBPS/text/../ch1.xhtml", "OEBPS/ch1.xhtml"},
		{"OEBPS\\ch1.xhtml", "OEBPS/ch1.xhtml"},
		{"ch1.xhtml?version=2", "ch1.xhtml"},
		{"  ch1.xhtml  ", "ch1.xhtml"},
		{"", ""},
		{".", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		base string
		rel  string
		want string
	}{
		{"OEBPS/ch1.xhtml", "images/fig.png", "OEBPS/images/fig.png"},
		{"OEBPS/text/ch1.xhtml", "../images/fig.png", "OEBPS/images/fig.png"},
		{"ch1.xhtml", "fig.png", "fig.png"},
		{"OEBPS/ch1.xhtml", "/images/fig.png", "images/fig.png"},
		{"OEBPS/ch1.xhtml", "./fig.png", "OEBPS/fig.png"},
	}
	for _, tt := range tests {
		if got := Resolve(tt.base, tt.rel); got != tt.want {
			t.Errorf("Resolve(%q, %q) = %q, want %q", tt.base, tt.rel, got, tt.want)
		}
	}
}

func TestSplitFragment(t *testing.T) {
	href, frag := SplitFragment("ch1.xhtml#section2")
	if href != "ch1.xhtml" || frag != "section2" {
		t.Errorf("SplitFragment = (%q, %q)", href, frag)
	}
	href, frag = SplitFragment("ch1.xhtml")
	if href != "ch1.xhtml" || frag != "" {
		t.Errorf("SplitFragment without fragment = (%q, %q)", href, frag)
	}
}

func TestIsExternal(t *testing.T) {
	for _, src := range []string{"http://example.com/a.png", "HTTPS://example.com/a.png", "data:image/png;base64,xyz"} {
		if !IsExternal(src) {
			t.Errorf("IsExternal(%q) = false, want true", src)
		}
	}
	for _, src := range []string{"images/fig.png", "../fig.png", ""} {
		if IsExternal(src) {
			t.Errorf("IsExternal(%q) = true, want false", src)
		}
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"The Brothers Karamazov", "The_Brothers_Karamazov"},
		{"War & Peace: Vol. 1", "War_Peace_Vol._1"},
		{"___", "book"},
		{"", "book"},
	}
	for _, tt := range tests {
		if got := Slugify(tt.in); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPrettyName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"OEBPS/front_matter-01.xhtml", "front matter 01"},
		{"chapter1.xhtml", "chapter1"},
		{"OEBPS/____.xhtml", "OEBPS/____.xhtml"},
	}
	for _, tt := range tests {
		if got := PrettyName(tt.in); got != tt.want {
			t.Errorf("PrettyName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
