package tools

import (
	"strings"
	"testing"
)

func TestParseDDGResults(t *testing.T) {
	html := `
<a rel="nofollow" class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com%2Fone&amp;rut=abc">First <b>Result</b></a>
<a class="result__snippet" href="#">A snippet about <b>one</b></a>
<a rel="nofollow" class="result__a" href="https://example.com/two">Second Result</a>
`
	hits := parseDDGResults(html, 5)
	if len(hits) != 2 {
		t.Fatalf("hits = %d, want 2", len(hits))
	}
	if hits[0].Title != "First Result" {
		t.Errorf("title = %q", hits[0].Title)
	}
	if hits[0].URL != "https://example.com/one" {
		t.Errorf("redirect not unwrapped: %q", hits[0].URL)
	}
	if !strings.Contains(hits[0].Description, "snippet about one") {
		t.Errorf("description = %q", hits[0].Description)
	}
	if hits[1].URL != "https://example.com/two" {
		t.Errorf("plain url mangled: %q", hits[1].URL)
	}
}

func TestParseDDGResultsRespectsCount(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 8; i++ {
		sb.WriteString(`<a class="result__a" href="https://example.com/x">Hit</a>` + "\n")
	}
	if got := len(parseDDGResults(sb.String(), 3)); got != 3 {
		t.Errorf("hits = %d, want 3", got)
	}
}

func TestFormatSearchHits(t *testing.T) {
	out := formatSearchHits("go testing", "brave", []searchHit{
		{Title: "Go", URL: "https://go.dev", Description: "The Go site"},
	})
	for _, want := range []string{"go testing", "brave", "https://go.dev", "The Go site"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	empty := formatSearchHits("nothing", "brave", nil)
	if !strings.Contains(empty, "No results") {
		t.Errorf("empty output = %q", empty)
	}
}

func TestUnwrapDDGRedirect(t *testing.T) {
	cases := []struct{ in, want string }{
		{"https://example.com/plain", "https://example.com/plain"},
		{"//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com%2Fa&rut=x", "https://example.com/a"},
	}
	for _, tc := range cases {
		if got := unwrapDDGRedirect(tc.in); got != tc.want {
			t.Errorf("unwrapDDGRedirect(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
