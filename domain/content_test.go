package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestSanitizeContentKeepsOnlyAnchors(t *testing.T) {
	in := `Read <b>this</b> <a href="https://example.com/doc">doc</a><script>alert(1)</script>`

	out := SanitizeContent(in)

	if strings.Contains(out, "<script") || strings.Contains(out, "<b>") {
		t.Fatalf("expected disallowed tags to be stripped, got %q", out)
	}
	if !strings.Contains(out, `href="https://example.com/doc"`) {
		t.Fatalf("expected anchor href to survive, got %q", out)
	}
	if !strings.Contains(out, `target="_blank"`) {
		t.Fatalf("expected target=_blank, got %q", out)
	}
	if !strings.Contains(out, `rel="noopener noreferrer"`) {
		t.Fatalf("expected rel=\"noopener noreferrer\", got %q", out)
	}
}

func TestSanitizeContentCanonicalForm(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"quotes stay literal", `Buy Tom's "milk" & eggs`, `Buy Tom's "milk" &amp; eggs`},
		{"entities decoded", `Tom&#39;s &lt;tag&gt;`, `Tom's &lt;tag&gt;`},
		{"anchor", `<a href="https://x.io/?a=1&b=2" rel="nofollow">docs</a>`, `<a href="https://x.io/?a=1&amp;b=2" target="_blank" rel="noopener noreferrer">docs</a>`},
		{"unsafe href dropped", `<a href="javascript:alert(1)">x</a>`, `x`},
		{"empty anchor dropped", `a<a href="https://x.io"></a>b`, `ab`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := SanitizeContent(tc.in)
			if got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
			if again := SanitizeContent(got); again != got {
				t.Fatalf("not stable: %q then %q", got, again)
			}
		})
	}
}

func TestVisibleLength(t *testing.T) {
	in := `see <a href="https://x.io" target="_blank" rel="noopener noreferrer">Tom &amp; co</a>`
	if got := VisibleLength(in); got != 12 {
		t.Fatalf("expected 12 visible runes, got %d", got)
	}
}

func TestSanitizeContentPlainTextUnchanged(t *testing.T) {
	if got := SanitizeContent("Buy milk"); got != "Buy milk" {
		t.Fatalf("unexpected sanitized text: %q", got)
	}
}

func TestPrepareChecklist(t *testing.T) {
	n := 0
	newID := func() string {
		n++
		return "gen-" + string(rune('0'+n))
	}
	items := []ChecklistItem{{Content: "A", Order: 1}, {ID: "x", Content: "B", Order: 0, NoteID: "other"}}

	got, err := PrepareChecklist("note-1", items, newID)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if got[0].ID != "gen-1" {
		t.Fatalf("expected generated id, got %q", got[0].ID)
	}
	for _, it := range got {
		if it.NoteID != "note-1" {
			t.Fatalf("expected note id to be pinned, got %q", it.NoteID)
		}
	}
}

func TestPrepareChecklistRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		items []ChecklistItem
		want  error
	}{
		{name: "duplicate", items: []ChecklistItem{{ID: "a"}, {ID: "a"}}, want: ErrDuplicateItem},
		{name: "too long", items: []ChecklistItem{{ID: "a", Content: strings.Repeat("x", MaxContentLength+1)}}, want: ErrContentTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := PrepareChecklist("n", tt.items, func() string { return "id" })
			if !errors.Is(err, tt.want) || !IsValidation(err) {
				t.Fatalf("expected validation error %v, got %v", tt.want, err)
			}
		})
	}
}
