package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

// MaxContentLength caps note and item content, in runes.
const MaxContentLength = 10000

var contentPolicy = newContentPolicy()

const anchorRel = "noopener noreferrer"

var (
	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	attrEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&#34;")
)

// newContentPolicy allows anchors with an http(s) or mailto href and nothing
// else. Link attributes are rendered by renderMarkup.
func newContentPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowStandardURLs()
	p.AllowAttrs("href").OnElements("a")
	return p
}

// SanitizeContent strips every tag except anchors. Anchors open in a new tab
// with rel="noopener noreferrer". Text keeps quotes and apostrophes literal;
// only &, < and > are escaped. The result is stable under repeated calls.
func SanitizeContent(s string) string {
	if s == "" {
		return s
	}
	return renderMarkup(contentPolicy.Sanitize(s))
}

// VisibleLength counts the runes of content as displayed, ignoring markup and
// counting each entity as one rune.
func VisibleLength(content string) int {
	n := 0
	walkMarkup(content, func(text string) { n += utf8.RuneCountInString(text) }, func(string) {}, func() {})
	return n
}

// SplitContent cuts content after cursor visible runes. A link spanning the
// cursor is closed in the first half and reopened in the second.
func SplitContent(content string, cursor int) (before, after string) {
	var head, tail markupWriter
	remaining, split := cursor, false
	walkMarkup(content,
		func(text string) {
			if split {
				tail.text(text)
				return
			}
			runes := []rune(text)
			if remaining > len(runes) {
				head.text(text)
				remaining -= len(runes)
				return
			}
			head.text(string(runes[:remaining]))
			tail.anchor = head.anchor
			split = true
			tail.text(string(runes[remaining:]))
		},
		func(open string) {
			if split {
				tail.startAnchor(open)
			} else {
				head.startAnchor(open)
			}
		},
		func() {
			if split {
				tail.endAnchor()
			} else {
				head.endAnchor()
			}
		},
	)
	return head.finish(), tail.finish()
}

// renderMarkup re-serializes sanitized content in canonical form.
func renderMarkup(content string) string {
	var w markupWriter
	walkMarkup(content, w.text, w.startAnchor, w.endAnchor)
	return w.finish()
}

// walkMarkup reports unescaped text runs and anchor boundaries. onAnchor
// receives the canonical opening tag, or "" for an anchor without href.
func walkMarkup(content string, onText func(string), onAnchor func(open string), onAnchorEnd func()) {
	z := html.NewTokenizer(strings.NewReader(content))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return
		case html.TextToken:
			onText(string(z.Text()))
		case html.StartTagToken:
			tok := z.Token()
			if tok.Data == "a" {
				onAnchor(anchorTag(tok))
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); string(name) == "a" {
				onAnchorEnd()
			}
		}
	}
}

func anchorTag(tok html.Token) string {
	for _, a := range tok.Attr {
		if a.Key == "href" && a.Val != "" {
			return `<a href="` + attrEscaper.Replace(a.Val) + `" target="_blank" rel="` + anchorRel + `">`
		}
	}
	return ""
}

// markupWriter emits canonical markup. An anchor is written lazily with its
// first text so that splits never leave empty links behind.
type markupWriter struct {
	b      strings.Builder
	anchor string
	opened bool
}

func (w *markupWriter) startAnchor(open string) {
	w.endAnchor()
	w.anchor = open
}

func (w *markupWriter) endAnchor() {
	if w.opened {
		w.b.WriteString("</a>")
	}
	w.anchor, w.opened = "", false
}

func (w *markupWriter) text(s string) {
	if s == "" {
		return
	}
	if w.anchor != "" && !w.opened {
		w.b.WriteString(w.anchor)
		w.opened = true
	}
	w.b.WriteString(textEscaper.Replace(s))
}

func (w *markupWriter) finish() string {
	w.endAnchor()
	return w.b.String()
}

func checkLength(field, s string) error {
	if n := utf8.RuneCountInString(s); n > MaxContentLength {
		return invalid(field, fmt.Errorf("%w: %d > %d", ErrContentTooLong, n, MaxContentLength))
	}
	return nil
}

// PrepareChecklist turns a client submission into the proposed next snapshot:
// missing ids are assigned, content is sanitized and ownership is pinned to
// the note. Duplicate ids and malformed orders are rejected.
func PrepareChecklist(noteID string, items []ChecklistItem, newID func() string) ([]ChecklistItem, error) {
	out := make([]ChecklistItem, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if it.ID == "" {
			it.ID = newID()
		}
		if _, dup := seen[it.ID]; dup {
			return nil, invalid("checklistItems.id", fmt.Errorf("%w: %s", ErrDuplicateItem, it.ID))
		}
		seen[it.ID] = struct{}{}
		if err := checkLength("checklistItems.content", it.Content); err != nil {
			return nil, err
		}
		it.Content = SanitizeContent(it.Content)
		it.NoteID = noteID
		out = append(out, it)
	}
	if err := ValidateOrders(out); err != nil {
		return nil, err
	}
	return out, nil
}
