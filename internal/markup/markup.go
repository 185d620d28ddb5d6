// Package markup converts the constrained markdown subset produced by the
// analysis models into a canonical text form and an escaped HTML rendering.
// Everything rendered to the browser goes through this package; text is
// always HTML-escaped so model output can never carry active content.
package markup

import (
	"html"
	"regexp"
	"strings"
)

var (
	headingRe     = regexp.MustCompile(`^(#{1,3})\s*(.*)$`)
	bulletRe      = regexp.MustCompile(`^[-*]\s+(.*)$`)
	orderedRe     = regexp.MustCompile(`^\d+[.)]\s+(.*)$`)
	excessBlankRe = regexp.MustCompile(`\n{3,}`)
	boldRe        = regexp.MustCompile(`\*\*(.+?)\*\*`)
	italicRe      = regexp.MustCompile(`\*([^*\n]+)\*`)
)

// Normalize rewrites raw model output into a canonical form of the
// supported markdown subset. It is idempotent: Normalize(Normalize(x))
// equals Normalize(x) for any input.
func Normalize(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		line = strings.TrimRight(line, " \t")

		if m := headingRe.FindStringSubmatch(line); m != nil {
			text := strings.TrimSpace(m[2])
			if text == "" {
				line = ""
			} else {
				line = m[1] + " " + text
			}
		} else if m := bulletRe.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			line = "- " + strings.TrimSpace(m[1])
		} else if m := orderedRe.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			// Renumbering happens at parse time; keep the author's number.
			num := strings.TrimSpace(line)[:strings.IndexAny(strings.TrimSpace(line), ".)")]
			line = num + ". " + strings.TrimSpace(m[1])
		}
		lines[i] = line
	}

	s = strings.Join(lines, "\n")
	s = excessBlankRe.ReplaceAllString(s, "\n\n")
	return strings.Trim(s, "\n")
}

// BlockKind enumerates the structural block types.
type BlockKind string

const (
	BlockHeading   BlockKind = "heading"
	BlockParagraph BlockKind = "paragraph"
	BlockList      BlockKind = "list"
)

// Span is a run of text with inline emphasis flags.
type Span struct {
	Text   string `json:"text"`
	Bold   bool   `json:"bold,omitempty"`
	Italic bool   `json:"italic,omitempty"`
}

// Block is one structural element of a parsed document.
type Block struct {
	Kind    BlockKind `json:"kind"`
	Level   int       `json:"level,omitempty"` // headings: 1-3
	Spans   []Span    `json:"spans,omitempty"`
	Ordered bool      `json:"ordered,omitempty"` // lists
	Items   [][]Span  `json:"items,omitempty"`   // lists
}

// Document is the canonical rendering model for AI-supplied text.
type Document struct {
	Blocks []Block `json:"blocks"`
}

// Parse normalizes raw and splits it into structural blocks. Adjacent
// list lines of the same flavor collapse into a single list container.
func Parse(raw string) Document {
	var doc Document
	normalized := Normalize(raw)
	if normalized == "" {
		return doc
	}

	var para []string
	flushPara := func() {
		if len(para) == 0 {
			return
		}
		doc.Blocks = append(doc.Blocks, Block{
			Kind:  BlockParagraph,
			Spans: parseSpans(strings.Join(para, " ")),
		})
		para = nil
	}

	var list *Block
	flushList := func() {
		if list == nil {
			return
		}
		doc.Blocks = append(doc.Blocks, *list)
		list = nil
	}

	for _, line := range strings.Split(normalized, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			flushPara()
			flushList()
			continue
		}

		if m := headingRe.FindStringSubmatch(trimmed); m != nil {
			flushPara()
			flushList()
			doc.Blocks = append(doc.Blocks, Block{
				Kind:  BlockHeading,
				Level: len(m[1]),
				Spans: parseSpans(m[2]),
			})
			continue
		}

		if m := bulletRe.FindStringSubmatch(trimmed); m != nil {
			flushPara()
			if list == nil || list.Ordered {
				flushList()
				list = &Block{Kind: BlockList}
			}
			list.Items = append(list.Items, parseSpans(m[1]))
			continue
		}

		if m := orderedRe.FindStringSubmatch(trimmed); m != nil {
			flushPara()
			if list == nil || !list.Ordered {
				flushList()
				list = &Block{Kind: BlockList, Ordered: true}
			}
			list.Items = append(list.Items, parseSpans(m[1]))
			continue
		}

		flushList()
		para = append(para, trimmed)
	}
	flushPara()
	flushList()

	return doc
}

// parseSpans splits inline text into bold/italic/plain runs.
func parseSpans(text string) []Span {
	var spans []Span
	for text != "" {
		boldLoc := boldRe.FindStringSubmatchIndex(text)
		italLoc := italicRe.FindStringSubmatchIndex(text)

		// Pick whichever match starts first; bold wins ties since its
		// delimiter is a superset of the italic one.
		loc, bold := boldLoc, true
		if loc == nil || (italLoc != nil && italLoc[0] < loc[0]) {
			loc, bold = italLoc, false
		}
		if loc == nil {
			spans = appendSpan(spans, Span{Text: text})
			break
		}

		if loc[0] > 0 {
			spans = appendSpan(spans, Span{Text: text[:loc[0]]})
		}
		inner := text[loc[2]:loc[3]]
		spans = appendSpan(spans, Span{Text: inner, Bold: bold, Italic: !bold})
		text = text[loc[1]:]
	}
	return spans
}

func appendSpan(spans []Span, s Span) []Span {
	if s.Text == "" {
		return spans
	}
	return append(spans, s)
}

// HTML renders the document with every text node escaped. The output
// contains only the allow-listed tags h1-h3, p, ul, ol, li, strong, em.
func (d Document) HTML() string {
	var b strings.Builder
	for _, blk := range d.Blocks {
		switch blk.Kind {
		case BlockHeading:
			tag := [4]string{"", "h1", "h2", "h3"}[blk.Level]
			b.WriteString("<" + tag + ">")
			writeSpans(&b, blk.Spans)
			b.WriteString("</" + tag + ">\n")
		case BlockList:
			tag := "ul"
			if blk.Ordered {
				tag = "ol"
			}
			b.WriteString("<" + tag + ">\n")
			for _, item := range blk.Items {
				b.WriteString("<li>")
				writeSpans(&b, item)
				b.WriteString("</li>\n")
			}
			b.WriteString("</" + tag + ">\n")
		case BlockParagraph:
			b.WriteString("<p>")
			writeSpans(&b, blk.Spans)
			b.WriteString("</p>\n")
		}
	}
	return b.String()
}

func writeSpans(b *strings.Builder, spans []Span) {
	for _, s := range spans {
		text := html.EscapeString(s.Text)
		switch {
		case s.Bold:
			b.WriteString("<strong>" + text + "</strong>")
		case s.Italic:
			b.WriteString("<em>" + text + "</em>")
		default:
			b.WriteString(text)
		}
	}
}

// PlainText flattens the document to text without markup, preserving
// block boundaries as newlines.
func (d Document) PlainText() string {
	var b strings.Builder
	for i, blk := range d.Blocks {
		if i > 0 {
			b.WriteString("\n")
		}
		switch blk.Kind {
		case BlockList:
			for j, item := range blk.Items {
				if j > 0 {
					b.WriteString("\n")
				}
				for _, s := range item {
					b.WriteString(s.Text)
				}
			}
		default:
			for _, s := range blk.Spans {
				b.WriteString(s.Text)
			}
		}
	}
	return b.String()
}
