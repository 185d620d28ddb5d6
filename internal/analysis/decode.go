package analysis

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/taralshah99/email-dossier-cli/internal/model"
)

// Default values for fields the model failed to supply.
const (
	UnknownClient  = "Unknown Client"
	UnknownProduct = "Unknown Product"
	GeneralDomain  = "general product"
)

// DecodeResult is the outcome of decoding a model response once at the
// service boundary. Downstream code switches on Structured.Kind and
// never re-parses the raw text.
type DecodeResult struct {
	Structured    model.StructuredAnalysis
	ClientName    string
	ProductName   string
	ProductDomain string
}

// DecodeStructured converts a model response into the structured schema.
// Strict JSON is preferred (raw, fenced, or brace-span); an object with
// "groups" or "global_summary" decodes as the grouped shape. Anything
// else falls back to markdown-section extraction. Unusable text degrades
// to Kind raw or none, never an error.
func DecodeStructured(text string) DecodeResult {
	res := DecodeResult{
		ClientName:    UnknownClient,
		ProductName:   UnknownProduct,
		ProductDomain: GeneralDomain,
	}

	if strings.TrimSpace(text) == "" {
		res.Structured.Kind = model.AnalysisNone
		return res
	}

	if raw, ok := tryParseJSON(text); ok {
		if grouped, ok := decodeGrouped(raw); ok {
			res.Structured = model.StructuredAnalysis{
				Kind:    model.AnalysisGrouped,
				Grouped: &grouped.analysis,
			}
			if p := grouped.firstProduct(); p != nil {
				if p.ClientName != "" {
					res.ClientName = p.ClientName
				}
				if p.ProductName != "" {
					res.ProductName = p.ProductName
				}
				if p.ProductDomain != "" {
					res.ProductDomain = p.ProductDomain
				}
			}
			return res
		}
	}

	legacy := model.LegacyAnalysis{
		ThreadSubjects:  parseBullets(extractSection(text, "Thread Subjects")),
		EmailSummaries:  parseBullets(firstNonEmpty(extractSection(text, "Email Summaries"), extractSection(text, "Combined Email Summaries"))),
		MeetingAgenda:   parseBullets(extractSection(text, "Meeting Agenda", "Consolidated Meeting Agenda")),
		MeetingDateTime: parseBullets(extractSection(text, "Meeting Date & Time", "Meeting Dates & Times")),
		FinalConclusion: strings.TrimSpace(extractSection(text, "Final Conclusion")),
	}

	if name := cleanExtractedName(extractField(text, "Client Name")); name != "" {
		res.ClientName = name
	}
	if name := cleanExtractedName(extractField(text, "Product Name")); name != "" {
		res.ProductName = name
	}
	if domain := extractField(text, "Product Domain"); domain != "" {
		res.ProductDomain = domain
	}

	if legacyEmpty(legacy) {
		res.Structured.Kind = model.AnalysisRaw
		return res
	}
	res.Structured = model.StructuredAnalysis{
		Kind:   model.AnalysisLegacy,
		Legacy: &legacy,
	}
	return res
}

func legacyEmpty(l model.LegacyAnalysis) bool {
	return len(l.ThreadSubjects) == 0 &&
		len(l.EmailSummaries) == 0 &&
		len(l.MeetingAgenda) == 0 &&
		len(l.MeetingDateTime) == 0 &&
		l.FinalConclusion == ""
}

var fencedJSONRe = regexp.MustCompile("(?is)```json\\s*(\\{[\\s\\S]*?\\})\\s*```")

// tryParseJSON attempts, in order: the whole text, a fenced ```json
// block, and the span from the first '{' to the last '}'.
func tryParseJSON(text string) (map[string]json.RawMessage, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &obj); err == nil {
		return obj, true
	}
	if m := fencedJSONRe.FindStringSubmatch(text); m != nil {
		if err := json.Unmarshal([]byte(m[1]), &obj); err == nil {
			return obj, true
		}
	}
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(text[start:end+1]), &obj); err == nil {
			return obj, true
		}
	}
	return nil, false
}

// Wire shapes tolerate the alias keys models actually emit.

type wireProduct struct {
	ClientName    string `json:"client_name"`
	ProductName   string `json:"product_name"`
	ProductDomain string `json:"product_domain"`
}

type wireGroup struct {
	Title             string        `json:"title"`
	ThreadSubjects    []string      `json:"thread_subjects"`
	Threads           []string      `json:"threads"`
	EmailSummaries    []string      `json:"email_summaries"`
	Summaries         []string      `json:"summaries"`
	MeetingAgenda     []string      `json:"meeting_agenda"`
	Agenda            []string      `json:"agenda"`
	MeetingDatesTimes []string      `json:"meeting_dates_times"`
	MeetingDateTime   []string      `json:"meeting_date_time"`
	FinalConclusion   string        `json:"final_conclusion"`
	Conclusion        string        `json:"conclusion"`
	Products          []wireProduct `json:"products"`
}

type wireGlobal struct {
	FinalConclusion string        `json:"final_conclusion"`
	Conclusion      string        `json:"conclusion"`
	Products        []wireProduct `json:"products"`
}

type groupedDecode struct {
	analysis model.GroupedAnalysis
	products []wireProduct
}

func (g *groupedDecode) firstProduct() *wireProduct {
	if len(g.products) == 0 {
		return nil
	}
	return &g.products[0]
}

// decodeGrouped interprets a JSON object as the grouped shape when it
// carries a "groups" or "global_summary" key.
func decodeGrouped(obj map[string]json.RawMessage) (*groupedDecode, bool) {
	groupsRaw, hasGroups := obj["groups"]
	globalRaw, hasGlobal := obj["global_summary"]
	if !hasGroups && !hasGlobal {
		return nil, false
	}

	out := &groupedDecode{}

	if hasGroups {
		var groups []wireGroup
		if err := json.Unmarshal(groupsRaw, &groups); err == nil {
			for _, g := range groups {
				title := strings.TrimSpace(g.Title)
				if title == "" {
					title = "Untitled Group"
				}
				out.analysis.Groups = append(out.analysis.Groups, model.AnalysisGroup{
					Title:           title,
					ThreadSubjects:  firstNonEmptyList(g.ThreadSubjects, g.Threads),
					EmailSummaries:  firstNonEmptyList(g.EmailSummaries, g.Summaries),
					MeetingAgenda:   firstNonEmptyList(g.MeetingAgenda, g.Agenda),
					MeetingDateTime: firstNonEmptyList(g.MeetingDatesTimes, g.MeetingDateTime),
					FinalConclusion: firstNonEmpty(g.FinalConclusion, g.Conclusion),
				})
				out.products = append(out.products, g.Products...)
			}
		}
	}

	if hasGlobal {
		var global wireGlobal
		if err := json.Unmarshal(globalRaw, &global); err == nil {
			out.analysis.GlobalSummary.FinalConclusion = firstNonEmpty(global.FinalConclusion, global.Conclusion)
			out.products = append(out.products, global.Products...)
		}
	}

	return out, true
}

// extractSection returns the content between a header (any variant,
// bold or plain, case-insensitive) and the next bold header or end.
func extractSection(text string, headerVariants ...string) string {
	if text == "" {
		return ""
	}

	var patterns []string
	for _, h := range headerVariants {
		esc := regexp.QuoteMeta(h)
		patterns = append(patterns,
			`(?:\*\*`+esc+`\s*:\*\*)`,
			`(?:\*\*`+esc+`\s*:\s*)`,
			`(?:`+esc+`\s*:\s*)`,
		)
	}
	headerRe := regexp.MustCompile(`(?i)` + strings.Join(patterns, "|"))

	loc := headerRe.FindStringIndex(text)
	if loc == nil {
		return ""
	}
	rest := text[loc[1]:]

	if next := nextHeaderRe.FindStringIndex(rest); next != nil {
		rest = rest[:next[0]]
	}
	return strings.TrimSpace(rest)
}

var (
	nextHeaderRe = regexp.MustCompile(`(?i)\n\s*\*\*[^\n]+?:\*\*`)
	bulletLineRe = regexp.MustCompile(`^(?:[-*]\s+|\d+\.\s+)(.+)$`)
	emailNumRe   = regexp.MustCompile(`(?i)^Email\s*\d+\s*:\s*`)
)

// parseBullets splits a section into items. Bullet markers ("- ", "* ",
// "1. ") are stripped; an unbulleted section yields one item per
// non-empty line. "Email N:" prefixes are normalized away.
func parseBullets(section string) []string {
	if section == "" {
		return nil
	}
	var items []string
	for _, raw := range strings.Split(section, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		item := line
		if m := bulletLineRe.FindStringSubmatch(line); m != nil {
			item = strings.TrimSpace(m[1])
		}
		item = emailNumRe.ReplaceAllString(item, "")
		items = append(items, item)
	}
	return items
}

// extractField pulls a "Label: value" line, tolerating bold markers.
func extractField(text, label string) string {
	re := regexp.MustCompile(`(?im)` + regexp.QuoteMeta(label) + `:\s*\**(.+?)\**\s*$`)
	if m := re.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

var (
	parenRe      = regexp.MustCompile(`\s*\([^)]*\)`)
	hedgeRe      = regexp.MustCompile(`(?i)^\s*(likely|probably|appears to be|seems to be)\s+`)
	semicolonRe  = regexp.MustCompile(`(?i)\s*(organization|company|corp|inc|ltd)?\s*;\s*.*$`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// cleanExtractedName strips explanatory noise the model attaches to
// names: parenthetical remarks, hedging prefixes, and everything after a
// semicolon.
func cleanExtractedName(name string) string {
	if name == "" {
		return ""
	}
	cleaned := parenRe.ReplaceAllString(name, "")
	cleaned = hedgeRe.ReplaceAllString(cleaned, "")
	cleaned = semicolonRe.ReplaceAllString(cleaned, "")
	cleaned = whitespaceRe.ReplaceAllString(cleaned, " ")
	return strings.TrimSpace(cleaned)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstNonEmptyList(lists ...[]string) []string {
	for _, l := range lists {
		if len(l) > 0 {
			return l
		}
	}
	return nil
}
