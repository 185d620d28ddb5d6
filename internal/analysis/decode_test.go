package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taralshah99/email-dossier-cli/internal/model"
)

const groupedJSON = `{
  "groups": [
    {
      "title": "Renewal Discussion",
      "thread_subjects": ["Contract renewal", "Re: Contract renewal"],
      "email_summaries": ["Jane asked about renewal terms", "Bob confirmed pricing"],
      "meeting_agenda": ["Review pricing tiers"],
      "meeting_date_time": ["2024-03-01 10:00"],
      "final_conclusion": "Renewal on track",
      "products": [{"client_name": "Acme", "product_name": "Widget Pro", "product_domain": "manufacturing"}]
    }
  ],
  "global_summary": {"final_conclusion": "One active engagement", "products": []}
}`

func TestDecodeStructured_GroupedJSON(t *testing.T) {
	res := DecodeStructured(groupedJSON)

	require.Equal(t, model.AnalysisGrouped, res.Structured.Kind)
	require.NotNil(t, res.Structured.Grouped)
	require.Len(t, res.Structured.Grouped.Groups, 1)

	g := res.Structured.Grouped.Groups[0]
	assert.Equal(t, "Renewal Discussion", g.Title)
	assert.Equal(t, []string{"Contract renewal", "Re: Contract renewal"}, g.ThreadSubjects)
	assert.Equal(t, []string{"Review pricing tiers"}, g.MeetingAgenda)
	assert.Equal(t, "Renewal on track", g.FinalConclusion)
	assert.Equal(t, "One active engagement", res.Structured.Grouped.GlobalSummary.FinalConclusion)

	assert.Equal(t, "Acme", res.ClientName)
	assert.Equal(t, "Widget Pro", res.ProductName)
	assert.Equal(t, "manufacturing", res.ProductDomain)
}

func TestDecodeStructured_FencedJSON(t *testing.T) {
	text := "Here is the analysis:\n```json\n" + groupedJSON + "\n```\nDone."
	res := DecodeStructured(text)
	assert.Equal(t, model.AnalysisGrouped, res.Structured.Kind)
}

func TestDecodeStructured_BraceSpanJSON(t *testing.T) {
	text := "The model helpfully explains first. " + groupedJSON
	res := DecodeStructured(text)
	assert.Equal(t, model.AnalysisGrouped, res.Structured.Kind)
}

func TestDecodeStructured_GroupedAliases(t *testing.T) {
	text := `{
	  "groups": [{
	    "title": "",
	    "threads": ["Kickoff"],
	    "summaries": ["Team met"],
	    "agenda": ["Scope"],
	    "meeting_dates_times": ["tomorrow"],
	    "conclusion": "done"
	  }]
	}`
	res := DecodeStructured(text)
	require.Equal(t, model.AnalysisGrouped, res.Structured.Kind)
	g := res.Structured.Grouped.Groups[0]
	assert.Equal(t, "Untitled Group", g.Title)
	assert.Equal(t, []string{"Kickoff"}, g.ThreadSubjects)
	assert.Equal(t, []string{"Team met"}, g.EmailSummaries)
	assert.Equal(t, []string{"Scope"}, g.MeetingAgenda)
	assert.Equal(t, []string{"tomorrow"}, g.MeetingDateTime)
	assert.Equal(t, "done", g.FinalConclusion)
}

func TestDecodeStructured_JSONWithoutGroupKeysFallsThrough(t *testing.T) {
	// Valid JSON but not the grouped shape: markdown path applies.
	res := DecodeStructured(`{"unrelated": true}`)
	assert.Equal(t, model.AnalysisRaw, res.Structured.Kind)
}

const markdownAnalysis = `**Email Summaries:**
- Email 1: Jane requested a demo
- Email 2: Bob scheduled the call
* Additional stakeholders were looped in

**Meeting Agenda:**
1. Demo walkthrough
2. Pricing discussion

**Meeting Date & Time:**
- Tuesday 3pm IST

**Final Conclusion:**
The deal is progressing toward a demo.

**Client Name:** Acme Corp (likely the buyer organization)
Product Name: likely Widget Pro; company ships hardware too
Product Domain: industrial tooling`

func TestDecodeStructured_MarkdownSections(t *testing.T) {
	res := DecodeStructured(markdownAnalysis)

	require.Equal(t, model.AnalysisLegacy, res.Structured.Kind)
	l := res.Structured.Legacy
	require.NotNil(t, l)

	assert.Equal(t, []string{
		"Jane requested a demo",
		"Bob scheduled the call",
		"Additional stakeholders were looped in",
	}, l.EmailSummaries)
	assert.Equal(t, []string{"Demo walkthrough", "Pricing discussion"}, l.MeetingAgenda)
	assert.Equal(t, []string{"Tuesday 3pm IST"}, l.MeetingDateTime)
	assert.Equal(t, "The deal is progressing toward a demo.", l.FinalConclusion)
}

func TestDecodeStructured_NameCleanup(t *testing.T) {
	res := DecodeStructured(markdownAnalysis)
	assert.Equal(t, "Acme Corp", res.ClientName)
	assert.Equal(t, "Widget Pro", res.ProductName)
	assert.Equal(t, "industrial tooling", res.ProductDomain)
}

func TestDecodeStructured_CombinedSummariesVariant(t *testing.T) {
	text := `**Combined Email Summaries:**
- threads were merged

**Consolidated Meeting Agenda:**
- review everything`
	res := DecodeStructured(text)
	require.Equal(t, model.AnalysisLegacy, res.Structured.Kind)
	assert.Equal(t, []string{"threads were merged"}, res.Structured.Legacy.EmailSummaries)
	assert.Equal(t, []string{"review everything"}, res.Structured.Legacy.MeetingAgenda)
}

func TestDecodeStructured_UnbulletedSectionLines(t *testing.T) {
	text := `**Email Summaries:**
first line of prose
second line of prose

**Final Conclusion:**
wrap up`
	res := DecodeStructured(text)
	require.Equal(t, model.AnalysisLegacy, res.Structured.Kind)
	assert.Equal(t, []string{"first line of prose", "second line of prose"}, res.Structured.Legacy.EmailSummaries)
}

func TestDecodeStructured_PlainProseIsRaw(t *testing.T) {
	res := DecodeStructured("The threads discuss a renewal but nothing is structured.")
	assert.Equal(t, model.AnalysisRaw, res.Structured.Kind)
	assert.Equal(t, UnknownClient, res.ClientName)
	assert.Equal(t, UnknownProduct, res.ProductName)
	assert.Equal(t, GeneralDomain, res.ProductDomain)
}

func TestDecodeStructured_EmptyIsNone(t *testing.T) {
	assert.Equal(t, model.AnalysisNone, DecodeStructured("").Structured.Kind)
	assert.Equal(t, model.AnalysisNone, DecodeStructured("   \n ").Structured.Kind)
}

func TestCleanExtractedName(t *testing.T) {
	tests := map[string]string{
		"Acme Corp (likely the buyer)":    "Acme Corp",
		"probably Initech":                "Initech",
		"Globex; they also sell services": "Globex",
		"Umbrella   Corp":                 "Umbrella Corp",
		"":                                "",
	}
	for in, want := range tests {
		assert.Equal(t, want, cleanExtractedName(in), "input %q", in)
	}
}

func TestParseBullets(t *testing.T) {
	section := "- one\n* two\n3. three\nEmail 4: four\n\n"
	assert.Equal(t, []string{"one", "two", "three", "four"}, parseBullets(section))
	assert.Nil(t, parseBullets(""))
}

func TestExtractSection_StopsAtNextBoldHeader(t *testing.T) {
	text := "**First:**\ncontent here\n**Second:**\nother"
	assert.Equal(t, "content here", extractSection(text, "First"))
	assert.Equal(t, "other", extractSection(text, "Second"))
	assert.Equal(t, "", extractSection(text, "Missing"))
}
