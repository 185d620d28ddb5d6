package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/taralshah99/email-dossier-cli/internal/markup"
	"github.com/taralshah99/email-dossier-cli/internal/model"
	"github.com/taralshah99/email-dossier-cli/pkg/anthropic"
	"github.com/taralshah99/email-dossier-cli/pkg/perplexity"
)

// ErrInvalidClientName reports a client dossier request with an empty or
// sentinel client name. Raised before any network call.
var ErrInvalidClientName = eris.New("analysis: no valid client name for dossier")

// DossierWriter generates the three dossier kinds. The meeting flow and
// past summary come from the cached analysis; the client dossier adds a
// Perplexity research pass before structuring.
type DossierWriter struct {
	anthropic  anthropic.Client
	perplexity perplexity.Client
	model      string
	maxTokens  int64
}

// NewDossierWriter builds a DossierWriter.
func NewDossierWriter(ac anthropic.Client, pc perplexity.Client, modelID string, maxTokens int64) *DossierWriter {
	return &DossierWriter{anthropic: ac, perplexity: pc, model: modelID, maxTokens: maxTokens}
}

// MeetingFlow generates the forward-looking meeting preparation dossier
// from the cached analysis. Output is plain text; markdown the model
// sneaks in is stripped.
func (w *DossierWriter) MeetingFlow(ctx context.Context, analysis *model.AnalysisResult, meta *model.ProcessedMetadata) (*model.Dossier, error) {
	if analysis == nil {
		return nil, eris.New("analysis: meeting flow requires an analysis result")
	}

	prompt := meetingFlowPrompt(sourceBundle(analysis, meta))
	resp, err := w.anthropic.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     w.model,
		MaxTokens: w.maxTokens,
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, eris.Wrap(err, "analysis: meeting flow")
	}
	resp.Usage.LogCost(w.model, "meeting_flow")

	return w.newDossier(model.DossierMeeting, analysis, markup.StripMarkdown(resp.Text())), nil
}

// PastSummary generates the chronological record of what already
// happened across the analyzed threads.
func (w *DossierWriter) PastSummary(ctx context.Context, analysis *model.AnalysisResult, meta *model.ProcessedMetadata) (*model.Dossier, error) {
	if analysis == nil {
		return nil, eris.New("analysis: past summary requires an analysis result")
	}

	prompt := pastSummaryPrompt(sourceBundle(analysis, meta))
	resp, err := w.anthropic.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     w.model,
		MaxTokens: w.maxTokens,
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, eris.Wrap(err, "analysis: past summary")
	}
	resp.Usage.LogCost(w.model, "past_summary")

	return w.newDossier(model.DossierSummary, analysis, markup.StripMarkdown(resp.Text())), nil
}

// ClientDossier researches the client via Perplexity, then structures
// the findings into the fixed dossier skeleton. The client name must be
// real; sentinels fail fast without touching the network.
func (w *DossierWriter) ClientDossier(ctx context.Context, clientName, clientDomain, clientContext string) (*model.Dossier, error) {
	switch strings.ToLower(strings.TrimSpace(clientName)) {
	case "", "unknown client", "unknown":
		return nil, ErrInvalidClientName
	}

	research, err := w.perplexity.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Messages: []perplexity.Message{{
			Role:    "user",
			Content: fmt.Sprintf("Do intensive research on the company %s and give me a massive report on everything you find.", clientName),
		}},
		Temperature: ptr(0.2),
		TopP:        ptr(0.9),
		MaxTokens:   ptrInt(4000),
	})
	if err != nil {
		return nil, eris.Wrap(err, "analysis: client research")
	}

	resp, err := w.anthropic.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     w.model,
		MaxTokens: w.maxTokens,
		Messages: []anthropic.Message{{
			Role:    "user",
			Content: clientDossierPrompt(clientName, clientContext, research.Text()),
		}},
	})
	if err != nil {
		return nil, eris.Wrap(err, "analysis: client dossier")
	}
	resp.Usage.LogCost(w.model, "client_dossier")

	zap.L().Info("client dossier generated",
		zap.String("client_name", clientName),
		zap.String("client_domain", clientDomain))

	return &model.Dossier{
		ID:            uuid.NewString(),
		Kind:          model.DossierClient,
		ClientName:    clientName,
		ProductDomain: clientDomain,
		Content:       resp.Text(),
		GeneratedAt:   time.Now().UTC(),
	}, nil
}

func (w *DossierWriter) newDossier(kind model.DossierKind, analysis *model.AnalysisResult, content string) *model.Dossier {
	return &model.Dossier{
		ID:            uuid.NewString(),
		Kind:          kind,
		ClientName:    analysis.ClientName,
		ProductName:   analysis.ProductName,
		ProductDomain: analysis.ProductDomain,
		Content:       content,
		GeneratedAt:   time.Now().UTC(),
	}
}

// sourceBundle renders the prompt source material: thread metadata
// first, then the structured analysis, then the raw model text.
func sourceBundle(analysis *model.AnalysisResult, meta *model.ProcessedMetadata) string {
	var sections []string

	if meta != nil {
		var b strings.Builder
		b.WriteString("COMBINED THREADS METADATA:\n")
		fmt.Fprintf(&b, "- Total Threads: %d\n", meta.Combined.ThreadCount)
		fmt.Fprintf(&b, "- First Email Date: %s\n", formatDate(meta.Combined.FirstEmailDate))
		fmt.Fprintf(&b, "- Last Email Date: %s\n", formatDate(meta.Combined.LastEmailDate))
		b.WriteString("\nINDIVIDUAL THREADS:\n")
		for i, tm := range meta.ThreadMetadatas {
			fmt.Fprintf(&b, "\nThread %d: %s\n", i+1, tm.Subject)
			fmt.Fprintf(&b, "  - ID: %s\n", tm.ThreadID)
			fmt.Fprintf(&b, "  - Messages: %d\n", tm.MessageCount)
			fmt.Fprintf(&b, "  - Date Range: %s to %s\n", formatDate(tm.FirstEmailDate), formatDate(tm.LastEmailDate))
		}
		sections = append(sections, b.String())
	}

	if analysis.Structured.Kind != model.AnalysisNone && analysis.Structured.Kind != model.AnalysisRaw {
		if encoded, err := json.MarshalIndent(analysis.Structured, "", "  "); err == nil {
			sections = append(sections, "STRUCTURED ANALYSIS:\n"+string(encoded))
		}
	}
	if analysis.Raw != "" {
		sections = append(sections, "RAW ANALYSIS:\n"+analysis.Raw)
	}

	if len(sections) == 0 {
		return "No analysis content provided."
	}
	return strings.Join(sections, "\n\n")
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "N/A"
	}
	return t.Format("2006-01-02 15:04:05")
}

func meetingFlowPrompt(source string) string {
	return `You are generating a 'Meeting Flow Dossier' to help prepare for an upcoming meeting based on email discussions.

PURPOSE: This dossier should focus on MEETING PREPARATION - what needs to be discussed, decided, and accomplished in the meeting. This is NOT a historical summary but a forward-looking meeting preparation guide.

CRITICAL: Return CLEAN PLAIN TEXT only. Do NOT use markdown symbols like #, ##, *, or **. Use simple dashes and apostrophes.

CONTENT REQUIREMENTS:
- Focus on FUTURE ACTIONS and meeting preparation, not past summaries
- Identify what needs to be DISCUSSED, DECIDED, or RESOLVED in the meeting
- Extract unresolved issues, pending decisions, and action items from emails
- Create a practical meeting agenda based on email discussions
- Look for any mentioned meeting dates, times, or scheduling information in the emails
- Suggest meeting process improvements based on email communication patterns

Return exactly this structure in PLAIN TEXT format:

Meeting Flow Dossier

Meeting Date and Time
- [Extract any mentioned meeting date, time, or scheduling information from the emails. If no specific date/time is mentioned, omit this entire section]

Meeting Objectives
- [Specific objectives for the upcoming meeting based on email discussions]

Meeting Context
[Brief context paragraph explaining why this meeting is needed and what needs to be addressed]

Key Discussion Points for Meeting
- [Main topics that need to be discussed in the meeting]

Decisions Required
- [Specific decisions that need to be made during the meeting]

Current Blockers to Address
- [Issues or blockers that need resolution in the meeting]

Proposed Meeting Agenda
1. [First agenda item]
2. [Second agenda item]
3. [Additional items as needed]

Next Steps & Owners (Post-Meeting)
- [Actions that should be assigned during the meeting]

Meeting Process Improvements
- [Suggestions to make the meeting more effective]

SOURCE MATERIAL START
` + source + `
SOURCE MATERIAL END`
}

func pastSummaryPrompt(source string) string {
	return `You are generating a 'Past Communications Summary' that records what has already happened across the analyzed email threads.

PURPOSE: A backward-looking chronological record. Capture what was discussed, what was decided, and what remained open, in the order it happened.

CRITICAL: Return CLEAN PLAIN TEXT only. Do NOT use markdown symbols like #, ##, *, or **.

Return exactly this structure in PLAIN TEXT format:

Past Communications Summary

Timeline
- [Chronological bullet per notable exchange: date, who, what]

Decisions Made
- [Decisions that were reached, with who made them when identifiable]

Open Items Carried Forward
- [Questions or requests raised but not resolved]

Overall Narrative
[One or two paragraphs telling the story of the correspondence]

SOURCE MATERIAL START
` + source + `
SOURCE MATERIAL END`
}

func clientDossierPrompt(clientName, clientContext, research string) string {
	if clientContext == "" {
		clientContext = "No additional context provided."
	}
	return fmt.Sprintf(`Return MARKDOWN only, with the exact headings (in this order):
# Client Dossier: %s
## Executive Summary
## Company Overview
## Industry & Market Position
## Business Challenges & Pain Points
## Key Decision Makers & Stakeholders
## Previous Interactions & History
## Strategic Opportunities
## Recommended Approach

RESEARCH START
%s
RESEARCH END

ADDITIONAL CONTEXT START
%s
ADDITIONAL CONTEXT END

Use the RESEARCH and ADDITIONAL CONTEXT sections above to write the dossier. Structure the information into the specified sections. If information for a section is missing, write 'Information not available in research.' for that section. Do NOT invent facts about the client.`, clientName, research, clientContext)
}

func ptr(f float64) *float64 { return &f }
func ptrInt(n int) *int      { return &n }
