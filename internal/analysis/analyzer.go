// Package analysis turns processed thread metadata into structured AI
// analysis and long-form dossiers. Model output is decoded exactly once
// here; everything downstream consumes the structured form.
package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/taralshah99/email-dossier-cli/internal/model"
	"github.com/taralshah99/email-dossier-cli/pkg/anthropic"
)

const groupedSchema = `{
  "groups": [
    {
      "title": "string",
      "thread_subjects": ["string"],
      "email_summaries": ["string"],
      "meeting_agenda": ["string"],
      "meeting_date_time": ["string"],
      "final_conclusion": "string",
      "products": [ { "client_name": "string", "product_name": "string", "product_domain": "string" } ]
    }
  ],
  "global_summary": {
    "final_conclusion": "string",
    "products": [ { "client_name": "string", "product_name": "string", "product_domain": "string" } ]
  }
}`

// Analyzer runs the analysis stage against the Anthropic API.
type Analyzer struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnalyzer builds an Analyzer.
func NewAnalyzer(client anthropic.Client, modelID string, maxTokens int64) *Analyzer {
	return &Analyzer{client: client, model: modelID, maxTokens: maxTokens}
}

// Analyze sends the combined thread content for grouped analysis and
// decodes the response. The client name is the model's own extraction;
// weighing it against the domain-derived candidates is the identity
// resolver's job.
func (a *Analyzer) Analyze(ctx context.Context, meta *model.ProcessedMetadata) (*model.AnalysisResult, error) {
	if meta == nil || len(meta.ProcessedThreadIDs) == 0 {
		return nil, eris.New("analysis: no processed threads")
	}

	prompt := a.buildPrompt(meta)
	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, eris.Wrap(err, "analysis: analyze threads")
	}
	resp.Usage.LogCost(a.model, "analyze")

	raw := resp.Text()
	decoded := DecodeStructured(raw)

	result := &model.AnalysisResult{
		Structured:    decoded.Structured,
		Raw:           raw,
		ClientName:    decoded.ClientName,
		ProductName:   decoded.ProductName,
		ProductDomain: decoded.ProductDomain,
		Relevancy:     meta.Relevancy,
	}
	zap.L().Info("analysis complete",
		zap.String("kind", string(decoded.Structured.Kind)),
		zap.String("client_name", result.ClientName),
		zap.Int("threads", len(meta.ProcessedThreadIDs)))
	return result, nil
}

func (a *Analyzer) buildPrompt(meta *model.ProcessedMetadata) string {
	var subjects strings.Builder
	for _, tm := range meta.ThreadMetadatas {
		fmt.Fprintf(&subjects, "- %s\n", tm.Subject)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are given %d email threads. Analyze all emails together. ", len(meta.ProcessedThreadIDs))
	b.WriteString("Your job is to intelligently group emails by topics such as product/service discussed, ")
	b.WriteString("meeting agendas, feature requests, demos/sales, bug reports, and general queries. ")
	b.WriteString("If two threads reference the same product or meeting, group them together.\n\n")
	b.WriteString("Thread Subjects:\n")
	b.WriteString(subjects.String())
	b.WriteString("\nOutput STRICTLY as minified JSON following this schema (no markdown, no prose, just JSON):\n")
	b.WriteString(groupedSchema)
	b.WriteString("\n\nRules:\n")
	b.WriteString("- Provide clear human-readable group titles.\n")
	b.WriteString("- For each group, include thread_subjects that contributed.\n")
	b.WriteString("- Extract meeting_agenda and meeting_date_time where present.\n")
	b.WriteString("- Include a group-specific final_conclusion.\n")
	b.WriteString("- In global_summary, add a high-level final_conclusion and consolidated products/domains.\n\n")
	fmt.Fprintf(&b, "EMAIL CONTENT START\n%s\nEMAIL CONTENT END", meta.CombinedContent)
	return b.String()
}
