// Package relevancy turns an analysis result into the display model the
// UI renders: topically related groups with summary bullets, plus
// standalone threads that fit no group. It never leaves a summary slot
// empty and never trusts placeholder participant labels.
package relevancy

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/taralshah99/email-dossier-cli/internal/markup"
	"github.com/taralshah99/email-dossier-cli/internal/model"
)

// Bullet is one summary line with the thread subjects it references.
type Bullet struct {
	Text        string   `json:"text"`
	SubjectRefs []string `json:"subject_refs,omitempty"`
}

// DisplayGroup is a set of related threads summarized jointly.
type DisplayGroup struct {
	Title        string   `json:"title"`
	Subjects     []string `json:"subjects"`
	Bullets      []Bullet `json:"bullets"`
	Agenda       []string `json:"agenda,omitempty"`
	MeetingTimes []string `json:"meeting_times,omitempty"`
	Conclusion   string   `json:"conclusion,omitempty"`
}

// DisplayThread is a standalone thread outside every group.
type DisplayThread struct {
	ThreadID     string `json:"thread_id,omitempty"`
	Subject      string `json:"subject"`
	Summary      string `json:"summary"`
	MessageCount int    `json:"message_count"`
}

// Display is the full renderable partition of an analysis result.
// Empty means no usable AI output was present; the UI shows an explicit
// "no AI summary available" state instead of blank sections.
type Display struct {
	Groups     []DisplayGroup  `json:"groups"`
	Standalone []DisplayThread `json:"standalone"`
	Insights   string          `json:"insights,omitempty"`
	Empty      bool            `json:"empty"`
}

// Group partitions the analysis into display groups and standalone
// threads. Source preference: relevancy analysis, then grouped
// structured output, then the legacy flat shape as one implicit group.
func Group(analysis *model.AnalysisResult, participants map[string]model.Participant) Display {
	if analysis == nil {
		return Display{Empty: true}
	}

	if rel := analysis.Relevancy; rel != nil && (len(rel.RelevantGroups) > 0 || len(rel.IrrelevantThreads) > 0) {
		return fromRelevancy(analysis, rel, participants)
	}

	switch analysis.Structured.Kind {
	case model.AnalysisGrouped:
		if g := analysis.Structured.Grouped; g != nil && len(g.Groups) > 0 {
			return fromGrouped(g, participants)
		}
	case model.AnalysisLegacy:
		if l := analysis.Structured.Legacy; l != nil && len(l.EmailSummaries) > 0 {
			return fromLegacy(l, participants)
		}
	}
	return Display{Empty: true}
}

func fromRelevancy(analysis *model.AnalysisResult, rel *model.RelevancyAnalysis, participants map[string]model.Participant) Display {
	disp := Display{Insights: rel.Insights}

	// Grouped structured output, when present, supplies the AI-authored
	// summaries for each relevancy group.
	var authored []model.AnalysisGroup
	if analysis.Structured.Kind == model.AnalysisGrouped && analysis.Structured.Grouped != nil {
		authored = analysis.Structured.Grouped.Groups
	}

	for _, threads := range rel.RelevantGroups {
		subjects := subjectsOf(threads)
		dg := DisplayGroup{Subjects: subjects}

		if ag := matchAuthoredGroup(authored, subjects); ag != nil {
			dg.Title = ag.Title
			dg.Agenda = ag.MeetingAgenda
			dg.MeetingTimes = ag.MeetingDateTime
			dg.Conclusion = ag.FinalConclusion
			dg.Bullets = buildBullets(ag.EmailSummaries, subjects, participants)
		} else {
			dg.Title = strings.Join(subjects, " / ")
			var synthesized []string
			for _, tm := range threads {
				synthesized = append(synthesized, summaryFor(tm))
			}
			dg.Bullets = buildBullets(synthesized, subjects, participants)
		}
		disp.Groups = append(disp.Groups, dg)
	}

	for _, tm := range rel.IrrelevantThreads {
		disp.Standalone = append(disp.Standalone, DisplayThread{
			ThreadID:     tm.ThreadID,
			Subject:      tm.Subject,
			Summary:      rewritePlaceholders(summaryFor(tm), mergedParticipants(participants, tm.Participants)),
			MessageCount: tm.MessageCount,
		})
	}
	return disp
}

func fromGrouped(g *model.GroupedAnalysis, participants map[string]model.Participant) Display {
	var disp Display
	for _, ag := range g.Groups {
		disp.Groups = append(disp.Groups, DisplayGroup{
			Title:        ag.Title,
			Subjects:     ag.ThreadSubjects,
			Bullets:      buildBullets(ag.EmailSummaries, ag.ThreadSubjects, participants),
			Agenda:       ag.MeetingAgenda,
			MeetingTimes: ag.MeetingDateTime,
			Conclusion:   ag.FinalConclusion,
		})
	}
	if g.GlobalSummary.FinalConclusion != "" {
		disp.Insights = g.GlobalSummary.FinalConclusion
	}
	return disp
}

func fromLegacy(l *model.LegacyAnalysis, participants map[string]model.Participant) Display {
	return Display{
		Groups: []DisplayGroup{{
			Title:        "Email Summary",
			Subjects:     l.ThreadSubjects,
			Bullets:      buildBullets(l.EmailSummaries, l.ThreadSubjects, participants),
			Agenda:       l.MeetingAgenda,
			MeetingTimes: l.MeetingDateTime,
			Conclusion:   l.FinalConclusion,
		}},
	}
}

// buildBullets normalizes each summary line, rewrites placeholder
// participant labels, and attaches subject cross-references.
func buildBullets(summaries, subjects []string, participants map[string]model.Participant) []Bullet {
	bullets := make([]Bullet, 0, len(summaries))
	for _, raw := range summaries {
		text := markup.Normalize(raw)
		text = rewritePlaceholders(text, participants)
		bullets = append(bullets, Bullet{
			Text:        text,
			SubjectRefs: subjectRefs(text, subjects),
		})
	}
	return bullets
}

// subjectRefs returns the subjects lexically contained in text,
// case-insensitively, preserving subject order.
func subjectRefs(text string, subjects []string) []string {
	lower := strings.ToLower(text)
	var refs []string
	for _, s := range subjects {
		if s == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(s)) {
			refs = append(refs, s)
		}
	}
	return refs
}

var (
	placeholderRe = regexp.MustCompile(`(?i)unknown sender`)
	emailRe       = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
)

// rewritePlaceholders replaces the "Unknown Sender" label with a real
// participant name: the owner of an email address mentioned in the text
// when one matches, otherwise the first known participant, otherwise the
// placeholder stays.
func rewritePlaceholders(text string, participants map[string]model.Participant) string {
	if !placeholderRe.MatchString(text) {
		return text
	}

	if addr := emailRe.FindString(text); addr != "" {
		if p, ok := participants[strings.ToLower(addr)]; ok && p.DisplayName != "" {
			return placeholderRe.ReplaceAllString(text, p.DisplayName)
		}
	}

	if name := firstDisplayName(participants); name != "" {
		return placeholderRe.ReplaceAllString(text, name)
	}
	return text
}

func firstDisplayName(participants map[string]model.Participant) string {
	emails := make([]string, 0, len(participants))
	for e := range participants {
		emails = append(emails, e)
	}
	sort.Strings(emails)
	for _, e := range emails {
		if name := participants[e].DisplayName; name != "" {
			return name
		}
	}
	return ""
}

// summaryFor returns the thread's AI summary, or synthesizes a
// deterministic one from metadata so no summary slot renders empty.
func summaryFor(tm model.ThreadMetadata) string {
	if strings.TrimSpace(tm.Summary) != "" {
		return tm.Summary
	}
	return SynthesizeSummary(tm)
}

// SynthesizeSummary builds a fallback summary from raw thread metadata:
// subject, message count, participant names, and date range.
func SynthesizeSummary(tm model.ThreadMetadata) string {
	subject := tm.Subject
	if subject == "" {
		subject = "Untitled thread"
	}

	var b strings.Builder
	noun := "messages"
	if tm.MessageCount == 1 {
		noun = "message"
	}
	fmt.Fprintf(&b, "%q: %d %s", subject, tm.MessageCount, noun)

	if names := participantNames(tm.Participants, 3); len(names) > 0 {
		b.WriteString(" with " + strings.Join(names, ", "))
	}
	if tm.FirstEmailDate != nil && tm.LastEmailDate != nil {
		first := tm.FirstEmailDate.Format("2006-01-02")
		last := tm.LastEmailDate.Format("2006-01-02")
		if first == last {
			b.WriteString(" on " + first)
		} else {
			fmt.Fprintf(&b, " between %s and %s", first, last)
		}
	}
	b.WriteString(".")
	return b.String()
}

func participantNames(participants map[string]model.Participant, max int) []string {
	emails := make([]string, 0, len(participants))
	for e := range participants {
		emails = append(emails, e)
	}
	sort.Strings(emails)

	var names []string
	for _, e := range emails {
		name := participants[e].DisplayName
		if name == "" {
			name = e
		}
		names = append(names, name)
		if len(names) == max {
			break
		}
	}
	return names
}

func subjectsOf(threads []model.ThreadMetadata) []string {
	subjects := make([]string, 0, len(threads))
	for _, t := range threads {
		subjects = append(subjects, t.Subject)
	}
	return subjects
}

// matchAuthoredGroup finds the structured group with the largest subject
// overlap with the relevancy group. Nil when nothing overlaps.
func matchAuthoredGroup(authored []model.AnalysisGroup, subjects []string) *model.AnalysisGroup {
	want := make(map[string]struct{}, len(subjects))
	for _, s := range subjects {
		want[strings.ToLower(s)] = struct{}{}
	}

	bestIdx, bestOverlap := -1, 0
	for i, ag := range authored {
		overlap := 0
		for _, s := range ag.ThreadSubjects {
			if _, ok := want[strings.ToLower(s)]; ok {
				overlap++
			}
		}
		if overlap > bestOverlap {
			bestIdx, bestOverlap = i, overlap
		}
	}
	if bestIdx < 0 {
		return nil
	}
	return &authored[bestIdx]
}

func mergedParticipants(global, local map[string]model.Participant) map[string]model.Participant {
	if len(local) == 0 {
		return global
	}
	merged := make(map[string]model.Participant, len(global)+len(local))
	for k, v := range global {
		merged[k] = v
	}
	for k, v := range local {
		merged[k] = v
	}
	return merged
}
