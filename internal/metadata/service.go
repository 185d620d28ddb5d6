// Package metadata fetches Gmail threads and distills them into the
// processed form the analysis stage consumes: consolidated participants,
// date ranges, content for the prompt, client-name candidates, and a
// relevancy partition of the selected threads.
package metadata

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	gapi "google.golang.org/api/gmail/v1"

	"github.com/taralshah99/email-dossier-cli/internal/model"
	"github.com/taralshah99/email-dossier-cli/pkg/gmail"
)

// Service provides thread search and metadata processing.
type Service struct {
	client        gmail.Client
	maxResults    int64
	fetchParallel int
}

// Option configures the service.
type Option func(*Service)

// WithMaxResults caps how many threads a search returns.
func WithMaxResults(n int64) Option {
	return func(s *Service) { s.maxResults = n }
}

// WithFetchParallelism bounds concurrent thread hydration calls.
func WithFetchParallelism(n int) Option {
	return func(s *Service) { s.fetchParallel = n }
}

// NewService builds a metadata service on top of a Gmail client.
func NewService(client gmail.Client, opts ...Option) *Service {
	s := &Service{
		client:        client,
		maxResults:    50,
		fetchParallel: 5,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// BuildQuery renders search criteria as a Gmail query string.
func BuildQuery(criteria model.SearchCriteria) string {
	var parts []string
	if !criteria.StartDate.IsZero() {
		parts = append(parts, "after:"+criteria.StartDate.Format("2006/01/02"))
	}
	if !criteria.EndDate.IsZero() {
		// Gmail's before: is exclusive of the named day.
		parts = append(parts, "before:"+criteria.EndDate.AddDate(0, 0, 1).Format("2006/01/02"))
	}
	if criteria.SenderEmail != "" {
		parts = append(parts, "from:"+criteria.SenderEmail)
	}
	if criteria.Keyword != "" {
		parts = append(parts, criteria.Keyword)
	}
	return strings.Join(parts, " ")
}

// SearchThreads lists threads matching the criteria, hydrated enough to
// render a selection list: subject, sender, participants, message count.
func (s *Service) SearchThreads(ctx context.Context, criteria model.SearchCriteria) ([]model.Thread, error) {
	query := BuildQuery(criteria)
	zap.L().Info("searching threads", zap.String("query", query))

	stubs, err := s.client.SearchThreads(ctx, query, s.maxResults)
	if err != nil {
		return nil, eris.Wrap(err, "metadata: search threads")
	}
	if len(stubs) == 0 {
		return nil, nil
	}

	threads := make([]model.Thread, len(stubs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.fetchParallel)
	for i, stub := range stubs {
		g.Go(func() error {
			full, err := s.client.GetThread(gctx, stub.Id)
			if err != nil {
				return eris.Wrapf(err, "metadata: hydrate thread %s", stub.Id)
			}
			threads[i] = summarizeThread(full)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	zap.L().Info("search complete", zap.Int("threads", len(threads)))
	return threads, nil
}

// ProcessThreads extracts and consolidates metadata for the selected
// threads. A thread that fails to fetch is skipped, not fatal; the call
// errors only when every thread fails.
func (s *Service) ProcessThreads(ctx context.Context, threadIDs []string) (*model.ProcessedMetadata, error) {
	if len(threadIDs) == 0 {
		return nil, eris.New("metadata: no threads selected")
	}

	userEmail := ""
	if profile, err := s.client.Profile(ctx); err == nil {
		userEmail = strings.ToLower(profile.EmailAddress)
	} else {
		zap.L().Warn("profile lookup failed, domain filtering disabled", zap.Error(err))
	}

	var (
		threadMetas []model.ThreadMetadata
		allDates    []time.Time
		contents    []string
		candidates  = map[string]struct{}{}
		combined    = map[string]model.Participant{}
	)

	for _, id := range threadIDs {
		full, err := s.client.GetThread(ctx, id)
		if err != nil {
			zap.L().Warn("skipping thread", zap.String("thread_id", id), zap.Error(err))
			continue
		}

		tm, dates := buildThreadMetadata(full, userEmail)
		threadMetas = append(threadMetas, tm)
		allDates = append(allDates, dates...)
		contents = append(contents, threadContent(tm, full.Messages, userEmail))

		for email, p := range tm.Participants {
			combined[email] = mergeParticipant(combined[email], p)
		}
		for _, name := range domainCandidates(full.Messages, userEmail) {
			candidates[name] = struct{}{}
		}
	}

	if len(threadMetas) == 0 {
		return nil, eris.New("metadata: all selected threads failed to fetch")
	}

	sort.Slice(allDates, func(i, j int) bool { return allDates[i].Before(allDates[j]) })

	processed := &model.ProcessedMetadata{
		ProcessedThreadIDs:   processedIDs(threadMetas),
		Combined:             combineMetadata(threadMetas, combined, allDates),
		ThreadMetadatas:      threadMetas,
		AvailableClientNames: sortedKeys(candidates),
		Relevancy:            analyzeRelevancy(threadMetas),
		CombinedContent:      strings.Join(contents, "\n\n"),
	}

	zap.L().Info("processing complete",
		zap.Int("threads", len(threadMetas)),
		zap.Int("participants", len(combined)),
		zap.Int("relevant_groups", len(processed.Relevancy.RelevantGroups)),
		zap.Int("irrelevant_threads", len(processed.Relevancy.IrrelevantThreads)))
	return processed, nil
}

// summarizeThread maps an API thread to the search-result model.
func summarizeThread(t *gapi.Thread) model.Thread {
	thread := model.Thread{ID: t.Id, MessageCount: len(t.Messages)}
	if len(t.Messages) == 0 {
		thread.Subject = fallbackSubject(t.Id)
		return thread
	}

	first := t.Messages[0]
	if first.Payload != nil {
		thread.Subject = headerValue(first.Payload.Headers, "subject")
		thread.Sender = headerValue(first.Payload.Headers, "from")
	}
	if strings.TrimSpace(thread.Subject) == "" {
		thread.Subject = fallbackSubject(t.Id)
	}
	if strings.TrimSpace(thread.Sender) == "" {
		thread.Sender = "Unknown"
	}

	for _, msg := range t.Messages {
		if msg.Payload == nil {
			continue
		}
		thread.Participants.Sender = appendUnique(thread.Participants.Sender, parseAddresses(headerValue(msg.Payload.Headers, "from"))...)
		thread.Participants.Recipients = appendUnique(thread.Participants.Recipients, parseAddresses(headerValue(msg.Payload.Headers, "to"))...)
		thread.Participants.CC = appendUnique(thread.Participants.CC, parseAddresses(headerValue(msg.Payload.Headers, "cc"))...)
		thread.Participants.BCC = appendUnique(thread.Participants.BCC, parseAddresses(headerValue(msg.Payload.Headers, "bcc"))...)
	}
	return thread
}

// buildThreadMetadata distills one hydrated thread. Returned dates are
// the parseable Date headers, for the combined range.
func buildThreadMetadata(t *gapi.Thread, userEmail string) (model.ThreadMetadata, []time.Time) {
	tm := model.ThreadMetadata{
		ThreadID:     t.Id,
		MessageCount: len(t.Messages),
		Participants: extractParticipants(t.Messages, userEmail),
	}

	if len(t.Messages) > 0 && t.Messages[0].Payload != nil {
		tm.Subject = headerValue(t.Messages[0].Payload.Headers, "subject")
		tm.Sender = headerValue(t.Messages[0].Payload.Headers, "from")
	}
	if strings.TrimSpace(tm.Subject) == "" {
		tm.Subject = fallbackSubject(t.Id)
	}
	if strings.TrimSpace(tm.Sender) == "" {
		tm.Sender = "Unknown"
	}

	var dates []time.Time
	for _, msg := range t.Messages {
		tm.ContentSnippets = append(tm.ContentSnippets, contentSnippets(msg)...)
		if d, ok := messageDate(msg); ok {
			dates = append(dates, d)
		}
	}
	if len(dates) > 0 {
		sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
		first, last := dates[0], dates[len(dates)-1]
		tm.FirstEmailDate = &first
		tm.LastEmailDate = &last
	}
	return tm, dates
}

// threadContent renders one thread as prompt input: a subject banner,
// the participant companies line, then the content snippets.
func threadContent(tm model.ThreadMetadata, messages []*gapi.Message, userEmail string) string {
	companies := "Unknown"
	if names := domainCandidates(messages, userEmail); len(names) > 0 {
		companies = strings.Join(names, ", ")
	}
	return fmt.Sprintf("=== THREAD: %s ===\nEmail Participants' Companies (from metadata): %s\n\n%s",
		tm.Subject, companies, strings.Join(tm.ContentSnippets, "\n"))
}

func combineMetadata(threads []model.ThreadMetadata, participants map[string]model.Participant, dates []time.Time) model.CombinedMetadata {
	combined := model.CombinedMetadata{
		ThreadCount:  len(threads),
		Participants: participants,
	}
	for _, tm := range threads {
		combined.TotalMessages += tm.MessageCount
	}
	if len(dates) > 0 {
		first, last := dates[0], dates[len(dates)-1]
		combined.FirstEmailDate = &first
		combined.LastEmailDate = &last
		combined.DateRangeDays = int(last.Sub(first).Hours() / 24)
	}
	return combined
}

func mergeParticipant(existing, incoming model.Participant) model.Participant {
	if existing.Email == "" {
		return incoming
	}
	for _, role := range incoming.Roles {
		existing.Roles = appendRole(existing.Roles, role)
	}
	return existing
}

func fallbackSubject(threadID string) string {
	if len(threadID) > 8 {
		threadID = threadID[:8]
	}
	return "Thread " + threadID
}

func processedIDs(threads []model.ThreadMetadata) []string {
	ids := make([]string, 0, len(threads))
	for _, tm := range threads {
		ids = append(ids, tm.ThreadID)
	}
	return ids
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		seen := false
		for _, existing := range dst {
			if existing == v {
				seen = true
				break
			}
		}
		if !seen {
			dst = append(dst, v)
		}
	}
	return dst
}
