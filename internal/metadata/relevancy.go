package metadata

import (
	"regexp"
	"strings"

	"github.com/taralshah99/email-dossier-cli/internal/model"
)

// Relevancy scoring weights. Participant overlap dominates; the
// remainder splits between content and subject similarity.
const (
	participantWeight  = 0.6
	contentSubWeight   = 0.7
	subjectSubWeight   = 0.3
	relevancyThreshold = 0.5
)

var (
	contentWordRe = regexp.MustCompile(`\b[a-z]{3,}\b`)
	subjectWordRe = regexp.MustCompile(`\b[a-z]{2,}\b`)
)

var stopwords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`the and or but in on at to for of with
		by from up about into through during before after above below between
		among within without this that these those i you he she it we they me
		him her us them my your his its our their mine yours hers ours theirs
		is are was were be been being have has had do does did will would
		could should may might can must shall am pm yes no not very just now
		then here there when where why how all any both each few more most
		other some such only own same so than too also around away back down
		even ever far forward further however indeed instead later least
		maybe meanwhile moreover much near never next often once perhaps
		quite rather really since soon still though thus together under until
		well whether while yet`) {
		stopwords[w] = struct{}{}
	}
}

// analyzeRelevancy partitions threads into connected components of
// pairwise-relevant threads. Threads whose best score stays under the
// threshold end up irrelevant. With fewer than two threads, everything
// is one trivial group.
func analyzeRelevancy(threads []model.ThreadMetadata) *model.RelevancyAnalysis {
	if len(threads) == 0 {
		return &model.RelevancyAnalysis{}
	}
	if len(threads) == 1 {
		return &model.RelevancyAnalysis{RelevantGroups: [][]model.ThreadMetadata{threads}}
	}

	// Pairwise adjacency at or above the threshold.
	adj := make(map[int][]int, len(threads))
	for i := range threads {
		for j := i + 1; j < len(threads); j++ {
			if relevancyScore(threads[i], threads[j]) >= relevancyThreshold {
				adj[i] = append(adj[i], j)
				adj[j] = append(adj[j], i)
			}
		}
	}

	visited := make([]bool, len(threads))
	analysis := &model.RelevancyAnalysis{}
	for i := range threads {
		if visited[i] {
			continue
		}
		component := collect(i, adj, visited)
		if len(component) > 1 {
			group := make([]model.ThreadMetadata, 0, len(component))
			for _, idx := range component {
				group = append(group, threads[idx])
			}
			analysis.RelevantGroups = append(analysis.RelevantGroups, group)
		} else {
			analysis.IrrelevantThreads = append(analysis.IrrelevantThreads, threads[i])
		}
	}
	return analysis
}

func collect(start int, adj map[int][]int, visited []bool) []int {
	var component []int
	stack := []int{start}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[n] {
			continue
		}
		visited[n] = true
		component = append(component, n)
		stack = append(stack, adj[n]...)
	}
	return component
}

// relevancyScore combines participant, content, and subject similarity
// into a single score in [0, 1].
func relevancyScore(a, b model.ThreadMetadata) float64 {
	p := participantOverlap(a.Participants, b.Participants)
	c := contentSimilarity(a.ContentSnippets, b.ContentSnippets)
	s := subjectSimilarity(a.Subject, b.Subject)
	return participantWeight*p + (1-participantWeight)*(contentSubWeight*c+subjectSubWeight*s)
}

func participantOverlap(a, b map[string]model.Participant) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA := make(map[string]struct{}, len(a))
	for email := range a {
		setA[strings.ToLower(email)] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for email := range b {
		setB[strings.ToLower(email)] = struct{}{}
	}
	return jaccard(setA, setB)
}

func contentSimilarity(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	wordsA := meaningfulWords(strings.Join(a, " "))
	wordsB := meaningfulWords(strings.Join(b, " "))
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}
	return jaccard(wordsA, wordsB)
}

func meaningfulWords(text string) map[string]struct{} {
	words := map[string]struct{}{}
	for _, w := range contentWordRe.FindAllString(strings.ToLower(text), -1) {
		if _, stop := stopwords[w]; !stop {
			words[w] = struct{}{}
		}
	}
	return words
}

func subjectSimilarity(a, b string) float64 {
	a = stripSubjectPrefix(a)
	b = stripSubjectPrefix(b)
	if a == "" || b == "" {
		return 0
	}
	wordsA := wordSet(subjectWordRe, a)
	wordsB := wordSet(subjectWordRe, b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}
	return jaccard(wordsA, wordsB)
}

// stripSubjectPrefix removes reply/forward markers so "Re: Kickoff" and
// "Kickoff" compare equal. Stacked prefixes are stripped repeatedly.
func stripSubjectPrefix(subject string) string {
	s := strings.ToLower(strings.TrimSpace(subject))
	for {
		trimmed := s
		for _, prefix := range []string{"re:", "fw:", "fwd:"} {
			trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, prefix))
		}
		if trimmed == s {
			return s
		}
		s = trimmed
	}
}

func wordSet(re *regexp.Regexp, text string) map[string]struct{} {
	words := map[string]struct{}{}
	for _, w := range re.FindAllString(text, -1) {
		words[w] = struct{}{}
	}
	return words
}

func jaccard(a, b map[string]struct{}) float64 {
	intersection := 0
	for w := range a {
		if _, ok := b[w]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
