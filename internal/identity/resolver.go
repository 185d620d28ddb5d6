// Package identity resolves a single authoritative client name from the
// competing signals the pipeline produces: the AI-extracted name, the
// names derived from participant email domains, and user overrides.
package identity

import (
	"strings"

	"github.com/taralshah99/email-dossier-cli/internal/model"
)

// SentinelCustom is the user-selection value meaning "I will type my own".
const SentinelCustom = "custom"

// unknownSentinels are AI placeholder names that never resolve an identity.
var unknownSentinels = map[string]struct{}{
	"unknown client": {},
	"unknown":        {},
}

func isUnknown(name string) bool {
	_, ok := unknownSentinels[strings.ToLower(strings.TrimSpace(name))]
	return ok || strings.TrimSpace(name) == ""
}

// Signals carries every input the resolver considers.
type Signals struct {
	AIExtractedName  string
	DomainCandidates []string
	UserSelection    string
	UserCustomName   string
}

// resolverFn tries one source; ok=false means fall through to the next.
type resolverFn func(Signals) (model.ClientIdentity, bool)

// Precedence order, highest first. A non-empty custom name always wins;
// multiple surviving domain candidates are reported, never auto-picked.
var resolvers = []resolverFn{
	resolveUserCustom,
	resolveUserSelection,
	resolveAIExtracted,
	resolveDomainCandidates,
}

// Resolve walks the precedence table and returns the first source that
// produces an identity, or an explicit unresolved state.
func Resolve(sig Signals) model.ClientIdentity {
	for _, r := range resolvers {
		if id, ok := r(sig); ok {
			return id
		}
	}
	return model.ClientIdentity{Resolved: false, Candidates: survivingCandidates(sig)}
}

func resolveUserCustom(sig Signals) (model.ClientIdentity, bool) {
	name := strings.TrimSpace(sig.UserCustomName)
	if name == "" {
		return model.ClientIdentity{}, false
	}
	return model.ClientIdentity{Name: name, Source: model.SourceUserCustom, Resolved: true}, true
}

func resolveUserSelection(sig Signals) (model.ClientIdentity, bool) {
	name := strings.TrimSpace(sig.UserSelection)
	if name == "" || strings.EqualFold(name, SentinelCustom) {
		return model.ClientIdentity{}, false
	}
	return model.ClientIdentity{Name: name, Source: model.SourceUserSelected, Resolved: true}, true
}

func resolveAIExtracted(sig Signals) (model.ClientIdentity, bool) {
	if isUnknown(sig.AIExtractedName) {
		return model.ClientIdentity{}, false
	}
	name := strings.TrimSpace(sig.AIExtractedName)
	return model.ClientIdentity{Name: name, Source: model.SourceAIStructured, Resolved: true}, true
}

func resolveDomainCandidates(sig Signals) (model.ClientIdentity, bool) {
	candidates := survivingCandidates(sig)
	switch len(candidates) {
	case 0:
		return model.ClientIdentity{}, false
	case 1:
		return model.ClientIdentity{
			Name:     candidates[0],
			Source:   model.SourceMetadataDomain,
			Resolved: true,
		}, true
	default:
		// More than one plausible client: surface all for explicit user
		// choice instead of resolving automatically.
		return model.ClientIdentity{Resolved: false, Candidates: candidates}, true
	}
}

func survivingCandidates(sig Signals) []string {
	var out []string
	for _, c := range sig.DomainCandidates {
		if !isUnknown(c) {
			out = append(out, strings.TrimSpace(c))
		}
	}
	return out
}
