package model

// IdentitySource records which signal resolved the client identity.
type IdentitySource string

const (
	SourceAIStructured   IdentitySource = "ai-structured"
	SourceMetadataDomain IdentitySource = "metadata-domain"
	SourceUserSelected   IdentitySource = "user-selected"
	SourceUserCustom     IdentitySource = "user-custom"
)

// ClientIdentity is the single authoritative client name, or an explicit
// unresolved state. When Resolved is false and Candidates is non-empty,
// the user must pick among the candidates; the resolver never picks
// silently when more than one candidate survives.
type ClientIdentity struct {
	Name       string         `json:"name,omitempty"`
	Source     IdentitySource `json:"source,omitempty"`
	Resolved   bool           `json:"resolved"`
	Candidates []string       `json:"candidates,omitempty"`
}
