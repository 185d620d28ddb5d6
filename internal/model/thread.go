package model

import "time"

// Thread represents a Gmail conversation as returned by thread search.
// Immutable once fetched.
type Thread struct {
	ID           string       `json:"id"`
	Subject      string       `json:"subject"`
	Sender       string       `json:"sender"`
	Participants Participants `json:"participants"`
	MessageCount int          `json:"message_count"`
	Body         string       `json:"body,omitempty"`
}

// Participants lists addresses by header role for a single thread.
type Participants struct {
	Sender     []string `json:"sender,omitempty"`
	Recipients []string `json:"recipients,omitempty"`
	CC         []string `json:"cc,omitempty"`
	BCC        []string `json:"bcc,omitempty"`
}

// SearchCriteria describes a thread search request.
// At least one of Keyword or SenderEmail must be non-empty.
type SearchCriteria struct {
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	Keyword     string    `json:"keyword,omitempty"`
	SenderEmail string    `json:"sender_email,omitempty"`
}
