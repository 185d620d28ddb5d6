package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gapi "google.golang.org/api/gmail/v1"
)

func msgWithHeaders(pairs ...string) *gapi.Message {
	payload := &gapi.MessagePart{}
	for i := 0; i+1 < len(pairs); i += 2 {
		payload.Headers = append(payload.Headers, &gapi.MessagePartHeader{
			Name:  pairs[i],
			Value: pairs[i+1],
		})
	}
	return &gapi.Message{Payload: payload}
}

func TestParseAddresses(t *testing.T) {
	tests := map[string][]string{
		"Jane Doe <jane.doe@acme.com>":         {"jane.doe@acme.com"},
		"bob@initech.io":                       {"bob@initech.io"},
		"Jane <JANE@Acme.com>, bob@initech.io": {"jane@acme.com", "bob@initech.io"},
		"\"Doe, Jane\" <jane@acme.com>":        {"jane@acme.com"},
		"no address here":                      nil,
		"":                                     nil,
		"Sales Team <sales@acme.com>, Unknown Sender": {"sales@acme.com"},
	}
	for in, want := range tests {
		assert.Equal(t, want, parseAddresses(in), "input %q", in)
	}
}

func TestDisplayNameFromEmail(t *testing.T) {
	tests := map[string]string{
		"jane.doe@acme.com": "Jane Doe",
		"jane_doe@acme.com": "Jane Doe",
		"bob@initech.io":    "Bob",
		"j.k.rowling@x.com": "J K Rowling",
	}
	for in, want := range tests {
		assert.Equal(t, want, DisplayNameFromEmail(in), "input %q", in)
	}
}

func TestExtractParticipants_RolesAccumulate(t *testing.T) {
	messages := []*gapi.Message{
		msgWithHeaders("From", "Jane Doe <jane@acme.com>", "To", "bob@initech.io"),
		msgWithHeaders("From", "bob@initech.io", "To", "jane@acme.com", "Cc", "eve@acme.com"),
	}

	participants := extractParticipants(messages, "")
	require.Len(t, participants, 3)

	jane := participants["jane@acme.com"]
	assert.Equal(t, "Jane Doe", jane.DisplayName)
	assert.ElementsMatch(t, []string{"from", "to"}, jane.Roles)

	bob := participants["bob@initech.io"]
	assert.Equal(t, "Bob", bob.DisplayName)
	assert.ElementsMatch(t, []string{"from", "to"}, bob.Roles)

	eve := participants["eve@acme.com"]
	assert.Equal(t, []string{"cc"}, eve.Roles)
}

func TestExtractParticipants_OwnerAddedWhenAbsent(t *testing.T) {
	messages := []*gapi.Message{
		msgWithHeaders("From", "jane@acme.com"),
	}

	participants := extractParticipants(messages, "me@mycorp.com")
	require.Contains(t, participants, "me@mycorp.com")
	assert.Equal(t, []string{"owner"}, participants["me@mycorp.com"].Roles)

	// Present in a header: no synthetic owner entry.
	participants = extractParticipants([]*gapi.Message{
		msgWithHeaders("From", "me@mycorp.com"),
	}, "me@mycorp.com")
	assert.Equal(t, []string{"from"}, participants["me@mycorp.com"].Roles)
}

func TestDomainCandidates_FirstTwoMessagesOnly(t *testing.T) {
	messages := []*gapi.Message{
		msgWithHeaders("From", "jane@acme.com", "To", "me@mycorp.com"),
		msgWithHeaders("From", "me@mycorp.com", "To", "jane@acme.com"),
		msgWithHeaders("From", "late@umbrella.org"),
	}

	names := domainCandidates(messages, "me@mycorp.com")
	assert.Equal(t, []string{"Acme"}, names)
}

func TestDomainCandidates_CCIgnored(t *testing.T) {
	messages := []*gapi.Message{
		msgWithHeaders("From", "jane@acme.com", "Cc", "eve@umbrella.org"),
	}
	names := domainCandidates(messages, "")
	assert.Equal(t, []string{"Acme"}, names)
}

func TestDomainCandidates_HostPrefixStripped(t *testing.T) {
	messages := []*gapi.Message{
		msgWithHeaders("From", "alerts@mail.acme.com"),
	}
	names := domainCandidates(messages, "")
	assert.Equal(t, []string{"Acme"}, names)
}

func TestDomainCandidates_EmptyWhenOnlyOwnDomain(t *testing.T) {
	messages := []*gapi.Message{
		msgWithHeaders("From", "me@mycorp.com", "To", "colleague@mycorp.com"),
	}
	assert.Empty(t, domainCandidates(messages, "me@mycorp.com"))
}

func TestContentSnippets_PreferSnippet(t *testing.T) {
	msg := &gapi.Message{Snippet: "quick summary"}
	assert.Equal(t, []string{"quick summary"}, contentSnippets(msg))
}

func TestContentSnippets_DecodesPlainTextParts(t *testing.T) {
	msg := &gapi.Message{
		Payload: &gapi.MessagePart{
			Parts: []*gapi.MessagePart{
				{
					MimeType: "text/plain",
					// "hello world" base64url encoded.
					Body: &gapi.MessagePartBody{Data: "aGVsbG8gd29ybGQ"},
				},
				{MimeType: "text/html", Body: &gapi.MessagePartBody{Data: "ignored"}},
			},
		},
	}
	assert.Equal(t, []string{"hello world"}, contentSnippets(msg))
}

func TestMessageDate(t *testing.T) {
	msg := msgWithHeaders("Date", "Mon, 02 Jan 2023 15:04:05 +0000")
	d, ok := messageDate(msg)
	require.True(t, ok)
	assert.Equal(t, 2023, d.Year())

	_, ok = messageDate(msgWithHeaders("Date", "not a date"))
	assert.False(t, ok)

	_, ok = messageDate(&gapi.Message{})
	assert.False(t, ok)
}
