package metadata

import (
	"encoding/base64"
	"net/mail"
	"regexp"
	"sort"
	"strings"
	"time"

	gapi "google.golang.org/api/gmail/v1"

	"github.com/taralshah99/email-dossier-cli/internal/identity"
	"github.com/taralshah99/email-dossier-cli/internal/model"
)

var (
	addrRe  = regexp.MustCompile(`<([^>]+)>|([^\s<>]+@[^\s<>]+)`)
	angleRe = regexp.MustCompile(`<[^>]+>`)
)

// parseAddresses extracts email addresses from a raw header value.
// Tolerates both "Name <addr>" and bare-address forms, comma separated.
// Headers in the wild are frequently malformed, so this deliberately
// stays looser than RFC 5322 parsing.
func parseAddresses(value string) []string {
	var out []string
	for _, chunk := range strings.Split(value, ",") {
		chunk = strings.TrimSpace(chunk)
		if !strings.Contains(chunk, "@") {
			continue
		}
		m := addrRe.FindStringSubmatch(chunk)
		if m == nil {
			continue
		}
		addr := m[1]
		if addr == "" {
			addr = m[2]
		}
		addr = strings.ToLower(strings.TrimSpace(addr))
		if addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

// displayNameOf returns the display-name portion of an address chunk,
// or "" when the chunk is a bare address.
func displayNameOf(chunk string) string {
	name := angleRe.ReplaceAllString(chunk, "")
	name = strings.Trim(strings.TrimSpace(name), `"'`)
	return name
}

// DisplayNameFromEmail derives a human-readable name from the local part
// of an address: "jane.doe" and "jane_doe" both become "Jane Doe".
func DisplayNameFromEmail(email string) string {
	local := email
	if at := strings.IndexByte(email, '@'); at >= 0 {
		local = email[:at]
	}

	sep := ""
	switch {
	case strings.Contains(local, "."):
		sep = "."
	case strings.Contains(local, "_"):
		sep = "_"
	}
	if sep == "" {
		return capitalize(local)
	}

	var parts []string
	for _, p := range strings.Split(local, sep) {
		if p != "" {
			parts = append(parts, capitalize(p))
		}
	}
	return strings.Join(parts, " ")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

func headerValue(headers []*gapi.MessagePartHeader, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

var participantHeaders = []string{"from", "to", "cc", "bcc"}

// extractParticipants consolidates every address seen in From/To/Cc/Bcc
// headers across the messages, keyed by lowercased address. Each
// participant carries the header roles it appeared under.
func extractParticipants(messages []*gapi.Message, userEmail string) map[string]model.Participant {
	participants := map[string]model.Participant{}

	for _, msg := range messages {
		if msg.Payload == nil {
			continue
		}
		for _, role := range participantHeaders {
			value := headerValue(msg.Payload.Headers, role)
			if value == "" {
				continue
			}
			for _, chunk := range strings.Split(value, ",") {
				chunk = strings.TrimSpace(chunk)
				addrs := parseAddresses(chunk)
				if len(addrs) == 0 {
					continue
				}
				addr := addrs[0]

				name := displayNameOf(chunk)
				if name == "" || name == addr {
					name = DisplayNameFromEmail(addr)
				}

				p, ok := participants[addr]
				if !ok {
					p = model.Participant{Email: addr, DisplayName: name}
				}
				p.Roles = appendRole(p.Roles, role)
				participants[addr] = p
			}
		}
	}

	// The mailbox owner always counts as a participant even when they
	// never appear in a header (e.g. BCC-only delivery).
	if userEmail != "" {
		addr := strings.ToLower(userEmail)
		if _, ok := participants[addr]; !ok {
			participants[addr] = model.Participant{
				Email:       addr,
				DisplayName: DisplayNameFromEmail(addr),
				Roles:       []string{"owner"},
			}
		}
	}
	return participants
}

func appendRole(roles []string, role string) []string {
	for _, r := range roles {
		if r == role {
			return roles
		}
	}
	return append(roles, role)
}

// contentSnippets returns the message snippet when Gmail supplies one,
// otherwise the decoded text/plain parts of the payload.
func contentSnippets(msg *gapi.Message) []string {
	if msg.Snippet != "" {
		return []string{msg.Snippet}
	}
	if msg.Payload == nil {
		return nil
	}

	var out []string
	for _, part := range msg.Payload.Parts {
		if part.MimeType != "text/plain" || part.Body == nil || part.Body.Data == "" {
			continue
		}
		data, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(part.Body.Data)
		if err != nil {
			continue
		}
		out = append(out, string(data))
	}
	return out
}

// domainCandidates derives client-name candidates from the From/To
// addresses of the first two messages. CC and BCC are ignored, and the
// mailbox owner's own domain never yields a candidate. Candidates come
// back sorted and deduplicated; empty when nothing survives.
func domainCandidates(messages []*gapi.Message, userEmail string) []string {
	if len(messages) > 2 {
		messages = messages[:2]
	}

	domains := map[string]struct{}{}
	for _, msg := range messages {
		if msg.Payload == nil {
			continue
		}
		for _, role := range []string{"from", "to"} {
			for _, addr := range parseAddresses(headerValue(msg.Payload.Headers, role)) {
				if d := mainDomain(addr); d != "" {
					domains[d] = struct{}{}
				}
			}
		}
	}

	if userEmail != "" {
		if at := strings.IndexByte(userEmail, '@'); at >= 0 {
			own := userEmail[at+1:]
			if dot := strings.IndexByte(own, '.'); dot >= 0 {
				own = own[:dot]
			}
			delete(domains, strings.ToLower(own))
		}
	}

	sorted := make([]string, 0, len(domains))
	for d := range domains {
		sorted = append(sorted, d)
	}
	sort.Strings(sorted)

	var names []string
	for _, d := range sorted {
		names = append(names, identity.CompanyNameFromDomain(d))
	}
	return names
}

// mainDomain strips the final TLD label: "mail.acme.com" yields
// "mail.acme", "acme.com" yields "acme".
func mainDomain(addr string) string {
	at := strings.IndexByte(addr, '@')
	if at < 0 {
		return ""
	}
	domain := strings.ToLower(addr[at+1:])
	parts := strings.Split(domain, ".")
	if len(parts) < 2 {
		return ""
	}
	return strings.Join(parts[:len(parts)-1], ".")
}

// messageDate parses the Date header of a message. Returns false when
// the header is absent or unparseable.
func messageDate(msg *gapi.Message) (time.Time, bool) {
	if msg.Payload == nil {
		return time.Time{}, false
	}
	raw := headerValue(msg.Payload.Headers, "date")
	if raw == "" {
		return time.Time{}, false
	}
	t, err := mail.ParseDate(raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
