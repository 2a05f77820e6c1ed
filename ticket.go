package fchat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
)

// AuthErrorKind classifies credential and ticket failures.
type AuthErrorKind int

const (
	AuthInvalidCredentials AuthErrorKind = iota
	AuthRateLimited
	AuthUnreachable
)

func (k AuthErrorKind) String() string {
	switch k {
	case AuthInvalidCredentials:
		return "invalid credentials"
	case AuthRateLimited:
		return "rate limited"
	case AuthUnreachable:
		return "unreachable"
	}
	return "auth error"
}

// AuthError is returned when ticket issuance or the identify handshake
// fails. It is surfaced synchronously to the caller and never retried
// silently, since the credentials themselves may be wrong.
type AuthError struct {
	Kind    AuthErrorKind
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("auth: %s: %s", e.Kind, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("auth: %s: %v", e.Kind, e.Err)
	}
	return "auth: " + e.Kind.String()
}

func (e *AuthError) Unwrap() error { return e.Err }

// ticketLifetime is how long an issued ticket is trusted. The server side
// expires tickets after 30 minutes; the margin avoids identifying with a
// ticket that dies mid-handshake.
const ticketLifetime = 25 * time.Minute

// Ticket is a short-lived session credential obtained over HTTP. Immutable
// once issued; replaced, never refreshed in place.
type Ticket struct {
	Account  string
	Value    string
	IssuedAt time.Time
	TTL      time.Duration
}

// Expired reports whether the ticket can no longer authenticate a session.
func (t Ticket) Expired() bool {
	return t.Value == "" || time.Since(t.IssuedAt) > t.TTL
}

// ticketResponse is the JSON body of the ticket endpoint. The endpoint
// reports failures in-band via the error field with a 200 status.
type ticketResponse struct {
	Ticket           string         `json:"ticket"`
	Characters       map[string]int `json:"characters"`
	DefaultCharacter int            `json:"default_character"`
	Error            string         `json:"error"`
}

// TicketClient exchanges account credentials for session tickets. Stateless
// between calls; one HTTP round trip per Acquire.
type TicketClient struct {
	endpoint string
	http     *http.Client
}

// NewTicketClient returns a ticket client for the given endpoint URL.
func NewTicketClient(endpoint string, timeout time.Duration) *TicketClient {
	return &TicketClient{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
	}
}

// Acquire exchanges credentials for a fresh ticket. The returned map holds
// the account's own characters (display name -> character identifier) and
// seeds the character registry.
func (tc *TicketClient) Acquire(ctx context.Context, account, password string) (Ticket, map[string]string, error) {
	form := url.Values{}
	form.Set("account", account)
	form.Set("password", password)
	form.Set("new_character_list", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tc.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Ticket{}, nil, &AuthError{Kind: AuthUnreachable, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := tc.http.Do(req)
	if err != nil {
		return Ticket{}, nil, &AuthError{Kind: AuthUnreachable, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return Ticket{}, nil, &AuthError{Kind: AuthRateLimited, Message: "ticket endpoint throttled"}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Ticket{}, nil, &AuthError{Kind: AuthUnreachable, Message: "ticket endpoint returned " + resp.Status}
	}

	body, err := readBody(resp)
	if err != nil {
		return Ticket{}, nil, &AuthError{Kind: AuthUnreachable, Err: err}
	}

	var parsed ticketResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Ticket{}, nil, &AuthError{Kind: AuthUnreachable, Err: fmt.Errorf("malformed ticket response: %w", err)}
	}
	if parsed.Error != "" {
		kind := AuthInvalidCredentials
		if strings.Contains(strings.ToLower(parsed.Error), "too many") {
			kind = AuthRateLimited
		}
		return Ticket{}, nil, &AuthError{Kind: kind, Message: parsed.Error}
	}
	if parsed.Ticket == "" {
		return Ticket{}, nil, &AuthError{Kind: AuthUnreachable, Message: "ticket response missing ticket"}
	}

	characters := make(map[string]string, len(parsed.Characters))
	for name, id := range parsed.Characters {
		characters[name] = strconv.Itoa(id)
	}

	return Ticket{
		Account:  account,
		Value:    parsed.Ticket,
		IssuedAt: time.Now(),
		TTL:      ticketLifetime,
	}, characters, nil
}

// readBody drains an HTTP response, transparently decoding gzip. Ticket and
// list responses carry full character lists and compress well, so requests
// ask for gzip explicitly.
func readBody(resp *http.Response) ([]byte, error) {
	var r io.Reader = resp.Body
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip body: %w", err)
		}
		defer zr.Close()
		r = zr
	}
	return io.ReadAll(r)
}
