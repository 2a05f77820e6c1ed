package fchat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

// APIClient communicates with the ticket-authenticated JSON endpoints. It
// works independently of the WebSocket Client; it holds its own ticket and
// refreshes it transparently when a call reports an expired one.
type APIClient struct {
	base     string
	account  string
	password string

	tickets *TicketClient
	http    *http.Client

	mu     sync.Mutex
	ticket Ticket
}

// NewAPIClient creates an API client that authenticates with the given
// account credentials. Endpoints and timeout come from cfg.
func NewAPIClient(cfg Config, account, password string) *APIClient {
	cfg = cfg.withDefaults()
	return &APIClient{
		base:     strings.TrimRight(cfg.APIBase, "/"),
		account:  account,
		password: password,
		tickets:  NewTicketClient(cfg.TicketURL, cfg.HTTPTimeout),
		http:     &http.Client{Timeout: cfg.HTTPTimeout},
	}
}

// ticketValue returns a usable ticket, acquiring a fresh one when the held
// ticket is expired or force is set.
func (c *APIClient) ticketValue(ctx context.Context, force bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if force || c.ticket.Expired() {
		t, _, err := c.tickets.Acquire(ctx, c.account, c.password)
		if err != nil {
			return "", err
		}
		c.ticket = t
	}
	return c.ticket.Value, nil
}

// apiError is the in-band error convention of the JSON endpoints: a 200
// response whose error field is non-empty.
type apiError struct {
	Error string `json:"error"`
}

// ticketExpired matches the endpoint's wording for a stale ticket.
func ticketExpired(msg string) bool {
	return strings.Contains(strings.ToLower(msg), "ticket")
}

// postForm calls one endpoint with the account and ticket attached. A
// ticket-expiry error triggers exactly one forced renewal and retry.
func (c *APIClient) postForm(ctx context.Context, path string, params url.Values, dest any) error {
	retried := false
	force := false
	for {
		ticket, err := c.ticketValue(ctx, force)
		if err != nil {
			return err
		}

		form := url.Values{}
		for k, vs := range params {
			for _, v := range vs {
				form.Add(k, v)
			}
		}
		form.Set("account", c.account)
		form.Set("ticket", ticket)

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, strings.NewReader(form.Encode()))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept-Encoding", "gzip")

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("api %s: %w", path, err)
		}
		body, err := readBody(resp)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("api %s: %w", path, err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("api %s: endpoint returned %s", path, resp.Status)
		}

		var soft apiError
		if err := json.Unmarshal(body, &soft); err != nil {
			return fmt.Errorf("api %s: malformed response: %w", path, err)
		}
		if soft.Error != "" {
			if ticketExpired(soft.Error) && !retried {
				retried = true
				force = true
				continue
			}
			return fmt.Errorf("api %s: %s", path, soft.Error)
		}

		if dest != nil {
			if err := json.Unmarshal(body, dest); err != nil {
				return fmt.Errorf("api %s: decode response: %w", path, err)
			}
		}
		return nil
	}
}

// FriendList is the response of the friend/bookmark listing endpoint.
type FriendList struct {
	Friends []FriendPair `json:"friends"`

	Bookmarks []struct {
		Name string `json:"name"`
	} `json:"bookmarklist"`
}

// FriendPair binds one of the account's characters to a friended character.
type FriendPair struct {
	Source string `json:"source"`
	Dest   string `json:"dest"`

	LastOnline int64 `json:"last_online,omitempty"`
}

// BookmarkNames flattens the bookmark entries into character names.
func (l FriendList) BookmarkNames() []string {
	names := make([]string, 0, len(l.Bookmarks))
	for _, b := range l.Bookmarks {
		names = append(names, b.Name)
	}
	return names
}

// FriendsBookmarks fetches the account's friends and bookmarks.
func (c *APIClient) FriendsBookmarks(ctx context.Context) (FriendList, error) {
	var out FriendList
	params := url.Values{}
	params.Set("bookmarklist", "true")
	params.Set("friendlist", "true")
	if err := c.postForm(ctx, "/friend-bookmark-lists.php", params, &out); err != nil {
		return FriendList{}, err
	}
	return out, nil
}

// AddBookmark bookmarks a character for the account.
func (c *APIClient) AddBookmark(ctx context.Context, character string) error {
	params := url.Values{}
	params.Set("name", character)
	return c.postForm(ctx, "/bookmark-add.php", params, nil)
}

// RemoveBookmark removes a character bookmark.
func (c *APIClient) RemoveBookmark(ctx context.Context, character string) error {
	params := url.Values{}
	params.Set("name", character)
	return c.postForm(ctx, "/bookmark-remove.php", params, nil)
}

// CharacterProfile is the response of the character data endpoint, trimmed
// to the fields the session layer uses.
type CharacterProfile struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	CreatedAt   int64  `json:"created_at"`
	UpdatedAt   int64  `json:"updated_at"`
	Views       int    `json:"views"`
}

// CharacterData fetches a character's public profile.
func (c *APIClient) CharacterData(ctx context.Context, character string) (CharacterProfile, error) {
	var out CharacterProfile
	params := url.Values{}
	params.Set("name", character)
	if err := c.postForm(ctx, "/character-data.php", params, &out); err != nil {
		return CharacterProfile{}, err
	}
	return out, nil
}
