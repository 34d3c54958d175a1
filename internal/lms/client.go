package lms

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/markbookhq/markbook-api/internal/models"
	"github.com/markbookhq/markbook-api/pkg/config"
	appErrors "github.com/markbookhq/markbook-api/pkg/errors"
)

// SearchQuery narrows a per-record user search against the LMS.
type SearchQuery struct {
	// IDHint is the locally stored student number, matched against the LMS
	// id_number field when present.
	IDHint     string
	SearchText string
}

// Client talks to the external LMS user directory. The LMS issues a single
// session token per authentication; the token is fetched once and reused
// read-only across all lookups in a run, so the client is safe for bounded
// concurrent use.
type Client struct {
	httpClient *http.Client

	baseURL      string
	tokenURL     string
	clientID     string
	clientSecret string

	mu    sync.Mutex
	token string
}

// NewClient builds an LMS client from configuration.
func NewClient(cfg config.LMSConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		httpClient:   &http.Client{Timeout: timeout},
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		tokenURL:     cfg.TokenURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
	}
}

type lmsUser struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
	Email    string `json:"email,omitempty"`
	IDNumber string `json:"id_number,omitempty"`
}

// SearchStudents runs one per-record search. The LMS may return 0, 1 or many
// candidates; results are never guaranteed sorted or deduplicated.
func (c *Client) SearchStudents(ctx context.Context, q SearchQuery) ([]models.ExternalCandidate, error) {
	u, err := url.Parse(c.baseURL + "/api/users/search")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrLookup.Code, appErrors.ErrLookup.Status, "invalid lms url")
	}
	params := u.Query()
	if q.IDHint != "" {
		params.Set("id_number", q.IDHint)
	}
	if q.SearchText != "" {
		params.Set("search", q.SearchText)
	}
	u.RawQuery = params.Encode()

	var users []lmsUser
	if err := c.getJSON(ctx, u.String(), &users); err != nil {
		return nil, err
	}
	return toCandidates(users), nil
}

// FetchRoster pages through a course's enrolled users. Unlike per-record
// search, the roster carries structured ids, so bulk import can key on them.
func (c *Client) FetchRoster(ctx context.Context, courseID string, page int) ([]models.ExternalCandidate, error) {
	if courseID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "course id required")
	}
	u, err := url.Parse(fmt.Sprintf("%s/api/courses/%s/users", c.baseURL, url.PathEscape(courseID)))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrLookup.Code, appErrors.ErrLookup.Status, "invalid lms url")
	}
	params := u.Query()
	if page > 0 {
		params.Set("page", strconv.Itoa(page))
	}
	u.RawQuery = params.Encode()

	var users []lmsUser
	if err := c.getJSON(ctx, u.String(), &users); err != nil {
		return nil, err
	}
	return toCandidates(users), nil
}

func (c *Client) getJSON(ctx context.Context, rawURL string, dest interface{}) error {
	tok, err := c.sessionToken(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrLookup.Code, appErrors.ErrLookup.Status, "build lms request")
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrLookup.Code, appErrors.ErrLookup.Status, "lms unreachable")
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return appErrors.Clone(appErrors.ErrLookup, fmt.Sprintf("lms returned %s", resp.Status))
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return appErrors.Wrap(err, appErrors.ErrLookup.Code, appErrors.ErrLookup.Status, "decode lms response")
	}
	return nil
}

type tokenResp struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in,omitempty"`
	TokenType   string `json:"token_type,omitempty"`
}

// sessionToken returns the cached session token, fetching it on first use.
// A token failure here is fatal for the whole run: it happens before the
// per-record loop, not inside it.
func (c *Client) sessionToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" {
		return c.token, nil
	}

	if c.tokenURL == "" || c.clientID == "" || c.clientSecret == "" {
		return "", appErrors.Clone(appErrors.ErrLookup, "lms credentials missing")
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrLookup.Code, appErrors.ErrLookup.Status, "build token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrLookup.Code, appErrors.ErrLookup.Status, "lms token endpoint unreachable")
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return "", appErrors.Clone(appErrors.ErrLookup, fmt.Sprintf("lms token endpoint returned %s", resp.Status))
	}

	var tr tokenResp
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrLookup.Code, appErrors.ErrLookup.Status, "decode token response")
	}
	if tr.AccessToken == "" {
		return "", appErrors.Clone(appErrors.ErrLookup, "empty access token from lms")
	}

	c.token = tr.AccessToken
	return c.token, nil
}

func toCandidates(users []lmsUser) []models.ExternalCandidate {
	candidates := make([]models.ExternalCandidate, 0, len(users))
	for _, u := range users {
		candidates = append(candidates, models.ExternalCandidate{
			ExternalID: u.ID,
			FullName:   u.FullName,
			Email:      u.Email,
			IDNumber:   u.IDNumber,
		})
	}
	return candidates
}
