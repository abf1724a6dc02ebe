package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"

	"github.com/lumenedu/lumen/core"
	"github.com/lumenedu/lumen/core/material"
	"github.com/lumenedu/lumen/core/user"
)

// Client talks to the hosted identity store over HTTPS: the auth
// endpoints for credentials/sessions and the row endpoints for the
// profile and material tables.
type Client struct {
	events Notifier

	baseURL string
	apiKey  string
	http    *http.Client
	logger  core.Logger
}

var _ Store = (*Client)(nil) // interface compliance check

func NewClient(conf *core.Config, logger core.Logger) *Client {
	return &Client{
		baseURL: conf.Identity.URL,
		apiKey:  conf.Identity.APIKey,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

// Start resolves the initial session. This client holds no session
// across restarts (no offline caching), so the initial notification
// always reports none.
func (c *Client) Start(_ context.Context) error {
	c.events.SetAndEmit(EventInitial, nil)
	return nil
}

func (c *Client) OnAuthChange(fn func(Event, *Session)) (func(), error) {
	return c.events.Subscribe(fn)
}

func (c *Client) CurrentSession() *Session {
	return c.events.Current()
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	User        struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

func (c *Client) SignIn(ctx context.Context, email, password string) (*Session, error) {
	body := map[string]string{"email": email, "password": password}
	resp, err := c.do(ctx, http.MethodPost, c.baseURL+"/auth/v1/token?grant_type=password", body, nil)
	if err != nil {
		return nil, errors.Wrap(err, "signing in")
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, &AuthError{Status: resp.StatusCode, Message: decodeErrorMessage(resp.Body)}
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, errors.Wrap(err, "decoding token response")
	}
	sess := newSession(tr.AccessToken, tr.TokenType, tr.User.ID, tr.User.Email, tr.ExpiresIn)
	c.events.SetAndEmit(EventSignedIn, sess)
	return sess, nil
}

func (c *Client) SignUp(ctx context.Context, email, password string, md Metadata) error {
	body := map[string]interface{}{
		"email":    email,
		"password": password,
		"data":     md,
	}
	resp, err := c.do(ctx, http.MethodPost, c.baseURL+"/auth/v1/signup", body, nil)
	if err != nil {
		return errors.Wrap(err, "signing up")
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &AuthError{Status: resp.StatusCode, Message: decodeErrorMessage(resp.Body)}
	}
	// No session is issued here: email confirmation gates that.
	return nil
}

func (c *Client) SignOut(ctx context.Context) error {
	// The local session is dropped whatever the call's outcome.
	defer c.events.SetAndEmit(EventSignedOut, nil)

	resp, err := c.do(ctx, http.MethodPost, c.baseURL+"/auth/v1/logout", nil, nil)
	if err != nil {
		return errors.Wrap(err, "signing out")
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &AuthError{Status: resp.StatusCode, Message: decodeErrorMessage(resp.Body)}
	}
	return nil
}

func (c *Client) GetProfile(ctx context.Context, id string) (user.Profile, error) {
	q := make(url.Values)
	q.Set("select", "*")
	q.Set("id", "eq."+id)

	var profiles []user.Profile
	if err := c.restQuery(ctx, "profiles", q, &profiles); err != nil {
		return user.Profile{}, &ProfileFetchError{Err: err}
	}
	if len(profiles) == 0 {
		return user.Profile{}, &ProfileFetchError{Err: errors.New("profile not found: " + id)}
	}
	return profiles[0], nil
}

func (c *Client) ListProfiles(ctx context.Context) ([]user.Profile, error) {
	q := make(url.Values)
	q.Set("select", "*")
	q.Set("order", "name.asc")

	var profiles []user.Profile
	if err := c.restQuery(ctx, "profiles", q, &profiles); err != nil {
		return nil, err
	}
	return profiles, nil
}

func (c *Client) DeleteProfile(ctx context.Context, id string) error {
	q := make(url.Values)
	q.Set("id", "eq."+id)

	resp, err := c.do(ctx, http.MethodDelete, c.baseURL+"/rest/v1/profiles?"+q.Encode(), nil, nil)
	if err != nil {
		return errors.Wrap(err, "deleting profile")
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &DataError{Op: "deleting profile", Status: resp.StatusCode, Message: decodeErrorMessage(resp.Body)}
	}
	return nil
}

func (c *Client) ListMaterials(ctx context.Context, teacherID string) ([]material.Material, error) {
	q := make(url.Values)
	q.Set("select", "*")
	q.Set("teacher_id", "eq."+teacherID)
	q.Set("order", "created_at.desc")

	var materials []material.Material
	if err := c.restQuery(ctx, "materials", q, &materials); err != nil {
		return nil, err
	}
	return materials, nil
}

func (c *Client) InsertMaterial(ctx context.Context, teacherID, content string) (material.Material, error) {
	body := []map[string]string{{"teacher_id": teacherID, "content": content}}
	headers := map[string]string{"Prefer": "return=representation"}

	resp, err := c.do(ctx, http.MethodPost, c.baseURL+"/rest/v1/materials", body, headers)
	if err != nil {
		return material.Material{}, errors.Wrap(err, "inserting material")
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return material.Material{}, &DataError{Op: "inserting material", Status: resp.StatusCode, Message: decodeErrorMessage(resp.Body)}
	}

	// The store returns the authoritative row; callers splice it into
	// their local state as-is.
	var rows []material.Material
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return material.Material{}, errors.Wrap(err, "decoding inserted material")
	}
	if len(rows) == 0 {
		return material.Material{}, &DataError{Op: "inserting material", Status: resp.StatusCode, Message: "no row returned"}
	}
	return rows[0], nil
}

// restQuery GETs rows from a table endpoint into `into`.
func (c *Client) restQuery(ctx context.Context, table string, q url.Values, into interface{}) error {
	resp, err := c.do(ctx, http.MethodGet, c.baseURL+"/rest/v1/"+table+"?"+q.Encode(), nil, nil)
	if err != nil {
		return errors.Wrap(err, "querying "+table)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return &DataError{Op: "querying " + table, Status: resp.StatusCode, Message: decodeErrorMessage(resp.Body)}
	}
	return errors.Wrap(json.NewDecoder(resp.Body).Decode(into), "decoding "+table)
}

func (c *Client) do(ctx context.Context, method, rawURL string, body interface{}, headers map[string]string) (*http.Response, error) {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "marshalling request body")
		}
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, rdr)
	if err != nil {
		return nil, errors.Wrap(err, "building request")
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.bearer())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.http.Do(req)
}

// bearer picks the session token when signed in, the API key otherwise.
func (c *Client) bearer() string {
	if s := c.events.Current(); s != nil {
		return s.AccessToken
	}
	return c.apiKey
}

// decodeErrorMessage digs the human-readable message out of the store's
// error payloads, whose field name varies across endpoints.
func decodeErrorMessage(body io.Reader) string {
	var payload struct {
		Msg         string `json:"msg"`
		Message     string `json:"message"`
		ErrorDesc   string `json:"error_description"`
		ErrorString string `json:"error"`
	}
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return "request failed"
	}
	for _, msg := range []string{payload.Msg, payload.Message, payload.ErrorDesc, payload.ErrorString} {
		if msg != "" {
			return msg
		}
	}
	return "request failed"
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(ioutil.Discard, body)
	_ = body.Close()
}
