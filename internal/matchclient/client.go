// internal/matchclient/client.go
package matchclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jason-s-yu/turnsync/internal/models"
	"github.com/sirupsen/logrus"
)

// TokenProvider supplies the credential stamped on every request.
type TokenProvider interface {
	Token() (string, error)
}

// Paths are the match and lobby service endpoints, relative to the base URL.
type Paths struct {
	Config    string
	Status    string
	Save      string
	EndTurn   string
	Terminate string
	Roster    string
	Ping      string
	Leave     string
}

// DefaultPaths matches the routes of the games' backend.
var DefaultPaths = Paths{
	Config:    "/game/config",
	Status:    "/game/status",
	Save:      "/game/save",
	EndTurn:   "/game/fine-turno",
	Terminate: "/partita/termina",
	Roster:    "/lobby/giocatori",
	Ping:      "/lobby/ping",
	Leave:     "/lobby/abbandona",
}

// FetchError is any failed exchange with the match service. It matches
// models.ErrFetchFailed under errors.Is.
type FetchError struct {
	Op     string
	Status int // 0 when no response was received
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s: status %d", models.ErrFetchFailed, e.Op, e.Status)
	}
	return fmt.Sprintf("%s: %s: %v", models.ErrFetchFailed, e.Op, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool { return target == models.ErrFetchFailed }

// Client talks to the match service. It has no retry logic: a failed call is
// reported once and the next scheduled poll is the only retry.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenProvider
	paths   Paths
	log     *logrus.Entry
}

// New builds a client for the service at baseURL.
func New(baseURL string, tokens TokenProvider, timeout time.Duration, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		tokens:  tokens,
		paths:   DefaultPaths,
		log:     logger.WithField("component", "matchclient"),
	}
}

// WithPaths overrides the endpoint table.
func (c *Client) WithPaths(p Paths) *Client {
	c.paths = p
	return c
}

// envelope is the {"results": ...} wrapper every endpoint answers with.
type envelope struct {
	Results json.RawMessage `json:"results"`
}

// first unwraps results that are sometimes an array with one row and
// sometimes the row itself.
func (e envelope) first() (json.RawMessage, bool) {
	raw := bytes.TrimSpace(e.Results)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, false
	}
	if raw[0] != '[' {
		return raw, true
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(raw, &rows); err != nil || len(rows) == 0 {
		return nil, false
	}
	return rows[0], true
}

// FetchConfig returns the static game configuration.
func (c *Client) FetchConfig(ctx context.Context) (models.GameConfig, error) {
	var row struct {
		Config models.GameConfig `json:"config"`
	}
	if err := c.getFirst(ctx, "config", c.paths.Config, &row); err != nil {
		return models.GameConfig{}, err
	}
	return row.Config, nil
}

// FetchStatus returns the authoritative match snapshot.
func (c *Client) FetchStatus(ctx context.Context) (models.MatchSnapshot, error) {
	var snap models.MatchSnapshot
	if err := c.getFirst(ctx, "status", c.paths.Status, &snap); err != nil {
		return models.MatchSnapshot{}, err
	}
	return snap, nil
}

// FetchRoster returns the lobby participants.
func (c *Client) FetchRoster(ctx context.Context) ([]models.Participant, error) {
	env, err := c.do(ctx, "roster", http.MethodGet, c.paths.Roster, nil)
	if err != nil {
		return nil, err
	}
	var players []models.Participant
	if err := json.Unmarshal(env.Results, &players); err != nil {
		return nil, &FetchError{Op: "roster", Err: fmt.Errorf("decode: %w", err)}
	}
	return players, nil
}

// Save stores the local player's data (history or quiz progress).
func (c *Client) Save(ctx context.Context, data any) error {
	_, err := c.do(ctx, "save", http.MethodPut, c.paths.Save, map[string]any{"info_giocatore": data})
	return err
}

// EndTurn passes the turn to the next player.
func (c *Client) EndTurn(ctx context.Context) error {
	_, err := c.do(ctx, "end-turn", http.MethodPut, c.paths.EndTurn, map[string]any{})
	return err
}

// TerminateMatch closes the match once a winner is known.
func (c *Client) TerminateMatch(ctx context.Context) error {
	_, err := c.do(ctx, "terminate", http.MethodPut, c.paths.Terminate, map[string]any{})
	return err
}

// Ping keeps the lobby membership alive.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, "ping", http.MethodPut, c.paths.Ping, map[string]any{})
	return err
}

// LeaveLobby removes the local player from the lobby.
func (c *Client) LeaveLobby(ctx context.Context) error {
	_, err := c.do(ctx, "leave", http.MethodDelete, c.paths.Leave, nil)
	return err
}

func (c *Client) getFirst(ctx context.Context, op, path string, out any) error {
	env, err := c.do(ctx, op, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	raw, ok := env.first()
	if !ok {
		return &FetchError{Op: op, Err: fmt.Errorf("%w: results", models.ErrMissingField)}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &FetchError{Op: op, Err: fmt.Errorf("decode: %w", err)}
	}
	return nil
}

// do performs one request. Writes carry the token in the body, reads in the
// "token" header, as the backend expects.
func (c *Client) do(ctx context.Context, op, method, path string, body map[string]any) (envelope, error) {
	token, err := c.tokens.Token()
	if err != nil {
		return envelope{}, &FetchError{Op: op, Err: err}
	}

	var rd io.Reader
	if body != nil {
		body["token"] = token
		data, err := json.Marshal(body)
		if err != nil {
			return envelope{}, &FetchError{Op: op, Err: fmt.Errorf("encode: %w", err)}
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return envelope{}, &FetchError{Op: op, Err: err}
	}
	req.Header.Set("token", token)
	req.Header.Set("Accept", "application/json")
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return envelope{}, &FetchError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	c.log.WithFields(logrus.Fields{
		"op":       op,
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	}).Debug("match service call")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return envelope{}, &FetchError{Op: op, Status: resp.StatusCode}
	}

	var env envelope
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return envelope{}, &FetchError{Op: op, Err: err}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return env, nil
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return envelope{}, &FetchError{Op: op, Err: fmt.Errorf("decode: %w", err)}
	}
	return env, nil
}
