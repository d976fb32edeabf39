package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ChamsBouzaiene/trailblaze/internal/session"
)

// Client calls a trailblaze server. Every error it returns is an *Error.
type Client struct {
	base       string
	httpClient *http.Client
	dialer     *websocket.Dialer
}

// NewClient creates a client for the server at base, e.g.
// http://127.0.0.1:52525.
func NewClient(base string) *Client {
	return &Client{
		base:       strings.TrimSuffix(base, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		dialer:     websocket.DefaultDialer,
	}
}

// Run starts a trail and returns its session id.
func (c *Client) Run(ctx context.Context, req RunRequest) (string, error) {
	var resp RunResponse
	if err := c.do(ctx, http.MethodPost, "/v1/run", req, &resp); err != nil {
		return "", err
	}
	return resp.SessionID, nil
}

func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var resp StatusResponse
	err := c.do(ctx, http.MethodGet, "/v1/status", nil, &resp)
	return resp, err
}

func (c *Client) Cancel(ctx context.Context) (CancelResponse, error) {
	var resp CancelResponse
	err := c.do(ctx, http.MethodPost, "/v1/cancel", nil, &resp)
	return resp, err
}

// Events returns the events of a session with a sequence above after.
func (c *Client) Events(ctx context.Context, sessionID string, after int64) ([]session.Event, error) {
	var resp EventsResponse
	path := "/v1/sessions/" + url.PathEscape(sessionID) + "/events?after=" + strconv.FormatInt(after, 10)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

func (c *Client) Tools(ctx context.Context) ([]ToolInfo, error) {
	var resp ToolsResponse
	if err := c.do(ctx, http.MethodGet, "/v1/tools", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Tools, nil
}

// SetTools restricts the tools offered to the model. No names restores
// the full set.
func (c *Client) SetTools(ctx context.Context, names []string) ([]ToolInfo, error) {
	var resp ToolsResponse
	if err := c.do(ctx, http.MethodPost, "/v1/tools", ToolsRequest{Names: names}, &resp); err != nil {
		return nil, err
	}
	return resp.Tools, nil
}

// Stream calls fn with each event of a session until the session ends, fn
// returns an error or ctx is done.
func (c *Client) Stream(ctx context.Context, sessionID string, after int64, fn func(session.Event) error) error {
	u, err := url.Parse(c.base)
	if err != nil {
		return &Error{Type: ErrorNetwork, Message: "invalid server address", Details: err.Error()}
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/v1/sessions/" + url.PathEscape(sessionID) + "/stream"
	u.RawQuery = "after=" + strconv.FormatInt(after, 10)

	ws, resp, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return decodeError(resp)
		}
		return &Error{Type: ErrorNetwork, Message: "websocket dial failed", Details: err.Error()}
	}
	defer ws.Close()

	stop := context.AfterFunc(ctx, func() { _ = ws.Close() })
	defer stop()

	for {
		var e session.Event
		if err := ws.ReadJSON(&e); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var syntax *json.SyntaxError
			if errors.As(err, &syntax) {
				return &Error{Type: ErrorSerialization, Message: "invalid event frame", Details: err.Error()}
			}
			return &Error{Type: ErrorNetwork, Message: "websocket read failed", Details: err.Error()}
		}
		if err := fn(e); err != nil {
			return err
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return &Error{Type: ErrorSerialization, Message: "encode request", Details: err.Error()}
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return &Error{Type: ErrorUnknown, Message: "build request", Details: err.Error()}
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Type: ErrorNetwork, Message: fmt.Sprintf("%s %s failed", method, path), Details: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Type: ErrorSerialization, Message: "decode response", Details: err.Error(), Status: resp.StatusCode}
	}
	return nil
}

// decodeError reads the server's Error body, or describes the raw response
// when it has none.
func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var e Error
	if err := json.Unmarshal(raw, &e); err != nil || e.Type == "" {
		return &Error{Type: ErrorHTTP, Message: resp.Status, Details: strings.TrimSpace(string(raw)), Status: resp.StatusCode}
	}
	e.Status = resp.StatusCode
	return &e
}
