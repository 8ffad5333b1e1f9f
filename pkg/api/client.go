package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/mylxsw/asteria/log"
	"github.com/supremeagent/promptrunner/pkg/streaming"
)

const maxErrorBody = 4096

// ClientOptions configures a Client.
type ClientOptions struct {
	BaseURL string
	// SchedulerURL and AuthURL default to BaseURL.
	SchedulerURL string
	AuthURL      string
	Token        string
	HTTPClient   *http.Client
}

// Client talks to the prompt-execution backend.
type Client struct {
	baseURL      string
	schedulerURL string
	authURL      string
	token        string
	http         *http.Client
}

// NewClient creates a client. The HTTP client has no timeout of its own since
// progress streams are long-lived; bound calls with their context instead.
func NewClient(opts ClientOptions) (*Client, error) {
	if strings.TrimSpace(opts.BaseURL) == "" {
		return nil, ErrBaseURLRequired
	}
	if opts.SchedulerURL == "" {
		opts.SchedulerURL = opts.BaseURL
	}
	if opts.AuthURL == "" {
		opts.AuthURL = opts.BaseURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}

	return &Client{
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		schedulerURL: strings.TrimRight(opts.SchedulerURL, "/"),
		authURL:      strings.TrimRight(opts.AuthURL, "/"),
		token:        opts.Token,
		http:         opts.HTTPClient,
	}, nil
}

// StreamURL returns the progress stream endpoint of sessionID.
func (c *Client) StreamURL(sessionID string) string {
	return c.baseURL + "/logevents/" + url.PathEscape(sessionID)
}

// OpenStream connects to the progress stream of sessionID and returns once the
// server has accepted it. Events published before that moment are not seen.
func (c *Client) OpenStream(ctx context.Context, sessionID string) (*streaming.Stream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.StreamURL(sessionID), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, statusError(req, resp)
	}
	if mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); mediaType != "text/event-stream" {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %q", ErrNotEventStream, resp.Header.Get("Content-Type"))
	}

	log.Debugf("api: stream open session=%s", sessionID)
	return streaming.NewStream(resp.Body), nil
}

// Prompt dispatches a command for execution under req.SessionID.
func (c *Client) Prompt(ctx context.Context, req PromptRequest) (PromptResponse, error) {
	var resp PromptResponse
	if err := c.postJSON(ctx, c.baseURL+"/prompt", req, &resp); err != nil {
		return PromptResponse{}, err
	}
	return resp, nil
}

// Login exchanges credentials for a token pair.
func (c *Client) Login(ctx context.Context, req LoginRequest) (TokenPair, error) {
	var tokens TokenPair
	if err := c.postJSON(ctx, c.authURL+"/auth/login/", req, &tokens); err != nil {
		return TokenPair{}, err
	}
	return tokens, nil
}

// Signup registers an account and returns its token pair.
func (c *Client) Signup(ctx context.Context, req LoginRequest) (TokenPair, error) {
	var tokens TokenPair
	if err := c.postJSON(ctx, c.authURL+"/auth/signup/", req, &tokens); err != nil {
		return TokenPair{}, err
	}
	return tokens, nil
}

// SchedulePrompt asks the scheduler to run a prompt at a later time.
func (c *Client) SchedulePrompt(ctx context.Context, req ScheduleRequest) (ScheduleResponse, error) {
	var resp ScheduleResponse
	if err := c.postJSON(ctx, c.schedulerURL+"/schedule/prompt/", req, &resp); err != nil {
		return ScheduleResponse{}, err
	}
	return resp, nil
}

func (c *Client) postJSON(ctx context.Context, endpoint string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(req, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response from %s: %w", endpoint, err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func statusError(req *http.Request, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{
		Method: req.Method,
		URL:    req.URL.String(),
		Code:   resp.StatusCode,
		Body:   strings.TrimSpace(string(body)),
	}
}
