// Package letta talks to the hosted Letta agent service over its REST API.
package letta

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/OFFIS-RIT/proteus/backend/pkg/agent"
	"github.com/tidwall/gjson"
)

const DefaultBaseURL = "https://api.letta.com"
const DefaultProject = "default-project"

const maxResponseBytes = 8 << 20

var (
	// ErrNotConfigured is returned when no API token was given.
	ErrNotConfigured = errors.New("letta: api token not configured")
	// ErrNoTemplate is returned by CreateFromTemplate without a template version.
	ErrNoTemplate = errors.New("letta: template version not configured")
	// ErrNoAgentID is returned when agent creation succeeded but no id could be found.
	ErrNoAgentID = errors.New("no agent id returned from Letta")

	errInvalidJSON = errors.New("response is not valid JSON")
)

type Config struct {
	BaseURL         string
	Token           string
	Project         string
	TemplateVersion string
	HTTPClient      *http.Client
}

// Client is a minimal Letta REST client. It implements the agent interface
// used by the reconcile engine.
type Client struct {
	baseURL         string
	token           string
	project         string
	templateVersion string
	client          *http.Client
}

func NewClient(cfg Config) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	project := strings.TrimSpace(cfg.Project)
	if project == "" {
		project = DefaultProject
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		// calls are bounded by their context; this only guards against hung connections
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	return &Client{
		baseURL:         baseURL,
		token:           strings.TrimSpace(cfg.Token),
		project:         project,
		templateVersion: strings.TrimSpace(cfg.TemplateVersion),
		client:          httpClient,
	}
}

// Configured reports whether an API token is set.
func (c *Client) Configured() bool {
	return c.token != ""
}

// CanCreateAgents reports whether agents can be created from a template.
func (c *Client) CanCreateAgents() bool {
	return c.token != "" && c.templateVersion != ""
}

// CreateFromTemplate creates a new agent from the configured template and
// returns its id.
func (c *Client) CreateFromTemplate(ctx context.Context) (string, error) {
	if !c.CanCreateAgents() {
		if c.token == "" {
			return "", ErrNotConfigured
		}
		return "", ErrNoTemplate
	}
	path := fmt.Sprintf("/v1/templates/%s/%s/agents", url.PathEscape(c.project), url.PathEscape(c.templateVersion))
	body, header, err := c.do(ctx, "create agent", http.MethodPost, path, struct{}{}, true)
	if err != nil {
		return "", err
	}
	id, ok := agentIDFromResponse(body, header)
	if !ok {
		return "", ErrNoAgentID
	}
	return id, nil
}

// SendMessage posts a user message and waits for the agent's reply.
func (c *Client) SendMessage(ctx context.Context, agentID, content string) ([]byte, error) {
	path := "/v1/agents/" + url.PathEscape(agentID) + "/messages"
	body, _, err := c.do(ctx, "send message", http.MethodPost, path, agent.NewUserRequest(content), false)
	return body, err
}

// Submit posts message asynchronously. The response describes the created
// run or, for agents answering immediately, already carries the reply.
func (c *Client) Submit(ctx context.Context, agentID, message string) ([]byte, error) {
	path := "/v1/agents/" + url.PathEscape(agentID) + "/messages/async"
	body, _, err := c.do(ctx, "submit", http.MethodPost, path, agent.NewUserRequest(message), false)
	return body, err
}

// RunStatus returns the raw status token of a run.
func (c *Client) RunStatus(ctx context.Context, runID string) (string, error) {
	body, _, err := c.do(ctx, "run status", http.MethodGet, "/v1/runs/"+url.PathEscape(runID), nil, false)
	if err != nil {
		return "", err
	}
	doc := gjson.ParseBytes(body)
	for _, key := range []string{"status", "state", "data.status", "data.state"} {
		if v := doc.Get(key); v.Type == gjson.String {
			return v.String(), nil
		}
	}
	return "", &agent.UpstreamProtocolError{Op: "run status", Body: agent.TruncateBody(body), Err: errors.New("run status missing")}
}

// RunMessages returns the message list envelope of a run.
func (c *Client) RunMessages(ctx context.Context, runID string) ([]byte, error) {
	body, _, err := c.do(ctx, "run messages", http.MethodGet, "/v1/runs/"+url.PathEscape(runID)+"/messages", nil, false)
	return body, err
}

func (c *Client) do(ctx context.Context, op, method, path string, payload any, allowEmpty bool) ([]byte, http.Header, error) {
	if c.token == "" {
		return nil, nil, ErrNotConfigured
	}

	var reqBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, nil, fmt.Errorf("letta %s: encode request: %w", op, err)
		}
		reqBody = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("letta %s: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, nil, fmt.Errorf("letta %s: read response: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, &agent.UpstreamProtocolError{Op: op, StatusCode: resp.StatusCode, Body: agent.TruncateBody(body)}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		if allowEmpty {
			return nil, resp.Header, nil
		}
		return nil, nil, &agent.UpstreamProtocolError{Op: op, Err: errors.New("empty response body")}
	}
	if !json.Valid(body) {
		if allowEmpty {
			return nil, resp.Header, nil
		}
		return nil, nil, &agent.UpstreamProtocolError{Op: op, Body: agent.TruncateBody(body), Err: errInvalidJSON}
	}
	return body, resp.Header, nil
}

// agentIDFromResponse looks for the created agent's id in agents[0].id,
// agent.id and id, then in the last segment of the Location header.
func agentIDFromResponse(body []byte, header http.Header) (string, bool) {
	if len(body) > 0 {
		doc := gjson.ParseBytes(body)
		if doc.IsObject() {
			var candidate gjson.Result
			switch agents := doc.Get("agents"); {
			case agents.IsArray() && len(agents.Array()) > 0:
				candidate = agents.Get("0.id")
			case doc.Get("agent").IsObject():
				candidate = doc.Get("agent.id")
			default:
				candidate = doc.Get("id")
			}
			if id := strings.TrimSpace(candidate.String()); candidate.Exists() && id != "" {
				return id, true
			}
		}
	}

	location := strings.TrimRight(header.Get("Location"), "/")
	if location == "" {
		return "", false
	}
	segment := location[strings.LastIndex(location, "/")+1:]
	if strings.HasPrefix(segment, "agent-") {
		return segment, true
	}
	return "", false
}
