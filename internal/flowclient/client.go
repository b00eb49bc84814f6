// Package flowclient talks to the trove HTTP API. Client satisfies
// editor.Remote so an editor can run against a live server.
package flowclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"trove/api/internal/flow"
	"trove/api/internal/store"
)

const defaultTimeout = 30 * time.Second

// Doer is the subset of *http.Client the client needs.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// APIError is a non-2xx answer from the API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api: status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("api: %s (%d): %s", e.Code, e.Status, e.Message)
}

// IsCode reports whether err is an APIError carrying code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// Session is the token pair returned by the login endpoints.
type Session struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
	UserID       string `json:"userId"`
	UserName     string `json:"userName"`
	Role         string `json:"role"`
	ExpiresAt    int64  `json:"expiresAt"`
}

type CreateFlowRequest struct {
	Name       string   `json:"name"`
	Visibility string   `json:"visibility,omitempty"`
	CoverImage string   `json:"coverImage,omitempty"`
	Stages     []string `json:"stages,omitempty"`
}

type UpdateFlowRequest struct {
	Name       *string `json:"name,omitempty"`
	Visibility *string `json:"visibility,omitempty"`
	CoverImage *string `json:"coverImage,omitempty"`
}

type ContentRequest struct {
	Kind     string `json:"kind"`
	Title    string `json:"title"`
	Creator  string `json:"creator,omitempty"`
	Year     int    `json:"year,omitempty"`
	CoverURL string `json:"coverUrl,omitempty"`
}

type Option func(*Client)

func WithHTTPClient(d Doer) Option {
	return func(c *Client) {
		if d != nil {
			c.http = d
		}
	}
}

func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

type Client struct {
	baseURL string
	token   string
	http    Doer
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token is the bearer token currently in use.
func (c *Client) Token() string { return c.token }

// --- Session ---

// Login signs in by display name and keeps the issued token.
func (c *Client) Login(ctx context.Context, name string) (Session, error) {
	var session Session
	if err := c.send(ctx, http.MethodPost, "/api/session/login", map[string]string{"name": name}, &session); err != nil {
		return Session{}, err
	}
	c.token = session.Token
	return session, nil
}

func (c *Client) SignIn(ctx context.Context, email, password string) (Session, error) {
	var session Session
	body := map[string]string{"email": email, "password": password}
	if err := c.send(ctx, http.MethodPost, "/api/auth/signin", body, &session); err != nil {
		return Session{}, err
	}
	c.token = session.Token
	return session, nil
}

// --- Flows ---

func (c *Client) ListFlows(ctx context.Context) ([]store.FlowSummary, error) {
	var out struct {
		Flows []store.FlowSummary `json:"flows"`
	}
	err := c.send(ctx, http.MethodGet, "/api/flows", nil, &out)
	return out.Flows, err
}

func (c *Client) GetFlow(ctx context.Context, flowID string) (flow.Flow, error) {
	var f flow.Flow
	err := c.send(ctx, http.MethodGet, "/api/flows/"+url.PathEscape(flowID), nil, &f)
	return f, err
}

func (c *Client) CreateFlow(ctx context.Context, req CreateFlowRequest) (flow.Flow, error) {
	var f flow.Flow
	err := c.send(ctx, http.MethodPost, "/api/flows", req, &f)
	return f, err
}

func (c *Client) UpdateFlow(ctx context.Context, flowID string, req UpdateFlowRequest) (flow.Flow, error) {
	var f flow.Flow
	err := c.send(ctx, http.MethodPut, "/api/flows/"+url.PathEscape(flowID), req, &f)
	return f, err
}

func (c *Client) DeleteFlow(ctx context.Context, flowID string) error {
	return c.send(ctx, http.MethodDelete, "/api/flows/"+url.PathEscape(flowID), nil, nil)
}

// --- Stages ---

func (c *Client) AddStage(ctx context.Context, flowID, name string) (flow.Stage, error) {
	var stage flow.Stage
	err := c.send(ctx, http.MethodPost, "/api/flows/"+url.PathEscape(flowID)+"/stages", map[string]string{"name": name}, &stage)
	return stage, err
}

func (c *Client) RenameStage(ctx context.Context, stageID, name string) (flow.Stage, error) {
	var stage flow.Stage
	err := c.send(ctx, http.MethodPut, "/api/stages/"+url.PathEscape(stageID), map[string]string{"name": name}, &stage)
	return stage, err
}

func (c *Client) DeleteStage(ctx context.Context, stageID string) error {
	return c.send(ctx, http.MethodDelete, "/api/stages/"+url.PathEscape(stageID), nil, nil)
}

func (c *Client) ReorderStages(ctx context.Context, flowID string, orderedStageIDs []string) error {
	body := map[string][]string{"orderedStageIds": orderedStageIDs}
	return c.send(ctx, http.MethodPut, "/api/flows/"+url.PathEscape(flowID)+"/stages/order", body, nil)
}

// --- Nodes ---

func (c *Client) CreateNode(ctx context.Context, flowID, stageID, contentID, insertBeforeNodeID string) (flow.Node, error) {
	body := map[string]string{
		"flowId":             flowID,
		"contentId":          contentID,
		"insertBeforeNodeId": insertBeforeNodeID,
	}
	var node flow.Node
	err := c.send(ctx, http.MethodPost, "/api/stages/"+url.PathEscape(stageID)+"/nodes", body, &node)
	return node, err
}

func (c *Client) ReorderNodes(ctx context.Context, stageID string, orderedNodeIDs []string) error {
	body := map[string][]string{"orderedNodeIds": orderedNodeIDs}
	return c.send(ctx, http.MethodPut, "/api/stages/"+url.PathEscape(stageID)+"/nodes/order", body, nil)
}

func (c *Client) MoveNode(ctx context.Context, nodeID, toStageID string, orderedNodeIDs []string) error {
	body := map[string]any{"toStageId": toStageID, "orderedNodeIds": orderedNodeIDs}
	return c.send(ctx, http.MethodPost, "/api/nodes/"+url.PathEscape(nodeID)+"/move", body, nil)
}

func (c *Client) UpdateNode(ctx context.Context, nodeID, description string) (flow.Node, error) {
	var node flow.Node
	err := c.send(ctx, http.MethodPut, "/api/nodes/"+url.PathEscape(nodeID), map[string]string{"description": description}, &node)
	return node, err
}

func (c *Client) RemoveNode(ctx context.Context, nodeID string) error {
	return c.send(ctx, http.MethodDelete, "/api/nodes/"+url.PathEscape(nodeID), nil, nil)
}

// --- Library ---

func (c *Client) ListLibraryItems(ctx context.Context, query string) ([]flow.ExternalItem, error) {
	return c.ListLibrary(ctx, query, "", 0)
}

// ListLibrary lists library items. With flowID set the server leaves out
// content already used by that flow.
func (c *Client) ListLibrary(ctx context.Context, query, flowID string, limit int) ([]flow.ExternalItem, error) {
	params := url.Values{}
	if query != "" {
		params.Set("q", query)
	}
	if flowID != "" {
		params.Set("flowId", flowID)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/library"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	var out struct {
		Items []flow.ExternalItem `json:"items"`
	}
	err := c.send(ctx, http.MethodGet, path, nil, &out)
	return out.Items, err
}

func (c *Client) AddContent(ctx context.Context, req ContentRequest) (flow.Content, error) {
	var content flow.Content
	err := c.send(ctx, http.MethodPost, "/api/library", req, &content)
	return content, err
}

// UsageCounts has the shape of counts.Loader.
func (c *Client) UsageCounts(ctx context.Context, contentIDs []string) (map[string]int, error) {
	var out struct {
		Counts map[string]int `json:"counts"`
	}
	err := c.send(ctx, http.MethodPost, "/api/library/usage", map[string][]string{"contentIds": contentIDs}, &out)
	return out.Counts, err
}

// --- HTTP helpers ---

func (c *Client) send(ctx context.Context, method, path string, body, result any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if result == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{Status: resp.StatusCode}
	var payload struct {
		Code  string `json:"code"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Code != "" {
		apiErr.Code = payload.Code
		apiErr.Message = payload.Error
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(string(raw))
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
