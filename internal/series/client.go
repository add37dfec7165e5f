package series

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"tidb-charts/internal/chartapi"
	"tidb-charts/internal/chartresult"
	"tidb-charts/internal/planner"
)

// APIError is a failure envelope returned by the chart server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chart server returned %d: %s", e.StatusCode, e.Message)
}

// Client reads chart data from a tidb-charts server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ChartData fetches normalized rows for req.
func (c *Client) ChartData(ctx context.Context, req planner.ChartRequest) (*chartresult.Response, error) {
	var resp chartresult.Response
	if err := c.get(ctx, chartapi.ChartDataPath, chartapi.EncodeChartRequest(req), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Schema fetches the exposed columns of table.
func (c *Client) Schema(ctx context.Context, table string) (*chartapi.SchemaResponse, error) {
	var resp chartapi.SchemaResponse
	if err := c.get(ctx, chartapi.ChartSchemaPath, url.Values{"table": {table}}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path + "?" + query.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer func() {
		_ = httpResp.Body.Close()
	}()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		var failure chartresult.ErrorResponse
		if err := json.Unmarshal(body, &failure); err != nil || failure.Error == "" {
			failure.Error = strings.TrimSpace(string(body))
		}
		return &APIError{StatusCode: httpResp.StatusCode, Message: failure.Error}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
