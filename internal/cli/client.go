package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/hyperjump/docanalysis/internal/entityindex"
	"github.com/hyperjump/docanalysis/internal/models"
)

// Client talks to a running docanalysis server.
type Client struct {
	http *resty.Client
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	c := resty.New()
	c.SetBaseURL(strings.TrimRight(baseURL, "/"))
	c.SetTimeout(timeout)
	c.SetHeader("Accept", "application/json")
	return &Client{http: c}
}

type apiError struct {
	Error string `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	req := c.http.R().SetContext(ctx)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		var apiErr apiError
		if json.Unmarshal(resp.Body(), &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode(), apiErr.Error)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode(), strings.TrimSpace(string(resp.Body())))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// CreateContent registers a content record.
func (c *Client) CreateContent(ctx context.Context, input models.ContentInput) (*models.ContentRecord, error) {
	var record models.ContentRecord
	if err := c.do(ctx, "POST", "/api/v1/content", input, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// Submit queues procedure on content contentID.
func (c *Client) Submit(ctx context.Context, procedure, contentID string, params map[string]string) (*models.Job, error) {
	var job models.Job
	path := "/api/v1/content/" + url.PathEscape(contentID) + "/procedures/" + url.PathEscape(procedure)
	body := map[string]interface{}{"params": params}
	if err := c.do(ctx, "POST", path, body, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Job fetches a job.
func (c *Client) Job(ctx context.Context, id string) (*models.Job, error) {
	var job models.Job
	if err := c.do(ctx, "GET", "/api/v1/jobs/"+url.PathEscape(id), nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// WaitJob polls job id every interval until it is terminal or ctx is done.
func (c *Client) WaitJob(ctx context.Context, id string, interval time.Duration) (*models.Job, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		job, err := c.Job(ctx, id)
		if err != nil {
			return nil, err
		}
		if job.Status.Terminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Languages lists the selectable languages.
func (c *Client) Languages(ctx context.Context) ([]models.LanguageInfo, error) {
	var out struct {
		Languages []models.LanguageInfo `json:"languages"`
	}
	if err := c.do(ctx, "GET", "/api/v1/languages", nil, &out); err != nil {
		return nil, err
	}
	return out.Languages, nil
}

// SearchEntities searches tagged mentions across content records.
func (c *Client) SearchEntities(ctx context.Context, query string, opts entityindex.SearchOptions) ([]entityindex.Mention, error) {
	params := url.Values{}
	params.Set("q", query)
	if opts.Label != "" {
		params.Set("label", opts.Label)
	}
	if opts.ContentID != "" {
		params.Set("content_id", opts.ContentID)
	}
	if opts.Fuzziness > 0 {
		params.Set("fuzziness", fmt.Sprint(opts.Fuzziness))
	}
	if opts.Limit > 0 {
		params.Set("limit", fmt.Sprint(opts.Limit))
	}
	var out struct {
		Entities []entityindex.Mention `json:"entities"`
	}
	if err := c.do(ctx, "GET", "/api/v1/entities?"+params.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out.Entities, nil
}

// Status returns the server status document.
func (c *Client) Status(ctx context.Context) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := c.do(ctx, "GET", "/api/v1/status", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
