// Package medplum is the REST client for the Medplum FHIR store. Every call
// is a single round trip with its own deadline; failures are reported as
// apperr.RemoteCallError or apperr.DeserializationError and never retried.
package medplum

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vhealth/integration/internal/platform/apperr"
	"github.com/vhealth/integration/internal/platform/fhir"
)

const (
	contentTypeFHIR = "application/fhir+json"

	defaultMaxSearchPages = 50
	maxErrorBody          = 64 * 1024
)

// Config holds the connection settings for a Client.
type Config struct {
	BaseURL     string
	CallTimeout time.Duration
	// MaxSearchPages bounds how many pages Search reads. A search with more
	// pages fails instead of returning a truncated result.
	MaxSearchPages int
}

// Client talks to the FHIR endpoint of a Medplum project.
type Client struct {
	baseURL     string
	tokens      TokenSource
	http        *http.Client
	callTimeout time.Duration
	maxPages    int
	logger      zerolog.Logger
}

// NewClient creates a Client. BaseURL is the FHIR root, for example
// https://api.medplum.com/fhir/R4.
func NewClient(cfg Config, tokens TokenSource, httpClient *http.Client, logger zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	maxPages := cfg.MaxSearchPages
	if maxPages <= 0 {
		maxPages = defaultMaxSearchPages
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		tokens:      tokens,
		http:        httpClient,
		callTimeout: timeout,
		maxPages:    maxPages,
		logger:      logger.With().Str("component", "medplum").Logger(),
	}
}

// Create posts payload as a new resource of resourceType and returns the id
// assigned by the server.
func (c *Client) Create(ctx context.Context, resourceType string, payload any) (string, error) {
	var created fhir.Resource
	if err := c.do(ctx, http.MethodPost, resourceType, nil, payload, &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", &apperr.DeserializationError{Resource: resourceType, Err: fmt.Errorf("created resource has no id")}
	}
	c.logger.Debug().Str("resource", resourceType).Str("id", created.ID).Msg("created")
	return created.ID, nil
}

// Update replaces resourceType/id with payload and returns the id echoed by
// the server.
func (c *Client) Update(ctx context.Context, resourceType, id string, payload any) (string, error) {
	if id == "" {
		return "", apperr.Validation("id", "update of "+resourceType+" requires an id")
	}
	var updated fhir.Resource
	if err := c.do(ctx, http.MethodPut, resourceType+"/"+id, nil, payload, &updated); err != nil {
		return "", err
	}
	if updated.ID == "" {
		updated.ID = id
	}
	c.logger.Debug().Str("resource", resourceType).Str("id", updated.ID).Msg("updated")
	return updated.ID, nil
}

// Delete removes resourceType/id.
func (c *Client) Delete(ctx context.Context, resourceType, id string) error {
	if id == "" {
		return apperr.Validation("id", "delete of "+resourceType+" requires an id")
	}
	if err := c.do(ctx, http.MethodDelete, resourceType+"/"+id, nil, nil, nil); err != nil {
		return err
	}
	c.logger.Debug().Str("resource", resourceType).Str("id", id).Msg("deleted")
	return nil
}

// Read fetches resourceType/id into out.
func (c *Client) Read(ctx context.Context, resourceType, id string, out any) error {
	if id == "" {
		return apperr.Validation("id", "read of "+resourceType+" requires an id")
	}
	return c.do(ctx, http.MethodGet, resourceType+"/"+id, nil, nil, out)
}

// Search runs a search against resourceType and returns every matching
// resource, following "next" links. A result that spans more pages than the
// client allows is reported as a RemoteCallError rather than truncated.
func (c *Client) Search(ctx context.Context, resourceType string, query url.Values) ([]json.RawMessage, error) {
	var bundle fhir.Bundle
	if err := c.do(ctx, http.MethodGet, resourceType, query, nil, &bundle); err != nil {
		return nil, err
	}
	resources := bundle.Resources()

	for page := 1; ; page++ {
		next := bundle.NextURL()
		if next == "" {
			return resources, nil
		}
		if page >= c.maxPages {
			return nil, &apperr.RemoteCallError{
				Method:      http.MethodGet,
				Resource:    resourceType,
				Diagnostics: fmt.Sprintf("search result spans more than %d pages", c.maxPages),
			}
		}
		path, nextQuery, err := c.nextPage(next)
		if err != nil {
			return nil, &apperr.DeserializationError{Resource: resourceType, Err: err}
		}
		bundle = fhir.Bundle{}
		if err := c.do(ctx, http.MethodGet, path, nextQuery, nil, &bundle); err != nil {
			return nil, err
		}
		resources = append(resources, bundle.Resources()...)
	}
}

// SearchPage returns only the first page of a search. It suits reads that
// ask for the newest _count entries and ignore the rest.
func (c *Client) SearchPage(ctx context.Context, resourceType string, query url.Values) ([]json.RawMessage, error) {
	var bundle fhir.Bundle
	if err := c.do(ctx, http.MethodGet, resourceType, query, nil, &bundle); err != nil {
		return nil, err
	}
	return bundle.Resources(), nil
}

// nextPage resolves a "next" link to a path under the FHIR root. Links that
// point outside the root are rejected.
func (c *Client) nextPage(next string) (string, url.Values, error) {
	u, err := url.Parse(next)
	if err != nil {
		return "", nil, fmt.Errorf("next link: %w", err)
	}
	root := basePath(c.baseURL) + "/"
	if !strings.HasPrefix(u.Path, root) {
		return "", nil, fmt.Errorf("next link %q is outside %s", next, c.baseURL)
	}
	return strings.TrimPrefix(u.Path, root), u.Query(), nil
}

func basePath(base string) string {
	u, err := url.Parse(base)
	if err != nil {
		return ""
	}
	return strings.TrimRight(u.Path, "/")
}

// do performs one request under its own call deadline. A nil out discards
// the response body.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	target := c.baseURL + "/" + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s payload: %w", path, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("build %s %s request: %w", method, path, err)
	}
	req.Header.Set("Accept", contentTypeFHIR)
	if payload != nil {
		req.Header.Set("Content-Type", contentTypeFHIR)
	}

	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("acquire access token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return &apperr.RemoteCallError{Method: method, Resource: path, Err: err}
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("fhir call")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return remoteError(method, path, resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &apperr.DeserializationError{Resource: path, Err: err}
	}
	return nil
}

// remoteError builds a RemoteCallError, lifting diagnostics out of an
// OperationOutcome body when the server sent one.
func remoteError(method, path string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	rerr := &apperr.RemoteCallError{Method: method, Resource: path, StatusCode: resp.StatusCode}

	var outcome fhir.OperationOutcome
	if json.Unmarshal(raw, &outcome) == nil && outcome.ResourceType == "OperationOutcome" {
		rerr.Diagnostics = outcome.Diagnostics()
	} else if len(raw) > 0 {
		rerr.Diagnostics = strings.TrimSpace(string(raw))
	}
	return rerr
}
