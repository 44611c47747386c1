//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of GoPlan.
//
// GoPlan is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// GoPlan is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with GoPlan. If not, see https://www.gnu.org/licenses/.

package readers

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

	"github.com/aaronlmathis/goplan/core"
)

// Package readers provides implementations of core.DataSource that load task records.
//
// This file implements an HTTP reader for the task service and other JSON APIs.
// It supports authentication, pagination, retries and JSON, JSON lines or CSV bodies.

// HTTPReaderError provides structured error information for HTTP reader operations
type HTTPReaderError struct {
	Op         string // Operation that failed (e.g., "request", "auth", "parse")
	StatusCode int    // HTTP status code if applicable
	URL        string // URL being accessed when error occurred
	Err        error  // Underlying error
}

func (e *HTTPReaderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("http reader %s [%d] %s: %v", e.Op, e.StatusCode, e.URL, e.Err)
	}
	return fmt.Sprintf("http reader %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *HTTPReaderError) Unwrap() error {
	return e.Err
}

// HTTPReaderStats holds statistics about the HTTP reader's performance
type HTTPReaderStats struct {
	RequestCount int64         // Total HTTP requests made
	RecordsRead  int64         // Total records read
	BytesRead    int64         // Total bytes read
	ReadDuration time.Duration // Total time spent reading
	LastReadTime time.Time     // Time of last read
	RetryCount   int64         // Number of retries performed
}

// AuthConfig defines authentication configuration
type AuthConfig struct {
	Type          string            // "bearer", "basic", "apikey", "custom"
	Token         string            // Bearer token
	Username      string            // For basic auth
	Password      string            // For basic auth
	HeaderName    string            // Header name for API key
	HeaderValue   string            // API key value
	QueryParam    string            // Query parameter name for API key
	CustomHeaders map[string]string // Additional custom headers
}

// PaginationConfig defines pagination behavior
type PaginationConfig struct {
	Type         string // "offset", "page", "cursor", "none"
	LimitParam   string // Parameter name for limit/page size
	OffsetParam  string // Parameter name for offset
	PageParam    string // Parameter name for page number
	CursorParam  string // Parameter name for cursor
	PageSize     int    // Number of records per page
	MaxPages     int    // Maximum pages to fetch (0 = unlimited)
	CursorField  string // JSON field containing next cursor
	HasMoreField string // JSON field indicating more data available
}

// HTTPReaderOptions configures the HTTP reader
type HTTPReaderOptions struct {
	Headers          map[string]string // Additional headers
	QueryParams      map[string]string // Query parameters
	Auth             *AuthConfig       // Authentication configuration
	Pagination       *PaginationConfig // Pagination configuration
	Timeout          time.Duration     // Request timeout
	RetryAttempts    int               // Number of retry attempts
	RetryDelay       time.Duration     // Base delay between retries
	ResponseFormat   string            // "json", "jsonl", "csv"
	DataPath         string            // Dotted path to the task array inside a JSON body
	MaxResponseSize  int64             // Maximum response size in bytes
	ValidStatusCodes []int             // Valid HTTP status codes
	UserAgent        string            // User agent string
	CustomClient     *http.Client      // Custom HTTP client
}

// ReaderOptionHTTP is a functional option for HTTPReaderOptions
type ReaderOptionHTTP func(*HTTPReaderOptions)

func WithHTTPHeaders(headers map[string]string) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		for k, v := range headers {
			opts.Headers[k] = v
		}
	}
}

func WithHTTPQueryParams(params map[string]string) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		for k, v := range params {
			opts.QueryParams[k] = v
		}
	}
}

func WithHTTPAuth(auth *AuthConfig) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		opts.Auth = auth
	}
}

func WithHTTPBearerToken(token string) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		opts.Auth = &AuthConfig{Type: "bearer", Token: token}
	}
}

func WithHTTPBasicAuth(username, password string) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		opts.Auth = &AuthConfig{Type: "basic", Username: username, Password: password}
	}
}

func WithHTTPAPIKey(headerName, apiKey string) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		opts.Auth = &AuthConfig{Type: "apikey", HeaderName: headerName, HeaderValue: apiKey}
	}
}

func WithHTTPPagination(pagination *PaginationConfig) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		opts.Pagination = pagination
	}
}

func WithHTTPTimeout(timeout time.Duration) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		opts.Timeout = timeout
	}
}

func WithHTTPRetries(attempts int, delay time.Duration) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		opts.RetryAttempts = attempts
		opts.RetryDelay = delay
	}
}

func WithHTTPResponseFormat(format string) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		opts.ResponseFormat = format
	}
}

func WithHTTPDataPath(path string) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		opts.DataPath = path
	}
}

func WithHTTPClient(client *http.Client) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		opts.CustomClient = client
	}
}

// HTTPReader implements core.DataSource for HTTP APIs serving task lists
type HTTPReader struct {
	baseURL     string
	client      *http.Client
	opts        *HTTPReaderOptions
	stats       HTTPReaderStats
	currentData []core.Record
	index       int
	hasMoreData bool
	nextCursor  string
	currentPage int
	planName    string
}

// NewHTTPReader creates a new HTTP reader with configurable options
func NewHTTPReader(rawURL string, options ...ReaderOptionHTTP) (*HTTPReader, error) {
	if _, err := url.ParseRequestURI(rawURL); err != nil {
		return nil, &HTTPReaderError{Op: "parse_url", URL: rawURL, Err: err}
	}

	opts := &HTTPReaderOptions{
		Headers:          make(map[string]string),
		QueryParams:      make(map[string]string),
		Timeout:          30 * time.Second,
		RetryAttempts:    3,
		RetryDelay:       time.Second,
		ResponseFormat:   "json",
		MaxResponseSize:  32 * 1024 * 1024,
		ValidStatusCodes: []int{http.StatusOK},
		UserAgent:        "GoPlan-HTTPReader/1.0",
	}

	for _, option := range options {
		option(opts)
	}

	client := opts.CustomClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	return &HTTPReader{
		baseURL:     rawURL,
		client:      client,
		opts:        opts,
		hasMoreData: true,
		currentPage: 1,
	}, nil
}

// NewTaskServiceReader reads the plan served by the task service at baseURL/plan/.
func NewTaskServiceReader(baseURL string, options ...ReaderOptionHTTP) (*HTTPReader, error) {
	planURL := strings.TrimRight(baseURL, "/") + "/plan/"
	return NewHTTPReader(planURL, append([]ReaderOptionHTTP{WithHTTPDataPath("tasks")}, options...)...)
}

// Read implements the core.DataSource interface
func (hr *HTTPReader) Read(ctx context.Context) (core.Record, error) {
	start := time.Now()
	defer func() {
		hr.stats.ReadDuration += time.Since(start)
		hr.stats.LastReadTime = time.Now()
	}()

	select {
	case <-ctx.Done():
		return nil, &HTTPReaderError{Op: "read", URL: hr.baseURL, Err: ctx.Err()}
	default:
	}

	for hr.index >= len(hr.currentData) {
		if !hr.hasMoreData {
			return nil, io.EOF
		}
		if err := hr.loadNextBatch(ctx); err != nil {
			return nil, err
		}
	}

	record := hr.currentData[hr.index]
	hr.index++
	hr.stats.RecordsRead++
	return record, nil
}

// Close implements the core.DataSource interface
func (hr *HTTPReader) Close() error {
	hr.client.CloseIdleConnections()
	return nil
}

// Stats returns HTTP reader performance statistics
func (hr *HTTPReader) Stats() HTTPReaderStats {
	return hr.stats
}

// PlanName returns the "name" field of the last JSON object body, if any.
func (hr *HTTPReader) PlanName() string {
	return hr.planName
}

// loadNextBatch fetches the next page of records
func (hr *HTTPReader) loadNextBatch(ctx context.Context) error {
	requestURL := hr.requestURL()

	data, err := hr.executeRequestWithRetry(ctx, requestURL)
	if err != nil {
		return err
	}
	hr.stats.RequestCount++

	records, body, err := hr.parseResponse(data)
	if err != nil {
		return &HTTPReaderError{Op: "parse", URL: requestURL, Err: err}
	}

	hr.currentData = records
	hr.index = 0
	hr.updatePaginationState(body)
	return nil
}

// requestURL builds the URL for the current request
func (hr *HTTPReader) requestURL() string {
	u, _ := url.Parse(hr.baseURL)
	q := u.Query()
	for k, v := range hr.opts.QueryParams {
		q.Set(k, v)
	}

	if pg := hr.opts.Pagination; pg != nil {
		if pg.LimitParam != "" && pg.PageSize > 0 {
			q.Set(pg.LimitParam, strconv.Itoa(pg.PageSize))
		}
		switch pg.Type {
		case "offset":
			if pg.OffsetParam != "" {
				q.Set(pg.OffsetParam, strconv.Itoa((hr.currentPage-1)*pg.PageSize))
			}
		case "page":
			if pg.PageParam != "" {
				q.Set(pg.PageParam, strconv.Itoa(hr.currentPage))
			}
		case "cursor":
			if pg.CursorParam != "" && hr.nextCursor != "" {
				q.Set(pg.CursorParam, hr.nextCursor)
			}
		}
	}

	u.RawQuery = q.Encode()
	return u.String()
}

// executeRequestWithRetry retries rate limits, server errors and transport failures
func (hr *HTTPReader) executeRequestWithRetry(ctx context.Context, requestURL string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= hr.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			delay := hr.opts.RetryDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, &HTTPReaderError{Op: "retry", URL: requestURL, Err: ctx.Err()}
			}
			hr.stats.RetryCount++
		}

		data, err := hr.executeRequest(ctx, requestURL)
		if err == nil {
			return data, nil
		}
		lastErr = err

		var httpErr *HTTPReaderError
		if errors.As(err, &httpErr) && httpErr.StatusCode > 0 &&
			httpErr.StatusCode != http.StatusTooManyRequests && httpErr.StatusCode < 500 {
			break
		}
		if ctx.Err() != nil {
			break
		}
	}

	return nil, lastErr
}

// executeRequest executes a single HTTP request
func (hr *HTTPReader) executeRequest(ctx context.Context, requestURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, &HTTPReaderError{Op: "create_request", URL: requestURL, Err: err}
	}

	req.Header.Set("User-Agent", hr.opts.UserAgent)
	req.Header.Set("Accept", "application/json, application/x-ndjson, text/csv")
	for k, v := range hr.opts.Headers {
		req.Header.Set(k, v)
	}
	if err := hr.addAuthentication(req); err != nil {
		return nil, &HTTPReaderError{Op: "auth", URL: requestURL, Err: err}
	}

	resp, err := hr.client.Do(req)
	if err != nil {
		return nil, &HTTPReaderError{Op: "request", URL: requestURL, Err: err}
	}
	defer resp.Body.Close()

	if !hr.isValidStatusCode(resp.StatusCode) {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &HTTPReaderError{
			Op:         "status_check",
			URL:        requestURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status code: %d", resp.StatusCode),
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, hr.opts.MaxResponseSize))
	if err != nil {
		return nil, &HTTPReaderError{Op: "read_response", URL: requestURL, Err: err}
	}

	hr.stats.BytesRead += int64(len(data))
	return data, nil
}

// addAuthentication adds authentication to the request
func (hr *HTTPReader) addAuthentication(req *http.Request) error {
	auth := hr.opts.Auth
	if auth == nil {
		return nil
	}

	switch auth.Type {
	case "bearer":
		req.Header.Set("Authorization", "Bearer "+auth.Token)
	case "basic":
		req.SetBasicAuth(auth.Username, auth.Password)
	case "apikey":
		if auth.HeaderName != "" {
			req.Header.Set(auth.HeaderName, auth.HeaderValue)
		}
		if auth.QueryParam != "" {
			q := req.URL.Query()
			q.Set(auth.QueryParam, auth.HeaderValue)
			req.URL.RawQuery = q.Encode()
		}
	case "custom":
		for k, v := range auth.CustomHeaders {
			req.Header.Set(k, v)
		}
	default:
		return fmt.Errorf("unsupported auth type: %s", auth.Type)
	}
	return nil
}

// parseResponse decodes a body into records. For JSON object bodies it also returns
// the object so that pagination fields can be inspected.
func (hr *HTTPReader) parseResponse(data []byte) ([]core.Record, map[string]interface{}, error) {
	switch hr.opts.ResponseFormat {
	case "json":
		return hr.parseJSONResponse(data)
	case "jsonl":
		records, err := hr.parseJSONLResponse(data)
		return records, nil, err
	case "csv":
		records, err := hr.parseCSVResponse(data)
		return records, nil, err
	default:
		return nil, nil, fmt.Errorf("unsupported response format: %s", hr.opts.ResponseFormat)
	}
}

func (hr *HTTPReader) parseJSONResponse(data []byte) ([]core.Record, map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var response interface{}
	if err := dec.Decode(&response); err != nil {
		return nil, nil, fmt.Errorf("json unmarshal failed: %w", err)
	}

	body, _ := response.(map[string]interface{})
	if body != nil {
		if name, ok := body["name"].(string); ok {
			hr.planName = name
		}
	}

	if hr.opts.DataPath != "" {
		extracted, err := extractDataFromPath(response, hr.opts.DataPath)
		if err != nil {
			return nil, nil, fmt.Errorf("data path extraction failed: %w", err)
		}
		response = extracted
	}

	records, err := convertToRecords(response)
	return records, body, err
}

func (hr *HTTPReader) parseJSONLResponse(data []byte) ([]core.Record, error) {
	var records []core.Record
	for i, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(line))
		dec.UseNumber()
		var record core.Record
		if err := dec.Decode(&record); err != nil {
			return nil, fmt.Errorf("jsonl line %d: %w", i+1, err)
		}
		records = append(records, record)
	}
	return records, nil
}

func (hr *HTTPReader) parseCSVResponse(data []byte) ([]core.Record, error) {
	reader, err := NewCSVReader(io.NopCloser(bytes.NewReader(data)))
	if err != nil {
		return nil, err
	}
	var records []core.Record
	for {
		record, err := reader.Read(context.Background())
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
}

// extractDataFromPath follows a dotted path of object keys
func extractDataFromPath(data interface{}, path string) (interface{}, error) {
	current := data
	for _, part := range strings.Split(path, ".") {
		if part == "" {
			continue
		}
		obj, ok := current.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("cannot traverse path %s: expected object", part)
		}
		if current, ok = obj[part]; !ok {
			return nil, fmt.Errorf("path element %s not found", part)
		}
	}
	return current, nil
}

// convertToRecords converts decoded JSON into records
func convertToRecords(data interface{}) ([]core.Record, error) {
	switch v := data.(type) {
	case []interface{}:
		records := make([]core.Record, 0, len(v))
		for i, item := range v {
			obj, ok := item.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("element %d is %T, not an object", i, item)
			}
			records = append(records, core.Record(obj))
		}
		return records, nil
	case map[string]interface{}:
		return []core.Record{core.Record(v)}, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("unexpected response format: %T", data)
	}
}

// updatePaginationState decides whether another page should be requested
func (hr *HTTPReader) updatePaginationState(body map[string]interface{}) {
	pg := hr.opts.Pagination
	if pg == nil || pg.Type == "" || pg.Type == "none" {
		hr.hasMoreData = false
		return
	}
	if pg.MaxPages > 0 && hr.currentPage >= pg.MaxPages {
		hr.hasMoreData = false
		return
	}

	switch pg.Type {
	case "cursor":
		hr.currentPage++
		cursor, _ := body[pg.CursorField].(string)
		hr.nextCursor = cursor
		hr.hasMoreData = cursor != ""
	case "offset", "page":
		hr.currentPage++
		if pg.HasMoreField != "" {
			hasMore, _ := body[pg.HasMoreField].(bool)
			hr.hasMoreData = hasMore
		} else {
			hr.hasMoreData = pg.PageSize > 0 && len(hr.currentData) >= pg.PageSize
		}
	default:
		hr.hasMoreData = false
	}
}

func (hr *HTTPReader) isValidStatusCode(statusCode int) bool {
	for _, validCode := range hr.opts.ValidStatusCodes {
		if statusCode == validCode {
			return true
		}
	}
	return false
}
