package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// apiClient talks to the TVShow server.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

// apiError is a non-2xx response.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s (HTTP %d)", e.Message, e.Status)
}

// do sends body as JSON and decodes the response into out. It returns the
// raw response body so callers can print it with --json.
func (c *apiClient) do(method, path string, body, out interface{}) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var payload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &payload) != nil || payload.Error == "" {
			payload.Error = string(raw)
		}
		return raw, &apiError{Status: resp.StatusCode, Message: payload.Error}
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return raw, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return raw, nil
}

// request runs do against the configured server and exits on failure.
// With --json the raw body is printed and false is returned.
func request(method, path string, body, out interface{}) bool {
	ensureServer()
	raw, err := newAPIClient(serverURL).do(method, path, body, out)
	if err != nil {
		fatal(err)
	}
	if jsonOutput {
		var pretty bytes.Buffer
		if json.Indent(&pretty, raw, "", "  ") == nil {
			raw = pretty.Bytes()
		}
		os.Stdout.Write(append(raw, '\n'))
		return false
	}
	return true
}
