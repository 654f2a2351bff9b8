// Package modelapi talks to an external inference service's control
// API: health polling, threshold configuration and async commands.
// Deployments expose the endpoints under slightly different prefixes,
// so every call probes a small list of candidate paths.
package modelapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"
)

// Status is the inference service's reported state.
type Status struct {
	State     string  `json:"state"`
	ModelName string  `json:"model_name"`
	FPS       float64 `json:"fps"`
	Reachable bool    `json:"reachable"`
}

func BuildPaths(baseURL string, apiVersion string, kind string, param string) []string {
	baseURL = strings.TrimRight(baseURL, "/")
	apiVersion = strings.Trim(apiVersion, "/")
	kind = strings.Trim(kind, "/")
	param = strings.TrimLeft(param, "/")
	if baseURL == "" || kind == "" || param == "" {
		return nil
	}

	paths := make([]string, 0, 3)
	if apiVersion != "" {
		paths = append(paths, baseURL+"/api/"+apiVersion+"/"+kind+"/"+param)
	}
	paths = append(paths, baseURL+"/"+kind+"/"+param)
	return paths
}

// ConfigSet pushes one configuration value, e.g. the score threshold.
func ConfigSet(ctx context.Context, baseURL string, apiVersion string, param string, value any) (int, string) {
	if baseURL == "" {
		return http.StatusBadRequest, "missing base url"
	}
	if param == "" {
		return http.StatusBadRequest, "missing parameter"
	}
	payload, err := json.Marshal(map[string]any{"value": value})
	if err != nil {
		return http.StatusBadRequest, "invalid value"
	}
	return doRequest(ctx, http.MethodPut, BuildPaths(baseURL, apiVersion, "config", param), payload, "application/json")
}

// StatusGet fetches one status parameter as raw text.
func StatusGet(ctx context.Context, baseURL string, apiVersion string, param string) (int, string) {
	if baseURL == "" {
		return http.StatusBadRequest, "missing base url"
	}
	if param == "" {
		return http.StatusBadRequest, "missing parameter"
	}
	return doRequest(ctx, http.MethodGet, BuildPaths(baseURL, apiVersion, "status", param), nil, "")
}

// CommandAsync fires a command without waiting for the result, for
// slow operations like a model reload.
func CommandAsync(baseURL string, apiVersion string, command string) error {
	if baseURL == "" {
		return ErrMissingBaseURL
	}
	if command == "" {
		return ErrMissingParameter
	}
	paths := BuildPaths(baseURL, apiVersion, "command", command)
	client := &http.Client{Timeout: 2 * time.Second}
	go func() {
		for _, path := range paths {
			req, err := http.NewRequest(http.MethodPut, path, nil)
			if err != nil {
				continue
			}
			resp, err := client.Do(req)
			if err != nil {
				continue
			}
			_, _ = io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			_ = resp.Body.Close()
			if resp.StatusCode != http.StatusNotFound {
				return
			}
		}
	}()
	return nil
}

// Poll fetches the service state every interval and hands each result
// to update, until ctx is done. Fetch failures report an unreachable
// status rather than stopping the loop.
func Poll(ctx context.Context, baseURL string, apiVersion string, interval time.Duration, update func(Status)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		update(fetchStatus(ctx, baseURL, apiVersion))
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func fetchStatus(ctx context.Context, baseURL string, apiVersion string) Status {
	code, body := StatusGet(ctx, baseURL, apiVersion, "state")
	if code != http.StatusOK {
		return Status{State: "unknown"}
	}
	st := Status{Reachable: true}
	if err := json.Unmarshal([]byte(body), &st); err != nil {
		// Some deployments return the bare state string.
		st.State = strings.Trim(body, "\" ")
		st.Reachable = true
	}
	if st.State == "" {
		st.State = "unknown"
	}
	return st
}

var (
	ErrMissingBaseURL   = &apiError{"missing base url"}
	ErrMissingParameter = &apiError{"missing parameter"}
)

type apiError struct {
	msg string
}

func (e *apiError) Error() string {
	return e.msg
}

func doRequest(ctx context.Context, method string, paths []string, payload []byte, contentType string) (int, string) {
	if len(paths) == 0 {
		return http.StatusBadRequest, "missing path"
	}
	client := &http.Client{Timeout: 2 * time.Second}
	for _, path := range paths {
		var body io.Reader
		if len(payload) > 0 {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, path, body)
		if err != nil {
			continue
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		resp, err := client.Do(req)
		if err != nil {
			continue
		}
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			return resp.StatusCode, strings.TrimSpace(string(respBody))
		}
	}
	return http.StatusNotFound, "not found"
}
