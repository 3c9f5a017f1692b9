// Package pushdata implements the push_data tool family: templated HTTP
// POST/GET requests to configured endpoints, with two-phase field
// resolution (environment-variable lookup, then placeholder substitution).
package pushdata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// SpecialVariables names the placeholders resolvable without a matching
// dynamic argument: query, answer, timestamp and model are always filled
// in by the caller, not by the LLM's tool-call arguments.
var SpecialVariables = map[string]struct{}{
	"query": {}, "answer": {}, "timestamp": {}, "model": {},
}

// Endpoint is one configured push_data destination.
type Endpoint struct {
	Name    string
	URL     string
	Method  string // "get" or "post"
	Headers map[string]string
	Fields  map[string]string
	Enabled bool
}

// Request carries the values available to resolve a push_data call.
type Request struct {
	Query      string
	Answer     string
	Model      string
	Timestamp  time.Time
	DynamicArgs map[string]string
}

// Result is the outcome of one push, shaped for direct JSON return to the
// model.
type Result struct {
	Success    bool   `json:"success"`
	Endpoint   string `json:"endpoint"`
	StatusCode int    `json:"status_code,omitempty"`
	URL        string `json:"url,omitempty"`
	Error      string `json:"error,omitempty"`
}

// specialVars always carries every special variable, empty or not: an
// empty query resolves "${query}" to "" rather than erroring.
func specialVars(req Request) map[string]string {
	return map[string]string{
		"timestamp": req.Timestamp.UTC().Format(time.RFC3339),
		"query":     req.Query,
		"answer":    req.Answer,
		"model":     req.Model,
	}
}

// resolveFieldValue resolves one field's value per the two-phase contract:
// keys ending in "_env" resolve from the environment; values shaped
// "${name}" resolve against special variables first, then dynamic args;
// anything else is a static literal. Resolution never returns a silent
// empty string: missing env vars and missing placeholders are errors.
func resolveFieldValue(key, value string, dynamicArgs, special map[string]string, getenv func(string) (string, bool)) (string, error) {
	if strings.HasSuffix(key, "_env") {
		envVal, ok := getenv(value)
		if !ok {
			return "", fmt.Errorf("environment variable '%s' not found", value)
		}
		return envVal, nil
	}

	if strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}") {
		name := value[2 : len(value)-1]
		if _, isSpecial := SpecialVariables[name]; isSpecial {
			v, ok := special[name]
			if !ok {
				return "", fmt.Errorf("special variable '%s' not available", name)
			}
			return v, nil
		}
		v, ok := dynamicArgs[name]
		if !ok {
			return "", fmt.Errorf("missing required parameter: %s", name)
		}
		return v, nil
	}

	return value, nil
}

// resolveHeaders resolves header values. Unlike field keys, the "_env"
// suffix is stripped from the resulting header name once it has served as
// the resolution trigger; field keys keep their suffix as-is.
func resolveHeaders(headers map[string]string, getenv func(string) (string, bool)) (map[string]string, error) {
	resolved := make(map[string]string, len(headers))
	for key, value := range headers {
		if strings.HasSuffix(key, "_env") {
			envVal, ok := getenv(value)
			if !ok {
				return nil, fmt.Errorf("environment variable '%s' not found", value)
			}
			resolved[strings.TrimSuffix(key, "_env")] = envVal
			continue
		}
		resolved[key] = value
	}
	return resolved, nil
}

func buildPayload(fields map[string]string, dynamicArgs, special map[string]string, getenv func(string) (string, bool)) (map[string]string, error) {
	payload := make(map[string]string, len(fields))
	for key, value := range fields {
		resolved, err := resolveFieldValue(key, value, dynamicArgs, special, getenv)
		if err != nil {
			return nil, err
		}
		payload[key] = resolved
	}
	return payload, nil
}

// Execute performs the HTTP push described by endpoint, resolving header
// and field templates against req. getenv defaults to os.LookupEnv when nil.
func Execute(ctx context.Context, client *http.Client, endpoint Endpoint, req Request, getenv func(string) (string, bool)) Result {
	if getenv == nil {
		getenv = os.LookupEnv
	}
	method := strings.ToLower(strings.TrimSpace(endpoint.Method))
	if method == "" {
		method = "post"
	}
	if method != "get" && method != "post" {
		return Result{Success: false, Endpoint: endpoint.Name, Error: fmt.Sprintf("endpoint '%s' has invalid method: %s", endpoint.Name, method)}
	}

	special := specialVars(req)
	dynamicArgs := req.DynamicArgs
	if dynamicArgs == nil {
		dynamicArgs = map[string]string{}
	}

	headers, err := resolveHeaders(endpoint.Headers, getenv)
	if err != nil {
		return Result{Success: false, Endpoint: endpoint.Name, Error: fmt.Sprintf("failed to resolve headers for endpoint '%s': %v", endpoint.Name, err)}
	}

	payload, err := buildPayload(endpoint.Fields, dynamicArgs, special, getenv)
	if err != nil {
		return Result{Success: false, Endpoint: endpoint.Name, Error: fmt.Sprintf("failed to build payload for endpoint '%s': %v", endpoint.Name, err)}
	}

	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	var httpReq *http.Request
	if method == "get" {
		u, perr := url.Parse(endpoint.URL)
		if perr != nil {
			return Result{Success: false, Endpoint: endpoint.Name, URL: endpoint.URL, Error: perr.Error()}
		}
		q := u.Query()
		for k, v := range payload {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
		httpReq, err = http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	} else {
		body, merr := json.Marshal(payload)
		if merr != nil {
			return Result{Success: false, Endpoint: endpoint.Name, URL: endpoint.URL, Error: merr.Error()}
		}
		httpReq, err = http.NewRequestWithContext(ctx, http.MethodPost, endpoint.URL, bytes.NewReader(body))
		if err == nil {
			httpReq.Header.Set("Content-Type", "application/json")
		}
	}
	if err != nil {
		return Result{Success: false, Endpoint: endpoint.Name, URL: endpoint.URL, Error: err.Error()}
	}
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return Result{Success: false, Endpoint: endpoint.Name, URL: endpoint.URL, Error: fmt.Sprintf("failed to push data to '%s': %v", endpoint.Name, err)}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{Success: false, Endpoint: endpoint.Name, URL: endpoint.URL, StatusCode: resp.StatusCode, Error: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
	}

	return Result{Success: true, Endpoint: endpoint.Name, URL: endpoint.URL, StatusCode: resp.StatusCode}
}

// EnabledEndpoints filters a configured endpoint map down to those flagged
// for LLM tool registration.
func EnabledEndpoints(all map[string]Endpoint) map[string]Endpoint {
	enabled := make(map[string]Endpoint)
	for name, ep := range all {
		if ep.Enabled {
			enabled[name] = ep
		}
	}
	return enabled
}
