package pushdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func fakeGetenv(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestExecutePostResolvesFieldsAndHeaders(t *testing.T) {
	var gotBody, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 1024)
		n, _ := r.Body.Read(buf)
		gotBody = string(buf[:n])
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ep := Endpoint{
		Name:   "notify",
		URL:    srv.URL,
		Method: "post",
		Headers: map[string]string{
			"Authorization_env": "TEST_TOKEN",
		},
		Fields: map[string]string{
			"q":      "${query}",
			"static": "hello",
		},
		Enabled: true,
	}
	req := Request{Query: "what is go", Timestamp: time.Unix(0, 0)}
	result := Execute(context.Background(), srv.Client(), ep, req, fakeGetenv(map[string]string{"TEST_TOKEN": "secret123"}))

	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if gotAuth != "secret123" {
		t.Fatalf("expected resolved auth header, got %q", gotAuth)
	}
	if gotBody == "" {
		t.Fatalf("expected a non-empty request body")
	}
}

func TestExecuteMissingEnvIsError(t *testing.T) {
	ep := Endpoint{
		Name:    "notify",
		URL:     "http://example.invalid",
		Method:  "post",
		Headers: map[string]string{"Authorization_env": "MISSING_TOKEN"},
		Enabled: true,
	}
	result := Execute(context.Background(), nil, ep, Request{Timestamp: time.Unix(0, 0)}, fakeGetenv(nil))
	if result.Success {
		t.Fatalf("expected failure on missing env var")
	}
	if result.Error == "" {
		t.Fatalf("expected a non-empty error message")
	}
}

func TestExecuteMissingDynamicParamIsError(t *testing.T) {
	ep := Endpoint{
		Name:    "notify",
		URL:     "http://example.invalid",
		Method:  "post",
		Fields:  map[string]string{"extra": "${missing_param}"},
		Enabled: true,
	}
	result := Execute(context.Background(), nil, ep, Request{Timestamp: time.Unix(0, 0)}, fakeGetenv(nil))
	if result.Success {
		t.Fatalf("expected failure on missing dynamic parameter")
	}
}

func TestEnabledEndpointsFiltersDisabled(t *testing.T) {
	all := map[string]Endpoint{
		"a": {Name: "a", Enabled: true},
		"b": {Name: "b", Enabled: false},
	}
	enabled := EnabledEndpoints(all)
	if len(enabled) != 1 {
		t.Fatalf("expected 1 enabled endpoint, got %d", len(enabled))
	}
	if _, ok := enabled["a"]; !ok {
		t.Fatalf("expected endpoint 'a' to remain enabled")
	}
}

func TestExecuteEmptySpecialVariableResolvesToEmptyString(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 1024)
		n, _ := r.Body.Read(buf)
		gotBody = string(buf[:n])
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ep := Endpoint{
		Name:    "notify",
		URL:     srv.URL,
		Method:  "post",
		Fields:  map[string]string{"q": "${query}", "a": "${answer}"},
		Enabled: true,
	}
	// No query or answer set: the placeholders resolve to "", not an error.
	result := Execute(context.Background(), srv.Client(), ep, Request{Timestamp: time.Unix(0, 0)}, nil)
	if !result.Success {
		t.Fatalf("empty special variables must not fail the push, got %+v", result)
	}
	if gotBody != `{"a":"","q":""}` {
		t.Fatalf("expected empty-string fields in payload, got %q", gotBody)
	}
}
