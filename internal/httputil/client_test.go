package httputil

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestStandardClient_Get(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	client := NewStandardClient(nil)
	resp, err := client.Get(server.URL + "/health")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if string(body) != `{"status":"ok"}` {
		t.Errorf("Get() body = %s", body)
	}
}

func TestStandardClient_Post(t *testing.T) {
	var gotContentType, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
	}))
	defer server.Close()

	client := NewStandardClient(server.Client())
	resp, err := client.Post(server.URL, "application/json", strings.NewReader(`{"max_age":45}`))
	if err != nil {
		t.Fatalf("Post() error: %v", err)
	}
	resp.Body.Close()

	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %q", gotContentType)
	}
	if gotBody != `{"max_age":45}` {
		t.Errorf("Body = %q", gotBody)
	}
}

func TestMockHTTPClient_Queue(t *testing.T) {
	client := NewMockHTTPClient()
	client.AddResponse(200, `{"status":"ok"}`).AddResponse(503, `{"error":"down"}`)

	resp, err := client.Get("http://box:8080/health")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("First StatusCode = %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != `{"status":"ok"}` {
		t.Errorf("First body = %s", body)
	}

	resp, err = client.Get("http://box:8080/health")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 503 {
		t.Errorf("Second StatusCode = %d", resp.StatusCode)
	}
}

func TestMockHTTPClient_QueueExhausted(t *testing.T) {
	client := NewMockHTTPClient()

	resp, err := client.Get("http://box:8080/health")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Unscripted request should succeed empty, got %d", resp.StatusCode)
	}
}

func TestMockHTTPClient_ErrorResponse(t *testing.T) {
	client := NewMockHTTPClient()
	client.AddErrorResponse(errors.New("connection refused"))

	_, err := client.Get("http://box:8080/health")
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("Get() = %v, want transport error", err)
	}
}

func TestMockHTTPClient_RecordsRequests(t *testing.T) {
	client := NewMockHTTPClient()

	client.Get("http://box:8080/health")
	client.Post("http://box:8080/api/replay/tuning", "application/json", strings.NewReader(`{}`))

	if client.RequestCount() != 2 {
		t.Fatalf("RequestCount() = %d", client.RequestCount())
	}
	if got := client.Requests[0].URL.String(); got != "http://box:8080/health" {
		t.Errorf("First request URL = %q", got)
	}

	last := client.LastRequest()
	if last == nil || last.Method != http.MethodPost {
		t.Fatalf("LastRequest() = %+v", last)
	}
	if last.Header.Get("Content-Type") != "application/json" {
		t.Errorf("Post Content-Type = %q", last.Header.Get("Content-Type"))
	}
}

func TestMockHTTPClient_DoFunc(t *testing.T) {
	client := NewMockHTTPClient()
	client.DoFunc = func(req *http.Request) (*http.Response, error) {
		if strings.HasSuffix(req.URL.Path, "/health") {
			return makeResponse(req, 200, `{"status":"ok"}`), nil
		}
		return makeResponse(req, 404, ""), nil
	}

	resp, _ := client.Get("http://box:8080/health")
	resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Errorf("Health StatusCode = %d", resp.StatusCode)
	}

	resp, _ = client.Get("http://box:8080/nope")
	resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Errorf("Unknown path StatusCode = %d", resp.StatusCode)
	}
}

func TestMockHTTPClient_Reset(t *testing.T) {
	client := NewMockHTTPClient()
	client.AddResponse(500, "boom")
	client.Get("http://box:8080/health")

	client.Reset()

	if client.RequestCount() != 0 {
		t.Errorf("RequestCount() after reset = %d", client.RequestCount())
	}
	resp, err := client.Get("http://box:8080/health")
	if err != nil {
		t.Fatalf("Get() after reset error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode after reset = %d, want fresh default", resp.StatusCode)
	}
}
