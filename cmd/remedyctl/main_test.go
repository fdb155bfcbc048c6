package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDoGetAndPost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.Write([]byte(`{"status":"ok","service":"remedyd"}`))
		case "/api/v1/proposals":
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"id":"r1"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"not found"}`))
		}
	}))
	defer srv.Close()

	prev := serverURL
	serverURL = srv.URL
	defer func() { serverURL = prev }()

	body, err := doGet("/health")
	if err != nil {
		t.Fatalf("doGet(/health) error = %v", err)
	}
	if string(body) != `{"status":"ok","service":"remedyd"}` {
		t.Errorf("doGet(/health) body = %s", body)
	}

	if _, err := doGet("/api/v1/records/missing"); err == nil {
		t.Error("doGet on 404 should return an error")
	}

	body, status, err := doPost("/api/v1/proposals", map[string]any{"kind": "x"}, http.StatusCreated)
	if err != nil {
		t.Fatalf("doPost error = %v", err)
	}
	if status != http.StatusCreated {
		t.Errorf("doPost status = %d, want %d", status, http.StatusCreated)
	}
	if string(body) != `{"id":"r1"}` {
		t.Errorf("doPost body = %s", body)
	}

	if _, _, err := doPost("/api/v1/unknown", nil, http.StatusOK); err == nil {
		t.Error("doPost on unaccepted status should return an error")
	}
}
