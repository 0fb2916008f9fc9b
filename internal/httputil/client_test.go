package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type echo struct {
	Name string `json:"name"`
}

func TestPostJSON_Success(t *testing.T) {
	t.Parallel()

	mock := NewMockHTTPClient().AddResponse(http.StatusOK, `{"name":"pong"}`)
	header := http.Header{"X-User-Id": []string{"alice"}}

	var out echo
	if err := PostJSON(context.Background(), mock, "http://example/api", header, echo{Name: "ping"}, &out); err != nil {
		t.Fatalf("PostJSON failed: %v", err)
	}
	if out.Name != "pong" {
		t.Errorf("out = %+v, want pong", out)
	}

	if mock.RequestCount() != 1 {
		t.Fatalf("requests = %d, want 1", mock.RequestCount())
	}
	req := mock.Requests[0]
	if req.Method != http.MethodPost {
		t.Errorf("method = %s, want POST", req.Method)
	}
	if got := req.Header.Get("X-User-Id"); got != "alice" {
		t.Errorf("X-User-Id = %q, want alice", got)
	}
	if got := req.Header.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}
	var sent echo
	if err := json.Unmarshal(mock.Bodies[0], &sent); err != nil || sent.Name != "ping" {
		t.Errorf("sent body = %s (%v)", mock.Bodies[0], err)
	}
}

func TestPostJSON_Errors(t *testing.T) {
	t.Parallel()

	transport := errors.New("connection refused")
	tests := []struct {
		name       string
		mock       *MockHTTPClient
		wantStatus int
		wantMsg    string
	}{
		{"json error body", NewMockHTTPClient().AddResponse(http.StatusBadRequest, `{"error":"fps must be positive"}`), 400, "fps must be positive"},
		{"plain error body", NewMockHTTPClient().AddResponse(http.StatusBadGateway, "upstream down\n"), 502, "upstream down"},
		{"transport error", NewMockHTTPClient().AddErrorResponse(transport), 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := PostJSON(context.Background(), tt.mock, "http://example/api", nil, echo{}, nil)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantStatus == 0 {
				if !errors.Is(err, transport) {
					t.Errorf("err = %v, want transport error", err)
				}
				return
			}
			var se *StatusError
			if !errors.As(err, &se) {
				t.Fatalf("err = %v, want *StatusError", err)
			}
			if se.StatusCode != tt.wantStatus || se.Message != tt.wantMsg {
				t.Errorf("got %d %q, want %d %q", se.StatusCode, se.Message, tt.wantStatus, tt.wantMsg)
			}
		})
	}
}

func TestPostJSON_BadResponseBody(t *testing.T) {
	t.Parallel()

	mock := NewMockHTTPClient().AddResponse(http.StatusOK, `not json`)
	var out echo
	if err := PostJSON(context.Background(), mock, "http://example/api", nil, echo{}, &out); err == nil {
		t.Error("expected decode error")
	}
}

func TestPostJSON_RealServer(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in echo
		if err := DecodeJSON(w, r, &in); err != nil {
			BadRequest(w, err.Error())
			return
		}
		WriteJSONOK(w, echo{Name: in.Name + "!"})
	}))
	defer srv.Close()

	var out echo
	if err := PostJSON(context.Background(), srv.Client(), srv.URL, nil, echo{Name: "hi"}, &out); err != nil {
		t.Fatalf("PostJSON failed: %v", err)
	}
	if out.Name != "hi!" {
		t.Errorf("out = %+v", out)
	}
}

func TestMockHTTPClient_DoFunc(t *testing.T) {
	t.Parallel()

	mock := NewMockHTTPClient()
	mock.DoFunc = func(req *http.Request) (*http.Response, error) {
		return nil, errors.New("custom")
	}
	req, _ := http.NewRequest(http.MethodGet, "http://example", nil)
	if _, err := mock.Do(req); err == nil || err.Error() != "custom" {
		t.Errorf("err = %v, want custom", err)
	}
}
