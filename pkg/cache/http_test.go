package cache

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestResponseToEntry(t *testing.T) {
	tests := []struct {
		name    string
		resp    *http.Response
		wantErr bool
	}{
		{
			name: "valid response with request",
			resp: &http.Response{
				StatusCode: 200,
				Header: http.Header{
					"Content-Type": []string{"application/json"},
					"Etag":         []string{`"abc123"`},
				},
				Body:    io.NopCloser(bytes.NewReader([]byte(`{"data": []}`))),
				Request: httptest.NewRequest("GET", "http://civicsense.app/api/v1/reports", nil),
			},
			wantErr: false,
		},
		{
			name: "response without request",
			resp: &http.Response{
				StatusCode: 200,
				Header:     http.Header{},
				Body:       io.NopCloser(bytes.NewReader([]byte("<html></html>"))),
			},
			wantErr: false,
		},
		{
			name:    "nil response",
			resp:    nil,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, err := ResponseToEntry(tt.resp)
			if (err != nil) != tt.wantErr {
				t.Errorf("ResponseToEntry() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}

			// Verify body was read and restored
			body, _ := io.ReadAll(tt.resp.Body)
			if !bytes.Equal(body, entry.Data) {
				t.Errorf("restored body = %q, entry data = %q", body, entry.Data)
			}

			if entry.StatusCode != tt.resp.StatusCode {
				t.Errorf("StatusCode = %v, want %v", entry.StatusCode, tt.resp.StatusCode)
			}
			if entry.CachedAt.IsZero() {
				t.Error("CachedAt was not set")
			}
			if tt.resp.Request != nil && entry.Request.URL != tt.resp.Request.URL.String() {
				t.Errorf("Request.URL = %v, want %v", entry.Request.URL, tt.resp.Request.URL)
			}
		})
	}
}

func TestEntryToResponse(t *testing.T) {
	entry := &Entry{
		StatusCode: 200,
		Headers:    http.Header{"Content-Type": []string{"application/json"}},
		Data:       []byte(`{"data":[1]}`),
	}
	req := httptest.NewRequest("GET", "http://civicsense.app/api/v1/reports", nil)

	resp := EntryToResponse(entry, req)

	if resp.StatusCode != 200 {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if resp.Status != "200 OK" {
		t.Errorf("Status = %q, want 200 OK", resp.Status)
	}
	if resp.Request != req {
		t.Error("Request not attached")
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != `{"data":[1]}` {
		t.Errorf("body = %q", body)
	}

	// Mutating the response must not touch the entry
	resp.Header.Set("Content-Type", "text/plain")
	if entry.Headers.Get("Content-Type") != "application/json" {
		t.Error("EntryToResponse shares headers with entry")
	}
}

func TestEntryToResponse_DefaultStatus(t *testing.T) {
	resp := EntryToResponse(&Entry{}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if resp.Header == nil {
		t.Error("Header should never be nil")
	}
}

func TestSnapshotRequest(t *testing.T) {
	req := httptest.NewRequest("POST", "http://civicsense.app/api/v1/reports", strings.NewReader(`{"title":"broken light"}`))
	req.Header.Set("Content-Type", "application/json")

	snap, err := SnapshotRequest(req)
	if err != nil {
		t.Fatalf("SnapshotRequest() error = %v", err)
	}

	if snap.Method != "POST" {
		t.Errorf("Method = %v, want POST", snap.Method)
	}
	if string(snap.Body) != `{"title":"broken light"}` {
		t.Errorf("Body = %q", snap.Body)
	}

	// Original request body must still be readable
	body, _ := io.ReadAll(req.Body)
	if string(body) != `{"title":"broken light"}` {
		t.Errorf("request body not restored, got %q", body)
	}

	rebuilt, err := snap.NewRequest(context.Background())
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	if rebuilt.Header.Get("Content-Type") != "application/json" {
		t.Error("headers not restored on rebuilt request")
	}
	rebuiltBody, _ := io.ReadAll(rebuilt.Body)
	if string(rebuiltBody) != `{"title":"broken light"}` {
		t.Errorf("rebuilt body = %q", rebuiltBody)
	}
}

func TestSnapshotRequest_NoBody(t *testing.T) {
	req := httptest.NewRequest("GET", "http://civicsense.app/", nil)

	snap, err := SnapshotRequest(req)
	if err != nil {
		t.Fatalf("SnapshotRequest() error = %v", err)
	}
	if snap.Body != nil {
		t.Errorf("Body = %q, want nil", snap.Body)
	}

	if _, err := SnapshotRequest(nil); err == nil {
		t.Error("SnapshotRequest(nil) should fail")
	}
}

// hiccupBody yields its chunks in order, failing once after the first.
type hiccupBody struct {
	chunks []string
	failed bool
	closed bool
}

func (b *hiccupBody) Read(p []byte) (int, error) {
	if len(b.chunks) == 0 {
		return 0, io.EOF
	}
	if len(b.chunks) == 1 && !b.failed {
		b.failed = true
		return 0, errors.New("connection reset")
	}
	n := copy(p, b.chunks[0])
	b.chunks = b.chunks[1:]
	return n, nil
}

func (b *hiccupBody) Close() error {
	b.closed = true
	return nil
}

func TestResponseToEntry_ReadErrorKeepsBody(t *testing.T) {
	body := &hiccupBody{chunks: []string{"part1-", "part2"}}
	resp := &http.Response{StatusCode: 200, Header: http.Header{}, Body: body}

	if _, err := ResponseToEntry(resp); err == nil {
		t.Fatal("ResponseToEntry() should fail on read error")
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading restored body: %v", err)
	}
	if string(data) != "part1-part2" {
		t.Errorf("restored body = %q, want %q", data, "part1-part2")
	}

	resp.Body.Close()
	if !body.closed {
		t.Error("Close() not forwarded to the original body")
	}
}

func TestResponseToEntryLimit(t *testing.T) {
	tests := []struct {
		name          string
		body          string
		contentLength int64
		limit         int64
		wantTooLarge  bool
	}{
		{name: "no limit", body: "0123456789", contentLength: -1, limit: 0},
		{name: "within limit", body: "0123456789", contentLength: -1, limit: 10},
		{name: "unknown length over limit", body: "0123456789", contentLength: -1, limit: 4, wantTooLarge: true},
		{name: "declared length over limit", body: "0123456789", contentLength: 10, limit: 4, wantTooLarge: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{
				StatusCode:    200,
				Header:        http.Header{},
				Body:          io.NopCloser(strings.NewReader(tt.body)),
				ContentLength: tt.contentLength,
			}

			entry, err := ResponseToEntryLimit(resp, tt.limit)
			if tt.wantTooLarge {
				if !errors.Is(err, ErrEntryTooLarge) {
					t.Fatalf("err = %v, want ErrEntryTooLarge", err)
				}
			} else {
				if err != nil {
					t.Fatalf("ResponseToEntryLimit() error = %v", err)
				}
				if string(entry.Data) != tt.body {
					t.Errorf("Data = %q, want %q", entry.Data, tt.body)
				}
			}

			// The caller always gets the whole body
			data, _ := io.ReadAll(resp.Body)
			if string(data) != tt.body {
				t.Errorf("response body = %q, want %q", data, tt.body)
			}
		})
	}
}
