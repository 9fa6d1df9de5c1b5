package cache

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// ResponseToEntry converts an HTTP response to an Entry.
// It reads the response body; the body is restored after reading so the
// caller can still return the response.
func ResponseToEntry(resp *http.Response) (*Entry, error) {
	return ResponseToEntryLimit(resp, 0)
}

// ResponseToEntryLimit is ResponseToEntry for bodies of at most limit bytes
// (0 means no limit). A larger body yields ErrEntryTooLarge and is left
// readable from the start, so the response can still be streamed.
func ResponseToEntryLimit(resp *http.Response, limit int64) (*Entry, error) {
	if resp == nil {
		return nil, fmt.Errorf("response cannot be nil")
	}
	if limit > 0 && resp.ContentLength > limit {
		return nil, ErrEntryTooLarge
	}

	var body []byte
	if resp.Body != nil {
		src := io.Reader(resp.Body)
		if limit > 0 {
			src = io.LimitReader(resp.Body, limit+1)
		}

		var err error
		body, err = io.ReadAll(src)
		if err != nil {
			restoreBody(resp, body)
			return nil, fmt.Errorf("read response body: %w", err)
		}
		if limit > 0 && int64(len(body)) > limit {
			restoreBody(resp, body)
			return nil, ErrEntryTooLarge
		}
		resp.Body.Close()
	}

	// Restore body for caller
	resp.Body = io.NopCloser(bytes.NewReader(body))

	entry := &Entry{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header.Clone(),
		Data:       body,
		CachedAt:   time.Now(),
	}

	if resp.Request != nil {
		entry.Request = RequestSnapshot{
			Method: resp.Request.Method,
			URL:    resp.Request.URL.String(),
			Header: resp.Request.Header.Clone(),
		}
	}

	return entry, nil
}

// restoreBody puts the bytes already read back in front of the unread rest.
func restoreBody(resp *http.Response, read []byte) {
	rest := resp.Body
	resp.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(read), rest), rest}
}

// EntryToResponse rebuilds an HTTP response from a cached entry.
// req becomes the response's Request and may be nil.
func EntryToResponse(entry *Entry, req *http.Request) *http.Response {
	header := entry.Headers.Clone()
	if header == nil {
		header = http.Header{}
	}

	status := entry.StatusCode
	if status == 0 {
		status = http.StatusOK
	}

	return &http.Response{
		Status:        strconv.Itoa(status) + " " + http.StatusText(status),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(entry.Data)),
		ContentLength: int64(len(entry.Data)),
		Request:       req,
	}
}

// SnapshotRequest captures method, URL, headers and body of a request.
// The request body is consumed and replaced with an equivalent reader.
func SnapshotRequest(req *http.Request) (RequestSnapshot, error) {
	if req == nil {
		return RequestSnapshot{}, fmt.Errorf("request cannot be nil")
	}

	snap := RequestSnapshot{
		Method: req.Method,
		URL:    req.URL.String(),
		Header: req.Header.Clone(),
	}

	if req.Body == nil || req.Body == http.NoBody {
		return snap, nil
	}

	body, err := io.ReadAll(req.Body)
	if err != nil {
		return RequestSnapshot{}, fmt.Errorf("read request body: %w", err)
	}
	req.Body.Close()

	req.Body = io.NopCloser(bytes.NewReader(body))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	snap.Body = body

	return snap, nil
}

// NewRequest rebuilds the snapshotted request.
func (s RequestSnapshot) NewRequest(ctx context.Context) (*http.Request, error) {
	var body io.Reader
	if len(s.Body) > 0 {
		body = bytes.NewReader(s.Body)
	}

	req, err := http.NewRequestWithContext(ctx, s.Method, s.URL, body)
	if err != nil {
		return nil, fmt.Errorf("rebuild request: %w", err)
	}
	for name, values := range s.Header {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	return req, nil
}
