package broadcast

import (
	"bufio"
	"bytes"
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestClassifyRequest(t *testing.T) {
	tests := []struct {
		method string
		target string
		want   requestKind
	}{
		{http.MethodGet, "/", requestStream},
		{http.MethodGet, "/?t=1", requestStream},
		{http.MethodHead, "/", requestProbe},
		{http.MethodPost, "/", requestInvalid},
		{http.MethodOptions, "/", requestInvalid},
		{http.MethodGet, "/live", requestInvalid},
		{http.MethodHead, "/index.html", requestInvalid},
	}

	for _, tt := range tests {
		raw := tt.method + " " + tt.target + " HTTP/1.1\r\nHost: test\r\n\r\n"
		req, err := http.ReadRequest(bufio.NewReader(strings.NewReader(raw)))
		if err != nil {
			t.Fatalf("ReadRequest(%q) error = %v", raw, err)
		}
		if got := classifyRequest(req); got != tt.want {
			t.Errorf("classifyRequest(%s %s) = %v, want %v", tt.method, tt.target, got, tt.want)
		}
	}
}

func TestWriteStreamHeaders(t *testing.T) {
	var buf bytes.Buffer
	if err := writeStreamHeaders(&buf, "127.0.0.1:5000", "audio/aac"); err != nil {
		t.Fatalf("writeStreamHeaders() error = %v", err)
	}

	expected := "HTTP/1.1 200 OK\r\n" +
		"Content-Type: audio/aac\r\n" +
		"Cache-Control: no-cache, no-store, must-revalidate\r\n" +
		"Pragma: no-cache\r\n" +
		"Expires: 0\r\n" +
		"Connection: close\r\n" +
		"\r\n"
	if buf.String() != expected {
		t.Errorf("writeStreamHeaders() wrote %q, want %q", buf.String(), expected)
	}
}

func TestWriteBadRequest(t *testing.T) {
	var buf bytes.Buffer
	if err := writeBadRequest(&buf, "127.0.0.1:5000"); err != nil {
		t.Fatalf("writeBadRequest() error = %v", err)
	}

	resp, err := http.ReadResponse(bufio.NewReader(&buf), nil)
	if err != nil {
		t.Fatalf("ReadResponse() error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want 400", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "Bad Request\n" {
		t.Errorf("body = %q, want %q", body, "Bad Request\n")
	}
}
