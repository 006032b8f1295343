package broadcast

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/melchor629/chromecaster/internal/logging"
	"go.uber.org/zap"
)

// maxDiscardBody bounds how much of a rejected request body is drained
// before answering
const maxDiscardBody = 64 << 10

// requestKind classifies an incoming request
type requestKind int

const (
	requestInvalid requestKind = iota
	requestStream              // GET /
	requestProbe               // HEAD /
)

// classifyRequest maps a request onto the only endpoint the server has
func classifyRequest(req *http.Request) requestKind {
	if req.URL == nil || req.URL.Path != "/" {
		return requestInvalid
	}
	switch req.Method {
	case http.MethodGet:
		return requestStream
	case http.MethodHead:
		return requestProbe
	default:
		return requestInvalid
	}
}

// streamHeaders lists the response headers for GET and HEAD, in write order.
// No Content-Length is sent: the body has no known end.
func streamHeaders(contentType string) [][2]string {
	return [][2]string{
		{"Content-Type", contentType},
		{"Cache-Control", "no-cache, no-store, must-revalidate"},
		{"Pragma", "no-cache"},
		{"Expires", "0"},
		{"Connection", "close"},
	}
}

// writeStreamHeaders writes the 200 response head shared by GET and HEAD
func writeStreamHeaders(w io.Writer, remoteAddr, contentType string) error {
	headers := streamHeaders(contentType)

	var b strings.Builder
	b.WriteString("HTTP/1.1 200 OK\r\n")
	logged := make(map[string]string, len(headers))
	for _, h := range headers {
		fmt.Fprintf(&b, "%s: %s\r\n", h[0], h[1])
		logged[h[0]] = h[1]
	}
	b.WriteString("\r\n")

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("failed to write response headers: %w", err)
	}
	logging.LogHTTPResponse(remoteAddr, http.StatusOK, logged)
	return nil
}

// writeBadRequest answers anything that is not GET or HEAD on "/"
func writeBadRequest(w io.Writer, remoteAddr string) error {
	body := http.StatusText(http.StatusBadRequest) + "\n"
	response := "HTTP/1.1 400 Bad Request\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		fmt.Sprintf("Content-Length: %d\r\n", len(body)) +
		"Connection: close\r\n" +
		"\r\n" +
		body

	if _, err := io.WriteString(w, response); err != nil {
		return fmt.Errorf("failed to write 400 response: %w", err)
	}
	logging.LogHTTPResponse(remoteAddr, http.StatusBadRequest, nil)
	return nil
}

// readRequest reads one HTTP request from a raw connection. The returned
// reader holds whatever the peer sent after the request head.
func readRequest(conn net.Conn) (*http.Request, *bufio.Reader, error) {
	reader := bufio.NewReader(conn)
	req, err := http.ReadRequest(reader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read HTTP request: %w", err)
	}
	return req, reader, nil
}

// discardBody drains a bounded amount of a rejected request's body so the
// peer sees the response instead of a reset
func discardBody(req *http.Request) {
	if req.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(req.Body, maxDiscardBody))
	_ = req.Body.Close()
}

// logRequestDetails logs all details of an HTTP request
func logRequestDetails(req *http.Request, remoteAddr string) {
	headers := make(map[string]string)
	for key, values := range req.Header {
		headers[key] = strings.Join(values, ", ")
	}

	logging.LogHTTPRequest(remoteAddr, req.Method, req.URL.Path, headers)

	logging.Debug("Stream request details",
		zap.String("remote_addr", remoteAddr),
		zap.String("host", req.Host),
		zap.String("proto", req.Proto),
		zap.String("user_agent", req.Header.Get("User-Agent")),
		zap.String("range", req.Header.Get("Range")),
	)
}
