// Package httpproto implements the HTTP/1.x request/response framing
// that the threaded server speaks before handing off to the RPC or
// static-file layer: request-line/header parsing, chunked and
// content-length body intake, and response assembly.
package httpproto

import (
	"strconv"
	"strings"

	"github.com/entropycollective/quiverdb/internal/kverrors"
	"github.com/entropycollective/quiverdb/internal/session"
)

// Method is one of the recognized HTTP request methods.
type Method string

const (
	MethodGet     Method = "GET"
	MethodHead    Method = "HEAD"
	MethodPost    Method = "POST"
	MethodPut     Method = "PUT"
	MethodDelete  Method = "DELETE"
	MethodUnknown Method = "UNKNOWN"
)

// maxLineLen bounds the request line and each header line.
const maxLineLen = 8192

// maxBodyLen rejects a content-length body larger than this.
const maxBodyLen = 256 << 20

// Request is one parsed HTTP request.
type Request struct {
	Method     Method
	Path       string
	Query      string
	Version    string
	Headers    map[string]string // lowercased names, last write wins
	Body       []byte
	KeepAlive  bool
}

// Header returns a request header by lowercased name.
func (r *Request) Header(name string) string {
	return r.Headers[strings.ToLower(name)]
}

// ParseRequest reads one request line, its headers, and (for
// POST/PUT/UNKNOWN) its body from sess.
func ParseRequest(sess *session.Session) (*Request, error) {
	line, err := sess.ReceiveLine(maxLineLen)
	if err != nil {
		return nil, err
	}
	method, pathQuery, version, err := parseRequestLine(string(line))
	if err != nil {
		return nil, err
	}
	path, query, _ := strings.Cut(pathQuery, "?")

	headers, err := parseHeaders(sess)
	if err != nil {
		return nil, err
	}

	req := &Request{
		Method:  method,
		Path:    path,
		Query:   query,
		Version: version,
		Headers: headers,
	}
	req.KeepAlive = defaultKeepAlive(version)
	if conn := req.Header("connection"); conn != "" {
		switch strings.ToLower(conn) {
		case "keep-alive":
			req.KeepAlive = true
		case "close":
			req.KeepAlive = false
		}
	}

	switch method {
	case MethodPost, MethodPut, MethodUnknown:
		body, err := readBody(sess, headers)
		if err != nil {
			return nil, err
		}
		req.Body = body
	}
	return req, nil
}

func defaultKeepAlive(version string) bool {
	return version == "HTTP/1.1"
}

func parseRequestLine(line string) (Method, string, string, error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 {
		return "", "", "", kverrors.New(kverrors.CodeInvalid, "malformed request line")
	}
	return normalizeMethod(parts[0]), parts[1], parts[2], nil
}

func normalizeMethod(m string) Method {
	switch strings.ToUpper(m) {
	case "GET":
		return MethodGet
	case "HEAD":
		return MethodHead
	case "POST":
		return MethodPost
	case "PUT":
		return MethodPut
	case "DELETE":
		return MethodDelete
	default:
		return MethodUnknown
	}
}

func parseHeaders(sess *session.Session) (map[string]string, error) {
	headers := make(map[string]string)
	for {
		line, err := sess.ReceiveLine(maxLineLen)
		if err != nil {
			return nil, err
		}
		if len(line) == 0 {
			return headers, nil
		}
		name, value, ok := strings.Cut(string(line), ":")
		if !ok {
			return nil, kverrors.New(kverrors.CodeInvalid, "malformed header line")
		}
		headers[strings.ToLower(strings.TrimSpace(name))] = strings.TrimSpace(value)
	}
}

func readBody(sess *session.Session, headers map[string]string) ([]byte, error) {
	if strings.EqualFold(headers["transfer-encoding"], "chunked") {
		return readChunkedBody(sess)
	}
	if cl, ok := headers["content-length"]; ok {
		n, err := strconv.Atoi(cl)
		if err != nil || n < 0 {
			return nil, kverrors.New(kverrors.CodeInvalid, "malformed content-length")
		}
		if n > maxBodyLen {
			return nil, kverrors.New(kverrors.CodeCapacityTooLarge, "body too large")
		}
		if n == 0 {
			return nil, nil
		}
		return sess.Receive(n)
	}
	return nil, nil
}

func readChunkedBody(sess *session.Session) ([]byte, error) {
	var body []byte
	for {
		sizeLine, err := sess.ReceiveLine(32)
		if err != nil {
			return nil, err
		}
		size, err := strconv.ParseInt(strings.TrimSpace(string(sizeLine)), 16, 64)
		if err != nil || size < 0 {
			return nil, kverrors.New(kverrors.CodeInvalid, "malformed chunk size")
		}
		if size == 0 {
			// Trailing CRLF after the terminating zero-size chunk.
			if _, err := sess.ReceiveLine(2); err != nil {
				return nil, err
			}
			return body, nil
		}
		if int64(len(body))+size > maxBodyLen {
			return nil, kverrors.New(kverrors.CodeCapacityTooLarge, "chunked body too large")
		}
		chunk, err := sess.Receive(int(size))
		if err != nil {
			return nil, err
		}
		body = append(body, chunk...)
		if _, err := sess.ReceiveLine(2); err != nil { // trailing CRLF
			return nil, err
		}
	}
}
