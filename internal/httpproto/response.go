package httpproto

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/entropycollective/quiverdb/internal/kverrors"
	"github.com/entropycollective/quiverdb/internal/session"
)

// statusNames covers the standard codes plus 450, the RPC layer's
// "Logical Inconsistency" extension.
var statusNames = map[int]string{
	200: "OK",
	204: "No Content",
	206: "Partial Content",
	301: "Moved Permanently",
	304: "Not Modified",
	400: "Bad Request",
	401: "Unauthorized",
	403: "Forbidden",
	404: "Not Found",
	405: "Method Not Allowed",
	411: "Length Required",
	413: "Payload Too Large",
	450: "Logical Inconsistency",
	500: "Internal Server Error",
	501: "Not Implemented",
	503: "Service Unavailable",
}

// StatusName returns the reason phrase for code, or "Unknown" if
// unrecognized.
func StatusName(code int) string {
	if n, ok := statusNames[code]; ok {
		return n
	}
	return "Unknown"
}

// extensionContentTypes is the fixed table used for static-path
// content-type autodetection.
var extensionContentTypes = map[string]string{
	".txt":  "text/plain",
	".html": "text/html",
	".htm":  "text/html",
	".xml":  "application/xml",
	".json": "application/json",
	".css":  "text/css",
	".js":   "application/javascript",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".svg":  "image/svg+xml",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".mp4":  "video/mp4",
	".webm": "video/webm",
}

// DetectContentType maps a served path's extension to a MIME type,
// defaulting to application/octet-stream.
func DetectContentType(path string) string {
	if ct, ok := extensionContentTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// Response is an assembled HTTP response awaiting write-out.
type Response struct {
	Status    int
	Headers   map[string]string
	Body      []byte
	KeepAlive bool
}

// NewResponse builds a response for a non-HEAD request.
func NewResponse(status int, body []byte) *Response {
	return &Response{Status: status, Headers: map[string]string{}, Body: body}
}

// SetHeader validates and sets a response header (lowercased name).
func (r *Response) SetHeader(name, value string) error {
	name = strings.ToLower(name)
	if strings.ContainsAny(name, ": ") {
		return kverrors.New(kverrors.CodeInvalid, "invalid header name")
	}
	if r.Headers == nil {
		r.Headers = map[string]string{}
	}
	r.Headers[name] = value
	return nil
}

// Write assembles and sends r over sess. headMethod, or a 304 status,
// suppresses the body per HTTP semantics.
func (r *Response) Write(sess *session.Session, headMethod bool) error {
	var b strings.Builder
	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", r.Status, StatusName(r.Status))
	fmt.Fprintf(&b, "date: %s\r\n", time.Now().UTC().Format(http1Date))
	if !r.KeepAlive {
		b.WriteString("connection: close\r\n")
	}
	omitBody := headMethod || r.Status == 304
	if !omitBody {
		fmt.Fprintf(&b, "content-length: %d\r\n", len(r.Body))
	}

	names := make([]string, 0, len(r.Headers))
	for k := range r.Headers {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		fmt.Fprintf(&b, "%s: %s\r\n", k, r.Headers[k])
	}
	b.WriteString("\r\n")

	if !omitBody {
		b.Write(r.Body)
	}
	return sess.Send([]byte(b.String()))
}

const http1Date = "Mon, 02 Jan 2006 15:04:05 GMT"
