// Package rpc implements the /rpc/ procedure-call layer: input
// assembly from query/form/TSV bodies, the colenc value codec, the
// WAIT/SIGNAL condition-variable parameters, and return-value to
// HTTP-status mapping.
package rpc

import (
	"bytes"
	"encoding/base64"
	"io"
	"mime/quotedprintable"
	"net/url"
	"strings"
)

// ColEnc names the TSV column encoding: base64, quoted-printable, or
// URL-encoded. The same encoding applies symmetrically to keys and
// values on parse and emit.
type ColEnc byte

const (
	ColEncNone ColEnc = 0
	ColEncB64  ColEnc = 'B'
	ColEncQP   ColEnc = 'Q'
	ColEncURL  ColEnc = 'U'
)

// ParseColEnc maps the TSV content-type "colenc" attribute value.
func ParseColEnc(s string) ColEnc {
	switch strings.ToUpper(s) {
	case "B":
		return ColEncB64
	case "Q":
		return ColEncQP
	case "U":
		return ColEncURL
	default:
		return ColEncNone
	}
}

func decodeField(s string, enc ColEnc) (string, error) {
	switch enc {
	case ColEncB64:
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return "", err
		}
		return string(b), nil
	case ColEncQP:
		b, err := io.ReadAll(quotedprintable.NewReader(strings.NewReader(s)))
		if err != nil {
			return "", err
		}
		return string(b), nil
	case ColEncURL:
		return url.QueryUnescape(s)
	default:
		return s, nil
	}
}

func encodeField(s string, enc ColEnc) string {
	switch enc {
	case ColEncB64:
		return base64.StdEncoding.EncodeToString([]byte(s))
	case ColEncQP:
		var buf bytes.Buffer
		w := quotedprintable.NewWriter(&buf)
		w.Write([]byte(s))
		w.Close()
		return buf.String()
	case ColEncURL:
		return url.QueryEscape(s)
	default:
		return s
	}
}

// chooseOutputEncoding scans every value for bytes outside printable
// ASCII, preferring base64 when a control byte is present and
// URL-encoding otherwise; an all-printable-ASCII value set needs no
// encoding at all.
func chooseOutputEncoding(values map[string]string) ColEnc {
	sawNonASCII := false
	sawControl := false
	for _, v := range values {
		for i := 0; i < len(v); i++ {
			b := v[i]
			if b < 0x20 && b != '\t' {
				sawControl = true
			}
			if b < 0x20 || b > 0x7e {
				sawNonASCII = true
			}
		}
	}
	switch {
	case sawControl:
		return ColEncB64
	case sawNonASCII:
		return ColEncURL
	default:
		return ColEncNone
	}
}
