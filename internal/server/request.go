package server

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
)

const (
	maxLineBytes = 8 << 10
	maxHeaders   = 100
)

// Request is one parsed request. The body stays on the wire until a handler
// asks for it.
type Request struct {
	Method  string
	Path    string
	Version string
	Headers map[string]string // keys lower-cased

	br *bufio.Reader
}

func (r *Request) Header(name string) string {
	return r.Headers[strings.ToLower(name)]
}

// Target splits the raw path into the path proper and its query values.
func (r *Request) Target() (string, url.Values) {
	p, rawQuery, found := strings.Cut(r.Path, "?")
	if !found {
		return p, url.Values{}
	}
	// ParseQuery keeps the good pairs when one is malformed
	q, _ := url.ParseQuery(rawQuery)
	return p, q
}

// Body reads exactly Content-Length bytes. It returns nil, nil when the
// request declares no body.
func (r *Request) Body(max int64) ([]byte, error) {
	cl := r.Header("Content-Length")
	if cl == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(cl), 10, 64)
	if err != nil || n < 0 {
		return nil, fmt.Errorf("%w: bad content-length %q", ErrMalformedRequest, cl)
	}
	if n > max {
		return nil, fmt.Errorf("body too large: %d > %d bytes", n, max)
	}
	if r.br == nil {
		return nil, fmt.Errorf("%w: no body stream", ErrTruncatedRequest)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r.br, body); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: body ended early", ErrTruncatedRequest)
		}
		return nil, err
	}
	return body, nil
}

// ReadRequest reads a request line and header block. Lines end only at CRLF;
// a lone CR or LF is kept as line content.
func ReadRequest(br *bufio.Reader) (*Request, error) {
	line, err := readLine(br)
	if err != nil {
		return nil, err
	}

	parts := strings.Split(line, " ")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("%w: request line %q", ErrMalformedRequest, line)
	}
	req := &Request{
		Method:  strings.ToUpper(parts[0]),
		Path:    parts[1],
		Version: parts[2],
		Headers: map[string]string{},
		br:      br,
	}
	switch req.Method {
	case "GET", "POST", "HEAD":
	default:
		return nil, fmt.Errorf("%w: method %q", ErrMalformedRequest, parts[0])
	}

	for n := 0; ; n++ {
		line, err := readLine(br)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(line) == "" {
			break
		}
		if n >= maxHeaders {
			return nil, fmt.Errorf("%w: too many headers", ErrMalformedRequest)
		}
		name, value, ok := strings.Cut(line, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: header line %q", ErrMalformedRequest, line)
		}
		req.Headers[strings.ToLower(name)] = strings.TrimSpace(value)
	}
	return req, nil
}

func readLine(br *bufio.Reader) (string, error) {
	var buf []byte
	for {
		b, err := br.ReadByte()
		if err != nil {
			return "", lineErr(err)
		}
		if b == '\r' {
			next, err := br.Peek(1)
			if err != nil {
				return "", lineErr(err)
			}
			if next[0] == '\n' {
				_, _ = br.ReadByte()
				return string(buf), nil
			}
		}
		if len(buf) >= maxLineBytes {
			return "", fmt.Errorf("%w: line longer than %d bytes", ErrMalformedRequest, maxLineBytes)
		}
		buf = append(buf, b)
	}
}

func lineErr(err error) error {
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: input closed mid-line", ErrTruncatedRequest)
	}
	return err
}
