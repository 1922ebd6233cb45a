package server

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"gameshelf/internal/shared"
)

const (
	serverName = "gameshelf"

	typeJSON   = "application/json"
	typeHTML   = "text/html; charset=utf-8"
	typeBinary = "application/octet-stream"

	streamChunk = 64 << 10
)

type responseWriter struct {
	w   *bufio.Writer
	now func() time.Time
}

func newResponseWriter(w io.Writer) *responseWriter {
	return &responseWriter{w: bufio.NewWriter(w), now: time.Now}
}

// writeHead emits the status line and the fixed header block. extra headers
// go after Content-Length.
func (rw *responseWriter) writeHead(status, contentType string, length int64, extra ...string) error {
	fmt.Fprintf(rw.w, "HTTP/1.1 %s\r\n", status)
	fmt.Fprintf(rw.w, "Date: %s\r\n", rw.now().UTC().Format(http.TimeFormat))
	fmt.Fprintf(rw.w, "Server: %s\r\n", serverName)
	fmt.Fprintf(rw.w, "Accept-Ranges: bytes\r\n")
	fmt.Fprintf(rw.w, "Content-Type: %s\r\n", contentType)
	fmt.Fprintf(rw.w, "Content-Length: %d\r\n", length)
	for _, h := range extra {
		fmt.Fprintf(rw.w, "%s\r\n", h)
	}
	_, err := rw.w.WriteString("Connection: close\r\n\r\n")
	return err
}

func (rw *responseWriter) flush() error {
	return rw.w.Flush()
}

// reply is the success side of an action outcome.
type reply interface {
	write(rw *responseWriter) error
}

type jsonReply struct {
	v any
}

func (r jsonReply) write(rw *responseWriter) error {
	b, err := json.Marshal(r.v)
	if err != nil {
		b, _ = json.Marshal(shared.Envelope{Success: false, Result: "encode response: " + err.Error()})
	}
	if err := rw.writeHead("200 OK", typeJSON, int64(len(b))); err != nil {
		return err
	}
	_, err = rw.w.Write(b)
	return err
}

type htmlReply struct {
	body []byte
}

func (r htmlReply) write(rw *responseWriter) error {
	if err := rw.writeHead("200 OK", typeHTML, int64(len(r.body))); err != nil {
		return err
	}
	_, err := rw.w.Write(r.body)
	return err
}

// rangeReply owns the open file and closes it once written.
type rangeReply struct {
	f          *os.File
	start, end int64
	size       int64
}

func (r *rangeReply) contentRange() string {
	if r.size == 0 {
		return "Content-Range: bytes */0"
	}
	return fmt.Sprintf("Content-Range: bytes %d-%d/%d", r.start, r.end-1, r.size)
}

func (r *rangeReply) write(rw *responseWriter) error {
	defer r.f.Close()

	want := r.end - r.start
	if err := rw.writeHead("206 Partial Content", typeBinary, want, r.contentRange()); err != nil {
		return err
	}
	// hide bufio's ReadFrom so the copy goes through the fixed chunk buffer
	dst := struct{ io.Writer }{rw.w}
	n, err := io.CopyBuffer(dst, io.NewSectionReader(r.f, r.start, want), make([]byte, streamChunk))
	if err != nil {
		return err
	}
	if n != want {
		return fmt.Errorf("short body: wrote %d of %d bytes", n, want)
	}
	return nil
}

func success(v any) reply {
	return jsonReply{v: shared.Envelope{Success: true, Result: v}}
}

func failure(err error) reply {
	return jsonReply{v: shared.Envelope{Success: false, Result: err.Error()}}
}
