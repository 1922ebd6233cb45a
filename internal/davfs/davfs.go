// Package davfs exposes the ROM directories read-only over WebDAV, for
// loaders that browse a share instead of the /api endpoints.
package davfs

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"

	"golang.org/x/net/webdav"
)

var ErrReadOnly = errors.New("read-only file system")

// ReadOnly wraps a webdav.FileSystem and refuses every mutation.
type ReadOnly struct {
	FS webdav.FileSystem
}

func (r ReadOnly) Mkdir(context.Context, string, os.FileMode) error { return ErrReadOnly }
func (r ReadOnly) RemoveAll(context.Context, string) error          { return ErrReadOnly }
func (r ReadOnly) Rename(context.Context, string, string) error     { return ErrReadOnly }

func (r ReadOnly) OpenFile(ctx context.Context, name string, flag int, perm os.FileMode) (webdav.File, error) {
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE|os.O_TRUNC|os.O_APPEND) != 0 {
		return nil, ErrReadOnly
	}
	return r.FS.OpenFile(ctx, name, flag, perm)
}

func (r ReadOnly) Stat(ctx context.Context, name string) (os.FileInfo, error) {
	return r.FS.Stat(ctx, name)
}

// Handler serves each ROM directory under /<index>/ (or at the root when
// there is only one).
func Handler(dirs []string) http.Handler {
	mux := http.NewServeMux()
	for i, dir := range dirs {
		prefix := ""
		if len(dirs) > 1 {
			prefix = "/" + strconv.Itoa(i)
		}
		h := &webdav.Handler{
			Prefix:     prefix,
			FileSystem: ReadOnly{FS: webdav.Dir(dir)},
			LockSystem: webdav.NewMemLS(),
			Logger: func(r *http.Request, err error) {
				if err != nil {
					log.Printf("dav: %s %s: %v", r.Method, r.URL.Path, err)
				}
			},
		}
		mux.Handle(prefix+"/", readMethods(h))
	}
	return mux
}

// readMethods turns away mutating verbs before webdav sees them.
func readMethods(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch strings.ToUpper(r.Method) {
		case "GET", "HEAD", "OPTIONS", "PROPFIND":
			next.ServeHTTP(w, r)
		default:
			http.Error(w, "read-only", http.StatusMethodNotAllowed)
		}
	})
}
