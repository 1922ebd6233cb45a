package server

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
)

// parseBound reads a range bound; anything non-numeric counts as absent.
func parseBound(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func checkRange(start, end, size int64) error {
	if start < 0 || end > size || start > end || (start == end && size > 0) {
		return fmt.Errorf("%w: %d-%d of %d bytes", ErrInvalidRange, start, end, size)
	}
	return nil
}

// openRange opens path and validates the requested window before anything is
// written, so a bad range never produces a partial body.
func openRange(path, startArg, endArg string) (*rangeReply, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrItemNotFound, filepath.Base(path))
		}
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if st.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%w: %s is a directory", ErrItemNotFound, filepath.Base(path))
	}

	size := st.Size()
	start, end := int64(0), size
	if n, ok := parseBound(startArg); ok {
		start = n
	}
	if n, ok := parseBound(endArg); ok {
		end = n
	}
	if err := checkRange(start, end, size); err != nil {
		f.Close()
		return nil, err
	}
	return &rangeReply{f: f, start: start, end: end, size: size}, nil
}
