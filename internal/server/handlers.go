package server

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"regexp"

	"gameshelf/internal/library"
	"gameshelf/internal/shared"
	"gameshelf/internal/titledb"
)

// Version is stamped at build time with -ldflags.
var Version = "dev"

const maxUploadBytes = 2 << 20

var serialPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Queue records install and preload requests.
type Queue interface {
	QueueJob(ctx context.Context, titleID, kind string) (shared.QueueJob, error)
	ListQueue(ctx context.Context) ([]shared.QueueJob, error)
}

// API holds the collaborators the actions talk to. A nil collaborator makes
// its actions answer ErrNotImplemented.
type API struct {
	Library  library.Library
	Scanner  library.Writer
	Queue    Queue
	Metadata titledb.MetadataStore
	TitleDB  *titledb.Client

	RomDirs  []string
	StateDir string
	UserName string
}

func (a *API) download(ctx context.Context, c *call) (reply, error) {
	id, err := c.require(0, "title id")
	if err != nil {
		return nil, err
	}
	it, err := a.Library.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if it == nil || !it.Downloaded() {
		return nil, fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}

	start, end := c.arg(1), c.arg(2)
	if start == "" {
		start = c.query.Get("start")
	}
	if end == "" {
		end = c.query.Get("end")
	}
	return openRange(it.RomPath, start, end)
}

func (a *API) files(ctx context.Context, _ *call) (reply, error) {
	items, err := a.Library.Items(ctx)
	if err != nil {
		return nil, err
	}
	resp := shared.FilesResponse{Files: []shared.FileEntry{}}
	for _, f := range downloadedFiles(items) {
		resp.Files = append(resp.Files, shared.FileEntry{URL: downloadURL(f), Size: f.SizeBytes()})
	}
	return jsonReply{v: resp}, nil
}

func (a *API) info(ctx context.Context, c *call) (reply, error) {
	id, err := c.require(0, "title id")
	if err != nil {
		return nil, err
	}
	it, err := a.Library.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if it == nil {
		return nil, fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	return jsonReply{v: titleInfo(it)}, nil
}

func (a *API) install(ctx context.Context, c *call) (reply, error) {
	return a.enqueue(ctx, c, "install")
}

func (a *API) preload(ctx context.Context, c *call) (reply, error) {
	return a.enqueue(ctx, c, "preload")
}

func (a *API) enqueue(ctx context.Context, c *call, kind string) (reply, error) {
	id, err := c.require(0, "title id")
	if err != nil {
		return nil, err
	}
	if a.Queue == nil {
		return nil, fmt.Errorf("%w: %s queue", ErrNotImplemented, kind)
	}
	it, err := a.Library.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if it == nil {
		return nil, fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	job, err := a.Queue.QueueJob(ctx, it.TitleID, kind)
	if err != nil {
		return nil, err
	}
	log.Printf("queue: %s job=%s title=%s", kind, job.JobID, job.TitleID)
	return success(job), nil
}

func (a *API) organize(_ context.Context, _ *call) (reply, error) {
	return nil, fmt.Errorf("%w: organize", ErrNotImplemented)
}

func (a *API) queue(ctx context.Context, _ *call) (reply, error) {
	if a.Queue == nil {
		return nil, fmt.Errorf("%w: queue", ErrNotImplemented)
	}
	jobs, err := a.Queue.ListQueue(ctx)
	if err != nil {
		return nil, err
	}
	return jsonReply{v: jobs}, nil
}

func (a *API) scan(ctx context.Context, _ *call) (reply, error) {
	if a.Scanner == nil {
		return nil, fmt.Errorf("%w: scan", ErrNotImplemented)
	}
	res, err := library.Scan(ctx, a.Scanner, a.RomDirs)
	if err != nil {
		return nil, err
	}
	return success(res), nil
}

func (a *API) search(ctx context.Context, c *call) (reply, error) {
	items, err := a.Library.Items(ctx)
	if err != nil {
		return nil, err
	}
	return jsonReply{v: Search(items, ParseFilters(c.query))}, nil
}

// setInstalledApps stores the device's installed-apps report verbatim.
func (a *API) setInstalledApps(_ context.Context, c *call) (reply, error) {
	serial, err := c.require(0, "serial")
	if err != nil {
		return nil, err
	}
	if !serialPattern.MatchString(serial) {
		return nil, fmt.Errorf("invalid serial %q", serial)
	}
	body, err := c.req.Body(maxUploadBytes)
	if err != nil {
		return nil, err
	}
	if body == nil {
		return nil, fmt.Errorf("%w: request body", ErrMissingArgument)
	}

	dir := filepath.Join(a.StateDir, "installed")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, serial+".json")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return nil, err
	}
	log.Printf("installed apps: serial=%s bytes=%d", serial, len(body))
	return success(fmt.Sprintf("saved %d bytes", len(body))), nil
}

func (a *API) titles(ctx context.Context, _ *call) (reply, error) {
	items, err := a.Library.Items(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]shared.TitleSummary, len(items))
	for i := range items {
		it := &items[i]
		out[it.TitleID] = shared.TitleSummary{
			Name:      it.Name,
			Region:    it.Region,
			Publisher: it.Publisher,
			Size:      it.SizeBytes(),
			IsDLC:     it.IsDLC,
			IsDemo:    it.IsDemo,
		}
	}
	return jsonReply{v: out}, nil
}

func (a *API) titleUpdates(ctx context.Context, _ *call) (reply, error) {
	items, err := a.Library.Items(ctx)
	if err != nil {
		return nil, err
	}
	out := map[string]int{}
	for _, it := range items {
		for _, u := range it.Updates {
			if u.Version >= out[it.TitleID] {
				out[it.TitleID] = u.Version
			}
		}
	}
	return jsonReply{v: out}, nil
}

func (a *API) updateDB(ctx context.Context, _ *call) (reply, error) {
	if a.TitleDB == nil || a.Metadata == nil {
		return nil, fmt.Errorf("%w: titledb not configured", ErrNotImplemented)
	}
	n, err := a.TitleDB.Refresh(ctx, a.Metadata)
	if err != nil {
		return nil, err
	}
	log.Printf("updatedb: %d titles updated", n)
	return success(map[string]int{"updated": n}), nil
}

func (a *API) user(_ context.Context, _ *call) (reply, error) {
	return jsonReply{v: shared.UserInfo{Name: a.UserName, Server: serverName, Version: Version}}, nil
}

// downloadedFiles lists every item with a file on disk: titles in library
// order, each followed by the latest version of each of its updates.
func downloadedFiles(items []library.Item) []*library.Item {
	var out []*library.Item
	for i := range items {
		it := &items[i]
		if it.Downloaded() {
			out = append(out, it)
		}
		latest := map[string]int{}
		for j := range it.Updates {
			latest[it.Updates[j].TitleID] = j
		}
		for j := range it.Updates {
			u := &it.Updates[j]
			if latest[u.TitleID] == j && u.Downloaded() {
				out = append(out, u)
			}
		}
	}
	return out
}

// downloadURL carries the file name in the fragment, where the loader picks
// it up for display.
func downloadURL(it *library.Item) string {
	return "/api/download/" + url.PathEscape(it.TitleID) + "#" + url.PathEscape(it.FileName())
}

func titleInfo(it *library.Item) shared.TitleInfo {
	ti := shared.TitleInfo{
		ID:        it.TitleID,
		Name:      it.Name,
		Region:    it.Region,
		Publisher: it.Publisher,
		Size:      it.SizeBytes(),
		MTime:     it.MTime(),
		Version:   it.Version,
		IsDLC:     it.IsDLC,
		IsDemo:    it.IsDemo,
		File:      it.FileName(),
	}
	for i := range it.Updates {
		ti.Updates = append(ti.Updates, titleInfo(&it.Updates[i]))
	}
	return ti
}
