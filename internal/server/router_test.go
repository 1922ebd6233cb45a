package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"gameshelf/internal/library"
	"gameshelf/internal/shared"
	"gameshelf/internal/titledb"
)

type testResponse struct {
	*http.Response
	body []byte
}

func readResponse(t *testing.T, raw []byte) *testResponse {
	t.Helper()
	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(raw)), nil)
	if err != nil {
		t.Fatalf("ReadResponse: %v\n%s", err, raw)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return &testResponse{Response: resp, body: body}
}

func doRoute(t *testing.T, a *API, raw string) *testResponse {
	t.Helper()
	req, err := parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	var buf bytes.Buffer
	rw := newResponseWriter(&buf)
	if err := a.Route(context.Background(), req).write(rw); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := rw.flush(); err != nil {
		t.Fatal(err)
	}
	return readResponse(t, buf.Bytes())
}

func get(t *testing.T, a *API, path string) *testResponse {
	t.Helper()
	return doRoute(t, a, "GET "+path+" HTTP/1.1\r\nHost: test\r\n\r\n")
}

func envelope(t *testing.T, r *testResponse) shared.Envelope {
	t.Helper()
	var env shared.Envelope
	if err := json.Unmarshal(r.body, &env); err != nil {
		t.Fatalf("not an envelope: %v: %s", err, r.body)
	}
	return env
}

func wantError(t *testing.T, r *testResponse, substr string) {
	t.Helper()
	if r.StatusCode != 200 {
		t.Fatalf("status = %d, errors keep 200 framing", r.StatusCode)
	}
	env := envelope(t, r)
	msg, _ := env.Result.(string)
	if env.Success || !strings.Contains(msg, substr) {
		t.Fatalf("got %s, want error containing %q", r.body, substr)
	}
}

type memQueue struct {
	jobs []shared.QueueJob
}

func (q *memQueue) QueueJob(_ context.Context, titleID, kind string) (shared.QueueJob, error) {
	j := shared.QueueJob{JobID: "job-" + kind, TitleID: titleID, Kind: kind, Status: "queued"}
	q.jobs = append(q.jobs, j)
	return j, nil
}

func (q *memQueue) ListQueue(context.Context) ([]shared.QueueJob, error) {
	return q.jobs, nil
}

func testAPI(t *testing.T) (*API, []byte) {
	t.Helper()
	path, data := writeFixture(t, 1000)
	items := sampleItems()
	items[0].RomPath = path
	upPath := filepath.Join(filepath.Dir(path), "Game A Update [0100000000010800][v65536].nsp")
	if err := os.WriteFile(upPath, []byte("patch"), 0o644); err != nil {
		t.Fatal(err)
	}
	items[0].Updates[0].RomPath = upPath
	items[0].Updates[0].Version = 65536

	store := library.NewMemStore(items...)
	return &API{
		Library:  store,
		Scanner:  store,
		Queue:    &memQueue{},
		StateDir: t.TempDir(),
		UserName: "tester",
	}, data
}

func TestDownloadScenario(t *testing.T) {
	a, data := testAPI(t)
	r := get(t, a, "/api/download/0100000000010000/100/200")
	if r.StatusCode != 206 {
		t.Fatalf("status = %d", r.StatusCode)
	}
	if got := r.Header.Get("Content-Range"); got != "bytes 100-199/1000" {
		t.Fatalf("Content-Range = %q", got)
	}
	if r.ContentLength != 100 || !bytes.Equal(r.body, data[100:200]) {
		t.Fatalf("body length %d, Content-Length %d", len(r.body), r.ContentLength)
	}
	if r.Header.Get("Content-Type") != typeBinary || r.Header.Get("Connection") != "close" {
		t.Fatalf("headers = %v", r.Header)
	}
}

func TestDownloadVariants(t *testing.T) {
	a, data := testAPI(t)

	r := get(t, a, "/api/download/0100000000010000?start=10&end=20")
	if !bytes.Equal(r.body, data[10:20]) {
		t.Fatalf("query range body = %v", r.body)
	}
	r = get(t, a, "//api//download/0100000000010000/")
	if len(r.body) != 1000 || r.Header.Get("Content-Range") != "bytes 0-999/1000" {
		t.Fatalf("full download: %d bytes, %q", len(r.body), r.Header.Get("Content-Range"))
	}
	r = get(t, a, "/api/download/0100000000010800")
	if string(r.body) != "patch" {
		t.Fatalf("update download = %q", r.body)
	}

	wantError(t, get(t, a, "/api/download/0100000000010000/500/2000"), "invalid range")
	wantError(t, get(t, a, "/api/download/0100000000010000/300/200"), "invalid range")
	wantError(t, get(t, a, "/api/download/01000000000FF000"), "item not found")
	wantError(t, get(t, a, "/api/download/0100000000020000"), "item not found")
	wantError(t, get(t, a, "/api/download"), "missing argument")
}

func TestUnknownRoutes(t *testing.T) {
	a, _ := testAPI(t)
	wantError(t, get(t, a, "/api/unknown"), "unknown action: unknown")
	wantError(t, get(t, a, "/api/Search"), "unknown action")
	wantError(t, get(t, a, "/api"), "no route")
	wantError(t, get(t, a, "/other/search"), "no route")
}

func TestMethodsShareRoutes(t *testing.T) {
	a, _ := testAPI(t)
	for _, m := range []string{"GET", "HEAD", "POST"} {
		r := doRoute(t, a, m+" /api/search?update=false HTTP/1.1\r\n\r\n")
		var entries []shared.SearchEntry
		if err := json.Unmarshal(r.body, &entries); err != nil {
			t.Fatalf("%s: %v: %s", m, err, r.body)
		}
		if len(entries) != 4 {
			t.Fatalf("%s: %d entries", m, len(entries))
		}
	}
}

func TestIndex(t *testing.T) {
	a, _ := testAPI(t)
	r := get(t, a, "/")
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "text/html") {
		t.Fatalf("Content-Type = %q", r.Header.Get("Content-Type"))
	}
	body := string(r.body)
	if !strings.Contains(body, `href="/api/download/0100000000010000#Game%20A%20%5B0100000000010000%5D.nsp"`) {
		t.Fatalf("missing base link:\n%s", body)
	}
	if !strings.Contains(body, "/api/download/0100000000010800#") {
		t.Fatalf("missing update link:\n%s", body)
	}
	if strings.Contains(body, "0100000000020000") {
		t.Fatalf("title without a file listed:\n%s", body)
	}
}

func TestCatalogActions(t *testing.T) {
	a, _ := testAPI(t)

	var files shared.FilesResponse
	if err := json.Unmarshal(get(t, a, "/api/files").body, &files); err != nil {
		t.Fatal(err)
	}
	if len(files.Files) != 2 || files.Files[0].Size != 1000 {
		t.Fatalf("files = %+v", files)
	}

	var info shared.TitleInfo
	if err := json.Unmarshal(get(t, a, "/api/info/0100000000010000").body, &info); err != nil {
		t.Fatal(err)
	}
	if info.Name != "Game A" || len(info.Updates) != 1 || info.MTime != 1700000000 {
		t.Fatalf("info = %+v", info)
	}
	wantError(t, get(t, a, "/api/info"), "missing argument")
	wantError(t, get(t, a, "/api/info/nope"), "item not found")

	var titles map[string]shared.TitleSummary
	if err := json.Unmarshal(get(t, a, "/api/titles").body, &titles); err != nil {
		t.Fatal(err)
	}
	if len(titles) != 4 || !titles["0100000000031001"].IsDLC {
		t.Fatalf("titles = %+v", titles)
	}

	var ups map[string]int
	if err := json.Unmarshal(get(t, a, "/api/titleupdates").body, &ups); err != nil {
		t.Fatal(err)
	}
	if ups["0100000000010000"] != 65536 || len(ups) != 2 {
		t.Fatalf("titleupdates = %v", ups)
	}

	var user shared.UserInfo
	if err := json.Unmarshal(get(t, a, "/api/user").body, &user); err != nil {
		t.Fatal(err)
	}
	if user.Name != "tester" || user.Server != serverName {
		t.Fatalf("user = %+v", user)
	}
}

func TestQueueActions(t *testing.T) {
	a, _ := testAPI(t)

	env := envelope(t, get(t, a, "/api/install/0100000000010000"))
	if !env.Success {
		t.Fatalf("install = %+v", env)
	}
	if env := envelope(t, get(t, a, "/api/preload/0100000000020000")); !env.Success {
		t.Fatalf("preload = %+v", env)
	}
	wantError(t, get(t, a, "/api/install/nope"), "item not found")
	wantError(t, get(t, a, "/api/preload"), "missing argument")

	var jobs []shared.QueueJob
	if err := json.Unmarshal(get(t, a, "/api/queue").body, &jobs); err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 2 || jobs[0].Kind != "install" || jobs[1].TitleID != "0100000000020000" {
		t.Fatalf("queue = %+v", jobs)
	}

	a.Queue = nil
	wantError(t, get(t, a, "/api/queue"), "not implemented")
	wantError(t, get(t, a, "/api/install/0100000000010000"), "not implemented")
}

func TestNotImplemented(t *testing.T) {
	a, _ := testAPI(t)
	wantError(t, get(t, a, "/api/organize"), "not implemented")
	wantError(t, get(t, a, "/api/updatedb"), "not implemented")
	a.Scanner = nil
	wantError(t, get(t, a, "/api/scan"), "not implemented")
}

type metaRecorder struct {
	n int
}

func (m *metaRecorder) ApplyMetadata(_ context.Context, entries []library.Metadata) (int, error) {
	m.n = len(entries)
	return len(entries), nil
}

func TestUpdateDB(t *testing.T) {
	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"1": {"id": "0100000000010000", "name": "Game A"}}`))
	}))
	defer feed.Close()

	a, _ := testAPI(t)
	rec := &metaRecorder{}
	a.Metadata = rec
	a.TitleDB = titledb.New(titledb.Config{URL: feed.URL})

	env := envelope(t, get(t, a, "/api/updatedb"))
	if !env.Success || rec.n != 1 {
		t.Fatalf("updatedb = %+v, applied %d", env, rec.n)
	}
}

func TestScanAction(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "New Game [0100000000090000][v0].nsp"), []byte("rom"), 0o644); err != nil {
		t.Fatal(err)
	}
	a, _ := testAPI(t)
	a.RomDirs = []string{dir}

	env := envelope(t, get(t, a, "/api/scan"))
	if !env.Success {
		t.Fatalf("scan = %s", env.Result)
	}
	r := get(t, a, "/api/download/0100000000090000")
	if string(r.body) != "rom" {
		t.Fatalf("scanned title not downloadable: %q", r.body)
	}

	if err := os.Remove(filepath.Join(dir, "New Game [0100000000090000][v0].nsp")); err != nil {
		t.Fatal(err)
	}
	if env := envelope(t, get(t, a, "/api/scan")); !env.Success {
		t.Fatalf("rescan = %s", env.Result)
	}
	if body := string(get(t, a, "/api/files").body); strings.Contains(body, "0100000000090000") {
		t.Fatalf("removed file still listed: %s", body)
	}
	if body := string(get(t, a, "/").body); strings.Contains(body, "0100000000090000") {
		t.Fatalf("removed file still on index: %s", body)
	}
	wantError(t, get(t, a, "/api/download/0100000000090000"), "item not found")
}

func TestSetInstalledApps(t *testing.T) {
	a, _ := testAPI(t)
	payload := `{"apps":["0100000000010000"]}`
	r := doRoute(t, a, "POST /api/tinfoilsetinstalledapps/ABC123 HTTP/1.1\r\nContent-Length: "+
		strconv.Itoa(len(payload))+"\r\n\r\n"+payload)
	if env := envelope(t, r); !env.Success {
		t.Fatalf("upload = %s", r.body)
	}
	got, err := os.ReadFile(filepath.Join(a.StateDir, "installed", "ABC123.json"))
	if err != nil || string(got) != payload {
		t.Fatalf("stored = %q, %v", got, err)
	}

	wantError(t, doRoute(t, a, "POST /api/tinfoilsetinstalledapps/ABC123 HTTP/1.1\r\n\r\n"), "missing argument")
	wantError(t, doRoute(t, a, "POST /api/tinfoilsetinstalledapps/..%2F..%2Fetc HTTP/1.1\r\nContent-Length: 2\r\n\r\n{}"), "invalid serial")
	wantError(t, get(t, a, "/api/tinfoilsetinstalledapps"), "missing argument")
}
