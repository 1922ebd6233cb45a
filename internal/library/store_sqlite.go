package library

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"gameshelf/internal/shared"

	"github.com/google/uuid"
)

type SQLiteStore struct {
	DB *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{DB: db}
}

// Metadata is catalog information coming from the titledb feed. Nil fields
// leave the stored value alone.
type Metadata struct {
	TitleID   string
	Name      string
	Region    *string
	Publisher *string
	IsDemo    *bool
}

func newUUID() string {
	return uuid.NewString()
}

func (s *SQLiteStore) UpsertTitle(ctx context.Context, it Item) error {
	// Name, region and publisher may have come from titledb; a rescan only
	// refreshes what the file itself tells us.
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO titles (id, name, region, publisher, size, added_at, rom_path, version, is_dlc, is_demo)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			region=COALESCE(titles.region, excluded.region),
			publisher=COALESCE(titles.publisher, excluded.publisher),
			size=excluded.size,
			added_at=excluded.added_at,
			rom_path=excluded.rom_path,
			version=excluded.version,
			is_dlc=excluded.is_dlc,
			is_demo=excluded.is_demo`,
		it.TitleID, it.Name, nullString(it.Region), nullString(it.Publisher), nullInt(it.Size),
		nullTime(it.Added), it.RomPath, it.Version, it.IsDLC, it.IsDemo,
	)
	return err
}

func (s *SQLiteStore) UpsertUpdate(ctx context.Context, baseID string, it Item) (bool, error) {
	var known bool
	if err := s.DB.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM titles WHERE id = ?)`, baseID).Scan(&known); err != nil {
		return false, err
	}
	if !known {
		return false, nil
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT OR REPLACE INTO updates (id, version, base_id, name, region, size, added_at, rom_path)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		it.TitleID, it.Version, baseID, it.Name, nullString(it.Region), nullInt(it.Size),
		nullTime(it.Added), it.RomPath,
	)
	return err == nil, err
}

// Prune clears rom_path on titles and deletes update rows whose files were
// not seen under roots.
func (s *SQLiteStore) Prune(ctx context.Context, roots []string, seen map[string]bool) (int, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	type row struct {
		id      string
		version int
		path    string
	}
	collect := func(query string, withVersion bool) ([]row, error) {
		rows, err := tx.QueryContext(ctx, query)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		var out []row
		for rows.Next() {
			var r row
			if withVersion {
				err = rows.Scan(&r.id, &r.version, &r.path)
			} else {
				err = rows.Scan(&r.id, &r.path)
			}
			if err != nil {
				return nil, err
			}
			if gone(r.path, roots, seen) {
				out = append(out, r)
			}
		}
		return out, rows.Err()
	}

	titles, err := collect(`SELECT id, rom_path FROM titles WHERE rom_path != ''`, false)
	if err != nil {
		return 0, err
	}
	updates, err := collect(`SELECT id, version, rom_path FROM updates`, true)
	if err != nil {
		return 0, err
	}

	for _, r := range titles {
		if _, err := tx.ExecContext(ctx, `UPDATE titles SET rom_path = '' WHERE id = ?`, r.id); err != nil {
			return 0, err
		}
	}
	for _, r := range updates {
		if _, err := tx.ExecContext(ctx, `DELETE FROM updates WHERE id = ? AND version = ?`, r.id, r.version); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(titles) + len(updates), nil
}

func (s *SQLiteStore) Items(ctx context.Context) ([]Item, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, name, region, publisher, size, added_at, rom_path, version, is_dlc, is_demo
		 FROM titles ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	index := map[string]int{}
	for rows.Next() {
		it, err := scanTitle(rows)
		if err != nil {
			return nil, err
		}
		index[it.TitleID] = len(items)
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	urows, err := s.DB.QueryContext(ctx,
		`SELECT id, version, base_id, name, region, size, added_at, rom_path
		 FROM updates ORDER BY base_id, version`)
	if err != nil {
		return nil, err
	}
	defer urows.Close()

	for urows.Next() {
		up, baseID, err := scanUpdate(urows)
		if err != nil {
			return nil, err
		}
		i, ok := index[baseID]
		if !ok {
			continue // orphan update, base not scanned yet
		}
		if up.Region == nil {
			up.Region = items[i].Region
		}
		items[i].Updates = append(items[i].Updates, up)
	}
	return items, urows.Err()
}

func (s *SQLiteStore) Get(ctx context.Context, titleID string) (*Item, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, name, region, publisher, size, added_at, rom_path, version, is_dlc, is_demo
		 FROM titles WHERE id = ?`, titleID)
	it, err := scanTitle(row)
	switch {
	case err == nil:
		ups, err := s.updatesFor(ctx, it.TitleID, it.Region)
		if err != nil {
			return nil, err
		}
		it.Updates = ups
		return &it, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, err
	}

	urow := s.DB.QueryRowContext(ctx,
		`SELECT id, version, base_id, name, region, size, added_at, rom_path
		 FROM updates WHERE id = ? ORDER BY version DESC LIMIT 1`, titleID)
	up, _, err := scanUpdate(urow)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &up, nil
}

func (s *SQLiteStore) updatesFor(ctx context.Context, baseID string, region *string) ([]Item, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, version, base_id, name, region, size, added_at, rom_path
		 FROM updates WHERE base_id = ? ORDER BY version`, baseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		up, _, err := scanUpdate(rows)
		if err != nil {
			return nil, err
		}
		if up.Region == nil {
			up.Region = region
		}
		out = append(out, up)
	}
	return out, rows.Err()
}

// ApplyMetadata copies titledb fields onto titles already in the catalog and
// returns how many rows it touched. Unknown ids are ignored.
func (s *SQLiteStore) ApplyMetadata(ctx context.Context, entries []Metadata) (int, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`UPDATE titles SET
			name=COALESCE(NULLIF(?, ''), name),
			region=COALESCE(?, region),
			publisher=COALESCE(?, publisher),
			is_demo=COALESCE(?, is_demo)
		 WHERE id=?`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	n := 0
	for _, m := range entries {
		var demo any
		if m.IsDemo != nil {
			demo = *m.IsDemo
		}
		res, err := stmt.ExecContext(ctx, m.Name, nullString(m.Region), nullString(m.Publisher), demo, m.TitleID)
		if err != nil {
			return 0, err
		}
		if c, _ := res.RowsAffected(); c > 0 {
			n++
		}
	}
	return n, tx.Commit()
}

func (s *SQLiteStore) QueueJob(ctx context.Context, titleID, kind string) (shared.QueueJob, error) {
	job := shared.QueueJob{
		JobID:     newUUID(),
		TitleID:   titleID,
		Kind:      kind,
		Status:    "queued",
		CreatedAt: time.Now().Unix(),
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO jobs (id, title_id, kind, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		job.JobID, job.TitleID, job.Kind, job.Status, job.CreatedAt,
	)
	return job, err
}

func (s *SQLiteStore) ListQueue(ctx context.Context) ([]shared.QueueJob, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, title_id, kind, status, created_at
		 FROM jobs WHERE status = 'queued'
		 ORDER BY created_at, rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := []shared.QueueJob{}
	for rows.Next() {
		var j shared.QueueJob
		if err := rows.Scan(&j.JobID, &j.TitleID, &j.Kind, &j.Status, &j.CreatedAt); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// Counts reports catalog sizes for tooling.
func (s *SQLiteStore) Counts(ctx context.Context) (titles, updates, jobs int, err error) {
	if err = s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM titles`).Scan(&titles); err != nil {
		return
	}
	if err = s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM updates`).Scan(&updates); err != nil {
		return
	}
	err = s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs WHERE status = 'queued'`).Scan(&jobs)
	return
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTitle(r rowScanner) (Item, error) {
	var it Item
	var region, publisher sql.NullString
	var size, added sql.NullInt64
	if err := r.Scan(&it.TitleID, &it.Name, &region, &publisher, &size, &added,
		&it.RomPath, &it.Version, &it.IsDLC, &it.IsDemo); err != nil {
		return Item{}, err
	}
	it.Region = fromNullString(region)
	it.Publisher = fromNullString(publisher)
	it.Size = fromNullInt(size)
	it.Added = fromNullTime(added)
	return it, nil
}

func scanUpdate(r rowScanner) (Item, string, error) {
	var it Item
	var baseID string
	var region sql.NullString
	var size, added sql.NullInt64
	if err := r.Scan(&it.TitleID, &it.Version, &baseID, &it.Name, &region, &size, &added, &it.RomPath); err != nil {
		return Item{}, "", err
	}
	it.Region = fromNullString(region)
	it.Size = fromNullInt(size)
	it.Added = fromNullTime(added)
	return it, baseID, nil
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullInt(n *int64) any {
	if n == nil {
		return nil
	}
	return *n
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func fromNullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}

func fromNullInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return &v.Int64
}

func fromNullTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0)
	return &t
}
