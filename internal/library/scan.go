package library

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gameshelf/internal/shared"
)

var (
	titleIDPattern = regexp.MustCompile(`\[([0-9A-Fa-f]{16})\]`)
	versionPattern = regexp.MustCompile(`\[[vV](\d+)\]`)
	demoPattern    = regexp.MustCompile(`(?i)[\[(]demo[\])]`)
)

var romExtensions = map[string]bool{
	".nsp": true,
	".nsz": true,
	".xci": true,
	".xcz": true,
}

// FileKind is what a title id says about a file.
type FileKind int

const (
	KindBase FileKind = iota
	KindUpdate
	KindDLC
)

// ParsedName is what Scan extracts from a ROM file name such as
// "Game A [0100ABCD00010000][v0].nsp".
type ParsedName struct {
	TitleID string
	BaseID  string
	Name    string
	Version int
	Kind    FileKind
	IsDemo  bool
}

// ParseFileName reads title id, version and display name out of a file name.
func ParseFileName(name string) (ParsedName, error) {
	m := titleIDPattern.FindStringSubmatch(name)
	if m == nil {
		return ParsedName{}, fmt.Errorf("no title id in %q", name)
	}
	id := strings.ToUpper(m[1])
	n, err := strconv.ParseUint(id, 16, 64)
	if err != nil {
		return ParsedName{}, err
	}

	p := ParsedName{TitleID: id, BaseID: id}
	switch n & 0xFFF {
	case 0x000:
		p.Kind = KindBase
	case 0x800:
		p.Kind = KindUpdate
		p.BaseID = fmt.Sprintf("%016X", n&^0xFFF)
	default:
		p.Kind = KindDLC
	}

	if v := versionPattern.FindStringSubmatch(name); v != nil {
		p.Version, _ = strconv.Atoi(v[1])
	}
	p.IsDemo = demoPattern.MatchString(name)

	stem := strings.TrimSuffix(name, filepath.Ext(name))
	if i := strings.IndexAny(stem, "[("); i >= 0 {
		stem = stem[:i]
	}
	p.Name = strings.TrimSpace(stem)
	if p.Name == "" {
		p.Name = id
	}
	return p, nil
}

// Scan walks the ROM directories and records every recognised file, then
// prunes catalog entries whose files are no longer under those directories.
// Missing directories are logged and skipped.
func Scan(ctx context.Context, w Writer, dirs []string) (shared.ScanResult, error) {
	var res shared.ScanResult
	var updates []pendingUpdate
	seen := map[string]bool{}
	roots := make([]string, 0, len(dirs))

	for _, dir := range dirs {
		if abs, err := filepath.Abs(dir); err == nil {
			roots = append(roots, filepath.Clean(abs))
		}
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if path == dir && errors.Is(err, fs.ErrNotExist) {
					log.Printf("scan: rom dir %s does not exist", dir)
					return fs.SkipAll
				}
				return err
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if d.IsDir() || !romExtensions[strings.ToLower(filepath.Ext(path))] {
				return nil
			}

			p, perr := ParseFileName(d.Name())
			if perr != nil {
				log.Printf("scan: skip %s: %v", path, perr)
				res.Skipped++
				return nil
			}
			info, ierr := d.Info()
			if ierr != nil {
				res.Skipped++
				return nil
			}

			it := itemFromFile(p, path, info)
			seen[it.RomPath] = true
			if p.Kind == KindUpdate {
				// bases first, so the update has something to hang off
				updates = append(updates, pendingUpdate{baseID: p.BaseID, item: it})
				return nil
			}
			if err := w.UpsertTitle(ctx, it); err != nil {
				return err
			}
			res.Titles++
			return nil
		})
		if err != nil {
			return res, err
		}
	}

	for _, u := range updates {
		stored, err := w.UpsertUpdate(ctx, u.baseID, u.item)
		if err != nil {
			return res, err
		}
		if !stored {
			log.Printf("scan: skip %s: base %s not in library", u.item.RomPath, u.baseID)
			res.Skipped++
			continue
		}
		res.Updates++
	}

	pruned, err := w.Prune(ctx, roots, seen)
	if err != nil {
		return res, err
	}
	res.Pruned = pruned
	log.Printf("scan: titles=%d updates=%d skipped=%d pruned=%d", res.Titles, res.Updates, res.Skipped, res.Pruned)
	return res, nil
}

type pendingUpdate struct {
	baseID string
	item   Item
}

func itemFromFile(p ParsedName, path string, info os.FileInfo) Item {
	size := info.Size()
	added := info.ModTime()
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return Item{
		TitleID: p.TitleID,
		Name:    p.Name,
		Size:    &size,
		Added:   &added,
		RomPath: abs,
		Version: p.Version,
		IsDLC:   p.Kind == KindDLC,
		IsDemo:  p.IsDemo,
	}
}
