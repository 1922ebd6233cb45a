package library

import (
	"path/filepath"
	"time"
)

// Item is one catalog entry: a base title, a DLC, or (inside Updates) a
// patch for a base title.
type Item struct {
	TitleID   string
	Name      string
	Region    *string
	Publisher *string
	Size      *int64
	Added     *time.Time
	RomPath   string
	Version   int
	IsDLC     bool
	IsDemo    bool
	Updates   []Item
}

// Downloaded reports whether the item has a file on disk.
func (it *Item) Downloaded() bool {
	return it.RomPath != ""
}

func (it *Item) FileName() string {
	if it.RomPath == "" {
		return ""
	}
	return filepath.Base(it.RomPath)
}

func (it *Item) SizeBytes() int64 {
	if it.Size == nil {
		return 0
	}
	return *it.Size
}

// MTime is the added time in Unix seconds, 0 when unknown.
func (it *Item) MTime() int64 {
	if it.Added == nil {
		return 0
	}
	return it.Added.Unix()
}

// clone copies the item and its update slice so callers can't reach back
// into store-owned memory.
func (it Item) clone() Item {
	if it.Updates != nil {
		ups := make([]Item, len(it.Updates))
		copy(ups, it.Updates)
		it.Updates = ups
	}
	return it
}
