package server

import (
	"net/url"
	"strconv"
	"strings"

	"gameshelf/internal/library"
	"gameshelf/internal/shared"
)

// Filters narrow a search. Empty fields don't filter.
type Filters struct {
	Region    string
	DLC       string
	Demo      string
	Publisher string
	// Update is tri-state: "" emits base titles and updates, "true" only
	// updates, "false" only base titles.
	Update string
}

func ParseFilters(q url.Values) Filters {
	return Filters{
		Region:    q.Get("region"),
		DLC:       q.Get("dlc"),
		Demo:      q.Get("demo"),
		Publisher: q.Get("publisher"),
		Update:    q.Get("update"),
	}
}

func (f Filters) match(it *library.Item) bool {
	if f.Region != "" {
		if it.Region == nil || !strings.Contains(strings.ToLower(*it.Region), strings.ToLower(f.Region)) {
			return false
		}
	}
	if f.DLC != "" && !strings.EqualFold(f.DLC, strconv.FormatBool(it.IsDLC)) {
		return false
	}
	if f.Demo != "" && !strings.EqualFold(f.Demo, strconv.FormatBool(it.IsDemo)) {
		return false
	}
	if f.Publisher != "" {
		if it.Publisher == nil || !strings.EqualFold(*it.Publisher, f.Publisher) {
			return false
		}
	}
	return true
}

func (f Filters) includeBase() bool    { return f.Update != "true" }
func (f Filters) includeUpdates() bool { return f.Update != "false" }

// Search projects the items that pass f, keeping library order. A passing
// title is followed by its updates.
func Search(items []library.Item, f Filters) []shared.SearchEntry {
	out := []shared.SearchEntry{}
	for i := range items {
		it := &items[i]
		if !f.match(it) {
			continue
		}
		if f.includeBase() {
			out = append(out, project(it))
		}
		if f.includeUpdates() {
			for j := range it.Updates {
				out = append(out, project(&it.Updates[j]))
			}
		}
	}
	return out
}

func project(it *library.Item) shared.SearchEntry {
	return shared.SearchEntry{
		ID:     it.TitleID,
		Name:   it.Name,
		Region: normalizeRegion(it.Region),
		Size:   it.SizeBytes(),
		MTime:  it.MTime(),
	}
}

func normalizeRegion(r *string) *string {
	if r == nil {
		return nil
	}
	v := *r
	if strings.EqualFold(v, "US/EU") || strings.EqualFold(v, "World") {
		v = "US"
	}
	return &v
}
