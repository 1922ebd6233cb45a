package server

import (
	"context"
	"html"
	"strings"
)

// index renders the root page: one link per downloaded file.
func (a *API) index(ctx context.Context) (reply, error) {
	items, err := a.Library.Items(ctx)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>")
	b.WriteString(serverName)
	b.WriteString("</title></head><body>\n")
	for _, it := range downloadedFiles(items) {
		b.WriteString(`<a href="`)
		b.WriteString(html.EscapeString(downloadURL(it)))
		b.WriteString(`">`)
		b.WriteString(html.EscapeString(it.FileName()))
		b.WriteString("</a><br>\n")
	}
	b.WriteString("</body></html>\n")
	return htmlReply{body: []byte(b.String())}, nil
}
