package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
)

// call carries what a handler gets from the router.
type call struct {
	req   *Request
	args  []string
	query url.Values
}

func (c *call) arg(i int) string {
	if i < len(c.args) {
		return c.args[i]
	}
	return ""
}

// require returns positional argument i or ErrMissingArgument naming it.
func (c *call) require(i int, name string) (string, error) {
	v := c.arg(i)
	if v == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingArgument, name)
	}
	return v, nil
}

type handlerFunc func(a *API, ctx context.Context, c *call) (reply, error)

var actions = map[string]handlerFunc{
	"download":                (*API).download,
	"files":                   (*API).files,
	"info":                    (*API).info,
	"install":                 (*API).install,
	"organize":                (*API).organize,
	"preload":                 (*API).preload,
	"queue":                   (*API).queue,
	"scan":                    (*API).scan,
	"search":                  (*API).search,
	"tinfoilsetinstalledapps": (*API).setInstalledApps,
	"titles":                  (*API).titles,
	"titleupdates":            (*API).titleUpdates,
	"updatedb":                (*API).updateDB,
	"user":                    (*API).user,
}

func splitPath(p string) []string {
	var segs []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

// Route picks exactly one outcome for req. GET, POST and HEAD share the
// table; bodies are read by the handlers that want them.
func (a *API) Route(ctx context.Context, req *Request) reply {
	p, q := req.Target()
	segs := splitPath(p)

	if len(segs) == 0 {
		rep, err := a.index(ctx)
		if err != nil {
			log.Printf("route: index: %v", err)
			return failure(err)
		}
		return rep
	}
	if len(segs) < 2 || !strings.EqualFold(segs[0], "api") {
		return failure(fmt.Errorf("%w: no route for %s", ErrUnknownAction, p))
	}

	name := segs[1]
	h, found := actions[name]
	if !found {
		return failure(fmt.Errorf("%w: %s", ErrUnknownAction, name))
	}

	c := &call{req: req, args: unescapeAll(segs[2:]), query: q}
	rep, err := h(a, ctx, c)
	if err != nil {
		if !isClientError(err) {
			log.Printf("route: %s %s: %v", req.Method, name, err)
		}
		return failure(err)
	}
	return rep
}

func unescapeAll(segs []string) []string {
	out := make([]string, len(segs))
	for i, s := range segs {
		if u, err := url.PathUnescape(s); err == nil {
			s = u
		}
		out[i] = s
	}
	return out
}

// isClientError is true for outcomes caused by the request itself; those
// aren't worth a log line.
func isClientError(err error) bool {
	return errors.Is(err, ErrMissingArgument) ||
		errors.Is(err, ErrUnknownAction) ||
		errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrItemNotFound) ||
		errors.Is(err, ErrNotImplemented)
}
