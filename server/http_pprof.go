// Runtime profiling over HTTP. When a pprof URL is configured, named
// profiles (goroutine, heap, mutex, ...) are served as plain text at
// <pprof-url>/<profile-name>. Profile names are listed in the
// runtime/pprof docs.

package main

import (
	"fmt"
	"net/http"
	"path"
	"runtime/pprof"
	"strings"

	"github.com/teamchat/inbox/server/logs"
)

var pprofHttpRoot string

func servePprof(mux *http.ServeMux, serveAt string) {
	if serveAt == "" || serveAt == "-" {
		return
	}

	pprofHttpRoot = path.Clean("/"+serveAt) + "/"
	mux.HandleFunc(pprofHttpRoot, profileHandler)

	logs.Info.Printf("pprof: profiles exposed at '%s'", pprofHttpRoot)
}

func profileHandler(wrt http.ResponseWriter, req *http.Request) {
	wrt.Header().Set("X-Content-Type-Options", "nosniff")
	wrt.Header().Set("Content-Type", "text/plain; charset=utf-8")

	name := strings.TrimPrefix(req.URL.Path, pprofHttpRoot)
	profile := pprof.Lookup(name)
	if profile == nil {
		servePprofError(wrt, http.StatusNotFound, "Unknown profile '"+name+"'")
		return
	}

	profile.WriteTo(wrt, 2)
}

func servePprofError(wrt http.ResponseWriter, status int, txt string) {
	wrt.Header().Set("Content-Type", "text/plain; charset=utf-8")
	wrt.Header().Set("X-Go-Pprof", "1")
	wrt.Header().Del("Content-Disposition")
	wrt.WriteHeader(status)
	fmt.Fprintln(wrt, txt)
}
