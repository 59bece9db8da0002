// Goroutine dump endpoint. Handy for diagnosing stuck rooms or sessions:
// fetch the configured path and grep for hub.go/room.go frames.

package main

import (
	"net/http"
	"runtime/pprof"
	"strings"

	"github.com/teamchat/inbox/server/logs"
)

func threadzInit(mux *http.ServeMux, path string) {
	if path == "" || path == "-" {
		return
	}

	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	mux.HandleFunc(path, func(wrt http.ResponseWriter, req *http.Request) {
		wrt.Header().Set("Content-Type", "text/plain; charset=utf-8")
		pprof.Lookup("goroutine").WriteTo(wrt, 2)
	})

	logs.Info.Printf("threadz: goroutine dumps exposed at '%s'", path)
}
