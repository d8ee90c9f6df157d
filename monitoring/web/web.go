// Package web holds the dashboard pages served by the monitor.
package web

import (
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"os"
)

//go:embed dist/*
var dist embed.FS

// Assets returns the dashboard pages. An empty dir selects the pages built
// into the binary. Otherwise the pages are read from dir on every request, so
// the dashboard can be edited while the robot runs.
func Assets(dir string) (http.FileSystem, error) {
	if dir == "" {
		sub, err := fs.Sub(dist, "dist")
		if err != nil {
			return nil, err
		}

		return http.FS(sub), nil
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("dashboard assets: %w", err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("dashboard assets: %s is not a directory", dir)
	}

	return http.Dir(dir), nil
}
