package db

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"
)

// AttachAdminRoutes mounts a tailsql console over the trajectory store at
// /debug/tailsql/ on mux. Queries run on a separate query_only connection,
// so the console cannot modify recorded runs. tsweb limits /debug/ to
// loopback and tailnet clients.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) error {
	if db.path == "" || db.path == ":memory:" {
		return errors.New("admin console needs a file-backed store")
	}
	ro, err := sql.Open("sqlite", db.path+"?_pragma=query_only(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return fmt.Errorf("open read-only store: %w", err)
	}

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		ro.Close()
		return fmt.Errorf("create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+filepath.Base(db.path), ro, &tailsql.DBOptions{
		Label: "Trajectory store",
	})

	debug := tsweb.Debugger(mux)
	debug.Handle("tailsql/", "SQL console over recorded runs (read-only)", tsql.NewMux())

	db.mu.Lock()
	db.readOnly = append(db.readOnly, ro)
	db.mu.Unlock()
	return nil
}
