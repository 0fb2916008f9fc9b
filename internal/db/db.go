package db

import (
	"compress/gzip"
	"database/sql"
	"embed"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/workoutwise/formcheck/internal/httputil"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// getMigrationsFS returns the embedded migrations rooted at the directory
// holding the .sql files.
func getMigrationsFS() (fs.FS, error) {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	return sub, nil
}

// DB is the session summary store.
type DB struct {
	*sql.DB
}

// pragmas are applied on every connection the store opens.
var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA temp_store=MEMORY",
	"PRAGMA foreign_keys=ON",
}

// OpenDB opens the database and applies pragmas without touching the schema.
func OpenDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// busy_timeout and friends are per connection; keep the pool at one.
	db.SetMaxOpenConns(1)
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}
	return &DB{db}, nil
}

// NewDB opens the database and migrates it to the latest schema.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	migrations, err := getMigrationsFS()
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := db.MigrateUp(migrations); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// AttachAdminRoutes mounts the debug pages under /debug/: a tailsql console
// on the live database, session counts, and a gzipped backup download.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)
	tsql, err := tailsql.NewServer(tailsql.Options{RoutePrefix: "/debug/tailsql/"})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://formcheck.db", db.DB, &tailsql.DBOptions{Label: "Formcheck DB"})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("sessions", "Stored sessions per exercise", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		counts, err := db.SessionCounts()
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, counts)
	}))

	debug.Handle("backup", "Download a gzipped snapshot of the database", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := fmt.Sprintf("formcheck-%s.db.gz", time.Now().UTC().Format("20060102T150405Z"))
		w.Header().Set("Content-Disposition", "attachment; filename="+name)
		w.Header().Set("Content-Type", "application/gzip")
		if err := db.Backup(w); err != nil {
			// Headers may be gone already; the truncated download is the signal.
			log.Printf("backup failed: %v", err)
		}
	}))
	return nil
}

// Backup writes a gzip-compressed, consistent snapshot of the database to w.
// The snapshot is staged in the temp directory with VACUUM INTO.
func (db *DB) Backup(w io.Writer) error {
	dir, err := os.MkdirTemp("", "formcheck-backup-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	snapshot := filepath.Join(dir, "snapshot.db")
	if _, err := db.Exec("VACUUM INTO ?", snapshot); err != nil {
		return fmt.Errorf("failed to snapshot database: %w", err)
	}
	f, err := os.Open(snapshot)
	if err != nil {
		return err
	}
	defer f.Close()

	gz := gzip.NewWriter(w)
	if _, err := io.Copy(gz, f); err != nil {
		return fmt.Errorf("failed to stream snapshot: %w", err)
	}
	return gz.Close()
}
