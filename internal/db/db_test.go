package db

import (
	"bytes"
	"compress/gzip"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/workoutwise/formcheck/internal/exercise"
	"github.com/workoutwise/formcheck/internal/placement"
	"github.com/workoutwise/formcheck/internal/session"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testSummary(id, user string, started time.Time) session.Summary {
	finished := started.Add(42 * time.Second)
	return session.Summary{
		ID:               id,
		UserID:           user,
		Exercise:         exercise.Squat,
		Mode:             session.Batch,
		StartedAt:        started,
		FinishedAt:       &finished,
		RepCount:         7,
		Stage:            "up",
		LastProbability:  0.93,
		FootStatus:       placement.Correct,
		KneeStatus:       placement.TooNarrow,
		VideoSeconds:     41.5,
		CorrectSeconds:   0,
		IncorrectSeconds: 0,
		Diagnostics: session.Diagnostics{
			Frames:          10,
			Outcomes:        map[session.Outcome]int{session.OutcomeObserved: 8, session.OutcomeNoPose: 2},
			PlacementErrors: 1,
		},
	}
}

func TestPragmasApplied(t *testing.T) {
	db := newTestDB(t)

	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("Failed to query journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("Expected journal_mode=wal, got %s", journalMode)
	}

	var busyTimeout int
	if err := db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout); err != nil {
		t.Fatalf("Failed to query busy_timeout: %v", err)
	}
	if busyTimeout != 5000 {
		t.Errorf("Expected busy_timeout=5000, got %d", busyTimeout)
	}
}

func TestEmbeddedMigrationsFS(t *testing.T) {
	migrations, err := getMigrationsFS()
	if err != nil {
		t.Fatalf("getMigrationsFS() failed: %v", err)
	}
	ups, err := fs.Glob(migrations, "*.up.sql")
	if err != nil {
		t.Fatalf("Glob failed: %v", err)
	}
	downs, _ := fs.Glob(migrations, "*.down.sql")
	if len(ups) == 0 || len(ups) != len(downs) {
		t.Errorf("expected matching up/down migrations, got %d up and %d down", len(ups), len(downs))
	}
}

func TestNewDBMigratesToLatest(t *testing.T) {
	db := newTestDB(t)
	migrations, _ := getMigrationsFS()

	version, dirty, err := db.MigrateVersion(migrations)
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	latest, err := LatestMigrationVersion()
	if err != nil {
		t.Fatalf("LatestMigrationVersion failed: %v", err)
	}
	if version != latest || dirty {
		t.Errorf("version = %d (dirty %v), want %d", version, dirty, latest)
	}

	// Running again is a no-op.
	if err := db.MigrateUp(migrations); err != nil {
		t.Errorf("second MigrateUp failed: %v", err)
	}
}

func TestMigrateDownAndUp(t *testing.T) {
	db := newTestDB(t)
	migrations, _ := getMigrationsFS()
	latest, _ := LatestMigrationVersion()

	if err := db.MigrateDown(migrations); err != nil {
		t.Fatalf("MigrateDown failed: %v", err)
	}
	version, _, _ := db.MigrateVersion(migrations)
	if version != latest-1 {
		t.Errorf("after down version = %d, want %d", version, latest-1)
	}
	if err := db.MigrateUp(migrations); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}
	version, _, _ = db.MigrateVersion(migrations)
	if version != latest {
		t.Errorf("after up version = %d, want %d", version, latest)
	}
}

func TestMigrateNilFS(t *testing.T) {
	db := newTestDB(t)
	if err := db.MigrateUp(nil); err == nil {
		t.Error("expected error for nil migrations filesystem")
	}
}

func TestRecordAndGetSession(t *testing.T) {
	db := newTestDB(t)
	started := time.Date(2026, 3, 1, 9, 30, 0, 123456000, time.UTC)
	want := testSummary("s-1", "alice", started)

	if err := db.RecordSession(want); err != nil {
		t.Fatalf("RecordSession failed: %v", err)
	}
	got, err := db.GetSession("s-1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}
}

func TestRecordSessionReplaces(t *testing.T) {
	db := newTestDB(t)
	s := testSummary("s-1", "alice", time.Unix(1000, 0).UTC())
	if err := db.RecordSession(s); err != nil {
		t.Fatalf("RecordSession failed: %v", err)
	}
	s.RepCount = 12
	if err := db.RecordSession(s); err != nil {
		t.Fatalf("RecordSession failed: %v", err)
	}
	got, err := db.GetSession("s-1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.RepCount != 12 {
		t.Errorf("RepCount = %d, want 12", got.RepCount)
	}
}

func TestRecordSessionRequiresID(t *testing.T) {
	db := newTestDB(t)
	if err := db.RecordSession(session.Summary{}); err == nil {
		t.Error("expected error for summary without id")
	}
}

func TestGetSessionNotFound(t *testing.T) {
	db := newTestDB(t)
	_, err := db.GetSession("missing")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestUnfinishedSessionRoundTrip(t *testing.T) {
	db := newTestDB(t)
	s := testSummary("live-1", "bob", time.Unix(2000, 0).UTC())
	s.FinishedAt = nil
	s.Exercise = exercise.Plank
	s.Mode = session.Live
	s.FormStatus = "hips-high"
	s.CorrectSeconds = 6
	if err := db.RecordSession(s); err != nil {
		t.Fatalf("RecordSession failed: %v", err)
	}
	got, err := db.GetSession("live-1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.Final() {
		t.Error("unfinished session came back final")
	}
	if got.FormStatus != "hips-high" || got.CorrectSeconds != 6 {
		t.Errorf("got %+v", got)
	}
}

func TestListSessions(t *testing.T) {
	db := newTestDB(t)
	base := time.Unix(10_000, 0).UTC()
	for i, id := range []string{"a", "b", "c"} {
		if err := db.RecordSession(testSummary(id, "alice", base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("RecordSession failed: %v", err)
		}
	}
	if err := db.RecordSession(testSummary("other", "bob", base)); err != nil {
		t.Fatalf("RecordSession failed: %v", err)
	}

	tests := []struct {
		name  string
		user  string
		limit int
		want  []string
	}{
		{"newest first", "alice", 0, []string{"c", "b", "a"}},
		{"limited", "alice", 2, []string{"c", "b"}},
		{"other user", "bob", 0, []string{"other"}},
		{"unknown user", "carol", 0, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := db.ListSessions(tt.user, tt.limit)
			if err != nil {
				t.Fatalf("ListSessions failed: %v", err)
			}
			ids := []string{}
			for _, s := range got {
				ids = append(ids, s.ID)
			}
			if diff := cmp.Diff(tt.want, ids); diff != "" {
				t.Errorf("ids mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSessionCounts(t *testing.T) {
	db := newTestDB(t)
	plank := testSummary("p", "alice", time.Unix(1, 0).UTC())
	plank.Exercise = exercise.Plank
	for _, s := range []session.Summary{
		plank,
		testSummary("s1", "alice", time.Unix(2, 0).UTC()),
		testSummary("s2", "bob", time.Unix(3, 0).UTC()),
	} {
		if err := db.RecordSession(s); err != nil {
			t.Fatalf("RecordSession failed: %v", err)
		}
	}
	got, err := db.SessionCounts()
	if err != nil {
		t.Fatalf("SessionCounts failed: %v", err)
	}
	want := map[exercise.Kind]int{exercise.Plank: 1, exercise.Squat: 2}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("counts mismatch (-want +got):\n%s", diff)
	}
}

func TestRunMigrateCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cli.db")

	var out bytes.Buffer
	if err := RunMigrateCommand(&out, []string{"up"}, dbPath); err != nil {
		t.Fatalf("migrate up failed: %v", err)
	}
	if !strings.Contains(out.String(), "Current version: 2") {
		t.Errorf("unexpected output:\n%s", out.String())
	}

	out.Reset()
	if err := RunMigrateCommand(&out, []string{"down"}, dbPath); err != nil {
		t.Fatalf("migrate down failed: %v", err)
	}
	if !strings.Contains(out.String(), "Current version: 1") {
		t.Errorf("unexpected output:\n%s", out.String())
	}

	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{"no action", nil, true},
		{"help", []string{"help"}, false},
		{"status", []string{"status"}, false},
		{"unknown", []string{"sideways"}, true},
		{"force without version", []string{"force"}, true},
		{"force bad version", []string{"force", "x"}, true},
		{"force", []string{"force", "1"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := RunMigrateCommand(&buf, tt.args, dbPath)
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAttachAdminRoutes(t *testing.T) {
	db := newTestDB(t)
	mux := http.NewServeMux()
	if err := db.AttachAdminRoutes(mux); err != nil {
		t.Fatalf("AttachAdminRoutes failed: %v", err)
	}

	// Endpoints may answer 403 to non-loopback callers, but never 404.
	for _, endpoint := range []string{"/debug/", "/debug/backup", "/debug/sessions", "/debug/tailsql/"} {
		t.Run(endpoint, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, endpoint, nil)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)
			if rec.Code == http.StatusNotFound {
				t.Errorf("%s not mounted, status %d", endpoint, rec.Code)
			}
		})
	}
}

func TestBackup(t *testing.T) {
	db := newTestDB(t)
	if err := db.RecordSession(testSummary("s-1", "alice", time.Unix(1000, 0).UTC())); err != nil {
		t.Fatalf("RecordSession failed: %v", err)
	}

	var buf bytes.Buffer
	if err := db.Backup(&buf); err != nil {
		t.Fatalf("Backup failed: %v", err)
	}
	zr, err := gzip.NewReader(&buf)
	if err != nil {
		t.Fatalf("backup is not gzip: %v", err)
	}
	raw, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("failed to read backup: %v", err)
	}
	if !bytes.HasPrefix(raw, []byte("SQLite format 3\x00")) {
		t.Fatalf("backup is not a SQLite file (%d bytes)", len(raw))
	}

	restored := filepath.Join(t.TempDir(), "restored.db")
	if err := os.WriteFile(restored, raw, 0o600); err != nil {
		t.Fatal(err)
	}
	copyDB, err := NewDB(restored)
	if err != nil {
		t.Fatalf("failed to open restored backup: %v", err)
	}
	defer copyDB.Close()
	if _, err := copyDB.GetSession("s-1"); err != nil {
		t.Errorf("restored backup lost session: %v", err)
	}
}
