package version

import "testing"

func TestGet(t *testing.T) {
	origV, origSHA, origTime := Version, GitSHA, BuildTime
	defer func() { Version, GitSHA, BuildTime = origV, origSHA, origTime }()

	Version, GitSHA, BuildTime = "1.2.3", "abc123", "2026-01-01T00:00:00Z"
	got := Get()
	want := Info{Version: "1.2.3", GitSHA: "abc123", BuildTime: "2026-01-01T00:00:00Z"}
	if got != want {
		t.Errorf("Get() = %+v, want %+v", got, want)
	}
	if s := got.String(); s != "1.2.3 (git abc123, built 2026-01-01T00:00:00Z)" {
		t.Errorf("String() = %q", s)
	}
}
