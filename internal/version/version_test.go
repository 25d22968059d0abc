package version

import (
	"runtime"
	"testing"
)

func TestGet(t *testing.T) {
	oldVersion, oldCommit := Version, Commit
	t.Cleanup(func() { Version, Commit = oldVersion, oldCommit })
	Version, Commit = "v1.2.3", "abcd123"

	info := Get()
	if info.Version != "v1.2.3" || info.Commit != "abcd123" || info.GoVersion != runtime.Version() {
		t.Fatalf("unexpected info: %+v", info)
	}

	want := "nodekeeper v1.2.3 (commit=abcd123, built=unknown, " + runtime.Version() + ")"
	if got := info.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
