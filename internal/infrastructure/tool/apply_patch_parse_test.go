package tool

import "testing"

const samplePatch = `--- a/foo.go
+++ b/foo.go
@@ -1,3 +1,3 @@
 package foo
-var x = 1
+var x = 2
--- /dev/null
+++ b/bar.go
@@ -0,0 +1,1 @@
+package bar
`

func TestParsePatchFiles_UpdateAndAdd(t *testing.T) {
	changes := parsePatchFiles(samplePatch)
	if len(changes) != 2 {
		t.Fatalf("expected 2 file changes, got %d: %+v", len(changes), changes)
	}
	if changes[0].Path != "foo.go" || changes[0].Op != "update" {
		t.Errorf("unexpected first change: %+v", changes[0])
	}
	if changes[1].Path != "bar.go" || changes[1].Op != "add" {
		t.Errorf("unexpected second change: %+v", changes[1])
	}
	for _, c := range changes {
		if c.ContentHash == "" {
			t.Errorf("expected non-empty content hash for %s", c.Path)
		}
	}
}

func TestDiffPathFromHeader(t *testing.T) {
	if got := diffPathFromHeader("+++ b/internal/foo.go"); got != "internal/foo.go" {
		t.Errorf("expected internal/foo.go, got %q", got)
	}
	if got := diffPathFromHeader("+++ /dev/null"); got != "/dev/null" {
		t.Errorf("expected /dev/null passthrough, got %q", got)
	}
}
