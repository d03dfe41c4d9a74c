package dashboard

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var tables = Tables{EndStateTable: "batch_end_states", StatusTable: "batch_statuses"}

func TestRenderMissingEnv(t *testing.T) {
	t.Setenv("GREPTIMEDB_DATASOURCE_UID", "")
	if _, err := Render(t.TempDir(), tables); err == nil {
		t.Fatalf("expected error for missing env vars")
	}
}

func TestRenderSuccess(t *testing.T) {
	t.Setenv("GREPTIMEDB_DATASOURCE_UID", "uid1")

	path, err := Render(filepath.Join(t.TempDir(), "build"), tables)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read dashboard: %v", err)
	}
	if !json.Valid(b) {
		t.Fatalf("dashboard is not valid JSON:\n%s", b)
	}
	s := string(b)
	for _, want := range []string{`"uid": "uid1"`, "FROM batch_statuses", "FROM batch_end_states"} {
		if !strings.Contains(s, want) {
			t.Fatalf("dashboard missing %q", want)
		}
	}
}
