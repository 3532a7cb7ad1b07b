package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/garnet/vm"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
[dispatch]
polymorphic_limit = 4
verify_cache_hits = true

[frames]
trace_stack_walks = true

[log]
verbosity = 2
file = "garnet.log"

[profile]
database = "profiles.db"
warm_start = true
`)

	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	opts := c.VMOptions()
	if opts.PolymorphicLimit != 4 {
		t.Errorf("polymorphic limit = %d, want 4", opts.PolymorphicLimit)
	}
	if !opts.VerifyCacheHits || !opts.TraceStackWalks {
		t.Errorf("options = %+v, want verify and trace enabled", opts)
	}
	if c.Log.Verbosity != 2 {
		t.Errorf("log verbosity = %d, want 2", c.Log.Verbosity)
	}
	if !c.Profile.WarmStart {
		t.Error("profile warm_start = false, want true")
	}
	if want := filepath.Join(c.Dir, "profiles.db"); c.ProfileDatabase() != want {
		t.Errorf("profile database = %q, want %q", c.ProfileDatabase(), want)
	}
	if want := filepath.Join(c.Dir, "garnet.log"); c.LogFile() != want {
		t.Errorf("log file = %q, want %q", c.LogFile(), want)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
[log]
verbosity = 1
`)

	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Dispatch.PolymorphicLimit != vm.DefaultPolymorphicLimit {
		t.Errorf("polymorphic limit = %d, want %d", c.Dispatch.PolymorphicLimit, vm.DefaultPolymorphicLimit)
	}
	if c.ProfileDatabase() != "" {
		t.Errorf("profile database = %q, want empty", c.ProfileDatabase())
	}
	if c.Dir == "" {
		t.Error("Dir should be set")
	}
}

func TestDefaultMatchesVM(t *testing.T) {
	if got, want := Default().VMOptions(), vm.DefaultOptions(); got != want {
		t.Errorf("Default().VMOptions() = %+v, want %+v", got, want)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"limit too low", "[dispatch]\npolymorphic_limit = 0\n", "polymorphic_limit"},
		{"limit too high", "[dispatch]\npolymorphic_limit = 65\n", "polymorphic_limit"},
		{"negative verbosity", "[log]\nverbosity = -1\n", "verbosity"},
		{"unknown key", "[dispatch]\npolymorphic = 3\n", "unknown keys: dispatch.polymorphic"},
		{"bad syntax", "[dispatch\n", "parse error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeConfig(t, dir, tt.content)
			_, err := Load(dir)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Error("Load of a directory without garnet.toml should fail")
	}
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "[dispatch]\npolymorphic_limit = 2\n")
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	c, err := FindAndLoad(nested)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if c == nil {
		t.Fatal("expected a config")
	}
	if c.Dispatch.PolymorphicLimit != 2 {
		t.Errorf("polymorphic limit = %d, want 2", c.Dispatch.PolymorphicLimit)
	}
}

func TestFindAndLoadNone(t *testing.T) {
	c, err := FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if c != nil {
		t.Errorf("expected nil config, got %+v", c)
	}
}

func TestResolveAbsoluteAndMemory(t *testing.T) {
	c := Default()
	c.Dir = "/srv/app"
	c.Profile.Database = ":memory:"
	if c.ProfileDatabase() != ":memory:" {
		t.Errorf("memory database = %q", c.ProfileDatabase())
	}
	c.Profile.Database = "/var/lib/garnet.db"
	if c.ProfileDatabase() != "/var/lib/garnet.db" {
		t.Errorf("absolute database = %q", c.ProfileDatabase())
	}
}
