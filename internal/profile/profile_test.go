package profile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bazaarhq/inbox/internal/config"
)

func TestDirDefaultsToHome(t *testing.T) {
	t.Setenv(HomeEnv, "")
	home, _ := os.UserHomeDir()
	want := filepath.Join(home, ".bazaar", "profiles", "main")
	if got := Dir("main"); got != want {
		t.Errorf("Dir(main) = %q, want %q", got, want)
	}
}

func TestPathsUnderProfile(t *testing.T) {
	t.Setenv(HomeEnv, "/tmp/bz")
	tests := []struct {
		got    string
		suffix string
	}{
		{SocketPath("test"), "profiles/test/daemon.sock"},
		{LockPath("test"), "profiles/test/LOCK"},
		{DBPath("test"), "profiles/test/inbox.db"},
		{LogPath("test"), "profiles/test/logs/inboxd.log"},
		{ConfigPath(), "/tmp/bz/config.toml"},
	}
	for _, tt := range tests {
		if !strings.HasSuffix(tt.got, filepath.FromSlash(tt.suffix)) {
			t.Errorf("%q does not end with %q", tt.got, tt.suffix)
		}
	}
}

func TestEnsureDir(t *testing.T) {
	t.Setenv(HomeEnv, t.TempDir())

	if err := EnsureDir("shop"); err != nil {
		t.Fatal(err)
	}
	for _, d := range []string{Dir("shop"), LogDir("shop")} {
		info, err := os.Stat(d)
		if err != nil {
			t.Fatalf("%s not created: %v", d, err)
		}
		if info.Mode().Perm() != 0700 {
			t.Errorf("%s perm = %o, want 0700", d, info.Mode().Perm())
		}
	}
}

func TestResolvePrecedence(t *testing.T) {
	t.Setenv(HomeEnv, t.TempDir())

	if got := Resolve(""); got != DefaultName {
		t.Errorf("Resolve() without config = %q, want main", got)
	}

	cfg := config.Default()
	cfg.DefaultProfile = "shop"
	if err := config.Save(ConfigPath(), cfg); err != nil {
		t.Fatal(err)
	}
	if got := Resolve(""); got != "shop" {
		t.Errorf("Resolve() = %q, want shop", got)
	}
	if got := Resolve("flag"); got != "flag" {
		t.Errorf("Resolve(flag) = %q, want flag", got)
	}
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid simple", "main", false},
		{"valid with numbers", "shop42", false},
		{"valid with hyphen", "my-shop", false},
		{"valid with underscore", "my_shop", false},
		{"valid max length", strings.Repeat("a", 64), false},
		{"empty", "", true},
		{"uppercase", "Main", true},
		{"space", "my shop", true},
		{"dot", "my.shop", true},
		{"too long", strings.Repeat("a", 65), true},
		{"slash", "my/shop", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}
