package shared

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadServerConfigDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.json")
	if err := os.WriteFile(path, []byte(`{"port": 8465, "rom_dirs": ["/games"]}`), 0600); err != nil {
		t.Fatal(err)
	}

	c, err := LoadServerConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Port != 8465 {
		t.Fatalf("port = %d", c.Port)
	}
	if c.Host != "0.0.0.0" || c.MaxConns != 64 || c.IdleSeconds != 60 {
		t.Fatalf("defaults not applied: %+v", c)
	}
	if len(c.RomDirs) != 1 || c.RomDirs[0] != "/games" {
		t.Fatalf("rom dirs = %v", c.RomDirs)
	}
	if got := c.Addr(); got != "0.0.0.0:8465" {
		t.Fatalf("addr = %q", got)
	}
}

func TestSaveServerConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.json")
	c := DefaultServerConfig()
	c.UserName = "shelf"
	c.TitleDB.URL = "http://example.invalid/titles.json"
	if err := SaveServerConfig(path, c); err != nil {
		t.Fatal(err)
	}
	got, err := LoadServerConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.UserName != "shelf" || got.TitleDB.URL != c.TitleDB.URL {
		t.Fatalf("got %+v", got)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		host string
		port int
		ok   bool
	}{
		{"0.0.0.0", 9000, true},
		{"localhost", 9000, true},
		{"::1", 9000, true},
		{"not a host", 9000, false},
		{"127.0.0.1", 70000, false},
	}
	for _, tc := range cases {
		c := &ServerConfig{Host: tc.host, Port: tc.port}
		err := c.Validate()
		if (err == nil) != tc.ok {
			t.Errorf("Validate(%q, %d) err = %v", tc.host, tc.port, err)
		}
	}
}
