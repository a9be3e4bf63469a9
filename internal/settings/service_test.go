package settings

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestService_AddGetRemove(t *testing.T) {
	s := New()
	if _, ok := s.GetSetting("LogPath"); ok {
		t.Fatal("new service should be empty")
	}
	s.AddSetting("LogPath", "/a")
	s.AddSetting("LogPath", "/b")
	if v, ok := s.GetSetting("LogPath"); !ok || v != "/b" {
		t.Errorf("LogPath = %q, %v; want /b", v, ok)
	}
	s.SetDefault("LogPath", "/default")
	s.SetDefault("Theme", "dark")
	if v, _ := s.GetSetting("LogPath"); v != "/b" {
		t.Errorf("SetDefault overwrote LogPath: %q", v)
	}
	if v, _ := s.GetSetting("Theme"); v != "dark" {
		t.Errorf("Theme = %q, want dark", v)
	}

	s.RemoveSetting("LogPath")
	s.RemoveSetting("never-set")
	if _, ok := s.GetSetting("LogPath"); ok {
		t.Error("LogPath still set after remove")
	}

	all := s.AllSettings()
	all["Theme"] = "light"
	if v, _ := s.GetSetting("Theme"); v != "dark" {
		t.Error("AllSettings must return a copy")
	}
}

func TestService_LoadJSONWithComments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	content := `{
  // where flushed sessions go
  "LogPath": "/var/log/ux",
  "Retries": 3,
  "Ratio": 1.5,
  "Verbose": true,
  "Empty": null, /* trailing comma next */
}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	s := New()
	s.AddSetting("Stale", "x")
	if err := s.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := map[string]string{"LogPath": "/var/log/ux", "Retries": "3", "Ratio": "1.5", "Verbose": "true", "Empty": ""}
	got := s.AllSettings()
	if len(got) != len(want) {
		t.Errorf("settings = %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %q, want %q", k, got[k], v)
		}
	}
	if _, ok := got["Stale"]; ok {
		t.Error("Load should replace existing settings")
	}
}

func TestService_LoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yml")
	if err := os.WriteFile(path, []byte("LogPath: ./logs\nTimeoutSeconds: 300\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	s := New()
	if err := s.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if v, _ := s.GetSetting("LogPath"); v != "./logs" {
		t.Errorf("LogPath = %q", v)
	}
	if v, _ := s.GetSetting("TimeoutSeconds"); v != "300" {
		t.Errorf("TimeoutSeconds = %q, want 300", v)
	}
}

func TestService_LoadErrors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{"nested value", "nested.json", `{"LogPath": {"dir": "x"}}`, "unsupported value type"},
		{"malformed json", "bad.json", `{"LogPath": `, "parse"},
		{"malformed yaml", "bad.yaml", "LogPath: [unclosed\n", "parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatalf("WriteFile: %v", err)
			}
			s := New()
			s.AddSetting("Keep", "me")
			err := s.Load(path)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Load err = %v, want %q", err, tt.wantErr)
			}
			if v, _ := s.GetSetting("Keep"); v != "me" {
				t.Error("failed Load must not change settings")
			}
		})
	}
	if err := New().Load(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("Load of a missing file should fail")
	}
}

func TestService_SaveRoundTrip(t *testing.T) {
	for _, name := range []string{"out/settings.json", "out/settings.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			s := New()
			s.AddSetting("LogPath", "/tmp/ux")
			s.AddSetting("Theme", "dark")
			if err := s.Save(path); err != nil {
				t.Fatalf("Save: %v", err)
			}
			loaded := New()
			if err := loaded.Load(path); err != nil {
				t.Fatalf("Load: %v", err)
			}
			if v, _ := loaded.GetSetting("LogPath"); v != "/tmp/ux" {
				t.Errorf("LogPath = %q", v)
			}
			if v, _ := loaded.GetSetting("Theme"); v != "dark" {
				t.Errorf("Theme = %q", v)
			}
		})
	}
}

func TestService_Concurrent(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.AddSetting("k", "v")
				s.RemoveSetting("k")
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.GetSetting("k")
				s.AllSettings()
			}
		}()
	}
	wg.Wait()
}
