package store_test

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"courier/internal/domain"
	"courier/internal/store"
)

func TestCredentials_SaveLoad_OK(t *testing.T) {
	home := t.TempDir()
	var cs store.CredentialsStore = store.NewCredentialsFileStore(home)

	want := domain.Credentials{User: "+15550001", Password: "pw", SignalingKey: "c2s=", Device: 3}
	if err := cs.SaveCredentials("pass", want); err != nil {
		t.Fatalf("save credentials: %v", err)
	}

	got, err := cs.LoadCredentials("pass")
	if err != nil {
		t.Fatalf("load credentials: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}

	info, err := os.Stat(filepath.Join(home, "credentials.enc"))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("got mode %v, want 0600", info.Mode().Perm())
	}
}

func TestCredentials_WrongPassphrase_Fails(t *testing.T) {
	cs := store.NewCredentialsFileStore(t.TempDir())
	if err := cs.SaveCredentials("correct", domain.Credentials{User: "u", Password: "p"}); err != nil {
		t.Fatalf("save credentials: %v", err)
	}
	if _, err := cs.LoadCredentials("wrong"); !errors.Is(err, store.ErrWrongPassphrase) {
		t.Fatalf("got %v, want ErrWrongPassphrase", err)
	}
}

func TestCredentials_Missing(t *testing.T) {
	cs := store.NewCredentialsFileStore(t.TempDir())
	if _, err := cs.LoadCredentials("x"); !errors.Is(err, store.ErrNoCredentials) {
		t.Fatalf("got %v, want ErrNoCredentials", err)
	}
}

func TestCredentials_OverwriteLeavesNoTempFiles(t *testing.T) {
	home := t.TempDir()
	cs := store.NewCredentialsFileStore(home)
	for _, pw := range []string{"a", "b"} {
		if err := cs.SaveCredentials("pass", domain.Credentials{User: "u", Password: pw}); err != nil {
			t.Fatalf("save credentials: %v", err)
		}
	}
	entries, err := os.ReadDir(home)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want only credentials.enc", len(entries))
	}
	got, _ := cs.LoadCredentials("pass")
	if got.Password != "b" {
		t.Fatalf("got %q, want %q", got.Password, "b")
	}
}

func TestProfile_SaveLoad(t *testing.T) {
	ps := store.NewProfileFileStore(filepath.Join(t.TempDir(), "nested"))
	if _, ok, err := ps.LoadProfile(); ok || err != nil {
		t.Fatalf("empty store: got ok=%v err=%v", ok, err)
	}
	want := store.Profile{ServiceURL: "https://example.test", User: "+15550001", UserAgent: "courier"}
	if err := ps.SaveProfile(want); err != nil {
		t.Fatalf("save profile: %v", err)
	}
	got, ok, err := ps.LoadProfile()
	if err != nil || !ok {
		t.Fatalf("load profile: ok=%v err=%v", ok, err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

// rewriteSealed edits one top-level field of credentials.enc in place.
func rewriteSealed(t *testing.T, home string, edit func(map[string]any)) {
	t.Helper()
	path := filepath.Join(home, "credentials.enc")
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	edit(m)
	raw, _ = json.Marshal(m)
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestCredentials_TamperedFileRejected(t *testing.T) {
	tests := []struct {
		name string
		edit func(map[string]any)
		want error
	}{
		{"ciphertext", func(m map[string]any) {
			ct, _ := base64.StdEncoding.DecodeString(m["ciphertext"].(string))
			ct[0] ^= 1
			m["ciphertext"] = base64.StdEncoding.EncodeToString(ct)
		}, store.ErrWrongPassphrase},
		{"nonce", func(m map[string]any) { m["nonce"] = base64.StdEncoding.EncodeToString(make([]byte, 24)) }, store.ErrWrongPassphrase},
		{"format", func(m map[string]any) { m["format"] = "something-else" }, nil},
		{"version", func(m map[string]any) { m["version"] = 2 }, nil},
		{"huge scrypt cost", func(m map[string]any) { m["kdf"].(map[string]any)["n"] = 1 << 30 }, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			home := t.TempDir()
			cs := store.NewCredentialsFileStore(home)
			if err := cs.SaveCredentials("pass", domain.Credentials{User: "u", Password: "p"}); err != nil {
				t.Fatalf("save credentials: %v", err)
			}
			rewriteSealed(t, home, tt.edit)
			_, err := cs.LoadCredentials("pass")
			if err == nil {
				t.Fatal("expected error for tampered file")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
}
