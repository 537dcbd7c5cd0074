package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewStore(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		wantErr     bool
		errContains string
	}{
		{name: "memory", config: Config{Provider: "memory"}},
		{name: "env", config: Config{Provider: "env"}},
		{name: "empty defaults to env", config: Config{}},
		{name: "k8s outside cluster", config: Config{Provider: "k8s", K8s: K8sConfig{ServiceAccountPath: "/nonexistent/sa"}}, wantErr: true, errContains: "not running in Kubernetes"},
		{name: "unknown provider", config: Config{Provider: "unknown"}, wantErr: true, errContains: "unsupported secret provider"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store, err := NewStore(tc.config)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				if tc.errContains != "" && !strings.Contains(err.Error(), tc.errContains) {
					t.Fatalf("error = %q, want contains %q", err.Error(), tc.errContains)
				}
				if store != nil {
					t.Fatalf("store should be nil when error occurs")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if store == nil {
				t.Fatalf("store should not be nil")
			}
		})
	}
}

func TestMemoryAndEnvStoreBasicContract(t *testing.T) {
	ctx := context.Background()
	stores := []Store{NewMemoryStore(), NewEnvStore()}

	for _, s := range stores {
		if err := s.Set(ctx, "CAPTION_SECRET_TEST_KEY", "value"); err != nil {
			t.Fatalf("set secret failed: %v", err)
		}
		got, err := s.Get(ctx, "CAPTION_SECRET_TEST_KEY")
		if err != nil {
			t.Fatalf("get secret failed: %v", err)
		}
		if got != "value" {
			t.Fatalf("get secret = %q, want value", got)
		}
		keys, err := s.List(ctx, "CAPTION_SECRET_TEST")
		if err != nil || len(keys) != 1 {
			t.Fatalf("list = %v, %v", keys, err)
		}
		if err := s.Delete(ctx, "CAPTION_SECRET_TEST_KEY"); err != nil {
			t.Fatalf("delete secret failed: %v", err)
		}
		_, err = s.Get(ctx, "CAPTION_SECRET_TEST_KEY")
		if !errors.Is(err, ErrSecretNotFound) {
			t.Fatalf("expected ErrSecretNotFound after delete, got %v", err)
		}
	}
}

func TestK8sStoreReadsMountedFile(t *testing.T) {
	dir := t.TempDir()
	sa := filepath.Join(dir, "sa")
	mount := filepath.Join(dir, "secrets")
	if err := os.MkdirAll(sa, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(mount, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(mount, "CAPTION_API_TOKEN"), []byte("s3cret\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	s, err := NewK8sStore(K8sConfig{ServiceAccountPath: sa, SecretsPath: mount})
	if err != nil {
		t.Fatalf("NewK8sStore: %v", err)
	}
	got, err := s.Get(context.Background(), "CAPTION_API_TOKEN")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "s3cret" {
		t.Fatalf("Get = %q, want trailing newline trimmed", got)
	}
	if _, err := s.Get(context.Background(), "MISSING"); !errors.Is(err, ErrSecretNotFound) {
		t.Fatalf("missing key error = %v", err)
	}
	keys, err := s.List(context.Background(), "CAPTION")
	if err != nil || len(keys) != 1 {
		t.Fatalf("List = %v, %v", keys, err)
	}
}
