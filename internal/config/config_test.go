package config

import (
	"strings"
	"testing"
)

func TestFromYAMLOverridesDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte(`
uploads:
  max_size_bytes: 1024
webhooks:
  - url: http://localhost:9999/hook
    enabled: true
    events: [task.status.changed]
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Uploads.MaxSizeBytes != 1024 {
		t.Fatalf("max size = %d, want 1024", cfg.Uploads.MaxSizeBytes)
	}
	// Unset sections keep defaults.
	if cfg.Pagination.DefaultSize != 20 || cfg.Pagination.MaxSize != 100 {
		t.Fatalf("pagination defaults lost: %+v", cfg.Pagination)
	}
	if len(cfg.Uploads.AllowedExtensions) == 0 {
		t.Fatal("extension allowlist default lost")
	}
	if len(cfg.Webhooks) != 1 || !cfg.Webhooks[0].Enabled {
		t.Fatalf("webhooks = %+v", cfg.Webhooks)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "extension without dot",
			yaml: "uploads:\n  allowed_extensions: [txt]\n",
			want: "must start with a dot",
		},
		{
			name: "webhook without url",
			yaml: "webhooks:\n  - enabled: true\n",
			want: "url is required",
		},
		{
			name: "max size below default size",
			yaml: "pagination:\n  default_size: 50\n  max_size: 10\n",
			want: "max_size",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FromYAML([]byte(tc.yaml))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("got %v, want error containing %q", err, tc.want)
			}
		})
	}
}

func TestLoadMissingFileFallsBack(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Uploads.MaxSizeBytes != 5*1024*1024 {
		t.Fatalf("default max size = %d", cfg.Uploads.MaxSizeBytes)
	}
}
