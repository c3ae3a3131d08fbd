package tracing

import "testing"

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("LANGFUSE_HOST", "")
	t.Setenv("LANGFUSE_PUBLIC_KEY", "pk-lf")
	t.Setenv("LANGFUSE_SECRET_KEY", "")

	cfg := ConfigFromEnv()
	if cfg.Host != DefaultHost {
		t.Errorf("Host: want %q, got %q", DefaultHost, cfg.Host)
	}
	if cfg.Enabled() {
		t.Error("expected disabled without secret key")
	}

	t.Setenv("LANGFUSE_SECRET_KEY", "sk-lf")
	t.Setenv("LANGFUSE_HOST", "https://cloud.langfuse.com")
	cfg = ConfigFromEnv()
	if !cfg.Enabled() || cfg.Host != "https://cloud.langfuse.com" {
		t.Errorf("unexpected config: %+v", cfg)
	}
}

func TestSetup_Disabled(t *testing.T) {
	t.Parallel()

	flush, enabled := Setup(Config{})
	if enabled {
		t.Fatal("expected tracing disabled")
	}
	// flush must be safe to call unconditionally.
	flush()
}
