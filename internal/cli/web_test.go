package cli

import (
	"testing"

	"github.com/spf13/cobra"

	"github.com/agusx1211/swarmix/internal/config"
)

func TestWebOptionsFromFlagsDefaults(t *testing.T) {
	cmd := &cobra.Command{}
	addWebFlags(cmd)

	cfg := config.Default()
	cfg.Web.Port = 9191
	cfg.Web.AuthToken = "from-config"

	opts, expose, err := webOptionsFromFlags(cfg, cmd)
	if err != nil {
		t.Fatalf("webOptionsFromFlags: %v", err)
	}
	if expose {
		t.Fatal("expose should be off by default")
	}
	if opts.Host != "127.0.0.1" || opts.Port != 9191 {
		t.Fatalf("addr = %s:%d", opts.Host, opts.Port)
	}
	if opts.AuthToken != "from-config" {
		t.Fatalf("auth token = %q", opts.AuthToken)
	}
	if opts.TLSMode != "" {
		t.Fatalf("tls mode = %q, want none", opts.TLSMode)
	}
}

func TestWebOptionsFlagsOverrideConfig(t *testing.T) {
	cmd := &cobra.Command{}
	addWebFlags(cmd)
	if err := cmd.Flags().Set("port", "7070"); err != nil {
		t.Fatalf("set port: %v", err)
	}
	if err := cmd.Flags().Set("auth-token", "from-flag"); err != nil {
		t.Fatalf("set auth-token: %v", err)
	}

	cfg := config.Default()
	cfg.Web.Port = 9191
	cfg.Web.AuthToken = "from-config"

	opts, _, err := webOptionsFromFlags(cfg, cmd)
	if err != nil {
		t.Fatalf("webOptionsFromFlags: %v", err)
	}
	if opts.Port != 7070 {
		t.Fatalf("port = %d, want 7070", opts.Port)
	}
	if opts.AuthToken != "from-flag" {
		t.Fatalf("auth token = %q, want from-flag", opts.AuthToken)
	}
}

func TestWebOptionsExpose(t *testing.T) {
	cmd := &cobra.Command{}
	addWebFlags(cmd)
	if err := cmd.Flags().Set("expose", "true"); err != nil {
		t.Fatalf("set expose: %v", err)
	}

	opts, expose, err := webOptionsFromFlags(config.Default(), cmd)
	if err != nil {
		t.Fatalf("webOptionsFromFlags: %v", err)
	}
	if !expose {
		t.Fatal("expose not reported")
	}
	if opts.Host != "0.0.0.0" {
		t.Fatalf("host = %q, want 0.0.0.0", opts.Host)
	}
	if opts.TLSMode != "self-signed" {
		t.Fatalf("tls mode = %q, want self-signed", opts.TLSMode)
	}
}

func TestWebOptionsRejectBadTLS(t *testing.T) {
	cmd := &cobra.Command{}
	addWebFlags(cmd)
	if err := cmd.Flags().Set("tls", "sideways"); err != nil {
		t.Fatalf("set tls: %v", err)
	}
	if _, _, err := webOptionsFromFlags(config.Default(), cmd); err == nil {
		t.Fatal("expected error for bad --tls value")
	}

	cmd = &cobra.Command{}
	addWebFlags(cmd)
	if err := cmd.Flags().Set("tls", "custom"); err != nil {
		t.Fatalf("set tls: %v", err)
	}
	if _, _, err := webOptionsFromFlags(config.Default(), cmd); err == nil {
		t.Fatal("custom TLS without cert/key should fail")
	}
}

func TestGenerateTokenLooksRandom(t *testing.T) {
	a, b := generateToken(), generateToken()
	if len(a) != 64 {
		t.Fatalf("token length = %d, want 64 hex chars", len(a))
	}
	if a == b {
		t.Fatal("two generated tokens collided")
	}
}
