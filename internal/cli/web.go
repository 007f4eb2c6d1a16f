package cli

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hashicorp/mdns"
	qrcode "github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"

	"github.com/agusx1211/swarmix/internal/config"
	"github.com/agusx1211/swarmix/internal/webserver"
)

const webMDNSServiceType = "_swarmix._tcp"

var webCmd = &cobra.Command{
	Use:   "web",
	Short: "Start the web observer dashboard",
	Long: `Start an HTTP/WebSocket server exposing the repository's rounds, live run
events, and a browser terminal into agent worktrees.

Examples:
  swarmix web                       # local dashboard on 127.0.0.1:8080
  swarmix web --expose              # LAN access: 0.0.0.0, TLS, auth token, QR
  swarmix web --port 9090 --open    # pick a port and open the browser`,
	Args: cobra.NoArgs,
	RunE: runWeb,
}

func init() {
	addWebFlags(webCmd)
	rootCmd.AddCommand(webCmd)
}

func addWebFlags(cmd *cobra.Command) {
	cmd.Flags().IntP("port", "p", 0, "Port to listen on (default from config, 8080)")
	cmd.Flags().String("host", "", "Host to bind to (default from config, 127.0.0.1)")
	cmd.Flags().Bool("expose", false, "Bind to 0.0.0.0 for LAN access (enables TLS and an auth token)")
	cmd.Flags().String("tls", "", "TLS mode: self-signed or custom (custom needs --cert/--key)")
	cmd.Flags().String("cert", "", "TLS certificate file for --tls=custom")
	cmd.Flags().String("key", "", "TLS key file for --tls=custom")
	cmd.Flags().String("auth-token", "", "Bearer token required on every API request")
	cmd.Flags().Float64("rate-limit", 0, "Per-IP requests per second (0 disables)")
	cmd.Flags().Bool("mdns", false, "Advertise the dashboard on the local network via mDNS")
	cmd.Flags().Bool("no-qr", false, "Skip the terminal QR code of the URL")
	cmd.Flags().Bool("open", false, "Open the dashboard in a browser")
}

func runWeb(cmd *cobra.Command, args []string) error {
	repoRoot, s, err := openRepoStore()
	if err != nil {
		return err
	}
	if err := s.EnsureRoot(); err != nil {
		return err
	}

	cfg, err := config.Load(repoRoot)
	if err != nil {
		return err
	}
	opts, expose, err := webOptionsFromFlags(cfg, cmd)
	if err != nil {
		return err
	}

	if expose && opts.AuthToken == "" {
		opts.AuthToken = generateToken()
		fmt.Fprintf(os.Stderr, "Generated auth token: %s\n", opts.AuthToken)
		fmt.Fprintln(os.Stderr, "Warning: exposing the dashboard on all interfaces.")
	}

	srv := webserver.New(s, repoRoot, opts)
	if err := srv.Start(); err != nil {
		var opErr *net.OpError
		if errors.As(err, &opErr) {
			fmt.Fprintf(os.Stderr, "Port %d is already in use.\n", opts.Port)
			fmt.Fprintf(os.Stderr, "Try: swarmix web --port %d\n", opts.Port+1)
		}
		return fmt.Errorf("starting web server: %w", err)
	}

	url := fmt.Sprintf("%s://%s", srv.Scheme(), srv.Addr())
	// OSC 8 hyperlink so terminals that support it make the URL clickable.
	fmt.Printf("\033]8;;%s\033\\%s\033]8;;\033\\\n", url, url)
	if opts.AuthToken != "" {
		fmt.Println("Auth token required for API access.")
	}

	if noQR, _ := cmd.Flags().GetBool("no-qr"); !noQR {
		if err := printWebQRCode(url); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to render QR code: %v\n", err)
		}
	}

	mdnsFlag, _ := cmd.Flags().GetBool("mdns")
	if (expose && cfg.Web.MDNS) || mdnsFlag {
		server, err := startWebMDNSService(filepath.Base(repoRoot), srv.Addr(), url)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to start mDNS advertisement: %v\n", err)
		} else {
			defer server.Shutdown()
		}
	}

	if open, _ := cmd.Flags().GetBool("open"); open {
		if err := openBrowser(url); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to open browser: %v\n", err)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down web server: %w", err)
	}
	return nil
}

// webOptionsFromFlags merges config defaults with explicit flags into server
// options. The second return reports whether --expose was requested.
func webOptionsFromFlags(cfg *config.Config, cmd *cobra.Command) (webserver.Options, bool, error) {
	opts := webserver.Options{
		Host:      cfg.Web.Host,
		Port:      cfg.Web.Port,
		TLSMode:   cfg.Web.TLSMode,
		CertFile:  cfg.Web.CertFile,
		KeyFile:   cfg.Web.KeyFile,
		AuthToken: cfg.Web.AuthToken,
		RateLimit: cfg.Web.RateLimit,
	}

	if cmd.Flags().Changed("host") {
		opts.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		opts.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("tls") {
		opts.TLSMode, _ = cmd.Flags().GetString("tls")
	}
	if cmd.Flags().Changed("cert") {
		opts.CertFile, _ = cmd.Flags().GetString("cert")
	}
	if cmd.Flags().Changed("key") {
		opts.KeyFile, _ = cmd.Flags().GetString("key")
	}
	if cmd.Flags().Changed("auth-token") {
		opts.AuthToken, _ = cmd.Flags().GetString("auth-token")
	}
	if cmd.Flags().Changed("rate-limit") {
		opts.RateLimit, _ = cmd.Flags().GetFloat64("rate-limit")
	}

	expose, _ := cmd.Flags().GetBool("expose")
	if expose {
		opts.Host = "0.0.0.0"
		if !cmd.Flags().Changed("tls") && opts.TLSMode == "" {
			opts.TLSMode = "self-signed"
		}
	}

	if opts.TLSMode != "" && opts.TLSMode != "self-signed" && opts.TLSMode != "custom" {
		return opts, false, fmt.Errorf("invalid --tls value %q, expected 'self-signed' or 'custom'", opts.TLSMode)
	}
	if opts.TLSMode == "custom" && (opts.CertFile == "" || opts.KeyFile == "") {
		return opts, false, fmt.Errorf("--tls=custom requires both --cert and --key")
	}
	return opts, expose, nil
}

func generateToken() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func startWebMDNSService(repoName, addr, url string) (*mdns.Server, error) {
	_, rawPort, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(rawPort)
	if err != nil || port <= 0 {
		return nil, fmt.Errorf("invalid port for mDNS advertisement: %s", rawPort)
	}

	name := strings.TrimSpace(repoName)
	if name == "" {
		name = "swarmix"
	}
	txtRecords := []string{
		fmt.Sprintf("repo=%s", name),
		fmt.Sprintf("url=%s", url),
	}
	service, err := mdns.NewMDNSService(name, webMDNSServiceType, "local", "", port, nil, txtRecords)
	if err != nil {
		return nil, err
	}
	return mdns.NewServer(&mdns.Config{Zone: service})
}

func printWebQRCode(url string) error {
	code, err := qrcode.New(url, qrcode.Medium)
	if err != nil {
		return err
	}
	fmt.Println(code.ToSmallString(false))
	return nil
}

func openBrowser(url string) error {
	name, args := "xdg-open", []string{url}
	switch runtime.GOOS {
	case "darwin":
		name = "open"
	case "windows":
		name, args = "rundll32", []string{"url.dll,FileProtocolHandler", url}
	}
	return exec.Command(name, args...).Start()
}
