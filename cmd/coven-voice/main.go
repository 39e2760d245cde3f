// ABOUTME: Entry point for the coven-voice sales call agent
// ABOUTME: Serves Twilio webhooks and the admin API, plus small operator subcommands

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/2389/coven-voice/internal/auth"
	"github.com/2389/coven-voice/internal/config"
	"github.com/2389/coven-voice/internal/gateway"
	"github.com/2389/coven-voice/internal/store"
)

// version is set by goreleaser at build time.
var version = "dev"

const banner = `
                                              _
  ___ _____   _____ _ __   __   _____ (_) ___ ___
 / __/ _ \ \ / / _ \ '_ \  \ \ / / _ \| |/ __/ _ \
| (_| (_) \ V /  __/ | | |  \ V / (_) | | (_|  __/
 \___\___/ \_/ \___|_| |_|   \_/ \___/|_|\___\___|
`

// getConfigPath returns the path to the voice config file.
// Priority: COVEN_VOICE_CONFIG env var > XDG_CONFIG_HOME/coven/voice.yaml > ~/.config/coven/voice.yaml
func getConfigPath() string {
	if envPath := os.Getenv("COVEN_VOICE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "voice.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "coven", "voice.yaml")
}

func printUsage() {
	fmt.Println("Usage: coven-voice <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                        Start the voice agent (default)")
	fmt.Println("  init                         Create a new config file interactively")
	fmt.Println("  health                       Check readiness of a running agent")
	fmt.Println("  calls                        List active calls")
	fmt.Println("  token [-subject S] [-ttl D]  Mint an admin API token")
	fmt.Println("  version                      Print the version")
}

func main() {
	command := "serve"
	var args []string
	if len(os.Args) > 1 {
		command, args = os.Args[1], os.Args[2:]
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch command {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit(os.Stdin, os.Stdout)
	case "health":
		err = runHealth(ctx)
	case "calls":
		err = runCalls(ctx)
	case "token":
		err = runToken(args, os.Stdout)
	case "version":
		fmt.Println(version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging, os.Stdout)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	line := func(label, value string) {
		green.Print("    ▶ ")
		fmt.Printf("%-11s%s\n", label+":", value)
	}

	line("Config", configPath)
	line("Model", cfg.Model.Provider+" ("+cfg.Supervisor.Mode+" supervisor)")
	line("Sessions", cfg.Sessions.Backend)
	if cfg.Server.PublicURL != "" {
		line("Public URL", cfg.Server.PublicURL)
	}
	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("%-11s", "Tailscale:")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Funnel {
			yellow.Print(" [funnel]")
		}
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	} else {
		line("HTTP", cfg.Server.HTTPAddr)
		line("gRPC", cfg.Server.GRPCAddr)
	}
	fmt.Println()

	logger.Info("starting coven-voice",
		"version", version,
		"config", configPath,
		"provider", cfg.Model.Provider,
		"sessions", cfg.Sessions.Backend,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}
	return gw.Run(ctx)
}

// baseURL is where CLI subcommands reach a running agent.
// Priority: COVEN_VOICE_URL env var > server.http_addr from config.
func baseURL(cfg *config.Config) string {
	if u := os.Getenv("COVEN_VOICE_URL"); u != "" {
		return strings.TrimRight(u, "/")
	}
	host, port, err := net.SplitHostPort(cfg.Server.HTTPAddr)
	if err != nil {
		return "http://" + cfg.Server.HTTPAddr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// loadClientConfig loads config for subcommands that talk to a running agent.
func loadClientConfig() (*config.Config, error) {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func runHealth(ctx context.Context) error {
	cfg, err := loadClientConfig()
	if err != nil {
		return err
	}

	body, status, err := httpGet(ctx, baseURL(cfg)+"/health/ready", "")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d: %s", status, strings.TrimSpace(string(body)))
	}
	fmt.Println(string(body))
	return nil
}

// adminToken returns COVEN_VOICE_TOKEN, or mints a short-lived token when
// the config holds the signing secret.
func adminToken(cfg *config.Config) (string, error) {
	if t := os.Getenv("COVEN_VOICE_TOKEN"); t != "" {
		return t, nil
	}
	if cfg.Auth.JWTSecret == "" {
		return "", nil
	}
	return auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret)).Generate("coven-voice-cli", 5*time.Minute)
}

func runCalls(ctx context.Context) error {
	cfg, err := loadClientConfig()
	if err != nil {
		return err
	}
	token, err := adminToken(cfg)
	if err != nil {
		return fmt.Errorf("creating token: %w", err)
	}

	body, status, err := httpGet(ctx, baseURL(cfg)+"/api/calls", token)
	if err != nil {
		return fmt.Errorf("listing calls: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("listing calls: status %d: %s", status, strings.TrimSpace(string(body)))
	}

	var resp gateway.ListCallsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return printCalls(os.Stdout, resp.Calls)
}

func printCalls(w io.Writer, calls []store.Summary) error {
	if len(calls) == 0 {
		_, err := fmt.Fprintln(w, "no active calls")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "CALL\tSTAGE\tTURNS\tSTARTED\tIDLE")
	for _, c := range calls {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			c.CallID, c.Stage, c.TurnCount,
			c.CreatedAt.Local().Format("15:04:05"),
			time.Since(c.LastAccess).Round(time.Second))
	}
	return tw.Flush()
}

func runToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	subject := fs.String("subject", "operator", "operator name stored in the sub claim")
	ttl := fs.Duration("ttl", 30*24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadClientConfig()
	if err != nil {
		return err
	}
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is not set; the admin API is unauthenticated")
	}

	token, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret)).Generate(*subject, *ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}
	_, err = fmt.Fprintln(out, token)
	return err
}

func httpGet(ctx context.Context, url, token string) ([]byte, int, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("creating request: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("reading response: %w", err)
	}
	return body, resp.StatusCode, nil
}
