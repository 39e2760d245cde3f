// ABOUTME: Interactive config file generation for coven-voice
// ABOUTME: Prompts for listeners, Twilio, model and session settings and writes YAML

package main

import (
	"bufio"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// getDataPath returns the directory for session databases.
// Priority: XDG_DATA_HOME/coven-voice > ~/.local/share/coven-voice
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "coven-voice")
}

func runInit(in io.Reader, out io.Writer) error {
	reader := bufio.NewReader(in)
	ask := func(question, defaultVal string) string {
		return prompt(reader, out, question, defaultVal)
	}
	yes := func(question string) bool {
		a := strings.ToLower(ask(question, "no"))
		return a == "yes" || a == "y"
	}

	_, _ = fmt.Fprintln(out, "coven-voice configuration setup")
	_, _ = fmt.Fprintln(out, "===============================")
	_, _ = fmt.Fprintln(out)

	outputFile := ask("Config file path", getConfigPath())
	if _, err := os.Stat(outputFile); err == nil {
		if !yes("File exists. Overwrite?") {
			_, _ = fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	_, _ = fmt.Fprintln(out, "\n--- Server Configuration ---")
	httpAddr := ask("HTTP address", "0.0.0.0:8080")
	grpcAddr := ask("gRPC health address", "0.0.0.0:50051")
	publicURL := ask("Public URL Twilio reaches (leave empty if using Funnel)", "")

	_, _ = fmt.Fprintln(out, "\n--- Tailscale Configuration ---")
	tailscaleEnabled := yes("Enable Tailscale?")
	var tsHostname, tsAuthKey string
	var tsEphemeral, tsFunnel bool
	if tailscaleEnabled {
		tsHostname = ask("Tailscale hostname", "coven-voice")
		tsAuthKey = ask("Tailscale auth key (leave empty for interactive)", "")
		tsEphemeral = yes("Ephemeral node?")
		tsFunnel = yes("Enable Funnel (public HTTPS for Twilio)?")
	}

	_, _ = fmt.Fprintln(out, "\n--- Twilio Configuration ---")
	accountSID := ask("Account SID (leave empty to disable outbound calls)", "${TWILIO_ACCOUNT_SID}")
	authToken := ask("Auth token", "${TWILIO_AUTH_TOKEN}")
	phoneNumber := ask("Caller ID phone number", "")
	validate := yes("Validate webhook signatures?")

	_, _ = fmt.Fprintln(out, "\n--- Model Configuration ---")
	provider := ask("Provider (groq/openai/gemini)", "groq")
	apiKey := ask("API key", "${"+strings.ToUpper(provider)+"_API_KEY}")
	mode := ask("Supervisor (model/rules)", "model")

	_, _ = fmt.Fprintln(out, "\n--- Session Configuration ---")
	backend := ask("Session backend (memory/sqlite/badger)", "memory")
	var sessionPath string
	switch backend {
	case "sqlite":
		sessionPath = ask("SQLite database path", filepath.Join(getDataPath(), "sessions.db"))
	case "badger":
		sessionPath = ask("Badger directory", filepath.Join(getDataPath(), "sessions"))
	}

	_, _ = fmt.Fprintln(out, "\n--- Logging Configuration ---")
	logLevel := ask("Log level (debug/info/warn/error)", "info")
	logFormat := ask("Log format (text/json)", "text")

	secret, err := randomSecret()
	if err != nil {
		return fmt.Errorf("generating jwt secret: %w", err)
	}

	var cfg strings.Builder
	cfg.WriteString("# coven-voice configuration\n")
	cfg.WriteString("# Generated by coven-voice init\n\n")

	cfg.WriteString("server:\n")
	fmt.Fprintf(&cfg, "  http_addr: %q\n", httpAddr)
	fmt.Fprintf(&cfg, "  grpc_addr: %q\n", grpcAddr)
	if publicURL != "" {
		fmt.Fprintf(&cfg, "  public_url: %q\n", publicURL)
	}
	cfg.WriteString("\n")

	cfg.WriteString("tailscale:\n")
	fmt.Fprintf(&cfg, "  enabled: %t\n", tailscaleEnabled)
	if tailscaleEnabled {
		fmt.Fprintf(&cfg, "  hostname: %q\n", tsHostname)
		if tsAuthKey != "" {
			fmt.Fprintf(&cfg, "  auth_key: %q\n", tsAuthKey)
		}
		fmt.Fprintf(&cfg, "  ephemeral: %t\n", tsEphemeral)
		fmt.Fprintf(&cfg, "  funnel: %t\n", tsFunnel)
	}
	cfg.WriteString("\n")

	cfg.WriteString("twilio:\n")
	fmt.Fprintf(&cfg, "  account_sid: %q\n", accountSID)
	fmt.Fprintf(&cfg, "  auth_token: %q\n", authToken)
	if phoneNumber != "" {
		fmt.Fprintf(&cfg, "  phone_number: %q\n", phoneNumber)
	}
	fmt.Fprintf(&cfg, "  validate_signatures: %t\n", validate)
	cfg.WriteString("\n")

	cfg.WriteString("model:\n")
	fmt.Fprintf(&cfg, "  provider: %q\n", provider)
	fmt.Fprintf(&cfg, "  api_key: %q\n", apiKey)
	cfg.WriteString("  timeout: \"20s\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("supervisor:\n")
	fmt.Fprintf(&cfg, "  mode: %q\n", mode)
	cfg.WriteString("\n")

	cfg.WriteString("sessions:\n")
	fmt.Fprintf(&cfg, "  backend: %q\n", backend)
	if sessionPath != "" {
		fmt.Fprintf(&cfg, "  path: %q\n", sessionPath)
	}
	cfg.WriteString("  idle_timeout: \"5m\"\n")
	cfg.WriteString("  sweep_interval: \"1m\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("conversation:\n")
	cfg.WriteString("  max_turns: 15\n")
	cfg.WriteString("\n")

	cfg.WriteString("auth:\n")
	fmt.Fprintf(&cfg, "  jwt_secret: %q\n", secret)
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	fmt.Fprintf(&cfg, "  level: %q\n", logLevel)
	fmt.Fprintf(&cfg, "  format: %q\n", logFormat)

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	// The file holds credentials and the signing secret.
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	if sessionPath != "" {
		if err := os.MkdirAll(filepath.Dir(sessionPath), 0755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
	}

	_, _ = fmt.Fprintf(out, "\nConfig written to %s\n", outputFile)
	_, _ = fmt.Fprintln(out, "\nTo start the agent:")
	_, _ = fmt.Fprintln(out, "  coven-voice serve")
	_, _ = fmt.Fprintln(out, "\nTo mint an admin API token:")
	_, _ = fmt.Fprintln(out, "  coven-voice token -subject you")

	return nil
}

func prompt(reader *bufio.Reader, out io.Writer, question, defaultVal string) string {
	if defaultVal != "" {
		_, _ = fmt.Fprintf(out, "%s [%s]: ", question, defaultVal)
	} else {
		_, _ = fmt.Fprintf(out, "%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		// On EOF or error, return default
		_, _ = fmt.Fprintln(out)
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
