// Package config handles configuration loading for coven-voice.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// Zero-valued fields receive defaults before validation.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from COVEN_VOICE_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/coven/voice.yaml
//  3. ~/.config/coven/voice.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	twilio:
//	  auth_token: "${TWILIO_AUTH_TOKEN}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	model:
//	  timeout: "20s"
//	sessions:
//	  idle_timeout: "5m"
//	  sweep_interval: "1m"
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  grpc_addr: "0.0.0.0:50051"  # gRPC health
//	  http_addr: "0.0.0.0:8080"   # Twilio webhooks and admin API
//	  public_url: "https://voice.example.com"
//
// Language model:
//
//	model:
//	  provider: "groq"            # groq, openai, gemini
//	  api_key: "${GROQ_API_KEY}"
//	  name: "llama-3.3-70b-versatile"
//	  timeout: "20s"              # 1s..60s
//
// Sessions:
//
//	sessions:
//	  backend: "memory"           # memory, sqlite, badger
//	  path: "/var/lib/coven/voice.db"
//	  idle_timeout: "5m"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
