// ABOUTME: Entry point for taskstream-server, the reference agent behind the chat client
// ABOUTME: Serves the chat, stream, sessions and health endpoints over HTTP

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/lmittmann/tint"
	"gopkg.in/yaml.v3"

	"github.com/2389/taskstream/internal/api"
	"github.com/2389/taskstream/internal/config"
	"github.com/2389/taskstream/internal/gateway"
)

// Version is set at build time.
var version = "dev"

const banner = `
  _            _        _
 | |_ __ _ ___| | _____| |_ _ __ ___  __ _ _ __ ___
 | __/ _' / __| |/ / __| __| '__/ _ \/ _' | '_ ' _ \
 | || (_| \__ \   <\__ \ |_| | |  __/ (_| | | | | | |
  \__\__,_|___/_|\_\___/\__|_|  \___|\__,_|_| |_| |_|
`

// getConfigPath returns the path to the server config file.
// Priority: TASKSTREAM_SERVER_CONFIG env var > XDG_CONFIG_HOME/taskstream/server.yaml > ~/.config/taskstream/server.yaml
func getConfigPath() string {
	if envPath := os.Getenv("TASKSTREAM_SERVER_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "server.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "taskstream", "server.yaml")
}

// getDataPath returns the path to the taskstream data directory.
// Priority: XDG_DATA_HOME/taskstream > ~/.local/share/taskstream
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "taskstream")
}

// loadConfig reads the config file, falling back to defaults when none exists.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := config.Default()
		cfg.Database.Path = filepath.Join(getDataPath(), "sessions.db")
		return cfg, nil
	}
	return config.Load(path)
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: taskstream-server <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                  Start the server")
		fmt.Println("  init                   Create a new config file interactively")
		fmt.Println("  health                 Check server health")
		fmt.Println("  version                Print the version")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit(os.Stdin)
	case "health":
		err = runHealth(ctx)
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	gateway.Version = version

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Database.Path)
	green.Print("    ▶ ")
	fmt.Printf("Pacing:    %s ± %s per report\n", cfg.Runner.StepDelay, cfg.Runner.StepJitter)
	fmt.Println()

	logger.Info("starting taskstream-server",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}
	return gw.Run(ctx)
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
			NoColor:    color.NoColor,
		})
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func runHealth(ctx context.Context) error {
	cfg, err := loadConfig(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	addr := cfg.Server.HTTPAddr
	if strings.HasPrefix(addr, "0.0.0.0:") {
		addr = "localhost:" + strings.TrimPrefix(addr, "0.0.0.0:")
	}

	url := fmt.Sprintf("http://%s%s", addr, api.HealthPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	var health api.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("decoding health response: %w", err)
	}
	fmt.Printf("healthy (%s %s)\n", health.Service, health.Version)
	return nil
}

// runInit writes a config file from answers read on in.
func runInit(in io.Reader) error {
	reader := bufio.NewReader(in)

	fmt.Println("taskstream-server configuration setup")
	fmt.Println("=====================================")
	fmt.Println()

	outputFile := prompt(reader, "Config file path", getConfigPath())

	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if !isYes(overwrite) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	defaults := config.Default()

	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", "localhost:8080")

	fmt.Println("\n--- Database Configuration ---")
	dbPath := prompt(reader, "SQLite database path", filepath.Join(getDataPath(), "sessions.db"))

	fmt.Println("\n--- Agent Pacing ---")
	stepDelay := prompt(reader, "Delay between progress reports", defaults.Runner.StepDelay.String())
	stepJitter := prompt(reader, "Random extra delay", defaults.Runner.StepJitter.String())

	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	cfg := config.Config{
		Server: config.ServerConfig{
			HTTPAddr:           httpAddr,
			KeepAliveRaw:       defaults.Server.KeepAlive.String(),
			ShutdownTimeoutRaw: defaults.Server.ShutdownTimeout.String(),
		},
		Database: config.DatabaseConfig{Path: dbPath},
		Runner: config.RunnerConfig{
			StepDelayRaw:  stepDelay,
			StepJitterRaw: stepJitter,
		},
		Logging: config.LoggingConfig{Level: logLevel, Format: logFormat},
	}

	body, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	content := "# taskstream-server configuration\n# Generated by taskstream-server init\n\n" + string(body)
	if err := os.WriteFile(outputFile, []byte(content), 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	// Catch typos before the first serve
	if _, err := config.Load(outputFile); err != nil {
		return fmt.Errorf("generated config is invalid: %w", err)
	}

	fmt.Printf("\nConfiguration written to %s\n", outputFile)
	fmt.Println("Start the server with: taskstream-server serve")
	return nil
}

// prompt asks a question and returns the answer or the default.
func prompt(reader *bufio.Reader, question, defaultValue string) string {
	if defaultValue != "" {
		fmt.Printf("%s [%s]: ", question, defaultValue)
	} else {
		fmt.Printf("%s: ", question)
	}

	answer, err := reader.ReadString('\n')
	if err != nil && answer == "" {
		return defaultValue
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return defaultValue
	}
	return answer
}

func isYes(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "y" || s == "yes"
}
