// ABOUTME: Entry point for the taskstream client CLI
// ABOUTME: Chats with an agent server and renders its task progress live in the terminal

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/taskstream/internal/client"
	"github.com/2389/taskstream/internal/chat"
)

// Version is set at build time.
var version = "dev"

var (
	cfgFile   string
	serverURL string
	logLevel  string
	noColor   bool
)

var rootCmd = &cobra.Command{
	Use:   "taskstream",
	Short: "Chat with a task agent and watch its progress",
	Long: `taskstream sends requests to an agent server and renders the agent's
answer and execution steps as they stream in.

Configuration is read from $TASKSTREAM_CONFIG or
$XDG_CONFIG_HOME/taskstream/client.toml. Flags override the file.`,
	SilenceUsage: true,
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat",
	RunE:  runChat,
}

var sendCmd = &cobra.Command{
	Use:   "send <message>",
	Short: "Send one message and wait for the agent to finish",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSend,
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List sessions known to the server",
	RunE:  runSessions,
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check server health",
	RunE:  runHealth,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: $XDG_CONFIG_HOME/taskstream/client.toml)")
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "", "Agent server URL")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable coloured output")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// loadSettings reads the config file and applies flag overrides.
func loadSettings() (*Config, *slog.Logger, error) {
	path := cfgFile
	if path == "" {
		path = configPath()
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, nil, err
	}
	if serverURL != "" {
		cfg.Server.URL = serverURL
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	if noColor {
		color.NoColor = true
	}
	noColor = color.NoColor

	return cfg, newLogger(os.Stderr, cfg.Logging.Level), nil
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadSettings()
	if err != nil {
		return err
	}

	sess := newChatSession(cfg, cmd.OutOrStdout(), logger, false)
	defer sess.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	cyan := color.New(color.FgCyan, color.Bold)
	gray := color.New(color.FgHiBlack)

	fmt.Fprintln(out, cyan.Sprint("taskstream"), gray.Sprintf("connected to %s", cfg.Server.URL))
	fmt.Fprintln(out, gray.Sprint("Type /help for commands, /quit to exit."))
	fmt.Fprintln(out)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(cmd.InOrStdin())
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		fmt.Fprint(out, cyan.Sprint("you> "))

		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(out)
				return nil
			}
			line = strings.TrimSpace(l)
		}

		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := handleSlashCommand(out, sess, line); quit {
				return nil
			}
			continue
		}

		err := sess.turn(ctx, line)
		switch {
		case err == nil, isSeedFailure(err):
			// Seed failures are already shown as an error message
		case errors.Is(err, context.Canceled):
			return nil
		default:
			fmt.Fprintln(out, color.RedString("stream ended: %v", err))
		}
	}
}

// handleSlashCommand runs a REPL command and reports whether to quit.
func handleSlashCommand(out io.Writer, sess *chatSession, line string) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprintln(out, "Commands:")
		fmt.Fprintln(out, "  /session   Show the current session id")
		fmt.Fprintln(out, "  /history   Reprint the conversation")
		fmt.Fprintln(out, "  /quit      Exit")
	case "/session":
		if id := sess.conv.SessionID(); id != "" {
			fmt.Fprintf(out, "session: %s\n", id)
		} else {
			fmt.Fprintln(out, "no session yet")
		}
	case "/history":
		for _, m := range sess.store.Snapshot() {
			sess.renderer.Message(m)
		}
	default:
		fmt.Fprintf(out, "unknown command %s (try /help)\n", fields[0])
	}
	return false
}

func runSend(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadSettings()
	if err != nil {
		return err
	}

	sess := newChatSession(cfg, cmd.OutOrStdout(), logger, false)
	defer sess.Close()

	err = sess.turn(cmd.Context(), strings.Join(args, " "))
	if err != nil {
		return err
	}

	// An agent-reported failure ends the stream normally; surface it as the exit status
	for _, m := range sess.store.Snapshot() {
		if m.Status == chat.StatusError {
			return fmt.Errorf("agent reported an error")
		}
	}
	return nil
}

func runSessions(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadSettings()
	if err != nil {
		return err
	}

	c := client.New(cfg.Server.URL, client.Options{
		SeedTimeout: cfg.Client.SeedTimeout.Duration,
		Logger:      logger,
	})
	resp, err := c.Sessions(cmd.Context())
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(resp.Sessions) == 0 {
		fmt.Fprintln(out, "No sessions found.")
		return nil
	}

	fmt.Fprintln(out, strings.Repeat("─", 72))
	for _, s := range resp.Sessions {
		fmt.Fprintf(out, "  %-36s  %-9s  step %d/%d  %s\n",
			s.ID, s.Status, min(s.CurrentStep+1, s.TotalSteps), s.TotalSteps,
			s.UpdatedAt.Local().Format(time.DateTime))
	}
	fmt.Fprintln(out, strings.Repeat("─", 72))
	fmt.Fprintf(out, "Total: %d sessions\n", resp.Total)
	return nil
}

func runHealth(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadSettings()
	if err != nil {
		return err
	}

	c := client.New(cfg.Server.URL, client.Options{
		SeedTimeout: cfg.Client.SeedTimeout.Duration,
		Logger:      logger,
	})
	health, err := c.Health(cmd.Context())
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s (%s %s)\n", health.Status, health.Service, health.Version)
	return nil
}
