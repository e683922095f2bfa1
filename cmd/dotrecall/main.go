package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/dotsetgreg/dotrecall/pkg/bus"
	"github.com/dotsetgreg/dotrecall/pkg/config"
	"github.com/dotsetgreg/dotrecall/pkg/export"
	"github.com/dotsetgreg/dotrecall/pkg/gateway"
	"github.com/dotsetgreg/dotrecall/pkg/journal"
	"github.com/dotsetgreg/dotrecall/pkg/logger"
	"github.com/dotsetgreg/dotrecall/pkg/memsync"
	"github.com/dotsetgreg/dotrecall/pkg/migrate"
	"github.com/dotsetgreg/dotrecall/pkg/recall"
	"github.com/dotsetgreg/dotrecall/pkg/store"
)

var (
	version   = "dev"
	gitCommit string
	buildTime string
	goVersion string
)

const appName = "dotrecall"

func formatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v
}

func printVersion() {
	fmt.Printf("%s %s\n", appName, formatVersion())
	if buildTime != "" {
		fmt.Printf("  Build: %s\n", buildTime)
	}
	goVer := goVersion
	if goVer == "" {
		goVer = runtime.Version()
	}
	fmt.Printf("  Go: %s\n", goVer)
}

func main() {
	if err := executeCLI(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func getConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".dotrecall", "config.json")
}

func loadConfig() (*config.Config, error) {
	return config.LoadConfig(getConfigPath())
}

func journalPath(cfg *config.Config) string {
	return filepath.Join(cfg.WorkspacePath(), "state", "journal.db")
}

// buildStoreClient constructs the store client from config. A missing
// credential is reported as a warning, never an error: read paths fail
// cleanly and the gateway runs in a degraded, mirror-only mode.
func buildStoreClient(cfg *config.Config) *store.Client {
	apiKey, ok := cfg.ResolvedAPIKey()
	if !ok {
		logger.WarnC("main", "No store API key configured; memory sync is disabled until one is set")
	}
	return store.NewClient(apiKey, cfg.BaseURL(), cfg.Store.WorkspaceID)
}

func onboard() error {
	configPath := getConfigPath()

	if _, err := os.Stat(configPath); err == nil {
		fmt.Printf("Config already exists at %s\n", configPath)
		fmt.Print("Overwrite? (y/n): ")
		var response string
		if _, err := fmt.Scanln(&response); err != nil {
			fmt.Println("Aborted.")
			return nil
		}
		response = strings.ToLower(strings.TrimSpace(response))
		if response != "y" && response != "yes" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	cfg := config.DefaultConfig()
	if err := config.SaveConfig(configPath, cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	workspace := cfg.WorkspacePath()
	if err := os.MkdirAll(filepath.Join(workspace, "memory"), 0o755); err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}

	fmt.Printf("%s is ready!\n", appName)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Add your store API key to", configPath)
	fmt.Println("  2. (Gateway mode) Add your Discord bot token to channels.discord.token")
	fmt.Println("  3. Check readiness: dotrecall status")
	fmt.Println("  4. Run the gateway: dotrecall gateway")
	return nil
}

func statusCmd() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	configPath := getConfigPath()

	fmt.Printf("%s Status\n", appName)
	fmt.Printf("Version: %s\n", formatVersion())
	fmt.Println()

	mark := func(ok bool) string {
		if ok {
			return "✓"
		}
		return "✗"
	}

	_, haveConfig := os.Stat(configPath)
	fmt.Println("Config:", configPath, mark(haveConfig == nil))

	workspace := cfg.WorkspacePath()
	_, haveWorkspace := os.Stat(workspace)
	fmt.Println("Workspace:", workspace, mark(haveWorkspace == nil))

	_, apiReady := cfg.ResolvedAPIKey()
	discordReady := strings.TrimSpace(cfg.Channels.Discord.Token) != ""
	fmt.Println("Store API key:", mark(apiReady))
	fmt.Println("Store URL:", cfg.BaseURL())
	fmt.Println("Workspace ID:", cfg.Store.WorkspaceID)
	fmt.Println("Discord token:", mark(discordReady))
	fmt.Println("Sync ready:", mark(apiReady))
	fmt.Println("Gateway ready:", mark(apiReady && discordReady))

	jnlPath := journalPath(cfg)
	if _, err := os.Stat(jnlPath); err != nil {
		fmt.Println("Journal:", jnlPath, "not initialized")
		return nil
	}
	fmt.Println("Journal:", jnlPath, "✓")

	jnl, err := journal.Open(jnlPath)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer jnl.Close()

	runs, err := jnl.RecentRuns(context.Background(), 5)
	if err != nil {
		return fmt.Errorf("read recent runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Println("\nNo sync runs recorded yet.")
		return nil
	}

	fmt.Println("\nRecent sync runs:")
	for _, run := range runs {
		when := time.UnixMilli(run.CreatedAtMS).Format(time.RFC3339)
		line := fmt.Sprintf("  %s  %s  submitted=%d watermark=%d", when, run.SessionKey, run.Submitted, run.Watermark)
		if run.Duplicate {
			line += " (duplicate)"
		}
		if run.Error != "" {
			line += "  error: " + run.Error
		}
		fmt.Println(line)
	}
	return nil
}

func askCmd(message string, synthesize bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	client := buildStoreClient(cfg)
	if !client.Ready() {
		return fmt.Errorf("no store API key configured in %s or DOTRECALL_STORE_API_KEY", getConfigPath())
	}
	svc := recall.NewService(client)

	if strings.TrimSpace(message) != "" {
		answer, err := askOnce(svc, message, synthesize)
		if err != nil {
			return err
		}
		fmt.Printf("\n%s %s\n", appName, answer)
		return nil
	}

	fmt.Printf("%s Interactive mode (Ctrl+C to exit)\n\n", appName)
	return interactiveMode(svc, synthesize)
}

func askOnce(svc *recall.Service, question string, synthesize bool) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	if synthesize {
		return svc.Synthesize(ctx, question)
	}
	return svc.Recall(ctx, question)
}

func interactiveMode(svc *recall.Service, synthesize bool) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          fmt.Sprintf("%s You: ", appName),
		HistoryFile:     filepath.Join(os.TempDir(), ".dotrecall_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("initialize readline: %w", err)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				fmt.Println("\nGoodbye!")
				return nil
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			fmt.Println("Goodbye!")
			return nil
		}

		answer, err := askOnce(svc, input, synthesize)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			continue
		}
		fmt.Printf("\n%s %s\n\n", appName, answer)
	}
}

func searchCmd(query string, topK int) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	client := buildStoreClient(cfg)
	if !client.Ready() {
		return fmt.Errorf("no store API key configured in %s or DOTRECALL_STORE_API_KEY", getConfigPath())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	result, err := recall.NewService(client).Search(ctx, query, topK)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	if strings.TrimSpace(result) == "" {
		fmt.Println("No results.")
		return nil
	}
	fmt.Println(result)
	return nil
}

// syncCmd runs one sync pass over a transcript file: a JSON array of
// {role, content} turns, treated as the full log of the named thread.
func syncCmd(session, file string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	client := buildStoreClient(cfg)
	if !client.Ready() {
		return fmt.Errorf("no store API key configured in %s or DOTRECALL_STORE_API_KEY", getConfigPath())
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read transcript: %w", err)
	}
	var turns []bus.Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		return fmt.Errorf("parse transcript: %w", err)
	}

	jnl, err := journal.Open(journalPath(cfg))
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer jnl.Close()

	engine := memsync.NewEngine(client, jnl)
	result, err := engine.HandleTurnBatch(context.Background(), bus.TurnBatchEvent{
		Thread:  bus.ThreadRef{RawKey: session},
		Turns:   turns,
		Success: true,
	})
	if err != nil {
		return fmt.Errorf("sync: %w", err)
	}

	switch {
	case result.Skipped:
		fmt.Println("Nothing to sync.")
	case result.Duplicate:
		fmt.Printf("Delta already committed; watermark advanced to %d.\n", result.Watermark)
	default:
		fmt.Printf("Synced %d entries to %s (watermark %d).\n", result.Submitted, result.SessionKey, result.Watermark)
	}
	return nil
}

func migrateCmd() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	client := buildStoreClient(cfg)

	migrator := migrate.NewMigrator(client, cfg.WorkspacePath(), cfg.ArchiveDirPath())
	report, err := migrator.Run(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("Migrated %d owner facts and %d agent facts.\n", report.OwnerFacts, report.AgentFacts)
	for _, path := range report.Archived {
		fmt.Println("  archived:", path)
	}
	for _, failure := range report.Failures {
		fmt.Printf("  not archived: %s (%s)\n", failure.Path, failure.Reason)
	}
	if len(report.Failures) > 0 {
		return fmt.Errorf("%d legacy items could not be archived", len(report.Failures))
	}
	return nil
}

func exportCmd() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	client := buildStoreClient(cfg)
	if !client.Ready() {
		return fmt.Errorf("no store API key configured in %s or DOTRECALL_STORE_API_KEY", getConfigPath())
	}

	exporter := export.NewExporter(client, cfg.KnowledgeFilePath(), export.Options{
		IntervalMinutes: cfg.Export.IntervalMinutes,
	})
	if err := exporter.ExportOnce(context.Background()); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	fmt.Println("Exported knowledge to", cfg.KnowledgeFilePath())
	return nil
}

func gatewayCmd(debug bool) error {
	if debug {
		logger.SetLevel(logger.DEBUG)
		fmt.Println("Debug mode enabled")
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	client := buildStoreClient(cfg)

	jnl, err := journal.Open(journalPath(cfg))
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer jnl.Close()

	gw, err := gateway.New(cfg, client, jnl)
	if err != nil {
		return fmt.Errorf("initialize gateway: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		errChan <- gw.Run(ctx)
	}()

	fmt.Println("Gateway started. Press Ctrl+C to stop.")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)

	select {
	case <-sigChan:
		fmt.Println("\nShutting down...")
		gw.Stop()
		cancel()
		<-errChan
	case err := <-errChan:
		if err != nil {
			return err
		}
	}
	fmt.Println("Gateway stopped.")
	return nil
}
