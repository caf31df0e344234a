package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/XiaoConstantine/ace-go/pkg/ace"
	"github.com/XiaoConstantine/ace-go/pkg/config"
	"github.com/XiaoConstantine/ace-go/pkg/llm"
	"github.com/XiaoConstantine/ace-go/pkg/logging"
	"github.com/XiaoConstantine/ace-go/pkg/playbook"
	"github.com/XiaoConstantine/ace-go/pkg/storage"
)

var (
	headerColor  = color.New(color.FgCyan, color.Bold)
	sectionColor = color.New(color.FgYellow)
	dimColor     = color.New(color.Faint)
)

// setupLogging installs a global logger matching the config.
func setupLogging(cfg *config.Config) error {
	outputs := []logging.Output{logging.NewConsoleOutput(true)}
	if cfg.Logging.File != "" {
		fileOutput, err := logging.NewFileOutput(cfg.Logging.File)
		if err != nil {
			return err
		}
		outputs = append(outputs, fileOutput)
	}
	logging.SetLogger(logging.NewLogger(logging.Config{
		Severity: logging.ParseSeverity(cfg.Logging.Level),
		Outputs:  outputs,
	}))
	return nil
}

// managerOptions maps the engine configuration onto loop options. The same
// chat options apply to every gateway call the loop makes.
func managerOptions(cfg *config.Config) ace.ManagerOptions {
	chat := &llm.ChatOptions{
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	}
	return ace.ManagerOptions{
		Generate: &ace.GenerateOptions{
			MaxBullets:       cfg.Generator.MaxBullets,
			PrioritySections: cfg.Generator.PrioritySections,
			Chat:             chat,
		},
		Reflect: &ace.ReflectOptions{
			MaxIterations:    cfg.Reflector.MaxIterations,
			QualityThreshold: cfg.Reflector.QualityThreshold,
			Chat:             chat,
		},
		Curate: &ace.CurateOptions{
			MinConfidence:       cfg.Curator.MinConfidence,
			EnableDeduplication: cfg.Curator.EnableDeduplication,
			DedupThreshold:      cfg.Curator.DedupThreshold,
			Chat:                chat,
		},
	}
}

// loadPlaybook builds the store and, when persistence is configured,
// restores the latest snapshot into it.
func loadPlaybook(cfg *config.Config) (*playbook.Store, *storage.SQLiteStore, error) {
	store := playbook.NewStore(playbook.Config{MaxBullets: cfg.Playbook.MaxBullets})

	path := dbPath
	if path == "" {
		path = cfg.Storage.Path
	}
	if path == "" {
		return store, nil, nil
	}

	db, err := storage.NewSQLiteStore(path)
	if err != nil {
		return nil, nil, err
	}
	bullets, err := db.Load()
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	store.Import(bullets)
	return store, db, nil
}

var askCmd = &cobra.Command{
	Use:   "ask [query]",
	Short: "Run a query through the full learning loop",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if err := setupLogging(cfg); err != nil {
			return err
		}

		store, db, err := loadPlaybook(cfg)
		if err != nil {
			return err
		}
		if db != nil {
			defer db.Close()
		}

		gateway, err := llm.NewAnthropicGateway(cfg.LLM.APIKey, cfg.LLM.ModelID)
		if err != nil {
			return err
		}

		manager := ace.NewManager(store, gateway, managerOptions(cfg))

		result, err := manager.Process(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}

		headerColor.Println("Response")
		fmt.Println(result.Trajectory.Response)
		fmt.Println()

		if result.Curation != nil {
			dimColor.Printf("learning: %s\n", result.Curation.Summary)
		}
		if result.Reflection != nil {
			dimColor.Printf("reflection: %d insights after %d iterations (quality %.2f)\n",
				len(result.Reflection.Insights), result.Reflection.Iterations,
				result.Reflection.QualityScore)
		}

		if db != nil {
			return db.Save(store.Export())
		}
		return nil
	},
}

var playbookCmd = &cobra.Command{
	Use:   "playbook",
	Short: "Inspect the stored playbook",
}

var playbookListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all bullets grouped by section",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, db, err := openConfiguredPlaybook()
		if err != nil {
			return err
		}
		if db != nil {
			defer db.Close()
		}

		bullets := store.Query(playbook.Filter{})
		if len(bullets) == 0 {
			fmt.Println("playbook is empty")
			return nil
		}

		bySection := map[string][]playbook.Bullet{}
		var sections []string
		for _, b := range bullets {
			if _, seen := bySection[b.Section]; !seen {
				sections = append(sections, b.Section)
			}
			bySection[b.Section] = append(bySection[b.Section], b)
		}

		for _, section := range sections {
			sectionColor.Printf("[%s]\n", section)
			for _, b := range bySection[section] {
				fmt.Printf("  %s\n", b.Content)
				dimColor.Printf("    id=%s helpful=%d harmful=%d\n",
					b.ID, b.Metadata.HelpfulCount, b.Metadata.HarmfulCount)
			}
		}
		return nil
	},
}

var playbookStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show playbook statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, db, err := openConfiguredPlaybook()
		if err != nil {
			return err
		}
		if db != nil {
			defer db.Close()
		}

		stats := store.Stats()
		headerColor.Println("Playbook statistics")
		fmt.Printf("total bullets:   %d\n", stats.Total)
		fmt.Printf("avg helpful:     %.2f\n", stats.AvgHelpful)
		fmt.Printf("avg harmful:     %.2f\n", stats.AvgHarmful)
		for section, count := range stats.BySection {
			fmt.Printf("  %-16s %d\n", section, count)
		}
		return nil
	},
}

var playbookSearchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search bullets by content",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, db, err := openConfiguredPlaybook()
		if err != nil {
			return err
		}
		if db != nil {
			defer db.Close()
		}

		results := store.Search(context.Background(), strings.Join(args, " "),
			playbook.SearchOptions{Limit: 10})
		if len(results) == 0 {
			fmt.Println("no matches")
			return nil
		}
		for _, r := range results {
			fmt.Println(formatSearchResult(r))
		}
		return nil
	},
}

func formatSearchResult(r playbook.SearchResult) string {
	return fmt.Sprintf("%.2f  [%s] %s", r.Score, r.Bullet.Section, r.Bullet.Content)
}

func openConfiguredPlaybook() (*playbook.Store, *storage.SQLiteStore, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	return loadPlaybook(cfg)
}

func init() {
	playbookCmd.AddCommand(playbookListCmd)
	playbookCmd.AddCommand(playbookStatsCmd)
	playbookCmd.AddCommand(playbookSearchCmd)
}
