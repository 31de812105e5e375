package main

import (
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/spf13/cobra"

	"github.com/kalambet/noted/internal/backup"
	"github.com/kalambet/noted/internal/config"
	"github.com/kalambet/noted/internal/embedding"
	"github.com/kalambet/noted/internal/health"
	"github.com/kalambet/noted/internal/maintain"
	"github.com/kalambet/noted/internal/notes"
	"github.com/kalambet/noted/internal/storage"
)

// openLocal opens the database and embedding engine directly, without going
// through the HTTP server. Maintenance commands work on a stopped server too.
func openLocal() (config.Config, *storage.Store, *embedding.Engine, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, nil, err
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return config.Config{}, nil, nil, fmt.Errorf("opening storage: %w", err)
	}

	client := embedding.NewClient(cfg.Ollama.BaseURL)
	engine := embedding.NewEngine(client, cfg.Ollama.EmbedModel, cfg.Embedding.Dimension)
	return cfg, store, engine, nil
}

// --- reembed ---

var reembedCmd = &cobra.Command{
	Use:   "reembed",
	Short: "Regenerate note embeddings",
	Long: `Regenerate note embeddings.

By default only notes with a missing or unusable embedding are processed.
Use --all after switching embedding models to rebuild every vector.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		batchSize, _ := cmd.Flags().GetInt("batch-size")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		_, store, engine, err := openLocal()
		if err != nil {
			return err
		}
		defer store.Close()

		mode := maintain.ModeMissing
		if all {
			mode = maintain.ModeAll
		}

		if dryRun {
			printStep("Dry run: counting notes that would be re-embedded (%s)", mode)
		} else {
			printStep("Re-embedding notes (%s)", mode)
		}

		maintainer := maintain.New(store, engine, slog.Default())
		report, err := maintainer.Run(cmd.Context(), maintain.Options{
			Mode:      mode,
			BatchSize: batchSize,
			DryRun:    dryRun,
		})
		if err != nil {
			return err
		}

		printStatus("Scanned", "%d", report.Scanned)
		printStatus("Updated", "%d", report.Updated)
		printStatus("Failed", "%d", report.Failed)
		if report.Failed > 0 {
			printWarning("%d notes could not be embedded; they keep their previous state", report.Failed)
		} else if !dryRun {
			printSuccess("Embeddings up to date")
		}
		return nil
	},
}

func init() {
	reembedCmd.Flags().Bool("all", false, "re-embed every note, not just missing ones")
	reembedCmd.Flags().Int("batch-size", maintain.DefaultBatchSize, "notes to load per batch")
	reembedCmd.Flags().Bool("dry-run", false, "report what would change without writing")
}

// --- backup ---

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Create a database backup",
	RunE: func(cmd *cobra.Command, args []string) error {
		outputDir, _ := cmd.Flags().GetString("output-dir")
		keep, _ := cmd.Flags().GetInt("keep")

		cfg, store, _, err := openLocal()
		if err != nil {
			return err
		}
		defer store.Close()

		if outputDir == "" {
			outputDir = cfg.Backup.OutputDir
		}
		if !cmd.Flags().Changed("keep") {
			keep = cfg.Backup.Keep
		}

		mgr := backup.NewManager(store, slog.Default())
		path, err := mgr.Backup(cmd.Context(), outputDir, keep)
		if err != nil {
			return err
		}

		printSuccess("Backup written to %s", path)

		artifacts, err := backup.ListArtifacts(outputDir)
		if err == nil {
			printStatus("Backups kept", "%d", len(artifacts))
		}
		return nil
	},
}

func init() {
	backupCmd.Flags().String("output-dir", "", "directory for backup files (default from config)")
	backupCmd.Flags().Int("keep", backup.DefaultKeep, "number of backups to retain")
}

// --- health ---

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check database and embedding model health",
	RunE: func(cmd *cobra.Command, args []string) error {
		verbose, _ := cmd.Flags().GetBool("verbose")

		_, store, engine, err := openLocal()
		if err != nil {
			return err
		}
		defer store.Close()

		reporter := health.NewReporter(store, engine)
		report := reporter.Check(cmd.Context())

		if report.Healthy() {
			printSuccess("Status: %s", report.Status)
		} else {
			printError("Status: %s", report.Status)
		}

		if verbose || !report.Healthy() {
			printStatus("Database", "%s", report.Checks.Database)
			printStatus("Embedding model", "%s", report.Checks.EmbeddingModel)
			printStatus("Notes", "%d total, %d embedded, %d missing",
				report.Checks.Notes.Total,
				report.Checks.Notes.WithEmbeddings,
				report.Checks.Notes.WithoutEmbeddings,
			)
		}

		if !report.Healthy() {
			return fmt.Errorf("one or more health checks failed")
		}
		return nil
	},
}

func init() {
	healthCmd.Flags().Bool("verbose", false, "show individual check results")
}

// --- seed ---

var seedTopics = []string{
	"Picked up a new sourdough starter from the farmers market, feed it twice daily",
	"The cat knocked the monstera off the windowsill again, move it to the shelf",
	"Quarterly review notes: shipping velocity up, need to improve test coverage",
	"Recipe idea: miso butter pasta with roasted mushrooms and scallions",
	"Bike chain is skipping under load, probably needs a new cassette too",
	"Book recommendation from Sam: The Dispossessed by Ursula K. Le Guin",
	"Wifi drops in the back room, try moving the router or adding a mesh node",
	"Gift ideas for mom: ceramics class voucher, the blue scarf from the market",
	"Meeting takeaway: migrate the reporting job before the end of the quarter",
	"Stretching routine helps the lower back, keep doing it every morning",
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert sample notes for trying out search",
	RunE: func(cmd *cobra.Command, args []string) error {
		count, _ := cmd.Flags().GetInt("count")
		if count < 1 {
			return fmt.Errorf("count must be at least 1")
		}

		_, store, engine, err := openLocal()
		if err != nil {
			return err
		}
		defer store.Close()

		svc := notes.NewService(store, engine, slog.Default())

		printStep("Seeding %d sample notes", count)
		created := 0
		for i := 0; i < count; i++ {
			content := seedTopics[i%len(seedTopics)]
			if i >= len(seedTopics) {
				content = fmt.Sprintf("%s (variation %d)", content, rand.Intn(1000))
			}
			if _, err := svc.Create(cmd.Context(), "", content); err != nil {
				printError("Failed to seed note %d: %v", i+1, err)
				continue
			}
			created++
		}

		printSuccess("Seeded %d notes", created)
		return nil
	},
}

func init() {
	seedCmd.Flags().Int("count", len(seedTopics), "number of sample notes to insert")
}
