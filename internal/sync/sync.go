package sync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/conorfennell/flashstudy/internal/gitsource"
	"github.com/conorfennell/flashstudy/internal/knol"
	"github.com/conorfennell/flashstudy/internal/parser"
	"github.com/conorfennell/flashstudy/internal/storage"
)

// Report summarizes one reconciled source.
type Report struct {
	SourceID int64 `json:"source_id"`
	Parsed   int   `json:"parsed"`
	Inserted int   `json:"inserted"`
	Deleted  int   `json:"deleted"`
	Errors   int   `json:"errors"`
}

// AddSource registers a local directory or git URL, detecting which it is.
func AddSource(db *storage.DB, path string) (int64, error) {
	sourceType := storage.SourceLocal
	if gitsource.IsGitURL(path) {
		sourceType = storage.SourceGit
	}
	return db.InsertSource(path, sourceType)
}

// Run iterates over all sources and reconciles them. Git sources are cloned or
// pulled into reposDir first. A failing source is logged and skipped.
func Run(ctx context.Context, db *storage.DB, reposDir string) ([]Report, error) {
	slog.Info("Starting sync process for all sources...")
	sources, err := db.GetAllSources()
	if err != nil {
		return nil, fmt.Errorf("failed to get sources: %w", err)
	}

	if len(sources) == 0 {
		slog.Info("No sources configured. Add one with: flashstudy add-source <path/or/url.git>")
		return nil, nil
	}

	var reports []Report
	for _, source := range sources {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		slog.Info("Syncing source", "id", source.ID, "type", source.Type, "path", source.Path)

		dir := source.Path
		if source.Type == storage.SourceGit {
			localPath, err := gitsource.LocalPath(reposDir, source.Path)
			if err != nil {
				slog.Error("Error determining local path for git repo", "url", source.Path, "error", err)
				continue
			}
			if err := os.MkdirAll(filepath.Dir(localPath), os.ModePerm); err != nil {
				slog.Error("Failed to create repos directory", "path", localPath, "error", err)
				continue
			}
			if err := gitsource.Sync(ctx, source.Path, localPath); err != nil {
				slog.Error("Error syncing git repo", "url", source.Path, "error", err)
				continue
			}
			dir = localPath
		}

		report, err := reconcile(db, source.ID, dir)
		if err != nil {
			slog.Error("Error reconciling source", "id", source.ID, "path", dir, "error", err)
			continue
		}
		reports = append(reports, report)
	}
	slog.Info("Sync process complete.", "sources", len(reports))
	return reports, nil
}

// reconcile inserts cards found under dir that the database lacks and deletes
// the source's cards that are no longer found. Existing cards keep their
// schedule.
func reconcile(db *storage.DB, sourceID int64, dir string) (Report, error) {
	report := Report{SourceID: sourceID}
	found := make(map[string]bool)
	var errs []error

	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}

		cards, parseErr := parser.ParseFile(path)
		if parseErr != nil {
			errs = append(errs, fmt.Errorf("parsing %s: %w", path, parseErr))
		}
		for _, card := range cards {
			card.ID = knol.ID(card)
			report.Parsed++
			if found[card.ID] {
				continue
			}
			found[card.ID] = true

			existing, findErr := db.FindCardByID(card.ID)
			if findErr != nil {
				errs = append(errs, fmt.Errorf("db check for %s: %w", card.ID, findErr))
				continue
			}
			if existing != nil {
				continue
			}
			slog.Debug("New card found, inserting", "id", card.ID, "deck", card.Deck)
			if insertErr := db.InsertCard(card, sourceID); insertErr != nil {
				errs = append(errs, fmt.Errorf("db insert for %s: %w", card.ID, insertErr))
				continue
			}
			report.Inserted++
		}
		return nil
	})
	if walkErr != nil {
		return report, fmt.Errorf("error walking directory %s: %w", dir, walkErr)
	}

	dbCards, err := db.GetCardsBySourceID(sourceID)
	if err != nil {
		return report, fmt.Errorf("error getting cards for source: %w", err)
	}
	for _, dbCard := range dbCards {
		if found[dbCard.ID] {
			continue
		}
		slog.Info("Orphaned card, deleting", "id", dbCard.ID)
		if err := db.DeleteCardByID(dbCard.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		report.Deleted++
	}

	if err := db.UpdateSourceLastScanned(sourceID); err != nil {
		slog.Warn("Failed to update last scanned for source", "source_id", sourceID, "error", err)
	}

	report.Errors = len(errs)
	if len(errs) > 0 {
		slog.Warn("reconciliation finished with errors", "path", dir, "error", errors.Join(errs...))
	}
	slog.Info("reconciliation complete",
		"path", dir,
		"parsed_cards", report.Parsed,
		"inserted", report.Inserted,
		"orphaned_deleted", report.Deleted,
		"errors", report.Errors,
	)
	return report, nil
}
