// Package sync reconciles configured card sources into decks and cards.
// Each source owns one deck; cards are matched across runs by their
// normalized content hash. Cards that disappear from a source are deleted,
// which cascades away their per-user memory state and review history.
package sync

import (
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kioku-app/kioku/internal/cardhash"
	"github.com/kioku-app/kioku/internal/domain"
	"github.com/kioku-app/kioku/internal/gitsource"
	"github.com/kioku-app/kioku/internal/parser"
	"github.com/kioku-app/kioku/internal/storage"
)

// ReposDir is where git sources are checked out.
const ReposDir = "repos"

// SourceType guesses whether a configured path is a git URL or a local
// directory.
func SourceType(path string) string {
	if strings.HasSuffix(path, ".git") || strings.HasPrefix(path, "git@") ||
		strings.HasPrefix(path, "https://") || strings.HasPrefix(path, "http://") {
		return "git"
	}
	return "local"
}

// Run iterates over all registered sources and reconciles each one.
func Run(db *storage.DB) error {
	sources, err := db.GetAllSources()
	if err != nil {
		return fmt.Errorf("failed to get sources: %w", err)
	}
	if len(sources) == 0 {
		slog.Info("no sources configured")
		return nil
	}

	if err := os.MkdirAll(ReposDir, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create repos directory: %w", err)
	}

	for _, source := range sources {
		slog.Info("syncing source", "id", source.ID, "type", source.Type, "path", source.Path)

		scanPath := source.Path
		if source.Type == "git" {
			localPath, err := gitURLToLocalPath(ReposDir, source.Path)
			if err != nil {
				slog.Error("error determining local path for git repo", "url", source.Path, "error", err)
				continue
			}
			if err := gitsource.Sync(source.Path, localPath); err != nil {
				slog.Error("error syncing git repo", "url", source.Path, "error", err)
				continue
			}
			scanPath = localPath
		}

		if err := reconcileSource(db, source, scanPath); err != nil {
			slog.Error("error reconciling source", "path", source.Path, "error", err)
		}
	}
	slog.Info("sync complete")
	return nil
}

// ensureDeck finds or creates the deck owned by the source.
func ensureDeck(db *storage.DB, source storage.Source, now time.Time) (*domain.Deck, error) {
	deck, err := db.FindDeckBySource(source.ID)
	if err != nil {
		return nil, err
	}
	if deck != nil {
		return deck, nil
	}
	name := filepath.Base(strings.TrimSuffix(source.Path, ".git"))
	id, err := db.InsertDeck(name, source.ID, now)
	if err != nil {
		return nil, err
	}
	return db.FindDeck(id)
}

func reconcileSource(db *storage.DB, source storage.Source, scanPath string) error {
	now := time.Now()
	deck, err := ensureDeck(db, source, now)
	if err != nil {
		return fmt.Errorf("ensuring deck for source %d: %w", source.ID, err)
	}

	var (
		parsed      int
		inserted    int
		parseErrors []error
		foundHashes = make(map[string]bool)
	)

	walkErr := filepath.WalkDir(scanPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}
		fileCards, parseErr := parser.ParseFile(path)
		if parseErr != nil {
			parseErrors = append(parseErrors, fmt.Errorf("parsing %s: %w", path, parseErr))
		}
		for _, card := range fileCards {
			card.DeckID = deck.ID
			card.Hash = cardhash.Hash(card)
			parsed++
			foundHashes[card.Hash] = true

			existing, findErr := db.FindCardByHash(card.Hash)
			if findErr != nil {
				parseErrors = append(parseErrors, fmt.Errorf("db check for %s: %w", card.Hash, findErr))
				continue
			}
			if existing == nil {
				if _, insertErr := db.InsertCard(card, now); insertErr != nil {
					parseErrors = append(parseErrors, fmt.Errorf("db insert for %s: %w", card.Hash, insertErr))
					continue
				}
				inserted++
			}
		}
		return nil
	})
	if walkErr != nil {
		return fmt.Errorf("walking %s: %w", scanPath, walkErr)
	}

	deckCards, err := db.GetCardsByDeck(deck.ID)
	if err != nil {
		return fmt.Errorf("getting cards for deck %d: %w", deck.ID, err)
	}

	var orphaned int
	for _, card := range deckCards {
		if !foundHashes[card.Hash] {
			orphaned++
			if err := db.DeleteCardByHash(card.Hash); err != nil {
				slog.Warn("failed to delete orphaned card", "hash", card.Hash, "error", err)
			}
		}
	}

	if err := db.UpdateSourceLastScanned(source.ID, now); err != nil {
		slog.Warn("failed to update last scanned", "source_id", source.ID, "error", err)
	}

	slog.Info("reconciliation complete",
		"path", source.Path,
		"deck", deck.Name,
		"parsed_cards", parsed,
		"inserted", inserted,
		"orphaned_deleted", orphaned,
		"errors", len(parseErrors),
	)
	return nil
}

// gitURLToLocalPath maps a git URL (https or scp-like) onto a checkout path
// under baseDir.
func gitURLToLocalPath(baseDir, repoURL string) (string, error) {
	parsedURL, err := url.Parse(repoURL)
	if err != nil || (parsedURL.Scheme != "https" && parsedURL.Scheme != "http") {
		if strings.Contains(repoURL, "@") {
			parts := strings.Split(repoURL, ":")
			if len(parts) == 2 {
				hostAndUser := strings.Split(parts[0], "@")
				if len(hostAndUser) == 2 {
					host := hostAndUser[1]
					repoPath := strings.TrimSuffix(parts[1], ".git")
					return filepath.Join(baseDir, host, repoPath), nil
				}
			}
		}
		return "", fmt.Errorf("could not parse git URL: %s", repoURL)
	}

	sanitizedPath := strings.TrimSuffix(parsedURL.Path, ".git")
	return filepath.Join(baseDir, parsedURL.Host, sanitizedPath), nil
}
