package deck

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Cache stores parsed decks keyed by ContentKey. Implementations must treat
// misses as (nil, false, nil).
type Cache interface {
	GetDeck(ctx context.Context, key string) (*Deck, bool, error)
	PutDeck(ctx context.Context, key string, d *Deck) error
}

// LoaderOptions configures a Loader.
type LoaderOptions struct {
	// Cache is optional. Cache errors are logged and never fail a load.
	Cache Cache
}

// Loader discovers and parses quiz files from the filesystem.
type Loader struct {
	cache Cache
}

// FileError records why one file in a directory could not be loaded.
type FileError struct {
	Path string
	Err  error
}

func (e FileError) Error() string { return e.Path + ": " + e.Err.Error() }

func (e FileError) Unwrap() error { return e.Err }

// LoadReport is the outcome of loading a directory. A failure in one file
// never prevents the others from loading.
type LoadReport struct {
	Decks    []*Deck
	Failures []FileError
	Skipped  []string
}

// NewLoader creates a new deck loader.
func NewLoader(opts LoaderOptions) *Loader {
	return &Loader{cache: opts.Cache}
}

// LoadDir walks dir in lexical order and parses every recognizable file.
// Deck IDs are slash paths relative to dir.
func (l *Loader) LoadDir(ctx context.Context, dir string) (LoadReport, error) {
	var report LoadReport

	info, err := os.Stat(dir)
	if err != nil {
		return report, fmt.Errorf("loading decks: %w", err)
	}
	if !info.IsDir() {
		return report, fmt.Errorf("loading decks: %s is not a directory", dir)
	}

	err = filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			report.Failures = append(report.Failures, FileError{Path: path, Err: err})
			if entry != nil && entry.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path != dir && strings.HasPrefix(entry.Name(), ".") {
			if entry.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if entry.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = path
		}
		d, err := l.load(ctx, path, filepath.ToSlash(rel))
		switch {
		case errors.Is(err, ErrUnknownFormat):
			slog.Debug("skipping file with unknown format", "path", path)
			report.Skipped = append(report.Skipped, path)
		case err != nil:
			slog.Warn("skipping invalid deck", "path", path, "error", err)
			report.Failures = append(report.Failures, FileError{Path: path, Err: err})
		default:
			report.Decks = append(report.Decks, d)
		}
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("loading decks: %w", err)
	}

	slog.Info("decks loaded",
		"dir", dir,
		"decks", len(report.Decks),
		"failures", len(report.Failures),
		"skipped", len(report.Skipped),
	)
	return report, nil
}

// LoadFile parses a single file. The deck ID is the file's slash path.
func (l *Loader) LoadFile(ctx context.Context, path string) (*Deck, error) {
	return l.load(ctx, path, filepath.ToSlash(path))
}

func (l *Loader) load(ctx context.Context, path, id string) (*Deck, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	format, err := Sniff(path, data)
	if err != nil {
		return nil, err
	}

	key := ContentKey(id, data)
	if l.cache != nil {
		d, ok, err := l.cache.GetDeck(ctx, key)
		if err != nil {
			slog.Warn("deck cache lookup failed", "path", path, "error", err)
		} else if ok {
			d.SourceFile = path
			for i := range d.Questions {
				d.Questions[i].SourceFile = path
			}
			return d, nil
		}
	}

	d, err := Parse(format, path, data)
	if err != nil {
		return nil, err
	}
	d.ID = id
	for _, w := range d.Warnings {
		slog.Warn("deck warning", "path", path, "line", w.Line, "message", w.Message)
	}

	if l.cache != nil {
		if err := l.cache.PutDeck(ctx, key, d); err != nil {
			slog.Warn("deck cache store failed", "path", path, "error", err)
		}
	}
	return d, nil
}
