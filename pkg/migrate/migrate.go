// Package migrate applies the goose SQL migrations. The binaries embed the
// migrations so a deploy never depends on the source tree being present.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/pressly/goose/v3"
)

// DefaultDir is where create and validate write and read on disk.
const DefaultDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Source returns the embedded migrations when dir is empty, else dir on disk.
func Source(dir string) (fs.FS, error) {
	if dir == "" {
		return fs.Sub(embedded, "migrations")
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("migrations dir %q: %w", dir, err)
	}
	return os.DirFS(dir), nil
}

// Applied summarizes one executed migration.
type Applied struct {
	Version   int64
	Path      string
	Direction string
}

// Runner drives a goose provider over a postgres connection.
type Runner struct {
	provider *goose.Provider
}

func NewRunner(db *sql.DB, fsys fs.FS) (*Runner, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	if fsys == nil {
		return nil, errors.New("migrations source is required")
	}
	// migrations use postgres enum types and jsonb
	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return &Runner{provider: provider}, nil
}

// Apply runs one of up, up-by-one, down or redo.
func (r *Runner) Apply(ctx context.Context, command string) ([]Applied, error) {
	var (
		results []*goose.MigrationResult
		err     error
	)
	switch command {
	case "up":
		results, err = r.provider.Up(ctx)
	case "up-by-one":
		results, err = single(r.provider.UpByOne(ctx))
	case "down":
		results, err = single(r.provider.Down(ctx))
	case "redo":
		results, err = single(r.provider.Down(ctx))
		if err == nil {
			var again []*goose.MigrationResult
			again, err = single(r.provider.UpByOne(ctx))
			results = append(results, again...)
		}
	default:
		return nil, fmt.Errorf("unsupported migrate command %q", command)
	}
	if err != nil {
		return summarize(results), fmt.Errorf("goose %s: %w", command, err)
	}
	return summarize(results), nil
}

// To moves the schema up or down until it sits at version.
func (r *Runner) To(ctx context.Context, version string) ([]Applied, error) {
	target, err := strconv.ParseInt(version, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", version, err)
	}
	current, err := r.provider.GetDBVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("read db version: %w", err)
	}

	var results []*goose.MigrationResult
	switch {
	case current == target:
		return nil, nil
	case current < target:
		results, err = r.provider.UpTo(ctx, target)
	default:
		results, err = r.provider.DownTo(ctx, target)
	}
	if err != nil {
		return summarize(results), fmt.Errorf("migrate to %d: %w", target, err)
	}
	return summarize(results), nil
}

// Pending lists migrations not yet applied.
func (r *Runner) Pending(ctx context.Context) ([]int64, error) {
	statuses, err := r.provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("goose status: %w", err)
	}
	var pending []int64
	for _, st := range statuses {
		if st.State == goose.StatePending {
			pending = append(pending, st.Source.Version)
		}
	}
	return pending, nil
}

func single(result *goose.MigrationResult, err error) ([]*goose.MigrationResult, error) {
	if errors.Is(err, goose.ErrNoNextVersion) {
		return nil, nil
	}
	if result == nil {
		return nil, err
	}
	return []*goose.MigrationResult{result}, err
}

func summarize(results []*goose.MigrationResult) []Applied {
	out := make([]Applied, 0, len(results))
	for _, res := range results {
		if res == nil || res.Source == nil {
			continue
		}
		out = append(out, Applied{Version: res.Source.Version, Path: res.Source.Path, Direction: res.Direction})
	}
	return out
}
