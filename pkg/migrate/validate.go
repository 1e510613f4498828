package migrate

import (
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"

	"go.uber.org/multierr"
)

var (
	fileNameRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

	// Issued documents are corrected by storno, never by a data migration.
	ledgerRowMutationRe = regexp.MustCompile(`(?im)^\s*(UPDATE\s+(invoices|line_items|invoice_status_log|invoice_pdf_archive)\b|DELETE\s+FROM\s+(invoices|line_items|invoice_status_log|invoice_pdf_archive)\b|TRUNCATE\b)`)
)

const (
	upMarker   = "-- +goose Up"
	downMarker = "-- +goose Down"
)

// ValidateDir checks the migrations in dir. See ValidateFS.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("read dir %q: %w", dir, err)
	}
	return ValidateFS(os.DirFS(dir))
}

// ValidateFS checks file names, version uniqueness and goose markers, and
// refuses Up sections that rewrite or delete ledger rows. All problems are
// reported together.
func ValidateFS(fsys fs.FS) error {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}

	var problems error
	seen := map[string]string{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}

		match := fileNameRe.FindStringSubmatch(name)
		if match == nil {
			problems = multierr.Append(problems, fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name))
			continue
		}
		if prev, ok := seen[match[1]]; ok {
			problems = multierr.Append(problems, fmt.Errorf("duplicate migration version %s in %q and %q", match[1], prev, name))
		}
		seen[match[1]] = name

		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			problems = multierr.Append(problems, fmt.Errorf("read %q: %w", name, err))
			continue
		}
		problems = multierr.Append(problems, checkBody(name, string(body)))
	}
	return problems
}

func checkBody(name, body string) error {
	upAt := strings.Index(body, upMarker)
	downAt := strings.Index(body, downMarker)
	switch {
	case upAt < 0:
		return fmt.Errorf("migration %q missing %q", name, upMarker)
	case downAt < 0:
		return fmt.Errorf("migration %q missing %q", name, downMarker)
	case downAt < upAt:
		return fmt.Errorf("migration %q has its Down section before Up", name)
	}

	if stmt := ledgerRowMutationRe.FindString(body[upAt:downAt]); stmt != "" {
		return fmt.Errorf("migration %q mutates ledger rows (%s)", name, strings.TrimSpace(stmt))
	}
	return nil
}
