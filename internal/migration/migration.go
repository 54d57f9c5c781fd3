// Package migration manages versioned SQL migration files, applies them through
// the SQL proxy and tracks which ones ran in the local _schema_migrations table.
package migration

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"
)

// Migration represents a single database migration.
type Migration struct {
	Version   string    // Timestamp version (YYYYMMDDHHmmss)
	Name      string    // Human-readable name
	SQL       string    // SQL statements to execute
	AppliedAt time.Time // When migration was applied (zero if pending)
}

// GenerateVersion creates a new migration version based on current UTC time.
func GenerateVersion() string {
	return time.Now().UTC().Format("20060102150405")
}

// Filename returns the migration filename in the format: version_name.sql
func (m Migration) Filename() string {
	return fmt.Sprintf("%s_%s.sql", m.Version, m.Name)
}

// filenameRegex matches migration filenames: YYYYMMDDHHmmss_name.sql
var filenameRegex = regexp.MustCompile(`^(\d{14})_(.+)\.sql$`)

// ParseFilename parses a migration filename into a Migration struct.
// Returns an error if the filename doesn't match the expected format.
func ParseFilename(filename string) (Migration, error) {
	matches := filenameRegex.FindStringSubmatch(filename)
	if matches == nil {
		return Migration{}, fmt.Errorf("invalid migration filename: %s", filename)
	}

	return Migration{
		Version: matches[1],
		Name:    matches[2],
	}, nil
}

// OperationID is the audit operation id used when applying m.
func (m Migration) OperationID() string {
	return fmt.Sprintf("migration-%s-%s", m.Version, m.Name)
}

// nameRegex restricts migration names to snake_case.
var nameRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ValidateName checks that name is lowercase snake_case starting with a letter.
func ValidateName(name string) error {
	if !nameRegex.MatchString(name) {
		return fmt.Errorf("migration name must be lowercase alphanumeric with underscores, starting with a letter")
	}
	return nil
}

// Create writes a new empty migration named name into dir and returns it.
func Create(dir, name string) (Migration, string, error) {
	if err := ValidateName(name); err != nil {
		return Migration{}, "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Migration{}, "", fmt.Errorf("failed to create migrations directory: %w", err)
	}

	m := Migration{Version: GenerateVersion(), Name: name}
	path := filepath.Join(dir, m.Filename())
	content := fmt.Sprintf(`-- Migration: %s
-- Created: %s

-- Write your SQL here

`, m.Name, m.Version)

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return Migration{}, "", fmt.Errorf("failed to create migration file: %w", err)
	}
	return m, path, nil
}

// ReadFromDir loads every migration file in dir, ordered by version. Files that
// do not follow the naming scheme are ignored. A missing directory has no migrations.
func ReadFromDir(dir string) ([]Migration, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var migrations []Migration
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m, err := ParseFilename(e.Name())
		if err != nil {
			continue
		}
		content, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", e.Name(), err)
		}
		m.SQL = string(content)
		migrations = append(migrations, m)
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}
