package bigquery

import (
	"context"
	"crypto/sha256"
	"embed"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/ledger-import/internal/logger"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migration is a single numbered schema change.
type Migration struct {
	Version  int
	Name     string
	Filename string
	SQL      string
	Checksum string
}

var migrationPattern = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

// Migrations returns the bundled migrations for the dataset, sorted by
// version, with {{PROJECT_ID}} and {{DATASET_ID}} filled in.
func Migrations(projectID, datasetID string) ([]Migration, error) {
	return readMigrations(migrationFiles, "migrations", projectID, datasetID)
}

func readMigrations(fsys fs.FS, dir, projectID, datasetID string) ([]Migration, error) {
	files, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("readMigrations: %w", err)
	}

	var migrations []Migration
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		m := migrationPattern.FindStringSubmatch(file.Name())
		if m == nil {
			continue
		}
		version, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}

		content, err := fs.ReadFile(fsys, dir+"/"+file.Name())
		if err != nil {
			return nil, fmt.Errorf("readMigrations: reading %s: %w", file.Name(), err)
		}

		sql := string(content)
		sql = strings.ReplaceAll(sql, "{{PROJECT_ID}}", projectID)
		sql = strings.ReplaceAll(sql, "{{DATASET_ID}}", datasetID)

		// The checksum covers the template, not the target dataset.
		migrations = append(migrations, Migration{
			Version:  version,
			Name:     m[2],
			Filename: file.Name(),
			SQL:      sql,
			Checksum: fmt.Sprintf("%x", sha256.Sum256(content)),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// Migrate applies every bundled migration not yet recorded in
// schema_migrations. It returns the number applied.
func (s *Store) Migrate(ctx context.Context, appliedBy string) (int, error) {
	migrations, err := Migrations(s.projectID, s.datasetID)
	if err != nil {
		return 0, fmt.Errorf("Migrate: %w", err)
	}
	if len(migrations) == 0 {
		return 0, nil
	}

	// The first migration creates the bookkeeping table itself.
	if err := runQuery(ctx, s.client.Query(migrations[0].SQL)); err != nil {
		return 0, fmt.Errorf("Migrate: ensuring schema_migrations: %w", err)
	}

	applied, err := s.appliedVersions(ctx)
	if err != nil {
		return 0, fmt.Errorf("Migrate: %w", err)
	}

	log := logger.FromContext(ctx)
	count := 0
	for _, m := range migrations {
		if applied[m.Version] {
			log.Debug().Int("version", m.Version).Str("name", m.Name).Msg("Migration already applied")
			continue
		}
		if err := runQuery(ctx, s.client.Query(m.SQL)); err != nil {
			return count, fmt.Errorf("Migrate: %04d_%s: %w", m.Version, m.Name, err)
		}
		if err := s.recordMigration(ctx, m, appliedBy); err != nil {
			return count, fmt.Errorf("Migrate: recording %04d_%s: %w", m.Version, m.Name, err)
		}
		log.Info().Int("version", m.Version).Str("name", m.Name).Msg("Migration applied")
		count++
	}
	return count, nil
}

func (s *Store) appliedVersions(ctx context.Context) (map[int]bool, error) {
	query := fmt.Sprintf(`
		SELECT version, name, applied_at, checksum, applied_by
		FROM `+"`%s`"+`
		ORDER BY version ASC
	`, s.table("schema_migrations"))

	it, err := s.client.Query(query).Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading applied migrations: %w", err)
	}

	applied := make(map[int]bool)
	for {
		var row struct {
			Version   int64
			Name      string
			AppliedAt time.Time
			Checksum  bigquery.NullString
			AppliedBy bigquery.NullString
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterating applied migrations: %w", err)
		}
		applied[int(row.Version)] = true
	}
	return applied, nil
}

func (s *Store) recordMigration(ctx context.Context, m Migration, appliedBy string) error {
	q := s.client.Query(fmt.Sprintf(`
		INSERT INTO `+"`%s`"+`
		(version, name, applied_at, checksum, applied_by)
		VALUES (@version, @name, CURRENT_TIMESTAMP(), @checksum, @applied_by)
	`, s.table("schema_migrations")))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "version", Value: m.Version},
		{Name: "name", Value: m.Name},
		{Name: "checksum", Value: m.Checksum},
		{Name: "applied_by", Value: appliedBy},
	}
	return runQuery(ctx, q)
}
