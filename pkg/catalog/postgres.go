package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ekaya-inc/intentgate/pkg/apperrors"
	"github.com/ekaya-inc/intentgate/pkg/models"
)

// PostgresSource loads the active catalog version from the tables created by
// the migrations package.
type PostgresSource struct {
	pool *pgxpool.Pool
}

func NewPostgresSource(pool *pgxpool.Pool) *PostgresSource {
	return &PostgresSource{pool: pool}
}

func (s *PostgresSource) Name() string { return "postgres" }

// Load reads the active version inside one read-only transaction so entries
// and windows come from the same snapshot.
func (s *PostgresSource) Load(ctx context.Context) (*Catalog, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly, IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return nil, fmt.Errorf("begin catalog read: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var def Definition
	var defaultTD *string
	err = tx.QueryRow(ctx,
		`SELECT version, default_time_dimension FROM catalog_versions WHERE is_active`).
		Scan(&def.Version, &defaultTD)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("no active catalog version: %w", apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read active catalog version: %w", err)
	}
	if defaultTD != nil {
		def.DefaultTimeDimension = *defaultTD
	}

	rows, err := tx.Query(ctx, `
		SELECT category, id, name, display_name, description,
		       aliases, scopes, possible_values, granularities
		FROM catalog_entries
		WHERE version = $1
		ORDER BY category, id`, def.Version)
	if err != nil {
		return nil, fmt.Errorf("query catalog entries: %w", err)
	}
	for rows.Next() {
		var category string
		var e EntryDefinition
		if err := rows.Scan(&category, &e.ID, &e.Name, &e.DisplayName, &e.Description,
			&e.Aliases, &e.Scopes, &e.PossibleValues, &e.Granularities); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan catalog entry: %w", err)
		}
		cat, err := models.ParseCategory(category)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("%w: entry %q: %v", apperrors.ErrCatalogInvalid, e.ID, err)
		}
		switch cat {
		case models.CategoryMetric:
			def.Metrics = append(def.Metrics, e)
		case models.CategoryDimension:
			def.Dimensions = append(def.Dimensions, e)
		case models.CategoryTimeDimension:
			def.TimeDimensions = append(def.TimeDimensions, e)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate catalog entries: %w", err)
	}

	windows, err := tx.Query(ctx, `
		SELECT name, aliases, engine_range, rule, days
		FROM catalog_time_windows
		WHERE version = $1
		ORDER BY position`, def.Version)
	if err != nil {
		return nil, fmt.Errorf("query catalog time windows: %w", err)
	}
	def.TimeWindows, err = pgx.CollectRows(windows, func(row pgx.CollectableRow) (TimeWindowDefinition, error) {
		var w TimeWindowDefinition
		err := row.Scan(&w.Name, &w.Aliases, &w.EngineRange, &w.Rule, &w.Days)
		return w, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan catalog time windows: %w", err)
	}

	return New(def)
}

// Publish stores def as a new version and makes it the active one. The
// definition is checked with New before anything is written.
func (s *PostgresSource) Publish(ctx context.Context, def Definition) error {
	if _, err := New(def); err != nil {
		return err
	}
	if def.Version == "" {
		return fmt.Errorf("%w: version is required to publish", apperrors.ErrCatalogInvalid)
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `UPDATE catalog_versions SET is_active = false WHERE is_active`); err != nil {
			return fmt.Errorf("deactivate catalog versions: %w", err)
		}
		var defaultTD *string
		if def.DefaultTimeDimension != "" {
			defaultTD = &def.DefaultTimeDimension
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO catalog_versions (version, default_time_dimension, is_active) VALUES ($1, $2, true)`,
			def.Version, defaultTD); err != nil {
			return fmt.Errorf("insert catalog version: %w", err)
		}

		batch := &pgx.Batch{}
		groups := []struct {
			cat     models.Category
			entries []EntryDefinition
		}{
			{models.CategoryMetric, def.Metrics},
			{models.CategoryDimension, def.Dimensions},
			{models.CategoryTimeDimension, def.TimeDimensions},
		}
		for _, g := range groups {
			for _, e := range g.entries {
				batch.Queue(`
					INSERT INTO catalog_entries
						(version, category, id, name, display_name, description,
						 aliases, scopes, possible_values, granularities)
					VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
					def.Version, g.cat.String(), e.ID, e.Name, e.DisplayName, e.Description,
					nonNil(e.Aliases), nonNil(e.Scopes), nonNil(e.PossibleValues), nonNil(e.Granularities))
			}
		}
		for i, w := range def.TimeWindows {
			batch.Queue(`
				INSERT INTO catalog_time_windows (version, name, position, aliases, engine_range, rule, days)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				def.Version, w.Name, i, nonNil(w.Aliases), w.EngineRange, w.Rule, w.Days)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert catalog rows: %w", err)
		}
		return nil
	})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
