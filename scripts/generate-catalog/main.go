// generate-catalog builds the semantic catalog from a Cube data model.
//
// Every measure becomes a metric, every time-typed dimension a time
// dimension with all granularities and every other dimension a dimension.
// Ids are "<cube>.<member>". Members of cubes whose name contains "primary"
// or "secondary" are tagged with that scope.
//
// Usage: go run ./scripts/generate-catalog [flags]
//
// Flags:
//
//	-schema-dir   Directory of Cube *.yml files (default: cube/model/cubes)
//	-out          Catalog YAML to write (default: catalog/catalog.yaml)
//	-version      Catalog version (default: UTC timestamp)
//	-default-time-dimension  Id of the default time dimension
//	-publish      Also store the catalog in postgres (uses PG* variables)
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/intentgate/migrations"
	"github.com/ekaya-inc/intentgate/pkg/catalog"
	"github.com/ekaya-inc/intentgate/pkg/config"
	"github.com/ekaya-inc/intentgate/pkg/database"
)

func main() {
	schemaDir := flag.String("schema-dir", "cube/model/cubes", "Directory of Cube schema files")
	out := flag.String("out", "catalog/catalog.yaml", "Catalog YAML to write")
	version := flag.String("version", time.Now().UTC().Format("20060102150405"), "Catalog version")
	defaultTime := flag.String("default-time-dimension", "", "Id of the default time dimension")
	includeKeys := flag.Bool("include-primary-keys", false, "Keep primary_key dimensions")
	publish := flag.Bool("publish", false, "Store the catalog in postgres")
	flag.Parse()

	cubes, err := readSchemaDir(*schemaDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read schema: %v\n", err)
		os.Exit(1)
	}

	def, err := buildDefinition(cubes, generateOptions{
		Version:              *version,
		DefaultTimeDimension: *defaultTime,
		IncludePrimaryKeys:   *includeKeys,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build catalog: %v\n", err)
		os.Exit(1)
	}

	data, err := catalog.MarshalDefinition(def)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode catalog: %v\n", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(filepath.Dir(*out), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create output directory: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write catalog: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Catalog %s written to %s\n", def.Version, *out)
	fmt.Printf("  metrics:         %d\n", len(def.Metrics))
	fmt.Printf("  dimensions:      %d\n", len(def.Dimensions))
	fmt.Printf("  time dimensions: %d\n", len(def.TimeDimensions))

	if *publish {
		if err := publishDefinition(def); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to publish catalog: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Catalog %s published to postgres\n", def.Version)
	}
}

// publishDefinition stores def as the active catalog, migrating the schema
// first. Connection settings come from the server configuration.
func publishDefinition(def catalog.Definition) error {
	cfg, err := config.Load("generate-catalog")
	if err != nil {
		return err
	}
	logger := zap.NewNop()
	url := cfg.Database.URL()

	if err := database.RunMigrations(url, migrations.FS, logger); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := database.NewConnection(ctx, &database.Config{URL: url, MaxConnections: 1}, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	return catalog.NewPostgresSource(db.Pool).Publish(ctx, def)
}
