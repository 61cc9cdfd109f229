package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/EmpoweredVote/police-ingester/internal/bronze"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

func EnsureSchema(d *gorm.DB, schema string) error {
	return d.Exec("CREATE SCHEMA IF NOT EXISTS " + pq.QuoteIdentifier(schema)).Error
}

// Migrate creates the bronze schema and its tables.
func Migrate(ctx context.Context, d *gorm.DB) error {
	if err := EnsureSchema(d.WithContext(ctx), bronze.Schema); err != nil {
		return fmt.Errorf("create schema %s: %w", bronze.Schema, err)
	}
	if err := d.WithContext(ctx).AutoMigrate(bronze.Models()...); err != nil {
		return fmt.Errorf("migrate %s tables: %w", bronze.Schema, err)
	}
	return nil
}

// EnsureDatabase creates the database named in dsn if it does not exist yet,
// connecting through the postgres maintenance database to do so. dsn may be a
// URL or a keyword/value string.
func EnsureDatabase(ctx context.Context, dsn string) error {
	name, adminCfg, err := maintenanceConfig(dsn)
	if err != nil {
		return err
	}
	if name == "" || name == "postgres" {
		return nil
	}

	admin := stdlib.OpenDB(*adminCfg)
	defer admin.Close()

	err = admin.QueryRowContext(ctx, "SELECT 1 FROM pg_database WHERE datname = $1", name).Scan(new(int))
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := admin.ExecContext(ctx, "CREATE DATABASE "+pq.QuoteIdentifier(name)); err != nil {
			return fmt.Errorf("create database %s: %w", name, err)
		}
		return nil
	}
	return err
}

// maintenanceConfig returns the database named by dsn and a connection
// config for the postgres database on the same server.
func maintenanceConfig(dsn string) (name string, admin *pgx.ConnConfig, err error) {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return "", nil, fmt.Errorf("parse database url: %w", err)
	}
	admin = cfg.Copy()
	admin.Database = "postgres"
	return cfg.Database, admin, nil
}
