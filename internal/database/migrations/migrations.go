package migrations

import (
	"sort"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// migrationsList holds all migrations; each file registers itself in init
var migrationsList []*gormigrate.Migration

// All returns the registered migrations ordered by id
func All() []*gormigrate.Migration {
	out := make([]*gormigrate.Migration, len(migrationsList))
	copy(out, migrationsList)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RunMigrations runs all database migrations
func RunMigrations(db *gorm.DB) error {
	return gormigrate.New(db, gormigrate.DefaultOptions, All()).Migrate()
}

// RollbackLast undoes the most recent migration
func RollbackLast(db *gorm.DB) error {
	return gormigrate.New(db, gormigrate.DefaultOptions, All()).RollbackLast()
}
