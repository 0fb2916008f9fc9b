package db

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/workoutwise/formcheck/internal/monitoring"
)

// MigrateUp applies every pending migration. Being at the latest version
// already is not an error.
func (db *DB) MigrateUp(migrations fs.FS) error {
	return db.withMigrate(migrations, func(m *migrate.Migrate) error {
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migration up failed: %w", err)
		}
		return nil
	})
}

// MigrateDown reverts the most recent migration only.
func (db *DB) MigrateDown(migrations fs.FS) error {
	return db.withMigrate(migrations, func(m *migrate.Migrate) error {
		if err := m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migration down failed: %w", err)
		}
		return nil
	})
}

// MigrateVersion reports the applied schema version; 0 means none.
func (db *DB) MigrateVersion(migrations fs.FS) (version uint, dirty bool, err error) {
	err = db.withMigrate(migrations, func(m *migrate.Migrate) error {
		var verr error
		version, dirty, verr = m.Version()
		if errors.Is(verr, migrate.ErrNilVersion) {
			return nil
		}
		return verr
	})
	return version, dirty, err
}

// MigrateForce records version as applied and clears the dirty flag without
// running anything. It is for recovering from a failed migration by hand.
func (db *DB) MigrateForce(migrations fs.FS, version int) error {
	return db.withMigrate(migrations, func(m *migrate.Migrate) error {
		if err := m.Force(version); err != nil {
			return fmt.Errorf("force to version %d failed: %w", version, err)
		}
		return nil
	})
}

// withMigrate runs fn against a migrator bound to this connection. The
// migrator is deliberately not closed: that would close db as well.
func (db *DB) withMigrate(migrations fs.FS, fn func(*migrate.Migrate) error) error {
	if migrations == nil {
		return errors.New("no migrations filesystem")
	}
	src, err := iofs.New(migrations, ".")
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	m.Log = migrateLogger{}
	return fn(m)
}

// migrateLogger routes migrator output to the diagnostic logger.
type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) {
	monitoring.Logf("[migrate] "+format, v...)
}

func (migrateLogger) Verbose() bool { return false }

// LatestMigrationVersion is the highest version among the embedded
// migrations.
func LatestMigrationVersion() (uint, error) {
	migrations, err := getMigrationsFS()
	if err != nil {
		return 0, err
	}
	src, err := iofs.New(migrations, ".")
	if err != nil {
		return 0, fmt.Errorf("failed to read migrations: %w", err)
	}
	defer src.Close()

	latest, err := src.First()
	if err != nil {
		return 0, fmt.Errorf("no migrations found: %w", err)
	}
	for {
		next, err := src.Next(latest)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return latest, nil
		case err != nil:
			return 0, err
		}
		latest = next
	}
}
