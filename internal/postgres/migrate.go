package postgres

import (
	"database/sql"
	"embed"
	"errors"

	ierr "github.com/flexprice/entitlements/internal/errors"
	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// RunMigrations applies every pending migration in migrations/.
func RunMigrations(db *sql.DB) error {
	source, err := iofs.New(embeddedMigrations, "migrations")
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to open embedded migrations").
			Mark(ierr.ErrSystem)
	}

	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to create migration driver").
			Mark(ierr.ErrDatabase)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to create migrator").
			Mark(ierr.ErrDatabase)
	}

	// migrator.Close would also close db, which the client still owns.
	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return ierr.WithError(err).
			WithHint("Failed to apply migrations").
			Mark(ierr.ErrDatabase)
	}
	return nil
}
