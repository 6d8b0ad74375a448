package database

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/Shivanand-hulikatti/event-reg-and-waitlist/internal/log"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Direction selects which way Migrate moves the schema.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// Migrate applies (or rolls back) every embedded migration against databaseURL.
func Migrate(databaseURL string, dir Direction) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return fmt.Errorf("init migrate: %w", err)
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			log.Warn(log.CatDB, "close migrate", "source_error", srcErr, "db_error", dbErr)
		}
	}()

	switch dir {
	case Up:
		err = m.Up()
	case Down:
		err = m.Down()
	default:
		return fmt.Errorf("unknown migration direction %q", dir)
	}
	if errors.Is(err, migrate.ErrNoChange) {
		log.Info(log.CatDB, "schema already up to date", "direction", string(dir))
		return nil
	}
	if err != nil {
		return fmt.Errorf("migrate %s: %w", dir, err)
	}

	version, dirty, verr := m.Version()
	if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
		return fmt.Errorf("read schema version: %w", verr)
	}
	log.Info(log.CatDB, "schema migrated", "direction", string(dir), "version", version, "dirty", dirty)
	return nil
}
