package upgrade

import (
	"database/sql"
	"errors"
	"fmt"
)

// RequiredSchemaVersion is the migration version this binary expects.
const RequiredSchemaVersion uint = 1

// SchemaStatus represents the result of a schema compatibility check.
type SchemaStatus struct {
	CurrentVersion  uint
	RequiredVersion uint
	Dirty           bool
	Compatible      bool
	NeedsMigration  bool
}

var (
	ErrSchemaOutdated = errors.New("database schema is outdated")
	ErrSchemaDirty    = errors.New("database schema is dirty (failed migration)")
	ErrSchemaAhead    = errors.New("database schema is newer than this binary")
)

// CheckSchema reads the golang-migrate version row and compares it with
// RequiredSchemaVersion. A missing table counts as a fresh database.
func CheckSchema(db *sql.DB) (*SchemaStatus, error) {
	var version uint
	var dirty bool

	err := db.QueryRow("SELECT version, dirty FROM schema_migrations LIMIT 1").Scan(&version, &dirty)
	if err != nil {
		return &SchemaStatus{
			RequiredVersion: RequiredSchemaVersion,
			NeedsMigration:  true,
		}, nil
	}
	return evaluate(version, dirty), nil
}

func evaluate(version uint, dirty bool) *SchemaStatus {
	s := &SchemaStatus{
		CurrentVersion:  version,
		RequiredVersion: RequiredSchemaVersion,
		Dirty:           dirty,
	}
	if dirty {
		return s
	}
	switch {
	case version == RequiredSchemaVersion:
		s.Compatible = true
	case version < RequiredSchemaVersion:
		s.NeedsMigration = true
	}
	return s
}

// Err maps a status to one of the schema errors, or nil when compatible.
func (s *SchemaStatus) Err() error {
	switch {
	case s.Dirty:
		return ErrSchemaDirty
	case s.CurrentVersion > s.RequiredVersion:
		return ErrSchemaAhead
	case s.NeedsMigration:
		return ErrSchemaOutdated
	}
	return nil
}

// FormatError returns a user-friendly error message for the given status.
func FormatError(s *SchemaStatus) string {
	if s.Dirty {
		return fmt.Sprintf(
			"Database schema is in a dirty state (version %d).\n"+
				"A migration failed partway.\n\n"+
				"  Fix:  discord-ai migrate force %d\n"+
				"  Then: discord-ai migrate up\n",
			s.CurrentVersion, s.CurrentVersion-1,
		)
	}
	if s.CurrentVersion > s.RequiredVersion {
		return fmt.Sprintf(
			"Database schema (v%d) is newer than this binary (requires v%d).\n\n"+
				"  Fix: upgrade the discord-ai binary.\n",
			s.CurrentVersion, s.RequiredVersion,
		)
	}
	return fmt.Sprintf(
		"Database schema is outdated: current v%d, required v%d.\n\n"+
			"  Run: discord-ai migrate up\n",
		s.CurrentVersion, s.RequiredVersion,
	)
}
