package store

// Mode selects the GuildStore backend.
const (
	ModeFile     = "file"
	ModeSQLite   = "sqlite"
	ModePostgres = "postgres"
)

// StoreConfig configures backend construction.
type StoreConfig struct {
	Mode        string
	Path        string // data.json for file mode, database file for sqlite
	PostgresDSN string
}

// Stores is the top-level container for all storage backends.
type Stores struct {
	Guilds GuildStore

	// Close releases backend resources. Nil for backends that hold none.
	Close func() error
}
