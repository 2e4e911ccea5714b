// Package migrations embeds the SQL migrations of both supported databases.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
)

//go:embed sqlite/*.sql postgres/*.sql
var files embed.FS

var (
	// SQLite contains the migrations for SQLite databases.
	SQLite fs.FS
	// Postgres contains the migrations for Postgres databases.
	Postgres fs.FS
)

func init() {
	var err error

	SQLite, err = fs.Sub(files, "sqlite")
	if err != nil {
		panic("failed to subtree sqlite migrations " + err.Error())
	}

	Postgres, err = fs.Sub(files, "postgres")
	if err != nil {
		panic("failed to subtree postgres migrations " + err.Error())
	}
}

// ForDriver returns the migrations for the given database driver name.
func ForDriver(driver string) (fs.FS, error) {
	switch driver {
	case "sqlite":
		return SQLite, nil
	case "postgres":
		return Postgres, nil
	default:
		return nil, fmt.Errorf("no migrations for driver %q", driver)
	}
}
