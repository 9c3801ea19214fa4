// Package all registers every storage backend with the storage factory.
package all

import (
	_ "harvest/internal/storage/mssql"
	_ "harvest/internal/storage/postgres"
	_ "harvest/internal/storage/sqlite"
)
