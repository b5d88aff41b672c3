package repomanager

import (
	"context"
	"database/sql"

	"github.com/curiousoddesy/PNR-Watch-sub005/internal/dbx"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/server/repositories/resources"
)

// RepositoryManager vends repositories bound to a connection or transaction
// and owns the schema migrations.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Resources(db dbx.DBTX) resources.Repository
}
