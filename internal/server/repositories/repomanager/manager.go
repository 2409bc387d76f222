package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/neoma/internal/dbx"
	"github.com/dmitrijs2005/neoma/internal/server/repositories/entitlements"
	"github.com/dmitrijs2005/neoma/internal/server/repositories/events"
	"github.com/dmitrijs2005/neoma/internal/server/repositories/generations"
	"github.com/dmitrijs2005/neoma/internal/server/repositories/orders"
	"github.com/dmitrijs2005/neoma/internal/server/repositories/pendingsignups"
	"github.com/dmitrijs2005/neoma/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/neoma/internal/server/repositories/users"
	"github.com/dmitrijs2005/neoma/internal/server/repositories/visitors"
)

// RepositoryManager vends repositories bound to a connection or an open
// transaction, so services can run several of them in one unit of work.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	Visitors(db dbx.DBTX) visitors.Repository
	Generations(db dbx.DBTX) generations.Repository
	Entitlements(db dbx.DBTX) entitlements.Repository
	PendingSignups(db dbx.DBTX) pendingsignups.Repository
	Events(db dbx.DBTX) events.Repository
	Orders(db dbx.DBTX) orders.Repository
}
