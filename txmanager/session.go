package txmanager

import (
	"github.com/jackc/pgx/v5"

	"github.com/bionicotaku/lingo-sqlmapper/txsync"
)

// Session is the transaction handed to a WithinTx callback. Mapper calls made
// with the callback context run on the same transaction through the unit of
// work; Tx is for statements issued directly with pgx.
type Session interface {
	Tx() pgx.Tx
	// UnitOfWork returns the synchronization the transaction is bound to.
	UnitOfWork() *txsync.Synchronization
	// Joined reports whether the call joined an enclosing WithinTx.
	Joined() bool
}

type session struct {
	tx     pgx.Tx
	uow    *txsync.Synchronization
	joined bool
}

func (s *session) Tx() pgx.Tx                          { return s.tx }
func (s *session) UnitOfWork() *txsync.Synchronization { return s.uow }
func (s *session) Joined() bool                        { return s.joined }

func newSession(tx pgx.Tx, uow *txsync.Synchronization, joined bool) Session {
	return &session{tx: tx, uow: uow, joined: joined}
}
