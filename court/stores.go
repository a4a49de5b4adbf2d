package court

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"sealedcourt/arbitrator"
	"sealedcourt/db"
	"sealedcourt/dispute"
	"sealedcourt/journal"
	"sealedcourt/payout"
	"sealedcourt/vote"
)

// Stores bundles the court's persistence. Runner must match the stores:
// db.Direct for memory, a db.PoolRunner for Postgres.
type Stores struct {
	Arbitrators arbitrator.Store
	Disputes    dispute.Store
	Votes       vote.Store
	Credits     payout.CreditStore
	Intents     payout.IntentStore
	Journal     journal.Emitter
	Runner      db.TxRunner
}

// NewMemoryStores wires in-process stores. The returned recorder is the
// journal, kept for inspection and relaying.
func NewMemoryStores() (Stores, *journal.Recorder) {
	rec := journal.NewRecorder()
	return Stores{
		Arbitrators: arbitrator.NewMemoryStore(),
		Disputes:    dispute.NewMemoryStore(),
		Votes:       vote.NewMemoryStore(),
		Credits:     payout.NewMemoryCredits(),
		Intents:     payout.NewMemoryIntents(),
		Journal:     rec,
		Runner:      db.Direct{},
	}, rec
}

// NewPostgresStores wires the Postgres repositories around one pool.
func NewPostgresStores(pool *pgxpool.Pool) (Stores, *journal.Outbox) {
	outbox := journal.NewOutbox(pool)
	return Stores{
		Arbitrators: arbitrator.NewRepository(pool),
		Disputes:    dispute.NewRepository(pool),
		Votes:       vote.NewRepository(pool),
		Credits:     payout.NewCreditRepository(pool),
		Intents:     payout.NewIntentRepository(pool),
		Journal:     outbox,
		Runner:      db.NewPoolRunner(pool),
	}, outbox
}
