package marketplace

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	// EscrowAccount holds custody of listed assets between create and
	// fill/cancel.
	EscrowAccount string

	// FeeAccount is credited the marketplace fee on every sale.
	FeeAccount string

	// AdminAccount may change the splitter payee registry.
	AdminAccount string

	// FeeRateBps is the marketplace fee in basis points of the sale price.
	FeeRateBps uint64

	// SplitRoyalties routes fill-time royalties into the splitter pool
	// instead of the recipient's ledger balance.
	SplitRoyalties bool

	// Issuer is the expected JWT issuer for API auth.
	Issuer string

	// JWTSecret signs and verifies API bearer tokens.
	JWTSecret []byte

	// AuditInterval is the period of the conservation audit job.
	AuditInterval time.Duration
}

type Server struct {
	db        *badger.DB
	registry  AssetRegistry
	treasury  Treasury
	royalties *Resolver
	cfg       Config
}

func NewServer(
	db *badger.DB,
	registry AssetRegistry,
	treasury Treasury,
	cfg Config,
) *Server {
	if cfg.AuditInterval <= 0 {
		cfg.AuditInterval = time.Minute
	}

	return &Server{
		db:        db,
		registry:  registry,
		treasury:  treasury,
		royalties: NewResolver(registry),
		cfg:       cfg,
	}
}

func (s *Server) Run(ctx context.Context) error {
	var g errgroup.Group

	g.Go(func() error {
		return s.LoopAudit(ctx)
	})

	return g.Wait()
}

// emitEvent appends one event in its own transaction. Used for events that
// may only exist after an external transfer succeeded.
func (s *Server) emitEvent(event *Event) error {
	txn := s.db.NewTransaction(true)
	defer txn.Discard()

	if err := appendEvent(txn, event); err != nil {
		return err
	}

	return txn.Commit()
}

// ListEvents pages through the notification stream in sequence order.
func (s *Server) ListEvents(ctx context.Context, since uint64, limit int) ([]*Event, error) {
	txn := s.db.NewTransaction(false)
	defer txn.Discard()

	return listEvents(txn, since, limit)
}
