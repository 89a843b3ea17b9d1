package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	backend "github.com/artmart/marketplace"
)

var cfg struct {
	dbPath         string
	port           int
	feePercent     string
	feeAccount     string
	escrowAccount  string
	adminAccount   string
	issuer         string
	secret         string
	assetsPath     string
	splitRoyalties bool
	auditInterval  time.Duration
}

func init() {
	flag.StringVar(&cfg.dbPath, "db", "marketplace.db", "database path")
	flag.IntVar(&cfg.port, "port", 8080, "http port")
	flag.StringVar(&cfg.feePercent, "fee", "2", "marketplace fee, percent of sale price")
	flag.StringVar(&cfg.feeAccount, "fee-account", "", "marketplace fee account")
	flag.StringVar(&cfg.escrowAccount, "escrow-account", "", "escrow custody account")
	flag.StringVar(&cfg.adminAccount, "admin-account", "", "splitter admin account")
	flag.StringVar(&cfg.issuer, "issuer", "marketplace", "jwt issuer")
	flag.StringVar(&cfg.secret, "secret", "", "jwt signing secret")
	flag.StringVar(&cfg.assetsPath, "assets", "", "asset seed file (json)")
	flag.BoolVar(&cfg.splitRoyalties, "split-royalties", false, "route royalties into the splitter pool")
	flag.DurationVar(&cfg.auditInterval, "audit-interval", time.Minute, "conservation audit period")

	flag.Parse()
}

type seedAsset struct {
	Owner     string `json:"owner"`
	Recipient string `json:"recipient"`
	RateBps   uint64 `json:"rate_bps"`
}

func feeRateBps(percent string) (uint64, error) {
	rate, err := decimal.NewFromString(percent)
	if err != nil {
		return 0, fmt.Errorf("parse fee percent: %w", err)
	}

	bps := rate.Mul(decimal.NewFromInt(100))
	if !bps.IsInteger() || bps.IsNegative() || bps.IntPart() > backend.RateDenominator {
		return 0, fmt.Errorf("fee percent out of range: %s", percent)
	}

	return uint64(bps.IntPart()), nil
}

func account(value, name string) string {
	if value == "" {
		value = uuid.NewString()
		slog.Warn("generated account", "name", name, "account", value)
	}

	if !govalidator.IsUUID(value) {
		slog.Error("invalid account", "name", name, "account", value)
		os.Exit(2)
	}

	return value
}

func seedRegistry(registry *backend.MemoryRegistry, path string) error {
	if path == "" {
		return nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var seeds []seedAsset
	if err := json.Unmarshal(b, &seeds); err != nil {
		return err
	}

	for _, seed := range seeds {
		id, err := registry.Mint(seed.Owner, backend.RoyaltyInfo{
			Recipient: seed.Recipient,
			RateBps:   seed.RateBps,
		})
		if err != nil {
			return err
		}

		slog.Info("asset minted", "asset", id, "owner", seed.Owner, "royalty_bps", seed.RateBps)
	}

	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
	defer stop()

	db, err := badger.Open(badger.DefaultOptions(cfg.dbPath))
	if err != nil {
		slog.Error("open db failed", slog.Any("err", err))
		return
	}

	feeBps, err := feeRateBps(cfg.feePercent)
	if err != nil {
		slog.Error("bad fee rate", slog.Any("err", err))
		return
	}

	registry := backend.NewMemoryRegistry()
	if err := seedRegistry(registry, cfg.assetsPath); err != nil {
		slog.Error("seed registry failed", slog.Any("err", err))
		return
	}

	slog.Info("marketplace launch", "fee_bps", feeBps, "split_royalties", cfg.splitRoyalties)

	svr := backend.NewServer(db, registry, backend.NewMemoryTreasury(), backend.Config{
		EscrowAccount:  account(cfg.escrowAccount, "escrow"),
		FeeAccount:     account(cfg.feeAccount, "fee"),
		AdminAccount:   account(cfg.adminAccount, "admin"),
		FeeRateBps:     feeBps,
		SplitRoyalties: cfg.splitRoyalties,
		Issuer:         cfg.issuer,
		JWTSecret:      []byte(cfg.secret),
		AuditInterval:  cfg.auditInterval,
	})

	s := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.port),
		Handler: svr.Handler(),
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("http listen", slog.String("addr", s.Addr))
		return s.ListenAndServe()
	})

	g.Go(func() error {
		<-ctx.Done()

		return s.Shutdown(ctx)
	})

	g.Go(func() error {
		return runGC(ctx, db, time.Minute)
	})

	g.Go(func() error {
		return svr.Run(ctx)
	})

	_ = g.Wait()
}

func runGC(ctx context.Context, db *badger.DB, dur time.Duration) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(dur):
			_ = db.RunValueLogGC(0.7)
		}
	}
}
