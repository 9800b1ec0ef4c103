package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/thy3368/rustlob-sub005/internal/account"
	"github.com/thy3368/rustlob-sub005/internal/adapter/cache"
	"github.com/thy3368/rustlob-sub005/internal/adapter/in_memory"
	"github.com/thy3368/rustlob-sub005/internal/adapter/pg"
	httpapi "github.com/thy3368/rustlob-sub005/internal/api/http"
	"github.com/thy3368/rustlob-sub005/internal/config"
	"github.com/thy3368/rustlob-sub005/internal/domain"
	"github.com/thy3368/rustlob-sub005/internal/idgen"
	"github.com/thy3368/rustlob-sub005/internal/port"
	"github.com/thy3368/rustlob-sub005/internal/sequencer"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx := context.Background()

	var repo port.Repository
	switch cfg.Storage {
	case "postgres":
		pgRepo, err := pg.NewRepo(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("connect postgres: %v", err)
		}
		defer pgRepo.Close()
		repo = pgRepo
	default:
		repo = in_memory.NewRepo()
	}

	var depthCache port.Cache
	if cfg.RedisAddr != "" {
		depthCache = cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.DepthCacheTTL)
	} else {
		depthCache = in_memory.NewCache()
	}

	ids, err := idgen.New(cfg.NodeID)
	if err != nil {
		log.Fatalf("id generator: %v", err)
	}

	var pairs []domain.TradingPair
	for _, p := range cfg.Pairs {
		pairs = append(pairs, domain.TradingPair{Symbol: p.Symbol, BaseAsset: p.Base, QuoteAsset: p.Quote})
	}

	accounts := account.NewService(in_memory.NewBalanceStore())

	var opts []sequencer.Option
	if cfg.PreventSelfTrade {
		opts = append(opts, sequencer.WithSelfTradePrevention())
	}
	seq := sequencer.New(domain.NewPairs(pairs...), accounts, repo, depthCache, ids, opts...)
	if cfg.Storage == "postgres" {
		if err := seq.Restore(ctx); err != nil {
			log.Fatalf("restore open orders: %v", err)
		}
	}

	if cfg.ExpirySweep > 0 {
		go func() {
			t := time.NewTicker(cfg.ExpirySweep)
			defer t.Stop()
			for range t.C {
				seq.SweepExpired(ctx)
			}
		}()
	}

	server := httpapi.NewServer(seq, accounts, cfg.RateLimit)
	log.Printf("starting HTTP server on %s (storage=%s)", cfg.ListenAddr, cfg.Storage)
	if err := server.Run(cfg.ListenAddr); err != nil {
		log.Fatalf("HTTP server failed: %v", err)
	}
}
