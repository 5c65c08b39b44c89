package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"

	"github.com/giveth/pledge-sync/src/sync/blocktime"
	"github.com/giveth/pledge-sync/src/sync/chain"
	"github.com/giveth/pledge-sync/src/sync/config"
	"github.com/giveth/pledge-sync/src/sync/data"
	"github.com/giveth/pledge-sync/src/sync/engine"
	"github.com/giveth/pledge-sync/src/sync/feed"
	"github.com/giveth/pledge-sync/src/sync/history"
	"github.com/giveth/pledge-sync/src/sync/store"
	"github.com/giveth/pledge-sync/src/sync/webserver"
)

func main() {
	cfg := config.Load()

	if ll, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(ll)
	}

	db := data.MustMySQL(cfg.MySQLDSN)
	data.Migrate(db)

	rdb := data.MustRedis(cfg.RedisURL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := chain.Dial(ctx, cfg.RPCURL)
	if err != nil {
		log.Fatalf("chain: %v", err)
	}
	defer client.Close()

	if !common.IsHexAddress(cfg.LPContract) {
		log.Fatalf("LP_CONTRACT is not an address: %q", cfg.LPContract)
	}
	pledges := chain.NewPledges(client, common.HexToAddress(cfg.LPContract))

	var f *feed.Feed
	eng := engine.New(engine.Config{
		Pledges:    pledges,
		Blocks:     blocktime.New(client),
		Donations:  store.NewDonations(db),
		Admins:     store.NewAdmins(db),
		Milestones: store.NewMilestones(db),
		History:    history.New(store.NewHistories(db)),
		RetryDelay: cfg.RetryDelay,
		Notify: func(r engine.Result) {
			f.PublishAck(ctx, r)
		},
	})

	f = feed.New(rdb, eng)
	go f.Run(ctx)

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: webserver.New(db, eng.Queue()),
	}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("webserver: %v", err)
		}
	}()
	log.WithField("port", cfg.Port).Info("pledge-sync up")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)
}
