package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	offlinesync "github.com/dgduncan/go-offline-sync"
	"github.com/dgduncan/go-offline-sync/bridge"
	cacheleveldb "github.com/dgduncan/go-offline-sync/caches/leveldb"
	"github.com/dgduncan/go-offline-sync/queue"
	storeleveldb "github.com/dgduncan/go-offline-sync/store/leveldb"
	"github.com/dgduncan/go-offline-sync/syncer"
)

func main() {
	ctx := context.Background()

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	db, err := storeleveldb.Open("./data/offlinesync")
	if err != nil {
		panic(err)
	}
	defer db.Close()

	responses, err := cacheleveldb.NewWithDB(db.DB())
	if err != nil {
		panic(err)
	}

	cfg := offlinesync.DefaultConfig()
	broker := bridge.New()
	monitor := offlinesync.NewMonitor(true, broker)

	manager, err := offlinesync.NewManager(responses, cfg.CacheVersion, db, broker, logger)
	if err != nil {
		panic(err)
	}
	if err := manager.Activate(ctx); err != nil {
		panic(err)
	}

	q, err := queue.New(db, broker, logger)
	if err != nil {
		panic(err)
	}

	coordinator, err := syncer.New(q, http.DefaultClient, monitor, db, broker, &syncer.Config{
		Interval: cfg.SyncInterval,
	}, logger)
	if err != nil {
		panic(err)
	}
	go coordinator.Run(ctx)

	client := &http.Client{
		Transport: offlinesync.New(manager, monitor, &cfg, nil, logger)(http.DefaultTransport),
	}

	data, err := offlinesync.NewDataCache(db, nil, logger)
	if err != nil {
		panic(err)
	}
	if err := data.Set(ctx, "user_profile", map[string]string{"name": "demo"}, time.Hour); err != nil {
		panic(err)
	}

	events, unsubscribe := broker.Subscribe()
	defer unsubscribe()
	go func() {
		for ev := range events {
			fmt.Printf("event: %s pending=%d synced=%d failed=%d\n", ev.Type, ev.Pending, ev.Synced, ev.Failed)
		}
	}()

	resp, err := client.Get("https://example.com/dashboard/data")
	if err != nil {
		panic(err)
	}
	resp.Body.Close()
	fmt.Println(resp.Status)

	if _, err := q.Enqueue(ctx, queue.Action{
		Type:   "form_submission",
		URL:    "https://example.com/bills/add",
		Method: http.MethodPost,
		Body:   []byte(`{"title":"rent","amount":1200}`),
	}); err != nil {
		panic(err)
	}

	// Simulate connectivity returning after a blip.
	monitor.SetOnline(false)
	time.Sleep(time.Second)
	monitor.SetOnline(true)

	<-ctx.Done()
}
