package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"time"

	"github.com/mundrapranay/oblivious-tree/internal/config"
	"github.com/mundrapranay/oblivious-tree/internal/oram"
	"github.com/mundrapranay/oblivious-tree/pkg/client"
)

var (
	configPath = flag.String("config", "", "YAML config file (defaults apply when empty)")
	serverAddr = flag.String("server", "", "Server address (host:port), overrides the config")
	numItems   = flag.Int("items", 8, "Items placed by the initial Initialize")
	duration   = flag.Duration("duration", 10*time.Second, "Test duration")
)

func main() {
	flag.Parse()
	if err := checkFlags(*numItems, *duration); err != nil {
		log.Fatalf("invalid flags: %v", err)
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(*configPath); err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}
	if *serverAddr != "" {
		cfg.Client.ServerAddress = *serverAddr
	}
	logger := cfg.Logger("oram-load", os.Stderr)

	remote, err := client.Dial(cfg.Client.ServerAddress)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer remote.Close()

	opts := []client.Option{client.WithStorage(remote), client.WithLogger(logger)}
	if path := cfg.Client.PositionMap; path != "" {
		pm, err := oram.OpenBoltPositionMap(path)
		if err != nil {
			log.Fatalf("failed to open position map: %v", err)
		}
		defer pm.Close()
		opts = append(opts, client.WithPositionMap(pm))
	}

	c, err := client.New(cfg.ClientConfig(), opts...)
	if err != nil {
		log.Fatalf("failed to create client: %v", err)
	}

	ctx := context.Background()
	items := make([]oram.Item, *numItems)
	for i := range items {
		items[i] = oram.Item{Key: keyName(i), Value: []byte(fmt.Sprintf("initial value %d", i))}
	}
	if err := c.Initialize(ctx, items); err != nil {
		log.Fatalf("failed to initialize: %v", err)
	}
	if !cfg.Client.AutoSync {
		if err := c.Sync(ctx); err != nil {
			log.Fatalf("failed to sync: %v", err)
		}
	}

	var gets, puts, removes, failed int
	var total time.Duration
	stop := time.Now().Add(*duration)
	for time.Now().Before(stop) {
		k := keyName(rand.IntN(*numItems * 2))
		start := time.Now()
		var err error
		switch rand.IntN(3) {
		case 0:
			_, _, err = c.Get(ctx, k)
			gets++
		case 1:
			err = c.Put(ctx, k, []byte(start.Format(time.RFC3339Nano)))
			puts++
		case 2:
			_, err = c.Remove(ctx, k)
			removes++
		}
		total += time.Since(start)
		if err != nil {
			failed++
			logger.Warn("access failed", "error", err)
		}
	}

	ops := gets + puts + removes
	fmt.Printf("accesses: %d (get %d, put %d, remove %d), failed: %d\n", ops, gets, puts, removes, failed)
	if ops > 0 {
		fmt.Printf("avg latency: %v, resident keys: %d, stash: %d\n",
			total/time.Duration(ops), c.State().Map.Len(), c.State().Stash.Len())
	}
}

// checkFlags rejects values the access loop cannot run with.
func checkFlags(items int, d time.Duration) error {
	if items < 1 {
		return fmt.Errorf("-items must be at least 1, got %d", items)
	}
	if d <= 0 {
		return fmt.Errorf("-duration must be positive, got %v", d)
	}
	return nil
}

func keyName(i int) oram.Key {
	return oram.Key(fmt.Sprintf("key-%04d", i))
}
