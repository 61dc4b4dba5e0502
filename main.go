package main

import (
	"context"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/time/rate"

	"zigscan/internal/api"
	"zigscan/internal/chain"
	"zigscan/internal/config"
	"zigscan/internal/eventbus"
	"zigscan/internal/holders"
	"zigscan/internal/ingester"
	"zigscan/internal/market"
	"zigscan/internal/meta"
	"zigscan/internal/repository"
	"zigscan/internal/rollup"
	"zigscan/internal/security"
)

func main() {
	// Load .env file if present (ignore errors in production)
	_ = godotenv.Load()

	getEnv := func(key, defaultVal string) string {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
		return defaultVal
	}
	getEnvInt := func(key string, defaultVal int) int {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
			log.Printf("[Main] WARNING: invalid %s=%q, using %d", key, v, defaultVal)
		}
		return defaultVal
	}
	getEnvInt64 := func(key string, defaultVal int64) int64 {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				return n
			}
			log.Printf("[Main] WARNING: invalid %s=%q, using %d", key, v, defaultVal)
		}
		return defaultVal
	}
	getEnvBool := func(key string, defaultVal bool) bool {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			b, err := strconv.ParseBool(v)
			if err == nil {
				return b
			}
			log.Printf("[Main] WARNING: invalid %s=%q, using %t", key, v, defaultVal)
		}
		return defaultVal
	}

	network := config.Network()
	addr := config.Addr()
	log.Printf("[Main] starting zigscan indexer (network=%s)", network)

	// Optional YAML config; env vars override every field.
	var fileCfg config.Config
	if path := getEnv("CONFIG_FILE", ""); path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			log.Fatalf("[Main] failed to load config file %s: %v", path, err)
		}
		fileCfg = *cfg
		log.Printf("[Main] loaded config file %s", path)
	}
	pick := func(envKey, fileVal, defaultVal string) string {
		if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
			return v
		}
		if fileVal != "" {
			return fileVal
		}
		return defaultVal
	}

	dbURL := pick("DATABASE_URL", fileCfg.DatabaseURL, "")
	if dbURL == "" {
		log.Fatal("[Main] DATABASE_URL is required")
	}
	log.Printf("[Main] database: %s", redactDatabaseURL(dbURL))

	repo, err := repository.NewRepository(dbURL)
	if err != nil {
		log.Fatalf("[Main] failed to connect to database: %v", err)
	}
	defer repo.Close()

	if getEnvBool("SKIP_MIGRATION", false) {
		log.Println("[Main] SKIP_MIGRATION=true, skipping schema migration")
	} else {
		if err := repo.Migrate(getEnv("SCHEMA_FILE", "schema.sql")); err != nil {
			log.Fatalf("[Main] migration failed: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	monthsAhead := getEnvInt("PARTITION_MONTHS_AHEAD", 3)
	if err := repo.EnsureMonthlyPartitions(ctx, monthsAhead); err != nil {
		log.Fatalf("[Main] partition setup failed: %v", err)
	}

	client, err := chain.NewClientFromEnv(
		pick("RPC_PRIMARY", fileCfg.RPCPrimary, addr.RPCPrimary),
		pick("RPC_BACKUP", fileCfg.RPCBackup, ""),
		pick("LCD_PRIMARY", fileCfg.LCDPrimary, addr.LCDPrimary),
		pick("LCD_BACKUP", fileCfg.LCDBackup, ""),
	)
	if err != nil {
		log.Fatalf("[Main] failed to create chain client: %v", err)
	}

	nativeDenom := pick("NATIVE_DENOM", fileCfg.NativeDenom, addr.NativeDenom)
	factoryAddr := pick("FACTORY_ADDR", fileCfg.FactoryAddr, addr.FactoryAddr)
	routerAddr := pick("ROUTER_ADDR", fileCfg.RouterAddr, addr.RouterAddr)

	source := market.NewSource(client, time.Duration(getEnvInt("RESERVES_TTL_MS", 2000))*time.Millisecond)

	var registry *meta.Registry
	if getEnvBool("USE_CHAIN_REGISTRY", true) {
		registry = meta.NewRegistry(getEnv("ASSETLIST_URL", addr.AssetListURL))
	} else {
		log.Println("[Main] chain-registry enrichment is DISABLED (USE_CHAIN_REGISTRY=false)")
	}
	resolver := meta.NewResolver(client, repo, registry, nativeDenom)

	wcfg := ingester.DefaultWritersConfig()
	wcfg.TradesMax = getEnvInt("TRADES_BATCH_MAX", wcfg.TradesMax)
	wcfg.TradesWait = time.Duration(getEnvInt("TRADES_BATCH_WAIT_MS", int(wcfg.TradesWait/time.Millisecond))) * time.Millisecond
	wcfg.StatesMax = getEnvInt("STATE_BATCH_MAX", wcfg.StatesMax)
	wcfg.StatesWait = time.Duration(getEnvInt("STATE_BATCH_WAIT_MS", int(wcfg.StatesWait/time.Millisecond))) * time.Millisecond
	wcfg.CandlesMax = getEnvInt("OHLCV_BATCH_MAX", wcfg.CandlesMax)
	wcfg.CandlesWait = time.Duration(getEnvInt("OHLCV_BATCH_WAIT_MS", int(wcfg.CandlesWait/time.Millisecond))) * time.Millisecond
	writers := ingester.NewWriters(repo, wcfg)

	proc := ingester.NewProcessor(client, repo, writers, source, resolver, ingester.ProcessorConfig{
		NativeDenom:     nativeDenom,
		FactoryAddr:     factoryAddr,
		RouterAddr:      routerAddr,
		Concurrency:     getEnvInt("BLOCK_PROC_CONCURRENCY", 12),
		MaxPendingTasks: getEnvInt("BLOCK_PROC_MAX_TASKS", 5000),
		MetaConcurrency: getEnvInt("META_CONCURRENCY", 3),
	})

	pipeline := ingester.NewPipeline(client, repo, writers, proc, ingester.PipelineConfig{
		Depth:             getEnvInt("PIPELINE_DEPTH", 3),
		PollSleep:         time.Duration(getEnvInt("POLL_SLEEP_MS", 1500)) * time.Millisecond,
		MaxBlocks:         getEnvInt64("MAX_BLOCKS", 0),
		CheckpointOnError: getEnvBool("CHECKPOINT_ON_ERROR", true),
	})

	sweeper := holders.NewSweeper(client, repo, holders.Config{
		Interval:        time.Duration(getEnvInt("HOLDERS_REFRESH_SEC", 180)) * time.Second,
		BatchSize:       getEnvInt("HOLDERS_BATCH_SIZE", 10),
		MaxPages:        getEnvInt("MAX_HOLDER_PAGES_PER_CYCLE", 20),
		PageConcurrency: getEnvInt("LCD_PAGE_CONCURRENCY", 4),
		PageRate:        rate.Limit(getEnvInt("LCD_PAGE_RATE", 8)),
	})

	engine := rollup.NewEngine(repo, rollup.Config{
		Interval:       time.Duration(getEnvInt("MATRIX_ROLLUP_SEC", 60)) * time.Second,
		ScaleHeuristic: getEnvBool("PRICE_SCALE_HEURISTIC", true),
	})

	var wg sync.WaitGroup

	var scanner ingester.SecurityScanner
	if getEnvBool("ENABLE_SECURITY_SCAN", true) {
		scanner = security.NewScanner(repo, client, nativeDenom)
	} else {
		log.Println("[Main] security scans are DISABLED (ENABLE_SECURITY_SCAN=false)")
	}

	// Fast-track listener reacts to pair_created notifications with
	// immediate metadata, holder, security, seed-price and matrix refreshes.
	fastTrack := ingester.NewFastTrack(repo, source, resolver, sweeper, engine, scanner, nativeDenom)
	fastTrack.Start(ctx)

	bus := eventbus.New()
	defer bus.Close()
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ctx.Err() == nil {
			if err := repo.Listen(ctx, ingester.PairCreatedChannel, bus.Handler(ingester.PairCreatedChannel)); err != nil && ctx.Err() == nil {
				log.Printf("[Main] pair_created listener lost: %v, reconnecting", err)
				time.Sleep(3 * time.Second)
			}
		}
	}()

	if getEnvBool("ENABLE_MATRIX_ROLLUP", true) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			engine.Run(ctx)
		}()
	} else {
		log.Println("[Main] matrix rollup is DISABLED (ENABLE_MATRIX_ROLLUP=false)")
	}

	if getEnvBool("ENABLE_HOLDERS", true) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sweeper.Run(ctx)
		}()
	} else {
		log.Println("[Main] holder sweeps are DISABLED (ENABLE_HOLDERS=false)")
	}

	if getEnvBool("ENABLE_PRICE_TICKER", true) {
		ticker := market.NewPriceTicker(repo, source,
			time.Duration(getEnvInt("PRICE_SIM_SEC", 8))*time.Second,
			getEnvInt("PRICE_JOB_CONCURRENCY", 4))
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker.Run(ctx)
		}()
	} else {
		log.Println("[Main] price ticker is DISABLED (ENABLE_PRICE_TICKER=false)")
	}

	if getEnvBool("ENABLE_FX", true) {
		fx := market.NewFXFetcher(repo,
			getEnv("CMC_API_KEY", ""),
			getEnv("CMC_SYMBOL", "ZIG"),
			getEnv("CMC_CONVERT", "USD"),
			time.Duration(getEnvInt("FX_SEC", 36))*time.Second)
		wg.Add(1)
		go func() {
			defer wg.Done()
			fx.Run(ctx)
		}()
	} else {
		log.Println("[Main] FX fetcher is DISABLED (ENABLE_FX=false)")
	}

	if getEnvBool("ENABLE_META_BACKFILL", true) {
		backfill := meta.NewBackfill(resolver, repo, meta.BackfillConfig{
			Interval:  time.Duration(getEnvInt("META_REFRESH_SEC", 300)) * time.Second,
			Batch:     getEnvInt("META_BACKFILL_BATCH", 25),
			Sleep:     time.Duration(getEnvInt("META_BACKFILL_SLEEP_MS", 200)) * time.Millisecond,
			CutoffAge: time.Duration(getEnvInt("META_CUTOFF_HOURS", 24)) * time.Hour,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			backfill.Run(ctx)
		}()
	} else {
		log.Println("[Main] metadata backfill is DISABLED (ENABLE_META_BACKFILL=false)")
	}

	// Keep future months' partitions ahead of the write path.
	wg.Add(1)
	go func() {
		defer wg.Done()
		interval := time.Duration(getEnvInt("PARTITIONS_SEC", 1800)) * time.Second
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if err := repo.EnsureMonthlyPartitions(ctx, monthsAhead); err != nil {
					log.Printf("[Main] partition maintenance failed: %v", err)
				}
			}
		}
	}()

	if getEnvBool("ENABLE_API", true) {
		apiPort := getEnvInt("API_PORT", 0)
		if apiPort <= 0 {
			apiPort = fileCfg.APIPort
		}
		if apiPort <= 0 {
			apiPort = 8080
		}
		server := api.NewServer(repo, client, apiPort)
		server.WatchPairs(ctx, bus)
		wg.Add(1)
		go func() {
			defer wg.Done()
			server.Start(ctx)
		}()
	} else {
		log.Println("[Main] HTTP API is DISABLED (ENABLE_API=false)")
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := pipeline.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("[Main] pipeline stopped: %v", err)
			cancel()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Printf("[Main] received signal %v, shutting down", sig)
	case <-ctx.Done():
	}
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Println("[Main] shutdown complete")
	case <-time.After(30 * time.Second):
		log.Println("[Main] shutdown timed out, exiting anyway")
	}
}

// redactDatabaseURL hides credentials for log output.
func redactDatabaseURL(dbURL string) string {
	u, err := url.Parse(dbURL)
	if err != nil {
		return "(unparseable database url)"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "****")
	}
	return u.String()
}
