package ingester

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"sync"
	"sync/atomic"

	"zigscan/internal/chain"
	"zigscan/internal/market"
	"zigscan/internal/models"
	"zigscan/internal/repository"

	"github.com/shopspring/decimal"
)

// PairCreatedChannel is the NOTIFY channel pair creations publish on.
const PairCreatedChannel = "pair_created"

// MetadataRefresher resolves and stores token metadata for one denom.
type MetadataRefresher interface {
	Refresh(ctx context.Context, denom string) error
}

// ReserveQuerier serves live pair reserves (TTL-cached upstream).
type ReserveQuerier interface {
	Reserves(ctx context.Context, pairContract string) (*chain.PoolReserves, error)
}

// ProcessorConfig are the per-height processing knobs.
type ProcessorConfig struct {
	NativeDenom     string
	FactoryAddr     string
	RouterAddr      string
	Concurrency     int // core-task fan-out
	MaxPendingTasks int // interim drain threshold
	MetaConcurrency int // metadata refresh fan-out
}

// Processor turns one block into trades, pool state, candles and prices.
// Phases per height: pools first, then a pool prefetch, then swaps and
// liquidity under a bounded fan-out, then low-priority metadata.
type Processor struct {
	client   *chain.Client
	repo     *repository.Repository
	writers  *Writers
	reserves ReserveQuerier
	meta     MetadataRefresher
	cfg      ProcessorConfig

	poolMu    sync.RWMutex
	poolCache map[string]*models.Pool

	metaMu      sync.Mutex
	metaFetched map[string]bool
}

func NewProcessor(client *chain.Client, repo *repository.Repository, writers *Writers, reserves ReserveQuerier, meta MetadataRefresher, cfg ProcessorConfig) *Processor {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 12
	}
	if cfg.MaxPendingTasks <= 0 {
		cfg.MaxPendingTasks = 5000
	}
	if cfg.MetaConcurrency <= 0 {
		cfg.MetaConcurrency = 3
	}
	return &Processor{
		client:      client,
		repo:        repo,
		writers:     writers,
		reserves:    reserves,
		meta:        meta,
		cfg:         cfg,
		poolCache:   make(map[string]*models.Pool),
		metaFetched: make(map[string]bool),
	}
}

type poolTask struct {
	attrs        chain.Attrs
	txHash       string
	senders      map[int]string
	registers    []chain.Attrs
	instantiates []chain.Attrs
}

type coreTask struct {
	action  string
	attrs   chain.Attrs
	txHash  string
	senders map[int]string
}

// matchEvents collects attribute maps for an AMM event regardless of how
// the chain surfaced it: a dedicated event type, a wasm-prefixed type, or
// a wasm event with a matching action attribute.
func matchEvents(events []chain.Event, wasms []chain.Attrs, name string) []chain.Attrs {
	out := chain.ByType(events, name)
	out = append(out, chain.ByType(events, "wasm-"+name)...)
	return append(out, chain.WasmByAction(wasms, name)...)
}

// ProcessHeight fetches and ingests one block. Individual task failures
// are logged, not returned; only fetch-level failures fail the height.
func (p *Processor) ProcessHeight(ctx context.Context, height int64) error {
	block, results, err := p.fetchBlock(ctx, height)
	if err != nil {
		return err
	}

	var poolTasks []poolTask
	var coreTasks []coreTask
	for i, txr := range results {
		if txr.Code != 0 {
			continue
		}
		var txHash string
		if i < len(block.Txs) {
			h, err := chain.TxHash(block.Txs[i])
			if err != nil {
				log.Printf("[Processor] height %d tx %d: bad tx bytes: %v", height, i, err)
				continue
			}
			txHash = h
		}

		wasms := chain.ByType(txr.Events, "wasm")
		senders := chain.MsgSenderByIndex(chain.ByType(txr.Events, "message"))
		registers := matchEvents(txr.Events, wasms, "register")
		instantiates := chain.ByType(txr.Events, "instantiate")

		for _, cp := range matchEvents(txr.Events, wasms, "create_pair") {
			if p.cfg.FactoryAddr != "" && cp["_contract_address"] != p.cfg.FactoryAddr {
				continue
			}
			poolTasks = append(poolTasks, poolTask{
				attrs: cp, txHash: txHash, senders: senders,
				registers: registers, instantiates: instantiates,
			})
		}
		for _, sw := range matchEvents(txr.Events, wasms, "swap") {
			coreTasks = append(coreTasks, coreTask{action: models.ActionSwap, attrs: sw, txHash: txHash, senders: senders})
		}
		for _, pl := range matchEvents(txr.Events, wasms, "provide_liquidity") {
			coreTasks = append(coreTasks, coreTask{action: models.ActionProvide, attrs: pl, txHash: txHash, senders: senders})
		}
		for _, wd := range matchEvents(txr.Events, wasms, "withdraw_liquidity") {
			coreTasks = append(coreTasks, coreTask{action: models.ActionWithdraw, attrs: wd, txHash: txHash, senders: senders})
		}
	}

	// Phase 1: pools. Must complete before any core task touches a pool
	// created in this very block.
	for _, t := range poolTasks {
		if err := p.createPool(ctx, block, t); err != nil {
			log.Printf("[Processor] height %d create_pair: %v", height, err)
		}
	}

	// Phase 1.5: warm the pool cache for every contract the core tasks
	// reference.
	p.prefetchPools(ctx, coreTasks)

	// Phase 2: swaps and liquidity, chunked so a pathological block drains
	// the writers before overflowing them.
	for start := 0; start < len(coreTasks); start += p.cfg.MaxPendingTasks {
		end := start + p.cfg.MaxPendingTasks
		if end > len(coreTasks) {
			end = len(coreTasks)
		}
		p.runBounded(len(coreTasks[start:end]), p.cfg.Concurrency, func(i int) {
			t := coreTasks[start+i]
			if err := p.handleCore(ctx, block, t); err != nil {
				log.Printf("[Processor] height %d %s: %v", height, t.action, err)
			}
		})
		if end < len(coreTasks) {
			if err := p.writers.DrainAll(ctx); err != nil {
				log.Printf("[Processor] height %d interim drain: %v", height, err)
			}
		}
	}

	// Phase 3: metadata for denoms seen for the first time.
	p.refreshNewMetadata(ctx, poolTasks, coreTasks)
	return nil
}

func (p *Processor) fetchBlock(ctx context.Context, height int64) (*chain.Block, []chain.TxResult, error) {
	var (
		block    *chain.Block
		results  []chain.TxResult
		blockErr error
		resErr   error
		wg       sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		block, blockErr = p.client.GetBlock(ctx, height)
	}()
	go func() {
		defer wg.Done()
		results, resErr = p.client.GetBlockResults(ctx, height)
	}()
	wg.Wait()
	if blockErr != nil {
		return nil, nil, blockErr
	}
	if resErr != nil {
		return nil, nil, resErr
	}
	return block, results, nil
}

// runBounded runs fn(0..n) over at most `workers` goroutines consuming a
// shared index, and joins before returning.
func (p *Processor) runBounded(n, workers int, fn func(i int)) {
	if n == 0 {
		return
	}
	if workers > n {
		workers = n
	}
	var idx int64 = -1
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := atomic.AddInt64(&idx, 1)
				if i >= int64(n) {
					return
				}
				fn(int(i))
			}
		}()
	}
	wg.Wait()
}

func (p *Processor) cachedPool(pairContract string) *models.Pool {
	p.poolMu.RLock()
	defer p.poolMu.RUnlock()
	return p.poolCache[pairContract]
}

func (p *Processor) cachePool(pool *models.Pool) {
	p.poolMu.Lock()
	p.poolCache[pool.PairContract] = pool
	p.poolMu.Unlock()
}

func (p *Processor) createPool(ctx context.Context, block *chain.Block, t poolTask) error {
	pair := t.attrs["pair"]
	if pair == "" {
		return fmt.Errorf("create_pair without pair attribute")
	}
	base, quote := chain.ParsePair(pair, p.cfg.NativeDenom)
	if quote == "" {
		return fmt.Errorf("unparseable pair %q", pair)
	}

	pairContract := poolAddress(t)
	if pairContract == "" {
		return fmt.Errorf("pair %q: no contract address in register or instantiate events", pair)
	}

	baseID, err := p.repo.EnsureToken(ctx, base, p.cfg.NativeDenom)
	if err != nil {
		return err
	}
	quoteID, err := p.repo.EnsureToken(ctx, quote, p.cfg.NativeDenom)
	if err != nil {
		return err
	}

	pairType := t.attrs["pair_type"]
	if pairType == "" {
		pairType = models.PairTypeXYK
	}
	msgIndex := atoiDefault(t.attrs["msg_index"], 0)

	pool := models.Pool{
		PairContract:  pairContract,
		BaseTokenID:   baseID,
		QuoteTokenID:  quoteID,
		LPDenom:       ptrNonEmpty(t.attrs["lp_denom"]),
		PairType:      pairType,
		IsNativeQuote: quote == p.cfg.NativeDenom,
		FactoryAddr:   ptrNonEmpty(p.cfg.FactoryAddr),
		RouterAddr:    ptrNonEmpty(p.cfg.RouterAddr),
		CreatedHeight: block.Height,
		CreatedTx:     t.txHash,
		CreatedSigner: ptrNonEmpty(t.senders[msgIndex]),
		CreatedAt:     block.Time,
	}
	stored, err := p.repo.UpsertPool(ctx, pool)
	if err != nil {
		return err
	}
	p.cachePool(stored)

	payload, err := json.Marshal(models.PairCreated{
		PoolID:        stored.ID,
		PairContract:  stored.PairContract,
		BaseDenom:     stored.BaseDenom,
		QuoteDenom:    stored.QuoteDenom,
		BaseTokenID:   stored.BaseTokenID,
		QuoteTokenID:  stored.QuoteTokenID,
		IsNativeQuote: stored.IsNativeQuote,
	})
	if err != nil {
		return err
	}
	if err := p.repo.Notify(ctx, PairCreatedChannel, string(payload)); err != nil {
		log.Printf("[Processor] notify %s for pool %d: %v", PairCreatedChannel, stored.ID, err)
	}
	log.Printf("[Processor] new pool %d %s (%s/%s) at height %d", stored.ID, stored.PairContract, base, quote, block.Height)
	return nil
}

// poolAddress prefers the register event's pair_contract_addr and falls
// back to the last instantiate event of the tx.
func poolAddress(t poolTask) string {
	for _, r := range t.registers {
		if addr := r["pair_contract_addr"]; addr != "" {
			return addr
		}
	}
	for i := len(t.instantiates) - 1; i >= 0; i-- {
		if addr := t.instantiates[i]["_contract_address"]; addr != "" {
			return addr
		}
	}
	return ""
}

func (p *Processor) prefetchPools(ctx context.Context, tasks []coreTask) {
	missing := make([]string, 0)
	seen := make(map[string]bool)
	for _, t := range tasks {
		contract := t.attrs["_contract_address"]
		if contract == "" || seen[contract] {
			continue
		}
		seen[contract] = true
		if p.cachedPool(contract) == nil {
			missing = append(missing, contract)
		}
	}
	p.runBounded(len(missing), p.cfg.Concurrency, func(i int) {
		pool, err := p.repo.GetPoolByContract(ctx, missing[i])
		if err != nil {
			log.Printf("[Processor] prefetch pool %s: %v", missing[i], err)
			return
		}
		if pool != nil {
			p.cachePool(pool)
		}
	})
}

func (p *Processor) handleCore(ctx context.Context, block *chain.Block, t coreTask) error {
	if t.action == models.ActionSwap {
		return p.handleSwap(ctx, block, t)
	}
	return p.handleLiquidity(ctx, block, t)
}

func (p *Processor) handleSwap(ctx context.Context, block *chain.Block, t coreTask) error {
	contract := t.attrs["_contract_address"]
	pool := p.cachedPool(contract)
	if pool == nil {
		return fmt.Errorf("swap on unknown pool %s", contract)
	}

	msgIndex := atoiDefault(t.attrs["msg_index"], 0)
	offerDenom := t.attrs["offer_asset"]
	sender := t.senders[msgIndex]

	trade := models.Trade{
		CreatedAt:        block.Time,
		TxHash:           t.txHash,
		PoolID:           pool.ID,
		MsgIndex:         msgIndex,
		Action:           models.ActionSwap,
		Direction:        chain.ClassifyDirection(offerDenom, pool.QuoteDenom),
		OfferDenom:       ptrNonEmpty(offerDenom),
		OfferAmountBase:  ptrNonEmpty(t.attrs["offer_amount"]),
		AskDenom:         ptrNonEmpty(t.attrs["ask_asset"]),
		ReturnAmountBase: ptrNonEmpty(t.attrs["return_amount"]),
		Height:           block.Height,
		Signer:           ptrNonEmpty(sender),
		IsRouter:         p.cfg.RouterAddr != "" && sender == p.cfg.RouterAddr,
	}

	if rb, rq, ok := alignReserves(chain.ParseReservesKV(t.attrs["reserves"]), pool); ok {
		trade.ReserveBaseBase = &rb
		trade.ReserveQuoteBase = &rq
		p.writers.States.Add(ctx, models.PoolState{
			PoolID:           pool.ID,
			ReserveBaseBase:  rb,
			ReserveQuoteBase: rq,
			UpdatedAt:        block.Time,
		})
	}
	p.writers.Trades.Add(ctx, trade)

	if !pool.IsNativeQuote || pool.BaseExponent == nil {
		return nil
	}

	// Price the pool from live reserves rather than the event snapshot so
	// the candle close reflects the post-swap state.
	pr, err := p.reserves.Reserves(ctx, contract)
	if err != nil {
		return fmt.Errorf("reserves for %s: %w", contract, err)
	}
	baseRaw, okB := pr.ReserveFor(pool.BaseDenom)
	quoteRaw, okQ := pr.ReserveFor(pool.QuoteDenom)
	if !okB || !okQ {
		return fmt.Errorf("reserves for %s missing a leg", contract)
	}
	price, err := market.ComputePrice(baseRaw, quoteRaw, *pool.BaseExponent, market.NativeExponent)
	if err != nil {
		return fmt.Errorf("price for %s: %w", contract, err)
	}

	quoteLeg := t.attrs["return_amount"]
	if trade.Direction == models.DirectionBuy {
		quoteLeg = t.attrs["offer_amount"]
	}
	volume, err := decimal.NewFromString(quoteLeg)
	if err != nil {
		volume = decimal.Zero
	}
	p.writers.Candles.Add(ctx, CandleObs{
		PoolID:       pool.ID,
		At:           block.Time,
		Price:        price,
		VolumeNative: volume.Shift(-market.NativeExponent),
	})

	return p.repo.UpsertPrice(ctx, models.Price{
		TokenID:      pool.BaseTokenID,
		PoolID:       pool.ID,
		PriceNative:  price,
		IsPairNative: true,
	})
}

func (p *Processor) handleLiquidity(ctx context.Context, block *chain.Block, t coreTask) error {
	contract := t.attrs["_contract_address"]
	pool := p.cachedPool(contract)
	if pool == nil {
		return fmt.Errorf("%s on unknown pool %s", t.action, contract)
	}

	msgIndex := atoiDefault(t.attrs["msg_index"], 0)
	sender := t.senders[msgIndex]

	trade := models.Trade{
		CreatedAt: block.Time,
		TxHash:    t.txHash,
		PoolID:    pool.ID,
		MsgIndex:  msgIndex,
		Action:    t.action,
		Direction: t.action,
		Height:    block.Height,
		Signer:    ptrNonEmpty(sender),
		IsRouter:  p.cfg.RouterAddr != "" && sender == p.cfg.RouterAddr,
	}

	rb, rq, ok := alignReserves(liquidityReserves(t.attrs), pool)
	if ok {
		trade.ReserveBaseBase = &rb
		trade.ReserveQuoteBase = &rq
		p.writers.States.Add(ctx, models.PoolState{
			PoolID:           pool.ID,
			ReserveBaseBase:  rb,
			ReserveQuoteBase: rq,
			UpdatedAt:        block.Time,
		})
	}
	p.writers.Trades.Add(ctx, trade)

	if !ok || !pool.IsNativeQuote || pool.BaseExponent == nil {
		return nil
	}
	price, err := market.ComputePrice(rb, rq, *pool.BaseExponent, market.NativeExponent)
	if err != nil {
		return nil
	}
	return p.repo.UpsertPrice(ctx, models.Price{
		TokenID:      pool.BaseTokenID,
		PoolID:       pool.ID,
		PriceNative:  price,
		IsPairNative: true,
	})
}

// liquidityReserves reads the post-event reserves from a provide/withdraw
// event, preferring the explicit reserve_asset attributes.
func liquidityReserves(attrs chain.Attrs) []chain.AssetAmount {
	var out []chain.AssetAmount
	for _, n := range []string{"1", "2"} {
		denom := attrs["reserve_asset"+n+"_denom"]
		amount := attrs["reserve_asset"+n+"_amount"]
		if denom != "" && amount != "" {
			out = append(out, chain.AssetAmount{Denom: denom, AmountBase: amount})
		}
	}
	if len(out) == 2 {
		return out
	}
	return chain.ParseReservesKV(attrs["reserves"])
}

func alignReserves(assets []chain.AssetAmount, pool *models.Pool) (baseRaw, quoteRaw string, ok bool) {
	for _, a := range assets {
		switch a.Denom {
		case pool.BaseDenom:
			baseRaw = a.AmountBase
		case pool.QuoteDenom:
			quoteRaw = a.AmountBase
		}
	}
	return baseRaw, quoteRaw, baseRaw != "" && quoteRaw != ""
}

func (p *Processor) refreshNewMetadata(ctx context.Context, poolTasks []poolTask, coreTasks []coreTask) {
	if p.meta == nil {
		return
	}
	var denoms []string
	add := func(denom string) {
		if denom == "" {
			return
		}
		p.metaMu.Lock()
		fetched := p.metaFetched[denom]
		p.metaMu.Unlock()
		if !fetched {
			for _, d := range denoms {
				if d == denom {
					return
				}
			}
			denoms = append(denoms, denom)
		}
	}
	for _, t := range poolTasks {
		base, quote := chain.ParsePair(t.attrs["pair"], p.cfg.NativeDenom)
		add(base)
		add(quote)
	}
	for _, t := range coreTasks {
		if pool := p.cachedPool(t.attrs["_contract_address"]); pool != nil {
			add(pool.BaseDenom)
			add(pool.QuoteDenom)
		}
	}

	p.runBounded(len(denoms), p.cfg.MetaConcurrency, func(i int) {
		denom := denoms[i]
		if err := p.meta.Refresh(ctx, denom); err != nil {
			log.Printf("[Processor] metadata refresh %s: %v", denom, err)
			return
		}
		p.metaMu.Lock()
		p.metaFetched[denom] = true
		p.metaMu.Unlock()
	})
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func ptrNonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
