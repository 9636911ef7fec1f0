package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"market_reader_backend/models"
	"market_reader_backend/services/calendar"
	"market_reader_backend/services/gateway"
)

// Bar sizes requested per cycle: 5-minute bars for the top-level classes,
// 1-minute bars for same-day options.
const (
	contractBarSize = 5
	optionBarSize   = 1
)

// syncJob is one independent unit of work: synchronize every data type of one
// contract over its own gateway session.
type syncJob struct {
	contract  models.Contract
	wire      gateway.Contract
	dataTypes []models.DataType
	barSize   int
}

// dataTypesFor returns the price-type set synchronized per contract class.
func dataTypesFor(ct models.ContractType) []models.DataType {
	switch ct {
	case models.ContractForex:
		return []models.DataType{models.DataAsk, models.DataBid}
	case models.ContractIndex:
		return []models.DataType{models.DataTrades}
	}
	return []models.DataType{models.DataBid, models.DataAsk, models.DataTrades}
}

// runMarketDataCycle is one scheduler tick. It resolves today's expiration
// once, runs option discovery for every tradable stock over a shared
// session, and fans bar-sync jobs out to the worker pool. Jobs are
// independent: one instrument failing never stops the cycle.
func (s *Scheduler) runMarketDataCycle() {
	ctx := context.Background()
	started := time.Now()
	log.Println("Starting market data cycle...")

	expiration, err := calendar.NextExpiration(s.now())
	if err != nil {
		log.Printf("Error resolving expiration date: %v", err)
		return
	}
	log.Printf("Expiration date: %s", expiration)

	jobs := make(chan syncJob)
	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				s.runSyncJob(ctx, job)
			}
		}()
	}

	dispatched := 0
	dispatch := func(contract models.Contract, barSize int) {
		wire, ok, err := s.contracts.GatewayContract(contract)
		if err != nil {
			log.Printf("Error building gateway contract for %s: %v", contract.Symbol, err)
			return
		}
		if !ok {
			return
		}
		jobs <- syncJob{
			contract:  contract,
			wire:      wire,
			dataTypes: dataTypesFor(contract.ContractType),
			barSize:   barSize,
		}
		dispatched++
	}

	s.dispatchStocks(ctx, expiration, dispatch)

	for _, ct := range []models.ContractType{models.ContractFuture, models.ContractForex, models.ContractIndex} {
		list, err := s.contracts.List(ct)
		if err != nil {
			log.Printf("Error loading %s contracts: %v", ct, err)
			continue
		}
		for _, contract := range list {
			dispatch(contract, contractBarSize)
		}
	}

	close(jobs)
	wg.Wait()
	log.Printf("Market data cycle finished: %d jobs in %v", dispatched, time.Since(started))
}

// dispatchStocks runs option discovery for each tradable stock over one
// shared session, then dispatches the stock's own bar job plus one job per
// discovered or reused option contract. Discovery failures are logged and
// skip the options for that underlying only.
func (s *Scheduler) dispatchStocks(ctx context.Context, expiration string, dispatch func(models.Contract, int)) {
	stocks, err := s.contracts.ListTradable(models.ContractStock)
	if err != nil {
		log.Printf("Error loading stocks: %v", err)
		return
	}
	if len(stocks) == 0 {
		return
	}

	err = s.sessions.WithSession(ctx, func(sess *gateway.Session) error {
		for i := range stocks {
			stock := stocks[i]

			opts, err := s.options.Discover(ctx, sess.Conn, &stock, expiration)
			if err != nil {
				log.Printf("Option discovery failed for %s: %v", stock.Symbol, err)
			}

			dispatch(stock, contractBarSize)
			for _, opt := range opts {
				dispatch(opt, optionBarSize)
			}
		}
		return nil
	})
	if err != nil {
		log.Printf("Error running option discovery session: %v", err)
	}
}

// runSyncJob synchronizes one contract. The job acquires its own session,
// syncs its data types sequentially over it, and commits all new bars as one
// batch. A job that cannot get a session aborts before any write.
func (s *Scheduler) runSyncJob(ctx context.Context, job syncJob) {
	err := s.sessions.WithSession(ctx, func(sess *gateway.Session) error {
		var batch []models.PriceBar
		for _, dataType := range job.dataTypes {
			bars, err := s.prices.SyncBars(ctx, sess.Conn, &job.contract, job.wire, dataType, job.barSize)
			if err != nil {
				return err
			}
			log.Printf("Got %d new bars for %s %s", len(bars), dataType, job.contract.Symbol)
			batch = append(batch, bars...)
		}
		return s.prices.InsertBars(batch)
	})
	if err != nil {
		log.Printf("Sync job failed for %s %s: %v", job.contract.ContractType, job.contract.Symbol, err)
	}
}
