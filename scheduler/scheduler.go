package scheduler

import (
	"log"
	"time"

	"market_reader_backend/services/calendar"
	"market_reader_backend/services/contracts"
	"market_reader_backend/services/gateway"
	"market_reader_backend/services/options"
	"market_reader_backend/services/prices"

	"github.com/go-co-op/gocron"
	"gorm.io/gorm"
)

// defaultSyncWorkers bounds how many bar-sync jobs run concurrently. Each job
// holds its own gateway session, so this also caps open sessions.
const defaultSyncWorkers = 4

// Scheduler manages the recurring market-data synchronization cycle.
type Scheduler struct {
	cron      *gocron.Scheduler
	db        *gorm.DB
	sessions  *gateway.SessionManager
	contracts *contracts.Service
	options   *options.Service
	prices    *prices.Service
	workers   int
	interval  time.Duration
	now       func() time.Time
}

// NewScheduler creates a scheduler instance wired to the gateway dialer.
// Every time-dependent decision in a cycle (expiration resolution, pre-market
// guards, closed-window filtering) reads the scheduler's clock, so they all
// agree on "now".
func NewScheduler(db *gorm.DB, dialer gateway.Dialer) *Scheduler {
	sessions := gateway.NewSessionManager(dialer)
	s := &Scheduler{
		cron:     gocron.NewScheduler(time.UTC),
		db:       db,
		sessions: sessions,
		workers:  defaultSyncWorkers,
		interval: 5 * time.Minute,
		now:      func() time.Time { return time.Now().In(calendar.NewYork) },
	}
	clock := func() time.Time { return s.now() }
	s.contracts = contracts.NewServiceWithClock(db, sessions, clock)
	s.options = options.NewServiceWithClock(db, s.contracts, clock)
	s.prices = prices.NewServiceWithClock(db, clock)
	return s
}

// Start starts all scheduled jobs
func (s *Scheduler) Start() {
	log.Println("Starting scheduler...")

	// Synchronize market data across the instrument universe every 5 minutes
	s.cron.Every(s.interval).Do(func() {
		s.runMarketDataCycle()
	})

	s.cron.StartAsync()
	log.Println("Scheduler started successfully")
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Println("Scheduler stopped")
}
