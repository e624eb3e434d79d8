package retention

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Pruner deletes ended sessions older than a cutoff. *db.Database satisfies it.
type Pruner interface {
	PruneEndedSessions(before time.Time) (int64, error)
}

type Config struct {
	Interval time.Duration
	MaxAge   time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval: 10 * time.Minute,
		MaxAge:   7 * 24 * time.Hour,
	}
}

// Service periodically prunes the session audit log.
type Service struct {
	store  Pruner
	config Config
	logger *zap.Logger
	now    func() time.Time
	stop   chan struct{}
	wg     sync.WaitGroup
}

func New(store Pruner, config Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:  store,
		config: config,
		logger: logger,
		now:    time.Now,
		stop:   make(chan struct{}),
	}
}

func (s *Service) Start() {
	s.wg.Add(1)
	go s.run()
	s.logger.Info("retention service started",
		zap.Duration("interval", s.config.Interval),
		zap.Duration("max_age", s.config.MaxAge))
}

func (s *Service) Stop() {
	close(s.stop)
	s.wg.Wait()
	s.logger.Info("retention service stopped")
}

func (s *Service) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.PruneNow()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.PruneNow()
		}
	}
}

// PruneNow runs one pass and returns how many sessions were removed.
func (s *Service) PruneNow() int64 {
	cutoff := s.now().Add(-s.config.MaxAge)
	n, err := s.store.PruneEndedSessions(cutoff)
	if err != nil {
		s.logger.Warn("retention: prune failed", zap.Error(err))
		return 0
	}
	if n > 0 {
		s.logger.Info("retention: pruned sessions", zap.Int64("count", n), zap.Time("cutoff", cutoff))
	}
	return n
}
