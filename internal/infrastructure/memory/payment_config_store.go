package memory

import (
	"context"
	"slices"
	"sync"

	dompayment "github.com/caffeinepub/kodinar-bazaar/internal/domain/payment"
)

type PaymentConfigStore struct {
	mu  sync.RWMutex
	cfg dompayment.Configuration
}

func NewPaymentConfigStore() *PaymentConfigStore {
	return &PaymentConfigStore{}
}

func (s *PaymentConfigStore) Load(ctx context.Context) (dompayment.Configuration, bool) {
	_ = ctx

	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg := s.cfg
	cfg.AllowedCountries = slices.Clone(s.cfg.AllowedCountries)
	return cfg, !cfg.IsZero()
}

func (s *PaymentConfigStore) Store(ctx context.Context, cfg dompayment.Configuration) error {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	cfg.AllowedCountries = slices.Clone(cfg.AllowedCountries)
	s.cfg = cfg
	return nil
}
