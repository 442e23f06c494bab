package paymentconfig

import (
	"context"
	"fmt"

	"github.com/caffeinepub/kodinar-bazaar/internal/application"
	domidentity "github.com/caffeinepub/kodinar-bazaar/internal/domain/identity"
	dompayment "github.com/caffeinepub/kodinar-bazaar/internal/domain/payment"
	"github.com/caffeinepub/kodinar-bazaar/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	configService    = "payment-config"
	useCaseConfigSet = "payment.config.set"
)

type SetInput struct {
	Principal        domidentity.Principal
	SecretKey        string
	AllowedCountries []string
}

type SetResult struct {
	Live             bool
	AllowedCountries []string
}

// SetUseCase replaces the provider configuration. Only admins may call it and
// the result never echoes the key.
type SetUseCase struct {
	store dompayment.ConfigStore
	inst  *application.Instrument
}

var _ application.UseCase[SetInput, *SetResult] = (*SetUseCase)(nil)

func NewSetUseCase(store dompayment.ConfigStore, tel observability.Observability) *SetUseCase {
	return &SetUseCase{
		store: store,
		inst:  application.NewInstrument(tel, configService, useCaseConfigSet, "SetPaymentConfiguration"),
	}
}

func (uc *SetUseCase) Execute(ctx context.Context, cmd SetInput) (_ *SetResult, err error) {
	ctx, run := uc.inst.Begin(ctx, attribute.Int("payment.countries", len(cmd.AllowedCountries)))
	defer func() { run.End(err) }()

	if err := domidentity.RequireAdmin(cmd.Principal); err != nil {
		return nil, run.Fail("ADMIN_REQUIRED", err)
	}
	cfg, err := dompayment.NewConfiguration(cmd.SecretKey, cmd.AllowedCountries)
	if err != nil {
		return nil, run.Fail("CONFIGURATION_INVALID", err)
	}
	if err := uc.store.Store(ctx, cfg); err != nil {
		return nil, run.Fail("CONFIGURATION_STORE_FAILED", fmt.Errorf("payment config: store: %w", err))
	}

	run.Field("configuration", cfg.String())
	return &SetResult{Live: cfg.Live(), AllowedCountries: cfg.AllowedCountries}, nil
}

// Status answers the public "is payment configured" query.
type Status struct {
	gateway dompayment.Gateway
}

func NewStatus(gateway dompayment.Gateway) *Status {
	return &Status{gateway: gateway}
}

func (s *Status) IsConfigured(ctx context.Context) bool {
	return s.gateway != nil && s.gateway.IsConfigured(ctx)
}
