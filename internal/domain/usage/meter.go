package usage

import (
	"context"
	"time"

	"github.com/radubobirnac/vocallocal-sub003/internal/domain/events"
	"github.com/radubobirnac/vocallocal-sub003/internal/domain/usage/store"
	"github.com/radubobirnac/vocallocal-sub003/internal/platform/config"
	"github.com/radubobirnac/vocallocal-sub003/internal/platform/errors"
	"github.com/radubobirnac/vocallocal-sub003/internal/platform/logging"
	"github.com/radubobirnac/vocallocal-sub003/internal/platform/storage"
)

// Services metered by the pipeline.
const (
	ServiceTranscription = "transcription"
	ServiceTranslation   = "translation"
	ServiceTTS           = "tts"
)

// PlanFree is the capped entry tier; unknown plans bill at its rate.
const PlanFree = "free"

// Ledger is the externally-owned persistence the meter writes entries
// to. *storage.Ledger satisfies it.
type Ledger interface {
	RecordUsage(ctx context.Context, record *storage.UsageRecord) error
	RollingUsage(ctx context.Context, userID, service string, window time.Duration) (float64, error)
}

// Meter converts resolved durations into billable credits and gates
// work behind per-user pacing and rolling-window quotas. Admission and
// charge for one job must be computed from the same resolved duration.
type Meter struct {
	store  store.Store
	ledger Ledger
	cfg    config.UsageConfig
	logger *logging.Logger
}

// NewMeter builds a Meter over the given counter store and ledger.
func NewMeter(cfg config.UsageConfig, counterStore store.Store, ledger Ledger, logger *logging.Logger) *Meter {
	return &Meter{
		store:  counterStore,
		ledger: ledger,
		cfg:    cfg,
		logger: logger,
	}
}

// RateFor returns credits-per-minute for a plan. Unrecognized plans get
// the most expensive known rate, never a free ride.
func (m *Meter) RateFor(plan string) float64 {
	if rate, ok := m.cfg.Rates[plan]; ok {
		return rate
	}
	highest := 0.0
	for _, rate := range m.cfg.Rates {
		if rate > highest {
			highest = rate
		}
	}
	if highest == 0 {
		highest = 1.0
	}
	return highest
}

// Credits prices minutes of audio under a plan. Fractions are kept.
func (m *Meter) Credits(plan string, minutes float64) float64 {
	return m.RateFor(plan) * minutes
}

// EstimateMinutesFromSize is the conservative fallback used when no
// duration could be resolved: compressed speech audio runs roughly one
// minute per megabyte, floored at one minute so nothing bills zero.
func (m *Meter) EstimateMinutesFromSize(sizeBytes int64) float64 {
	perMB := m.cfg.FallbackMBPerMin
	if perMB <= 0 {
		perMB = 1.0
	}
	minutes := float64(sizeBytes) / (1024 * 1024) * perMB
	if minutes < 1 {
		minutes = 1
	}
	return minutes
}

func (m *Meter) capFor(plan string) float64 {
	if plan == PlanFree {
		return m.cfg.FreeDailyCap
	}
	return 0
}

// CheckAdmission gates a usage-consuming operation. A nil return means
// admitted, with estimatedCredits already reserved against the rolling
// window; errors carry KindRateLimit ("retry shortly") or KindQuota
// ("retry tomorrow or upgrade").
func (m *Meter) CheckAdmission(ctx context.Context, userID, service, plan string, estimatedCredits float64) error {
	allowed, err := m.store.AllowRequest(ctx, userID, m.cfg.MinInterval)
	if err != nil {
		return errors.Wrap(errors.KindStorage, "meter.admission", "rate check failed", err)
	}
	if !allowed {
		return errors.New(errors.KindRateLimit, "meter.admission", "rate limited, retry shortly")
	}

	reserved, err := m.store.ReserveUsage(ctx, userID, service, estimatedCredits, m.capFor(plan), m.cfg.Window)
	if err != nil {
		return errors.Wrap(errors.KindStorage, "meter.admission", "quota reservation failed", err)
	}
	if !reserved {
		return errors.New(errors.KindQuota, "meter.admission", "quota exhausted, retry tomorrow or upgrade")
	}
	return nil
}

// Release returns reserved credits when an admitted job never consumed
// provider work (e.g. it failed before the first chunk was dispatched).
func (m *Meter) Release(ctx context.Context, userID, service string, credits float64) {
	if credits <= 0 {
		return
	}
	if err := m.store.AdjustUsage(ctx, userID, service, -credits, m.cfg.Window); err != nil {
		m.logger.WarnTag("METER", "failed to release %.3f credits for %s: %v", credits, userID, err)
	}
}

// Charge records actual consumption. minutes <= 0 means the duration
// could not be resolved; the charge then falls back to a size estimate
// (or the flat minimum) and the entry is flagged approximate for later
// reconciliation. Billing is never silently skipped.
func (m *Meter) Charge(ctx context.Context, userID, service, plan string, minutes float64, sizeBytes int64) (*storage.UsageRecord, error) {
	approximate := false
	if minutes <= 0 {
		minutes = m.EstimateMinutesFromSize(sizeBytes)
		approximate = true
		m.logger.WarnTag("METER", "duration unresolved for %s, billing approximate %.2f minutes", userID, minutes)
	}

	record := &storage.UsageRecord{
		UserID:      userID,
		Service:     service,
		Amount:      m.Credits(plan, minutes),
		Plan:        plan,
		Approximate: approximate,
	}
	if err := m.ledger.RecordUsage(ctx, record); err != nil {
		return nil, err
	}

	events.Publish(events.EventUsageCharged, events.UsageEventData{
		UserID:      userID,
		Service:     service,
		Credits:     record.Amount,
		Plan:        plan,
		Approximate: approximate,
	})
	return record, nil
}

// RollingUsage reports ledger-backed consumption inside the configured
// window.
func (m *Meter) RollingUsage(ctx context.Context, userID, service string) (float64, error) {
	return m.ledger.RollingUsage(ctx, userID, service, m.cfg.Window)
}
