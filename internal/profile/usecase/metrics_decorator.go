package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/pii-vault/internal/metrics"
	profileDomain "github.com/allisson/pii-vault/internal/profile/domain"
)

// profileUseCaseWithMetrics decorates ProfileUseCase with metrics instrumentation.
type profileUseCaseWithMetrics struct {
	next    ProfileUseCase
	metrics metrics.BusinessMetrics
}

// NewProfileUseCaseWithMetrics wraps a ProfileUseCase with metrics recording.
func NewProfileUseCaseWithMetrics(useCase ProfileUseCase, m metrics.BusinessMetrics) ProfileUseCase {
	return &profileUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

// PublicKeyDistribution records metrics for public key distribution requests.
func (p *profileUseCaseWithMetrics) PublicKeyDistribution(ctx context.Context) (string, error) {
	start := time.Now()
	result, err := p.next.PublicKeyDistribution(ctx)

	status := "success"
	if err != nil {
		status = "error"
	}

	p.metrics.RecordOperation(ctx, "profile", "public_key_distribution", status)
	p.metrics.RecordDuration(ctx, "profile", "public_key_distribution", time.Since(start), status)

	return result, err
}

// SaveFromEnvelope records metrics for profile creation operations.
func (p *profileUseCaseWithMetrics) SaveFromEnvelope(
	ctx context.Context,
	envelope []byte,
) (uuid.UUID, error) {
	start := time.Now()
	id, err := p.next.SaveFromEnvelope(ctx, envelope)

	status := "success"
	if err != nil {
		status = "error"
	}

	p.metrics.RecordOperation(ctx, "profile", "profile_create", status)
	p.metrics.RecordDuration(ctx, "profile", "profile_create", time.Since(start), status)

	return id, err
}

// ExistsByNationalID records metrics for existence check operations.
func (p *profileUseCaseWithMetrics) ExistsByNationalID(
	ctx context.Context,
	nationalID string,
) (bool, error) {
	start := time.Now()
	exists, err := p.next.ExistsByNationalID(ctx, nationalID)

	status := "success"
	if err != nil {
		status = "error"
	}

	p.metrics.RecordOperation(ctx, "profile", "profile_existence", status)
	p.metrics.RecordDuration(ctx, "profile", "profile_existence", time.Since(start), status)

	return exists, err
}

// FindByNationalID records metrics for profile lookup operations.
func (p *profileUseCaseWithMetrics) FindByNationalID(
	ctx context.Context,
	nationalID string,
) (*profileDomain.Profile, error) {
	start := time.Now()
	profile, err := p.next.FindByNationalID(ctx, nationalID)

	status := "success"
	if err != nil {
		status = "error"
	}

	p.metrics.RecordOperation(ctx, "profile", "profile_find", status)
	p.metrics.RecordDuration(ctx, "profile", "profile_find", time.Since(start), status)

	return profile, err
}
