// Package resolver maps ciphertext to the key version that can decrypt it.
//
// For envelopes the tagged version is authoritative: exact version or
// failure. For stored records the resolver tries the tagged version, then the
// current version, then the remaining active versions newest-first, and
// remembers successful resolutions in a TTL cache. The cache only skips
// fallback probing; a cold or flushed cache changes latency, never results.
package resolver

import (
	"context"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"

	auditDomain "github.com/allisson/pii-vault/internal/audit/domain"
	auditUseCase "github.com/allisson/pii-vault/internal/audit/usecase"
	cryptoDomain "github.com/allisson/pii-vault/internal/crypto/domain"
	cryptoService "github.com/allisson/pii-vault/internal/crypto/service"
	keyringDomain "github.com/allisson/pii-vault/internal/keyring/domain"
	"github.com/allisson/pii-vault/internal/metrics"
	profileDomain "github.com/allisson/pii-vault/internal/profile/domain"
)

// Resolver decrypts envelopes and stored records against the key registry.
type Resolver struct {
	keyring *keyringDomain.Keyring
	wrapper cryptoService.KeyWrapper
	codec   cryptoService.PayloadCodec
	cache   *gocache.Cache
	audit   auditUseCase.Recorder
	metrics metrics.BusinessMetrics
	logger  *slog.Logger
}

// NewResolver creates a resolver with a TTL cache of record-to-version hits.
//
// The cache expires lazily on access (no janitor goroutine): the entry count
// is bounded by the working set of records and entries are a uuid string plus
// a uint.
func NewResolver(
	keyring *keyringDomain.Keyring,
	wrapper cryptoService.KeyWrapper,
	codec cryptoService.PayloadCodec,
	cacheTTL time.Duration,
	audit auditUseCase.Recorder,
	businessMetrics metrics.BusinessMetrics,
	logger *slog.Logger,
) *Resolver {
	return &Resolver{
		keyring: keyring,
		wrapper: wrapper,
		codec:   codec,
		cache:   gocache.New(cacheTTL, 0),
		audit:   audit,
		metrics: businessMetrics,
		logger:  logger,
	}
}

// ResolveEnvelope decrypts a client envelope.
//
// The envelope's key version is authoritative. A version the registry does
// not hold fails with ErrUnknownKeyVersion, never falls back: a client that
// encrypted against v3 must not silently succeed against v2. Legacy envelopes
// without a version tag resolve as the current version at receipt.
func (r *Resolver) ResolveEnvelope(
	ctx context.Context, env *cryptoDomain.Envelope,
) (map[string]any, uint, error) {
	version := env.KeyVersion
	if env.IsLegacy() {
		version = r.keyring.CurrentVersion()
	}

	kp, ok := r.keyring.Get(version)
	if !ok || kp.PrivateKey == nil {
		r.metrics.RecordOperation(ctx, "resolver", "envelope_resolve", "error")
		return nil, 0, ErrUnknownKeyVersion
	}

	key, err := r.wrapper.Unwrap(env.WrappedKey, kp.PrivateKey)
	if err != nil {
		r.metrics.RecordOperation(ctx, "resolver", "envelope_resolve", "error")
		return nil, 0, err
	}
	defer cryptoDomain.Zero(key)

	payload, err := r.codec.Decrypt(key, env.Nonce, env.Ciphertext)
	if err != nil {
		r.metrics.RecordOperation(ctx, "resolver", "envelope_resolve", "error")
		return nil, 0, err
	}

	r.metrics.RecordOperation(ctx, "resolver", "envelope_resolve", "success")
	return payload, version, nil
}

// ResolveRecord decrypts a stored record, returning the plaintext and the
// version that succeeded.
//
// Probe order: cached version, the record's tagged version, the current
// version, then the remaining active versions descending. A resolution that
// disagrees with the record's tag is recorded to the audit trail: a burst of
// those means a migration commit was lost.
func (r *Resolver) ResolveRecord(
	ctx context.Context, record *profileDomain.Profile,
) ([]byte, uint, error) {
	cacheKey := record.ID.String()

	if cached, found := r.cache.Get(cacheKey); found {
		r.metrics.RecordCacheAccess(ctx, true)
		version := cached.(uint)
		if plaintext, err := r.tryVersion(record, version); err == nil {
			r.metrics.RecordOperation(ctx, "resolver", "record_resolve", "success")
			return plaintext, version, nil
		}
		// Stale hint, fall through to the full probe order.
		r.cache.Delete(cacheKey)
	} else {
		r.metrics.RecordCacheAccess(ctx, false)
	}

	for _, version := range r.probeOrder(record.KeyVersion) {
		plaintext, err := r.tryVersion(record, version)
		if err != nil {
			continue
		}

		r.cache.SetDefault(cacheKey, version)
		if version != record.KeyVersion {
			r.reportStaleResolution(ctx, record, version)
		}

		r.metrics.RecordOperation(ctx, "resolver", "record_resolve", "success")
		return plaintext, version, nil
	}

	r.metrics.RecordOperation(ctx, "resolver", "record_resolve", "error")
	r.logger.Error("record decryption exhausted",
		slog.String("record_id", record.ID.String()),
		slog.Uint64("tagged_version", uint64(record.KeyVersion)),
	)
	return nil, 0, ErrDecryptionExhausted
}

// Flush drops all cached resolutions. Called when a key version is destroyed
// or the ring is reloaded.
func (r *Resolver) Flush() {
	r.cache.Flush()
}

// probeOrder returns the deduplicated version probe sequence for a record.
func (r *Resolver) probeOrder(taggedVersion uint) []uint {
	order := make([]uint, 0, 4)
	seen := make(map[uint]bool)

	push := func(v uint) {
		if v != 0 && !seen[v] {
			seen[v] = true
			order = append(order, v)
		}
	}

	push(taggedVersion)
	push(r.keyring.CurrentVersion())
	for _, v := range r.keyring.ActiveVersionsDesc() {
		push(v)
	}
	return order
}

// tryVersion attempts to decrypt a record under one key version.
func (r *Resolver) tryVersion(record *profileDomain.Profile, version uint) ([]byte, error) {
	kp, ok := r.keyring.Get(version)
	if !ok || kp.PrivateKey == nil {
		return nil, ErrUnknownKeyVersion
	}

	key, err := r.wrapper.Unwrap(record.WrappedKey, kp.PrivateKey)
	if err != nil {
		return nil, err
	}
	defer cryptoDomain.Zero(key)

	return r.codec.DecryptBytes(key, record.Nonce, record.Ciphertext)
}

// reportStaleResolution records a decryption that needed a version other than
// the one the record is tagged with.
func (r *Resolver) reportStaleResolution(
	ctx context.Context, record *profileDomain.Profile, resolvedVersion uint,
) {
	r.logger.Warn("record resolved with untagged key version",
		slog.String("record_id", record.ID.String()),
		slog.Uint64("tagged_version", uint64(record.KeyVersion)),
		slog.Uint64("resolved_version", uint64(resolvedVersion)),
	)

	if r.audit == nil {
		return
	}
	err := r.audit.Record(ctx, auditDomain.EventStaleDecryption, map[string]any{
		"record_id":        record.ID.String(),
		"tagged_version":   record.KeyVersion,
		"resolved_version": resolvedVersion,
	})
	if err != nil {
		r.logger.Error("failed to record audit event", slog.Any("error", err))
	}
}
