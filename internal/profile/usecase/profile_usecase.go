package usecase

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	cryptoDomain "github.com/allisson/pii-vault/internal/crypto/domain"
	cryptoService "github.com/allisson/pii-vault/internal/crypto/service"
	keyringDomain "github.com/allisson/pii-vault/internal/keyring/domain"
	profileDomain "github.com/allisson/pii-vault/internal/profile/domain"
)

// nationalIDKeys are the accepted payload field names, in precedence order.
// The browser client sends camelCase; older API consumers send snake_case.
var nationalIDKeys = []string{"nationalId", "national_id"}

// profileUseCase implements the ProfileUseCase interface.
type profileUseCase struct {
	keyring     *keyringDomain.Keyring
	profileRepo ProfileRepository
	resolver    RecordResolver
	codec       cryptoService.PayloadCodec
	wrapper     cryptoService.KeyWrapper
	logger      *slog.Logger
}

// NewProfileUseCase creates a new profile use case.
func NewProfileUseCase(
	keyring *keyringDomain.Keyring,
	profileRepo ProfileRepository,
	resolver RecordResolver,
	codec cryptoService.PayloadCodec,
	wrapper cryptoService.KeyWrapper,
	logger *slog.Logger,
) ProfileUseCase {
	return &profileUseCase{
		keyring:     keyring,
		profileRepo: profileRepo,
		resolver:    resolver,
		codec:       codec,
		wrapper:     wrapper,
		logger:      logger,
	}
}

// PublicKeyDistribution returns the current public key in the client
// distribution format.
func (p *profileUseCase) PublicKeyDistribution(ctx context.Context) (string, error) {
	kp, ok := p.keyring.Current()
	if !ok {
		return "", keyringDomain.ErrNoCurrentKey
	}
	return kp.DistributionString(), nil
}

// SaveFromEnvelope decrypts a submitted envelope and stores the profile.
//
// The envelope plaintext is discarded as soon as the record is re-encrypted:
// at rest the national ID lives under the current key version with a fresh
// per-record key, regardless of which version the client encrypted against.
func (p *profileUseCase) SaveFromEnvelope(ctx context.Context, envelope []byte) (uuid.UUID, error) {
	env, err := cryptoDomain.ParseEnvelope(envelope)
	if err != nil {
		return uuid.Nil, err
	}

	payload, envelopeVersion, err := p.resolver.ResolveEnvelope(ctx, &env)
	if err != nil {
		return uuid.Nil, err
	}

	nationalID, err := extractNationalID(payload)
	if err != nil {
		return uuid.Nil, err
	}

	existing, err := p.findByNationalID(ctx, nationalID)
	if err != nil {
		return uuid.Nil, err
	}
	if existing != nil {
		return uuid.Nil, profileDomain.ErrDuplicateNationalID
	}

	profile, err := p.encryptAtRest(nationalID)
	if err != nil {
		return uuid.Nil, err
	}

	if err := p.profileRepo.Create(ctx, profile); err != nil {
		return uuid.Nil, err
	}

	p.logger.Info("profile created",
		slog.String("profile_id", profile.ID.String()),
		slog.Uint64("key_version", uint64(profile.KeyVersion)),
		slog.Uint64("envelope_version", uint64(envelopeVersion)),
	)

	return profile.ID, nil
}

// ExistsByNationalID reports whether a profile with the national ID exists.
func (p *profileUseCase) ExistsByNationalID(ctx context.Context, nationalID string) (bool, error) {
	if strings.TrimSpace(nationalID) == "" {
		return false, profileDomain.ErrInvalidNationalID
	}

	profile, err := p.findByNationalID(ctx, nationalID)
	if err != nil {
		return false, err
	}
	return profile != nil, nil
}

// FindByNationalID retrieves the profile holding the national ID.
func (p *profileUseCase) FindByNationalID(
	ctx context.Context, nationalID string,
) (*profileDomain.Profile, error) {
	if strings.TrimSpace(nationalID) == "" {
		return nil, profileDomain.ErrInvalidNationalID
	}

	profile, err := p.findByNationalID(ctx, nationalID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, profileDomain.ErrProfileNotFound
	}
	return profile, nil
}

// findByNationalID runs the blind-index search across every active key
// version, newest first.
//
// The index key is version-bound, so a record written under v2 is only
// findable through v2's token. Candidates sharing a token are
// decrypt-compared; the index alone never answers an existence question.
func (p *profileUseCase) findByNationalID(
	ctx context.Context, nationalID string,
) (*profileDomain.Profile, error) {
	target := []byte(nationalID)

	for _, version := range p.keyring.ActiveVersionsDesc() {
		kp, ok := p.keyring.Get(version)
		if !ok || kp.IndexKey == nil {
			continue
		}

		blindIndex := profileDomain.BlindIndex(kp.IndexKey, nationalID)
		candidates, err := p.profileRepo.FindByBlindIndex(ctx, blindIndex)
		if err != nil {
			return nil, err
		}

		for _, candidate := range candidates {
			plaintext, _, err := p.resolver.ResolveRecord(ctx, candidate)
			if err != nil {
				return nil, err
			}

			match := bytes.Equal(plaintext, target)
			cryptoDomain.Zero(plaintext)
			if match {
				return candidate, nil
			}
		}
	}

	return nil, nil
}

// encryptAtRest builds a new encrypted record under the current key version.
func (p *profileUseCase) encryptAtRest(nationalID string) (*profileDomain.Profile, error) {
	kp, ok := p.keyring.Current()
	if !ok {
		return nil, keyringDomain.ErrNoCurrentKey
	}

	publicKey, err := kp.PublicKey()
	if err != nil {
		return nil, err
	}

	key, nonce, ciphertext, err := p.codec.EncryptBytes([]byte(nationalID))
	if err != nil {
		return nil, err
	}
	defer cryptoDomain.Zero(key)

	wrappedKey, err := p.wrapper.Wrap(key, publicKey)
	if err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &profileDomain.Profile{
		ID:         id,
		KeyVersion: kp.Version,
		WrappedKey: wrappedKey,
		Nonce:      nonce,
		Ciphertext: ciphertext,
		BlindIndex: profileDomain.BlindIndex(kp.IndexKey, nationalID),
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// extractNationalID pulls the national ID out of a decrypted payload.
func extractNationalID(payload map[string]any) (string, error) {
	for _, key := range nationalIDKeys {
		value, ok := payload[key]
		if !ok {
			continue
		}
		s, ok := value.(string)
		if !ok || strings.TrimSpace(s) == "" {
			return "", profileDomain.ErrInvalidNationalID
		}
		return s, nil
	}
	return "", profileDomain.ErrInvalidNationalID
}
