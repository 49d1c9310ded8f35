/**
 * @description
 * API key lifecycle: generation, creation rules, listing, and revocation.
 * Keys are minted as "pv_live_" + random token; only the SHA-256 digest of the
 * full key is persisted, so the plaintext in the creation response is the only
 * copy that will ever exist.
 */

package app

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/payvault/ledger-service/internal/domain"
	"github.com/payvault/ledger-service/internal/origin"
)

const (
	// APIKeyPrefix leads every issued key and makes leaked keys greppable.
	APIKeyPrefix = "pv_live_"

	apiKeyRandomBytes  = 24
	apiKeyDisplayChars = 12

	defaultRateLimitPerMinute = 60
	defaultRateLimitPerDay    = 10000
)

// HashAPIKey derives the storable digest of a presented key. The digest is
// deterministic so lookups match by hash without ever storing plaintext.
func HashAPIKey(rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(sum[:])
}

func generateAPIKey() (string, error) {
	buf := make([]byte, apiKeyRandomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return APIKeyPrefix + hex.EncodeToString(buf), nil
}

// wellFormedAPIKey is the cheap shape check run before any hashing or lookup.
func wellFormedAPIKey(rawKey string) bool {
	return strings.HasPrefix(rawKey, APIKeyPrefix) && len(rawKey) == len(APIKeyPrefix)+2*apiKeyRandomBytes
}

// CreateAPIKeyParams carries key creation inputs after shape validation.
type CreateAPIKeyParams struct {
	Name                 string
	Permissions          []string
	RateLimitPerMinute   int
	RateLimitPerDay      int
	MaxTransactionAmount decimal.Decimal
	DailyVolumeLimit     decimal.Decimal
	AllowedOrigins       []string
	AllowedIPs           []string
	ExpiresAt            *time.Time
}

// CreatedAPIKey bundles the stored key with its one-time plaintext reveal.
type CreatedAPIKey struct {
	Key          *domain.APIKey `json:"key"`
	PlaintextKey string         `json:"plaintext_key"`
}

// CreateAPIKey issues a new merchant key for a verified business. At most
// five keys may be live at once; permissions must come from the closed set;
// origin patterns are validated at configuration time so an unmatchable or
// over-broad pattern can never be stored.
func (s *Service) CreateAPIKey(ctx context.Context, businessID uuid.UUID, params CreateAPIKeyParams) (*CreatedAPIKey, error) {
	account, err := s.repo.FindAccountByID(ctx, businessID)
	if err != nil {
		return nil, err
	}
	if !account.IsBusiness() {
		return nil, domain.ErrForbidden
	}
	if !account.BusinessVerified {
		return nil, domain.ErrBusinessNotVerified
	}

	if strings.TrimSpace(params.Name) == "" || len(params.Permissions) == 0 {
		return nil, domain.ErrValidation
	}
	perms := make([]domain.Permission, 0, len(params.Permissions))
	for _, p := range params.Permissions {
		perm := domain.Permission(p)
		if !domain.ValidPermission(perm) {
			return nil, domain.ErrValidation
		}
		perms = append(perms, perm)
	}
	for _, pattern := range params.AllowedOrigins {
		if !origin.ValidPattern(pattern) {
			return nil, domain.ErrValidation
		}
	}
	if params.MaxTransactionAmount.IsNegative() || params.DailyVolumeLimit.IsNegative() {
		return nil, domain.ErrValidation
	}

	active, err := s.repo.CountActiveAPIKeys(ctx, businessID)
	if err != nil {
		return nil, err
	}
	if active >= domain.MaxActiveAPIKeys {
		return nil, domain.ErrAPIKeyLimitReached
	}

	rawKey, err := generateAPIKey()
	if err != nil {
		return nil, err
	}

	rateMinute := params.RateLimitPerMinute
	if rateMinute <= 0 {
		rateMinute = defaultRateLimitPerMinute
	}
	rateDay := params.RateLimitPerDay
	if rateDay <= 0 {
		rateDay = defaultRateLimitPerDay
	}

	now := s.now()
	key := &domain.APIKey{
		ID:                   uuid.New(),
		BusinessID:           businessID,
		Name:                 strings.TrimSpace(params.Name),
		KeyHash:              HashAPIKey(rawKey),
		KeyPrefix:            rawKey[:apiKeyDisplayChars] + "...",
		Permissions:          perms,
		RateLimitPerMinute:   rateMinute,
		RateLimitPerDay:      rateDay,
		MaxTransactionAmount: params.MaxTransactionAmount,
		DailyVolumeLimit:     params.DailyVolumeLimit,
		DailyVolume:          decimal.Zero,
		VolumeResetDate:      now,
		RequestResetDate:     now,
		AllowedOrigins:       params.AllowedOrigins,
		AllowedIPs:           params.AllowedIPs,
		ExpiresAt:            params.ExpiresAt,
		Active:               true,
		CreatedAt:            now,
	}
	if err := s.repo.CreateAPIKey(ctx, key); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"business_id": businessID,
		"key_id":      key.ID,
		"key_prefix":  key.KeyPrefix,
	}).Info("api key created")

	return &CreatedAPIKey{Key: key, PlaintextKey: rawKey}, nil
}

// ListAPIKeys returns a business's keys, hashes excluded by the model.
func (s *Service) ListAPIKeys(ctx context.Context, businessID uuid.UUID) ([]domain.APIKey, error) {
	return s.repo.ListAPIKeysByBusiness(ctx, businessID)
}

// RevokeAPIKey terminally deactivates one of the caller's keys.
func (s *Service) RevokeAPIKey(ctx context.Context, businessID, keyID uuid.UUID, reason string) error {
	if strings.TrimSpace(reason) == "" {
		reason = "revoked by owner"
	}
	if err := s.repo.RevokeAPIKey(ctx, keyID, businessID, reason, s.now()); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{
		"business_id": businessID,
		"key_id":      keyID,
	}).Info("api key revoked")
	return nil
}
