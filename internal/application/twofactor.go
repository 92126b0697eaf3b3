package application

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/viralforge/mesh/services/core-platform/M04-account-security-service/internal/domain"
	"github.com/viralforge/mesh/services/core-platform/M04-account-security-service/internal/ports"
)

const (
	backupCodeCount = 10
	totpPeriod      = 30
	// totpSkew tolerates two 30s steps of clock drift in either direction.
	totpSkew = 2
)

// TwoFactorSetup is returned once at enrollment; the raw backup codes are
// never recoverable afterwards, only their digests are stored.
type TwoFactorSetup struct {
	Secret          string
	ProvisioningURI string
	BackupCodes     []string
}

// TwoFactorService manages time-based one-time code enrollment and
// verification. The credential stays with the account directory; this service
// owns only the protocol: enabled flips to true on the first successful
// verification after setup, and disabling requires a fresh verification.
//
// Verification fails closed on store errors.
type TwoFactorService struct {
	directory ports.AccountDirectory
	sink      *SecurityEventSink
	issuer    string
	logger    *slog.Logger
	nowFn     func() time.Time
}

func NewTwoFactorService(directory ports.AccountDirectory, sink *SecurityEventSink, issuer string, logger *slog.Logger) *TwoFactorService {
	if issuer == "" {
		issuer = "viralforge"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TwoFactorService{
		directory: directory,
		sink:      sink,
		issuer:    issuer,
		logger:    logger,
		nowFn:     func() time.Time { return time.Now().UTC() },
	}
}

// Setup enrolls a fresh secret and ten single-use backup codes. The secret
// stays disabled until the first successful Verify. Re-running setup replaces
// both the secret and the whole backup set.
func (s *TwoFactorService) Setup(ctx context.Context, accountID uuid.UUID) (TwoFactorSetup, error) {
	account, err := s.directory.FindByID(ctx, accountID)
	if err != nil {
		return TwoFactorSetup{}, fmt.Errorf("resolve account: %w", err)
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: account.Identifier,
		Period:      totpPeriod,
		SecretSize:  20,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return TwoFactorSetup{}, fmt.Errorf("generate totp secret: %w", err)
	}

	now := s.nowFn()
	if err := s.directory.SetTwoFactorCredential(ctx, accountID, key.Secret(), false, now); err != nil {
		return TwoFactorSetup{}, fmt.Errorf("persist two-factor credential: %w", err)
	}

	codes := make([]string, 0, backupCodeCount)
	digests := make([]string, 0, backupCodeCount)
	for i := 0; i < backupCodeCount; i++ {
		code := strings.ToUpper(randomBase32(5))
		codes = append(codes, code)
		digests = append(digests, codeDigest(code))
	}
	if err := s.directory.ReplaceBackupCodes(ctx, accountID, digests, now); err != nil {
		return TwoFactorSetup{}, fmt.Errorf("persist backup codes: %w", err)
	}

	return TwoFactorSetup{
		Secret:          key.Secret(),
		ProvisioningURI: key.URL(),
		BackupCodes:     codes,
	}, nil
}

// Verify checks a time-based code (or a backup code) against the stored
// secret. The first success after setup enables the credential.
func (s *TwoFactorService) Verify(ctx context.Context, accountID uuid.UUID, code string) error {
	credential, err := s.checkCode(ctx, accountID, code)
	if errors.Is(err, domain.ErrTwoFactorCodeInvalid) {
		s.recordOutcome(ctx, accountID, domain.EventTwoFactorFailed)
		return err
	}
	if err != nil {
		return err
	}

	if !credential.Enabled {
		if err := s.directory.SetTwoFactorCredential(ctx, accountID, credential.Secret, true, s.nowFn()); err != nil {
			return fmt.Errorf("enable two-factor credential: %w", err)
		}
	}
	s.recordOutcome(ctx, accountID, domain.EventTwoFactorVerified)
	return nil
}

// Disable removes the credential after a fresh successful verification. On a
// failed verification nothing changes.
func (s *TwoFactorService) Disable(ctx context.Context, accountID uuid.UUID, code string) error {
	if _, err := s.checkCode(ctx, accountID, code); err != nil {
		if errors.Is(err, domain.ErrTwoFactorCodeInvalid) {
			s.recordOutcome(ctx, accountID, domain.EventTwoFactorDisableFailed)
		}
		return err
	}

	now := s.nowFn()
	if err := s.directory.SetTwoFactorCredential(ctx, accountID, "", false, now); err != nil {
		return fmt.Errorf("clear two-factor credential: %w", err)
	}
	if err := s.directory.ReplaceBackupCodes(ctx, accountID, nil, now); err != nil {
		return fmt.Errorf("clear backup codes: %w", err)
	}
	s.recordOutcome(ctx, accountID, domain.EventTwoFactorDisabled)
	return nil
}

// checkCode resolves the credential and validates the submitted code against
// the current time step (with skew) or the backup set. Backup consumption is
// a single atomic check-and-invalidate in the directory.
func (s *TwoFactorService) checkCode(ctx context.Context, accountID uuid.UUID, code string) (domain.TwoFactorCredential, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.TwoFactorCredential{}, fmt.Errorf("%w: code is required", domain.ErrInvalidInput)
	}

	credential, err := s.directory.GetTwoFactorCredential(ctx, accountID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.TwoFactorCredential{}, domain.ErrTwoFactorNotConfigured
	}
	if err != nil {
		return domain.TwoFactorCredential{}, fmt.Errorf("load two-factor credential: %w", err)
	}
	if credential.Secret == "" {
		return domain.TwoFactorCredential{}, domain.ErrTwoFactorNotConfigured
	}

	now := s.nowFn()
	valid, err := totp.ValidateCustom(code, credential.Secret, now, totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		// Wrong shape for a time-based code; it may still be a backup code.
		valid = false
	}
	if !valid {
		consumed, err := s.directory.ConsumeBackupCode(ctx, accountID, codeDigest(strings.ToUpper(code)), now)
		if err != nil {
			return domain.TwoFactorCredential{}, fmt.Errorf("consume backup code: %w", err)
		}
		valid = consumed
	}
	if !valid {
		return domain.TwoFactorCredential{}, domain.ErrTwoFactorCodeInvalid
	}
	return credential, nil
}

func (s *TwoFactorService) recordOutcome(ctx context.Context, accountID uuid.UUID, kind domain.EventKind) {
	owner := accountID
	s.sink.Record(ctx, domain.SecurityEvent{
		OwnerID: &owner,
		Kind:    kind,
	})
}

// codeDigest is the stored form of a backup code; equality lookup on the
// digest lets consumption be one conditional update.
func codeDigest(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

func randomBase32(byteLen int) string {
	raw := make([]byte, byteLen)
	_, _ = rand.Read(raw)
	return strings.TrimRight(base32.StdEncoding.EncodeToString(raw), "=")
}
