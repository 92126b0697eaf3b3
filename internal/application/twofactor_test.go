package application

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/viralforge/mesh/services/core-platform/M04-account-security-service/internal/domain"
)

type twoFactorFixture struct {
	service   *TwoFactorService
	directory *memoryDirectory
	events    *memoryEventRepo
	now       time.Time
}

func newTwoFactorFixture() *twoFactorFixture {
	directory := newMemoryDirectory()
	events := &memoryEventRepo{}
	// Pinned to a step boundary so skew math in the assertions is exact.
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	service := NewTwoFactorService(directory, newTestSink(events, now), "viralforge", testLogger())
	f := &twoFactorFixture{service: service, directory: directory, events: events, now: now}
	service.nowFn = func() time.Time { return f.now }
	return f
}

func (f *twoFactorFixture) codeAt(secret string, at time.Time) string {
	code, err := totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period:    totpPeriod,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		panic(err)
	}
	return code
}

func TestSetupVerifyRoundTrip(t *testing.T) {
	t.Parallel()

	f := newTwoFactorFixture()
	ctx := context.Background()
	accountID := f.directory.addAccount("alice@example.com")

	setup, err := f.service.Setup(ctx, accountID)
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	if setup.Secret == "" || !strings.Contains(setup.ProvisioningURI, "otpauth://totp/") {
		t.Fatalf("bad setup payload: %+v", setup)
	}
	if len(setup.BackupCodes) != backupCodeCount {
		t.Fatalf("expected %d backup codes, got %d", backupCodeCount, len(setup.BackupCodes))
	}

	credential, err := f.directory.GetTwoFactorCredential(ctx, accountID)
	if err != nil || credential.Enabled {
		t.Fatalf("credential must exist but stay disabled until first verify: %+v err=%v", credential, err)
	}

	if err := f.service.Verify(ctx, accountID, f.codeAt(setup.Secret, f.now)); err != nil {
		t.Fatalf("verify with current code failed: %v", err)
	}
	credential, _ = f.directory.GetTwoFactorCredential(ctx, accountID)
	if !credential.Enabled {
		t.Fatalf("first successful verify must enable the credential")
	}
	if _, ok := f.events.lastOfKind(domain.EventTwoFactorVerified); !ok {
		t.Fatalf("expected verified event")
	}
}

func TestVerifyAcceptsAdjacentStepsRejectsDistant(t *testing.T) {
	t.Parallel()

	f := newTwoFactorFixture()
	ctx := context.Background()
	accountID := f.directory.addAccount("bob@example.com")
	setup, err := f.service.Setup(ctx, accountID)
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	// Two steps of drift in either direction still pass.
	if err := f.service.Verify(ctx, accountID, f.codeAt(setup.Secret, f.now.Add(-2*totpPeriod*time.Second))); err != nil {
		t.Fatalf("code two steps behind should pass: %v", err)
	}
	if err := f.service.Verify(ctx, accountID, f.codeAt(setup.Secret, f.now.Add(2*totpPeriod*time.Second))); err != nil {
		t.Fatalf("code two steps ahead should pass: %v", err)
	}

	// Three steps away is outside the tolerance.
	err = f.service.Verify(ctx, accountID, f.codeAt(setup.Secret, f.now.Add(-3*totpPeriod*time.Second)))
	if !errors.Is(err, domain.ErrTwoFactorCodeInvalid) {
		t.Fatalf("code three steps behind should fail, got %v", err)
	}
	if _, ok := f.events.lastOfKind(domain.EventTwoFactorFailed); !ok {
		t.Fatalf("expected failure event")
	}
}

func TestBackupCodeIsSingleUse(t *testing.T) {
	t.Parallel()

	f := newTwoFactorFixture()
	ctx := context.Background()
	accountID := f.directory.addAccount("carol@example.com")
	setup, err := f.service.Setup(ctx, accountID)
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	code := setup.BackupCodes[0]
	if err := f.service.Verify(ctx, accountID, code); err != nil {
		t.Fatalf("backup code should verify: %v", err)
	}
	err = f.service.Verify(ctx, accountID, code)
	if !errors.Is(err, domain.ErrTwoFactorCodeInvalid) {
		t.Fatalf("spent backup code must not verify again, got %v", err)
	}

	// The remaining nine are unaffected.
	if err := f.service.Verify(ctx, accountID, setup.BackupCodes[1]); err != nil {
		t.Fatalf("second backup code should verify: %v", err)
	}
}

func TestDisableRequiresFreshVerification(t *testing.T) {
	t.Parallel()

	f := newTwoFactorFixture()
	ctx := context.Background()
	accountID := f.directory.addAccount("dave@example.com")
	setup, err := f.service.Setup(ctx, accountID)
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	if err := f.service.Verify(ctx, accountID, f.codeAt(setup.Secret, f.now)); err != nil {
		t.Fatalf("verify: %v", err)
	}

	err = f.service.Disable(ctx, accountID, "000000")
	if !errors.Is(err, domain.ErrTwoFactorCodeInvalid) {
		t.Fatalf("disable with a bad code must fail, got %v", err)
	}
	if _, ok := f.events.lastOfKind(domain.EventTwoFactorDisableFailed); !ok {
		t.Fatalf("expected disable-failed event")
	}
	credential, _ := f.directory.GetTwoFactorCredential(ctx, accountID)
	if credential.Secret == "" {
		t.Fatalf("failed disable must not touch the credential")
	}

	if err := f.service.Disable(ctx, accountID, f.codeAt(setup.Secret, f.now)); err != nil {
		t.Fatalf("disable with a valid code: %v", err)
	}
	credential, _ = f.directory.GetTwoFactorCredential(ctx, accountID)
	if credential.Secret != "" || credential.Enabled {
		t.Fatalf("disable must clear the credential: %+v", credential)
	}
	// The backup set is gone too.
	err = f.service.Verify(ctx, accountID, setup.BackupCodes[2])
	if !errors.Is(err, domain.ErrTwoFactorNotConfigured) {
		t.Fatalf("expected not-configured after disable, got %v", err)
	}
}

func TestVerifyWithoutSetup(t *testing.T) {
	t.Parallel()

	f := newTwoFactorFixture()
	accountID := f.directory.addAccount("eve@example.com")

	err := f.service.Verify(context.Background(), accountID, "123456")
	if !errors.Is(err, domain.ErrTwoFactorNotConfigured) {
		t.Fatalf("expected not-configured, got %v", err)
	}
	err = f.service.Verify(context.Background(), accountID, "")
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("empty code should be invalid input, got %v", err)
	}
}

func TestReSetupReplacesBackupCodes(t *testing.T) {
	t.Parallel()

	f := newTwoFactorFixture()
	ctx := context.Background()
	accountID := f.directory.addAccount("frank@example.com")

	first, err := f.service.Setup(ctx, accountID)
	if err != nil {
		t.Fatalf("first setup: %v", err)
	}
	second, err := f.service.Setup(ctx, accountID)
	if err != nil {
		t.Fatalf("second setup: %v", err)
	}

	// Codes from the first enrollment are dead.
	err = f.service.Verify(ctx, accountID, first.BackupCodes[0])
	if !errors.Is(err, domain.ErrTwoFactorCodeInvalid) {
		t.Fatalf("stale backup code must fail, got %v", err)
	}
	if err := f.service.Verify(ctx, accountID, second.BackupCodes[0]); err != nil {
		t.Fatalf("fresh backup code should verify: %v", err)
	}
}
