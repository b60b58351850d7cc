package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/seantiz/testengine-ci/internal/poll"
	"github.com/seantiz/testengine-ci/internal/testengine"
)

// Activation retry defaults.
const (
	DefaultActivationAttempts = 3
	DefaultActivationDelay    = 5 * time.Second
)

// LicenseManager reads and activates the engine license.
type LicenseManager interface {
	LicenseStatus(ctx context.Context) (*testengine.LicenseStatus, error)
	ActivateLicense(ctx context.Context, req testengine.LicenseRequest) (*testengine.LicenseStatus, error)
}

// ActivationResult describes how a license activation concluded.
type ActivationResult struct {
	// AlreadyValid is set when the status check found a valid license and
	// no activation was attempted.
	AlreadyValid bool
	// AlreadyActivated is set when the server rejected the activation
	// because a license was already in place.
	AlreadyActivated bool
	Status           *testengine.LicenseStatus
}

// IsAlreadyActivated reports whether err is the server refusing a duplicate
// activation.
func IsAlreadyActivated(err error) bool {
	var se *testengine.StatusError
	if !errors.As(err, &se) {
		return false
	}
	if se.Code != http.StatusBadRequest && se.Code != http.StatusConflict {
		return false
	}
	msg := strings.ToLower(se.Message + " " + string(se.Body))
	return strings.Contains(msg, "already activ") || strings.Contains(msg, "already licensed")
}

// ActivateLicense ensures the engine has a license. A valid license found by
// the status check ends the workflow; failures of that check are logged and
// activation proceeds. Activation is retried per cfg, and a duplicate
// activation rejection counts as success.
//
// Unset fields of cfg default to three attempts five seconds apart, retrying
// only transient failures.
//
// A non-retryable failure, such as a rejected key, is returned on the first
// attempt wrapping the *testengine.StatusError. Only a run of transient
// failures that uses up every attempt matches poll.ErrExhaustedRetries.
func ActivateLicense(ctx context.Context, c LicenseManager, req testengine.LicenseRequest, cfg poll.RetryConfig, logger *slog.Logger) (*ActivationResult, error) {
	log := loggerOrDiscard(logger)

	if req.AccessKey == "" && req.License == "" {
		return nil, fmt.Errorf("license key is required")
	}

	log.Info("checking current license status")
	st, err := c.LicenseStatus(ctx)
	switch {
	case err != nil:
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn("license status check failed, proceeding with activation",
			"http_status", testengine.StatusCode(err), "error", err)
	case st.IsValid:
		log.Info("license is already active and valid", "issuer", st.Issuer, "expires_at", st.ExpiresAt)
		return &ActivationResult{AlreadyValid: true, Status: st}, nil
	}

	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = DefaultActivationAttempts
	}
	if cfg.Delay == 0 {
		cfg.Delay = DefaultActivationDelay
	}
	if cfg.TreatAsSuccess == nil {
		cfg.TreatAsSuccess = IsAlreadyActivated
	}
	if cfg.IsRetryable == nil {
		cfg.IsRetryable = poll.IsTransient
	}

	var duplicate bool
	treat := cfg.TreatAsSuccess
	cfg.TreatAsSuccess = func(err error) bool {
		if treat(err) {
			duplicate = true
			return true
		}
		return false
	}
	onRetry := cfg.OnRetry
	cfg.OnRetry = func(attempt int, err error) {
		log.Warn("license activation failed, retrying", "attempt", attempt, "error", err)
		if onRetry != nil {
			onRetry(attempt, err)
		}
	}

	log.Info("activating license", "max_attempts", cfg.MaxAttempts)
	activated, err := poll.Retry(ctx, func(ctx context.Context) (*testengine.LicenseStatus, error) {
		return c.ActivateLicense(ctx, req)
	}, cfg)
	if err != nil {
		log.Error("failed to activate license", "http_status", testengine.StatusCode(err), "error", err)
		return nil, fmt.Errorf("activate license: %w", err)
	}

	if duplicate {
		log.Info("license was already activated")
		return &ActivationResult{AlreadyActivated: true}, nil
	}
	log.Info("license activated successfully")
	return &ActivationResult{Status: activated}, nil
}
