package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/classigoo/auth-server/internal/metrics"
	"github.com/classigoo/auth-server/internal/model"
	"github.com/classigoo/auth-server/internal/repo"
)

const (
	blockedMessage    = "You have exceeded the maximum number of attempts, Please try again later!"
	blocked24hMessage = "You have exceeded the maximum number of attempts, Please try again after 24 hours"
)

// Lockout enforces the per-IP suspension policy over the shared blacklist
// table. No state is held in memory; every decision reads the store, so all
// service instances observe the same counters.
type Lockout struct {
	blacklist repo.BlacklistRepo
	threshold int
	lockFor   time.Duration
	now       func() time.Time
}

// NewLockout creates the lockout guard.
func NewLockout(blacklist repo.BlacklistRepo, threshold int, lockFor time.Duration) *Lockout {
	return &Lockout{
		blacklist: blacklist,
		threshold: threshold,
		lockFor:   lockFor,
		now:       time.Now,
	}
}

// Check rejects when the IP is under an active lock. An elapsed lock is
// cleared in place (lazy expiry, no background sweeper). Used on issuance
// and resend, where attempts are not counted.
func (l *Lockout) Check(ctx context.Context, ip string) error {
	bl, err := l.blacklist.Find(ctx, ip)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("lockout check: %w", err)
	}

	if !bl.IsBlocked {
		return nil
	}
	if bl.BlockedUntil != nil && l.now().After(*bl.BlockedUntil) {
		if err := l.blacklist.Unblock(ctx, ip); err != nil {
			return fmt.Errorf("lockout unblock: %w", err)
		}
		return nil
	}
	return forbidden(ReasonRateLimited, blockedMessage)
}

// RecordAttempt counts one validation attempt and returns the row after the
// increment. Every attempt counts, success or failure. When the counter
// passes the threshold the 24-hour lock trips and the returned error is the
// caller's final answer. An elapsed lock is cleared before the threshold
// check, forgiving the stale counter with it.
func (l *Lockout) RecordAttempt(ctx context.Context, ip string) (model.Blacklist, error) {
	bl, err := l.blacklist.IncrementAttempts(ctx, ip)
	if err != nil {
		return model.Blacklist{}, fmt.Errorf("lockout record: %w", err)
	}

	if bl.IsBlocked {
		if bl.BlockedUntil != nil && l.now().After(*bl.BlockedUntil) {
			if err := l.blacklist.Unblock(ctx, ip); err != nil {
				return model.Blacklist{}, fmt.Errorf("lockout unblock: %w", err)
			}
			bl.Attempts = 0
			bl.BlockedUntil = nil
			bl.IsBlocked = false
		} else {
			return bl, forbidden(ReasonRateLimited, blockedMessage)
		}
	}

	if bl.Attempts > l.threshold {
		until := l.now().UTC().Add(l.lockFor)
		if err := l.blacklist.Block(ctx, ip, until); err != nil {
			return bl, fmt.Errorf("lockout block: %w", err)
		}
		metrics.LockoutsTrippedTotal.Inc()
		return bl, forbidden(ReasonRateLimited24h, blocked24hMessage)
	}

	return bl, nil
}

// Reset zeroes the attempt counter after a fully successful validation. It
// never clears an active lock early.
func (l *Lockout) Reset(ctx context.Context, ip string) error {
	if err := l.blacklist.ResetAttempts(ctx, ip); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("lockout reset: %w", err)
	}
	return nil
}

// AttemptsLeft converts a post-increment counter into the hint clients see.
func (l *Lockout) AttemptsLeft(attempts int) int {
	left := l.threshold - attempts
	if left < 0 {
		left = 0
	}
	return left
}
