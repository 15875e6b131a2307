// Package identifier issues human-readable external account identifiers of the
// form PREFIXNNN. The next value is always derived from the store; nothing is
// cached between calls.
package identifier

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/kmun/registration-service/pkg/util/errorutil"
)

// DefaultMaxAttempts bounds how often Allocate re-derives a proposal.
const DefaultMaxAttempts = 5

// Source exposes the reads the allocator needs from the account store.
type Source interface {
	// LatestExternalID returns the identifier with the given prefix and the
	// numerically greatest suffix, or "" when none exists.
	LatestExternalID(ctx context.Context, prefix string) (string, error)
	ExternalIDExists(ctx context.Context, externalID string) (bool, error)
}

// Config controls the identifier format.
type Config struct {
	Prefix      string
	Width       int
	MaxAttempts int
}

// Allocator proposes the next external identifier.
type Allocator struct {
	cfg    Config
	source Source
}

// NewAllocator builds an allocator reading through source.
func NewAllocator(cfg Config, source Source) *Allocator {
	if cfg.Width <= 0 {
		cfg.Width = 3
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	return &Allocator{cfg: cfg, source: source}
}

// Bind returns an allocator with the same format reading through source,
// typically a transaction-scoped repository.
func (a *Allocator) Bind(source Source) *Allocator {
	return &Allocator{cfg: a.cfg, source: source}
}

// Prefix returns the configured identifier prefix.
func (a *Allocator) Prefix() string {
	return a.cfg.Prefix
}

// ErrCollision is returned when every proposal was already taken.
var ErrCollision = errors.New("identifier collision")

// Allocate proposes a fresh identifier. It does not persist anything; callers
// must write it under a uniqueness constraint and retry on rejection.
func (a *Allocator) Allocate(ctx context.Context) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= a.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", errorutil.NewAllocationError(err)
		}

		candidate, err := a.propose(ctx)
		if err != nil {
			lastErr = err
			continue
		}

		exists, err := a.source.ExternalIDExists(ctx, candidate)
		if err != nil {
			lastErr = fmt.Errorf("check %s: %w", candidate, err)
			continue
		}
		if exists {
			lastErr = fmt.Errorf("%w: %s", ErrCollision, candidate)
			continue
		}
		return candidate, nil
	}
	return "", errorutil.NewAllocationError(fmt.Errorf("after %d attempts: %w", a.cfg.MaxAttempts, lastErr))
}

func (a *Allocator) propose(ctx context.Context) (string, error) {
	latest, err := a.source.LatestExternalID(ctx, a.cfg.Prefix)
	if err != nil {
		return "", fmt.Errorf("latest identifier: %w", err)
	}

	next := uint64(1)
	if latest != "" {
		n, ok := a.parse(latest)
		if ok {
			next = n + 1
		}
	}
	return a.Format(next), nil
}

// Format renders n with the configured prefix and zero padding. Values wider
// than the padding are rendered in full.
func (a *Allocator) Format(n uint64) string {
	digits := strconv.FormatUint(n, 10)
	if pad := a.cfg.Width - len(digits); pad > 0 {
		digits = strings.Repeat("0", pad) + digits
	}
	return a.cfg.Prefix + digits
}

// IsValidFormat reports whether candidate is a canonical identifier: the
// prefix followed by at least Width digits with no extra leading zeros.
func (a *Allocator) IsValidFormat(candidate string) bool {
	n, ok := a.parse(candidate)
	if !ok || n == 0 {
		return false
	}
	return a.Format(n) == candidate
}

func (a *Allocator) parse(candidate string) (uint64, bool) {
	suffix, ok := strings.CutPrefix(candidate, a.cfg.Prefix)
	if !ok || suffix == "" {
		return 0, false
	}
	for _, r := range suffix {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseUint(suffix, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
