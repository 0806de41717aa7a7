package extractor

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/guiyumin/vresolve/internal/core/failure"
)

// Tier is one step of a fallback chain
type Tier[T any] struct {
	Name     string
	Attempts int           // total attempts, at least 1
	Backoff  time.Duration // fixed delay between attempts
	Timeout  time.Duration // per attempt; 0 means only the chain deadline applies
	Run      func(ctx context.Context) (T, error)
}

// TierState tracks a chain run
type TierState int

const (
	NotStarted TierState = iota
	Trying
	Succeeded
	Exhausted
	AllExhausted
)

func (s TierState) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Trying:
		return "trying"
	case Succeeded:
		return "succeeded"
	case Exhausted:
		return "exhausted"
	case AllExhausted:
		return "all_exhausted"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// TierError records why one tier was exhausted
type TierError struct {
	Tier string
	Err  error
}

// chainRun walks tiers in order. Trying(i) either succeeds, ending the run,
// or exhausts its attempts and moves on to tier i+1. A chain with no tiers
// left is AllExhausted.
type chainRun[T any] struct {
	platform string
	tiers    []Tier[T]
	state    TierState
	current  int
	errs     []TierError
	log      *slog.Logger
}

// runTiers executes tiers in order and returns the first success. When every
// tier fails, a single-tier chain returns that tier's error unchanged and a
// longer chain returns AllBackendsExhausted carrying each tier's error.
func runTiers[T any](ctx context.Context, platform string, tiers []Tier[T]) (T, error) {
	run := &chainRun[T]{
		platform: platform,
		tiers:    tiers,
		log:      slog.With("component", "extractor", "platform", platform),
	}
	return run.execute(ctx)
}

func (r *chainRun[T]) execute(ctx context.Context) (T, error) {
	var zero T
	for i, tier := range r.tiers {
		if err := ctx.Err(); err != nil {
			r.state = AllExhausted
			return zero, failure.Wrap(err, "%s: deadline reached before tier %s", r.platform, tier.Name)
		}

		r.state, r.current = Trying, i
		r.log.Debug("tier start", "tier", tier.Name)

		v, err := r.attempt(ctx, tier)
		if err == nil {
			r.state = Succeeded
			r.log.Info("tier succeeded", "tier", tier.Name)
			return v, nil
		}

		r.state = Exhausted
		r.errs = append(r.errs, TierError{Tier: tier.Name, Err: err})
		r.log.Warn("tier exhausted", "tier", tier.Name, "error", err)
	}

	r.state = AllExhausted
	return zero, r.exhaustedError()
}

func (r *chainRun[T]) attempt(ctx context.Context, tier Tier[T]) (T, error) {
	var result T
	attempt := 0

	op := func() error {
		attempt++
		v, err := r.once(ctx, tier)
		if err != nil {
			r.log.Debug("tier attempt failed", "tier", tier.Name, "attempt", attempt, "error", err)
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		result = v
		return nil
	}

	retries := max(tier.Attempts, 1) - 1
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(tier.Backoff), uint64(retries)),
		ctx,
	)
	if err := backoff.Retry(op, policy); err != nil {
		return result, err
	}
	return result, nil
}

// once runs a single attempt, converting a panic into UnexpectedFailure
func (r *chainRun[T]) once(ctx context.Context, tier Tier[T]) (v T, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("tier panicked", "tier", tier.Name, "panic", p, "stack", string(debug.Stack()))
			err = failure.New(failure.UnexpectedFailure, "%s: %s tier crashed: %v", r.platform, tier.Name, p)
		}
	}()

	if tier.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, tier.Timeout)
		defer cancel()
	}
	return tier.Run(ctx)
}

func (r *chainRun[T]) exhaustedError() error {
	if len(r.errs) == 1 {
		return r.errs[0].Err
	}

	msgs := make([]string, 0, len(r.errs))
	for _, te := range r.errs {
		msgs = append(msgs, te.Tier+": "+te.Err.Error())
	}
	last := r.errs[len(r.errs)-1].Err

	return &failure.Error{
		Kind:    failure.AllBackendsExhausted,
		Message: fmt.Sprintf("%s: all backends failed (%s)", r.platform, strings.Join(msgs, "; ")),
		Raw:     r.errs,
		Err:     last,
	}
}

// sleepCtx waits for d or until ctx is done
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// safeExtract runs fn and converts a panic into a Failure result
func safeExtract(platform string, fn func() Result) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("extractor panicked", "component", "extractor", "platform", platform, "panic", p)
			res = &Failure{
				Reason:  failure.UnexpectedFailure,
				Message: fmt.Sprintf("%s: unexpected error: %v", platform, p),
			}
		}
	}()
	return fn()
}
