/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package retry provides classification of operation failures into retryable and permanent ones.
// The scheduler retries failed operations on its next dispatch turn (without any delay),
// so this package deals only with the decision whether another attempt makes sense.
package retry

import (
	"errors"

	"github.com/cenkalti/backoff/v4"
)

// IsRetryable defines a func that can tell if error is retryable as opposed to persistent.
type IsRetryable func(error) bool

// PermanentError signals that the operation should not be retried.
// It is the same type that github.com/cenkalti/backoff uses, so errors produced
// for backoff-based code are recognized as permanent here too.
type PermanentError = backoff.PermanentError

// Permanent wraps the given err in a *PermanentError.
// Returns nil if err is nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// IsPermanent reports whether err (or any error in its chain) was marked as permanent.
func IsPermanent(err error) bool {
	var permanent *PermanentError
	return errors.As(err, &permanent)
}

// Unwrap returns the error wrapped by Permanent, or err itself if it is not permanent.
func Unwrap(err error) error {
	var permanent *PermanentError
	if errors.As(err, &permanent) && permanent.Err != nil {
		return permanent.Err
	}
	return err
}

// DefaultIsRetryable treats every error as retryable unless it is marked as permanent.
func DefaultIsRetryable(err error) bool {
	return err != nil && !IsPermanent(err)
}

// All combines several predicates, the error is retryable only if all of them agree.
// Nil predicates are skipped.
func All(preds ...IsRetryable) IsRetryable {
	return func(err error) bool {
		for _, pred := range preds {
			if pred != nil && !pred(err) {
				return false
			}
		}
		return true
	}
}
