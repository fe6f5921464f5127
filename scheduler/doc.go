/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package scheduler provides a client-side admission gate that executes asynchronous operations
// at a fixed pace: at most one operation is started per configured interval.
//
// Waiting operations are ordered by priority (higher first) and then by submission order.
// A failed operation is put back into the queue and executed again on one of the next ticks
// until it succeeds or its attempts are exhausted. There is no backoff between attempts,
// the fixed pace of the scheduler is the only delay.
// Errors wrapped with retry.Permanent are never retried.
//
// Every submitted operation gets a Future that is completed exactly once.
//
//	s, err := scheduler.New(&scheduler.Config{Interval: config.TimeDuration(time.Second), MaxAttempts: 3})
//	if err != nil {
//		return err
//	}
//	defer s.Stop(true)
//
//	resp, err := scheduler.Do(ctx, s, func(ctx context.Context) (*Quota, error) {
//		return apiClient.GetQuota(ctx)
//	}, scheduler.SubmitOpts{Priority: 10})
package scheduler
