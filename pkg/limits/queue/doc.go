// Package queue schedules AI generation requests under a concurrency cap.
//
// # Lanes
//
// Admitted requests wait in three FIFO lanes chosen by tier:
//
//	high    premium tier and urgent submissions
//	normal  paid tier
//	low     free tier
//
// The dispatcher always serves the highest non-empty lane first.
//
// # Admission
//
// A submission is rejected with ErrQueueFull once MaxQueueSize requests are
// waiting, and with ErrUserQueueLimitExceeded once the user has as many
// queued or processing requests as their tier allows. Both are reported as
// *AdmissionError.
//
// # Lifecycle
//
//	queued -> processing -> completed | failed
//	queued -> expired
//
// A request still queued when its tier timeout elapses is expired and never
// dispatched. A processing request is attempted up to RetryAttempts+1 times,
// each attempt bounded by RequestTimeout, with a linear backoff between
// attempts. Terminal requests stay queryable for CompletedTTL.
//
//	q := queue.New(cfg.Queue, processor)
//	if err := q.Start(ctx); err != nil {
//	    return err
//	}
//	defer q.Stop(shutdownCtx)
//
//	ticket, err := q.AddRequest(ctx, queue.Submission{UserID: "u1", Tier: ratelimit.TierPaid})
package queue
