// Package queue holds the job broker implementations consumed by the scraping worker.
//
// Every implementation satisfies scraping.JobQueue: FIFO delivery, a bounded-wait Dequeue
// that returns (nil, nil) on timeout, and at-most-once hand-off with no acknowledgement.
package queue

import "errors"

// ErrClosed is returned by queue operations after Close.
var ErrClosed = errors.New("queue closed")
