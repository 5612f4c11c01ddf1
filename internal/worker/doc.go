// Package worker runs the processing pool.
//
// Each worker loops over ProcessNext: dequeue a job, take the photo lock
// (releasing the job back on contention), move the photo to PROCESSING, run
// the processor, record COMPLETED or FAILED, acknowledge the job, and release
// the lock. A photo found in PROCESSING with its lock free belongs to a
// worker that died mid-job and is resumed. Infrastructure errors leave the
// job unacknowledged so the queue redelivers it.
package worker
