package fec

import "github.com/uuorb/shorthair/internal/rscodec"

// encodeJob and encodeResult implement the optional background recovery
// worker described in spec.md §5/§9: "foreground sends 'encode group (id,
// symbols, r)', worker replies with r recovery symbols; no shared mutable
// state beyond the buffers owned by the message in flight." Encoder.Tick
// runs this inline by default (see closeGroup); a caller can opt into the
// background variant with Encoder.UseWorker. drainDuePending then polls
// the reply channel with a non-blocking select on each Tick, skipping
// emission for that tick if the result isn't in yet.
type encodeJob struct {
	codeGroup     uint8
	dataShards    [][]byte // already padded to L bytes
	recoveryCount int
	reply         chan encodeResult
}

type encodeResult struct {
	codeGroup uint8
	shards    [][]byte
	err       error
}

// Worker owns a private goroutine that runs the systematic encoder for
// closed groups off the foreground thread, so Tick never blocks on RS
// matrix construction for large groups.
type Worker struct {
	jobs chan encodeJob
	done chan struct{}
}

// NewWorker starts the worker goroutine. Callers must call Stop when done.
func NewWorker() *Worker {
	w := &Worker{
		jobs: make(chan encodeJob),
		done: make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *Worker) run() {
	for {
		select {
		case job := <-w.jobs:
			shards, err := encodeGroup(job.codeGroup, job.dataShards, job.recoveryCount)
			job.reply <- encodeResult{codeGroup: job.codeGroup, shards: shards, err: err}
		case <-w.done:
			return
		}
	}
}

// Submit hands a just-closed group to the worker and returns a channel
// that receives exactly one encodeResult. The worker has exclusive
// ownership of dataShards until it replies.
func (w *Worker) Submit(codeGroup uint8, dataShards [][]byte, recoveryCount int) <-chan encodeResult {
	reply := make(chan encodeResult, 1)
	w.jobs <- encodeJob{codeGroup: codeGroup, dataShards: dataShards, recoveryCount: recoveryCount, reply: reply}
	return reply
}

// Stop terminates the worker goroutine. Idempotent is not guaranteed;
// call exactly once.
func (w *Worker) Stop() {
	close(w.done)
}

func encodeGroup(_ uint8, dataShards [][]byte, recoveryCount int) ([][]byte, error) {
	if recoveryCount == 0 || len(dataShards) == 0 {
		return nil, nil
	}
	codec, err := rscodec.New(len(dataShards), recoveryCount)
	if err != nil {
		return nil, err
	}
	return codec.Encode(dataShards)
}
