// Package s3sink archives batches of log lines to an S3-compatible object
// store, flushing periodically rather than per line — object stores charge
// per request, unlike the row-per-line Postgres sink.
package s3sink

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"

	"github.com/cherrypy/magicbus"
)

// Putter is the subset of *minio.Client the Sink needs; tests supply a
// recording fake instead of a live object store. The reader parameter is
// typed io.Reader, matching *minio.Client.PutObject exactly, so the real
// client satisfies this interface without an adapter.
type Putter interface {
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Sink buffers log lines in memory and hands each full batch to a
// background goroutine, which uploads it as one object named with a random
// key under prefix. The log-channel listener only ever touches the
// in-memory buffer and a non-blocking channel send — it never calls the
// object store itself, so a slow or unreachable store cannot back-pressure
// Bus.Publish.
type Sink struct {
	client     Putter
	bucket     string
	prefix     string
	flushEvery int

	mu    sync.Mutex
	buf   bytes.Buffer
	lines int

	jobs chan []byte
	wg   sync.WaitGroup

	// onUploadError, when set, observes every failed or dropped upload;
	// tests use it instead of a live logger.
	onUploadError func(error)
}

// Option customizes Sink construction.
type Option func(*Sink)

// WithUploadErrorObserver reports upload failures and batches dropped
// because the upload queue was full. Exported for tests; production
// callers typically leave failures silent, since a logging sink must never
// itself recurse into the log channel.
func WithUploadErrorObserver(fn func(error)) Option {
	return func(s *Sink) { s.onUploadError = fn }
}

// NewSink returns a Sink that flushes after flushEvery lines have
// accumulated (16 if flushEvery <= 0), uploading each batch from a
// background goroutine fed by a small bounded queue. Call Close from a
// shutdown path to drain the queue before the process exits.
func NewSink(client Putter, bucket, prefix string, flushEvery int, opts ...Option) *Sink {
	if flushEvery <= 0 {
		flushEvery = 16
	}
	s := &Sink{
		client:     client,
		bucket:     bucket,
		prefix:     prefix,
		flushEvery: flushEvery,
		jobs:       make(chan []byte, 4),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.wg.Add(1)
	go s.run()
	return s
}

func (s *Sink) run() {
	defer s.wg.Done()
	for payload := range s.jobs {
		if err := s.upload(context.Background(), payload); err != nil && s.onUploadError != nil {
			s.onUploadError(err)
		}
	}
}

func (s *Sink) upload(ctx context.Context, payload []byte) error {
	key := s.prefix + uuid.New().String() + ".log"
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(payload), int64(len(payload)),
		minio.PutObjectOptions{ContentType: "text/plain; charset=utf-8"})
	return err
}

// Listener returns the log-channel subscriber. It only ever appends to the
// in-memory buffer and, once a batch fills up, hands it off to the
// background uploader; it never performs the upload itself.
func (s *Sink) Listener() magicbus.ListenerFunc {
	return func(args ...any) (any, error) {
		msg := ""
		level := magicbus.LevelInfo
		if len(args) > 0 {
			if m, ok := args[0].(string); ok {
				msg = m
			}
		}
		if len(args) > 1 {
			if l, ok := args[1].(magicbus.LogLevel); ok {
				level = l
			}
		}

		s.mu.Lock()
		fmt.Fprintf(&s.buf, "%s %s\n", level, msg)
		s.lines++
		var payload []byte
		if s.lines >= s.flushEvery {
			payload = s.snapshotLocked()
		}
		s.mu.Unlock()

		if payload != nil {
			s.enqueue(payload)
		}
		return nil, nil
	}
}

// snapshotLocked copies and clears the buffer. Caller must hold s.mu.
func (s *Sink) snapshotLocked() []byte {
	payload := make([]byte, s.buf.Len())
	copy(payload, s.buf.Bytes())
	s.buf.Reset()
	s.lines = 0
	return payload
}

// enqueue hands a batch to the background uploader, dropping it instead of
// blocking if the queue is already full.
func (s *Sink) enqueue(payload []byte) {
	select {
	case s.jobs <- payload:
	default:
		if s.onUploadError != nil {
			s.onUploadError(fmt.Errorf("s3sink: upload queue full, dropping batch of %d bytes", len(payload)))
		}
	}
}

// Flush uploads whatever is currently buffered synchronously, bypassing the
// background queue, then clears the buffer. It is a no-op if nothing is
// buffered. Used from StopListener, where blocking until the final batch is
// safely written is the point.
func (s *Sink) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.buf.Len() == 0 {
		s.mu.Unlock()
		return nil
	}
	payload := s.snapshotLocked()
	s.mu.Unlock()
	return s.upload(ctx, payload)
}

// StopListener returns a STOP-channel subscriber that flushes any
// remaining buffered lines before the process tears down.
func (s *Sink) StopListener() magicbus.ListenerFunc {
	return func(args ...any) (any, error) {
		return nil, s.Flush(context.Background())
	}
}

// Close stops accepting new background uploads and waits for any batch
// already queued to finish uploading.
func (s *Sink) Close() {
	close(s.jobs)
	s.wg.Wait()
}
