// Package thumbnail generates the resized derivatives of uploaded images.
package thumbnail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/maneesh/filesmanager/internal/apperr"
	"github.com/maneesh/filesmanager/internal/metrics"
	"github.com/maneesh/filesmanager/internal/models"
	"github.com/maneesh/filesmanager/internal/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var tracer = otel.Tracer("files-manager-thumbnail")

// Outcome is the result of a processed job
type Outcome string

const (
	OutcomeDone    Outcome = "done"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

var errMissingField = errors.New("job is missing fileId or userId")

// FileFinder looks up entries by owner
type FileFinder interface {
	GetUserFile(ctx context.Context, id, userID string) (*models.FileEntry, error)
}

// BlobStore reads originals and writes derivatives
type BlobStore interface {
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Put(ctx context.Context, path string, data []byte) error
}

// JobSource delivers thumbnail jobs
type JobSource interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*storage.Delivery, error)
	Ack(ctx context.Context, d *storage.Delivery) error
	Fail(ctx context.Context, d *storage.Delivery, cause error) error
	Recover(ctx context.Context) (int, error)
}

// Worker consumes thumbnail jobs one at a time
type Worker struct {
	files       FileFinder
	blobs       BlobStore
	jobs        JobSource
	pollTimeout time.Duration
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// NewWorker creates a worker; m may be nil
func NewWorker(files FileFinder, blobs BlobStore, jobs JobSource, pollTimeout time.Duration, logger *slog.Logger, m *metrics.Metrics) *Worker {
	if pollTimeout <= 0 {
		pollTimeout = 5 * time.Second
	}
	return &Worker{
		files:       files,
		blobs:       blobs,
		jobs:        jobs,
		pollTimeout: pollTimeout,
		logger:      logger,
		metrics:     m,
	}
}

// Run processes jobs until ctx is cancelled. A job already taken from the
// queue runs to completion; cancellation is only observed between jobs.
func (w *Worker) Run(ctx context.Context) error {
	moved, err := w.jobs.Recover(ctx)
	if err != nil {
		return fmt.Errorf("failed to recover jobs: %w", err)
	}
	if moved > 0 {
		w.logger.InfoContext(ctx, "requeued unfinished jobs", "count", moved)
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		d, err := w.jobs.Dequeue(ctx, w.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.ErrorContext(ctx, "failed to dequeue job", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(w.pollTimeout):
			}
			continue
		}
		if d == nil {
			continue
		}

		w.handle(context.WithoutCancel(ctx), d)
	}
}

func (w *Worker) handle(ctx context.Context, d *storage.Delivery) {
	start := time.Now()
	logger := w.logger.With("job_id", d.ID, "file_id", d.Job.FileID, "attempt", d.Attempts+1)

	outcome, err := w.Process(ctx, d.Job)
	if err != nil {
		outcome = OutcomeFailed
		logger.WarnContext(ctx, "thumbnail job failed", "error", err)
		if err := w.jobs.Fail(ctx, d, err); err != nil {
			logger.ErrorContext(ctx, "failed to report job failure", "error", err)
		}
	} else {
		logger.InfoContext(ctx, "thumbnail job finished", "outcome", outcome)
		if err := w.jobs.Ack(ctx, d); err != nil {
			logger.ErrorContext(ctx, "failed to ack job", "error", err)
		}
	}

	w.metrics.JobFinished(string(outcome), time.Since(start))
}

// Process generates every thumbnail width of the image behind job
func (w *Worker) Process(ctx context.Context, job models.ThumbnailJob) (Outcome, error) {
	ctx, span := tracer.Start(ctx, "thumbnail.process",
		trace.WithAttributes(
			attribute.String("file_id", job.FileID),
			attribute.String("user_id", job.UserID),
		),
	)
	defer span.End()

	if job.FileID == "" || job.UserID == "" {
		return "", errMissingField
	}

	entry, err := w.files.GetUserFile(ctx, job.FileID, job.UserID)
	if errors.Is(err, apperr.ErrNoRecord) {
		return "", fmt.Errorf("file %s not found", job.FileID)
	} else if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to get file: %w", err)
	}

	if entry.Type != models.FileTypeImage {
		span.SetAttributes(attribute.Bool("skipped", true))
		return OutcomeSkipped, nil
	}

	src, format, err := w.load(ctx, entry.LocalPath)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	span.SetAttributes(attribute.String("format", format))

	var wg sync.WaitGroup
	errChan := make(chan error, len(models.ThumbnailWidths))

	for _, width := range models.ThumbnailWidths {
		wg.Add(1)
		go func(width int) {
			defer wg.Done()

			ctx, sizeSpan := tracer.Start(ctx, fmt.Sprintf("thumbnail_%d", width),
				trace.WithAttributes(attribute.Int("width", width)),
			)
			defer sizeSpan.End()

			data, err := encode(Resize(src, width), format)
			if err != nil {
				sizeSpan.RecordError(err)
				errChan <- fmt.Errorf("failed to encode %dpx thumbnail: %w", width, err)
				return
			}
			if err := w.blobs.Put(ctx, models.ThumbnailPath(entry.LocalPath, width), data); err != nil {
				sizeSpan.RecordError(err)
				errChan <- fmt.Errorf("failed to write %dpx thumbnail: %w", width, err)
			}
		}(width)
	}

	wg.Wait()
	close(errChan)

	if len(errChan) > 0 {
		err := <-errChan
		span.RecordError(err)
		return "", err
	}
	return OutcomeDone, nil
}

func (w *Worker) load(ctx context.Context, path string) (image.Image, string, error) {
	body, err := w.blobs.Open(ctx, path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open original: %w", err)
	}
	defer body.Close()

	img, format, err := image.Decode(body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	return img, format, nil
}

// Resize scales src to width pixels wide, preserving the aspect ratio
func Resize(src image.Image, width int) image.Image {
	b := src.Bounds()
	height := 1
	if b.Dx() > 0 {
		height = b.Dy() * width / b.Dx()
	}
	if height < 1 {
		height = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

// encode writes img in format; formats without an encoder fall back to png
func encode(img image.Image, format string) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch format {
	case "jpeg":
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85})
	case "gif":
		err = gif.Encode(&buf, img, nil)
	case "bmp":
		err = bmp.Encode(&buf, img)
	case "tiff":
		err = tiff.Encode(&buf, img, nil)
	default:
		err = png.Encode(&buf, img)
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
