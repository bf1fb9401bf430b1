package mirrorsvc

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/trezcool/markit/core"
	"github.com/trezcool/markit/core/answer"
)

const (
	queueSize    = 1024
	sweepLimit   = 500
	defaultCount = 2
)

// Queue buffers the mirror jobs of the answer service until a Worker consumes them.
type Queue struct {
	jobs    chan answer.MirrorJob
	logger  core.Logger
	enabled bool
}

var _ answer.MirrorQueue = (*Queue)(nil)

func NewQueue(conf *core.Config, logger core.Logger) *Queue {
	return &Queue{
		jobs:    make(chan answer.MirrorJob, queueSize),
		logger:  logger,
		enabled: conf.Mirror.Enabled(),
	}
}

// Enqueue never blocks: jobs are dropped when the queue is full or mirroring disabled.
// Dropped uploads are picked up again by the next sweep.
func (q *Queue) Enqueue(jobs ...answer.MirrorJob) {
	if !q.enabled {
		return
	}
	for _, job := range jobs {
		select {
		case q.jobs <- job:
		default:
			q.logger.Warn(fmt.Sprintf("mirror queue full, dropping %s", answer.RemotePath(job.BookID, job.FilePath)))
		}
	}
}

// Tracker records which files have been mirrored.
type Tracker interface {
	QueryUnmirroredPages(ctx context.Context, limit int) ([]answer.Page, error)
	SetMirrored(ctx context.Context, bookID int64, filePath string) error
}

// Worker copies the queued files to the mirror and periodically sweeps the unmirrored pages.
type Worker struct {
	queue    *Queue
	tracker  Tracker
	provider Provider
	files    answer.FileStore
	logger   core.Logger
	count    int
	schedule string

	cron *cron.Cron
	wg   sync.WaitGroup
}

func NewWorker(
	conf *core.Config,
	queue *Queue,
	tracker Tracker,
	provider Provider,
	files answer.FileStore,
	logger core.Logger,
) *Worker {
	count := conf.Mirror.Workers
	if count < 1 {
		count = defaultCount
	}
	return &Worker{
		queue:    queue,
		tracker:  tracker,
		provider: provider,
		files:    files,
		logger:   logger,
		count:    count,
		schedule: conf.Mirror.Schedule,
	}
}

// cronLogger sends the scheduler's messages to a core.Logger.
type cronLogger struct {
	logger core.Logger
}

var _ cron.Logger = cronLogger{}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(formatCronMessage(msg, keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(formatCronMessage(msg, append(keysAndValues, "error", err)), err)
}

func formatCronMessage(msg string, keysAndValues []interface{}) string {
	var b strings.Builder
	b.WriteString("cron: " + msg)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fmt.Fprintf(&b, " %v=%v", keysAndValues[i], keysAndValues[i+1])
	}
	return b.String()
}

// Start runs the workers until ctx is done. It does nothing without a Provider.
func (w *Worker) Start(ctx context.Context) error {
	if w.provider == nil {
		return nil
	}

	for i := 0; i < w.count; i++ {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.run(ctx)
		}()
	}

	if w.schedule != "" {
		logger := cronLogger{w.logger}
		w.cron = cron.New(cron.WithLogger(logger), cron.WithChain(cron.SkipIfStillRunning(logger)))
		_, err := w.cron.AddFunc(w.schedule, func() {
			if err := w.Sweep(ctx); err != nil {
				w.logger.Error(fmt.Sprintf("mirror sweep: %v", err), err)
			}
		})
		if err != nil {
			return errors.Wrapf(err, "scheduling mirror sweep %q", w.schedule)
		}
		w.cron.Start()
	}
	return nil
}

// Wait stops the sweep and waits for the workers to return.
func (w *Worker) Wait() {
	if w.cron != nil {
		<-w.cron.Stop().Done()
	}
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-w.queue.jobs:
			if err := w.Mirror(ctx, job); err != nil {
				w.logger.Error(fmt.Sprintf("mirroring %s: %v", answer.RemotePath(job.BookID, job.FilePath), err), err)
			}
		}
	}
}

// Mirror copies (or removes) a single file.
func (w *Worker) Mirror(ctx context.Context, job answer.MirrorJob) error {
	if w.provider == nil {
		return errors.New("mirror not enabled")
	}

	remotePath := answer.RemotePath(job.BookID, job.FilePath)
	if job.Delete {
		return w.provider.Delete(ctx, remotePath)
	}
	if err := w.provider.Put(ctx, remotePath, w.files.LocalPath(job.BookID, job.FilePath)); err != nil {
		return err
	}
	return errors.Wrap(w.tracker.SetMirrored(ctx, job.BookID, job.FilePath), "setting mirrored")
}

// Sweep queues the files of the pages not mirrored yet.
func (w *Worker) Sweep(ctx context.Context) error {
	pages, err := w.tracker.QueryUnmirroredPages(ctx, sweepLimit)
	if err != nil {
		return errors.Wrap(err, "querying unmirrored pages")
	}
	w.queue.Enqueue(Jobs(pages)...)
	return nil
}

// Jobs returns one upload job per distinct file of pages.
func Jobs(pages []answer.Page) []answer.MirrorJob {
	type key struct {
		bookID int64
		path   string
	}
	seen := make(map[key]bool, len(pages))
	jobs := make([]answer.MirrorJob, 0, len(pages))
	for _, p := range pages {
		k := key{p.BookID, p.FilePath}
		if seen[k] {
			continue
		}
		seen[k] = true
		jobs = append(jobs, answer.MirrorJob{BookID: p.BookID, FilePath: p.FilePath})
	}
	return jobs
}
