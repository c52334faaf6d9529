package notify

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// DispatcherConfig sizes the outbound worker pool.
type DispatcherConfig struct {
	Workers        int
	Buffer         int
	Timeout        time.Duration
	HandoffTimeout time.Duration
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.Buffer <= 0 {
		c.Buffer = 256
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultWebhookTimeout
	}
	if c.HandoffTimeout < 0 {
		c.HandoffTimeout = 0
	}
	return c
}

type dispatchJob struct {
	url       string
	text      string
	fields    log.Fields
	delivered func(ref string)
}

// Dispatcher hands messages to a fixed set of workers over a bounded queue.
// Enqueue never waits longer than the handoff timeout; jobs that do not fit
// are dropped.
type Dispatcher struct {
	sender  Sender
	logger  *log.Logger
	jobs    chan dispatchJob
	timeout time.Duration
	handoff time.Duration
	wg      sync.WaitGroup
	once    sync.Once
}

func NewDispatcher(sender Sender, logger *log.Logger, cfg DispatcherConfig) *Dispatcher {
	if sender == nil {
		panic("notify.NewDispatcher: sender is nil")
	}
	if logger == nil {
		panic("Logger is not initialized")
	}
	cfg = cfg.withDefaults()
	d := &Dispatcher{
		sender:  sender,
		logger:  logger,
		jobs:    make(chan dispatchJob, cfg.Buffer),
		timeout: cfg.Timeout,
		handoff: cfg.HandoffTimeout,
	}
	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	logger.Infof("notification dispatcher started, workers: %d, buffer: %d, timeout: %v, handoff: %v", cfg.Workers, cfg.Buffer, cfg.Timeout, cfg.HandoffTimeout)
	return d
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	for j := range d.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		ref, ok := d.sender.Send(ctx, j.url, j.text)
		cancel()

		entry := d.logger.WithFields(j.fields).WithField("worker", id)
		if !ok {
			entry.Warn("notification dropped")
			continue
		}
		entry.WithField("ref", ref).Debug("notification sent")
		if j.delivered != nil {
			j.delivered(ref)
		}
	}
}

// Enqueue schedules text for delivery to webhookURL. delivered, if non-nil,
// runs on a worker after a successful post. It reports whether the job was
// accepted.
func (d *Dispatcher) Enqueue(webhookURL, text string, fields log.Fields, delivered func(ref string)) bool {
	return d.tryEnqueue(dispatchJob{url: webhookURL, text: text, fields: fields, delivered: delivered})
}

func (d *Dispatcher) tryEnqueue(job dispatchJob) bool {
	if d.jobs == nil {
		return false
	}

	if ok, closed := trySendNonBlocking(d.jobs, job); closed {
		return false
	} else if ok {
		return true
	}

	if d.handoff <= 0 {
		return false
	}

	timer := time.NewTimer(d.handoff)
	defer timer.Stop()

	ok, closed := sendWithTimer(d.jobs, job, timer.C)
	if closed {
		return false
	}
	return ok
}

// Shutdown stops accepting jobs and waits for queued ones to finish or for
// ctx to expire.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.once.Do(func() { close(d.jobs) })

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func trySendNonBlocking(ch chan dispatchJob, job dispatchJob) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- job:
		return true, false
	default:
		return false, false
	}
}

func sendWithTimer(ch chan dispatchJob, job dispatchJob, timer <-chan time.Time) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- job:
		return true, false
	case <-timer:
		return false, false
	}
}
