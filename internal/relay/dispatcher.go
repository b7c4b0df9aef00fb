package relay

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/punchamoorthee/offpay/internal/domain"
	"github.com/punchamoorthee/offpay/internal/envelope"
	"github.com/punchamoorthee/offpay/internal/service"
)

var (
	inboundTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offpay_relay_inbound_total",
		Help: "Envelopes received over the relay, by operation and result",
	}, []string{"operation", "result"})

	notifyTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offpay_relay_notifications_total",
		Help: "Relay notifications, by result",
	}, []string{"result"})
)

// Executor runs a decoded request. *service.TransferService satisfies it.
type Executor interface {
	Execute(ctx context.Context, req domain.TransferRequest) (*service.Outcome, error)
}

type Options struct {
	// NotifyAddress receives replies when the inbound message carries no
	// sender address.
	NotifyAddress string
	// Retries is how many times a failed notification is retried.
	Retries uint64
	// RetryInterval is the first backoff interval.
	RetryInterval time.Duration
}

// Dispatcher connects the relay transport to the transfer engine.
type Dispatcher struct {
	transport Transport
	exec      Executor
	opts      Options

	mu     sync.Mutex // guards closed and wg.Add
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(t Transport, exec Executor, opts Options) *Dispatcher {
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 500 * time.Millisecond
	}
	return &Dispatcher{transport: t, exec: exec, opts: opts}
}

// Reply is what the relay caller learns about an inbound envelope.
type Reply struct {
	Request domain.TransferRequest
	Outcome *service.Outcome
	Message string
}

// Send hands an envelope to the transport.
func (d *Dispatcher) Send(ctx context.Context, to, token string) error {
	if to == "" {
		return errors.New("relay: no destination address")
	}
	if err := d.transport.Send(ctx, to, token); err != nil {
		return fmt.Errorf("relay send: %w", err)
	}
	return nil
}

// OnReceive decodes an inbound envelope, executes it and notifies from (or the
// configured fallback address) with the result. The notification runs in the
// background; its failure never changes the returned result.
func (d *Dispatcher) OnReceive(ctx context.Context, from, token string) (*Reply, error) {
	to := from
	if to == "" {
		to = d.opts.NotifyAddress
	}

	req, err := envelope.Decode(token)
	if err != nil {
		inboundTotal.WithLabelValues("unknown", "decode_error").Inc()
		d.Notify(ctx, to, FailureText("", err))
		return nil, err
	}

	out, err := d.exec.Execute(ctx, req)
	if err != nil {
		inboundTotal.WithLabelValues(req.Op.String(), "rejected").Inc()
		d.Notify(ctx, to, FailureText(req.Op, err))
		return &Reply{Request: req, Message: FailureText(req.Op, err)}, err
	}

	inboundTotal.WithLabelValues(req.Op.String(), "ok").Inc()
	msg := Summary(out)
	d.Notify(ctx, to, msg)
	return &Reply{Request: req, Outcome: out, Message: msg}, nil
}

// Notify sends text to the address in the background, retrying with backoff.
// Failures are logged and counted. After Close it drops the notification.
func (d *Dispatcher) Notify(ctx context.Context, to, text string) {
	if to == "" {
		notifyTotal.WithLabelValues("no_address").Inc()
		return
	}
	ctx = context.WithoutCancel(ctx)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		notifyTotal.WithLabelValues("dropped").Inc()
		log.Printf("relay closed, notification to %s dropped", to)
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		if err := d.notify(ctx, to, text); err != nil {
			notifyTotal.WithLabelValues("failed").Inc()
			log.Printf("relay notification to %s failed: %v", to, err)
			return
		}
		notifyTotal.WithLabelValues("sent").Inc()
	}()
}

func (d *Dispatcher) notify(ctx context.Context, to, text string) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = d.opts.RetryInterval
	b := backoff.WithContext(backoff.WithMaxRetries(eb, d.opts.Retries), ctx)

	return backoff.Retry(func() error {
		return d.transport.Send(ctx, to, text)
	}, b)
}

// Wait blocks until every pending notification has finished. Callers that may
// still be notifying concurrently should use Close instead.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close stops accepting notifications and waits for the pending ones.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.wg.Wait()
}
