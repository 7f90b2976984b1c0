package responder

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kode4food/caravan"
	"github.com/kode4food/caravan/message"
	"github.com/kode4food/caravan/topic"
	"github.com/sony/gobreaker"

	"github.com/kode4food/beckn/internal/client"
	"github.com/kode4food/beckn/pkg/api"
	"github.com/kode4food/beckn/pkg/log"
)

type (
	// Dispatcher delivers callbacks from a queue on a fixed set of workers.
	// Each destination host gets its own circuit breaker so that one dead
	// initiator does not hold up callbacks to the others
	Dispatcher struct {
		httpClient *http.Client
		prod       topic.Producer[*Delivery]
		cons       topic.Consumer[*Delivery]
		observe    DeliveryObserver
		workers    int
		queued     atomic.Int64
		stop       chan struct{}
		stopOnce   sync.Once
		started    sync.Once
		runWG      sync.WaitGroup

		mu       sync.Mutex
		breakers map[string]*gobreaker.CircuitBreaker
	}

	// Delivery is one callback waiting to be sent
	Delivery struct {
		URL     string
		Context *api.Context
		Body    any
		done    func(error)
	}

	// DeliveryObserver is told the outcome of every delivery
	DeliveryObserver func(action api.Action, err error)
)

const (
	DefaultDispatchWorkers = 4

	breakerMaxRequests  = 1
	breakerInterval     = time.Minute
	breakerTimeout      = 30 * time.Second
	breakerTripFailures = 5
)

// NewDispatcher creates a dispatcher whose deliveries time out after timeout
func NewDispatcher(timeout time.Duration, workers int) *Dispatcher {
	if workers <= 0 {
		workers = DefaultDispatchWorkers
	}
	queue := caravan.NewTopic[*Delivery]()
	return &Dispatcher{
		httpClient: &http.Client{Timeout: timeout},
		prod:       queue.NewProducer(),
		cons:       queue.NewConsumer(),
		observe:    func(api.Action, error) {},
		workers:    workers,
		stop:       make(chan struct{}),
		breakers:   map[string]*gobreaker.CircuitBreaker{},
	}
}

// Observe registers fn to be told every delivery outcome. It must be called
// before Start
func (d *Dispatcher) Observe(fn DeliveryObserver) {
	if fn != nil {
		d.observe = fn
	}
}

// Start launches the delivery workers
func (d *Dispatcher) Start() {
	d.started.Do(func() {
		for range d.workers {
			d.runWG.Go(func() {
				for {
					select {
					case <-d.stop:
						return
					case dl, ok := <-d.cons.Receive():
						if !ok {
							return
						}
						d.run(dl)
					}
				}
			})
		}
	})
}

// Enqueue queues a delivery
func (d *Dispatcher) Enqueue(dl *Delivery) {
	if dl == nil {
		return
	}
	d.queued.Add(1)
	message.Send(d.prod, dl)
}

// Flush stops the workers after delivering whatever is already queued,
// including deliveries still on their way through the topic. Nothing may be
// enqueued once Flush has been called
func (d *Dispatcher) Flush() {
	d.stopOnce.Do(func() {
		close(d.stop)
	})
	d.runWG.Wait()
	defer d.close()
	for d.queued.Load() > 0 {
		dl, ok := <-d.cons.Receive()
		if !ok {
			return
		}
		d.run(dl)
	}
}

// Deliver sends a callback immediately, bypassing the queue
func (d *Dispatcher) Deliver(ctx context.Context, dl *Delivery) error {
	cb := d.breakerFor(dl.URL)
	_, err := cb.Execute(func() (any, error) {
		return client.PostJSON(ctx, d.httpClient, dl.URL, dl.Body)
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState),
		errors.Is(err, gobreaker.ErrTooManyRequests):
		slog.Warn("Callback dropped by circuit breaker",
			log.TransactionID(dl.Context.TransactionID),
			log.Action(dl.Context.Action),
			log.URL(dl.URL),
			slog.String("breaker", cb.Name()),
			log.Error(err))
	case err != nil:
		slog.Error("Callback delivery failed",
			log.TransactionID(dl.Context.TransactionID),
			log.MessageID(dl.Context.MessageID),
			log.Action(dl.Context.Action),
			log.URL(dl.URL),
			log.Error(err))
	default:
		slog.Info("Callback delivered",
			log.TransactionID(dl.Context.TransactionID),
			log.Action(dl.Context.Action),
			log.URL(dl.URL))
	}
	d.observe(dl.Context.Action, err)
	return err
}

func (d *Dispatcher) run(dl *Delivery) {
	var err error
	defer d.queued.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Callback delivery panic",
				slog.Any("panic", r))
			err = errors.New("callback delivery panicked")
		}
		if dl.done != nil {
			dl.done(err)
		}
	}()
	err = d.Deliver(context.Background(), dl)
}

func (d *Dispatcher) breakerFor(target string) *gobreaker.CircuitBreaker {
	host := target
	if u, err := url.Parse(target); err == nil && u.Host != "" {
		host = u.Host
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if cb, ok := d.breakers[host]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "callback-" + host,
		MaxRequests: breakerMaxRequests,
		Interval:    breakerInterval,
		Timeout:     breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerTripFailures
		},
		IsSuccessful: func(err error) bool {
			// a NACK means the initiator is up and answered
			return err == nil || errors.Is(err, client.ErrNacked)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Callback circuit breaker changed state",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	})
	d.breakers[host] = cb
	return cb
}

func (d *Dispatcher) close() {
	d.prod.Close()
	d.cons.Close()
}
