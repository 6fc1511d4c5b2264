package portal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bnema/eiscreen/internal/event"
	"github.com/bnema/eiscreen/internal/logger"
)

const (
	DefaultRetryDelay  = time.Second
	DefaultFallbackEnv = "LIBEI_SOCKET"
)

// Options configures a Negotiator.
type Options struct {
	Variant Variant
	// RetryDelay is the wait before re-enabling a disabled capture session.
	RetryDelay time.Duration
	// FallbackEnv names the variable holding the fallback EIS socket path.
	FallbackEnv string
}

// Negotiator runs the portal handshake on its own goroutine. It reports to
// the dispatch loop only through the event sink: a ConnectedToTransport
// event with the EIS descriptor, or a Quit event when the session is
// unusable.
type Negotiator struct {
	broker Broker
	sink   event.Sink
	opts   Options

	connect func(env string) (int, error)

	state atomic.Int32

	// Owned by the run goroutine, then by Close once it has exited.
	enabled    bool
	subscribed bool
	barriers   []Barrier
	retry      *time.Timer

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

func NewNegotiator(broker Broker, sink event.Sink, opts Options) *Negotiator {
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.FallbackEnv == "" {
		opts.FallbackEnv = DefaultFallbackEnv
	}
	return &Negotiator{
		broker:  broker,
		sink:    sink,
		opts:    opts,
		connect: fallbackTransport,
	}
}

// State returns the current negotiation state. Safe from any goroutine.
func (n *Negotiator) State() State {
	return State(n.state.Load())
}

func (n *Negotiator) Variant() Variant {
	return n.opts.Variant
}

func (n *Negotiator) setState(s State) {
	old := State(n.state.Swap(int32(s)))
	if old != s {
		logger.Debugf("Portal session %s -> %s", old, s)
	}
}

// Start requests the session and runs the negotiation until ctx is
// cancelled, the session closes or a fatal error occurs.
func (n *Negotiator) Start(ctx context.Context) {
	ctx, n.cancel = context.WithCancel(ctx)
	n.done = make(chan struct{})
	go n.run(ctx)
}

func (n *Negotiator) run(ctx context.Context) {
	defer close(n.done)
	defer n.stopRetry()

	logger.Debugf("Setting up the %s session", n.opts.Variant)
	n.setState(SessionRequested)
	if err := n.broker.CreateSession(ctx, n.opts.Variant); err != nil {
		n.fail(fmt.Sprintf("Failed to initialize %s session", n.opts.Variant), err)
		return
	}

	msgs := n.broker.Messages()
	for {
		var retry <-chan time.Time
		if n.retry != nil {
			retry = n.retry.C
		}

		select {
		case <-ctx.Done():
			logger.Debug("Shutting down portal negotiator")
			return
		case msg, ok := <-msgs:
			if !ok {
				n.fail("Portal connection lost", ErrSessionClosed)
				return
			}
			if !n.handle(ctx, msg) {
				return
			}
		case <-retry:
			n.retry = nil
			n.enable(ctx)
		}
	}
}

// handle applies one broker message. It returns false once the session is
// terminal.
func (n *Negotiator) handle(ctx context.Context, msg Message) bool {
	switch m := msg.(type) {
	case SessionCreated:
		if m.Err != nil {
			n.fail(fmt.Sprintf("Failed to initialize %s session", n.opts.Variant), m.Err)
			return false
		}
		logger.Debug("Session ready")
		n.setState(SessionReady)
		if n.opts.Variant == RemoteDesktop {
			if err := n.broker.Start(ctx); err != nil {
				n.fail("Failed to start session", err)
				return false
			}
			return true
		}
		return n.connectTransport(ctx)

	case SessionStarted:
		if m.Err != nil {
			n.fail("Failed to start session", m.Err)
			return false
		}
		return n.connectTransport(ctx)

	case ZonesChanged:
		if n.opts.Variant != InputCapture {
			return true
		}
		if err := n.broker.GetZones(ctx); err != nil {
			logger.Warnf("Failed to request zones: %v", err)
		}
		return true

	case ZonesUpdated:
		if m.Err != nil {
			n.fail("Failed to get zones", m.Err)
			return false
		}
		return n.applyZones(ctx, m)

	case BarriersApplied:
		if m.Err != nil {
			n.fail("Failed to set pointer barriers", m.Err)
			return false
		}
		kept, dropped := dropBarriers(n.barriers, m.Failed)
		for _, b := range dropped {
			logger.Warnf("Pointer barrier %d (%d,%d)-(%d,%d) rejected", b.ID, b.X1, b.Y1, b.X2, b.Y2)
		}
		n.barriers = kept
		n.enable(ctx)
		return true

	case SessionDisabled:
		if n.opts.Variant != InputCapture {
			return true
		}
		n.enabled = false
		n.setState(Disabled)
		n.scheduleRetry()
		return true

	case SessionActivated:
		logger.Debugf("Capture activated (id %d) at %.0f,%.0f", m.ActivationID, m.X, m.Y)
		n.enable(ctx)
		return true

	case SessionDeactivated:
		logger.Debugf("Capture deactivated (id %d)", m.ActivationID)
		return true

	case SessionClosedSignal:
		if n.subscribed {
			n.broker.Unsubscribe()
			n.subscribed = false
		}
		n.fail(fmt.Sprintf("Our %s session was closed, exiting", n.opts.Variant), nil)
		return false

	default:
		logger.Debugf("Ignoring portal message %T", msg)
		return true
	}
}

func (n *Negotiator) connectTransport(ctx context.Context) bool {
	n.setState(ConnectingTransport)

	fd, err := n.broker.ConnectToEIS(ctx)
	if err != nil {
		logger.Errorf("Failed to connect to EIS: %v", err)
		fd, err = n.connect(n.opts.FallbackEnv)
		if err != nil {
			n.fail("Cannot use fallback EIS socket", err)
			return false
		}
		logger.Warnf("Using fallback EIS socket from $%s", n.opts.FallbackEnv)
	}

	// The descriptor now belongs to the dispatch loop.
	n.sink.AddEvent(event.Event{Type: event.ConnectedToTransport, Data: fd})

	if err := n.broker.Subscribe(ctx); err != nil {
		n.fail("Failed to subscribe to session signals", err)
		return false
	}
	n.subscribed = true

	if n.opts.Variant == RemoteDesktop {
		n.setState(Enabled)
		return true
	}
	if err := n.broker.GetZones(ctx); err != nil {
		n.fail("Failed to request zones", err)
		return false
	}
	return true
}

func (n *Negotiator) applyZones(ctx context.Context, m ZonesUpdated) bool {
	n.barriers = BarriersForZones(m.Zones)
	logger.Debugf("Zone set %d: %d zones, %d barriers", m.ZoneSet, len(m.Zones), len(n.barriers))

	if err := n.broker.SetPointerBarriers(ctx, m.ZoneSet, n.barriers); err != nil {
		n.fail("Failed to set pointer barriers", err)
		return false
	}
	n.setState(AwaitingActivation)
	return true
}

// enable only restores the Enabled state when capture is already on.
func (n *Negotiator) enable(ctx context.Context) {
	if n.enabled {
		n.setState(Enabled)
		return
	}
	if err := n.broker.Enable(ctx); err != nil {
		logger.Warnf("Failed to enable input capture: %v", err)
		n.scheduleRetry()
		return
	}
	n.enabled = true
	n.setState(Enabled)
}

// scheduleRetry arms the re-enable timer unless it is already pending.
func (n *Negotiator) scheduleRetry() {
	if n.retry != nil {
		return
	}
	logger.Warnf("Input capture disabled, retrying in %s", n.opts.RetryDelay)
	n.retry = time.NewTimer(n.opts.RetryDelay)
}

func (n *Negotiator) stopRetry() {
	if n.retry != nil {
		n.retry.Stop()
		n.retry = nil
	}
}

func (n *Negotiator) fail(msg string, err error) {
	if err != nil {
		logger.Errorf("%s, quitting: %v", msg, err)
	} else {
		logger.Error(msg)
	}
	n.setState(Closed)
	n.sink.AddEvent(event.Event{Type: event.Quit})
}

// Close stops the negotiation goroutine, waits for it and releases the
// session signals, the session, the barriers and the portal connection in
// that order.
func (n *Negotiator) Close() error {
	var errs []error
	n.closeOnce.Do(func() {
		if n.cancel != nil {
			n.cancel()
			<-n.done
		}
		n.stopRetry()

		if n.subscribed {
			n.broker.Unsubscribe()
			n.subscribed = false
		}
		if err := n.broker.CloseSession(); err != nil {
			errs = append(errs, fmt.Errorf("close session: %w", err))
		}
		n.barriers = nil
		n.broker.ReleaseBarriers()
		if err := n.broker.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close portal connection: %w", err))
		}
		n.setState(Closed)
	})
	return errors.Join(errs...)
}
