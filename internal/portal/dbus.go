package portal

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/godbus/dbus/v5"

	"github.com/bnema/eiscreen/internal/logger"
)

const (
	portalBusName    = "org.freedesktop.portal.Desktop"
	portalObjectPath = dbus.ObjectPath("/org/freedesktop/portal/desktop")

	ifaceInputCapture  = "org.freedesktop.portal.InputCapture"
	ifaceRemoteDesktop = "org.freedesktop.portal.RemoteDesktop"
	ifaceRequest       = "org.freedesktop.portal.Request"
	ifaceSession       = "org.freedesktop.portal.Session"

	// InputCapture capability and RemoteDesktop device type bits.
	capKeyboard = 1
	capPointer  = 2

	messageBuffer = 32
)

type responseFunc func(code uint32, results map[string]dbus.Variant)

// DBusBroker talks to xdg-desktop-portal over the session bus.
type DBusBroker struct {
	conn    *dbus.Conn
	portal  dbus.BusObject
	variant Variant
	sender  string
	tokens  atomic.Uint64

	mu      sync.Mutex
	session dbus.ObjectPath
	pending map[dbus.ObjectPath]responseFunc

	subscribed atomic.Bool
	barriers   []Barrier

	signals chan *dbus.Signal
	msgs    chan Message
	stop    chan struct{}
	done    chan struct{}
	closed  atomic.Bool
}

var _ Broker = (*DBusBroker)(nil)

// NewDBusBroker opens a private session bus connection.
func NewDBusBroker() (*DBusBroker, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}

	names := conn.Names()
	if len(names) == 0 {
		conn.Close()
		return nil, fmt.Errorf("session bus did not assign a unique name")
	}

	b := &DBusBroker{
		conn:    conn,
		portal:  conn.Object(portalBusName, portalObjectPath),
		sender:  strings.ReplaceAll(strings.TrimPrefix(names[0], ":"), ".", "_"),
		pending: make(map[dbus.ObjectPath]responseFunc),
		signals: make(chan *dbus.Signal, messageBuffer),
		msgs:    make(chan Message, messageBuffer),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface(ifaceRequest),
		dbus.WithMatchMember("Response"),
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to watch portal responses: %w", err)
	}
	conn.Signal(b.signals)
	go b.pump()

	return b, nil
}

func (b *DBusBroker) Messages() <-chan Message {
	return b.msgs
}

func (b *DBusBroker) token() string {
	return fmt.Sprintf("eiscreen%d", b.tokens.Add(1))
}

func (b *DBusBroker) requestPath(token string) dbus.ObjectPath {
	return dbus.ObjectPath(fmt.Sprintf("/org/freedesktop/portal/desktop/request/%s/%s", b.sender, token))
}

func (b *DBusBroker) sessionPath(token string) dbus.ObjectPath {
	return dbus.ObjectPath(fmt.Sprintf("/org/freedesktop/portal/desktop/session/%s/%s", b.sender, token))
}

func (b *DBusBroker) currentSession() dbus.ObjectPath {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.session
}

func (b *DBusBroker) expect(path dbus.ObjectPath, fn responseFunc) {
	b.mu.Lock()
	b.pending[path] = fn
	b.mu.Unlock()
}

func (b *DBusBroker) forget(path dbus.ObjectPath) {
	b.mu.Lock()
	delete(b.pending, path)
	b.mu.Unlock()
}

// request calls a portal method returning a Request handle. options must
// be the map passed in args; its handle_token is filled in here.
func (b *DBusBroker) request(ctx context.Context, method string, options map[string]dbus.Variant, fn responseFunc, args ...any) error {
	token := b.token()
	options["handle_token"] = dbus.MakeVariant(token)
	predicted := b.requestPath(token)
	b.expect(predicted, fn)

	var handle dbus.ObjectPath
	if err := b.portal.CallWithContext(ctx, method, 0, args...).Store(&handle); err != nil {
		b.forget(predicted)
		return fmt.Errorf("%s: %w", method, err)
	}
	if handle != predicted {
		// Portals before 0.9 do not honour handle_token.
		b.forget(predicted)
		b.expect(handle, fn)
	}
	return nil
}

// await runs request and blocks until its response arrives.
func (b *DBusBroker) await(ctx context.Context, method string, options map[string]dbus.Variant, args ...any) (map[string]dbus.Variant, error) {
	type result struct {
		code    uint32
		results map[string]dbus.Variant
	}
	ch := make(chan result, 1)
	err := b.request(ctx, method, options, func(code uint32, results map[string]dbus.Variant) {
		ch <- result{code, results}
	}, args...)
	if err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if err := responseError(method, r.code); err != nil {
			return nil, err
		}
		return r.results, nil
	}
}

func responseError(method string, code uint32) error {
	switch code {
	case 0:
		return nil
	case 1:
		return fmt.Errorf("%s: cancelled by user", method)
	default:
		return fmt.Errorf("%s: portal response %d", method, code)
	}
}

func (b *DBusBroker) post(m Message) {
	select {
	case b.msgs <- m:
	case <-b.stop:
	}
}

func (b *DBusBroker) CreateSession(ctx context.Context, variant Variant) error {
	b.variant = variant
	sessionToken := b.token()
	options := map[string]dbus.Variant{
		"session_handle_token": dbus.MakeVariant(sessionToken),
	}

	b.mu.Lock()
	b.session = b.sessionPath(sessionToken)
	b.mu.Unlock()

	method, args := ifaceRemoteDesktop+".CreateSession", []any{options}
	if variant == InputCapture {
		options["capabilities"] = dbus.MakeVariant(uint32(capKeyboard | capPointer))
		method, args = ifaceInputCapture+".CreateSession", []any{"", options}
	}

	return b.request(ctx, method, options, func(code uint32, results map[string]dbus.Variant) {
		if err := responseError(method, code); err != nil {
			b.post(SessionCreated{Err: err})
			return
		}
		if v, ok := results["session_handle"]; ok {
			b.mu.Lock()
			switch h := v.Value().(type) {
			case string:
				b.session = dbus.ObjectPath(h)
			case dbus.ObjectPath:
				b.session = h
			}
			b.mu.Unlock()
		}
		b.post(SessionCreated{})
	}, args...)
}

// Start selects the keyboard and pointer devices, then starts the remote
// desktop session. The start result arrives as SessionStarted.
func (b *DBusBroker) Start(ctx context.Context) error {
	session := b.currentSession()

	selectOpts := map[string]dbus.Variant{
		"types": dbus.MakeVariant(uint32(capKeyboard | capPointer)),
	}
	if _, err := b.await(ctx, ifaceRemoteDesktop+".SelectDevices", selectOpts, session, selectOpts); err != nil {
		return err
	}

	method := ifaceRemoteDesktop + ".Start"
	startOpts := map[string]dbus.Variant{}
	return b.request(ctx, method, startOpts, func(code uint32, _ map[string]dbus.Variant) {
		b.post(SessionStarted{Err: responseError(method, code)})
	}, session, "", startOpts)
}

func (b *DBusBroker) ConnectToEIS(ctx context.Context) (int, error) {
	iface := ifaceRemoteDesktop
	if b.variant == InputCapture {
		iface = ifaceInputCapture
	}

	var fd dbus.UnixFD
	err := b.portal.CallWithContext(ctx, iface+".ConnectToEIS", 0,
		b.currentSession(), map[string]dbus.Variant{}).Store(&fd)
	if err != nil {
		return -1, fmt.Errorf("ConnectToEIS: %w", err)
	}
	return int(fd), nil
}

type dbusZone struct {
	Width, Height uint32
	X, Y          int32
}

func (b *DBusBroker) GetZones(ctx context.Context) error {
	method := ifaceInputCapture + ".GetZones"
	options := map[string]dbus.Variant{}
	return b.request(ctx, method, options, func(code uint32, results map[string]dbus.Variant) {
		if err := responseError(method, code); err != nil {
			b.post(ZonesUpdated{Err: err})
			return
		}

		var raw []dbusZone
		var zoneSet uint32
		if v, ok := results["zones"]; ok {
			if err := v.Store(&raw); err != nil {
				b.post(ZonesUpdated{Err: fmt.Errorf("decode zones: %w", err)})
				return
			}
		}
		if v, ok := results["zone_set"]; ok {
			if err := v.Store(&zoneSet); err != nil {
				b.post(ZonesUpdated{Err: fmt.Errorf("decode zone set: %w", err)})
				return
			}
		}

		zones := make([]Zone, len(raw))
		for i, z := range raw {
			zones[i] = Zone{X: z.X, Y: z.Y, Width: z.Width, Height: z.Height}
		}
		b.post(ZonesUpdated{ZoneSet: zoneSet, Zones: zones})
	}, b.currentSession(), options)
}

type dbusPosition struct {
	X1, Y1, X2, Y2 int32
}

func (b *DBusBroker) SetPointerBarriers(ctx context.Context, zoneSet uint32, barriers []Barrier) error {
	method := ifaceInputCapture + ".SetPointerBarriers"

	list := make([]map[string]dbus.Variant, len(barriers))
	for i, br := range barriers {
		list[i] = map[string]dbus.Variant{
			"barrier_id": dbus.MakeVariant(br.ID),
			"position":   dbus.MakeVariant(dbusPosition{br.X1, br.Y1, br.X2, br.Y2}),
		}
	}
	b.mu.Lock()
	b.barriers = append(b.barriers[:0], barriers...)
	b.mu.Unlock()

	options := map[string]dbus.Variant{}
	return b.request(ctx, method, options, func(code uint32, results map[string]dbus.Variant) {
		if err := responseError(method, code); err != nil {
			b.post(BarriersApplied{Err: err})
			return
		}
		var failed []uint32
		if v, ok := results["failed_barriers"]; ok {
			if err := v.Store(&failed); err != nil {
				b.post(BarriersApplied{Err: fmt.Errorf("decode failed barriers: %w", err)})
				return
			}
		}
		b.post(BarriersApplied{Failed: failed})
	}, b.currentSession(), options, list, zoneSet)
}

func (b *DBusBroker) Enable(ctx context.Context) error {
	return b.portal.CallWithContext(ctx, ifaceInputCapture+".Enable", 0,
		b.currentSession(), map[string]dbus.Variant{}).Err
}

func (b *DBusBroker) Disable(ctx context.Context) error {
	return b.portal.CallWithContext(ctx, ifaceInputCapture+".Disable", 0,
		b.currentSession(), map[string]dbus.Variant{}).Err
}

func (b *DBusBroker) sessionMatch() []dbus.MatchOption {
	return []dbus.MatchOption{
		dbus.WithMatchObjectPath(b.currentSession()),
		dbus.WithMatchInterface(ifaceSession),
		dbus.WithMatchMember("Closed"),
	}
}

func (b *DBusBroker) captureMatch() []dbus.MatchOption {
	return []dbus.MatchOption{
		dbus.WithMatchObjectPath(portalObjectPath),
		dbus.WithMatchInterface(ifaceInputCapture),
	}
}

func (b *DBusBroker) Subscribe(ctx context.Context) error {
	if err := b.conn.AddMatchSignalContext(ctx, b.sessionMatch()...); err != nil {
		return fmt.Errorf("watch session: %w", err)
	}
	if b.variant == InputCapture {
		if err := b.conn.AddMatchSignalContext(ctx, b.captureMatch()...); err != nil {
			return fmt.Errorf("watch input capture: %w", err)
		}
	}
	b.subscribed.Store(true)
	return nil
}

func (b *DBusBroker) Unsubscribe() {
	if !b.subscribed.Swap(false) {
		return
	}
	if err := b.conn.RemoveMatchSignal(b.sessionMatch()...); err != nil {
		logger.Debugf("Failed to remove session match: %v", err)
	}
	if b.variant == InputCapture {
		if err := b.conn.RemoveMatchSignal(b.captureMatch()...); err != nil {
			logger.Debugf("Failed to remove input capture match: %v", err)
		}
	}
}

func (b *DBusBroker) CloseSession() error {
	session := b.currentSession()
	if session == "" {
		return nil
	}
	err := b.conn.Object(portalBusName, session).Call(ifaceSession+".Close", 0).Err
	b.mu.Lock()
	b.session = ""
	b.mu.Unlock()
	return err
}

// ReleaseBarriers forgets the submitted barrier set. The portal drops its
// copy together with the session.
func (b *DBusBroker) ReleaseBarriers() {
	b.mu.Lock()
	b.barriers = nil
	b.mu.Unlock()
}

func (b *DBusBroker) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	b.conn.RemoveSignal(b.signals)
	close(b.stop)
	<-b.done
	return b.conn.Close()
}

// pump forwards D-Bus signals as broker messages. It never calls the portal.
func (b *DBusBroker) pump() {
	defer close(b.done)
	defer close(b.msgs)
	for {
		select {
		case <-b.stop:
			return
		case sig, ok := <-b.signals:
			if !ok {
				return
			}
			b.route(sig)
		}
	}
}

func (b *DBusBroker) route(sig *dbus.Signal) {
	switch sig.Name {
	case ifaceRequest + ".Response":
		b.mu.Lock()
		fn, ok := b.pending[sig.Path]
		delete(b.pending, sig.Path)
		b.mu.Unlock()
		if !ok {
			return
		}
		var code uint32
		results := map[string]dbus.Variant{}
		if err := dbus.Store(sig.Body, &code, &results); err != nil {
			logger.Warnf("Malformed portal response on %s: %v", sig.Path, err)
			code = 2
		}
		fn(code, results)
		return

	case ifaceSession + ".Closed":
		if b.subscribed.Load() && sig.Path == b.currentSession() {
			b.post(SessionClosedSignal{})
		}
		return
	}

	if !b.subscribed.Load() || !strings.HasPrefix(sig.Name, ifaceInputCapture+".") || !b.forSession(sig) {
		return
	}

	var options map[string]dbus.Variant
	if len(sig.Body) > 1 {
		options, _ = sig.Body[1].(map[string]dbus.Variant)
	}

	switch strings.TrimPrefix(sig.Name, ifaceInputCapture+".") {
	case "Disabled":
		b.post(SessionDisabled{})
	case "Activated":
		m := SessionActivated{ActivationID: variantUint32(options, "activation_id")}
		if v, ok := options["cursor_position"]; ok {
			var pos struct{ X, Y float64 }
			if err := v.Store(&pos); err == nil {
				m.X, m.Y = pos.X, pos.Y
			}
		}
		b.post(m)
	case "Deactivated":
		b.post(SessionDeactivated{ActivationID: variantUint32(options, "activation_id")})
	case "ZonesChanged":
		b.post(ZonesChanged{})
	}
}

func (b *DBusBroker) forSession(sig *dbus.Signal) bool {
	if len(sig.Body) == 0 {
		return false
	}
	path, ok := sig.Body[0].(dbus.ObjectPath)
	return ok && path == b.currentSession()
}

func variantUint32(options map[string]dbus.Variant, key string) uint32 {
	v, ok := options[key]
	if !ok {
		return 0
	}
	n, _ := v.Value().(uint32)
	return n
}
