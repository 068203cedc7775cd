package feed

import (
	"context"
	"math"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/dperri/crossalert/internal/domain"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Venue is the per-exchange codec behind an Adapter: how to address the
// stream, how to frame subscription commands, and how to decode ticks.
type Venue interface {
	Name() string
	URL() string
	SubscribeMsg(symbols []string) interface{}
	UnsubscribeMsg(symbols []string) interface{}
	// Parse decodes one websocket frame into ticks. Acks and other control
	// frames decode to an empty slice with no error.
	Parse(data []byte) ([]domain.Tick, error)
}

type connState int32

const (
	stateDisconnected connState = iota
	stateConnecting
	stateConnected
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 25 * time.Second
)

// Adapter maintains one venue's price stream: it dials, subscribes to the
// currently required symbol set, forwards ticks into the sink and reconnects
// after a fixed delay on any failure. Malformed frames and write errors never
// take the process down; reconnecting is the only recovery action.
type Adapter struct {
	venue       Venue
	sink        domain.PriceSink
	required    func(ctx context.Context) ([]string, error)
	delay       time.Duration
	dialTimeout time.Duration
	logger      *zap.Logger

	mu         sync.Mutex
	conn       *websocket.Conn
	state      connState
	subscribed map[string]struct{}
}

func NewAdapter(venue Venue, sink domain.PriceSink, required func(ctx context.Context) ([]string, error), delay, dialTimeout time.Duration, logger *zap.Logger) *Adapter {
	return &Adapter{
		venue:       venue,
		sink:        sink,
		required:    required,
		delay:       delay,
		dialTimeout: dialTimeout,
		logger:      logger.With(zap.String("exchange", venue.Name())),
		subscribed:  make(map[string]struct{}),
	}
}

func (a *Adapter) Exchange() string {
	return a.venue.Name()
}

// Subscribe starts streaming the symbol. Dropped while disconnected: the
// reconnect path re-derives the full required set, and the periodic reconcile
// sweep retries anything lost in between.
func (a *Adapter) Subscribe(symbol string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != stateConnected || a.conn == nil {
		a.logger.Debug("subscribe dropped, adapter disconnected", zap.String("symbol", symbol))
		return
	}
	if _, ok := a.subscribed[symbol]; ok {
		return
	}
	if err := a.conn.WriteJSON(a.venue.SubscribeMsg([]string{symbol})); err != nil {
		a.logger.Warn("subscribe write failed", zap.String("symbol", symbol), zap.Error(err))
		return
	}
	a.subscribed[symbol] = struct{}{}
	a.logger.Info("subscribed", zap.String("symbol", symbol))
}

func (a *Adapter) Unsubscribe(symbol string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != stateConnected || a.conn == nil {
		a.logger.Debug("unsubscribe dropped, adapter disconnected", zap.String("symbol", symbol))
		return
	}
	if _, ok := a.subscribed[symbol]; !ok {
		return
	}
	if err := a.conn.WriteJSON(a.venue.UnsubscribeMsg([]string{symbol})); err != nil {
		a.logger.Warn("unsubscribe write failed", zap.String("symbol", symbol), zap.Error(err))
		return
	}
	delete(a.subscribed, symbol)
	a.logger.Info("unsubscribed", zap.String("symbol", symbol))
}

func (a *Adapter) Subscribed() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	symbols := make([]string, 0, len(a.subscribed))
	for symbol := range a.subscribed {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// Run drives the connect/read/reconnect loop until ctx is cancelled.
func (a *Adapter) Run(ctx context.Context) error {
	dialer := &websocket.Dialer{Proxy: http.ProxyFromEnvironment}

	for {
		if ctx.Err() != nil {
			return nil
		}

		a.setState(stateConnecting)
		a.logger.Info("ws connect start", zap.String("url", a.venue.URL()))

		dialCtx, cancel := context.WithTimeout(ctx, a.dialTimeout)
		conn, _, err := dialer.DialContext(dialCtx, a.venue.URL(), nil)
		cancel()
		if err != nil {
			a.setState(stateDisconnected)
			if ctx.Err() != nil {
				return nil
			}
			a.logger.Error("ws connect failed", zap.Error(err))
			if !a.sleep(ctx) {
				return nil
			}
			continue
		}

		symbols, err := a.required(ctx)
		if err != nil {
			// Connect anyway; the reconcile sweep fills the set in.
			a.logger.Warn("required symbol set unavailable", zap.Error(err))
			symbols = nil
		}
		if len(symbols) > 0 {
			if err := conn.WriteJSON(a.venue.SubscribeMsg(symbols)); err != nil {
				a.logger.Error("ws subscribe failed", zap.Error(err))
				_ = conn.Close()
				a.setState(stateDisconnected)
				if !a.sleep(ctx) {
					return nil
				}
				continue
			}
		}

		a.attach(conn, symbols)
		a.logger.Info("ws connected", zap.Int("symbol_count", len(symbols)))

		err = a.readLoop(ctx, conn)
		_ = conn.Close()
		a.detach()

		if ctx.Err() != nil {
			return nil
		}
		a.logger.Warn("ws disconnected, reconnecting", zap.Error(err))
		if !a.sleep(ctx) {
			return nil
		}
	}
}

func (a *Adapter) readLoop(ctx context.Context, conn *websocket.Conn) error {
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	errCh := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				errCh <- err
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
			a.handleFrame(data)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			return err
		case <-pingTicker.C:
			_ = conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second))
		}
	}
}

func (a *Adapter) handleFrame(data []byte) {
	ticks, err := a.venue.Parse(data)
	if err != nil {
		a.logger.Debug("feed frame ignored", zap.Error(err))
		return
	}
	for _, tick := range ticks {
		// Venues occasionally quote zero on thin symbols; never let those
		// reach the cache.
		if tick.Price <= 0 || math.IsNaN(tick.Price) || math.IsInf(tick.Price, 0) {
			continue
		}
		a.sink.Set(tick.Exchange, tick.Symbol, tick.Price)
	}
}

func (a *Adapter) attach(conn *websocket.Conn, symbols []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.conn = conn
	a.state = stateConnected
	a.subscribed = make(map[string]struct{}, len(symbols))
	for _, symbol := range symbols {
		a.subscribed[symbol] = struct{}{}
	}
}

func (a *Adapter) detach() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.conn = nil
	a.state = stateDisconnected
	a.subscribed = make(map[string]struct{})
}

func (a *Adapter) setState(state connState) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = state
}

// sleep waits out the fixed reconnect delay. Returns false when ctx ended.
func (a *Adapter) sleep(ctx context.Context) bool {
	timer := time.NewTimer(a.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
