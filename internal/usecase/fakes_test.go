package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dperri/crossalert/internal/domain"
)

type fakeAlertRepo struct {
	mu      sync.Mutex
	nextID  uint
	alerts  map[uint]domain.Alert
	listErr error
}

func newFakeAlertRepo() *fakeAlertRepo {
	return &fakeAlertRepo{alerts: make(map[uint]domain.Alert)}
}

func (r *fakeAlertRepo) Upsert(_ context.Context, alert *domain.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, existing := range r.alerts {
		if existing.DeviceID == alert.DeviceID && existing.Exchange == alert.Exchange && existing.Symbol == alert.Symbol {
			alert.ID = id
			alert.Status = domain.StatusActive
			alert.TriggeredAt = nil
			r.alerts[id] = *alert
			return nil
		}
	}

	r.nextID++
	alert.ID = r.nextID
	alert.Status = domain.StatusActive
	alert.TriggeredAt = nil
	r.alerts[alert.ID] = *alert
	return nil
}

func (r *fakeAlertRepo) Cancel(_ context.Context, deviceID, exchange, symbol string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, existing := range r.alerts {
		if existing.DeviceID == deviceID && existing.Exchange == exchange && existing.Symbol == symbol {
			existing.Status = domain.StatusCancelled
			r.alerts[id] = existing
		}
	}
	return nil
}

func (r *fakeAlertRepo) ListActive(_ context.Context) ([]domain.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []domain.Alert
	for _, alert := range r.alerts {
		if alert.Status == domain.StatusActive {
			out = append(out, alert)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeAlertRepo) ListByDevice(_ context.Context, deviceID string) ([]domain.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.Alert
	for _, alert := range r.alerts {
		if alert.DeviceID == deviceID {
			out = append(out, alert)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeAlertRepo) MarkTriggered(_ context.Context, alertID uint, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	alert, ok := r.alerts[alertID]
	if !ok || alert.Status != domain.StatusActive {
		return false, nil
	}
	alert.Status = domain.StatusTriggered
	alert.TriggeredAt = &at
	r.alerts[alertID] = alert
	return true, nil
}

func (r *fakeAlertRepo) get(alertID uint) (domain.Alert, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	alert, ok := r.alerts[alertID]
	return alert, ok
}

func (r *fakeAlertRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.alerts)
}

type notification struct {
	dest     domain.Destination
	text     string
	exchange string
	symbol   string
}

type fakeNotifier struct {
	ch chan notification
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{ch: make(chan notification, 16)}
}

func (n *fakeNotifier) Notify(_ context.Context, dest domain.Destination, text, exchange, symbol string) error {
	n.ch <- notification{dest: dest, text: text, exchange: exchange, symbol: symbol}
	return nil
}

type fakeFeedAdapter struct {
	mu       sync.Mutex
	exchange string
	set      map[string]struct{}
	subs     []string
	unsubs   []string
}

func newFakeFeedAdapter(exchange string) *fakeFeedAdapter {
	return &fakeFeedAdapter{exchange: exchange, set: make(map[string]struct{})}
}

func (a *fakeFeedAdapter) Exchange() string {
	return a.exchange
}

func (a *fakeFeedAdapter) Subscribe(symbol string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.set[symbol] = struct{}{}
	a.subs = append(a.subs, symbol)
}

func (a *fakeFeedAdapter) Unsubscribe(symbol string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.set, symbol)
	a.unsubs = append(a.unsubs, symbol)
}

func (a *fakeFeedAdapter) Subscribed() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.set))
	for symbol := range a.set {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}

func (a *fakeFeedAdapter) commands() (subs, unsubs []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.subs...), append([]string(nil), a.unsubs...)
}
