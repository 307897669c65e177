package coinbase

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"sync"

	"ob-sync/internal/dtos"
)

// PairManager is the replication side the subscriber drives.
type PairManager interface {
	Subscribe(ctx context.Context, currency string)
	Unsubscribe(currency string) bool
	Reset() []string
}

// Subscriber tracks the products the service replicates. Feed subscriptions are sent on
// every connection; an order book is started once the exchange acknowledges its product.
type Subscriber struct {
	PairManager

	requests chan<- []byte
	channels []string
	signer   *Signer

	mu       sync.Mutex
	ctx      context.Context
	products []string
	started  map[string]bool
}

// NewSubscriber takes the initial products; signer may be nil for an unauthenticated feed.
func NewSubscriber(requests chan<- []byte, manager PairManager, channels, products []string, signer *Signer) *Subscriber {
	return &Subscriber{
		PairManager: manager,
		requests:    requests,
		channels:    channels,
		signer:      signer,
		products:    slices.Clone(products),
		started:     make(map[string]bool),
	}
}

func (s *Subscriber) SubscribeToCurrPair(ctx context.Context, currencyPair string) error {
	s.mu.Lock()
	if slices.Contains(s.products, currencyPair) {
		s.mu.Unlock()

		return nil
	}

	s.products = append(s.products, currencyPair)
	connected := s.ctx != nil
	s.mu.Unlock()

	slog.Info("Subscription currency pair", "curr pair", currencyPair)

	if !connected {
		return nil
	}

	return s.send(ctx, subscribe, []string{currencyPair})
}

func (s *Subscriber) UnsubscribeToCurrPair(ctx context.Context, currencyPair string) error {
	s.mu.Lock()
	idx := slices.Index(s.products, currencyPair)
	if idx < 0 {
		s.mu.Unlock()

		return nil
	}

	s.products = slices.Delete(s.products, idx, idx+1)
	delete(s.started, currencyPair)
	connected := s.ctx != nil
	s.mu.Unlock()

	s.Unsubscribe(currencyPair)
	slog.Info("Unsubscribed currency pair", "curr pair", currencyPair)

	if !connected {
		return nil
	}

	return s.send(ctx, unsubscribe, []string{currencyPair})
}

func (s *Subscriber) ListSubscriptions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	products := slices.Clone(s.products)
	slices.Sort(products)

	return products
}

// Connected subscribes every tracked product on a fresh connection.
func (s *Subscriber) Connected(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.started = make(map[string]bool)
	products := slices.Clone(s.products)
	s.mu.Unlock()

	if len(products) == 0 {
		return nil
	}

	return s.send(ctx, subscribe, products)
}

// Disconnected drops every order book; they are rebuilt after the next acknowledgement.
func (s *Subscriber) Disconnected() {
	s.mu.Lock()
	s.ctx = nil
	s.started = make(map[string]bool)
	s.mu.Unlock()

	dropped := s.Reset()
	slog.Warn("Feed disconnected, order books dropped", "products", dropped)
}

// Acknowledged starts the order book of every tracked product the exchange confirmed.
func (s *Subscriber) Acknowledged(products []string) {
	s.mu.Lock()
	ctx := s.ctx

	var toStart []string

	for _, product := range products {
		if slices.Contains(s.products, product) && !s.started[product] {
			s.started[product] = true
			toStart = append(toStart, product)
		}
	}
	s.mu.Unlock()

	if ctx == nil {
		return
	}

	for _, product := range toStart {
		slog.Info("Subscription acknowledged, loading order book", "curr pair", product)
		s.Subscribe(ctx, product)
	}
}

func (s *Subscriber) buildRequest(kind string, products []string) ([]byte, error) {
	request := dtos.SubscriptionRequest{
		Type:       kind,
		ProductIDs: products,
		Channels:   s.channels,
	}

	if s.signer != nil && kind == subscribe {
		if err := s.signer.Sign(&request); err != nil {
			return nil, err
		}
	}

	return json.Marshal(request)
}

func (s *Subscriber) send(ctx context.Context, kind string, products []string) error {
	request, err := s.buildRequest(kind, products)
	if err != nil {
		slog.Error("Error on building subscription request", "type", kind, "Error", err)

		return err
	}

	slog.Info("Subscription", "type", kind, "products", products)

	select {
	case s.requests <- request:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
