package upstream

import (
	"context"

	"golang.org/x/sync/errgroup"
)

const bufferedMsgsSize = 20000

// data source connector abstraction for the upstream client
type Connector interface {
	ConnectToServer(ctx context.Context, bufferedMsgs chan<- []byte) error
	SendRequests(ctx context.Context) error
	CloseConnection() error
}

// data source message processor abstraction for the upstream client
type Processor interface {
	ProcessMessage(ctx context.Context, bufferedMsgs <-chan []byte) error
}

// Subs handler abstraction for the upstream client
type Subscriber interface {
	SubscribeToCurrPair(ctx context.Context, currencyPair string) error
	UnsubscribeToCurrPair(ctx context.Context, currencyPair string) error
	ListSubscriptions() []string
}

type Upstream struct {
	ws   Connector
	proc Processor
	subs Subscriber
}

func NewUpstream(ws Connector, proc Processor, subs Subscriber) *Upstream {
	return &Upstream{
		ws:   ws,
		proc: proc,
		subs: subs,
	}
}

// initialize the upstream
func (u *Upstream) initUpstream(ctx context.Context, g *errgroup.Group) {
	bufferedMsgs := make(chan []byte, bufferedMsgsSize)

	// connection loop, reconnects until ctx is done
	g.Go(func() error {
		return u.ws.ConnectToServer(ctx, bufferedMsgs)
	})

	// separate goroutine to decode and route messages in arrival order
	g.Go(func() error {
		return u.proc.ProcessMessage(ctx, bufferedMsgs)
	})

	// separate goroutine to send requests
	g.Go(func() error {
		return u.ws.SendRequests(ctx)
	})
}

func (u *Upstream) closeUpstream() error {
	return u.ws.CloseConnection()
}
