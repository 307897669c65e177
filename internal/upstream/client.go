package upstream

import (
	"context"

	"ob-sync/internal/config"
	"ob-sync/internal/processors"
	"ob-sync/internal/upstream/coinbase"

	"golang.org/x/sync/errgroup"
)

const requestsSize = 64

// Manager is the order book side fed by the upstream client.
type Manager interface {
	coinbase.PairManager
	coinbase.MessageHandler
	Status() map[string]processors.Status
}

type Client struct {
	upstream *Upstream
	manager  Manager
}

// wire everything on upstream and return the client struct
func NewClient(cfg config.ExchangeConfig, manager Manager) *Client {
	requests := make(chan []byte, requestsSize)

	var signer *coinbase.Signer
	if cfg.Authenticated() {
		signer = coinbase.NewSigner(cfg.Key, cfg.Secret, cfg.Passphrase)
	}

	coinbaseWS := coinbase.NewWSClient(cfg.WSURL, requests)
	coinbaseSubscriber := coinbase.NewSubscriber(requests, manager, cfg.Channels, cfg.Products, signer)
	coinbaseProcessor := coinbase.NewProcessor(manager, coinbaseSubscriber)

	coinbaseWS.SetListener(coinbaseSubscriber)

	return &Client{
		upstream: NewUpstream(coinbaseWS, coinbaseProcessor, coinbaseSubscriber),
		manager:  manager,
	}
}

func (c *Client) InitClient(ctx context.Context, g *errgroup.Group) {
	c.upstream.initUpstream(ctx, g)
}

func (c *Client) Subscribe(ctx context.Context, currencyPair string) error {
	return c.upstream.subs.SubscribeToCurrPair(ctx, currencyPair)
}

func (c *Client) Unsubscribe(ctx context.Context, currencyPair string) error {
	return c.upstream.subs.UnsubscribeToCurrPair(ctx, currencyPair)
}

// Products lists the products followed on the feed, sorted.
func (c *Client) Products() []string {
	return c.upstream.subs.ListSubscriptions()
}

// Status reports the replication state of every book currently held.
func (c *Client) Status() map[string]processors.Status {
	return c.manager.Status()
}

func (c *Client) CloseClient() error {
	return c.upstream.closeUpstream()
}
