package coinbase

import "time"

const (
	subscribe, unsubscribe = "subscribe", "unsubscribe"
	subscriptionsType      = "subscriptions"
	errorType              = "error"

	verifyPath = "/users/self/verify"
	bookPath   = "/products/%s/book?level=3"

	handshakeTimeout = 10 * time.Second
	readTimeout      = 60 * time.Second
	baseDelay        = 1 * time.Second
	maxDelay         = 60 * time.Second
)
