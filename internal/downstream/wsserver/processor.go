package wsserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"ob-sync/internal/dtos"
	"ob-sync/internal/processors"

	"github.com/gorilla/websocket"
)

// abstraction of subscription user manager for the downstream server
type SubscriptionManager interface {
	AddNewUser(conn *websocket.Conn)
	RemoveUser(conn *websocket.Conn)
	SubscribeUser(conn *websocket.Conn, currPair string, initial func() []byte) error
	UnsubscribeUser(conn *websocket.Conn, currPair string)
	SendToUser(conn *websocket.Conn, message []byte) error
}

// abstraction of orderbook for the downstream server
type OBReader interface {
	GetOrderBook(curr string) ([]byte, bool)
}

// abstraction of the upstream product subscriptions for the downstream server
type ProductManager interface {
	Subscribe(ctx context.Context, currencyPair string) error
	Unsubscribe(ctx context.Context, currencyPair string) error
	Products() []string
	Status() map[string]processors.Status
}

type productList struct {
	Products []string                     `json:"products"`
	Books    map[string]processors.Status `json:"books"`
}

type RequestProcessor struct {
	obReader OBReader
	subs     SubscriptionManager
	products ProductManager
}

func NewProcessor(obReader OBReader, subs SubscriptionManager, products ProductManager) *RequestProcessor {
	return &RequestProcessor{
		obReader: obReader,
		subs:     subs,
		products: products,
	}
}

func (p *RequestProcessor) handleConnection(conn *websocket.Conn) {

	// remove user from the store when closing the connection
	defer func() {
		p.subs.RemoveUser(conn)
		err := conn.Close()
		if err != nil {
			slog.Error("Error on Closing the Connection", "error", err)
		}
	}()

	// separate user for each connection to manage subscriptions
	p.subs.AddNewUser(conn)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Error("Error Reading Message. ", "error", err)
			}
			break
		}

		msgArgs := strings.Fields(string(message))

		slog.Info("Message Received: ", "message", string(message))

		if len(msgArgs) != 2 {
			p.reply(conn, message)
			continue
		}

		switch msgArgs[0] {
		case subscribe:
			p.handleSubscription(conn, msgArgs[1])
		case unsubscribe:
			p.handleUnsubscription(conn, msgArgs[1])
		default:
			slog.Info("Unknown command received")
			p.reply(conn, message)
		}
	}
}

// handle user subscription request. add currency subscription to the user and send latest orderbook
func (p *RequestProcessor) handleSubscription(conn *websocket.Conn, currPair string) {
	slog.Info("Order Book Subscription Requested", "curr pair", currPair)

	if _, ok := p.obReader.GetOrderBook(currPair); !ok {
		p.reply(conn, notice(currPair, "unknown product"))

		return
	}

	err := p.subs.SubscribeUser(conn, currPair, func() []byte {
		book, ok := p.obReader.GetOrderBook(currPair)
		if !ok {
			return notice(currPair, "unknown product")
		}

		return book
	})
	if err != nil {
		slog.Error("Error Writing Message: ", "error", err)
	}
}

// handle user unsubscription request. remove currency subscription from the user
func (p *RequestProcessor) handleUnsubscription(conn *websocket.Conn, currPair string) {
	slog.Info("Order Book Unsubscription Requested", "curr pair", currPair)
	p.subs.UnsubscribeUser(conn, currPair)
}

// serve the latest orderbook of a product over plain http
func (p *RequestProcessor) bookHandler(w http.ResponseWriter, r *http.Request) {
	currPair := r.PathValue("product")

	book, ok := p.obReader.GetOrderBook(currPair)
	if !ok {
		http.Error(w, "unknown product "+currPair, http.StatusNotFound)

		return
	}

	w.Header().Set("Content-Type", "application/json")

	if _, err := w.Write(book); err != nil {
		slog.Error("Error Writing Response", "curr pair", currPair, "Error", err)
	}
}

// list the products followed upstream with the state of their books
func (p *RequestProcessor) productsHandler(w http.ResponseWriter, r *http.Request) {
	body, err := json.Marshal(productList{Products: p.products.Products(), Books: p.products.Status()})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "application/json")

	if _, err := w.Write(body); err != nil {
		slog.Error("Error Writing Response", "Error", err)
	}
}

// follow a product upstream; its book starts once the exchange confirms the subscription
func (p *RequestProcessor) subscribeHandler(w http.ResponseWriter, r *http.Request) {
	currPair := r.PathValue("product")
	slog.Info("Upstream Subscription Requested", "curr pair", currPair)

	if err := p.products.Subscribe(r.Context(), currPair); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)

		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// stop following a product upstream and drop its book
func (p *RequestProcessor) unsubscribeHandler(w http.ResponseWriter, r *http.Request) {
	currPair := r.PathValue("product")
	slog.Info("Upstream Unsubscription Requested", "curr pair", currPair)

	if err := p.products.Unsubscribe(r.Context(), currPair); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (p *RequestProcessor) reply(conn *websocket.Conn, message []byte) {
	if err := p.subs.SendToUser(conn, message); err != nil {
		slog.Error("Error Writing Message: ", "error", err)
	}
}

func notice(currPair, reason string) []byte {
	message, _ := json.Marshal(dtos.LifecycleNotice{Type: "error", ProductID: currPair, Error: reason})

	return message
}
