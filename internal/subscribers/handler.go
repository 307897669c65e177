package subscribers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"ob-sync/internal/dtos"

	"github.com/gorilla/websocket"
)

const writeTimeout = 5 * time.Second

var errUnknownUser = errors.New("user not connected")

// Store provides abstraction of the subscribed user store for the application.
type Store interface {
	AddUser(conn *websocket.Conn, user *User)
	RemoveUser(conn *websocket.Conn)
	GetUser(conn *websocket.Conn) *User
	SubUser(conn *websocket.Conn, currPair string, sub bool)
	GetSubscribedUsedList(currency string) []*User
}

type User struct {
	currPairs []string
	conn      *websocket.Conn
	mu        sync.Mutex
	// events of products whose book is still being read for this user
	held map[string][][]byte
}

// Write sends one text frame; a connection allows a single writer at a time.
func (u *User) Write(message []byte) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	return u.writeLocked(message)
}

// deliver writes a product event, or keeps it back while the product's book is being read.
func (u *User) deliver(currPair string, message []byte) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if held, ok := u.held[currPair]; ok {
		u.held[currPair] = append(held, message)

		return nil
	}

	return u.writeLocked(message)
}

func (u *User) hold(currPair string) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.held == nil {
		u.held = make(map[string][][]byte)
	}

	if _, ok := u.held[currPair]; !ok {
		u.held[currPair] = [][]byte{}
	}
}

// release writes first, then every event held back for the product.
func (u *User) release(currPair string, first []byte) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	held := u.held[currPair]
	delete(u.held, currPair)

	if err := u.writeLocked(first); err != nil {
		return err
	}

	for _, message := range held {
		if err := u.writeLocked(message); err != nil {
			return err
		}
	}

	return nil
}

func (u *User) writeLocked(message []byte) error {
	_ = u.conn.SetWriteDeadline(time.Now().Add(writeTimeout))

	return u.conn.WriteMessage(websocket.TextMessage, message)
}

type Handler struct {
	Store
}

func NewHandler(store Store) *Handler {
	return &Handler{
		Store: store,
	}
}

func (h *Handler) AddNewUser(conn *websocket.Conn) {
	user := &User{
		conn: conn,
	}
	h.AddUser(conn, user)
}

// SubscribeUser registers the subscription and sends the current book, which is
// guaranteed to reach the user before any later event of the product. Events pushed
// while initial runs are held and sent right after the book; initial must not be
// called under the user lock since reading a book may wait on the event dispatcher.
func (h *Handler) SubscribeUser(conn *websocket.Conn, currPair string, initial func() []byte) error {
	user := h.GetUser(conn)
	if user == nil {
		return errUnknownUser
	}

	user.hold(currPair)
	h.SubUser(conn, currPair, true)

	return user.release(currPair, initial())
}

func (h *Handler) UnsubscribeUser(conn *websocket.Conn, currPair string) {
	h.SubUser(conn, currPair, false)
}

func (h *Handler) SendToUser(conn *websocket.Conn, message []byte) error {
	user := h.GetUser(conn)
	if user == nil {
		return errUnknownUser
	}

	return user.Write(message)
}

func (h *Handler) PushEventToUsers(message []byte, currency string) {
	subUsersList := h.GetSubscribedUsedList(currency)
	for _, user := range subUsersList {
		err := user.deliver(currency, message)
		if err != nil {
			slog.Error("Error on Writing to Websocket", "curr pair", currency, "Error", err)
		}
	}
}

// HandleEvent forwards stream messages as received and lifecycle events as notices.
func (h *Handler) HandleEvent(event dtos.Event) {
	if event.Kind == dtos.EventMessage {
		h.PushEventToUsers(event.Payload, event.Instrument)

		return
	}

	notice := dtos.LifecycleNotice{Type: event.Kind.String(), ProductID: event.Instrument}
	if event.Err != nil {
		notice.Error = event.Err.Error()
	}

	message, err := json.Marshal(notice)
	if err != nil {
		slog.Error("Error on marshalling notice", "curr pair", event.Instrument, "Error", err)

		return
	}

	h.PushEventToUsers(message, event.Instrument)
}
