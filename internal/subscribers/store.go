package subscribers

import (
	"log/slog"
	"slices"
	"sync"

	"ob-sync/internal/metrics"

	"github.com/gorilla/websocket"
)

type UserStore struct {
	usersList map[*websocket.Conn]*User
	mu        sync.Mutex
}

func NewUserStore() *UserStore {
	usersList := make(map[*websocket.Conn]*User)
	return &UserStore{
		usersList: usersList,
	}
}

func (s *UserStore) AddUser(conn *websocket.Conn, user *User) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.usersList[conn] = user
	metrics.DownstreamUsers.Set(float64(len(s.usersList)))
}

func (s *UserStore) RemoveUser(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.usersList, conn)
	metrics.DownstreamUsers.Set(float64(len(s.usersList)))
}

func (s *UserStore) GetUser(conn *websocket.Conn) *User {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.usersList[conn]
}

func (s *UserStore) SubUser(conn *websocket.Conn, currPair string, sub bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	subUser, ok := s.usersList[conn]
	if !ok {
		return
	}

	if sub {
		if !slices.Contains(subUser.currPairs, currPair) {
			subUser.currPairs = append(subUser.currPairs, currPair)
		}
	} else {
		subUser.currPairs = slices.DeleteFunc(subUser.currPairs, func(curr string) bool {
			return curr == currPair
		})
	}
	slog.Info("User Subscription", "List", subUser.currPairs)
}

// get list of users subscribed to the currency pair
func (s *UserStore) GetSubscribedUsedList(currency string) []*User {
	subUsersList := []*User{}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.usersList {
		if slices.Contains(user.currPairs, currency) {
			subUsersList = append(subUsersList, user)
		}
	}
	return subUsersList
}
