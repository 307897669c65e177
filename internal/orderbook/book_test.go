package orderbook

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"ob-sync/internal/dtos"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func open(id string, side Side, price, size string) Delta {
	return Delta{Kind: Open, Key: OrderID(id), Side: side, Price: d(price), Size: d(size)}
}

func level(price, size string) Level {
	return Level{Price: d(price), Size: d(size)}
}

func assertLevels(t *testing.T, want, got []Level) {
	t.Helper()

	require.Equal(t, len(want), len(got), "levels %v", got)

	for i := range want {
		assert.True(t, want[i].Price.Equal(got[i].Price), "price at %d: want %s got %s", i, want[i].Price, got[i].Price)
		assert.True(t, want[i].Size.Equal(got[i].Size), "size at %d: want %s got %s", i, want[i].Size, got[i].Size)
	}
}

func TestBook_OpenThenChange(t *testing.T) {
	b := NewBook("BTC-USD")
	require.NoError(t, b.ApplySnapshot(Snapshot{}))

	require.NoError(t, b.ApplyDelta(open("1", Bid, "10", "5")))
	require.NoError(t, b.ApplyDelta(Delta{Kind: Change, Key: OrderID("1"), Size: d("2")}))

	state := b.State()
	assertLevels(t, []Level{level("10", "2")}, state.Bids)
	assert.Empty(t, state.Asks)
	assert.NotNil(t, state.Asks)
}

func TestBook_ChangeToZeroRemoves(t *testing.T) {
	b := NewBook("BTC-USD")
	require.NoError(t, b.ApplyDelta(open("1", Ask, "10", "5")))
	require.NoError(t, b.ApplyDelta(Delta{Kind: Change, Key: OrderID("1"), Size: d("0")}))

	assert.Empty(t, b.State().Asks)
	assert.Equal(t, 0, b.OrderCount())
}

func TestBook_DuplicateOpen(t *testing.T) {
	b := NewBook("BTC-USD")
	require.NoError(t, b.ApplyDelta(open("1", Bid, "10", "5")))

	err := b.ApplyDelta(open("1", Bid, "11", "1"))
	require.ErrorIs(t, err, ErrDuplicateOrder)
	assertLevels(t, []Level{level("10", "5")}, b.State().Bids)
}

func TestBook_ZeroSizeOpen(t *testing.T) {
	b := NewBook("BTC-USD")

	require.NoError(t, b.ApplyDelta(open("1", Bid, "10", "0")))
	assert.Zero(t, b.OrderCount())

	require.NoError(t, b.ApplyDelta(open("2", Bid, "10", "1")))
	err := b.ApplyDelta(open("2", Bid, "10", "0"))
	require.ErrorIs(t, err, ErrDuplicateOrder)
	assertLevels(t, []Level{level("10", "1")}, b.State().Bids)
}

func TestBook_ChangeUnknownOrder(t *testing.T) {
	b := NewBook("BTC-USD")

	err := b.ApplyDelta(Delta{Kind: Change, Key: OrderID("nope"), Size: d("1")})
	require.ErrorIs(t, err, ErrUnknownOrder)
}

func TestBook_MatchUnknownMakerLeavesBookUnchanged(t *testing.T) {
	b := NewBook("BTC-USD")
	require.NoError(t, b.ApplyDelta(open("1", Ask, "10", "5")))
	before := b.State()

	err := b.ApplyDelta(Delta{Kind: Match, Key: OrderID("999"), Size: d("1")})
	require.ErrorIs(t, err, ErrUnknownOrder)
	assert.Equal(t, before, b.State())
}

func TestBook_MatchReducesAndRemoves(t *testing.T) {
	b := NewBook("BTC-USD")
	require.NoError(t, b.ApplyDelta(open("1", Ask, "10", "5")))
	require.NoError(t, b.ApplyDelta(open("2", Ask, "10", "1")))

	require.NoError(t, b.ApplyDelta(Delta{Kind: Match, Key: OrderID("1"), Size: d("2")}))
	assertLevels(t, []Level{level("10", "4")}, b.State().Asks)

	// overfill consumes only what rests
	require.NoError(t, b.ApplyDelta(Delta{Kind: Match, Key: OrderID("1"), Size: d("7")}))
	assertLevels(t, []Level{level("10", "1")}, b.State().Asks)
	assert.Equal(t, 1, b.OrderCount())
}

func TestBook_DoneIsIdempotent(t *testing.T) {
	b := NewBook("BTC-USD")
	require.NoError(t, b.ApplyDelta(open("1", Bid, "10", "5")))

	require.NoError(t, b.ApplyDelta(Delta{Kind: Done, Key: OrderID("1")}))
	require.NoError(t, b.ApplyDelta(Delta{Kind: Done, Key: OrderID("1")}))
	require.NoError(t, b.ApplyDelta(Delta{Kind: Done, Key: OrderID("never-opened")}))

	assert.Empty(t, b.State().Bids)
}

func TestBook_SnapshotCrossed(t *testing.T) {
	b := NewBook("BTC-USD")

	err := b.ApplySnapshot(Snapshot{
		Bids: []SnapshotLevel{{Price: d("100"), Size: d("1")}},
		Asks: []SnapshotLevel{{Price: d("99"), Size: d("1")}},
	})
	require.ErrorIs(t, err, ErrInvalidSnapshot)

	state := b.State()
	assert.Empty(t, state.Bids)
	assert.Empty(t, state.Asks)
}

func TestBook_SnapshotLockedIsCrossed(t *testing.T) {
	b := NewBook("BTC-USD")

	err := b.ApplySnapshot(Snapshot{
		Bids: []SnapshotLevel{{Price: d("100"), Size: d("1")}},
		Asks: []SnapshotLevel{{Price: d("100"), Size: d("1")}},
	})
	require.ErrorIs(t, err, ErrInvalidSnapshot)
}

func TestBook_SnapshotNegative(t *testing.T) {
	b := NewBook("BTC-USD")
	require.NoError(t, b.ApplyDelta(open("1", Bid, "10", "5")))

	err := b.ApplySnapshot(Snapshot{Asks: []SnapshotLevel{{Price: d("100"), Size: d("-1")}}})
	require.ErrorIs(t, err, ErrInvalidSnapshot)

	// a rejected snapshot leaves the book empty
	assert.Empty(t, b.State().Bids)
	assert.Equal(t, 0, b.OrderCount())
}

func TestBook_SnapshotSyntheticLevels(t *testing.T) {
	b := NewBook("BTC-USD")
	require.NoError(t, b.ApplySnapshot(Snapshot{
		Sequence: 42,
		Bids: []SnapshotLevel{
			{Price: d("99"), Size: d("2")},
			{Price: d("98"), Size: d("1")},
			{Price: d("99.0"), Size: d("1")},
			{Price: d("97"), Size: d("0")},
		},
		Asks: []SnapshotLevel{{Price: d("101"), Size: d("4")}},
	}))

	assert.Equal(t, int64(42), b.Sequence())
	assert.Equal(t, 3, b.OrderCount())
	assertLevels(t, []Level{level("99", "3"), level("98", "1")}, b.State().Bids)

	// a real order joins the synthetic level
	require.NoError(t, b.ApplyDelta(open("a", Bid, "99", "5")))
	assertLevels(t, []Level{level("99", "8"), level("98", "1")}, b.State().Bids)

	// the synthetic entry degrades like any order
	synthetic := SyntheticKey(Bid, d("99"))
	require.NoError(t, b.ApplyDelta(Delta{Kind: Match, Key: synthetic, Size: d("1")}))
	require.NoError(t, b.ApplyDelta(Delta{Kind: Done, Key: SyntheticKey(Bid, d("98"))}))
	assertLevels(t, []Level{level("99", "7")}, b.State().Bids)

	require.NoError(t, b.ApplyDelta(Delta{Kind: Change, Key: synthetic, Size: d("0")}))
	assertLevels(t, []Level{level("99", "5")}, b.State().Bids)
}

func TestBook_SyntheticKeyNeverCollidesWithOrderID(t *testing.T) {
	b := NewBook("BTC-USD")
	require.NoError(t, b.ApplySnapshot(Snapshot{Asks: []SnapshotLevel{{Price: d("10"), Size: d("1")}}}))

	key := SyntheticKey(Ask, d("10"))
	require.NoError(t, b.ApplyDelta(open(key.String(), Ask, "10", "2")))
	require.NoError(t, b.ApplyDelta(open(key.Price, Ask, "10", "3")))

	assertLevels(t, []Level{level("10", "6")}, b.State().Asks)
	assert.Equal(t, 3, b.OrderCount())
}

func TestBook_SnapshotLevel3(t *testing.T) {
	b := NewBook("BTC-USD")
	require.NoError(t, b.ApplySnapshot(Snapshot{
		Bids: []SnapshotLevel{
			{Price: d("99"), Size: d("2"), OrderID: "a"},
			{Price: d("99"), Size: d("1"), OrderID: "b"},
		},
	}))

	require.NoError(t, b.ApplyDelta(Delta{Kind: Done, Key: OrderID("a")}))
	assertLevels(t, []Level{level("99", "1")}, b.State().Bids)

	err := b.ApplySnapshot(Snapshot{
		Bids: []SnapshotLevel{{Price: d("99"), Size: d("2"), OrderID: "a"}},
		Asks: []SnapshotLevel{{Price: d("100"), Size: d("2"), OrderID: "a"}},
	})
	require.ErrorIs(t, err, ErrInvalidSnapshot)
	require.ErrorIs(t, err, ErrDuplicateOrder)
}

func TestParseSnapshot(t *testing.T) {
	snap, err := ParseSnapshot(&dtos.Snapshot{
		Sequence: 7,
		Bids:     [][]string{{"100.5", "1.25", "order-1"}},
		Asks:     [][]string{{"101", "2"}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), snap.Sequence)
	assert.Equal(t, "order-1", snap.Bids[0].OrderID)
	assert.Equal(t, "", snap.Asks[0].OrderID)

	for _, raw := range []*dtos.Snapshot{
		nil,
		{Bids: [][]string{{"abc", "1"}}},
		{Asks: [][]string{{"1", "lots"}}},
		{Asks: [][]string{{"1"}}},
	} {
		_, err := ParseSnapshot(raw)
		assert.ErrorIs(t, err, ErrInvalidSnapshot)
	}
}

func TestConsumesSequence(t *testing.T) {
	for _, msgType := range []string{"received", "open", "change", "match", "done", "activate"} {
		assert.True(t, ConsumesSequence(msgType), msgType)
	}

	for _, msgType := range []string{"heartbeat", "subscriptions", "ticker", ""} {
		assert.False(t, ConsumesSequence(msgType), msgType)
	}
}

func TestDeltaFromMessage(t *testing.T) {
	tests := []struct {
		name    string
		msg     dtos.Message
		kind    DeltaKind
		handled bool
		wantErr bool
	}{
		{"open", dtos.Message{Type: "open", OrderID: "1", Side: "buy", Price: "10", RemainingSize: "2"}, Open, true, false},
		{"open with size", dtos.Message{Type: "open", OrderID: "1", Side: "sell", Price: "10", Size: "2"}, Open, true, false},
		{"open bad side", dtos.Message{Type: "open", OrderID: "1", Side: "up", Price: "10", Size: "2"}, 0, true, true},
		{"open negative price", dtos.Message{Type: "open", OrderID: "1", Side: "buy", Price: "-1", Size: "2"}, 0, true, true},
		{"change", dtos.Message{Type: "change", OrderID: "1", NewSize: "3"}, Change, true, false},
		{"change without size", dtos.Message{Type: "change", OrderID: "1"}, 0, true, true},
		{"market order change", dtos.Message{Type: "change", OrderID: "1", NewFunds: "5.00", OldFunds: "10.00"}, 0, false, false},
		{"match", dtos.Message{Type: "match", MakerOrderID: "1", TakerOrderID: "2", Size: "1"}, Match, true, false},
		{"match without maker", dtos.Message{Type: "match", Size: "1"}, 0, true, true},
		{"done", dtos.Message{Type: "done", OrderID: "1"}, Done, true, false},
		{"received", dtos.Message{Type: "received", OrderID: "1"}, 0, false, false},
		{"typeless", dtos.Message{}, 0, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.msg
			delta, handled, err := DeltaFromMessage(&msg)

			assert.Equal(t, tt.handled, handled)

			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidMessage)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.kind, delta.Kind)
		})
	}
}

// Every aggregate in the ledgers equals the sum of the live orders resting at that price,
// whatever sequence of mutations produced it.
func TestBook_RandomizedAggregateInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for round := 0; round < 20; round++ {
		b := NewBook("BTC-USD")
		live := make(map[string]Order)
		nextID := 0

		for step := 0; step < 500; step++ {
			var delta Delta

			ids := make([]string, 0, len(live))
			for id := range live {
				ids = append(ids, id)
			}

			pick := func() string {
				if len(ids) == 0 || rng.Intn(10) == 0 {
					return fmt.Sprintf("ghost-%d", rng.Intn(5))
				}

				return ids[rng.Intn(len(ids))]
			}

			switch rng.Intn(4) {
			case 0:
				nextID++
				side := Side(rng.Intn(2))
				price := decimal.NewFromInt(int64(90 + rng.Intn(20)))
				size := decimal.NewFromInt(int64(1 + rng.Intn(9))).Div(decimal.NewFromInt(4))
				delta = Delta{Kind: Open, Key: OrderID(fmt.Sprint(nextID)), Side: side, Price: price, Size: size}
			case 1:
				delta = Delta{Kind: Change, Key: OrderID(pick()), Size: decimal.NewFromInt(int64(rng.Intn(6)))}
			case 2:
				delta = Delta{Kind: Match, Key: OrderID(pick()), Size: decimal.NewFromInt(int64(1 + rng.Intn(3)))}
			case 3:
				delta = Delta{Kind: Done, Key: OrderID(pick())}
			}

			err := b.ApplyDelta(delta)
			if err != nil && !errors.Is(err, ErrUnknownOrder) {
				t.Fatalf("round %d step %d: %v", round, step, err)
			}

			applyModel(live, delta)
			checkAggregates(t, b, live)
		}
	}
}

func applyModel(live map[string]Order, delta Delta) {
	id := delta.Key.ID
	order, ok := live[id]

	switch delta.Kind {
	case Open:
		live[id] = Order{Key: delta.Key, Side: delta.Side, Price: delta.Price, Size: delta.Size}
	case Change:
		if !ok {
			return
		}

		if !delta.Size.IsPositive() {
			delete(live, id)

			return
		}

		order.Size = delta.Size
		live[id] = order
	case Match:
		if !ok {
			return
		}

		order.Size = order.Size.Sub(delta.Size)
		if !order.Size.IsPositive() {
			delete(live, id)

			return
		}

		live[id] = order
	case Done:
		delete(live, id)
	}
}

func checkAggregates(t *testing.T, b *Book, live map[string]Order) {
	t.Helper()

	want := map[Side]map[string]decimal.Decimal{Bid: {}, Ask: {}}
	for _, o := range live {
		key := o.Price.String()
		want[o.Side][key] = want[o.Side][key].Add(o.Size)
	}

	state := b.State()
	for side, levels := range map[Side][]Level{Bid: state.Bids, Ask: state.Asks} {
		require.Equal(t, len(want[side]), len(levels), "%s level count", side)

		for _, lvl := range levels {
			expected, ok := want[side][lvl.Price.String()]
			require.True(t, ok, "unexpected %s level %s", side, lvl.Price)
			require.True(t, expected.Equal(lvl.Size), "%s level %s: want %s got %s", side, lvl.Price, expected, lvl.Size)
		}
	}

	assert.Equal(t, len(live), b.OrderCount())
}
