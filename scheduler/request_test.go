/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package scheduler

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-slowrate/priorityqueue"
)

func TestCompareRequests(t *testing.T) {
	tests := []struct {
		Name string
		A, B request
		Want int
	}{
		{Name: "higher priority wins", A: request{priority: 10, seq: 5}, B: request{priority: 1, seq: 0}, Want: 1},
		{Name: "lower priority loses", A: request{priority: -1, seq: 0}, B: request{priority: 0, seq: 1}, Want: -1},
		{Name: "earlier submission wins", A: request{priority: 3, seq: 1}, B: request{priority: 3, seq: 2}, Want: 1},
		{Name: "later submission loses", A: request{priority: 3, seq: 2}, B: request{priority: 3, seq: 1}, Want: -1},
		{Name: "extreme priorities", A: request{priority: math.MaxInt}, B: request{priority: math.MinInt}, Want: 1},
		{Name: "same request", A: request{priority: 3, seq: 1}, B: request{priority: 3, seq: 1}, Want: 0},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.Name, func(t *testing.T) {
			require.Equal(t, tt.Want, compareRequests(&tt.A, &tt.B))
		})
	}
}

func TestCompareRequests_QueueOrder(t *testing.T) {
	q := priorityqueue.New(compareRequests)
	submitted := []struct {
		id       string
		priority int
	}{{"a", 0}, {"b", 100}, {"c", 0}, {"d", 50}, {"e", 100}}
	for i, s := range submitted {
		q.Push(&request{id: s.id, priority: s.priority, seq: uint64(i)})
	}

	var got []string
	for !q.IsEmpty() {
		r, _ := q.Pop()
		got = append(got, r.id)
	}
	require.Equal(t, []string{"b", "e", "d", "a", "c"}, got)
}

func TestState(t *testing.T) {
	tests := []struct {
		State        State
		WantString   string
		WantTerminal bool
	}{
		{StateWaiting, "waiting", false},
		{StateProcessing, "processing", false},
		{StateResolved, "resolved", true},
		{StateRejected, "rejected", true},
		{State(42), "unknown", false},
	}
	for _, tt := range tests {
		require.Equal(t, tt.WantString, tt.State.String())
		require.Equal(t, tt.WantTerminal, tt.State.IsTerminal())
	}
}
