package livemerge

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	id     string
	ts     time.Time
	hidden bool
}

func itemOptions() Options[item] {
	return Options[item]{
		ID:        func(i item) string { return i.id },
		Timestamp: func(i item) time.Time { return i.ts },
		Visible:   func(i item) bool { return !i.hidden },
	}
}

func ids(items []item) []string {
	out := make([]string, 0, len(items))
	for _, i := range items {
		out = append(out, i.id)
	}
	return out
}

func TestMergeOrdersAcrossSources(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		sourceA []item
		sourceB []item
		want    []string
	}{
		{
			name:    "interleaved timestamps",
			sourceA: []item{{id: "a1", ts: base}, {id: "a2", ts: base.Add(2 * time.Minute)}},
			sourceB: []item{{id: "b1", ts: base.Add(time.Minute)}, {id: "b2", ts: base.Add(3 * time.Minute)}},
			want:    []string{"a1", "b1", "a2", "b2"},
		},
		{
			name:    "later source arrives with earlier timestamp",
			sourceA: []item{{id: "a1", ts: base.Add(time.Minute)}},
			sourceB: []item{{id: "b1", ts: base}},
			want:    []string{"b1", "a1"},
		},
		{
			name:    "one source empty",
			sourceA: nil,
			sourceB: []item{{id: "b1", ts: base}},
			want:    []string{"b1"},
		},
		{
			name:    "equal timestamps break ties by id",
			sourceA: []item{{id: "z", ts: base}},
			sourceB: []item{{id: "a", ts: base}},
			want:    []string{"a", "z"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			merged := Merge(itemOptions(), tc.sourceA, tc.sourceB)
			assert.Equal(t, tc.want, ids(merged))
		})
	}
}

func TestMergeDeduplicatesAcrossSources(t *testing.T) {
	// The same document satisfying both subscribed queries (a
	// self-conversation) must appear exactly once.
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	shared := item{id: "m1", ts: base}

	merged := Merge(itemOptions(), []item{shared}, []item{shared, {id: "m2", ts: base.Add(time.Second)}})
	assert.Equal(t, []string{"m1", "m2"}, ids(merged))
}

func TestMergeFiltersVisibilityLast(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	merged := Merge(itemOptions(),
		[]item{{id: "m1", ts: base}, {id: "m2", ts: base.Add(time.Minute), hidden: true}},
		[]item{{id: "m3", ts: base.Add(2 * time.Minute)}},
	)
	assert.Equal(t, []string{"m1", "m3"}, ids(merged))
}

func TestMergerZeroTimestampUsesArrivalClock(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := base.Add(30 * time.Second)

	m := New(2, itemOptions(), nil)
	m.now = func() time.Time { return clock }

	// A pending element with no server timestamp sorts at its local
	// arrival instant.
	m.Set(0, []item{{id: "old", ts: base}, {id: "pending"}})
	require.Equal(t, []string{"old", "pending"}, ids(m.Snapshot()))

	// The pinned arrival instant is stable across re-merges even as the
	// clock advances, so the element does not reshuffle.
	clock = clock.Add(time.Hour)
	m.Set(1, []item{{id: "later", ts: base.Add(time.Minute)}})
	assert.Equal(t, []string{"old", "pending", "later"}, ids(m.Snapshot()))

	// Once the server timestamp arrives, it wins.
	m.Set(0, []item{{id: "old", ts: base}, {id: "pending", ts: base.Add(2 * time.Minute)}})
	assert.Equal(t, []string{"old", "later", "pending"}, ids(m.Snapshot()))
}

func TestMergerSetReplacesSourceWholesale(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	var views [][]string
	m := New(2, itemOptions(), func(merged []item) {
		views = append(views, ids(merged))
	})

	m.Set(0, []item{{id: "m1", ts: base}, {id: "m2", ts: base.Add(time.Minute)}})
	m.Set(0, []item{{id: "m2", ts: base.Add(time.Minute)}})

	require.Len(t, views, 2)
	assert.Equal(t, []string{"m1", "m2"}, views[0])
	assert.Equal(t, []string{"m2"}, views[1], "removed element must not linger after the swap")
}

func TestMergerResolveWritesArrivalInstantBack(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := base.Add(30 * time.Second)

	opts := itemOptions()
	opts.Resolve = func(i item, ts time.Time) item {
		i.ts = ts
		return i
	}

	m := New(1, opts, nil)
	m.now = func() time.Time { return clock }

	m.Set(0, []item{{id: "pending"}})
	got := m.Snapshot()
	require.Len(t, got, 1)
	assert.Equal(t, clock, got[0].ts, "a pending element carries its pinned arrival instant")

	// Re-merging with an advanced clock keeps the original instant, so
	// consumers grouping by date never see the element change buckets.
	pinned := clock
	clock = clock.Add(time.Hour)
	m.Set(0, []item{{id: "settled", ts: base}, {id: "pending"}})
	got = m.Snapshot()
	require.Equal(t, []string{"settled", "pending"}, ids(got))
	assert.Equal(t, pinned, got[1].ts)
}

func TestMergerConcurrentSetsDeliverCurrentStateLast(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for iter := 0; iter < 200; iter++ {
		var mu sync.Mutex
		var last []item
		m := New(2, itemOptions(), func(merged []item) {
			mu.Lock()
			last = merged
			mu.Unlock()
		})

		var wg sync.WaitGroup
		for source := 0; source < 2; source++ {
			wg.Add(1)
			go func(source int) {
				defer wg.Done()
				for n := 0; n < 10; n++ {
					items := make([]item, 0, n+1)
					for j := 0; j <= n; j++ {
						items = append(items, item{
							id: fmt.Sprintf("s%d-%d", source, j),
							ts: base.Add(time.Duration(source*100+j) * time.Second),
						})
					}
					m.Set(source, items)
				}
			}(source)
		}
		wg.Wait()

		mu.Lock()
		final := ids(last)
		mu.Unlock()
		assert.Equal(t, ids(m.Snapshot()), final,
			"the view delivered last must reflect the final merged state")
	}
}

func TestMergerLaterSourceWinsForDuplicates(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	m := New(2, itemOptions(), nil)
	m.Set(0, []item{{id: "m1", ts: base, hidden: true}})
	m.Set(1, []item{{id: "m1", ts: base}})

	// Source 1's copy replaced source 0's in place.
	assert.Equal(t, []string{"m1"}, ids(m.Snapshot()))
}
