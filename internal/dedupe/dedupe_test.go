package dedupe

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSet_Add(t *testing.T) {
	t.Parallel()

	var s Set[CourseKey]
	k := CourseKey{CourseID: "CS 6313", URL: "https://catalog.example/cs"}

	assert.True(t, s.Add(k))
	assert.False(t, s.Add(k))
	assert.True(t, s.Add(CourseKey{CourseID: "CS 6313", URL: "https://catalog.example/ba"}))
	assert.True(t, s.Has(k))
	assert.False(t, s.Has(CourseKey{CourseID: "CS 1"}))
	assert.Equal(t, 2, s.Len())
}

func TestSet_Concurrent(t *testing.T) {
	t.Parallel()

	var s Set[string]
	var wg sync.WaitGroup
	var mu sync.Mutex
	firsts := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Add("cs6313") {
				mu.Lock()
				firsts++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, firsts)
}
