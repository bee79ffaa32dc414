package service

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutex(t *testing.T) {
	k := newKeyedMutex()
	counter := map[string]int{}
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		key := "a"
		if i%2 == 0 {
			key = "b"
		}
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			unlock := k.Lock(key)
			defer unlock()
			counter[key]++
		}(key)
	}
	wg.Wait()

	assert.Equal(t, 25, counter["a"])
	assert.Equal(t, 25, counter["b"])
	assert.Equal(t, 0, k.size())
}
