package runtime

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeyedMutex_Serializes_Same_Key(t *testing.T) {
	req := require.New(t)
	km := NewKeyedMutex()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("c1")
			defer unlock()
			// Not atomic on purpose: the lock is the only protection
			v := counter
			counter = v + 1
		}()
	}
	wg.Wait()

	req.Equal(100, counter)
	// Then no entry is leaked once every holder released the key
	req.Equal(0, km.size())
}

func TestKeyedMutex_Different_Keys_Do_Not_Block(t *testing.T) {
	req := require.New(t)
	km := NewKeyedMutex()

	unlockA := km.Lock("a")
	done := make(chan struct{})
	go func() {
		unlock := km.Lock("b")
		unlock()
		close(done)
	}()
	<-done
	unlockA()
	req.Equal(0, km.size())
}
