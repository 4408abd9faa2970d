package bus

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSubscribeOrderPerTopic(t *testing.T) {
	b := New()
	defer b.Close()

	var mu sync.Mutex
	var received []int

	unsub := b.Subscribe("telemetry.node", "t1", func(msg Message) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, msg.Payload.(int))
	})
	defer unsub()

	for i := 0; i < 50; i++ {
		b.Publish("telemetry.node", i)
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 50
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for i, v := range received {
		assert.Equal(t, i, v, "bus delivery must be a prefix-preserving subsequence of publish order")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	defer b.Close()

	count := 0
	var mu sync.Mutex
	unsub := b.Subscribe("alerts", "s1", func(Message) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	b.Publish("alerts", "a")
	time.Sleep(10 * time.Millisecond)
	unsub()
	b.Publish("alerts", "b")
	time.Sleep(10 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count)
}

func TestPublishDropsOnFullQueueInsteadOfBlocking(t *testing.T) {
	b := New(WithBufferSize(1))
	defer b.Close()

	block := make(chan struct{})
	unsub := b.Subscribe("slow", "slow-sub", func(Message) {
		<-block
	})
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.Publish("slow", i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked despite bounded-queue backpressure policy")
	}
	close(block)

	assert.Greater(t, b.DropCount(), int64(0))
}

func TestSubscriberPanicDoesNotCrashBus(t *testing.T) {
	b := New()
	defer b.Close()

	var mu sync.Mutex
	secondCalled := false

	b.Subscribe("x", "panicky", func(Message) { panic("boom") })
	b.Subscribe("x", "ok", func(Message) {
		mu.Lock()
		secondCalled = true
		mu.Unlock()
	})

	b.Publish("x", 1)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return secondCalled
	}, time.Second, time.Millisecond)
}
