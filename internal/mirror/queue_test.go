package mirror

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestQueuePushPopFIFO(t *testing.T) {
	q := newTaskQueue()
	q.push(Task{Mirror: Mirror{ID: "a"}})
	q.push(Task{Mirror: Mirror{ID: "b"}})

	t1, ok := q.pop()
	assert.True(t, ok)
	assert.Equal(t, "a", t1.Mirror.ID)

	t2, ok := q.pop()
	assert.True(t, ok)
	assert.Equal(t, "b", t2.Mirror.ID)
}

func TestQueuePopBlocksUntilPush(t *testing.T) {
	q := newTaskQueue()
	done := make(chan Task, 1)
	go func() {
		task, ok := q.pop()
		if ok {
			done <- task
		}
	}()

	time.Sleep(20 * time.Millisecond)
	q.push(Task{Mirror: Mirror{ID: "late"}})

	select {
	case task := <-done:
		assert.Equal(t, "late", task.Mirror.ID)
	case <-time.After(time.Second):
		t.Fatal("pop did not unblock on push")
	}
}

func TestQueueCloseUnblocksPop(t *testing.T) {
	q := newTaskQueue()
	done := make(chan bool, 1)
	go func() {
		_, ok := q.pop()
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	q.close()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("pop did not unblock on close")
	}
}
