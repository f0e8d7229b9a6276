package loop

import (
	"context"
	"errors"
	"testing"
	"time"
)

func start(t *testing.T) (*Loop, context.CancelFunc) {
	t.Helper()
	l := New()
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-l.Done()
	})
	return l, cancel
}

func TestTasksRunInOrder(t *testing.T) {
	l, _ := start(t)

	var got []int
	for i := range 100 {
		l.Post(func() { got = append(got, i) })
	}
	if err := l.Call(func() {}); err != nil {
		t.Fatalf("Call() error = %v", err)
	}

	if len(got) != 100 {
		t.Fatalf("ran %d tasks, want 100", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("task %d ran at position %d", v, i)
		}
	}
}

func TestPostFromTaskRunsAfterCurrent(t *testing.T) {
	l, _ := start(t)

	var got []string
	done := make(chan struct{})
	l.Post(func() {
		l.Post(func() {
			got = append(got, "nested")
			close(done)
		})
		got = append(got, "outer")
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("nested task never ran")
	}
	if len(got) != 2 || got[0] != "outer" || got[1] != "nested" {
		t.Errorf("order = %v", got)
	}
}

func TestAfter(t *testing.T) {
	l, _ := start(t)

	fired := make(chan struct{})
	l.After(10*time.Millisecond, func() { close(fired) })
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("After() task never ran")
	}

	stopped := l.After(50*time.Millisecond, func() { t.Error("stopped timer ran") })
	stopped.Stop()
	time.Sleep(80 * time.Millisecond)
}

func TestStoppedLoop(t *testing.T) {
	l, cancel := start(t)
	cancel()
	<-l.Done()

	if l.Post(func() {}) {
		t.Error("Post() after stop = true")
	}
	if err := l.Call(func() {}); !errors.Is(err, ErrStopped) {
		t.Errorf("Call() after stop error = %v, want ErrStopped", err)
	}
}
