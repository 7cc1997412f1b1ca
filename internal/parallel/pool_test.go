package parallel

import (
	"errors"
	"runtime"
	"sync/atomic"
	"testing"
)

func TestWorkerPool_Create(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	if pool.Workers() != 4 {
		t.Errorf("Workers() = %d, want 4", pool.Workers())
	}
	if !pool.IsRunning() {
		t.Error("Pool should be running after creation")
	}
}

func TestWorkerPool_CreateZeroWorkers(t *testing.T) {
	pool := NewWorkerPool(0)
	defer pool.Close()

	if want := runtime.GOMAXPROCS(0); pool.Workers() != want {
		t.Errorf("Workers() = %d, want %d (GOMAXPROCS)", pool.Workers(), want)
	}
}

func TestWorkerPool_ExecuteAll(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	var counter atomic.Int64
	work := make([]func(), 100)
	for i := range work {
		work[i] = func() { counter.Add(1) }
	}

	pool.ExecuteAll(work)

	if counter.Load() != 100 {
		t.Errorf("counter = %d, want 100", counter.Load())
	}
}

func TestWorkerPool_ExecuteAllMoreThanQueue(t *testing.T) {
	pool := NewWorkerPool(2)
	defer pool.Close()

	// Far more items than the queues hold; submission must block, not drop.
	var counter atomic.Int64
	work := make([]func(), 1000)
	for i := range work {
		work[i] = func() { counter.Add(1) }
	}
	pool.ExecuteAll(work)

	if counter.Load() != 1000 {
		t.Errorf("counter = %d, want 1000", counter.Load())
	}
}

func TestWorkerPool_Run(t *testing.T) {
	pool := NewWorkerPool(3)
	defer pool.Close()

	out := make([]int, 50)
	err := pool.Run(len(out), func(i int) error {
		out[i] = i * i
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i, v := range out {
		if v != i*i {
			t.Errorf("out[%d] = %d, want %d", i, v, i*i)
		}
	}
}

func TestWorkerPool_RunLowestError(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	errFive := errors.New("five")
	errNine := errors.New("nine")
	var ran atomic.Int64
	err := pool.Run(20, func(i int) error {
		ran.Add(1)
		switch i {
		case 5:
			return errFive
		case 9:
			return errNine
		}
		return nil
	})
	if !errors.Is(err, errFive) {
		t.Errorf("Run error = %v, want %v", err, errFive)
	}
	if ran.Load() != 20 {
		t.Errorf("ran %d tasks, want 20", ran.Load())
	}
}

func TestWorkerPool_Closed(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Close()
	pool.Close()

	if pool.IsRunning() {
		t.Error("Pool should not be running after Close")
	}
	if err := pool.Run(3, func(int) error { return nil }); !errors.Is(err, ErrClosed) {
		t.Errorf("Run after Close = %v, want ErrClosed", err)
	}

	called := false
	pool.ExecuteAll([]func(){func() { called = true }})
	if called {
		t.Error("ExecuteAll ran work on a closed pool")
	}
}

func TestWorkerPool_RunEmpty(t *testing.T) {
	pool := NewWorkerPool(1)
	defer pool.Close()

	if err := pool.Run(0, func(int) error { return errors.New("unreachable") }); err != nil {
		t.Errorf("Run(0) = %v", err)
	}
}
