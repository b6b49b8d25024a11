package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/itstheanurag/snipexec/internal/executor"
)

func TestSubmitRejectsWhenFull(t *testing.T) {
	m := NewManager(2)

	for i := 0; i < 2; i++ {
		if err := m.Submit(NewJob(context.Background(), executor.Request{})); err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
	}
	if err := m.Submit(NewJob(context.Background(), executor.Request{})); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("err = %v, want ErrQueueFull", err)
	}
	if m.Len() != 2 {
		t.Fatalf("Len = %d, want 2", m.Len())
	}

	<-m.NextJob()
	if err := m.Submit(NewJob(context.Background(), executor.Request{})); err != nil {
		t.Fatalf("Submit after drain: %v", err)
	}
}

func TestNewJobIDsAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		job := NewJob(context.Background(), executor.Request{})
		if seen[job.ID] {
			t.Fatalf("duplicate job id %s", job.ID)
		}
		seen[job.ID] = true
		if cap(job.Result) != 1 {
			t.Fatal("result channel must be buffered")
		}
	}
}

func TestNewManagerMinimumCapacity(t *testing.T) {
	m := NewManager(0)
	if err := m.Submit(NewJob(context.Background(), executor.Request{})); err != nil {
		t.Fatalf("Submit: %v", err)
	}
}
