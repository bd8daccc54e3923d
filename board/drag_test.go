package board

import (
	"context"
	"testing"

	"board-api/domain"
)

func TestDragGestureCommitsExactlyOneMove(t *testing.T) {
	store := &mockStore{}
	seedTasks(store, domain.Task{ID: "t1", ProjectID: "p1", Title: "Design homepage", Status: domain.StatusTodo})
	s := loadedState(t, store)
	d := NewDragCoordinator(s)

	d.DragStart("t1")
	d.DragOver(domain.StatusDoing)
	d.DragOver(domain.StatusReview)
	d.DragOver(domain.StatusReview)

	moved, err := d.DragEnd(context.Background(), domain.StatusReview)
	if err != nil {
		t.Fatalf("drag end: %v", err)
	}
	if !moved {
		t.Fatal("expected a move to be committed")
	}

	task, _ := s.Task("t1")
	if task.Status != domain.StatusReview {
		t.Fatalf("expected review, got %s", task.Status)
	}
	if got := store.calls(func(m *mockStore) int { return m.updateTaskCalls }); got != 1 {
		t.Fatalf("hovering must not write; expected 1 update, got %d", got)
	}
}

func TestDragEndSelfDropIsNoOp(t *testing.T) {
	store := &mockStore{}
	seedTasks(store, domain.Task{ID: "t1", ProjectID: "p1", Title: "a", Status: domain.StatusTodo})
	s := loadedState(t, store)
	d := NewDragCoordinator(s)

	d.DragStart("t1")
	moved, err := d.DragEnd(context.Background(), domain.StatusTodo)
	if err != nil || moved {
		t.Fatalf("self-drop must be a no-op, moved=%v err=%v", moved, err)
	}
	if got := store.calls(func(m *mockStore) int { return m.updateTaskCalls }); got != 0 {
		t.Fatalf("expected 0 remote calls, got %d", got)
	}
}

func TestDragEndOutsideAnyColumnDiscards(t *testing.T) {
	store := &mockStore{}
	seedTasks(store, domain.Task{ID: "t1", ProjectID: "p1", Title: "a", Status: domain.StatusTodo})
	s := loadedState(t, store)
	d := NewDragCoordinator(s)

	d.DragStart("t1")
	d.DragOver(domain.StatusDone)
	moved, err := d.DragEnd(context.Background(), "")
	if err != nil || moved {
		t.Fatalf("drop outside lanes must discard, moved=%v err=%v", moved, err)
	}
	if _, active := d.Active(); active {
		t.Fatal("gesture must be cleared after drag end")
	}

	task, _ := s.Task("t1")
	if task.Status != domain.StatusTodo {
		t.Fatalf("discarded drag must not move the task, got %s", task.Status)
	}
}

func TestDragEndWithoutStart(t *testing.T) {
	s := loadedState(t, &mockStore{})
	d := NewDragCoordinator(s)

	moved, err := d.DragEnd(context.Background(), domain.StatusDone)
	if err != nil || moved {
		t.Fatalf("drag end without start must be a no-op, moved=%v err=%v", moved, err)
	}
}

func TestDragOverIgnoredWithoutActiveGesture(t *testing.T) {
	s := loadedState(t, &mockStore{})
	d := NewDragCoordinator(s)

	d.DragOver(domain.StatusDoing)
	if _, ok := d.Hover(); ok {
		t.Fatal("hover must not be recorded without an active drag")
	}
}

func TestDragCancel(t *testing.T) {
	store := &mockStore{}
	seedTasks(store, domain.Task{ID: "t1", ProjectID: "p1", Title: "a", Status: domain.StatusTodo})
	s := loadedState(t, store)
	d := NewDragCoordinator(s)

	d.DragStart("t1")
	d.DragOver(domain.StatusDone)
	d.Cancel()

	if _, active := d.Active(); active {
		t.Fatal("cancel must clear the gesture")
	}
	if got := store.calls(func(m *mockStore) int { return m.updateTaskCalls }); got != 0 {
		t.Fatalf("cancel must not write, got %d calls", got)
	}
}
