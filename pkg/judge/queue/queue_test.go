package queue

import "testing"

func TestPriorityOrder(t *testing.T) {
	q := New()
	q.Push(&Item{Priority: 0, CreatedAt: 1, Value: "A"})
	q.Push(&Item{Priority: 10, CreatedAt: 2, Value: "B"})
	q.Push(&Item{Priority: 0, CreatedAt: 3, Value: "C"})

	order := []string{}
	for q.Len() > 0 {
		order = append(order, q.Pop().Value.(string))
	}

	want := []string{"B", "A", "C"}
	for i, v := range want {
		if order[i] != v {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestFIFOTieBreak(t *testing.T) {
	q := New()
	for i := int64(0); i < 5; i++ {
		q.Push(&Item{Priority: 5, CreatedAt: i, Value: i})
	}
	for i := int64(0); i < 5; i++ {
		got := q.Pop().Value.(int64)
		if got != i {
			t.Fatalf("pop %d: got %d, want %d", i, got, i)
		}
	}
}

func TestEmptyPop(t *testing.T) {
	q := New()
	if q.Pop() != nil {
		t.Fatal("Pop() on empty queue should return nil")
	}
	if q.Peek() != nil {
		t.Fatal("Peek() on empty queue should return nil")
	}
}
