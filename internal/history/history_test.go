package history

import (
	"context"
	"fmt"
	"testing"
)

func TestMemory_LoadLastN(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for i := 1; i <= 7; i++ {
		m.Append(ctx, "s1", "user", fmt.Sprintf("msg %d", i))
	}
	m.Append(ctx, "s2", "user", "other session")

	got, err := m.Load(ctx, "s1", 5)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("got %d messages, want 5", len(got))
	}
	for i, msg := range got {
		want := fmt.Sprintf("msg %d", i+3)
		if msg.Content != want || msg.Ordinal != int64(i+3) {
			t.Errorf("position %d: got %q (#%d), want %q (#%d)", i, msg.Content, msg.Ordinal, want, i+3)
		}
	}

	all, _ := m.Load(ctx, "s1", 0)
	if len(all) != 7 {
		t.Errorf("got %d with no limit, want 7", len(all))
	}
}

func TestMemory_UnknownSession(t *testing.T) {
	got, err := NewMemory().Load(context.Background(), "nope", 5)
	if err != nil || len(got) != 0 {
		t.Errorf("got %v, %v; want empty and no error", got, err)
	}
}

func TestMemory_LoadReturnsCopy(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.Append(ctx, "s", "user", "hello")
	got, _ := m.Load(ctx, "s", 5)
	got[0].Content = "changed"
	again, _ := m.Load(ctx, "s", 5)
	if again[0].Content != "hello" {
		t.Error("Load result aliases stored history")
	}
}
