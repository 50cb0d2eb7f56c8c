package dto

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestErrorList_Bounded(t *testing.T) {
	l := NewErrorList(3)
	for i := 1; i <= 5; i++ {
		l.Add(fmt.Sprintf("o-%d", i), errors.New("boom"))
	}
	if len(l.Items) != 3 {
		t.Errorf("len(Items) = %d, want 3", len(l.Items))
	}
	if l.Dropped != 2 {
		t.Errorf("Dropped = %d, want 2", l.Dropped)
	}
	if l.Len() != 5 {
		t.Errorf("Len() = %d, want 5", l.Len())
	}
	if !l.Has("o-1") || l.Has("o-5") {
		t.Error("Has() mismatch: want o-1 kept and o-5 dropped")
	}
}

func TestSyncTriggerReq_Window(t *testing.T) {
	w := SyncTriggerReq{}.Window()
	if w.From != nil || w.To != nil || w.All {
		t.Errorf("empty req window = %+v, want zero", w)
	}

	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	w = SyncTriggerReq{From: from}.Window()
	if w.From == nil || !w.From.Equal(from) {
		t.Errorf("window.From = %v, want %v", w.From, from)
	}
}
