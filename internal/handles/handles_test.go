package handles

import "testing"

func TestOpenGetRelease(t *testing.T) {
	table := NewTable()

	id := table.Open("a.txt", 100, false, []byte{0x01})
	rec, ok := table.Get(id)
	if !ok {
		t.Fatalf("Get(%d) not found", id)
	}
	if rec.Path != "a.txt" || rec.SID != 100 || rec.WriteFlag {
		t.Errorf("Get(%d) = %+v, unexpected fields", id, rec)
	}
	if len(rec.HashAtOpen) != 1 || rec.HashAtOpen[0] != 0x01 {
		t.Errorf("HashAtOpen = %x, want [0x01]", rec.HashAtOpen)
	}

	released, ok := table.Release(id)
	if !ok || released.Path != "a.txt" {
		t.Fatalf("Release(%d) = (%+v, %v)", id, released, ok)
	}

	if _, ok := table.Get(id); ok {
		t.Error("Get after Release still finds the handle")
	}
}

func TestWriteOnlyHandleHasNoHashAtOpen(t *testing.T) {
	table := NewTable()
	id := table.Open("w.txt", 1, true, nil)

	rec, ok := table.Get(id)
	if !ok {
		t.Fatalf("Get(%d) not found", id)
	}
	if rec.HashAtOpen != nil {
		t.Errorf("HashAtOpen = %x, want nil for write-only handle", rec.HashAtOpen)
	}
	if !rec.WriteFlag {
		t.Error("WriteFlag = false, want true")
	}
}

func TestHandleIDsNeverRecur(t *testing.T) {
	table := NewTable()

	first := table.Open("a", 1, false, nil)
	table.Release(first)
	second := table.Open("b", 1, false, nil)

	if first == second {
		t.Errorf("handle ID reused: %d == %d", first, second)
	}
}
