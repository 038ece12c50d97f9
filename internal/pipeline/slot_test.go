package pipeline

import (
	"testing"
	"time"
)

// stubFrame is a minimal Frame for exercising the slot without a real
// capture backend.
type stubFrame struct {
	id       int
	released bool
}

func (f *stubFrame) Size() (int, int)        { return 4, 4 }
func (f *stubFrame) Timestamp() time.Time    { return time.Time{} }
func (f *stubFrame) Pixels() ([]byte, error) { return make([]byte, 48), nil }
func (f *stubFrame) Clone() (Frame, error)   { return &stubFrame{id: f.id}, nil }
func (f *stubFrame) Release()                { f.released = true }

func TestFrameSlot_TakeEmpty(t *testing.T) {
	slot := NewFrameSlot()
	if got := slot.TryTake(); got != nil {
		t.Errorf("TryTake() on empty slot = %v, want nil", got)
	}
}

func TestFrameSlot_PutTake(t *testing.T) {
	slot := NewFrameSlot()
	fr := &stubFrame{id: 1}

	if dropped := slot.Put(fr); dropped {
		t.Error("Put() into empty slot reported a drop")
	}

	got := slot.TryTake()
	if got != fr {
		t.Fatalf("TryTake() = %v, want the pushed frame", got)
	}
	if again := slot.TryTake(); again != nil {
		t.Errorf("second TryTake() = %v, want nil", again)
	}
}

func TestFrameSlot_DropOldest(t *testing.T) {
	slot := NewFrameSlot()
	old := &stubFrame{id: 1}
	fresh := &stubFrame{id: 2}

	slot.Put(old)
	if dropped := slot.Put(fresh); !dropped {
		t.Error("Put() into full slot should report a drop")
	}

	if !old.released {
		t.Error("displaced frame was not released")
	}
	if got := slot.TryTake().(*stubFrame); got.id != 2 {
		t.Errorf("TryTake() returned frame %d, want 2 (newest)", got.id)
	}
	if slot.Drops() != 1 {
		t.Errorf("Drops() = %d, want 1", slot.Drops())
	}
}

func TestFrameSlot_Drain(t *testing.T) {
	slot := NewFrameSlot()
	fr := &stubFrame{id: 1}
	slot.Put(fr)

	slot.Drain()
	if !fr.released {
		t.Error("Drain() did not release the held frame")
	}
	if got := slot.TryTake(); got != nil {
		t.Errorf("TryTake() after Drain = %v, want nil", got)
	}
}

func TestFrameSlot_DrainResetsDrops(t *testing.T) {
	slot := NewFrameSlot()
	slot.Put(&stubFrame{id: 1})
	slot.Put(&stubFrame{id: 2})
	if slot.Drops() != 1 {
		t.Fatalf("Drops() = %d, want 1", slot.Drops())
	}

	// Stats for one run must not bleed into the next
	slot.Drain()
	if got := slot.Drops(); got != 0 {
		t.Errorf("Drops() after Drain = %d, want 0", got)
	}
}
