package capture

import (
	"errors"
	"io"
	"testing"
)

func TestMockSource_Playback(t *testing.T) {
	frames := []*BufferFrame{
		SolidFrame(640, 480, 255, 0, 0),
		SolidFrame(640, 480, 0, 255, 0),
	}
	src := NewMockSource(frames, false)

	if err := src.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer src.Close()

	f1, err := src.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	f1.Release()

	f2, err := src.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	f2.Release()

	// Third read signals end of stream (no loop)
	if _, err := src.ReadFrame(); !errors.Is(err, io.EOF) {
		t.Errorf("ReadFrame() after drain = %v, want io.EOF", err)
	}
}

func TestMockSource_Loop(t *testing.T) {
	src := NewMockSource([]*BufferFrame{SolidFrame(64, 48, 10, 20, 30)}, true)
	src.Open()
	defer src.Close()

	for i := 0; i < 5; i++ {
		f, err := src.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame() iteration %d error = %v", i, err)
		}
		f.Release()
	}
}

func TestMockSource_NotOpen(t *testing.T) {
	src := NewMockSource([]*BufferFrame{SolidFrame(64, 48, 0, 0, 0)}, true)

	if _, err := src.ReadFrame(); !errors.Is(err, ErrSourceNotOpen) {
		t.Errorf("ReadFrame() before Open = %v, want ErrSourceNotOpen", err)
	}
}

func TestMockSource_OpenCloseCounts(t *testing.T) {
	src := NewMockSource([]*BufferFrame{SolidFrame(64, 48, 0, 0, 0)}, true)

	for i := 0; i < 3; i++ {
		if err := src.Open(); err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		if err := src.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
	}
	// Closing an already closed source does not count
	src.Close()

	if got := src.OpenCount(); got != 3 {
		t.Errorf("OpenCount() = %d, want 3", got)
	}
	if got := src.CloseCount(); got != 3 {
		t.Errorf("CloseCount() = %d, want 3", got)
	}
}

func TestMockSource_ReadError(t *testing.T) {
	src := NewMockSource([]*BufferFrame{SolidFrame(64, 48, 0, 0, 0)}, true)
	src.Open()
	defer src.Close()

	wantErr := errors.New("device wedged")
	src.SetReadError(wantErr)

	if _, err := src.ReadFrame(); !errors.Is(err, wantErr) {
		t.Errorf("ReadFrame() = %v, want %v", err, wantErr)
	}
}
