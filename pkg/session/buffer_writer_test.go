package session

import (
	"bytes"
	"testing"
	"time"

	"github.com/vibetunnel/linux/pkg/terminal"
)

func TestBufferWriterDirectIntegration(t *testing.T) {
	term := terminal.New(80, 24)

	notificationCount := 0
	notifyCallback := func(sessionID string) error {
		notificationCount++
		if sessionID != "test-session" {
			t.Errorf("Expected session ID 'test-session', got '%s'", sessionID)
		}
		return nil
	}

	bw := NewBufferWriter(term, nil, "test-session", notifyCallback)

	testData := []byte("Hello, Terminal!\n")
	n, err := bw.Write(testData)
	if err != nil {
		t.Fatalf("Failed to write: %v", err)
	}
	if n != len(testData) {
		t.Errorf("Expected to write %d bytes, wrote %d", len(testData), n)
	}

	if notificationCount != 1 {
		t.Errorf("Expected 1 notification, got %d", notificationCount)
	}

	if term.Width() != 80 || term.Height() != 24 {
		t.Errorf("Unexpected dimensions: %dx%d", term.Width(), term.Height())
	}

	err = bw.WriteResize(100, 30)
	if err != nil {
		t.Fatalf("Failed to resize: %v", err)
	}

	if notificationCount != 2 {
		t.Errorf("Expected 2 notifications after resize, got %d", notificationCount)
	}

	if term.Width() != 100 || term.Height() != 30 {
		t.Errorf("Expected terminal size 100x30, got %dx%d", term.Width(), term.Height())
	}
}

func TestBufferWriterWithStreamWriter(t *testing.T) {
	term := terminal.New(80, 24)
	bw := NewBufferWriter(term, nil, "test-session", nil)

	if bw == nil {
		t.Fatal("Failed to create buffer writer")
	}

	lastWrite := bw.GetLastWriteTime()
	if lastWrite.IsZero() {
		t.Error("Last write time should not be zero")
	}

	time.Sleep(10 * time.Millisecond)
	_, err := bw.Write([]byte("test"))
	if err != nil {
		t.Fatalf("Failed to write: %v", err)
	}

	newLastWrite := bw.GetLastWriteTime()
	if !newLastWrite.After(lastWrite) {
		t.Error("Last write time should be updated after write")
	}
}

func TestBufferWriterSubscribers(t *testing.T) {
	term := terminal.New(80, 24)
	bw := NewBufferWriter(term, nil, "test-session", nil)

	ch := bw.Subscribe()

	testData := []byte("subscriber test")
	go func() {
		_, err := bw.Write(testData)
		if err != nil {
			t.Errorf("Failed to write: %v", err)
		}
	}()

	select {
	case data := <-ch:
		if !bytes.Equal(data, testData) {
			t.Errorf("Expected to receive '%s', got '%s'", testData, data)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("Timeout waiting for subscriber notification")
	}

	bw.Unsubscribe(ch)

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("Expected channel to be closed after unsubscribe")
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("Channel should be closed immediately")
	}
}
