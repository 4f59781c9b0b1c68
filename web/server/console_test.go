package server

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"
)

// receive waits briefly for the next console message
func receive(t *testing.T, messageChan <-chan ConsoleMessage) ConsoleMessage {
	t.Helper()
	select {
	case msg := <-messageChan:
		return msg
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Timeout waiting for console message")
		return ConsoleMessage{}
	}
}

func TestWebLoggerForwardsRendererLines(t *testing.T) {
	tests := []struct {
		name          string
		format        string
		args          []interface{}
		expectedMsg   string
		expectedLevel string
	}{
		{
			name:          "header",
			format:        "Rendering %dx%d at %d samples/pixel, depth %d (using %d workers)...\n",
			args:          []interface{}{384, 216, 1, 1, 4},
			expectedMsg:   "Rendering 384x216 at 1 samples/pixel, depth 1 (using 4 workers)...\n",
			expectedLevel: "info",
		},
		{
			name:          "progress",
			format:        "Scanlines remaining: %d\n",
			args:          []interface{}{108},
			expectedMsg:   "Scanlines remaining: 108\n",
			expectedLevel: "info",
		},
		{
			name:          "abort",
			format:        "render failed: %v\n",
			args:          []interface{}{"context canceled"},
			expectedMsg:   "render failed: context canceled\n",
			expectedLevel: "error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			messageChan := make(chan ConsoleMessage, 1)
			logger := NewWebLogger("render-"+tt.name, messageChan)
			logger.Printf(tt.format, tt.args...)

			msg := receive(t, messageChan)
			if msg.Message != tt.expectedMsg {
				t.Errorf("Expected message %q, got %q", tt.expectedMsg, msg.Message)
			}
			if msg.Level != tt.expectedLevel {
				t.Errorf("Expected level %q, got %q", tt.expectedLevel, msg.Level)
			}
			if time.Since(msg.Timestamp) > time.Second {
				t.Errorf("Timestamp seems too old: %v", msg.Timestamp)
			}
		})
	}
}

func TestWebLoggerPreservesOrder(t *testing.T) {
	messageChan := make(chan ConsoleMessage, 10)
	logger := NewWebLogger("render-order", messageChan)

	for remaining := 3; remaining >= 0; remaining-- {
		logger.Printf("Scanlines remaining: %d\n", remaining)
	}

	for remaining := 3; remaining >= 0; remaining-- {
		expected := fmt.Sprintf("Scanlines remaining: %d\n", remaining)
		if msg := receive(t, messageChan); msg.Message != expected {
			t.Errorf("Expected %q, got %q", expected, msg.Message)
		}
	}
}

func TestWebLoggerNeverBlocks(t *testing.T) {
	tests := []struct {
		name        string
		messageChan chan ConsoleMessage
	}{
		{"full channel", make(chan ConsoleMessage, 1)},
		{"nil channel", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := NewWebLogger("render-blocked", tt.messageChan)

			done := make(chan struct{})
			go func() {
				defer close(done)
				for i := 0; i < 5; i++ {
					logger.Printf("Scanlines remaining: %d\n", i)
				}
			}()

			select {
			case <-done:
			case <-time.After(time.Second):
				t.Fatal("Logger blocked on a full or missing console channel")
			}

			if tt.messageChan != nil && len(tt.messageChan) != 1 {
				t.Errorf("Expected the first message to be kept, got %d queued", len(tt.messageChan))
			}
		})
	}
}

func TestLevelOf(t *testing.T) {
	tests := []struct {
		message  string
		expected string
	}{
		{"Scanlines remaining: 10\n", "info"},
		{"Render warning: Large image with high samples may render slowly", "warning"},
		{"render failed: context canceled", "error"},
		{"worker 2: scanline 7: panic: error in material", "error"},
	}

	for _, tt := range tests {
		if got := levelOf(tt.message); got != tt.expected {
			t.Errorf("levelOf(%q): expected %q, got %q", tt.message, tt.expected, got)
		}
	}
}

func TestConsoleMessageJSON(t *testing.T) {
	msg := ConsoleMessage{
		Message:   "Scanlines remaining: 0\n",
		Timestamp: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Level:     "info",
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	var fields map[string]string
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("Expected a flat JSON object, got %s", data)
	}
	if fields["level"] != "info" || fields["message"] != msg.Message {
		t.Errorf("Unexpected console event payload %s", data)
	}
	if fields["timestamp"] != "2024-01-02T03:04:05Z" {
		t.Errorf("Expected RFC 3339 timestamp, got %q", fields["timestamp"])
	}
}
