package runner

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"
)

// Message types emitted by JSONHandler.
const (
	MessageOutput   = "output"
	MessageDocument = "document"
	MessageSystem   = "system"
	MessagePrompt   = "prompt"
)

// Message is one JSON line written by JSONHandler.
type Message struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// JSONHandler implements IOHandler for scripted sessions over JSON-Lines.
// Every output is a Message; every input line is either a JSON string or raw text.
type JSONHandler struct {
	Reader *bufio.Reader

	mu      sync.Mutex
	encoder *json.Encoder
}

// NewJSONHandler creates a handler for JSON IO.
func NewJSONHandler(r io.Reader, w io.Writer) *JSONHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	return &JSONHandler{
		Reader:  bufio.NewReader(r),
		encoder: json.NewEncoder(w),
	}
}

func (h *JSONHandler) emit(msgType, text string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.encoder.Encode(Message{Type: msgType, Text: text})
}

func (h *JSONHandler) Output(_ context.Context, text string) error {
	return h.emit(MessageOutput, text)
}

func (h *JSONHandler) Render(_ context.Context, markdown string) error {
	return h.emit(MessageDocument, markdown)
}

func (h *JSONHandler) SystemOutput(_ context.Context, msg string) error {
	return h.emit(MessageSystem, msg)
}

// Input announces a prompt and reads one line. Reads are not interruptible by ctx;
// scripted callers close the input to end the session.
func (h *JSONHandler) Input(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := h.emit(MessagePrompt, ""); err != nil {
		return "", err
	}

	text, err := h.Reader.ReadString('\n')
	if err != nil && (err != io.EOF || text == "") {
		return "", err
	}
	text = strings.TrimSpace(text)

	// Try to unquote if it's a JSON string
	var val string
	if err := json.Unmarshal([]byte(text), &val); err == nil {
		text = val
	}
	return SanitizeInput(strings.TrimSpace(text))
}
