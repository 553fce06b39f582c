// Package status holds the user-visible status channel: one message slot
// and one progress indicator.
package status

import (
	"sync"
	"time"
)

// Severity tags a message.
type Severity string

const (
	Info    Severity = "info"
	Success Severity = "success"
	Error   Severity = "error"
)

// Message is the content of the single message slot.
type Message struct {
	Text     string    `json:"text"`
	Severity Severity  `json:"severity"`
	At       time.Time `json:"at"`
}

// Progress is the progress indicator. Percent never decreases while the
// indicator stays visible.
type Progress struct {
	Visible bool   `json:"visible"`
	Percent int    `json:"percent"`
	Text    string `json:"text"`
}

// Board is safe for concurrent use: a merge writes to it while requests read.
type Board struct {
	mu       sync.RWMutex
	message  Message
	progress Progress
	now      func() time.Time
}

// NewBoard returns an empty board.
func NewBoard() *Board {
	return &Board{now: time.Now}
}

// Notify replaces the current message.
func (b *Board) Notify(sev Severity, text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.message = Message{Text: text, Severity: sev, At: b.now()}
}

// ShowProgress makes the indicator visible at 0%.
func (b *Board) ShowProgress(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.progress = Progress{Visible: true, Text: text}
}

// SetProgress moves the indicator. A percent lower than the current one is
// ignored, only the text changes. Values are clamped to 0..100.
func (b *Board) SetProgress(percent int, text string) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if percent > b.progress.Percent {
		b.progress.Percent = percent
	}
	b.progress.Visible = true
	b.progress.Text = text
}

// HideProgress hides the indicator.
func (b *Board) HideProgress() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.progress.Visible = false
}

// Message returns the current message.
func (b *Board) Message() Message {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.message
}

// Progress returns the current indicator state.
func (b *Board) Progress() Progress {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.progress
}
