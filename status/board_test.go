package status

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNotifyReplacesSlot(t *testing.T) {
	b := NewBoard()
	fixed := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return fixed }

	b.Notify(Info, "Merging PDFs...")
	b.Notify(Error, "boom")

	assert.Equal(t, Message{Text: "boom", Severity: Error, At: fixed}, b.Message())
}

func TestProgressNeverDecreases(t *testing.T) {
	b := NewBoard()
	b.ShowProgress("Processing...")
	assert.Equal(t, Progress{Visible: true, Percent: 0, Text: "Processing..."}, b.Progress())

	b.SetProgress(50, "Processing a.pdf...")
	b.SetProgress(30, "late update")
	p := b.Progress()
	assert.Equal(t, 50, p.Percent)
	assert.Equal(t, "late update", p.Text)

	b.SetProgress(250, "Saving merged PDF...")
	assert.Equal(t, 100, b.Progress().Percent)

	b.HideProgress()
	assert.False(t, b.Progress().Visible)

	// a new showing starts over
	b.ShowProgress("Processing...")
	assert.Equal(t, 0, b.Progress().Percent)
}

func TestBoardConcurrentAccess(t *testing.T) {
	b := NewBoard()
	b.ShowProgress("Processing...")

	var wg sync.WaitGroup
	for i := 0; i <= 100; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			b.SetProgress(i, "step")
		}(i)
		go func() {
			defer wg.Done()
			_ = b.Progress()
			_ = b.Message()
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, b.Progress().Percent)
}
