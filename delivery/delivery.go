// Package delivery hands a merged document to the user.
package delivery

import (
	"context"
	"time"
)

const (
	// FileName is the name every merged document is delivered under.
	FileName = "merged.pdf"
	// MIMEType of delivered documents.
	MIMEType = "application/pdf"
)

// Receipt tells the user where the document can be fetched.
type Receipt struct {
	Name    string    `json:"name"`
	URL     string    `json:"url"`
	Size    int       `json:"size"`
	Expires *time.Time `json:"expires,omitempty"`
}

// Deliverer makes data available under name. Implementations release what
// they hold on their own once the download had time to start.
type Deliverer interface {
	Deliver(ctx context.Context, name string, data []byte) (*Receipt, error)
}

// Tracker is implemented by deliverers that can tell when a receipt stopped
// leading to its document.
type Tracker interface {
	Released(r *Receipt) bool
}

// Released reports whether d already dropped the document behind r.
// Deliverers that keep documents around never release them.
func Released(d Deliverer, r *Receipt) bool {
	t, ok := d.(Tracker)
	return ok && t.Released(r)
}
