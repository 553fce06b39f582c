package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Lucifer7355/pdfmerge/utils"
)

// R2 delivers through a Cloudflare R2 bucket. Objects are deleted again
// after TTL.
type R2 struct {
	client *utils.R2Client
	ttl    time.Duration
	log    *logrus.Entry
}

// NewR2 wraps an R2 client.
func NewR2(client *utils.R2Client, ttl time.Duration) *R2 {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &R2{client: client, ttl: ttl, log: logrus.WithField("component", "R2Delivery")}
}

func (d *R2) Deliver(ctx context.Context, name string, data []byte) (*Receipt, error) {
	key := fmt.Sprintf("merged/%s/%s", uuid.New().String(), name)
	url, err := d.client.UploadToR2(ctx, key, data)
	if err != nil {
		return nil, err
	}

	time.AfterFunc(d.ttl, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := d.client.DeleteFromR2(ctx, key); err != nil {
			d.log.WithError(err).WithField("key", key).Warn("[R2Delivery] ❌ Could not release object")
		}
	})

	expires := time.Now().Add(d.ttl)
	return &Receipt{Name: name, URL: url, Size: len(data), Expires: &expires}, nil
}

// Released is true once the object was scheduled for deletion.
func (d *R2) Released(r *Receipt) bool {
	return r.Expires != nil && !time.Now().Before(*r.Expires)
}
