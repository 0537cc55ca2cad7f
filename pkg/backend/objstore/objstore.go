// Package objstore backs fixed-size segments with objects in an S3-compatible
// bucket. An object is fetched whole on first use, served from memory afterwards
// and uploaded again after every write or delete.
package objstore

import (
	"context"
	stdErrors "errors"
)

// ErrNotFound is returned by Client.Get for a missing object.
var ErrNotFound = stdErrors.New("object not found")

// Client is the object store surface segment handles need.
type Client interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	List(ctx context.Context, prefix string) ([]string, error)
}
