package blob

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/google/uuid"
)

// Store writes uploaded files to an external object store and returns a
// publicly reachable URL for each object.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) (string, error)
}

// ObjectKey builds the canonical object key for an upload:
// {user}/{chat}/{generated-id}-{filename}.
func ObjectKey(userID, chatID int64, filename string) string {
	return fmt.Sprintf("%d/%d/%s-%s", userID, chatID, uuid.NewString(), filepath.Base(filename))
}
