package registry

import (
	"context"
	"errors"
	"time"

	"portfolio-studio-server/modules/common/model"
)

// ErrNotFound - no accepted asset for the project
var ErrNotFound = errors.New("registry: project has no edited asset")

// Entry - a user-accepted replacement asset for one project
type Entry struct {
	ProjectID  string      `json:"project_id"`
	Asset      model.Asset `json:"asset"`
	JobID      string      `json:"job_id,omitempty"`
	PublicPath string      `json:"public_path,omitempty"`
	AcceptedAt time.Time   `json:"accepted_at"`
}

// Registry - EditedAssetRegistry keyed by project id, last write wins
// Implementations must be safe for concurrent use.
type Registry interface {
	Put(ctx context.Context, entry Entry) error
	Get(ctx context.Context, projectID string) (Entry, error)
	Delete(ctx context.Context, projectID string) error
	// List returns project ids, least recently accepted first.
	List(ctx context.Context) ([]string, error)
}
