package cloud

import (
	"context"

	"resetctl/pkg/inventory"
)

// Deleter performs the physical delete against the cloud provider.
// How a delete actually happens at the API level is the collaborator's
// concern; the controller only needs a per-resource success/failure signal.
type Deleter interface {
	DeleteResource(ctx context.Context, r inventory.Resource) error
}
