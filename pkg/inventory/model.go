package inventory

// Resource is a single entry in a tenant's inventory snapshot.
type Resource struct {
	ID             string `json:"id"`
	TenantID       string `json:"tenantId"`
	SubscriptionID string `json:"subscriptionId"`
	ResourceGroup  string `json:"resourceGroup"`
	Type           string `json:"type"` // e.g. microsoft.compute/virtualmachines
	Name           string `json:"name"`
}

// Snapshot is a read-only view of the resources known under a tenant.
// Resources keep discovery order; the controller never mutates a snapshot.
type Snapshot struct {
	TenantID  string
	Resources []Resource
}
