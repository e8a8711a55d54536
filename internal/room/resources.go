package room

// ResourceKind names an in-round power-up.
type ResourceKind string

const FreezeRay ResourceKind = "freeze_ray"

// ResourceTable maps each power-up to the fixed amount it burns.
type ResourceTable map[ResourceKind]uint64

// DefaultResources is 1 token (6 decimals) per freeze ray.
var DefaultResources = ResourceTable{
	FreezeRay: 1_000_000,
}

// Cost looks up the burn amount for kind.
func (t ResourceTable) Cost(kind ResourceKind) (uint64, bool) {
	c, ok := t[kind]
	return c, ok && c > 0
}
