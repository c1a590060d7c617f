package domain

// Host represents a machine whose access is gated by the engine.
type Host struct {
	// Idx is the unique identifier for the host.
	Idx int64 `json:"idx"`

	// Name is the human-readable host name.
	Name string `json:"name"`

	// Host is the network address, stored normalized.
	Host string `json:"host"`

	// HostGroupIdx is the host group this host belongs to.
	// Nil means the host is unrestricted: any user is authorized.
	HostGroupIdx *int64 `json:"host_group_idx"`
}

// Unrestricted reports whether the host is outside any host group.
func (h *Host) Unrestricted() bool {
	return h.HostGroupIdx == nil
}

// HostGroup is a named set of hosts sharing an authorization rule.
type HostGroup struct {
	// Idx is the unique identifier for the host group.
	Idx int64 `json:"idx"`

	// Name is the unique host group name.
	Name string `json:"name"`

	// RequiredPermissionIdx is the permission a user must hold to access
	// hosts in this group. Nil means no specific permission is required.
	RequiredPermissionIdx *int64 `json:"required_permission_idx"`
}

// HostAccessDecision is the outcome class of a host authorization check.
// The three states make the nullable short-circuits of the rule explicit.
type HostAccessDecision string

const (
	// HostAccessUnrestricted means the host belongs to no host group.
	HostAccessUnrestricted HostAccessDecision = "unrestricted"

	// HostAccessGroupOnly means the host group requires no permission.
	HostAccessGroupOnly HostAccessDecision = "group-only"

	// HostAccessPermission means a specific permission was checked.
	HostAccessPermission HostAccessDecision = "group+permission"
)
