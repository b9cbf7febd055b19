package entity

// Role is a permission tag scoped to either the hub or a single queue.
type Role string

// Hub-scoped roles.
const (
	RoleAdmin       Role = "Admin"
	RoleReadClients Role = "ReadClients"
	RoleReadHubs    Role = "ReadHubs"
	RoleReadQueues  Role = "ReadQueues"
)

// Queue-scoped roles.
const (
	RoleRead      Role = "Read"
	RoleWrite     Role = "Write"
	RoleSubscribe Role = "Subscribe"
)

var hubRoles = map[Role]bool{
	RoleAdmin:       true,
	RoleReadClients: true,
	RoleReadHubs:    true,
	RoleReadQueues:  true,
}

var queueRoles = map[Role]bool{
	RoleRead:      true,
	RoleWrite:     true,
	RoleSubscribe: true,
}

// ValidHubRole reports whether r belongs to the hub role set.
func ValidHubRole(r Role) bool { return hubRoles[r] }

// ValidQueueRole reports whether r belongs to the queue role set.
func ValidQueueRole(r Role) bool { return queueRoles[r] }

// SecurityItem is the role set one client holds within a single scope
// (the hub or one queue). An item with no roles is never stored.
type SecurityItem struct {
	ClientID string
	Roles    []Role
}

// HasRole reports whether the item grants r.
func (s *SecurityItem) HasRole(r Role) bool {
	for _, have := range s.Roles {
		if have == r {
			return true
		}
	}
	return false
}
