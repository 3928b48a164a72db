package models

const (
	RoleAdmin   = "admin"
	RoleAgent   = "agent"
	RoleScanner = "scanner"
	RoleUser    = "user"
)

// Identity is the authenticated caller as reported by the auth collaborator.
// The core trusts it for ownership and capability checks; it never performs
// authentication itself.
type Identity struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// CanScan reports whether the caller may mark tickets as used at the gate.
func (i Identity) CanScan() bool {
	return i.Role == RoleScanner || i.Role == RoleAdmin
}

// CanManageBooking reports whether the caller may cancel or view a booking:
// the owner, the attached agent, or an admin.
func (i Identity) CanManageBooking(b *Booking) bool {
	if i.IsAdmin() {
		return true
	}
	if b == nil {
		return false
	}
	return b.UserID == i.UserID || (b.AgentID != "" && b.AgentID == i.UserID)
}
