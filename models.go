package fintrack

// UserRole is the backend-assigned role carried on the profile
type UserRole = string

const (
	// RoleUser is a regular account
	RoleUser UserRole = "user"
	// RoleAdmin can manage shared categories and budgets
	RoleAdmin UserRole = "admin"
)

// Profile is the backend's view of the signed-in user. It is owned by the
// Session and refreshed from the API whenever the credential changes.
type Profile struct {
	ID    string   `json:"id,omitempty"`
	Name  string   `json:"name,omitempty"`
	Email string   `json:"email,omitempty"`
	Role  UserRole `json:"role,omitempty"`
}

// Clone returns a copy so callers cannot mutate session-owned state.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}
