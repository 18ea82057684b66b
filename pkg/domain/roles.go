package domain

// Role classifies court officials. The set is closed; unknown roles are
// rejected at the trust boundary.
type Role string

const (
	RoleJudge         Role = "judge"
	RoleClerk         Role = "clerk"
	RoleRegistrar     Role = "registrar"
	RoleAdministrator Role = "administrator"
)

// IsValid reports whether the role belongs to the closed set.
func (r Role) IsValid() bool {
	switch r {
	case RoleJudge, RoleClerk, RoleRegistrar, RoleAdministrator:
		return true
	}
	return false
}

// Caller is the authenticated identity acting on a request. Ownership is
// never taken from here; only the identity and role claims are.
type Caller struct {
	SubjectID SubjectID
	Role      Role
}
