package rbac

// Role is the closed set of system roles carried in token claims. Route
// guards compare against these values only; free-form strings never reach
// an authorization decision.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleManager   Role = "manager"
	RoleDeveloper Role = "developer"
)

// MemberRole is the per-project membership role, independent of the
// system role.
type MemberRole string

const (
	MemberManager   MemberRole = "manager"
	MemberDeveloper MemberRole = "developer"
	MemberViewer    MemberRole = "viewer"
)

// In reports whether role is one of the allowed set. An empty allowed set
// permits any valid role.
func In(role Role, allowed ...Role) bool {
	if !Valid(role) {
		return false
	}
	if len(allowed) == 0 {
		return true
	}
	for _, candidate := range allowed {
		if role == candidate {
			return true
		}
	}
	return false
}

// CanMutate is the ownership-or-role predicate: the recorded owner of a
// resource may mutate it, as may admins and managers.
func CanMutate(callerID string, callerRole Role, ownerID string) bool {
	if callerID != "" && callerID == ownerID {
		return true
	}
	return callerRole == RoleAdmin || callerRole == RoleManager
}

func Valid(role Role) bool {
	switch role {
	case RoleAdmin, RoleManager, RoleDeveloper:
		return true
	default:
		return false
	}
}

// Normalize maps free-form input onto the closed set; unknown input maps
// to the empty role, which every predicate denies.
func Normalize(role string) Role {
	switch Role(role) {
	case RoleAdmin, RoleManager, RoleDeveloper:
		return Role(role)
	default:
		return ""
	}
}

// NormalizeMember maps free-form input onto the membership role set;
// unknown input maps to the empty role.
func NormalizeMember(role string) MemberRole {
	switch MemberRole(role) {
	case MemberManager, MemberDeveloper, MemberViewer:
		return MemberRole(role)
	default:
		return ""
	}
}
