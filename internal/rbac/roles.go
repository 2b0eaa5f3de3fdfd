package rbac

// Role names. Keep these stable; they are part of the token contract.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
	// RoleService is used by internal jobs (schedulers, operators) calling admin endpoints.
	RoleService = "service"
)

func IsAdmin(role string) bool { return role == RoleAdmin }
