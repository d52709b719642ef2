package identity

const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

type Role struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

var roleCatalogue = []Role{
	{Name: RoleAdmin, Description: "Has full access to manage the system."},
	{Name: RoleMember, Description: "User with limited access to the system."},
}

// Roles lists the roles an account can hold.
func (s *Service) Roles() []Role {
	return append([]Role(nil), roleCatalogue...)
}
