package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleCustomer = "customer"
	RoleMerchant = "merchant"
	RoleFinance  = "finance"
	RoleAdmin    = "admin"
	RoleService  = "service" // hidden role for settlement integrations
)

func IsAdmin(role string) bool { return role == RoleAdmin }
