package domain

type Role string

const (
	RoleUser    Role = "user"
	RoleRuntime Role = "runtime"
)

// Caller identifies who invoked an operation. Transports build it from a
// verified credential; the core never trusts a caller-supplied role.
type Caller struct {
	Account string
	Role    Role
}

func UserCaller(account string) Caller {
	return Caller{Account: account, Role: RoleUser}
}

func RuntimeCaller() Caller {
	return Caller{Account: "orchestration-runtime", Role: RoleRuntime}
}

func (c Caller) IsRuntime() bool {
	return c.Role == RoleRuntime
}
