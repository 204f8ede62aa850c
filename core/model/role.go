package model

// Role describes the trading role a prosumer holds within a timestep.
// A prosumer is exactly one of Idle, Buyer, Seller or Banned at any time,
// which rules out the invalid flag combinations a pair of booleans allows.
type Role uint8

const (
	RoleIdle Role = iota
	RoleBuyer
	RoleSeller
	RoleBanned
)

// String returns a human readable role name used in logs and exports.
func (r Role) String() string {
	switch r {
	case RoleBuyer:
		return "buyer"
	case RoleSeller:
		return "seller"
	case RoleBanned:
		return "banned"
	default:
		return "idle"
	}
}

// Active reports whether the role participates in matching.
func (r Role) Active() bool {
	return r == RoleBuyer || r == RoleSeller
}
