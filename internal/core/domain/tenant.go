package domain

import (
	"strings"
	"time"
)

// Tenant is an isolated customer boundary. Every other entity belongs to
// exactly one tenant and is never visible across tenants.
type Tenant struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Code returns the short uppercase prefix used in generated order
// references, e.g. "ACME" for "Acme Foods".
func (t Tenant) Code() string {
	name := strings.TrimSpace(t.Name)
	if name == "" {
		return "GEN"
	}
	code := strings.ToUpper(name)
	if len(code) > 4 {
		code = code[:4]
	}
	return code
}

type Role string

const (
	RoleStaff   Role = "staff"
	RoleFinance Role = "finance"
	RoleAdmin   Role = "admin"
)

// Principal is the already-authenticated caller identity supplied by the
// external auth layer.
type Principal struct {
	ID       string
	TenantID string
	Role     Role
}

// CanApprove reports whether the principal may approve or confirm payment
// on purchase orders.
func (p Principal) CanApprove() bool {
	return p.Role == RoleFinance || p.Role == RoleAdmin
}

// CanCreate reports whether the principal may create purchase orders.
func (p Principal) CanCreate() bool {
	return p.Role == RoleStaff || p.CanApprove()
}
