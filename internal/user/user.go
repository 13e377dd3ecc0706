package user

import (
	"strings"
	"time"
)

// Role names. A user may carry several (a dealer account that is also a
// fleet admin); roles are stored comma-joined.
const (
	RoleGuest         = "guest"
	RoleVerifiedBuyer = "verified_buyer"
	RoleDealer        = "dealer"
	RoleFleetAdmin    = "fleet_admin"
	RoleAuditor       = "auditor"
	RoleSystemAdmin   = "system_admin"
)

// AdminRoles are the roles allowed to read restricted data (audit logs,
// moderation queue, admin dashboard).
var AdminRoles = []string{RoleAuditor, RoleSystemAdmin}

// ValidRole reports whether the name is a known role.
func ValidRole(role string) bool {
	switch role {
	case RoleGuest, RoleVerifiedBuyer, RoleDealer, RoleFleetAdmin, RoleAuditor, RoleSystemAdmin:
		return true
	}
	return false
}

// User is the users table GORM model.
type User struct {
	ID           string `gorm:"primaryKey;size:36"`
	Username     string `gorm:"uniqueIndex;size:64;not null"`
	PasswordHash string `gorm:"size:128;not null"`
	PasswordSalt string `gorm:"size:64;not null"`
	Email        string `gorm:"index;size:128"`
	Phone        string `gorm:"size:32"`
	CompanyName  string `gorm:"size:255"`
	Roles        string `gorm:"index;size:256;not null"` // comma-joined, e.g. "dealer,fleet_admin"

	// Verification and data-usage consent.
	VerifiedAt   *time.Time
	ConsentUsage bool `gorm:"not null;default:false"`
	ConsentAt    *time.Time

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (u User) RolesSlice() []string {
	if strings.TrimSpace(u.Roles) == "" {
		return nil
	}
	parts := strings.Split(u.Roles, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func RolesJoin(roles []string) string {
	if len(roles) == 0 {
		return ""
	}
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return strings.Join(out, ",")
}
