package user

import "testing"

func TestPasswordHashAndVerify(t *testing.T) {
	salt, err := GenerateSaltHex()
	if err != nil {
		t.Fatalf("GenerateSaltHex: %v", err)
	}
	hash, err := HashPassword("p@ssw0rd", salt)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "" {
		t.Fatalf("expected non-empty hash")
	}
	if !VerifyPassword("p@ssw0rd", salt, hash) {
		t.Fatalf("expected verify ok")
	}
	if VerifyPassword("wrong", salt, hash) {
		t.Fatalf("expected verify fail")
	}
}

func TestRolesRoundTrip(t *testing.T) {
	joined := RolesJoin([]string{"dealer", " fleet_admin ", ""})
	if joined != "dealer,fleet_admin" {
		t.Fatalf("unexpected join: %q", joined)
	}
	u := User{Roles: joined}
	rs := u.RolesSlice()
	if len(rs) != 2 || rs[0] != "dealer" || rs[1] != "fleet_admin" {
		t.Fatalf("unexpected slice: %#v", rs)
	}
}

func TestValidRole(t *testing.T) {
	for _, r := range []string{RoleGuest, RoleVerifiedBuyer, RoleDealer, RoleFleetAdmin, RoleAuditor, RoleSystemAdmin} {
		if !ValidRole(r) {
			t.Fatalf("expected %s valid", r)
		}
	}
	if ValidRole("superuser") {
		t.Fatalf("expected unknown role invalid")
	}
}
