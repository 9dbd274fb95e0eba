package authz

import "testing"

func scopedTo(id int64) *int64 { return &id }

func TestCanRedeemMatrix(t *testing.T) {
	const course = int64(42)
	const owner = "owner-1"

	cases := []struct {
		name   string
		caller string
		grants []Grant
		want   bool
	}{
		{"owner", owner, nil, true},
		{"course teacher", "u1", []Grant{{Role: RoleTeacher, CourseID: scopedTo(course)}}, true},
		{"course co-teacher", "u1", []Grant{{Role: RoleCoTeacher, CourseID: scopedTo(course)}}, true},
		{"course ta", "u1", []Grant{{Role: RoleTA, CourseID: scopedTo(course)}}, true},
		{"course admin", "u1", []Grant{{Role: RoleAdmin, CourseID: scopedTo(course)}}, true},
		{"global admin", "u1", []Grant{{Role: RoleAdmin}}, true},
		{"global teacher", "u1", []Grant{{Role: RoleTeacher}}, false},
		{"global ta", "u1", []Grant{{Role: RoleTA}}, false},
		{"global co-teacher", "u1", []Grant{{Role: RoleCoTeacher}}, false},
		{"teacher of other course", "u1", []Grant{{Role: RoleTeacher, CourseID: scopedTo(99)}}, false},
		{"course student", "u1", []Grant{{Role: RoleStudent, CourseID: scopedTo(course)}}, false},
		{"no grants", "u1", nil, false},
		{"anonymous", "", nil, false},
	}
	for _, tc := range cases {
		if got := CanRedeem(tc.caller, owner, tc.grants, course); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestCanManageSessions(t *testing.T) {
	const course = int64(42)
	const owner = "owner-1"

	if !CanManageSessions(owner, owner, nil, course) {
		t.Fatalf("expected owner to manage sessions")
	}
	if !CanManageSessions("u1", owner, []Grant{{Role: RoleCoTeacher, CourseID: scopedTo(course)}}, course) {
		t.Fatalf("expected co-teacher to manage sessions")
	}
	if CanManageSessions("u1", owner, []Grant{{Role: RoleTA, CourseID: scopedTo(course)}}, course) {
		t.Fatalf("expected TA not to manage sessions")
	}
	if CanManageSessions("u1", owner, []Grant{{Role: RoleAdmin}}, course) {
		t.Fatalf("expected global admin not to manage sessions")
	}
}

func TestIsGlobalAdmin(t *testing.T) {
	if !IsGlobalAdmin([]Grant{{Role: RoleAdmin}}) {
		t.Fatalf("expected unscoped admin grant to count")
	}
	if IsGlobalAdmin([]Grant{{Role: RoleAdmin, CourseID: scopedTo(1)}}) {
		t.Fatalf("expected course-scoped admin grant not to count")
	}
}

func TestParseRole(t *testing.T) {
	for _, name := range []string{"STUDENT", "TA", "TEACHER", "CO_TEACHER", "ADMIN"} {
		role, err := ParseRole(name)
		if err != nil {
			t.Fatalf("expected %s to parse: %v", name, err)
		}
		if role.String() != name {
			t.Fatalf("expected %s, got %s", name, role)
		}
	}
	if _, err := ParseRole("SUPERUSER"); err == nil {
		t.Fatalf("expected unknown role to error")
	}
}
