package policy

import "testing"

func TestCanPerform(t *testing.T) {
	admin := Principal{ID: "adm-1", Role: RoleAdmin}
	teacher := Principal{ID: "tch-1", Role: RoleTeacher}
	student := Principal{ID: "stu-1", Role: RoleStudent}
	anon := Principal{}

	allActions := []Action{
		CreateAttendance, ViewAttendance, CreateAbsence,
		ViewAbsence, ReviewAbsence, ManageStudents,
	}

	tests := []struct {
		name   string
		p      Principal
		action Action
		target Target
		want   bool
	}{
		{name: "teacher creates attendance", p: teacher, action: CreateAttendance, target: Target{ClassID: "cls-1"}, want: true},
		{name: "teacher views any attendance", p: teacher, action: ViewAttendance, target: Target{StudentID: "stu-9"}, want: true},
		{name: "teacher reviews absence", p: teacher, action: ReviewAbsence, want: true},
		{name: "teacher manages students", p: teacher, action: ManageStudents, want: true},
		{name: "teacher cannot submit absence", p: teacher, action: CreateAbsence, target: Target{StudentID: teacher.ID}, want: false},
		{name: "student views own attendance", p: student, action: ViewAttendance, target: Target{StudentID: "stu-1"}, want: true},
		{name: "student views other attendance", p: student, action: ViewAttendance, target: Target{StudentID: "stu-2"}, want: false},
		{name: "student submits own absence", p: student, action: CreateAbsence, target: Target{StudentID: "stu-1"}, want: true},
		{name: "student submits absence for other", p: student, action: CreateAbsence, target: Target{StudentID: "stu-2"}, want: false},
		{name: "student views own absence", p: student, action: ViewAbsence, target: Target{StudentID: "stu-1"}, want: true},
		{name: "student views other absence", p: student, action: ViewAbsence, target: Target{StudentID: "stu-2"}, want: false},
		{name: "student cannot review", p: student, action: ReviewAbsence, target: Target{StudentID: "stu-1"}, want: false},
		{name: "student cannot create attendance", p: student, action: CreateAttendance, target: Target{StudentID: "stu-1"}, want: false},
		{name: "student cannot manage students", p: student, action: ManageStudents, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanPerform(tt.p, tt.action, tt.target); got != tt.want {
				t.Errorf("CanPerform() = %v, want %v", got, tt.want)
			}
		})
	}

	t.Run("admin allowed everything", func(t *testing.T) {
		for _, a := range allActions {
			if !CanPerform(admin, a, Target{StudentID: "stu-5", ClassID: "cls-2"}) {
				t.Errorf("admin denied %s", a)
			}
		}
	})

	t.Run("unknown role denied everything", func(t *testing.T) {
		for _, a := range allActions {
			if CanPerform(anon, a, Target{}) {
				t.Errorf("anonymous allowed %s", a)
			}
		}
	})

	t.Run("pure for repeated calls", func(t *testing.T) {
		for i := 0; i < 100; i++ {
			if !CanPerform(teacher, ReviewAbsence, Target{}) {
				t.Fatal("result changed between identical calls")
			}
		}
	})
}

func TestRoleValid(t *testing.T) {
	for _, r := range []Role{RoleAdmin, RoleTeacher, RoleStudent} {
		if !r.Valid() {
			t.Errorf("%s should be valid", r)
		}
	}
	if Role("principal").Valid() {
		t.Error("unexpected role accepted")
	}
	if Role("").Valid() {
		t.Error("empty role accepted")
	}
}
