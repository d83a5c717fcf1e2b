package policy

// Role is the authorization role carried by a principal.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// Valid returns true when the role is a supported value.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleTeacher, RoleStudent:
		return true
	default:
		return false
	}
}

// Principal is the authenticated actor for one request.
type Principal struct {
	ID   string
	Role Role
}

// Action names an operation gated by the policy engine.
type Action string

const (
	CreateAttendance Action = "attendance.create"
	ViewAttendance   Action = "attendance.view"
	CreateAbsence    Action = "absence.create"
	ViewAbsence      Action = "absence.view"
	ReviewAbsence    Action = "absence.review"
	ManageStudents   Action = "students.manage"
)

// Target carries the subject of an action when scope matters. A zero
// StudentID means the action is not about a particular student.
type Target struct {
	StudentID string
	ClassID   string
}

// CanPerform reports whether p may perform action on target. It is pure:
// same inputs always give the same answer, and denial is false, never an
// error. Rules are evaluated in precedence order, first match wins.
func CanPerform(p Principal, action Action, target Target) bool {
	switch p.Role {
	case RoleAdmin:
		return true
	case RoleTeacher:
		switch action {
		case CreateAttendance, ViewAttendance, ViewAbsence, ReviewAbsence, ManageStudents:
			return true
		}
		return false
	case RoleStudent:
		switch action {
		case ViewAttendance, ViewAbsence:
			return target.StudentID == p.ID
		case CreateAbsence:
			return target.StudentID == p.ID
		}
		return false
	}
	// Unknown or unauthenticated role.
	return false
}
