package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// AttendanceMarks counts attendance rows written by sheet saves.
var AttendanceMarks = promauto.NewCounter(prometheus.CounterOpts{
	Name: "classroll_attendance_marks_total",
	Help: "Attendance records written (inserts and overwrites).",
})

// AbsenceDecisions counts absence review outcomes.
var AbsenceDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "classroll_absence_decisions_total",
	Help: "Absence explanations decided, by outcome.",
}, []string{"outcome"})

// PolicyDenials counts requests rejected by the policy engine.
var PolicyDenials = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "classroll_policy_denials_total",
	Help: "Operations denied by the policy engine, by action.",
}, []string{"action"})
