package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MarkingAttempts counts marking attempts by terminal outcome
// (accepted, already_marked, not_enrolled, not_recognized, session_inactive,
// student_unknown, error).
var MarkingAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "attendance_marking_attempts_total",
	Help: "Marking attempts by outcome.",
}, []string{"outcome"})

// SessionsCreated counts attendance sessions opened.
var SessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
	Name: "attendance_sessions_created_total",
	Help: "Attendance sessions created.",
})

// FaceRequestDuration observes recognition gateway call latency.
var FaceRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "face_service_request_duration_seconds",
	Help:    "Latency of recognition service calls.",
	Buckets: prometheus.DefBuckets,
}, []string{"operation"})
