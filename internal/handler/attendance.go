package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"campusattend/internal/apperrors"
	"campusattend/internal/marking"
	"campusattend/internal/metrics"
	"campusattend/internal/model"
	"campusattend/internal/report"
	"campusattend/internal/session"
)

type createSessionRequest struct {
	Date       string `json:"date" binding:"required"`
	Subject    string `json:"subject" binding:"required"`
	Department string `json:"department" binding:"required"`
	Year       int    `json:"year" binding:"required"`
	Division   string `json:"division" binding:"required"`
	Semester   string `json:"semester"`
	TeacherID  string `json:"teacherId" binding:"required"`
}

func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}

// CreateSession opens a new attendance session for a class meeting.
func (h *Handler) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		respondError(c, apperrors.Validation("invalid date %q", req.Date))
		return
	}

	sess, err := h.sessions.Create(c.Request.Context(), session.CreateInput{
		Date:       date,
		Subject:    req.Subject,
		Department: req.Department,
		Year:       req.Year,
		Division:   req.Division,
		Semester:   req.Semester,
		TeacherID:  req.TeacherID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	metrics.SessionsCreated.Inc()

	c.JSON(http.StatusCreated, gin.H{
		"message": "attendance session created successfully",
		"session": sess,
	})
}

func listFilters(c *gin.Context) session.Filters {
	f := session.Filters{
		Department: c.Query("department"),
		Division:   c.Query("division"),
		Subject:    c.Query("subject"),
		Semester:   c.Query("semester"),
		Status:     model.SessionStatus(c.Query("status")),
	}
	if v := c.Query("year"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			f.Year = parsed
		}
	}
	if v := c.Query("startDate"); v != "" {
		if t, err := parseDate(v); err == nil {
			f.DateFrom = &t
		}
	}
	if v := c.Query("endDate"); v != "" {
		if t, err := parseDate(v); err == nil {
			f.DateTo = &t
		}
	}
	return f
}

type sessionWithStats struct {
	model.AttendanceSession
	report.SessionStats
}

// ListSessions returns a filtered, paginated session listing with per-session
// attendance statistics.
func (h *Handler) ListSessions(c *gin.Context) {
	page, limit := 1, 10
	if v := c.Query("page"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			page = parsed
		}
	}
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}

	result, err := h.sessions.List(c.Request.Context(), listFilters(c), page, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	withStats := make([]sessionWithStats, 0, len(result.Sessions))
	for _, sess := range result.Sessions {
		withStats = append(withStats, sessionWithStats{sess, report.Stats(sess)})
	}

	c.JSON(http.StatusOK, gin.H{
		"sessions": withStats,
		"pagination": gin.H{
			"currentPage":   result.CurrentPage,
			"totalPages":    result.TotalPages,
			"totalSessions": result.Total,
			"hasNext":       result.HasNext,
			"hasPrev":       result.HasPrev,
		},
	})
}

// GetSession returns one session with statistics regardless of status, for
// monitoring views.
func (h *Handler) GetSession(c *gin.Context) {
	sess, err := h.sessions.FindByID(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session": sessionWithStats{sess, report.Stats(sess)},
	})
}

type transitionRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateSessionStatus applies a terminal status transition.
func (h *Handler) UpdateSessionStatus(c *gin.Context) {
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess, err := h.sessions.TransitionStatus(c.Request.Context(), c.Param("sessionId"), model.SessionStatus(req.Status))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "session status updated successfully",
		"session": sess,
	})
}

type markImageRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
	Image     string `json:"image" binding:"required"`
}

// MarkAttendance runs the image-driven marking path.
func (h *Handler) MarkAttendance(c *gin.Context) {
	var req markImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.marking.MarkByImage(c.Request.Context(), req.SessionID, req.Image)
	if err != nil {
		respondError(c, err)
		return
	}
	respondMarking(c, result)
}

type markManualRequest struct {
	SessionID  string   `json:"sessionId" binding:"required"`
	StudentID  string   `json:"studentId" binding:"required"`
	Confidence *float64 `json:"confidence" binding:"required"`
}

// MarkAttendanceManual runs the manual-assertion path: recognition already
// happened client-side and only the marking decision remains.
func (h *Handler) MarkAttendanceManual(c *gin.Context) {
	var req markManualRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.marking.MarkByAssertion(c.Request.Context(), req.SessionID, req.StudentID, *req.Confidence)
	if err != nil {
		respondError(c, err)
		return
	}
	respondMarking(c, result)
}

// respondMarking maps a marking result onto the wire contract. Rejections
// that a student can act on (not recognized, already marked) are 200-level
// informational results, not errors.
func respondMarking(c *gin.Context, r marking.Result) {
	switch r.Outcome {
	case marking.OutcomeAccepted:
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"status":  "success",
			"message": "attendance marked successfully",
			"student": gin.H{
				"studentId": r.StudentID,
				"name":      r.StudentName,
			},
			"confidence": r.Confidence,
			"markedAt":   r.MarkedAt,
			"sessionId":  r.SessionID,
		})
	case marking.OutcomeAlreadyMarked:
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"status":  "already_marked",
			"message": "attendance was already marked",
			"student": gin.H{
				"studentId": r.StudentID,
				"name":      r.StudentName,
			},
			"confidence": r.Confidence,
			"markedAt":   r.MarkedAt,
			"sessionId":  r.SessionID,
		})
	case marking.OutcomeNotRecognized:
		c.JSON(http.StatusOK, gin.H{
			"success":         false,
			"recognized":      false,
			"message":         "face not recognized",
			"confidence":      r.Confidence,
			"liveness_passed": r.LivenessPassed,
		})
	case marking.OutcomeSessionInactive:
		c.JSON(http.StatusNotFound, gin.H{"error": "active session not found", "code": "SESSION_INACTIVE"})
	case marking.OutcomeStudentUnknown:
		c.JSON(http.StatusNotFound, gin.H{"error": "student not found", "code": "STUDENT_UNKNOWN"})
	case marking.OutcomeNotEnrolled:
		c.JSON(http.StatusForbidden, gin.H{"error": "student is not enrolled in this class", "code": "NOT_ENROLLED"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error", "code": "INTERNAL_ERROR"})
	}
}
