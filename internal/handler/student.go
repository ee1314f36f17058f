package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"campusattend/internal/apperrors"
	"campusattend/internal/auth"
	"campusattend/internal/directory"
	"campusattend/internal/model"
	"campusattend/internal/report"
	"campusattend/internal/session"
)

// SearchStudents runs the capped teacher lookup over id, name and email.
func (h *Handler) SearchStudents(c *gin.Context) {
	students, err := h.dir.SearchStudents(c.Request.Context(), c.Query("q"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":  "students found",
		"students": students,
		"count":    len(students),
	})
}

type updateUserRequest struct {
	Name        string             `json:"name" binding:"required"`
	Email       string             `json:"email" binding:"required,email"`
	Department  string             `json:"department"`
	Year        int                `json:"year"`
	Division    string             `json:"division"`
	ContactInfo *model.ContactInfo `json:"contactInfo"`
}

// UpdateProfile mutates the authenticated user's own profile.
func (h *Handler) UpdateProfile(c *gin.Context) {
	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	claims, ok := auth.ClaimsFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
		return
	}

	user, err := h.dir.UpdateProfile(c.Request.Context(), claims.Subject, directory.UpdateInput{
		Name:        req.Name,
		Email:       req.Email,
		Department:  req.Department,
		Year:        req.Year,
		Division:    req.Division,
		ContactInfo: req.ContactInfo,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "profile updated successfully",
		"user":    user,
	})
}

// UpdateStudent is the teacher-assisted student update.
func (h *Handler) UpdateStudent(c *gin.Context) {
	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.dir.UpdateStudent(c.Request.Context(), c.Param("id"), directory.UpdateInput{
		Name:        req.Name,
		Email:       req.Email,
		Department:  req.Department,
		Year:        req.Year,
		Division:    req.Division,
		ContactInfo: req.ContactInfo,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "student updated successfully",
		"user":    user,
	})
}

// DeactivateStudent soft-deactivates a student account.
func (h *Handler) DeactivateStudent(c *gin.Context) {
	if err := h.dir.DeactivateStudent(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "student deactivated successfully"})
}

// StudentHistory derives a student's per-session attendance history.
func (h *Handler) StudentHistory(c *gin.Context) {
	userID := c.Param("id")
	user, err := h.dir.FindByID(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	if user.Role != model.RoleStudent {
		respondError(c, apperrors.NotFound("student"))
		return
	}

	f := session.Filters{Subject: c.Query("subject")}
	if v := c.Query("dateFrom"); v != "" {
		if t, err := parseDate(v); err == nil {
			f.DateFrom = &t
		}
	}
	if v := c.Query("dateTo"); v != "" {
		if t, err := parseDate(v); err == nil {
			f.DateTo = &t
		}
	}

	records, err := h.reports.StudentHistory(c.Request.Context(), user, f, c.Query("status"))
	if err != nil {
		respondError(c, err)
		return
	}

	studentID := ""
	if user.StudentID != nil {
		studentID = *user.StudentID
	}
	c.JSON(http.StatusOK, gin.H{
		"message":    "attendance records fetched successfully",
		"attendance": records,
		"student": gin.H{
			"name":       user.Name,
			"studentId":  studentID,
			"department": user.Department,
			"year":       user.Year,
			"division":   user.Division,
		},
	})
}

// TeacherAttendance returns filtered sessions with their full attendance
// entries for the teacher reporting view.
func (h *Handler) TeacherAttendance(c *gin.Context) {
	f := listFilters(c)
	f.LooseCohort = true
	sessions, err := h.sessions.ListAll(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}

	withStats := make([]sessionWithStats, 0, len(sessions))
	for _, sess := range sessions {
		withStats = append(withStats, sessionWithStats{sess, report.Stats(sess)})
	}
	c.JSON(http.StatusOK, gin.H{
		"message":  "attendance sessions fetched successfully",
		"sessions": withStats,
		"total":    len(withStats),
	})
}
