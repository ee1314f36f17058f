package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"campusattend/internal/apperrors"
	"campusattend/internal/metrics"
)

type faceRegisterRequest struct {
	Image     string `json:"image" binding:"required"`
	StudentID string `json:"studentId" binding:"required"`
}

// RegisterFace enrolls a student's face: the recognition service produces an
// embedding which is persisted as the student's face template.
func (h *Handler) RegisterFace(c *gin.Context) {
	var req faceRegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	student, err := h.dir.FindActiveStudent(c.Request.Context(), req.StudentID)
	if err != nil {
		respondError(c, err)
		return
	}
	if student == nil {
		respondError(c, apperrors.NotFound("student"))
		return
	}

	start := time.Now()
	result, err := h.face.RegisterFace(c.Request.Context(), req.Image, req.StudentID)
	metrics.FaceRequestDuration.WithLabelValues("register").Observe(time.Since(start).Seconds())
	if err != nil {
		respondError(c, apperrors.Recognition(err))
		return
	}

	if err := h.dir.SaveFaceTemplate(c.Request.Context(), student.ID, result.Embedding); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "face registered successfully",
		"success":    true,
		"student_id": req.StudentID,
	})
}

type faceRecognizeRequest struct {
	Image string `json:"image" binding:"required"`
}

// RecognizeFace matches an image against every active student with a face
// template. The result is informational only; nothing is marked.
func (h *Handler) RecognizeFace(c *gin.Context) {
	var req faceRecognizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	candidates, err := h.dir.AllWithFaceData(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if len(candidates) == 0 {
		respondError(c, apperrors.ErrNoTemplates)
		return
	}

	start := time.Now()
	result, err := h.face.RecognizeFace(c.Request.Context(), req.Image, candidates)
	metrics.FaceRequestDuration.WithLabelValues("recognize").Observe(time.Since(start).Seconds())
	if err != nil {
		respondError(c, apperrors.Recognition(err))
		return
	}

	if !result.Recognized {
		c.JSON(http.StatusOK, gin.H{
			"recognized":      false,
			"confidence":      result.Confidence,
			"liveness_passed": result.LivenessPassed,
		})
		return
	}

	var name string
	for _, cand := range candidates {
		if cand.StudentID == result.StudentID {
			name = cand.Name
			break
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"recognized": true,
		"student": gin.H{
			"studentId": result.StudentID,
			"name":      name,
		},
		"confidence":      result.Confidence,
		"liveness_passed": result.LivenessPassed,
	})
}
