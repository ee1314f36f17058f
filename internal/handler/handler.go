package handler

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"campusattend/internal/apperrors"
	"campusattend/internal/config"
	"campusattend/internal/directory"
	"campusattend/internal/faceclient"
	"campusattend/internal/marking"
	"campusattend/internal/report"
	"campusattend/internal/session"
)

// Handler binds HTTP routes to the domain services.
type Handler struct {
	cfg      config.App
	dir      *directory.Service
	sessions *session.Service
	marking  *marking.Service
	reports  *report.Service
	face     *faceclient.Client
}

// New creates the handler set.
func New(cfg config.App, dir *directory.Service, sessions *session.Service, mark *marking.Service, reports *report.Service, face *faceclient.Client) *Handler {
	return &Handler{
		cfg:      cfg,
		dir:      dir,
		sessions: sessions,
		marking:  mark,
		reports:  reports,
		face:     face,
	}
}

// respondError translates domain errors into HTTP responses. Internal
// failures are logged with detail but reported generically.
func respondError(c *gin.Context, err error) {
	status, body := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.Printf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, body)
}
