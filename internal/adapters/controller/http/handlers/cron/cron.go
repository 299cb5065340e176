package cron

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hopehouse/reminders/internal/adapters/controller/http/handlers"
	"github.com/hopehouse/reminders/internal/domain/dto"
	"github.com/hopehouse/reminders/pkg/logger/types"
)

type jobRunner interface {
	ProcessReminders(ctx context.Context) (dto.DispatchSummary, error)
	CleanupOldContent(ctx context.Context) (dto.CleanupSummary, error)
}

type Handler struct {
	runner jobRunner
	logger *types.Logger
}

func New(runner jobRunner, logger *types.Logger) *Handler {
	return &Handler{
		runner: runner,
		logger: logger,
	}
}

func (h Handler) ProcessReminders(c *gin.Context) {
	summary, err := h.runner.ProcessReminders(c.Request.Context())
	if err != nil {
		handlers.RespondError(c, h.logger, err, summary)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h Handler) CleanupOldContent(c *gin.Context) {
	summary, err := h.runner.CleanupOldContent(c.Request.Context())
	if err != nil {
		handlers.RespondError(c, h.logger, err, summary)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// Setup registers the cron routes on an already authorized group.
func (h Handler) Setup(group *gin.RouterGroup) {
	group.GET("/process-reminders", h.ProcessReminders)
	group.POST("/process-reminders", h.ProcessReminders)
	group.GET("/cleanup", h.CleanupOldContent)
	group.POST("/cleanup", h.CleanupOldContent)
}
