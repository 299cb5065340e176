package reminders

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hopehouse/reminders/internal/adapters/controller/http/handlers"
	"github.com/hopehouse/reminders/internal/domain/dto"
	"github.com/hopehouse/reminders/internal/domain/entity"
	"github.com/hopehouse/reminders/pkg/logger/types"
)

const scopeRegistrations = "registrations"

type reminderService interface {
	CreateRemindersForRegistration(ctx context.Context, eventID, registrationID string) ([]entity.Reminder, error)
	CreateRemindersForEvent(ctx context.Context, eventID string) ([]entity.Reminder, error)
	ScheduleEvent(ctx context.Context, eventID string) ([]entity.Reminder, error)
	CancelForRegistration(ctx context.Context, eventID, registrationID string) (int64, error)
	CancelForEvent(ctx context.Context, eventID string) (int64, error)
	Stats(ctx context.Context) (dto.ReminderStats, error)
}

type Handler struct {
	reminderService reminderService
	logger          *types.Logger
}

func New(reminderService reminderService, logger *types.Logger) *Handler {
	return &Handler{
		reminderService: reminderService,
		logger:          logger,
	}
}

// CreateForRegistration is called by the web application right after a registration is saved.
func (h Handler) CreateForRegistration(c *gin.Context) {
	reminders, err := h.reminderService.CreateRemindersForRegistration(c.Request.Context(), c.Param("eventId"), c.Param("registrationId"))
	if err != nil {
		handlers.RespondError(c, h.logger, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reminders": dto.NewRemindersFromEntities(reminders)})
}

func (h Handler) CancelForRegistration(c *gin.Context) {
	n, err := h.reminderService.CancelForRegistration(c.Request.Context(), c.Param("eventId"), c.Param("registrationId"))
	if err != nil {
		handlers.RespondError(c, h.logger, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": n})
}

// CreateForEvent creates broadcast reminders, or with ?scope=registrations
// schedules reminders for every registration of the event.
func (h Handler) CreateForEvent(c *gin.Context) {
	var (
		reminders []entity.Reminder
		err       error
	)
	if c.Query("scope") == scopeRegistrations {
		reminders, err = h.reminderService.ScheduleEvent(c.Request.Context(), c.Param("eventId"))
	} else {
		reminders, err = h.reminderService.CreateRemindersForEvent(c.Request.Context(), c.Param("eventId"))
	}
	if err != nil {
		handlers.RespondError(c, h.logger, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reminders": dto.NewRemindersFromEntities(reminders)})
}

func (h Handler) CancelForEvent(c *gin.Context) {
	n, err := h.reminderService.CancelForEvent(c.Request.Context(), c.Param("eventId"))
	if err != nil {
		handlers.RespondError(c, h.logger, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": n})
}

func (h Handler) Stats(c *gin.Context) {
	stats, err := h.reminderService.Stats(c.Request.Context())
	if err != nil {
		handlers.RespondError(c, h.logger, err, nil)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Setup registers the reminder routes on an already authorized /api group.
func (h Handler) Setup(group *gin.RouterGroup) {
	events := group.Group("/events/:eventId")
	events.POST("/registrations/:registrationId/reminders", h.CreateForRegistration)
	events.DELETE("/registrations/:registrationId/reminders", h.CancelForRegistration)
	events.POST("/reminders", h.CreateForEvent)
	events.DELETE("/reminders", h.CancelForEvent)

	group.GET("/reminders/stats", h.Stats)
}
