package sandbox

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/ehr/healthassist/internal/domain/assessment"
	"github.com/ehr/healthassist/internal/platform/auth"
	"github.com/ehr/healthassist/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	chat := api.Group("/assessment/chat", auth.RequireRole(auth.RolePatient))
	chat.POST("", h.Chat)
	chat.POST("/complete", h.Complete)
	chat.POST("/reset", h.Reset)
	chat.GET("/current", h.Current)
	chat.GET("/history", h.History)
	chat.GET("/history/:session_id", h.HistorySession)
}

func (h *Handler) Chat(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	var req assessment.ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.SessionID != nil && strings.TrimSpace(*req.SessionID) == "" {
		req.SessionID = nil
	}
	res, err := h.svc.Chat(c.Request().Context(), userID, req.Message, req.SessionID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res.Body())
}

func (h *Handler) Complete(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	id := strings.TrimSpace(c.QueryParam("session_id"))
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session_id is required")
	}
	result, err := h.svc.Complete(c.Request().Context(), userID, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) Reset(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	reply, err := h.svc.Reset(c.Request().Context(), userID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, reply)
}

func (h *Handler) Current(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	sess, err := h.svc.Current(c.Request().Context(), userID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "no active session")
		}
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sess)
}

func (h *Handler) History(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	p, err := pagination.FromContext(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	items, err := h.svc.History(c.Request().Context(), userID, p.Limit, p.IncludeConversation)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) HistorySession(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	include := true
	if raw := c.QueryParam("include_conversation"); raw != "" {
		if include, err = strconv.ParseBool(raw); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "include_conversation must be a boolean")
		}
	}
	sess, err := h.svc.HistorySession(c.Request().Context(), userID, c.Param("session_id"), include)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sess)
}

func currentUser(c echo.Context) (string, error) {
	uid := auth.UserIDFromContext(c.Request().Context())
	if uid == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return uid, nil
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrSessionNotActive):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrNotEnoughInformation), errors.Is(err, ErrEmptyMessage):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal error").SetInternal(err)
}
