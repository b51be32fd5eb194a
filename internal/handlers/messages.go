package handlers

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nfrund/gobychat/internal/domain"
	"github.com/nfrund/gobychat/internal/middleware"
)

// Messenger sends and lists direct messages.
type Messenger interface {
	Send(ctx context.Context, sender, recipient domain.Identity, payload string) (domain.Receipt, error)
	History(ctx context.Context, a, b domain.Identity, limit int) ([]domain.Message, error)
}

// Resolver looks up the identity behind a user id.
type Resolver interface {
	Resolve(ctx context.Context, userID string) (domain.Identity, error)
}

// UserLister lists users for the sidebar.
type UserLister interface {
	List(ctx context.Context, excludeID string) ([]domain.User, error)
}

type MessageHandler struct {
	messenger Messenger
	resolver  Resolver
	users     UserLister
}

func NewMessageHandler(messenger Messenger, resolver Resolver, users UserLister) *MessageHandler {
	return &MessageHandler{messenger: messenger, resolver: resolver, users: users}
}

// Users handles GET /api/messages/users.
func (h *MessageHandler) Users(c echo.Context) error {
	me, ok := middleware.IdentityFrom(c)
	if !ok {
		return domain.ErrUnauthenticated
	}
	users, err := h.users.List(c.Request().Context(), me.ID())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, NewUserList(users))
}

// History handles GET /api/messages/:id.
func (h *MessageHandler) History(c echo.Context) error {
	me, ok := middleware.IdentityFrom(c)
	if !ok {
		return domain.ErrUnauthenticated
	}

	var q HistoryQuery
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, &q); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "limit must be a number")
	}
	if err := c.Validate(&q); err != nil {
		return err
	}

	peer, err := h.resolver.Resolve(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}

	msgs, err := h.messenger.History(c.Request().Context(), me, peer, q.Limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, NewMessageList(msgs))
}

// Send handles POST /api/messages/send/:id.
func (h *MessageHandler) Send(c echo.Context) error {
	me, ok := middleware.IdentityFrom(c)
	if !ok {
		return domain.ErrUnauthenticated
	}

	var req SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return err
	}

	recipient, err := h.resolver.Resolve(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}

	receipt, err := h.messenger.Send(c.Request().Context(), me, recipient, req.Text)
	if err != nil {
		return err
	}

	resp := NewMessageResponse(receipt.Message)
	resp.Delivered = &receipt.Delivered
	return c.JSON(http.StatusCreated, resp)
}
