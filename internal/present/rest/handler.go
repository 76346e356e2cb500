package rest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/conselhomais/portal"
	"github.com/conselhomais/portal/internal/present/rest/middleware"
	"github.com/conselhomais/portal/internal/present/rest/presenter"
	"github.com/conselhomais/portal/internal/service"
	"github.com/conselhomais/portal/internal/usecase"
)

// Handler is the REST surface the site's pages consume. Reads come from the
// sync engine's in-memory state; writes go through the mutation facades and
// come back via the engine's subscriptions.
type Handler struct {
	engine   *service.Engine
	gate     *service.Gate
	auth     *service.Auth
	bridge   *service.CredentialBridge
	editor   *service.RecipientEditor
	signal   *service.SignalService
	content  *usecase.ContentUsecase
	messages *usecase.MessageUsecase
}

func NewHandler(
	engine *service.Engine,
	gate *service.Gate,
	auth *service.Auth,
	bridge *service.CredentialBridge,
	editor *service.RecipientEditor,
	signal *service.SignalService,
	content *usecase.ContentUsecase,
	messages *usecase.MessageUsecase,
) *Handler {
	return &Handler{
		engine:   engine,
		gate:     gate,
		auth:     auth,
		bridge:   bridge,
		editor:   editor,
		signal:   signal,
		content:  content,
		messages: messages,
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo, authMW *middleware.AuthMiddleware) {
	e.GET("/health", h.handleHealth)
	e.GET("/realtime", h.handleRealtime)

	v1 := e.Group("/api/v1")
	v1.GET("/state", h.handleState)
	v1.GET("/members", h.handleMembers)
	v1.GET("/posts", h.handlePosts)
	v1.GET("/news", h.handleNews)
	v1.GET("/tools", h.handleTools)
	v1.GET("/meta", h.handleMeta)
	v1.GET("/metrics", h.handleMetrics)
	v1.POST("/contact", h.handleContact)
	v1.POST("/login", h.handleLogin)

	admin := v1.Group("", authMW.RequireSession)
	admin.POST("/logout", h.handleLogout)

	admin.POST("/members", h.handleAddMember)
	admin.PUT("/members/:id", h.handleUpdateMember)
	admin.DELETE("/members/:id", h.handleRemoveMember)

	admin.POST("/posts", h.handleAddPost)
	admin.PUT("/posts/:id", h.handleUpdatePost)
	admin.DELETE("/posts/:id", h.handleRemovePost)

	admin.POST("/news", h.handleAddNews)
	admin.PUT("/news/:id", h.handleUpdateNews)
	admin.DELETE("/news/:id", h.handleRemoveNews)

	admin.POST("/tools", h.handleAddTool)
	admin.DELETE("/tools/:id", h.handleRemoveTool)

	admin.PUT("/meta", h.handleUpdateMeta)

	admin.POST("/metrics", h.handleAddMetric)
	admin.DELETE("/metrics/:id", h.handleRemoveMetric)

	admin.GET("/messages", h.handleMessages)
	admin.POST("/messages/:id/reply", h.handleReply)
	admin.PUT("/messages/:id/status", h.handleUpdateStatus)
	admin.DELETE("/messages/:id", h.handleRemoveMessage)

	admin.GET("/recipients", h.handleRecipients)
	admin.POST("/recipients", h.handleAddRecipientRow)
	admin.PUT("/recipients/:index", h.handleEditRecipient)
	admin.DELETE("/recipients/:index", h.handleRemoveRecipient)
}

func (h *Handler) handleHealth(c echo.Context) error {
	return presenter.OK(c, echo.Map{"status": "ok"})
}

func (h *Handler) handleState(c echo.Context) error {
	return presenter.OK(c, echo.Map{
		"loading":       h.engine.Loading(),
		"authenticated": h.gate.IsAuthenticated(),
	})
}

func (h *Handler) handleMembers(c echo.Context) error {
	return presenter.OK(c, h.engine.Members())
}

func (h *Handler) handlePosts(c echo.Context) error {
	return presenter.OK(c, h.engine.BlogPosts())
}

func (h *Handler) handleNews(c echo.Context) error {
	return presenter.OK(c, h.engine.NewsItems())
}

func (h *Handler) handleTools(c echo.Context) error {
	return presenter.OK(c, h.engine.Tools())
}

func (h *Handler) handleMeta(c echo.Context) error {
	return presenter.OK(c, h.engine.Meta())
}

func (h *Handler) handleMetrics(c echo.Context) error {
	return presenter.OK(c, h.engine.Metrics())
}

func (h *Handler) handleContact(c echo.Context) error {
	ctx := c.Request().Context()

	var input usecase.MessageInput
	if err := c.Bind(&input); err != nil {
		return presenter.BadRequest(c, err)
	}
	if input.Name == "" || input.Email == "" || input.Content == "" {
		return presenter.BadRequestMessage(c, "name, email and content are required")
	}

	msg, err := h.messages.Add(ctx, input)
	if err != nil {
		return presenter.InternalError(c, err)
	}
	return presenter.OK(c, echo.Map{"id": msg.ID})
}

type loginRequest struct {
	Secret string `json:"secret"`
}

func (h *Handler) handleLogin(c echo.Context) error {
	ctx := c.Request().Context()

	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	if !h.bridge.Login(ctx, req.Secret) {
		return presenter.Unauthorized(c, "login rejected")
	}

	token, err := h.auth.IssueSession(ctx)
	if err != nil {
		return presenter.InternalError(c, err)
	}
	return presenter.OK(c, echo.Map{"token": token})
}

func (h *Handler) handleLogout(c echo.Context) error {
	ctx := c.Request().Context()
	h.auth.RevokeSession(ctx, middleware.SessionToken(ctx))
	h.bridge.Logout(ctx)
	return presenter.OK(c, echo.Map{"status": "ok"})
}

func (h *Handler) handleAddMember(c echo.Context) error {
	var m portal.Member
	if err := c.Bind(&m); err != nil {
		return presenter.BadRequest(c, err)
	}
	if m.ID == "" {
		m.ID = portal.TimestampID()
	}
	if err := h.content.AddMember(c.Request().Context(), m); err != nil {
		return writeFailure(c, err)
	}
	return presenter.OK(c, echo.Map{"id": m.ID})
}

func (h *Handler) handleUpdateMember(c echo.Context) error {
	var m portal.Member
	if err := c.Bind(&m); err != nil {
		return presenter.BadRequest(c, err)
	}
	if err := h.content.UpdateMember(c.Request().Context(), c.Param("id"), m); err != nil {
		return writeFailure(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

func (h *Handler) handleRemoveMember(c echo.Context) error {
	if err := h.content.RemoveMember(c.Request().Context(), c.Param("id")); err != nil {
		return writeFailure(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

func (h *Handler) handleAddPost(c echo.Context) error {
	var p portal.BlogPost
	if err := c.Bind(&p); err != nil {
		return presenter.BadRequest(c, err)
	}
	if p.ID == "" {
		p.ID = portal.TimestampID()
	}
	if err := h.content.AddBlogPost(c.Request().Context(), p); err != nil {
		return writeFailure(c, err)
	}
	return presenter.OK(c, echo.Map{"id": p.ID})
}

func (h *Handler) handleUpdatePost(c echo.Context) error {
	var p portal.BlogPost
	if err := c.Bind(&p); err != nil {
		return presenter.BadRequest(c, err)
	}
	if err := h.content.UpdateBlogPost(c.Request().Context(), c.Param("id"), p); err != nil {
		return writeFailure(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

func (h *Handler) handleRemovePost(c echo.Context) error {
	if err := h.content.RemoveBlogPost(c.Request().Context(), c.Param("id")); err != nil {
		return writeFailure(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

func (h *Handler) handleAddNews(c echo.Context) error {
	var n portal.NewsItem
	if err := c.Bind(&n); err != nil {
		return presenter.BadRequest(c, err)
	}
	if n.ID == "" {
		n.ID = portal.TimestampID()
	}
	if err := h.content.AddNewsItem(c.Request().Context(), n); err != nil {
		return writeFailure(c, err)
	}
	return presenter.OK(c, echo.Map{"id": n.ID})
}

func (h *Handler) handleUpdateNews(c echo.Context) error {
	var n portal.NewsItem
	if err := c.Bind(&n); err != nil {
		return presenter.BadRequest(c, err)
	}
	if err := h.content.UpdateNewsItem(c.Request().Context(), c.Param("id"), n); err != nil {
		return writeFailure(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

func (h *Handler) handleRemoveNews(c echo.Context) error {
	if err := h.content.RemoveNewsItem(c.Request().Context(), c.Param("id")); err != nil {
		return writeFailure(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

func (h *Handler) handleAddTool(c echo.Context) error {
	var t portal.Tool
	if err := c.Bind(&t); err != nil {
		return presenter.BadRequest(c, err)
	}
	if t.ID == "" {
		t.ID = portal.TimestampID()
	}
	if err := h.content.AddTool(c.Request().Context(), t); err != nil {
		return writeFailure(c, err)
	}
	return presenter.OK(c, echo.Map{"id": t.ID})
}

func (h *Handler) handleRemoveTool(c echo.Context) error {
	if err := h.content.RemoveTool(c.Request().Context(), c.Param("id")); err != nil {
		return writeFailure(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

func (h *Handler) handleUpdateMeta(c echo.Context) error {
	var tags portal.MetaConfig
	if err := c.Bind(&tags); err != nil {
		return presenter.BadRequest(c, err)
	}
	if err := h.content.UpdateMetaTags(c.Request().Context(), tags); err != nil {
		return writeFailure(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

func (h *Handler) handleAddMetric(c echo.Context) error {
	var m portal.Metric
	if err := c.Bind(&m); err != nil {
		return presenter.BadRequest(c, err)
	}
	if m.ID == "" {
		m.ID = portal.TimestampID()
	}
	if err := h.content.AddMetric(c.Request().Context(), m); err != nil {
		return writeFailure(c, err)
	}
	return presenter.OK(c, echo.Map{"id": m.ID})
}

func (h *Handler) handleRemoveMetric(c echo.Context) error {
	if err := h.content.RemoveMetric(c.Request().Context(), c.Param("id")); err != nil {
		return writeFailure(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

func (h *Handler) handleMessages(c echo.Context) error {
	return presenter.OK(c, h.engine.Messages())
}

type replyRequest struct {
	Reply string `json:"reply"`
}

func (h *Handler) handleReply(c echo.Context) error {
	var req replyRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}
	if req.Reply == "" {
		return presenter.BadRequestMessage(c, "reply text is required")
	}

	if !h.messages.Reply(c.Request().Context(), c.Param("id"), req.Reply) {
		return presenter.OK(c, echo.Map{"replied": false})
	}
	return presenter.OK(c, echo.Map{"replied": true})
}

type statusRequest struct {
	Status portal.MessageStatus `json:"status"`
	Force  bool                 `json:"force,omitempty"`
}

func (h *Handler) handleUpdateStatus(c echo.Context) error {
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	err := h.messages.UpdateStatus(c.Request().Context(), c.Param("id"), req.Status, req.Force)
	if err != nil {
		if errors.Is(err, portal.ErrIllegalTransition) {
			return presenter.Conflict(c, err)
		}
		if errors.Is(err, portal.ErrNotFound) {
			return presenter.NotFound(c, err.Error())
		}
		return writeFailure(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

func (h *Handler) handleRemoveMessage(c echo.Context) error {
	if err := h.messages.Remove(c.Request().Context(), c.Param("id")); err != nil {
		return writeFailure(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

// The recipient endpoints drive the coalescing editor: the admin UI posts
// every edit and the editor decides when the store actually gets written.
func (h *Handler) handleRecipients(c echo.Context) error {
	return presenter.OK(c, echo.Map{
		"emails":  h.editor.Draft(),
		"editing": h.editor.Editing(),
	})
}

func (h *Handler) handleAddRecipientRow(c echo.Context) error {
	h.editor.AddBlank()
	return presenter.OK(c, echo.Map{"emails": h.editor.Draft()})
}

type recipientEdit struct {
	Value string `json:"value"`
}

func (h *Handler) handleEditRecipient(c echo.Context) error {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return presenter.BadRequestMessage(c, "invalid index")
	}
	var req recipientEdit
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}
	h.editor.SetEntry(index, req.Value)
	return presenter.OK(c, echo.Map{"emails": h.editor.Draft()})
}

func (h *Handler) handleRemoveRecipient(c echo.Context) error {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return presenter.BadRequestMessage(c, "invalid index")
	}
	h.editor.Remove(c.Request().Context(), index)
	return presenter.OK(c, echo.Map{"emails": h.editor.Draft()})
}

func writeFailure(c echo.Context, err error) error {
	if errors.Is(err, portal.ErrInvalidRecord) {
		return presenter.BadRequest(c, err)
	}
	return presenter.InternalError(c, err)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type realtimeRequest struct {
	Type        string   `json:"type"`
	Collections []string `json:"collections"`
}

func (h *Handler) handleRealtime(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Error(
			"Failed to upgrade WebSocket",
			slog.String("error", err.Error()),
			slog.String("module", "socket"),
		)
		return err
	}
	defer func() {
		ws.Close()
	}()

	ctx := c.Request().Context()

	output := make(chan portal.Event)
	listen := make(chan []string)
	quit := make(chan struct{})

	go h.forwardEvents(ctx, listen, output)

	go func() {
		for {
			var req realtimeRequest
			err := ws.ReadJSON(&req)
			if err != nil {

				wsErr, ok := err.(*websocket.CloseError)
				if ok {
					if !(wsErr.Code == websocket.CloseNormalClosure || wsErr.Code == websocket.CloseGoingAway) {
						slog.DebugContext(
							ctx, "WebSocket closed",
							slog.String("error", wsErr.Error()),
							slog.String("module", "socket"),
						)
					}
				} else {
					slog.ErrorContext(
						ctx, "Error reading message",
						slog.String("error", err.Error()),
						slog.String("module", "socket"),
					)
				}

				quit <- struct{}{}
				break
			}

			switch req.Type {
			case "listen":
				listen <- req.Collections
				slog.DebugContext(
					ctx, fmt.Sprintf("Socket subscribe: %s", req.Collections),
					slog.String("module", "socket"),
				)
			case "h": // heartbeat
				// do nothing
			default:
				slog.InfoContext(
					ctx, "Unknown request type",
					slog.String("type", req.Type),
					slog.String("module", "socket"),
				)
			}
		}
	}()

	for {
		select {
		case <-quit:
			return nil
		case event := <-output:
			err := ws.WriteJSON(event)
			if err != nil {
				slog.ErrorContext(
					ctx, "Error writing message",
					slog.String("error", err.Error()),
					slog.String("module", "socket"),
				)
				return nil
			}
		}
	}
}

// forwardEvents bridges the signal watch into the socket's output channel,
// restarting the watch whenever the client changes its listen set.
func (h *Handler) forwardEvents(ctx context.Context, listen <-chan []string, output chan<- portal.Event) {
	var cancel context.CancelFunc
	defer func() {
		if cancel != nil {
			cancel()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case collections, ok := <-listen:
			if !ok {
				return
			}
			if cancel != nil {
				cancel()
			}
			watchCtx, watchCancel := context.WithCancel(ctx)
			cancel = watchCancel

			events, err := h.signal.Watch(watchCtx, collections)
			if err != nil {
				slog.ErrorContext(
					ctx, "Failed to watch collections",
					slog.String("error", err.Error()),
					slog.String("module", "socket"),
				)
				continue
			}
			go func() {
				for event := range events {
					select {
					case output <- event:
					case <-watchCtx.Done():
						return
					}
				}
			}()
		}
	}
}
