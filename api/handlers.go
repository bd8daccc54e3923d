package api

import (
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"board-api/board"
	"board-api/domain"
)

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, sessions *Sessions, auth Authenticator, logger *log.Logger) {
	e.GET("/healthz", healthz())
	e.GET("/api/profiles", getProfiles(sessions, auth))

	p := e.Group("/api/projects/:projectID")
	p.GET("/board", getBoard(sessions, auth, logger))
	p.POST("/tasks", postTask(sessions, auth))
	p.GET("/tasks/:taskID", getTaskDetail(sessions, auth))
	p.PATCH("/tasks/:taskID", patchTask(sessions, auth))
	p.DELETE("/tasks/:taskID", deleteTask(sessions, auth))
	p.POST("/tasks/:taskID/move", postMove(sessions, auth))

	p.POST("/tasks/:taskID/checklist", postChecklistItem(sessions, auth))
	p.POST("/tasks/:taskID/checklist/:itemID/toggle", toggleChecklistItem(sessions, auth))
	p.DELETE("/tasks/:taskID/checklist/:itemID", deleteChecklistItem(sessions, auth))

	p.POST("/tasks/:taskID/comments", postComment(sessions, auth))
	p.PATCH("/tasks/:taskID/comments/:commentID", patchComment(sessions, auth))
	p.DELETE("/tasks/:taskID/comments/:commentID", deleteComment(sessions, auth))

	p.POST("/tasks/:taskID/attachments", postAttachment(sessions, auth))

	p.POST("/labels", postLabel(sessions, auth))
	p.DELETE("/labels/:labelID", deleteLabel(sessions, auth))
	p.POST("/tasks/:taskID/labels/:labelID/toggle", toggleLabel(sessions, auth))
	p.POST("/tasks/:taskID/assignees/:userID/toggle", toggleAssignee(sessions, auth))
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func userFromRequest(c echo.Context, auth Authenticator) (string, error) {
	return auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
}

func decodeBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, requestBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeDomainError(c echo.Context, err error) error {
	switch {
	case domain.IsValidation(err):
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	case domain.IsNotFound(err):
		return c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	case domain.IsRemote(err):
		c.Logger().Error(err)
		return c.JSON(http.StatusBadGateway, errorResponse{Error: "upstream store failure"})
	default:
		c.Logger().Error(err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func getBoard(sessions *Sessions, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newBoardRequestMetrics(ctx, logger)
		if spanCtx != nil {
			c.SetRequest(c.Request().WithContext(spanCtx))
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		_, authErr := userFromRequest(c, auth)
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.String(http.StatusUnauthorized, authErr.Error())
			return err
		}

		fetchStart := time.Now()
		sess, fetchErr := sessions.Get(ctx, c.Param("projectID"))
		metrics.ObserveFetch(time.Since(fetchStart))
		if fetchErr != nil {
			metrics.SetErrorStage("storage")
			err = writeDomainError(c, fetchErr)
			return err
		}

		resp := boardResponse{
			Tasks:   sess.State.Tasks(),
			Labels:  sess.Labels.All(),
			Columns: domain.Columns(),
			Palette: domain.Palette(),
		}
		metrics.SetReturned(len(resp.Tasks), len(resp.Labels))

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, resp)
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func postTask(sessions *Sessions, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := userFromRequest(c, auth)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		var req createTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}

		ctx := c.Request().Context()
		projectID := c.Param("projectID")
		sess, err := sessions.Get(ctx, projectID)
		if err != nil {
			return writeDomainError(c, err)
		}

		created, err := sess.State.CreateTask(ctx, projectID, userID, domain.Status(req.Status), req.Title)
		if err != nil {
			return writeDomainError(c, err)
		}
		return c.JSON(http.StatusCreated, created)
	}
}

func postMove(sessions *Sessions, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := userFromRequest(c, auth); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		var req moveTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}

		ctx := c.Request().Context()
		sess, err := sessions.Get(ctx, c.Param("projectID"))
		if err != nil {
			return writeDomainError(c, err)
		}

		if err := sess.State.MoveTask(ctx, c.Param("taskID"), domain.Status(req.Status)); err != nil {
			return writeDomainError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func deleteTask(sessions *Sessions, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := userFromRequest(c, auth); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		ctx := c.Request().Context()
		sess, err := sessions.Get(ctx, c.Param("projectID"))
		if err != nil {
			return writeDomainError(c, err)
		}

		if err := sess.State.DeleteTask(ctx, c.Param("taskID")); err != nil {
			return writeDomainError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

// openDetail hydrates a request-scoped detail view for the request's
// task. Every request holds its own selection; concurrent requests
// editing different tasks of the same project cannot cross-commit.
func openDetail(c echo.Context, sessions *Sessions) (*board.Session, *board.Detail, error) {
	ctx := c.Request().Context()
	sess, err := sessions.Get(ctx, c.Param("projectID"))
	if err != nil {
		return nil, nil, err
	}
	detail := sess.NewDetail()
	if err := detail.Open(ctx, c.Param("taskID")); err != nil {
		return nil, nil, err
	}
	return sess, detail, nil
}

func getTaskDetail(sessions *Sessions, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := userFromRequest(c, auth); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		_, detail, err := openDetail(c, sessions)
		if err != nil {
			return writeDomainError(c, err)
		}

		view, ok := detail.View()
		if !ok {
			return c.NoContent(http.StatusNotFound)
		}
		return c.JSON(http.StatusOK, detailResponse{
			Task:        view.Task,
			Checklist:   view.Checklist,
			Comments:    view.Comments,
			Attachments: view.Attachments,
		})
	}
}

func patchTask(sessions *Sessions, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := userFromRequest(c, auth); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		var req updateTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}

		sess, detail, err := openDetail(c, sessions)
		if err != nil {
			return writeDomainError(c, err)
		}
		ctx := c.Request().Context()

		if req.Title != nil {
			detail.SetTitleDraft(*req.Title)
			if err := detail.CommitTitle(ctx); err != nil {
				return writeDomainError(c, err)
			}
		}
		if req.Description != nil {
			detail.SetDescriptionDraft(*req.Description)
			if err := detail.CommitDescription(ctx); err != nil {
				return writeDomainError(c, err)
			}
		}
		if req.DueDate != nil {
			due, parseErr := time.Parse(time.RFC3339, *req.DueDate)
			if parseErr != nil {
				return writeDomainError(c, domain.ValidationError{Field: "dueDate", Reason: "must be RFC 3339"})
			}
			if err := detail.SetDueDate(ctx, due); err != nil {
				return writeDomainError(c, err)
			}
		}

		task, _ := sess.State.Task(c.Param("taskID"))
		return c.JSON(http.StatusOK, task)
	}
}

func postChecklistItem(sessions *Sessions, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := userFromRequest(c, auth); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		var req checklistItemRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}

		_, detail, err := openDetail(c, sessions)
		if err != nil {
			return writeDomainError(c, err)
		}

		item, err := detail.AddChecklistItem(c.Request().Context(), req.Title)
		if err != nil {
			return writeDomainError(c, err)
		}
		return c.JSON(http.StatusCreated, item)
	}
}

func toggleChecklistItem(sessions *Sessions, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := userFromRequest(c, auth); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		_, detail, err := openDetail(c, sessions)
		if err != nil {
			return writeDomainError(c, err)
		}

		if err := detail.ToggleChecklistItem(c.Request().Context(), c.Param("itemID")); err != nil {
			return writeDomainError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func deleteChecklistItem(sessions *Sessions, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := userFromRequest(c, auth); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		_, detail, err := openDetail(c, sessions)
		if err != nil {
			return writeDomainError(c, err)
		}

		if err := detail.DeleteChecklistItem(c.Request().Context(), c.Param("itemID")); err != nil {
			return writeDomainError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func postComment(sessions *Sessions, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := userFromRequest(c, auth)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		var req commentRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}

		_, detail, err := openDetail(c, sessions)
		if err != nil {
			return writeDomainError(c, err)
		}

		comment, err := detail.AddComment(c.Request().Context(), userID, req.Content)
		if err != nil {
			return writeDomainError(c, err)
		}
		return c.JSON(http.StatusCreated, comment)
	}
}

func patchComment(sessions *Sessions, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := userFromRequest(c, auth); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		var req commentRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}

		_, detail, err := openDetail(c, sessions)
		if err != nil {
			return writeDomainError(c, err)
		}

		if err := detail.UpdateComment(c.Request().Context(), c.Param("commentID"), req.Content); err != nil {
			return writeDomainError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func deleteComment(sessions *Sessions, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := userFromRequest(c, auth); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		_, detail, err := openDetail(c, sessions)
		if err != nil {
			return writeDomainError(c, err)
		}

		// The client already confirmed; run the request/confirm pair here.
		detail.RequestDeleteComment(c.Param("commentID"))
		if err := detail.ConfirmDeleteComment(c.Request().Context()); err != nil {
			return writeDomainError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func postAttachment(sessions *Sessions, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := userFromRequest(c, auth); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		fileHeader, err := c.FormFile("file")
		if err != nil {
			return c.String(http.StatusBadRequest, "missing file")
		}
		if fileHeader.Size > attachmentMaxSize {
			return c.String(http.StatusRequestEntityTooLarge, "file too large")
		}

		f, err := fileHeader.Open()
		if err != nil {
			return c.String(http.StatusBadRequest, "unreadable file")
		}
		defer f.Close()
		data, err := io.ReadAll(io.LimitReader(f, attachmentMaxSize))
		if err != nil {
			return c.String(http.StatusBadRequest, "unreadable file")
		}

		_, detail, err := openDetail(c, sessions)
		if err != nil {
			return writeDomainError(c, err)
		}

		contentType := fileHeader.Header.Get(echo.HeaderContentType)
		att, err := detail.UploadAttachment(c.Request().Context(), fileHeader.Filename, contentType, data)
		if err != nil {
			return writeDomainError(c, err)
		}
		return c.JSON(http.StatusCreated, att)
	}
}

func postLabel(sessions *Sessions, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := userFromRequest(c, auth); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		var req createLabelRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}

		ctx := c.Request().Context()
		projectID := c.Param("projectID")
		sess, err := sessions.Get(ctx, projectID)
		if err != nil {
			return writeDomainError(c, err)
		}

		created, err := sess.Labels.Create(ctx, projectID, req.Name, req.Color)
		if err != nil {
			return writeDomainError(c, err)
		}
		return c.JSON(http.StatusCreated, created)
	}
}

func deleteLabel(sessions *Sessions, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := userFromRequest(c, auth); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		ctx := c.Request().Context()
		sess, err := sessions.Get(ctx, c.Param("projectID"))
		if err != nil {
			return writeDomainError(c, err)
		}

		if err := sess.Labels.Delete(ctx, c.Param("labelID")); err != nil {
			return writeDomainError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func toggleLabel(sessions *Sessions, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := userFromRequest(c, auth); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		sess, detail, err := openDetail(c, sessions)
		if err != nil {
			return writeDomainError(c, err)
		}

		label, ok := sess.Labels.Label(c.Param("labelID"))
		if !ok {
			return writeDomainError(c, domain.NotFoundError{Collection: "labels", ID: c.Param("labelID")})
		}

		attached, err := detail.ToggleLabel(c.Request().Context(), label)
		if err != nil {
			return writeDomainError(c, err)
		}
		return c.JSON(http.StatusOK, toggleResponse{Active: attached})
	}
}

func toggleAssignee(sessions *Sessions, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := userFromRequest(c, auth); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		profiles, err := sessions.Profiles(c.Request().Context())
		if err != nil {
			return writeDomainError(c, err)
		}
		var user domain.UserProfile
		found := false
		for _, p := range profiles {
			if p.ID == c.Param("userID") {
				user, found = p, true
				break
			}
		}
		if !found {
			return writeDomainError(c, domain.NotFoundError{Collection: "profiles", ID: c.Param("userID")})
		}

		_, detail, err := openDetail(c, sessions)
		if err != nil {
			return writeDomainError(c, err)
		}

		assigned, err := detail.ToggleAssignee(c.Request().Context(), user)
		if err != nil {
			return writeDomainError(c, err)
		}
		return c.JSON(http.StatusOK, toggleResponse{Active: assigned})
	}
}

func getProfiles(sessions *Sessions, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := userFromRequest(c, auth); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		profiles, err := sessions.Profiles(c.Request().Context())
		if err != nil {
			return writeDomainError(c, err)
		}
		return c.JSON(http.StatusOK, profiles)
	}
}
