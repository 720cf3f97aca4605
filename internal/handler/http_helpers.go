package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/backnews/admin/internal/backnews"
	"github.com/backnews/admin/internal/editor"
	"github.com/backnews/admin/internal/listing"
	"github.com/backnews/admin/internal/parserpanel"
	"github.com/backnews/admin/internal/session"
	"github.com/backnews/admin/internal/validation"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const (
	sessionCookieKey  = "sid"
	sessionContextKey = "__admin_session"
	loginPath         = "/admin/login"
)

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

func bindJSON(c *gin.Context, dst interface{}, message string) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, http.StatusBadRequest, message)
		return false
	}
	return true
}

// requireParam reads a non-empty path parameter (ids are opaque strings).
func requireParam(c *gin.Context, key, message string) (string, bool) {
	value := strings.TrimSpace(c.Param(key))
	if value == "" {
		respondError(c, http.StatusBadRequest, message)
		return "", false
	}
	return value, true
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func queryBool(c *gin.Context, key string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(c.Query(key)))
	return err == nil && v
}

func currentSession(c *gin.Context) session.Session {
	if value, ok := c.Get(sessionContextKey); ok {
		if sess, ok := value.(session.Session); ok {
			return sess
		}
	}
	return session.Session{}
}

func currentUser(c *gin.Context) backnews.User {
	return currentSession(c).User
}

// clientFor binds the API client to the request's session. A 401 from the
// BackNews API ends that session.
func (a *API) clientFor(c *gin.Context) *backnews.Client {
	sess := currentSession(c)
	ctx := context.WithoutCancel(c.Request.Context())
	return a.client.As(sess.Token, func() {
		a.endSession(ctx, sess.ID)
	})
}

// endSession drops everything held for a session id.
func (a *API) endSession(ctx context.Context, id string) {
	if id == "" {
		return
	}
	if err := a.sessions.Invalidate(ctx, id); err != nil {
		a.logger.Warn("failed to invalidate session", "session", id, "error", err)
	}
	a.releaseSession(id)
}

// releaseSession drops the per-session state held in memory.
func (a *API) releaseSession(id string) {
	a.editors.DropOwner(id)
	a.articles.Forget(id)
	// the hook may run on the poller's own goroutine
	go a.pollers.Stop(id)
}

func clearCookie(c *gin.Context) {
	store := sessions.Default(c)
	store.Clear()
	_ = store.Save()
}

// respondUpstreamError maps domain and BackNews errors onto HTTP answers.
func (a *API) respondUpstreamError(c *gin.Context, err error, fallback string) {
	var (
		verr   *validation.Errors
		apiErr *backnews.APIError
	)
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Please fix the highlighted fields", "fields": verr.Fields})
	case errors.Is(err, backnews.ErrUnauthorized):
		clearCookie(c)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Session expired, please sign in again", "redirect": loginPath})
	case errors.Is(err, listing.ErrForbidden), errors.Is(err, editor.ErrForbidden), errors.Is(err, parserpanel.ErrForbidden):
		respondError(c, http.StatusForbidden, "You do not have permission for this action")
	case errors.Is(err, listing.ErrConfirmationRequired):
		respondError(c, http.StatusBadRequest, "Please confirm the deletion")
	case errors.Is(err, listing.ErrSuperseded):
		c.JSON(http.StatusAccepted, gin.H{"superseded": true})
	case errors.Is(err, editor.ErrSubmitInFlight), errors.Is(err, editor.ErrNotEditable):
		respondError(c, http.StatusConflict, editor.Banner(err))
	case errors.Is(err, editor.ErrImageTooLarge):
		respondError(c, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, editor.ErrImageType):
		respondError(c, http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, editor.ErrArticleNotFound), errors.Is(err, editor.ErrEditorNotFound):
		respondError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, backnews.ErrNotFound):
		respondError(c, http.StatusNotFound, backnews.Message(err))
	case errors.Is(err, backnews.ErrRateLimited):
		respondError(c, http.StatusTooManyRequests, backnews.Message(err))
	case errors.Is(err, backnews.ErrValidation):
		body := gin.H{"error": backnews.Message(err)}
		if errors.As(err, &apiErr) && len(apiErr.Fields) > 0 {
			body["fields"] = apiErr.Fields
		}
		c.JSON(http.StatusBadRequest, body)
	case errors.Is(err, backnews.ErrServer):
		respondError(c, http.StatusBadGateway, backnews.Message(err))
	case errors.Is(err, context.DeadlineExceeded):
		respondError(c, http.StatusGatewayTimeout, "The BackNews API did not answer in time")
	default:
		a.logger.Error("request failed", "path", c.FullPath(), "error", err)
		respondError(c, http.StatusInternalServerError, fallback)
	}
}
