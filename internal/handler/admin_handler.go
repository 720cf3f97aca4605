package handler

import (
	"errors"
	"net/http"

	"github.com/backnews/admin/internal/backnews"
	"github.com/backnews/admin/internal/session"
	"github.com/backnews/admin/internal/validation"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const dashboardPath = "/admin/dashboard"

// Login 校验凭据，向 BackNews 登录并建立服务端会话。
func (a *API) Login(c *gin.Context) {
	var form validation.LoginForm
	if !bindJSON(c, &form, "Login and password are required") {
		return
	}
	if err := a.validator.Validate(form); err != nil {
		a.respondUpstreamError(c, err, "Login failed")
		return
	}

	auth, err := a.client.Login(c.Request.Context(), form.Login, form.Password)
	if err != nil {
		if errors.Is(err, backnews.ErrUnauthorized) {
			respondError(c, http.StatusUnauthorized, "Invalid login or password")
			return
		}
		a.respondUpstreamError(c, err, "Login failed")
		return
	}
	switch auth.User.Role {
	case backnews.RoleSuperAdmin, backnews.RoleUserAdmin:
	default:
		respondError(c, http.StatusForbidden, "This account has no access to the admin panel")
		return
	}

	sess, err := a.sessions.Create(c.Request.Context(), auth.User, auth.Token)
	if err != nil {
		if errors.Is(err, session.ErrEmptyToken) {
			respondError(c, http.StatusBadGateway, "The BackNews API returned no token")
			return
		}
		a.logger.Error("failed to create session", "error", err)
		respondError(c, http.StatusInternalServerError, "Failed to save the session")
		return
	}

	cookie := sessions.Default(c)
	cookie.Set(sessionCookieKey, sess.ID)
	if err := cookie.Save(); err != nil {
		respondError(c, http.StatusInternalServerError, "Failed to save the session")
		return
	}

	// the stored user is the login answer until the refresh replaces it
	if a.reconciler != nil {
		a.reconciler.Schedule(sess.ID)
	}
	a.logger.Info("admin signed in", "user", auth.User.ID, "role", auth.User.Role)
	c.JSON(http.StatusOK, gin.H{"user": sess.User, "redirect": dashboardPath})
}

// Logout 清除服务端会话与 cookie。
func (a *API) Logout(c *gin.Context) {
	cookie := sessions.Default(c)
	if id, ok := cookie.Get(sessionCookieKey).(string); ok && id != "" {
		if err := a.sessions.Destroy(c.Request.Context(), id); err != nil {
			a.logger.Warn("failed to destroy session", "session", id, "error", err)
		}
		a.editors.DropOwner(id)
		a.articles.Forget(id)
		a.pollers.Stop(id)
	}
	clearCookie(c)
	c.JSON(http.StatusOK, gin.H{"message": "Signed out", "redirect": loginPath})
}

// Me 返回当前会话的用户以及其可见的导航权限。
func (a *API) Me(c *gin.Context) {
	user := currentUser(c)
	c.JSON(http.StatusOK, gin.H{
		"user": user,
		"permissions": gin.H{
			"superAdmin":   user.IsSuperAdmin(),
			"manageUsers":  user.IsSuperAdmin(),
			"manageParser": user.IsSuperAdmin(),
			"canEdit":      user.IsSuperAdmin() || user.Restrictions.CanEdit,
			"canDelete":    user.IsSuperAdmin() || user.Restrictions.CanDelete,
		},
	})
}

// Dashboard 按角色转发 BackNews 的仪表盘数据。
func (a *API) Dashboard(c *gin.Context) {
	client := a.clientFor(c)
	var (
		data []byte
		err  error
	)
	if currentUser(c).IsSuperAdmin() {
		data, err = client.Dashboard(c.Request.Context())
	} else {
		data, err = client.UserDashboard(c.Request.Context())
	}
	if err != nil {
		a.respondUpstreamError(c, err, "Failed to load the dashboard")
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}

// AuthRequired 从 cookie 中取出会话 ID 并加载服务端会话。
func (a *API) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		cookie := sessions.Default(c)
		id, _ := cookie.Get(sessionCookieKey).(string)
		if id == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Please sign in", "redirect": loginPath})
			return
		}

		sess, err := a.sessions.Load(c.Request.Context(), id)
		if err != nil {
			if !errors.Is(err, session.ErrNoSession) {
				a.logger.Error("failed to load session", "error", err)
			}
			clearCookie(c)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Session expired, please sign in again", "redirect": loginPath})
			return
		}
		_ = a.sessions.Touch(c.Request.Context(), id)
		if a.reconciler != nil {
			a.reconciler.ScheduleOnce(id)
		}

		c.Set(sessionContextKey, sess)
		c.Next()
	}
}

// RequireSuperAdmin 仅允许 super_admin 访问。
func (a *API) RequireSuperAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !currentUser(c).IsSuperAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "You do not have permission for this action"})
			return
		}
		c.Next()
	}
}
