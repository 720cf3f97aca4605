package handler

import (
	"net/http"

	"github.com/backnews/admin/internal/listing"
	"github.com/backnews/admin/internal/validation"
	"github.com/gin-gonic/gin"
)

func (a *API) GetUsers(c *gin.Context) {
	var q listing.UserQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid list parameters")
		return
	}
	page, err := a.users.List(c.Request.Context(), a.clientFor(c), currentUser(c), q)
	if err != nil {
		a.respondUpstreamError(c, err, "Failed to load users")
		return
	}
	c.JSON(http.StatusOK, page)
}

func (a *API) CreateUser(c *gin.Context) {
	var form validation.UserForm
	if !bindJSON(c, &form, "Invalid user") {
		return
	}
	user, err := a.users.Create(c.Request.Context(), a.clientFor(c), currentUser(c), form)
	if err != nil {
		a.respondUpstreamError(c, err, "Failed to create the user")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User created", "user": user})
}

func (a *API) UpdateUser(c *gin.Context) {
	id, ok := requireParam(c, "id", "Invalid user id")
	if !ok {
		return
	}
	var form validation.UserForm
	if !bindJSON(c, &form, "Invalid user") {
		return
	}
	user, err := a.users.Update(c.Request.Context(), a.clientFor(c), currentUser(c), id, form)
	if err != nil {
		a.respondUpstreamError(c, err, "Failed to update the user")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User updated", "user": user})
}

func (a *API) ToggleUser(c *gin.Context) {
	id, ok := requireParam(c, "id", "Invalid user id")
	if !ok {
		return
	}
	user, err := a.users.Toggle(c.Request.Context(), a.clientFor(c), currentUser(c), id)
	if err != nil {
		a.respondUpstreamError(c, err, "Failed to toggle the user")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User updated", "user": user})
}

func (a *API) DeleteUser(c *gin.Context) {
	id, ok := requireParam(c, "id", "Invalid user id")
	if !ok {
		return
	}
	if err := a.users.Delete(c.Request.Context(), a.clientFor(c), currentUser(c), id, queryBool(c, "confirm")); err != nil {
		a.respondUpstreamError(c, err, "Failed to delete the user")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User deleted"})
}

// GetUserLimits 返回当前用户的发文配额与权限。
func (a *API) GetUserLimits(c *gin.Context) {
	limits, err := a.clientFor(c).UserLimits(c.Request.Context())
	if err != nil {
		a.respondUpstreamError(c, err, "Failed to load limits")
		return
	}
	c.JSON(http.StatusOK, limits)
}
