package handler

import (
	"net/http"

	"github.com/backnews/admin/internal/editor"
	"github.com/backnews/admin/internal/listing"
	"github.com/backnews/admin/internal/validation"
	"github.com/gin-gonic/gin"
)

// GetDomains 分页返回域名；非 super_admin 只看到允许的域名。
func (a *API) GetDomains(c *gin.Context) {
	var q listing.DomainQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid list parameters")
		return
	}
	page, err := a.domains.List(c.Request.Context(), a.clientFor(c), currentUser(c), q)
	if err != nil {
		a.respondUpstreamError(c, err, "Failed to load domains")
		return
	}
	c.JSON(http.StatusOK, page)
}

// GetDomainOptions 返回编辑器域名选择器的选项。
func (a *API) GetDomainOptions(c *gin.Context) {
	options, err := editor.DomainOptions(c.Request.Context(), a.clientFor(c), currentUser(c), a.cache)
	if err != nil {
		a.respondUpstreamError(c, err, "Failed to load domains")
		return
	}
	c.JSON(http.StatusOK, gin.H{"domains": options})
}

func (a *API) CreateDomain(c *gin.Context) {
	var form validation.DomainForm
	if !bindJSON(c, &form, "Invalid domain") {
		return
	}
	domain, err := a.domains.Create(c.Request.Context(), a.clientFor(c), currentUser(c), form)
	if err != nil {
		a.respondUpstreamError(c, err, "Failed to create the domain")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Domain created", "domain": domain})
}

func (a *API) UpdateDomain(c *gin.Context) {
	id, ok := requireParam(c, "id", "Invalid domain id")
	if !ok {
		return
	}
	var form validation.DomainForm
	if !bindJSON(c, &form, "Invalid domain") {
		return
	}
	domain, err := a.domains.Update(c.Request.Context(), a.clientFor(c), currentUser(c), id, form)
	if err != nil {
		a.respondUpstreamError(c, err, "Failed to update the domain")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Domain updated", "domain": domain})
}

func (a *API) ToggleDomain(c *gin.Context) {
	id, ok := requireParam(c, "id", "Invalid domain id")
	if !ok {
		return
	}
	domain, err := a.domains.Toggle(c.Request.Context(), a.clientFor(c), currentUser(c), id)
	if err != nil {
		a.respondUpstreamError(c, err, "Failed to toggle the domain")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Domain updated", "domain": domain})
}

func (a *API) UpdateDomainSettings(c *gin.Context) {
	id, ok := requireParam(c, "id", "Invalid domain id")
	if !ok {
		return
	}
	var patch listing.SettingsPatch
	if !bindJSON(c, &patch, "Invalid settings") {
		return
	}
	domain, err := a.domains.UpdateSettings(c.Request.Context(), a.clientFor(c), currentUser(c), id, patch)
	if err != nil {
		a.respondUpstreamError(c, err, "Failed to update domain settings")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Settings saved", "domain": domain})
}

func (a *API) DeleteDomain(c *gin.Context) {
	id, ok := requireParam(c, "id", "Invalid domain id")
	if !ok {
		return
	}
	if err := a.domains.Delete(c.Request.Context(), a.clientFor(c), currentUser(c), id, queryBool(c, "confirm")); err != nil {
		a.respondUpstreamError(c, err, "Failed to delete the domain")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Domain deleted"})
}
