package handler

import (
	"net/http"

	"github.com/backnews/admin/internal/backnews"
	"github.com/backnews/admin/internal/parserpanel"
	"github.com/gin-gonic/gin"
)

type parserCountRequest struct {
	Count int `json:"count"`
}

type parserToggleRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

type parserDomainRequest struct {
	Domain string `json:"domain"`
}

type proxyListRequest struct {
	Proxies []string `json:"proxies"`
}

func (a *API) poller(c *gin.Context) *parserpanel.Poller {
	sess := currentSession(c)
	return a.pollers.Ensure(sess.ID, a.clientFor(c), sess.User)
}

// GetParserStatus 返回后台轮询的最新状态；首次访问时直接查询一次。
func (a *API) GetParserStatus(c *gin.Context) {
	snap := a.poller(c).Snapshot()
	if snap.Status == nil {
		status, err := a.parser.Status(c.Request.Context(), a.clientFor(c), currentUser(c))
		if err != nil {
			a.respondUpstreamError(c, err, "Failed to load parser status")
			return
		}
		snap.Status = &status
	}
	c.JSON(http.StatusOK, snap)
}

func (a *API) GetParserSettings(c *gin.Context) {
	view, err := a.parser.Settings(c.Request.Context(), a.clientFor(c), currentUser(c))
	if err != nil {
		a.respondUpstreamError(c, err, "Failed to load parser settings")
		return
	}
	c.JSON(http.StatusOK, view)
}

func (a *API) UpdateParserSettings(c *gin.Context) {
	var settings backnews.ParserSettings
	if !bindJSON(c, &settings, "Invalid parser settings") {
		return
	}
	saved, err := a.parser.UpdateSettings(c.Request.Context(), a.clientFor(c), currentUser(c), settings)
	if err != nil {
		a.respondUpstreamError(c, err, "Failed to save parser settings")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Parser settings saved", "settings": saved})
}

func (a *API) GetParserHistory(c *gin.Context) {
	history, err := a.parser.History(c.Request.Context(), a.clientFor(c), currentUser(c), queryInt(c, "page", 1), queryInt(c, "limit", 20))
	if err != nil {
		a.respondUpstreamError(c, err, "Failed to load parser history")
		return
	}
	c.JSON(http.StatusOK, history)
}

func (a *API) ToggleParser(c *gin.Context) {
	var req parserToggleRequest
	if !bindJSON(c, &req, "enabled is required") {
		return
	}
	result, err := a.poller(c).Toggle(c.Request.Context(), *req.Enabled)
	if err != nil {
		a.respondUpstreamError(c, err, "Failed to toggle the parser")
		return
	}
	message := "Parser disabled"
	if *req.Enabled {
		message = "Parser enabled"
	}
	c.JSON(http.StatusOK, gin.H{"message": message, "result": result})
}

// RunParser 手动运行解析器，随后 10 秒内加快状态轮询。
func (a *API) RunParser(c *gin.Context) {
	var req parserCountRequest
	if !bindJSON(c, &req, "count is required") {
		return
	}
	result, err := a.poller(c).RunParser(c.Request.Context(), req.Count)
	if err != nil {
		a.respondUpstreamError(c, err, "Failed to start the parser")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Parser started in manual mode", "result": result})
}

func (a *API) TestParser(c *gin.Context) {
	var req parserCountRequest
	if !bindJSON(c, &req, "count is required") {
		return
	}
	result, err := a.poller(c).TestParser(c.Request.Context(), req.Count)
	if err != nil {
		a.respondUpstreamError(c, err, "Parser test failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Parser test finished", "result": result})
}

func (a *API) BlockParserDomain(c *gin.Context) {
	var req parserDomainRequest
	if !bindJSON(c, &req, "domain is required") {
		return
	}
	if err := a.parser.BlockDomain(c.Request.Context(), a.clientFor(c), currentUser(c), req.Domain); err != nil {
		a.respondUpstreamError(c, err, "Failed to block the domain")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Domain blocked"})
}

func (a *API) UnblockParserDomain(c *gin.Context) {
	var req parserDomainRequest
	if !bindJSON(c, &req, "domain is required") {
		return
	}
	if err := a.parser.UnblockDomain(c.Request.Context(), a.clientFor(c), currentUser(c), req.Domain); err != nil {
		a.respondUpstreamError(c, err, "Failed to unblock the domain")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Domain unblocked"})
}

func (a *API) UpdateParserProxies(c *gin.Context) {
	var req proxyListRequest
	if !bindJSON(c, &req, "proxies are required") {
		return
	}
	proxies, err := a.parser.UpdateProxies(c.Request.Context(), a.clientFor(c), currentUser(c), req.Proxies)
	if err != nil {
		a.respondUpstreamError(c, err, "Failed to update proxies")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Proxy list saved", "proxies": proxies})
}
