package handler

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type blockIPRequest struct {
	IP       string `json:"ip" binding:"required"`
	Duration *int   `json:"duration"`
	Reason   string `json:"reason"`
}

// GetSystemSettings 原样返回 BackNews 的系统设置。
func (a *API) GetSystemSettings(c *gin.Context) {
	settings, err := a.clientFor(c).Settings(c.Request.Context())
	if err != nil {
		a.respondUpstreamError(c, err, "Failed to load settings")
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", settings)
}

// UpdateSystemSettings 保存系统设置，请求体必须是 JSON 对象。
func (a *API) UpdateSystemSettings(c *gin.Context) {
	var raw json.RawMessage
	if !bindJSON(c, &raw, "Invalid settings") {
		return
	}
	if !strings.HasPrefix(strings.TrimSpace(string(raw)), "{") {
		respondError(c, http.StatusBadRequest, "Settings must be a JSON object")
		return
	}
	saved, err := a.clientFor(c).UpdateSettings(c.Request.Context(), raw)
	if err != nil {
		a.respondUpstreamError(c, err, "Failed to save settings")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Settings saved", "settings": saved})
}

func (a *API) CreateBackup(c *gin.Context) {
	backup, err := a.clientFor(c).CreateBackup(c.Request.Context())
	if err != nil {
		a.respondUpstreamError(c, err, "Failed to create a backup")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Backup created", "backup": backup})
}

func (a *API) GetBackupHistory(c *gin.Context) {
	history, err := a.clientFor(c).BackupHistory(c.Request.Context())
	if err != nil {
		a.respondUpstreamError(c, err, "Failed to load backups")
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", history)
}

func (a *API) GetBlockedIPs(c *gin.Context) {
	ips, err := a.clientFor(c).BlockedIPs(c.Request.Context())
	if err != nil {
		a.respondUpstreamError(c, err, "Failed to load blocked addresses")
		return
	}
	c.JSON(http.StatusOK, gin.H{"blockedIps": ips})
}

// BlockIP 封禁 IP；duration 为分钟，缺省表示永久。
func (a *API) BlockIP(c *gin.Context) {
	var req blockIPRequest
	if !bindJSON(c, &req, "ip is required") {
		return
	}
	ip := strings.TrimSpace(req.IP)
	if net.ParseIP(ip) == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Please fix the highlighted fields", "fields": gin.H{"ip": "Invalid IP address"}})
		return
	}
	if req.Duration != nil && *req.Duration <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Please fix the highlighted fields", "fields": gin.H{"duration": "Must be a positive number of minutes"}})
		return
	}
	if err := a.clientFor(c).BlockIP(c.Request.Context(), ip, req.Duration, strings.TrimSpace(req.Reason)); err != nil {
		a.respondUpstreamError(c, err, "Failed to block the address")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Address blocked"})
}

func (a *API) UnblockIP(c *gin.Context) {
	ip, ok := requireParam(c, "ip", "Invalid IP address")
	if !ok {
		return
	}
	if err := a.clientFor(c).UnblockIP(c.Request.Context(), ip); err != nil {
		a.respondUpstreamError(c, err, "Failed to unblock the address")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Address unblocked"})
}

func (a *API) RefreshSitemap(c *gin.Context) {
	result, err := a.clientFor(c).RefreshSitemap(c.Request.Context())
	if err != nil {
		a.respondUpstreamError(c, err, "Failed to refresh the sitemap")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Sitemap refreshed", "sitemap": result})
}
