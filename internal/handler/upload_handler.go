package handler

import (
	"net/http"

	"github.com/backnews/admin/internal/editor"
	"github.com/gin-gonic/gin"
)

// UploadImage 处理正文内嵌图片的上传，返回绝对地址。
func (a *API) UploadImage(c *gin.Context) {
	filename, contentType, data, ok := readImage(c)
	if !ok {
		return
	}
	upload, err := editor.UploadImage(c.Request.Context(), a.clientFor(c), a.mediaBaseURL, filename, contentType, data)
	if err != nil {
		a.respondUpstreamError(c, err, "Failed to upload the image")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": 1,
		"message": "Uploaded",
		"data": gin.H{
			"filename": upload.Filename,
			"url":      upload.URL,
		},
	})
}

type deleteFileRequest struct {
	Filename string `json:"filename" binding:"required"`
}

// DeleteUpload 删除已上传的文件。
func (a *API) DeleteUpload(c *gin.Context) {
	var req deleteFileRequest
	if !bindJSON(c, &req, "Filename is required") {
		return
	}
	if err := a.clientFor(c).DeleteFile(c.Request.Context(), req.Filename); err != nil {
		a.respondUpstreamError(c, err, "Failed to delete the file")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "File deleted"})
}
