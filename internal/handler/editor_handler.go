package handler

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/backnews/admin/internal/backnews"
	"github.com/backnews/admin/internal/editor"
	"github.com/gin-gonic/gin"
)

type openEditorRequest struct {
	ArticleID string `json:"articleId"`
}

type previewRequest struct {
	Content       string `json:"content"`
	ContentFormat string `json:"contentFormat"`
}

func (a *API) editorOptions() editor.Options {
	return editor.Options{
		Validator:    a.validator,
		Cache:        a.cache,
		MediaBaseURL: a.mediaBaseURL,
		ConfirmDelay: a.confirmDelay,
		Logger:       a.logger,
		Now:          a.now,
	}
}

// OpenEditor 打开（或复用）一个编辑会话。articleId 为空时为新建文章。
func (a *API) OpenEditor(c *gin.Context) {
	var req openEditorRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req, "Invalid editor request") {
		return
	}
	sess := currentSession(c)
	client := a.clientFor(c)
	articleID := strings.TrimSpace(req.ArticleID)

	e, created := a.editors.Acquire(sess.ID, articleID, func() *editor.Editor {
		return editor.New(sess.ID, client, sess.User, articleID, a.editorOptions())
	})
	if created {
		if err := e.Open(c.Request.Context()); err != nil && errors.Is(err, backnews.ErrUnauthorized) {
			a.editors.Close(sess.ID, e.ID())
			a.respondUpstreamError(c, err, "Failed to open the editor")
			return
		}
	}
	c.JSON(http.StatusOK, e.Snapshot())
}

func (a *API) editorFromParam(c *gin.Context) (*editor.Editor, bool) {
	id, ok := requireParam(c, "editorId", "Invalid editor id")
	if !ok {
		return nil, false
	}
	e, err := a.editors.Get(currentSession(c).ID, id)
	if err != nil {
		a.respondUpstreamError(c, err, "Editor session not found")
		return nil, false
	}
	return e, true
}

func (a *API) GetEditor(c *gin.Context) {
	e, ok := a.editorFromParam(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, e.Snapshot())
}

// PatchEditor 合并表单的部分修改。
func (a *API) PatchEditor(c *gin.Context) {
	e, ok := a.editorFromParam(c)
	if !ok {
		return
	}
	var patch editor.Patch
	if !bindJSON(c, &patch, "Invalid form data") {
		return
	}
	snap, err := e.Apply(patch)
	if err != nil {
		a.respondUpstreamError(c, err, "Failed to update the form")
		return
	}
	c.JSON(http.StatusOK, snap)
}

// AttachEditorImage 接收本地特色图片，保存时才真正上传。
func (a *API) AttachEditorImage(c *gin.Context) {
	e, ok := a.editorFromParam(c)
	if !ok {
		return
	}
	filename, contentType, data, ok := readImage(c)
	if !ok {
		return
	}
	snap, err := e.AttachImage(filename, contentType, data)
	if err != nil {
		a.respondUpstreamError(c, err, "Failed to attach the image")
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (a *API) RemoveEditorImage(c *gin.Context) {
	e, ok := a.editorFromParam(c)
	if !ok {
		return
	}
	snap, err := e.RemoveImage()
	if err != nil {
		a.respondUpstreamError(c, err, "Failed to remove the image")
		return
	}
	c.JSON(http.StatusOK, snap)
}

// SubmitEditor 校验并保存文章。成功后提示前端延迟跳转回列表。
func (a *API) SubmitEditor(c *gin.Context) {
	e, ok := a.editorFromParam(c)
	if !ok {
		return
	}
	result, err := e.Submit(c.Request.Context())
	if err != nil {
		a.respondUpstreamError(c, err, "Failed to save the article")
		return
	}
	if result.Created {
		a.editors.Rekey(e, result.Article.ID)
	}
	c.JSON(http.StatusOK, gin.H{
		"message":         result.Message,
		"article":         result.Article,
		"created":         result.Created,
		"warnings":        result.Warnings,
		"redirect":        result.Redirect,
		"redirectAfterMs": result.RedirectAfter.Milliseconds(),
		"editor":          e.Snapshot(),
	})
}

func (a *API) CloseEditor(c *gin.Context) {
	id, ok := requireParam(c, "editorId", "Invalid editor id")
	if !ok {
		return
	}
	a.editors.Close(currentSession(c).ID, id)
	c.JSON(http.StatusOK, gin.H{"message": "Editor closed"})
}

// PreviewArticle 以保存时相同的方式渲染正文。
func (a *API) PreviewArticle(c *gin.Context) {
	var req previewRequest
	if !bindJSON(c, &req, "Invalid preview request") {
		return
	}
	preview, err := editor.BuildPreview(req.Content, req.ContentFormat)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Failed to render the preview")
		return
	}
	c.JSON(http.StatusOK, preview)
}

// readImage reads the "image" form file, refusing anything over the limit
// before it is fully buffered.
func readImage(c *gin.Context) (string, string, []byte, bool) {
	file, err := c.FormFile("image")
	if err != nil {
		respondError(c, http.StatusBadRequest, "No image was uploaded")
		return "", "", nil, false
	}
	if file.Size > editor.MaxImageSize {
		respondError(c, http.StatusRequestEntityTooLarge, editor.ErrImageTooLarge.Error())
		return "", "", nil, false
	}
	f, err := file.Open()
	if err != nil {
		respondError(c, http.StatusBadRequest, "Cannot read the uploaded image")
		return "", "", nil, false
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, editor.MaxImageSize+1))
	if err != nil {
		respondError(c, http.StatusBadRequest, "Cannot read the uploaded image")
		return "", "", nil, false
	}
	return file.Filename, file.Header.Get("Content-Type"), data, true
}
