package handler

import (
	"net/http"

	"github.com/backnews/admin/internal/editor"
	"github.com/backnews/admin/internal/listing"
	"github.com/backnews/admin/internal/validation"
	"github.com/gin-gonic/gin"
)

// GetArticles 返回当前页的文章与按角色裁剪的列和操作。
// 带 debounce=1 的搜索请求会经过防抖，被后续输入取代时返回 202。
func (a *API) GetArticles(c *gin.Context) {
	var q listing.ArticleQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid list parameters")
		return
	}

	sess := currentSession(c)
	fetch := a.articles.Fetch
	if queryBool(c, "debounce") {
		fetch = a.articles.Search
	}
	page, err := fetch(c.Request.Context(), a.clientFor(c), sess.ID, sess.User, q)
	if err != nil {
		a.respondUpstreamError(c, err, "Failed to load articles")
		return
	}
	c.JSON(http.StatusOK, page)
}

// DeleteArticle 删除文章，需要 confirm=true。
func (a *API) DeleteArticle(c *gin.Context) {
	id, ok := requireParam(c, "id", "Invalid article id")
	if !ok {
		return
	}
	err := a.articles.Delete(c.Request.Context(), a.clientFor(c), currentUser(c), id, queryBool(c, "confirm"))
	if err != nil {
		a.respondUpstreamError(c, err, "Failed to delete the article")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Article deleted"})
}

// GetCategories 返回编辑器可选的分类。
func (a *API) GetCategories(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"categories": validation.Categories})
}

func (a *API) statsManager(c *gin.Context) *editor.StatsManager {
	return editor.NewStatsManager(a.clientFor(c), currentUser(c), a.validator, a.cache)
}

// UpdateArticleStats 覆盖点赞、评论与浏览的总数。
func (a *API) UpdateArticleStats(c *gin.Context) {
	id, ok := requireParam(c, "id", "Invalid article id")
	if !ok {
		return
	}
	var form validation.StatsForm
	if !bindJSON(c, &form, "Invalid statistics") {
		return
	}
	if err := a.statsManager(c).Update(c.Request.Context(), id, form); err != nil {
		a.respondUpstreamError(c, err, "Failed to update statistics")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Statistics updated"})
}

func (a *API) GetArticleComments(c *gin.Context) {
	id, ok := requireParam(c, "id", "Invalid article id")
	if !ok {
		return
	}
	page, err := a.statsManager(c).Comments(c.Request.Context(), id, queryInt(c, "page", 1), queryInt(c, "limit", 20))
	if err != nil {
		a.respondUpstreamError(c, err, "Failed to load comments")
		return
	}
	c.JSON(http.StatusOK, page)
}

func (a *API) AddArticleComment(c *gin.Context) {
	id, ok := requireParam(c, "id", "Invalid article id")
	if !ok {
		return
	}
	var form validation.CommentForm
	if !bindJSON(c, &form, "Invalid comment") {
		return
	}
	comment, err := a.statsManager(c).AddComment(c.Request.Context(), id, form)
	if err != nil {
		a.respondUpstreamError(c, err, "Failed to add the comment")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Comment added", "comment": comment})
}

func (a *API) DeleteArticleComment(c *gin.Context) {
	id, ok := requireParam(c, "id", "Invalid article id")
	if !ok {
		return
	}
	commentID, ok := requireParam(c, "commentId", "Invalid comment id")
	if !ok {
		return
	}
	if err := a.statsManager(c).DeleteComment(c.Request.Context(), id, commentID); err != nil {
		a.respondUpstreamError(c, err, "Failed to delete the comment")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Comment deleted"})
}
