package editor

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/backnews/admin/internal/backnews"
)

type fakeAPI struct {
	mu    sync.Mutex
	calls []string

	editFn    func(id string) (backnews.Article, error)
	genericFn func(id string) (backnews.Article, error)
	adminFn   func(id string) (backnews.Article, error)
	myListFn  func(p backnews.ListParams) (backnews.Page[backnews.Article], error)
	createFn  func(p backnews.ArticlePayload) (backnews.Article, error)
	updateFn  func(id string, p backnews.ArticlePayload) (backnews.Article, error)
	uploadFn  func(filename, contentType string, data []byte) (backnews.FileUpload, error)

	domains        []backnews.Domain
	allowedDomains []backnews.Domain

	payloads []backnews.ArticlePayload
	uploads  int32
}

func (f *fakeAPI) record(name string) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
}

func (f *fakeAPI) callNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeAPI) countCalls(name string) int {
	n := 0
	for _, c := range f.callNames() {
		if c == name {
			n++
		}
	}
	return n
}

func notFound() error {
	return &backnews.APIError{Kind: backnews.KindNotFound, Status: 404, Message: "not found"}
}

func serverError() error {
	return &backnews.APIError{Kind: backnews.KindServer, Status: 500, Message: "boom"}
}

func (f *fakeAPI) GetArticleForEdit(_ context.Context, id string) (backnews.Article, error) {
	f.record("edit")
	if f.editFn == nil {
		return backnews.Article{}, notFound()
	}
	return f.editFn(id)
}

func (f *fakeAPI) GetArticle(_ context.Context, id string) (backnews.Article, error) {
	f.record("generic")
	if f.genericFn == nil {
		return backnews.Article{}, notFound()
	}
	return f.genericFn(id)
}

func (f *fakeAPI) GetAdminArticle(_ context.Context, id string) (backnews.Article, error) {
	f.record("admin")
	if f.adminFn == nil {
		return backnews.Article{}, notFound()
	}
	return f.adminFn(id)
}

func (f *fakeAPI) ListMyArticles(_ context.Context, p backnews.ListParams) (backnews.Page[backnews.Article], error) {
	f.record("own-list")
	if f.myListFn == nil {
		return backnews.Page[backnews.Article]{Items: []backnews.Article{}}, nil
	}
	return f.myListFn(p)
}

func (f *fakeAPI) CreateArticle(_ context.Context, p backnews.ArticlePayload) (backnews.Article, error) {
	f.record("create")
	f.mu.Lock()
	f.payloads = append(f.payloads, p)
	f.mu.Unlock()
	if f.createFn == nil {
		return echoArticle("new-id", p), nil
	}
	return f.createFn(p)
}

func (f *fakeAPI) UpdateArticle(_ context.Context, id string, p backnews.ArticlePayload) (backnews.Article, error) {
	f.record("update")
	f.mu.Lock()
	f.payloads = append(f.payloads, p)
	f.mu.Unlock()
	if f.updateFn == nil {
		return echoArticle(id, p), nil
	}
	return f.updateFn(id, p)
}

func (f *fakeAPI) UploadImage(_ context.Context, filename, contentType string, r io.Reader) (backnews.FileUpload, error) {
	f.record("upload")
	atomic.AddInt32(&f.uploads, 1)
	data, _ := io.ReadAll(r)
	if f.uploadFn == nil {
		return backnews.FileUpload{URL: "/uploads/" + filename, Filename: filename}, nil
	}
	return f.uploadFn(filename, contentType, data)
}

func (f *fakeAPI) ListDomains(_ context.Context, p backnews.ListParams) (backnews.Page[backnews.Domain], error) {
	f.record("domains")
	return backnews.Page[backnews.Domain]{Items: f.domains}, nil
}

func (f *fakeAPI) AllowedDomains(_ context.Context) ([]backnews.Domain, error) {
	f.record("allowed-domains")
	return f.allowedDomains, nil
}

func (f *fakeAPI) lastPayload() backnews.ArticlePayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.payloads[len(f.payloads)-1]
}

// echoArticle mimics the API returning the stored article.
func echoArticle(id string, p backnews.ArticlePayload) backnews.Article {
	a := backnews.Article{
		ID:       id,
		Title:    p.Title,
		Excerpt:  p.Excerpt,
		Content:  p.Content,
		Category: p.Category,
		Tags:     p.Tags,
		Status:   p.Status,
	}
	for _, d := range p.Domain {
		a.Domain = append(a.Domain, backnews.DomainRef{ID: d})
	}
	if p.Media != nil {
		a.Media = &backnews.Media{FeaturedImage: &backnews.Image{URL: p.Media.FeaturedImage.URL}}
	}
	return a
}
