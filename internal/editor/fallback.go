package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/backnews/admin/internal/backnews"
)

// ErrArticleNotFound ends a lookup plan in which no strategy found the article.
var ErrArticleNotFound = errors.New("article not found")

var errNotInOwnList = errors.New("article not in own list")

const ownListScanLimit = 1000

// Outcome is the result of one lookup step.
type Outcome int

const (
	Found Outcome = iota
	TryNext
	Abort
)

func (o Outcome) String() string {
	switch o {
	case Found:
		return "found"
	case TryNext:
		return "try-next"
	default:
		return "abort"
	}
}

// Lookup is one strategy of the plan.
type Lookup struct {
	Name  string
	Fetch func(ctx context.Context, id string) (backnews.Article, error)
	// Tolerant lookups move on after any failure except 401; strict ones only after 404.
	Tolerant bool
}

// Attempt records how a lookup ended.
type Attempt struct {
	Name    string
	Outcome Outcome
	Err     error
}

// ArticleSource is what the lookup plan needs from the API.
type ArticleSource interface {
	GetArticleForEdit(ctx context.Context, id string) (backnews.Article, error)
	GetArticle(ctx context.Context, idOrSlug string) (backnews.Article, error)
	GetAdminArticle(ctx context.Context, id string) (backnews.Article, error)
	ListMyArticles(ctx context.Context, p backnews.ListParams) (backnews.Page[backnews.Article], error)
}

// EditPlan is the ordered lookup used to open an article for editing.
func EditPlan(api ArticleSource) []Lookup {
	return []Lookup{
		{Name: "edit", Fetch: api.GetArticleForEdit},
		{Name: "generic", Fetch: api.GetArticle, Tolerant: true},
		{Name: "admin", Fetch: api.GetAdminArticle, Tolerant: true},
		{Name: "own-list", Fetch: ownListScan(api), Tolerant: true},
	}
}

func ownListScan(api ArticleSource) func(ctx context.Context, id string) (backnews.Article, error) {
	return func(ctx context.Context, id string) (backnews.Article, error) {
		page, err := api.ListMyArticles(ctx, backnews.ListParams{Limit: ownListScanLimit})
		if err != nil {
			return backnews.Article{}, err
		}
		for _, article := range page.Items {
			if article.ID == id {
				return article, nil
			}
		}
		return backnews.Article{}, errNotInOwnList
	}
}

func classify(l Lookup, err error) Outcome {
	switch {
	case err == nil:
		return Found
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Abort
	case errors.Is(err, backnews.ErrUnauthorized):
		return Abort
	case errors.Is(err, backnews.ErrNotFound):
		return TryNext
	case l.Tolerant:
		return TryNext
	default:
		return Abort
	}
}

// RunPlan walks plan in order and stops at the first Found or Abort. The plan
// is a finite slice, so the walk always terminates.
func RunPlan(ctx context.Context, plan []Lookup, id string, logger *slog.Logger) (backnews.Article, []Attempt, error) {
	if logger == nil {
		logger = slog.Default()
	}
	attempts := make([]Attempt, 0, len(plan))
	for _, lookup := range plan {
		article, err := lookup.Fetch(ctx, id)
		outcome := classify(lookup, err)
		attempts = append(attempts, Attempt{Name: lookup.Name, Outcome: outcome, Err: err})

		switch outcome {
		case Found:
			if len(attempts) > 1 {
				logger.Info("article found by fallback lookup", "article", id, "lookup", lookup.Name)
			}
			return article, attempts, nil
		case Abort:
			logger.Warn("article lookup aborted", "article", id, "lookup", lookup.Name, "error", err)
			return backnews.Article{}, attempts, err
		default:
			logger.Debug("article lookup missed", "article", id, "lookup", lookup.Name, "error", err)
		}
	}
	return backnews.Article{}, attempts, fmt.Errorf("%w: cannot load article %s, check the id or go back to the list and try again", ErrArticleNotFound, id)
}
