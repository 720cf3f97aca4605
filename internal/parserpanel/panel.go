package parserpanel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/backnews/admin/internal/backnews"
	"github.com/backnews/admin/internal/cache"
	"github.com/backnews/admin/internal/validation"
	"github.com/dustin/go-humanize"
)

const (
	MinRunCount = 1
	MaxRunCount = 50

	settingsTTL = 30 * time.Second
	historyTTL  = 30 * time.Second
)

// ErrForbidden is returned to anyone but super_admin.
var ErrForbidden = errors.New("parser control is restricted to super admins")

// API is the part of the BackNews client the parser panel uses.
type API interface {
	ParserStatus(ctx context.Context) (backnews.ParserStatus, error)
	ParserSettings(ctx context.Context) (backnews.ParserSettingsView, error)
	UpdateParserSettings(ctx context.Context, settings backnews.ParserSettings) (backnews.ParserSettings, error)
	ParserHistory(ctx context.Context, page, limit int) (backnews.ParserHistory, error)
	ToggleParser(ctx context.Context, enabled bool) (json.RawMessage, error)
	RunParser(ctx context.Context, count int) (json.RawMessage, error)
	TestParser(ctx context.Context, count int) (json.RawMessage, error)
	BlockParserDomain(ctx context.Context, domain string) error
	UnblockParserDomain(ctx context.Context, domain string) error
	UpdateProxyList(ctx context.Context, proxies []string) error
}

var scheduleLabels = map[string]string{
	"15min": "Every 15 minutes",
	"30min": "Every 30 minutes",
	"1h":    "Every hour",
	"2h":    "Every 2 hours",
	"4h":    "Every 4 hours",
	"8h":    "Every 8 hours",
	"12h":   "Every 12 hours",
	"24h":   "Every 24 hours",
}

// ScheduleLabel names a schedule code. Unknown codes are returned as is.
func ScheduleLabel(schedule string) string {
	if label, ok := scheduleLabels[schedule]; ok {
		return label
	}
	return schedule
}

// StatusView is the parser status plus its display strings.
type StatusView struct {
	backnews.ParserStatus
	Text          string `json:"text"`
	Color         string `json:"color"`
	ScheduleLabel string `json:"scheduleLabel"`
	NextRunText   string `json:"nextRunText"`
	NextRunAtText string `json:"nextRunAtText"`
	LastRunText   string `json:"lastRunText"`
}

// DescribeStatus derives the badge and the human readable times.
func DescribeStatus(s backnews.ParserStatus, now time.Time) StatusView {
	view := StatusView{ParserStatus: s, NextRunText: Remaining(time.Duration(s.NextRunIn) * time.Millisecond)}
	switch {
	case !s.Enabled:
		view.Text, view.Color = "Disabled", "error"
		view.ScheduleLabel = "Parser is disabled"
	case s.IsActive:
		view.Text, view.Color = "Active", "success"
		view.ScheduleLabel = ScheduleLabel(s.Schedule)
	default:
		view.Text, view.Color = "Waiting", "warning"
		view.ScheduleLabel = ScheduleLabel(s.Schedule)
	}
	view.NextRunAtText = relative(s.NextRunAt, now)
	view.LastRunText = relative(s.LastRunAt, now)
	return view
}

// Remaining renders a countdown as "2d 3h", "1h 5m" or "12m".
func Remaining(d time.Duration) string {
	if d <= 0 {
		return "Now"
	}
	minutes := int(d / time.Minute)
	hours := minutes / 60
	days := hours / 24
	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours%24)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes%60)
	default:
		return fmt.Sprintf("%dm", minutes)
	}
}

func relative(t backnews.Time, now time.Time) string {
	if t.IsZero() {
		return "Never"
	}
	return humanize.RelTime(t.Time, now, "ago", "from now")
}

// RunView is one history row.
type RunView struct {
	backnews.ParserRun
	Color        string `json:"color"`
	DurationText string `json:"durationText"`
	StartedText  string `json:"startedText"`
}

type HistoryView struct {
	Runs       []RunView            `json:"runs"`
	Pagination *backnews.Pagination `json:"pagination,omitempty"`
}

func describeHistory(h backnews.ParserHistory, now time.Time) HistoryView {
	view := HistoryView{Runs: make([]RunView, 0, len(h.History)), Pagination: h.Pagination}
	for _, run := range h.History {
		row := RunView{ParserRun: run, StartedText: relative(run.StartTime, now), DurationText: "-"}
		switch run.Status {
		case "success":
			row.Color = "success"
		case "failed", "error":
			row.Color = "error"
		default:
			row.Color = "warning"
		}
		if d := run.Duration(); d > 0 {
			row.DurationText = fmt.Sprintf("%ds", int(d.Round(time.Second)/time.Second))
		}
		view.Runs = append(view.Runs, row)
	}
	return view
}

// Panel implements the parser screen for super_admin users.
type Panel struct {
	validator *validation.Validator
	cache     cache.Cache
	logger    *slog.Logger
	now       func() time.Time
}

func New(v *validation.Validator, c cache.Cache, logger *slog.Logger) *Panel {
	if v == nil {
		v = validation.New(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Panel{validator: v, cache: c, logger: logger, now: time.Now}
}

func allowed(user backnews.User) error {
	if !user.IsSuperAdmin() {
		return ErrForbidden
	}
	return nil
}

func (p *Panel) Status(ctx context.Context, api API, user backnews.User) (StatusView, error) {
	if err := allowed(user); err != nil {
		return StatusView{}, err
	}
	status, err := api.ParserStatus(ctx)
	if err != nil {
		return StatusView{}, err
	}
	return DescribeStatus(status, p.now()), nil
}

func (p *Panel) Settings(ctx context.Context, api API, user backnews.User) (backnews.ParserSettingsView, error) {
	if err := allowed(user); err != nil {
		return backnews.ParserSettingsView{}, err
	}
	key := cache.ParserKey("settings")
	var view backnews.ParserSettingsView
	if p.cache != nil {
		if ok, err := p.cache.Get(ctx, key, &view); err == nil && ok {
			return view, nil
		}
	}
	view, err := api.ParserSettings(ctx)
	if err != nil {
		return backnews.ParserSettingsView{}, err
	}
	if view.AvailableDomains == nil {
		view.AvailableDomains = []backnews.Domain{}
	}
	if view.AvailableAuthors == nil {
		view.AvailableAuthors = []backnews.User{}
	}
	p.store(ctx, key, view, settingsTTL)
	return view, nil
}

// UpdateSettings saves the parser settings. Unknown schedules and run sizes
// outside 1..50 are rejected before the call.
func (p *Panel) UpdateSettings(ctx context.Context, api API, user backnews.User, settings backnews.ParserSettings) (backnews.ParserSettings, error) {
	if err := allowed(user); err != nil {
		return backnews.ParserSettings{}, err
	}
	fields := map[string]string{}
	settings.Parser.Schedule = strings.TrimSpace(settings.Parser.Schedule)
	if s := settings.Parser.Schedule; s != "" {
		if _, ok := scheduleLabels[s]; !ok {
			fields["parser.schedule"] = "Unknown schedule"
		}
	}
	if n := settings.Parser.ArticlesPerRun; n != 0 && (n < MinRunCount || n > MaxRunCount) {
		fields["parser.articlesPerRun"] = fmt.Sprintf("Must be between %d and %d", MinRunCount, MaxRunCount)
	}
	if len(fields) > 0 {
		return backnews.ParserSettings{}, &validation.Errors{Fields: fields}
	}
	out, err := api.UpdateParserSettings(ctx, settings)
	if err != nil {
		return backnews.ParserSettings{}, err
	}
	p.invalidate(ctx)
	p.logger.Info("parser settings updated", "user", user.ID)
	return out, nil
}

func (p *Panel) History(ctx context.Context, api API, user backnews.User, page, limit int) (HistoryView, error) {
	if err := allowed(user); err != nil {
		return HistoryView{}, err
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	key := cache.ParserKey(fmt.Sprintf("history:%d:%d", page, limit))
	var history backnews.ParserHistory
	hit := false
	if p.cache != nil {
		if ok, err := p.cache.Get(ctx, key, &history); err == nil && ok {
			hit = true
		}
	}
	if !hit {
		var err error
		history, err = api.ParserHistory(ctx, page, limit)
		if err != nil {
			return HistoryView{}, err
		}
		p.store(ctx, key, history, historyTTL)
	}
	return describeHistory(history, p.now()), nil
}

func (p *Panel) Toggle(ctx context.Context, api API, user backnews.User, enabled bool) (json.RawMessage, error) {
	if err := allowed(user); err != nil {
		return nil, err
	}
	out, err := api.ToggleParser(ctx, enabled)
	if err != nil {
		return nil, err
	}
	p.invalidate(ctx)
	p.logger.Info("parser toggled", "enabled", enabled, "user", user.ID)
	return out, nil
}

// Run starts a manual run of count articles.
func (p *Panel) Run(ctx context.Context, api API, user backnews.User, count int) (json.RawMessage, error) {
	if err := p.checkCount(user, count); err != nil {
		return nil, err
	}
	out, err := api.RunParser(ctx, count)
	if err != nil {
		return nil, err
	}
	p.invalidate(ctx)
	p.logger.Info("manual parser run started", "count", count, "user", user.ID)
	return out, nil
}

// Test performs a dry run. Nothing is published.
func (p *Panel) Test(ctx context.Context, api API, user backnews.User, count int) (json.RawMessage, error) {
	if err := p.checkCount(user, count); err != nil {
		return nil, err
	}
	return api.TestParser(ctx, count)
}

func (p *Panel) checkCount(user backnews.User, count int) error {
	if err := allowed(user); err != nil {
		return err
	}
	return p.validator.Validate(validation.ParserRunForm{Count: count})
}

func (p *Panel) BlockDomain(ctx context.Context, api API, user backnews.User, domain string) error {
	domain, err := p.checkDomain(user, domain)
	if err != nil {
		return err
	}
	if err := api.BlockParserDomain(ctx, domain); err != nil {
		return err
	}
	p.invalidate(ctx)
	return nil
}

func (p *Panel) UnblockDomain(ctx context.Context, api API, user backnews.User, domain string) error {
	domain, err := p.checkDomain(user, domain)
	if err != nil {
		return err
	}
	if err := api.UnblockParserDomain(ctx, domain); err != nil {
		return err
	}
	p.invalidate(ctx)
	return nil
}

func (p *Panel) checkDomain(user backnews.User, domain string) (string, error) {
	if err := allowed(user); err != nil {
		return "", err
	}
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return "", &validation.Errors{Fields: map[string]string{"domain": "Domain is required"}}
	}
	return domain, nil
}

// UpdateProxies replaces the proxy list. Blank and repeated entries are dropped.
func (p *Panel) UpdateProxies(ctx context.Context, api API, user backnews.User, proxies []string) ([]string, error) {
	if err := allowed(user); err != nil {
		return nil, err
	}
	clean := make([]string, 0, len(proxies))
	seen := make(map[string]struct{}, len(proxies))
	for _, raw := range proxies {
		proxy := strings.TrimSpace(raw)
		if proxy == "" {
			continue
		}
		if _, dup := seen[proxy]; dup {
			continue
		}
		seen[proxy] = struct{}{}
		clean = append(clean, proxy)
	}
	if err := api.UpdateProxyList(ctx, clean); err != nil {
		return nil, err
	}
	p.invalidate(ctx)
	return clean, nil
}

func (p *Panel) store(ctx context.Context, key string, v any, ttl time.Duration) {
	if p.cache == nil {
		return
	}
	if err := p.cache.Set(ctx, key, v, ttl); err != nil {
		p.logger.Warn("parser cache write failed", "key", key, "error", err)
	}
}

func (p *Panel) invalidate(ctx context.Context) {
	if p.cache == nil {
		return
	}
	if err := p.cache.InvalidatePrefix(context.WithoutCancel(ctx), cache.ParserPrefix); err != nil {
		p.logger.Warn("failed to invalidate parser cache", "error", err)
	}
}
