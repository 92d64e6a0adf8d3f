package api

import (
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/outreach-guard/internal/domain"
	"github.com/ignite/outreach-guard/internal/pkg/httputil"
	"github.com/ignite/outreach-guard/internal/rejection"
	"github.com/ignite/outreach-guard/internal/templates"
)

const defaultStatsWindow = 24 * time.Hour

type checkRequest struct {
	Draft domain.LeadDraft     `json:"draft"`
	Lead  *domain.EnrichedLead `json:"lead"`
}

type selectTemplateRequest struct {
	Recipient string   `json:"recipient"`
	Templates []string `json:"templates"`
}

type bannedOpenerRequest struct {
	Pattern string `json:"pattern"`
}

// CheckDraft runs every guard rule against a draft.
//
//	POST /api/v1/quality-guard/check
func (h *Handlers) CheckDraft(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Draft.RecipientEmail) == "" {
		httputil.BadRequest(w, "draft.recipient_email is required")
		return
	}

	httputil.OK(w, h.guard.Check(r.Context(), req.Draft, req.Lead))
}

// RecordRejection stores a human rejection from the approval surface.
// When every storage backend is down the rejection is dropped and the
// response is 202 with recorded=false.
//
//	POST /api/v1/quality-guard/rejections
func (h *Handlers) RecordRejection(w http.ResponseWriter, r *http.Request) {
	var in rejection.RejectionInput
	if !httputil.Decode(w, r, &in) {
		return
	}

	rec, err := h.guard.RecordRejection(r.Context(), in)
	if err != nil {
		if errors.Is(err, rejection.ErrInvalidRecipient) {
			httputil.BadRequest(w, err.Error())
			return
		}
		httputil.InternalError(w, err)
		return
	}
	if rec == nil {
		alog.Warn("rejection not persisted", "recipient", in.RecipientEmail)
		httputil.JSON(w, http.StatusAccepted, map[string]any{
			"recorded": false,
			"message":  "rejection memory unavailable",
		})
		return
	}
	httputil.Created(w, rec)
}

// GetHistory returns the live rejection record for a recipient.
//
//	GET /api/v1/quality-guard/recipients/{email}/history
func (h *Handlers) GetHistory(w http.ResponseWriter, r *http.Request) {
	email, ok := recipientParam(w, r)
	if !ok {
		return
	}

	rec, found := h.store.GetRejectionHistory(r.Context(), email)
	if !found {
		httputil.NotFound(w, "no rejection history for recipient")
		return
	}
	httputil.OK(w, map[string]any{
		"record":     rec,
		"expires_at": rec.ExpiresAt(),
	})
}

// GetRejectedTemplates lists template ids already rejected for a recipient.
//
//	GET /api/v1/quality-guard/recipients/{email}/rejected-templates
func (h *Handlers) GetRejectedTemplates(w http.ResponseWriter, r *http.Request) {
	email, ok := recipientParam(w, r)
	if !ok {
		return
	}

	ids := make([]string, 0)
	for id := range h.store.RejectedTemplateIDs(r.Context(), email) {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	httputil.OK(w, map[string]any{
		"recipient_email": domain.NormalizeEmail(email),
		"template_ids":    ids,
	})
}

// SelectTemplate picks the first template the recipient has not rejected.
//
//	POST /api/v1/quality-guard/select-template
func (h *Handlers) SelectTemplate(w http.ResponseWriter, r *http.Request) {
	var req selectTemplateRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Recipient) == "" {
		httputil.BadRequest(w, "recipient is required")
		return
	}

	sel, err := templates.Select(r.Context(), h.store, req.Recipient, req.Templates)
	if err != nil {
		if errors.Is(err, templates.ErrNoTemplates) {
			httputil.BadRequest(w, err.Error())
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, sel)
}

// GetDecisionStats aggregates logged verdicts. The window starts at the
// RFC 3339 "since" query parameter, or 24 hours ago when absent.
//
//	GET /api/v1/quality-guard/decisions/stats
func (h *Handlers) GetDecisionStats(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		httputil.ServiceUnavailable(w, "decision log not configured")
		return
	}

	since := time.Now().UTC().Add(-defaultStatsWindow)
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httputil.BadRequest(w, "since must be an RFC 3339 timestamp")
			return
		}
		since = t
	}

	stats, err := h.stats.StatsSince(r.Context(), since)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, stats)
}

// GetGuardConfig reports the effective guard settings.
//
//	GET /api/v1/quality-guard/config
func (h *Handlers) GetGuardConfig(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]any{
		"mode":           h.guard.Mode(),
		"max_rejections": h.guard.MaxRejections(),
		"ttl_days":       h.store.TTLDays(),
		"backends":       h.store.BackendNames(),
		"banned_openers": h.guard.BannedOpeners(),
	})
}

// AddBannedOpener registers an extra opener pattern at runtime. Patterns
// are case-insensitive regular expressions and are not persisted.
//
//	POST /api/v1/quality-guard/banned-openers
func (h *Handlers) AddBannedOpener(w http.ResponseWriter, r *http.Request) {
	var req bannedOpenerRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Pattern) == "" {
		httputil.BadRequest(w, "pattern is required")
		return
	}
	if err := h.guard.AddBannedOpener(req.Pattern); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	alog.Info("banned opener added", "pattern", req.Pattern)
	httputil.Created(w, map[string]any{"banned_openers": h.guard.BannedOpeners()})
}

func recipientParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := chi.URLParam(r, "email")
	email, err := url.PathUnescape(raw)
	if err != nil || strings.TrimSpace(email) == "" {
		httputil.BadRequest(w, "invalid recipient email")
		return "", false
	}
	return email, true
}
