// Package httpapi exposes the inventory, ledger, reporting, audit and sync
// operations over HTTP/JSON for a presentation layer to consume.
package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"pharmastore/backend/internal/audit"
	"pharmastore/backend/internal/cloudsync"
	"pharmastore/backend/internal/domain"
	"pharmastore/backend/internal/inventory"
	"pharmastore/backend/internal/ledger"
	"pharmastore/backend/internal/report"
	"pharmastore/backend/internal/storage"
	"pharmastore/backend/internal/users"
)

type API struct {
	inventory     *inventory.Store
	ledger        *ledger.Ledger
	users         *users.Store
	trail         *audit.Trail
	sync          *cloudsync.Coordinator
	settings      storage.Store
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
}

func New(inv *inventory.Store, led *ledger.Ledger, usr *users.Store, trail *audit.Trail, syncer *cloudsync.Coordinator, settings storage.Store, auth *AuthManager, allowedOrigin string) *API {
	return &API{
		inventory:     inv,
		ledger:        led,
		users:         usr,
		trail:         trail,
		sync:          syncer,
		settings:      settings,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientIP(r *http.Request) string {
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		if idx := strings.Index(fwd, ","); idx > 0 {
			return strings.TrimSpace(fwd[:idx])
		}
		return fwd
	}
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/login", a.handleLogin)
	mux.HandleFunc("/api/logout", a.requireAuth(a.handleLogout))

	mux.HandleFunc("/api/drugs", a.requireAuth(a.handleDrugs))
	mux.HandleFunc("/api/drugs/low-stock", a.requireAuth(a.handleLowStock))
	mux.HandleFunc("/api/drugs/expiring", a.requireAuth(a.handleExpiring))
	mux.HandleFunc("/api/drugs/", a.requireAuth(a.handleDrugActions))

	mux.HandleFunc("/api/sales", a.requireAuth(a.handleSales))
	mux.HandleFunc("/api/sales/", a.requireAuth(a.handleSaleActions))

	mux.HandleFunc("/api/reports/", a.requireAuth(a.handleReports))
	mux.HandleFunc("/api/analytics/", a.requireAuth(a.handleAnalytics))

	mux.HandleFunc("/api/audit", a.requireAuth(a.handleAudit, domain.UserTypeAdmin))
	mux.HandleFunc("/api/users", a.requireAuth(a.handleUsers, domain.UserTypeAdmin))
	mux.HandleFunc("/api/users/password", a.requireAuth(a.handleChangePassword))

	mux.HandleFunc("/api/export", a.requireAuth(a.handleExport, domain.UserTypeAdmin))
	mux.HandleFunc("/api/import", a.requireAuth(a.handleImport, domain.UserTypeAdmin))

	mux.HandleFunc("/api/sync/push", a.requireAuth(a.handleSyncPush))
	mux.HandleFunc("/api/sync/pull", a.requireAuth(a.handleSyncPull))
	mux.HandleFunc("/api/sync/status", a.requireAuth(a.handleSyncStatus))

	mux.HandleFunc("/api/settings", a.requireAuth(a.handleSettings))

	return a.withMiddleware(mux)
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if r.Method == http.MethodPost || r.Method == http.MethodPut {
			r.Body = http.MaxBytesReader(w, r.Body, 4<<20)
		}

		next.ServeHTTP(w, r)
	})
}

func (a *API) requireAuth(next http.HandlerFunc, types ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(types) > 0 && !isTypeAllowed(actor.Type, types) {
			writeError(w, http.StatusForbidden, errors.New("forbidden"))
			return
		}

		next(w, r.WithContext(WithActor(r.Context(), actor)))
	}
}

func isTypeAllowed(userType string, allowed []string) bool {
	for _, allow := range allowed {
		if userType == allow {
			return true
		}
	}
	return false
}

func (a *API) audit(r *http.Request, action, details string) {
	actor, _ := ActorFromContext(r.Context())
	a.trail.Record(r.Context(), actor.Username, action, details, clientIP(r))
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientIP(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	a.trail.Record(r.Context(), resp.Username, domain.ActionLogin,
		"User "+resp.Username+" logged in", clientIP(r))
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	actor, _ := ActorFromContext(r.Context())
	a.audit(r, domain.ActionLogout, "User "+actor.Username+" logged out")
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *API) handleDrugs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		term := r.URL.Query().Get("q")
		writeJSON(w, http.StatusOK, map[string]any{"drugs": a.inventory.Search(term)})
	case http.MethodPost:
		var req domain.DrugRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		existing := req.ID != ""
		drug, err := a.inventory.AddOrUpdate(r.Context(), req)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}

		if existing {
			a.audit(r, domain.ActionEditDrug, "Updated drug: "+drug.Name)
			writeJSON(w, http.StatusOK, map[string]any{"drug": drug})
			return
		}
		a.audit(r, domain.ActionAddDrug, "Added drug: "+drug.Name)
		writeJSON(w, http.StatusCreated, map[string]any{"drug": drug})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleDrugActions(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/drugs/"), "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, errors.New("drug id required"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		drug, ok := a.inventory.Get(id)
		if !ok {
			writeError(w, http.StatusNotFound, domain.ErrNotFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"drug": drug})
	case http.MethodPut:
		var req domain.DrugRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		req.ID = id

		drug, err := a.inventory.AddOrUpdate(r.Context(), req)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		a.audit(r, domain.ActionEditDrug, "Updated drug: "+drug.Name)
		writeJSON(w, http.StatusOK, map[string]any{"drug": drug})
	case http.MethodDelete:
		removed, ok := a.inventory.Remove(r.Context(), id)
		if ok {
			a.audit(r, domain.ActionDeleteDrug, "Deleted drug: "+removed.Name)
		}
		writeJSON(w, http.StatusOK, map[string]any{"removed": ok})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleLowStock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	threshold := parsePositiveLimit(r.URL.Query().Get("threshold"), inventory.LowStockThreshold, 0)
	writeJSON(w, http.StatusOK, map[string]any{"drugs": a.inventory.LowStock(threshold)})
}

func (a *API) handleExpiring(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	days := parsePositiveLimit(r.URL.Query().Get("days"), 30, 0)
	writeJSON(w, http.StatusOK, map[string]any{"drugs": a.inventory.ExpiringWithin(time.Now(), days)})
}

func (a *API) handleSales(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		limit := parsePositiveLimit(r.URL.Query().Get("limit"), 20, 500)
		writeJSON(w, http.StatusOK, map[string]any{"sales": a.ledger.Recent(limit)})
	case http.MethodPost:
		var req domain.SaleRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if actor, ok := ActorFromContext(r.Context()); ok && req.SoldBy == "" {
			req.SoldBy = actor.Username
		}

		sale, err := a.ledger.RecordSale(r.Context(), req)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		a.audit(r, domain.ActionSale,
			"Sold "+strconv.Itoa(sale.Quantity)+" units of "+sale.DrugName+" for $"+strconv.FormatFloat(sale.Total, 'f', 2, 64))
		writeJSON(w, http.StatusCreated, map[string]any{"sale": sale})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleSaleActions(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/sales/"), "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, errors.New("sale id required"))
		return
	}
	if r.Method != http.MethodDelete {
		writeMethodNotAllowed(w)
		return
	}

	sale, removed, warn := a.ledger.DeleteSale(r.Context(), id)
	resp := map[string]any{"removed": removed}
	if removed {
		a.audit(r, domain.ActionDeleteSale,
			"Deleted sale of "+strconv.Itoa(sale.Quantity)+" units of "+sale.DrugName+" and restocked inventory")
	}
	if warn != nil {
		resp["warning"] = warn.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) reportDate(r *http.Request) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("date"))
	if raw == "" {
		return time.Now(), nil
	}
	return time.Parse(domain.DateLayout, raw)
}

func (a *API) handleReports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	kind := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/reports/"), "/")
	if kind == "inventory" {
		writeJSON(w, http.StatusOK, report.Inventory(a.inventory.List(), time.Now()))
		return
	}

	ref, err := a.reportDate(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	sales := a.ledger.List()
	var rep report.SalesReport
	switch kind {
	case "daily":
		rep = report.Daily(sales, ref)
	case "weekly":
		rep = report.Weekly(sales, ref)
	case "monthly":
		rep = report.Monthly(sales, ref)
	case "yearly":
		rep = report.Yearly(sales, ref)
	default:
		writeError(w, http.StatusNotFound, errors.New("unknown report type"))
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (a *API) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	kind := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/analytics/"), "/")
	switch kind {
	case "top-drugs":
		limit := parsePositiveLimit(r.URL.Query().Get("limit"), 5, 50)
		writeJSON(w, http.StatusOK, map[string]any{"drugs": report.TopSelling(a.ledger.List(), limit)})
	case "categories":
		writeJSON(w, http.StatusOK, map[string]any{"categories": report.CategoryRevenue(a.inventory.List(), a.ledger.List())})
	case "last-7-days":
		writeJSON(w, http.StatusOK, map[string]any{"days": report.LastSevenDays(a.ledger.List(), time.Now())})
	case "monthly":
		writeJSON(w, http.StatusOK, map[string]any{"months": report.MonthlyTotals(a.ledger.List())})
	case "insights":
		writeJSON(w, http.StatusOK, report.Summary(a.inventory.List(), a.ledger.List(), time.Now()))
	default:
		writeError(w, http.StatusNotFound, errors.New("unknown analytics view"))
	}
}

func (a *API) handleAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	entries := a.trail.Find(audit.Filter{
		User:       q.Get("user"),
		Action:     q.Get("action"),
		DatePrefix: q.Get("date"),
		Limit:      parsePositiveLimit(q.Get("limit"), 100, 1000),
	})
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"users": a.users.List()})
	case http.MethodPost:
		var req domain.User
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		user, err := a.users.Add(r.Context(), req.Username, req.Password, req.Type)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		a.audit(r, domain.ActionAddUser, "Added new user: "+user.Username+" ("+user.Type+")")
		user.Password = ""
		writeJSON(w, http.StatusCreated, map[string]any{"user": user})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	actor, _ := ActorFromContext(r.Context())
	if err := a.users.ChangePassword(r.Context(), actor.Username, req.CurrentPassword, req.NewPassword); err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	a.audit(r, domain.ActionChangePassword, "Password changed successfully")
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *API) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	doc := domain.ExportDocument{
		Drugs:      a.inventory.List(),
		Sales:      a.ledger.List(),
		Users:      a.users.Export(),
		ExportDate: time.Now().UTC(),
	}
	a.audit(r, domain.ActionExportData, "System data exported")
	writeJSON(w, http.StatusOK, doc)
}

// handleImport replaces drugs and sales unconditionally; users only when the
// imported document carries them.
func (a *API) handleImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var doc domain.ExportDocument
	if err := decodeJSON(r, &doc); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ctx := r.Context()
	a.inventory.Replace(ctx, doc.Drugs)
	a.ledger.Replace(ctx, doc.Sales)
	if len(doc.Users) > 0 {
		a.users.Replace(ctx, doc.Users)
	}

	a.audit(r, domain.ActionImportData, "System data imported from file")
	writeJSON(w, http.StatusOK, map[string]any{
		"drugs": len(doc.Drugs),
		"sales": len(doc.Sales),
		"users": len(doc.Users),
	})
}

func (a *API) handleSyncPush(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	result, err := a.sync.Push(r.Context())
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	a.audit(r, domain.ActionSyncToCloud, "Data synchronized to cloud storage")
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleSyncPull(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	result, err := a.sync.Pull(r.Context())
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	a.audit(r, domain.ActionSyncFromCloud, "Data synchronized from cloud storage")
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, a.sync.Status(r.Context()))
}

func (a *API) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		settings := domain.Settings{Language: "en"}
		if _, err := a.settings.Load(r.Context(), storage.KeyLanguage, &settings.Language); err != nil {
			log.Printf("[httpapi] WARN: failed to load language setting: %v", err)
		}
		settings.CloudSyncEnabled = a.sync.Enabled()
		if mark := a.sync.Status(r.Context()).LastSyncTime; !mark.IsZero() {
			settings.LastSyncTime = mark.Format(time.RFC3339)
		}
		writeJSON(w, http.StatusOK, settings)
	case http.MethodPut:
		var req struct {
			Language         *string `json:"language,omitempty"`
			CloudSyncEnabled *bool   `json:"cloud_sync_enabled,omitempty"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		if req.Language != nil {
			if err := a.settings.Save(r.Context(), storage.KeyLanguage, *req.Language); err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
		}
		if req.CloudSyncEnabled != nil {
			a.sync.SetEnabled(r.Context(), *req.CloudSyncEnabled)
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeMethodNotAllowed(w)
	}
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientStock):
		return http.StatusConflict
	case errors.Is(err, users.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, cloudsync.ErrSyncInProgress):
		return http.StatusConflict
	case errors.Is(err, cloudsync.ErrNotConfigured),
		errors.Is(err, cloudsync.ErrNoConnectivity):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx messages are replaced with a generic string so storage or sync
	// internals never leak to clients.
	msg := err.Error()
	if status >= 500 && status != http.StatusServiceUnavailable {
		log.Printf("internal error (status %d): %v", status, err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
