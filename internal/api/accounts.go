package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/inboxforge/warmline/internal/store"
)

// accountResponse decorates the stored account with its derived rates
type accountResponse struct {
	*store.Account
	OpenRate   float64 `json:"open_rate"`
	ReplyRate  float64 `json:"reply_rate"`
	BounceRate float64 `json:"bounce_rate"`
}

func newAccountResponse(a *store.Account) accountResponse {
	return accountResponse{
		Account:    a,
		OpenRate:   a.OpenRate(),
		ReplyRate:  a.ReplyRate(),
		BounceRate: a.BounceRate(),
	}
}

type smtpSettings struct {
	Host   string `json:"host"`
	Port   int    `json:"port"`
	UseTLS *bool  `json:"useTls"`
}

type imapSettings struct {
	Host   string `json:"host"`
	Port   int    `json:"port"`
	UseSSL *bool  `json:"useSsl"`
}

type createAccountRequest struct {
	Email     string       `json:"email"`
	Type      string       `json:"type"`
	FirstName string       `json:"firstName"`
	LastName  string       `json:"lastName"`
	SMTP      smtpSettings `json:"smtp"`
	IMAP      imapSettings `json:"imap"`
	Password  string       `json:"password"`
	SkipProbe bool         `json:"skipProbe"`
}

func (req *createAccountRequest) validate() string {
	if !strings.Contains(req.Email, "@") {
		return "a valid email address is required"
	}
	if req.Type != store.AccountSender && req.Type != store.AccountReceiver {
		return "type must be sender or receiver"
	}
	if req.SMTP.Host == "" {
		return "smtp.host is required"
	}
	if req.IMAP.Host == "" {
		return "imap.host is required"
	}
	if req.Password == "" {
		return "password is required"
	}
	return ""
}

// CreateAccount registers a new sender or receiver mailbox. Credentials
// are probed against the live SMTP and IMAP servers unless the request
// opts out, then encrypted before they touch the database. Sender
// domains are profiled to seed the initial daily limit.
func (h *Handlers) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	existing, err := h.store.GetAccountByEmail(r.Context(), req.Email)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if existing != nil {
		respondError(w, http.StatusBadRequest, "account already exists")
		return
	}

	account := &store.Account{
		Email:       req.Email,
		AccountType: req.Type,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		SMTPHost:    req.SMTP.Host,
		SMTPPort:    req.SMTP.Port,
		SMTPUseTLS:  req.SMTP.UseTLS == nil || *req.SMTP.UseTLS,
		IMAPHost:    req.IMAP.Host,
		IMAPPort:    req.IMAP.Port,
		IMAPUseSSL:  req.IMAP.UseSSL == nil || *req.IMAP.UseSSL,
	}

	if !req.SkipProbe {
		result := h.probe(r.Context(), account, req.Password)
		if !result.OK() {
			respondError(w, http.StatusBadRequest,
				fmt.Sprintf("connection test failed: smtp=%v, imap=%v", result.SMTP, result.IMAP))
			return
		}
	}

	encrypted, err := h.vault.Encrypt(req.Password)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	account.EncryptedPassword = encrypted

	if req.Type == store.AccountSender {
		profile := h.profiler.CheckDomain(r.Context(), req.Email)
		now := time.Now().UTC()
		account.Domain = profile.Domain
		account.DomainAgeDays = profile.AgeDays
		account.DomainCheckedAt = &now
		account.CurrentDailyLimit = profile.InitialDailyLimit()
	}

	if err := h.store.CreateAccount(r.Context(), account); err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, newAccountResponse(account))
}

// ListAccounts returns accounts, optionally filtered by type and status
func (h *Handlers) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accountType := r.URL.Query().Get("type")
	status := r.URL.Query().Get("status")

	if accountType != "" && accountType != store.AccountSender && accountType != store.AccountReceiver {
		respondError(w, http.StatusBadRequest, "type must be sender or receiver")
		return
	}
	if status != "" && !validAccountStatus(status) {
		respondError(w, http.StatusBadRequest, "status must be active or paused")
		return
	}

	accounts, err := h.store.ListAccounts(r.Context(), accountType, status)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	out := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, newAccountResponse(a))
	}
	respondJSON(w, http.StatusOK, out)
}

// GetAccount returns a single account by id
func (h *Handlers) GetAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "accountID", "account id")
	if !ok {
		return
	}

	account, err := h.store.GetAccount(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if account == nil {
		respondError(w, http.StatusNotFound, "account not found")
		return
	}
	respondJSON(w, http.StatusOK, newAccountResponse(account))
}

type updateAccountRequest struct {
	Status   *string `json:"status"`
	SMTPHost *string `json:"smtpHost"`
	SMTPPort *int    `json:"smtpPort"`
	IMAPHost *string `json:"imapHost"`
	IMAPPort *int    `json:"imapPort"`
	Password *string `json:"password"`
}

// UpdateAccount patches connection settings, status or the password.
// A new password is re-probed implicitly on the next send; only the
// encryption happens here.
func (h *Handlers) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "accountID", "account id")
	if !ok {
		return
	}

	var req updateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Status != nil && !validAccountStatus(*req.Status) {
		respondError(w, http.StatusBadRequest, "status must be active or paused")
		return
	}

	account, err := h.store.GetAccount(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if account == nil {
		respondError(w, http.StatusNotFound, "account not found")
		return
	}

	if req.Status != nil {
		account.Status = *req.Status
	}
	if req.SMTPHost != nil {
		account.SMTPHost = *req.SMTPHost
	}
	if req.SMTPPort != nil {
		account.SMTPPort = *req.SMTPPort
	}
	if req.IMAPHost != nil {
		account.IMAPHost = *req.IMAPHost
	}
	if req.IMAPPort != nil {
		account.IMAPPort = *req.IMAPPort
	}
	if req.Password != nil {
		encrypted, err := h.vault.Encrypt(*req.Password)
		if err != nil {
			respondDomainError(w, err)
			return
		}
		account.EncryptedPassword = encrypted
	}

	if err := h.store.UpdateAccount(r.Context(), account); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newAccountResponse(account))
}

// DeleteAccount removes an account and, via cascade, its email log
func (h *Handlers) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "accountID", "account id")
	if !ok {
		return
	}

	if err := h.store.DeleteAccount(r.Context(), id); err != nil {
		respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CheckAccountDomain re-runs the WHOIS profile for an account's domain
// and persists the result. A younger-than-expected domain tightens the
// account's daily limit; an older one never loosens it here.
func (h *Handlers) CheckAccountDomain(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "accountID", "account id")
	if !ok {
		return
	}

	account, err := h.store.GetAccount(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if account == nil {
		respondError(w, http.StatusNotFound, "account not found")
		return
	}

	profile := h.profiler.CheckDomain(r.Context(), account.Email)
	now := time.Now().UTC()
	if err := h.store.UpdateDomainInfo(r.Context(), id, profile.Domain, profile.AgeDays, now); err != nil {
		respondDomainError(w, err)
		return
	}

	limit := profile.InitialDailyLimit()
	if limit < account.CurrentDailyLimit {
		account.CurrentDailyLimit = limit
		if err := h.store.UpdateAccount(r.Context(), account); err != nil {
			respondDomainError(w, err)
			return
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"domain":                 profile.Domain,
		"ageDays":                profile.AgeDays,
		"isNewDomain":            profile.IsNewDomain(),
		"warmupWeeksRecommended": profile.WarmupWeeksRecommended(),
		"initialDailyLimit":      limit,
	})
}

func validAccountStatus(status string) bool {
	return status == store.AccountActive || status == store.AccountPaused
}

// parseID pulls a UUID path parameter, responding 400 on garbage
func parseID(w http.ResponseWriter, r *http.Request, param, label string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid "+label)
		return uuid.Nil, false
	}
	return id, true
}
