// internal/handlers/account.go
package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/jason-s-yu/takedown/internal/auth"
	"github.com/jason-s-yu/takedown/internal/ledger"
	"github.com/sirupsen/logrus"
)

// AccountServer exposes ledger accounts to callers. Dev mode adds guest
// sessions and self-funding, which a real ledger would never allow.
type AccountServer struct {
	Ledger  ledger.Accounts
	Dev     bool
	Funding uint64 // credited to every guest account
	Logger  logrus.FieldLogger
}

func NewAccountServer(l ledger.Accounts, dev bool, funding uint64, logger logrus.FieldLogger) *AccountServer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &AccountServer{Ledger: l, Dev: dev, Funding: funding, Logger: logger}
}

type accountResponse struct {
	ID      uuid.UUID `json:"id"`
	Balance uint64    `json:"balance"`
	Token   string    `json:"token,omitempty"`
}

type sessionRequest struct {
	ID uuid.UUID `json:"id"`
}

type fundRequest struct {
	Amount uint64 `json:"amount"`
}

// setSession mints a token for id and stores it in the auth_token cookie.
func setSession(w http.ResponseWriter, id uuid.UUID) (string, error) {
	token, err := auth.CreateJWT(id)
	if err != nil {
		return "", err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     authCookie,
		Value:    token,
		HttpOnly: true,
		Path:     "/",
	})
	return token, nil
}

func (s *AccountServer) balance(w http.ResponseWriter, r *http.Request, id uuid.UUID) (uint64, bool) {
	bal, err := s.Ledger.AccountBalance(r.Context(), id)
	if err != nil {
		s.Logger.WithError(err).WithField("account", id).Error("balance lookup failed")
		writeError(w, err)
		return 0, false
	}
	return bal, true
}

// GuestAccountHandler creates a fresh identity, funds it and signs it in.
func GuestAccountHandler(s *AccountServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		id, err := uuid.NewRandom()
		if err != nil {
			writeError(w, err)
			return
		}
		if err := s.Ledger.OpenAccount(r.Context(), id, s.Funding); err != nil {
			s.Logger.WithError(err).Error("failed to open guest account")
			writeError(w, err)
			return
		}
		token, err := setSession(w, id)
		if err != nil {
			writeError(w, err)
			return
		}
		s.Logger.WithFields(logrus.Fields{"account": id, "balance": s.Funding}).Info("guest account opened")
		writeJSON(w, http.StatusCreated, accountResponse{ID: id, Balance: s.Funding, Token: token})
	}
}

// SessionHandler signs the caller in as an existing identity without funding it.
func SessionHandler(s *AccountServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		var req sessionRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.ID == uuid.Nil {
			writeErrorCode(w, http.StatusBadRequest, codeBadRequest, "id is required")
			return
		}
		bal, ok := s.balance(w, r, req.ID)
		if !ok {
			return
		}
		token, err := setSession(w, req.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, accountResponse{ID: req.ID, Balance: bal, Token: token})
	}
}

// FundAccountHandler credits the caller's account, opening it if needed.
func FundAccountHandler(s *AccountServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		signer, ok := callerSigner(w, r)
		if !ok {
			return
		}
		var req fundRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Amount == 0 {
			writeErrorCode(w, http.StatusBadRequest, codeBadRequest, "amount must be positive")
			return
		}
		id := signer.Subject()
		if err := s.Ledger.OpenAccount(r.Context(), id, req.Amount); err != nil {
			writeError(w, err)
			return
		}
		bal, ok := s.balance(w, r, id)
		if !ok {
			return
		}
		s.Logger.WithFields(logrus.Fields{"account": id, "amount": req.Amount}).Info("account funded")
		writeJSON(w, http.StatusOK, accountResponse{ID: id, Balance: bal})
	}
}

// BalanceHandler reports the caller's balance.
func BalanceHandler(s *AccountServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodGet) {
			return
		}
		signer, ok := callerSigner(w, r)
		if !ok {
			return
		}
		bal, ok := s.balance(w, r, signer.Subject())
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, accountResponse{ID: signer.Subject(), Balance: bal})
	}
}

// Register mounts the account routes. Guest, session and fund only exist in dev mode.
func (s *AccountServer) Register(mux *http.ServeMux, mw func(http.Handler) http.Handler) {
	if mw == nil {
		mw = func(h http.Handler) http.Handler { return h }
	}
	mux.Handle("/account/balance", mw(BalanceHandler(s)))
	if !s.Dev {
		return
	}
	mux.Handle("/account/guest", mw(GuestAccountHandler(s)))
	mux.Handle("/account/session", mw(SessionHandler(s)))
	mux.Handle("/account/fund", mw(FundAccountHandler(s)))
}
