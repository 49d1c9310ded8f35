/**
 * @description
 * This file contains the HTTP handlers for the account-holder surface:
 * registration, login, profile/wallet/card reads, transaction history, and
 * the internal ledger operations. Handlers parse the request, call the
 * application service, and render the stable response envelope; all business
 * rules live below this layer.
 */

package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/payvault/ledger-service/internal/app"
	"github.com/payvault/ledger-service/internal/domain"
)

// Handlers holds the application service that handlers will use.
type Handlers struct {
	service *app.Service
	log     *logrus.Logger
}

// NewHandlers creates a new instance of Handlers.
func NewHandlers(service *app.Service, logger *logrus.Logger) *Handlers {
	return &Handlers{service: service, log: logger}
}

type registerRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	AccountType  string `json:"account_type"`
	BusinessName string `json:"business_name"`
}

// RegisterHandler creates an account. For personal accounts the response is
// the only place the card number, CVV, and PIN ever appear in plaintext.
func (h *Handlers) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.service.Register(r.Context(), app.RegisterParams{
		Email:        req.Email,
		Password:     req.Password,
		AccountType:  req.AccountType,
		BusinessName: req.BusinessName,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token   string          `json:"token"`
	Account *domain.Account `json:"account"`
}

// LoginHandler checks credentials and returns a signed token.
func (h *Handlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}
	token, account, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: token, Account: account})
}

// ProfileHandler returns the authenticated account.
func (h *Handlers) ProfileHandler(w http.ResponseWriter, r *http.Request) {
	accountID, _, _ := AccountFromContext(r.Context())
	account, err := h.service.Profile(r.Context(), accountID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// WalletHandler returns the authenticated account's balance.
func (h *Handlers) WalletHandler(w http.ResponseWriter, r *http.Request) {
	accountID, _, _ := AccountFromContext(r.Context())
	wallet, err := h.service.WalletBalance(r.Context(), accountID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wallet)
}

// CardHandler returns the account's card metadata, number masked.
func (h *Handlers) CardHandler(w http.ResponseWriter, r *http.Request) {
	accountID, _, _ := AccountFromContext(r.Context())
	info, err := h.service.CardInfo(r.Context(), accountID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func listOptions(r *http.Request) domain.TransactionListOptions {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	return domain.TransactionListOptions{
		Limit:  limit,
		Offset: offset,
		Type:   r.URL.Query().Get("type"),
	}
}

// TransactionsHandler lists the account's ledger history.
func (h *Handlers) TransactionsHandler(w http.ResponseWriter, r *http.Request) {
	accountID, _, _ := AccountFromContext(r.Context())
	txns, err := h.service.TransactionHistory(r.Context(), accountID, listOptions(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, txns)
}

type transferRequest struct {
	RecipientID uuid.UUID       `json:"recipient_id"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// TransferHandler moves funds from the caller's wallet to another account.
func (h *Handlers) TransferHandler(w http.ResponseWriter, r *http.Request) {
	accountID, _, _ := AccountFromContext(r.Context())
	var req transferRequest
	if !h.decode(w, r, &req) {
		return
	}
	txn, err := h.service.Transfer(r.Context(), accountID, req.RecipientID, req.Amount, req.Description)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, txn)
}

type amountRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// DepositHandler moves funds from the bank reserve into the caller's wallet.
func (h *Handlers) DepositHandler(w http.ResponseWriter, r *http.Request) {
	accountID, _, _ := AccountFromContext(r.Context())
	var req amountRequest
	if !h.decode(w, r, &req) {
		return
	}
	txn, err := h.service.Deposit(r.Context(), accountID, req.Amount, req.Description)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, txn)
}

// WithdrawHandler moves funds from the caller's wallet back to the reserve.
func (h *Handlers) WithdrawHandler(w http.ResponseWriter, r *http.Request) {
	accountID, _, _ := AccountFromContext(r.Context())
	var req amountRequest
	if !h.decode(w, r, &req) {
		return
	}
	txn, err := h.service.Withdraw(r.Context(), accountID, req.Amount, req.Description)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, txn)
}

type verifyBusinessRequest struct {
	Verified bool `json:"verified"`
}

// VerifyBusinessHandler toggles business verification. Admin role required.
func (h *Handlers) VerifyBusinessHandler(w http.ResponseWriter, r *http.Request) {
	accountID, role, _ := AccountFromContext(r.Context())
	businessID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, domain.ErrValidation)
		return
	}
	var req verifyBusinessRequest
	if !h.decode(w, r, &req) {
		return
	}
	caller := &domain.Account{ID: accountID, Role: role}
	if err := h.service.VerifyBusiness(r.Context(), caller, businessID, req.Verified); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"business_id": businessID, "verified": req.Verified})
}

// ReserveHandler returns the bank reserve snapshot. Admin role required.
func (h *Handlers) ReserveHandler(w http.ResponseWriter, r *http.Request) {
	accountID, role, _ := AccountFromContext(r.Context())
	caller := &domain.Account{ID: accountID, Role: role}
	reserve, err := h.service.ReserveSnapshot(r.Context(), caller)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reserve)
}
