package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"example.com/horizon/services/ledger/auth"
	"example.com/horizon/services/ledger/database"
	"example.com/horizon/services/ledger/domain"
	"example.com/horizon/services/ledger/eventstore"
	"example.com/horizon/services/ledger/handlers"
	"example.com/horizon/services/ledger/utils"
)

// accountResponse is the wire view of an account aggregate
type accountResponse struct {
	ID       string `json:"id"`
	OwnerID  string `json:"owner_id"`
	Name     string `json:"name"`
	Currency string `json:"currency"`
	Balance  int64  `json:"balance"`
	Status   string `json:"status"`
	Version  int    `json:"version"`
}

func toAccountResponse(account *domain.Account) accountResponse {
	return accountResponse{
		ID:       account.GetID(),
		OwnerID:  account.OwnerID,
		Name:     account.Name,
		Currency: account.Currency,
		Balance:  account.Balance,
		Status:   account.Status,
		Version:  account.GetVersion(),
	}
}

// accountID extracts and validates the id path parameter. Account ids are
// server-generated UUIDs, so a malformed id can never name an account and
// gets the same not-found answer a missing one would.
func accountID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if !utils.IsValidUUID(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		return "", false
	}
	return id, true
}

func (s *Server) claims(c *gin.Context) (*auth.ClaimSet, bool) {
	value, exists := c.Get(claimsKey)
	if !exists {
		return nil, false
	}
	claims, ok := value.(*auth.ClaimSet)
	return claims, ok
}

func (s *Server) eventMetadata(c *gin.Context, claims *auth.ClaimSet) domain.EventMetadata {
	return domain.EventMetadata{
		TenantID:      claims.TenantID,
		UserID:        claims.Subject,
		CorrelationID: c.GetString(requestIDKey),
		Timestamp:     time.Now(),
	}
}

// respondError maps core errors onto generic HTTP responses. Tenant
// mismatches already arrive as not-found from the handler layer; nothing
// here may turn them back into a forbidden that confirms existence.
func respondError(c *gin.Context, err error) {
	var conflict *eventstore.ConcurrencyConflict
	var validationErrs validator.ValidationErrors

	switch {
	case errors.Is(err, handlers.ErrAccountNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
	case errors.Is(err, handlers.ErrAccountAlreadyExists),
		errors.Is(err, domain.ErrAccountAlreadyOpen),
		errors.Is(err, domain.ErrAccountNotOpen):
		c.JSON(http.StatusConflict, gin.H{"error": "account state conflict"})
	case errors.Is(err, domain.ErrInsufficientFunds):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "insufficient funds"})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"error": "please retry"})
	case errors.As(err, &validationErrs):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
	case errors.Is(err, database.ErrNoTenantContext):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	default:
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("Request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (s *Server) openAccount(c *gin.Context) {
	claims, ok := s.claims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var cmd handlers.OpenAccountCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	account, err := s.accountHandler.OpenAccount(c.Request.Context(), cmd, s.eventMetadata(c, claims))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toAccountResponse(account))
}

func (s *Server) getAccount(c *gin.Context) {
	if _, ok := s.claims(c); !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	id, ok := accountID(c)
	if !ok {
		return
	}

	account, err := s.accountHandler.GetAccount(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, toAccountResponse(account))
}

func (s *Server) deposit(c *gin.Context) {
	claims, ok := s.claims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	id, ok := accountID(c)
	if !ok {
		return
	}

	var cmd handlers.DepositCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	cmd.AccountID = id

	account, err := s.accountHandler.Deposit(c.Request.Context(), cmd, s.eventMetadata(c, claims))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, toAccountResponse(account))
}

func (s *Server) withdraw(c *gin.Context) {
	claims, ok := s.claims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	id, ok := accountID(c)
	if !ok {
		return
	}

	var cmd handlers.WithdrawCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	cmd.AccountID = id

	account, err := s.accountHandler.Withdraw(c.Request.Context(), cmd, s.eventMetadata(c, claims))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, toAccountResponse(account))
}

func (s *Server) closeAccount(c *gin.Context) {
	claims, ok := s.claims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	id, ok := accountID(c)
	if !ok {
		return
	}

	var cmd handlers.CloseAccountCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		cmd = handlers.CloseAccountCommand{}
	}
	cmd.AccountID = id

	account, err := s.accountHandler.CloseAccount(c.Request.Context(), cmd, s.eventMetadata(c, claims))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, toAccountResponse(account))
}
