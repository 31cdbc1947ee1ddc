// Package api exposes the vault over HTTP and WebSocket.
//
// All monetary values are decimal strings in the asset's smallest unit;
// prices and strikes carry the oracle's fixed-point precision.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/atmx/zdte-vault/internal/model"
	"github.com/atmx/zdte-vault/internal/pool"
	"github.com/atmx/zdte-vault/internal/store"
	"github.com/atmx/zdte-vault/internal/vault"
)

// ErrInvalidHolder is returned for identities that are not EVM addresses.
var ErrInvalidHolder = errors.New("api: holder must be a 0x-prefixed address")

// Archiver uploads vault data to long-term storage.
type Archiver interface {
	Snapshot(ctx context.Context, label string, st model.State, at time.Time) (string, error)
	Settlements(ctx context.Context, label string, positions []model.Position, at time.Time) (string, error)
}

// SpotSetter is the operator side of a static oracle.
type SpotSetter interface {
	Set(spot decimal.Decimal) error
	SetVolatility(vol decimal.Decimal) error
}

// Minter credits test funds to an account.
type Minter interface {
	Mint(account string, amount decimal.Decimal) error
}

// Options configures optional collaborators. Nil fields disable the routes
// that need them.
type Options struct {
	Ledger   store.Store // ledger history for holder queries
	Hub      *WSHub
	Archiver Archiver
	Oracle   SpotSetter                // dev: PUT /dev/oracle
	Faucet   map[model.PoolSide]Minter // dev: POST /dev/faucet
	Logger   *slog.Logger
}

// Service handles vault HTTP requests.
type Service struct {
	vault    *vault.Vault
	ledger   store.Store
	hub      *WSHub
	archiver Archiver
	oracle   SpotSetter
	faucet   map[model.PoolSide]Minter
	log      *slog.Logger
}

// NewService creates a service over v.
func NewService(v *vault.Vault, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		vault:    v,
		ledger:   opts.Ledger,
		hub:      opts.Hub,
		archiver: opts.Archiver,
		oracle:   opts.Oracle,
		faucet:   opts.Faucet,
		log:      opts.Logger.With("component", "api"),
	}
}

// Routes mounts the API under r, normally at /api/v1.
func (s *Service) Routes(r chi.Router) {
	if s.hub != nil {
		r.Get("/ws", s.hub.HandleWS)
	}

	r.Get("/vault", s.GetVault)
	r.Get("/pools/{side}", s.GetPool)

	r.Post("/deposit", s.Deposit)
	r.Post("/withdraw", s.Withdraw)
	r.Get("/holders/{holder}", s.GetHolder)

	r.Post("/quote", s.Quote)
	r.Post("/positions/long", s.OpenLong)
	r.Post("/positions/spread", s.OpenSpread)
	r.Get("/positions", s.ListPositions)
	r.Get("/positions/{positionID}", s.GetPosition)
	r.Post("/positions/{positionID}/expire", s.ExpirePosition)
	r.Post("/expire", s.ExpireAll)

	if s.archiver != nil {
		r.Post("/archive", s.Archive)
	}
	if s.oracle != nil {
		r.Put("/dev/oracle", s.SetOracle)
	}
	if s.faucet != nil {
		r.Post("/dev/faucet", s.Faucet)
	}
}

// --- Request/Response types ---

// LiquidityRequest is the body of POST /deposit (Amount) and
// POST /withdraw (Shares).
type LiquidityRequest struct {
	Holder  string          `json:"holder"`
	IsQuote bool            `json:"is_quote"`
	Amount  decimal.Decimal `json:"amount"`
	Shares  decimal.Decimal `json:"shares"`
}

// LiquidityResponse reports a completed deposit or withdrawal.
type LiquidityResponse struct {
	Holder  string          `json:"holder"`
	Side    model.PoolSide  `json:"side"`
	Amount  decimal.Decimal `json:"amount"`
	Shares  decimal.Decimal `json:"shares"`
	Balance decimal.Decimal `json:"balance"`
	Pool    model.Pool      `json:"pool"`
}

// PositionRequest is the body of the open and quote endpoints. Strike is
// used for longs; LongStrike and ShortStrike for spreads.
type PositionRequest struct {
	Owner       string          `json:"owner"`
	IsPut       bool            `json:"is_put"`
	Amount      decimal.Decimal `json:"amount"`
	Strike      decimal.Decimal `json:"strike"`
	LongStrike  decimal.Decimal `json:"long_strike"`
	ShortStrike decimal.Decimal `json:"short_strike"`
}

func (p PositionRequest) isSpread() bool {
	return !p.LongStrike.IsZero() || !p.ShortStrike.IsZero()
}

// SettlementResponse reports one settled position.
type SettlementResponse struct {
	PositionID uint64          `json:"position_id"`
	Payout     decimal.Decimal `json:"payout"`
	Error      string          `json:"error,omitempty"`
}

// HolderBalance is one pool's view of a holder.
type HolderBalance struct {
	Shares decimal.Decimal `json:"shares"`
	Value  decimal.Decimal `json:"value"`
}

// --- Vault and pools ---

// GetVault handles GET /api/v1/vault
func (s *Service) GetVault(w http.ResponseWriter, r *http.Request) {
	open := 0
	for _, p := range s.vault.Positions("") {
		if !p.Settled {
			open++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"config":         s.vault.Config(),
		"quote_pool":     s.vault.Pool(true),
		"base_pool":      s.vault.Pool(false),
		"open_positions": open,
	})
}

// GetPool handles GET /api/v1/pools/{side}
func (s *Service) GetPool(w http.ResponseWriter, r *http.Request) {
	side := model.PoolSide(chi.URLParam(r, "side"))
	if !side.Valid() {
		writeError(w, "side must be quote or base", http.StatusBadRequest)
		return
	}
	p := s.vault.Pool(side == model.SideQuote)
	writeJSON(w, http.StatusOK, map[string]any{
		"pool":             p,
		"available_assets": p.Available(),
		"assets_per_share": pool.AssetsPerShare(p, 18),
	})
}

// --- Liquidity ---

// Deposit handles POST /api/v1/deposit
func (s *Service) Deposit(w http.ResponseWriter, r *http.Request) {
	var req LiquidityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	holder, err := normaliseHolder(req.Holder)
	if err != nil {
		s.fail(w, "deposit", err)
		return
	}

	shares, err := s.vault.Deposit(r.Context(), holder, req.IsQuote, req.Amount)
	if err != nil {
		s.fail(w, "deposit", err)
		return
	}

	side := model.SideOf(req.IsQuote)
	s.broadcast(Event{Type: EventDeposit, Holder: holder, Side: string(side), Amount: req.Amount.String(), Shares: shares.String()})
	writeJSON(w, http.StatusOK, LiquidityResponse{
		Holder:  holder,
		Side:    side,
		Amount:  req.Amount,
		Shares:  shares,
		Balance: s.vault.ShareBalance(req.IsQuote, holder),
		Pool:    s.vault.Pool(req.IsQuote),
	})
}

// Withdraw handles POST /api/v1/withdraw
func (s *Service) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req LiquidityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	holder, err := normaliseHolder(req.Holder)
	if err != nil {
		s.fail(w, "withdraw", err)
		return
	}

	amount, err := s.vault.Withdraw(r.Context(), holder, req.IsQuote, req.Shares)
	if err != nil {
		s.fail(w, "withdraw", err)
		return
	}

	side := model.SideOf(req.IsQuote)
	s.broadcast(Event{Type: EventWithdraw, Holder: holder, Side: string(side), Amount: amount.String(), Shares: req.Shares.String()})
	writeJSON(w, http.StatusOK, LiquidityResponse{
		Holder:  holder,
		Side:    side,
		Amount:  amount,
		Shares:  req.Shares,
		Balance: s.vault.ShareBalance(req.IsQuote, holder),
		Pool:    s.vault.Pool(req.IsQuote),
	})
}

// GetHolder handles GET /api/v1/holders/{holder}
// Returns share balances, their current value and ledger history.
func (s *Service) GetHolder(w http.ResponseWriter, r *http.Request) {
	holder, err := normaliseHolder(chi.URLParam(r, "holder"))
	if err != nil {
		s.fail(w, "holder", err)
		return
	}

	balances := map[model.PoolSide]HolderBalance{}
	for _, isQuote := range []bool{true, false} {
		balances[model.SideOf(isQuote)] = HolderBalance{
			Shares: s.vault.ShareBalance(isQuote, holder),
			Value:  s.vault.HolderValue(isQuote, holder),
		}
	}

	history := []model.LedgerEntry{}
	if s.ledger != nil {
		entries, err := s.ledger.GetLedgerEntriesByHolder(r.Context(), holder)
		if err != nil {
			writeError(w, "failed to load holder history", http.StatusInternalServerError)
			return
		}
		if entries != nil {
			history = entries
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"holder":    holder,
		"balances":  balances,
		"positions": s.vault.Positions(holder),
		"history":   history,
	})
}

// --- Positions ---

// Quote handles POST /api/v1/quote
func (s *Service) Quote(w http.ResponseWriter, r *http.Request) {
	var req PositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	var premium decimal.Decimal
	var err error
	if req.isSpread() {
		premium, err = s.vault.QuoteSpread(r.Context(), req.IsPut, req.Amount, req.LongStrike, req.ShortStrike)
	} else {
		premium, err = s.vault.QuoteLong(r.Context(), req.IsPut, req.Amount, req.Strike)
	}
	if err != nil {
		s.fail(w, "quote", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"premium": premium})
}

// OpenLong handles POST /api/v1/positions/long
func (s *Service) OpenLong(w http.ResponseWriter, r *http.Request) {
	s.open(w, r, false)
}

// OpenSpread handles POST /api/v1/positions/spread
func (s *Service) OpenSpread(w http.ResponseWriter, r *http.Request) {
	s.open(w, r, true)
}

func (s *Service) open(w http.ResponseWriter, r *http.Request, spread bool) {
	var req PositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	owner, err := normaliseHolder(req.Owner)
	if err != nil {
		s.fail(w, "open", err)
		return
	}

	var id uint64
	if spread {
		id, err = s.vault.OpenSpreadPosition(r.Context(), owner, req.IsPut, req.Amount, req.LongStrike, req.ShortStrike)
	} else {
		id, err = s.vault.OpenLongPosition(r.Context(), owner, req.IsPut, req.Amount, req.Strike)
	}
	if err != nil {
		s.fail(w, "open", err)
		return
	}

	pos, err := s.vault.Position(id)
	if err != nil {
		s.fail(w, "open", err)
		return
	}
	s.broadcast(Event{Type: EventOpen, Holder: owner, PositionID: id, Symbol: pos.Symbol, Amount: pos.Premium.String()})
	writeJSON(w, http.StatusCreated, pos)
}

// ListPositions handles GET /api/v1/positions
// Optionally filtered by ?owner=<address>.
func (s *Service) ListPositions(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner != "" {
		var err error
		if owner, err = normaliseHolder(owner); err != nil {
			s.fail(w, "positions", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, s.vault.Positions(owner))
}

// GetPosition handles GET /api/v1/positions/{positionID}
func (s *Service) GetPosition(w http.ResponseWriter, r *http.Request) {
	id, ok := positionID(w, r)
	if !ok {
		return
	}
	pos, err := s.vault.Position(id)
	if err != nil {
		s.fail(w, "position", err)
		return
	}

	resp := map[string]any{"position": pos}
	if s.ledger != nil {
		if entries, err := s.ledger.GetLedgerEntriesByPosition(r.Context(), id); err == nil && entries != nil {
			resp["history"] = entries
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// ExpirePosition handles POST /api/v1/positions/{positionID}/expire
// Anyone may settle; the payout always goes to the position owner.
func (s *Service) ExpirePosition(w http.ResponseWriter, r *http.Request) {
	id, ok := positionID(w, r)
	if !ok {
		return
	}
	payout, err := s.vault.ExpirePosition(r.Context(), id)
	if err != nil {
		s.fail(w, "expire", err)
		return
	}

	pos, _ := s.vault.Position(id)
	s.broadcast(Event{Type: EventExpire, Holder: pos.Owner, PositionID: id, Symbol: pos.Symbol, Amount: payout.String(), Spot: pos.SettlementPrice.String()})
	writeJSON(w, http.StatusOK, map[string]any{"position": pos, "payout": payout})
}

// ExpireAll handles POST /api/v1/expire
// Settles every open position and, when an archiver is configured, uploads
// the settlement report.
func (s *Service) ExpireAll(w http.ResponseWriter, r *http.Request) {
	results, err := s.vault.ExpireAll(r.Context())
	if err != nil {
		s.fail(w, "expire_all", err)
		return
	}

	resp := make([]SettlementResponse, 0, len(results))
	for _, res := range results {
		sr := SettlementResponse{PositionID: res.PositionID, Payout: res.Payout}
		if res.Err != nil {
			sr.Error = res.Err.Error()
		} else {
			s.broadcast(Event{Type: EventExpire, PositionID: res.PositionID, Amount: res.Payout.String()})
		}
		resp = append(resp, sr)
	}

	if s.archiver != nil && len(results) > 0 {
		cfg := s.vault.Config()
		if key, err := s.archiver.Settlements(r.Context(), cfg.Label, s.vault.Positions(""), time.Now().UTC()); err != nil {
			s.log.Error("settlement report upload failed", "error", err)
		} else {
			s.log.Info("settlement report uploaded", "key", key)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- Operations ---

// Archive handles POST /api/v1/archive
func (s *Service) Archive(w http.ResponseWriter, r *http.Request) {
	key, err := s.archiver.Snapshot(r.Context(), s.vault.Config().Label, s.vault.Snapshot(), time.Now().UTC())
	if err != nil {
		s.log.Error("snapshot upload failed", "error", err)
		writeError(w, "snapshot upload failed", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"key": key})
}

// SetOracle handles PUT /api/v1/dev/oracle
func (s *Service) SetOracle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Spot       decimal.Decimal `json:"spot"`
		Volatility decimal.Decimal `json:"volatility"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !req.Spot.IsZero() {
		if err := s.oracle.Set(req.Spot); err != nil {
			s.fail(w, "oracle", err)
			return
		}
		s.broadcast(Event{Type: EventSpot, Spot: req.Spot.String()})
	}
	if !req.Volatility.IsZero() {
		if err := s.oracle.SetVolatility(req.Volatility); err != nil {
			s.fail(w, "oracle", err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// Faucet handles POST /api/v1/dev/faucet
func (s *Service) Faucet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Account string          `json:"account"`
		IsQuote bool            `json:"is_quote"`
		Amount  decimal.Decimal `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	account, err := normaliseHolder(req.Account)
	if err != nil {
		s.fail(w, "faucet", err)
		return
	}
	minter, ok := s.faucet[model.SideOf(req.IsQuote)]
	if !ok {
		writeError(w, "faucet not available for this asset", http.StatusNotFound)
		return
	}
	if err := minter.Mint(account, req.Amount); err != nil {
		s.fail(w, "faucet", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Helpers ---

func (s *Service) broadcast(ev Event) {
	if s.hub != nil {
		s.hub.Broadcast(ev)
	}
}

// fail maps err to a status and logs server-side failures.
func (s *Service) fail(w http.ResponseWriter, op string, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "op", op, "error", err)
	}
	writeError(w, err.Error(), status)
}

func positionID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "positionID"), 10, 64)
	if err != nil {
		writeError(w, "position id must be a positive integer", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// normaliseHolder validates an EVM address and returns its checksum form.
func normaliseHolder(s string) (string, error) {
	if !common.IsHexAddress(s) {
		return "", ErrInvalidHolder
	}
	return common.HexToAddress(s).Hex(), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
