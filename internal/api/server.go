package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"agora/internal/config"
	"agora/internal/engine"
	"agora/internal/history"
	"agora/internal/ledger"
	"agora/internal/market"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
)

type Server struct {
	cfg      config.APIConfig
	log      *slog.Logger
	engine   *engine.Executor
	ledger   *ledger.Service
	recorder *history.Recorder
	mux      *chi.Mux
}

func New(cfg config.APIConfig, logger *slog.Logger, exec *engine.Executor, ledgerSvc *ledger.Service, recorder *history.Recorder) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:      cfg,
		log:      logger,
		engine:   exec,
		ledger:   ledgerSvc,
		recorder: recorder,
		mux:      chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/markets", s.handleMarketsList)
		r.Get("/markets/{id}", s.handleMarketDetail)
		r.Post("/markets/{id}/quote", s.handleQuote)
		r.Post("/markets/{id}/execute", s.handleExecute)
		r.Get("/markets/{id}/history", s.handleMarketHistory)

		r.Get("/accounts/{owner}", s.handleAccountStatement)
		r.Post("/accounts/transfer", s.handleTransfer)
	})
}

func (s *Server) handleMarketsList(w http.ResponseWriter, r *http.Request) {
	out, err := s.engine.ListMarkets(r.Context(), r.URL.Query().Get("region"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"markets": out})
}

func (s *Server) handleMarketDetail(w http.ResponseWriter, r *http.Request) {
	out, err := s.engine.Detail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Side     string `json:"side"`
		Quantity int64  `json:"quantity"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.engine.Quote(r.Context(), engine.QuoteInput{
		MarketID: chi.URLParam(r, "id"),
		Side:     strings.ToLower(strings.TrimSpace(in.Side)),
		Quantity: in.Quantity,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Side               string `json:"side"`
		Quantity           int64  `json:"quantity"`
		ObservedPriceLevel int64  `json:"observed_price_level"`
		Owner              string `json:"owner"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.engine.Execute(r.Context(), engine.ExecuteInput{
		MarketID:           chi.URLParam(r, "id"),
		Side:               strings.ToLower(strings.TrimSpace(in.Side)),
		Quantity:           in.Quantity,
		ObservedPriceLevel: in.ObservedPriceLevel,
		Owner:              strings.TrimSpace(in.Owner),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleMarketHistory(w http.ResponseWriter, r *http.Request) {
	days := 30
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid days")
			return
		}
		days = n
	}
	out, err := s.recorder.Range(r.Context(), chi.URLParam(r, "id"), days)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": out})
}

func (s *Server) handleAccountStatement(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	balances, err := s.ledger.Balances(r.Context(), owner)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	transactions, err := s.ledger.RecentTransactions(r.Context(), owner, 50)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"owner":        owner,
		"balances":     balances,
		"transactions": transactions,
	})
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var in struct {
		FromOwner string `json:"from_owner"`
		ToOwner   string `json:"to_owner"`
		Scope     string `json:"scope"`
		Amount    string `json:"amount"`
		Reason    string `json:"reason"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(in.Amount))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}
	if in.Scope == "" {
		in.Scope = ledger.ScopeGold
	}
	if in.Reason == "" {
		in.Reason = "transfer"
	}
	receipt, err := s.ledger.Transfer(r.Context(),
		ledger.AccountID{Owner: strings.TrimSpace(in.FromOwner), Scope: in.Scope},
		ledger.AccountID{Owner: strings.TrimSpace(in.ToOwner), Scope: in.Scope},
		amount, in.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, market.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrOverflow),
		errors.Is(err, ledger.ErrSameAccount),
		errors.Is(err, engine.ErrUnknownSide),
		errors.Is(err, engine.ErrOwnerRequired):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, engine.ErrMarketNotFound),
		errors.Is(err, ledger.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, engine.ErrStalePrice),
		errors.Is(err, engine.ErrTxConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}
