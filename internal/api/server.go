package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"predictions/internal/config"
	"predictions/internal/market"
	"predictions/internal/store/postgres"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type contextKey string

const userContextKey contextKey = "user"

type Server struct {
	cfg    config.APIConfig
	log    *slog.Logger
	engine *market.Service
	mux    *chi.Mux
}

func New(cfg config.APIConfig, logger *slog.Logger, engine *market.Service) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		log:    logger,
		engine: engine,
		mux:    chi.NewRouter(),
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
		r.Get("/markets/{name}", s.handleMarketBoard)
		r.Get("/leaderboard", s.handleLeaderboard)

		r.Group(func(r chi.Router) {
			r.Use(s.identityMiddleware)
			r.Post("/markets", s.handleMarketCreate)
			r.Post("/markets/{name}/buy", s.handleBuy)
			r.Post("/markets/{name}/sell", s.handleSell)
			r.Post("/markets/{name}/resolve", s.handleResolve)
			r.Post("/markets/{name}/cancel", s.handleCancel)
			r.Get("/balance", s.handleBalance)
		})
	})

	r.Route("/tasks", func(r chi.Router) {
		r.Use(s.taskSecretMiddleware)
		r.Post("/daily_topup", s.handleDailyTopUp)
		r.Post("/monthly_close", s.handleMonthlyClose)
	})
}

// identityMiddleware trusts the caller-supplied X-User header. The API
// sits behind surfaces (bot, CLI) that have already authenticated the
// user against their own platform.
func (s *Server) identityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := strings.TrimSpace(r.Header.Get("X-User"))
		if user == "" {
			writeError(w, http.StatusUnauthorized, "missing X-User header")
			return
		}
		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) taskSecretMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := strings.TrimSpace(r.Header.Get("X-Task-Secret"))
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.TaskSecret)) != 1 {
			writeError(w, http.StatusUnauthorized, "bad task secret")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func userFromContext(ctx context.Context) string {
	user, _ := ctx.Value(userContextKey).(string)
	return user
}

func (s *Server) handleMarketsList(w http.ResponseWriter, r *http.Request) {
	ms, err := s.engine.OpenMarkets(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	type row struct {
		Name       string    `json:"name"`
		Question   string    `json:"question"`
		CreatorID  string    `json:"creator_id"`
		WhenCloses time.Time `json:"when_closes"`
	}
	out := make([]row, len(ms))
	for i, m := range ms {
		out[i] = row{Name: m.Name, Question: m.Question, CreatorID: m.CreatorID, WhenCloses: m.WhenCloses}
	}
	writeJSON(w, http.StatusOK, map[string]any{"markets": out})
}

func (s *Server) handleMarketBoard(w http.ResponseWriter, r *http.Request) {
	// Identity is optional here; without it the board omits holdings.
	user := strings.TrimSpace(r.Header.Get("X-User"))
	board, err := s.engine.Board(r.Context(), user, chi.URLParam(r, "name"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func (s *Server) handleMarketCreate(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name      string    `json:"name"`
		Question  string    `json:"question"`
		Outcomes  []string  `json:"outcomes"`
		CloseTime time.Time `json:"close_time"`
		Liquidity float64   `json:"liquidity"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	m, err := s.engine.CreateMarket(r.Context(), userFromContext(r.Context()), market.CreateMarketInput{
		Name:      in.Name,
		Question:  in.Question,
		Outcomes:  in.Outcomes,
		CloseTime: in.CloseTime,
		Liquidity: in.Liquidity,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"name":        m.Name,
		"when_closes": m.WhenCloses,
	})
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Outcome string  `json:"outcome"`
		Spend   float64 `json:"spend"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.engine.Buy(r.Context(), userFromContext(r.Context()), chi.URLParam(r, "name"), in.Outcome, in.Spend)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSell(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Outcome string  `json:"outcome"`
		Shares  float64 `json:"shares"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.engine.Sell(r.Context(), userFromContext(r.Context()), chi.URLParam(r, "name"), in.Outcome, in.Shares)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Outcome string `json:"outcome"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.engine.Resolve(r.Context(), userFromContext(r.Context()), chi.URLParam(r, "name"), in.Outcome)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Cancel(r.Context(), userFromContext(r.Context()), chi.URLParam(r, "name")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cancelled": true})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	st, err := s.engine.Balance(r.Context(), userFromContext(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	lb, err := s.engine.Leaderboard(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lb)
}

func (s *Server) handleDailyTopUp(w http.ResponseWriter, r *http.Request) {
	n, err := s.engine.TopUpDue(r.Context(), "")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"topped_up": n})
}

func (s *Server) handleMonthlyClose(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Cycle string `json:"cycle"`
	}
	// An empty body closes the current cycle.
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	res, err := s.engine.CloseCycle(r.Context(), in.Cycle)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, market.ErrMarketNotFound),
		errors.Is(err, market.ErrCycleNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, market.ErrNotCreator):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, market.ErrDuplicateMarket),
		errors.Is(err, market.ErrAlreadyResolved),
		errors.Is(err, market.ErrAlreadyCancelled),
		errors.Is(err, market.ErrMarketCancelled),
		errors.Is(err, market.ErrMarketClosed),
		errors.Is(err, market.ErrCycleClosed):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, market.ErrInvalidSpend),
		errors.Is(err, market.ErrInvalidShares),
		errors.Is(err, market.ErrInvalidName),
		errors.Is(err, market.ErrInvalidSymbol),
		errors.Is(err, market.ErrInvalidCloseTime),
		errors.Is(err, market.ErrInvalidLiquidity),
		errors.Is(err, market.ErrTooFewOutcomes),
		errors.Is(err, market.ErrDuplicateOutcome),
		errors.Is(err, market.ErrUnknownOutcome),
		errors.Is(err, market.ErrInsufficientBalance),
		errors.Is(err, market.ErrInsufficientShares),
		errors.Is(err, market.ErrInsufficientLiquidity),
		errors.Is(err, market.ErrTradeTooSmall),
		errors.Is(err, market.ErrMarketIlliquid):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, postgres.ErrTxConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}
