package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"sealedcourt/account"
	"sealedcourt/arbitrator"
	"sealedcourt/auth"
	"sealedcourt/ciphertext"
	"sealedcourt/court"
	"sealedcourt/dispute"
	"sealedcourt/oracle"
	"sealedcourt/payout"
	"sealedcourt/vote"
)

type ctxKey string

const (
	ctxKeyAddress ctxKey = "address"
	ctxKeyRole    ctxKey = "role"
)

// courtService is the slice of the court the HTTP layer drives.
type courtService interface {
	Register(ctx context.Context, caller account.Address, identity ciphertext.Handle) (arbitrator.Profile, error)
	PauseArbitrator(ctx context.Context, caller, target account.Address) error
	UnpauseArbitrator(ctx context.Context, caller, target account.Address) error
	CreateDispute(ctx context.Context, caller account.Address, in court.CreateInput) (uint64, error)
	AssignArbitrators(ctx context.Context, disputeID uint64) ([]account.Address, error)
	SubmitVote(ctx context.Context, caller account.Address, disputeID uint64, option vote.Option, justification ciphertext.Handle) (court.VoteResult, error)
	OnDecryptionCallback(ctx context.Context, id oracle.RequestID, cleartexts, proof []byte) (court.CallbackOutcome, error)
	CheckVotingTimeout(ctx context.Context, disputeID uint64) error
	CheckDecryptionTimeout(ctx context.Context, disputeID uint64) error
	ClaimRefund(ctx context.Context, caller account.Address, disputeID uint64) (uint64, error)
	Withdraw(ctx context.Context, caller account.Address) (uint64, error)

	Dispute(ctx context.Context, id uint64) (dispute.Dispute, error)
	Arbitrator(ctx context.Context, addr account.Address) (arbitrator.Profile, error)
	UserReputation(ctx context.Context, addr account.Address) (int64, error)
	TimeoutStatus(ctx context.Context, disputeID uint64) (court.TimeoutStatus, error)
	RefundStatus(ctx context.Context, disputeID uint64) (court.RefundStatus, error)
	PendingWithdrawal(ctx context.Context, addr account.Address) (uint64, error)
}

// Server exposes the court over HTTP.
type Server struct {
	court    courtService
	ciphers  ciphertext.Service
	auth     *auth.Service
	gatherer prometheus.Gatherer
	log      zerolog.Logger
}

func NewServer(c courtService, ciphers ciphertext.Service, authSvc *auth.Service, gatherer prometheus.Gatherer, log zerolog.Logger) *Server {
	return &Server{
		court:    c,
		ciphers:  ciphers,
		auth:     authSvc,
		gatherer: gatherer,
		log:      log.With().Str("component", "http").Logger(),
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	// Callbacks authenticate through their proof, not a caller token.
	r.Post("/oracle/callback", s.handleOracleCallback)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.authenticate)

		r.Post("/ciphertexts", s.handleEncrypt)

		r.Post("/arbitrators", s.handleRegister)
		r.Get("/arbitrators/{address}", s.handleArbitrator)
		r.Post("/arbitrators/{address}/pause", s.handlePause)
		r.Post("/arbitrators/{address}/unpause", s.handleUnpause)
		r.Get("/reputation/{address}", s.handleReputation)

		r.Post("/disputes", s.handleCreateDispute)
		r.Get("/disputes/{id}", s.handleDispute)
		r.Post("/disputes/{id}/assign", s.handleAssign)
		r.Post("/disputes/{id}/votes", s.handleVote)
		r.Get("/disputes/{id}/timeouts", s.handleTimeoutStatus)
		r.Post("/disputes/{id}/timeouts/voting", s.handleVotingTimeout)
		r.Post("/disputes/{id}/timeouts/decryption", s.handleDecryptionTimeout)
		r.Get("/disputes/{id}/refund", s.handleRefundStatus)
		r.Post("/disputes/{id}/refund", s.handleClaimRefund)

		r.Get("/withdrawals", s.handlePendingWithdrawal)
		r.Post("/withdrawals", s.handleWithdraw)
	})
	return r
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("req_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		p, err := s.auth.VerifyToken(strings.TrimSpace(token))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyAddress, p.Address)
		ctx = context.WithValue(ctx, ctxKeyRole, p.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func callerFrom(ctx context.Context) account.Address {
	addr, _ := ctx.Value(ctxKeyAddress).(account.Address)
	return addr
}

func (s *Server) handleEncrypt(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Value uint64 `json:"value"`
	}
	if !decode(w, r, &req) {
		return
	}
	h, err := s.ciphers.Encrypt(r.Context(), req.Value)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"handle": h.String()})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Identity string `json:"identity"`
	}
	if !decode(w, r, &req) {
		return
	}
	p, err := s.court.Register(r.Context(), callerFrom(r.Context()), ciphertext.Handle(req.Identity))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toArbitratorResponse(p))
}

func (s *Server) handleArbitrator(w http.ResponseWriter, r *http.Request) {
	p, err := s.court.Arbitrator(r.Context(), account.Parse(chi.URLParam(r, "address")))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toArbitratorResponse(p))
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	target := account.Parse(chi.URLParam(r, "address"))
	if err := s.court.PauseArbitrator(r.Context(), callerFrom(r.Context()), target); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUnpause(w http.ResponseWriter, r *http.Request) {
	target := account.Parse(chi.URLParam(r, "address"))
	if err := s.court.UnpauseArbitrator(r.Context(), callerFrom(r.Context()), target); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReputation(w http.ResponseWriter, r *http.Request) {
	addr := account.Parse(chi.URLParam(r, "address"))
	rep, err := s.court.UserReputation(r.Context(), addr)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"address": addr, "reputation": rep})
}

func (s *Server) handleCreateDispute(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Defendant         string `json:"defendant"`
		EncryptedStake    string `json:"encryptedStake"`
		EncryptedEvidence string `json:"encryptedEvidence"`
		Escrow            uint64 `json:"escrow"`
	}
	if !decode(w, r, &req) {
		return
	}
	id, err := s.court.CreateDispute(r.Context(), callerFrom(r.Context()), court.CreateInput{
		Defendant:         account.Parse(req.Defendant),
		EncryptedStake:    ciphertext.Handle(req.EncryptedStake),
		EncryptedEvidence: ciphertext.Handle(req.EncryptedEvidence),
		Escrow:            req.Escrow,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uint64{"id": id})
}

func (s *Server) handleDispute(w http.ResponseWriter, r *http.Request) {
	id, ok := disputeID(w, r)
	if !ok {
		return
	}
	d, err := s.court.Dispute(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDisputeResponse(d))
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	id, ok := disputeID(w, r)
	if !ok {
		return
	}
	panel, err := s.court.AssignArbitrators(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"arbitrators": panel})
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	id, ok := disputeID(w, r)
	if !ok {
		return
	}
	var req struct {
		Option        uint8  `json:"option"`
		Justification string `json:"justification"`
	}
	if !decode(w, r, &req) {
		return
	}
	res, err := s.court.SubmitVote(r.Context(), callerFrom(r.Context()), id, vote.Option(req.Option), ciphertext.Handle(req.Justification))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"disputeId": res.DisputeID,
		"completed": res.Completed,
		"requestId": res.RequestID,
	})
}

func (s *Server) handleOracleCallback(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RequestID  string `json:"requestId"`
		Cleartexts []byte `json:"cleartexts"`
		Proof      string `json:"proof"`
	}
	if !decode(w, r, &req) {
		return
	}
	out, err := s.court.OnDecryptionCallback(r.Context(), oracle.RequestID(req.RequestID), req.Cleartexts, []byte(req.Proof))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"disputeId": out.DisputeID,
		"status":    out.Status,
		"winner":    out.Winner,
		"reason":    out.Reason,
	})
}

func (s *Server) handleTimeoutStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := disputeID(w, r)
	if !ok {
		return
	}
	ts, err := s.court.TimeoutStatus(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ts)
}

func (s *Server) handleVotingTimeout(w http.ResponseWriter, r *http.Request) {
	id, ok := disputeID(w, r)
	if !ok {
		return
	}
	if err := s.court.CheckVotingTimeout(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDecryptionTimeout(w http.ResponseWriter, r *http.Request) {
	id, ok := disputeID(w, r)
	if !ok {
		return
	}
	if err := s.court.CheckDecryptionTimeout(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRefundStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := disputeID(w, r)
	if !ok {
		return
	}
	rs, err := s.court.RefundStatus(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rs)
}

func (s *Server) handleClaimRefund(w http.ResponseWriter, r *http.Request) {
	id, ok := disputeID(w, r)
	if !ok {
		return
	}
	amount, err := s.court.ClaimRefund(r.Context(), callerFrom(r.Context()), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"amount": amount})
}

func (s *Server) handlePendingWithdrawal(w http.ResponseWriter, r *http.Request) {
	amount, err := s.court.PendingWithdrawal(r.Context(), callerFrom(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"amount": amount})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	amount, err := s.court.Withdraw(r.Context(), callerFrom(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"amount": amount})
}

// statusFor maps court errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, court.ErrInvalidCaller),
		errors.Is(err, court.ErrInvalidHandle),
		errors.Is(err, court.ErrInsufficientEscrow),
		errors.Is(err, court.ErrEscrowTooLarge),
		errors.Is(err, court.ErrInvalidDefendant),
		errors.Is(err, court.ErrInvalidOption):
		return http.StatusBadRequest
	case errors.Is(err, court.ErrUnauthorized),
		errors.Is(err, court.ErrNotAssigned),
		errors.Is(err, court.ErrNotParty):
		return http.StatusForbidden
	case errors.Is(err, court.ErrNotFound),
		errors.Is(err, arbitrator.ErrNotRegistered):
		return http.StatusNotFound
	case errors.Is(err, court.ErrBadStatus),
		errors.Is(err, court.ErrAlreadyVoted),
		errors.Is(err, court.ErrAlreadyRegistered),
		errors.Is(err, court.ErrAlreadyRefunded),
		errors.Is(err, court.ErrUnknownRequest),
		errors.Is(err, court.ErrVotingClosed),
		errors.Is(err, court.ErrTimeoutNotReached),
		errors.Is(err, court.ErrNothingToClaim),
		errors.Is(err, payout.ErrNothingToWithdraw),
		errors.Is(err, arbitrator.ErrNotActive),
		errors.Is(err, arbitrator.ErrAlreadyActive):
		return http.StatusConflict
	case errors.Is(err, court.ErrInsufficientArbitrators):
		return http.StatusUnprocessableEntity
	case errors.Is(err, court.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).
			Str("req_id", middleware.GetReqID(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func disputeID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		writeError(w, http.StatusBadRequest, "invalid dispute id")
		return 0, false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
