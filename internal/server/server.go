package server

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
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"holder-rewards/internal/config"
	"holder-rewards/internal/scheduler"
	"holder-rewards/internal/service"
	"holder-rewards/internal/storage"
)

// Store is the persistence surface the admin API reads and writes.
type Store interface {
	storage.SettingsStore
	storage.ClaimStore
	storage.SnapshotStore
	storage.DistributionStore
	storage.PayoutStore
	storage.EligibilityStore
}

// ClaimTrigger runs one claim cycle synchronously.
type ClaimTrigger interface {
	RunCycle(ctx context.Context, force bool) service.CycleResult
}

// SchedulerControl exposes the cron lifecycle to the API.
type SchedulerControl interface {
	Start(ctx context.Context) error
	Stop()
	Status(ctx context.Context) scheduler.Status
}

// Server is the admin HTTP API for settings, claim history, and the
// scheduler lifecycle.
type Server struct {
	cfg     config.ServerConfig
	store   Store
	trigger ClaimTrigger
	sched   SchedulerControl
	logger  zerolog.Logger
	router  *chi.Mux
	srv     *http.Server
}

// New constructs the admin server.
func New(cfg config.ServerConfig, store Store, trigger ClaimTrigger, sched SchedulerControl, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		store:   store,
		trigger: trigger,
		sched:   sched,
		logger:  logger.With().Str("component", "server").Logger(),
		router:  chi.NewRouter(),
	}

	s.setupRoutes()

	s.srv = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Handler returns the underlying router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.cfg.ListenAddr).Msg("admin api listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/settings", s.handleGetSettings)
		r.With(s.requireAdmin).Put("/settings", s.handleUpdateSettings)

		r.With(s.requireAdmin).Post("/claims/trigger", s.handleTriggerClaim)
		r.Get("/claims", s.handleListClaims)
		r.Get("/claims/{id}", s.handleGetClaim)
		r.Get("/claims/{id}/snapshots", s.handleListSnapshots)
		r.Get("/claims/{id}/distributions", s.handleListDistributions)
		r.Get("/claims/{id}/payouts", s.handleListPayouts)

		r.Get("/holders", s.handleListHolders)
		r.With(s.requireAdmin).Post("/holders/{address}/reset", s.handleResetHolder)

		r.Get("/scheduler/status", s.handleSchedulerStatus)
		r.With(s.requireAdmin).Post("/scheduler/start", s.handleSchedulerStart)
		r.With(s.requireAdmin).Post("/scheduler/stop", s.handleSchedulerStop)
	})
}

// requireAdmin guards mutating routes with a bearer token when one is
// configured.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AdminToken != "" {
			header := r.Header.Get("Authorization")
			token := strings.TrimPrefix(header, "Bearer ")
			if header == token || token != s.cfg.AdminToken {
				writeError(w, http.StatusUnauthorized, "invalid or missing admin token")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

type settingsPayload struct {
	Enabled                bool            `json:"enabled"`
	ClaimIntervalMinutes   int             `json:"claimIntervalMinutes"`
	DistributionPercentage decimal.Decimal `json:"distributionPercentage"`
	MinClaimAmount         decimal.Decimal `json:"minClaimAmount"`
	FeeSourceAccount       string          `json:"feeSourceAccount"`
	TokenMintAddress       string          `json:"tokenMintAddress"`
	SellThresholdPercent   decimal.Decimal `json:"sellThresholdPercent"`
	NextClaimScheduled     *time.Time      `json:"nextClaimScheduled,omitempty"`
	LastSuccessfulClaim    *time.Time      `json:"lastSuccessfulClaim,omitempty"`
	UpdatedAt              time.Time       `json:"updatedAt"`
}

func settingsToPayload(settings storage.AutoClaimSettings) settingsPayload {
	return settingsPayload{
		Enabled:                settings.Enabled,
		ClaimIntervalMinutes:   settings.ClaimIntervalMinutes,
		DistributionPercentage: settings.DistributionPercentage,
		MinClaimAmount:         settings.MinClaimAmount,
		FeeSourceAccount:       settings.FeeSourceAccount,
		TokenMintAddress:       settings.TokenMintAddress,
		SellThresholdPercent:   settings.SellThresholdPercent,
		NextClaimScheduled:     settings.NextClaimScheduled,
		LastSuccessfulClaim:    settings.LastSuccessfulClaim,
		UpdatedAt:              settings.UpdatedAt,
	}
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.store.GetSettings(r.Context())
	if err != nil {
		s.serverError(w, err, "load settings")
		return
	}
	writeJSON(w, http.StatusOK, settingsToPayload(settings))
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var payload settingsPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	hundred := decimal.NewFromInt(100)
	if payload.DistributionPercentage.IsNegative() || payload.DistributionPercentage.GreaterThan(hundred) {
		writeError(w, http.StatusBadRequest, "distributionPercentage must be between 0 and 100")
		return
	}
	if payload.SellThresholdPercent.IsNegative() || payload.SellThresholdPercent.GreaterThan(hundred) {
		writeError(w, http.StatusBadRequest, "sellThresholdPercent must be between 0 and 100")
		return
	}
	if payload.ClaimIntervalMinutes < 1 {
		writeError(w, http.StatusBadRequest, "claimIntervalMinutes must be at least 1")
		return
	}
	if payload.MinClaimAmount.IsNegative() {
		writeError(w, http.StatusBadRequest, "minClaimAmount cannot be negative")
		return
	}

	stored, err := s.store.UpdateSettings(r.Context(), storage.AutoClaimSettings{
		Enabled:                payload.Enabled,
		ClaimIntervalMinutes:   payload.ClaimIntervalMinutes,
		DistributionPercentage: payload.DistributionPercentage,
		MinClaimAmount:         payload.MinClaimAmount,
		FeeSourceAccount:       payload.FeeSourceAccount,
		TokenMintAddress:       payload.TokenMintAddress,
		SellThresholdPercent:   payload.SellThresholdPercent,
	})
	if err != nil {
		s.serverError(w, err, "update settings")
		return
	}
	writeJSON(w, http.StatusOK, settingsToPayload(stored))
}

type triggerRequest struct {
	Force bool `json:"force"`
}

type cycleResultPayload struct {
	Outcome            string          `json:"outcome"`
	Reason             string          `json:"reason,omitempty"`
	ClaimID            int64           `json:"claimId,omitempty"`
	ClaimedAmount      decimal.Decimal `json:"claimedAmount"`
	DistributionAmount decimal.Decimal `json:"distributionAmount"`
	TransactionID      string          `json:"transactionId,omitempty"`
	TotalHolders       int             `json:"totalHolders"`
	EligibleHolders    int             `json:"eligibleHolders"`
	NextClaim          *time.Time      `json:"nextClaim,omitempty"`
	Error              string          `json:"error,omitempty"`
}

func (s *Server) handleTriggerClaim(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}

	result := s.trigger.RunCycle(r.Context(), req.Force)
	payload := cycleResultPayload{
		Outcome:            result.Outcome,
		Reason:             result.Reason,
		ClaimID:            result.ClaimID,
		ClaimedAmount:      result.ClaimedAmount,
		DistributionAmount: result.DistributionAmount,
		TransactionID:      result.TransactionID,
		TotalHolders:       result.TotalHolders,
		EligibleHolders:    result.EligibleHolders,
		NextClaim:          result.NextClaim,
	}
	if result.Err != nil {
		payload.Error = result.Err.Error()
	}
	writeJSON(w, http.StatusOK, payload)
}

type claimPayload struct {
	ID                  int64           `json:"id"`
	ClaimedAmount       decimal.Decimal `json:"claimedAmount"`
	DistributionAmount  decimal.Decimal `json:"distributionAmount"`
	TransactionID       string          `json:"transactionId,omitempty"`
	TotalSupply         decimal.Decimal `json:"totalSupply"`
	EligibleHolderCount int             `json:"eligibleHolderCount"`
	Status              string          `json:"status"`
	ErrorMessage        *string         `json:"errorMessage,omitempty"`
	ClaimTimestamp      time.Time       `json:"claimTimestamp"`
	CompletedAt         *time.Time      `json:"completedAt,omitempty"`
}

func claimToPayload(claim storage.DividendClaim) claimPayload {
	return claimPayload{
		ID:                  claim.ID,
		ClaimedAmount:       claim.ClaimedAmount,
		DistributionAmount:  claim.DistributionAmount,
		TransactionID:       claim.TransactionID,
		TotalSupply:         claim.TotalSupply,
		EligibleHolderCount: claim.EligibleHolderCount,
		Status:              claim.Status,
		ErrorMessage:        claim.ErrorMessage,
		ClaimTimestamp:      claim.ClaimTimestamp,
		CompletedAt:         claim.CompletedAt,
	}
}

func (s *Server) handleListClaims(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)
	claims, err := s.store.ListRecentClaims(r.Context(), limit)
	if err != nil {
		s.serverError(w, err, "list claims")
		return
	}

	payloads := make([]claimPayload, 0, len(claims))
	for _, claim := range claims {
		payloads = append(payloads, claimToPayload(claim))
	}
	writeJSON(w, http.StatusOK, payloads)
}

func (s *Server) handleGetClaim(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	claim, err := s.store.GetClaim(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "claim not found")
			return
		}
		s.serverError(w, err, "get claim")
		return
	}
	writeJSON(w, http.StatusOK, claimToPayload(claim))
}

type snapshotPayload struct {
	HolderAddress       string          `json:"holderAddress"`
	TokenBalance        decimal.Decimal `json:"tokenBalance"`
	PercentageOfSupply  decimal.Decimal `json:"percentageOfSupply"`
	InitialBalance      decimal.Decimal `json:"initialBalance"`
	RetentionPercentage decimal.Decimal `json:"retentionPercentage"`
	IsEligible          bool            `json:"isEligible"`
}

func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	snapshots, err := s.store.ListSnapshots(r.Context(), id)
	if err != nil {
		s.serverError(w, err, "list snapshots")
		return
	}

	payloads := make([]snapshotPayload, 0, len(snapshots))
	for _, snap := range snapshots {
		payloads = append(payloads, snapshotPayload{
			HolderAddress:       snap.HolderAddress,
			TokenBalance:        snap.TokenBalance,
			PercentageOfSupply:  snap.PercentageOfSupply,
			InitialBalance:      snap.InitialBalance,
			RetentionPercentage: snap.RetentionPercentage,
			IsEligible:          snap.IsEligible,
		})
	}
	writeJSON(w, http.StatusOK, payloads)
}

type distributionPayload struct {
	ID              int64           `json:"id"`
	HolderAddress   string          `json:"holderAddress"`
	TokenBalance    decimal.Decimal `json:"tokenBalance"`
	SharePercentage decimal.Decimal `json:"sharePercentage"`
	DividendAmount  decimal.Decimal `json:"dividendAmount"`
	Status          string          `json:"status"`
}

func (s *Server) handleListDistributions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	dists, err := s.store.ListDistributions(r.Context(), id)
	if err != nil {
		s.serverError(w, err, "list distributions")
		return
	}

	payloads := make([]distributionPayload, 0, len(dists))
	for _, dist := range dists {
		payloads = append(payloads, distributionPayload{
			ID:              dist.ID,
			HolderAddress:   dist.HolderAddress,
			TokenBalance:    dist.TokenBalance,
			SharePercentage: dist.SharePercentage,
			DividendAmount:  dist.DividendAmount,
			Status:          dist.Status,
		})
	}
	writeJSON(w, http.StatusOK, payloads)
}

type payoutPayload struct {
	DistributionID       int64           `json:"distributionId"`
	TransactionSignature string          `json:"transactionSignature,omitempty"`
	PayoutAmount         decimal.Decimal `json:"payoutAmount"`
	PayoutStatus         string          `json:"payoutStatus"`
	PaidAt               *time.Time      `json:"paidAt,omitempty"`
	ErrorMessage         *string         `json:"errorMessage,omitempty"`
}

func (s *Server) handleListPayouts(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	payouts, err := s.store.ListPayoutsForClaim(r.Context(), id)
	if err != nil {
		s.serverError(w, err, "list payouts")
		return
	}

	payloads := make([]payoutPayload, 0, len(payouts))
	for _, payout := range payouts {
		payloads = append(payloads, payoutPayload{
			DistributionID:       payout.DistributionID,
			TransactionSignature: payout.TransactionSignature,
			PayoutAmount:         payout.PayoutAmount,
			PayoutStatus:         payout.PayoutStatus,
			PaidAt:               payout.PaidAt,
			ErrorMessage:         payout.ErrorMessage,
		})
	}
	writeJSON(w, http.StatusOK, payloads)
}

type holderPayload struct {
	HolderAddress          string          `json:"holderAddress"`
	CurrentBalance         decimal.Decimal `json:"currentBalance"`
	InitialBalance         decimal.Decimal `json:"initialBalance"`
	RetentionPercentage    decimal.Decimal `json:"retentionPercentage"`
	IsEligible             bool            `json:"isEligible"`
	PermanentlyBlacklisted bool            `json:"permanentlyBlacklisted"`
	ViolationCount         int             `json:"violationCount"`
	BlacklistReason        *string         `json:"blacklistReason,omitempty"`
	LastCheckedAt          time.Time       `json:"lastCheckedAt"`
}

func (s *Server) handleListHolders(w http.ResponseWriter, r *http.Request) {
	mint := r.URL.Query().Get("mint")
	if mint == "" {
		settings, err := s.store.GetSettings(r.Context())
		if err != nil {
			s.serverError(w, err, "load settings")
			return
		}
		mint = settings.TokenMintAddress
	}
	if mint == "" {
		writeError(w, http.StatusBadRequest, "mint is required")
		return
	}

	records, err := s.store.ListEligibility(r.Context(), mint, queryInt(r, "limit", 100))
	if err != nil {
		s.serverError(w, err, "list holders")
		return
	}

	payloads := make([]holderPayload, 0, len(records))
	for _, rec := range records {
		payloads = append(payloads, holderPayload{
			HolderAddress:          rec.HolderAddress,
			CurrentBalance:         rec.CurrentBalance,
			InitialBalance:         rec.InitialBalance,
			RetentionPercentage:    rec.RetentionPercentage,
			IsEligible:             rec.IsEligible,
			PermanentlyBlacklisted: rec.PermanentlyBlacklisted,
			ViolationCount:         rec.ViolationCount,
			BlacklistReason:        rec.BlacklistReason,
			LastCheckedAt:          rec.LastCheckedAt,
		})
	}
	writeJSON(w, http.StatusOK, payloads)
}

func (s *Server) handleResetHolder(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	if address == "" {
		writeError(w, http.StatusBadRequest, "holder address is required")
		return
	}

	mint := r.URL.Query().Get("mint")
	if mint == "" {
		settings, err := s.store.GetSettings(r.Context())
		if err != nil {
			s.serverError(w, err, "load settings")
			return
		}
		mint = settings.TokenMintAddress
	}
	if mint == "" {
		writeError(w, http.StatusBadRequest, "mint is required")
		return
	}

	if err := s.store.ResetEligibility(r.Context(), mint, address); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "holder not found")
			return
		}
		s.serverError(w, err, "reset holder")
		return
	}

	s.logger.Info().Str("holder", address).Str("mint", mint).Msg("holder eligibility reset")
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset", "holder": address})
}

func (s *Server) handleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sched.Status(r.Context()))
}

func (s *Server) handleSchedulerStart(w http.ResponseWriter, r *http.Request) {
	// detach from the request context so the loop survives the request
	if err := s.sched.Start(context.WithoutCancel(r.Context())); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.sched.Status(r.Context()))
}

func (s *Server) handleSchedulerStop(w http.ResponseWriter, r *http.Request) {
	s.sched.Stop()
	writeJSON(w, http.StatusOK, s.sched.Status(r.Context()))
}

func (s *Server) serverError(w http.ResponseWriter, err error, action string) {
	s.logger.Error().Err(err).Str("action", action).Msg("request failed")
	writeError(w, http.StatusInternalServerError, action+" failed")
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid claim id")
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
