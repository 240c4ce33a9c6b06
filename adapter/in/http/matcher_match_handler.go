package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"matcher_server/core/domain"
	"matcher_server/core/port/out"
	"matcher_server/core/service/cycle"
	"matcher_server/core/service/resolve"
	"matcher_server/pkg/apperr"
	"matcher_server/pkg/logger"
)

// MatchHandler handles match pipeline requests: cycle runs, suggestion
// queries, status transitions, and the resolution review queue.
type MatchHandler struct {
	cycleService   *cycle.Service
	resolver       *resolve.Resolver
	suggestionRepo domain.SuggestionRepository
	popularityRepo domain.PopularityRepository
	intakeRepo     domain.IntakeRepository
	reportRepo     domain.CycleReportRepository
	reviewRepo     domain.ReviewRepository
	producer       out.MessageProducer
	clock          cycle.Clock
	log            zerolog.Logger
}

// NewMatchHandler creates a new match handler.
func NewMatchHandler(
	cycleService *cycle.Service,
	resolver *resolve.Resolver,
	suggestionRepo domain.SuggestionRepository,
	popularityRepo domain.PopularityRepository,
	intakeRepo domain.IntakeRepository,
	reportRepo domain.CycleReportRepository,
	reviewRepo domain.ReviewRepository,
	producer out.MessageProducer,
	clock cycle.Clock,
) *MatchHandler {
	return &MatchHandler{
		cycleService:   cycleService,
		resolver:       resolver,
		suggestionRepo: suggestionRepo,
		popularityRepo: popularityRepo,
		intakeRepo:     intakeRepo,
		reportRepo:     reportRepo,
		reviewRepo:     reviewRepo,
		producer:       producer,
		clock:          clock,
		log:            logger.Component("http"),
	}
}

// Register registers match routes.
func (h *MatchHandler) Register(router fiber.Router) {
	cycles := router.Group("/cycles")
	cycles.Post("/run", h.RunCycle)
	cycles.Get("/", h.ListCycleReports)
	cycles.Get("/:cycleID", h.GetCycleReport)
	cycles.Get("/:cycleID/popularity", h.GetCyclePopularity)

	profiles := router.Group("/profiles")
	profiles.Get("/:profileID/suggestions", h.ListSuggestions)
	profiles.Post("/:profileID/refresh", h.RefreshProfile)
	profiles.Post("/:profileID/intake", h.SubmitIntake)

	suggestions := router.Group("/suggestions")
	suggestions.Patch("/:id/status", h.UpdateSuggestionStatus)

	router.Post("/records", h.IngestRecords)
	router.Get("/reviews", h.ListReviews)
}

// =============================================================================
// Cycle Handlers
// =============================================================================

// RunCycleRequest optionally names the cycle and overrides its tuning.
type RunCycleRequest struct {
	CycleID string        `json:"cycle_id"`
	Config  *cycle.Config `json:"config"`
}

// RunCycle enqueues a full match cycle. The worker pool picks the job up;
// ?sync=true runs it inline instead (operator/debug use). Without a broker
// every run is inline.
func (h *MatchHandler) RunCycle(c *fiber.Ctx) error {
	var req RunCycleRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return ErrorResponse(c, fiber.StatusBadRequest, "invalid request body")
		}
	}

	if c.QueryBool("sync", false) || h.producer == nil {
		report, err := h.cycleService.RunCycle(c.Context(), req.CycleID, req.Config)
		if err != nil {
			return AppErrorResponse(c, err)
		}
		return SuccessResponse(c, report)
	}

	if req.Config != nil {
		// config overrides don't survive the queue; run those inline
		return ErrorResponse(c, fiber.StatusBadRequest, "config override requires sync=true")
	}

	job := &out.CycleRunJob{
		CycleID:     req.CycleID,
		RequestedBy: c.Get("X-Requested-By"),
		RequestedAt: h.clock(),
	}
	if err := h.producer.PublishCycleRun(c.Context(), job); err != nil {
		return InternalErrorResponse(c, err, "enqueue cycle")
	}
	return AcceptedResponse(c, fiber.Map{"queued": true})
}

// ListCycleReports returns the most recent cycle reports.
func (h *MatchHandler) ListCycleReports(c *fiber.Ctx) error {
	if h.reportRepo == nil {
		return ErrorResponse(c, fiber.StatusServiceUnavailable, "report archive not configured")
	}

	limit := c.QueryInt("limit", 20)
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	reports, err := h.reportRepo.Latest(c.Context(), limit)
	if err != nil {
		return InternalErrorResponse(c, err, "list cycle reports")
	}
	return SuccessResponse(c, reports)
}

// GetCycleReport returns a single archived cycle report.
func (h *MatchHandler) GetCycleReport(c *fiber.Ctx) error {
	if h.reportRepo == nil {
		return ErrorResponse(c, fiber.StatusServiceUnavailable, "report archive not configured")
	}

	cycleID := c.Params("cycleID")
	if cycleID == "" {
		return ErrorResponse(c, fiber.StatusBadRequest, "cycle ID is required")
	}

	report, err := h.reportRepo.GetByCycleID(c.Context(), cycleID)
	if err != nil {
		return InternalErrorResponse(c, err, "get cycle report")
	}
	if report == nil {
		return ErrorResponse(c, fiber.StatusNotFound, "cycle report not found")
	}
	return SuccessResponse(c, report)
}

// GetCyclePopularity returns the fairness accounting for one cycle: each
// candidate's Top-3 appearance count, most exposed first.
func (h *MatchHandler) GetCyclePopularity(c *fiber.Ctx) error {
	cycleID := c.Params("cycleID")
	if cycleID == "" {
		return ErrorResponse(c, fiber.StatusBadRequest, "cycle ID is required")
	}

	rows, err := h.popularityRepo.GetByCycle(c.Context(), cycleID)
	if err != nil {
		return InternalErrorResponse(c, err, "get cycle popularity")
	}
	return SuccessResponse(c, rows)
}

// =============================================================================
// Suggestion Handlers
// =============================================================================

// ListSuggestions returns a profile's current suggestions in rank order.
func (h *MatchHandler) ListSuggestions(c *fiber.Ctx) error {
	profileID, err := uuid.Parse(c.Params("profileID"))
	if err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "invalid profile ID")
	}

	limit := c.QueryInt("limit", 20)
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	suggestions, err := h.suggestionRepo.GetByTarget(c.Context(), profileID, limit)
	if err != nil {
		return InternalErrorResponse(c, err, "list suggestions")
	}
	return SuccessResponse(c, suggestions)
}

// RefreshProfile enqueues on-demand suggestion regeneration for one profile,
// typically right after an intake confirmation.
func (h *MatchHandler) RefreshProfile(c *fiber.Ctx) error {
	profileID, err := uuid.Parse(c.Params("profileID"))
	if err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "invalid profile ID")
	}

	if c.QueryBool("sync", false) || h.producer == nil {
		suggestions, err := h.cycleService.RunForProfile(c.Context(), profileID)
		if err != nil {
			return AppErrorResponse(c, err)
		}
		return SuccessResponse(c, suggestions)
	}

	job := &out.ProfileRefreshJob{
		ProfileID:   profileID.String(),
		RequestedAt: h.clock(),
	}
	if err := h.producer.PublishProfileRefresh(c.Context(), job); err != nil {
		return InternalErrorResponse(c, err, "enqueue refresh")
	}
	return AcceptedResponse(c, fiber.Map{"queued": true})
}

// IntakeRequest is a per-event intake submission.
type IntakeRequest struct {
	EventID         string   `json:"event_id"`
	EventName       string   `json:"event_name"`
	EventDate       string   `json:"event_date"` // RFC 3339
	VerifiedOffers  []string `json:"verified_offers"`
	VerifiedNeeds   []string `json:"verified_needs"`
	MatchPreference []string `json:"match_preference"`
	AntiPersonas    []string `json:"anti_personas"`
	SuggestedOffers []string `json:"suggested_offers"`
	SuggestedNeeds  []string `json:"suggested_needs"`
	Confirmed       bool     `json:"confirmed"`
}

// SubmitIntake upserts a profile's intake for one event. A confirmed intake
// within the freshness window makes the profile Platinum at scoring time, so
// the handler also enqueues an on-demand refresh.
func (h *MatchHandler) SubmitIntake(c *fiber.Ctx) error {
	profileID, err := uuid.Parse(c.Params("profileID"))
	if err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "invalid profile ID")
	}

	var req IntakeRequest
	if err := c.BodyParser(&req); err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.EventID == "" {
		return AppErrorResponse(c, apperr.MissingField("event_id"))
	}
	if len(req.VerifiedOffers) > domain.MaxVerifiedEntries {
		return AppErrorResponse(c, apperr.InvalidInput("verified_offers", "at most 2 entries"))
	}
	if len(req.VerifiedNeeds) > domain.MaxVerifiedEntries {
		return AppErrorResponse(c, apperr.InvalidInput("verified_needs", "at most 2 entries"))
	}

	now := h.clock()
	intake := &domain.IntakeSubmission{
		ProfileID:       profileID,
		EventID:         req.EventID,
		EventName:       req.EventName,
		VerifiedOffers:  req.VerifiedOffers,
		VerifiedNeeds:   req.VerifiedNeeds,
		SuggestedOffers: req.SuggestedOffers,
		SuggestedNeeds:  req.SuggestedNeeds,
		CreatedAt:       now,
	}
	if req.EventDate != "" {
		eventDate, err := time.Parse(time.RFC3339, req.EventDate)
		if err != nil {
			return AppErrorResponse(c, apperr.InvalidInput("event_date", "must be RFC 3339"))
		}
		intake.EventDate = eventDate
	}
	for _, p := range req.MatchPreference {
		intake.Preferences = append(intake.Preferences, domain.ParsePreference(p))
	}
	for _, a := range req.AntiPersonas {
		intake.AntiPersonas = append(intake.AntiPersonas, domain.AntiPersona(a))
	}
	if req.Confirmed {
		intake.ConfirmedAt = &now
	}

	if err := h.intakeRepo.Upsert(c.Context(), intake); err != nil {
		return InternalErrorResponse(c, err, "save intake")
	}

	// fresh declarations should reflect in suggestions promptly
	if req.Confirmed && h.producer != nil {
		job := &out.ProfileRefreshJob{ProfileID: profileID.String(), RequestedAt: now}
		if err := h.producer.PublishProfileRefresh(c.Context(), job); err != nil {
			h.log.Warn().Err(err).Msg("failed to enqueue refresh after intake")
		}
	}
	return SuccessResponse(c, intake)
}

// UpdateStatusRequest represents a suggestion status transition.
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// UpdateSuggestionStatus moves a suggestion along its lifecycle.
func (h *MatchHandler) UpdateSuggestionStatus(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "invalid suggestion ID")
	}

	var req UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.Status == "" {
		return AppErrorResponse(c, apperr.MissingField("status"))
	}

	if err := h.cycleService.UpdateStatus(c.Context(), id, domain.MatchStatus(req.Status)); err != nil {
		return AppErrorResponse(c, err)
	}
	return SuccessResponse(c, fiber.Map{"id": id, "status": req.Status})
}

// =============================================================================
// Ingestion & Review Handlers
// =============================================================================

// IngestRecordRequest is one inbound directory or transcript record.
type IngestRecordRequest struct {
	Name     string  `json:"name"`
	Email    *string `json:"email,omitempty"`
	Company  *string `json:"company,omitempty"`
	Website  *string `json:"website,omitempty"`
	LinkedIn *string `json:"linkedin,omitempty"`
	Niche    string  `json:"niche,omitempty"`
	Offering string  `json:"offering,omitempty"`
	Seeking  string  `json:"seeking,omitempty"`
	ListSize int     `json:"list_size,omitempty"`
	Source   string  `json:"source,omitempty"`
}

// IngestRecords resolves a batch of inbound records against the canonical
// directory. Per-record failures are counted, not fatal.
func (h *MatchHandler) IngestRecords(c *fiber.Ctx) error {
	var reqs []IngestRecordRequest
	if err := c.BodyParser(&reqs); err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "invalid request body")
	}
	if len(reqs) == 0 {
		return ErrorResponse(c, fiber.StatusBadRequest, "empty record batch")
	}

	records := make([]resolve.Record, len(reqs))
	for i, r := range reqs {
		records[i] = resolve.Record{
			Name:     r.Name,
			Email:    r.Email,
			Company:  r.Company,
			Website:  r.Website,
			LinkedIn: r.LinkedIn,
			Niche:    r.Niche,
			Offering: r.Offering,
			Seeking:  r.Seeking,
			ListSize: r.ListSize,
			Source:   domain.ProfileSource(r.Source),
		}
	}

	result, err := h.resolver.ResolveBatch(c.Context(), records, h.clock())
	if err != nil {
		return AppErrorResponse(c, err)
	}
	return SuccessResponse(c, result)
}

// ListReviews returns pending entity-resolution reviews, oldest first.
func (h *MatchHandler) ListReviews(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	reviews, err := h.reviewRepo.List(c.Context(), limit)
	if err != nil {
		return InternalErrorResponse(c, err, "list reviews")
	}
	return SuccessResponse(c, reviews)
}
