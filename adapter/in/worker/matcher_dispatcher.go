package worker

import (
	"context"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"matcher_server/core/port/out"
	"matcher_server/core/service/cycle"
	"matcher_server/pkg/apperr"
	"matcher_server/pkg/logger"
)

// Dispatcher routes stream messages to the cycle service.
type Dispatcher struct {
	cycleService *cycle.Service
	log          zerolog.Logger
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(cycleService *cycle.Service) *Dispatcher {
	return &Dispatcher{
		cycleService: cycleService,
		log:          logger.Component("dispatcher"),
	}
}

// Process handles a single message. A returned error triggers the pool's
// retry path; permanent failures must return nil after logging.
func (d *Dispatcher) Process(ctx context.Context, msg *Message) error {
	switch msg.Type {
	case JobCycleRun:
		return d.runCycle(ctx, msg)
	case JobProfileRefresh:
		return d.refreshProfile(ctx, msg)
	default:
		d.log.Warn().Str("job_type", msg.Type).Msg("unknown job type dropped")
		return nil
	}
}

func (d *Dispatcher) runCycle(ctx context.Context, msg *Message) error {
	var job out.CycleRunJob
	if err := json.Unmarshal(msg.Data, &job); err != nil {
		d.log.Error().Err(err).Str("job_id", msg.ID).Msg("malformed cycle job dropped")
		return nil
	}

	report, err := d.cycleService.RunCycle(ctx, job.CycleID, nil)
	if err != nil {
		// a concurrent run holds the lock; the requested work is already happening
		if appErr := apperr.AsAppError(err); appErr.Code == apperr.CodeCycleAlreadyRunning {
			d.log.Info().Str("job_id", msg.ID).Msg("cycle already running, job skipped")
			return nil
		}
		return err
	}

	d.log.Info().
		Str("cycle_id", report.CycleID).
		Str("requested_by", job.RequestedBy).
		Int("pairs_emitted", report.PairsEmitted).
		Msg("cycle job complete")
	return nil
}

func (d *Dispatcher) refreshProfile(ctx context.Context, msg *Message) error {
	var job out.ProfileRefreshJob
	if err := json.Unmarshal(msg.Data, &job); err != nil {
		d.log.Error().Err(err).Str("job_id", msg.ID).Msg("malformed refresh job dropped")
		return nil
	}

	profileID, err := uuid.Parse(job.ProfileID)
	if err != nil {
		d.log.Error().Str("profile_id", job.ProfileID).Msg("invalid profile id in refresh job")
		return nil
	}

	suggestions, err := d.cycleService.RunForProfile(ctx, profileID)
	if err != nil {
		if appErr := apperr.AsAppError(err); appErr.Code == apperr.CodeNotFound {
			d.log.Warn().Str("profile_id", job.ProfileID).Msg("refresh for unknown profile dropped")
			return nil
		}
		return err
	}

	d.log.Info().
		Str("profile_id", job.ProfileID).
		Int("suggestions", len(suggestions)).
		Msg("refresh job complete")
	return nil
}
