// Package resolve deduplicates incoming records (directory rows, transcript
// speaker records) into canonical profiles.
package resolve

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"matcher_server/core/domain"
	"matcher_server/pkg/apperr"
	"matcher_server/pkg/logger"
	"matcher_server/pkg/textutil"
)

// Record is one incoming candidate row. Name is required; everything else is
// best effort.
type Record struct {
	Name     string
	Email    *string
	Company  *string
	Website  *string
	LinkedIn *string
	Niche    string
	Offering string
	Seeking  string
	ListSize int
	Source   domain.ProfileSource
}

// Action is what the cascade decided for one record.
type Action string

const (
	ActionMerged  Action = "merged"
	ActionCreated Action = "created"
	ActionReview  Action = "review"
)

// Resolution reports the outcome for one record.
type Resolution struct {
	Action     Action
	Profile    *domain.Profile // nil for review
	Confidence float64
	Tier       int
}

// Result summarizes a batch run.
type Result struct {
	Merged        int `json:"merged"`
	Created       int `json:"created"`
	ReviewsQueued int `json:"reviews_queued"`
	DataErrors    int `json:"data_errors"`
}

// FuzzyReviewThreshold is the name similarity at which a record is staged for
// manual review instead of creating a duplicate profile.
const FuzzyReviewThreshold = 0.80

type Resolver struct {
	profileRepo domain.ProfileRepository
	reviewRepo  domain.ReviewRepository
	threshold   float64
	log         zerolog.Logger

	// index over the canonical set, built per batch
	byEmail       map[string]*domain.Profile
	byNameCompany map[string]*domain.Profile
	ambiguousNC   map[string]int // name+company keys seen more than once
	byName        map[string][]*domain.Profile
	all           []*domain.Profile
}

func NewResolver(profileRepo domain.ProfileRepository, reviewRepo domain.ReviewRepository, threshold float64) *Resolver {
	if threshold <= 0 {
		threshold = FuzzyReviewThreshold
	}
	return &Resolver{
		profileRepo: profileRepo,
		reviewRepo:  reviewRepo,
		threshold:   threshold,
		log:         logger.Component("resolver"),
	}
}

// ResolveBatch runs the cascade over a batch of records. Per-record failures
// (ambiguous matches, missing names) are counted and skipped; the batch always
// completes.
func (r *Resolver) ResolveBatch(ctx context.Context, records []Record, now time.Time) (*Result, error) {
	existing, err := r.profileRepo.GetAll(ctx)
	if err != nil {
		return nil, apperr.StorageError("load profiles", err)
	}
	r.buildIndex(existing)

	result := &Result{}
	for _, rec := range records {
		res, err := r.Resolve(ctx, rec, now)
		if err != nil {
			result.DataErrors++
			r.log.Warn().Err(err).Str("record", rec.Name).Msg("record skipped")
			continue
		}
		switch res.Action {
		case ActionMerged:
			result.Merged++
		case ActionCreated:
			result.Created++
		case ActionReview:
			result.ReviewsQueued++
		}
	}
	return result, nil
}

// Resolve runs the matching cascade for one record. First tier to succeed
// wins:
//
//	1. normalized email equality        -> merge (1.00)
//	2. exact name + exact company       -> merge (0.90)
//	3. exact name, company absent       -> merge (0.70)
//	4. fuzzy name >= threshold          -> review queue (similarity)
//	5. nothing                          -> create
func (r *Resolver) Resolve(ctx context.Context, rec Record, now time.Time) (*Resolution, error) {
	name := textutil.NormalizeName(rec.Name)
	if name == "" {
		return nil, apperr.DataError("(unnamed)", "missing name")
	}

	// Tier 1: email
	if rec.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*rec.Email))
		if p, ok := r.byEmail[email]; ok && email != "" {
			if err := r.merge(ctx, p, rec, now); err != nil {
				return nil, err
			}
			return &Resolution{Action: ActionMerged, Profile: p, Confidence: 1.00, Tier: 1}, nil
		}
	}

	// Tier 2: name + company
	if rec.Company != nil && strings.TrimSpace(*rec.Company) != "" {
		key := name + "\x00" + textutil.NormalizeName(*rec.Company)
		if r.ambiguousNC[key] > 1 {
			return nil, apperr.ResolutionConflict(rec.Name, r.ambiguousNC[key])
		}
		if p, ok := r.byNameCompany[key]; ok {
			if err := r.merge(ctx, p, rec, now); err != nil {
				return nil, err
			}
			return &Resolution{Action: ActionMerged, Profile: p, Confidence: 0.90, Tier: 2}, nil
		}
	}

	// Tier 3: exact name with company absent on either side
	if p := r.exactNameMatch(name, rec.Company); p != nil {
		if err := r.merge(ctx, p, rec, now); err != nil {
			return nil, err
		}
		return &Resolution{Action: ActionMerged, Profile: p, Confidence: 0.70, Tier: 3}, nil
	}

	// Tier 4: fuzzy name. Never auto-merges.
	if best, sim := r.fuzzyNameMatch(name); best != nil && sim >= r.threshold {
		review := &domain.ResolutionReview{
			RecordName:         rec.Name,
			RecordEmail:        rec.Email,
			RecordCompany:      rec.Company,
			CandidateProfileID: &best.ID,
			Similarity:         sim,
			Reason:             "fuzzy name match",
			CreatedAt:          now,
		}
		if err := r.reviewRepo.Create(ctx, review); err != nil {
			return nil, apperr.StorageError("queue review", err)
		}
		// confidence scales with similarity, capped at tier-3 level
		conf := 0.50 + (sim-r.threshold)
		if conf > 0.70 {
			conf = 0.70
		}
		return &Resolution{Action: ActionReview, Confidence: conf, Tier: 4}, nil
	}

	// Tier 5: create
	p := newProfile(rec, now)
	if err := r.profileRepo.Create(ctx, p); err != nil {
		return nil, apperr.StorageError("create profile", err)
	}
	r.addToIndex(p)
	return &Resolution{Action: ActionCreated, Profile: p, Tier: 5}, nil
}

func (r *Resolver) buildIndex(profiles []*domain.Profile) {
	r.byEmail = make(map[string]*domain.Profile)
	r.byNameCompany = make(map[string]*domain.Profile)
	r.ambiguousNC = make(map[string]int)
	r.byName = make(map[string][]*domain.Profile)
	r.all = nil
	for _, p := range profiles {
		r.addToIndex(p)
	}
}

func (r *Resolver) addToIndex(p *domain.Profile) {
	r.all = append(r.all, p)
	if p.Email != nil {
		if e := strings.ToLower(strings.TrimSpace(*p.Email)); e != "" {
			r.byEmail[e] = p
		}
	}
	name := textutil.NormalizeName(p.Name)
	r.byName[name] = append(r.byName[name], p)
	if p.Company != nil && strings.TrimSpace(*p.Company) != "" {
		key := name + "\x00" + textutil.NormalizeName(*p.Company)
		r.ambiguousNC[key]++
		r.byNameCompany[key] = p
	}
}

// exactNameMatch finds a unique same-name profile where company is absent on
// the record or the profile. Multiple same-name candidates are too risky to
// merge blind; they fall through to fuzzy review.
func (r *Resolver) exactNameMatch(name string, recCompany *string) *domain.Profile {
	candidates := r.byName[name]
	if len(candidates) != 1 {
		return nil
	}
	p := candidates[0]
	recAbsent := recCompany == nil || strings.TrimSpace(*recCompany) == ""
	profAbsent := p.Company == nil || strings.TrimSpace(*p.Company) == ""
	if recAbsent || profAbsent {
		return p
	}
	return nil
}

func (r *Resolver) fuzzyNameMatch(name string) (*domain.Profile, float64) {
	var best *domain.Profile
	bestSim := 0.0
	for _, p := range r.all {
		sim := textutil.Ratio(name, textutil.NormalizeName(p.Name))
		if sim > bestSim {
			best, bestSim = p, sim
		}
	}
	return best, bestSim
}

// merge folds the record into the existing profile. Newer non-null values fill
// older nulls; conflicting values stay on the profile and the incoming value
// goes to the field history log.
func (r *Resolver) merge(ctx context.Context, p *domain.Profile, rec Record, now time.Time) error {
	changed := false
	fill := func(field string, dst **string, src *string) error {
		if src == nil || strings.TrimSpace(*src) == "" {
			return nil
		}
		if *dst == nil || strings.TrimSpace(**dst) == "" {
			v := strings.TrimSpace(*src)
			*dst = &v
			changed = true
			return nil
		}
		if strings.TrimSpace(**dst) == strings.TrimSpace(*src) {
			return nil
		}
		change := &domain.FieldChange{
			ProfileID: p.ID,
			Field:     field,
			OldValue:  **dst,
			NewValue:  strings.TrimSpace(*src),
			Source:    string(rec.Source),
			CreatedAt: now,
		}
		if err := r.profileRepo.AppendFieldHistory(ctx, change); err != nil {
			return apperr.StorageError("append field history", err)
		}
		return nil
	}

	if err := fill("email", &p.Email, rec.Email); err != nil {
		return err
	}
	if err := fill("company", &p.Company, rec.Company); err != nil {
		return err
	}
	if err := fill("website", &p.Website, rec.Website); err != nil {
		return err
	}
	if err := fill("linkedin", &p.LinkedIn, rec.LinkedIn); err != nil {
		return err
	}

	if p.Niche == "" && rec.Niche != "" {
		p.Niche = rec.Niche
		changed = true
	}
	if p.Offering == "" && rec.Offering != "" {
		p.Offering = rec.Offering
		changed = true
	}
	if p.Seeking == "" && rec.Seeking != "" {
		p.Seeking = rec.Seeking
		changed = true
	}
	if p.ListSize == 0 && rec.ListSize > 0 {
		p.ListSize = rec.ListSize
		changed = true
	}

	if changed {
		if p.Source != rec.Source && rec.Source != "" {
			p.Source = domain.SourceMerged
		}
		p.UpdatedAt = now
		if err := r.profileRepo.Update(ctx, p); err != nil {
			return apperr.StorageError("update profile", err)
		}
		// refresh lookups with newly filled fields
		if p.Email != nil {
			if e := strings.ToLower(strings.TrimSpace(*p.Email)); e != "" {
				r.byEmail[e] = p
			}
		}
		if p.Company != nil && strings.TrimSpace(*p.Company) != "" {
			key := textutil.NormalizeName(p.Name) + "\x00" + textutil.NormalizeName(*p.Company)
			if _, seen := r.byNameCompany[key]; !seen {
				r.ambiguousNC[key]++
			}
			r.byNameCompany[key] = p
		}
	}

	// a fresh record is activity evidence even when no field changed
	if err := r.profileRepo.TouchLastActive(ctx, p.ID, now); err != nil {
		return apperr.StorageError("touch last active", err)
	}
	t := now
	p.LastActiveAt = &t

	return nil
}

func newProfile(rec Record, now time.Time) *domain.Profile {
	source := rec.Source
	if source == "" {
		source = domain.SourceDirectory
	}
	return &domain.Profile{
		ID:        uuid.New(),
		Name:      strings.TrimSpace(rec.Name),
		Email:     rec.Email,
		Company:   rec.Company,
		Website:   rec.Website,
		LinkedIn:  rec.LinkedIn,
		Source:    source,
		Niche:     rec.Niche,
		Offering:  rec.Offering,
		Seeking:   rec.Seeking,
		ListSize:  rec.ListSize,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
