// Package ingest implements RecordIngest: the single funnel for new records
// from either the game-server WebSocket or an HTTP fallback.
package ingest

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/cs2kz-api/cs2kz-api/internal/apperr"
	kzdb "github.com/cs2kz-api/cs2kz-api/internal/db"
	"github.com/cs2kz-api/cs2kz-api/internal/models"
	"github.com/cs2kz-api/cs2kz-api/internal/points"
)

// Notifier is implemented by the AsyncRecalcWorker: RecordIngest calls it
// after committing so the worker wakes promptly instead of waiting for its
// next throttled tick.
type Notifier interface {
	Notify()
}

// Submission is a new record as presented by either transport.
type Submission struct {
	PlayerID        int64
	ServerID        int64
	FilterID        int64
	Styles          models.StyleSet
	Teleports       int
	Time            float64
	PluginVersionID int64
}

// Result is the ack returned to the submitter, matching the WebSocket
// new-record-ack payload shape.
type Result struct {
	RecordID            int64
	PlayerRating        float64
	IsFirstNubRecord    bool
	NubRank             *int
	NubPoints           *float64
	NubLeaderboardSize  int
	IsFirstProRecord    bool
	ProRank             *int
	ProPoints           *float64
	ProLeaderboardSize  int
}

// Ingest is RecordIngest.
type Ingest struct {
	db       *kzdb.Database
	assigner *points.Assigner
	notifier Notifier
}

// New constructs RecordIngest.
func New(db *kzdb.Database, assigner *points.Assigner, notifier Notifier) *Ingest {
	return &Ingest{db: db, assigner: assigner, notifier: notifier}
}

// Submit validates and inserts a record, updates BestRecord rows,
// synchronously computes this record's points, and enqueues a recalc hint,
// all within a single transaction.
func (ig *Ingest) Submit(ctx context.Context, sub Submission) (*Result, error) {
	version, err := ig.db.PluginVersion(ctx, sub.PluginVersionID)
	if errors.Is(err, kzdb.ErrNotFound) {
		return nil, apperr.NotFound("plugin version")
	}
	if err != nil {
		return nil, apperr.Internal("loading plugin version", err)
	}
	if version.IsOutdated {
		return nil, apperr.Conflict("plugin version is outdated")
	}

	filter, err := ig.db.CourseFilter(ctx, sub.FilterID)
	if errors.Is(err, kzdb.ErrNotFound) {
		return nil, apperr.NotFound("course filter")
	}
	if err != nil {
		return nil, apperr.Internal("loading course filter", err)
	}

	tx, err := ig.db.BeginTx(ctx)
	if err != nil {
		return nil, apperr.Internal("beginning transaction", err)
	}
	defer tx.Rollback()

	record := &models.Record{
		PlayerID:        sub.PlayerID,
		ServerID:        sub.ServerID,
		FilterID:        sub.FilterID,
		Styles:          sub.Styles,
		Teleports:       sub.Teleports,
		Time:            sub.Time,
		PluginVersionID: sub.PluginVersionID,
		SubmittedAt:     time.Now().UTC(),
	}
	recordID, err := ig.db.InsertRecord(ctx, tx, record)
	if err != nil {
		return nil, apperr.Internal("inserting record", err)
	}
	record.ID = recordID

	result := &Result{RecordID: recordID}

	nubRank, nubSize, nubPoints, firstNub, err := ig.applyVariant(ctx, tx, filter, record, false)
	if err != nil {
		return nil, err
	}
	result.NubRank = &nubRank
	result.NubPoints = &nubPoints
	result.NubLeaderboardSize = nubSize
	result.IsFirstNubRecord = firstNub

	if record.Pro() {
		proRank, proSize, proPoints, firstPro, err := ig.applyVariant(ctx, tx, filter, record, true)
		if err != nil {
			return nil, err
		}
		result.ProRank = &proRank
		result.ProPoints = &proPoints
		result.ProLeaderboardSize = proSize
		result.IsFirstProRecord = firstPro
	}

	components, err := ig.db.PlayerRatingComponents(ctx, tx, sub.PlayerID, filter.Mode)
	if err != nil {
		return nil, apperr.Internal("loading rating components", err)
	}
	ratingComponents := make([]points.RatingComponent, len(components))
	for i, c := range components {
		ratingComponents[i] = points.RatingComponent{Tier: c.Tier, Pro: c.Pro, Rank: c.Rank, Points: c.Points, N: c.N}
	}
	result.PlayerRating = points.Rating(ratingComponents)

	if err := ig.db.IncrementFilterPriority(ctx, tx, sub.FilterID); err != nil {
		return nil, apperr.Internal("enqueuing recalc hint", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Internal("committing record", err)
	}

	if ig.notifier != nil {
		ig.notifier.Notify()
	}

	return result, nil
}

// applyVariant handles one leaderboard variant (NUB or PRO) of the
// transaction: conditional BestRecord replacement, rank derivation, and
// synchronous point assignment.
func (ig *Ingest) applyVariant(ctx context.Context, tx *sql.Tx, filter *models.CourseFilter, record *models.Record, pro bool) (rank int, size int, pts float64, first bool, err error) {
	tier := filter.WithTeleportsTier
	if pro {
		tier = filter.WithoutTeleportsTier
	}

	rank, size, err = ig.db.LeaderboardRank(ctx, tx, filter.ID, record.Time, record.SubmittedAt, pro)
	if err != nil {
		return 0, 0, 0, false, apperr.Internal("computing leaderboard rank", err)
	}

	pts, err = ig.assigner.Assign(ctx, tx, filter.ID, tier, size, record.Time, pro)
	if err != nil {
		return 0, 0, 0, false, apperr.Internal("assigning points", err)
	}

	prior, err := ig.db.BestRecord(ctx, tx, filter.ID, record.PlayerID, pro)
	switch {
	case errors.Is(err, kzdb.ErrNotFound):
		first = true
	case err != nil:
		return 0, 0, 0, false, apperr.Internal("loading prior best record", err)
	default:
		priorTime, err := ig.db.RecordTime(ctx, tx, prior.RecordID)
		if err != nil {
			return 0, 0, 0, false, apperr.Internal("loading prior record time", err)
		}
		if record.Time >= priorTime {
			// Existing best is still faster or equal; leave it in place.
			return rank, size, pts, false, nil
		}
	}

	best := &models.BestRecord{
		FilterID:              filter.ID,
		PlayerID:              record.PlayerID,
		RecordID:              record.ID,
		Points:                pts,
		BasedOnProLeaderboard: pro,
	}
	if pro {
		err = ig.db.UpsertBestProRecord(ctx, tx, best)
	} else {
		err = ig.db.UpsertBestNubRecord(ctx, tx, best)
	}
	if err != nil {
		return 0, 0, 0, false, apperr.Internal("upserting best record", err)
	}

	return rank, size, pts, first, nil
}
