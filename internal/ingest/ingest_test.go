package ingest

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cs2kz-api/cs2kz-api/internal/apperr"
	kzdb "github.com/cs2kz-api/cs2kz-api/internal/db"
	"github.com/cs2kz-api/cs2kz-api/internal/models"
	"github.com/cs2kz-api/cs2kz-api/internal/points"
)

// fakeNotifier records whether Notify was called, so tests can assert it
// only fires after a successful commit.
type fakeNotifier struct {
	notified bool
}

func (f *fakeNotifier) Notify() { f.notified = true }

func setupIngestTest(t *testing.T) (*Ingest, sqlmock.Sqlmock, *fakeNotifier, func()) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	database := kzdb.NewDatabaseForTesting(mockDB)
	assigner := points.NewAssigner(database, nil) // leaderboards in these tests stay under SLT, so the host is never consulted
	notifier := &fakeNotifier{}
	ig := New(database, assigner, notifier)

	return ig, mock, notifier, func() { mockDB.Close() }
}

func TestSubmit_RejectsOutdatedPluginVersion(t *testing.T) {
	ig, mock, notifier, cleanup := setupIngestTest(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT id, semver, is_outdated FROM plugin_versions WHERE id = \$1`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "semver", "is_outdated"}).AddRow(1, "1.0.0", true))

	_, err := ig.Submit(context.Background(), Submission{PlayerID: 1, ServerID: 1, FilterID: 1, PluginVersionID: 1, Time: 30.0})

	require.Error(t, err)
	appErr, ok := err.(*apperr.AppError)
	require.True(t, ok)
	assert.Equal(t, apperr.KindConflict, appErr.Kind)
	assert.False(t, notifier.notified)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmit_UnknownPluginVersionIsNotFound(t *testing.T) {
	ig, mock, _, cleanup := setupIngestTest(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT id, semver, is_outdated FROM plugin_versions WHERE id = \$1`).
		WithArgs(int64(99)).
		WillReturnError(sql.ErrNoRows)

	_, err := ig.Submit(context.Background(), Submission{PlayerID: 1, ServerID: 1, FilterID: 1, PluginVersionID: 99, Time: 30.0})

	require.Error(t, err)
	appErr, ok := err.(*apperr.AppError)
	require.True(t, ok)
	assert.Equal(t, apperr.KindNotFound, appErr.Kind)
}

func TestSubmit_UnknownFilterIsNotFound(t *testing.T) {
	ig, mock, _, cleanup := setupIngestTest(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT id, semver, is_outdated FROM plugin_versions WHERE id = \$1`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "semver", "is_outdated"}).AddRow(1, "1.0.0", false))

	mock.ExpectQuery(`SELECT id, course_id, mode, with_teleports_tier, without_teleports_tier, state, notes FROM course_filters WHERE id = \$1`).
		WithArgs(int64(7)).
		WillReturnError(sql.ErrNoRows)

	_, err := ig.Submit(context.Background(), Submission{PlayerID: 1, ServerID: 1, FilterID: 7, PluginVersionID: 1, Time: 30.0})

	require.Error(t, err)
	appErr, ok := err.(*apperr.AppError)
	require.True(t, ok)
	assert.Equal(t, apperr.KindNotFound, appErr.Kind)
}

// expectApplyVariant wires the query sequence applyVariant issues for one
// leaderboard variant: size/rank counts, TopTime (small-leaderboard
// fallback), and the player's prior best.
func expectApplyVariant(mock sqlmock.Sqlmock, filterID int64, recordTime float64, priorBestRecordID int64, priorTime float64, hasPrior bool) {
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM records WHERE filter_id = \$1`).
		WithArgs(filterID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM records WHERE filter_id = \$1 AND \(time < \$2 OR \(time = \$2 AND submitted_at < \$3\)\)`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	mock.ExpectQuery(`SELECT time FROM records WHERE filter_id = \$1 ORDER BY time ASC, submitted_at ASC LIMIT 1`).
		WithArgs(filterID).
		WillReturnRows(sqlmock.NewRows([]string{"time"}).AddRow(recordTime))

	best := mock.ExpectQuery(`SELECT filter_id, player_id, record_id, points FROM best_nub_records WHERE filter_id = \$1 AND player_id = \$2`)
	if hasPrior {
		best.WillReturnRows(sqlmock.NewRows([]string{"filter_id", "player_id", "record_id", "points"}).
			AddRow(filterID, 1, priorBestRecordID, 0.5))
		mock.ExpectQuery(`SELECT time FROM records WHERE id = \$1`).
			WithArgs(priorBestRecordID).
			WillReturnRows(sqlmock.NewRows([]string{"time"}).AddRow(priorTime))
	} else {
		best.WillReturnError(sql.ErrNoRows)
	}
}

func TestSubmit_FirstNubRecord(t *testing.T) {
	ig, mock, notifier, cleanup := setupIngestTest(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT id, semver, is_outdated FROM plugin_versions WHERE id = \$1`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "semver", "is_outdated"}).AddRow(1, "1.0.0", false))

	mock.ExpectQuery(`SELECT id, course_id, mode, with_teleports_tier, without_teleports_tier, state, notes FROM course_filters WHERE id = \$1`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "course_id", "mode", "with_teleports_tier", "without_teleports_tier", "state", "notes"}).
			AddRow(7, 1, 1, 3, 3, 1, ""))

	mock.ExpectBegin()

	mock.ExpectQuery(`INSERT INTO records .* RETURNING id, submitted_at`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "submitted_at"}).AddRow(42, time.Now().UTC()))

	expectApplyVariant(mock, 7, 31.0, 0, 0, false)

	mock.ExpectExec(`INSERT INTO best_nub_records .* ON CONFLICT`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectQuery(`WITH ranked_points AS`).
		WithArgs(int64(1), models.ModeVanilla).
		WillReturnRows(sqlmock.NewRows([]string{"tier", "pro", "rank", "points", "n"}).
			AddRow(3, false, 1, 0.8, 1))

	mock.ExpectExec(`INSERT INTO filters_to_recalculate .* ON CONFLICT`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectCommit()

	result, err := ig.Submit(context.Background(), Submission{
		PlayerID:        1,
		ServerID:        1,
		FilterID:        7,
		Teleports:       3, // a positive teleport count keeps this a NUB-only submission
		Time:            31.0,
		PluginVersionID: 1,
	})

	require.NoError(t, err)
	assert.Equal(t, int64(42), result.RecordID)
	assert.True(t, result.IsFirstNubRecord)
	assert.Nil(t, result.ProRank)
	assert.InDelta(t, points.CompletedPoints(3, false, 0, 0.8), result.PlayerRating, 0.001)
	assert.True(t, notifier.notified, "the recalc worker must be notified after a successful commit")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmit_ProRecordBeatsExistingBest(t *testing.T) {
	ig, mock, notifier, cleanup := setupIngestTest(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT id, semver, is_outdated FROM plugin_versions WHERE id = \$1`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "semver", "is_outdated"}).AddRow(1, "1.0.0", false))

	mock.ExpectQuery(`SELECT id, course_id, mode, with_teleports_tier, without_teleports_tier, state, notes FROM course_filters WHERE id = \$1`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "course_id", "mode", "with_teleports_tier", "without_teleports_tier", "state", "notes"}).
			AddRow(7, 1, 1, 3, 3, 1, ""))

	mock.ExpectBegin()

	mock.ExpectQuery(`INSERT INTO records .* RETURNING id, submitted_at`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "submitted_at"}).AddRow(43, time.Now().UTC()))

	// NUB variant: no prior best.
	expectApplyVariant(mock, 7, 20.0, 0, 0, false)
	mock.ExpectExec(`INSERT INTO best_nub_records .* ON CONFLICT`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	// PRO variant: beats the existing best (19.0 < 25.0).
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM records WHERE filter_id = \$1 AND teleports = 0`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM records WHERE filter_id = \$1 AND teleports = 0 AND \(time < \$2 OR \(time = \$2 AND submitted_at < \$3\)\)`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`SELECT time FROM records WHERE filter_id = \$1 AND teleports = 0 ORDER BY time ASC, submitted_at ASC LIMIT 1`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"time"}).AddRow(19.0))
	mock.ExpectQuery(`SELECT filter_id, player_id, record_id, points, based_on_pro_leaderboard FROM best_pro_records WHERE filter_id = \$1 AND player_id = \$2`).
		WillReturnRows(sqlmock.NewRows([]string{"filter_id", "player_id", "record_id", "points", "based_on_pro_leaderboard"}).
			AddRow(7, 1, 10, 0.8, true))
	mock.ExpectQuery(`SELECT time FROM records WHERE id = \$1`).
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"time"}).AddRow(25.0))
	mock.ExpectExec(`INSERT INTO best_pro_records .* ON CONFLICT`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectQuery(`WITH ranked_points AS`).
		WithArgs(int64(1), models.ModeVanilla).
		WillReturnRows(sqlmock.NewRows([]string{"tier", "pro", "rank", "points", "n"}).
			AddRow(3, false, 2, 0.6, 2).
			AddRow(3, true, 1, 0.8, 1))

	mock.ExpectExec(`INSERT INTO filters_to_recalculate .* ON CONFLICT`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectCommit()

	result, err := ig.Submit(context.Background(), Submission{
		PlayerID:        1,
		ServerID:        1,
		FilterID:        7,
		Teleports:       0, // teleports == 0 makes this record PRO-eligible too
		Time:            19.0,
		PluginVersionID: 1,
	})

	require.NoError(t, err)
	assert.False(t, result.IsFirstProRecord)
	require.NotNil(t, result.ProPoints)
	wantRating := points.CompletedPoints(3, false, 1, 0.6)*0.975 + points.CompletedPoints(3, true, 0, 0.8)
	assert.InDelta(t, wantRating, result.PlayerRating, 0.001)
	assert.True(t, notifier.notified)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmit_SlowerThanExistingBestLeavesBestInPlace(t *testing.T) {
	ig, mock, notifier, cleanup := setupIngestTest(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT id, semver, is_outdated FROM plugin_versions WHERE id = \$1`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "semver", "is_outdated"}).AddRow(1, "1.0.0", false))

	mock.ExpectQuery(`SELECT id, course_id, mode, with_teleports_tier, without_teleports_tier, state, notes FROM course_filters WHERE id = \$1`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "course_id", "mode", "with_teleports_tier", "without_teleports_tier", "state", "notes"}).
			AddRow(7, 1, 1, 3, 3, 1, ""))

	mock.ExpectBegin()

	mock.ExpectQuery(`INSERT INTO records .* RETURNING id, submitted_at`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "submitted_at"}).AddRow(44, time.Now().UTC()))

	expectApplyVariant(mock, 7, 40.0, 9, 10.0, true) // prior best (10.0) is faster than this record (40.0)

	// No UpsertBestNubRecord expected: the existing best stays in place.
	mock.ExpectQuery(`WITH ranked_points AS`).
		WithArgs(int64(1), models.ModeVanilla).
		WillReturnRows(sqlmock.NewRows([]string{"tier", "pro", "rank", "points", "n"}))

	mock.ExpectExec(`INSERT INTO filters_to_recalculate .* ON CONFLICT`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectCommit()

	result, err := ig.Submit(context.Background(), Submission{
		PlayerID:        1,
		ServerID:        1,
		FilterID:        7,
		Teleports:       5,
		Time:            40.0,
		PluginVersionID: 1,
	})

	require.NoError(t, err)
	assert.False(t, result.IsFirstNubRecord)
	assert.True(t, notifier.notified)
	assert.NoError(t, mock.ExpectationsWereMet())
}
