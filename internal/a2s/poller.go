package a2s

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	kzdb "github.com/cs2kz-api/cs2kz-api/internal/db"
	"github.com/cs2kz-api/cs2kz-api/internal/logger"
	"github.com/cs2kz-api/cs2kz-api/internal/models"
)

// Querier is the opaque A2S_INFO collaborator: given a server's UDP
// address, it returns its current live state or an error if the server did
// not answer within the query's own timeout.
type Querier interface {
	Query(ctx context.Context, host string, port int) (models.A2SInfo, error)
}

// Poller periodically sweeps every approved server and refreshes the
// shared cache, mirroring the stale-connection sweep shape of a WebSocket
// hub's periodic ticker but driven by a cron schedule instead of an ad hoc
// ticker, so its cadence is configurable alongside the rest of the
// process's scheduled jobs.
type Poller struct {
	db      *kzdb.Database
	cache   *Cache
	querier Querier
	timeout time.Duration
}

// NewPoller constructs a Poller bound to the database, cache, and query
// collaborator it sweeps.
func NewPoller(db *kzdb.Database, cache *Cache, querier Querier, timeout time.Duration) *Poller {
	return &Poller{db: db, cache: cache, querier: querier, timeout: timeout}
}

// Schedule registers the poller's sweep on the given cron instance at the
// given interval (e.g. "@every 10s") and returns the entry id.
func (p *Poller) Schedule(c *cron.Cron, spec string) (cron.EntryID, error) {
	return c.AddFunc(spec, p.sweepOnce)
}

func (p *Poller) sweepOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	servers, err := p.db.ApprovedServers(ctx)
	if err != nil {
		logger.A2S().Error().Err(err).Msg("failed to list approved servers")
		return
	}

	for _, s := range servers {
		queryCtx, queryCancel := context.WithTimeout(ctx, p.timeout)
		info, err := p.querier.Query(queryCtx, s.Host, s.Port)
		queryCancel()
		if err != nil {
			logger.A2S().Debug().Err(err).Int64("server_id", s.ID).Msg("server did not answer A2S query")
			p.cache.Delete(s.ID)
			continue
		}
		info.ServerID = s.ID
		info.UpdatedAt = time.Now()
		p.cache.Set(info)
	}
}
