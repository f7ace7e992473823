package maintenance

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/angelmondragon/repairhub-backend/pkg/db/models"
	"github.com/angelmondragon/repairhub-backend/pkg/logger"
)

const (
	defaultOverdueAfter  = 48 * time.Hour
	defaultWatchPageSize = 200
)

type inTransitLister interface {
	ListInTransitSince(ctx context.Context, cutoff time.Time, limit int) ([]models.TransportBatch, error)
}

type overdueGauge interface {
	SetOverdueBatches(n int)
}

type TransitWatchParams struct {
	Logger       *logger.Logger
	Batches      inTransitLister
	Gauge        overdueGauge
	OverdueAfter time.Duration
	PageSize     int
}

// NewTransitWatchJob reports batches that were picked up but never received
// within OverdueAfter. It only observes; batch state is never touched.
func NewTransitWatchJob(params TransitWatchParams) (Job, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Batches == nil {
		return nil, errors.New("batch lister required")
	}
	after := params.OverdueAfter
	if after <= 0 {
		after = defaultOverdueAfter
	}
	size := params.PageSize
	if size <= 0 {
		size = defaultWatchPageSize
	}
	return &transitWatchJob{
		logg:     params.Logger,
		batches:  params.Batches,
		gauge:    params.Gauge,
		after:    after,
		pageSize: size,
		now:      time.Now,
	}, nil
}

type transitWatchJob struct {
	logg     *logger.Logger
	batches  inTransitLister
	gauge    overdueGauge
	after    time.Duration
	pageSize int
	now      func() time.Time
}

func (j *transitWatchJob) Name() string { return "transit-watch" }

func (j *transitWatchJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	overdue, err := j.batches.ListInTransitSince(ctx, now.Add(-j.after), j.pageSize)
	if err != nil {
		return errors.Wrap(err, "list overdue batches")
	}
	for _, batch := range overdue {
		fields := map[string]any{"direction": batch.Direction}
		if batch.PickedUpAt != nil {
			fields["overdue_by"] = now.Sub(batch.PickedUpAt.UTC()).Round(time.Minute).String()
		}
		if batch.PickedUpBy != nil {
			fields["courier_id"] = batch.PickedUpBy.String()
		}
		batchCtx := j.logg.WithFields(j.logg.WithBatchNo(ctx, batch.BatchNo), fields)
		j.logg.Warn(batchCtx, "transport batch overdue in transit")
	}
	if j.gauge != nil {
		j.gauge.SetOverdueBatches(len(overdue))
	}
	j.logg.Info(j.logg.WithField(ctx, "overdue", len(overdue)), "transit watch complete")
	return nil
}
