package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/repairhub-backend/internal/testutil"
	"github.com/angelmondragon/repairhub-backend/pkg/db/models"
	"github.com/angelmondragon/repairhub-backend/pkg/enums"
)

type fakeRepository struct {
	appendFn func(ctx context.Context, entry *models.StatusHistoryEntry) error
	last     *models.StatusHistoryEntry
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository {
	return f
}

func (f *fakeRepository) Append(ctx context.Context, entry *models.StatusHistoryEntry) error {
	if f.appendFn != nil {
		return f.appendFn(ctx, entry)
	}
	return nil
}

func (f *fakeRepository) Last(ctx context.Context, orderID uuid.UUID) (*models.StatusHistoryEntry, error) {
	return f.last, nil
}

func (f *fakeRepository) ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.StatusHistoryEntry, error) {
	return nil, nil
}

func statusPtr(s enums.RepairOrderStatus) *enums.RepairOrderStatus {
	return &s
}

func TestRecordValidatesInput(t *testing.T) {
	svc, err := NewService(&fakeRepository{})
	require.NoError(t, err)

	_, err = svc.Record(context.Background(), nil, RecordInput{UserID: uuid.New(), To: enums.RepairOrderStatusAtHQ})
	assert.Error(t, err)

	_, err = svc.Record(context.Background(), nil, RecordInput{OrderID: uuid.New(), To: enums.RepairOrderStatusAtHQ})
	assert.Error(t, err)

	_, err = svc.Record(context.Background(), nil, RecordInput{OrderID: uuid.New(), UserID: uuid.New(), To: "LOST"})
	assert.Error(t, err)
}

func TestRecordClampsToPreviousEntry(t *testing.T) {
	previous := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	var appended *models.StatusHistoryEntry
	repo := &fakeRepository{
		last: &models.StatusHistoryEntry{CreatedAt: previous},
		appendFn: func(ctx context.Context, entry *models.StatusHistoryEntry) error {
			appended = entry
			return nil
		},
	}
	svc, err := NewService(repo)
	require.NoError(t, err)

	_, err = svc.Record(context.Background(), nil, RecordInput{
		OrderID: uuid.New(),
		UserID:  uuid.New(),
		From:    statusPtr(enums.RepairOrderStatusInBranch),
		To:      enums.RepairOrderStatusAtHQ,
		At:      previous.Add(-time.Minute),
		Remark:  "  ",
	})
	require.NoError(t, err)
	require.NotNil(t, appended)
	assert.True(t, appended.CreatedAt.Equal(previous))
	assert.Nil(t, appended.Remark)
}

func TestRecordPropagatesRepositoryError(t *testing.T) {
	repo := &fakeRepository{appendFn: func(context.Context, *models.StatusHistoryEntry) error {
		return errors.New("disk full")
	}}
	svc, err := NewService(repo)
	require.NoError(t, err)

	_, err = svc.Record(context.Background(), nil, RecordInput{OrderID: uuid.New(), UserID: uuid.New(), To: enums.RepairOrderStatusInBranch})
	assert.ErrorContains(t, err, "disk full")
}

func TestHistoryOrdersSameInstantBySequence(t *testing.T) {
	client := testutil.OpenDB(t)
	svc, err := NewService(NewRepository(client.DB()))
	require.NoError(t, err)

	ctx := context.Background()
	orderID := uuid.New()
	user := uuid.New()
	at := time.Date(2026, 6, 1, 9, 30, 0, 0, time.UTC)

	steps := []struct {
		from *enums.RepairOrderStatus
		to   enums.RepairOrderStatus
	}{
		{nil, enums.RepairOrderStatusInBranch},
		{statusPtr(enums.RepairOrderStatusInBranch), enums.RepairOrderStatusAtHQ},
		{statusPtr(enums.RepairOrderStatusAtHQ), enums.RepairOrderStatusAssignedToTechnician},
	}
	for _, step := range steps {
		_, err := svc.Record(ctx, client.DB(), RecordInput{OrderID: orderID, UserID: user, From: step.from, To: step.to, At: at})
		require.NoError(t, err)
	}
	// written with an earlier clock; must still sort last
	_, err = svc.Record(ctx, client.DB(), RecordInput{
		OrderID: orderID,
		UserID:  user,
		From:    statusPtr(enums.RepairOrderStatusAssignedToTechnician),
		To:      enums.RepairOrderStatusUnderRepair,
		At:      at.Add(-time.Hour),
	})
	require.NoError(t, err)

	history, err := svc.History(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, history, 4)

	want := []enums.RepairOrderStatus{
		enums.RepairOrderStatusInBranch,
		enums.RepairOrderStatusAtHQ,
		enums.RepairOrderStatusAssignedToTechnician,
		enums.RepairOrderStatusUnderRepair,
	}
	for i, entry := range history {
		assert.Equal(t, want[i], entry.ToStatus)
		if i > 0 {
			assert.Greater(t, entry.Seq, history[i-1].Seq)
			assert.False(t, entry.CreatedAt.Before(history[i-1].CreatedAt))
		}
	}
	assert.Nil(t, history[0].FromStatus)
}
