package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mtarikucar/kds-sub004/pkg/db/dbtest"
	"github.com/mtarikucar/kds-sub004/pkg/db/models"
	"github.com/mtarikucar/kds-sub004/pkg/enums"
)

func TestEmitStoresEnvelope(t *testing.T) {
	client, conn := dbtest.Client(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)
	tableID := uuid.New()

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventTableOccupied,
			AggregateType: enums.AggregateTable,
			AggregateID:   tableID,
			Data:          map[string]string{"table_id": tableID.String()},
		})
	})
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, conn.Find(&rows).Error)
	require.Len(t, rows, 1)
	require.Equal(t, tableID, rows[0].AggregateID)

	var env PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &env))
	require.Equal(t, 1, env.Version)
	require.NotEmpty(t, env.EventID)
	require.JSONEq(t, `{"table_id":"`+tableID.String()+`"}`, string(env.Data))
}

func TestEmitRequiresTransactionAndKnownType(t *testing.T) {
	svc := NewService(NewRepository(nil), nil)
	require.Error(t, svc.Emit(context.Background(), nil, DomainEvent{EventType: enums.EventOrderPaid}))

	_, conn := dbtest.Client(t)
	err := svc.Emit(context.Background(), conn, DomainEvent{EventType: enums.OutboxEventType("nope")})
	require.Error(t, err)
	err = svc.Emit(context.Background(), conn, DomainEvent{EventType: enums.EventOrderPaid, AggregateType: "invoice"})
	require.Error(t, err)

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestEmitKeepsCallerTimestampAndVersion(t *testing.T) {
	_, conn := dbtest.Client(t)
	svc := NewService(NewRepository(conn), nil)
	occurred := time.Date(2025, 5, 19, 23, 59, 0, 0, time.UTC)

	require.NoError(t, svc.Emit(context.Background(), conn, DomainEvent{
		EventType:     enums.EventZReportGenerated,
		AggregateType: enums.AggregateZReport,
		AggregateID:   uuid.New(),
		Data:          map[string]string{"report_number": "Z-20250519-001"},
		Version:       2,
		OccurredAt:    occurred,
	}))

	var row models.OutboxEvent
	require.NoError(t, conn.First(&row).Error)
	var env PayloadEnvelope
	require.NoError(t, json.Unmarshal(row.Payload, &env))
	require.Equal(t, 2, env.Version)
	require.True(t, occurred.Equal(env.OccurredAt))
}

func TestFetchSkipsPublishedAndExhaustedRows(t *testing.T) {
	_, conn := dbtest.Client(t)
	repo := NewRepository(conn)
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	pending := seedOutbox(t, conn, base, nil, 0)
	published := base.Add(time.Minute)
	seedOutbox(t, conn, base.Add(time.Second), &published, 1)
	seedOutbox(t, conn, base.Add(2*time.Second), nil, 5)

	rows, err := repo.FetchUnpublishedForPublish(conn, 10, 5)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, pending, rows[0].ID)

	require.NoError(t, repo.MarkFailedTx(conn, pending, errors.New("pubsub down")))
	var stored models.OutboxEvent
	require.NoError(t, conn.First(&stored, "id = ?", pending).Error)
	require.Equal(t, 1, stored.AttemptCount)
	require.NotNil(t, stored.LastError)

	require.NoError(t, repo.MarkPublishedTx(conn, pending, base.Add(time.Hour)))
	rows, err = repo.FetchUnpublishedForPublish(conn, 10, 5)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestDeletePublishedBefore(t *testing.T) {
	_, conn := dbtest.Client(t)
	repo := NewRepository(conn)
	old := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	seedOutbox(t, conn, old, &old, 1)
	seedOutbox(t, conn, old, nil, 10)
	keepPending := seedOutbox(t, conn, old, nil, 1)
	keepRecent := seedOutbox(t, conn, recent, &recent, 1)

	deleted, err := repo.DeletePublishedBefore(context.Background(), conn, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), 5)
	require.NoError(t, err)
	require.EqualValues(t, 2, deleted)

	var ids []uuid.UUID
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Pluck("id", &ids).Error)
	require.ElementsMatch(t, []uuid.UUID{keepPending, keepRecent}, ids)
}

func seedOutbox(t *testing.T, conn *gorm.DB, created time.Time, published *time.Time, attempts int) uuid.UUID {
	t.Helper()
	row := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"version":1,"data":{}}`),
		CreatedAt:     created,
		PublishedAt:   published,
		AttemptCount:  attempts,
	}
	require.NoError(t, conn.Create(&row).Error)
	return row.ID
}
