package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"loan-underwriting/internal/common/logger"
	"loan-underwriting/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	return redis.NewClient(&redis.Options{Addr: mr.Addr()}), mr
}

func sampleRecord(id string) models.ApplicationRecord {
	return models.ApplicationRecord{
		ApplicationID: id,
		SubmittedAt:   time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC),
		LoanApplication: models.LoanApplication{
			ApplicantName: "John Doe",
			Age:           35,
			AnnualIncome:  80000,
			CreditScore:   750,
			LoanAmount:    200000,
			LoanPurpose:   models.LoanPurposeHomePurchase,
		},
		UnderwritingDecision: models.UnderwritingDecision{
			Status:         models.StatusApproved,
			ApprovedAmount: 200000,
			InterestRate:   models.Float64(4.25),
			RiskScore:      437.5,
			Reasoning:      "Approved",
			StageResults:   []models.StageResult{},
			Source:         models.SourcePipeline,
		},
	}
}

func TestRedisCache_SetGet(t *testing.T) {
	client, mr := setupRedis(t)
	c := NewRedisCache(client, 15*time.Minute, logger.NewNoOpLogger())
	ctx := context.Background()

	rec := sampleRecord("app-1")
	require.NoError(t, c.Set(ctx, rec))
	assert.True(t, mr.Exists("loan:application:app-1"))
	assert.Equal(t, 15*time.Minute, mr.TTL("loan:application:app-1"))

	got, err := c.Get(ctx, "app-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec, *got)
}

func TestRedisCache_MissAndExpiry(t *testing.T) {
	client, mr := setupRedis(t)
	c := NewRedisCache(client, time.Minute, logger.NewNoOpLogger())
	ctx := context.Background()

	got, err := c.Get(ctx, "unknown")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, c.Set(ctx, sampleRecord("app-2")))
	mr.FastForward(2 * time.Minute)

	got, err = c.Get(ctx, "app-2")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisCache_CorruptEntryIsDropped(t *testing.T) {
	client, mr := setupRedis(t)
	c := NewRedisCache(client, time.Minute, logger.NewNoOpLogger())

	require.NoError(t, mr.Set("loan:application:bad", "{not json"))
	got, err := c.Get(context.Background(), "bad")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.False(t, mr.Exists("loan:application:bad"))
}

func TestRedisCache_ErrorsSurface(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := NewRedisCache(client, time.Minute, logger.NewNoOpLogger())
	ctx := context.Background()

	mock.ExpectGet("loan:application:app-3").SetErr(assert.AnError)
	_, err := c.Get(ctx, "app-3")
	assert.ErrorIs(t, err, assert.AnError)

	rec := sampleRecord("app-3")
	data, _ := json.Marshal(rec)
	mock.ExpectSet("loan:application:app-3", data, time.Minute).SetErr(assert.AnError)
	assert.ErrorIs(t, c.Set(ctx, rec), assert.AnError)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLocalCache_SetGetIsolated(t *testing.T) {
	c := NewLocalCache(time.Minute)
	ctx := context.Background()

	got, err := c.Get(ctx, "app-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, c.Set(ctx, sampleRecord("app-1")))
	got, err = c.Get(ctx, "app-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "John Doe", got.ApplicantName)

	*got.InterestRate = 99
	again, _ := c.Get(ctx, "app-1")
	assert.Equal(t, 4.25, *again.InterestRate)
}

func TestLocalCache_StageDataIsolated(t *testing.T) {
	c := NewLocalCache(time.Minute)
	ctx := context.Background()

	rec := sampleRecord("app-1")
	rec.StageResults = []models.StageResult{{
		Stage:  "analyze_credit",
		Status: models.StageSucceeded,
		Data:   map[string]interface{}{"risk_score": 0.25},
	}}
	require.NoError(t, c.Set(ctx, rec))

	rec.StageResults[0].Data["risk_score"] = 0.5
	got, err := c.Get(ctx, "app-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 0.25, got.StageResults[0].Data["risk_score"])

	got.StageResults[0].Data["risk_score"] = 0.99
	again, err := c.Get(ctx, "app-1")
	require.NoError(t, err)
	assert.Equal(t, 0.25, again.StageResults[0].Data["risk_score"])
}

func TestNoop(t *testing.T) {
	var c DecisionCache = Noop{}
	require.NoError(t, c.Set(context.Background(), sampleRecord("x")))
	got, err := c.Get(context.Background(), "x")
	assert.NoError(t, err)
	assert.Nil(t, got)
}
