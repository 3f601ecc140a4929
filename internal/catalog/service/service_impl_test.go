package service

import (
	"context"
	"errors"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/smallbiznis/renderway/internal/catalog/domain"
	"github.com/smallbiznis/renderway/internal/catalog/repository"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared&_pragma=foreign_keys(1)"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Plan{}, &domain.TopupPack{}))

	t.Cleanup(func() {
		require.NoError(t, db.Exec("DELETE FROM plans").Error)
		require.NoError(t, db.Exec("DELETE FROM topup_packs").Error)
	})
	return db
}

func newTestService(t *testing.T, db *gorm.DB) domain.Service {
	t.Helper()
	return NewService(Params{
		DB:   db,
		Log:  zap.NewNop(),
		Repo: repository.Provide(),
	})
}

func TestResolveGrantPlan(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&domain.Plan{
		PlanID:          "studio_monthly",
		ProviderPriceID: "price_studio_m",
		MonthlyTokens:   500,
	}).Error)

	svc := newTestService(t, db)
	grant, err := svc.ResolveGrant(context.Background(), "price_studio_m")
	require.NoError(t, err)
	assert.Equal(t, domain.GrantKindPlan, grant.Kind)
	assert.Equal(t, "studio_monthly", grant.PlanID)
	assert.Equal(t, int64(500), grant.Tokens)
}

func TestResolveGrantTopup(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&domain.TopupPack{
		ProviderPriceID: "price_pack_100",
		Tokens:          100,
		Active:          true,
	}).Error)

	svc := newTestService(t, db)
	grant, err := svc.ResolveGrant(context.Background(), "price_pack_100")
	require.NoError(t, err)
	assert.Equal(t, domain.GrantKindTopup, grant.Kind)
	assert.Empty(t, grant.PlanID)
	assert.Equal(t, int64(100), grant.Tokens)
}

func TestResolveGrantInactiveTopup(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&domain.TopupPack{
		ProviderPriceID: "price_pack_retired",
		Tokens:          50,
		Active:          false,
	}).Error)

	svc := newTestService(t, db)
	_, err := svc.ResolveGrant(context.Background(), "price_pack_retired")
	assert.True(t, errors.Is(err, domain.ErrPriceNotMapped))
}

func TestResolveGrantUnmappedPrice(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)

	_, err := svc.ResolveGrant(context.Background(), "price_unknown")
	assert.True(t, errors.Is(err, domain.ErrPriceNotMapped))

	_, err = svc.ResolveGrant(context.Background(), "")
	assert.True(t, errors.Is(err, domain.ErrInvalidPriceID))
}
