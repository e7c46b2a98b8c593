package checkout_session

import (
	"context"
	"testing"
	"time"

	"github.com/fatflowers/coursepay/internal/models"
	"github.com/fatflowers/coursepay/internal/platform/db/dbtest"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func TestMarkCompleted(t *testing.T) {
	db := dbtest.Open(t)
	s := New()
	ctx := context.Background()

	require.NoError(t, db.Create(&models.CheckoutSession{ID: "cs_1", UserID: lo.ToPtr("u1")}).Error)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.MarkCompleted(ctx, db, "cs_1", nil, at))
	require.NoError(t, s.MarkCompleted(ctx, db, "cs_2", lo.ToPtr("u2"), at))

	var got []models.CheckoutSession
	require.NoError(t, db.Order("id").Find(&got).Error)
	require.Len(t, got, 2)
	for _, cs := range got {
		require.True(t, cs.Completed)
		require.True(t, at.Equal(*cs.CompletedAt))
	}
	require.Equal(t, "u1", *got[0].UserID)
	require.Equal(t, "u2", *got[1].UserID)
}
