package db

import (
	"context"
	"testing"

	"estatescout-backend/lib/testutil"
	"estatescout-backend/services/pipeline"

	"github.com/stretchr/testify/require"
)

func TestSaveAndListOutcomes(t *testing.T) {
	setup, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "services/pipeline/db",
		DbSchema: Schema,
	})
	defer cleanup()

	ctx := context.Background()
	store := NewStore(setup.DB)

	upper := 500000.0
	included := pipeline.Outcome{
		FileNumber: "W1",
		Kind:       pipeline.OutcomeIncluded,
		Attorney:   "WHEELER & POST LLC",
	}
	included.Record.DecedentName = "DENNIS P HALLORAN"
	included.Record.EstateValueUpper = &upper

	err := store.SaveOutcomes(ctx, "run-1", []pipeline.Outcome{
		included,
		{FileNumber: "W2", Kind: pipeline.OutcomeSkipped, Reason: "no petition document attached"},
	})
	require.NoError(t, err)

	rows, err := store.ListOutcomes(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	require.Equal(t, "W1", rows[0].FileNumber)
	require.Equal(t, "included", rows[0].Kind)
	require.Equal(t, "DENNIS P HALLORAN", rows[0].DecedentName)
	require.True(t, rows[0].EstateValueUpper.Valid)
	require.Equal(t, upper, rows[0].EstateValueUpper.Float64)

	require.Equal(t, "skipped", rows[1].Kind)
	require.False(t, rows[1].EstateValueUpper.Valid)

	empty, err := store.ListOutcomes(ctx, "run-2")
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestSinkAndPrune(t *testing.T) {
	setup, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "services/pipeline/db",
		DbSchema: Schema,
	})
	defer cleanup()

	ctx := context.Background()
	sink := NewSink(setup.DB)
	for i := 0; i < 5; i++ {
		sink.Record(ctx, pipeline.Event{Phase: "process", Detail: "W1", Err: "transient"})
	}

	var count int
	err := setup.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM diagnostics").Scan(&count)
	require.NoError(t, err)
	require.Equal(t, 5, count)

	require.NoError(t, NewStore(setup.DB).PruneDiagnostics(ctx, 2))
	err = setup.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM diagnostics").Scan(&count)
	require.NoError(t, err)
	require.Equal(t, 2, count)
}
