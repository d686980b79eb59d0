package allocation_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbmatyushin/medsil-equipment-base/allocation"
	"github.com/bbmatyushin/medsil-equipment-base/formfields"
	"github.com/bbmatyushin/medsil-equipment-base/model"
	"github.com/bbmatyushin/medsil-equipment-base/widget"
)

func submittedAllocations(t *testing.T, form *formfields.Values) []model.Allocation {
	t.Helper()
	allocs, err := formfields.ParseSubmitted(form.Encode())
	require.NoError(t, err)
	return allocs
}

func TestSubmitInjectsPositiveQuantities(t *testing.T) {
	ctx := context.Background()
	form := formfields.NewValues(url.Values{"description": {"pump repair"}})
	tr := allocation.New(widget.NewStatic(partA, partB), twoBatchFetcher(), form, nil, allocation.WithLogger(quietLogger))
	require.NoError(t, tr.Setup(ctx))

	dated := model.NewBatchKey(partA, strPtr("2025-01-01"))
	lamp := model.NewBatchKey(partB, nil)
	require.NoError(t, tr.SetQuantity(ctx, dated, 2))
	require.NoError(t, tr.SetQuantity(ctx, lamp, 1))

	require.NoError(t, tr.Submit(ctx))

	vals := form.Encode()
	assert.Equal(t, "pump repair", vals.Get("description"))
	require.Len(t, vals["spare_part_quantities[0]"], 1)

	var first map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(vals.Get("spare_part_quantities[0]")), &first))
	assert.Equal(t, partA, first["id"])
	assert.Equal(t, 2.0, first["quantity"])
	assert.Equal(t, 0.0, first["originalQuantity"])
	assert.Equal(t, "2025-01-01", first["expiration_dt"])

	allocs := submittedAllocations(t, form)
	require.Len(t, allocs, 2)
	assert.Equal(t, partB, allocs[1].ID)
	assert.Nil(t, allocs[1].ExpirationDt)
	assert.Equal(t, 1.0, allocs[1].Quantity)
}

func TestResubmitDoesNotDuplicateFields(t *testing.T) {
	ctx := context.Background()
	form := formfields.NewValues(url.Values{
		"spare_part_quantities[0]": {`{"id":"` + partA + `","quantity":1,"expiration_dt":null}`},
	})
	tr := allocation.New(widget.NewStatic(partA), twoBatchFetcher(), form, nil, allocation.WithLogger(quietLogger))
	require.NoError(t, tr.Setup(ctx))

	undated := model.NewBatchKey(partA, nil)
	dated := model.NewBatchKey(partA, strPtr("2025-01-01"))
	require.NoError(t, tr.SetQuantity(ctx, dated, 3))

	require.NoError(t, tr.Submit(ctx))
	require.NoError(t, tr.Submit(ctx))
	assert.Equal(t, 1, form.Count(formfields.Prefix), "undated batch was seeded to 0 by its service count")

	require.NoError(t, tr.SetQuantity(ctx, undated, 2))
	require.NoError(t, tr.Submit(ctx))
	assert.Equal(t, 2, form.Count(formfields.Prefix))

	allocs := submittedAllocations(t, form)
	require.Len(t, allocs, 2)
	assert.Equal(t, 3.0, allocs[0].Quantity)
	assert.Equal(t, 2.0, allocs[1].Quantity)
	assert.Equal(t, 1.0, allocs[1].OriginalQuantity)
}

func TestSubmitWithNothingAllocatedClearsFields(t *testing.T) {
	ctx := context.Background()
	form := formfields.NewValues(url.Values{
		"spare_part_quantities[0]": {`{"id":"` + partA + `","quantity":1,"expiration_dt":null}`},
	})
	tr := allocation.New(widget.NewStatic(), twoBatchFetcher(), form, nil, allocation.WithLogger(quietLogger))
	require.NoError(t, tr.Setup(ctx))

	require.NoError(t, tr.Submit(ctx))
	assert.Equal(t, 0, form.Count(formfields.Prefix))
}

func TestCeilingPolicy(t *testing.T) {
	ctx := context.Background()
	undated := model.NewBatchKey(partA, nil)

	t.Run("off by default", func(t *testing.T) {
		form := formfields.NewValues(nil)
		tr := allocation.New(widget.NewStatic(partA), twoBatchFetcher(), form, nil, allocation.WithLogger(quietLogger))
		require.NoError(t, tr.Setup(ctx))
		require.NoError(t, tr.SetQuantity(ctx, undated, 9))

		assert.NoError(t, tr.Submit(ctx))
		assert.Equal(t, 1, form.Count(formfields.Prefix))
		assert.Error(t, tr.Validate())
	})

	t.Run("enforced", func(t *testing.T) {
		form := formfields.NewValues(nil)
		tr := allocation.New(widget.NewStatic(partA), twoBatchFetcher(), form, nil,
			allocation.WithLogger(quietLogger), allocation.WithCeilingPolicy(true))
		require.NoError(t, tr.Setup(ctx))
		require.NoError(t, tr.SetQuantity(ctx, undated, 9))

		err := tr.Submit(ctx)
		var ce *allocation.CeilingError
		require.True(t, errors.As(err, &ce))
		require.Len(t, ce.Batches, 1)
		assert.Equal(t, undated, ce.Batches[0].Key)
		assert.Equal(t, 9.0, ce.Batches[0].Requested)
		assert.Equal(t, 3.0, ce.Batches[0].Max)

		require.NoError(t, tr.SetQuantity(ctx, undated, 3))
		assert.NoError(t, tr.Submit(ctx))
	})
}

func TestSnapshotSkipsZeroQuantities(t *testing.T) {
	ctx := context.Background()
	tr := allocation.New(widget.NewStatic(partA, partB), twoBatchFetcher(), nil, nil, allocation.WithLogger(quietLogger))
	require.NoError(t, tr.Setup(ctx))
	assert.Empty(t, tr.Snapshot())

	require.NoError(t, tr.SetQuantity(ctx, model.NewBatchKey(partB, nil), 4))
	snap := tr.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, partB, snap[0].ID)
	assert.Equal(t, 4.0, snap[0].Quantity)
}

func TestPlaceholderQuantityIsSubmittedAndChecked(t *testing.T) {
	ctx := context.Background()
	f := newFakeFetcher()
	f.fail[partA] = true
	form := formfields.NewValues(url.Values{
		"spare_part_quantities[0]": {`{"id":"` + partA + `","quantity":2,"expiration_dt":"2025-01-01"}`},
	})
	tr := allocation.New(widget.NewStatic(partA), f, form, nil, allocation.WithLogger(quietLogger))
	require.NoError(t, tr.Setup(ctx))

	dated := model.NewBatchKey(partA, strPtr("2025-01-01"))
	require.NoError(t, tr.SetQuantity(ctx, dated, 3))

	snap := tr.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, dated, snap[0].Key())
	assert.Equal(t, 3.0, snap[0].Quantity)

	var ce *allocation.CeilingError
	require.True(t, errors.As(tr.Validate(), &ce))
	require.Len(t, ce.Batches, 1)
	assert.Equal(t, dated, ce.Batches[0].Key)
	assert.Equal(t, 2.0, ce.Batches[0].Max)
}
