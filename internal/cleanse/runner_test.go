package cleanse

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"statpipe/internal/dataset"
)

// vehiclesFixture builds a small raw table shaped like the fuel-economy
// dataset: mixed drivetrains, cylinder counts, and fuel types.
func vehiclesFixture(t *testing.T) *dataset.Table {
	t.Helper()

	n := 40
	ids := make([]int64, n)
	years := make([]float64, n)
	cyl := make([]int64, n)
	drive := make([]string, n)
	fuel := make([]string, n)
	comb := make([]float64, n)

	drives := []string{"Front-Wheel Drive", "Rear-Wheel Drive", "4-Wheel Drive", "2-Wheel Drive", "Part-time 4-Wheel Drive"}
	fuels := []string{"Regular Gasoline", "Premium Gasoline", "Diesel"}
	cyls := []int64{3, 4, 5, 6, 8, 12}

	for i := 0; i < n; i++ {
		ids[i] = int64(1000 + i)
		years[i] = float64(1985 + (i*37)%35)
		cyl[i] = cyls[i%len(cyls)]
		drive[i] = drives[i%len(drives)]
		fuel[i] = fuels[i%len(fuels)]
		comb[i] = 15 + float64(i%20)
	}

	tbl, err := dataset.New("vehicles",
		dataset.NewIntColumn("id", ids),
		dataset.NewFloatColumn("year", years),
		dataset.NewIntColumn("cylinders", cyl),
		dataset.NewStringColumn("drive", drive),
		dataset.NewStringColumn("fuelType1", fuel),
		dataset.NewFloatColumn("comb08", comb),
	)
	require.NoError(t, err)
	return tbl
}

func vehicleSpec() *Spec {
	return &Spec{
		Select: []SelectRule{
			{From: "id"}, {From: "year"}, {From: "cylinders"},
			{From: "drive"}, {From: "fuelType1", As: "fuel"}, {From: "comb08", As: "mpg"},
		},
		Types: []TypeRule{
			{Column: "drive", To: "categorical", Levels: []string{
				"Front-Wheel Drive", "Rear-Wheel Drive", "4-Wheel Drive", "2-Wheel Drive", "Part-time 4-Wheel Drive",
			}},
			{Column: "fuel", To: "categorical", Levels: []string{"Regular Gasoline", "Premium Gasoline"}},
		},
		Derive: []DeriveRule{
			{Column: "decade", Kind: DeriveBucket, Source: "year",
				Breaks: []float64{1980, 1990, 2000, 2010, 2020},
				Labels: []string{"1980s", "1990s", "2000s", "2010s"}},
		},
		Filters: []FilterRule{
			{Column: "cylinders", Op: OpIn, Values: []string{"4", "6", "8"}},
			{Column: "drive", Op: OpNotIn, Values: []string{"2-Wheel Drive"}},
			{Column: "fuel", Op: OpComplete},
			{Column: "drive", Op: OpNotIn, Values: []string{"Part-time 4-Wheel Drive"}},
		},
		DropUnusedLevels: true,
		IDColumn:         "id",
	}
}

func TestApplyFullChain(t *testing.T) {
	tbl := vehiclesFixture(t)
	spec := vehicleSpec()

	res, err := Apply(context.Background(), nil, tbl, spec)
	require.NoError(t, err)

	got := res.Table
	assert.Equal(t, []string{"id", "year", "cylinders", "drive", "fuel", "mpg", "decade"}, got.ColumnNames())
	assert.NoError(t, got.CheckUniqueID("id"))

	// Audit trail covers every filter, in order, with consistent counts.
	require.Len(t, res.Audits, 4)
	assert.Equal(t, tbl.NumRows(), res.Audits[0].Before)
	for i := 1; i < len(res.Audits); i++ {
		assert.Equal(t, res.Audits[i-1].After, res.Audits[i].Before)
	}
	assert.Equal(t, res.Audits[len(res.Audits)-1].After, got.NumRows())

	// Excluded categories are gone from both rows and level sets.
	drive, err := got.Column("drive")
	require.NoError(t, err)
	assert.NotContains(t, drive.Levels, "2-Wheel Drive")
	assert.NotContains(t, drive.Levels, "Part-time 4-Wheel Drive")

	cyl, err := got.Column("cylinders")
	require.NoError(t, err)
	for _, v := range cyl.Ints {
		assert.Contains(t, []int64{4, 6, 8}, v)
	}

	// Diesel rows fell outside the enumerated fuel levels and were removed
	// by the completeness filter.
	fuel, err := got.Column("fuel")
	require.NoError(t, err)
	assert.Zero(t, fuel.MissingCount())

	// Original table untouched.
	assert.Equal(t, 40, tbl.NumRows())
	assert.True(t, tbl.HasColumn("fuelType1"))
}

func TestApplySampleDeterminism(t *testing.T) {
	tbl := vehiclesFixture(t)
	spec := vehicleSpec()
	spec.Sample = &SampleRule{N: 10, Seed: 432}

	a, err := Apply(context.Background(), nil, tbl, spec)
	require.NoError(t, err)
	b, err := Apply(context.Background(), nil, tbl, spec)
	require.NoError(t, err)

	assert.Equal(t, 10, a.Table.NumRows())
	idsA, _ := a.Table.Column("id")
	idsB, _ := b.Table.Column("id")
	assert.Equal(t, idsA.Ints, idsB.Ints, "sampling with a fixed seed is idempotent")
}

func TestApplySampleTooLarge(t *testing.T) {
	tbl := vehiclesFixture(t)
	spec := vehicleSpec()
	spec.Sample = &SampleRule{N: 1200, Seed: 432}

	_, err := Apply(context.Background(), nil, tbl, spec)
	assert.ErrorIs(t, err, dataset.ErrSampleSize)
}

func TestApplyMissingSourceColumn(t *testing.T) {
	tbl := vehiclesFixture(t)
	spec := &Spec{Select: []SelectRule{{From: "id"}, {From: "weight"}}}

	_, err := Apply(context.Background(), nil, tbl, spec)
	assert.ErrorIs(t, err, dataset.ErrColumnNotFound)
}

func TestBucketPartition(t *testing.T) {
	breaks := []float64{1980, 1990, 2000, 2010, 2020}
	labels := []string{"1980s", "1990s", "2000s", "2010s"}

	// Every in-range value lands in exactly one bucket.
	for y := 1980.0; y <= 2020.0; y += 0.5 {
		label := bucketLabel(y, breaks, labels)
		require.NotEmpty(t, label, "year %g must be bucketed", y)
	}

	// Break points belong to the right-hand bucket, except the final break.
	assert.Equal(t, "1990s", bucketLabel(1990, breaks, labels))
	assert.Equal(t, "2010s", bucketLabel(2020, breaks, labels))

	// Out-of-range values get no bucket.
	assert.Empty(t, bucketLabel(1979.9, breaks, labels))
	assert.Empty(t, bucketLabel(2020.1, breaks, labels))
}

func TestDeriveRatioBMI(t *testing.T) {
	tbl, err := dataset.New("nhanes",
		dataset.NewFloatColumn("weight_lb", []float64{150, 200, math.NaN()}),
		dataset.NewFloatColumn("height_in", []float64{65, 70, 68}),
	)
	require.NoError(t, err)

	spec := &Spec{
		Derive: []DeriveRule{{
			Column: "bmi", Kind: DeriveRatio,
			Numerator: "weight_lb", Denominator: "height_in",
			DenominatorPower: 2, Scale: 703,
		}},
	}

	res, err := Apply(context.Background(), nil, tbl, spec)
	require.NoError(t, err)

	bmi, err := res.Table.Column("bmi")
	require.NoError(t, err)
	v, ok := bmi.FloatAt(0)
	require.True(t, ok)
	assert.InDelta(t, 150.0/(65*65)*703, v, 1e-9)
	assert.True(t, bmi.IsMissing(2), "missing weight propagates")
}

func TestDeriveLogDomain(t *testing.T) {
	tbl, err := dataset.New("counts",
		dataset.NewFloatColumn("x", []float64{math.E, 0, -3}),
	)
	require.NoError(t, err)

	spec := &Spec{Derive: []DeriveRule{{Column: "logx", Kind: DeriveLog, Source: "x"}}}
	res, err := Apply(context.Background(), nil, tbl, spec)
	require.NoError(t, err)

	logx, _ := res.Table.Column("logx")
	v, ok := logx.FloatAt(0)
	require.True(t, ok)
	assert.InDelta(t, 1.0, v, 1e-12)
	assert.True(t, logx.IsMissing(1), "log of zero is missing")
	assert.True(t, logx.IsMissing(2), "log of negative is missing")
}

func TestApplyDuplicateIDFails(t *testing.T) {
	tbl, err := dataset.New("dup",
		dataset.NewIntColumn("id", []int64{1, 2, 2, 3}),
		dataset.NewFloatColumn("x", []float64{1, 2, 3, 4}),
	)
	require.NoError(t, err)

	two := 2.0
	spec := &Spec{
		Filters:  []FilterRule{{Column: "x", Op: OpGe, Value: &two}},
		IDColumn: "id",
	}
	_, err = Apply(context.Background(), nil, tbl, spec)
	assert.ErrorIs(t, err, dataset.ErrDuplicateID)
}

func TestSpecValidate(t *testing.T) {
	tests := []struct {
		name    string
		spec    *Spec
		wantErr string
	}{
		{
			"categorical without levels",
			&Spec{Types: []TypeRule{{Column: "a", To: "categorical"}}},
			"at least two levels",
		},
		{
			"bucket label count mismatch",
			&Spec{Derive: []DeriveRule{{Column: "d", Kind: DeriveBucket, Source: "x",
				Breaks: []float64{0, 1, 2}, Labels: []string{"only"}}}},
			"labels",
		},
		{
			"bucket breaks not increasing",
			&Spec{Derive: []DeriveRule{{Column: "d", Kind: DeriveBucket, Source: "x",
				Breaks: []float64{0, 2, 1}, Labels: []string{"a", "b"}}}},
			"non-increasing",
		},
		{
			"in filter without values",
			&Spec{Filters: []FilterRule{{Column: "a", Op: OpIn}}},
			"needs values",
		},
		{
			"gt filter without value",
			&Spec{Filters: []FilterRule{{Column: "a", Op: OpGt}}},
			"numeric value",
		},
		{
			"ratio without denominator",
			&Spec{Derive: []DeriveRule{{Column: "r", Kind: DeriveRatio, Numerator: "a"}}},
			"denominator",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFilterLabel(t *testing.T) {
	v := 5.0
	tests := []struct {
		rule FilterRule
		want string
	}{
		{FilterRule{Column: "cyl", Op: OpIn, Values: []string{"4", "6"}}, "cyl in [4,6]"},
		{FilterRule{Column: "x", Op: OpGe, Value: &v}, "x ge 5"},
		{FilterRule{Column: "y", Op: OpComplete}, "y complete"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, filterLabel(tt.rule), fmt.Sprintf("%+v", tt.rule))
	}
}

func classFixture(t *testing.T) *dataset.Table {
	t.Helper()
	var classes []string
	add := func(label string, n int) {
		for i := 0; i < n; i++ {
			classes = append(classes, label)
		}
	}
	add("compact", 10)
	add("suv", 6)
	add("pickup", 2)
	add("minivan", 1)

	hwy := make([]float64, len(classes))
	for i := range hwy {
		hwy[i] = 20 + float64(i%7)
	}
	tbl, err := dataset.New("classes",
		dataset.NewCategoricalColumn("class", classes, []string{"compact", "suv", "pickup", "minivan"}),
		dataset.NewFloatColumn("hwy", hwy),
	)
	require.NoError(t, err)
	return tbl
}

func TestCollapseRareLevels(t *testing.T) {
	tbl := classFixture(t)

	spec := &Spec{CollapseRare: []CollapseRule{{Column: "class", MinCount: 3}}}
	res, err := Apply(context.Background(), nil, tbl, spec)
	require.NoError(t, err)

	// Collapsing re-codes levels, never rows.
	assert.Equal(t, tbl.NumRows(), res.Table.NumRows())

	col, err := res.Table.Column("class")
	require.NoError(t, err)
	assert.Equal(t, []string{"compact", "suv", "other"}, col.Levels)
	assert.Equal(t, []int{10, 6, 3}, col.LevelCounts())
}

func TestCollapseRareIntoExistingLevel(t *testing.T) {
	tbl := classFixture(t)

	spec := &Spec{CollapseRare: []CollapseRule{{Column: "class", Into: "suv", MinCount: 3}}}
	res, err := Apply(context.Background(), nil, tbl, spec)
	require.NoError(t, err)

	col, err := res.Table.Column("class")
	require.NoError(t, err)
	assert.Equal(t, []string{"compact", "suv"}, col.Levels)
	assert.Equal(t, []int{10, 9}, col.LevelCounts())
}

func TestCollapseRareNoRareLevels(t *testing.T) {
	tbl := classFixture(t)

	spec := &Spec{CollapseRare: []CollapseRule{{Column: "class", MinCount: 1}}}
	res, err := Apply(context.Background(), nil, tbl, spec)
	require.NoError(t, err)

	col, err := res.Table.Column("class")
	require.NoError(t, err)
	assert.Equal(t, []string{"compact", "suv", "pickup", "minivan"}, col.Levels)
}

func TestCollapseRareErrors(t *testing.T) {
	tbl := classFixture(t)

	t.Run("non-categorical column", func(t *testing.T) {
		spec := &Spec{CollapseRare: []CollapseRule{{Column: "hwy", MinCount: 3}}}
		_, err := Apply(context.Background(), nil, tbl, spec)
		assert.ErrorContains(t, err, "not categorical")
	})

	t.Run("unresolved min count", func(t *testing.T) {
		spec := &Spec{CollapseRare: []CollapseRule{{Column: "class"}}}
		_, err := Apply(context.Background(), nil, tbl, spec)
		assert.ErrorContains(t, err, "min count")
	})

	t.Run("missing column", func(t *testing.T) {
		spec := &Spec{CollapseRare: []CollapseRule{{Column: "nope", MinCount: 3}}}
		_, err := Apply(context.Background(), nil, tbl, spec)
		assert.Error(t, err)
	})
}
