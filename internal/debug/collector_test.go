package debug

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/banshee-data/navfusion/internal/fusion"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorDisabled(t *testing.T) {
	t.Parallel()
	c := NewCollector(0)
	c.BeginStep(1)
	assert.False(t, c.IsEnabled())
	c.RecordPrediction(fusion.Vec6{1}, 0.1)
	c.RecordInnovation(fusion.ModelGPS, []float64{1, 2, 3}, fusion.OutcomeApplied)
	assert.Nil(t, c.Emit())
	assert.Empty(t, c.Recent())

	c.SetEnabled(true)
	assert.False(t, c.IsEnabled(), "no ring to record into")
}

func TestCollectorRecordsEstimatorStep(t *testing.T) {
	t.Parallel()
	c := NewCollector(4)
	e := fusion.NewEstimator(fusion.DefaultEstimatorConfig())
	e.DebugCollector = c

	gps := fusion.Vec3{1, 2, 3}
	c.BeginStep(7)
	_, err := e.Step(fusion.StepInput{Accel: fusion.Vec3{1, 0, 0}, Dt: 0.1, GPS: &gps})
	require.NoError(t, err)
	step := c.Emit()
	require.NotNil(t, step)

	assert.Equal(t, uint64(7), step.Index)
	require.NotNil(t, step.Prediction)
	assert.Equal(t, 0.1, step.Prediction.Dt)
	assert.InDelta(t, 0.1, step.Prediction.State[fusion.IdxVX], 1e-15)
	require.Len(t, step.Innovations, 1)
	assert.Equal(t, fusion.ModelGPS, step.Innovations[0].Model)
	assert.True(t, step.Innovations[0].Applied)
	assert.Equal(t, fusion.OutcomeApplied, step.Innovations[0].Outcome)
	assert.Equal(t, []float64{1, 2, 3}, step.Innovations[0].Residual)

	// Recording outside a begun step is ignored.
	require.NoError(t, e.Predict(fusion.Vec3{}, 0.1))
	assert.Nil(t, c.Emit())
	assert.Len(t, c.Recent(), 1)
}

func TestCollectorRecordsSkippedUpdates(t *testing.T) {
	t.Parallel()
	cfg := fusion.DefaultEstimatorConfig()
	cfg.InitialCovariance = 0
	cfg.ProcessNoisePos = 0
	cfg.GPSNoise = fusion.Vec3{}
	c := NewCollector(4)
	e := fusion.NewEstimator(cfg)
	e.DebugCollector = c

	// GPS: P and R_gps are zero, so S is singular. Baro: NaN is malformed.
	gps := fusion.Vec3{1, 2, 3}
	baro := math.NaN()
	c.BeginStep(1)
	report, err := e.Step(fusion.StepInput{Dt: 0.1, GPS: &gps, Baro: &baro})
	require.NoError(t, err)
	require.Equal(t, fusion.OutcomeSingular, report.GPS)
	require.Equal(t, fusion.OutcomeMalformed, report.Baro)

	step := c.Emit()
	require.NotNil(t, step)
	require.Len(t, step.Innovations, 2)
	assert.Equal(t, Innovation{Model: fusion.ModelGPS, Outcome: fusion.OutcomeSingular}, step.Innovations[0])
	assert.Equal(t, Innovation{Model: fusion.ModelBaro, Outcome: fusion.OutcomeMalformed}, step.Innovations[1])

	data, err := json.Marshal(step.Innovations[1])
	require.NoError(t, err)
	assert.JSONEq(t, `{"model":"baro","outcome":"malformed","applied":false}`, string(data))
}

func TestCollectorRingKeepsNewest(t *testing.T) {
	t.Parallel()
	c := NewCollector(3)
	for i := uint64(1); i <= 5; i++ {
		c.BeginStep(i)
		c.RecordInnovation(fusion.ModelBaro, nil, fusion.OutcomeSingular)
		c.Emit()
	}

	recent := c.Recent()
	require.Len(t, recent, 3)
	assert.Equal(t, []uint64{3, 4, 5}, []uint64{recent[0].Index, recent[1].Index, recent[2].Index})
	assert.False(t, recent[2].Innovations[0].Applied)
	assert.Equal(t, fusion.OutcomeSingular, recent[2].Innovations[0].Outcome)

	c.Clear()
	assert.Empty(t, c.Recent())
}

func TestCollectorDiscard(t *testing.T) {
	t.Parallel()
	c := NewCollector(2)
	c.BeginStep(1)
	c.Discard()
	assert.Nil(t, c.Emit())
	assert.Empty(t, c.Recent())
}
