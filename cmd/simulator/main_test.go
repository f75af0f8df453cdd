package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFleet(t *testing.T) {
	fleet := newFleet(3)
	require.Len(t, fleet, 3)
	assert.Equal(t, "TR-001", fleet[0].EquipmentID)
	assert.Equal(t, "TR-003", fleet[2].EquipmentID)
	for _, truck := range fleet {
		assert.GreaterOrEqual(t, truck.AvgSpeedKmh, 25.0)
		assert.Less(t, truck.AvgSpeedKmh, 60.0)
	}
}

func TestNextUsage_Bounds(t *testing.T) {
	truck := &truckState{EquipmentID: "TR-001", AvgSpeedKmh: 30}
	for i := 0; i < 200; i++ {
		usage := nextUsage(truck, 1.0)
		assert.Equal(t, "TR-001", usage.EquipmentID)
		assert.GreaterOrEqual(t, usage.HoursDelta, 0.0)
		assert.GreaterOrEqual(t, usage.KmDelta, 0.0)
		if usage.HoursDelta > 0 {
			// Idling keeps engine hours within 20% above the tick.
			assert.LessOrEqual(t, usage.HoursDelta, 1.2)
			assert.LessOrEqual(t, usage.KmDelta, 30*1.4)
		}
	}
}

func TestNextUsage_ParkedTicksProduceNothing(t *testing.T) {
	truck := &truckState{EquipmentID: "TR-001", AvgSpeedKmh: 30, parkedTicks: 2}

	usage := nextUsage(truck, 1.0)
	assert.Zero(t, usage.HoursDelta)
	assert.Zero(t, usage.KmDelta)
	assert.Equal(t, 1, truck.parkedTicks)

	usage = nextUsage(truck, 1.0)
	assert.Zero(t, usage.HoursDelta)
	assert.Zero(t, usage.KmDelta)
	assert.Equal(t, 0, truck.parkedTicks)
}

func TestEnvInt(t *testing.T) {
	t.Setenv("FLEET_SIZE_TEST", "12")
	assert.Equal(t, 12, envInt("FLEET_SIZE_TEST", 5))

	t.Setenv("FLEET_SIZE_TEST", "not-a-number")
	assert.Equal(t, 5, envInt("FLEET_SIZE_TEST", 5))

	t.Setenv("FLEET_SIZE_TEST", "-3")
	assert.Equal(t, 5, envInt("FLEET_SIZE_TEST", 5))

	assert.Equal(t, 7, envInt("FLEET_SIZE_UNSET", 7))
}
