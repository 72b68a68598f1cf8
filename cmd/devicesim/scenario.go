package main

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"alertaraven/models"
)

// Scenarios the generator can play
const (
	ScenarioIdle  = "idle"
	ScenarioFall  = "fall"
	ScenarioCrash = "crash"
)

const cruiseSpeed = 22.0 // m/s

// Generator produces the phone's stream one tick at a time. Idle readings stay
// inside the resting band around 1g; the event tick of a fall or crash leaves it.
type Generator struct {
	deviceID   string
	scenario   string
	eventAt    int
	background bool
	rng        *rand.Rand
	tick       int
}

func NewGenerator(deviceID, scenario string, eventAt int, background bool, seed int64) (*Generator, error) {
	switch scenario {
	case ScenarioIdle, ScenarioFall, ScenarioCrash:
	default:
		return nil, fmt.Errorf("unknown scenario %q (want idle, fall or crash)", scenario)
	}
	if eventAt < 1 {
		return nil, fmt.Errorf("event tick must be at least 1, got %d", eventAt)
	}

	return &Generator{
		deviceID:   deviceID,
		scenario:   scenario,
		eventAt:    eventAt,
		background: background,
		rng:        rand.New(rand.NewSource(seed)),
	}, nil
}

// Next returns the messages for the next tick
func (g *Generator) Next(now time.Time) []*models.DeviceMessage {
	defer func() { g.tick++ }()

	var out []*models.DeviceMessage
	if g.tick == 0 {
		perms := models.AllPermissions()
		out = append(out, g.message(models.MessagePermissions, now, func(m *models.DeviceMessage) {
			m.Permissions = &perms
		}))
	}

	event := g.scenario != ScenarioIdle && g.tick == g.eventAt

	gyro := g.noise(0.05)
	accel := models.Vec3{X: g.noise1(0.05), Y: g.noise1(0.05), Z: 1 + g.noise1(0.05)}
	if event {
		gyro = models.Vec3{X: 3.1, Y: -2.4, Z: 1.7}
		accel = models.Vec3{X: 0.6, Y: -0.4, Z: 2.9}
	}

	out = append(out,
		g.message(models.MessageGyroscope, now, func(m *models.DeviceMessage) { m.Reading = &gyro }),
		g.message(models.MessageAccelerometer, now, func(m *models.DeviceMessage) { m.Reading = &accel }),
	)

	if g.scenario == ScenarioCrash {
		speed := cruiseSpeed + g.noise1(1)
		if g.tick >= g.eventAt {
			speed = 0
		}
		fix := models.LocationFix{
			Speed:       math.Round(speed*10) / 10,
			TimestampMs: now.UnixMilli(),
			Latitude:    19.4326,
			Longitude:   -99.1332,
		}
		out = append(out, g.message(models.MessageLocation, now, func(m *models.DeviceMessage) { m.Location = &fix }))
	}

	return out
}

// Event reports whether the previous Next call produced the scenario's event
func (g *Generator) Event() bool {
	return g.scenario != ScenarioIdle && g.tick-1 == g.eventAt
}

func (g *Generator) message(t models.DeviceMessageType, now time.Time, fill func(*models.DeviceMessage)) *models.DeviceMessage {
	m := &models.DeviceMessage{
		Type:       t,
		DeviceID:   g.deviceID,
		Background: g.background,
		Timestamp:  now,
	}
	fill(m)
	return m
}

func (g *Generator) noise(amp float64) models.Vec3 {
	return models.Vec3{X: g.noise1(amp), Y: g.noise1(amp), Z: g.noise1(amp)}
}

func (g *Generator) noise1(amp float64) float64 {
	return math.Round((g.rng.Float64()*2-1)*amp*1000) / 1000
}
