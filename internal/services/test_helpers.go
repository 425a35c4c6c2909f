package services

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"divrec/internal/config"
)

// MockWebSocketHub implements WebSocketHub for tests so broadcast
// traffic can be asserted without a running hub.
type MockWebSocketHub struct {
	mock.Mock
}

func (m *MockWebSocketHub) Broadcast(messageType string, data interface{}) {
	m.Called(messageType, data)
}

// relaxedHub is a MockWebSocketHub that accepts any broadcast. Most
// tests only care about service behaviour, not hub traffic.
func relaxedHub() *MockWebSocketHub {
	hub := &MockWebSocketHub{}
	hub.On("Broadcast", mock.Anything, mock.Anything).Maybe()
	return hub
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// testAnalyticsConfig returns a configuration sized for the small
// fixture universe: single-event samples are summarizable and the
// similarity floor admits every defined neighbour.
func testAnalyticsConfig() config.AnalyticsConfig {
	return config.AnalyticsConfig{
		MaxHorizonDays:    30,
		RecoveryThreshold: 1.0,
		MinSampleSize:     1,
		Percentiles:       []float64{0.5},
		ForwardHorizons:   []int{5},
		BaselineDays:      20,
		RSIPeriod:         14,
		StochPeriod:       14,
		SimilarityFloor:   -1,
		TopK:              5,
		MinCorrelation:    0.3,
		MinPatterns:       3,
		Workers:           2,
	}
}

// testPaths builds a Paths tree rooted in a per-test temp directory,
// mirroring the production layout under the executable directory.
func testPaths(t *testing.T) *config.Paths {
	t.Helper()

	paths := config.PathsFrom(t.TempDir())
	require.NoError(t, paths.EnsureDirectories())
	return paths
}

// fixtureInstrument describes one synthetic price history. Closes walk
// a repeating step cycle with a positive net drift so every
// distribution event recovers within a few bars, while the distinct
// cycles keep window features varying across instruments.
type fixtureInstrument struct {
	symbol string
	base   float64
	steps  []float64
	volume int64
}

func fixtureInstruments() []fixtureInstrument {
	return []fixtureInstrument{
		{symbol: "ACME", base: 10.0, steps: []float64{0.4, -0.2, 0.5, -0.1}, volume: 1000},
		{symbol: "BETA", base: 20.0, steps: []float64{0.6, -0.3, 0.2, 0.7, -0.4}, volume: 2500},
		{symbol: "CETA", base: 15.0, steps: []float64{0.3, 0.3, -0.5, 0.8}, volume: 1800},
	}
}

// fixtureStart is the first trading day of every synthetic history.
var fixtureStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

const fixtureBars = 75

// fixtureDate returns the trading day for a bar index. Fixture bars
// sit on consecutive calendar days.
func fixtureDate(index int) time.Time {
	return fixtureStart.AddDate(0, 0, index)
}

// fixtureCloses returns the close path for an instrument.
func fixtureCloses(inst fixtureInstrument) []float64 {
	closes := make([]float64, fixtureBars)
	closes[0] = inst.base
	for i := 1; i < fixtureBars; i++ {
		closes[i] = closes[i-1] + inst.steps[(i-1)%len(inst.steps)]
	}
	return closes
}

func writePriceFixture(t *testing.T, paths *config.Paths, inst fixtureInstrument) {
	t.Helper()

	closes := fixtureCloses(inst)
	var b strings.Builder
	b.WriteString("Date,Open,High,Low,Close,Volume\n")
	for i, c := range closes {
		open := inst.base
		if i > 0 {
			open = closes[i-1]
		}
		high := open
		if c > high {
			high = c
		}
		low := open
		if c < low {
			low = c
		}
		high += 0.2
		low -= 0.2
		volume := inst.volume + int64(i*13%400)
		fmt.Fprintf(&b, "%s,%.2f,%.2f,%.2f,%.2f,%d\n",
			fixtureDate(i).Format("2006-01-02"), open, high, low, c, volume)
	}
	writeFixtureFile(t, filepath.Join(paths.PricesDir, inst.symbol+"_daily.csv"), b.String())
}

// writeCorruptPriceFixture writes a short history where one bar has
// high below low, which the quality checker flags as an error.
func writeCorruptPriceFixture(t *testing.T, paths *config.Paths, symbol string) {
	t.Helper()

	var b strings.Builder
	b.WriteString("Date,Open,High,Low,Close,Volume\n")
	for i := 0; i < 5; i++ {
		high, low := 10.5, 9.5
		if i == 2 {
			high, low = 9.0, 11.0
		}
		fmt.Fprintf(&b, "%s,10.00,%.2f,%.2f,10.00,500\n",
			fixtureDate(i).Format("2006-01-02"), high, low)
	}
	writeFixtureFile(t, filepath.Join(paths.PricesDir, symbol+"_daily.csv"), b.String())
}

// fixtureEvents holds the distribution schedule shared by the service
// tests: one event per instrument at bar 60 plus a second ACME event
// at bar 50, giving four pattern records.
type fixtureEvent struct {
	instrument string
	barIndex   int
	amount     float64
}

func fixtureEvents() []fixtureEvent {
	return []fixtureEvent{
		{instrument: "ACME", barIndex: 50, amount: 0.25},
		{instrument: "ACME", barIndex: 60, amount: 0.30},
		{instrument: "BETA", barIndex: 60, amount: 0.50},
		{instrument: "CETA", barIndex: 60, amount: 0.40},
	}
}

func writeEventsFixture(t *testing.T, paths *config.Paths, events []fixtureEvent) {
	t.Helper()

	var b strings.Builder
	b.WriteString("instrument,ex_date,amount\n")
	for _, ev := range events {
		fmt.Fprintf(&b, "%s,%s,%.2f\n",
			ev.instrument, fixtureDate(ev.barIndex).Format("2006-01-02"), ev.amount)
	}
	writeFixtureFile(t, paths.EventsFile, b.String())
}

func writeFixtureFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// writeFixtureUniverse populates the price directory and events file
// with three healthy instruments and one corrupt one (ZETA).
func writeFixtureUniverse(t *testing.T, paths *config.Paths) {
	t.Helper()

	for _, inst := range fixtureInstruments() {
		writePriceFixture(t, paths, inst)
	}
	writeCorruptPriceFixture(t, paths, "ZETA")
	writeEventsFixture(t, paths, append(fixtureEvents(),
		fixtureEvent{instrument: "ZETA", barIndex: 1, amount: 0.10}))
}

// newTestService builds an AnalyticsService over a freshly written
// fixture universe. The universe is not loaded; tests call
// LoadUniverse themselves so the unloaded path stays testable.
func newTestService(t *testing.T, hub WebSocketHub) (*AnalyticsService, *config.Paths) {
	t.Helper()

	paths := testPaths(t)
	writeFixtureUniverse(t, paths)

	svc, err := NewAnalyticsService(testAnalyticsConfig(), paths, hub, nil, newTestLogger())
	require.NoError(t, err)
	return svc, paths
}
