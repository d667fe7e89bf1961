// Package metrics collects connection, message and latency statistics for a
// realtime client.
package metrics

import (
	"maps"
	"slices"
	"sync"
	"time"
)

// ResponseWindow is the number of response time samples kept for the average.
const ResponseWindow = 100

type Direction int

const (
	Sent Direction = iota
	Received
)

type Collector struct {
	mu  sync.Mutex
	now func() time.Time

	start               time.Time
	connectionAttempts  int
	connectionSuccesses int
	connectionFailures  int
	messagesSent        int
	messagesReceived    int
	audioChunks         int
	responseTimes       []time.Duration
	sessionDurations    []time.Duration
	errors              map[string]int
}

func New() *Collector {
	return newWithClock(time.Now)
}

func newWithClock(now func() time.Time) *Collector {
	c := &Collector{now: now}
	c.Reset()
	return c
}

func (c *Collector) RecordConnectionAttempt(success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.connectionAttempts++
	if success {
		c.connectionSuccesses++
	} else {
		c.connectionFailures++
	}
}

func (c *Collector) RecordMessage(d Direction) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch d {
	case Sent:
		c.messagesSent++
	case Received:
		c.messagesReceived++
	}
}

func (c *Collector) RecordAudioChunk() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.audioChunks++
}

// RecordResponseTime adds a sample to the sliding window.
func (c *Collector) RecordResponseTime(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.responseTimes = append(c.responseTimes, d)
	if n := len(c.responseTimes); n > ResponseWindow {
		c.responseTimes = slices.Clone(c.responseTimes[n-ResponseWindow:])
	}
}

func (c *Collector) RecordSessionDuration(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionDurations = append(c.sessionDurations, d)
}

func (c *Collector) RecordError(errorType string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors[errorType]++
}

// Summary is a point in time view of the collected metrics.
type Summary struct {
	Uptime                 time.Duration
	ConnectionAttempts     int
	ConnectionSuccesses    int
	ConnectionFailures     int
	ConnectionSuccessRate  float64
	MessagesSent           int
	MessagesReceived       int
	MessagesPerSecond      float64
	AudioChunksProcessed   int
	AverageResponseTime    time.Duration
	ResponseTimes          []time.Duration
	SessionDurations       []time.Duration
	AverageSessionDuration time.Duration
	Errors                 map[string]int
}

func (c *Collector) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	uptime := c.now().Sub(c.start)

	return Summary{
		Uptime:                 uptime,
		ConnectionAttempts:     c.connectionAttempts,
		ConnectionSuccesses:    c.connectionSuccesses,
		ConnectionFailures:     c.connectionFailures,
		ConnectionSuccessRate:  float64(c.connectionSuccesses) / float64(max(c.connectionAttempts, 1)),
		MessagesSent:           c.messagesSent,
		MessagesReceived:       c.messagesReceived,
		MessagesPerSecond:      float64(c.messagesSent) / max(uptime.Seconds(), 1),
		AudioChunksProcessed:   c.audioChunks,
		AverageResponseTime:    average(c.responseTimes),
		ResponseTimes:          slices.Clone(c.responseTimes),
		SessionDurations:       slices.Clone(c.sessionDurations),
		AverageSessionDuration: average(c.sessionDurations),
		Errors:                 maps.Clone(c.errors),
	}
}

// Reset zeroes all metrics and restarts the uptime clock.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.start = c.now()
	c.connectionAttempts = 0
	c.connectionSuccesses = 0
	c.connectionFailures = 0
	c.messagesSent = 0
	c.messagesReceived = 0
	c.audioChunks = 0
	c.responseTimes = nil
	c.sessionDurations = nil
	c.errors = make(map[string]int)
}

func average(ds []time.Duration) time.Duration {
	if len(ds) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range ds {
		sum += d
	}
	return sum / time.Duration(len(ds))
}
