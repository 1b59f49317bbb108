// Package sim is the simulation-side stand-in the bridge serves. It tracks
// whether the environment is running and the latest vehicle pose, and
// announces lifecycle changes through a lifecycle.Publisher.
package sim

import (
	"sync"
	"time"

	"github.com/banshee-data/simbridge/internal/bridge"
	"github.com/banshee-data/simbridge/internal/lifecycle"
	"github.com/banshee-data/simbridge/internal/monitoring"
	"github.com/banshee-data/simbridge/internal/timeutil"
	"github.com/banshee-data/simbridge/internal/wire"
)

// Controller owns the environment state.
type Controller struct {
	events *lifecycle.Publisher
	clock  timeutil.Clock

	mu            sync.Mutex
	initialized   bool
	running       bool
	runs          int
	pose          wire.TelemetryPose
	poseAt        time.Time
	poseCount     uint64
	environmentAt time.Time
}

// NewController creates a controller publishing on events. A nil clock
// uses the wall clock.
func NewController(events *lifecycle.Publisher, clock timeutil.Clock) *Controller {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Controller{events: events, clock: clock}
}

// Events returns the publisher lifecycle events go to.
func (c *Controller) Events() *lifecycle.Publisher {
	return c.events
}

// Start marks the simulation initialized. Only the first call publishes.
func (c *Controller) Start() {
	c.mu.Lock()
	if c.initialized {
		c.mu.Unlock()
		return
	}
	c.initialized = true
	c.mu.Unlock()

	monitoring.Opsf("simulation initialized")
	c.events.Initialized()
}

// StartEnvironment starts the environment if it is not already running.
func (c *Controller) StartEnvironment() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		monitoring.Diagf("start requested while environment already running")
		return
	}
	c.running = true
	c.runs++
	c.environmentAt = c.clock.Now()
	c.mu.Unlock()

	monitoring.Opsf("environment started")
	c.events.Started()
}

// StopEnvironment stops the environment if it is running.
func (c *Controller) StopEnvironment() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		monitoring.Diagf("stop requested while environment not running")
		return
	}
	c.running = false
	c.environmentAt = c.clock.Now()
	c.mu.Unlock()

	monitoring.Opsf("environment stopped")
	c.events.Stopped()
}

// UpdatePose stores the latest vehicle pose.
func (c *Controller) UpdatePose(p wire.TelemetryPose) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pose = p
	c.poseAt = c.clock.Now()
	c.poseCount++
}

// Handlers wires the controller to bridge callbacks.
func (c *Controller) Handlers() bridge.Handlers {
	return bridge.Handlers{
		OnStartEnvironment: c.StartEnvironment,
		OnStopEnvironment:  c.StopEnvironment,
		OnPoseUpdated:      c.UpdatePose,
	}
}

// Snapshot is a copy of the controller state.
type Snapshot struct {
	Initialized bool               `json:"initialized"`
	Running     bool               `json:"running"`
	Runs        int                `json:"runs"`
	ChangedAt   time.Time          `json:"changed_at"`
	Pose        wire.TelemetryPose `json:"pose"`
	PoseAt      time.Time          `json:"pose_at"`
	PoseCount   uint64             `json:"pose_count"`
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Initialized: c.initialized,
		Running:     c.running,
		Runs:        c.runs,
		ChangedAt:   c.environmentAt,
		Pose:        c.pose,
		PoseAt:      c.poseAt,
		PoseCount:   c.poseCount,
	}
}
