package sequencer

import (
	"sort"
	"strconv"
	"time"
)

// Channel states as they appear in the status snapshot.
const (
	StateSuspended     = "suspended"
	StateActiveMuted   = "active-muted"
	StateActivePlayers = "active-with-players"
)

// ChannelStatus is the read-only view of one channel.
type ChannelStatus struct {
	ID            int        `json:"id"`
	Name          string     `json:"name"`
	State         string     `json:"state"`
	Active        bool       `json:"active"`
	PlayerCount   int        `json:"player_count"`
	ActivePlayers []string   `json:"active_players"`
	LastActive    *time.Time `json:"last_active,omitempty"`
	Temperature   *float64   `json:"temperature,omitempty"`
}

// IndicatorStatus is the on/off view of a single line (supply, error LED).
type IndicatorStatus struct {
	State  string `json:"state"`
	Active bool   `json:"active"`
}

// Snapshot is the full status view handed to the snapshot writer. The
// timestamp is in float seconds since the epoch, which is what the telegraf
// ingestion side expects.
type Snapshot struct {
	Timestamp   float64                  `json:"timestamp"`
	PowerSupply IndicatorStatus          `json:"power_supply"`
	ErrorLED    IndicatorStatus          `json:"error_led"`
	Soundcards  map[string]ChannelStatus `json:"soundcards"`
	Fault       bool                     `json:"fault"`
}

// Snapshot assembles the current status of every controller. It takes each
// channel's lock in turn but holds no lock across channels.
func (c *Coordinator) Snapshot() Snapshot {
	snap := Snapshot{
		Timestamp:  float64(time.Now().UnixNano()) / float64(time.Second),
		Soundcards: make(map[string]ChannelStatus, len(c.channels)),
		Fault:      c.fault.Load(),
	}

	if c.supply != nil && c.supply.IsActive() {
		snap.PowerSupply = IndicatorStatus{State: "on", Active: true}
	} else {
		snap.PowerSupply = IndicatorStatus{State: "off", Active: false}
	}

	if snap.Fault {
		snap.ErrorLED = IndicatorStatus{State: "on", Active: true}
	} else {
		snap.ErrorLED = IndicatorStatus{State: "off", Active: false}
	}

	ids := make([]int, 0, len(c.channels))
	for id := range c.channels {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		snap.Soundcards[strconv.Itoa(id)] = c.channels[id].status()
	}

	return snap
}
