// Package status periodically serializes the sequencer's snapshot to a
// JSON file. A telegraf exec input picks the file up from there; the daemon
// itself never talks to the metrics pipeline.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/audiolibrelab/ampcontrol/internal/sequencer"
)

// Source provides the current snapshot. The coordinator implements it.
type Source interface {
	Snapshot() sequencer.Snapshot
}

// TempReader reads one DS18B20 sensor by id. Optional; nil disables the
// per-card temperature fields.
type TempReader interface {
	Read(id string) (float64, error)
}

// Writer dumps a snapshot to disk at a fixed interval.
type Writer struct {
	path     string
	interval time.Duration
	source   Source
	temps    TempReader
	// sensors maps soundcard id -> sensor id for cards that have one.
	sensors map[int]string
}

// NewWriter builds a snapshot writer. sensors may be nil or sparse.
func NewWriter(path string, interval time.Duration, source Source, temps TempReader, sensors map[int]string) *Writer {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Writer{
		path:     path,
		interval: interval,
		source:   source,
		temps:    temps,
		sensors:  sensors,
	}
}

// Run writes snapshots until the context is cancelled, then removes the
// status file so stale data never outlives the daemon.
func (w *Writer) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.writeOnce()
	for {
		select {
		case <-ctx.Done():
			if err := os.Remove(w.path); err != nil && !os.IsNotExist(err) {
				slog.Warn("error removing status file", "error", err)
			}
			return
		case <-ticker.C:
			w.writeOnce()
		}
	}
}

func (w *Writer) writeOnce() {
	if err := w.WriteSnapshot(); err != nil {
		slog.Error("error writing status file", "path", w.path, "error", err)
	}
}

// WriteSnapshot collects one snapshot and writes it atomically (temp file
// plus rename), so readers never see a half-written file.
func (w *Writer) WriteSnapshot() error {
	snap := w.source.Snapshot()

	if w.temps != nil {
		for key, card := range snap.Soundcards {
			sensor, ok := w.sensors[card.ID]
			if !ok {
				continue
			}
			temp, err := w.temps.Read(sensor)
			if err != nil {
				slog.Warn("error reading soundcard temperature",
					"soundcard", card.Name, "sensor", sensor, "error", err)
				continue
			}
			card.Temperature = &temp
			snap.Soundcards[key] = card
		}
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshaling snapshot: %w", err)
	}

	tmp := w.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("error writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, w.path); err != nil {
		return fmt.Errorf("error renaming status file: %w", err)
	}
	return nil
}
