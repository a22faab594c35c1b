// Package therm reads DS18B20 1-Wire temperature sensors through the
// kernel's w1 sysfs interface.
package therm

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Reader reads sensors below a w1 sysfs root (normally /sys/bus/w1/devices).
type Reader struct {
	root string
}

// New returns a reader for the given sysfs root. An empty root selects the
// kernel default.
func New(root string) *Reader {
	if root == "" {
		root = "/sys/bus/w1/devices"
	}
	return &Reader{root: root}
}

// Read returns the temperature of one sensor in °C.
//
// A w1_slave file looks like:
//
//	72 01 4b 46 7f ff 0e 10 57 : crc=57 YES
//	72 01 4b 46 7f ff 0e 10 57 t=23125
//
// The first line must end in YES (CRC ok), the second carries millidegrees
// after "t=".
func (r *Reader) Read(id string) (float64, error) {
	path := filepath.Join(r.root, id, "w1_slave")
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("error reading sensor %s: %w", id, err)
	}

	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) < 2 {
		return 0, fmt.Errorf("sensor %s: unexpected w1_slave format", id)
	}
	if !strings.HasSuffix(strings.TrimSpace(lines[0]), "YES") {
		return 0, fmt.Errorf("sensor %s: CRC check failed", id)
	}

	_, value, ok := strings.Cut(lines[1], "t=")
	if !ok {
		return 0, fmt.Errorf("sensor %s: no temperature in w1_slave", id)
	}
	milli, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("sensor %s: bad temperature value: %w", id, err)
	}
	return float64(milli) / 1000.0, nil
}

// Max reads all given sensors and returns the highest temperature. Sensors
// that fail to read are skipped; an error is returned only when none could
// be read.
func (r *Reader) Max(ids []string) (float64, error) {
	var (
		max   float64
		found bool
		errs  []string
	)
	for _, id := range ids {
		temp, err := r.Read(id)
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		if !found || temp > max {
			max = temp
			found = true
		}
	}
	if !found {
		return 0, fmt.Errorf("no sensor readable: %s", strings.Join(errs, "; "))
	}
	return max, nil
}
