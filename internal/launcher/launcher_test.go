package launcher

import (
	"reflect"
	"testing"

	"github.com/audiolibrelab/ampcontrol/internal/config"
)

func launcherConfig() *config.Config {
	return &config.Config{
		Squeezelite: config.SqueezeliteConfig{
			Binary:          "/usr/bin/squeezelite",
			CallbackCommand: "/usr/local/bin/ampcontrol notify",
			LMSServer:       "lms.local",
			CommonOptions:   []string{"-a 80:4::", "-C 5"},
		},
	}
}

func TestBuildArgs(t *testing.T) {
	l := New(launcherConfig())
	player := config.PlayerConfig{
		Name:        "wohnzimmer",
		Description: "Wohnzimmer Links",
		AlsaDevice:  "hw:CARD=Amp1,DEV=0",
		MacAddress:  "02:00:00:00:00:01",
	}

	want := []string{
		"-n", "Wohnzimmer Links",
		"-o", "hw:CARD=Amp1,DEV=0",
		"-S", "/usr/local/bin/ampcontrol notify wohnzimmer",
		"-m", "02:00:00:00:00:01",
		"-s", "lms.local",
		"-a", "80:4::",
		"-C", "5",
	}
	if got := l.buildArgs(player); !reflect.DeepEqual(got, want) {
		t.Errorf("buildArgs() = %v\nwant %v", got, want)
	}
}

func TestBuildArgsOptionalFields(t *testing.T) {
	cfg := launcherConfig()
	cfg.Squeezelite.LMSServer = ""
	cfg.Squeezelite.CommonOptions = nil
	l := New(cfg)

	player := config.PlayerConfig{
		Name:        "kueche",
		Description: "Küche",
		AlsaDevice:  "hw:CARD=Amp2,DEV=0",
	}

	want := []string{
		"-n", "Küche",
		"-o", "hw:CARD=Amp2,DEV=0",
		"-S", "/usr/local/bin/ampcontrol notify kueche",
	}
	if got := l.buildArgs(player); !reflect.DeepEqual(got, want) {
		t.Errorf("buildArgs() = %v\nwant %v", got, want)
	}
}

func TestStartAllReportsMissingBinary(t *testing.T) {
	cfg := launcherConfig()
	cfg.Squeezelite.Binary = "/nonexistent/squeezelite"
	cfg.Soundcards = []config.SoundcardConfig{{
		ID:   1,
		Name: "card1",
		Players: []config.PlayerConfig{
			{Name: "wohnzimmer", Description: "Wohnzimmer", AlsaDevice: "hw:0"},
		},
	}}

	if err := New(cfg).StartAll(); err == nil {
		t.Error("expected error for missing binary")
	}
}
