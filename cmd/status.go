package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/ampcontrol/internal/config"
	"github.com/audiolibrelab/ampcontrol/internal/sequencer"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current daemon status",
	Long: `Read the status file the daemon keeps updated and print a summary.
The file disappears when the daemon is stopped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		data, err := os.ReadFile(cfg.StatusFile)
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("no status file at %s (is the daemon running?)", cfg.StatusFile)
			}
			return fmt.Errorf("error reading status file: %w", err)
		}

		if statusJSON {
			fmt.Print(string(data))
			return nil
		}

		var snap sequencer.Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return fmt.Errorf("error parsing status file: %w", err)
		}
		printSnapshot(&snap)
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print the raw status JSON")
}

func printSnapshot(snap *sequencer.Snapshot) {
	sec := int64(snap.Timestamp)
	nsec := int64((snap.Timestamp - float64(sec)) * float64(time.Second))
	fmt.Printf("Status as of %s\n", time.Unix(sec, nsec).Format(time.RFC1123))
	fmt.Printf("Power supply: %s\n", snap.PowerSupply.State)
	fmt.Printf("Error LED:    %s\n", snap.ErrorLED.State)
	if snap.Fault {
		fmt.Println("FAULT: the emergency shutdown path has run")
	}

	keys := make([]string, 0, len(snap.Soundcards))
	for key := range snap.Soundcards {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		card := snap.Soundcards[key]
		fmt.Printf("\n%s (id %d): %s\n", card.Name, card.ID, card.State)
		if card.Temperature != nil {
			fmt.Printf("  temperature: %.1f°C\n", *card.Temperature)
		}
		if len(card.ActivePlayers) > 0 {
			fmt.Printf("  active players: %v\n", card.ActivePlayers)
		}
		if card.LastActive != nil {
			fmt.Printf("  last active: %s\n", card.LastActive.Format(time.RFC1123))
		}
	}
}
