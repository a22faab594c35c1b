package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/ampcontrol/internal/alsa"
	"github.com/audiolibrelab/ampcontrol/internal/config"
)

var cardsCmd = &cobra.Command{
	Use:   "cards",
	Short: "List detected sound cards and match them against the config",
	Long: `List the sound cards the kernel has registered and report which of
the configured amplifier cards are missing. A missing card usually means
an unplugged USB cable.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		lister := alsa.NewLister("")
		cards, err := lister.List()
		if err != nil {
			return err
		}

		fmt.Println("Detected sound cards:")
		for _, card := range cards {
			fmt.Printf("  %d [%s] %s\n", card.Number, card.ID, card.Name)
		}

		missing := 0
		for _, sc := range cfg.Soundcards {
			if sc.AlsaCard == "" {
				continue
			}
			_, ok, err := lister.Find(sc.AlsaCard)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Printf("MISSING: %s (alsa_card %s)\n", sc.Name, sc.AlsaCard)
				missing++
			}
		}
		if missing > 0 {
			return fmt.Errorf("%d configured soundcard(s) not detected", missing)
		}
		fmt.Println("All configured soundcards detected.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cardsCmd)
}
