package cmd

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/audiolibrelab/wavesync/internal/config"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `View and manage wavesync configuration settings.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
		fmt.Printf("# profile: %s\n", cfg.Profile)
		fmt.Print(string(out))

		origins, _ := cmd.Flags().GetBool("origins")
		if origins && len(cfg.Origins) > 0 {
			fmt.Printf("\n# origins\n")
			for _, key := range cfg.SortedOrigins() {
				fmt.Printf("# %s %s\n", key, getInheritanceIndicator(cfg.Origins[key]))
			}
		}
		return nil
	},
}

var configUseCmd = &cobra.Command{
	Use:   "use [profile]",
	Short: "Set the active configuration profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		// Resolve the profile first so a typo does not leave a broken file behind.
		if _, err := config.LoadWithProfile(configPath(), name); err != nil {
			return err
		}
		if err := config.UpdateActiveConfig(configPath(), name); err != nil {
			return err
		}
		fmt.Printf("Active profile set to %s in %s\n", name, configPath())
		return nil
	},
}

// getInheritanceIndicator returns a formatted indicator for inheritance status
func getInheritanceIndicator(status string) string {
	switch status {
	case config.OriginInherited:
		return "[inherited]"
	case config.OriginProfile:
		return "[profile-specific]"
	default:
		return "[unknown]"
	}
}

func init() {
	configShowCmd.Flags().Bool("origins", false, "show where each value was resolved from")
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configUseCmd)
}
