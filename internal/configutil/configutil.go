// Package configutil resolves settings where an explicitly set cobra flag wins
// over the viper value (config file, THREADBOT_* env, default).
package configutil

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func flagChanged(cmd *cobra.Command, name string) bool {
	if cmd == nil || name == "" {
		return false
	}
	f := cmd.Flags().Lookup(name)
	return f != nil && f.Changed
}

func FlagOrViperString(cmd *cobra.Command, flagName, viperKey string) string {
	if flagChanged(cmd, flagName) {
		v, _ := cmd.Flags().GetString(flagName)
		return v
	}
	return viper.GetString(viperKey)
}

func FlagOrViperBool(cmd *cobra.Command, flagName, viperKey string) bool {
	if flagChanged(cmd, flagName) {
		v, _ := cmd.Flags().GetBool(flagName)
		return v
	}
	if viperKey == "" {
		if cmd != nil {
			v, _ := cmd.Flags().GetBool(flagName)
			return v
		}
		return false
	}
	return viper.GetBool(viperKey)
}

func FlagOrViperInt(cmd *cobra.Command, flagName, viperKey string) int {
	if flagChanged(cmd, flagName) {
		v, _ := cmd.Flags().GetInt(flagName)
		return v
	}
	return viper.GetInt(viperKey)
}

func FlagOrViperDuration(cmd *cobra.Command, flagName, viperKey string) time.Duration {
	if flagChanged(cmd, flagName) {
		v, _ := cmd.Flags().GetDuration(flagName)
		return v
	}
	return viper.GetDuration(viperKey)
}

func FlagOrViperStringArray(cmd *cobra.Command, flagName, viperKey string) []string {
	if flagChanged(cmd, flagName) {
		v, _ := cmd.Flags().GetStringArray(flagName)
		return v
	}
	return viper.GetStringSlice(viperKey)
}
