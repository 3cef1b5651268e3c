package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "sandctl",
	Short: "Sandctl is a command line tool for interacting with the sandplane controller",
	Long: `sandctl is the command-line interface for the Sandplane sandboxed execution platform.

Sandplane runs task workloads inside provider-managed containers (a local
Docker daemon or, eventually, remote sandbox services) and records their
status, logs, and artifacts.

Common workflows:

  List providers from the catalog:
    sandctl providers

  Check execution status:
    sandctl status <execution-id>

  Stop a running execution:
    sandctl stop <execution-id> --container <container-id>

  Retry a failed execution:
    sandctl retry <execution-id> --task <task-id>

  Fetch or follow logs:
    sandctl logs <execution-id> --follow

Configuration:
  Set the API endpoint via environment variables or a config file:
    SANDPLANE_URL    API endpoint (default: http://localhost:6161)`,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".sandctl"
		viper.AddConfigPath(home)
		viper.SetConfigName(".sandctl")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "SANDPLANE_VARNAME"
	viper.SetEnvPrefix("SANDPLANE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.sandctl.yaml)")

	rootCmd.PersistentFlags().String("url", "http://localhost:6161", "Sandplane Controller URL")
	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))
}
