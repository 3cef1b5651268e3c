package cmd

import (
	"sandplane/pkg/api"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	stopContainerID string
	stopGraceSecs   int
)

var stopCmd = &cobra.Command{
	Use:   "stop [execution_id]",
	Short: "Stop a running execution",
	Long: `Ask the execution's container to shut down cooperatively within the grace
period. The container is force-removed once the period elapses.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewClient(viper.GetString("url"))

		execution, err := client.StopExecution(args[0], api.StopExecutionRequest{
			ContainerID:     stopContainerID,
			GracePeriodSecs: stopGraceSecs,
		})
		if err != nil {
			cmd.Printf("Failed to stop execution: %v\n", err)
			return
		}

		cmd.Printf("Execution %s is %s\n", execution.ID, colorizeStatus(execution.Status))
	},
}

func init() {
	rootCmd.AddCommand(stopCmd)
	stopCmd.Flags().StringVarP(&stopContainerID, "container", "c", "", "Container ID of the execution")
	stopCmd.Flags().IntVar(&stopGraceSecs, "grace", 0, "Grace period in seconds (0 uses the server default)")
}
