package cmd

import (
	"sandplane/pkg/api"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	retryTaskID   string
	retryAgentID  string
	retryModel    string
	retryProvider string
)

var retryCmd = &cobra.Command{
	Use:   "retry [execution_id]",
	Short: "Retry a terminal execution",
	Long: `Create a new execution linked to a stopped, completed, or failed parent.
The parent's container is never restarted; the retry gets a fresh one.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if retryTaskID == "" {
			cmd.Println("A task id is required. Set it with --task")
			return
		}

		client := NewClient(viper.GetString("url"))

		resp, err := client.RetryExecution(args[0], api.RetryExecutionRequest{
			TaskID:   retryTaskID,
			AgentID:  retryAgentID,
			Model:    retryModel,
			Provider: retryProvider,
		})
		if err != nil {
			cmd.Printf("Failed to retry execution: %v\n", err)
			return
		}

		cmd.Printf("Created execution %s (attempt %d)\n", resp.ExecutionID, resp.RetryAttempt)
	},
}

func init() {
	rootCmd.AddCommand(retryCmd)
	retryCmd.Flags().StringVar(&retryTaskID, "task", "", "Task ID to rebuild the container config from")
	retryCmd.Flags().StringVar(&retryAgentID, "agent", "", "Agent ID override")
	retryCmd.Flags().StringVar(&retryModel, "model", "", "Model override")
	retryCmd.Flags().StringVar(&retryProvider, "provider", "", "Provider override (defaults to the parent's provider)")
}
