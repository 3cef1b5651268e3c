package cmd

import (
	"fmt"
	"time"

	"sandplane/pkg/api"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var statusCmd = &cobra.Command{
	Use:   "status [execution_id]",
	Short: "Get status of an execution",
	Long:  `Retrieve detailed status information for an execution, including its current state, provider, retry lineage, and timestamps.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewClient(viper.GetString("url"))

		execution, err := client.GetExecution(args[0])
		if err != nil {
			cmd.Printf("Failed to fetch execution: %v\n", err)
			return
		}

		printStatus(cmd, *execution)
	},
}

func printStatus(cmd *cobra.Command, execution api.ExecutionResponse) {
	icon := statusIcon(execution.Status)
	cmd.Printf("%s %sExecution Details%s\n", icon, colorBold, colorReset)
	cmd.Println("──────────────────────────────")

	cmd.Printf("%sID:%s          %s\n", colorDim, colorReset, execution.ID)
	cmd.Printf("%sTask:%s        %s\n", colorDim, colorReset, execution.TaskID)
	cmd.Printf("%sProvider:%s    %s\n", colorDim, colorReset, execution.ProviderID)
	cmd.Printf("%sStatus:%s      %s\n", colorDim, colorReset, colorizeStatus(execution.Status))
	cmd.Printf("%sAttempt:%s     %d\n", colorDim, colorReset, execution.RetryAttempt)

	if execution.RetriedFrom != nil {
		cmd.Printf("%sRetried From:%s %s\n", colorDim, colorReset, *execution.RetriedFrom)
	}
	if execution.ContainerID != "" {
		cmd.Printf("%sContainer:%s   %s\n", colorDim, colorReset, execution.ContainerID)
	}
	if execution.Error != nil {
		cmd.Printf("%sError:%s       %s%s%s\n", colorDim, colorReset, colorRed, *execution.Error, colorReset)
	}

	cmd.Printf("%sStarted:%s     %s\n", colorDim, colorReset, formatTime(execution.StartedAt))

	if execution.StartedAt != nil && execution.EndedAt != nil {
		duration := execution.EndedAt.Sub(*execution.StartedAt)
		cmd.Printf("%sFinished:%s    %s %s(%s)%s\n", colorDim, colorReset,
			formatTime(execution.EndedAt), colorCyan, duration.Round(time.Second), colorReset)
	} else {
		cmd.Printf("%sFinished:%s    %s\n", colorDim, colorReset, formatTime(execution.EndedAt))
	}
}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

func statusIcon(status string) string {
	switch status {
	case "completed":
		return colorGreen + "✓" + colorReset
	case "failed":
		return colorRed + "✗" + colorReset
	case "running", "starting", "stopping":
		return colorYellow + "⏳" + colorReset
	case "pending":
		return colorCyan + "◯" + colorReset
	default:
		return "•"
	}
}

func colorizeStatus(status string) string {
	switch status {
	case "completed":
		return colorGreen + status + colorReset
	case "failed":
		return colorRed + status + colorReset
	case "running", "starting", "stopping":
		return colorYellow + status + colorReset
	default:
		return status
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return fmt.Sprintf("%s (%s ago)", t.Format(time.RFC3339), time.Since(*t).Round(time.Second))
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
