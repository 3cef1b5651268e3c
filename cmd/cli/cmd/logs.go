package cmd

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var follow bool

var logsCmd = &cobra.Command{
	Use:   "logs [execution_id]",
	Short: "Fetch or follow logs for an execution",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		executionID := args[0]

		// Trap Ctrl+C to exit gracefully
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

		go func() {
			<-sigChan
			os.Exit(0)
		}()

		client := NewClient(viper.GetString("url"))
		offset := 0

		for {
			resp, err := client.GetLogs(executionID, offset)
			if err != nil {
				cmd.Printf("Error fetching logs: %v\n", err)
				if !follow {
					break
				}
				time.Sleep(2 * time.Second) // Retry backoff
				continue
			}

			for _, entry := range resp.Logs {
				cmd.Printf("%s [%s] %s\n", entry.CreatedAt.Format(time.RFC3339), entry.Source, entry.Message)
			}
			offset += len(resp.Logs)

			if !follow {
				if int64(offset) >= resp.Total {
					break
				}
				// More pages to fetch, loop immediately
				continue
			}

			// If following, wait before polling again
			time.Sleep(1 * time.Second)
		}
	},
}

func init() {
	rootCmd.AddCommand(logsCmd)
	logsCmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output")
}
