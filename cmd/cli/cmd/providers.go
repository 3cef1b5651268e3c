package cmd

import (
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List the providers in the catalog",
	Run: func(cmd *cobra.Command, args []string) {
		client := NewClient(viper.GetString("url"))

		providers, err := client.ListProviders()
		if err != nil {
			cmd.Printf("Failed to list providers: %v\n", err)
			return
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		defer w.Flush()

		w.Write([]byte("ID\tNAME\tTYPE\tAVAILABLE\tGPU\tAUTH\n"))
		for _, p := range providers {
			available := "no"
			if p.Available {
				available = "yes"
			}
			gpu := "no"
			if p.GPU {
				gpu = "yes"
			}
			auth := "no"
			if p.RequiresAuth {
				auth = "yes"
			}
			w.Write([]byte(p.ID + "\t" + p.Name + "\t" + p.Type + "\t" + available + "\t" + gpu + "\t" + auth + "\n"))
		}
	},
}

func init() {
	rootCmd.AddCommand(providersCmd)
}
