package cmd

import (
	"github.com/BioHazard786/doorcall/internal/metrics"
	"github.com/BioHazard786/doorcall/internal/rendezvous"
	"github.com/spf13/cobra"
)

var flagAddr string

var rendezvousCmd = &cobra.Command{
	Use:   "rendezvous",
	Short: "Run the rendezvous server",
	Long: `Run the signaling server that pairs a doorcall device with a browser.

Rooms hold two participants. The server relays offers, answers and hang-ups between them,
and exposes /health and /metrics next to the /ws endpoint.

Examples:
  doorcall rendezvous --addr :8080`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return rendezvous.ListenAndServe(cmd.Context(), flagAddr, metrics.New())
	},
}

func init() {
	rendezvousCmd.Flags().StringVarP(&flagAddr, "addr", "a", ":8080", "Listen address")
	rootCmd.AddCommand(rendezvousCmd)
}
