package cli

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/scalewatch/scalewatch/internal/domain"
)

func init() {
	clientFlags(historyCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of recent records")
	rootCmd.AddCommand(historyCmd)
}

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history DEVICE",
	Short: "Show recent records for a device",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	var resp struct {
		Records []domain.UplinkRecord `json:"records"`
	}
	path := fmt.Sprintf("/api/devices/%s/history?limit=%d", args[0], historyLimit)
	if err := getJSON(path, &resp); err != nil {
		return err
	}

	if len(resp.Records) == 0 {
		fmt.Printf("No recent records for %s.\n", args[0])
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tWEIGHTS\tBATTERY\tTEMP\tRSSI\tSNR")
	for _, r := range resp.Records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ReceivedAt.Format("15:04:05"),
			formatWeights(r.Weights),
			formatOptional(r.Battery, ""),
			formatOptional(r.Temperature, ""),
			formatOptional(r.RSSI, ""),
			formatOptional(r.SNR, ""),
		)
	}
	return w.Flush()
}

func formatWeights(weights []float64) string {
	if len(weights) == 0 {
		return "-"
	}
	parts := make([]string, len(weights))
	for i, w := range weights {
		parts[i] = fmt.Sprintf("%g", w)
	}
	return strings.Join(parts, " ")
}
