package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/scalewatch/scalewatch/internal/domain"
)

func init() {
	clientFlags(devicesCmd)
	rootCmd.AddCommand(devicesCmd)
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List devices seen by the bridge",
	RunE:  runDevices,
}

func runDevices(cmd *cobra.Command, args []string) error {
	var resp struct {
		Devices []domain.DeviceInfo `json:"devices"`
	}
	if err := getJSON("/api/devices", &resp); err != nil {
		return err
	}

	if len(resp.Devices) == 0 {
		fmt.Println("No devices seen yet.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DEVICE\tUPLINKS\tLAST SEEN\tBATTERY\tRSSI")
	for _, d := range resp.Devices {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n",
			d.DeviceID,
			d.UplinkCount,
			d.LastSeen.Format("2006-01-02 15:04:05"),
			formatOptional(d.LastBattery, "V"),
			formatOptional(d.LastRSSI, "dBm"),
		)
	}
	return w.Flush()
}

func formatOptional(v *float64, unit string) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%g%s", *v, unit)
}
