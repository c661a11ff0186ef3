package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scalewatch/scalewatch/internal/domain"
)

func init() {
	clientFlags(tareCmd)
	tareCmd.Flags().IntVar(&tareFPort, "fport", domain.DefaultFPort, "Downlink f_port")
	tareCmd.Flags().StringVar(&tarePayload, "payload", domain.DefaultPayloadHex, "Payload as hex")
	tareCmd.Flags().BoolVar(&tareConfirmed, "confirmed", false, "Request a confirmed downlink")
	rootCmd.AddCommand(tareCmd)
}

var (
	tareFPort     int
	tarePayload   string
	tareConfirmed bool
)

var tareCmd = &cobra.Command{
	Use:   "tare DEVICE",
	Short: "Send a downlink command to a device",
	Long: `Queue a downlink for the device on the Things Stack. With the
defaults this is the tare command (f_port 10, payload 00).`,
	Args: cobra.ExactArgs(1),
	RunE: runTare,
}

func runTare(cmd *cobra.Command, args []string) error {
	req := domain.DownlinkRequest{
		DeviceID:   args[0],
		FPort:      tareFPort,
		PayloadHex: tarePayload,
		Confirmed:  tareConfirmed,
	}

	var resp struct {
		OK bool   `json:"ok"`
		ID string `json:"id"`
	}
	if err := postJSON("/api/tare", req, &resp); err != nil {
		return err
	}

	fmt.Printf("Downlink queued for %s (audit id %s)\n", args[0], resp.ID)
	return nil
}
