package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	clientFlags(exportCmd)
	exportCmd.Flags().StringVarP(&exportOut, "output", "o", "", "Write to file instead of stdout")
	rootCmd.AddCommand(exportCmd)
}

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export DEVICE",
	Short: "Export a device's full durable record log (CSV)",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

func runExport(cmd *cobra.Command, args []string) error {
	data, err := getRaw(fmt.Sprintf("/api/devices/%s/log", args[0]))
	if err != nil {
		return err
	}

	if exportOut == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(exportOut, data, 0600); err != nil {
		return err
	}
	fmt.Printf("Wrote %d bytes to %s\n", len(data), exportOut)
	return nil
}
