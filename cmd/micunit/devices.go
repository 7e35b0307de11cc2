package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/lisuiheng/micunit/audio"
	"github.com/lisuiheng/micunit/core"
	"github.com/lisuiheng/micunit/logger"
	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List capture devices of the selected backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		var devices []audio.DeviceDescription
		switch cfg.Audio.Backend {
		case core.BackendPortAudio:
			devices, err = audio.PortAudioCaptureDevices()
		default:
			devices, err = audio.MalgoCaptureDevices(logger.Logger())
		}
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "DEFAULT\tNAME\tSAMPLE RATE")
		for _, d := range devices {
			def := ""
			if d.Default {
				def = "*"
			}
			rate := "-"
			if d.SampleRate > 0 {
				rate = fmt.Sprintf("%.0f", d.SampleRate)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", def, d.Name, rate)
		}
		return w.Flush()
	},
}
