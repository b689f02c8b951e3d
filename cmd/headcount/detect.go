package main

import (
	"context"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/openfluke/headcount/device"
	"github.com/openfluke/headcount/xoshiro"
)

type report struct {
	CPU struct {
		Arch    string `yaml:"arch"`
		Threads int    `yaml:"threads"`
		Workers int    `yaml:"workers"`
		Lanes   int    `yaml:"lanes"`
		Target  string `yaml:"target"`
	} `yaml:"cpu"`
	Device      *device.Info `yaml:"device,omitempty"`
	DeviceError string       `yaml:"device_error,omitempty"`
}

func newDetectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "detect",
		Short: "Report the CPU and device capabilities the engine would use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := a.dispatcher()
			if err != nil {
				return err
			}

			var r report
			lanes, target := xoshiro.DetectLanes()
			r.CPU.Arch = runtime.GOARCH
			r.CPU.Threads = runtime.NumCPU()
			r.CPU.Workers = d.CPU().Workers()
			r.CPU.Lanes = d.CPU().Lanes()
			r.CPU.Target = string(target)
			if lanes != r.CPU.Lanes {
				r.CPU.Target += fmt.Sprintf(" (detected %d lanes, configured %d)", lanes, r.CPU.Lanes)
			}

			info, err := device.Detect(context.Background(), d.Config().Device)
			if err != nil {
				r.DeviceError = err.Error()
			} else {
				r.Device = &info
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(r)
		},
	}
}
