package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nerrad567/flowlab-core/internal/component"
	"github.com/nerrad567/flowlab-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/flowlab-core/internal/protocol"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <protocol.yaml>",
		Short: "Compile a protocol without running it",
		Long: `Compile a protocol against the configured devices and report every
problem found: unknown devices, negative or out-of-order offsets and
parameters a device rejects. No device is contacted.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, rootOpts)
			if err != nil {
				return err
			}

			registry, err := component.BuildRegistry(cfg.Devices, offlineBus{})
			if err != nil {
				return fmt.Errorf("building devices: %w", err)
			}

			def, err := protocol.Load(args[0])
			if err != nil {
				return err
			}
			compiled, err := protocol.Compile(def, registry)
			if err != nil {
				return err
			}

			printProtocol(cmd.OutOrStdout(), compiled)
			return nil
		},
	}
}

func printProtocol(w io.Writer, p *protocol.Compiled) {
	fmt.Fprintf(w, "protocol %q is valid\n", p.Name)
	fmt.Fprintf(w, "  devices:    %d\n", len(p.Entries))
	fmt.Fprintf(w, "  procedures: %d\n", p.ProcedureCount())
	fmt.Fprintf(w, "  duration:   %s\n", p.InferredDuration())
}

// offlineBus lets bridged devices be built for compilation only.
// Any attempt to reach the broker fails.
type offlineBus struct{}

func (offlineBus) PublishJSON(string, any) error { return mqtt.ErrNotConnected }

func (offlineBus) Subscribe(string, byte, mqtt.MessageHandler) error { return mqtt.ErrNotConnected }

func (offlineBus) Unsubscribe(string) error { return nil }

func (offlineBus) QoS() byte { return 0 }
