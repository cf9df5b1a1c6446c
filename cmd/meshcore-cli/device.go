package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/taoyao-code/meshcore-bridge/internal/companion"
	"github.com/taoyao-code/meshcore-bridge/internal/protocol/buffer"
	"github.com/taoyao-code/meshcore-bridge/internal/protocol/command"
	"github.com/taoyao-code/meshcore-bridge/internal/protocol/event"
	"github.com/taoyao-code/meshcore-bridge/internal/transport"
)

// deviceSummary info 命令输出
type deviceSummary struct {
	Device     *event.DeviceInfo `json:"device,omitempty" yaml:"device,omitempty"`
	Self       *event.SelfInfo   `json:"self" yaml:"self"`
	BatteryMV  uint16            `json:"battery_millivolts" yaml:"battery_millivolts"`
	DeviceTime time.Time         `json:"device_time" yaml:"device_time"`
}

func newInfoCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "info",
		Short:   "Show device, identity, battery and clock",
		Example: `  meshcore-cli --tcp 192.168.1.20:5000 info`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withClient(cmd, func(ctx context.Context, c *companion.Client) error {
				self, err := c.AppStart(ctx)
				if err != nil {
					return err
				}
				out := deviceSummary{Device: c.DeviceInfo(), Self: self}
				if out.BatteryMV, err = c.GetBatteryVoltage(ctx); err != nil {
					return err
				}
				if out.DeviceTime, err = c.GetDeviceTime(ctx); err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), g.output, out)
			})
		},
	}
}

type contactsFlags struct {
	since int64
}

func newContactsCmd(g *globalFlags) *cobra.Command {
	flags := &contactsFlags{}

	cmd := &cobra.Command{
		Use:     "contacts",
		Short:   "List contacts stored on the device",
		Example: `  meshcore-cli --serial /dev/ttyUSB0 contacts --since 1700000000`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var since *uint32
			if flags.since > 0 {
				v := uint32(flags.since)
				since = &v
			}
			return g.withClient(cmd, func(ctx context.Context, c *companion.Client) error {
				if _, err := c.AppStart(ctx); err != nil {
					return err
				}
				contacts, lastMod, err := c.GetContacts(ctx, since)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), g.output, map[string]any{
					"contacts":            contacts,
					"most_recent_lastmod": lastMod,
				})
			})
		},
	}

	cmd.Flags().Int64Var(&flags.since, "since", 0, "Only contacts modified after this epoch second")
	return cmd
}

type sendFlags struct {
	to      string
	channel int
	attempt uint8
	wait    time.Duration
}

// sendResult send 命令输出；Confirmed 仅在 --wait 时填充
type sendResult struct {
	Sent      *event.Sent          `json:"sent" yaml:"sent"`
	Confirmed *event.SendConfirmed `json:"confirmed,omitempty" yaml:"confirmed,omitempty"`
}

func newSendCmd(g *globalFlags) *cobra.Command {
	flags := &sendFlags{}

	cmd := &cobra.Command{
		Use:   "send <text>...",
		Short: "Send a direct or channel text message",
		Example: `  meshcore-cli --tcp 10.0.0.5:5000 send --to 1a2b3c4d5e6f hello there
  meshcore-cli --tcp 10.0.0.5:5000 send --channel 0 --wait 30s ping`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (flags.to == "") == (flags.channel < 0) {
				return errors.New("exactly one of --to or --channel is required")
			}
			var recipient []byte
			if flags.to != "" {
				var err error
				if recipient, err = buffer.FromHex(flags.to); err != nil {
					return fmt.Errorf("--to: %w", err)
				}
				if len(recipient) < command.PubKeyPrefixSize {
					return fmt.Errorf("--to: need at least %d bytes, got %d", command.PubKeyPrefixSize, len(recipient))
				}
			}
			text := strings.Join(args, " ")

			return g.withClient(cmd, func(ctx context.Context, c *companion.Client) error {
				if _, err := c.AppStart(ctx); err != nil {
					return err
				}
				acks := make(chan *event.SendConfirmed, 4)
				unsubscribe := c.Subscribe(func(ev event.Event) {
					select {
					case acks <- ev.(*event.SendConfirmed):
					default:
					}
				}, event.KindSendConfirmed)
				defer unsubscribe()

				var (
					res sendResult
					err error
				)
				if recipient != nil {
					res.Sent, err = c.SendTxtMsg(ctx, companion.TextMessage{
						Type:      command.TxtPlain,
						Attempt:   flags.attempt,
						Recipient: recipient,
						Text:      text,
					})
				} else {
					res.Sent, err = c.SendChannelTxtMsg(ctx, companion.ChannelMessage{
						Type:    command.TxtPlain,
						Channel: uint8(flags.channel),
						Text:    text,
					})
				}
				if err != nil {
					return err
				}
				if flags.wait > 0 {
					res.Confirmed = awaitAck(ctx, acks, res.Sent.ExpectedAckCRC, flags.wait)
				}
				return render(cmd.OutOrStdout(), g.output, res)
			})
		},
	}

	cmd.Flags().StringVar(&flags.to, "to", "", "Recipient public key or prefix (hex, >= 6 bytes)")
	cmd.Flags().IntVar(&flags.channel, "channel", -1, "Channel index")
	cmd.Flags().Uint8Var(&flags.attempt, "attempt", 0, "Attempt number (0-3)")
	cmd.Flags().DurationVar(&flags.wait, "wait", 0, "Wait up to this long for the delivery ACK")
	return cmd
}

// awaitAck 等待 ack_code 匹配的 SendConfirmed，超时返回 nil
func awaitAck(ctx context.Context, acks <-chan *event.SendConfirmed, code uint32, wait time.Duration) *event.SendConfirmed {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	for {
		select {
		case ack := <-acks:
			if ack.AckCode == code {
				return ack
			}
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

type listenFlags struct {
	count    int
	autoSync bool
	showTx   bool
}

// listenedEvent listen 命令逐条输出
type listenedEvent struct {
	Time time.Time   `json:"time" yaml:"time"`
	Kind string      `json:"kind" yaml:"kind"`
	Data event.Event `json:"data" yaml:"data"`
}

func newListenCmd(g *globalFlags) *cobra.Command {
	flags := &listenFlags{}

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Stream device events until interrupted",
		Example: `  meshcore-cli --serial /dev/ttyACM0 listen --auto-sync
  meshcore-cli --tcp 10.0.0.5:5000 -o json listen --count 10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(ctx)

			return g.withClient(cmd, func(ctx context.Context, c *companion.Client) error {
				events := make(chan listenedEvent, 256)
				wake := make(chan struct{}, 1)
				c.Subscribe(func(ev event.Event) {
					if ev.Kind() == event.KindTx && !flags.showTx {
						return
					}
					if ev.Kind() == event.KindMsgWaiting {
						select {
						case wake <- struct{}{}:
						default:
						}
					}
					select {
					case events <- listenedEvent{Time: time.Now(), Kind: ev.Kind().String(), Data: ev}:
					default:
					}
				})

				if _, err := c.AppStart(ctx); err != nil {
					return err
				}
				if flags.autoSync {
					log := g.logger()
					go func() {
						for {
							if _, err := c.SyncAllMessages(ctx); err != nil && ctx.Err() == nil {
								log.Warn("message sync failed", zap.Error(err))
							}
							select {
							case <-wake:
							case <-ctx.Done():
								return
							case <-c.Done():
								return
							}
						}
					}()
				}

				printed := 0
				for {
					select {
					case ev := <-events:
						if err := render(cmd.OutOrStdout(), g.output, ev); err != nil {
							return err
						}
						printed++
						if flags.count > 0 && printed >= flags.count {
							return nil
						}
					case <-c.Done():
						return transport.ErrClosed
					case <-ctx.Done():
						return nil
					}
				}
			})
		},
	}

	cmd.Flags().IntVar(&flags.count, "count", 0, "Exit after this many events (0 = unlimited)")
	cmd.Flags().BoolVar(&flags.autoSync, "auto-sync", false, "Fetch queued messages when the device signals msg_waiting")
	cmd.Flags().BoolVar(&flags.showTx, "tx", false, "Also print outgoing command payloads")
	return cmd
}

func newPortsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List local serial ports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ports, err := transport.ListSerialPorts()
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), g.output, ports)
		},
	}
}
