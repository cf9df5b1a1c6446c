package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/taoyao-code/meshcore-bridge/internal/protocol/advert"
	"github.com/taoyao-code/meshcore-bridge/internal/protocol/buffer"
	"github.com/taoyao-code/meshcore-bridge/internal/protocol/lpp"
	"github.com/taoyao-code/meshcore-bridge/internal/protocol/packet"
)

// packetView 网状路由包解析结果
type packetView struct {
	Header          string      `json:"header" yaml:"header"`
	DoNotRetransmit bool        `json:"do_not_retransmit" yaml:"do_not_retransmit"`
	RouteType       string      `json:"route_type,omitempty" yaml:"route_type,omitempty"`
	PayloadType     string      `json:"payload_type,omitempty" yaml:"payload_type,omitempty"`
	Version         uint8       `json:"version" yaml:"version"`
	Path            buffer.Hex  `json:"path" yaml:"path"`
	Payload         buffer.Hex  `json:"payload" yaml:"payload"`
	Advert          *advertView `json:"advert,omitempty" yaml:"advert,omitempty"`
	Decoded         any         `json:"decoded,omitempty" yaml:"decoded,omitempty"`
}

// advertView 节点广播解析结果；Verified 仅在请求校验时填充
type advertView struct {
	PublicKey buffer.Hex     `json:"public_key" yaml:"public_key"`
	Timestamp uint32         `json:"timestamp" yaml:"timestamp"`
	Signature buffer.Hex     `json:"signature" yaml:"signature"`
	Type      string         `json:"type" yaml:"type"`
	AppData   advert.AppData `json:"app_data" yaml:"app_data"`
	Latitude  *float64       `json:"latitude,omitempty" yaml:"latitude,omitempty"`
	Longitude *float64       `json:"longitude,omitempty" yaml:"longitude,omitempty"`
	Verified  *bool          `json:"verified,omitempty" yaml:"verified,omitempty"`
}

// lppView 遥测解析结果
type lppView struct {
	Channel uint8    `json:"channel" yaml:"channel"`
	Type    string   `json:"type" yaml:"type"`
	Value   float64  `json:"value,omitempty" yaml:"value,omitempty"`
	GPS     *lpp.GPS `json:"gps,omitempty" yaml:"gps,omitempty"`
}

type decodeFlags struct {
	verify bool
}

func newDecodeCmd(g *globalFlags) *cobra.Command {
	flags := &decodeFlags{}

	cmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode raw mesh packets, adverts or CayenneLPP data (offline)",
	}

	packetCmd := &cobra.Command{
		Use:     "packet <hex>",
		Short:   "Decode a mesh routing packet (e.g. from log_rx_data)",
		Example: `  meshcore-cli decode packet 1102aabb...`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := buffer.FromHex(strings.Join(args, ""))
			if err != nil {
				return err
			}
			view, err := decodePacket(raw, flags.verify)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), g.output, view)
		},
	}

	advertCmd := &cobra.Command{
		Use:   "advert <hex>",
		Short: "Decode an advert body (public key, timestamp, signature, app data)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := buffer.FromHex(strings.Join(args, ""))
			if err != nil {
				return err
			}
			a, err := advert.Parse(raw)
			if err != nil {
				return err
			}
			view, err := newAdvertView(a, flags.verify)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), g.output, view)
		},
	}

	lppCmd := &cobra.Command{
		Use:   "lpp <hex>",
		Short: "Decode CayenneLPP telemetry records",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := buffer.FromHex(strings.Join(args, ""))
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), g.output, decodeLPP(raw))
		},
	}

	cmd.PersistentFlags().BoolVar(&flags.verify, "verify", false, "Verify advert Ed25519 signatures")
	cmd.AddCommand(packetCmd, advertCmd, lppCmd)
	return cmd
}

func decodePacket(raw []byte, verify bool) (*packetView, error) {
	p, err := packet.Parse(raw)
	if err != nil {
		return nil, err
	}
	view := &packetView{
		Header:          fmt.Sprintf("0x%02x", p.Header),
		DoNotRetransmit: p.IsDoNotRetransmit(),
		Path:            p.Path,
		Payload:         p.Payload,
	}
	if view.DoNotRetransmit {
		return view, nil
	}
	view.RouteType = p.RouteType().Name()
	view.PayloadType = p.PayloadType().Name()
	view.Version = p.Version()

	decoded, err := p.DecodePayload()
	if err != nil {
		return nil, err
	}
	if body, ok := decoded.(*packet.AdvertBody); ok {
		if view.Advert, err = newAdvertView(body.Advert, verify); err != nil {
			return nil, err
		}
		return view, nil
	}
	view.Decoded = decoded
	return view, nil
}

func newAdvertView(a *advert.Advert, verify bool) (*advertView, error) {
	app, err := a.ParseAppData()
	if err != nil {
		return nil, err
	}
	view := &advertView{
		PublicKey: a.PublicKey,
		Timestamp: a.Timestamp,
		Signature: a.Signature,
		Type:      a.Type().String(),
		AppData:   app,
	}
	if lat, lon, ok := app.LatLonDegrees(); ok {
		view.Latitude, view.Longitude = &lat, &lon
	}
	if verify {
		ok, err := a.Verify(advert.Ed25519{})
		if err != nil {
			return nil, err
		}
		view.Verified = &ok
	}
	return view, nil
}

func decodeLPP(raw []byte) []lppView {
	records := lpp.Decode(raw)
	out := make([]lppView, 0, len(records))
	for _, r := range records {
		out = append(out, lppView{Channel: r.Channel, Type: r.Type.String(), Value: r.Value, GPS: r.GPS})
	}
	return out
}
