package bus

import (
	"encoding/json"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/nerrad567/tydom2mqtt/internal/cover"
)

// Discovery document constants.
const (
	discoveryManufacturer = "Delta dore"
	discoveryModel        = "shutter"
	discoveryDeviceClass  = "shutter"
)

// DiscoveryDevice groups the entity under a device in Home Assistant.
type DiscoveryDevice struct {
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
	Name         string `json:"name"`
	Identifiers  string `json:"identifiers"`
}

// Discovery is the Home Assistant MQTT discovery document for one cover.
type Discovery struct {
	DeviceClass       string          `json:"device_class"`
	Name              string          `json:"name"`
	UniqueID          string          `json:"unique_id"`
	Device            DiscoveryDevice `json:"device"`
	CommandTopic      string          `json:"command_topic"`
	PositionTopic     string          `json:"position_topic"`
	SetPositionTopic  string          `json:"set_position_topic"`
	AvailabilityTopic string          `json:"availability_topic,omitempty"`
	QoS               int             `json:"qos"`
	Retain            bool            `json:"retain"`
	PayloadOpen       string          `json:"payload_open"`
	PayloadClose      string          `json:"payload_close"`
	PositionOpen      int             `json:"position_open"`
	PositionClosed    int             `json:"position_closed"`
	Optimistic        bool            `json:"optimistic"`
}

// DiscoveryFor builds the discovery document for a cover.
func (g *Gateway) DiscoveryFor(name cover.Name) Discovery {
	display := displayName(name)
	return Discovery{
		DeviceClass: discoveryDeviceClass,
		Name:        display,
		UniqueID:    name.String() + "_cover",
		Device: DiscoveryDevice{
			Manufacturer: discoveryManufacturer,
			Model:        discoveryModel,
			Name:         display,
			Identifiers:  name.String(),
		},
		CommandTopic:      g.command.Expand(name),
		PositionTopic:     g.position.Expand(name),
		SetPositionTopic:  g.positionSet.Expand(name),
		AvailabilityTopic: g.statusTopic,
		QoS:               0,
		Retain:            false,
		PayloadOpen:       string(cover.CommandOpen),
		PayloadClose:      string(cover.CommandClose),
		PositionOpen:      int(cover.PositionOpen),
		PositionClosed:    int(cover.PositionClosed),
		Optimistic:        false,
	}
}

// DiscoveryTopic returns "{prefix}/cover/{name}/config".
func (g *Gateway) DiscoveryTopic(name cover.Name) string {
	return g.discoveryPrefix + "/cover/" + name.String() + "/config"
}

// DiscoveryEnabled reports whether a discovery prefix is configured.
func (g *Gateway) DiscoveryEnabled() bool {
	return g.discoveryPrefix != ""
}

// PublishDiscovery publishes one retained document per cover in the
// background and returns at once. Only the first call on a gateway sends
// anything; the broker keeps the retained documents across reconnects.
// It does nothing without a discovery prefix. Failures are logged.
func (g *Gateway) PublishDiscovery(names []cover.Name) {
	if !g.DiscoveryEnabled() {
		g.logger.Info("no discovery prefix set, skipping discovery")
		return
	}
	if !g.discoverySent.CompareAndSwap(false, true) {
		g.logger.Debug("discovery already sent, skipping")
		return
	}

	covers := make([]cover.Name, len(names))
	copy(covers, names)

	g.discovery.Add(1)
	go func() {
		defer g.discovery.Done()

		g.logger.Info("sending discovery documents", "covers", len(covers))
		for _, name := range covers {
			if err := g.publishDiscovery(name); err != nil {
				g.logger.Warn("discovery publish failed", "cover", name, "error", err)
			}
		}
	}()
}

func (g *Gateway) publishDiscovery(name cover.Name) error {
	payload, err := json.Marshal(g.DiscoveryFor(name))
	if err != nil {
		return err
	}
	if err := g.client.Publish(g.DiscoveryTopic(name), payload, 0, true); err != nil {
		return err
	}
	return nil
}

// displayName renders "kitchen" as "Kitchen cover" and "étage" as
// "Étage cover".
func displayName(name cover.Name) string {
	s := name.String()
	if s == "" {
		return "cover"
	}
	first, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(first)) + strings.ToLower(s[size:]) + " cover"
}
