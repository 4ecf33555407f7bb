package bus

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/tydom2mqtt/internal/cover"
	"github.com/nerrad567/tydom2mqtt/internal/infrastructure/mqtt"
)

func TestGateway_PublishDiscovery(t *testing.T) {
	client := NewMockMQTTClient()
	gw, err := NewGateway(client, defaultTopics(), Options{
		DiscoveryPrefix: "homeassistant",
		StatusTopic:     "tydom2mqtt/status",
	})
	require.NoError(t, err)

	gw.PublishDiscovery([]cover.Name{"kitchen", "LIVING"})
	require.NoError(t, gw.Close())

	published := client.GetPublished()
	require.Len(t, published, 2, "one document per cover")

	first := published[0]
	assert.Equal(t, "homeassistant/cover/kitchen/config", first.Topic)
	assert.True(t, first.Retained, "discovery documents are retained")
	assert.Equal(t, byte(0), first.QoS)

	assert.JSONEq(t, `{
		"device_class": "shutter",
		"name": "Kitchen cover",
		"unique_id": "kitchen_cover",
		"device": {
			"manufacturer": "Delta dore",
			"model": "shutter",
			"name": "Kitchen cover",
			"identifiers": "kitchen"
		},
		"command_topic": "home/cover/kitchen/set",
		"position_topic": "home/cover/kitchen/position",
		"set_position_topic": "home/cover/kitchen/position/set",
		"availability_topic": "tydom2mqtt/status",
		"qos": 0,
		"retain": false,
		"payload_open": "OPEN",
		"payload_close": "CLOSE",
		"position_open": 100,
		"position_closed": 0,
		"optimistic": false
	}`, string(first.Payload))

	var second Discovery
	require.NoError(t, json.Unmarshal(published[1].Payload, &second))
	assert.Equal(t, "Living cover", second.Name)
	assert.Equal(t, "LIVING_cover", second.UniqueID)
}

func TestGateway_PublishDiscoveryDisabled(t *testing.T) {
	client := NewMockMQTTClient()
	gw, err := NewGateway(client, defaultTopics(), Options{})
	require.NoError(t, err)

	assert.False(t, gw.DiscoveryEnabled())
	gw.PublishDiscovery([]cover.Name{"kitchen"})
	require.NoError(t, gw.Close())

	assert.Empty(t, client.GetPublished())
}

func TestGateway_PublishDiscoveryFailureIsContained(t *testing.T) {
	client := NewMockMQTTClient()
	client.publishErr = mqtt.ErrPublishFailed
	gw, err := NewGateway(client, defaultTopics(), Options{DiscoveryPrefix: "homeassistant"})
	require.NoError(t, err)

	gw.PublishDiscovery([]cover.Name{"kitchen", "living"})
	require.NoError(t, gw.Close())

	assert.Empty(t, client.GetPublished())
}

func TestDiscoveryFor_OmitsEmptyAvailability(t *testing.T) {
	gw, err := NewGateway(NewMockMQTTClient(), defaultTopics(), Options{DiscoveryPrefix: "ha"})
	require.NoError(t, err)

	payload, err := json.Marshal(gw.DiscoveryFor("kitchen"))
	require.NoError(t, err)
	assert.NotContains(t, string(payload), "availability_topic")
}

func TestGateway_PublishDiscoveryOncePerGateway(t *testing.T) {
	client := NewMockMQTTClient()
	gw, err := NewGateway(client, defaultTopics(), Options{DiscoveryPrefix: "homeassistant"})
	require.NoError(t, err)

	gw.PublishDiscovery([]cover.Name{"kitchen", "living"})
	gw.PublishDiscovery([]cover.Name{"kitchen", "living"})
	gw.PublishDiscovery([]cover.Name{"kitchen"})
	require.NoError(t, gw.Close())

	published := client.GetPublished()
	require.Len(t, published, 2, "repeated calls send nothing")
	assert.Equal(t, "homeassistant/cover/kitchen/config", published[0].Topic)
	assert.Equal(t, "homeassistant/cover/living/config", published[1].Topic)
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		name cover.Name
		want string
	}{
		{name: "kitchen", want: "Kitchen cover"},
		{name: "LIVING", want: "Living cover"},
		{name: "étage", want: "Étage cover"},
		{name: "ÉTAGE_nord", want: "Étage_nord cover"},
		{name: "k", want: "K cover"},
		{name: "", want: "cover"},
	}

	for _, tt := range tests {
		t.Run(string(tt.name), func(t *testing.T) {
			assert.Equal(t, tt.want, displayName(tt.name))
		})
	}
}

func TestDiscoveryFor_NonASCIIName(t *testing.T) {
	gw, err := NewGateway(NewMockMQTTClient(), defaultTopics(), Options{DiscoveryPrefix: "ha"})
	require.NoError(t, err)

	doc := gw.DiscoveryFor("étage")
	assert.Equal(t, "Étage cover", doc.Name)
	assert.Equal(t, "Étage cover", doc.Device.Name)
	assert.Equal(t, "étage", doc.Device.Identifiers)
}
