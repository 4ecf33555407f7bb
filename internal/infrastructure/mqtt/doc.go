// Package mqtt provides MQTT client connectivity for tydom2mqtt.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS and payload-size checks
//   - Topic subscriptions with wildcard support, restored after reconnect
//   - An availability topic backed by Last Will and Testament
//
// Cover topic naming lives in the bus package; this package only moves
// bytes and tracks the session.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe("tydom/cover/+/set", 0,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	client.Publish("tydom/cover/kitchen/position", []byte("42"), 0, false)
package mqtt
