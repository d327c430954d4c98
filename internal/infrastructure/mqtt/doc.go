// Package mqtt provides the MQTT connection used to mirror exposed devices.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing with QoS and retained messages
//   - Topic subscriptions, restored after reconnect
//   - Last Will and Testament (LWT) on the bridge status topic
//
// Every topic hangs off a configurable prefix (default "matterbridge"):
//
//	matterbridge/bridge/status
//	matterbridge/bridge/health
//	matterbridge/device/{serial}/config
//	matterbridge/device/{serial}/state
//	matterbridge/device/{serial}/set
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := client.Topics()
//	err = client.Subscribe(topics.AllDeviceSets(), 1,
//	    func(topic string, payload []byte) error {
//	        serial, _ := topics.SerialFromTopic(topic)
//	        return apply(serial, payload)
//	    })
package mqtt
