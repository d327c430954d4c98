// Package influxdb records the bridge's synchronisation history in
// InfluxDB.
//
// Every remote update, outbound command, conversion, removal and
// suppressed echo becomes a point in the configured bucket, so the
// traffic between Home Assistant and the exposed devices can be charted
// and audited.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB, log)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteCommand("light.kitchen", "light", "turn_on", nil)
//
// Writes are non-blocking and batched according to batch_size and
// flush_interval. Rejected batches are logged and counted, never retried.
package influxdb
