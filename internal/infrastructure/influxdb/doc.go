// Package influxdb records the daemon's time-series telemetry.
//
// Two measurements are written: knx_telegrams, one point per bus
// telegram (tagged by group address, APCI type, and source device),
// and tunnel_stats, periodic snapshots of the tunnel's counters
// (throughput, drops, sequence mismatches, heartbeats). Together they
// answer "what is the bus doing" and "how healthy is the gateway
// link" without touching the daemon.
//
// The package wraps influxdb-client-go v2's non-blocking write API, so
// a slow or absent InfluxDB never backpressures the bus pipeline.
// Points are batched per the config (batch_size, flush_interval) and
// write failures surface on the SetOnError callback.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteTelegram("1/2/3", "write", "1.1.5", 1)
//
// The whole integration is optional: with enabled: false in the
// config, Connect returns ErrDisabled and the bridge's telemetry
// facade degrades to a no-op.
//
// All methods are safe for concurrent use.
package influxdb
