// Package mqtt publishes LiteKeeper events to an MQTT broker.
//
// LiteKeeper is publish-only: health transitions, recovery attempts,
// and periodic stats snapshots go out under the litekeeper/ namespace,
// and a retained system status topic with a Last Will and Testament
// lets consumers distinguish a crash from a graceful shutdown.
//
// # Topics
//
//	litekeeper/system/status        retained online/offline (LWT on crash)
//	litekeeper/health/<component>   health check results
//	litekeeper/recovery/<action>    recovery attempt outcomes
//	litekeeper/stats                periodic pool/query snapshots
//
// The package is optional: when mqtt.enabled is false in config.yaml
// the application never constructs a client, and publishing callers
// hold a nil publisher.
package mqtt
