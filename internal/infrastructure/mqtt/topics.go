package mqtt

import "fmt"

// Topic namespace constants.
const (
	// topicPrefix roots every LiteKeeper topic.
	topicPrefix = "litekeeper"
)

// Topics builds the LiteKeeper topic hierarchy.
//
// Layout:
//
//	litekeeper/system/status          retained online/offline status
//	litekeeper/health/<component>     health transitions per component
//	litekeeper/recovery/<action>      recovery attempt outcomes
//	litekeeper/stats                  periodic pool/query snapshots
//
// The zero value is ready to use:
//
//	topic := mqtt.Topics{}.Health("pool")
type Topics struct{}

// SystemStatus returns the retained online/offline status topic.
func (Topics) SystemStatus() string {
	return topicPrefix + "/system/status"
}

// Health returns the health transition topic for a component.
func (Topics) Health(component string) string {
	return fmt.Sprintf("%s/health/%s", topicPrefix, component)
}

// Recovery returns the recovery attempt topic for an action.
func (Topics) Recovery(action string) string {
	return fmt.Sprintf("%s/recovery/%s", topicPrefix, action)
}

// Stats returns the periodic statistics topic.
func (Topics) Stats() string {
	return topicPrefix + "/stats"
}
