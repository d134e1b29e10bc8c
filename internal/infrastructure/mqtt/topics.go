package mqtt

// TopicPrefix is the root of every rainbridge topic.
const TopicPrefix = "rainbridge"

// Topics builds rainbridge topic names.
//
// Controller gateways own one address each and talk to the bridge as:
//
//	rainbridge/request/{address}/{request_id}   bridge -> gateway
//	rainbridge/response/{address}/{request_id}  gateway -> bridge
//	rainbridge/event/{address}/{event}          gateway -> bridge
type Topics struct{}

// Request is where the bridge sends a command for the controller at address.
func (Topics) Request(address, requestID string) string {
	return TopicPrefix + "/request/" + address + "/" + requestID
}

// Response is where the gateway answers a request.
func (Topics) Response(address, requestID string) string {
	return TopicPrefix + "/response/" + address + "/" + requestID
}

// Responses matches every response for address.
func (Topics) Responses(address string) string {
	return TopicPrefix + "/response/" + address + "/+"
}

// Event is where the gateway publishes a named notification.
func (Topics) Event(address, event string) string {
	return TopicPrefix + "/event/" + address + "/" + event
}

// Events matches every notification for address.
func (Topics) Events(address string) string {
	return TopicPrefix + "/event/" + address + "/+"
}

// Accessory carries the retained state of one accessory record.
func (Topics) Accessory(id string) string {
	return TopicPrefix + "/accessory/" + id
}

// SystemStatus carries the retained online/offline status of the bridge.
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}
