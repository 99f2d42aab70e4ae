package mapping

import "fmt"

// API is a platform target API a mapping writes to or reads from.
type API string

const (
	APIAlarm       API = "ALARM"
	APIEvent       API = "EVENT"
	APIMeasurement API = "MEASUREMENT"
	APIInventory   API = "INVENTORY"
	APIOperation   API = "OPERATION"
	APIAll         API = "ALL"
)

type apiDescriptor struct {
	identifier         string
	notificationFilter string
	path               string
}

var apis = map[API]apiDescriptor{
	APIAlarm:       {identifier: "source.id", notificationFilter: "alarms", path: "/alarm/alarms"},
	APIEvent:       {identifier: "source.id", notificationFilter: "events", path: "/event/events"},
	APIMeasurement: {identifier: "source.id", notificationFilter: "measurements", path: "/measurement/measurements"},
	APIInventory:   {identifier: "id", notificationFilter: "managedObjects", path: "/inventory/managedObjects"},
	APIOperation:   {identifier: "deviceId", notificationFilter: "operations", path: "/devicecontrol/operations"},
	APIAll:         {identifier: "*", notificationFilter: "*"},
}

// ParseAPI validates a target API name.
func ParseAPI(s string) (API, error) {
	a := API(s)
	if _, ok := apis[a]; !ok {
		return "", fmt.Errorf("unknown target API %q", s)
	}
	return a, nil
}

// Identifier is the payload path holding the device id for this API.
func (a API) Identifier() string { return apis[a].identifier }

// NotificationFilter is the notification subscription filter for this API.
func (a API) NotificationFilter() string { return apis[a].notificationFilter }

// Path is the REST collection path for this API. Empty for ALL.
func (a API) Path() string { return apis[a].path }
