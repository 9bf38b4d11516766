package models

// SchedulerMessage is the Pub/Sub CloudEvent payload sent by the external
// scheduler. The message body is not interpreted; only its id is recorded.
type SchedulerMessage struct {
	Message struct {
		MessageID  string            `json:"messageId"`
		Attributes map[string]string `json:"attributes,omitempty"`
		Data       []byte            `json:"data,omitempty"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}
