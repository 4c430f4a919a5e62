package gateway

import "encoding/json"

// pushFrame is a server-initiated event: {"event":"<name>","data":<payload>}
type pushFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ackFrame answers a command that carried an ack id
type ackFrame struct {
	Ack   int64           `json:"ack"`
	Error string          `json:"error,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

var jsonNull = json.RawMessage("null")

func encodePush(event string, data []byte) ([]byte, error) {
	if len(data) == 0 {
		data = jsonNull
	}
	return json.Marshal(pushFrame{Event: event, Data: data})
}

func encodeAck(id int64, result any, errMsg string) ([]byte, error) {
	if errMsg != "" {
		return json.Marshal(ackFrame{Ack: id, Error: errMsg})
	}
	data, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return json.Marshal(ackFrame{Ack: id, Data: data})
}
