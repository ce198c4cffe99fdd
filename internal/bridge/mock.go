package bridge

import "encoding/json"

// mockResponses serve a fixed subset of operations while no backend is
// attached, so a UI can render its signed-out state.
var mockResponses = map[string]json.RawMessage{
	OpCheckAuth: json.RawMessage(`{"authenticated":false}`),
}

func mockResponse(op string) (json.RawMessage, bool) {
	raw, ok := mockResponses[op]
	return raw, ok
}
