// Package ncco builds Nexmo Call Control Object documents — the JSON action
// lists that tell the telephony backend what to do next with a call.
//
// Only the actions this service emits are modelled: talk, input, and
// connect (phone and websocket endpoints).
package ncco

// Action is any NCCO action. Implementations are plain structs whose JSON
// field names match the NCCO wire format exactly.
type Action interface {
	isAction()
}

// Talk speaks text into the call.
type Talk struct {
	Action string `json:"action"`
	Text   string `json:"text"`
}

func (Talk) isAction() {}

// NewTalk returns a talk action for text.
func NewTalk(text string) Talk {
	return Talk{Action: "talk", Text: text}
}

// Input collects DTMF digits from the caller.
type Input struct {
	Action       string   `json:"action"`
	EventURL     []string `json:"eventUrl"`
	TimeOut      int      `json:"timeOut"`
	MaxDigits    int      `json:"maxDigits"`
	SubmitOnHash bool     `json:"submitOnHash"`
}

func (Input) isAction() {}

// NewInput returns an input action posting collected digits to eventURL.
func NewInput(eventURL string, timeOut, maxDigits int) Input {
	return Input{
		Action:       "input",
		EventURL:     []string{eventURL},
		TimeOut:      timeOut,
		MaxDigits:    maxDigits,
		SubmitOnHash: true,
	}
}

// Connect bridges the call to one or more endpoints.
type Connect struct {
	Action   string     `json:"action"`
	From     string     `json:"from"`
	Endpoint []Endpoint `json:"endpoint"`
}

func (Connect) isAction() {}

// Endpoint is a connect target.
type Endpoint interface {
	isEndpoint()
}

// PhoneEndpoint dials a PSTN number.
type PhoneEndpoint struct {
	Type   string `json:"type"`
	Number string `json:"number"`
}

func (PhoneEndpoint) isEndpoint() {}

// WebsocketEndpoint streams the call's audio to a websocket URI.
type WebsocketEndpoint struct {
	Type        string            `json:"type"`
	URI         string            `json:"uri"`
	ContentType string            `json:"content-type"`
	Headers     map[string]string `json:"headers,omitempty"`
}

func (WebsocketEndpoint) isEndpoint() {}

// ConnectPhone returns a connect action dialling number from the given
// originating address.
func ConnectPhone(from, number string) Connect {
	return Connect{
		Action: "connect",
		From:   from,
		Endpoint: []Endpoint{
			PhoneEndpoint{Type: "phone", Number: number},
		},
	}
}

// ConnectWebsocket returns a connect action streaming the call audio to uri
// with the given content type. headers travel with the websocket handshake
// and are echoed back in the stream's first control message.
func ConnectWebsocket(from, uri, contentType string, headers map[string]string) Connect {
	return Connect{
		Action: "connect",
		From:   from,
		Endpoint: []Endpoint{
			WebsocketEndpoint{
				Type:        "websocket",
				URI:         uri,
				ContentType: contentType,
				Headers:     headers,
			},
		},
	}
}
