package ipc

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// MessageType identifies the payload carried by a Message.
type MessageType int32

const (
	MessageTypeUnspecified MessageType = iota
	MessageTypeStatus
	MessageTypeStatusResponse
	MessageTypeInject
	MessageTypeAck
	MessageTypeError
)

func (t MessageType) String() string {
	switch t {
	case MessageTypeStatus:
		return "STATUS"
	case MessageTypeStatusResponse:
		return "STATUS_RESPONSE"
	case MessageTypeInject:
		return "INJECT"
	case MessageTypeAck:
		return "ACK"
	case MessageTypeError:
		return "ERROR"
	default:
		return fmt.Sprintf("UNSPECIFIED(%d)", int32(t))
	}
}

// InjectKind selects the synthesized input of an InjectRequest.
type InjectKind int32

const (
	InjectKey InjectKind = iota + 1
	InjectButton
	InjectMove
	InjectRelativeMove
	InjectWheel
	InjectEnter
	InjectLeave
)

var injectKindNames = map[InjectKind]string{
	InjectKey:          "key",
	InjectButton:       "button",
	InjectMove:         "move",
	InjectRelativeMove: "rel_move",
	InjectWheel:        "wheel",
	InjectEnter:        "enter",
	InjectLeave:        "leave",
}

func (k InjectKind) String() string {
	if name, ok := injectKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int32(k))
}

// ParseInjectKind accepts the names returned by InjectKind.String.
func ParseInjectKind(s string) (InjectKind, error) {
	for k, name := range injectKindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown inject kind %q", s)
}

// StatusReport describes the running screen.
type StatusReport struct {
	State           string
	Variant         string
	Seat            string
	Connected       bool
	X, Y            int32
	Width, Height   int32
	Pointer         string
	Absolute        string
	Keyboard        string
	DeviceCount     int32
	KeymapEntries   int32
	ActiveModifiers uint32
}

// InjectRequest asks the screen to emit one input event. For InjectKey,
// KeyID (a portable key id) takes precedence over Code (an evdev keycode).
type InjectRequest struct {
	Kind  InjectKind
	Code  uint32
	X, Y  int32
	Press bool
	KeyID uint32
}

// Message is one frame on the control socket.
type Message struct {
	Type   MessageType
	Status *StatusReport
	Inject *InjectRequest
	Error  string
}

// NewStatusMessage creates a status query.
func NewStatusMessage() *Message {
	return &Message{Type: MessageTypeStatus}
}

// NewStatusResponseMessage wraps a report.
func NewStatusResponseMessage(report *StatusReport) *Message {
	return &Message{Type: MessageTypeStatusResponse, Status: report}
}

// NewInjectMessage wraps an injection request.
func NewInjectMessage(req *InjectRequest) *Message {
	return &Message{Type: MessageTypeInject, Inject: req}
}

func NewAckMessage() *Message {
	return &Message{Type: MessageTypeAck}
}

func NewErrorMessage(errMsg string) *Message {
	return &Message{Type: MessageTypeError, Error: errMsg}
}

// Field numbers. Changing them breaks running clients.
const (
	fieldMessageType   protowire.Number = 1
	fieldMessageStatus protowire.Number = 2
	fieldMessageInject protowire.Number = 3
	fieldMessageError  protowire.Number = 4

	fieldStatusState     protowire.Number = 1
	fieldStatusVariant   protowire.Number = 2
	fieldStatusSeat      protowire.Number = 3
	fieldStatusX         protowire.Number = 4
	fieldStatusY         protowire.Number = 5
	fieldStatusWidth     protowire.Number = 6
	fieldStatusHeight    protowire.Number = 7
	fieldStatusPointer   protowire.Number = 8
	fieldStatusAbsolute  protowire.Number = 9
	fieldStatusKeyboard  protowire.Number = 10
	fieldStatusDevices   protowire.Number = 11
	fieldStatusKeymap    protowire.Number = 12
	fieldStatusModifiers protowire.Number = 13
	fieldStatusConnected protowire.Number = 14

	fieldInjectKind  protowire.Number = 1
	fieldInjectCode  protowire.Number = 2
	fieldInjectX     protowire.Number = 3
	fieldInjectY     protowire.Number = 4
	fieldInjectPress protowire.Number = 5
	fieldInjectKeyID protowire.Number = 6
)

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendSint(b []byte, num protowire.Number, v int32) []byte {
	return appendVarint(b, num, protowire.EncodeZigZag(int64(v)))
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	return appendVarint(b, num, protowire.EncodeBool(v))
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendMessage(b []byte, num protowire.Number, m []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, m)
}

// Marshal encodes the message in protobuf wire format.
func (m *Message) Marshal() []byte {
	var b []byte
	b = appendVarint(b, fieldMessageType, uint64(m.Type))
	if m.Status != nil {
		b = appendMessage(b, fieldMessageStatus, m.Status.marshal())
	}
	if m.Inject != nil {
		b = appendMessage(b, fieldMessageInject, m.Inject.marshal())
	}
	b = appendString(b, fieldMessageError, m.Error)
	return b
}

func (r *StatusReport) marshal() []byte {
	var b []byte
	b = appendString(b, fieldStatusState, r.State)
	b = appendString(b, fieldStatusVariant, r.Variant)
	b = appendString(b, fieldStatusSeat, r.Seat)
	b = appendSint(b, fieldStatusX, r.X)
	b = appendSint(b, fieldStatusY, r.Y)
	b = appendVarint(b, fieldStatusWidth, uint64(r.Width))
	b = appendVarint(b, fieldStatusHeight, uint64(r.Height))
	b = appendString(b, fieldStatusPointer, r.Pointer)
	b = appendString(b, fieldStatusAbsolute, r.Absolute)
	b = appendString(b, fieldStatusKeyboard, r.Keyboard)
	b = appendVarint(b, fieldStatusDevices, uint64(r.DeviceCount))
	b = appendVarint(b, fieldStatusKeymap, uint64(r.KeymapEntries))
	b = appendVarint(b, fieldStatusModifiers, uint64(r.ActiveModifiers))
	b = appendBool(b, fieldStatusConnected, r.Connected)
	return b
}

func (r *InjectRequest) marshal() []byte {
	var b []byte
	b = appendVarint(b, fieldInjectKind, uint64(r.Kind))
	b = appendVarint(b, fieldInjectCode, uint64(r.Code))
	b = appendSint(b, fieldInjectX, r.X)
	b = appendSint(b, fieldInjectY, r.Y)
	b = appendBool(b, fieldInjectPress, r.Press)
	b = appendVarint(b, fieldInjectKeyID, uint64(r.KeyID))
	return b
}

// fieldFunc consumes the value of one field and returns the bytes used.
type fieldFunc func(num protowire.Number, typ protowire.Type, b []byte) (int, error)

func walk(b []byte, fn fieldFunc) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		used, err := fn(num, typ, b)
		if err != nil {
			return fmt.Errorf("field %d: %w", num, err)
		}
		if used == 0 {
			// Unknown field, skip it.
			used = protowire.ConsumeFieldValue(num, typ, b)
			if used < 0 {
				return protowire.ParseError(used)
			}
		}
		b = b[used:]
	}
	return nil
}

func consumeVarint(typ protowire.Type, b []byte, dst *uint64) (int, error) {
	if typ != protowire.VarintType {
		return 0, fmt.Errorf("wire type %d, want varint", typ)
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	*dst = v
	return n, nil
}

func consumeBytes(typ protowire.Type, b []byte, dst *[]byte) (int, error) {
	if typ != protowire.BytesType {
		return 0, fmt.Errorf("wire type %d, want bytes", typ)
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	*dst = v
	return n, nil
}

func varintField[T ~int32 | ~uint32](dst *T) func(protowire.Type, []byte) (int, error) {
	return func(typ protowire.Type, b []byte) (int, error) {
		var v uint64
		n, err := consumeVarint(typ, b, &v)
		*dst = T(v)
		return n, err
	}
}

func sintField(dst *int32) func(protowire.Type, []byte) (int, error) {
	return func(typ protowire.Type, b []byte) (int, error) {
		var v uint64
		n, err := consumeVarint(typ, b, &v)
		*dst = int32(protowire.DecodeZigZag(v))
		return n, err
	}
}

func boolField(dst *bool) func(protowire.Type, []byte) (int, error) {
	return func(typ protowire.Type, b []byte) (int, error) {
		var v uint64
		n, err := consumeVarint(typ, b, &v)
		*dst = protowire.DecodeBool(v)
		return n, err
	}
}

func stringField(dst *string) func(protowire.Type, []byte) (int, error) {
	return func(typ protowire.Type, b []byte) (int, error) {
		var v []byte
		n, err := consumeBytes(typ, b, &v)
		*dst = string(v)
		return n, err
	}
}

func fieldTable(fields map[protowire.Number]func(protowire.Type, []byte) (int, error)) fieldFunc {
	return func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		f, ok := fields[num]
		if !ok {
			return 0, nil
		}
		return f(typ, b)
	}
}

// UnmarshalMessage decodes a message produced by Marshal. Unknown fields
// are ignored.
func UnmarshalMessage(b []byte) (*Message, error) {
	m := &Message{}
	err := walk(b, fieldTable(map[protowire.Number]func(protowire.Type, []byte) (int, error){
		fieldMessageType: varintField(&m.Type),
		fieldMessageStatus: func(typ protowire.Type, b []byte) (int, error) {
			var raw []byte
			n, err := consumeBytes(typ, b, &raw)
			if err != nil {
				return n, err
			}
			m.Status = &StatusReport{}
			return n, m.Status.unmarshal(raw)
		},
		fieldMessageInject: func(typ protowire.Type, b []byte) (int, error) {
			var raw []byte
			n, err := consumeBytes(typ, b, &raw)
			if err != nil {
				return n, err
			}
			m.Inject = &InjectRequest{}
			return n, m.Inject.unmarshal(raw)
		},
		fieldMessageError: stringField(&m.Error),
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	return m, nil
}

func (r *StatusReport) unmarshal(b []byte) error {
	return walk(b, fieldTable(map[protowire.Number]func(protowire.Type, []byte) (int, error){
		fieldStatusState:     stringField(&r.State),
		fieldStatusVariant:   stringField(&r.Variant),
		fieldStatusSeat:      stringField(&r.Seat),
		fieldStatusX:         sintField(&r.X),
		fieldStatusY:         sintField(&r.Y),
		fieldStatusWidth:     varintField(&r.Width),
		fieldStatusHeight:    varintField(&r.Height),
		fieldStatusPointer:   stringField(&r.Pointer),
		fieldStatusAbsolute:  stringField(&r.Absolute),
		fieldStatusKeyboard:  stringField(&r.Keyboard),
		fieldStatusDevices:   varintField(&r.DeviceCount),
		fieldStatusKeymap:    varintField(&r.KeymapEntries),
		fieldStatusModifiers: varintField(&r.ActiveModifiers),
		fieldStatusConnected: boolField(&r.Connected),
	}))
}

func (r *InjectRequest) unmarshal(b []byte) error {
	return walk(b, fieldTable(map[protowire.Number]func(protowire.Type, []byte) (int, error){
		fieldInjectKind:  varintField(&r.Kind),
		fieldInjectCode:  varintField(&r.Code),
		fieldInjectX:     sintField(&r.X),
		fieldInjectY:     sintField(&r.Y),
		fieldInjectPress: boolField(&r.Press),
		fieldInjectKeyID: varintField(&r.KeyID),
	}))
}
