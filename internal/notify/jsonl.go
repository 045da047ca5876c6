package notify

import (
	"fmt"
	"io"
	"sync"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// JSONLSink writes every event it receives as one JSON object per line.
// Objects are built as protobuf Structs and rendered with protojson.
type JSONLSink struct {
	mu  sync.Mutex
	w   io.Writer
	err error
}

// NewJSONLSink returns a sink writing to w. Register its Listen method on a
// Bus.
func NewJSONLSink(w io.Writer) *JSONLSink {
	return &JSONLSink{w: w}
}

// Listen encodes ev. The first write error is retained and later events are
// dropped.
func (s *JSONLSink) Listen(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return
	}
	line, err := EncodeEvent(ev)
	if err != nil {
		s.err = err
		return
	}
	if _, err := s.w.Write(append(line, '\n')); err != nil {
		s.err = fmt.Errorf("write event: %w", err)
	}
}

// Err returns the first error seen by the sink.
func (s *JSONLSink) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// EncodeEvent renders ev as a single-line JSON object.
func EncodeEvent(ev Event) ([]byte, error) {
	fields := map[string]any{
		"kind":   ev.Kind.String(),
		"vessel": ev.VesselID.String(),
	}
	if p := payloadFields(ev.Payload); p != nil {
		fields["payload"] = p
	}
	st, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", ev.Kind, err)
	}
	return protojson.MarshalOptions{Multiline: false}.Marshal(st)
}

func payloadFields(p any) map[string]any {
	switch v := p.(type) {
	case RadiationField:
		return map[string]any{
			"inner_belt":    v.InnerBelt,
			"outer_belt":    v.OuterBelt,
			"magnetosphere": v.Magnetosphere,
		}
	case TransmitState:
		return map[string]any{
			"transmitting": v.Transmitting,
			"can_transmit": v.CanTransmit,
		}
	case ExperimentState:
		return map[string]any{
			"experiment_id": v.ExperimentID,
			"state":         v.State.String(),
			"running":       v.Running,
		}
	case map[string]any:
		return v
	case nil:
		return nil
	default:
		return map[string]any{"value": fmt.Sprint(v)}
	}
}
