package dispenser

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"
)

func init() {
	RegisterStreamer("redis", NewRedisStreamer)
}

// RedisStreamClient is the part of *redis.Client the streamer uses.
type RedisStreamClient interface {
	Ping(ctx context.Context) *redis.StatusCmd
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// RedisStreamer appends every event or frame as an entry of the Redis stream
// named after the output.
type RedisStreamer struct {
	name    string
	kind    StreamType
	session string
	client  RedisStreamClient
	event   *jsonEvent
	frame   *jsonFrame
}

func NewRedisStreamer(opts StreamerOptions) (Streamer, error) {
	if opts.RedisAddr == "" {
		return nil, errors.New("redis output needs redis_addr")
	}
	client := redis.NewClient(&redis.Options{Addr: opts.RedisAddr})
	return NewRedisStreamerWithClient(opts, client)
}

func NewRedisStreamerWithClient(opts StreamerOptions, client RedisStreamClient) (*RedisStreamer, error) {
	if opts.Definition.Name == "" {
		return nil, errors.New("redis output needs a name")
	}
	return &RedisStreamer{
		name:    opts.Definition.Name,
		kind:    StreamType(opts.Definition.Type),
		session: opts.SessionID,
		client:  client,
	}, nil
}

func (s *RedisStreamer) Name() string     { return s.name }
func (s *RedisStreamer) Type() StreamType { return s.kind }

func (s *RedisStreamer) OpenConnection() error {
	return s.client.Ping(context.Background()).Err()
}

func (s *RedisStreamer) CloseConnection() error {
	return s.client.Close()
}

func (s *RedisStreamer) StartEvent(ctx context.Context, event *EventRecord) error {
	s.event = &jsonEvent{Session: s.session, Detectors: make(map[string]*jsonDetector)}
	return nil
}

func (s *RedisStreamer) PublishEventHeader(ctx context.Context, event *EventRecord) error {
	if s.event == nil {
		return errors.New("event header published before start of event")
	}
	s.event.EventNumber = event.EventNumber
	s.event.ThreadID = event.ThreadID
	s.event.Timestamp = event.Timestamp
	return nil
}

func (s *RedisStreamer) PublishEventTrueInfoData(ctx context.Context, detector string, data []*TrueInfoData) error {
	if s.event == nil {
		return errors.New("detector data published before start of event")
	}
	d := s.event.detector(detector)
	for _, hit := range data {
		d.TrueInfo = append(d.TrueInfo, trueInfoDocument(hit))
	}
	return nil
}

func (s *RedisStreamer) PublishEventDigitizedData(ctx context.Context, detector string, data []*DigitizedData) error {
	if s.event == nil {
		return errors.New("detector data published before start of event")
	}
	d := s.event.detector(detector)
	for _, hit := range data {
		d.Digitized = append(d.Digitized, digitizedDocument(hit))
	}
	return nil
}

func (s *RedisStreamer) EndEvent(ctx context.Context, event *EventRecord) error {
	if s.event == nil {
		return errors.New("end of event without start of event")
	}
	body, err := json.Marshal(s.event)
	s.event = nil
	if err != nil {
		return err
	}
	return s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.name,
		Values: map[string]any{"event": event.EventNumber, "thread": event.ThreadID, "data": string(body)},
	}).Err()
}

func (s *RedisStreamer) StartStream(ctx context.Context, frame *Frame) error {
	s.frame = &jsonFrame{Payloads: []Payload{}}
	return nil
}

func (s *RedisStreamer) PublishFrameHeader(ctx context.Context, header FrameHeader) error {
	if s.frame == nil {
		return errors.New("frame header published before start of stream")
	}
	s.frame.Header = jsonFrameHeader{FrameID: header.FrameID, FrameDuration: header.FrameDuration}
	return nil
}

func (s *RedisStreamer) PublishPayload(ctx context.Context, payloads []Payload) error {
	if s.frame == nil {
		return errors.New("payload published before start of stream")
	}
	s.frame.Payloads = append(s.frame.Payloads, payloads...)
	return nil
}

func (s *RedisStreamer) EndStream(ctx context.Context, frame *Frame) error {
	if s.frame == nil {
		return errors.New("end of stream without start of stream")
	}
	payloads, err := json.Marshal(s.frame.Payloads)
	header := s.frame.Header
	s.frame = nil
	if err != nil {
		return err
	}
	return s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.name,
		Values: map[string]any{
			"frame_id":       header.FrameID,
			"frame_duration": header.FrameDuration,
			"payloads":       string(payloads),
		},
	}).Err()
}
