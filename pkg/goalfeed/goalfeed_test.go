package goalfeed

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

type recordingSetter struct {
	x, y  float64
	calls int
}

func (r *recordingSetter) SetGoal(x, y float64) error {
	r.x, r.y = x, y
	r.calls++
	return nil
}

type fakeMessage struct {
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return "walker/goal" }
func (m *fakeMessage) MessageID() uint16 { return 1 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

func testClient(setter GoalSetter) *Client {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return &Client{setter: setter, log: logrus.NewEntry(logger)}
}

func TestGoalMessageDecoded(t *testing.T) {
	setter := &recordingSetter{}
	c := testClient(setter)

	c.onMessage(nil, &fakeMessage{payload: []byte(`{"x": 0.5, "y": -0.2}`)})
	assert.Equal(t, 1, setter.calls)
	assert.Equal(t, 0.5, setter.x)
	assert.Equal(t, -0.2, setter.y)
}

func TestMalformedGoalDiscarded(t *testing.T) {
	setter := &recordingSetter{}
	c := testClient(setter)

	c.onMessage(nil, &fakeMessage{payload: []byte("not json")})
	assert.Equal(t, 0, setter.calls)
}
