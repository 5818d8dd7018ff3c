// Package goalfeed subscribes to an MQTT topic for walking goal updates.
// Each message carries a JSON {"x": .., "y": ..} target in meters; every
// decoded update is forwarded to the orchestrator's SetGoal.
package goalfeed

import (
	"encoding/json"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"walking-go/pkg/walkerr"
)

const connectTimeout = 5 * time.Second

// GoalSetter receives decoded goal updates.
type GoalSetter interface {
	SetGoal(x, y float64) error
}

// Client is the MQTT goal subscriber.
type Client struct {
	client mqtt.Client
	topic  string
	setter GoalSetter
	log    *logrus.Entry
}

type goalMessage struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Connect dials the broker and subscribes to the goal topic.
func Connect(broker, topic string, setter GoalSetter, log *logrus.Entry) (*Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID("walking-goalfeed").
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout)

	c := &Client{topic: topic, setter: setter, log: log}
	c.client = mqtt.NewClient(opts)

	token := c.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, walkerr.New(walkerr.ErrRuntime, "timed out connecting to MQTT broker %s", broker)
	}
	if err := token.Error(); err != nil {
		return nil, walkerr.Wrap(err, walkerr.ErrRuntime,
			"unable to connect to MQTT broker %s", broker)
	}

	if token := c.client.Subscribe(topic, 1, c.onMessage); token.Wait() && token.Error() != nil {
		c.client.Disconnect(0)
		return nil, walkerr.Wrap(token.Error(), walkerr.ErrRuntime,
			"unable to subscribe to %s", topic)
	}
	log.WithFields(logrus.Fields{"broker": broker, "topic": topic}).Info("goal feed connected")
	return c, nil
}

func (c *Client) onMessage(_ mqtt.Client, msg mqtt.Message) {
	var goal goalMessage
	if err := json.Unmarshal(msg.Payload(), &goal); err != nil {
		c.log.WithError(err).Warn("discarding malformed goal message")
		return
	}
	if err := c.setter.SetGoal(goal.X, goal.Y); err != nil {
		c.log.WithError(err).Warn("goal update rejected")
	}
}

// Close unsubscribes and disconnects.
func (c *Client) Close() {
	c.client.Unsubscribe(c.topic)
	c.client.Disconnect(250)
}
