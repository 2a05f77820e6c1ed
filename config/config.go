// Package config loads client settings from a YAML file. Every field is
// optional; omitted fields keep the production defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/feathrs/fchat-go"
)

type File struct {
	Endpoints EndpointsConfig `yaml:"endpoints"`
	Client    ClientConfig    `yaml:"client"`
	Timing    TimingConfig    `yaml:"timing"`
	Events    EventsConfig    `yaml:"events"`
}

type EndpointsConfig struct {
	Chat    string `yaml:"chat"`
	Ticket  string `yaml:"ticket"`
	APIBase string `yaml:"api_base"`
}

type ClientConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type TimingConfig struct {
	HTTPTimeout      time.Duration `yaml:"http_timeout"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	PongGrace        time.Duration `yaml:"pong_grace"`
	BackoffInitial   time.Duration `yaml:"backoff_initial"`
	BackoffMax       time.Duration `yaml:"backoff_max"`
}

type EventsConfig struct {
	SubscriberBuffer int `yaml:"subscriber_buffer"`
}

// Load reads path and returns a session configuration with file values
// layered over the defaults.
func Load(path string) (fchat.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return fchat.Config{}, err
	}

	def := fchat.DefaultConfig()
	f := &File{
		Endpoints: EndpointsConfig{
			Chat:    def.ChatURL,
			Ticket:  def.TicketURL,
			APIBase: def.APIBase,
		},
		Client: ClientConfig{
			Name:    def.ClientName,
			Version: def.ClientVersion,
		},
		Timing: TimingConfig{
			HTTPTimeout:      def.HTTPTimeout,
			HandshakeTimeout: def.HandshakeTimeout,
			PingInterval:     def.PingInterval,
			PongGrace:        def.PongGrace,
			BackoffInitial:   def.BackoffInitial,
			BackoffMax:       def.BackoffMax,
		},
		Events: EventsConfig{
			SubscriberBuffer: def.SubscriberBuffer,
		},
	}

	if err := yaml.Unmarshal(data, f); err != nil {
		return fchat.Config{}, fmt.Errorf("config %s: %w", path, err)
	}

	return fchat.Config{
		ChatURL:          f.Endpoints.Chat,
		TicketURL:        f.Endpoints.Ticket,
		APIBase:          f.Endpoints.APIBase,
		ClientName:       f.Client.Name,
		ClientVersion:    f.Client.Version,
		HTTPTimeout:      f.Timing.HTTPTimeout,
		HandshakeTimeout: f.Timing.HandshakeTimeout,
		PingInterval:     f.Timing.PingInterval,
		PongGrace:        f.Timing.PongGrace,
		BackoffInitial:   f.Timing.BackoffInitial,
		BackoffMax:       f.Timing.BackoffMax,
		SubscriberBuffer: f.Events.SubscriberBuffer,
	}, nil
}
