package main

import (
	"fmt"
	"time"
)

type Config struct {
	Host            string        `env:"HOST,default=localhost"`
	TCPPort         int           `env:"TCP_PORT,default=8080"`
	HTTPPort        int           `env:"HTTP_PORT,default=8081"`
	BadgerFilepath  string        `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath   string        `env:"BLUGE_FILEPATH,required=true"`
	LogLevel        string        `env:"LOG_LEVEL,default=info"`
	LogFilepath     string        `env:"LOG_FILEPATH"`
	BroadcastLimit  int           `env:"BROADCAST_LIMIT,default=10"`
	ShutdownGrace   time.Duration `env:"SHUTDOWN_GRACE,default=5s"`
	RestartInterval time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	MetricInterval  time.Duration `env:"METRIC_INTERVAL,default=30s"`
	CharReplacement string        `env:"MODERATION_CHARACTER_REPLACEMENT,default=*"`
	// AuthSecret enables the signed-token auth mode; empty means the
	// bare userId presented by the auth command is trusted.
	AuthSecret string `env:"AUTH_SECRET"`
}

func (c Config) characterRune() (rune, error) {
	r := []rune(c.CharReplacement)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"MODERATION_CHARACTER_REPLACEMENT must be a single character, got %q",
			c.CharReplacement,
		)
	}
	return r[0], nil
}
