// Package autoload initializes the global logger from the environment on import.
package autoload

import (
	configx "github.com/pakornv/refund-returns-agent/pkg/config"
	logx "github.com/pakornv/refund-returns-agent/pkg/logger"
)

func init() {
	conf, err := configx.New[logx.Config]("LOG")
	if err != nil {
		logx.Init()
		return
	}
	logx.Init(*conf)
}
