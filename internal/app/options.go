package app

import (
	"os"
	"time"

	"github.com/adsboard-next/internal/config"
	"github.com/adsboard-next/internal/logger"

	"go.uber.org/zap"
)

const defaultShutdownTimeout = 10 * time.Second

// 启动模式
const (
	ModeAll    = "all"
	ModeAPI    = "api"
	ModeWorker = "worker"
)

// Options 应用启动选项
type Options struct {
	Config          *config.Config
	Logger          *zap.SugaredLogger
	Signals         []os.Signal
	ShutdownTimeout time.Duration
	Mode            string
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = logger.S()
	}
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = defaultShutdownTimeout
		if o.Config != nil {
			o.ShutdownTimeout = o.Config.Server.ShutdownTimeout()
		}
	}
	if o.Mode == "" {
		o.Mode = ModeAll
	}
	return o
}

func (o Options) servesAPI() bool {
	return o.Mode == ModeAll || o.Mode == ModeAPI
}

func (o Options) runsWorker() bool {
	return o.Mode == ModeAll || o.Mode == ModeWorker
}
