// Package autoload initialises the global logger from LOG_* environment
// variables when imported for side effects.
package autoload

import (
	"os"

	"github.com/kelseyhightower/envconfig"

	logx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/pkg/logger"
)

func init() {
	var conf logx.Config
	if err := envconfig.Process("LOG", &conf); err != nil {
		logx.Init()
		return
	}
	logx.InitWriter(os.Stdout, conf)
}
