/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/valpere/legtrans/internal/config"
	"github.com/valpere/legtrans/internal/logging"
)

var version = "0.1.0"

var (
	cfgFile string
	cfg     *config.Config
	logger  *slog.Logger
)

// flagKeys maps command-line flags onto config keys. A flag set on the
// command line wins over the environment and the config file.
var flagKeys = map[string]string{
	"log-level":       "log.level",
	"log-format":      "log.format",
	"addr":            "server.addr",
	"backend":         "client.backend",
	"space":           "client.space",
	"endpoint":        "client.endpoint",
	"credentials":     "client.google_credentials",
	"mymemory-email":  "client.mymemory_email",
	"connect-timeout": "client.connect_timeout",
	"predict-timeout": "client.predict_timeout",
	"debounce":        "session.debounce",
	"location":        "location.backend",
	"redis-addr":      "location.redis_addr",
	"ocr-url":         "ocr.url",
	"ocr-timeout":     "ocr.timeout",
	"db":              "store.path",
	"idle-timeout":    "session.idle_timeout",
	"max-sessions":    "session.max_sessions",
}

var rootCmd = &cobra.Command{
	Use:   "legtrans",
	Short: "Legal text translation service (French <-> Arabic)",
	Long: `legtrans runs debounced translation sessions against a Hugging Face
Space (or Google / MyMemory), keeps each session's text in a shareable
location, and proxies scanned images to an OCR backend.

Use "legtrans serve" to start the HTTP API and "legtrans translate" for a
one-shot translation.`,
	Version:       version,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		v := config.New(cfgFile)
		if err := bindFlags(v, cmd.Flags()); err != nil {
			return err
		}
		loaded, err := config.Load(v)
		if err != nil {
			return err
		}
		cfg = loaded
		logger = logging.New(logging.ParseLevel(cfg.Log.Level), cfg.Log.Format, os.Stderr)
		slog.SetDefault(logger)
		return nil
	},
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || err != nil {
			return
		}
		err = v.BindPFlag(key, f)
	})
	return err
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default ./legtrans.yaml or ~/.config/legtrans/legtrans.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format: text or json")
}
