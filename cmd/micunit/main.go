package main

import (
	"fmt"
	"os"

	"github.com/lisuiheng/micunit/core"
	"github.com/lisuiheng/micunit/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	version = "0.1.0"
	cfgFile string
	v       = viper.New()
)

var rootCmd = &cobra.Command{
	Use:           "micunit",
	Short:         "Real-time microphone capture and encoding",
	Long:          `micunit captures the microphone, encodes each capture period into timestamped sample units and streams them to a sink.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("micunit v%s\n", version)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "config file (default searches ./config.yaml, ./config/config.yaml, /etc/micunit/config.yaml)")
	flags.Bool("debug", false, "debug logging to stdout")
	flags.String("backend", "", "capture backend: malgo or portaudio")
	flags.String("codec", "", "output codec: opus, opus-gopus or lpcm")

	_ = v.BindPFlag("debug", flags.Lookup("debug"))
	_ = v.BindPFlag("audio.backend", flags.Lookup("backend"))
	_ = v.BindPFlag("audio.codec", flags.Lookup("codec"))

	rootCmd.AddCommand(captureCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig 加载配置并初始化日志
func loadConfig() (*core.Config, error) {
	cfg, err := core.LoadConfig(v, cfgFile)
	if err != nil {
		return nil, err
	}

	logCfg := logger.Config{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Outputs: cfg.Logging.Outputs,
	}
	// 调试模式覆盖配置
	if v.GetBool("debug") {
		logCfg.Level = "debug"
		logCfg.Outputs = []string{"stdout"}
	}
	if err := logger.Init(logCfg); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Debug("Configuration loaded", "file", v.ConfigFileUsed())
	return cfg, nil
}
