package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"reelcast/internal/config"
	"reelcast/internal/pkg/logger"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "reelcast",
	Short: "Reelcast - narrated vertical short video renderer",
	Long: `Reelcast turns qna and advice posts into narrated vertical short videos.
Each post is synthesized to speech, captioned, laid over a random slice of
gameplay footage and encoded to a single mp4.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: ./configs/config.yaml)")

	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.reelcast")
	}

	// 环境变量设置
	viper.SetEnvPrefix("REELCAST")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// 设置默认值
	setDefaults()

	// 读取配置文件
	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			fmt.Fprintln(os.Stderr, "No config file found, using defaults and environment variables")
		} else {
			fmt.Fprintf(os.Stderr, "Failed to read config: %v\n", err)
			os.Exit(1)
		}
	}

	// 反序列化到结构体
	cfg = &config.Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to unmarshal config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}

	log.Debug().Str("config_file", viper.ConfigFileUsed()).Msg("configuration loaded")
}

func setDefaults() {
	// Server
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.mode", "release")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")

	// Log
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.time_format", "RFC3339")

	// MongoDB
	viper.SetDefault("mongo.uri", "mongodb://localhost:27017")
	viper.SetDefault("mongo.database", "reelcast")
	viper.SetDefault("mongo.max_pool_size", 100)
	viper.SetDefault("mongo.min_pool_size", 10)

	// Redis
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)

	// Storage
	viper.SetDefault("storage.type", "")

	// TTS
	viper.SetDefault("tts.provider", "volc")
	viper.SetDefault("tts.tempo", 1.2)
	viper.SetDefault("tts.volc.cluster", "volcano_tts")
	viper.SetDefault("tts.volc.voice_type", "en_male_adam_mars_bigtts")
	viper.SetDefault("tts.volc.language", "en")
	viper.SetDefault("tts.volc.sample_rate", 44100)
	viper.SetDefault("tts.volc.speed_ratio", 1.0)
	viper.SetDefault("tts.volc.timeout", "30s")
	viper.SetDefault("tts.command.path", "espeak-ng")
	viper.SetDefault("tts.command.args", []string{"-w", "{output}", "--", "{text}"})
	viper.SetDefault("tts.command.ext", ".wav")

	// Render
	viper.SetDefault("render.width", 1080)
	viper.SetDefault("render.height", 1920)
	viper.SetDefault("render.fps", 30)
	viper.SetDefault("render.aspect_ratio", "9:16")
	viper.SetDefault("render.max_caption_chars", 30)
	viper.SetDefault("render.max_segment_chars", 1000)
	viper.SetDefault("render.body_chunk_chars", 300)
	viper.SetDefault("render.pause", "0s")
	viper.SetDefault("render.title_pause", "0s")
	viper.SetDefault("render.max_video_length", "0s")
	viper.SetDefault("render.seed", 0)
	viper.SetDefault("render.output_dir", "./output")
	viper.SetDefault("render.concurrency", 4)
	viper.SetDefault("render.font_name", "Arial")
	viper.SetDefault("render.font_size", 64)
	viper.SetDefault("render.title_font_size", 80)
	viper.SetDefault("render.video_codec", "libx264")
	viper.SetDefault("render.audio_codec", "aac")
	viper.SetDefault("render.crf", 23)
	viper.SetDefault("render.preset", "veryfast")
	viper.SetDefault("render.lock_ttl", "30m")
	viper.SetDefault("render.outro.enabled", false)
	viper.SetDefault("render.outro.text", "Like & Follow for more!")
	viper.SetDefault("render.outro.duration", "3s")
	viper.SetDefault("render.outro.font_size", 72)

	// Background
	viper.SetDefault("background.dir", "./backgrounds")
	viper.SetDefault("background.extensions", []string{".mp4"})
	viper.SetDefault("background.avoid_repeat", false)

	// Worker
	viper.SetDefault("worker.queue", "reelcast:renders")
	viper.SetDefault("worker.concurrency", 1)
	viper.SetDefault("worker.poll_timeout", "5s")
	viper.SetDefault("worker.stale_after", "1h")
}

// GetConfig returns the global configuration
func GetConfig() *config.Config {
	return cfg
}

// signalContext 返回在收到 SIGINT/SIGTERM 时取消的 context
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}
