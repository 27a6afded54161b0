package config

import (
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/saveblush/reraw-timeline/core/utils/logger"
)

var (
	CF = &Configs{}
)

var (
	filePath       = "./configs"
	fileExtension  = "yml"
	fileNameConfig = "config"
)

// Environment environment
type Environment string

const (
	Develop    Environment = "develop"
	Production Environment = "prod"
)

// Production check is production
func (e Environment) Production() bool {
	return e == Production
}

type DatabaseConfig struct {
	Host         string        `mapstructure:"HOST"`
	Port         int           `mapstructure:"PORT"`
	Username     string        `mapstructure:"USERNAME"`
	Password     string        `mapstructure:"PASSWORD"`
	DatabaseName string        `mapstructure:"DATABASE_NAME"`
	Timeout      string        `mapstructure:"TIMEOUT"`
	MaxIdleConns int           `mapstructure:"MAX_IDLE_CONNS"`
	MaxOpenConns int           `mapstructure:"MAX_OPEN_CONNS"`
	MaxLifetime  time.Duration `mapstructure:"MAX_LIFE_TIME"`
}

type TimelineConfig struct {
	ChunkSize   int `mapstructure:"CHUNK_SIZE"`
	ChunkBounce int `mapstructure:"CHUNK_BOUNCE"`
}

type TabConfig struct {
	Name   string `mapstructure:"NAME"`
	Preset string `mapstructure:"PRESET"`
}

type Configs struct {
	App struct {
		Port        int         `mapstructure:"PORT"`
		Environment Environment `mapstructure:"ENVIRONMENT"`
	} `mapstructure:"APP"`

	Stream struct {
		URL              string        `mapstructure:"URL"`
		Identity         uint64        `mapstructure:"IDENTITY"`
		IdleTimeout      time.Duration `mapstructure:"IDLE_TIMEOUT"`
		MaxMessageLength int64         `mapstructure:"MAX_MESSAGE_LENGTH"`
		BlockedWords     []string      `mapstructure:"BLOCKED_WORDS"`
	} `mapstructure:"STREAM"`

	Timeline TimelineConfig `mapstructure:"TIMELINE"`

	Backfill struct {
		Rate  float64 `mapstructure:"RATE"`
		Burst int     `mapstructure:"BURST"`
	} `mapstructure:"BACKFILL"`

	Relation struct {
		SyncSchedule string `mapstructure:"SYNC_SCHEDULE"`
	} `mapstructure:"RELATION"`

	Retention struct {
		Schedule string        `mapstructure:"SCHEDULE"`
		MaxAge   time.Duration `mapstructure:"MAX_AGE"`
	} `mapstructure:"RETENTION"`

	Tabs []TabConfig `mapstructure:"TABS"`

	Database struct {
		TimelineSQL DatabaseConfig `mapstructure:"TIMELINE_SQL"`
	} `mapstructure:"DATABASE"`
}

// setDefaults default values when missing from file and env
func setDefaults(v *viper.Viper) {
	v.SetDefault("APP.PORT", 8080)
	v.SetDefault("APP.ENVIRONMENT", string(Develop))
	v.SetDefault("STREAM.IDLE_TIMEOUT", 90*time.Second)
	v.SetDefault("STREAM.MAX_MESSAGE_LENGTH", 512*1024)
	v.SetDefault("TIMELINE.CHUNK_SIZE", 250)
	v.SetDefault("TIMELINE.CHUNK_BOUNCE", 50)
	v.SetDefault("BACKFILL.RATE", 1.0)
	v.SetDefault("BACKFILL.BURST", 3)
	v.SetDefault("RELATION.SYNC_SCHEDULE", "*/10 * * * *")
	v.SetDefault("RETENTION.SCHEDULE", "0 * * * *")
	v.SetDefault("RETENTION.MAX_AGE", 7*24*time.Hour)
}

// InitConfig init config
func InitConfig() error {
	v := viper.New()
	v.AddConfigPath(filePath)
	v.SetConfigName(fileNameConfig)
	v.SetConfigType(fileExtension)
	v.AutomaticEnv()
	setDefaults(v)

	// แปลง _ underscore เป็น . dot
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		logger.Log.Errorf("read config file error: %s", err)
		return err
	}

	if err := v.Unmarshal(CF); err != nil {
		logger.Log.Errorf("binding config error: %s", err)
		return err
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		logger.Log.Infof("config file changed: %s", e.Name)
		if err := v.Unmarshal(CF); err != nil {
			logger.Log.Errorf("binding config error: %s", err)
		}
	})
	v.WatchConfig()

	return nil
}
