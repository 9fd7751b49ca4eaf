package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type Config struct {
	path    string
	Partner *Partner `yaml:"partner"` // 上游平台
	MySQL   Mysql    `yaml:"mysql"`   // 数据库
	Gorm    Gorm     `yaml:"gorm"`    // gorm
	Server  Server   `yaml:"server"`  // http服务
	Sync    Sync     `yaml:"sync"`    // 同步任务
}

// Partner 上游平台连接配置
type Partner struct {
	BaseURL       string        `json:"baseUrl" yaml:"BaseURL"`
	Origin        string        `json:"origin" yaml:"Origin"`
	Username      string        `json:"username" yaml:"Username"`
	Password      string        `json:"password" yaml:"Password"`
	TokenTTL      time.Duration `json:"tokenTtl" yaml:"TokenTTL"`
	Timeout       time.Duration `json:"timeout" yaml:"Timeout"`
	BatchSize     int           `json:"batchSize" yaml:"BatchSize"`
	MaxConcurrent int           `json:"maxConcurrent" yaml:"MaxConcurrent"`
}

type Server struct {
	Host string `json:"host" yaml:"Host"`
	Port int    `json:"port" yaml:"Port"`
}

// Sync 后台重试任务配置，RetryInterval <= 0 表示关闭
type Sync struct {
	RetryInterval   time.Duration `json:"retryInterval" yaml:"RetryInterval"`
	RetryBatchLimit int           `json:"retryBatchLimit" yaml:"RetryBatchLimit"`
}

var (
	once           sync.Once
	conf           *Config
	lastChangeTime time.Time
)

func init() {
	once.Do(func() {
		conf = new(Config)
	})
}

// checkConfigEnv 检查配置环境变量是否设置
func checkConfigEnv() error {
	conf.path = os.Getenv("CONF_DIR_PATH")
	if len(conf.path) == 0 {
		return errors.New("can not find config dir path")
	}

	return nil
}

// LoadConfig 加载配置文件
func LoadConfig() error {
	err := checkConfigEnv()
	if err != nil {
		return err
	}

	viper.AddConfigPath(conf.path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	err = viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("Fatal error config file: %w \n", err)
	}

	err = viper.Unmarshal(conf)
	if err != nil {
		return err
	}

	conf.ApplyDefaults()
	conf.ConfigFileChangeListen()

	return nil
}

// GetConfigInstance 获取配置实例
func GetConfigInstance() *Config {
	if conf != nil {
		return conf
	}
	// config 实例未初始化
	panic("config init error")
}

// ApplyDefaults 填充未配置项的默认值
func (confIns *Config) ApplyDefaults() {
	if confIns.Partner == nil {
		confIns.Partner = new(Partner)
	}
	if confIns.Partner.TokenTTL <= 0 {
		confIns.Partner.TokenTTL = time.Hour
	}
	if confIns.Partner.Timeout <= 0 {
		confIns.Partner.Timeout = 30 * time.Second
	}
	if confIns.Partner.BatchSize <= 0 {
		confIns.Partner.BatchSize = 100
	}
	if confIns.Partner.MaxConcurrent <= 0 {
		confIns.Partner.MaxConcurrent = 8
	}
	if confIns.Sync.RetryBatchLimit <= 0 {
		confIns.Sync.RetryBatchLimit = 200
	}
}

// 配置文件热更
func (confIns *Config) ConfigFileChangeListen() {
	viper.OnConfigChange(func(changeEvent fsnotify.Event) {
		if time.Since(lastChangeTime).Seconds() >= 1 {
			if changeEvent.Op.String() == "WRITE" {
				lastChangeTime = time.Now()
				err := viper.Unmarshal(conf)
				if err != nil {
					fmt.Println(err)
				}
			}
		}
	})
	viper.WatchConfig()
}

// mysql数据库配置
type Mysql struct {
	// ip
	Host string `json:"host" yaml:"Host"`
	// 端口
	Port int `json:"port" yaml:"Port"`
	// mysql cli用户
	User string `json:"user" yaml:"User"`
	// 密码
	Password string `json:"password" yaml:"Password"`
	// 数据库
	DBName string `json:"dbName" yaml:"DBName"`
	// 其他参数
	Parameters string `json:"parameters" yaml:"Parameters"`
}

// DSN 数据库连接串
func (m Mysql) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
		m.User, m.Password, m.Host, m.Port, m.DBName, m.Parameters)
}

// Gorm 框架的相关配置
type Gorm struct {
	// 日志打印级别
	Debug bool `json:"debug" yaml:"Debug"`
	// 数据库类型：例如mysql
	DBType            string `json:"dbType" yaml:"DBType"`
	MaxLifetime       int    `json:"maxLifetime" yaml:"MaxLifetime"`
	MaxOpenConns      int    `json:"maxOpenConns" yaml:"MaxOpenConns"`
	MaxIdleConns      int    `json:"maxIdleConns" yaml:"MaxIdleConns"`
	EnableAutoMigrate bool   `json:"enableAutoMigrate" yaml:"EnableAutoMigrate"`
	// 是否开启日志打印
	IsLoggerOn bool `json:"isLoggerOn"`
}
