package config

import (
	"fmt"
	"strings"

	"github.com/taaylor/web3-api/pkg/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config 定义整个配置的结构
type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	Server     ServerConfig     `mapstructure:"server"`
	Token      TokenConfig      `mapstructure:"token"`
	Explorer   ExplorerConfig   `mapstructure:"explorer"`
	TopHolders TopHoldersConfig `mapstructure:"top_holders"`
	Monitor    MonitorConfig    `mapstructure:"monitor"`
}

// LogConfig Log 日志配置
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Addr        string `mapstructure:"addr"`
	ReadTimeout int    `mapstructure:"read_timeout"` // 秒
}

// TokenConfig 目标代币与链配置
type TokenConfig struct {
	RPCURL           string `mapstructure:"rpc_url"`
	Address          string `mapstructure:"address"`
	MulticallAddress string `mapstructure:"multicall_address"`
}

// ExplorerConfig 区块浏览器 API 配置
type ExplorerConfig struct {
	Host      string `mapstructure:"host"`
	Path      string `mapstructure:"path"`
	APIKey    string `mapstructure:"api_key"`
	ChainID   int    `mapstructure:"chain_id"`
	RateLimit int    `mapstructure:"rate_limit"` // 每分钟请求次数
	Timeout   int    `mapstructure:"timeout"`    // 秒
}

// BaseURL 拼接完整请求地址，host 已带 scheme 时原样使用
func (c ExplorerConfig) BaseURL() string {
	host := strings.TrimSuffix(c.Host, "/")
	path := strings.TrimPrefix(c.Path, "/")
	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		return fmt.Sprintf("%s/%s", host, path)
	}
	return fmt.Sprintf("https://%s/%s", host, path)
}

// TopHoldersConfig 持有人排行配置
type TopHoldersConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	MaxPages   int  `mapstructure:"max_pages"`
	PageOffset int  `mapstructure:"page_offset"`
	CacheTTL   int  `mapstructure:"cache_ttl"` // 秒
}

type MonitorConfig struct {
	Enable         bool   `mapstructure:"enable"`
	PrometheusAddr string `mapstructure:"prometheus_addr"`
}

func InitConfig() Config {
	var config Config

	viper.SetConfigName("config.api")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config/")

	viper.SetDefault("log.level", "info")
	viper.SetDefault("server.addr", ":8000")
	viper.SetDefault("server.read_timeout", 30)
	viper.SetDefault("token.multicall_address", "0xcA11bde05977b3631167028862bE2a173976CA11")
	viper.SetDefault("explorer.host", "api.etherscan.io")
	viper.SetDefault("explorer.path", "v2/api")
	viper.SetDefault("explorer.chain_id", 137)
	viper.SetDefault("explorer.timeout", 10)
	viper.SetDefault("top_holders.enabled", true)
	viper.SetDefault("top_holders.max_pages", 5)
	viper.SetDefault("top_holders.page_offset", 200)
	viper.SetDefault("top_holders.cache_ttl", 30)

	err := viper.ReadInConfig()
	if err != nil {
		panic(fmt.Errorf("fatal error config file: %s", err))
	}

	if err := mapstructure.Decode(viper.AllSettings(), &config); err != nil {
		panic(fmt.Errorf("fatal error config file: %s", err))
	}

	return config
}

func WatchConfig(config *Config) {
	viper.WatchConfig()
	viper.OnConfigChange(func(e fsnotify.Event) {
		newConfig := InitConfig()
		*config = newConfig
		logger.SetLogLevel(config.Log.Level)
	})
}
