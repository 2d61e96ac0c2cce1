package config

import (
	"log"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	MySQL  MySQLConfig  `mapstructure:"mysql"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Kafka  KafkaConfig  `mapstructure:"kafka"`
	Payout PayoutConfig `mapstructure:"payout"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers       []string         `mapstructure:"brokers"`
	ConsumerGroup string           `mapstructure:"consumer_group"`
	Topic         KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	PaymentResult string `mapstructure:"payment_result"` // 消费：支付结果事件
	PayoutNotice  string `mapstructure:"payout_notice"`  // 生产：打款完成通知
}

// PayoutConfig 结算业务参数
type PayoutConfig struct {
	MaxRetryCount          int `mapstructure:"max_retry_count"`           // 打款失败最大重试次数
	RetryDelayHours        int `mapstructure:"retry_delay_hours"`         // 两次重试的间隔
	SettleTimeoutSeconds   int `mapstructure:"settle_timeout_seconds"`    // 渠道转账调用超时
	GenerateIntervalSecond int `mapstructure:"generate_interval_second"`  // 打款生成扫描周期
	ExecuteIntervalSecond  int `mapstructure:"execute_interval_second"`   // 打款执行扫描周期
	BatchSize              int `mapstructure:"batch_size"`                // 单轮扫描处理上限
	StaleProcessingMinutes int `mapstructure:"stale_processing_minutes"`  // PROCESSING 滞留超时，超时转人工对账
}

var GlobalConfig *Config

// LoadConfig 加载配置文件
func LoadConfig(configPath string) *Config {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("读取配置文件失败: %v", err)
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		log.Fatalf("解析配置文件失败: %v", err)
	}

	GlobalConfig = config
	return config
}
