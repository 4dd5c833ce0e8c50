package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用全局配置结构体
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"db"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Log      LogConfig      `mapstructure:"log"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Storage  StorageConfig  `mapstructure:"storage"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Port          int        `mapstructure:"port"`
	CORS          CORSConfig `mapstructure:"cors"`
	MaxUploadSize int64      `mapstructure:"max_upload_size"` // 字节
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// DatabaseConfig PostgreSQL 数据库配置
type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"sslmode"`
	Timezone        string `mapstructure:"timezone"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`  // 连接最大生命周期（分钟）
	ConnMaxIdleTime int    `mapstructure:"conn_max_idle_time"` // 空闲连接最大存活时间（分钟）
}

// DSN 生成 PostgreSQL 连接字符串
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode, c.Timezone,
	)
}

// RedisConfig Redis 配置（导入锁、限流）
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig JWT 校验配置
// Token 由外部认证服务签发，本服务只做验签
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SlotConfig 模板中一个固定列对应的时间段
type SlotConfig struct {
	Start  string `mapstructure:"start"`  // "08:30"
	End    string `mapstructure:"end"`    // "10:00"
	Period string `mapstructure:"period"` // morning | afternoon
}

// ScheduleConfig 周模板导入配置
type ScheduleConfig struct {
	Timezone       string        `mapstructure:"timezone"`
	ShortDay       int           `mapstructure:"short_day"` // 只有上午时段的星期（1-5）
	Slots          []SlotConfig  `mapstructure:"slots"`
	PauseKeyword   string        `mapstructure:"pause_keyword"`
	AllKeyword     string        `mapstructure:"all_keyword"`
	ImportLockTTL  time.Duration `mapstructure:"import_lock_ttl"`
	ImportRateMax  int           `mapstructure:"import_rate_max"`
	ImportRateSpan time.Duration `mapstructure:"import_rate_span"`
}

// Location 解析模板时区
func (c *ScheduleConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// StorageConfig 模板归档存储配置
type StorageConfig struct {
	ArchiveDir string `mapstructure:"archive_dir"`
}

// DefaultSlots 默认时段布局：上午两段、午间一段、下午两段
func DefaultSlots() []SlotConfig {
	return []SlotConfig{
		{Start: "08:30", End: "10:00", Period: "morning"},
		{Start: "10:00", End: "11:30", Period: "morning"},
		{Start: "11:30", End: "13:30", Period: "morning"},
		{Start: "13:30", End: "15:00", Period: "afternoon"},
		{Start: "15:00", End: "16:30", Period: "afternoon"},
	}
}

// Load 从配置文件与环境变量加载配置
// 优先级：环境变量 > 配置文件 > 默认值
func Load(path string) (*Config, error) {
	v := viper.New()

	// ── 默认值 ──
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors.allow_origins", []string{"http://localhost:5173"})
	v.SetDefault("server.max_upload_size", 10<<20)

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.name", "planning")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.timezone", "Europe/Paris")
	v.SetDefault("db.max_open_conns", 25)
	v.SetDefault("db.max_idle_conns", 10)
	v.SetDefault("db.conn_max_lifetime", 60)  // 60分钟
	v.SetDefault("db.conn_max_idle_time", 30) // 30分钟

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("auth.issuer", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("schedule.timezone", "Europe/Paris")
	v.SetDefault("schedule.short_day", 3)
	v.SetDefault("schedule.slots", slotsAsMaps(DefaultSlots()))
	v.SetDefault("schedule.pause_keyword", "Pause")
	v.SetDefault("schedule.all_keyword", "tous")
	v.SetDefault("schedule.import_lock_ttl", "2m")
	v.SetDefault("schedule.import_rate_max", 10)
	v.SetDefault("schedule.import_rate_span", "1m")

	v.SetDefault("storage.archive_dir", "./data/templates")

	// ── 配置文件 ──
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// ── 环境变量 ──
	v.SetEnvPrefix("PLANNING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		// 配置文件不存在时仅依赖默认值和环境变量
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	// ── 关键配置校验 ──
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate 校验关键配置项
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("配置校验失败: auth.jwt_secret 不能为空")
	}
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("配置校验失败: auth.jwt_secret 长度不能少于 16 字符")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("配置校验失败: server.port 必须在 1-65535 之间")
	}
	return c.Schedule.Validate()
}

// Validate 校验时段布局
func (c *ScheduleConfig) Validate() error {
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("配置校验失败: schedule.timezone 无效: %w", err)
	}
	if c.ShortDay < 1 || c.ShortDay > 5 {
		return fmt.Errorf("配置校验失败: schedule.short_day 必须在 1-5 之间")
	}
	if len(c.Slots) == 0 {
		return fmt.Errorf("配置校验失败: schedule.slots 不能为空")
	}
	hasMorning := false
	for i, s := range c.Slots {
		start, err := parseClockMinutes(s.Start)
		if err != nil {
			return fmt.Errorf("配置校验失败: schedule.slots[%d].start: %w", i, err)
		}
		end, err := parseClockMinutes(s.End)
		if err != nil {
			return fmt.Errorf("配置校验失败: schedule.slots[%d].end: %w", i, err)
		}
		if end <= start {
			return fmt.Errorf("配置校验失败: schedule.slots[%d] 结束时间必须晚于开始时间", i)
		}
		switch s.Period {
		case "morning":
			hasMorning = true
		case "afternoon":
		default:
			return fmt.Errorf("配置校验失败: schedule.slots[%d].period 必须为 morning 或 afternoon", i)
		}
	}
	if !hasMorning {
		return fmt.Errorf("配置校验失败: schedule.slots 至少需要一个上午时段")
	}
	if c.PauseKeyword == "" || c.AllKeyword == "" {
		return fmt.Errorf("配置校验失败: schedule.pause_keyword / schedule.all_keyword 不能为空")
	}
	return nil
}

func parseClockMinutes(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("时间格式应为 HH:MM: %q", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// viper 对结构体切片默认值的解码需要 map 形式
func slotsAsMaps(slots []SlotConfig) []map[string]string {
	out := make([]map[string]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, map[string]string{"start": s.Start, "end": s.End, "period": s.Period})
	}
	return out
}
