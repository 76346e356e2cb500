package config

import (
	"os"

	"github.com/go-yaml/yaml"
)

type Config struct {
	Site   Site   `yaml:"site"`
	Server Server `yaml:"server"`
	SMTP   SMTP   `yaml:"smtp"`
}

type Site struct {
	// AdminIdentifier is the fixed identity the shared admin secret is
	// exchanged against. Not configurable per request on purpose.
	AdminIdentifier string `yaml:"adminIdentifier"`

	LoadTimeoutSeconds    int `yaml:"loadTimeoutSeconds"`
	RecipientFlushSeconds int `yaml:"recipientFlushSeconds"`
	SessionTTLMinutes     int `yaml:"sessionTTLMinutes"`
}

type Server struct {
	Listen        string `yaml:"listen"`
	PostgresDsn   string `yaml:"postgresDsn"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisDB       int    `yaml:"redisDB"`
	MemcachedAddr string `yaml:"memcachedAddr"`
	CacheFile     string `yaml:"cacheFile"`
	EnableTrace   bool   `yaml:"enableTrace"`
	TraceEndpoint string `yaml:"traceEndpoint"`
}

type SMTP struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

func Load(path string) (Config, error) {

	file, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer file.Close()

	var config Config
	err = yaml.NewDecoder(file).Decode(&config)
	if err != nil {
		return Config{}, err
	}

	applyDefaults(&config)

	return config, nil
}

func applyDefaults(c *Config) {
	if c.Site.AdminIdentifier == "" {
		c.Site.AdminIdentifier = "admin@conselhomais.com.br"
	}
	if c.Site.LoadTimeoutSeconds <= 0 {
		c.Site.LoadTimeoutSeconds = 5
	}
	if c.Site.RecipientFlushSeconds <= 0 {
		c.Site.RecipientFlushSeconds = 5
	}
	if c.Site.SessionTTLMinutes <= 0 {
		c.Site.SessionTTLMinutes = 12 * 60
	}
	if c.Server.Listen == "" {
		c.Server.Listen = ":8000"
	}
	if c.Server.CacheFile == "" {
		c.Server.CacheFile = "portal-cache.gob"
	}
	if c.SMTP.Port == 0 {
		c.SMTP.Port = 587
	}
}
