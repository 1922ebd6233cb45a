package shared

import (
	"encoding/json"
	"errors"
	"net"
	"os"
	"strconv"
	"time"
)

type ServerConfig struct {
	Host        string   `json:"host"`
	Port        int      `json:"port"`
	RomDirs     []string `json:"rom_dirs"`
	StateDir    string   `json:"state_dir"`
	DBPath      string   `json:"db_path"`
	UserName    string   `json:"user_name"`
	MaxConns    int      `json:"max_conns"`
	IdleSeconds int      `json:"idle_seconds"`
	DAVListen   string   `json:"dav_listen"` // empty disables the WebDAV mount

	TitleDB TitleDBConfig `json:"titledb"`
}

type TitleDBConfig struct {
	URL            string `json:"url"`
	DeviceID       string `json:"device_id"`
	Firmware       string `json:"firmware"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

func LoadServerConfig(path string) (*ServerConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c ServerConfig
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	c.applyDefaults()
	return &c, nil
}

// DefaultServerConfig is used when no config file exists yet.
func DefaultServerConfig() *ServerConfig {
	c := &ServerConfig{}
	c.applyDefaults()
	return c
}

func (c *ServerConfig) applyDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port <= 0 {
		c.Port = 9000
	}
	if len(c.RomDirs) == 0 {
		c.RomDirs = []string{"./roms"}
	}
	if c.StateDir == "" {
		c.StateDir = "./data"
	}
	if c.DBPath == "" {
		c.DBPath = "./data/gameshelf.db"
	}
	if c.UserName == "" {
		c.UserName = "guest"
	}
	if c.MaxConns <= 0 {
		c.MaxConns = 64
	}
	if c.IdleSeconds <= 0 {
		c.IdleSeconds = 60
	}
	if c.TitleDB.TimeoutSeconds <= 0 {
		c.TitleDB.TimeoutSeconds = 30
	}
}

func (c *ServerConfig) Validate() error {
	if c.Port > 65535 {
		return errors.New("port out of range: " + strconv.Itoa(c.Port))
	}
	if net.ParseIP(c.Host) == nil && c.Host != "localhost" {
		return errors.New("invalid host: " + c.Host)
	}
	return nil
}

func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c *ServerConfig) IdleTimeout() time.Duration {
	return time.Duration(c.IdleSeconds) * time.Second
}

func SaveServerConfig(path string, c *ServerConfig) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0600)
}
