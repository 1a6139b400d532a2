package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Redis       RedisConfig               `json:"redis"`
	Transport   TransportConfig           `json:"transport"`
	Payment     PaymentConfig             `json:"payment"`
	Printing    PrintingConfig            `json:"printing"`
}

type BasicConfig struct {
	ServerAddress        string `json:"server_address"`
	UploadsDir           string `json:"uploads_dir"`
	AdminToken           string `json:"admin_token"`
	WhatsappNumber       string `json:"whatsapp_number"`
	SweepIntervalMinutes int    `json:"sweep_interval_minutes"`
	SweepMaxAgeMinutes   int    `json:"sweep_max_age_minutes"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Username string `json:"username"`
	Password string `json:"password"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type TransportConfig struct {
	ReplyURL string `json:"reply_url"`
	Token    string `json:"token"`
}

type PaymentConfig struct {
	SecretKey   string `json:"secret_key"`
	BaseURL     string `json:"base_url"`
	CallbackURL string `json:"callback_url"`
}

type PrintingConfig struct {
	PrinterName         string `json:"printer_name"`
	MagickPath          string `json:"magick_path"`
	SofficePath         string `json:"soffice_path"`
	QpdfPath            string `json:"qpdf_path"`
	GhostscriptPath     string `json:"ghostscript_path"`
	PrintToolPath       string `json:"print_tool_path"`
	StageTimeoutMinutes int    `json:"stage_timeout_minutes"`
}

// Load reads configuration from the provided path (defaults to config.json).
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.BasicConfig.UploadsDir == "" {
		cfg.BasicConfig.UploadsDir = "./Uploads"
	}
	if !filepath.IsAbs(cfg.BasicConfig.UploadsDir) {
		cfg.BasicConfig.UploadsDir = filepath.Join(filepath.Dir(absPath), cfg.BasicConfig.UploadsDir)
	}

	return &cfg, nil
}
