package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

const (
	DefaultConfigFileName = "config.toml"
	DefaultDBName         = "remind.db"
	DefaultLogName        = "remind.log"
	appDirName            = "remind"
	envConfigPath         = "REMIND_CONFIG"
)

type Keymap struct {
	Quit     string `toml:"quit"`
	Add      string `toml:"add"`
	Up       string `toml:"up"`
	Down     string `toml:"down"`
	Delete   string `toml:"delete"`
	Search   string `toml:"search"`
	Category string `toml:"category"`
	Calendar string `toml:"calendar"`
	Confirm  string `toml:"confirm"`
	Cancel   string `toml:"cancel"`
	Next     string `toml:"next"`
	Prev     string `toml:"prev"`
	// Cycle steps the focused category or priority field through its list.
	Cycle string `toml:"cycle"`
}

// Duration wraps time.Duration so it reads and writes as "10s" in TOML.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

type Reminders struct {
	Interval Duration `toml:"interval"`
	Window   Duration `toml:"window"`
	// Repeat fires on every tick inside the window instead of once per task.
	Repeat  bool `toml:"repeat"`
	Desktop bool `toml:"desktop"`
}

type Config struct {
	DBPath          string    `toml:"db_path"`
	LogPath         string    `toml:"log_path"`
	DefaultCategory string    `toml:"default_category"`
	DefaultPriority string    `toml:"default_priority"`
	Categories      []string  `toml:"categories"`
	Priorities      []string  `toml:"priorities"`
	Reminders       Reminders `toml:"reminders"`
	Keys            Keymap    `toml:"keys"`
}

// ResolveConfigPath picks the config file location: $REMIND_CONFIG, then the
// user config dir, then the working directory.
func ResolveConfigPath() string {
	if p := strings.TrimSpace(os.Getenv(envConfigPath)); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return DefaultConfigFileName
	}
	return filepath.Join(dir, appDirName, DefaultConfigFileName)
}

func LoadOrCreate(path string) (Config, error) {
	cfg := Default(filepath.Dir(path))
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := write(path, cfg); err != nil {
			return cfg, err
		}
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	cfg.fillDefaults(filepath.Dir(path))
	return cfg, nil
}

func write(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil && !errors.Is(err, os.ErrExist) {
		return err
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// fillDefaults restores anything a hand-edited file left blank.
func (c *Config) fillDefaults(dir string) {
	d := Default(dir)
	if c.DBPath == "" {
		c.DBPath = d.DBPath
	}
	if c.LogPath == "" {
		c.LogPath = d.LogPath
	}
	if strings.TrimSpace(c.DefaultCategory) == "" {
		c.DefaultCategory = d.DefaultCategory
	}
	if strings.TrimSpace(c.DefaultPriority) == "" {
		c.DefaultPriority = d.DefaultPriority
	}
	if len(c.Categories) == 0 {
		c.Categories = d.Categories
	}
	if len(c.Priorities) == 0 {
		c.Priorities = d.Priorities
	}
	if c.Reminders.Interval.Duration <= 0 {
		c.Reminders.Interval = d.Reminders.Interval
	}
	if c.Reminders.Window.Duration <= 0 {
		c.Reminders.Window = d.Reminders.Window
	}
	c.Keys = c.Keys.withDefaults(d.Keys)
}

func (k Keymap) withDefaults(d Keymap) Keymap {
	pick := func(v, def string) string {
		if v == "" {
			return def
		}
		return v
	}
	return Keymap{
		Quit:     pick(k.Quit, d.Quit),
		Add:      pick(k.Add, d.Add),
		Up:       pick(k.Up, d.Up),
		Down:     pick(k.Down, d.Down),
		Delete:   pick(k.Delete, d.Delete),
		Search:   pick(k.Search, d.Search),
		Category: pick(k.Category, d.Category),
		Calendar: pick(k.Calendar, d.Calendar),
		Confirm:  pick(k.Confirm, d.Confirm),
		Cancel:   pick(k.Cancel, d.Cancel),
		Next:     pick(k.Next, d.Next),
		Prev:     pick(k.Prev, d.Prev),
		Cycle:    pick(k.Cycle, d.Cycle),
	}
}

// Default returns the built-in configuration with data files placed in dir.
func Default(dir string) Config {
	return Config{
		DBPath:          filepath.Join(dir, DefaultDBName),
		LogPath:         filepath.Join(dir, DefaultLogName),
		DefaultCategory: "personal",
		DefaultPriority: "medium",
		Categories:      []string{"work", "personal", "shopping", "others"},
		Priorities:      []string{"low", "medium", "high"},
		Reminders: Reminders{
			Interval: Duration{10 * time.Second},
			Window:   Duration{time.Minute},
			Repeat:   false,
			Desktop:  true,
		},
		Keys: Keymap{
			Quit:     "q",
			Add:      "a",
			Up:       "k",
			Down:     "j",
			Delete:   "d",
			Search:   "/",
			Category: "c",
			Calendar: "m",
			Confirm:  "enter",
			Cancel:   "esc",
			Next:     "tab",
			Prev:     "shift+tab",
			Cycle:    "ctrl+n",
		},
	}
}
