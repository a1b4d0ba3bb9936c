package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/barke-deploy/barke/internal/ignore"
	"github.com/barke-deploy/barke/internal/remote"
	"github.com/barke-deploy/barke/internal/transport"
	"github.com/barke-deploy/barke/internal/utils"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	DefaultFileName = "barke.yaml"
	DefaultTimeout  = 30 * time.Second
)

const (
	OSUnix    = "unix"
	OSWindows = "windows"

	TransportSSH = "ssh"
	TransportFTP = "ftp"

	ListerScript   = "script"
	ListerForfiles = "forfiles"
)

var ErrInvalidConfig = errors.New("config: invalid")

type Config struct {
	TargetOS       string   `mapstructure:"target_os" yaml:"target_os"`
	Transport      string   `mapstructure:"transport" yaml:"transport"`
	Host           string   `mapstructure:"host" yaml:"host"`
	LocalBasePath  string   `mapstructure:"local_basepath" yaml:"local_basepath"`
	RemoteBasePath string   `mapstructure:"remote_basepath" yaml:"remote_basepath"`
	Ignores        []string `mapstructure:"ignores" yaml:"ignores"`
	DistDirs       []string `mapstructure:"dist_dirs" yaml:"dist_dirs,omitempty"`
	FollowSymlinks bool     `mapstructure:"follow_symlinks" yaml:"follow_symlinks"`

	// Windows over SSH only
	WindowsLister      string `mapstructure:"windows_lister" yaml:"windows_lister,omitempty"`
	ForfilesDateLayout string `mapstructure:"forfiles_date_layout" yaml:"forfiles_date_layout,omitempty"`
	ScriptDir          string `mapstructure:"script_dir" yaml:"script_dir,omitempty"`

	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout,omitempty"`
	SSH     SSHConfig     `mapstructure:"ssh" yaml:"ssh,omitempty"`
	FTP     FTPConfig     `mapstructure:"ftp" yaml:"ftp,omitempty"`

	Path string `mapstructure:"-" yaml:"-"`
}

type SSHConfig struct {
	Port           int    `mapstructure:"port" yaml:"port,omitempty"`
	Username       string `mapstructure:"username" yaml:"username,omitempty"`
	Password       string `mapstructure:"password" yaml:"password,omitempty"`
	PrivateKeyPath string `mapstructure:"private_key_path" yaml:"private_key_path,omitempty"`
	Passphrase     string `mapstructure:"passphrase" yaml:"passphrase,omitempty"`
	KnownHosts     string `mapstructure:"known_hosts" yaml:"known_hosts,omitempty"`
}

type FTPConfig struct {
	Port     int    `mapstructure:"port" yaml:"port,omitempty"`
	Username string `mapstructure:"username" yaml:"username,omitempty"`
	Password string `mapstructure:"password" yaml:"password,omitempty"`
	// BasePath is the directory the FTP account is rooted at on the server.
	BasePath string `mapstructure:"base_path" yaml:"base_path,omitempty"`
	Secure   bool   `mapstructure:"secure" yaml:"secure,omitempty"`
}

// SetDefaults registers every key with v, so each one can also be set
// through the environment (BARKE_SSH_PASSWORD for ssh.password).
func SetDefaults(v *viper.Viper) {
	v.SetDefault("target_os", OSUnix)
	v.SetDefault("transport", TransportSSH)
	v.SetDefault("host", "")
	v.SetDefault("local_basepath", "")
	v.SetDefault("remote_basepath", "")
	v.SetDefault("ignores", []string{})
	v.SetDefault("dist_dirs", []string{})
	v.SetDefault("follow_symlinks", false)
	v.SetDefault("windows_lister", ListerScript)
	v.SetDefault("forfiles_date_layout", remote.DefaultForfilesDateLayout)
	v.SetDefault("script_dir", remote.DefaultScriptDir)
	v.SetDefault("timeout", DefaultTimeout)

	v.SetDefault("ssh.port", 22)
	v.SetDefault("ssh.username", "")
	v.SetDefault("ssh.password", "")
	v.SetDefault("ssh.private_key_path", "")
	v.SetDefault("ssh.passphrase", "")
	v.SetDefault("ssh.known_hosts", "")

	v.SetDefault("ftp.port", 21)
	v.SetDefault("ftp.username", "")
	v.SetDefault("ftp.password", "")
	v.SetDefault("ftp.base_path", "")
	v.SetDefault("ftp.secure", false)
}

// Load decodes the settings held by v, which has already read the config
// file, the environment and the flags.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config decode '%s': %w", v.ConfigFileUsed(), err)
	}
	cfg.Path = v.ConfigFileUsed()
	return &cfg, nil
}

// Example is the starter config written by `barke init`.
func Example() *Config {
	return &Config{
		TargetOS:       OSUnix,
		Transport:      TransportSSH,
		Host:           "example.com",
		LocalBasePath:  "./dist",
		RemoteBasePath: "/var/www/example.com",
		Ignores:        []string{"/.git", "/node_modules", "*.log"},
		DistDirs:       []string{"assets"},
		SSH: SSHConfig{
			Port:           22,
			Username:       "deploy",
			PrivateKeyPath: "~/.ssh/id_ed25519",
		},
	}
}

func (c *Config) Validate() error {
	switch c.TargetOS {
	case OSUnix, OSWindows:
	default:
		return fmt.Errorf("%w: `target_os` must be %q or %q, got %q", ErrInvalidConfig, OSUnix, OSWindows, c.TargetOS)
	}

	switch c.Transport {
	case TransportSSH:
		if c.SSH.Username == "" {
			return fmt.Errorf("%w: `ssh.username` is required", ErrInvalidConfig)
		}
		if c.SSH.Password == "" && c.SSH.PrivateKeyPath == "" {
			return fmt.Errorf("%w: `ssh.password` or `ssh.private_key_path` is required", ErrInvalidConfig)
		}
	case TransportFTP:
		if c.FTP.Username == "" {
			return fmt.Errorf("%w: `ftp.username` is required", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: `transport` must be %q or %q, got %q", ErrInvalidConfig, TransportSSH, TransportFTP, c.Transport)
	}

	switch c.WindowsLister {
	case "", ListerScript, ListerForfiles:
	default:
		return fmt.Errorf("%w: `windows_lister` must be %q or %q, got %q", ErrInvalidConfig, ListerScript, ListerForfiles, c.WindowsLister)
	}

	if c.Host == "" {
		return fmt.Errorf("%w: `host` is required", ErrInvalidConfig)
	}
	if c.LocalBasePath == "" {
		return fmt.Errorf("%w: `local_basepath` is required", ErrInvalidConfig)
	}
	if c.RemoteBasePath == "" {
		return fmt.Errorf("%w: `remote_basepath` is required", ErrInvalidConfig)
	}

	for _, p := range c.Ignores {
		if p = ignore.NormalizePattern(p); p == "" {
			continue
		}
		if err := ignore.ValidatePattern(p); err != nil {
			return fmt.Errorf("%w: `ignores`: %w", ErrInvalidConfig, err)
		}
	}
	return nil
}

// Kind maps target OS, transport and lister choice to a listing strategy.
func (c *Config) Kind() remote.Kind {
	switch {
	case c.Transport == TransportFTP:
		return remote.KindFTP
	case c.TargetOS == OSWindows && c.WindowsLister == ListerForfiles:
		return remote.KindWindowsForfiles
	case c.TargetOS == OSWindows:
		return remote.KindWindowsScript
	default:
		return remote.KindUnixShell
	}
}

func (c *Config) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultTimeout
}

// SSHTransport resolves the key path and builds the transport settings.
func (c *Config) SSHTransport() (transport.SSHConfig, error) {
	cfg := transport.SSHConfig{
		Host:     c.Host,
		Port:     c.SSH.Port,
		Username: c.SSH.Username,
		Password: c.SSH.Password,
		Timeout:  c.timeout(),
	}
	var err error
	if c.SSH.PrivateKeyPath != "" {
		if cfg.PrivateKeyPath, err = utils.ResolvePath(c.SSH.PrivateKeyPath); err != nil {
			return cfg, fmt.Errorf("`ssh.private_key_path`: %w", err)
		}
		cfg.Passphrase = c.SSH.Passphrase
	}
	if c.SSH.KnownHosts != "" {
		if cfg.KnownHostsPath, err = utils.ResolvePath(c.SSH.KnownHosts); err != nil {
			return cfg, fmt.Errorf("`ssh.known_hosts`: %w", err)
		}
	}
	return cfg, nil
}

func (c *Config) FTPTransport() transport.FTPConfig {
	return transport.FTPConfig{
		Host:     c.Host,
		Port:     c.FTP.Port,
		Username: c.FTP.Username,
		Password: c.FTP.Password,
		Secure:   c.FTP.Secure,
		Timeout:  c.timeout(),
	}
}

// Save writes the config as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	if err := utils.EnsureParent(path); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o644)
}
