package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	appName    = "edgent"
	recordFile = "record.yaml"

	// EnvPrefix prefixes environment overrides, e.g. EDGENT_TRANSPORT=ble.
	EnvPrefix = "EDGENT"
)

// Transport kinds selectable in Settings.Transport.
const (
	TransportPortal = "portal"
	TransportBLE    = "ble"
)

// Settings describes the device build: identity, transport choice, timing
// and retry budget. It is read once at startup and never persisted by the
// engine itself.
type Settings struct {
	Device     DeviceSettings  `mapstructure:"device"`
	Transport  string          `mapstructure:"transport"`
	Portal     PortalSettings  `mapstructure:"portal"`
	BLE        BLESettings     `mapstructure:"ble"`
	Cloud      CloudSettings   `mapstructure:"cloud"`
	Timeouts   TimeoutSettings `mapstructure:"timeouts"`
	MaxRetries int             `mapstructure:"max_retries"`

	// StorePath is the file holding the provisioning record.
	StorePath string `mapstructure:"store_path"`

	// OTAPath receives firmware images uploaded through the portal.
	OTAPath string `mapstructure:"ota_path"`

	// RestartOnReset restarts the device after a configuration reset.
	RestartOnReset bool `mapstructure:"restart_on_reset"`
}

// DeviceSettings identify the device to configuration clients and the cloud.
type DeviceSettings struct {
	Prefix          string `mapstructure:"prefix"`
	TemplateID      string `mapstructure:"template_id"`
	TemplateName    string `mapstructure:"template_name"`
	FirmwareType    string `mapstructure:"firmware_type"`
	FirmwareVersion string `mapstructure:"firmware_version"`
	// UID is the unique device suffix; generating it is up to the platform.
	UID string `mapstructure:"uid"`
}

// PortalSettings configure the soft-AP captive portal.
type PortalSettings struct {
	APAddress string `mapstructure:"ap_address"`
	HTTPAddr  string `mapstructure:"http_addr"`
	DNSAddr   string `mapstructure:"dns_addr"`
	AssetDir  string `mapstructure:"asset_dir"`
	MDNS      bool   `mapstructure:"mdns"`
}

// BLESettings configure the GATT transport.
type BLESettings struct {
	MTU        int `mapstructure:"mtu"`
	QueueDepth int `mapstructure:"queue_depth"`
}

// CloudSettings hold the default cloud endpoint used by the record template.
type CloudSettings struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	TLS  bool   `mapstructure:"tls"`
}

// TimeoutSettings bound every wait the state machine performs.
type TimeoutSettings struct {
	NetConnect   time.Duration `mapstructure:"net_connect"`
	CloudConnect time.Duration `mapstructure:"cloud_connect"`
	ErrorDwell   time.Duration `mapstructure:"error_dwell"`
	Scan         time.Duration `mapstructure:"scan"`
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		Device: DeviceSettings{
			Prefix:          "Edgent",
			TemplateID:      "TMPL00000000",
			TemplateName:    "Device",
			FirmwareType:    "Edgent",
			FirmwareVersion: "0.1.0",
		},
		Transport: TransportPortal,
		Portal: PortalSettings{
			APAddress: "192.168.4.1",
			HTTPAddr:  ":80",
			DNSAddr:   ":53",
			MDNS:      true,
		},
		BLE: BLESettings{
			MTU:        23,
			QueueDepth: 16,
		},
		Cloud: CloudSettings{
			Host: "blynk.cloud",
			Port: 443,
			TLS:  true,
		},
		Timeouts: TimeoutSettings{
			NetConnect:   50 * time.Second,
			CloudConnect: 50 * time.Second,
			ErrorDwell:   10 * time.Second,
			Scan:         20 * time.Second,
		},
		MaxRetries:     500,
		RestartOnReset: true,
	}
}

// LoadSettings reads settings from an optional YAML file, then applies
// EDGENT_* environment overrides (EDGENT_PORTAL_HTTP_ADDR, ...).
func LoadSettings(path string) (Settings, error) {
	v := viper.New()
	setDefaults(v, DefaultSettings())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Settings{}, fmt.Errorf("failed to read settings file: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("failed to decode settings: %w", err)
	}

	if s.StorePath == "" {
		p, err := DefaultRecordPath()
		if err != nil {
			return Settings{}, err
		}
		s.StorePath = p
	}

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func setDefaults(v *viper.Viper, d Settings) {
	v.SetDefault("device.prefix", d.Device.Prefix)
	v.SetDefault("device.template_id", d.Device.TemplateID)
	v.SetDefault("device.template_name", d.Device.TemplateName)
	v.SetDefault("device.firmware_type", d.Device.FirmwareType)
	v.SetDefault("device.firmware_version", d.Device.FirmwareVersion)
	v.SetDefault("device.uid", d.Device.UID)
	v.SetDefault("transport", d.Transport)
	v.SetDefault("portal.ap_address", d.Portal.APAddress)
	v.SetDefault("portal.http_addr", d.Portal.HTTPAddr)
	v.SetDefault("portal.dns_addr", d.Portal.DNSAddr)
	v.SetDefault("portal.asset_dir", d.Portal.AssetDir)
	v.SetDefault("portal.mdns", d.Portal.MDNS)
	v.SetDefault("ble.mtu", d.BLE.MTU)
	v.SetDefault("ble.queue_depth", d.BLE.QueueDepth)
	v.SetDefault("cloud.host", d.Cloud.Host)
	v.SetDefault("cloud.port", d.Cloud.Port)
	v.SetDefault("cloud.tls", d.Cloud.TLS)
	v.SetDefault("timeouts.net_connect", d.Timeouts.NetConnect)
	v.SetDefault("timeouts.cloud_connect", d.Timeouts.CloudConnect)
	v.SetDefault("timeouts.error_dwell", d.Timeouts.ErrorDwell)
	v.SetDefault("timeouts.scan", d.Timeouts.Scan)
	v.SetDefault("max_retries", d.MaxRetries)
	v.SetDefault("store_path", d.StorePath)
	v.SetDefault("ota_path", d.OTAPath)
	v.SetDefault("restart_on_reset", d.RestartOnReset)
}

// Validate rejects settings the engine cannot run with
func (s Settings) Validate() error {
	switch s.Transport {
	case TransportPortal, TransportBLE:
	default:
		return fmt.Errorf("unknown transport %q (expected %q or %q)", s.Transport, TransportPortal, TransportBLE)
	}
	if s.MaxRetries < 1 {
		return fmt.Errorf("max_retries must be at least 1, got %d", s.MaxRetries)
	}
	if s.Timeouts.NetConnect <= 0 || s.Timeouts.CloudConnect <= 0 || s.Timeouts.ErrorDwell <= 0 || s.Timeouts.Scan <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if s.Cloud.Port <= 0 || s.Cloud.Port > 65535 {
		return fmt.Errorf("invalid cloud port %d", s.Cloud.Port)
	}
	return nil
}

// Default returns the factory-default record: no credentials, the default
// cloud endpoint and the running firmware version.
func (s Settings) Default() Record {
	return Record{
		CloudHost:       s.Cloud.Host,
		CloudPort:       s.Cloud.Port,
		FirmwareVersion: s.Device.FirmwareVersion,
	}
}

// maxNameLen is the longest advertised SSID / GATT name the radios accept.
const maxNameLen = 31

// DeviceName builds "<prefix> <template name>-<uid>", trimming the template
// name so the whole name fits in an SSID.
func (s Settings) DeviceName() string {
	d := s.Device
	maxTmpl := maxNameLen - (2 + len(d.Prefix) + len(d.UID))
	name := d.TemplateName
	if maxTmpl < 0 {
		maxTmpl = 0
	}
	if len(name) > maxTmpl {
		name = name[:maxTmpl]
	}

	var b strings.Builder
	b.WriteString(d.Prefix)
	if name != "" {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(name)
	}
	if d.UID != "" {
		if b.Len() > 0 {
			b.WriteByte('-')
		}
		b.WriteString(d.UID)
	}
	return b.String()
}

// Hostname is the device name usable as a DHCP hostname.
func (s Settings) Hostname() string {
	return strings.ReplaceAll(s.DeviceName(), " ", "-")
}

// GetConfigDir returns the OS-appropriate configuration directory for the application.
// This follows platform conventions:
//   - Linux: $XDG_CONFIG_HOME/edgent or $HOME/.config/edgent
//   - macOS: $HOME/.config/edgent
//   - Windows: %LOCALAPPDATA%\edgent
func GetConfigDir() (string, error) {
	switch runtime.GOOS {
	case "windows":
		localAppData := os.Getenv("LOCALAPPDATA")
		if localAppData != "" {
			return filepath.Join(localAppData, appName), nil
		}
		userProfile := os.Getenv("USERPROFILE")
		if userProfile == "" {
			return "", fmt.Errorf("cannot determine user profile directory (LOCALAPPDATA and USERPROFILE not set)")
		}
		return filepath.Join(userProfile, "AppData", "Local", appName), nil

	case "darwin":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		return filepath.Join(homeDir, ".config", appName), nil

	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, appName), nil
		}
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		return filepath.Join(homeDir, ".config", appName), nil
	}
}

// DefaultRecordPath returns the default location of the provisioning record.
func DefaultRecordPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, recordFile), nil
}
