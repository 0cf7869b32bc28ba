package common

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Driver names accepted in Config.Driver besides the sql dialects
const (
	DriverMemory = "memory"
)

// Config holds all configuration parameters of a dReg process.
type Config struct {
	// Table backend
	Driver      string // sqlite, mysql, postgres or memory
	DSN         string
	TablePrefix string
	AutoMigrate bool

	// HeartbeatInterval is the refresh interval of the heartbeat row and the
	// base delay between two lock acquisition attempts
	HeartbeatInterval time.Duration
	// StalenessMultiple is the number of missed intervals after which a client is dead
	StalenessMultiple int

	// lock manager back-off
	MaxPollInterval   time.Duration
	Jitter            float64
	MaxStorageRetries int

	// client identity
	ClientID   int64
	ClientName string

	// MetricsEndpoint is the listen address of the metrics endpoint ("" = disabled)
	MetricsEndpoint string

	// Logging configuration
	LogLevel string
}

// DefaultConfig returns the default configuration (sqlite file in the working directory).
func DefaultConfig() Config {
	return Config{
		Driver:            "sqlite",
		DSN:               "dreg.db",
		TablePrefix:       "t_dreg_",
		AutoMigrate:       true,
		HeartbeatInterval: 3 * time.Second,
		StalenessMultiple: 3,
		MaxPollInterval:   0,
		Jitter:            0.1,
		MaxStorageRetries: 10,
		LogLevel:          "info",
	}
}

// Validate checks the configuration for values that can not work.
func (c *Config) Validate() error {
	if c.Driver == "" {
		return fmt.Errorf("driver is required")
	}
	if c.Driver != DriverMemory && c.DSN == "" {
		return fmt.Errorf("dsn is required for driver %s", c.Driver)
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat interval must be positive, got %s", c.HeartbeatInterval)
	}
	if c.StalenessMultiple < 1 {
		return fmt.Errorf("staleness multiple must be at least 1, got %d", c.StalenessMultiple)
	}
	if c.Jitter < 0 || c.Jitter >= 1 {
		return fmt.Errorf("jitter must be in [0, 1), got %v", c.Jitter)
	}
	if c.MaxStorageRetries < 0 {
		return fmt.Errorf("max storage retries must not be negative, got %d", c.MaxStorageRetries)
	}
	return nil
}

// StalenessThreshold returns the age of a heartbeat after which a client is considered dead.
func (c *Config) StalenessThreshold() time.Duration {
	return time.Duration(c.StalenessMultiple) * c.HeartbeatInterval
}

// String returns a formatted string representation of the configuration
func (c *Config) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Tables")
	addField("Driver", c.Driver)
	addField("DSN", redactDSN(c.DSN))
	addField("Table Prefix", c.TablePrefix)
	addField("Auto Migrate", strconv.FormatBool(c.AutoMigrate))

	addSection("Liveness")
	addField("Heartbeat Interval", c.HeartbeatInterval.String())
	addField("Staleness Threshold", fmt.Sprintf("%s (%dx)", c.StalenessThreshold(), c.StalenessMultiple))

	addSection("Lock Manager")
	if c.MaxPollInterval > c.HeartbeatInterval {
		addField("Back-off", fmt.Sprintf("exponential %s .. %s", c.HeartbeatInterval, c.MaxPollInterval))
	} else {
		addField("Back-off", fmt.Sprintf("fixed %s", c.HeartbeatInterval))
	}
	addField("Jitter", strconv.FormatFloat(c.Jitter, 'f', 2, 64))
	addField("Max Storage Retries", strconv.Itoa(c.MaxStorageRetries))

	addSection("Client")
	addField("Client Name", c.ClientName)
	if c.ClientID == 0 {
		addField("Client ID", "(generated)")
	} else {
		addField("Client ID", strconv.FormatInt(c.ClientID, 10))
	}

	addSection("Misc")
	if c.MetricsEndpoint == "" {
		addField("Metrics Endpoint", "(disabled)")
	} else {
		addField("Metrics Endpoint", c.MetricsEndpoint)
	}
	addField("Log Level", c.LogLevel)

	return sb.String()
}

// redactDSN hides the password of user:password@... style data source names
func redactDSN(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	if at < 0 {
		return dsn
	}
	creds := dsn[:at]
	colon := strings.LastIndex(creds, ":")
	if colon < 0 || strings.HasPrefix(creds[colon+1:], "//") {
		return dsn
	}
	return creds[:colon+1] + "***" + dsn[at:]
}
