package config

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/ini.v1"

	"lavalink-stats/internal/model"
)

const (
	// GlobalSection holds process settings; every other section is a node.
	GlobalSection = "config"

	DefaultPath       = "config.ini"
	DefaultClientName = "lavalink-stats"
)

var (
	ErrMissingSection = errors.New("missing [config] section")
	ErrDuplicateNode  = errors.New("duplicate node name")
	ErrNoNodes        = errors.New("no nodes configured")
)

type Config struct {
	Host             string
	Port             int
	Quiet            bool
	LogLevel         string
	LogJSON          bool
	GRPCListenAddr   string
	ProbeListenAddr  string
	Reconnect        bool
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	ReadLimit        int64
	ShutdownTimeout  time.Duration
	TLSSkipVerify    bool
	TLSCAPath        string
	ClientName       string
	Nodes            []model.NodeDescriptor
}

// ListenAddr is the bind address of the HTTP query surface.
func (c Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load reads the INI file at path, applies LAVASTATS_* environment overrides
// and validates the result.
func Load(path string) (Config, error) {
	if path == "" {
		path = env("LAVASTATS_CONFIG", DefaultPath)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes INI content without consulting the environment.
func Parse(data []byte) (Config, error) {
	f, err := ini.LoadSources(ini.LoadOptions{AllowNonUniqueSections: true}, data)
	if err != nil {
		return Config{}, err
	}

	global, err := f.GetSection(GlobalSection)
	if err != nil {
		return Config{}, ErrMissingSection
	}

	cfg, err := parseGlobal(global)
	if err != nil {
		return Config{}, err
	}

	seen := make(map[string]bool)
	for _, sec := range f.Sections() {
		name := sec.Name()
		if name == ini.DefaultSection {
			continue
		}
		if seen[name] {
			return Config{}, fmt.Errorf("%w: %s", ErrDuplicateNode, name)
		}
		seen[name] = true
		if name == GlobalSection {
			continue
		}
		node, err := parseNode(sec, cfg.Quiet)
		if err != nil {
			return Config{}, err
		}
		cfg.Nodes = append(cfg.Nodes, node)
	}
	return cfg, nil
}

func parseGlobal(sec *ini.Section) (Config, error) {
	r := keyReader{sec: sec}
	cfg := Config{
		Host:             sec.Key("host").MustString("127.0.0.1"),
		Port:             r.intKey("port", 5000),
		Quiet:            r.boolKey("quiet", false),
		LogLevel:         strings.ToLower(sec.Key("log_level").MustString("info")),
		LogJSON:          r.boolKey("log_json", false),
		GRPCListenAddr:   strings.TrimSpace(sec.Key("grpc_listen").String()),
		ProbeListenAddr:  strings.TrimSpace(sec.Key("probe_listen").String()),
		Reconnect:        r.boolKey("reconnect", true),
		ReconnectInitial: r.durationKey("reconnect_initial", time.Second),
		ReconnectMax:     r.durationKey("reconnect_max", 30*time.Second),
		HandshakeTimeout: r.durationKey("handshake_timeout", 10*time.Second),
		PingInterval:     r.durationKey("ping_interval", 15*time.Second),
		ReadLimit:        r.int64Key("read_limit", 1<<20),
		ShutdownTimeout:  r.durationKey("shutdown_timeout", 10*time.Second),
		TLSSkipVerify:    r.boolKey("tls_skip_verify", false),
		TLSCAPath:        strings.TrimSpace(sec.Key("tls_ca_path").String()),
		ClientName:       sec.Key("client_name").MustString(DefaultClientName),
	}
	if r.err != nil {
		return Config{}, r.err
	}
	return cfg, nil
}

// keyReader parses optional typed keys of one section. A present but
// malformed value is an error; the first one is kept and later reads are
// skipped.
type keyReader struct {
	sec *ini.Section
	err error
}

func (r *keyReader) lookup(name string) *ini.Key {
	if r.err != nil || !r.sec.HasKey(name) {
		return nil
	}
	return r.sec.Key(name)
}

func (r *keyReader) fail(name string, err error) {
	r.err = fmt.Errorf("[%s] %s: %w", r.sec.Name(), name, err)
}

func (r *keyReader) intKey(name string, fallback int) int {
	k := r.lookup(name)
	if k == nil {
		return fallback
	}
	v, err := k.Int()
	if err != nil {
		r.fail(name, err)
		return fallback
	}
	return v
}

func (r *keyReader) int64Key(name string, fallback int64) int64 {
	k := r.lookup(name)
	if k == nil {
		return fallback
	}
	v, err := k.Int64()
	if err != nil {
		r.fail(name, err)
		return fallback
	}
	return v
}

func (r *keyReader) boolKey(name string, fallback bool) bool {
	k := r.lookup(name)
	if k == nil {
		return fallback
	}
	v, err := k.Bool()
	if err != nil {
		r.fail(name, err)
		return fallback
	}
	return v
}

func (r *keyReader) durationKey(name string, fallback time.Duration) time.Duration {
	k := r.lookup(name)
	if k == nil {
		return fallback
	}
	v, err := k.Duration()
	if err != nil {
		r.fail(name, err)
		return fallback
	}
	return v
}

func parseNode(sec *ini.Section, quiet bool) (model.NodeDescriptor, error) {
	for _, k := range []string{"host", "port", "password", "user_id"} {
		if !sec.HasKey(k) {
			return model.NodeDescriptor{}, fmt.Errorf("node %s: missing key %q", sec.Name(), k)
		}
	}
	port, err := sec.Key("port").Int()
	if err != nil {
		return model.NodeDescriptor{}, fmt.Errorf("node %s: port: %w", sec.Name(), err)
	}
	userID, err := sec.Key("user_id").Int64()
	if err != nil {
		return model.NodeDescriptor{}, fmt.Errorf("node %s: user_id: %w", sec.Name(), err)
	}
	secure, err := keyBool(sec, "secure", false)
	if err != nil {
		return model.NodeDescriptor{}, fmt.Errorf("node %s: secure: %w", sec.Name(), err)
	}
	nodeQuiet, err := keyBool(sec, "quiet", quiet)
	if err != nil {
		return model.NodeDescriptor{}, fmt.Errorf("node %s: quiet: %w", sec.Name(), err)
	}
	return model.NodeDescriptor{
		ID:       sec.Name(),
		Host:     strings.TrimSpace(sec.Key("host").String()),
		Port:     port,
		Secure:   secure,
		Password: sec.Key("password").String(),
		UserID:   userID,
		Quiet:    nodeQuiet,
	}, nil
}

func keyBool(sec *ini.Section, name string, fallback bool) (bool, error) {
	if !sec.HasKey(name) {
		return fallback, nil
	}
	return sec.Key(name).Bool()
}

func applyEnv(c *Config) {
	c.Host = env("LAVASTATS_HOST", c.Host)
	c.Port = envInt("LAVASTATS_PORT", c.Port)
	c.LogLevel = strings.ToLower(env("LAVASTATS_LOG_LEVEL", c.LogLevel))
	c.LogJSON = envBool("LAVASTATS_LOG_JSON", c.LogJSON)
	c.GRPCListenAddr = env("LAVASTATS_GRPC_LISTEN", c.GRPCListenAddr)
	c.ProbeListenAddr = env("LAVASTATS_PROBE_LISTEN", c.ProbeListenAddr)
	c.Reconnect = envBool("LAVASTATS_RECONNECT", c.Reconnect)
	c.ShutdownTimeout = envDuration("LAVASTATS_SHUTDOWN_TIMEOUT", c.ShutdownTimeout)

	quiet := envBool("LAVASTATS_QUIET", c.Quiet)
	if quiet != c.Quiet {
		c.Quiet = quiet
		for i := range c.Nodes {
			c.Nodes[i].Quiet = quiet
		}
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return errors.New("[config] host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("[config] port %d out of range", c.Port)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported log level %q", c.LogLevel)
	}
	if c.ReconnectInitial <= 0 || c.ReconnectMax <= 0 {
		return errors.New("reconnect intervals must be > 0")
	}
	if c.ReconnectMax < c.ReconnectInitial {
		return errors.New("reconnect_max must be >= reconnect_initial")
	}
	if c.HandshakeTimeout <= 0 {
		return errors.New("handshake_timeout must be > 0")
	}
	if c.PingInterval <= 0 {
		return errors.New("ping_interval must be > 0")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("shutdown_timeout must be > 0")
	}
	if c.ReadLimit <= 0 {
		return errors.New("read_limit must be > 0")
	}
	if len(c.Nodes) == 0 {
		return ErrNoNodes
	}

	seen := make(map[string]bool, len(c.Nodes))
	for _, n := range c.Nodes {
		if seen[n.ID] {
			return fmt.Errorf("%w: %s", ErrDuplicateNode, n.ID)
		}
		seen[n.ID] = true
		if n.Host == "" {
			return fmt.Errorf("node %s: host is required", n.ID)
		}
		if n.Port <= 0 || n.Port > 65535 {
			return fmt.Errorf("node %s: port %d out of range", n.ID, n.Port)
		}
	}
	return nil
}

// TLSConfig builds the client TLS settings used for secure nodes. It returns
// nil when the defaults apply.
func (c Config) TLSConfig() (*tls.Config, error) {
	if !c.TLSSkipVerify && c.TLSCAPath == "" {
		return nil, nil
	}
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: c.TLSSkipVerify}
	if c.TLSCAPath != "" {
		caBytes, err := os.ReadFile(c.TLSCAPath)
		if err != nil {
			return nil, fmt.Errorf("read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caBytes) {
			return nil, errors.New("append CA cert failed")
		}
		tlsCfg.RootCAs = pool
	}
	return tlsCfg, nil
}

func env(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envBool(key string, fallback bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if v == "" {
		return fallback
	}
	switch v {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
