package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/BurntSushi/toml"
	logging "github.com/ipfs/go-log/v2"
	"github.com/pkg/errors"
)

var log = logging.Logger("config")

// Config is an in memory representation of the filecoin chain store configuration file
type Config struct {
	NetworkParams *NetworkParamsConfig `toml:"parameters"`
	Cache         *CacheConfig         `toml:"cache"`
	Eth           *EthConfig           `toml:"eth"`
	Datastore     *DatastoreConfig     `toml:"datastore"`
	Metrics       *MetricsConfig       `toml:"metrics"`
}

// CacheConfig sizes the in-memory caches of the chain store.
type CacheConfig struct {
	TipSetCacheSize       int `toml:"tipSetCacheSize"`
	SkipCacheSize         int `toml:"skipCacheSize"`
	MsgsInTipsetCacheSize int `toml:"msgsInTipsetCacheSize"`
}

func newDefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		TipSetCacheSize:       8192,
		SkipCacheSize:         32768,
		MsgsInTipsetCacheSize: 100,
	}
}

// EthConfig controls the eth transaction hash index.
type EthConfig struct {
	EnableEthHashToFilecoinCidMapping bool   `toml:"enableEthHashToFilecoinCidMapping"`
	EthTxHashMappingLifetimeDays      int    `toml:"ethTxHashMappingLifetimeDays"`
	ChainID                           uint64 `toml:"chainID"`
}

func newDefaultEthConfig() *EthConfig {
	return &EthConfig{
		EnableEthHashToFilecoinCidMapping: true,
		EthTxHashMappingLifetimeDays:      0,
		ChainID:                           314,
	}
}

// DatastoreConfig holds all the configuration options for the datastore.
type DatastoreConfig struct {
	Type           string `toml:"type"`
	Path           string `toml:"path"`
	CacheBlocks    bool   `toml:"cacheBlocks"`
	BlockCacheLru  bool   `toml:"blockCacheLru"`
	BlockCacheSize int    `toml:"blockCacheSize"`
}

func newDefaultDatastoreConfig() *DatastoreConfig {
	return &DatastoreConfig{
		Type:           "badgerds",
		Path:           "badger",
		CacheBlocks:    false,
		BlockCacheLru:  true,
		BlockCacheSize: 100000,
	}
}

// MetricsConfig holds all configuration options related to node metrics.
type MetricsConfig struct {
	Enabled            bool   `toml:"enabled"`
	Namespace          string `toml:"namespace"`
	PrometheusEndpoint string `toml:"prometheusEndpoint"`
}

func newDefaultMetricsConfig() *MetricsConfig {
	return &MetricsConfig{
		Enabled:            false,
		Namespace:          "venus_chain",
		PrometheusEndpoint: "127.0.0.1:9400",
	}
}

// NewDefaultConfig returns a config object with all the fields filled out to
// their default values
func NewDefaultConfig() *Config {
	return &Config{
		NetworkParams: newDefaultNetworkParamsConfig(),
		Cache:         newDefaultCacheConfig(),
		Eth:           newDefaultEthConfig(),
		Datastore:     newDefaultDatastoreConfig(),
		Metrics:       newDefaultMetricsConfig(),
	}
}

// WriteFile writes the config to the given filepath.
func (cfg *Config) WriteFile(file string) error {
	f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	if err := toml.NewEncoder(f).Encode(*cfg); err != nil {
		_ = f.Close()
		return err
	}

	return f.Close()
}

// ReadFile reads a config file from disk. Sections or keys absent from the
// file keep their default values.
func ReadFile(file string) (*Config, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close() // nolint: errcheck

	cfg := NewDefaultConfig()
	md, err := toml.DecodeReader(f, cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode config %s", file)
	}
	for _, key := range md.Undecoded() {
		log.Warnf("unknown config key %s", key.String())
	}

	return cfg, nil
}

// lookup walks cfg along the dotted toml key and returns the addressed field.
func (cfg *Config) lookup(key string) (reflect.Value, error) {
	if key == "" {
		return reflect.Value{}, fmt.Errorf("empty key is invalid")
	}

	v := reflect.ValueOf(cfg).Elem()
	for _, name := range strings.Split(key, ".") {
		v = reflect.Indirect(v)
		if v.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("key: %s invalid for config", key)
		}
		field, ok := fieldByTomlTag(v, name)
		if !ok {
			return reflect.Value{}, fmt.Errorf("key: %s invalid for config", key)
		}
		v = field
	}
	return v, nil
}

func fieldByTomlTag(v reflect.Value, name string) (reflect.Value, bool) {
	for i := 0; i < v.NumField(); i++ {
		tag, _, _ := strings.Cut(v.Type().Field(i).Tag.Get("toml"), ",")
		if tag == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

// decodeTomlValue decodes tomlVal into a fresh value of type t. Sections may
// be given as inline tables or as plain key/value lines.
func decodeTomlValue(name, tomlVal string, t reflect.Type) (reflect.Value, error) {
	elem := t
	if elem.Kind() == reflect.Ptr {
		elem = elem.Elem()
	}

	doc := fmt.Sprintf("%s=%s", name, tomlVal)
	if elem.Kind() == reflect.Struct && !strings.HasPrefix(strings.TrimSpace(tomlVal), "{") {
		doc = fmt.Sprintf("[%s]\n%s", name, tomlVal)
	}

	holder := reflect.New(reflect.StructOf([]reflect.StructField{{
		Name: "Value",
		Type: t,
		Tag:  reflect.StructTag(fmt.Sprintf("toml:%q", name)),
	}}))
	if _, err := toml.Decode(doc, holder.Interface()); err != nil {
		return reflect.Value{}, errors.Wrapf(err, "cannot decode %q as %s", tomlVal, name)
	}
	return holder.Elem().Field(0), nil
}

// Set replaces the value at key, e.g. "cache.skipCacheSize", with the toml
// encoded tomlVal and returns the new value.
func (cfg *Config) Set(key string, tomlVal string) (interface{}, error) {
	field, err := cfg.lookup(key)
	if err != nil {
		return nil, err
	}
	name := key[strings.LastIndex(key, ".")+1:]
	val, err := decodeTomlValue(name, tomlVal, field.Type())
	if err != nil {
		return nil, err
	}
	field.Set(val)
	return field.Interface(), nil
}

// Get returns the value at key, e.g. "eth.chainID".
func (cfg *Config) Get(key string) (interface{}, error) {
	field, err := cfg.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}
