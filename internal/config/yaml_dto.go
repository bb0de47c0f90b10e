package config

// YAMLConfig is the on-disk shape of a serve config file. Durations are
// Go duration strings such as "5s".
type YAMLConfig struct {
	Addr         string    `yaml:"addr"`
	Engine       string    `yaml:"engine"`
	WasmModule   string    `yaml:"wasm_module"`
	Timeout      string    `yaml:"timeout"`
	Memory       *int      `yaml:"memory"`
	LogLevel     string    `yaml:"log_level"`
	SessionTTL   string    `yaml:"session_ttl"`
	SeedFile     string    `yaml:"seed_file"`
	Storage      string    `yaml:"storage"`
	Redis        YAMLRedis `yaml:"redis"`
	AllowedHosts []string  `yaml:"allowed_hosts"`
}

type YAMLRedis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       *int   `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}
