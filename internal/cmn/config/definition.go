package config

// Definition is the raw shape of the YAML configuration file before
// defaults and validation are applied.
type Definition struct {
	Debug     bool   `mapstructure:"debug"`
	LogFormat string `mapstructure:"logFormat"`
	TZ        string `mapstructure:"tz"`

	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	BasePath string `mapstructure:"basePath"`

	Paths  *PathsDef  `mapstructure:"paths"`
	Engine *EngineDef `mapstructure:"engine"`
}

// PathsDef configures the directory layout.
type PathsDef struct {
	SuitesDir       string `mapstructure:"suitesDir"`
	EnvironmentsDir string `mapstructure:"environmentsDir"`
	RunsDir         string `mapstructure:"runsDir"`
	SchedulesDir    string `mapstructure:"schedulesDir"`
	LogDir          string `mapstructure:"logDir"`
}

// EngineDef configures run execution behavior.
type EngineDef struct {
	RequestTimeout string `mapstructure:"requestTimeout"`
	ListenerSettle string `mapstructure:"listenerSettle"`
	InputTimeout   string `mapstructure:"inputTimeout"`
}
