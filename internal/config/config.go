package config

import (
	"fmt"

	env "github.com/caarlos0/env/v11"
)

type Config struct {
	DatabaseURL    string `env:"DATABASE_URL,required"`
	AccessPassword string `env:"ACCESS_PASSWORD,required"`
	JWTSecret      string `env:"JWT_SECRET,required"`
	Port           int    `env:"PORT" envDefault:"8080"`
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv         string `env:"APP_ENV" envDefault:"production"`

	// Coordinates used for the weather lookup when a reading arrives
	// without an ambient temperature.
	WeatherBaseURL  string  `env:"WEATHER_BASE_URL" envDefault:"https://api.open-meteo.com"`
	WeatherTimeoutS int     `env:"WEATHER_TIMEOUT_S" envDefault:"5"`
	DefaultLat      float64 `env:"DEFAULT_LAT" envDefault:"36.81"`
	DefaultLon      float64 `env:"DEFAULT_LON" envDefault:"118.05"`

	// Parallelism cap for the independent half of a batch reading round.
	BatchMaxInFlight int `env:"BATCH_MAX_IN_FLIGHT" envDefault:"10"`

	SessionTTLMinutes int `env:"SESSION_TTL_MINUTES" envDefault:"720"`

	DBMaxOpenConns     int `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns     int `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetimeS int `env:"DB_CONN_MAX_LIFETIME_S" envDefault:"300"`
	DBConnMaxIdleTimeS int `env:"DB_CONN_MAX_IDLE_TIME_S" envDefault:"60"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}
