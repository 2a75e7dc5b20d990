package config

type Log struct {
	// Level is applied to every subsystem. One of debug, info, warn, error.
	Level string
}
