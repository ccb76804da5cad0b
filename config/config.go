package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

// LoadEnv reads .env (or ENV_FILE) into the process environment. Variables
// already set win; a missing file is not an error.
func LoadEnv() {
	path := os.Getenv("ENV_FILE")
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[BOOTSTRAP] cannot load %s: %v", path, err)
		}
		return
	}
	log.Printf("[BOOTSTRAP] loaded environment from %s", path)
}
