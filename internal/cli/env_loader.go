package cli

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// loadFbxosEnvFromDotEnv imports FBXOS_* keys from a .env file. Variables
// already set in the environment win. A missing file is not an error.
func loadFbxosEnvFromDotEnv(path string) {
	values, err := godotenv.Read(path)
	if err != nil {
		return
	}
	for key, value := range values {
		if !strings.HasPrefix(key, "FBXOS_") {
			continue
		}
		if existing := strings.TrimSpace(os.Getenv(key)); existing != "" {
			continue
		}
		_ = os.Setenv(key, value)
	}
}
