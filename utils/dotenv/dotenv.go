package dotenv

import (
	"os"
	"regexp"

	"github.com/joho/godotenv"
)

const (
	EnvKey  = "FAMFEED_ENV"
	DevEnv  = "dev"
	ProdEnv = "prod"
	TestEnv = "test"
)

// Env returns the runtime environment, defaulting to dev.
func Env() string {
	env := os.Getenv(EnvKey)
	if env == "" {
		return DevEnv
	}
	return env
}

func IsProdEnv() bool {
	return Env() == ProdEnv
}

// Load loads the .env file following the convention: https://github.com/bkeepers/dotenv#what-other-env-files-can-i-use
// It only need to be called once in main function, other code can use env through os.Getenv('ENV_NAME') during runtime
func LoadDotEnvs() error {
	return loadDotEnvs("")
}

func loadDotEnvs(rootPath string) error {
	env := Env()

	// godotenv never overrides a variable that is already set, so files are
	// listed from highest to lowest priority. Missing files are fine.
	files := []string{
		// .env.[runtime_env].local has highest priority, usually contains credentials
		rootPath + ".env." + env + ".local",
		rootPath + ".env.local",
		// .env.[runtime_env] usually contains backend endpoints
		rootPath + ".env." + env,
		// .env usually contains shared variables(which might be overwritten by envs above)
		rootPath + ".env",
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return err
		}
	}
	return nil
}

// Have to write this helper function due to a known issue of godotenv
// https://github.com/joho/godotenv/issues/43
func LoadDotEnvsInTests() error {
	re := regexp.MustCompile(`^(.*famfeed)`)
	cwd, _ := os.Getwd()
	rootPath := re.Find([]byte(cwd))
	if rootPath == nil {
		return nil
	}

	f := string(rootPath) + "/" + ".env.test"
	if _, err := os.Stat(f); err != nil {
		return nil
	}
	return godotenv.Load(f)
}
