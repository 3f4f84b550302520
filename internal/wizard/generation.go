package wizard

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	"github.com/lockplane/ksmigrate/internal/config"
)

const configHeader = `# ksmigrate configuration
# Generated by: ksmigrate init
#
# Credentials are stored in .env.<environment> files, never in this file.

`

// GenerateFiles creates ksmigrate.toml, the scripts location and, when the
// environment has secrets, a .env file in dir
func GenerateFiles(dir string, env EnvironmentInput, force bool) (*InitResult, error) {
	if problems := ValidateEnvironment(env); len(problems) > 0 {
		return nil, fmt.Errorf("invalid environment: %s", joinProblems(problems))
	}

	configPath := filepath.Join(dir, config.ConfigFileName)
	if _, err := os.Stat(configPath); err == nil && !force {
		return nil, fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
	}

	body, err := config.DefaultConfigTOML(env.Name, EnvironmentConfig(env))
	if err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", config.ConfigFileName, err)
	}
	if err := os.WriteFile(configPath, append([]byte(configHeader), body...), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", configPath, err)
	}
	result := &InitResult{ConfigPath: configPath}

	scriptsDir := env.ScriptsLocation
	scriptsDir = strings.TrimPrefix(scriptsDir, "filesystem:")
	if !filepath.IsAbs(scriptsDir) {
		scriptsDir = filepath.Join(dir, scriptsDir)
	}
	if _, err := os.Stat(scriptsDir); os.IsNotExist(err) {
		if err := os.MkdirAll(scriptsDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create scripts directory: %w", err)
		}
		result.ScriptsDirCreated = true
	}
	result.ScriptsDir = scriptsDir

	if values := EnvFileValues(env); len(values) > 0 {
		envPath := filepath.Join(dir, ".env."+env.Name)
		if err := writeEnvFile(envPath, values); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", envPath, err)
		}
		result.EnvFile = envPath

		updated, err := updateGitignore(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to update .gitignore: %w", err)
		}
		result.GitignoreUpdated = updated
	}

	return result, nil
}

func joinProblems(problems map[string]string) string {
	keys := make([]string, 0, len(problems))
	for k := range problems {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = problems[k]
	}
	return strings.Join(parts, "; ")
}

func writeEnvFile(path string, values map[string]string) error {
	content, err := godotenv.Marshal(values)
	if err != nil {
		return err
	}
	header := "# ksmigrate environment overrides, generated by ksmigrate init\n# Do not commit this file!\n"
	// Owner read/write only
	return os.WriteFile(path, []byte(header+content+"\n"), 0o600)
}

// updateGitignore adds .env.* to .gitignore in dir. It reports whether the
// file changed.
func updateGitignore(dir string) (bool, error) {
	gitignorePath := filepath.Join(dir, ".gitignore")

	content := ""
	if data, err := os.ReadFile(gitignorePath); err == nil {
		content = string(data)
	}

	if strings.Contains(content, ".env.*") {
		return false, nil
	}

	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	content += `
# ksmigrate environment files (added by ksmigrate init)
.env.*
`

	return true, os.WriteFile(gitignorePath, []byte(content), 0o644)
}
