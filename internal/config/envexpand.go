package config

import (
	"os"
	"regexp"
)

// envPattern ${VAR} и ${VAR:-default}.
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// ExpandEnv подстановка переменных окружения. Неустановленная переменная
// без значения по умолчанию заменяется пустой строкой.
func ExpandEnv(input string) string {
	return envPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envPattern.FindStringSubmatch(match)
		if value, ok := os.LookupEnv(groups[1]); ok && value != "" {
			return value
		}

		return groups[2]
	})
}
