package database

import (
	"fmt"
	"strings"
)

const defaultPort = 5432

// ConnString returns c.DSN when set, otherwise composes a keyword/value
// connection string from the discrete fields.
func (c *Config) ConnString() string {
	if c.DSN != "" {
		return c.DSN
	}

	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	port := c.Port
	if port == 0 {
		port = defaultPort
	}

	parts := []string{
		kv("host", c.Host),
		fmt.Sprintf("port=%d", port),
		kv("user", c.User),
		kv("password", c.Password),
		kv("dbname", c.Database),
		kv("sslmode", sslMode),
	}
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}

// kv renders one keyword/value pair, quoting values libpq would otherwise split.
func kv(key, val string) string {
	if val == "" {
		return ""
	}
	if strings.ContainsAny(val, ` '\`) {
		val = "'" + strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(val) + "'"
	}
	return key + "=" + val
}
