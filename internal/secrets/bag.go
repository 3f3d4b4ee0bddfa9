package secrets

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// PostgresCredentials is the structured credential record a stage may carry
// for a shared Postgres instance.
type PostgresCredentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Database string `json:"database"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
}

// RedisCredentials is the structured credential record for a shared Redis.
type RedisCredentials struct {
	Password string `json:"password"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
}

// ServiceCredentials groups the structured service records stored under the
// "services" key of a stage document.
type ServiceCredentials struct {
	Postgres *PostgresCredentials `json:"postgres,omitempty"`
	Redis    *RedisCredentials    `json:"redis,omitempty"`
}

// Bag is a decrypted stage document: a flat key/value map plus the optional
// services sub-structure. Service credentials are flattened at resolution
// time, not at rest.
type Bag struct {
	Values   map[string]string
	Services ServiceCredentials
}

// NewBag returns an empty bag ready for mutation.
func NewBag() Bag {
	return Bag{Values: map[string]string{}}
}

// UnmarshalJSON decodes the at-rest shape: every top-level string value is a
// flat secret, the reserved "services" key holds the structured records.
func (b *Bag) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	b.Values = make(map[string]string, len(raw))
	for key, value := range raw {
		if key == "services" {
			if err := json.Unmarshal(value, &b.Services); err != nil {
				return fmt.Errorf("invalid services block: %w", err)
			}
			continue
		}
		var s string
		if err := json.Unmarshal(value, &s); err != nil {
			return fmt.Errorf("secret %q must be a string", key)
		}
		b.Values[key] = s
	}
	return nil
}

// MarshalJSON produces the same flat-plus-services shape.
func (b Bag) MarshalJSON() ([]byte, error) {
	doc := make(map[string]interface{}, len(b.Values)+1)
	for key, value := range b.Values {
		doc[key] = value
	}
	if b.Services.Postgres != nil || b.Services.Redis != nil {
		doc["services"] = b.Services
	}
	return json.Marshal(doc)
}

// Flatten merges the structured service records into prefixed keys. Explicit
// flat entries win over derived ones so a user can always override a single
// variable without touching the services block.
func (b Bag) Flatten() map[string]string {
	out := make(map[string]string, len(b.Values)+8)
	if pg := b.Services.Postgres; pg != nil {
		out["POSTGRES_USER"] = pg.Username
		out["POSTGRES_PASSWORD"] = pg.Password
		out["POSTGRES_DB"] = pg.Database
		out["POSTGRES_HOST"] = pg.Host
		out["POSTGRES_PORT"] = strconv.Itoa(pg.Port)
	}
	if r := b.Services.Redis; r != nil {
		out["REDIS_PASSWORD"] = r.Password
		out["REDIS_HOST"] = r.Host
		out["REDIS_PORT"] = strconv.Itoa(r.Port)
	}
	for key, value := range b.Values {
		out[key] = value
	}
	return out
}
