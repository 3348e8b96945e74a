/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/valpere/legtrans/internal/config"
	"github.com/valpere/legtrans/internal/store"
	"github.com/valpere/legtrans/internal/translator"
	"github.com/valpere/legtrans/internal/urlstate"
)

// buildConnector constructs the translation backend named in the config,
// wrapped with the translation memory when one is open.
func buildConnector(c *config.Config, db *store.Store, logger *slog.Logger) (translator.Connector, error) {
	var conn translator.Connector

	switch c.Client.Backend {
	case "gradio":
		conn = translator.NewGradioService(c.Client.Space, c.Client.Endpoint, c.Client.HubURL, c.Client.Token)
	case "google":
		conn = translator.NewGoogleService(c.Client.Credentials)
	case "mymemory":
		conn = translator.NewMyMemoryService("", c.Client.MyMemoryEmail)
	default:
		return nil, fmt.Errorf("unknown client backend: %s", c.Client.Backend)
	}

	if db == nil {
		return conn, nil
	}
	return translator.WithMemory(conn, db, logger), nil
}

// openStore opens the translation memory, or returns nil when it is
// disabled.
func openStore(c *config.Config) (*store.Store, error) {
	if !c.Store.Enabled || c.Store.Path == "" {
		return nil, nil
	}
	db, err := store.New(c.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// buildLocationStore returns where session locations are kept, a readiness
// probe (nil for memory) and a release func.
func buildLocationStore(c *config.Config) (urlstate.Store, func(context.Context) error, func() error) {
	if c.Location.Backend != "redis" {
		return urlstate.NewMemoryStore(), nil, func() error { return nil }
	}
	rs := urlstate.NewRedisStore(c.Location.RedisAddr, c.Location.RedisPassword, c.Location.RedisDB,
		urlstate.WithTTL(c.Location.TTL))
	return rs, rs.Ping, rs.Close
}
