// Copyright (C) CattleDB Authors.
// All rights reserved. Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command cattledb is a minimal bootstrap binary: load config, set up
// logging, open a connection.Connection, and run database_init or
// service_init. It is not a façade — the RPC/REST/CLI layers over the
// core are out of scope (spec §1/§9); this only demonstrates wiring.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"

	"github.com/wuttem/cattledb/internal/connection"
	"github.com/wuttem/cattledb/pkg/log"
)

var (
	flagConfigFile  string
	flagLogLevel    string
	flagLogDateTime bool
	flagInitDB      bool
	flagForceInit   bool
)

func cliInit() {
	flag.StringVar(&flagConfigFile, "config", "./config.json", "Specify path to `config.json`")
	flag.StringVar(&flagLogLevel, "loglevel", "warn", "Sets the logging level: `[debug, info, warn, err, crit]`")
	flag.BoolVar(&flagLogDateTime, "logdate", false, "Set this flag to add date and time to log messages")
	flag.BoolVar(&flagInitDB, "init-db", false, "Run database_init instead of service_init")
	flag.BoolVar(&flagForceInit, "force", false, "Allow database_init to run again over an already-initialised database")
	flag.Parse()
}

func loadConfig(path string) (connection.Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return connection.Config{}, err
	}
	var cfg connection.Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return connection.Config{}, err
	}
	return cfg, nil
}

func main() {
	cliInit()
	log.SetLogLevel(flagLogLevel)
	log.SetLogDateTime(flagLogDateTime)

	cfg, err := loadConfig(flagConfigFile)
	if err != nil {
		log.Fatalf("cattledb: load config %s: %v", flagConfigFile, err)
	}

	conn, err := connection.Open(cfg)
	if err != nil {
		log.Fatalf("cattledb: open connection: %v", err)
	}
	defer conn.Close(context.Background())

	ctx := context.Background()
	if flagInitDB {
		if err := conn.DatabaseInit(ctx, flagForceInit); err != nil {
			log.Fatalf("cattledb: database_init: %v", err)
		}
		log.Info("cattledb: database_init complete")
		return
	}

	if err := conn.ServiceInit(ctx); err != nil {
		log.Fatalf("cattledb: service_init: %v", err)
	}
	log.Info("cattledb: service_init complete")
}
