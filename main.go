// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package main

import (
	"flag"
	"fmt"

	"github.com/mstarongithub/twm/config"
	"github.com/sirupsen/logrus"
)

var (
	configPath *string = flag.String(
		"config",
		"",
		"Path to the config file. Searched for in the xdg config dirs as "+config.DefaultPath+" if not set",
	)
	debug *bool = flag.Bool("debug", false, "Log everything")
	tool  *bool = flag.Bool("tool", false, "Start as a tool instead of a compositor")
	help  *bool = flag.Bool("help", false, "Show the help message")
)

func main() {
	flag.Parse()
	if *debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	conf, err := config.Load(*configPath)
	if err != nil {
		fatal("loading config", err)
	}
	if !*debug {
		// Validated already
		level, _ := logrus.ParseLevel(conf.LogLevel)
		logrus.SetLevel(level)
	}

	if *tool {
		utilMain(&conf)
		return
	}
	if *help {
		helpMessage()
		return
	}
	wlMain(&conf)
}

func helpMessage() {
	fmt.Println("---- Help message for twm ----")
	fmt.Println("\nGeneral flags:")
	fmt.Println("\t-config: Path to the config file (.toml, .yaml or .yml)")
	fmt.Println("\t-debug: Log everything")
	fmt.Println("\t-tool: Start as a tool instead of a compositor. Use with -help for more")
	fmt.Println("\t-help: Show this help message")
	fmt.Println("\nClients connect to the socket named in TWM_DISPLAY")
	fmt.Println("\nKey bindings:")
	fmt.Println("\tAlt+Escape: Quit")
	fmt.Println("\tAlt+F1: Focus the next window")
}
