package main

import (
	"flag"
	"fmt"

	"github.com/mstarongithub/twm/config"
	"github.com/pelletier/go-toml"
	"github.com/sirupsen/logrus"
	"github.com/swaywm/go-wlroots/wlroots"
	"gitlab.com/mstarongitlab/goutils/sliceutils"
)

var (
	utilAction *string = flag.String(
		"action",
		"outputs",
		"The action to perform. Can be one of:"+
			"\n\t- none: Do nothing"+
			"\n\t- outputs: List available outputs"+
			"\n\t- modes <output>: List available modes for an output"+
			"\n\t- probe <output>: Print an [output] config section for an output",
	)
	outputSelection *string = flag.String(
		"output",
		"",
		"Output to perform the action on. Required for some actions",
	)
)

func utilMain(_ *config.Config) {
	if *help {
		utilHelpMessage()
		return
	}

	wlroots.OnLog(wlroots.LogImportanceError, func(importance wlroots.LogImportance, msg string) {
		switch importance {
		case wlroots.LogImportanceDebug:
			logrus.Debugln(msg)
		case wlroots.LogImportanceInfo:
			logrus.Infoln(msg)
		case wlroots.LogImportanceError:
			logrus.Errorln(msg)
		case wlroots.LogImportanceSilent:
			return
		}
	})

	if *utilAction == "none" {
		return
	}

	probe, err := newOutputProbe()
	if err != nil {
		fatal("initializing wlroots", err)
	}
	if err = probe.Start(); err != nil {
		fatal("starting wlroots backend", err)
	}
	defer probe.Close()

	switch *utilAction {
	case "outputs":
		utilListOutputs(probe)
	case "modes":
		if *outputSelection == "" {
			fmt.Println("Output has to be specified")
			return
		}
		utilListOutputModes(probe, *outputSelection)
	case "probe":
		if *outputSelection == "" {
			fmt.Println("Output has to be specified")
			return
		}
		utilProbeOutput(probe, *outputSelection)
	default:
		fmt.Printf("Unknown action %s\n", *utilAction)
	}
}

func utilHelpMessage() {
	fmt.Println("---- Help message for twm in tool mode ----")
	fmt.Println("\nIn tool mode, twm will offer various tools for figuring out configurations and similar")
	fmt.Println("\nGeneral flags:")
	fmt.Println("\t-config: Path to the config file. Default is \"" + config.DefaultPath + "\" in the xdg config dirs")
	fmt.Println("\t-tool: Start as a tool instead of a compositor")
	fmt.Println("\t-help: Show this help message (or the one for compositor mode if -tool is not set)")
	fmt.Println("\nTool flags:")
	fmt.Println("\t-action: The action to perform. Can be one of:")
	fmt.Println("\t\t- (default) outputs: List available outputs")
	fmt.Println("\t\t- modes: List available modes for an output. Use with -output")
	fmt.Println("\t\t- probe: Print an [output] config section using the output's preferred mode. Use with -output")
	fmt.Println("\t-output: Output to perform the action on. Required for -action modes and -action probe")
}

func utilListOutputs(probe *outputProbe) {
	for i, output := range probe.Outputs() {
		fmt.Printf("Output %v: %s\n", i, output.Name())
	}
}

func findOutput(probe *outputProbe, outputName string) (wlroots.Output, bool) {
	filtered := sliceutils.Filter(probe.Outputs(), func(output wlroots.Output) bool {
		return output.Name() == outputName
	})
	if len(filtered) == 0 {
		fmt.Printf("Output %s not found\n", outputName)
		var none wlroots.Output
		return none, false
	}
	return filtered[0], true
}

func utilListOutputModes(probe *outputProbe, outputName string) {
	output, ok := findOutput(probe, outputName)
	if !ok {
		return
	}
	fmt.Printf("Modes for output %s:\n", outputName)
	for _, mode := range output.Modes() {
		if mode.Preferred() {
			fmt.Printf("\t- %dx%d@%d(Ratio: %d) (preferred)\n", mode.Width(), mode.Height(), mode.Refresh(), mode.PictureAspectRatio())
		} else {
			fmt.Printf("\t- %dx%d@%d(Ratio: %d)\n", mode.Width(), mode.Height(), mode.Refresh(), mode.PictureAspectRatio())
		}
	}
}

// utilProbeOutput prints a config section that makes the compositor's output match a real one
func utilProbeOutput(probe *outputProbe, outputName string) {
	output, ok := findOutput(probe, outputName)
	if !ok {
		return
	}
	mode, err := output.PrefferedMode()
	if err != nil {
		fmt.Printf("Output %s has no preferred mode: %s\n", outputName, err)
		return
	}
	section := struct {
		Output config.Output `toml:"output"`
	}{
		Output: config.Output{
			Name:       output.Name(),
			Width:      int(mode.Width()),
			Height:     int(mode.Height()),
			RefreshMHz: int(mode.Refresh()),
		},
	}
	data, err := toml.Marshal(section)
	if err != nil {
		fatal("encoding output section", err)
	}
	fmt.Print(string(data))
}
