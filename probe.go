package main

import (
	"github.com/sirupsen/logrus"
	"github.com/swaywm/go-wlroots/wlroots"
)

// outputProbe starts just enough of wlroots to enumerate the outputs of the machine.
// Used by tool mode to find values for the [output] config section
type outputProbe struct {
	display wlroots.Display
	backend wlroots.Backend
	outputs []wlroots.Output
}

func newOutputProbe() (*outputProbe, error) {
	probe := &outputProbe{}
	probe.display = wlroots.NewDisplay()

	/* The autocreate option picks the most suitable backend for the current
	 * environment, such as opening an X11 window if an X11 server is running. */
	backend, err := probe.display.BackendAutocreate()
	if err != nil {
		probe.display.Destroy()
		return nil, err
	}
	probe.backend = backend
	probe.backend.OnNewOutput(probe.handleNewOutput)
	return probe, nil
}

func (probe *outputProbe) handleNewOutput(output wlroots.Output) {
	logrus.WithField("name", output.Name()).Debugln("New output found")
	probe.outputs = append(probe.outputs, output)
}

// Start enumerates outputs and inputs. Every output is known once it returns
func (probe *outputProbe) Start() error {
	if err := probe.backend.Start(); err != nil {
		probe.Close()
		return err
	}
	return nil
}

func (probe *outputProbe) Outputs() []wlroots.Output {
	return probe.outputs
}

func (probe *outputProbe) Close() {
	probe.backend.Destroy()
	probe.display.Destroy()
}
