package ipc

// TODO: Look into adding support for sway and hyprland ipc so that twm can interact with those in tool mode

type (
	// A request to list the available Outputs
	OutputRequest struct {
		// Whether to include the modes an output supports
		IncludeModes bool `json:"include_modes"`
		// Target one specific output
		SpecifiesOutput bool `json:"specifies_output"`
		// Name of the output you want info on. Only matters if SpecifiesOutput is set
		TargetOutput string `json:"target_output"`
	}

	// A mode an output supports
	OutputMode struct {
		// Mode height in pixel
		Height int `json:"height"`
		// Mode width in pixel
		Width int `json:"width"`
		// Refresh rate of the mode in millihertz
		RefreshRate int `json:"refresh_rate"`
	}

	// Response to a OutputRequest message
	OutputResponse struct {
		// List of all outputs. Only contains target output if specified
		Outputs []string `json:"outputs"`
		// A list of modes an output supports. Only set if IncludeModes is true
		OutputModes map[string][]OutputMode `json:"output_modes,omitempty"`
		// Nr of outputs found
		OutputsFound int `json:"outputs_found"`
	}
)

func (OutputRequest) RequestName() string { return "output.list" }
func (OutputResponse) EventName() string  { return "output.list" }
