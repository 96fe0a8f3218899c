package bisect

import (
	"io"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

type jobYaml struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`

	Regress string `yaml:"regress" default:"error"`

	Alt    bool   `yaml:"alt"`
	Host   string `yaml:"host"`
	Target string `yaml:"target"`

	Preserve       bool `yaml:"preserve"`
	PreserveTarget bool `yaml:"preserveTarget"`

	WithSrc    bool     `yaml:"withSrc"`
	WithDev    bool     `yaml:"withDev"`
	Components []string `yaml:"components"`

	TestDir string `yaml:"testDir" default:"."`

	Prompt     bool `yaml:"prompt"`
	PromptPort int  `yaml:"promptPort"`

	TimeoutSeconds int `yaml:"timeout"`

	Args []string `yaml:"args"`

	ByCommit bool   `yaml:"byCommit"`
	Access   string `yaml:"access" default:"checkout"`

	Script string `yaml:"script"`

	WithoutCargo bool `yaml:"withoutCargo"`
}

// OptionsFromConfig reads a bisection job in yaml format from a reader and
// initializes the corresponding options struct. Flags given on the command
// line take precedence over the file.
func OptionsFromConfig(r io.Reader) (*Options, error) {
	var config jobYaml
	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(&config); err != nil {
		return nil, err
	}
	if err := defaults.Set(&config); err != nil {
		return nil, err
	}

	regress, err := ParseRegressOn(config.Regress)
	if err != nil {
		return nil, err
	}

	opts := Options{
		Regress:        regress,
		Alt:            config.Alt,
		Host:           config.Host,
		Target:         config.Target,
		Preserve:       config.Preserve,
		PreserveTarget: config.PreserveTarget,
		WithSource:     config.WithSrc,
		WithDev:        config.WithDev,
		Components:     config.Components,
		TestDir:        config.TestDir,
		Prompt:         config.Prompt,
		PromptPort:     config.PromptPort,
		Timeout:        time.Duration(config.TimeoutSeconds) * time.Second,
		Args:           config.Args,
		ByCommit:       config.ByCommit,
		Access:         config.Access,
		Script:         config.Script,
		WithoutCargo:   config.WithoutCargo,
	}
	if config.Start != "" {
		b := ParseBound(config.Start)
		opts.Start = &b
	}
	if config.End != "" {
		b := ParseBound(config.End)
		opts.End = &b
	}
	return &opts, nil
}
