package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/harnesscache/internal/foundation/errors"
	"git.home.luguber.info/inful/harnesscache/internal/state"
)

// StateCmd groups the run state subcommands. Every subcommand except init
// operates on the snapshot left by an earlier invocation.
type StateCmd struct {
	Init   StateInitCmd   `cmd:"" help:"Start a new run state document"`
	Get    StateGetCmd    `cmd:"" help:"Print the value at a dotted path"`
	Set    StateSetCmd    `cmd:"" help:"Set the value at a dotted path"`
	Append StateAppendCmd `cmd:"" help:"Append a value to the list at a dotted path"`
	Fail   StateFailCmd   `cmd:"" help:"Record a harness failure"`
	Finish StateFinishCmd `cmd:"" help:"Mark the run as finished"`
	Show   StateShowCmd   `cmd:"" help:"Print the whole document"`
	Watch  StateWatchCmd  `cmd:"" help:"Print the document every time it changes"`
}

// StateInitCmd implements 'state init'.
type StateInitCmd struct {
	Seed  string `help:"JSON or YAML file with the seed mapping" type:"existingfile"`
	Force bool   `help:"Replace an existing state document"`
}

func (c *StateInitCmd) Run(g *Global) error {
	path := g.Config.StatePath()
	if _, err := os.Stat(path); err == nil && !c.Force {
		return errors.WrapError(state.ErrAlreadyInitialized, errors.CategoryState, "state document already exists (use --force to replace it)").
			WithContext("state_path", path).
			Build()
	}

	seed := state.Null()
	if c.Seed != "" {
		var err error
		if seed, err = readSeed(c.Seed); err != nil {
			return err
		}
	}

	s := state.New(path, state.WithRecorder(g.Recorder))
	if err := s.Init(seed); err != nil {
		return err
	}
	g.println(path)
	return nil
}

// StateGetCmd implements 'state get'. A missing or falsy value exits 1.
type StateGetCmd struct {
	Path string `arg:"" help:"Dotted path, e.g. spec.cluster.zones"`
}

func (c *StateGetCmd) Run(g *Global) error {
	s, err := g.OpenStore()
	if err != nil {
		return err
	}
	v, ok := s.Get(c.Path)
	if !ok {
		return fmt.Errorf("%s is not set", c.Path)
	}
	g.println(v.String())
	return nil
}

// StateSetCmd implements 'state set'.
type StateSetCmd struct {
	Path  string `arg:"" help:"Dotted path"`
	Value string `arg:"" help:"JSON value; anything that is not valid JSON is stored as a string"`
}

func (c *StateSetCmd) Run(g *Global) error {
	s, err := g.OpenStore()
	if err != nil {
		return err
	}
	return s.Set(c.Path, parseValueArg(c.Value))
}

// StateAppendCmd implements 'state append'.
type StateAppendCmd struct {
	Path  string `arg:"" help:"Dotted path of the list"`
	Value string `arg:"" help:"JSON value; anything that is not valid JSON is stored as a string"`
}

func (c *StateAppendCmd) Run(g *Global) error {
	s, err := g.OpenStore()
	if err != nil {
		return err
	}
	return s.Append(c.Path, parseValueArg(c.Value))
}

// StateFailCmd implements 'state fail'.
type StateFailCmd struct {
	Message string `arg:"" help:"Failure message"`
	Context string `help:"JSON context stored with the failure" default:"null"`
}

func (c *StateFailCmd) Run(g *Global) error {
	s, err := g.OpenStore()
	if err != nil {
		return err
	}
	return s.RecordFailure(c.Message, parseValueArg(c.Context))
}

// StateFinishCmd implements 'state finish'.
type StateFinishCmd struct{}

func (c *StateFinishCmd) Run(g *Global) error {
	s, err := g.OpenStore()
	if err != nil {
		return err
	}
	return s.Finish()
}

// StateShowCmd implements 'state show'.
type StateShowCmd struct{}

func (c *StateShowCmd) Run(g *Global) error {
	s, err := g.OpenStore()
	if err != nil {
		return err
	}
	return printDocument(g, s.Snapshot())
}

// StateWatchCmd implements 'state watch'. It runs until interrupted.
type StateWatchCmd struct{}

func (c *StateWatchCmd) Run(g *Global) error {
	return state.Watch(g.Ctx, g.Config.StatePath(), func(doc state.Value) {
		if err := printDocument(g, doc); err != nil {
			g.println("error:", err)
		}
	})
}

func printDocument(g *Global, doc state.Value) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.WrapError(err, errors.CategoryInternal, "encode state").Build()
	}
	g.println(string(data))
	return nil
}

// parseValueArg reads a command-line value as JSON, falling back to a plain
// string so that `state set spec.cloud aws` works without quoting.
func parseValueArg(raw string) state.Value {
	v, err := state.ParseJSON([]byte(raw))
	if err != nil {
		return state.String(raw)
	}
	return v
}

func readSeed(path string) (state.Value, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- seed path is supplied by the operator
	if err != nil {
		return state.Value{}, errors.WrapError(err, errors.CategoryFileSystem, "read seed file").
			WithContext("path", path).
			Build()
	}

	var seed state.Value
	if strings.EqualFold(filepath.Ext(path), ".json") {
		seed, err = state.ParseJSON(data)
	} else {
		var raw any
		if err = yaml.Unmarshal(data, &raw); err == nil {
			seed, err = state.FromAny(raw)
		}
	}
	if err != nil {
		return state.Value{}, errors.WrapError(err, errors.CategoryValidation, "parse seed file").
			WithContext("path", path).
			Build()
	}
	return seed, nil
}
