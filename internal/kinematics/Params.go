package kinematics

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Params holds the calibration of every built-in model and the name of the
// one in use. Config files fill it through mapstructure tags.
type Params struct {
	Model    string               `json:"model" mapstructure:"model"`
	GFM      GeneralizedForce     `json:"gfm" mapstructure:"gfm"`
	IDM      IntelligentDriver    `json:"idm" mapstructure:"idm"`
	Constant ConstantAcceleration `json:"constant" mapstructure:"constant"`
}

// DefaultParams selects the Generalized Force Model with its default calibration.
func DefaultParams() Params {
	return Params{
		Model:    GFMModelName,
		GFM:      DefaultGeneralizedForce(),
		IDM:      DefaultIntelligentDriver(),
		Constant: DefaultConstantAcceleration(),
	}
}

// New returns the model named by p.Model.
func (p Params) New() (CarFollowingModel, error) {
	return p.byName(p.Model)
}

func (p Params) byName(name string) (CarFollowingModel, error) {
	switch name {
	case GFMModelName:
		return p.GFM, nil
	case IDMModelName:
		return p.IDM, nil
	case ConstantModelName:
		return p.Constant, nil
	}
	return nil, fmt.Errorf("unknown car-following model %q", name)
}

// modelDisc is the minimum JSON structure needed to read the model discriminator.
type modelDisc struct {
	Model string `json:"model"`
}

// Decode resolves a per-vehicle model override. The "model" discriminator
// selects the implementation; the remaining keys overlay that model's
// calibration in p, so an override only needs the fields it changes.
//
// Supported models:
//   - "gfm": Generalized Force Model.
//   - "idm": Intelligent Driver Model.
//   - "constant": fixed a_acc / a_dcc rates.
//
// An empty message yields p.New().
func (p Params) Decode(raw json.RawMessage) (CarFollowingModel, error) {
	if len(raw) == 0 {
		return p.New()
	}
	var disc modelDisc
	if err := json.Unmarshal(raw, &disc); err != nil {
		return nil, fmt.Errorf("reading car-following model discriminator: %w", err)
	}

	switch disc.Model {
	case GFMModelName:
		m := p.GFM
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("parsing gfm parameters: %w", err)
		}
		return m, nil
	case IDMModelName:
		m := p.IDM
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("parsing idm parameters: %w", err)
		}
		return m, nil
	case ConstantModelName:
		m := p.Constant
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("parsing constant parameters: %w", err)
		}
		return m, nil
	case "":
		return nil, errors.New(`car-following override missing "model" field`)
	}
	return nil, fmt.Errorf("unknown car-following model %q", disc.Model)
}

// Validate reports the first non-physical parameter of the selected model.
func (p Params) Validate() error {
	m, err := p.New()
	if err != nil {
		return err
	}
	return ValidateModel(m)
}

// ValidateModel checks that a model's time constants and rates are positive.
func ValidateModel(m CarFollowingModel) error {
	positive := func(name string, v float64) error {
		if v <= 0 {
			return fmt.Errorf("%s.%s must be positive, got %g", m.Name(), name, v)
		}
		return nil
	}
	var checks []error
	switch m := m.(type) {
	case GeneralizedForce:
		checks = []error{
			positive("t", m.T), positive("v0", m.V0), positive("t1", m.T1),
			positive("t2", m.T2), positive("r", m.R), positive("r_prime", m.RPrime),
		}
		if m.D < 0 {
			checks = append(checks, fmt.Errorf("gfm.d must not be negative, got %g", m.D))
		}
	case IntelligentDriver:
		checks = []error{
			positive("a_max", m.AMax), positive("b_comfort", m.BComfort), positive("b_max", m.BMax),
			positive("v0", m.V0), positive("headway", m.Headway), positive("delta", m.Delta),
		}
	case ConstantAcceleration:
		checks = []error{positive("a_acc", m.AAcc), positive("a_dcc", m.ADcc), positive("v_max", m.VMaxVal)}
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}
	return nil
}
