package nutrient

import (
	"fmt"
	"strings"
)

// Key identifies one of the six tracked nutrient fields
type Key int

const (
	Protein Key = iota
	Energy
	Fiber
	Fat
	Calcium
	Phosphorus
)

// Keys lists every tracked nutrient in model order
var Keys = [...]Key{Protein, Energy, Fiber, Fat, Calcium, Phosphorus}

// Count is the number of tracked nutrients
const Count = len(Keys)

var keyInfo = [Count]struct {
	code string
	name string
	unit string
}{
	Protein:    {"pk", "crude protein", "%"},
	Energy:     {"me", "metabolizable energy", "kcal/kg"},
	Fiber:      {"sk", "crude fiber", "%"},
	Fat:        {"lk", "crude fat", "%"},
	Calcium:    {"ca", "calcium", "%"},
	Phosphorus: {"p", "phosphorus", "%"},
}

// Code returns the short field code (pk, me, sk, lk, ca, p)
func (k Key) Code() string {
	if k < 0 || int(k) >= Count {
		return fmt.Sprintf("nutrient(%d)", int(k))
	}
	return keyInfo[k].code
}

// String returns the display name of the nutrient
func (k Key) String() string {
	if k < 0 || int(k) >= Count {
		return k.Code()
	}
	return keyInfo[k].name
}

// Unit returns the unit the nutrient is expressed in
func (k Key) Unit() string {
	if k < 0 || int(k) >= Count {
		return ""
	}
	return keyInfo[k].unit
}

// ParseKey converts a short field code into a Key
func ParseKey(code string) (Key, error) {
	code = strings.ToLower(strings.TrimSpace(code))
	for _, k := range Keys {
		if keyInfo[k].code == code {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown nutrient code %q", code)
}

// Profile is a fixed six-field nutrient record.
// For ingredients the values are per 100 units of the ingredient; for targets
// and achieved profiles they are per unit mass of the final blend.
type Profile struct {
	PK float64 `json:"pk" yaml:"pk"`
	ME float64 `json:"me" yaml:"me"`
	SK float64 `json:"sk" yaml:"sk"`
	LK float64 `json:"lk" yaml:"lk"`
	Ca float64 `json:"ca" yaml:"ca"`
	P  float64 `json:"p" yaml:"p"`
}

// Get returns the value of a single nutrient field
func (p Profile) Get(k Key) float64 {
	switch k {
	case Protein:
		return p.PK
	case Energy:
		return p.ME
	case Fiber:
		return p.SK
	case Fat:
		return p.LK
	case Calcium:
		return p.Ca
	case Phosphorus:
		return p.P
	}
	return 0
}

// Set assigns a single nutrient field. Unknown keys are ignored.
func (p *Profile) Set(k Key, v float64) {
	switch k {
	case Protein:
		p.PK = v
	case Energy:
		p.ME = v
	case Fiber:
		p.SK = v
	case Fat:
		p.LK = v
	case Calcium:
		p.Ca = v
	case Phosphorus:
		p.P = v
	}
}

// Target is the desired nutrient profile of a finished blend
type Target = Profile

// Ingredient is a feed ingredient with a stable identity and its nutrient content
type Ingredient struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Nutrients Profile `json:"nutrients"`
}

// Label returns the ingredient name, falling back to its id
func (i Ingredient) Label() string {
	if strings.TrimSpace(i.Name) != "" {
		return i.Name
	}
	return i.ID
}

// LivestockProfile is a named animal class with its nutrient requirements
type LivestockProfile struct {
	ID      string  `json:"id"`
	Species string  `json:"species"`
	Type    string  `json:"type"`
	Stage   string  `json:"stage"`
	Target  *Target `json:"target,omitempty"`
}

// Label returns the "species - type - stage" display string
func (lp LivestockProfile) Label() string {
	return fmt.Sprintf("%s - %s - %s", lp.Species, lp.Type, lp.Stage)
}
